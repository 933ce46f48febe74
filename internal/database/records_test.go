package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return New(sqlDB), mock
}

func floatPtr(v float64) *float64 { return &v }

var recordColumnNames = []string{
	"id", "cycle_id", "hive_id", "collection_timestamp",
	"weather_temperature", "weather_humidity", "weather_wind_speed",
	"weather_light_intensity", "weather_rainfall",
	"sensor_temperature", "sensor_humidity", "sensor_sound", "sensor_weight", "sensor_status",
	"temp_differential", "humidity_differential", "favorable_foraging", "thermal_stress",
	"sound_activity", "vibration_hz", "vibration_variance", "sound_peak_frequency",
	"created_at",
}

func TestInsertCycle_Success(t *testing.T) {
	db, mock := setupMockDB(t)
	ts := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO collection_cycles`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery(`INSERT INTO synchronized_records`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), ts))
	mock.ExpectCommit()

	cycle := &CollectionCycle{HiveID: 1, CollectionTimestamp: ts, WeatherSuccess: true}
	rec := &SynchronizedRecord{HiveID: 1, CollectionTimestamp: ts, WeatherTemperature: floatPtr(28.5)}

	err := db.InsertCycle(context.Background(), cycle, rec)

	require.NoError(t, err)
	assert.Equal(t, int64(7), cycle.ID)
	assert.Equal(t, int64(7), rec.CycleID)
	assert.Equal(t, int64(42), rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCycle_RecordFailureRollsBack(t *testing.T) {
	db, mock := setupMockDB(t)
	ts := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO collection_cycles`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery(`INSERT INTO synchronized_records`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := db.InsertCycle(context.Background(),
		&CollectionCycle{HiveID: 1, CollectionTimestamp: ts},
		&SynchronizedRecord{HiveID: 1, CollectionTimestamp: ts})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCycle_BeginFailure(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	err := db.InsertCycle(context.Background(), &CollectionCycle{HiveID: 1}, &SynchronizedRecord{HiveID: 1})

	assert.True(t, errors.Is(err, ErrPersistence))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecords_ScansNullableFields(t *testing.T) {
	db, mock := setupMockDB(t)
	ts := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	since := ts.Add(-time.Hour)

	rows := sqlmock.NewRows(recordColumnNames).
		AddRow(int64(1), int64(10), 1, ts,
			28.5, 70.0, 12.0, 10000.0, 0.0,
			34.0, 60.0, 72.0, 40.2, []byte(`{"sound":"offline"}`),
			5.5, -10.0, true, false,
			0.72, 200.0, 10.0, 210.0,
			ts).
		AddRow(int64(2), int64(11), 1, ts.Add(time.Minute),
			nil, nil, nil, nil, nil,
			nil, nil, nil, nil, []byte(`{}`),
			nil, nil, nil, nil,
			nil, nil, nil, nil,
			ts)

	mock.ExpectQuery(`FROM synchronized_records`).
		WithArgs(1, since, 100).
		WillReturnRows(rows)

	records, err := db.ListRecords(context.Background(), 1, since, 100)

	require.NoError(t, err)
	require.Len(t, records, 2)
	require.NotNil(t, records[0].WeatherTemperature)
	assert.Equal(t, 28.5, *records[0].WeatherTemperature)
	assert.Equal(t, "offline", records[0].SensorStatus["sound"])
	require.NotNil(t, records[0].FavorableForaging)
	assert.True(t, *records[0].FavorableForaging)
	assert.Nil(t, records[1].WeatherTemperature)
	assert.Nil(t, records[1].SensorWeight)
	assert.Nil(t, records[1].ThermalStress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComputeAlignmentStats(t *testing.T) {
	records := []*SynchronizedRecord{
		{WeatherTemperature: floatPtr(20), SensorTemperature: floatPtr(34)},
		{WeatherTemperature: floatPtr(21)},
		{SensorTemperature: floatPtr(33)},
		{},
	}

	stats := ComputeAlignmentStats(records)

	assert.Equal(t, 4, stats.TotalRecords)
	assert.Equal(t, 1, stats.PerfectlyAligned)
	assert.Equal(t, 1, stats.WeatherOnly)
	assert.Equal(t, 1, stats.SensorOnly)
	assert.InDelta(t, 25.0, stats.AlignmentRatePct, 1e-9)
}

func TestComputeAlignmentStats_Empty(t *testing.T) {
	stats := ComputeAlignmentStats(nil)
	assert.Equal(t, 0, stats.TotalRecords)
	assert.Equal(t, 0.0, stats.AlignmentRatePct)
}

func TestDataQualityScore(t *testing.T) {
	full := &SynchronizedRecord{
		WeatherTemperature: floatPtr(1), WeatherHumidity: floatPtr(1), WeatherWindSpeed: floatPtr(1),
		WeatherLightIntensity: floatPtr(1), WeatherRainfall: floatPtr(0),
		SensorTemperature: floatPtr(1), SensorHumidity: floatPtr(1), SensorSound: floatPtr(1), SensorWeight: floatPtr(1),
	}
	assert.InDelta(t, 100.0, full.DataQualityScore(), 1e-9)
	assert.True(t, full.IsAligned())

	empty := &SynchronizedRecord{}
	assert.Equal(t, 0.0, empty.DataQualityScore())
	assert.False(t, empty.IsAligned())
}
