package aggregation

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smukkama/hive-monitor/internal/database"
)

func num(v float64) *float64 { return &v }

// week builds n per-minute records for a hive starting at start, with weight
// moving linearly from startWeight to endWeight.
func week(hiveID int, start time.Time, n int, startWeight, endWeight float64) []*database.SynchronizedRecord {
	records := make([]*database.SynchronizedRecord, n)
	for i := 0; i < n; i++ {
		frac := 0.0
		if n > 1 {
			frac = float64(i) / float64(n-1)
		}
		records[i] = &database.SynchronizedRecord{
			HiveID:                hiveID,
			CollectionTimestamp:   start.Add(time.Duration(i) * time.Minute),
			WeatherTemperature:    num(25),
			WeatherHumidity:       num(70),
			WeatherWindSpeed:      num(10),
			WeatherLightIntensity: num(5000),
			WeatherRainfall:       num(0),
			SensorTemperature:     num(34),
			SensorHumidity:        num(60),
			SensorSound:           num(60 + float64(i%10)),
			SensorWeight:          num(startWeight + (endWeight-startWeight)*frac),
		}
	}
	return records
}

func TestPerformanceLevel(t *testing.T) {
	tests := []struct {
		pct  float64
		want int
	}{
		{5, 1},
		{3.01, 1},
		{3, 2},
		{1, 2},
		{0.99, 3},
		{-1, 3},
		{-1.01, 4},
		{-3, 4},
		{-3.01, 5},
		{-20, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PerformanceLevel(tt.pct), "pct=%v", tt.pct)
	}
}

func TestWeightChange(t *testing.T) {
	abs, pct := WeightChange(40.0, 41.4)
	assert.InDelta(t, 1.4, abs, 1e-9)
	assert.InDelta(t, 3.5, pct, 1e-9)

	abs, pct = WeightChange(0, 41.4)
	assert.Equal(t, 0.0, abs)
	assert.Equal(t, 0.0, pct)
}

func TestAggregator_Weekly(t *testing.T) {
	// Monday of ISO week 2025-W10
	start := time.Date(2025, 3, 3, 6, 0, 0, 0, time.UTC)
	records := week(1, start, 150, 40.0, 41.4)

	aggs := NewAggregator(100, time.UTC).Weekly(records)

	require.Len(t, aggs, 1)
	a := aggs[0]
	assert.Equal(t, 1, a.HiveID)
	assert.Equal(t, 2025, a.ISOYear)
	assert.Equal(t, 10, a.ISOWeek)
	assert.Equal(t, 150, a.DataPoints)
	assert.InDelta(t, 3.5, a.WeightChangePct, 1e-9)
	assert.Equal(t, 1, a.PerformanceLevel)
	assert.False(t, a.LowConfidence)

	f := a.Features
	assert.Equal(t, 40.0, f[FeatStartWeight])
	assert.InDelta(t, 41.4, f[FeatEndWeight], 1e-9)
	assert.Equal(t, 25.0, f[FeatAvgWeatherTemp])
	assert.Equal(t, 9.0, f[FeatAvgTempDifferential])
	assert.Equal(t, -10.0, f[FeatAvgHumidityDiff])
	assert.Equal(t, 100.0, f[FeatPctFavorableForaging])
	assert.Equal(t, 150.0, f[FeatTotalForagingMinutes])
	assert.Equal(t, 0.0, f[FeatPctThermalStress])
	assert.Equal(t, 3.0, f[FeatMonth])
	assert.Equal(t, 0.0, f[FeatYalaSeason])
	assert.Equal(t, 0.0, f[FeatMahaSeason])
	assert.Equal(t, 0.0, f[FeatStdSensorTemp])
	assert.Equal(t, 69.0, f[FeatMaxSensorSound])
	// first reading of 69 dB lands at 06:09
	assert.Equal(t, 6.0, f[FeatPeakActivityHour])

	for _, col := range FeatureColumns {
		_, ok := f[col]
		assert.True(t, ok, "missing feature %s", col)
	}
	_, err := json.Marshal(f)
	assert.NoError(t, err)
}

func TestAggregator_WeeklyDropsSmallGroups(t *testing.T) {
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	records := append(week(1, start, 120, 40, 40), week(2, start, 99, 40, 40)...)

	aggs := NewAggregator(100, time.UTC).Weekly(records)

	require.Len(t, aggs, 1)
	assert.Equal(t, 1, aggs[0].HiveID)
}

func TestAggregator_WeeklySplitsOnISOWeek(t *testing.T) {
	// Sunday 2025-03-09 22:00 runs into Monday 2025-03-10
	start := time.Date(2025, 3, 9, 22, 0, 0, 0, time.UTC)
	records := week(3, start, 240, 40, 40)

	aggs := NewAggregator(100, time.UTC).Weekly(records)

	require.Len(t, aggs, 2)
	assert.Equal(t, 10, aggs[0].ISOWeek)
	assert.Equal(t, 120, aggs[0].DataPoints)
	assert.Equal(t, 11, aggs[1].ISOWeek)
	assert.Equal(t, 120, aggs[1].DataPoints)
}

func TestAggregator_ZeroStartWeight(t *testing.T) {
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	records := week(1, start, 100, 0, 41.4)

	aggs := NewAggregator(100, time.UTC).Weekly(records)

	require.Len(t, aggs, 1)
	assert.Equal(t, 0.0, aggs[0].WeightChangePct)
	assert.Equal(t, 3, aggs[0].PerformanceLevel)
}

func TestAggregator_NightBucketEmpty(t *testing.T) {
	// 100 minutes between 08:00 and 09:40 are all daytime
	start := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	records := week(1, start, 100, 40, 40)

	aggs := NewAggregator(100, time.UTC).Weekly(records)

	require.Len(t, aggs, 1)
	f := aggs[0].Features
	assert.Equal(t, 0.0, f[FeatSoundActivityNighttime])
	assert.False(t, math.IsInf(f[FeatSoundActivityRatio], 0))
	assert.InDelta(t, f[FeatSoundActivityDaytime]/ActivityRatioEpsilon, f[FeatSoundActivityRatio], 1e-6)
	assert.Equal(t, 1.0, f[FeatYalaSeason])
	assert.Equal(t, 0.0, f[FeatActivityAfternoon])
	assert.Greater(t, f[FeatActivityMorning], 0.0)
}

func TestAggregator_MissingChannels(t *testing.T) {
	start := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	records := week(1, start, 100, 40, 40)
	for _, r := range records {
		r.WeatherTemperature = nil
		r.SensorSound = nil
	}

	aggs := NewAggregator(100, time.UTC).Weekly(records)

	require.Len(t, aggs, 1)
	f := aggs[0].Features
	assert.Equal(t, 0.0, f[FeatAvgWeatherTemp])
	assert.Equal(t, 0.0, f[FeatPctFavorableForaging])
	assert.Equal(t, 0.0, f[FeatSoundActivityRatio])
	assert.Equal(t, 1.0, f[FeatMahaSeason])
	_, err := json.Marshal(f)
	assert.NoError(t, err)
}

func TestAggregator_Window(t *testing.T) {
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	agg := NewAggregator(100, time.UTC)

	low := agg.Window(1, week(1, start, 30, 40, 40))
	require.NotNil(t, low)
	assert.True(t, low.LowConfidence)
	assert.Equal(t, 30, low.DataPoints)

	full := agg.Window(1, week(1, start, 100, 40, 40))
	assert.False(t, full.LowConfidence)

	assert.Nil(t, agg.Window(1, nil))
}

type fakeRecordSource struct {
	records []*database.SynchronizedRecord
	since   time.Time
	limit   int
	err     error
}

func (f *fakeRecordSource) ListRecords(ctx context.Context, hiveID int, since time.Time, limit int) ([]*database.SynchronizedRecord, error) {
	f.since = since
	f.limit = limit
	return f.records, f.err
}

func TestWindowAggregator_Latest(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	src := &fakeRecordSource{records: week(4, now.Add(-2*time.Hour), 60, 40, 40)}
	w := NewWindowAggregator(src, NewAggregator(100, time.UTC), 0, 0)
	w.now = func() time.Time { return now }

	a, err := w.Latest(context.Background(), 4)

	require.NoError(t, err)
	require.NotNil(t, a)
	assert.True(t, a.LowConfidence)
	assert.Equal(t, now.Add(-DefaultLookback), src.since)
	assert.Equal(t, DefaultSampleCap, src.limit)

	src.err = errors.New("db down")
	_, err = w.Latest(context.Background(), 4)
	assert.Error(t, err)
}

type fakeWeeklyStore struct {
	records  []*database.SynchronizedRecord
	from, to time.Time
	upserted []*database.WeeklyAggregate
}

func (f *fakeWeeklyStore) ListRecordsBetween(ctx context.Context, from, to time.Time) ([]*database.SynchronizedRecord, error) {
	f.from, f.to = from, to
	return f.records, nil
}

func (f *fakeWeeklyStore) UpsertWeeklyAggregate(ctx context.Context, agg *database.WeeklyAggregate) error {
	f.upserted = append(f.upserted, agg)
	return nil
}

func TestMaterializer_AggregatePreviousWeek(t *testing.T) {
	monday := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	store := &fakeWeeklyStore{records: append(week(1, monday, 200, 40, 39), week(2, monday, 10, 40, 40)...)}
	m := NewMaterializer(store, NewAggregator(100, time.UTC), zap.NewNop())

	n, err := m.AggregatePreviousWeek(context.Background(), time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, monday, store.from)
	assert.Equal(t, monday.AddDate(0, 0, 7), store.to)
	require.Len(t, store.upserted, 1)
	assert.Equal(t, 1, store.upserted[0].HiveID)
	assert.Equal(t, 4, store.upserted[0].PerformanceLevel)
}

func TestWeekStart(t *testing.T) {
	sunday := time.Date(2025, 3, 9, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), WeekStart(sunday, time.UTC))

	monday := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, WeekStart(monday, time.UTC))
}

func TestNextRunTime(t *testing.T) {
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	next, err := NextRunTime(now, "00:05")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 4, 0, 5, 0, 0, time.UTC), next)

	next, err = NextRunTime(now, "23:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 3, 23, 30, 0, 0, time.UTC), next)

	_, err = NextRunTime(now, "late")
	assert.Error(t, err)
	_, err = NextRunTime(now, "25:00")
	assert.Error(t, err)
}
