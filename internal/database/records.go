package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const recordColumns = `
	id, cycle_id, hive_id, collection_timestamp,
	weather_temperature, weather_humidity, weather_wind_speed,
	weather_light_intensity, weather_rainfall,
	sensor_temperature, sensor_humidity, sensor_sound, sensor_weight, sensor_status,
	temp_differential, humidity_differential, favorable_foraging, thermal_stress,
	sound_activity, vibration_hz, vibration_variance, sound_peak_frequency,
	created_at`

// InsertCycle persists a collection cycle and its synchronized record in one transaction.
// Any failure rolls back both rows and is reported as ErrPersistence.
func (db *DB) InsertCycle(ctx context.Context, cycle *CollectionCycle, rec *SynchronizedRecord) error {
	status, err := json.Marshal(emptyIfNil(rec.SensorStatus))
	if err != nil {
		return fmt.Errorf("%w: marshal sensor status: %w", ErrPersistence, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ErrPersistence, err)
	}
	defer tx.Rollback()

	cycleQuery := `
		INSERT INTO collection_cycles (
			hive_id, collection_timestamp, weather_success, sensor_success,
			weather_calls, sensor_calls, skipped_calls, errors
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	errs := cycle.Errors
	if errs == nil {
		errs = []string{}
	}
	if err := tx.QueryRowContext(ctx, cycleQuery,
		cycle.HiveID,
		cycle.CollectionTimestamp,
		cycle.WeatherSuccess,
		cycle.SensorSuccess,
		cycle.WeatherCalls,
		cycle.SensorCalls,
		cycle.SkippedCalls,
		pq.Array(errs),
	).Scan(&cycle.ID); err != nil {
		return fmt.Errorf("%w: insert collection cycle: %w", ErrPersistence, err)
	}

	recordQuery := `
		INSERT INTO synchronized_records (
			cycle_id, hive_id, collection_timestamp,
			weather_temperature, weather_humidity, weather_wind_speed,
			weather_light_intensity, weather_rainfall,
			sensor_temperature, sensor_humidity, sensor_sound, sensor_weight, sensor_status,
			temp_differential, humidity_differential, favorable_foraging, thermal_stress,
			sound_activity, vibration_hz, vibration_variance, sound_peak_frequency
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id, created_at
	`
	rec.CycleID = cycle.ID
	if err := tx.QueryRowContext(ctx, recordQuery,
		rec.CycleID,
		rec.HiveID,
		rec.CollectionTimestamp,
		rec.WeatherTemperature,
		rec.WeatherHumidity,
		rec.WeatherWindSpeed,
		rec.WeatherLightIntensity,
		rec.WeatherRainfall,
		rec.SensorTemperature,
		rec.SensorHumidity,
		rec.SensorSound,
		rec.SensorWeight,
		status,
		rec.TempDifferential,
		rec.HumidityDifferential,
		rec.FavorableForaging,
		rec.ThermalStress,
		rec.SoundActivity,
		rec.VibrationHz,
		rec.VibrationVariance,
		rec.SoundPeakFrequency,
	).Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return fmt.Errorf("%w: insert synchronized record: %w", ErrPersistence, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrPersistence, err)
	}
	return nil
}

// ListRecords returns a hive's records collected at or after since, oldest first.
// When limit > 0 only the most recent limit records are returned.
func (db *DB) ListRecords(ctx context.Context, hiveID int, since time.Time, limit int) ([]*SynchronizedRecord, error) {
	var rows *sql.Rows
	var err error
	if limit > 0 {
		query := `
			SELECT ` + recordColumns + `
			FROM (
				SELECT * FROM synchronized_records
				WHERE hive_id = $1 AND collection_timestamp >= $2
				ORDER BY collection_timestamp DESC
				LIMIT $3
			) recent
			ORDER BY collection_timestamp ASC
		`
		rows, err = db.QueryContext(ctx, query, hiveID, since, limit)
	} else {
		query := `
			SELECT ` + recordColumns + `
			FROM synchronized_records
			WHERE hive_id = $1 AND collection_timestamp >= $2
			ORDER BY collection_timestamp ASC
		`
		rows, err = db.QueryContext(ctx, query, hiveID, since)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListRecordsBetween returns all records of every hive in [from, to), ordered by hive then time
func (db *DB) ListRecordsBetween(ctx context.Context, from, to time.Time) ([]*SynchronizedRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM synchronized_records
		WHERE collection_timestamp >= $1 AND collection_timestamp < $2
		ORDER BY hive_id, collection_timestamp ASC
	`
	rows, err := db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// LatestRecords returns the n most recent records for a hive, newest first
func (db *DB) LatestRecords(ctx context.Context, hiveID int, n int) ([]*SynchronizedRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM synchronized_records
		WHERE hive_id = $1
		ORDER BY collection_timestamp DESC
		LIMIT $2
	`
	rows, err := db.QueryContext(ctx, query, hiveID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetAlignmentStats summarizes source alignment for a hive since the given time
func (db *DB) GetAlignmentStats(ctx context.Context, hiveID int, since time.Time) (*AlignmentStats, error) {
	records, err := db.ListRecords(ctx, hiveID, since, 0)
	if err != nil {
		return nil, err
	}
	return ComputeAlignmentStats(records), nil
}

// ComputeAlignmentStats counts aligned and single-source records
func ComputeAlignmentStats(records []*SynchronizedRecord) *AlignmentStats {
	stats := &AlignmentStats{TotalRecords: len(records)}
	if len(records) == 0 {
		return stats
	}

	var quality float64
	for _, r := range records {
		hasWeather := r.WeatherTemperature != nil
		hasSensor := r.SensorTemperature != nil
		switch {
		case hasWeather && hasSensor:
			stats.PerfectlyAligned++
		case hasWeather:
			stats.WeatherOnly++
		case hasSensor:
			stats.SensorOnly++
		}
		quality += r.DataQualityScore()
	}

	stats.AlignmentRatePct = float64(stats.PerfectlyAligned) / float64(stats.TotalRecords) * 100
	stats.AverageQualityPct = quality / float64(stats.TotalRecords)
	return stats
}

func scanRecords(rows *sql.Rows) ([]*SynchronizedRecord, error) {
	var records []*SynchronizedRecord
	for rows.Next() {
		var r SynchronizedRecord
		var status []byte
		if err := rows.Scan(
			&r.ID,
			&r.CycleID,
			&r.HiveID,
			&r.CollectionTimestamp,
			&r.WeatherTemperature,
			&r.WeatherHumidity,
			&r.WeatherWindSpeed,
			&r.WeatherLightIntensity,
			&r.WeatherRainfall,
			&r.SensorTemperature,
			&r.SensorHumidity,
			&r.SensorSound,
			&r.SensorWeight,
			&status,
			&r.TempDifferential,
			&r.HumidityDifferential,
			&r.FavorableForaging,
			&r.ThermalStress,
			&r.SoundActivity,
			&r.VibrationHz,
			&r.VibrationVariance,
			&r.SoundPeakFrequency,
			&r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if len(status) > 0 {
			if err := json.Unmarshal(status, &r.SensorStatus); err != nil {
				return nil, fmt.Errorf("failed to decode sensor status: %w", err)
			}
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

func emptyIfNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
