package database

import (
	"context"
	"encoding/json"
	"fmt"
)

// UpsertWeeklyAggregate inserts or replaces the feature vector of one hive-week
func (db *DB) UpsertWeeklyAggregate(ctx context.Context, agg *WeeklyAggregate) error {
	features, err := json.Marshal(agg.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	query := `
		INSERT INTO weekly_aggregates (
			hive_id, iso_year, iso_week, week_start, week_end,
			data_points, weight_change_pct, performance_level, features
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (hive_id, iso_year, iso_week) DO UPDATE
		SET week_start = EXCLUDED.week_start,
		    week_end = EXCLUDED.week_end,
		    data_points = EXCLUDED.data_points,
		    weight_change_pct = EXCLUDED.weight_change_pct,
		    performance_level = EXCLUDED.performance_level,
		    features = EXCLUDED.features,
		    updated_at = CURRENT_TIMESTAMP
	`

	_, err = db.ExecContext(ctx, query,
		agg.HiveID,
		agg.ISOYear,
		agg.ISOWeek,
		agg.WeekStart,
		agg.WeekEnd,
		agg.DataPoints,
		agg.WeightChangePct,
		agg.PerformanceLevel,
		features,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert weekly aggregate: %w", ErrPersistence, err)
	}
	return nil
}

// GetWeeklyAggregate retrieves one hive-week; returns nil, nil when absent
func (db *DB) GetWeeklyAggregate(ctx context.Context, hiveID, isoYear, isoWeek int) (*WeeklyAggregate, error) {
	query := `
		SELECT hive_id, iso_year, iso_week, week_start, week_end,
		       data_points, weight_change_pct, performance_level, features, updated_at
		FROM weekly_aggregates
		WHERE hive_id = $1 AND iso_year = $2 AND iso_week = $3
	`

	rows, err := db.QueryContext(ctx, query, hiveID, isoYear, isoWeek)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var agg WeeklyAggregate
	var features []byte
	if err := rows.Scan(
		&agg.HiveID,
		&agg.ISOYear,
		&agg.ISOWeek,
		&agg.WeekStart,
		&agg.WeekEnd,
		&agg.DataPoints,
		&agg.WeightChangePct,
		&agg.PerformanceLevel,
		&features,
		&agg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(features, &agg.Features); err != nil {
		return nil, fmt.Errorf("failed to decode features: %w", err)
	}
	return &agg, nil
}
