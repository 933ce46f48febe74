package aggregation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/hive-monitor/internal/database"
)

// WeeklyStore is the persistence needed by the weekly materializer
type WeeklyStore interface {
	ListRecordsBetween(ctx context.Context, from, to time.Time) ([]*database.SynchronizedRecord, error)
	UpsertWeeklyAggregate(ctx context.Context, agg *database.WeeklyAggregate) error
}

// Materializer writes weekly aggregates to the weekly_aggregates table
type Materializer struct {
	store  WeeklyStore
	agg    *Aggregator
	logger *zap.Logger
}

// NewMaterializer creates a new weekly materializer
func NewMaterializer(store WeeklyStore, agg *Aggregator, logger *zap.Logger) *Materializer {
	return &Materializer{store: store, agg: agg, logger: logger}
}

// AggregateWeek aggregates the ISO week containing target for every hive.
// Returns the number of aggregates written.
func (m *Materializer) AggregateWeek(ctx context.Context, target time.Time) (int, error) {
	start := WeekStart(target, m.agg.Location)
	end := start.AddDate(0, 0, 7)

	m.logger.Info("Running weekly aggregation",
		zap.String("week_start", start.Format("2006-01-02")))

	records, err := m.store.ListRecordsBetween(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to load records: %w", err)
	}

	aggs := m.agg.Weekly(records)
	for _, a := range aggs {
		if err := m.store.UpsertWeeklyAggregate(ctx, a.Record()); err != nil {
			return 0, err
		}
	}

	m.logger.Info("Weekly aggregation completed",
		zap.Int("records", len(records)),
		zap.Int("aggregates", len(aggs)),
		zap.Int("dropped", countHives(records)-len(aggs)))
	return len(aggs), nil
}

// AggregatePreviousWeek aggregates the last complete ISO week
func (m *Materializer) AggregatePreviousWeek(ctx context.Context, now time.Time) (int, error) {
	return m.AggregateWeek(ctx, WeekStart(now, m.agg.Location).AddDate(0, 0, -7))
}

// WeekStart returns Monday 00:00 of the ISO week containing t in loc
func WeekStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return day.AddDate(0, 0, -offset)
}

// NextRunTime calculates when the daily job should next run.
// timeOfDay is "HH:MM" in now's location.
func NextRunTime(now time.Time, timeOfDay string) (time.Time, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(timeOfDay, "%d:%d", &hour, &minute); err != nil {
		return time.Time{}, fmt.Errorf("invalid time format: %s (expected HH:MM)", timeOfDay)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid time of day: %s", timeOfDay)
	}

	todayRun := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(todayRun) {
		return todayRun.AddDate(0, 0, 1), nil
	}
	return todayRun, nil
}

func countHives(records []*database.SynchronizedRecord) int {
	seen := make(map[int]struct{})
	for _, r := range records {
		seen[r.HiveID] = struct{}{}
	}
	return len(seen)
}
