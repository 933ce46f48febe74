package aggregation

import (
	"context"
	"fmt"
	"time"

	"github.com/smukkama/hive-monitor/internal/database"
)

// Serving-window defaults
const (
	DefaultLookback  = 7 * 24 * time.Hour
	DefaultSampleCap = 7 * 24 * 60
)

// RecordSource loads the records behind a serving aggregate
type RecordSource interface {
	ListRecords(ctx context.Context, hiveID int, since time.Time, limit int) ([]*database.SynchronizedRecord, error)
}

// WindowAggregator computes best-effort aggregates over a bounded lookback
type WindowAggregator struct {
	source    RecordSource
	agg       *Aggregator
	lookback  time.Duration
	sampleCap int
	now       func() time.Time
}

// NewWindowAggregator creates a serving-time aggregator.
// Non-positive lookback or sampleCap fall back to the defaults.
func NewWindowAggregator(source RecordSource, agg *Aggregator, lookback time.Duration, sampleCap int) *WindowAggregator {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	if sampleCap <= 0 {
		sampleCap = DefaultSampleCap
	}
	return &WindowAggregator{
		source:    source,
		agg:       agg,
		lookback:  lookback,
		sampleCap: sampleCap,
		now:       time.Now,
	}
}

// Lookback returns the configured lookback window
func (w *WindowAggregator) Lookback() time.Duration {
	return w.lookback
}

// Latest aggregates the most recent records of a hive inside the lookback window.
// It returns nil, nil when the hive has no records at all. An aggregate backed by
// fewer records than the floor is returned with LowConfidence set.
func (w *WindowAggregator) Latest(ctx context.Context, hiveID int) (*Aggregate, error) {
	since := w.now().Add(-w.lookback)
	records, err := w.source.ListRecords(ctx, hiveID, since, w.sampleCap)
	if err != nil {
		return nil, fmt.Errorf("failed to load records for hive %d: %w", hiveID, err)
	}
	return w.agg.Window(hiveID, records), nil
}

// Window aggregates records as a single group regardless of week boundaries.
// Returns nil for an empty slice.
func (a *Aggregator) Window(hiveID int, records []*database.SynchronizedRecord) *Aggregate {
	if len(records) == 0 {
		return nil
	}
	sorted := sortedCopy(records)
	activity := NormalizeSound(sorted)

	agg := a.summarize(sorted, activity, sensorTempMean(sorted))
	agg.HiveID = hiveID
	agg.ISOYear, agg.ISOWeek = agg.WeekEnd.In(a.Location).ISOWeek()
	agg.LowConfidence = len(sorted) < a.MinRecords
	return agg
}
