package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/smukkama/hive-monitor/internal/aggregation"
	"github.com/smukkama/hive-monitor/internal/database"
)

// Repository is the persistence the orchestrator needs
type Repository interface {
	GetHive(ctx context.Context, id int) (*database.Hive, error)
	CreateHive(ctx context.Context, h *database.Hive) error
	UpdateHive(ctx context.Context, id int, name *string, lat, lon *float64) (bool, error)
	InsertCycle(ctx context.Context, cycle *database.CollectionCycle, rec *database.SynchronizedRecord) error
}

// WeatherFetcher returns current weather at a location
type WeatherFetcher interface {
	Current(ctx context.Context, lat, lon float64) (*WeatherSample, error)
}

// FeedFetcher returns the latest value of a named sensor feed
type FeedFetcher interface {
	Latest(ctx context.Context, feed string) (*FeedValue, error)
}

// RecordPublisher forwards persisted records to live subscribers
type RecordPublisher interface {
	PublishRecord(ctx context.Context, rec *database.SynchronizedRecord) error
}

// Options configures an Orchestrator
type Options struct {
	WeatherRateLimit int
	FeedRateLimit    int
	RateWindow       time.Duration
	DefaultLatitude  float64
	DefaultLongitude float64
	Interval         time.Duration
	PublishTimeout   time.Duration
	Estimator        Estimator
	Publisher        RecordPublisher
	Now              func() time.Time
}

// SensorResult is the outcome of fetching one sensor metric
type SensorResult struct {
	Metric  string   `json:"metric"`
	Feed    string   `json:"feed"`
	Success bool     `json:"success"`
	Value   *float64 `json:"value,omitempty"`
	Status  string   `json:"status,omitempty"`
	Skipped bool     `json:"skipped,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// APIUsage counts outbound calls made and skipped during a cycle
type APIUsage struct {
	WeatherCalls int `json:"weather_calls"`
	SensorCalls  int `json:"sensor_calls"`
	SkippedCalls int `json:"skipped_calls"`
}

// CycleResult is returned by Collect
type CycleResult struct {
	Success             bool                         `json:"success"`
	HiveID              int                          `json:"hive_id"`
	CollectionTimestamp time.Time                    `json:"collection_timestamp"`
	WeatherOK           bool                         `json:"weather_ok"`
	SensorResults       []SensorResult               `json:"sensor_results"`
	APIUsage            APIUsage                     `json:"api_usage"`
	Errors              []string                     `json:"errors"`
	Record              *database.SynchronizedRecord `json:"record,omitempty"`
}

// Orchestrator runs collection cycles: one weather sample and one sample per
// sensor metric, merged under a single timestamp and persisted atomically.
type Orchestrator struct {
	repo           Repository
	weather        WeatherFetcher
	feeds          FeedFetcher
	estimator      Estimator
	publisher      RecordPublisher
	weatherLimiter *RateLimiter
	feedLimiter    *RateLimiter
	inflight       *InFlight
	logger         *zap.Logger
	now            func() time.Time

	defaultLat     float64
	defaultLon     float64
	interval       time.Duration
	publishTimeout time.Duration

	mu             sync.RWMutex
	lastCollection time.Time
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(repo Repository, weather WeatherFetcher, feeds FeedFetcher, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	if opts.Estimator == nil {
		opts.Estimator = HeuristicEstimator{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 2 * time.Second
	}

	return &Orchestrator{
		repo:           repo,
		weather:        weather,
		feeds:          feeds,
		estimator:      opts.Estimator,
		publisher:      opts.Publisher,
		weatherLimiter: NewRateLimiter(opts.WeatherRateLimit, opts.RateWindow),
		feedLimiter:    NewRateLimiter(opts.FeedRateLimit, opts.RateWindow),
		inflight:       NewInFlight(),
		logger:         logger,
		now:            opts.Now,
		defaultLat:     opts.DefaultLatitude,
		defaultLon:     opts.DefaultLongitude,
		interval:       opts.Interval,
		publishTimeout: opts.PublishTimeout,
	}
}

// Collect runs one collection cycle for a hive.
//
// Source failures are recorded in the result and never fail the cycle.
// The returned error is non-nil only when the cycle could not start
// (ErrCycleInFlight) or the record could not be persisted (database.ErrPersistence);
// in the latter case the result is returned as well with Success=false.
func (o *Orchestrator) Collect(ctx context.Context, hiveID int) (*CycleResult, error) {
	ts := o.now().UTC()

	if err := o.inflight.Acquire(hiveID, ts); err != nil {
		o.logger.Info("collection skipped, cycle already in flight", zap.Int("hive_id", hiveID))
		return nil, err
	}
	defer o.inflight.Release(hiveID)

	result := &CycleResult{
		HiveID:              hiveID,
		CollectionTimestamp: ts,
		Errors:              []string{},
	}

	lat, lon := o.resolveLocation(ctx, hiveID, result)

	rec := &database.SynchronizedRecord{
		HiveID:              hiveID,
		CollectionTimestamp: ts,
	}

	o.collectWeather(ctx, ts, lat, lon, rec, result)
	o.collectSensors(ctx, ts, hiveID, rec, result)

	est := o.estimator.Estimate(rec.SensorSound)
	rec.VibrationHz = est.VibrationHz
	rec.VibrationVariance = est.VibrationVariance
	rec.SoundPeakFrequency = est.SoundPeakFrequency
	aggregation.DeriveRecord(rec)

	cycle := &database.CollectionCycle{
		HiveID:              hiveID,
		CollectionTimestamp: ts,
		WeatherSuccess:      result.WeatherOK,
		SensorSuccess:       anySensorOK(result.SensorResults),
		WeatherCalls:        result.APIUsage.WeatherCalls,
		SensorCalls:         result.APIUsage.SensorCalls,
		SkippedCalls:        result.APIUsage.SkippedCalls,
		Errors:              result.Errors,
	}

	if err := o.repo.InsertCycle(ctx, cycle, rec); err != nil {
		o.logger.Error("failed to persist collection cycle",
			zap.Int("hive_id", hiveID),
			zap.Error(err),
		)
		result.Errors = append(result.Errors, err.Error())
		if !errors.Is(err, database.ErrPersistence) {
			err = fmt.Errorf("%w: %w", database.ErrPersistence, err)
		}
		return result, err
	}

	result.Success = true
	result.Record = rec

	o.mu.Lock()
	o.lastCollection = ts
	o.mu.Unlock()

	o.logger.Info("collection cycle complete",
		zap.Int("hive_id", hiveID),
		zap.Bool("weather_ok", result.WeatherOK),
		zap.Int("weather_calls", result.APIUsage.WeatherCalls),
		zap.Int("sensor_calls", result.APIUsage.SensorCalls),
		zap.Int("skipped_calls", result.APIUsage.SkippedCalls),
		zap.Int("errors", len(result.Errors)),
	)

	o.publish(ctx, rec)

	return result, nil
}

// resolveLocation returns the hive coordinates, creating the hive or filling a
// missing location with the defaults when needed. Lookup failures fall back to
// the defaults; persistence will surface a broken database.
func (o *Orchestrator) resolveLocation(ctx context.Context, hiveID int, result *CycleResult) (float64, float64) {
	lat, lon := o.defaultLat, o.defaultLon

	hive, err := o.repo.GetHive(ctx, hiveID)
	if err != nil {
		o.logger.Warn("hive lookup failed, using default location", zap.Int("hive_id", hiveID), zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("hive lookup: %v", err))
		return lat, lon
	}

	if hive == nil {
		hive = &database.Hive{
			ID:   hiveID,
			Name: fmt.Sprintf("Hive %d", hiveID),
			Lat:  &lat,
			Lon:  &lon,
		}
		if err := o.repo.CreateHive(ctx, hive); err != nil {
			o.logger.Warn("failed to auto-create hive", zap.Int("hive_id", hiveID), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("hive create: %v", err))
		} else {
			o.logger.Info("auto-created hive with default location",
				zap.Int("hive_id", hiveID),
				zap.Float64("lat", lat),
				zap.Float64("lon", lon),
			)
		}
		return lat, lon
	}

	if hive.Lat == nil || hive.Lon == nil {
		if _, err := o.repo.UpdateHive(ctx, hiveID, nil, &lat, &lon); err != nil {
			o.logger.Warn("failed to set default hive location", zap.Int("hive_id", hiveID), zap.Error(err))
		}
		return lat, lon
	}

	return *hive.Lat, *hive.Lon
}

func (o *Orchestrator) collectWeather(ctx context.Context, ts time.Time, lat, lon float64, rec *database.SynchronizedRecord, result *CycleResult) {
	if !o.weatherLimiter.Allow(ts) {
		result.APIUsage.SkippedCalls++
		result.Errors = append(result.Errors, fmt.Sprintf("weather: %v", ErrRateLimited))
		o.logger.Info("weather call skipped by rate limiter", zap.Int("hive_id", rec.HiveID))
		return
	}
	result.APIUsage.WeatherCalls++

	sample, err := o.weather.Current(ctx, lat, lon)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("weather: %v", err))
		o.logger.Warn("weather fetch failed", zap.Int("hive_id", rec.HiveID), zap.Error(err))
		return
	}

	result.WeatherOK = true
	rec.WeatherTemperature = &sample.Temperature
	rec.WeatherHumidity = &sample.Humidity
	rec.WeatherWindSpeed = &sample.WindSpeed
	rec.WeatherLightIntensity = &sample.LightIntensity
	rec.WeatherRainfall = &sample.Rainfall
}

// collectSensors fetches every metric concurrently; a failure on one feed does
// not affect the others.
func (o *Orchestrator) collectSensors(ctx context.Context, ts time.Time, hiveID int, rec *database.SynchronizedRecord, result *CycleResult) {
	results := make([]SensorResult, len(Metrics))

	var wg sync.WaitGroup
	for i, metric := range Metrics {
		res := &results[i]
		res.Metric = metric
		res.Feed = FeedName(hiveID, metric)

		if !o.feedLimiter.Allow(ts) {
			res.Skipped = true
			res.Error = ErrRateLimited.Error()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := o.feeds.Latest(ctx, res.Feed)
			if err != nil {
				res.Error = err.Error()
				return
			}
			res.Success = true
			res.Value = v.Value
			res.Status = v.Status
		}()
	}
	wg.Wait()

	for _, res := range results {
		switch {
		case res.Skipped:
			result.APIUsage.SkippedCalls++
			result.Errors = append(result.Errors, fmt.Sprintf("sensor %s: %s", res.Metric, res.Error))
			continue
		case !res.Success:
			result.APIUsage.SensorCalls++
			result.Errors = append(result.Errors, fmt.Sprintf("sensor %s: %s", res.Metric, res.Error))
			o.logger.Warn("sensor fetch failed",
				zap.Int("hive_id", hiveID),
				zap.String("feed", res.Feed),
				zap.String("error", res.Error),
			)
			continue
		}
		result.APIUsage.SensorCalls++

		if res.Value == nil {
			if rec.SensorStatus == nil {
				rec.SensorStatus = make(map[string]string)
			}
			rec.SensorStatus[res.Metric] = res.Status
			continue
		}
		v := *res.Value
		switch res.Metric {
		case MetricTemperature:
			rec.SensorTemperature = &v
		case MetricHumidity:
			rec.SensorHumidity = &v
		case MetricSound:
			rec.SensorSound = &v
		case MetricWeight:
			rec.SensorWeight = &v
		}
	}

	result.SensorResults = results
}

func (o *Orchestrator) publish(ctx context.Context, rec *database.SynchronizedRecord) {
	if o.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.publishTimeout)
	defer cancel()

	if err := o.publisher.PublishRecord(pubCtx, rec); err != nil {
		o.logger.Warn("failed to publish record update", zap.Int("hive_id", rec.HiveID), zap.Error(err))
	}
}

func anySensorOK(results []SensorResult) bool {
	for _, r := range results {
		if r.Success {
			return true
		}
	}
	return false
}

// SourceUsage reports rate-limiter state for one source
type SourceUsage struct {
	Used      int   `json:"used"`
	Remaining int   `json:"remaining"`
	Skipped   int64 `json:"skipped_total"`
}

// Status describes the orchestrator state
type Status struct {
	Interval          string      `json:"interval"`
	LastCollection    *time.Time  `json:"last_collection,omitempty"`
	LastCollectionAgo string      `json:"last_collection_ago"`
	CyclesInFlight    int         `json:"cycles_in_flight"`
	Weather           SourceUsage `json:"weather"`
	Sensors           SourceUsage `json:"sensors"`
}

// Status returns interval, last collection time and current API budgets
func (o *Orchestrator) Status() Status {
	now := o.now()

	o.mu.RLock()
	last := o.lastCollection
	o.mu.RUnlock()

	st := Status{
		Interval:          o.interval.String(),
		LastCollectionAgo: "never",
		CyclesInFlight:    o.inflight.Count(),
	}
	if !last.IsZero() {
		st.LastCollection = &last
		st.LastCollectionAgo = humanize.RelTime(last, now, "ago", "from now")
	}

	st.Weather.Used, st.Weather.Remaining = o.weatherLimiter.Usage(now)
	st.Weather.Skipped = o.weatherLimiter.Skipped()
	st.Sensors.Used, st.Sensors.Remaining = o.feedLimiter.Usage(now)
	st.Sensors.Skipped = o.feedLimiter.Skipped()
	return st
}

// InFlight reports whether a cycle for hiveID is running
func (o *Orchestrator) InFlight(hiveID int) bool {
	return o.inflight.Running(hiveID)
}
