package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smukkama/hive-monitor/internal/aggregation"
	"github.com/smukkama/hive-monitor/internal/alertstore"
	"github.com/smukkama/hive-monitor/internal/database"
)

// AlertSink persists emitted alerts
type AlertSink interface {
	Add(ctx context.Context, a *alertstore.Alert) error
	CountSince(hiveID int, since time.Time, pred func(*alertstore.Alert) bool) int
}

// AlertPublisher forwards persisted alerts to live subscribers
type AlertPublisher interface {
	PublishAlert(ctx context.Context, a *alertstore.Alert) error
}

// Config tunes the engine
type Config struct {
	Cooldowns        Cooldowns
	EscalationWindow time.Duration
	EscalationCount  int
	PublishTimeout   time.Duration
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{
		Cooldowns:        DefaultCooldowns(),
		EscalationWindow: 24 * time.Hour,
		EscalationCount:  3,
		PublishTimeout:   2 * time.Second,
	}
}

// ThreatDetection is one threat classifier output for a hive
type ThreatDetection struct {
	HiveID      int
	ThreatType  string
	Probability float64
	Features    map[string]float64
}

// PerformanceOutcome is one performance classifier output for a hive
type PerformanceOutcome struct {
	HiveID         int
	Level          int
	Confidence     float64
	Interpretation string
	ModelVersion   string
	Features       map[string]float64
}

// Engine turns predictions into deduplicated, prioritized alerts
type Engine struct {
	sink      AlertSink
	cooldown  *CooldownTracker
	catalog   *Catalog
	publisher AlertPublisher
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time

	// serializes cooldown check, persist and record
	mu sync.Mutex
}

// NewEngine creates a new alerting engine. publisher may be nil.
func NewEngine(sink AlertSink, cooldown *CooldownTracker, catalog *Catalog, publisher AlertPublisher, cfg Config, logger *zap.Logger) *Engine {
	if catalog == nil {
		catalog = NewCatalog()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	return &Engine{
		sink:      sink,
		cooldown:  cooldown,
		catalog:   catalog,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the engine clock
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Catalog returns the recommendation catalog
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// EvaluateThreat emits an alert when the detection clears its gate and is
// outside its cooldown. Returns nil when nothing was emitted.
func (e *Engine) EvaluateThreat(ctx context.Context, d ThreatDetection) (*alertstore.Alert, error) {
	gate, ok := ThreatGate(d.ThreatType)
	if !ok || d.Probability < gate {
		e.logger.Debug("Threat below alert gate",
			zap.Int("hive_id", d.HiveID),
			zap.String("threat_type", d.ThreatType),
			zap.Float64("probability", d.Probability))
		return nil, nil
	}

	p := d.Probability
	recs := e.catalog.For(d.ThreatType)
	a := &alertstore.Alert{
		HiveID:          d.HiveID,
		Category:        alertstore.CategoryThreat,
		AlertType:       d.ThreatType,
		ThreatType:      d.ThreatType,
		Priority:        ThreatSeverity(d.ThreatType, d.Probability),
		Message:         fmt.Sprintf("%s threat detected at hive %d (probability %.0f%%)", d.ThreatType, d.HiveID, d.Probability*100),
		Probability:     &p,
		Recommendations: &recs,
		UsedFeatures:    d.Features,
		Metadata: map[string]any{
			"gate":    gate,
			"trigger": "threat_probability",
		},
	}

	emitted, err := e.emit(ctx, a, e.cfg.Cooldowns.For(d.ThreatType))
	if err != nil || !emitted {
		return nil, err
	}
	return a, nil
}

// EvaluatePerformance emits level, confidence, sensor and escalation alerts for
// one prediction. recent holds the hive's latest records, newest first.
func (e *Engine) EvaluatePerformance(ctx context.Context, o PerformanceOutcome, recent []*database.SynchronizedRecord) ([]*alertstore.Alert, error) {
	var candidates []*alertstore.Alert

	level := o.Level
	switch {
	case level >= CriticalLevel:
		candidates = append(candidates, e.performanceAlert(o, AlertCriticalPerformance, alertstore.PriorityCritical,
			fmt.Sprintf("Critical performance detected (Level %d): %s", level, o.Interpretation),
			map[string]any{"trigger": "critical_level_threshold"}))
	case level >= PoorLevel:
		candidates = append(candidates, e.performanceAlert(o, AlertPoorPerformance, alertstore.PriorityHigh,
			fmt.Sprintf("Poor performance detected (Level %d): %s", level, o.Interpretation),
			map[string]any{"trigger": "poor_level_threshold"}))
	}

	if o.Confidence < LowConfidenceThreshold {
		candidates = append(candidates, e.performanceAlert(o, AlertLowConfidence, alertstore.PriorityMedium,
			fmt.Sprintf("Low prediction confidence (%.1f%%) - sensor data may be unreliable", o.Confidence*100),
			map[string]any{"trigger": "low_confidence", "confidence": o.Confidence}))
	}

	candidates = append(candidates, e.sensorAlerts(o.HiveID, recent)...)

	var emitted []*alertstore.Alert
	var errs []error
	for _, a := range candidates {
		ok, err := e.emit(ctx, a, e.cfg.Cooldowns.Default)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			emitted = append(emitted, a)
		}
	}

	if esc, err := e.checkEscalation(ctx, o); err != nil {
		errs = append(errs, err)
	} else if esc != nil {
		emitted = append(emitted, esc)
	}

	return emitted, errors.Join(errs...)
}

func (e *Engine) performanceAlert(o PerformanceOutcome, alertType string, priority alertstore.Priority, message string, metadata map[string]any) *alertstore.Alert {
	level := o.Level
	metadata["confidence"] = o.Confidence
	if o.ModelVersion != "" {
		metadata["model_version"] = o.ModelVersion
	}
	a := &alertstore.Alert{
		HiveID:       o.HiveID,
		Category:     alertstore.CategoryPerformance,
		AlertType:    alertType,
		Priority:     priority,
		Message:      message,
		Level:        &level,
		Metadata:     metadata,
		UsedFeatures: o.Features,
	}
	if recs, ok := e.catalog.Lookup(alertType); ok {
		a.Recommendations = &recs
	}
	return a
}

// sensorAlerts inspects the latest records for hive temperature, temperature
// variance over the last hour and weight drop against the previous reading.
func (e *Engine) sensorAlerts(hiveID int, recent []*database.SynchronizedRecord) []*alertstore.Alert {
	if len(recent) == 0 {
		return nil
	}
	latest := recent[0]

	sensorAlert := func(alertType string, priority alertstore.Priority, message string, metadata map[string]any) *alertstore.Alert {
		a := &alertstore.Alert{
			HiveID:    hiveID,
			Category:  alertstore.CategoryPerformance,
			AlertType: alertType,
			Priority:  priority,
			Message:   message,
			Metadata:  metadata,
		}
		if recs, ok := e.catalog.Lookup(alertType); ok {
			a.Recommendations = &recs
		}
		return a
	}

	var out []*alertstore.Alert

	if v := TemperatureVariance(recent, time.Hour); v > TempVarianceThreshold {
		out = append(out, sensorAlert(AlertHighTemperatureVariance, alertstore.PriorityMedium,
			fmt.Sprintf("High temperature variance detected (%.2f°C) - possible thermoregulation issues", v),
			map[string]any{"temp_variance": v, "trigger": "temp_variance_threshold"}))
	}

	if pct, ok := WeightChangeFromPrevious(recent); ok && pct < WeightDropThreshold {
		out = append(out, sensorAlert(AlertSignificantWeightDrop, alertstore.PriorityHigh,
			fmt.Sprintf("Significant weight drop detected (%.1f%%) - possible swarming or robbing", pct),
			map[string]any{"weight_change_pct": pct, "trigger": "weight_drop_threshold"}))
	}

	if t := latest.SensorTemperature; t != nil {
		switch {
		case *t > HighHiveTemp:
			out = append(out, sensorAlert(AlertHighTemperature, alertstore.PriorityHigh,
				fmt.Sprintf("High hive temperature detected (%.1f°C) - overheating risk", *t),
				map[string]any{"temperature": *t, "trigger": "high_temperature"}))
		case *t < LowHiveTemp:
			out = append(out, sensorAlert(AlertLowTemperature, alertstore.PriorityMedium,
				fmt.Sprintf("Low hive temperature detected (%.1f°C) - colony stress possible", *t),
				map[string]any{"temperature": *t, "trigger": "low_temperature"}))
		}
	}

	return out
}

// TemperatureVariance is the sample std of hive temperature over the window
// ending at the newest record. recent must be newest first.
func TemperatureVariance(recent []*database.SynchronizedRecord, window time.Duration) float64 {
	if len(recent) == 0 {
		return 0
	}
	cutoff := recent[0].CollectionTimestamp.Add(-window)

	var temps []float64
	for _, r := range recent {
		if r.CollectionTimestamp.Before(cutoff) {
			break
		}
		if r.SensorTemperature != nil {
			temps = append(temps, *r.SensorTemperature)
		}
	}
	return aggregation.StdDev(temps)
}

// WeightChangeFromPrevious compares the newest weight to the previous recorded weight
func WeightChangeFromPrevious(recent []*database.SynchronizedRecord) (float64, bool) {
	if len(recent) < 2 || recent[0].SensorWeight == nil {
		return 0, false
	}
	current := *recent[0].SensorWeight
	for _, r := range recent[1:] {
		if r.SensorWeight == nil {
			continue
		}
		if *r.SensorWeight <= 0 {
			return 0, false
		}
		return (current - *r.SensorWeight) / *r.SensorWeight * 100, true
	}
	return 0, false
}

func (e *Engine) checkEscalation(ctx context.Context, o PerformanceOutcome) (*alertstore.Alert, error) {
	if e.cfg.EscalationCount <= 0 {
		return nil, nil
	}

	since := e.now().Add(-e.cfg.EscalationWindow)
	count := e.sink.CountSince(o.HiveID, since, func(a *alertstore.Alert) bool {
		return a.Category == alertstore.CategoryPerformance && a.Active() &&
			(a.AlertType == AlertPoorPerformance || a.AlertType == AlertCriticalPerformance)
	})
	if count < e.cfg.EscalationCount {
		return nil, nil
	}

	a := e.performanceAlert(o, AlertConsecutivePoor, alertstore.PriorityCritical,
		fmt.Sprintf("Consecutive poor performance detected (%d readings in %s) - urgent intervention needed", count, e.cfg.EscalationWindow),
		map[string]any{"consecutive_count": count, "trigger": "consecutive_poor_threshold"})

	ok, err := e.emit(ctx, a, e.cfg.EscalationWindow)
	if err != nil || !ok {
		return nil, err
	}
	return a, nil
}

// emit persists a unless (hive, type) is cooling down, then publishes it best-effort
func (e *Engine) emit(ctx context.Context, a *alertstore.Alert, window time.Duration) (bool, error) {
	e.mu.Lock()

	now := e.now().UTC()
	active, err := e.cooldown.Active(ctx, a.HiveID, a.AlertType, window, now)
	if err != nil {
		// a broken cooldown store must not silence alerts
		e.logger.Warn("Cooldown lookup failed", zap.Int("hive_id", a.HiveID), zap.String("alert_type", a.AlertType), zap.Error(err))
	}
	if active {
		e.mu.Unlock()
		e.logger.Info("Alert suppressed by cooldown",
			zap.Int("hive_id", a.HiveID),
			zap.String("alert_type", a.AlertType),
			zap.Duration("window", window))
		return false, nil
	}

	a.ID = uuid.New().String()
	a.Timestamp = now
	a.PriorityRank = a.Priority.Rank()

	if err := e.sink.Add(ctx, a); err != nil {
		e.mu.Unlock()
		e.logger.Error("Failed to persist alert", zap.Int("hive_id", a.HiveID), zap.String("alert_type", a.AlertType), zap.Error(err))
		return false, err
	}
	if err := e.cooldown.Record(ctx, a.HiveID, a.AlertType, a.ID, window, now); err != nil {
		e.logger.Warn("Failed to record cooldown", zap.String("alert_id", a.ID), zap.Error(err))
	}
	e.mu.Unlock()

	e.logger.Info("Alert emitted",
		zap.String("alert_id", a.ID),
		zap.Int("hive_id", a.HiveID),
		zap.String("alert_type", a.AlertType),
		zap.String("priority", string(a.Priority)))

	e.publish(ctx, a)
	return true, nil
}

func (e *Engine) publish(ctx context.Context, a *alertstore.Alert) {
	if e.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.PublishTimeout)
	defer cancel()

	if err := e.publisher.PublishAlert(pubCtx, a); err != nil {
		e.logger.Warn("Failed to publish alert", zap.String("alert_id", a.ID), zap.Error(err))
	}
}
