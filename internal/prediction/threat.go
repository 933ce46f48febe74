package prediction

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/hive-monitor/internal/alerting"
	"github.com/smukkama/hive-monitor/internal/alertstore"
	"github.com/smukkama/hive-monitor/internal/database"
	"github.com/smukkama/hive-monitor/internal/model"
)

var (
	ErrValidation = &PredictionError{"invalid prediction request"}
)

// PredictionError represents a rejected prediction request
type PredictionError struct {
	msg string
}

func (e *PredictionError) Error() string {
	return e.msg
}

// Threat feature defaults
const (
	DefaultVibrationHz  = 200.0
	DefaultVibrationVar = 10.0
	DefaultSoundDB      = 70.0
	ratioFloor          = 1e-3
)

// ThreatFeatureColumns is the threat classifier input row, in order
var ThreatFeatureColumns = []string{
	"weather_temp_c",
	"weather_humidity_pct",
	"hive_sound_db",
	"hive_sound_peak_freq",
	"vibration_hz",
	"vibration_var",
	"hour",
	"dayofweek",
	"is_evening",
	"temp_humidity",
	"sound_roll3",
	"vib_roll3",
	"sound_var3",
	"vib_var3",
	"db_to_vib_ratio",
	"peak_to_vib_ratio",
}

// ThreatRequest is a threat prediction payload. The first four fields are required.
type ThreatRequest struct {
	HiveID            int        `json:"hive_id,omitempty"`
	WeatherTempC      *float64   `json:"weather_temp_c"`
	WeatherHumidity   *float64   `json:"weather_humidity_pct"`
	HiveSoundDB       *float64   `json:"hive_sound_db"`
	HiveSoundPeakFreq *float64   `json:"hive_sound_peak_freq"`
	VibrationHz       *float64   `json:"vibration_hz,omitempty"`
	VibrationVar      *float64   `json:"vibration_var,omitempty"`
	Timestamp         *time.Time `json:"timestamp,omitempty"`
	SoundRoll3        *float64   `json:"sound_roll3,omitempty"`
	VibRoll3          *float64   `json:"vib_roll3,omitempty"`
	SoundVar3         *float64   `json:"sound_var3,omitempty"`
	VibVar3           *float64   `json:"vib_var3,omitempty"`
}

// Validate checks required fields and that every supplied number is finite
func (r *ThreatRequest) Validate() error {
	required := []struct {
		name  string
		value *float64
	}{
		{"weather_temp_c", r.WeatherTempC},
		{"weather_humidity_pct", r.WeatherHumidity},
		{"hive_sound_db", r.HiveSoundDB},
		{"hive_sound_peak_freq", r.HiveSoundPeakFreq},
	}
	for _, f := range required {
		if f.value == nil {
			return fmt.Errorf("%w: %s is required", ErrValidation, f.name)
		}
		if !finite(*f.value) {
			return fmt.Errorf("%w: %s must be a finite number", ErrValidation, f.name)
		}
	}

	optional := map[string]*float64{
		"vibration_hz":  r.VibrationHz,
		"vibration_var": r.VibrationVar,
		"sound_roll3":   r.SoundRoll3,
		"vib_roll3":     r.VibRoll3,
		"sound_var3":    r.SoundVar3,
		"vib_var3":      r.VibVar3,
	}
	for name, v := range optional {
		if v != nil && !finite(*v) {
			return fmt.Errorf("%w: %s must be a finite number", ErrValidation, name)
		}
	}
	return nil
}

// ThreatFeatures builds the classifier row. now is used when the request has no timestamp.
func ThreatFeatures(r *ThreatRequest, now time.Time) (map[string]float64, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	ts := now
	if r.Timestamp != nil {
		ts = *r.Timestamp
	}

	temp, hum := *r.WeatherTempC, *r.WeatherHumidity
	sound, peak := *r.HiveSoundDB, *r.HiveSoundPeakFreq
	vib := valueOr(r.VibrationHz, DefaultVibrationHz)
	hour := ts.Hour()

	f := map[string]float64{
		"weather_temp_c":       temp,
		"weather_humidity_pct": hum,
		"hive_sound_db":        sound,
		"hive_sound_peak_freq": peak,
		"vibration_hz":         vib,
		"vibration_var":        valueOr(r.VibrationVar, DefaultVibrationVar),
		"hour":                 float64(hour),
		"dayofweek":            float64((int(ts.Weekday()) + 6) % 7),
		"is_evening":           0,
		"temp_humidity":        temp * hum,
		"sound_roll3":          valueOr(r.SoundRoll3, sound),
		"vib_roll3":            valueOr(r.VibRoll3, vib),
		"sound_var3":           valueOr(r.SoundVar3, 0),
		"vib_var3":             valueOr(r.VibVar3, 0),
		"db_to_vib_ratio":      sound / math.Max(vib, ratioFloor),
		"peak_to_vib_ratio":    peak / math.Max(vib, ratioFloor),
	}
	if hour >= 19 && hour <= 22 {
		f["is_evening"] = 1
	}
	return f, nil
}

// ThreatFromRecord builds a request from a synchronized record.
// Returns false when the record lacks weather temperature or humidity.
func ThreatFromRecord(rec *database.SynchronizedRecord) (*ThreatRequest, bool) {
	if rec == nil || rec.WeatherTemperature == nil || rec.WeatherHumidity == nil {
		return nil, false
	}

	sound := valueOr(rec.SensorSound, DefaultSoundDB)
	peak := 150 + (sound-60)*5
	if rec.SoundPeakFrequency != nil {
		peak = *rec.SoundPeakFrequency
	}
	ts := rec.CollectionTimestamp

	return &ThreatRequest{
		HiveID:            rec.HiveID,
		WeatherTempC:      rec.WeatherTemperature,
		WeatherHumidity:   rec.WeatherHumidity,
		HiveSoundDB:       &sound,
		HiveSoundPeakFreq: &peak,
		VibrationHz:       rec.VibrationHz,
		VibrationVar:      rec.VibrationVariance,
		Timestamp:         &ts,
	}, true
}

// ThreatResult is the outcome of predict_threat
type ThreatResult struct {
	HiveID          int                       `json:"hive_id,omitempty"`
	ThreatType      string                    `json:"threat_type"`
	Probability     float64                   `json:"probability"`
	Severity        alertstore.Priority       `json:"severity"`
	UsedFeatures    map[string]float64        `json:"used_features"`
	Recommendations alertstore.Recommendation `json:"recommendations"`
	ModelVersion    string                    `json:"model_version"`
	Timestamp       time.Time                 `json:"timestamp"`
}

// Detection converts the result for the alerting engine
func (r *ThreatResult) Detection() alerting.ThreatDetection {
	return alerting.ThreatDetection{
		HiveID:      r.HiveID,
		ThreatType:  r.ThreatType,
		Probability: r.Probability,
		Features:    r.UsedFeatures,
	}
}

// ThreatPredictor serves the threat classifier and records predictions for trend analysis
type ThreatPredictor struct {
	model   *model.Handle
	catalog *alerting.Catalog
	trends  *TrendTracker
	logger  *zap.Logger
	now     func() time.Time
}

// NewThreatPredictor creates a new threat predictor. trends may be nil.
func NewThreatPredictor(handle *model.Handle, catalog *alerting.Catalog, trends *TrendTracker, logger *zap.Logger) *ThreatPredictor {
	if catalog == nil {
		catalog = alerting.NewCatalog()
	}
	return &ThreatPredictor{
		model:   handle,
		catalog: catalog,
		trends:  trends,
		logger:  logger,
		now:     time.Now,
	}
}

// Predict classifies one payload. Validation failures return ErrValidation
// before the model is touched.
func (p *ThreatPredictor) Predict(ctx context.Context, req *ThreatRequest) (*ThreatResult, error) {
	now := p.now().UTC()
	features, err := ThreatFeatures(req, now)
	if err != nil {
		return nil, err
	}

	clf, err := p.model.Get()
	if err != nil {
		return nil, err
	}
	vec, err := model.BuildVector(clf.FeatureColumns(), features)
	if err != nil {
		return nil, err
	}
	proba, err := clf.PredictProba(vec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrModelUnavailable, err)
	}
	classes := clf.Classes()
	best := model.Argmax(proba)
	if best < 0 || len(classes) != len(proba) {
		return nil, fmt.Errorf("%w: classifier returned %d probabilities for %d classes",
			model.ErrModelUnavailable, len(proba), len(classes))
	}

	ts := now
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}
	result := &ThreatResult{
		HiveID:          req.HiveID,
		ThreatType:      classes[best],
		Probability:     proba[best],
		Severity:        alerting.ThreatSeverity(classes[best], proba[best]),
		UsedFeatures:    features,
		Recommendations: p.catalog.For(classes[best]),
		ModelVersion:    clf.Version(),
		Timestamp:       ts,
	}

	if p.trends != nil {
		p.trends.Add(req.HiveID, result.ThreatType, result.Probability, ts)
	}

	p.logger.Info("Threat predicted",
		zap.Int("hive_id", req.HiveID),
		zap.String("threat_type", result.ThreatType),
		zap.Float64("probability", result.Probability))
	return result, nil
}

// Trend returns the threat trend for a hive, or nil when no tracker is configured
func (p *ThreatPredictor) Trend(hiveID int) *Trend {
	if p.trends == nil {
		return nil
	}
	t := p.trends.Trend(hiveID)
	return &t
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
