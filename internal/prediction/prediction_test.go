package prediction

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

	"github.com/smukkama/hive-monitor/internal/aggregation"
	"github.com/smukkama/hive-monitor/internal/alerting"
	"github.com/smukkama/hive-monitor/internal/alertstore"
	"github.com/smukkama/hive-monitor/internal/database"
	"github.com/smukkama/hive-monitor/internal/model"
)

type fakeClassifier struct {
	classes []string
	columns []string
	proba   []float64
	got     []float64
}

func (c *fakeClassifier) Predict(features []float64) (string, error) {
	return c.classes[model.Argmax(c.proba)], nil
}

func (c *fakeClassifier) PredictProba(features []float64) ([]float64, error) {
	c.got = features
	return c.proba, nil
}

func (c *fakeClassifier) Classes() []string        { return c.classes }
func (c *fakeClassifier) FeatureColumns() []string { return c.columns }
func (c *fakeClassifier) Version() string          { return "test-1" }

type fakeSource struct {
	records []*database.SynchronizedRecord
	err     error
}

func (s *fakeSource) ListRecords(ctx context.Context, hiveID int, since time.Time, limit int) ([]*database.SynchronizedRecord, error) {
	return s.records, s.err
}

func num(v float64) *float64 { return &v }

func records(n int) []*database.SynchronizedRecord {
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	out := make([]*database.SynchronizedRecord, n)
	for i := range out {
		out[i] = &database.SynchronizedRecord{
			HiveID:                1,
			CollectionTimestamp:   start.Add(time.Duration(i) * time.Minute),
			WeatherTemperature:    num(27),
			WeatherHumidity:       num(75),
			WeatherWindSpeed:      num(8),
			WeatherLightIntensity: num(4000),
			WeatherRainfall:       num(0),
			SensorTemperature:     num(34),
			SensorHumidity:        num(62),
			SensorSound:           num(55 + float64(i%5)),
			SensorWeight:          num(40 + float64(i)*0.01),
		}
	}
	return out
}

func newPerformancePredictor(src *fakeSource, loader model.Loader) *PerformancePredictor {
	window := aggregation.NewWindowAggregator(src, aggregation.NewAggregator(100, time.UTC), 0, 0)
	return NewPerformancePredictor(window, model.NewHandle("performance", loader, zap.NewNop()), zap.NewNop())
}

func TestPerformancePredictor_Predict(t *testing.T) {
	clf := &fakeClassifier{
		classes: []string{"1", "2", "3", "4", "5"},
		columns: []string{aggregation.FeatAvgSensorTemp, aggregation.FeatYalaSeason},
		proba:   []float64{0.05, 0.1, 0.1, 0.7, 0.05},
	}
	p := newPerformancePredictor(&fakeSource{records: records(150)}, model.Static(clf))

	result, err := p.Predict(context.Background(), 1)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 4, result.PredictedLevel)
	assert.Equal(t, 0.7, result.Confidence)
	assert.Equal(t, 150, result.DataPointsUsed)
	assert.Equal(t, "MODERATE RISK - Monitor closely", result.RiskAssessment)
	assert.Equal(t, alerting.Interpretation(4), result.Interpretation)
	assert.Equal(t, "test-1", result.ModelVersion)
	assert.Len(t, result.AllProbabilities, 5)
	assert.Equal(t, 0.7, result.AllProbabilities["Level_4"])
	assert.Equal(t, []float64{34, 1}, clf.got)

	o := result.Outcome()
	assert.Equal(t, 4, o.Level)
	assert.Equal(t, 1, o.HiveID)
}

func TestPerformancePredictor_InsufficientData(t *testing.T) {
	loader := func() (model.Classifier, error) {
		t.Fatal("model must not be loaded for low-confidence windows")
		return nil, nil
	}
	p := newPerformancePredictor(&fakeSource{records: records(40)}, loader)

	result, err := p.Predict(context.Background(), 1)

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.True(t, result.LowConfidence)
	assert.Equal(t, 40, result.DataPointsUsed)
	assert.Contains(t, result.Message, "Insufficient data")
}

func TestPerformancePredictor_NoRecords(t *testing.T) {
	p := newPerformancePredictor(&fakeSource{}, model.Static(&fakeClassifier{}))

	result, err := p.Predict(context.Background(), 9)

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.DataPointsUsed)
}

func TestPerformancePredictor_ModelUnavailable(t *testing.T) {
	p := newPerformancePredictor(&fakeSource{records: records(150)}, model.FileLoader(""))

	_, err := p.Predict(context.Background(), 1)

	assert.True(t, IsModelUnavailable(err))
}

func TestPerformancePredictor_IncompatibleColumns(t *testing.T) {
	clf := &fakeClassifier{
		classes: []string{"1", "2"},
		columns: []string{"colony_strength_index"},
		proba:   []float64{0.5, 0.5},
	}
	p := newPerformancePredictor(&fakeSource{records: records(150)}, model.Static(clf))

	_, err := p.Predict(context.Background(), 1)

	assert.ErrorIs(t, err, model.ErrModelUnavailable)
}

func TestPerformancePredictor_SourceError(t *testing.T) {
	p := newPerformancePredictor(&fakeSource{err: errors.New("connection refused")}, model.Static(&fakeClassifier{}))

	_, err := p.Predict(context.Background(), 1)

	require.Error(t, err)
	assert.False(t, IsModelUnavailable(err))
}

func TestLevelOf(t *testing.T) {
	assert.Equal(t, 3, levelOf("3", 0))
	assert.Equal(t, 2, levelOf("Good", 1))
}

func validRequest() *ThreatRequest {
	ts := time.Date(2025, 3, 5, 20, 30, 0, 0, time.UTC) // Wednesday
	return &ThreatRequest{
		HiveID:            2,
		WeatherTempC:      num(30),
		WeatherHumidity:   num(80),
		HiveSoundDB:       num(72),
		HiveSoundPeakFreq: num(260),
		Timestamp:         &ts,
	}
}

func TestThreatFeatures(t *testing.T) {
	f, err := ThreatFeatures(validRequest(), time.Now())
	require.NoError(t, err)

	assert.Len(t, f, len(ThreatFeatureColumns))
	for _, col := range ThreatFeatureColumns {
		assert.Contains(t, f, col)
	}
	assert.Equal(t, 200.0, f["vibration_hz"])
	assert.Equal(t, 10.0, f["vibration_var"])
	assert.Equal(t, 20.0, f["hour"])
	assert.Equal(t, 2.0, f["dayofweek"])
	assert.Equal(t, 1.0, f["is_evening"])
	assert.Equal(t, 2400.0, f["temp_humidity"])
	assert.Equal(t, 72.0, f["sound_roll3"])
	assert.Equal(t, 200.0, f["vib_roll3"])
	assert.Equal(t, 0.0, f["sound_var3"])
	assert.InDelta(t, 0.36, f["db_to_vib_ratio"], 1e-9)
	assert.InDelta(t, 1.3, f["peak_to_vib_ratio"], 1e-9)
}

func TestThreatFeatures_RatioFloor(t *testing.T) {
	req := validRequest()
	req.VibrationHz = num(0)

	f, err := ThreatFeatures(req, time.Now())

	require.NoError(t, err)
	assert.InDelta(t, 72000.0, f["db_to_vib_ratio"], 1e-6)
}

func TestThreatFeatures_DefaultTimestamp(t *testing.T) {
	req := validRequest()
	req.Timestamp = nil
	now := time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC) // Sunday

	f, err := ThreatFeatures(req, now)

	require.NoError(t, err)
	assert.Equal(t, 8.0, f["hour"])
	assert.Equal(t, 6.0, f["dayofweek"])
	assert.Equal(t, 0.0, f["is_evening"])
}

func TestThreatRequest_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ThreatRequest)
	}{
		{"missing temperature", func(r *ThreatRequest) { r.WeatherTempC = nil }},
		{"missing humidity", func(r *ThreatRequest) { r.WeatherHumidity = nil }},
		{"missing sound", func(r *ThreatRequest) { r.HiveSoundDB = nil }},
		{"missing peak frequency", func(r *ThreatRequest) { r.HiveSoundPeakFreq = nil }},
		{"infinite temperature", func(r *ThreatRequest) { r.WeatherTempC = num(math.Inf(1)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			assert.ErrorIs(t, req.Validate(), ErrValidation)
		})
	}
	assert.NoError(t, validRequest().Validate())
}

func TestThreatRequest_JSON(t *testing.T) {
	var req ThreatRequest
	err := json.Unmarshal([]byte(`{
		"weather_temp_c": 31.5,
		"weather_humidity_pct": 78,
		"hive_sound_db": 74,
		"hive_sound_peak_freq": 240,
		"vibration_hz": 180,
		"timestamp": "2025-03-05T21:00:00+05:30"
	}`), &req)
	require.NoError(t, err)
	require.NoError(t, req.Validate())
	assert.Equal(t, 180.0, *req.VibrationHz)
	assert.Equal(t, 21, req.Timestamp.Hour())
}

func TestThreatFromRecord(t *testing.T) {
	ts := time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)
	rec := &database.SynchronizedRecord{
		HiveID:              3,
		CollectionTimestamp: ts,
		WeatherTemperature:  num(29),
		WeatherHumidity:     num(70),
		SensorSound:         num(70),
		VibrationHz:         num(215),
	}

	req, ok := ThreatFromRecord(rec)

	require.True(t, ok)
	assert.Equal(t, 3, req.HiveID)
	assert.Equal(t, 200.0, *req.HiveSoundPeakFreq)
	assert.Equal(t, 215.0, *req.VibrationHz)
	assert.Nil(t, req.VibrationVar)
	assert.Equal(t, ts, *req.Timestamp)
	assert.NoError(t, req.Validate())

	rec.WeatherHumidity = nil
	_, ok = ThreatFromRecord(rec)
	assert.False(t, ok)
}

func newThreatPredictor(clf *fakeClassifier, trends *TrendTracker) *ThreatPredictor {
	if clf.columns == nil {
		clf.columns = ThreatFeatureColumns
	}
	return NewThreatPredictor(model.NewHandle("threat", model.Static(clf), zap.NewNop()), nil, trends, zap.NewNop())
}

func TestThreatPredictor_Predict(t *testing.T) {
	clf := &fakeClassifier{
		classes: []string{"Environmental", "No_Threat", "Predator", "Wax_Moth"},
		proba:   []float64{0.05, 0.05, 0.85, 0.05},
	}
	trends := NewTrendTracker(0)
	p := newThreatPredictor(clf, trends)

	result, err := p.Predict(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Equal(t, "Predator", result.ThreatType)
	assert.Equal(t, 0.85, result.Probability)
	assert.Equal(t, alertstore.PriorityCritical, result.Severity)
	assert.Equal(t, "Critical", result.Recommendations.Priority)
	assert.Len(t, clf.got, len(ThreatFeatureColumns))
	assert.Equal(t, 1, trends.Len(2))

	d := result.Detection()
	assert.Equal(t, 2, d.HiveID)
	assert.Equal(t, result.UsedFeatures, d.Features)
}

func TestThreatPredictor_ValidationBeforeModel(t *testing.T) {
	loads := 0
	loader := func() (model.Classifier, error) {
		loads++
		return nil, errors.New("unreachable")
	}
	p := NewThreatPredictor(model.NewHandle("threat", loader, zap.NewNop()), nil, nil, zap.NewNop())
	req := validRequest()
	req.HiveSoundDB = nil

	_, err := p.Predict(context.Background(), req)

	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, loads)
	assert.Nil(t, p.Trend(1))
}

func TestThreatPredictor_ModelUnavailable(t *testing.T) {
	p := NewThreatPredictor(model.NewHandle("threat", model.FileLoader(""), zap.NewNop()), nil, nil, zap.NewNop())

	_, err := p.Predict(context.Background(), validRequest())

	assert.ErrorIs(t, err, model.ErrModelUnavailable)
}

func TestTrendTracker(t *testing.T) {
	ts := time.Now()

	t.Run("insufficient data", func(t *testing.T) {
		tr := NewTrendTracker(0)
		for i := 0; i < 4; i++ {
			tr.Add(1, alerting.ThreatPredator, 0.9, ts)
		}
		assert.Equal(t, Trend{Trend: "insufficient_data", Direction: "stable"}, tr.Trend(1))
	})

	t.Run("increasing", func(t *testing.T) {
		tr := NewTrendTracker(0)
		for i := 0; i < 4; i++ {
			tr.Add(1, alerting.ThreatNone, 0.9, ts)
		}
		for i := 0; i < 3; i++ {
			tr.Add(1, alerting.ThreatPredator, 0.9, ts)
		}
		got := tr.Trend(1)
		assert.Equal(t, "calculated", got.Trend)
		assert.Equal(t, "increasing", got.Direction)
		assert.InDelta(t, 0.9, got.CurrentThreatLevel, 1e-9)
		assert.Equal(t, 7, got.PredictionCount)
	})

	t.Run("decreasing", func(t *testing.T) {
		tr := NewTrendTracker(0)
		for i := 0; i < 5; i++ {
			tr.Add(1, alerting.ThreatWaxMoth, 0.9, ts)
		}
		for i := 0; i < 3; i++ {
			tr.Add(1, alerting.ThreatEnvironmental, 0.8, ts)
		}
		assert.Equal(t, "decreasing", tr.Trend(1).Direction)
	})

	t.Run("stable", func(t *testing.T) {
		tr := NewTrendTracker(0)
		for i := 0; i < 12; i++ {
			tr.Add(1, alerting.ThreatEnvironmental, 0.8, ts)
		}
		got := tr.Trend(1)
		assert.Equal(t, "stable", got.Direction)
		assert.Equal(t, 10, got.PredictionCount)
	})

	t.Run("per hive and bounded", func(t *testing.T) {
		tr := NewTrendTracker(3)
		for i := 0; i < 5; i++ {
			tr.Add(1, alerting.ThreatPredator, 0.9, ts)
		}
		assert.Equal(t, 3, tr.Len(1))
		assert.Equal(t, 0, tr.Len(2))
	})
}

func TestThreatScore(t *testing.T) {
	assert.Equal(t, 0.0, ThreatScore(alerting.ThreatNone, 0.9))
	assert.InDelta(t, 0.4, ThreatScore(alerting.ThreatEnvironmental, 0.8), 1e-9)
	assert.InDelta(t, 0.64, ThreatScore(alerting.ThreatWaxMoth, 0.8), 1e-9)
	assert.InDelta(t, 0.8, ThreatScore(alerting.ThreatPredator, 0.8), 1e-9)
	assert.InDelta(t, 0.48, ThreatScore("Varroa", 0.8), 1e-9)
}
