package prediction

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/hive-monitor/internal/aggregation"
	"github.com/smukkama/hive-monitor/internal/alerting"
	"github.com/smukkama/hive-monitor/internal/model"
)

// PerformanceResult is the outcome of predict_performance for one hive
type PerformanceResult struct {
	Success          bool               `json:"success"`
	HiveID           int                `json:"hive_id"`
	PredictedLevel   int                `json:"predicted_level,omitempty"`
	Interpretation   string             `json:"interpretation,omitempty"`
	Confidence       float64            `json:"confidence"`
	RiskAssessment   string             `json:"risk_assessment,omitempty"`
	AllProbabilities map[string]float64 `json:"all_probabilities,omitempty"`
	DataPointsUsed   int                `json:"data_points_used"`
	LowConfidence    bool               `json:"low_confidence"`
	ModelVersion     string             `json:"model_version,omitempty"`
	Message          string             `json:"message,omitempty"`
	Timestamp        time.Time          `json:"timestamp"`
	Features         map[string]float64 `json:"features,omitempty"`
}

// Outcome converts a successful result for the alerting engine
func (r *PerformanceResult) Outcome() alerting.PerformanceOutcome {
	return alerting.PerformanceOutcome{
		HiveID:         r.HiveID,
		Level:          r.PredictedLevel,
		Confidence:     r.Confidence,
		Interpretation: r.Interpretation,
		ModelVersion:   r.ModelVersion,
		Features:       r.Features,
	}
}

// PerformancePredictor serves the performance classifier over a serving-window aggregate
type PerformancePredictor struct {
	window *aggregation.WindowAggregator
	model  *model.Handle
	logger *zap.Logger
	now    func() time.Time
}

// NewPerformancePredictor creates a new performance predictor
func NewPerformancePredictor(window *aggregation.WindowAggregator, handle *model.Handle, logger *zap.Logger) *PerformancePredictor {
	return &PerformancePredictor{
		window: window,
		model:  handle,
		logger: logger,
		now:    time.Now,
	}
}

// Predict aggregates the hive's recent records and classifies its performance level.
// Too little data yields a result with Success=false rather than an error.
// A missing or incompatible model yields model.ErrModelUnavailable.
func (p *PerformancePredictor) Predict(ctx context.Context, hiveID int) (*PerformanceResult, error) {
	agg, err := p.window.Latest(ctx, hiveID)
	if err != nil {
		return nil, err
	}

	result := &PerformanceResult{HiveID: hiveID, Timestamp: p.now().UTC()}
	if agg == nil {
		result.Message = fmt.Sprintf("No records for hive %d in the last %s", hiveID, p.window.Lookback())
		return result, nil
	}
	result.DataPointsUsed = agg.DataPoints
	result.LowConfidence = agg.LowConfidence
	if agg.LowConfidence {
		result.Message = fmt.Sprintf("Insufficient data: %d records in the last %s", agg.DataPoints, p.window.Lookback())
		return result, nil
	}

	clf, err := p.model.Get()
	if err != nil {
		return nil, err
	}
	vec, err := model.BuildVector(clf.FeatureColumns(), agg.Features)
	if err != nil {
		p.logger.Error("Performance features incompatible with model", zap.Int("hive_id", hiveID), zap.Error(err))
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

	result.AllProbabilities = make(map[string]float64, len(proba))
	for i, pr := range proba {
		result.AllProbabilities[fmt.Sprintf("Level_%d", levelOf(classes[i], i))] = pr
	}

	result.Success = true
	result.PredictedLevel = levelOf(classes[best], best)
	result.Confidence = proba[best]
	result.Interpretation = alerting.Interpretation(result.PredictedLevel)
	result.RiskAssessment = alerting.RiskAssessment(result.PredictedLevel, result.Confidence)
	result.ModelVersion = clf.Version()
	result.Features = agg.Features

	p.logger.Info("Performance predicted",
		zap.Int("hive_id", hiveID),
		zap.Int("level", result.PredictedLevel),
		zap.Float64("confidence", result.Confidence),
		zap.Int("data_points", result.DataPointsUsed))
	return result, nil
}

// levelOf reads a class label such as "3" as a performance level,
// falling back to the class position
func levelOf(label string, index int) int {
	if v, err := strconv.Atoi(label); err == nil {
		return v
	}
	return index + 1
}

// IsModelUnavailable reports whether err means the model could not serve
func IsModelUnavailable(err error) bool {
	return errors.Is(err, model.ErrModelUnavailable)
}
