package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/hive-monitor/internal/alerting"
	"github.com/smukkama/hive-monitor/internal/alertstore"
	"github.com/smukkama/hive-monitor/internal/collector"
	"github.com/smukkama/hive-monitor/internal/database"
	"github.com/smukkama/hive-monitor/internal/prediction"
)

// recentForSensorAlerts is how many latest records feed sensor-condition alerts
const recentForSensorAlerts = 120

// Collector runs collection cycles
type Collector interface {
	Collect(ctx context.Context, hiveID int) (*collector.CycleResult, error)
}

// ThreatModel classifies threat payloads
type ThreatModel interface {
	Predict(ctx context.Context, req *prediction.ThreatRequest) (*prediction.ThreatResult, error)
	Trend(hiveID int) *prediction.Trend
}

// PerformanceModel classifies a hive's recent performance
type PerformanceModel interface {
	Predict(ctx context.Context, hiveID int) (*prediction.PerformanceResult, error)
}

// Alerter turns predictions into alerts
type Alerter interface {
	EvaluateThreat(ctx context.Context, d alerting.ThreatDetection) (*alertstore.Alert, error)
	EvaluatePerformance(ctx context.Context, o alerting.PerformanceOutcome, recent []*database.SynchronizedRecord) ([]*alertstore.Alert, error)
}

// LatestRecords loads a hive's newest records, newest first
type LatestRecords interface {
	LatestRecords(ctx context.Context, hiveID int, n int) ([]*database.SynchronizedRecord, error)
}

// Pipeline chains collection, prediction and alerting
type Pipeline struct {
	collector   Collector
	threats     ThreatModel
	performance PerformanceModel
	alerter     Alerter
	records     LatestRecords
	logger      *zap.Logger
}

// New creates a new pipeline
func New(c Collector, threats ThreatModel, performance PerformanceModel, alerter Alerter, records LatestRecords, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		collector:   c,
		threats:     threats,
		performance: performance,
		alerter:     alerter,
		records:     records,
		logger:      logger,
	}
}

// CycleOutcome is a collection cycle plus the threat assessment of its record
type CycleOutcome struct {
	*collector.CycleResult
	Threat *prediction.ThreatResult `json:"threat,omitempty"`
	Alert  *alertstore.Alert        `json:"alert,omitempty"`
}

// Collect runs one cycle and, when it produced a usable record, a threat
// assessment. Threat failures are logged and never fail the cycle.
func (p *Pipeline) Collect(ctx context.Context, hiveID int) (*CycleOutcome, error) {
	result, err := p.collector.Collect(ctx, hiveID)
	if result == nil {
		return nil, err
	}
	out := &CycleOutcome{CycleResult: result}
	if err != nil || !result.Success {
		return out, err
	}

	req, ok := prediction.ThreatFromRecord(result.Record)
	if !ok {
		p.logger.Debug("Skipping threat assessment, record lacks weather data", zap.Int("hive_id", hiveID))
		return out, nil
	}

	threat, alert, err := p.PredictThreat(ctx, req)
	if err != nil {
		p.logger.Warn("Threat assessment failed", zap.Int("hive_id", hiveID), zap.Error(err))
		return out, nil
	}
	out.Threat = threat
	out.Alert = alert
	return out, nil
}

// PredictThreat classifies a payload and evaluates it for alerting
func (p *Pipeline) PredictThreat(ctx context.Context, req *prediction.ThreatRequest) (*prediction.ThreatResult, *alertstore.Alert, error) {
	result, err := p.threats.Predict(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	alert, err := p.alerter.EvaluateThreat(ctx, result.Detection())
	if err != nil {
		p.logger.Error("Failed to evaluate threat alert", zap.Int("hive_id", result.HiveID), zap.Error(err))
		return result, nil, nil
	}
	return result, alert, nil
}

// ThreatTrend returns the threat trend of a hive
func (p *Pipeline) ThreatTrend(hiveID int) *prediction.Trend {
	return p.threats.Trend(hiveID)
}

// AssessPerformance predicts a hive's performance level and evaluates
// level, confidence, sensor and escalation alerts.
func (p *Pipeline) AssessPerformance(ctx context.Context, hiveID int) (*prediction.PerformanceResult, []*alertstore.Alert, error) {
	result, err := p.performance.Predict(ctx, hiveID)
	if err != nil {
		return nil, nil, err
	}
	if !result.Success {
		return result, nil, nil
	}

	recent, err := p.records.LatestRecords(ctx, hiveID, recentForSensorAlerts)
	if err != nil {
		// level alerts do not need records
		p.logger.Warn("Failed to load latest records for sensor alerts", zap.Int("hive_id", hiveID), zap.Error(err))
		recent = nil
	}

	alerts, err := p.alerter.EvaluatePerformance(ctx, result.Outcome(), recent)
	if err != nil {
		p.logger.Error("Failed to evaluate performance alerts", zap.Int("hive_id", hiveID), zap.Error(err))
	}
	return result, alerts, nil
}

// CollectAll runs Collect for every hive on a pool of workers
func (p *Pipeline) CollectAll(ctx context.Context, hiveIDs []int, workers int) {
	if workers <= 0 {
		workers = 1
	}
	start := time.Now()

	jobQueue := make(chan int, len(hiveIDs))
	for _, id := range hiveIDs {
		jobQueue <- id
	}
	close(jobQueue)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for hiveID := range jobQueue {
				if ctx.Err() != nil {
					return
				}
				if _, err := p.Collect(ctx, hiveID); err != nil {
					p.logger.Warn("Collection cycle failed", zap.Int("hive_id", hiveID), zap.Error(err))
				}
			}
		}()
	}
	wg.Wait()

	p.logger.Info("Collection round complete",
		zap.Int("hives", len(hiveIDs)),
		zap.Duration("elapsed", time.Since(start)))
}
