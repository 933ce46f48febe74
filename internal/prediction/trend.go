package prediction

import (
	"sync"
	"time"

	"github.com/smukkama/hive-monitor/internal/alerting"
)

// Trend window sizes
const (
	DefaultTrendHistory = 100
	trendWindow         = 10
	trendMinimum        = 5
	trendRecent         = 3
)

// Trend summarizes recent threat predictions for a hive
type Trend struct {
	Trend              string  `json:"trend"`
	Direction          string  `json:"direction"`
	CurrentThreatLevel float64 `json:"current_threat_level,omitempty"`
	PredictionCount    int     `json:"prediction_count,omitempty"`
}

type threatEntry struct {
	threatType  string
	probability float64
	timestamp   time.Time
}

// TrendTracker keeps a bounded per-hive history of threat predictions
type TrendTracker struct {
	mu      sync.Mutex
	limit   int
	history map[int][]threatEntry
}

// NewTrendTracker creates a tracker keeping at most limit predictions per hive
func NewTrendTracker(limit int) *TrendTracker {
	if limit <= 0 {
		limit = DefaultTrendHistory
	}
	return &TrendTracker{limit: limit, history: make(map[int][]threatEntry)}
}

// Add records one prediction
func (t *TrendTracker) Add(hiveID int, threatType string, probability float64, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := append(t.history[hiveID], threatEntry{threatType: threatType, probability: probability, timestamp: ts})
	if len(h) > t.limit {
		h = append([]threatEntry(nil), h[len(h)-t.limit:]...)
	}
	t.history[hiveID] = h
}

// Len returns the number of predictions held for a hive
func (t *TrendTracker) Len(hiveID int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.history[hiveID])
}

// Trend scores the last ten predictions and compares the newest three with the rest
func (t *TrendTracker) Trend(hiveID int) Trend {
	t.mu.Lock()
	h := t.history[hiveID]
	if len(h) < trendMinimum {
		t.mu.Unlock()
		return Trend{Trend: "insufficient_data", Direction: "stable"}
	}
	if len(h) > trendWindow {
		h = h[len(h)-trendWindow:]
	}
	scores := make([]float64, len(h))
	for i, e := range h {
		scores[i] = ThreatScore(e.threatType, e.probability)
	}
	t.mu.Unlock()

	recent := mean(scores[len(scores)-trendRecent:])
	earlier := scores[0]
	if len(scores) > trendRecent {
		earlier = mean(scores[:len(scores)-trendRecent])
	}

	direction := "stable"
	switch {
	case recent > earlier*1.1:
		direction = "increasing"
	case recent < earlier*0.9:
		direction = "decreasing"
	}

	return Trend{
		Trend:              "calculated",
		Direction:          direction,
		CurrentThreatLevel: recent,
		PredictionCount:    len(scores),
	}
}

// ThreatScore weights a prediction by how dangerous its threat type is
func ThreatScore(threatType string, probability float64) float64 {
	switch threatType {
	case alerting.ThreatNone:
		return 0
	case alerting.ThreatEnvironmental:
		return probability * 0.5
	case alerting.ThreatWaxMoth:
		return probability * 0.8
	case alerting.ThreatPredator:
		return probability
	default:
		return probability * 0.6
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
