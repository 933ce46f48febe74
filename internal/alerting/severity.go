package alerting

import (
	"time"

	"github.com/smukkama/hive-monitor/internal/alertstore"
)

// Threat types produced by the threat classifier
const (
	ThreatNone          = "No_Threat"
	ThreatEnvironmental = "Environmental"
	ThreatWaxMoth       = "Wax_Moth"
	ThreatPredator      = "Predator"
)

// Performance and sensor alert types
const (
	AlertCriticalPerformance     = "CRITICAL_PERFORMANCE"
	AlertPoorPerformance         = "POOR_PERFORMANCE"
	AlertLowConfidence           = "LOW_CONFIDENCE"
	AlertConsecutivePoor         = "CONSECUTIVE_POOR_PERFORMANCE"
	AlertHighTemperature         = "HIGH_TEMPERATURE"
	AlertLowTemperature          = "LOW_TEMPERATURE"
	AlertHighTemperatureVariance = "HIGH_TEMPERATURE_VARIANCE"
	AlertSignificantWeightDrop   = "SIGNIFICANT_WEIGHT_DROP"
)

// Performance thresholds
const (
	CriticalLevel          = 5
	PoorLevel              = 4
	LowConfidenceThreshold = 0.6
	HighHiveTemp           = 40.0 // °C
	LowHiveTemp            = 30.0 // °C
	TempVarianceThreshold  = 5.0  // °C, std over the last hour
	WeightDropThreshold    = -5.0 // %, versus the previous record
)

// threatGates is the minimum probability for a threat type to alert
var threatGates = map[string]float64{
	ThreatEnvironmental: 0.7,
	ThreatWaxMoth:       0.75,
	ThreatPredator:      0.8,
}

// ThreatGate returns the alerting threshold for a threat type.
// No_Threat and unknown types never alert.
func ThreatGate(threatType string) (float64, bool) {
	g, ok := threatGates[threatType]
	return g, ok
}

// ThreatSeverity maps a detection to a priority using per-type probability bands
func ThreatSeverity(threatType string, probability float64) alertstore.Priority {
	switch threatType {
	case ThreatPredator:
		switch {
		case probability > 0.7:
			return alertstore.PriorityCritical
		case probability > 0.5:
			return alertstore.PriorityHigh
		default:
			return alertstore.PriorityMedium
		}
	case ThreatWaxMoth:
		switch {
		case probability > 0.8:
			return alertstore.PriorityHigh
		case probability > 0.6:
			return alertstore.PriorityMedium
		default:
			return alertstore.PriorityLow
		}
	case ThreatEnvironmental:
		switch {
		case probability > 0.75:
			return alertstore.PriorityHigh
		case probability > 0.5:
			return alertstore.PriorityMedium
		default:
			return alertstore.PriorityLow
		}
	case ThreatNone:
		return alertstore.PriorityInfo
	default:
		switch {
		case probability > 0.8:
			return alertstore.PriorityHigh
		case probability > 0.6:
			return alertstore.PriorityMedium
		default:
			return alertstore.PriorityLow
		}
	}
}

// Cooldowns holds per-category suppression windows
type Cooldowns struct {
	Environmental time.Duration
	Predator      time.Duration
	WaxMoth       time.Duration
	Default       time.Duration
}

// DefaultCooldowns returns the documented defaults
func DefaultCooldowns() Cooldowns {
	return Cooldowns{
		Environmental: 5 * time.Minute,
		Predator:      3 * time.Minute,
		WaxMoth:       4 * time.Minute,
		Default:       10 * time.Minute,
	}
}

// For returns the window for an alert type
func (c Cooldowns) For(alertType string) time.Duration {
	switch alertType {
	case ThreatEnvironmental:
		return c.Environmental
	case ThreatPredator:
		return c.Predator
	case ThreatWaxMoth:
		return c.WaxMoth
	default:
		return c.Default
	}
}

// RiskAssessment summarizes a performance prediction for keepers
func RiskAssessment(level int, confidence float64) string {
	switch {
	case level >= PoorLevel && confidence > 0.8:
		return "HIGH RISK - Immediate intervention recommended"
	case level >= PoorLevel:
		return "MODERATE RISK - Monitor closely"
	case level == 3:
		return "LOW RISK - Regular monitoring sufficient"
	default:
		return "OPTIMAL - Colony performing well"
	}
}

var levelInterpretations = map[int]string{
	1: "Excellent - Strong nectar flow, high foraging activity",
	2: "Good - Consistent foraging, stable colony growth",
	3: "Moderate - Maintenance phase, consumption equals collection",
	4: "Poor - Colony consuming stored honey, stress indicators",
	5: "Critical - Significant stress, potential collapse risk",
}

// Interpretation describes a performance level
func Interpretation(level int) string {
	if s, ok := levelInterpretations[level]; ok {
		return s
	}
	return "Unknown"
}
