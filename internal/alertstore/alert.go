package alertstore

import (
	"strings"
	"time"
)

// Category groups alerts by the prediction that raised them
type Category string

const (
	CategoryPerformance Category = "performance"
	CategoryThreat      Category = "threat"
)

// Priority is the triage priority of an alert
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
	PriorityInfo     Priority = "INFO"
)

// Rank orders priorities for triage, 1 is most urgent
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 1
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 3
	case PriorityLow:
		return 4
	default:
		return 5
	}
}

// ParsePriority accepts any case of a known priority name
func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(s))); p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow, PriorityInfo:
		return p, true
	}
	return "", false
}

// Status filters alerts by lifecycle
type Status string

const (
	StatusAny      Status = ""
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
)

// Recommendation is the static advice attached to an alert
type Recommendation struct {
	Priority string   `json:"priority" yaml:"priority"`
	Actions  []string `json:"actions" yaml:"actions"`
	Notes    string   `json:"notes" yaml:"notes"`
}

// Alert is a prioritized, deduplicated notification about a hive
type Alert struct {
	ID           string    `json:"alert_id"`
	HiveID       int       `json:"hive_id"`
	Timestamp    time.Time `json:"timestamp"`
	Category     Category  `json:"category"`
	AlertType    string    `json:"alert_type"`
	ThreatType   string    `json:"threat_type,omitempty"`
	Priority     Priority  `json:"priority"`
	PriorityRank int       `json:"priority_rank"`
	Message      string    `json:"message"`

	Probability *float64 `json:"probability,omitempty"`
	Level       *int     `json:"level,omitempty"`

	Metadata        map[string]any     `json:"metadata,omitempty"`
	Recommendations *Recommendation    `json:"recommendations,omitempty"`
	UsedFeatures    map[string]float64 `json:"used_features,omitempty"`

	Acknowledged    bool       `json:"acknowledged"`
	AcknowledgedBy  string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
	Resolved        bool       `json:"resolved"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
}

// Active reports whether the alert is not yet resolved
func (a *Alert) Active() bool {
	return !a.Resolved
}

// Clone returns a copy that shares no mutable state with a
func (a *Alert) Clone() *Alert {
	c := *a
	if a.Probability != nil {
		p := *a.Probability
		c.Probability = &p
	}
	if a.Level != nil {
		l := *a.Level
		c.Level = &l
	}
	if a.AcknowledgedAt != nil {
		t := *a.AcknowledgedAt
		c.AcknowledgedAt = &t
	}
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		c.ResolvedAt = &t
	}
	if a.Metadata != nil {
		c.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	if a.UsedFeatures != nil {
		c.UsedFeatures = make(map[string]float64, len(a.UsedFeatures))
		for k, v := range a.UsedFeatures {
			c.UsedFeatures[k] = v
		}
	}
	if a.Recommendations != nil {
		r := *a.Recommendations
		r.Actions = append([]string(nil), a.Recommendations.Actions...)
		c.Recommendations = &r
	}
	return &c
}

// Filter selects alerts in List. Zero values match everything.
type Filter struct {
	HiveID   *int
	Priority Priority
	Status   Status
	Since    time.Time
	Until    time.Time
	Limit    int
}

// Match reports whether a passes the filter
func (f Filter) Match(a *Alert) bool {
	if f.HiveID != nil && a.HiveID != *f.HiveID {
		return false
	}
	if f.Priority != "" && a.Priority != f.Priority {
		return false
	}
	switch f.Status {
	case StatusActive:
		if a.Resolved {
			return false
		}
	case StatusResolved:
		if !a.Resolved {
			return false
		}
	}
	if !f.Since.IsZero() && a.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && a.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// Summary counts alerts in the fast-access list
type Summary struct {
	Total             int              `json:"total_alerts"`
	Active            int              `json:"active_alerts"`
	Resolved          int              `json:"resolved_alerts"`
	Acknowledged      int              `json:"acknowledged_alerts"`
	PriorityBreakdown map[Priority]int `json:"priority_breakdown"`
	HiveBreakdown     map[int]int      `json:"hive_breakdown"`
}
