package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/smukkama/hive-monitor/internal/alertstore"
	"github.com/smukkama/hive-monitor/internal/database"
)

// Message types published to live subscribers
const (
	TypeSynchronizedUpdate = "synchronized_update"
	TypeThreatAlert        = "threat_alert"
	TypePerformanceAlert   = "performance_alert"
)

// RecordUpdate announces a newly persisted synchronized record
type RecordUpdate struct {
	Type        string                       `json:"type"`
	HiveID      int                          `json:"hive_id"`
	Timestamp   time.Time                    `json:"timestamp"`
	QualityPct  float64                      `json:"data_quality_score"`
	Aligned     bool                         `json:"aligned"`
	Record      *database.SynchronizedRecord `json:"record"`
	PublishedAt time.Time                    `json:"published_at"`
}

// NewRecordUpdate wraps a record for publishing
func NewRecordUpdate(rec *database.SynchronizedRecord, now time.Time) *RecordUpdate {
	return &RecordUpdate{
		Type:        TypeSynchronizedUpdate,
		HiveID:      rec.HiveID,
		Timestamp:   rec.CollectionTimestamp,
		QualityPct:  rec.DataQualityScore(),
		Aligned:     rec.IsAligned(),
		Record:      rec,
		PublishedAt: now,
	}
}

// AlertNotification announces a newly persisted alert
type AlertNotification struct {
	Type        string              `json:"type"`
	AlertID     string              `json:"alert_id"`
	HiveID      int                 `json:"hive_id"`
	Priority    alertstore.Priority `json:"priority"`
	Message     string              `json:"message"`
	Alert       *alertstore.Alert   `json:"alert"`
	PublishedAt time.Time           `json:"published_at"`
}

// NewAlertNotification wraps an alert for publishing. The type follows the alert category.
func NewAlertNotification(a *alertstore.Alert, now time.Time) *AlertNotification {
	typ := TypePerformanceAlert
	if a.Category == alertstore.CategoryThreat {
		typ = TypeThreatAlert
	}
	return &AlertNotification{
		Type:        typ,
		AlertID:     a.ID,
		HiveID:      a.HiveID,
		Priority:    a.Priority,
		Message:     a.Message,
		Alert:       a,
		PublishedAt: now,
	}
}

// EncodeRecordUpdate encodes a RecordUpdate to JSON
func EncodeRecordUpdate(msg *RecordUpdate) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeRecordUpdate decodes JSON to RecordUpdate
func DecodeRecordUpdate(data []byte) (*RecordUpdate, error) {
	var msg RecordUpdate
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type != TypeSynchronizedUpdate {
		return nil, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	return &msg, nil
}

// EncodeAlertNotification encodes an AlertNotification to JSON
func EncodeAlertNotification(msg *AlertNotification) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeAlertNotification decodes JSON to AlertNotification
func DecodeAlertNotification(data []byte) (*AlertNotification, error) {
	var msg AlertNotification
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type != TypeThreatAlert && msg.Type != TypePerformanceAlert {
		return nil, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	return &msg, nil
}
