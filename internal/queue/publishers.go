package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/smukkama/hive-monitor/internal/alertstore"
	"github.com/smukkama/hive-monitor/internal/database"
	"github.com/smukkama/hive-monitor/internal/protocol"
)

// RecordPublisher forwards synchronized records to live subscribers
type RecordPublisher struct {
	producer *Producer
	now      func() time.Time
}

// NewRecordPublisher creates a record publisher over producer
func NewRecordPublisher(producer *Producer) *RecordPublisher {
	return &RecordPublisher{producer: producer, now: time.Now}
}

// PublishRecord sends a synchronized_update keyed by hive id
func (p *RecordPublisher) PublishRecord(ctx context.Context, rec *database.SynchronizedRecord) error {
	data, err := protocol.EncodeRecordUpdate(protocol.NewRecordUpdate(rec, p.now().UTC()))
	if err != nil {
		return fmt.Errorf("failed to encode record update: %w", err)
	}
	return p.producer.Publish(ctx, strconv.Itoa(rec.HiveID), data)
}

// AlertPublisher forwards persisted alerts to live subscribers
type AlertPublisher struct {
	producer *Producer
	now      func() time.Time
}

// NewAlertPublisher creates an alert publisher over producer
func NewAlertPublisher(producer *Producer) *AlertPublisher {
	return &AlertPublisher{producer: producer, now: time.Now}
}

// PublishAlert sends a threat_alert or performance_alert keyed by hive id
func (p *AlertPublisher) PublishAlert(ctx context.Context, a *alertstore.Alert) error {
	data, err := protocol.EncodeAlertNotification(protocol.NewAlertNotification(a, p.now().UTC()))
	if err != nil {
		return fmt.Errorf("failed to encode alert notification: %w", err)
	}
	return p.producer.Publish(ctx, strconv.Itoa(a.HiveID), data)
}
