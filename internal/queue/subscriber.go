package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/smukkama/hive-monitor/internal/protocol"
)

// messageReader is the subset of *Consumer used by AlertSubscriber
type messageReader interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// AlertHandler receives decoded alert notifications. Returning an error leaves
// the offset uncommitted so the message is redelivered.
type AlertHandler func(ctx context.Context, n *protocol.AlertNotification) error

// AlertSubscriber consumes alert notifications and hands them to a handler
type AlertSubscriber struct {
	consumer messageReader
	handler  AlertHandler
	logger   *zap.Logger
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewAlertSubscriber creates a new alert subscriber
func NewAlertSubscriber(consumer messageReader, handler AlertHandler, logger *zap.Logger) *AlertSubscriber {
	return &AlertSubscriber{
		consumer: consumer,
		handler:  handler,
		logger:   logger,
	}
}

// Start begins consuming in the background
func (s *AlertSubscriber) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops consuming and waits for the loop to exit
func (s *AlertSubscriber) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *AlertSubscriber) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		msg, err := s.consumer.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Warn("Failed to consume message", zap.Error(err))
			continue
		}
		s.handle(ctx, msg)
	}
}

func (s *AlertSubscriber) handle(ctx context.Context, msg kafka.Message) {
	n, err := protocol.DecodeAlertNotification(msg.Value)
	if err != nil {
		// undecodable messages are skipped for good
		s.logger.Warn("Failed to decode alert notification", zap.Int64("offset", msg.Offset), zap.Error(err))
		s.commit(ctx, msg)
		return
	}

	if err := s.handler(ctx, n); err != nil {
		s.logger.Error("Alert handler failed", zap.String("alert_id", n.AlertID), zap.Error(err))
		return
	}
	s.commit(ctx, msg)
}

func (s *AlertSubscriber) commit(ctx context.Context, msg kafka.Message) {
	if err := s.consumer.Commit(ctx, msg); err != nil {
		s.logger.Warn("Failed to commit offset", zap.Int64("offset", msg.Offset), zap.Error(err))
	}
}
