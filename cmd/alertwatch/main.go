package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/smukkama/hive-monitor/internal/alertstore"
	"github.com/smukkama/hive-monitor/internal/logger"
	"github.com/smukkama/hive-monitor/internal/protocol"
	"github.com/smukkama/hive-monitor/internal/queue"
	"github.com/smukkama/hive-monitor/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "alertwatch")
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	fmt.Println("Starting Alert Watch...")

	// Create consumer for alert notifications
	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts, "alertwatch-group")
	defer consumer.Close()
	zl.Info("Kafka consumer initialized", zap.String("topic", cfg.Kafka.TopicAlerts))

	subscriber := queue.NewAlertSubscriber(consumer, logAlert(zl), zl)
	subscriber.Start(context.Background())
	defer subscriber.Stop()

	fmt.Println("\n✓ Alert Watch is running")
	fmt.Println("✓ Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
}

func logAlert(zl *zap.Logger) queue.AlertHandler {
	return func(ctx context.Context, n *protocol.AlertNotification) error {
		fields := []zap.Field{
			zap.String("type", n.Type),
			zap.String("alert_id", n.AlertID),
			zap.Int("hive_id", n.HiveID),
			zap.String("priority", string(n.Priority)),
			zap.String("published", humanize.Time(n.PublishedAt)),
		}
		if n.Alert != nil && n.Alert.Probability != nil {
			fields = append(fields, zap.Float64("probability", *n.Alert.Probability))
		}

		if n.Priority.Rank() <= alertstore.PriorityHigh.Rank() {
			zl.Warn(n.Message, fields...)
		} else {
			zl.Info(n.Message, fields...)
		}
		return nil
	}
}
