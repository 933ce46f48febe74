package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/hive-monitor/internal/aggregation"
	"github.com/smukkama/hive-monitor/internal/database"
	"github.com/smukkama/hive-monitor/internal/logger"
	"github.com/smukkama/hive-monitor/internal/scheduler"
	"github.com/smukkama/hive-monitor/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "aggregator")
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	fmt.Println("Starting Aggregation Service...")

	ctx := context.Background()

	// Connect to database
	db, err := database.Connect(ctx, cfg.Database.ConnectionString())
	if err != nil {
		zl.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, zl); err != nil {
		zl.Fatal("Failed to run migrations", zap.Error(err))
	}

	loc, err := time.LoadLocation(cfg.Aggregation.Timezone)
	if err != nil {
		zl.Fatal("Invalid aggregation timezone", zap.String("timezone", cfg.Aggregation.Timezone), zap.Error(err))
	}

	sched := scheduler.New(zl)
	sched.Start()
	defer sched.Stop()

	materializer := aggregation.NewMaterializer(db, aggregation.NewAggregator(cfg.Aggregation.MinRecords, loc), zl)

	if err := scheduleWeeklyAggregation(sched, materializer, cfg.Aggregation.DailyTime, loc, zl); err != nil {
		zl.Fatal("Failed to schedule weekly aggregation", zap.Error(err))
	}

	fmt.Println("\n✓ Aggregation Service is running")
	fmt.Println("✓ Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
}

// scheduleWeeklyAggregation materializes the previous ISO week once a day.
// Upserts make repeated runs within the same week harmless.
func scheduleWeeklyAggregation(s *scheduler.Scheduler, m *aggregation.Materializer, timeOfDay string, loc *time.Location, zl *zap.Logger) error {
	const taskID = "weekly-aggregation"

	var scheduleNext func() error
	scheduleNext = func() error {
		nextRun, err := aggregation.NextRunTime(time.Now().In(loc), timeOfDay)
		if err != nil {
			return err
		}
		zl.Info("Next weekly aggregation scheduled", zap.Time("at", nextRun))

		return s.At(taskID, nextRun, func(ctx context.Context) {
			written, err := m.AggregatePreviousWeek(ctx, time.Now())
			if err != nil {
				zl.Error("Weekly aggregation failed", zap.Error(err))
			} else {
				zl.Info("Weekly aggregation complete", zap.Int("aggregates", written))
			}

			if err := scheduleNext(); err != nil {
				zl.Error("Failed to reschedule weekly aggregation", zap.Error(err))
			}
		})
	}

	return scheduleNext()
}
