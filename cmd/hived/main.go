package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smukkama/hive-monitor/internal/aggregation"
	"github.com/smukkama/hive-monitor/internal/alerting"
	"github.com/smukkama/hive-monitor/internal/api"
	"github.com/smukkama/hive-monitor/internal/collector"
	"github.com/smukkama/hive-monitor/internal/logger"
	"github.com/smukkama/hive-monitor/internal/model"
	"github.com/smukkama/hive-monitor/internal/pipeline"
	"github.com/smukkama/hive-monitor/internal/prediction"
	"github.com/smukkama/hive-monitor/internal/queue"
	"github.com/smukkama/hive-monitor/internal/scheduler"
	"github.com/smukkama/hive-monitor/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "hived")
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	fmt.Println("Starting Hive Monitor...")

	ctx := context.Background()

	db, store, err := openStores(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("Failed to open stores", zap.Error(err))
	}
	defer db.Close()

	kv := cooldownStore(ctx, cfg.Redis, zl)

	// Kafka publishers are optional; collection and alerting work without them
	var (
		recordPublisher collector.RecordPublisher
		alertPublisher  alerting.AlertPublisher
	)
	if cfg.Kafka.Enabled {
		topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := queue.EnsureTopics(topicCtx, cfg.Kafka.Brokers, []string{cfg.Kafka.TopicRecords, cfg.Kafka.TopicAlerts}, 3, 1, zl); err != nil {
			zl.Warn("Topic setup failed, relying on auto-creation", zap.Error(err))
		}
		cancel()
		recordProducer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRecords)
		defer recordProducer.Close()
		alertProducer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts)
		defer alertProducer.Close()

		recordPublisher = queue.NewRecordPublisher(recordProducer)
		alertPublisher = queue.NewAlertPublisher(alertProducer)
		zl.Info("Kafka publishers initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	catalog, err := alerting.LoadCatalog(cfg.Alerting.RecommendationsFile)
	if err != nil {
		zl.Fatal("Failed to load recommendations", zap.Error(err))
	}

	engine := alerting.NewEngine(store, alerting.NewCooldownTracker(kv), catalog, alertPublisher, alerting.Config{
		Cooldowns: alerting.Cooldowns{
			Environmental: cfg.Alerting.CooldownEnvironmental,
			Predator:      cfg.Alerting.CooldownPredator,
			WaxMoth:       cfg.Alerting.CooldownWaxMoth,
			Default:       cfg.Alerting.CooldownDefault,
		},
		EscalationWindow: cfg.Alerting.EscalationWindow,
		EscalationCount:  cfg.Alerting.EscalationCount,
		PublishTimeout:   cfg.Alerting.PublishTimeout,
	}, zl)

	loc, err := time.LoadLocation(cfg.Aggregation.Timezone)
	if err != nil {
		zl.Fatal("Invalid aggregation timezone", zap.String("timezone", cfg.Aggregation.Timezone), zap.Error(err))
	}
	window := aggregation.NewWindowAggregator(db, aggregation.NewAggregator(cfg.Aggregation.MinRecords, loc),
		cfg.Aggregation.Lookback, cfg.Aggregation.SampleCap)

	// Models load lazily on first use
	performance := prediction.NewPerformancePredictor(window,
		model.NewHandle("performance", model.FileLoader(cfg.Models.PerformancePath), zl), zl)
	threats := prediction.NewThreatPredictor(
		model.NewHandle("threat", model.FileLoader(cfg.Models.ThreatPath), zl),
		catalog, prediction.NewTrendTracker(prediction.DefaultTrendHistory), zl)

	orchestrator := collector.NewOrchestrator(db,
		collector.NewWeatherClient(cfg.Weather, zl),
		collector.NewFeedClient(cfg.Feeds, zl),
		collector.Options{
			WeatherRateLimit: cfg.Weather.RateLimit,
			FeedRateLimit:    cfg.Feeds.RateLimit,
			DefaultLatitude:  cfg.Collection.DefaultLatitude,
			DefaultLongitude: cfg.Collection.DefaultLongitude,
			Interval:         cfg.Collection.Interval,
			PublishTimeout:   cfg.Alerting.PublishTimeout,
			Publisher:        recordPublisher,
		}, zl)

	p := pipeline.New(orchestrator, threats, performance, engine, db, zl)

	sched := scheduler.New(zl)
	sched.Start()
	defer sched.Stop()

	hives := cfg.Collection.Hives
	if err := sched.Every("collect", cfg.Collection.Interval, func(ctx context.Context) {
		ids := hives
		if len(ids) == 0 {
			registered, err := db.ListHiveIDs(ctx)
			if err != nil {
				zl.Error("Failed to list hives", zap.Error(err))
				return
			}
			ids = registered
		}
		p.CollectAll(ctx, ids, cfg.Collection.Workers)
	}); err != nil {
		zl.Fatal("Failed to schedule collection", zap.Error(err))
	}

	handler := api.NewHandler(p, orchestrator, db, store, zl)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Print statistics periodically
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			st := orchestrator.Status()
			ss := sched.Stats()
			zl.Info("Monitor statistics",
				zap.String("last_collection", st.LastCollectionAgo),
				zap.Int("cycles_in_flight", st.CyclesInFlight),
				zap.Int("scheduled_tasks", ss.ScheduledTasks),
				zap.Int("scheduler_runs", ss.Runs),
				zap.Int("scheduler_skipped", ss.Skipped),
				zap.Int("recent_alerts", len(store.Recent())))
		}
	}()

	fmt.Println("\n✓ Hive Monitor is running")
	fmt.Printf("✓ HTTP API listening on %s\n", cfg.HTTP.Addr)
	if len(hives) == 0 {
		fmt.Printf("✓ Collecting all registered hives every %s (alert store: %s)\n", cfg.Collection.Interval, store.Backend())
	} else {
		fmt.Printf("✓ Collecting hives %v every %s (alert store: %s)\n", hives, cfg.Collection.Interval, store.Backend())
	}
	fmt.Println("✓ Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("HTTP shutdown did not complete", zap.Error(err))
	}
}

// cooldownStore returns a Redis-backed store when Redis answers, else an in-process one
func cooldownStore(ctx context.Context, cfg config.RedisConfig, zl *zap.Logger) alerting.KVStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		zl.Warn("Redis unavailable, cooldowns kept in memory", zap.String("addr", cfg.Addr), zap.Error(err))
		return alerting.NewMemoryKVStore()
	}
	zl.Info("Connected to Redis", zap.String("addr", cfg.Addr))
	return alerting.NewRedisKVStore(client)
}
