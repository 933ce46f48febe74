package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/hive-monitor/internal/alertstore"
	"github.com/smukkama/hive-monitor/internal/database"
	"github.com/smukkama/hive-monitor/pkg/config"
)

const storeProbeTimeout = 5 * time.Second

// openStores opens the record database and the alert store. An unreachable
// database is not fatal: collection cycles fail with persistence errors until
// it answers, and alerts go to the local document store.
func openStores(ctx context.Context, cfg *config.Config, zl *zap.Logger) (*database.DB, *alertstore.Store, error) {
	db, err := database.Open(cfg.Database.ConnectionString())
	if err != nil {
		return nil, nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, storeProbeTimeout)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		zl.Warn("Database unreachable, skipping migrations", zap.String("host", cfg.Database.Host), zap.Error(err))
	} else if err := db.RunMigrations(ctx, zl); err != nil {
		db.Close()
		return nil, nil, err
	}

	// Alert store: relational when the database answers, local document otherwise
	backend, err := alertstore.SelectBackend(ctx, db,
		func() alertstore.Backend { return alertstore.NewPostgresBackend(db.DB) },
		func() (alertstore.Backend, error) {
			doc, err := alertstore.OpenDocument(cfg.AlertStore.DocumentPath)
			if err != nil {
				return nil, err
			}
			doc.SetRotateAfter(cfg.AlertStore.DocumentRotateAfter)
			return doc, nil
		},
		storeProbeTimeout, zl)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	store, err := alertstore.New(ctx, backend, cfg.AlertStore.RecentLimit, zl)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, store, nil
}
