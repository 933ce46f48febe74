package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smukkama/hive-monitor/pkg/config"
)

func TestOpenStores_UnreachableDatabaseUsesDocumentStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     1,
			User:     "hive",
			Password: "secret",
			DBName:   "hives",
			SSLMode:  "disable",
		},
		AlertStore: config.AlertStoreConfig{DocumentPath: path, RecentLimit: 10},
	}

	db, store, err := openStores(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "document", store.Backend())
	assert.Empty(t, store.Recent())
}
