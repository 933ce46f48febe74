package alertstore

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Backend is the durable alert history
type Backend interface {
	Name() string
	// Append persists a new alert
	Append(ctx context.Context, a *Alert) error
	// Update persists the lifecycle fields of an existing alert
	Update(ctx context.Context, a *Alert) error
	// Get returns nil, nil when id is unknown
	Get(ctx context.Context, id string) (*Alert, error)
	// Recent returns up to limit alerts, newest first
	Recent(ctx context.Context, limit int) ([]*Alert, error)
}

// Pinger is satisfied by *sql.DB and *database.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SelectBackend probes the relational store once and returns it when reachable,
// otherwise the document store. Callers never need to know which one won.
func SelectBackend(ctx context.Context, db Pinger, relational func() Backend, document func() (Backend, error), timeout time.Duration, logger *zap.Logger) (Backend, error) {
	if db != nil && relational != nil {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		err := db.PingContext(probeCtx)
		cancel()
		if err == nil {
			b := relational()
			logger.Info("Alert store backend selected", zap.String("backend", b.Name()))
			return b, nil
		}
		logger.Warn("Relational alert backend unreachable, falling back to document store", zap.Error(err))
	}

	b, err := document()
	if err != nil {
		return nil, err
	}
	logger.Info("Alert store backend selected", zap.String("backend", b.Name()))
	return b, nil
}
