package model

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Loader produces a classifier, typically by deserializing an artifact
type Loader func() (Classifier, error)

// FileLoader loads a JSON artifact from path
func FileLoader(path string) Loader {
	return func() (Classifier, error) {
		if path == "" {
			return nil, fmt.Errorf("%w: no artifact path configured", ErrModelUnavailable)
		}
		return LoadArtifact(path)
	}
}

// Static wraps an already constructed classifier
func Static(c Classifier) Loader {
	return func() (Classifier, error) { return c, nil }
}

// Handle lazily loads a classifier at most once. A failed load is not cached,
// so the next call tries again.
type Handle struct {
	name   string
	loader Loader
	logger *zap.Logger

	mu    sync.Mutex
	model Classifier
	loads int
}

// NewHandle creates a new model handle
func NewHandle(name string, loader Loader, logger *zap.Logger) *Handle {
	return &Handle{name: name, loader: loader, logger: logger}
}

// Get returns the loaded classifier, loading it on first use
func (h *Handle) Get() (Classifier, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.model != nil {
		return h.model, nil
	}

	h.loads++
	m, err := h.loader()
	if err != nil {
		h.logger.Error("Failed to load model", zap.String("model", h.name), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrModelUnavailable, h.name, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s: loader returned no model", ErrModelUnavailable, h.name)
	}

	h.model = m
	h.logger.Info("Model loaded",
		zap.String("model", h.name),
		zap.String("version", m.Version()),
		zap.Int("features", len(m.FeatureColumns())))
	return m, nil
}

// Loaded reports whether the classifier has been loaded
func (h *Handle) Loaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.model != nil
}

// Loads returns the number of load attempts
func (h *Handle) Loads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loads
}
