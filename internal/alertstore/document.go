package alertstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DocumentBackend keeps the alert history as a JSON array, newest first,
// rewriting the file atomically on every change. With rotation enabled the
// live document holds at most rotateAfter alerts; older ones move to
// timestamped archive files next to it.
type DocumentBackend struct {
	path        string
	rotateAfter int

	mu     sync.Mutex
	alerts []*Alert
}

// OpenDocument loads or creates the alert document at path
func OpenDocument(path string) (*DocumentBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create alert directory: %w", err)
	}

	d := &DocumentBackend{path: path}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return d, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read alert document: %w", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &d.alerts); err != nil {
			return nil, fmt.Errorf("failed to decode alert document %s: %w", path, err)
		}
	}
	return d, nil
}

func (d *DocumentBackend) Name() string { return "document" }

// Path returns the file backing this store
func (d *DocumentBackend) Path() string { return d.path }

// SetRotateAfter bounds the live document. Once an append pushes it past n
// alerts, the older half is archived. Zero disables rotation.
func (d *DocumentBackend) SetRotateAfter(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n < 0 {
		n = 0
	}
	d.rotateAfter = n
}

// Append implements Backend
func (d *DocumentBackend) Append(ctx context.Context, a *Alert) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := append([]*Alert{a.Clone()}, d.alerts...)
	if d.rotateAfter > 0 && len(next) > d.rotateAfter {
		keep := d.rotateAfter / 2
		if keep < 1 {
			keep = 1
		}
		if err := writeDocument(d.archivePath(time.Now()), next[keep:]); err != nil {
			return err
		}
		next = next[:keep:keep]
	}
	if err := writeDocument(d.path, next); err != nil {
		return err
	}
	d.alerts = next
	return nil
}

// Update implements Backend
func (d *DocumentBackend) Update(ctx context.Context, a *Alert) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, existing := range d.alerts {
		if existing.ID != a.ID {
			continue
		}
		next := make([]*Alert, len(d.alerts))
		copy(next, d.alerts)
		next[i] = a.Clone()
		if err := writeDocument(d.path, next); err != nil {
			return err
		}
		d.alerts = next
		return nil
	}
	return fmt.Errorf("alert %s not found in document", a.ID)
}

// Get implements Backend
func (d *DocumentBackend) Get(ctx context.Context, id string) (*Alert, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, a := range d.alerts {
		if a.ID == id {
			return a.Clone(), nil
		}
	}
	return nil, nil
}

// Recent implements Backend
func (d *DocumentBackend) Recent(ctx context.Context, limit int) ([]*Alert, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.alerts)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]*Alert, n)
	for i := 0; i < n; i++ {
		out[i] = d.alerts[i].Clone()
	}
	return out, nil
}

// Len returns the size of the full history
func (d *DocumentBackend) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.alerts)
}

// Archives returns the rotated archive files, oldest first
func (d *DocumentBackend) Archives() ([]string, error) {
	ext := filepath.Ext(d.path)
	matches, err := filepath.Glob(strings.TrimSuffix(d.path, ext) + "-*" + ext)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert archives: %w", err)
	}
	return matches, nil
}

func (d *DocumentBackend) archivePath(now time.Time) string {
	ext := filepath.Ext(d.path)
	return fmt.Sprintf("%s-%s%s", strings.TrimSuffix(d.path, ext), now.UTC().Format("20060102T150405.000000000"), ext)
}

func writeDocument(path string, alerts []*Alert) error {
	data, err := json.MarshalIndent(alerts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode alert document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".alerts-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp alert document: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write alert document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync alert document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close alert document: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace alert document: %w", err)
	}
	return nil
}
