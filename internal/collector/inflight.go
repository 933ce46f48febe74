package collector

import (
	"sync"
	"time"
)

// InFlight tracks which hives currently have a collection cycle running
type InFlight struct {
	mu      sync.RWMutex
	running map[int]time.Time // key: hive id, value: cycle start
}

// NewInFlight creates an empty registry
func NewInFlight() *InFlight {
	return &InFlight{running: make(map[int]time.Time)}
}

// Acquire marks a cycle for hiveID as running. It fails with ErrCycleInFlight
// if one is already running for that hive.
func (f *InFlight) Acquire(hiveID int, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.running[hiveID]; exists {
		return ErrCycleInFlight
	}
	f.running[hiveID] = now
	return nil
}

// Release clears the running mark for hiveID
func (f *InFlight) Release(hiveID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.running, hiveID)
}

// Running reports whether a cycle is in flight for hiveID
func (f *InFlight) Running(hiveID int) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.running[hiveID]
	return ok
}

// Count returns the number of cycles in flight
func (f *InFlight) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.running)
}

var (
	ErrCycleInFlight       = &CollectorError{"collection cycle already in flight"}
	ErrUpstreamUnavailable = &CollectorError{"upstream unavailable"}
	ErrRateLimited         = &CollectorError{"rate limit exceeded, call skipped"}
)

// CollectorError represents a collection error
type CollectorError struct {
	msg string
}

func (e *CollectorError) Error() string {
	return e.msg
}
