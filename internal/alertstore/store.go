package alertstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultRecentLimit is the size of the fast-access list
const DefaultRecentLimit = 500

// Store keeps a bounded newest-first view of alerts in front of a durable backend.
// All mutations are serialized.
type Store struct {
	backend Backend
	limit   int
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.RWMutex
	recent []*Alert
}

// New creates a store and warms the fast-access list from the backend
func New(ctx context.Context, backend Backend, limit int, logger *zap.Logger) (*Store, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	recent, err := backend.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent alerts from %s: %w", backend.Name(), err)
	}

	logger.Info("Alert store ready",
		zap.String("backend", backend.Name()),
		zap.Int("loaded", len(recent)),
		zap.Int("limit", limit))

	return &Store{
		backend: backend,
		limit:   limit,
		logger:  logger,
		now:     time.Now,
		recent:  recent,
	}, nil
}

// Backend returns the name of the durable backend in use
func (s *Store) Backend() string {
	return s.backend.Name()
}

// Add persists an alert and pushes it onto the fast-access list.
// The list is left unchanged when persistence fails.
func (s *Store) Add(ctx context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.PriorityRank == 0 {
		a.PriorityRank = a.Priority.Rank()
	}
	if err := s.backend.Append(ctx, a); err != nil {
		return fmt.Errorf("failed to persist alert %s: %w", a.ID, err)
	}

	s.recent = append([]*Alert{a.Clone()}, s.recent...)
	if len(s.recent) > s.limit {
		for i := s.limit; i < len(s.recent); i++ {
			s.recent[i] = nil
		}
		s.recent = s.recent[:s.limit]
	}
	return nil
}

// Recent returns the fast-access list, newest first
func (s *Store) Recent() []*Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Alert, len(s.recent))
	for i, a := range s.recent {
		out[i] = a.Clone()
	}
	return out
}

// List returns matching alerts from the fast-access list sorted for triage:
// priority rank ascending, then oldest first.
func (s *Store) List(f Filter) []*Alert {
	s.mu.RLock()
	var out []*Alert
	for _, a := range s.recent {
		if f.Match(a) {
			out = append(out, a.Clone())
		}
	}
	s.mu.RUnlock()

	SortForTriage(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// SortForTriage orders alerts by (priority rank, timestamp) ascending
func SortForTriage(alerts []*Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].PriorityRank != alerts[j].PriorityRank {
			return alerts[i].PriorityRank < alerts[j].PriorityRank
		}
		return alerts[i].Timestamp.Before(alerts[j].Timestamp)
	})
}

// CountSince counts alerts for a hive in the fast-access list that match pred
// and were raised at or after since.
func (s *Store) CountSince(hiveID int, since time.Time, pred func(*Alert) bool) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.recent {
		if a.HiveID == hiveID && !a.Timestamp.Before(since) && pred(a) {
			n++
		}
	}
	return n
}

// Acknowledge marks an alert acknowledged. Returns false when id is unknown.
// Acknowledging twice keeps the first acknowledgement.
func (s *Store) Acknowledge(ctx context.Context, id, by string) (bool, error) {
	return s.mutate(ctx, id, func(a *Alert, now time.Time) bool {
		if a.Acknowledged {
			return false
		}
		a.Acknowledged = true
		a.AcknowledgedBy = by
		a.AcknowledgedAt = &now
		return true
	})
}

// Resolve marks an alert resolved with notes. Returns false when id is unknown.
// Resolving twice keeps the first resolution.
func (s *Store) Resolve(ctx context.Context, id, by, notes string) (bool, error) {
	return s.mutate(ctx, id, func(a *Alert, now time.Time) bool {
		if a.Resolved {
			return false
		}
		a.Resolved = true
		a.ResolvedBy = by
		a.ResolvedAt = &now
		a.ResolutionNotes = notes
		return true
	})
}

// mutate applies fn to the alert with id, persisting only when fn reports a change
func (s *Store) mutate(ctx context.Context, id string, fn func(a *Alert, now time.Time) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, a := range s.recent {
		if a.ID == id {
			idx = i
			break
		}
	}

	var target *Alert
	if idx >= 0 {
		target = s.recent[idx].Clone()
	} else {
		stored, err := s.backend.Get(ctx, id)
		if err != nil {
			return false, fmt.Errorf("failed to look up alert %s: %w", id, err)
		}
		if stored == nil {
			return false, nil
		}
		target = stored
	}

	if !fn(target, s.now().UTC()) {
		return true, nil
	}
	if err := s.backend.Update(ctx, target); err != nil {
		return true, fmt.Errorf("failed to update alert %s: %w", id, err)
	}
	if idx >= 0 {
		s.recent[idx] = target
	}
	return true, nil
}

// Summary counts the fast-access list by lifecycle, priority and hive
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summary{
		Total:             len(s.recent),
		PriorityBreakdown: make(map[Priority]int),
		HiveBreakdown:     make(map[int]int),
	}
	for _, a := range s.recent {
		if a.Acknowledged {
			sum.Acknowledged++
		}
		if a.Resolved {
			sum.Resolved++
			continue
		}
		sum.Active++
		sum.PriorityBreakdown[a.Priority]++
		sum.HiveBreakdown[a.HiveID]++
	}
	return sum
}
