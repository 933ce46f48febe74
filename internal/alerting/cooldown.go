package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KVStore holds cooldown state with expiry
type KVStore interface {
	// Get returns ok=false when the key is absent or expired
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// CooldownState is the last emission for a (hive, alert type)
type CooldownState struct {
	LastEmitted time.Time `json:"last_emitted"`
	AlertID     string    `json:"alert_id,omitempty"`
}

// CooldownTracker decides whether a detection falls inside its suppression window
type CooldownTracker struct {
	kv KVStore
}

// NewCooldownTracker creates a tracker over kv
func NewCooldownTracker(kv KVStore) *CooldownTracker {
	return &CooldownTracker{kv: kv}
}

func cooldownKey(hiveID int, alertType string) string {
	return fmt.Sprintf("alert_cooldown:%d:%s", hiveID, alertType)
}

// GetState returns the last emission, or nil when none is recorded
func (c *CooldownTracker) GetState(ctx context.Context, hiveID int, alertType string) (*CooldownState, error) {
	data, ok, err := c.kv.Get(ctx, cooldownKey(hiveID, alertType))
	if err != nil {
		return nil, fmt.Errorf("failed to get cooldown state: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var state CooldownState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cooldown state: %w", err)
	}
	return &state, nil
}

// Active reports whether an emission for (hive, type) happened less than window before now
func (c *CooldownTracker) Active(ctx context.Context, hiveID int, alertType string, window time.Duration, now time.Time) (bool, error) {
	state, err := c.GetState(ctx, hiveID, alertType)
	if err != nil || state == nil {
		return false, err
	}
	return now.Sub(state.LastEmitted) < window, nil
}

// Record stores an emission. The key expires with the window.
func (c *CooldownTracker) Record(ctx context.Context, hiveID int, alertType, alertID string, window time.Duration, now time.Time) error {
	data, err := json.Marshal(&CooldownState{LastEmitted: now, AlertID: alertID})
	if err != nil {
		return fmt.Errorf("failed to marshal cooldown state: %w", err)
	}
	if err := c.kv.Set(ctx, cooldownKey(hiveID, alertType), string(data), window); err != nil {
		return fmt.Errorf("failed to set cooldown state: %w", err)
	}
	return nil
}

// Clear removes the cooldown for (hive, type)
func (c *CooldownTracker) Clear(ctx context.Context, hiveID int, alertType string) error {
	return c.kv.Del(ctx, cooldownKey(hiveID, alertType))
}

// States returns all recorded cooldowns keyed by storage key (for monitoring)
func (c *CooldownTracker) States(ctx context.Context) (map[string]*CooldownState, error) {
	keys, err := c.kv.Keys(ctx, "alert_cooldown:")
	if err != nil {
		return nil, err
	}

	states := make(map[string]*CooldownState)
	for _, key := range keys {
		data, ok, err := c.kv.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var state CooldownState
		if err := json.Unmarshal([]byte(data), &state); err != nil {
			continue
		}
		states[key] = &state
	}
	return states, nil
}

// RedisKVStore keeps cooldowns in Redis so they survive restarts and are shared between replicas
type RedisKVStore struct {
	redis *redis.Client
}

// NewRedisKVStore creates a Redis-backed store
func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{redis: client}
}

func (r *RedisKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	data, err := r.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s from Redis: %w", key, err)
	}
	return data, true, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in Redis: %w", key, err)
	}
	return nil
}

func (r *RedisKVStore) Del(ctx context.Context, key string) error {
	return r.redis.Del(ctx, key).Err()
}

func (r *RedisKVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.redis.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan Redis keys: %w", err)
	}
	return keys, nil
}

// MemoryKVStore is a process-local KVStore used when Redis is unavailable
type MemoryKVStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// NewMemoryKVStore creates an empty in-memory store
func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryKVStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *MemoryKVStore) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryKVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
