package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates no usable entry exists for the key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates a stored value that does not decode to an Entry.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager stores price API responses in Redis. Entries expire in Redis at
// Entry.Expires, so no sweeping is needed.
type Manager struct {
	rdb redis.Cmdable
}

// NewManager creates a cache manager. rdb is usually a *redis.Client; a
// cluster or ring client works as well.
func NewManager(rdb redis.Cmdable) *Manager {
	if c, ok := rdb.(*redis.Client); rdb == nil || (ok && c == nil) {
		panic("redis client cannot be nil")
	}
	return &Manager{rdb: rdb}
}

// Get returns the entry stored under key, or ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	raw, err := m.rdb.Get(ctx, key.String()).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	case err != nil:
		return nil, failed("get", fmt.Errorf("redis get: %w", err))
	}

	entry, err := decodeEntry(raw)
	if err != nil {
		return nil, failed("get", err)
	}

	// Redis expiry has second granularity; the entry's own deadline is exact.
	if entry.IsExpired() {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.Inc()
	return entry, nil
}

// Set stores entry under key until entry.Expires. Expired entries are
// dropped silently.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}
	if entry.TTL() <= 0 {
		return nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return failed("set", fmt.Errorf("marshal cache entry: %w", err))
	}

	args := redis.SetArgs{ExpireAt: entry.Expires}
	if err := m.rdb.SetArgs(ctx, key.String(), raw, args).Err(); err != nil {
		return failed("set", fmt.Errorf("redis set: %w", err))
	}
	return nil
}

// Delete removes the entry stored under key. Deleting a missing key is not an error.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.rdb.Del(ctx, key.String()).Err(); err != nil {
		return failed("delete", fmt.Errorf("redis del: %w", err))
	}
	return nil
}

// Ping checks the Redis connection.
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// decodeEntry parses a stored value. An entry without a body is invalid.
func decodeEntry(raw []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if len(entry.Data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidEntry)
	}
	return &entry, nil
}

// failed counts a cache error for op and returns err.
func failed(op string, err error) error {
	CacheErrors.WithLabelValues(op).Inc()
	return err
}
