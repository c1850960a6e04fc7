package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is used when a Manager is created with a non-positive TTL.
const DefaultTTL = 5 * time.Minute

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager handles caching operations with Redis backend.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
	owned bool
}

// Open connects to the redis instance at url (redis://host:port/db), pings it
// and returns a Manager that owns the connection. Call Close when done.
func Open(ctx context.Context, url string, ttl time.Duration) (*Manager, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	m := NewManager(rdb, ttl)
	m.owned = true
	return m, nil
}

// Close releases the redis connection if the Manager opened it.
func (m *Manager) Close() error {
	if !m.owned {
		return nil
	}
	return m.redis.Close()
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		redis: redisClient,
		ttl:   ttl,
	}
}

// TTL returns the lifetime given to new entries.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	cacheKey := key.String()

	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	return &entry, nil
}

// Set stores a cache entry with TTL based on the entry's Expires field.
// The entry will be automatically removed from Redis when it expires.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	cacheKey := key.String()

	ttl := entry.TTL()
	if ttl <= 0 {
		// Already expired, don't cache
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.WithLabelValues("redis").Add(float64(len(data)))

	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	cacheKey := key.String()

	if err := m.redis.Del(ctx, cacheKey).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// GetDetail returns the cached detail body for an animal.
func (m *Manager) GetDetail(ctx context.Context, id int64) ([]byte, error) {
	entry, err := m.Get(ctx, DetailKey(id))
	if err != nil {
		return nil, err
	}
	return entry.Data, nil
}

// SetDetail caches the detail body for an animal using the manager's TTL.
func (m *Manager) SetDetail(ctx context.Context, id int64, data []byte) error {
	return m.Set(ctx, DetailKey(id), NewEntry(data, m.ttl))
}
