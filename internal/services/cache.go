package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fairwaybets/tracker/pkg/config"
	"github.com/fairwaybets/tracker/pkg/logger"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Clock abstracts time for services that need deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock implementation of Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Store is the byte-level cache backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store with per-entry TTL. Expired entries
// are dropped lazily on read.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	clock   Clock
}

func NewMemoryStore(clock Clock) *MemoryStore {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MemoryStore{entries: make(map[string]memoryEntry), clock: clock}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}
	if !s.clock.Now().Before(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, ErrCacheMiss
	}
	return entry.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[key] = memoryEntry{value: value, expiresAt: s.clock.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// RedisStore backs the cache with Redis for multi-process deployments.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: redis.NewClient(opt)}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// CacheService is a JSON cache over a Store with a default TTL.
type CacheService struct {
	store  Store
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCacheService builds the cache from config, falling back to the
// in-process store when Redis is unavailable.
func NewCacheService(cfg *config.Config, clock Clock) *CacheService {
	log := logger.GetLogger()
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	var store Store
	if cfg.CacheBackend == "redis" && cfg.RedisURL != "" {
		redisStore, err := NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize Redis cache, falling back to memory")
		} else {
			store = redisStore
			log.Info("Cache backed by Redis")
		}
	}
	if store == nil {
		store = NewMemoryStore(clock)
	}

	return &CacheService{store: store, ttl: ttl, logger: log}
}

func NewCacheServiceWithStore(store Store, ttl time.Duration) *CacheService {
	return &CacheService{store: store, ttl: ttl, logger: logger.GetLogger()}
}

// GetJSON reads a cached value into target. Returns ErrCacheMiss on absence.
func (c *CacheService) GetJSON(ctx context.Context, key string, target interface{}) error {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		// A corrupt entry is treated as a miss.
		_ = c.store.Delete(ctx, key)
		return ErrCacheMiss
	}
	return nil
}

// SetJSON stores a value under the default TTL. Failures are logged, not
// returned; caching is best effort.
func (c *CacheService) SetJSON(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.WithField("key", key).WithError(err).Warn("Failed to marshal cache value")
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.WithField("key", key).WithError(err).Warn("Failed to write cache entry")
	}
}

// Invalidate drops a single key.
func (c *CacheService) Invalidate(ctx context.Context, key string) {
	_ = c.store.Delete(ctx, key)
}

// BuildKey joins key parts under the tracker namespace.
func BuildKey(parts ...string) string {
	return "tracker:" + strings.Join(parts, ":")
}
