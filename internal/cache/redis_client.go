// Package cache provides the key/value store behind login sessions.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Client defines the cache interface.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// Config selects and configures a cache backend.
type Config struct {
	Driver     string // memory or redis
	MaxEntries int
	Redis      RedisConfig
}

// New builds the configured cache client.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryClient(cfg.MaxEntries), nil
	case "redis":
		return NewRedisClient(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", cfg.Driver)
	}
}

// RedisClient implements cache using Redis.
type RedisClient struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
}

// NewRedisClient creates a new Redis cache client.
func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "phenbot:"
	}

	return &RedisClient{
		client: client,
		prefix: prefix,
	}, nil
}

// Get retrieves a value from cache.
func (c *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Set stores a value in cache with TTL.
func (c *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a value from cache.
func (c *RedisClient) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// DeleteByPrefix removes all keys with the given prefix.
func (c *RedisClient) DeleteByPrefix(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, c.prefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis delete by prefix: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}

// MemoryClient implements an in-process cache for development and tests.
type MemoryClient struct {
	mu      sync.RWMutex
	data    map[string]cacheEntry
	maxSize int
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryClient creates a new in-memory cache client.
func NewMemoryClient(maxSize int) *MemoryClient {
	if maxSize <= 0 {
		maxSize = 10000
	}

	c := &MemoryClient{
		data:    make(map[string]cacheEntry),
		maxSize: maxSize,
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	go c.cleanup()

	return c
}

// Get retrieves a value from cache.
func (c *MemoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[key]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, ErrCacheMiss
	}

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set stores a value in cache with TTL.
func (c *MemoryClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxSize {
		c.evictOldest()
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	c.data[key] = cacheEntry{
		value:     stored,
		expiresAt: c.now().Add(ttl),
	}

	return nil
}

// Delete removes a value from cache.
func (c *MemoryClient) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
	return nil
}

// DeleteByPrefix removes all keys with the given prefix.
func (c *MemoryClient) DeleteByPrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}

	return nil
}

// Close stops the cleanup goroutine.
func (c *MemoryClient) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

// evictOldest removes the entry closest to expiry.
func (c *MemoryClient) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.data {
		if oldestKey == "" || entry.expiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.expiresAt
		}
	}

	if oldestKey != "" {
		delete(c.data, oldestKey)
	}
}

// cleanup periodically removes expired entries.
func (c *MemoryClient) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := c.now()
			for key, entry := range c.data {
				if now.After(entry.expiresAt) {
					delete(c.data, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// CacheKey generates a cache key from components.
func CacheKey(parts ...string) string {
	return strings.Join(parts, ":")
}

// SessionKey generates the key for a login session token.
func SessionKey(token string) string {
	return CacheKey("session", token)
}

// UserSessionPrefix is the key prefix shared by all of a user's session index entries.
func UserSessionPrefix(userID string) string {
	return CacheKey("user", userID, "session") + ":"
}
