package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/registry"
)

// RedisKVStore implements core.KVStore on a single Redis node. It also
// provides the list operations used by the backfill Redis queue.
type RedisKVStore struct {
	client redis.UniversalClient

	mu     sync.RWMutex
	closed bool
}

// RedisOptions configures NewRedisKVStore.
type RedisOptions struct {
	Endpoints    []string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedisKVStore connects to the first endpoint and pings it.
func NewRedisKVStore(opts RedisOptions) (*RedisKVStore, error) {
	if len(opts.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one endpoint is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Endpoints[0],
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		MaxRetries:   opts.MaxRetries,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	zap.S().Infof("[REDIS] Connected to %s (db %d)", opts.Endpoints[0], opts.DB)
	return newRedisKVStore(client), nil
}

func newRedisKVStore(client redis.UniversalClient) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func (r *RedisKVStore) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Get retrieves a value by key.
func (r *RedisKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if r.isClosed() {
		return nil, core.ErrStoreClosed
	}

	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		zap.S().Debugf("[REDIS] Key not found: %s", key)
		return nil, fmt.Errorf("%w: %s", core.ErrKeyNotFound, key)
	}
	if err != nil {
		zap.S().Errorf("[REDIS] Failed to get key %s: %v", key, err)
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	zap.S().Debugf("[REDIS] GET %s (%d bytes)", key, len(val))
	return val, nil
}

// Set stores a key-value pair. A zero ttl never expires.
func (r *RedisKVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if r.isClosed() {
		return core.ErrStoreClosed
	}
	if ttl < 0 {
		ttl = 0
	}

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		zap.S().Errorf("[REDIS] Failed to set key %s: %v", key, err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	zap.S().Debugf("[REDIS] SET %s (%d bytes, ttl %v)", key, len(value), ttl)
	return nil
}

// Delete removes a key.
func (r *RedisKVStore) Delete(ctx context.Context, key string) error {
	if r.isClosed() {
		return core.ErrStoreClosed
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Exists checks whether a key exists.
func (r *RedisKVStore) Exists(ctx context.Context, key string) (bool, error) {
	if r.isClosed() {
		return false, core.ErrStoreClosed
	}
	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check existence of key %s: %w", key, err)
	}
	return count > 0, nil
}

// ListPush appends a value to a list (RPUSH).
func (r *RedisKVStore) ListPush(ctx context.Context, key string, value []byte) error {
	if r.isClosed() {
		return core.ErrStoreClosed
	}
	return r.client.RPush(ctx, key, value).Err()
}

// ListPop removes and returns the first element of a list (LPOP). It
// returns nil when the list is empty.
func (r *RedisKVStore) ListPop(ctx context.Context, key string) ([]byte, error) {
	if r.isClosed() {
		return nil, core.ErrStoreClosed
	}
	val, err := r.client.LPop(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// ListLength returns the length of a list (LLEN).
func (r *RedisKVStore) ListLength(ctx context.Context, key string) (int64, error) {
	if r.isClosed() {
		return 0, core.ErrStoreClosed
	}
	return r.client.LLen(ctx, key).Result()
}

// Close closes the client. Closing twice is a no-op.
func (r *RedisKVStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}

// RedisKVStoreFactory creates RedisKVStores.
type RedisKVStoreFactory struct{}

// Type returns "redis".
func (f *RedisKVStoreFactory) Type() string {
	return "redis"
}

// Validate validates the Redis settings.
func (f *RedisKVStoreFactory) Validate(config KVStoreConfig) error {
	if config.Type != "redis" {
		return fmt.Errorf("invalid type for Redis factory: %s", config.Type)
	}
	return validateRedis(config.Endpoints, config.DB, config.PoolSize, config.MinIdleConns)
}

// Create connects a new RedisKVStore.
func (f *RedisKVStoreFactory) Create(config KVStoreConfig) (core.KVStore, error) {
	store, err := NewRedisKVStore(RedisOptions{
		Endpoints:    config.Endpoints,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis KV store: %w", err)
	}
	return store, nil
}

// RedisConfigValidator validates the target store section for type redis.
type RedisConfigValidator struct{}

// Type returns "redis".
func (v *RedisConfigValidator) Type() string {
	return "redis"
}

// Validate validates the Redis settings and the shared timeouts.
func (v *RedisConfigValidator) Validate(config *registry.InternalConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	kv := config.TargetStore
	if kv.Type != "redis" {
		return fmt.Errorf("invalid type for Redis validator: %s", kv.Type)
	}
	rc := kv.RedisConfig
	if err := validateRedis(rc.Endpoints, rc.DB, rc.PoolSize, rc.MinIdleConns); err != nil {
		return err
	}
	return validateTimeouts(kv)
}

func validateRedis(endpoints []string, db, poolSize, minIdleConns int) error {
	if len(endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required for Redis")
	}
	if db < 0 || db > 15 {
		return fmt.Errorf("redis DB must be between 0 and 15, got: %d", db)
	}
	if poolSize <= 0 {
		return fmt.Errorf("pool_size must be greater than 0, got: %d", poolSize)
	}
	if minIdleConns < 0 {
		return fmt.Errorf("min_idle_conns must be non-negative, got: %d", minIdleConns)
	}
	return nil
}

func init() {
	RegisterFactory(&RedisKVStoreFactory{})
	registry.RegisterValidator(&RedisConfigValidator{})
}
