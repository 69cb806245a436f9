// Package kvstore provides the key-value stores that persist collection
// target snapshots: Redis, DynamoDB and an in-process map.
package kvstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/registry"
)

// KVStoreFactory is the Strategy interface for creating KV stores. Each
// backend registers one from init().
type KVStoreFactory interface {
	// Create creates a store from the configuration.
	Create(config KVStoreConfig) (core.KVStore, error)

	// Type returns the backend type, e.g. "redis" or "dynamodb".
	Type() string

	// Validate validates the configuration for this backend.
	Validate(config KVStoreConfig) error
}

// KVStoreConfig is the flattened configuration handed to a factory.
type KVStoreConfig struct {
	Type         string
	Endpoints    []string
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// DynamoDB
	Region          string
	TableName       string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// ConfigFrom flattens the target store section of the configuration.
func ConfigFrom(c registry.InternalKVStoreConfig) KVStoreConfig {
	return KVStoreConfig{
		Type:            c.Type,
		Endpoints:       c.RedisConfig.Endpoints,
		Password:        c.RedisConfig.Password,
		DB:              c.RedisConfig.DB,
		MaxRetries:      c.MaxRetries,
		PoolSize:        c.RedisConfig.PoolSize,
		MinIdleConns:    c.RedisConfig.MinIdleConns,
		DialTimeout:     c.DialTimeout,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		Region:          c.DynamoDBConfig.Region,
		TableName:       c.DynamoDBConfig.TableName,
		Endpoint:        c.DynamoDBConfig.Endpoint,
		AccessKeyID:     c.DynamoDBConfig.AccessKeyID,
		SecretAccessKey: c.DynamoDBConfig.SecretAccessKey,
	}
}

var (
	factoryRegistry = make(map[string]KVStoreFactory)
	registryMutex   sync.RWMutex
)

// RegisterFactory registers a KV store factory. It panics on a nil factory,
// an empty type or a duplicate type.
func RegisterFactory(factory KVStoreFactory) {
	if factory == nil {
		panic("factory cannot be nil")
	}
	if factory.Type() == "" {
		panic("factory type cannot be empty")
	}

	registryMutex.Lock()
	defer registryMutex.Unlock()

	if _, exists := factoryRegistry[factory.Type()]; exists {
		panic(fmt.Sprintf("factory for type %q is already registered", factory.Type()))
	}
	factoryRegistry[factory.Type()] = factory
}

// Create validates the configuration with the factory for config.Type and
// creates the store.
func Create(config KVStoreConfig) (core.KVStore, error) {
	if config.Type == "" {
		return nil, fmt.Errorf("kvstore type is required")
	}

	registryMutex.RLock()
	factory, exists := factoryRegistry[config.Type]
	registryMutex.RUnlock()
	if !exists {
		return nil, fmt.Errorf("unsupported KV store type: %s", config.Type)
	}

	if err := factory.Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", config.Type, err)
	}
	return factory.Create(config)
}

// GetRegisteredTypes returns the registered backend types in sorted order.
func GetRegisteredTypes() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	types := make([]string, 0, len(factoryRegistry))
	for t := range factoryRegistry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsTypeRegistered reports whether a backend type is registered.
func IsTypeRegistered(storeType string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	_, exists := factoryRegistry[storeType]
	return exists
}

// validateTimeouts checks the timeouts shared by the network backends.
func validateTimeouts(c registry.InternalKVStoreConfig) error {
	if c.DialTimeout <= 0 {
		return fmt.Errorf("dial_timeout must be greater than 0, got: %v", c.DialTimeout)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be greater than 0, got: %v", c.ReadTimeout)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be greater than 0, got: %v", c.WriteTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got: %d", c.MaxRetries)
	}
	return nil
}
