package kvstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/docbridge/internal/registry"
)

func TestRegisteredTypes(t *testing.T) {
	assert.Equal(t, []string{"dynamodb", "memory", "redis"}, GetRegisteredTypes())
	assert.True(t, IsTypeRegistered("memory"))
	assert.False(t, IsTypeRegistered("cassandra"))

	for _, typ := range GetRegisteredTypes() {
		_, ok := registry.GetValidator(typ)
		assert.True(t, ok, "validator for %s", typ)
	}
}

func TestCreate(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		store, err := Create(KVStoreConfig{Type: "memory"})
		require.NoError(t, err)
		assert.IsType(t, &MemoryKVStore{}, store)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := Create(KVStoreConfig{})
		assert.ErrorContains(t, err, "type is required")
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := Create(KVStoreConfig{Type: "cassandra"})
		assert.ErrorContains(t, err, "unsupported KV store type")
	})

	t.Run("invalid redis config", func(t *testing.T) {
		_, err := Create(KVStoreConfig{Type: "redis", PoolSize: 10})
		assert.ErrorContains(t, err, "at least one endpoint")
	})

	t.Run("invalid dynamodb config", func(t *testing.T) {
		_, err := Create(KVStoreConfig{Type: "dynamodb", Region: "us-east-1"})
		assert.ErrorContains(t, err, "table_name is required")
	})
}

func TestRegisterFactoryPanics(t *testing.T) {
	assert.Panics(t, func() { RegisterFactory(nil) })
	assert.Panics(t, func() { RegisterFactory(&MemoryKVStoreFactory{}) })
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(registry.InternalKVStoreConfig{
		Type:       "redis",
		MaxRetries: 3,
		RedisConfig: registry.InternalRedisConfig{
			Endpoints: []string{"localhost:6379"},
			DB:        2,
			PoolSize:  5,
		},
		DynamoDBConfig: registry.InternalDynamoDBConfig{Region: "eu-west-1"},
		DialTimeout:    time.Second,
		ReadTimeout:    2 * time.Second,
		WriteTimeout:   3 * time.Second,
	})

	assert.Equal(t, KVStoreConfig{
		Type:         "redis",
		Endpoints:    []string{"localhost:6379"},
		DB:           2,
		MaxRetries:   3,
		PoolSize:     5,
		DialTimeout:  time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 3 * time.Second,
		Region:       "eu-west-1",
	}, cfg)
}

func TestConfigValidators(t *testing.T) {
	timeouts := func(kv registry.InternalKVStoreConfig) registry.InternalKVStoreConfig {
		kv.DialTimeout, kv.ReadTimeout, kv.WriteTimeout = time.Second, time.Second, time.Second
		return kv
	}

	tests := []struct {
		name    string
		store   registry.InternalKVStoreConfig
		wantErr string
	}{
		{
			name:  "memory",
			store: registry.InternalKVStoreConfig{Type: "memory"},
		},
		{
			name: "redis",
			store: timeouts(registry.InternalKVStoreConfig{
				Type:        "redis",
				RedisConfig: registry.InternalRedisConfig{Endpoints: []string{"localhost:6379"}, PoolSize: 10},
			}),
		},
		{
			name: "redis db out of range",
			store: timeouts(registry.InternalKVStoreConfig{
				Type:        "redis",
				RedisConfig: registry.InternalRedisConfig{Endpoints: []string{"localhost:6379"}, PoolSize: 10, DB: 16},
			}),
			wantErr: "between 0 and 15",
		},
		{
			name: "redis missing timeout",
			store: registry.InternalKVStoreConfig{
				Type:        "redis",
				RedisConfig: registry.InternalRedisConfig{Endpoints: []string{"localhost:6379"}, PoolSize: 10},
			},
			wantErr: "dial_timeout",
		},
		{
			name: "dynamodb",
			store: timeouts(registry.InternalKVStoreConfig{
				Type:           "dynamodb",
				DynamoDBConfig: registry.InternalDynamoDBConfig{Region: "us-east-1", TableName: "targets"},
			}),
		},
		{
			name: "dynamodb missing region",
			store: timeouts(registry.InternalKVStoreConfig{
				Type:           "dynamodb",
				DynamoDBConfig: registry.InternalDynamoDBConfig{TableName: "targets"},
			}),
			wantErr: "region is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator, ok := registry.GetValidator(tt.store.Type)
			require.True(t, ok)

			err := validator.Validate(&registry.InternalConfig{TargetStore: tt.store})
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}
