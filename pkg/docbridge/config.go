package docbridge

import (
	"time"

	"github.com/rzpsarthak13/docbridge/internal/core"
)

// Schema types shared with the internal packages.
type (
	CollectionSchema = core.CollectionSchema
	FieldSchema      = core.FieldSchema
	FieldKind        = core.FieldKind
	ResolveAs        = core.ResolveAs
	IndexSpec        = core.IndexSpec
	IndexKey         = core.IndexKey
)

// Config represents the root configuration for the docbridge client.
type Config struct {
	// Logging configures the global zap logger.
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Postgres contains the Postgres pool settings.
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`

	// Mongo contains the document store connection settings.
	Mongo MongoConfig `yaml:"mongo" json:"mongo"`

	// TargetStore configures the key-value store where the read and write
	// targets of every collection are persisted. Leave Type empty to keep
	// targets in process only.
	TargetStore KVStoreConfig `yaml:"target_store" json:"target_store"`

	// Backfill configures the queue and drainer that copy documents between
	// the two stores of a collection.
	Backfill BackfillConfig `yaml:"backfill" json:"backfill"`

	// Collections declares the logical collections. A collection without a
	// schema has no Postgres side.
	Collections map[string]CollectionConfig `yaml:"collections,omitempty" json:"collections,omitempty"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level" json:"level"`

	// Development switches to the human readable console encoder.
	Development bool `yaml:"development" json:"development"`
}

// PostgresConfig contains configuration for the Postgres pool.
type PostgresConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Database string `yaml:"database" json:"database"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// SSLMode is the libpq sslmode, e.g. "disable", "require" or "verify-full".
	SSLMode string `yaml:"ssl_mode,omitempty" json:"ssl_mode,omitempty"`

	MaxConns          int32         `yaml:"max_conns,omitempty" json:"max_conns,omitempty"`
	MinConns          int32         `yaml:"min_conns,omitempty" json:"min_conns,omitempty"`
	MaxConnLifetime   time.Duration `yaml:"max_conn_lifetime,omitempty" json:"max_conn_lifetime,omitempty"`
	MaxConnIdleTime   time.Duration `yaml:"max_conn_idle_time,omitempty" json:"max_conn_idle_time,omitempty"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout,omitempty" json:"connection_timeout,omitempty"`
}

// MongoConfig contains configuration for the document store.
type MongoConfig struct {
	URI               string        `yaml:"uri" json:"uri"`
	Database          string        `yaml:"database" json:"database"`
	MaxPoolSize       uint64        `yaml:"max_pool_size,omitempty" json:"max_pool_size,omitempty"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout,omitempty" json:"connection_timeout,omitempty"`
}

// KVStoreConfig contains configuration for the target store.
type KVStoreConfig struct {
	// Type specifies the backend: "memory", "redis" or "dynamodb".
	Type string `yaml:"type" json:"type"`

	// KeyPrefix is prepended to the collection name to form the key.
	KeyPrefix string `yaml:"key_prefix,omitempty" json:"key_prefix,omitempty"`

	RedisConfig    RedisConfig    `yaml:"redis_config,omitempty" json:"redis_config,omitempty"`
	DynamoDBConfig DynamoDBConfig `yaml:"dynamodb_config,omitempty" json:"dynamodb_config,omitempty"`

	// MaxRetries is the maximum number of retries for failed operations.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	DialTimeout  time.Duration `yaml:"dial_timeout,omitempty" json:"dial_timeout,omitempty"`
	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`
}

// RedisConfig contains Redis-specific configuration.
type RedisConfig struct {
	// Endpoints lists the Redis nodes. More than one selects cluster mode.
	Endpoints []string `yaml:"endpoints" json:"endpoints"`

	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// DB is the Redis database number (0-15). Only used in non-cluster mode.
	DB int `yaml:"db" json:"db"`

	PoolSize     int `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`
}

// DynamoDBConfig contains DynamoDB-specific configuration.
type DynamoDBConfig struct {
	Region    string `yaml:"region" json:"region"`
	TableName string `yaml:"table_name" json:"table_name"`

	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// Static credentials. The default AWS credential chain is used when empty.
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`
}

// BackfillConfig contains the backfill queue and drainer configuration.
type BackfillConfig struct {
	// BatchSize is the number of documents read from the source per page.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// DrainRate is the maximum number of documents per second the drainer
	// writes into the target store.
	DrainRate int `yaml:"drain_rate" json:"drain_rate"`

	// MaxRetries is the maximum number of retries for a failed copy.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// RetryBackoffBase and RetryBackoffMax bound the exponential backoff
	// between retries.
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base" json:"retry_backoff_base"`
	RetryBackoffMax  time.Duration `yaml:"retry_backoff_max" json:"retry_backoff_max"`

	// QueueType specifies the queue implementation: "memory", "redis" or
	// "kafka". The redis queue lives in the target store.
	QueueType string `yaml:"queue_type,omitempty" json:"queue_type,omitempty"`

	// QueueBufferSize is the buffer size of the in-memory queue.
	QueueBufferSize int `yaml:"queue_buffer_size,omitempty" json:"queue_buffer_size,omitempty"`

	// QueuePrefix is the list key of the redis queue.
	QueuePrefix string `yaml:"queue_prefix,omitempty" json:"queue_prefix,omitempty"`

	// KafkaConfig is only used when QueueType is "kafka".
	KafkaConfig KafkaConfig `yaml:"kafka_config,omitempty" json:"kafka_config,omitempty"`
}

// KafkaConfig contains configuration for the Kafka queue.
type KafkaConfig struct {
	Brokers         []string      `yaml:"brokers" json:"brokers"`
	Topic           string        `yaml:"topic" json:"topic"`
	GroupID         string        `yaml:"group_id" json:"group_id"`
	BatchSize       int           `yaml:"batch_size" json:"batch_size"`
	BatchTimeout    time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	RequiredAcks    int           `yaml:"required_acks" json:"required_acks"` // 0, 1 or -1 for all replicas
	MaxMessageBytes int           `yaml:"max_message_bytes" json:"max_message_bytes"`
	MinBytes        int           `yaml:"min_bytes" json:"min_bytes"`
	MaxBytes        int           `yaml:"max_bytes" json:"max_bytes"`
	MaxWait         time.Duration `yaml:"max_wait" json:"max_wait"`
}

// CollectionConfig declares one logical collection.
type CollectionConfig struct {
	// Table is the Postgres table name. Defaults to the collection name.
	Table string `yaml:"table,omitempty" json:"table,omitempty"`

	// ReadTarget is "mongo" or "pg". Defaults to "mongo".
	ReadTarget string `yaml:"read_target,omitempty" json:"read_target,omitempty"`

	// WriteTarget is "mongo", "pg" or "both". Defaults to "mongo".
	WriteTarget string `yaml:"write_target,omitempty" json:"write_target,omitempty"`

	Schema  CollectionSchema `yaml:"schema,omitempty" json:"schema,omitempty"`
	Indexes []IndexSpec      `yaml:"indexes,omitempty" json:"indexes,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Postgres: PostgresConfig{
			Host:              "localhost",
			Port:              5432,
			Database:          "docbridge",
			Username:          "postgres",
			SSLMode:           "disable",
			MaxConns:          10,
			MinConns:          1,
			MaxConnLifetime:   1 * time.Hour,
			MaxConnIdleTime:   30 * time.Minute,
			ConnectionTimeout: 10 * time.Second,
		},
		Mongo: MongoConfig{
			URI:               "mongodb://localhost:27017",
			Database:          "docbridge",
			MaxPoolSize:       100,
			ConnectionTimeout: 10 * time.Second,
		},
		TargetStore: KVStoreConfig{
			Type:      "memory",
			KeyPrefix: "docbridge:targets:",
			RedisConfig: RedisConfig{
				Endpoints:    []string{"localhost:6379"},
				PoolSize:     10,
				MinIdleConns: 2,
			},
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Backfill: BackfillConfig{
			BatchSize:        100,
			DrainRate:        50,
			MaxRetries:       5,
			RetryBackoffBase: 1 * time.Second,
			RetryBackoffMax:  30 * time.Second,
			QueueType:        "memory",
			QueueBufferSize:  10000,
			QueuePrefix:      "docbridge:backfill",
			KafkaConfig: KafkaConfig{
				Brokers:         []string{"localhost:9092"},
				Topic:           "docbridge-backfill",
				GroupID:         "docbridge-backfill",
				BatchSize:       100,
				BatchTimeout:    10 * time.Millisecond,
				WriteTimeout:    10 * time.Second,
				ReadTimeout:     5 * time.Second,
				RequiredAcks:    -1,
				MaxMessageBytes: 1000000, // 1MB
				MinBytes:        1,
				MaxBytes:        10 * 1024 * 1024, // 10MB
				MaxWait:         100 * time.Millisecond,
			},
		},
		Collections: make(map[string]CollectionConfig),
	}
}
