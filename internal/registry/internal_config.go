package registry

import (
	"time"

	"github.com/rzpsarthak13/docbridge/internal/core"
)

// InternalConfig is the configuration the registry and the client work
// from. The public docbridge.Config is converted into it.
type InternalConfig struct {
	Logging     InternalLoggingConfig               `yaml:"logging" json:"logging"`
	Postgres    InternalPostgresConfig              `yaml:"postgres" json:"postgres"`
	Mongo       InternalMongoConfig                 `yaml:"mongo" json:"mongo"`
	TargetStore InternalKVStoreConfig               `yaml:"target_store" json:"target_store"`
	Backfill    InternalBackfillConfig              `yaml:"backfill" json:"backfill"`
	Collections map[string]InternalCollectionConfig `yaml:"collections" json:"collections"`
}

// InternalLoggingConfig configures the zap logger.
type InternalLoggingConfig struct {
	Level       string `yaml:"level" json:"level"`
	Development bool   `yaml:"development" json:"development"`
}

// InternalPostgresConfig contains the Postgres pool settings.
type InternalPostgresConfig struct {
	Host              string        `yaml:"host" json:"host"`
	Port              int           `yaml:"port" json:"port"`
	Database          string        `yaml:"database" json:"database"`
	Username          string        `yaml:"username" json:"username"`
	Password          string        `yaml:"password" json:"password"`
	SSLMode           string        `yaml:"ssl_mode" json:"ssl_mode"`
	MaxConns          int32         `yaml:"max_conns" json:"max_conns"`
	MinConns          int32         `yaml:"min_conns" json:"min_conns"`
	MaxConnLifetime   time.Duration `yaml:"max_conn_lifetime" json:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `yaml:"max_conn_idle_time" json:"max_conn_idle_time"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout" json:"connection_timeout"`
}

// InternalMongoConfig contains the document store connection settings.
type InternalMongoConfig struct {
	URI               string        `yaml:"uri" json:"uri"`
	Database          string        `yaml:"database" json:"database"`
	MaxPoolSize       uint64        `yaml:"max_pool_size" json:"max_pool_size"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout" json:"connection_timeout"`
}

// InternalKVStoreConfig configures the key-value store that persists target
// snapshots. Backends register themselves by type.
type InternalKVStoreConfig struct {
	Type           string                 `yaml:"type" json:"type"`
	KeyPrefix      string                 `yaml:"key_prefix,omitempty" json:"key_prefix,omitempty"`
	RedisConfig    InternalRedisConfig    `yaml:"redis_config,omitempty" json:"redis_config,omitempty"`
	DynamoDBConfig InternalDynamoDBConfig `yaml:"dynamodb_config,omitempty" json:"dynamodb_config,omitempty"`
	MaxRetries     int                    `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	DialTimeout    time.Duration          `yaml:"dial_timeout,omitempty" json:"dial_timeout,omitempty"`
	ReadTimeout    time.Duration          `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty"`
	WriteTimeout   time.Duration          `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`
}

// InternalRedisConfig contains Redis-specific configuration.
type InternalRedisConfig struct {
	Endpoints    []string `yaml:"endpoints" json:"endpoints"`
	Password     string   `yaml:"password,omitempty" json:"password,omitempty"`
	DB           int      `yaml:"db" json:"db"`
	PoolSize     int      `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int      `yaml:"min_idle_conns" json:"min_idle_conns"`
}

// InternalDynamoDBConfig contains DynamoDB-specific configuration.
type InternalDynamoDBConfig struct {
	Region          string `yaml:"region" json:"region"`
	TableName       string `yaml:"table_name" json:"table_name"`
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`
}

// InternalBackfillConfig configures the backfill queue and drainer.
type InternalBackfillConfig struct {
	BatchSize        int                 `yaml:"batch_size" json:"batch_size"`
	DrainRate        int                 `yaml:"drain_rate" json:"drain_rate"` // documents per second
	MaxRetries       int                 `yaml:"max_retries" json:"max_retries"`
	RetryBackoffBase time.Duration       `yaml:"retry_backoff_base" json:"retry_backoff_base"`
	RetryBackoffMax  time.Duration       `yaml:"retry_backoff_max" json:"retry_backoff_max"`
	QueueType        string              `yaml:"queue_type" json:"queue_type"`
	QueueBufferSize  int                 `yaml:"queue_buffer_size" json:"queue_buffer_size"`
	QueuePrefix      string              `yaml:"queue_prefix,omitempty" json:"queue_prefix,omitempty"`
	KafkaConfig      InternalKafkaConfig `yaml:"kafka_config" json:"kafka_config"`
}

// InternalKafkaConfig contains Kafka-specific configuration.
type InternalKafkaConfig struct {
	Brokers         []string      `yaml:"brokers" json:"brokers"`
	Topic           string        `yaml:"topic" json:"topic"`
	GroupID         string        `yaml:"group_id" json:"group_id"`
	BatchSize       int           `yaml:"batch_size" json:"batch_size"`
	BatchTimeout    time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	RequiredAcks    int           `yaml:"required_acks" json:"required_acks"`
	MaxMessageBytes int           `yaml:"max_message_bytes" json:"max_message_bytes"`
	MinBytes        int           `yaml:"min_bytes" json:"min_bytes"`
	MaxBytes        int           `yaml:"max_bytes" json:"max_bytes"`
	MaxWait         time.Duration `yaml:"max_wait" json:"max_wait"`
}

// InternalCollectionConfig declares one logical collection.
type InternalCollectionConfig struct {
	// Table is the Postgres table name. Defaults to the collection name.
	Table string `yaml:"table,omitempty" json:"table,omitempty"`

	// ReadTarget and WriteTarget are the targets applied at startup.
	ReadTarget  string `yaml:"read_target,omitempty" json:"read_target,omitempty"`
	WriteTarget string `yaml:"write_target,omitempty" json:"write_target,omitempty"`

	Schema  core.CollectionSchema `yaml:"schema" json:"schema"`
	Indexes []core.IndexSpec      `yaml:"indexes,omitempty" json:"indexes,omitempty"`
}
