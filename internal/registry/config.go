package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rzpsarthak13/docbridge/internal/collection"
	"github.com/rzpsarthak13/docbridge/internal/schema"
)

// ConfigValidator is the Strategy interface for validating the target store
// section of the configuration. Each KV store backend registers one.
type ConfigValidator interface {
	// Validate validates the target store configuration for this backend.
	Validate(config *InternalConfig) error

	// Type returns the backend type, e.g. "redis" or "dynamodb".
	Type() string
}

var (
	validatorRegistry      = make(map[string]ConfigValidator)
	validatorRegistryMutex sync.RWMutex
)

// ValidationStrategyRegistry registers and retrieves config validators.
type ValidationStrategyRegistry struct{}

// Register registers a config validator. It panics if the validator is nil,
// has an empty type or its type is already registered.
func (r *ValidationStrategyRegistry) Register(validator ConfigValidator) {
	if validator == nil {
		panic("validator cannot be nil")
	}
	if validator.Type() == "" {
		panic("validator type cannot be empty")
	}

	validatorRegistryMutex.Lock()
	defer validatorRegistryMutex.Unlock()

	if _, exists := validatorRegistry[validator.Type()]; exists {
		panic(fmt.Sprintf("validator for type %q is already registered", validator.Type()))
	}
	validatorRegistry[validator.Type()] = validator
}

// Get retrieves a validator by type.
func (r *ValidationStrategyRegistry) Get(validatorType string) (ConfigValidator, bool) {
	validatorRegistryMutex.RLock()
	defer validatorRegistryMutex.RUnlock()

	validator, exists := validatorRegistry[validatorType]
	return validator, exists
}

// RegisterValidator registers a validator with the default registry. Backends
// call it from init().
func RegisterValidator(validator ConfigValidator) {
	defaultValidationRegistry.Register(validator)
}

// GetValidator retrieves a validator from the default registry.
func GetValidator(validatorType string) (ConfigValidator, bool) {
	return defaultValidationRegistry.Get(validatorType)
}

var defaultValidationRegistry = &ValidationStrategyRegistry{}

// ConfigManager loads configuration from files and the environment.
type ConfigManager struct {
	config *InternalConfig
}

// NewConfigManager creates a configuration manager holding the defaults.
func NewConfigManager() *ConfigManager {
	return &ConfigManager{config: defaultInternalConfig()}
}

// NewConfigManagerFrom wraps an already built configuration after
// validating it.
func NewConfigManagerFrom(config *InternalConfig) (*ConfigManager, error) {
	cm := &ConfigManager{}
	if err := cm.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cm.config = config
	return cm, nil
}

// DefaultConfig returns a copy of the default configuration.
func DefaultConfig() *InternalConfig {
	return defaultInternalConfig()
}

func defaultInternalConfig() *InternalConfig {
	return &InternalConfig{
		Logging: InternalLoggingConfig{
			Level: "info",
		},
		Postgres: InternalPostgresConfig{
			Host:              "localhost",
			Port:              5432,
			Database:          "docbridge",
			Username:          "postgres",
			SSLMode:           "disable",
			MaxConns:          10,
			MinConns:          1,
			MaxConnLifetime:   time.Hour,
			MaxConnIdleTime:   30 * time.Minute,
			ConnectionTimeout: 10 * time.Second,
		},
		Mongo: InternalMongoConfig{
			URI:               "mongodb://localhost:27017",
			Database:          "docbridge",
			MaxPoolSize:       100,
			ConnectionTimeout: 10 * time.Second,
		},
		TargetStore: InternalKVStoreConfig{
			Type:      "memory",
			KeyPrefix: "docbridge:targets:",
			RedisConfig: InternalRedisConfig{
				Endpoints:    []string{"localhost:6379"},
				PoolSize:     10,
				MinIdleConns: 2,
			},
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Backfill: InternalBackfillConfig{
			BatchSize:        100,
			DrainRate:        50,
			MaxRetries:       5,
			RetryBackoffBase: time.Second,
			RetryBackoffMax:  30 * time.Second,
			QueueType:        "memory",
			QueueBufferSize:  10000,
			QueuePrefix:      "docbridge:backfill",
			KafkaConfig: InternalKafkaConfig{
				Brokers:         []string{"localhost:9092"},
				Topic:           "docbridge-backfill",
				GroupID:         "docbridge-backfill",
				BatchSize:       100,
				BatchTimeout:    10 * time.Millisecond,
				WriteTimeout:    10 * time.Second,
				ReadTimeout:     5 * time.Second,
				RequiredAcks:    -1,
				MaxMessageBytes: 1000000,
				MinBytes:        1,
				MaxBytes:        10 * 1024 * 1024,
				MaxWait:         100 * time.Millisecond,
			},
		},
		Collections: make(map[string]InternalCollectionConfig),
	}
}

// LoadFromFile loads a YAML or JSON file chosen by extension.
func (cm *ConfigManager) LoadFromFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".yaml", ".yml":
		return cm.LoadFromYAML(data)
	case ".json":
		return cm.LoadFromJSON(data)
	default:
		return fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}
}

// LoadFromYAML loads configuration from YAML data on top of the defaults.
func (cm *ConfigManager) LoadFromYAML(data []byte) error {
	config := defaultInternalConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	return cm.apply(config)
}

// LoadFromJSON loads configuration from JSON data on top of the defaults.
func (cm *ConfigManager) LoadFromJSON(data []byte) error {
	config := defaultInternalConfig()
	if len(data) > 0 {
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}
	return cm.apply(config)
}

// LoadFromEnv loads the defaults overridden by DOCBRIDGE_* variables.
func (cm *ConfigManager) LoadFromEnv() error {
	config := defaultInternalConfig()
	applyEnv(config)
	return cm.apply(config)
}

// ApplyEnv overrides the current configuration with DOCBRIDGE_* variables.
// Examples:
//   - DOCBRIDGE_POSTGRES_HOST=db.internal
//   - DOCBRIDGE_MONGO_URI=mongodb://mongo:27017
//   - DOCBRIDGE_TARGET_STORE_TYPE=redis
//   - DOCBRIDGE_TARGET_STORE_ENDPOINTS=localhost:6379,localhost:6380
//   - DOCBRIDGE_BACKFILL_QUEUE_TYPE=kafka
func (cm *ConfigManager) ApplyEnv() error {
	config := *cm.config
	applyEnv(&config)
	return cm.apply(&config)
}

func (cm *ConfigManager) apply(config *InternalConfig) error {
	if err := cm.validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cm.config = config
	return nil
}

func applyEnv(config *InternalConfig) {
	envString("DOCBRIDGE_LOG_LEVEL", &config.Logging.Level)
	envBool("DOCBRIDGE_LOG_DEVELOPMENT", &config.Logging.Development)

	envString("DOCBRIDGE_POSTGRES_HOST", &config.Postgres.Host)
	envInt("DOCBRIDGE_POSTGRES_PORT", &config.Postgres.Port)
	envString("DOCBRIDGE_POSTGRES_DATABASE", &config.Postgres.Database)
	envString("DOCBRIDGE_POSTGRES_USERNAME", &config.Postgres.Username)
	envString("DOCBRIDGE_POSTGRES_PASSWORD", &config.Postgres.Password)
	envString("DOCBRIDGE_POSTGRES_SSL_MODE", &config.Postgres.SSLMode)
	if val := os.Getenv("DOCBRIDGE_POSTGRES_MAX_CONNS"); val != "" {
		var n int32
		if _, err := fmt.Sscanf(val, "%d", &n); err == nil {
			config.Postgres.MaxConns = n
		}
	}

	envString("DOCBRIDGE_MONGO_URI", &config.Mongo.URI)
	envString("DOCBRIDGE_MONGO_DATABASE", &config.Mongo.Database)

	envString("DOCBRIDGE_TARGET_STORE_TYPE", &config.TargetStore.Type)
	envString("DOCBRIDGE_TARGET_STORE_KEY_PREFIX", &config.TargetStore.KeyPrefix)
	if val := os.Getenv("DOCBRIDGE_TARGET_STORE_ENDPOINTS"); val != "" {
		config.TargetStore.RedisConfig.Endpoints = strings.Split(val, ",")
	}
	envString("DOCBRIDGE_TARGET_STORE_PASSWORD", &config.TargetStore.RedisConfig.Password)
	envInt("DOCBRIDGE_TARGET_STORE_DB", &config.TargetStore.RedisConfig.DB)
	envInt("DOCBRIDGE_TARGET_STORE_POOL_SIZE", &config.TargetStore.RedisConfig.PoolSize)
	envString("DOCBRIDGE_TARGET_STORE_DYNAMODB_REGION", &config.TargetStore.DynamoDBConfig.Region)
	envString("DOCBRIDGE_TARGET_STORE_DYNAMODB_TABLE", &config.TargetStore.DynamoDBConfig.TableName)
	envString("DOCBRIDGE_TARGET_STORE_DYNAMODB_ENDPOINT", &config.TargetStore.DynamoDBConfig.Endpoint)

	envInt("DOCBRIDGE_BACKFILL_BATCH_SIZE", &config.Backfill.BatchSize)
	envInt("DOCBRIDGE_BACKFILL_DRAIN_RATE", &config.Backfill.DrainRate)
	envInt("DOCBRIDGE_BACKFILL_MAX_RETRIES", &config.Backfill.MaxRetries)
	envString("DOCBRIDGE_BACKFILL_QUEUE_TYPE", &config.Backfill.QueueType)
	if val := os.Getenv("DOCBRIDGE_BACKFILL_KAFKA_BROKERS"); val != "" {
		config.Backfill.KafkaConfig.Brokers = strings.Split(val, ",")
	}
	envString("DOCBRIDGE_BACKFILL_KAFKA_TOPIC", &config.Backfill.KafkaConfig.Topic)
	if val := os.Getenv("DOCBRIDGE_BACKFILL_RETRY_BACKOFF_MAX"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.Backfill.RetryBackoffMax = d
		}
	}
}

func envString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		var n int
		if _, err := fmt.Sscanf(val, "%d", &n); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		*dst = val == "true" || val == "1"
	}
}

// GetConfig returns the current configuration.
func (cm *ConfigManager) GetConfig() *InternalConfig {
	return cm.config
}

// GetCollectionConfig returns a collection's configuration with the table
// name and targets defaulted.
func (cm *ConfigManager) GetCollectionConfig(name string) InternalCollectionConfig {
	cfg := cm.config.Collections[name]
	if cfg.Table == "" {
		cfg.Table = name
	}
	if cfg.ReadTarget == "" {
		cfg.ReadTarget = string(collection.ReadMongo)
	}
	if cfg.WriteTarget == "" {
		cfg.WriteTarget = string(collection.WriteMongo)
	}
	return cfg
}

// validateConfig validates every section. The target store section is
// validated by the backend's registered ConfigValidator.
func (cm *ConfigManager) validateConfig(config *InternalConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	switch config.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn or error")
	}

	if config.Postgres.Host == "" {
		return fmt.Errorf("postgres.host is required")
	}
	if config.Postgres.Port <= 0 || config.Postgres.Port > 65535 {
		return fmt.Errorf("postgres.port must be between 1 and 65535")
	}
	if config.Postgres.Database == "" {
		return fmt.Errorf("postgres.database is required")
	}
	if config.Postgres.Username == "" {
		return fmt.Errorf("postgres.username is required")
	}
	if config.Postgres.MaxConns <= 0 {
		return fmt.Errorf("postgres.max_conns must be greater than 0")
	}
	if config.Postgres.MinConns < 0 || config.Postgres.MinConns > config.Postgres.MaxConns {
		return fmt.Errorf("postgres.min_conns must be between 0 and postgres.max_conns")
	}

	if config.Mongo.URI == "" {
		return fmt.Errorf("mongo.uri is required")
	}
	if config.Mongo.Database == "" {
		return fmt.Errorf("mongo.database is required")
	}

	if config.TargetStore.Type != "" {
		validator, exists := GetValidator(config.TargetStore.Type)
		if !exists {
			return fmt.Errorf("unsupported target store type: %s", config.TargetStore.Type)
		}
		if err := validator.Validate(config); err != nil {
			return fmt.Errorf("target_store validation failed: %w", err)
		}
	}

	if err := validateBackfill(config.Backfill); err != nil {
		return err
	}

	for name, cfg := range config.Collections {
		if err := validateCollection(name, cfg); err != nil {
			return err
		}
	}
	return nil
}

func validateBackfill(cfg InternalBackfillConfig) error {
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("backfill.batch_size must be greater than 0")
	}
	if cfg.DrainRate <= 0 {
		return fmt.Errorf("backfill.drain_rate must be greater than 0")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("backfill.max_retries must be non-negative")
	}
	if cfg.RetryBackoffMax < cfg.RetryBackoffBase {
		return fmt.Errorf("backfill.retry_backoff_max must be >= backfill.retry_backoff_base")
	}
	switch cfg.QueueType {
	case "", "memory", "redis":
	case "kafka":
		if len(cfg.KafkaConfig.Brokers) == 0 {
			return fmt.Errorf("kafka_config.brokers is required when queue_type is 'kafka'")
		}
		if cfg.KafkaConfig.Topic == "" {
			return fmt.Errorf("kafka_config.topic is required when queue_type is 'kafka'")
		}
	default:
		return fmt.Errorf("backfill.queue_type must be 'memory', 'redis', or 'kafka'")
	}
	return nil
}

func validateCollection(name string, cfg InternalCollectionConfig) error {
	if name == "" {
		return fmt.Errorf("collection name cannot be empty")
	}
	if cfg.ReadTarget != "" {
		if _, err := collection.ParseReadTarget(cfg.ReadTarget); err != nil {
			return fmt.Errorf("collections.%s: %w", name, err)
		}
	}
	if cfg.WriteTarget != "" {
		if _, err := collection.ParseWriteTarget(cfg.WriteTarget); err != nil {
			return fmt.Errorf("collections.%s: %w", name, err)
		}
	}
	if len(cfg.Schema) > 0 {
		if _, err := schema.TableFields(cfg.Schema); err != nil {
			return fmt.Errorf("collections.%s: %w", name, err)
		}
	}
	for i, idx := range cfg.Indexes {
		if len(idx.Keys) == 0 {
			return fmt.Errorf("collections.%s.indexes[%d] has no keys", name, i)
		}
	}
	return nil
}
