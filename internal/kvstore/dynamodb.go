package kvstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/registry"
)

// dynamoAPI is the subset of *dynamodb.Client the store uses.
type dynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoDBKVStore implements core.KVStore on a DynamoDB table keyed by the
// string attribute "key". Values live in the binary attribute "value" and
// expiry in the numeric attribute "ttl" (unix seconds).
type DynamoDBKVStore struct {
	client    dynamoAPI
	tableName string
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
}

// DynamoDBOptions configures NewDynamoDBKVStore.
type DynamoDBOptions struct {
	Region          string
	TableName       string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	MaxRetries      int
	DialTimeout     time.Duration
}

// NewDynamoDBKVStore loads the AWS configuration and checks that the table
// exists.
func NewDynamoDBKVStore(opts DynamoDBOptions) (*DynamoDBKVStore, error) {
	if opts.Region == "" {
		return nil, fmt.Errorf("region is required")
	}
	if opts.TableName == "" {
		return nil, fmt.Errorf("table name is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.MaxRetries > 0 {
		loadOpts = append(loadOpts, config.WithRetryMaxAttempts(opts.MaxRetries))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOptions []func(*dynamodb.Options)
	if opts.Endpoint != "" {
		clientOptions = append(clientOptions, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		})
	}
	client := dynamodb.NewFromConfig(cfg, clientOptions...)

	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(opts.TableName),
	}); err != nil {
		return nil, fmt.Errorf("failed to connect to DynamoDB table %s: %w", opts.TableName, err)
	}

	zap.S().Infof("[DYNAMODB] Connected to table %s in %s", opts.TableName, opts.Region)
	return newDynamoDBKVStore(client, opts.TableName), nil
}

func newDynamoDBKVStore(client dynamoAPI, tableName string) *DynamoDBKVStore {
	return &DynamoDBKVStore{client: client, tableName: tableName, now: time.Now}
}

func (d *DynamoDBKVStore) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

func (d *DynamoDBKVStore) key(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"key": &types.AttributeValueMemberS{Value: key},
	}
}

// expired reports whether an item carries a ttl in the past. DynamoDB
// deletes expired items lazily, so reads filter them.
func (d *DynamoDBKVStore) expired(item map[string]types.AttributeValue) bool {
	attr, ok := item["ttl"].(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ttl, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return false
	}
	return d.now().Unix() > ttl
}

// Get retrieves a value by key.
func (d *DynamoDBKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if d.isClosed() {
		return nil, core.ErrStoreClosed
	}

	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            d.key(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		zap.S().Errorf("[DYNAMODB] Failed to get key %s: %v", key, err)
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if result.Item == nil || d.expired(result.Item) {
		zap.S().Debugf("[DYNAMODB] Key not found: %s", key)
		return nil, fmt.Errorf("%w: %s", core.ErrKeyNotFound, key)
	}

	value, ok := result.Item["value"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("invalid value format for key %s", key)
	}

	zap.S().Debugf("[DYNAMODB] GET %s (%d bytes)", key, len(value.Value))
	return value.Value, nil
}

// Set stores a key-value pair. A zero ttl never expires.
func (d *DynamoDBKVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if d.isClosed() {
		return core.ErrStoreClosed
	}

	now := d.now()
	item := d.key(key)
	item["value"] = &types.AttributeValueMemberB{Value: value}
	item["created_at"] = &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)}
	if ttl > 0 {
		item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(ttl).Unix(), 10)}
	}

	if _, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	}); err != nil {
		zap.S().Errorf("[DYNAMODB] Failed to set key %s: %v", key, err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	zap.S().Debugf("[DYNAMODB] SET %s (%d bytes, ttl %v)", key, len(value), ttl)
	return nil
}

// Delete removes a key.
func (d *DynamoDBKVStore) Delete(ctx context.Context, key string) error {
	if d.isClosed() {
		return core.ErrStoreClosed
	}
	if _, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key:       d.key(key),
	}); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Exists checks whether an unexpired item exists for key.
func (d *DynamoDBKVStore) Exists(ctx context.Context, key string) (bool, error) {
	if d.isClosed() {
		return false, core.ErrStoreClosed
	}

	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(d.tableName),
		Key:                      d.key(key),
		ProjectionExpression:     aws.String("#k, #t"),
		ExpressionAttributeNames: map[string]string{"#k": "key", "#t": "ttl"},
	})
	if err != nil {
		return false, fmt.Errorf("failed to check existence of key %s: %w", key, err)
	}
	return result.Item != nil && !d.expired(result.Item), nil
}

// Close marks the store closed. The AWS client holds no connections that
// need releasing.
func (d *DynamoDBKVStore) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// DynamoDBKVStoreFactory creates DynamoDBKVStores.
type DynamoDBKVStoreFactory struct{}

// Type returns "dynamodb".
func (f *DynamoDBKVStoreFactory) Type() string {
	return "dynamodb"
}

// Validate validates the DynamoDB settings.
func (f *DynamoDBKVStoreFactory) Validate(config KVStoreConfig) error {
	if config.Type != "dynamodb" {
		return fmt.Errorf("invalid type for DynamoDB factory: %s", config.Type)
	}
	return validateDynamoDB(config.Region, config.TableName)
}

// Create connects a new DynamoDBKVStore.
func (f *DynamoDBKVStoreFactory) Create(config KVStoreConfig) (core.KVStore, error) {
	store, err := NewDynamoDBKVStore(DynamoDBOptions{
		Region:          config.Region,
		TableName:       config.TableName,
		Endpoint:        config.Endpoint,
		AccessKeyID:     config.AccessKeyID,
		SecretAccessKey: config.SecretAccessKey,
		MaxRetries:      config.MaxRetries,
		DialTimeout:     config.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DynamoDB KV store: %w", err)
	}
	return store, nil
}

// DynamoDBConfigValidator validates the target store section for type
// dynamodb.
type DynamoDBConfigValidator struct{}

// Type returns "dynamodb".
func (v *DynamoDBConfigValidator) Type() string {
	return "dynamodb"
}

// Validate validates the DynamoDB settings and the shared timeouts.
func (v *DynamoDBConfigValidator) Validate(config *registry.InternalConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	kv := config.TargetStore
	if kv.Type != "dynamodb" {
		return fmt.Errorf("invalid type for DynamoDB validator: %s", kv.Type)
	}
	if err := validateDynamoDB(kv.DynamoDBConfig.Region, kv.DynamoDBConfig.TableName); err != nil {
		return err
	}
	return validateTimeouts(kv)
}

func validateDynamoDB(region, tableName string) error {
	if region == "" {
		return fmt.Errorf("region is required for DynamoDB")
	}
	if tableName == "" {
		return fmt.Errorf("table_name is required for DynamoDB")
	}
	return nil
}

func init() {
	RegisterFactory(&DynamoDBKVStoreFactory{})
	registry.RegisterValidator(&DynamoDBConfigValidator{})
}
