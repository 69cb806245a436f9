// Package client wires the configuration, the connections and the
// collection registry together. The public docbridge package wraps it.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rzpsarthak13/docbridge/internal/collection"
	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/database"
	"github.com/rzpsarthak13/docbridge/internal/kvstore"
	"github.com/rzpsarthak13/docbridge/internal/pgsql"
	"github.com/rzpsarthak13/docbridge/internal/registry"
	"github.com/rzpsarthak13/docbridge/internal/writeback"
)

var (
	// ErrClientClosed is returned when a closed client is used.
	ErrClientClosed = errors.New("client is closed")

	// ErrNoTargetStore is returned by RestoreTargets without a target store.
	ErrNoTargetStore = errors.New("no target store configured")
)

// ConfigProvider provides the configuration as YAML without importing the
// public package.
type ConfigProvider interface {
	GetYAML() ([]byte, error)
}

// Connections are the opened backends of a client. Any of them may be nil:
// collections then lack the corresponding side.
type Connections struct {
	Pool        database.Pool
	MongoClient *mongo.Client
	Mongo       *mongo.Database
	KVStore     core.KVStore
	Queue       core.BackfillQueue
}

// ClientImpl holds one SwitchingCollection per logical collection.
type ClientImpl struct {
	mu          sync.RWMutex
	configMgr   *registry.ConfigManager
	conns       Connections
	targetStore *registry.TargetStore
	registry    *registry.CollectionRegistry
	lifecycle   *registry.LifecycleManager
	closed      bool
}

// NewClientImpl loads the configuration, opens every backend and registers
// the configured collections.
func NewClientImpl(ctx context.Context, configProvider ConfigProvider) (*ClientImpl, error) {
	if configProvider == nil {
		return nil, fmt.Errorf("config provider cannot be nil")
	}

	configMgr := registry.NewConfigManager()
	yamlData, err := configProvider.GetYAML()
	if err != nil {
		return nil, fmt.Errorf("failed to get config YAML: %w", err)
	}
	if err := configMgr.LoadFromYAML(yamlData); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return Open(ctx, configMgr)
}

// Open opens the backends described by configMgr.
func Open(ctx context.Context, configMgr *registry.ConfigManager) (*ClientImpl, error) {
	conns, err := openConnections(ctx, configMgr.GetConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize connections: %w", err)
	}
	c, err := New(configMgr, conns)
	if err != nil {
		closeConnections(conns)
		return nil, err
	}
	return c, nil
}

func openConnections(ctx context.Context, config *registry.InternalConfig) (Connections, error) {
	var conns Connections

	pool, err := database.NewPostgresPool(ctx, database.PostgresConfig{
		Host:              config.Postgres.Host,
		Port:              config.Postgres.Port,
		Database:          config.Postgres.Database,
		Username:          config.Postgres.Username,
		Password:          config.Postgres.Password,
		SSLMode:           config.Postgres.SSLMode,
		MaxConns:          config.Postgres.MaxConns,
		MinConns:          config.Postgres.MinConns,
		MaxConnLifetime:   config.Postgres.MaxConnLifetime,
		MaxConnIdleTime:   config.Postgres.MaxConnIdleTime,
		ConnectionTimeout: config.Postgres.ConnectionTimeout,
	})
	if err != nil {
		return conns, err
	}
	conns.Pool = pool

	mongoClient, mongoDB, err := database.NewMongoDatabase(ctx, database.MongoConfig{
		URI:               config.Mongo.URI,
		Database:          config.Mongo.Database,
		MaxPoolSize:       config.Mongo.MaxPoolSize,
		ConnectionTimeout: config.Mongo.ConnectionTimeout,
	})
	if err != nil {
		closeConnections(conns)
		return Connections{}, err
	}
	conns.MongoClient, conns.Mongo = mongoClient, mongoDB

	if config.TargetStore.Type != "" {
		kv, err := kvstore.Create(kvstore.ConfigFrom(config.TargetStore))
		if err != nil {
			closeConnections(conns)
			return Connections{}, fmt.Errorf("failed to create target store: %w", err)
		}
		conns.KVStore = kv
	}

	queue, err := writeback.NewQueue(config.Backfill, conns.KVStore)
	if err != nil {
		closeConnections(conns)
		return Connections{}, fmt.Errorf("failed to create backfill queue: %w", err)
	}
	conns.Queue = queue

	return conns, nil
}

// New creates a client over already opened connections and registers every
// configured collection.
func New(configMgr *registry.ConfigManager, conns Connections) (*ClientImpl, error) {
	if configMgr == nil {
		return nil, fmt.Errorf("config manager cannot be nil")
	}

	lifecycle := registry.NewLifecycleManager()
	c := &ClientImpl{
		configMgr: configMgr,
		conns:     conns,
		lifecycle: lifecycle,
		registry:  registry.NewCollectionRegistry(configMgr, lifecycle),
	}
	if conns.KVStore != nil {
		c.targetStore = registry.NewTargetStore(conns.KVStore, configMgr.GetConfig().TargetStore.KeyPrefix)
		lifecycle.RegisterHook(c.targetStore)
	}

	for name := range configMgr.GetConfig().Collections {
		if _, err := c.register(name); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// register builds the routing collection of name. The Postgres side exists
// only when a schema is configured.
func (c *ClientImpl) register(name string) (*collection.SwitchingCollection, error) {
	cfg := c.configMgr.GetCollectionConfig(name)

	var mongoColl, pgColl core.Collection
	if c.conns.Mongo != nil {
		mongoColl = collection.NewMongoCollection(c.conns.Mongo.Collection(name))
	}
	if len(cfg.Schema) > 0 && c.conns.Pool != nil {
		table, err := pgsql.TableFromSchema(cfg.Table, cfg.Schema, cfg.Indexes)
		if err != nil {
			return nil, fmt.Errorf("failed to build table for %s: %w", name, err)
		}
		pgColl = collection.NewPgCollection(name, table, c.conns.Pool)
	}

	sc := collection.NewSwitchingCollection(name, mongoColl, pgColl)
	read, err := collection.ParseReadTarget(cfg.ReadTarget)
	if err != nil {
		return nil, err
	}
	write, err := collection.ParseWriteTarget(cfg.WriteTarget)
	if err != nil {
		return nil, err
	}
	if read != sc.ReadTarget() || write != sc.WriteTarget() {
		if err := sc.SetTargets(read, write); err != nil {
			return nil, fmt.Errorf("failed to apply initial targets of %s: %w", name, err)
		}
	}

	if err := c.registry.Register(name, sc); err != nil {
		return nil, err
	}
	zap.S().Infof("[SWITCH] Registered %s (read=%s write=%s postgres=%t)", name, read, write, pgColl != nil)
	return sc, nil
}

func (c *ClientImpl) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// Collection returns the routing collection of name, registering it with
// default settings when the configuration does not mention it.
func (c *ClientImpl) Collection(name string) (*collection.SwitchingCollection, error) {
	if name == "" {
		return nil, fmt.Errorf("collection name cannot be empty")
	}
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if sc, err := c.registry.Get(name); err == nil {
		return sc, nil
	}
	return c.register(name)
}

// Collections returns the registered collection names.
func (c *ClientImpl) Collections() []string {
	return c.registry.List()
}

// Targets returns the current targets of a registered collection.
func (c *ClientImpl) Targets(name string) (registry.Targets, error) {
	if err := c.checkOpen(); err != nil {
		return registry.Targets{}, err
	}
	return c.registry.Targets(name)
}

// SetTargets switches a collection. With a target store the new targets
// are persisted, and a failed save reverts the switch.
func (c *ClientImpl) SetTargets(ctx context.Context, name string, targets registry.Targets) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if _, err := c.Collection(name); err != nil {
		return err
	}
	return c.registry.SetTargets(ctx, name, targets)
}

// RestoreTargets applies the persisted targets to every registered
// collection and returns how many were restored.
func (c *ClientImpl) RestoreTargets(ctx context.Context) (int, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	if c.targetStore == nil {
		return 0, ErrNoTargetStore
	}

	restored := 0
	for _, name := range c.registry.List() {
		targets, found, err := c.targetStore.Load(ctx, name)
		if err != nil {
			return restored, err
		}
		if !found {
			continue
		}
		sc, err := c.registry.Get(name)
		if err != nil {
			return restored, err
		}
		if err := sc.SetTargets(targets.Read, targets.Write); err != nil {
			return restored, fmt.Errorf("failed to restore targets of %s: %w", name, err)
		}
		restored++
	}
	zap.S().Infof("[SWITCH] Restored targets of %d collections", restored)
	return restored, nil
}

// CreateTables concurrently creates the table and indexes of every collection with a
// Postgres side.
func (c *ClientImpl) CreateTables(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range c.registry.List() {
		name := name
		sc, err := c.registry.Get(name)
		if err != nil {
			return err
		}
		pg, ok := sc.PgCollection().(*collection.PgCollection)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := pg.CreateTable(ctx); err != nil {
				return fmt.Errorf("failed to create table for %s: %w", name, err)
			}
			zap.S().Infof("[PG] Created table %s for %s", pg.Table().Name(), name)
			return nil
		})
	}
	return g.Wait()
}

// TargetCollection returns one backing side of a collection: "mongo" or "pg".
func (c *ClientImpl) TargetCollection(name, target string) (core.Collection, error) {
	sc, err := c.Collection(name)
	if err != nil {
		return nil, err
	}

	var coll core.Collection
	switch target {
	case string(collection.ReadMongo):
		coll = sc.MongoCollection()
	case string(collection.ReadPg):
		coll = sc.PgCollection()
	default:
		return nil, fmt.Errorf("%w: %q", collection.ErrInvalidTarget, target)
	}
	if coll == nil {
		return nil, fmt.Errorf("%w: %s has no %s collection", collection.ErrInvalidTarget, name, target)
	}
	return coll, nil
}

// Backfill enqueues a copy of every document of the from side of a
// collection for the other side. Documents are read in _id order, one batch
// at a time. It returns the number of enqueued documents.
func (c *ClientImpl) Backfill(ctx context.Context, name string, from collection.ReadTarget) (int, error) {
	if c.conns.Queue == nil {
		return 0, fmt.Errorf("no backfill queue configured")
	}
	to := collection.ReadPg
	if from == collection.ReadPg {
		to = collection.ReadMongo
	}
	source, err := c.TargetCollection(name, string(from))
	if err != nil {
		return 0, err
	}
	if _, err := c.TargetCollection(name, string(to)); err != nil {
		return 0, err
	}

	batchSize := int64(c.configMgr.GetConfig().Backfill.BatchSize)
	opts := &core.FindOptions{Sort: bson.D{{Key: "_id", Value: 1}}, Limit: batchSize}

	enqueued := 0
	var selector any = bson.D{}
	for {
		docs, err := source.Find(ctx, selector, opts)
		if err != nil {
			return enqueued, fmt.Errorf("failed to read %s from %s: %w", name, from, err)
		}
		for _, doc := range docs {
			err := c.conns.Queue.Enqueue(ctx, &core.BackfillOperation{
				Collection: name,
				Target:     string(to),
				Document:   doc,
			})
			if err != nil {
				return enqueued, fmt.Errorf("failed to enqueue %v: %w", doc["_id"], err)
			}
			enqueued++
		}
		if int64(len(docs)) < batchSize {
			break
		}
		last := docs[len(docs)-1]["_id"]
		selector = bson.D{{Key: "_id", Value: bson.D{{Key: "$gt", Value: last}}}}
	}

	zap.S().Infof("[SWITCH] Enqueued %d documents of %s for copy from %s to %s", enqueued, name, from, to)
	return enqueued, nil
}

// Queue returns the backfill queue.
func (c *ClientImpl) Queue() core.BackfillQueue {
	return c.conns.Queue
}

// Config returns the loaded configuration.
func (c *ClientImpl) Config() *registry.InternalConfig {
	return c.configMgr.GetConfig()
}

// Registry returns the collection registry.
func (c *ClientImpl) Registry() *registry.CollectionRegistry {
	return c.registry
}

// Close closes every connection.
func (c *ClientImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if errs := closeConnections(c.conns); len(errs) > 0 {
		return fmt.Errorf("errors during close: %w", errors.Join(errs...))
	}
	return nil
}

func closeConnections(conns Connections) []error {
	var errs []error
	if conns.Queue != nil {
		if err := conns.Queue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close backfill queue: %w", err))
		}
	}
	if conns.KVStore != nil {
		if err := conns.KVStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close target store: %w", err))
		}
	}
	if conns.MongoClient != nil {
		if err := conns.MongoClient.Disconnect(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("failed to disconnect mongo: %w", err))
		}
	}
	if conns.Pool != nil {
		conns.Pool.Close()
	}
	return errs
}
