// Package docbridge routes the reads and writes of document collections
// between MongoDB and Postgres. Each collection reads from one store and
// writes to one or both, and can be switched at runtime while a drainer
// copies existing documents across.
package docbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rzpsarthak13/docbridge/internal/client"
	"github.com/rzpsarthak13/docbridge/internal/collection"
	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/registry"
)

// Document and query types shared with the internal packages.
type (
	Document                = core.Document
	FindOptions             = core.FindOptions
	FindOneAndUpdateOptions = core.FindOneAndUpdateOptions
	BulkOperation           = core.BulkOperation
	BulkWriteResult         = core.BulkWriteResult
	Collection              = core.Collection
)

// Targets.
const (
	TargetMongo = "mongo"
	TargetPg    = "pg"
	TargetBoth  = "both"
)

// Client is the main interface for interacting with docbridge.
//
// Typical usage:
//
//	client, _ := docbridge.NewClient(ctx, config)
//	defer client.Close()
//
//	client.CreateTables(ctx)
//	client.Start(ctx) // start the backfill drainer
//	defer client.Stop()
//
//	posts, _ := client.Collection("posts")
//	posts.Find(ctx, bson.M{"status": "draft"}, nil)
type Client interface {
	// Collection returns the routing collection of name. Collections missing
	// from the configuration are registered on first use and have no
	// Postgres side.
	Collection(name string) (Collection, error)

	// Collections returns the registered collection names.
	Collections() []string

	// SetTargets switches where a collection reads from ("mongo" or "pg")
	// and writes to ("mongo", "pg" or "both"). With a target store the
	// targets are persisted.
	SetTargets(ctx context.Context, name, read, write string) error

	// Targets returns the current read and write targets of a collection.
	Targets(name string) (read, write string, err error)

	// RestoreTargets applies the persisted targets to every registered
	// collection and returns how many were restored.
	RestoreTargets(ctx context.Context) (int, error)

	// CreateTables creates the table and indexes of every collection with a
	// schema.
	CreateTables(ctx context.Context) error

	// Backfill enqueues every document of the from side ("mongo" or "pg")
	// of a collection for copy into the other side. The drainer applies
	// the copies.
	Backfill(ctx context.Context, name, from string) (int, error)

	// Start starts the background drainer. It is non-blocking.
	Start(ctx context.Context) error

	// Stop stops the background drainer and waits for the operation in flight.
	Stop() error

	// IsRunning returns whether the drainer is running.
	IsRunning() bool

	// Drainer returns the backfill drainer.
	Drainer() *Drainer

	// Close stops the drainer and closes every connection.
	Close() error
}

// configProvider implements client.ConfigProvider to provide config as YAML without import cycles.
type configProvider struct {
	config *Config
}

func (cp *configProvider) GetYAML() ([]byte, error) {
	return yaml.Marshal(cp.config)
}

// clientWrapper wraps the internal client implementation to provide the public Client interface.
type clientWrapper struct {
	mu      sync.RWMutex
	impl    *client.ClientImpl
	drainer *Drainer
}

// NewClient connects to both stores and the target store, registers the
// configured collections and restores their persisted targets.
func NewClient(ctx context.Context, config *Config) (Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	impl, err := client.NewClientImpl(ctx, &configProvider{config: config})
	if err != nil {
		return nil, err
	}

	cw := newClientWrapper(impl)
	if _, err := impl.RestoreTargets(ctx); err != nil && !errors.Is(err, client.ErrNoTargetStore) {
		impl.Close()
		return nil, fmt.Errorf("failed to restore targets: %w", err)
	}
	return cw, nil
}

func newClientWrapper(impl *client.ClientImpl) *clientWrapper {
	backfill := impl.Config().Backfill
	drainerConfig := DrainerConfig{
		DrainRate:       backfill.DrainRate,
		BatchSize:       1,
		MaxRetries:      backfill.MaxRetries,
		RetryBackoff:    backfill.RetryBackoffBase,
		RetryBackoffMax: backfill.RetryBackoffMax,
	}
	return &clientWrapper{
		impl:    impl,
		drainer: NewDrainer(impl.Queue(), impl, drainerConfig),
	}
}

func (cw *clientWrapper) Collection(name string) (Collection, error) {
	sc, err := cw.impl.Collection(name)
	if err != nil {
		return nil, err
	}
	return sc, nil
}

func (cw *clientWrapper) Collections() []string {
	return cw.impl.Collections()
}

func (cw *clientWrapper) SetTargets(ctx context.Context, name, read, write string) error {
	readTarget, err := collection.ParseReadTarget(read)
	if err != nil {
		return err
	}
	writeTarget, err := collection.ParseWriteTarget(write)
	if err != nil {
		return err
	}
	return cw.impl.SetTargets(ctx, name, registry.Targets{Read: readTarget, Write: writeTarget})
}

func (cw *clientWrapper) Targets(name string) (string, string, error) {
	targets, err := cw.impl.Targets(name)
	if err != nil {
		return "", "", err
	}
	return string(targets.Read), string(targets.Write), nil
}

func (cw *clientWrapper) RestoreTargets(ctx context.Context) (int, error) {
	return cw.impl.RestoreTargets(ctx)
}

func (cw *clientWrapper) CreateTables(ctx context.Context) error {
	return cw.impl.CreateTables(ctx)
}

func (cw *clientWrapper) Backfill(ctx context.Context, name, from string) (int, error) {
	source, err := collection.ParseReadTarget(from)
	if err != nil {
		return 0, err
	}
	return cw.impl.Backfill(ctx, name, source)
}

func (cw *clientWrapper) Start(ctx context.Context) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if err := cw.drainer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start drainer: %w", err)
	}
	return nil
}

func (cw *clientWrapper) Stop() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if err := cw.drainer.Stop(); err != nil {
		return fmt.Errorf("failed to stop drainer: %w", err)
	}
	return nil
}

func (cw *clientWrapper) IsRunning() bool {
	return cw.drainer.IsRunning()
}

func (cw *clientWrapper) Drainer() *Drainer {
	return cw.drainer
}

func (cw *clientWrapper) Close() error {
	if err := cw.Stop(); err != nil {
		zap.S().Warnf("Error stopping drainer: %v", err)
	}
	return cw.impl.Close()
}
