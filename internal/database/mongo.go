package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// MongoConfig holds the connection settings of the document store.
type MongoConfig struct {
	URI               string
	Database          string
	MaxPoolSize       uint64
	ConnectionTimeout time.Duration
}

// NewMongoDatabase connects to the document store, pings the primary and
// returns the client together with the configured database.
func NewMongoDatabase(ctx context.Context, cfg MongoConfig) (*mongo.Client, *mongo.Database, error) {
	if cfg.Database == "" {
		return nil, nil, fmt.Errorf("mongo database name is required")
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.ConnectionTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectionTimeout)
		opts.SetServerSelectionTimeout(cfg.ConnectionTimeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	zap.S().Infof("[MONGO] Connected to database %s", cfg.Database)
	return client, client.Database(cfg.Database), nil
}
