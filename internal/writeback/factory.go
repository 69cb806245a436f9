package writeback

import (
	"fmt"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/registry"
)

// NewQueue creates the backfill queue selected by cfg.QueueType. kv is only
// used by the redis queue and must then provide ListOperations.
func NewQueue(cfg registry.InternalBackfillConfig, kv core.KVStore) (core.BackfillQueue, error) {
	switch cfg.QueueType {
	case "", "memory":
		return NewMemoryQueue(cfg.QueueBufferSize), nil
	case "redis":
		if kv == nil {
			return nil, fmt.Errorf("redis backfill queue requires a KV store")
		}
		return NewRedisQueue(kv, cfg.QueuePrefix)
	case "kafka":
		k := cfg.KafkaConfig
		return NewKafkaQueue(KafkaQueueConfig{
			Brokers:         k.Brokers,
			Topic:           k.Topic,
			GroupID:         k.GroupID,
			BatchSize:       k.BatchSize,
			BatchTimeout:    k.BatchTimeout,
			WriteTimeout:    k.WriteTimeout,
			ReadTimeout:     k.ReadTimeout,
			RequiredAcks:    k.RequiredAcks,
			MaxMessageBytes: k.MaxMessageBytes,
			MinBytes:        k.MinBytes,
			MaxBytes:        k.MaxBytes,
			MaxWait:         k.MaxWait,
		})
	default:
		return nil, fmt.Errorf("unsupported backfill queue type: %s", cfg.QueueType)
	}
}
