package writeback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rzpsarthak13/docbridge/internal/core"
)

// messageWriter is the producing half of *kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// messageReader is the consuming half of *kafka.Reader.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaQueueConfig holds the settings of a KafkaQueue.
type KafkaQueueConfig struct {
	Brokers         []string
	Topic           string
	GroupID         string
	BatchSize       int
	BatchTimeout    time.Duration
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	RequiredAcks    int
	MaxMessageBytes int
	MinBytes        int
	MaxBytes        int
	MaxWait         time.Duration
}

// KafkaQueue implements core.BackfillQueue on a Kafka topic. Messages are
// keyed by collection so one collection's operations stay ordered.
type KafkaQueue struct {
	writer      messageWriter
	reader      messageReader
	topic       string
	groupID     string
	pollTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	size   int
}

// NewKafkaQueue creates the producer and the consumer-group reader.
func NewKafkaQueue(config KafkaQueueConfig) (*KafkaQueue, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if config.GroupID == "" {
		config.GroupID = "docbridge-backfill"
	}

	zap.S().Infof("[KAFKA] Backfill queue on topic %s (brokers %v, group %s)", config.Topic, config.Brokers, config.GroupID)

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		WriteTimeout: config.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
		MaxAttempts:  3,
	}
	if config.MaxMessageBytes > 0 {
		writer.BatchBytes = int64(config.MaxMessageBytes)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     config.Brokers,
		Topic:       config.Topic,
		GroupID:     config.GroupID,
		MinBytes:    config.MinBytes,
		MaxBytes:    config.MaxBytes,
		MaxWait:     config.MaxWait,
		StartOffset: kafka.FirstOffset,
	})

	return newKafkaQueue(writer, reader, config), nil
}

func newKafkaQueue(writer messageWriter, reader messageReader, config KafkaQueueConfig) *KafkaQueue {
	pollTimeout := config.ReadTimeout
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &KafkaQueue{
		writer:      writer,
		reader:      reader,
		topic:       config.Topic,
		groupID:     config.GroupID,
		pollTimeout: pollTimeout,
	}
}

// Enqueue produces the operation synchronously.
func (q *KafkaQueue) Enqueue(ctx context.Context, operation *core.BackfillOperation) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return ErrQueueClosed
	}
	if err := prepare(operation); err != nil {
		return err
	}

	data, err := encodeOperation(operation)
	if err != nil {
		return err
	}
	message := kafka.Message{
		Key:   []byte(operation.Collection),
		Value: data,
		Time:  operation.Timestamp,
		Headers: []kafka.Header{
			{Key: "collection", Value: []byte(operation.Collection)},
			{Key: "target", Value: []byte(operation.Target)},
		},
	}

	start := time.Now()
	if err := q.writer.WriteMessages(ctx, message); err != nil {
		zap.S().Errorf("[KAFKA] Failed to produce operation %s to %s after %v: %v", operation.ID, q.topic, time.Since(start), err)
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	q.mu.Lock()
	q.size++
	q.mu.Unlock()
	zap.S().Debugf("[KAFKA] Produced operation %s for %s to %s in %v", operation.ID, operation.Collection, q.topic, time.Since(start))
	return nil
}

// Dequeue consumes up to batchSize operations. A message's offset is
// committed once it has been decoded. Waiting for a message is bounded by
// the read timeout, so an idle topic yields an empty batch.
func (q *KafkaQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.BackfillOperation, error) {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return nil, ErrQueueClosed
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	operations := make([]*core.BackfillOperation, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		fetchCtx, cancel := context.WithTimeout(ctx, q.pollTimeout)
		message, err := q.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				break
			}
			zap.S().Errorf("[KAFKA] Failed to read from %s: %v", q.topic, err)
			break
		}

		op, err := decodeOperation(message.Value)
		if err != nil {
			zap.S().Errorf("[KAFKA] Skipping message at partition %d offset %d: %v", message.Partition, message.Offset, err)
		} else {
			operations = append(operations, op)
		}

		if err := q.reader.CommitMessages(ctx, message); err != nil {
			zap.S().Warnf("[KAFKA] Failed to commit partition %d offset %d: %v", message.Partition, message.Offset, err)
		}
	}

	if len(operations) > 0 {
		zap.S().Debugf("[KAFKA] Consumed %d operations from %s (group %s)", len(operations), q.topic, q.groupID)
		q.mu.Lock()
		q.size = max(q.size-len(operations), 0)
		q.mu.Unlock()
	}
	return operations, nil
}

// Size returns the number of operations produced and not yet consumed by
// this process. Kafka does not report an exact backlog.
func (q *KafkaQueue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.size
}

// Close closes the producer and the consumer.
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true

	writerErr := q.writer.Close()
	if writerErr != nil {
		zap.S().Errorf("[KAFKA] Failed to close writer: %v", writerErr)
	}
	if err := q.reader.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka reader: %w", err)
	}
	return writerErr
}

var _ core.BackfillQueue = (*KafkaQueue)(nil)
