package docbridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rzpsarthak13/docbridge/internal/core"
	"github.com/rzpsarthak13/docbridge/internal/database"
)

var backfillTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "docbridge",
		Name:      "backfill_operations_total",
		Help:      "Backfill operations applied by the drainer, by result",
	},
	[]string{"collection", "target", "result"},
)

// CollectionResolver returns one backing side of a collection.
// *client.ClientImpl implements it.
type CollectionResolver interface {
	TargetCollection(name, target string) (core.Collection, error)
}

// Drainer copies backfill operations from the queue into their target
// store at a controlled rate so the target is not overwhelmed.
type Drainer struct {
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	queue    core.BackfillQueue
	resolver CollectionResolver
	config   DrainerConfig
	limiter  *rate.Limiter

	copied     atomic.Int64
	duplicates atomic.Int64
	retried    atomic.Int64
	dropped    atomic.Int64
}

// DrainerConfig contains configuration for the drainer.
type DrainerConfig struct {
	// DrainRate is the maximum number of inserts per second.
	DrainRate int

	// BatchSize is how many operations to dequeue at once.
	BatchSize int

	// PollInterval is how often to check for new items when the queue is empty.
	PollInterval time.Duration

	// MaxRetries is the number of retries before an operation is dropped.
	MaxRetries int

	// RetryBackoff is the base of the exponential backoff between retries,
	// capped at RetryBackoffMax.
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
}

// DrainerStats counts what the drainer did with the operations it dequeued.
type DrainerStats struct {
	Copied     int64 `json:"copied"`
	Duplicates int64 `json:"duplicates"`
	Retried    int64 `json:"retried"`
	Dropped    int64 `json:"dropped"`
}

// DefaultDrainerConfig returns sensible defaults for the drainer.
func DefaultDrainerConfig() DrainerConfig {
	return DrainerConfig{
		DrainRate:       50,
		BatchSize:       1,
		PollInterval:    100 * time.Millisecond,
		MaxRetries:      3,
		RetryBackoff:    1 * time.Second,
		RetryBackoffMax: 30 * time.Second,
	}
}

// NewDrainer creates a drainer over queue. Zero config values are replaced
// by their defaults.
func NewDrainer(queue core.BackfillQueue, resolver CollectionResolver, config DrainerConfig) *Drainer {
	defaults := DefaultDrainerConfig()
	if config.DrainRate <= 0 {
		config.DrainRate = defaults.DrainRate
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryBackoffMax <= 0 {
		config.RetryBackoffMax = defaults.RetryBackoffMax
	}

	return &Drainer{
		queue:    queue,
		resolver: resolver,
		config:   config,
		limiter:  rate.NewLimiter(rate.Limit(config.DrainRate), 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the drainer goroutine. Call Stop to shut it down.
func (d *Drainer) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.mu.Unlock()

	go d.run(ctx)
	zap.S().Infof("[DRAINER] Started with drain rate: %d ops/sec", d.config.DrainRate)
	return nil
}

// Stop stops the drainer and waits for the operation in flight.
func (d *Drainer) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	close(d.stopCh)
	<-d.doneCh
	zap.S().Infof("[DRAINER] Stopped (%+v)", d.Stats())
	return nil
}

// IsRunning returns whether the drainer goroutine is running.
func (d *Drainer) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// QueueSize returns the current size of the backfill queue.
func (d *Drainer) QueueSize() int {
	if d.queue == nil {
		return 0
	}
	return d.queue.Size()
}

// GetConfig returns the drainer configuration.
func (d *Drainer) GetConfig() DrainerConfig {
	return d.config
}

// Stats returns the counters since the drainer was created.
func (d *Drainer) Stats() DrainerStats {
	return DrainerStats{
		Copied:     d.copied.Load(),
		Duplicates: d.duplicates.Load(),
		Retried:    d.retried.Load(),
		Dropped:    d.dropped.Load(),
	}
}

// Drain applies queued operations until the queue is empty and returns how
// many were dequeued. Retried operations are dequeued again.
func (d *Drainer) Drain(ctx context.Context) (int, error) {
	processed := 0
	for {
		operations, err := d.queue.Dequeue(ctx, d.config.BatchSize)
		if err != nil {
			return processed, err
		}
		if len(operations) == 0 {
			return processed, nil
		}
		for _, op := range operations {
			if op == nil {
				continue
			}
			if err := d.limiter.Wait(ctx); err != nil {
				return processed, err
			}
			if err := d.apply(ctx, op); err != nil {
				return processed, err
			}
			processed++
		}
	}
}

func (d *Drainer) run(ctx context.Context) {
	defer close(d.doneCh)

	for {
		select {
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if d.queue.Size() == 0 {
			select {
			case <-d.stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(d.config.PollInterval):
			}
			continue
		}

		operations, err := d.queue.Dequeue(ctx, d.config.BatchSize)
		if err != nil {
			zap.S().Errorf("[DRAINER] Dequeue error: %v", err)
			continue
		}
		for _, op := range operations {
			if op == nil {
				continue
			}
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			if err := d.apply(ctx, op); err != nil {
				zap.S().Errorf("[DRAINER:%s] %v", op.Collection, err)
			}
		}
	}
}

// apply inserts one document into its target store. A duplicate key means
// the document is already there. Other failures are retried through the
// queue with exponential backoff. The returned error is only set when the
// operation could not be requeued.
func (d *Drainer) apply(ctx context.Context, op *core.BackfillOperation) error {
	coll, err := d.resolver.TargetCollection(op.Collection, op.Target)
	if err != nil {
		d.drop(op, err)
		return nil
	}

	start := time.Now()
	_, err = coll.RawInsert(ctx, op.Document)
	switch {
	case err == nil:
		d.copied.Add(1)
		backfillTotal.WithLabelValues(op.Collection, op.Target, "copied").Inc()
		zap.S().Debugf("[DRAINER:%s] Copied %v into %s (duration: %v)", op.Collection, op.Document["_id"], op.Target, time.Since(start))
		return nil
	case database.IsDuplicateKey(err):
		d.duplicates.Add(1)
		backfillTotal.WithLabelValues(op.Collection, op.Target, "duplicate").Inc()
		zap.S().Debugf("[DRAINER:%s] %v already in %s", op.Collection, op.Document["_id"], op.Target)
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return d.requeue(context.Background(), op, err)
	}

	if op.RetryCount >= d.config.MaxRetries {
		d.drop(op, err)
		return nil
	}
	op.RetryCount++
	d.retried.Add(1)
	backfillTotal.WithLabelValues(op.Collection, op.Target, "retried").Inc()

	wait := retryBackoff(d.config.RetryBackoff, d.config.RetryBackoffMax, op.RetryCount)
	zap.S().Warnf("[DRAINER:%s] Insert of %v into %s failed (attempt %d, retrying in %v): %v",
		op.Collection, op.Document["_id"], op.Target, op.RetryCount, wait, err)

	select {
	case <-time.After(wait):
	case <-ctx.Done():
	case <-d.stopCh:
	}
	return d.requeue(context.Background(), op, err)
}

func (d *Drainer) requeue(ctx context.Context, op *core.BackfillOperation, cause error) error {
	if err := d.queue.Enqueue(ctx, op); err != nil {
		d.drop(op, cause)
		return err
	}
	return nil
}

func (d *Drainer) drop(op *core.BackfillOperation, cause error) {
	d.dropped.Add(1)
	backfillTotal.WithLabelValues(op.Collection, op.Target, "dropped").Inc()
	zap.S().Errorf("[DRAINER:%s] Dropped %v for %s after %d retries: %v",
		op.Collection, op.Document["_id"], op.Target, op.RetryCount, cause)
}

// retryBackoff returns base*2^(attempt-1), capped at limit.
func retryBackoff(base, limit time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt <= 0 {
		return 0
	}
	wait := base
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= limit {
			return limit
		}
	}
	if wait > limit {
		return limit
	}
	return wait
}
