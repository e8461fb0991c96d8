package writequeue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/PRicaldone/atelier-sub003/application/ports"
	"github.com/PRicaldone/atelier-sub003/domain/events"
	"github.com/PRicaldone/atelier-sub003/domain/versioning"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Metrics is the observability hook the queue reports into. Nil-safe:
// a queue without metrics simply stays silent.
type Metrics interface {
	ObserveFlush(key string, duration time.Duration, err error)
	SetQueueDepth(depth int)
}

// Options tunes the retry behavior of a flush
type Options struct {
	MaxRetries   int
	RetryBackoff time.Duration
	WriteTimeout time.Duration
}

// DefaultOptions returns the default flush retry policy
func DefaultOptions() Options {
	return Options{
		MaxRetries:   3,
		RetryBackoff: 200 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
}

// pendingWrite is one coalesced write-in-waiting. Only the producer of
// the latest enqueue survives; serialization happens at flush time, so
// whatever state exists then is what gets written.
type pendingWrite struct {
	produce     ports.PayloadProducer
	firstQueued time.Time
	lastQueued  time.Time
	timer       *time.Timer
}

// Queue is the debounced write path between the in-memory stores and
// the snapshot store. Enqueue never blocks and flush failures never
// reach the caller: memory stays authoritative and the next write gets
// another chance.
type Queue struct {
	mu      sync.Mutex
	pending map[string]*pendingWrite
	closed  bool
	flushWG sync.WaitGroup

	store    ports.SnapshotStore
	policy   versioning.SnapshotPolicy
	opts     Options
	breaker  *gobreaker.CircuitBreaker
	eventBus ports.EventPublisher
	metrics  Metrics
	logger   *zap.Logger
}

// NewQueue creates a write queue in front of the given store
func NewQueue(store ports.SnapshotStore, policy versioning.SnapshotPolicy, opts Options, eventBus ports.EventPublisher, metrics Metrics, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}

	q := &Queue{
		pending:  make(map[string]*pendingWrite),
		store:    store,
		policy:   policy,
		opts:     opts,
		eventBus: eventBus,
		metrics:  metrics,
		logger:   logger,
	}

	q.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "snapshot-store",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Snapshot store breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return q
}

var _ ports.WriteScheduler = (*Queue)(nil)

// Enqueue schedules a write of the given logical key. A pending write
// for the same key is superseded: its producer is replaced and its
// quiet period restarts, bounded by the maximum pending age.
func (q *Queue) Enqueue(key string, produce ports.PayloadProducer) {
	if produce == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Warn("Write enqueued after close, dropping",
			zap.String("key", key),
		)
		return
	}

	now := time.Now()
	entry, exists := q.pending[key]
	if !exists {
		entry = &pendingWrite{firstQueued: now}
		q.pending[key] = entry
	}
	entry.produce = produce
	entry.lastQueued = now

	delay := q.policy.QuietPeriod
	if q.policy.MaxPendingAge > 0 {
		if remaining := entry.firstQueued.Add(q.policy.MaxPendingAge).Sub(now); remaining < delay {
			delay = remaining
		}
	}
	if delay < 0 {
		delay = 0
	}

	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.timer = time.AfterFunc(delay, func() { q.flushDue(key) })

	q.reportDepth()
}

// Flush forces every pending write through immediately
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	keys := make([]string, 0, len(q.pending))
	producers := make([]ports.PayloadProducer, 0, len(q.pending))
	for key, entry := range q.pending {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		keys = append(keys, key)
		producers = append(producers, entry.produce)
		delete(q.pending, key)
	}
	q.reportDepth()
	q.mu.Unlock()

	var firstErr error
	for i, key := range keys {
		if err := q.write(ctx, key, producers[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PendingKeys lists keys with writes not yet flushed
func (q *Queue) PendingKeys() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	keys := make([]string, 0, len(q.pending))
	for key := range q.pending {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Close drains the queue and refuses further writes
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	err := q.Flush(ctx)
	q.flushWG.Wait()
	return err
}

// flushDue runs when a debounce timer fires. The policy is re-checked
// under the lock: a timer that lost the race against a newer enqueue
// finds the write not yet due and leaves it to the newer timer.
func (q *Queue) flushDue(key string) {
	q.mu.Lock()
	entry, exists := q.pending[key]
	if !exists {
		q.mu.Unlock()
		return
	}
	if !q.policy.ShouldFlush(entry.firstQueued, entry.lastQueued, time.Now()) {
		q.mu.Unlock()
		return
	}
	produce := entry.produce
	delete(q.pending, key)
	q.reportDepth()
	q.flushWG.Add(1)
	q.mu.Unlock()

	defer q.flushWG.Done()

	ctx, cancel := context.WithTimeout(context.Background(), q.opts.WriteTimeout)
	defer cancel()

	// Errors are already logged and published; the background path has
	// no caller to return them to
	_ = q.write(ctx, key, produce)
}

// write serializes and stores one key, retrying with backoff behind
// the breaker
func (q *Queue) write(ctx context.Context, key string, produce ports.PayloadProducer) error {
	started := time.Now()

	payload, err := produce()
	if err != nil {
		q.observe(key, started, err)
		q.reportFailure(ctx, key, 0, err)
		return err
	}

	attempts := q.opts.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		_, lastErr = q.breaker.Execute(func() (interface{}, error) {
			return nil, q.store.Set(ctx, key, payload)
		})
		if lastErr == nil {
			q.observe(key, started, nil)
			q.publish(ctx, events.NewSnapshotPersisted(key, attempt, time.Now()))
			q.logger.Debug("Snapshot flushed",
				zap.String("key", key),
				zap.Int("attempt", attempt),
				zap.Int("bytes", len(payload)),
			)
			return nil
		}

		// An open breaker fails fast; backing off would only delay the
		// inevitable until the breaker closes again
		if lastErr == gobreaker.ErrOpenState || lastErr == gobreaker.ErrTooManyRequests {
			break
		}
		if attempt < attempts {
			select {
			case <-time.After(q.opts.RetryBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = attempts
			}
		}
	}

	q.observe(key, started, lastErr)
	q.reportFailure(ctx, key, attempts, lastErr)
	return fmt.Errorf("flush %s: %w", key, lastErr)
}

func (q *Queue) reportFailure(ctx context.Context, key string, attempts int, err error) {
	q.logger.Error("Snapshot flush failed",
		zap.String("key", key),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	q.publish(ctx, events.NewSnapshotWriteFailed(key, attempts, err.Error(), time.Now()))
}

func (q *Queue) publish(ctx context.Context, event events.DomainEvent) {
	if q.eventBus == nil {
		return
	}
	if err := q.eventBus.Publish(ctx, event); err != nil {
		q.logger.Warn("Failed to publish snapshot event",
			zap.Error(err),
		)
	}
}

func (q *Queue) observe(key string, started time.Time, err error) {
	if q.metrics == nil {
		return
	}
	q.metrics.ObserveFlush(key, time.Since(started), err)
}

// reportDepth is called with the lock held
func (q *Queue) reportDepth() {
	if q.metrics == nil {
		return
	}
	q.metrics.SetQueueDepth(len(q.pending))
}
