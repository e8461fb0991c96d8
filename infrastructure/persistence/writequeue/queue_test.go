package writequeue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PRicaldone/atelier-sub003/application/ports"
	"github.com/PRicaldone/atelier-sub003/domain/events"
	"github.com/PRicaldone/atelier-sub003/domain/versioning"
	"github.com/PRicaldone/atelier-sub003/infrastructure/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// countingStore wraps the in-memory store and counts writes per key
type countingStore struct {
	*memory.Store
	mu     sync.Mutex
	writes map[string]int
	fail   error
}

func newCountingStore() *countingStore {
	return &countingStore{
		Store:  memory.NewStore(),
		writes: map[string]int{},
	}
}

func (s *countingStore) Set(ctx context.Context, key string, payload []byte) error {
	s.mu.Lock()
	s.writes[key]++
	fail := s.fail
	s.mu.Unlock()

	if fail != nil {
		return fail
	}
	return s.Store.Set(ctx, key, payload)
}

func (s *countingStore) writeCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[key]
}

// capturingBus records published events
type capturingBus struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (b *capturingBus) Publish(ctx context.Context, event events.DomainEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *capturingBus) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, batch...)
	return nil
}

func (b *capturingBus) captured() []events.DomainEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.DomainEvent, len(b.events))
	copy(out, b.events)
	return out
}

func testPolicy(quiet, maxAge time.Duration) versioning.SnapshotPolicy {
	return versioning.SnapshotPolicy{
		QuietPeriod:     quiet,
		MaxPendingAge:   maxAge,
		VerifyChecksums: true,
	}
}

func staticProducer(payload string) ports.PayloadProducer {
	return func() ([]byte, error) { return []byte(payload), nil }
}

func TestQueueCoalescesRapidWrites(t *testing.T) {
	store := newCountingStore()
	queue := NewQueue(store, testPolicy(25*time.Millisecond, time.Second), DefaultOptions(), nil, nil, zap.NewNop())

	queue.Enqueue(ports.KeyCanvasSnapshot, staticProducer("first"))
	queue.Enqueue(ports.KeyCanvasSnapshot, staticProducer("second"))
	queue.Enqueue(ports.KeyCanvasSnapshot, staticProducer("third"))

	assert.Equal(t, []string{ports.KeyCanvasSnapshot}, queue.PendingKeys())

	require.Eventually(t, func() bool {
		return store.writeCount(ports.KeyCanvasSnapshot) > 0
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, store.writeCount(ports.KeyCanvasSnapshot))
	stored, err := store.Get(context.Background(), ports.KeyCanvasSnapshot)
	require.NoError(t, err)
	assert.Equal(t, "third", string(stored))
	assert.Empty(t, queue.PendingKeys())
}

func TestQueueHonorsMaxPendingAge(t *testing.T) {
	store := newCountingStore()
	// A quiet period that never elapses on its own; only the age cap
	// can trigger the flush
	queue := NewQueue(store, testPolicy(time.Hour, 40*time.Millisecond), DefaultOptions(), nil, nil, zap.NewNop())

	queue.Enqueue(ports.KeyEngineSession, staticProducer("session"))

	require.Eventually(t, func() bool {
		return store.writeCount(ports.KeyEngineSession) > 0
	}, time.Second, 10*time.Millisecond)
}

func TestQueueFlushForcesPendingWrites(t *testing.T) {
	store := newCountingStore()
	queue := NewQueue(store, testPolicy(time.Hour, 0), DefaultOptions(), nil, nil, zap.NewNop())

	queue.Enqueue(ports.KeyCanvasSnapshot, staticProducer("canvas"))
	queue.Enqueue(ports.KeyGraphsCollection, staticProducer("graphs"))

	require.NoError(t, queue.Flush(context.Background()))

	assert.Equal(t, 1, store.writeCount(ports.KeyCanvasSnapshot))
	assert.Equal(t, 1, store.writeCount(ports.KeyGraphsCollection))
	assert.Empty(t, queue.PendingKeys())
}

func TestQueueRetriesBeforeGivingUp(t *testing.T) {
	store := newCountingStore()
	store.fail = errors.New("store down")

	bus := &capturingBus{}
	opts := Options{MaxRetries: 2, RetryBackoff: time.Millisecond, WriteTimeout: time.Second}
	queue := NewQueue(store, testPolicy(time.Hour, 0), opts, bus, nil, zap.NewNop())

	queue.Enqueue(ports.KeyCanvasSnapshot, staticProducer("canvas"))
	err := queue.Flush(context.Background())
	require.Error(t, err)

	assert.Equal(t, 3, store.writeCount(ports.KeyCanvasSnapshot))

	captured := bus.captured()
	require.Len(t, captured, 1)
	failure, ok := captured[0].(events.SnapshotWriteFailed)
	require.True(t, ok)
	assert.Equal(t, ports.KeyCanvasSnapshot, failure.Key)
	assert.Equal(t, 3, failure.Attempts)
}

func TestQueuePublishesOnSuccess(t *testing.T) {
	store := newCountingStore()
	bus := &capturingBus{}
	queue := NewQueue(store, testPolicy(time.Hour, 0), DefaultOptions(), bus, nil, zap.NewNop())

	queue.Enqueue(ports.KeyGraphsCollection, staticProducer("graphs"))
	require.NoError(t, queue.Flush(context.Background()))

	captured := bus.captured()
	require.Len(t, captured, 1)
	persisted, ok := captured[0].(events.SnapshotPersisted)
	require.True(t, ok)
	assert.Equal(t, ports.KeyGraphsCollection, persisted.Key)
	assert.Equal(t, 1, persisted.Attempt)
}

func TestQueueSurfacesProducerFailures(t *testing.T) {
	store := newCountingStore()
	queue := NewQueue(store, testPolicy(time.Hour, 0), DefaultOptions(), nil, nil, zap.NewNop())

	queue.Enqueue(ports.KeyCanvasSnapshot, func() ([]byte, error) {
		return nil, errors.New("state gone")
	})

	err := queue.Flush(context.Background())
	require.Error(t, err)
	assert.Zero(t, store.writeCount(ports.KeyCanvasSnapshot))
}

func TestQueueCloseDrainsAndRefuses(t *testing.T) {
	store := newCountingStore()
	queue := NewQueue(store, testPolicy(time.Hour, 0), DefaultOptions(), nil, nil, zap.NewNop())

	queue.Enqueue(ports.KeyCanvasSnapshot, staticProducer("canvas"))
	require.NoError(t, queue.Close(context.Background()))
	assert.Equal(t, 1, store.writeCount(ports.KeyCanvasSnapshot))

	queue.Enqueue(ports.KeyGraphsCollection, staticProducer("late"))
	assert.Empty(t, queue.PendingKeys())
	assert.Zero(t, store.writeCount(ports.KeyGraphsCollection))
}

func TestQueueDepthReporting(t *testing.T) {
	store := newCountingStore()
	metrics := &fakeMetrics{}
	queue := NewQueue(store, testPolicy(time.Hour, 0), DefaultOptions(), nil, metrics, zap.NewNop())

	queue.Enqueue(ports.KeyCanvasSnapshot, staticProducer("canvas"))
	queue.Enqueue(ports.KeyGraphsCollection, staticProducer("graphs"))
	assert.Equal(t, 2, metrics.depth())

	require.NoError(t, queue.Flush(context.Background()))
	assert.Equal(t, 0, metrics.depth())
	assert.Equal(t, 2, metrics.flushes())
}

type fakeMetrics struct {
	mu         sync.Mutex
	queueDepth int
	flushCount int
}

func (m *fakeMetrics) ObserveFlush(key string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushCount++
}

func (m *fakeMetrics) SetQueueDepth(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepth = depth
}

func (m *fakeMetrics) depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queueDepth
}

func (m *fakeMetrics) flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushCount
}
