package ports

import (
	"context"
	"errors"
)

// Logical keys addressing the fixed persistence surface. The engine
// never invents keys at runtime; everything durable lives under one of
// these three.
const (
	KeyCanvasSnapshot   = "canvas:snapshot"
	KeyGraphsCollection = "graphs:collection"
	KeyEngineSession    = "engine:session"
)

// ErrKeyNotFound is returned by SnapshotStore.Get for keys that have
// never been written. A fresh workspace starts from this state.
var ErrKeyNotFound = errors.New("snapshot key not found")

// SnapshotStore is the persistence collaborator: a get/set key-value
// interface over serialized payloads. Implementations must return
// ErrKeyNotFound for keys that do not exist.
type SnapshotStore interface {
	// Get retrieves the payload stored under a logical key
	Get(ctx context.Context, key string) ([]byte, error)

	// Set durably stores a payload under a logical key
	Set(ctx context.Context, key string, payload []byte) error

	// Delete removes a logical key
	Delete(ctx context.Context, key string) error

	// Ping reports whether the store is reachable
	Ping(ctx context.Context) error

	// Close releases store resources
	Close() error
}

// PayloadProducer builds the bytes for a pending write when the queue
// flushes it. Deferring serialization to flush time is what makes
// coalescing last-write-wins: only the state at flush is captured.
type PayloadProducer func() ([]byte, error)

// WriteScheduler is the debounced write queue in front of the
// SnapshotStore. Enqueue never blocks; a newer enqueue for the same
// key supersedes the older pending one.
type WriteScheduler interface {
	// Enqueue schedules a write of the given logical key
	Enqueue(key string, produce PayloadProducer)

	// Flush forces every pending write through immediately
	Flush(ctx context.Context) error

	// PendingKeys lists keys with writes not yet flushed
	PendingKeys() []string
}
