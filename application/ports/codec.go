package ports

import (
	"time"

	"github.com/PRicaldone/atelier-sub003/domain/core/aggregates"
	"github.com/PRicaldone/atelier-sub003/domain/core/entities"
	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
)

// SessionState is the navigation state persisted under KeyEngineSession.
// It is stored separately from the canvas snapshot so that structural
// writes and navigation writes can be coalesced independently.
type SessionState struct {
	RootID     valueobjects.ContainerID
	ActivePath []valueobjects.ContainerID
	SavedAt    time.Time
}

// SnapshotCodec translates domain state to and from snapshot payloads.
// Implementations own the wire format and its schema versioning; callers
// never inspect the payload bytes.
type SnapshotCodec interface {
	EncodeCanvas(canvas *aggregates.Canvas) ([]byte, error)
	DecodeCanvas(payload []byte) ([]*entities.Container, error)
	EncodeGraphs(graphs []*entities.Graph) ([]byte, error)
	DecodeGraphs(payload []byte) ([]*entities.Graph, error)
	EncodeSession(state SessionState) ([]byte, error)
	DecodeSession(payload []byte) (SessionState, error)
}
