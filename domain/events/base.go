package events

import (
	"time"

	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// Container Events

// ContainerCreated is raised when a new container joins the hierarchy
type ContainerCreated struct {
	BaseEvent
	ContainerID  valueobjects.ContainerID `json:"container_id"`
	Name         string                   `json:"name"`
	ParentID     string                   `json:"parent_id,omitempty"`
	BoundGraphID valueobjects.GraphID     `json:"bound_graph_id"`
	Depth        int                      `json:"depth"`
}

// NewContainerCreated creates a ContainerCreated event
func NewContainerCreated(containerID valueobjects.ContainerID, name, parentID string, boundGraphID valueobjects.GraphID, depth int, timestamp time.Time) ContainerCreated {
	return ContainerCreated{
		BaseEvent: BaseEvent{
			AggregateID: containerID.String(),
			EventType:   "container.created",
			Timestamp:   timestamp,
			Version:     1,
		},
		ContainerID:  containerID,
		Name:         name,
		ParentID:     parentID,
		BoundGraphID: boundGraphID,
		Depth:        depth,
	}
}

// ContainerDeleted is raised when a container and its subtree are removed
type ContainerDeleted struct {
	BaseEvent
	ContainerID    valueobjects.ContainerID `json:"container_id"`
	CascadedIDs    []string                 `json:"cascaded_ids"`
	CascadedGraphs []string                 `json:"cascaded_graphs"`
}

// NewContainerDeleted creates a ContainerDeleted event
func NewContainerDeleted(containerID valueobjects.ContainerID, cascadedIDs, cascadedGraphs []string, timestamp time.Time) ContainerDeleted {
	return ContainerDeleted{
		BaseEvent: BaseEvent{
			AggregateID: containerID.String(),
			EventType:   "container.deleted",
			Timestamp:   timestamp,
			Version:     1,
		},
		ContainerID:    containerID,
		CascadedIDs:    cascadedIDs,
		CascadedGraphs: cascadedGraphs,
	}
}

// Canvas Session Events

// LevelEntered is raised when navigation descends into a container
type LevelEntered struct {
	BaseEvent
	ContainerID valueobjects.ContainerID `json:"container_id"`
	Depth       int                      `json:"depth"`
	Path        []string                 `json:"path"`
}

// NewLevelEntered creates a LevelEntered event
func NewLevelEntered(containerID valueobjects.ContainerID, depth int, path []string, timestamp time.Time) LevelEntered {
	return LevelEntered{
		BaseEvent: BaseEvent{
			AggregateID: containerID.String(),
			EventType:   "canvas.level_entered",
			Timestamp:   timestamp,
			Version:     1,
		},
		ContainerID: containerID,
		Depth:       depth,
		Path:        path,
	}
}

// LevelExited is raised when navigation returns to the parent level
type LevelExited struct {
	BaseEvent
	ContainerID valueobjects.ContainerID `json:"container_id"`
	PreviousID  string                   `json:"previous_id"`
}

// NewLevelExited creates a LevelExited event
func NewLevelExited(containerID valueobjects.ContainerID, previousID string, timestamp time.Time) LevelExited {
	return LevelExited{
		BaseEvent: BaseEvent{
			AggregateID: containerID.String(),
			EventType:   "canvas.level_exited",
			Timestamp:   timestamp,
			Version:     1,
		},
		ContainerID: containerID,
		PreviousID:  previousID,
	}
}

// LevelSaved is raised when the active level's elements are captured
type LevelSaved struct {
	BaseEvent
	ContainerID  valueobjects.ContainerID `json:"container_id"`
	ElementCount int                      `json:"element_count"`
}

// NewLevelSaved creates a LevelSaved event
func NewLevelSaved(containerID valueobjects.ContainerID, elementCount int, timestamp time.Time) LevelSaved {
	return LevelSaved{
		BaseEvent: BaseEvent{
			AggregateID: containerID.String(),
			EventType:   "canvas.level_saved",
			Timestamp:   timestamp,
			Version:     1,
		},
		ContainerID:  containerID,
		ElementCount: elementCount,
	}
}

// Graph Events

// GraphCreated is raised when a new graph is registered
type GraphCreated struct {
	BaseEvent
	GraphID    valueobjects.GraphID `json:"graph_id"`
	Name       string               `json:"name"`
	Scope      string               `json:"scope"`
	Generation int                  `json:"generation"`
}

// NewGraphCreated creates a GraphCreated event
func NewGraphCreated(graphID valueobjects.GraphID, name, scope string, generation int, timestamp time.Time) GraphCreated {
	return GraphCreated{
		BaseEvent: BaseEvent{
			AggregateID: graphID.String(),
			EventType:   "graph.created",
			Timestamp:   timestamp,
			Version:     1,
		},
		GraphID:    graphID,
		Name:       name,
		Scope:      scope,
		Generation: generation,
	}
}

// GraphUpdated is raised when graph content or metadata changes
type GraphUpdated struct {
	BaseEvent
	GraphID   valueobjects.GraphID `json:"graph_id"`
	NodeCount int                  `json:"node_count"`
}

// NewGraphUpdated creates a GraphUpdated event
func NewGraphUpdated(graphID valueobjects.GraphID, nodeCount int, timestamp time.Time) GraphUpdated {
	return GraphUpdated{
		BaseEvent: BaseEvent{
			AggregateID: graphID.String(),
			EventType:   "graph.updated",
			Timestamp:   timestamp,
			Version:     1,
		},
		GraphID:   graphID,
		NodeCount: nodeCount,
	}
}

// GraphRemoved is raised when a graph leaves the collection
type GraphRemoved struct {
	BaseEvent
	GraphID valueobjects.GraphID `json:"graph_id"`
	Reason  string               `json:"reason"`
}

// NewGraphRemoved creates a GraphRemoved event
func NewGraphRemoved(graphID valueobjects.GraphID, reason string, timestamp time.Time) GraphRemoved {
	return GraphRemoved{
		BaseEvent: BaseEvent{
			AggregateID: graphID.String(),
			EventType:   "graph.removed",
			Timestamp:   timestamp,
			Version:     1,
		},
		GraphID: graphID,
		Reason:  reason,
	}
}

// Promotion Events

// ElementsPromoted is raised when nodes are promoted into a container.
// Scope fields carry the scope kinds only, so consumers can aggregate
// without touching entity IDs.
type ElementsPromoted struct {
	BaseEvent
	SourceGraphID     valueobjects.GraphID     `json:"source_graph_id"`
	SourceScope       string                   `json:"source_scope"`
	TargetContainerID valueobjects.ContainerID `json:"target_container_id"`
	TargetScope       string                   `json:"target_scope"`
	TargetGraphID     valueobjects.GraphID     `json:"target_graph_id"`
	PromotedCount     int                      `json:"promoted_count"`
	ContainerCreated  bool                     `json:"container_created"`
	Elapsed           time.Duration            `json:"elapsed"`
}

// NewElementsPromoted creates an ElementsPromoted event
func NewElementsPromoted(sourceGraphID valueobjects.GraphID, sourceScope string, targetContainerID valueobjects.ContainerID, targetScope string, targetGraphID valueobjects.GraphID, promotedCount int, containerCreated bool, elapsed time.Duration, timestamp time.Time) ElementsPromoted {
	return ElementsPromoted{
		BaseEvent: BaseEvent{
			AggregateID: targetContainerID.String(),
			EventType:   "promotion.completed",
			Timestamp:   timestamp,
			Version:     1,
		},
		SourceGraphID:     sourceGraphID,
		SourceScope:       sourceScope,
		TargetContainerID: targetContainerID,
		TargetScope:       targetScope,
		TargetGraphID:     targetGraphID,
		PromotedCount:     promotedCount,
		ContainerCreated:  containerCreated,
		Elapsed:           elapsed,
	}
}

// ScopePromoted is raised when a freestyle container or graph is
// reclassified into a project
type ScopePromoted struct {
	BaseEvent
	EntityID   string                 `json:"entity_id"`
	EntityKind string                 `json:"entity_kind"`
	ProjectID  valueobjects.ProjectID `json:"project_id"`
}

// NewScopePromoted creates a ScopePromoted event
func NewScopePromoted(entityID, entityKind string, projectID valueobjects.ProjectID, timestamp time.Time) ScopePromoted {
	return ScopePromoted{
		BaseEvent: BaseEvent{
			AggregateID: entityID,
			EventType:   "promotion.scope_promoted",
			Timestamp:   timestamp,
			Version:     1,
		},
		EntityID:   entityID,
		EntityKind: entityKind,
		ProjectID:  projectID,
	}
}

// LegacyGraphsMigrated is raised after a legacy collection sweep
type LegacyGraphsMigrated struct {
	BaseEvent
	MigratedCount int `json:"migrated_count"`
	SkippedCount  int `json:"skipped_count"`
}

// NewLegacyGraphsMigrated creates a LegacyGraphsMigrated event
func NewLegacyGraphsMigrated(migratedCount, skippedCount int, timestamp time.Time) LegacyGraphsMigrated {
	return LegacyGraphsMigrated{
		BaseEvent: BaseEvent{
			AggregateID: "graphs",
			EventType:   "promotion.legacy_migrated",
			Timestamp:   timestamp,
			Version:     1,
		},
		MigratedCount: migratedCount,
		SkippedCount:  skippedCount,
	}
}

// Integrity Events

// IntegrityValidated is raised after a consistency check completes
type IntegrityValidated struct {
	BaseEvent
	Healthy              bool `json:"healthy"`
	OrphanedContainers   int  `json:"orphaned_containers"`
	OrphanedGraphs       int  `json:"orphaned_graphs"`
	InvalidFlows         int  `json:"invalid_flows"`
	GenerationMismatches int  `json:"generation_mismatches"`
}

// NewIntegrityValidated creates an IntegrityValidated event
func NewIntegrityValidated(healthy bool, orphanedContainers, orphanedGraphs, invalidFlows, generationMismatches int, timestamp time.Time) IntegrityValidated {
	return IntegrityValidated{
		BaseEvent: BaseEvent{
			AggregateID: "engine",
			EventType:   "integrity.validated",
			Timestamp:   timestamp,
			Version:     1,
		},
		Healthy:              healthy,
		OrphanedContainers:   orphanedContainers,
		OrphanedGraphs:       orphanedGraphs,
		InvalidFlows:         invalidFlows,
		GenerationMismatches: generationMismatches,
	}
}

// IntegrityRepaired is raised after an auto-repair pass completes
type IntegrityRepaired struct {
	BaseEvent
	ContainersHealed int  `json:"containers_healed"`
	GraphsRemoved    int  `json:"graphs_removed"`
	GenerationsReset int  `json:"generations_reset"`
	Healthy          bool `json:"healthy"`
}

// NewIntegrityRepaired creates an IntegrityRepaired event
func NewIntegrityRepaired(containersHealed, graphsRemoved, generationsReset int, healthy bool, timestamp time.Time) IntegrityRepaired {
	return IntegrityRepaired{
		BaseEvent: BaseEvent{
			AggregateID: "engine",
			EventType:   "integrity.repaired",
			Timestamp:   timestamp,
			Version:     1,
		},
		ContainersHealed: containersHealed,
		GraphsRemoved:    graphsRemoved,
		GenerationsReset: generationsReset,
		Healthy:          healthy,
	}
}

// Persistence Events

// SnapshotPersisted is raised when a queued write reaches the store
type SnapshotPersisted struct {
	BaseEvent
	Key     string `json:"key"`
	Attempt int    `json:"attempt"`
}

// NewSnapshotPersisted creates a SnapshotPersisted event
func NewSnapshotPersisted(key string, attempt int, timestamp time.Time) SnapshotPersisted {
	return SnapshotPersisted{
		BaseEvent: BaseEvent{
			AggregateID: key,
			EventType:   "persistence.snapshot_written",
			Timestamp:   timestamp,
			Version:     1,
		},
		Key:     key,
		Attempt: attempt,
	}
}

// SnapshotWriteFailed is raised when a queued write exhausts its retries
type SnapshotWriteFailed struct {
	BaseEvent
	Key      string `json:"key"`
	Attempts int    `json:"attempts"`
	Reason   string `json:"reason"`
}

// NewSnapshotWriteFailed creates a SnapshotWriteFailed event
func NewSnapshotWriteFailed(key string, attempts int, reason string, timestamp time.Time) SnapshotWriteFailed {
	return SnapshotWriteFailed{
		BaseEvent: BaseEvent{
			AggregateID: key,
			EventType:   "persistence.write_failed",
			Timestamp:   timestamp,
			Version:     1,
		},
		Key:      key,
		Attempts: attempts,
		Reason:   reason,
	}
}
