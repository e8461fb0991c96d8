package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/PRicaldone/atelier-sub003/application/ports"
	"github.com/PRicaldone/atelier-sub003/domain/config"
	"github.com/PRicaldone/atelier-sub003/domain/core/entities"
	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
	"github.com/PRicaldone/atelier-sub003/domain/events"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
	"go.uber.org/zap"
)

// GraphStore manages the flat workspace graph collection. Graphs are held
// in memory as the authoritative state; snapshots are scheduled on the
// write queue after each mutation and never block the caller.
//
// Lock order across services is containers before graphs. GraphStore
// methods only take the graph lock, so any composite operation that also
// holds the container lock must acquire it first.
type GraphStore struct {
	mu          sync.RWMutex
	graphs      map[valueobjects.GraphID]*entities.Graph
	byContainer map[valueobjects.ContainerID]valueobjects.GraphID

	cfg       *config.DomainConfig
	codec     ports.SnapshotCodec
	scheduler ports.WriteScheduler
	eventBus  ports.EventPublisher
	logger    *zap.Logger
}

// UpdateGraphRequest is a partial update; nil fields are left untouched.
type UpdateGraphRequest struct {
	Name  *string
	Nodes *[]entities.GraphNode
}

// NewGraphStore creates a graph store service
func NewGraphStore(
	cfg *config.DomainConfig,
	codec ports.SnapshotCodec,
	scheduler ports.WriteScheduler,
	eventBus ports.EventPublisher,
	logger *zap.Logger,
) *GraphStore {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &GraphStore{
		graphs:      make(map[valueobjects.GraphID]*entities.Graph),
		byContainer: make(map[valueobjects.ContainerID]valueobjects.GraphID),
		cfg:         cfg,
		codec:       codec,
		scheduler:   scheduler,
		eventBus:    eventBus,
		logger:      logger,
	}
}

// ReloadRules swaps the domain rules. The swap waits for in-flight
// operations, so each operation runs against one consistent rule set.
func (s *GraphStore) ReloadRules(cfg *config.DomainConfig) {
	if cfg == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// Restore replaces the collection with graphs loaded from a snapshot.
// No events are raised and no writes are scheduled.
func (s *GraphStore) Restore(graphs []*entities.Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.graphs = make(map[valueobjects.GraphID]*entities.Graph, len(graphs))
	s.byContainer = make(map[valueobjects.ContainerID]valueobjects.GraphID, len(graphs))

	for _, graph := range graphs {
		if graph == nil {
			continue
		}
		s.indexLocked(graph)
		graph.MarkEventsAsCommitted()
	}

	s.logger.Info("Graph collection restored",
		zap.Int("graphCount", len(s.graphs)),
	)
}

// EnsureGeneralGraph creates the reserved general graph if it is missing.
// Safe to call repeatedly; the general graph is a singleton for the life
// of the workspace.
func (s *GraphStore) EnsureGeneralGraph(ctx context.Context) *entities.Graph {
	s.mu.Lock()
	if existing, ok := s.graphs[valueobjects.GeneralGraphID()]; ok {
		s.mu.Unlock()
		return existing
	}

	graph := entities.NewGeneralGraph(s.cfg)
	s.indexLocked(graph)
	batch := s.drainLocked(graph)
	s.mu.Unlock()

	s.logger.Info("General graph created",
		zap.String("graphID", graph.ID().String()),
	)

	s.publish(ctx, batch)
	s.enqueueSnapshot()
	return graph
}

// CreateFreestyleGraph creates an unscoped graph
func (s *GraphStore) CreateFreestyleGraph(ctx context.Context, name string) (*entities.Graph, error) {
	graph, err := entities.NewFreestyleGraph(name, s.cfg)
	if err != nil {
		return nil, err
	}
	return s.insert(ctx, graph)
}

// CreateProjectGraph creates a graph tied to a project
func (s *GraphStore) CreateProjectGraph(ctx context.Context, name, projectID string) (*entities.Graph, error) {
	if projectID == "" {
		return nil, pkgerrors.NewValidationError("project ID is required for project graphs")
	}

	pid, err := valueobjects.NewProjectIDFromString(projectID)
	if err != nil {
		return nil, err
	}

	graph, err := entities.NewProjectGraph(name, pid, s.cfg)
	if err != nil {
		return nil, err
	}
	return s.insert(ctx, graph)
}

// CreateContainerBoundGraph creates the graph paired with a container.
// If the container already has one, the existing graph is returned and a
// warning is logged; duplicate requests are not an error.
func (s *GraphStore) CreateContainerBoundGraph(ctx context.Context, name string, containerID valueobjects.ContainerID, generation int) (*entities.Graph, error) {
	if containerID.IsZero() {
		return nil, pkgerrors.NewValidationError("container ID is required for container-bound graphs")
	}

	s.mu.Lock()
	if graphID, bound := s.byContainer[containerID]; bound {
		if existing, ok := s.graphs[graphID]; ok {
			s.mu.Unlock()
			s.logger.Warn("Container already has a bound graph",
				zap.String("containerID", containerID.String()),
				zap.String("graphID", graphID.String()),
			)
			return existing, nil
		}
		// Stale index entry, the graph itself is gone; fall through and
		// create a replacement
		delete(s.byContainer, containerID)
	}

	graph, err := entities.NewContainerBoundGraph(name, containerID, generation, s.cfg)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	s.indexLocked(graph)
	batch := s.drainLocked(graph)
	s.mu.Unlock()

	s.logger.Debug("Container-bound graph created",
		zap.String("graphID", graph.ID().String()),
		zap.String("containerID", containerID.String()),
		zap.Int("generation", generation),
	)

	s.publish(ctx, batch)
	s.enqueueSnapshot()
	return graph, nil
}

// Get retrieves a graph by ID
func (s *GraphStore) Get(ctx context.Context, id string) (*entities.Graph, error) {
	graphID, err := valueobjects.NewGraphIDFromString(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(graphID)
}

// GetByContainer retrieves the graph bound to a container
func (s *GraphStore) GetByContainer(ctx context.Context, containerID valueobjects.ContainerID) (*entities.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	graphID, ok := s.byContainer[containerID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("container-bound graph")
	}
	return s.getLocked(graphID)
}

// List returns every graph in a deterministic order
func (s *GraphStore) List(ctx context.Context) []*entities.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

// ListByScope returns the graphs of one scope kind
func (s *GraphStore) ListByScope(ctx context.Context, kind valueobjects.ScopeKind) []*entities.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()

	graphs := []*entities.Graph{}
	for _, graph := range s.listLocked() {
		if graph.Scope().Kind() == kind {
			graphs = append(graphs, graph)
		}
	}
	return graphs
}

// Count returns the number of graphs in the collection
func (s *GraphStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.graphs)
}

// Update applies a partial update to a graph
func (s *GraphStore) Update(ctx context.Context, id string, req UpdateGraphRequest) (*entities.Graph, error) {
	graphID, err := valueobjects.NewGraphIDFromString(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	graph, err := s.getLocked(graphID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	if req.Name != nil {
		if err := graph.Rename(*req.Name, s.cfg); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	if req.Nodes != nil {
		if err := graph.ReplaceNodes(*req.Nodes, s.cfg); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}

	batch := s.drainLocked(graph)
	s.mu.Unlock()

	s.publish(ctx, batch)
	s.enqueueSnapshot()
	return graph, nil
}

// AppendNode adds a node to a graph
func (s *GraphStore) AppendNode(ctx context.Context, id string, node entities.GraphNode) (*entities.Graph, error) {
	graphID, err := valueobjects.NewGraphIDFromString(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	graph, err := s.getLocked(graphID)
	if err == nil {
		err = graph.AppendNode(node, s.cfg)
	}
	var batch []events.DomainEvent
	if err == nil {
		batch = s.drainLocked(graph)
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	s.publish(ctx, batch)
	s.enqueueSnapshot()
	return graph, nil
}

// RemoveNode removes a node from a graph
func (s *GraphStore) RemoveNode(ctx context.Context, id, nodeID string) (*entities.Graph, error) {
	graphID, err := valueobjects.NewGraphIDFromString(id)
	if err != nil {
		return nil, err
	}
	parsedNodeID, err := valueobjects.NewNodeIDFromString(nodeID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	graph, err := s.getLocked(graphID)
	if err == nil {
		err = graph.RemoveNode(parsedNodeID)
	}
	var batch []events.DomainEvent
	if err == nil {
		batch = s.drainLocked(graph)
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	s.publish(ctx, batch)
	s.enqueueSnapshot()
	return graph, nil
}

// RecordSession counts an editing session opening a graph
func (s *GraphStore) RecordSession(ctx context.Context, id string) (*entities.Graph, error) {
	graphID, err := valueobjects.NewGraphIDFromString(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	graph, err := s.getLocked(graphID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	graph.RecordSession()
	s.mu.Unlock()

	s.enqueueSnapshot()
	return graph, nil
}

// Remove deletes a graph from the collection. The general graph can never
// be removed. Removing a container-bound graph directly is permitted so
// container cascades can reuse the path, but it leaves the container
// orphaned, so a warning is logged for callers doing it standalone.
func (s *GraphStore) Remove(ctx context.Context, id string) error {
	graphID, err := valueobjects.NewGraphIDFromString(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	graph, err := s.getLocked(graphID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if graph.IsGeneral() {
		s.mu.Unlock()
		return pkgerrors.NewValidationError("the general graph cannot be removed")
	}

	if containerID, bound := graph.BoundContainerID(); bound {
		s.logger.Warn("Removing a container-bound graph without its container",
			zap.String("graphID", graphID.String()),
			zap.String("containerID", containerID.String()),
		)
	}

	batch := []events.DomainEvent{s.removeLocked(graphID, "removed")}
	s.mu.Unlock()

	s.publish(ctx, batch)
	s.enqueueSnapshot()
	return nil
}

// Internal surface for same-package services. The *Locked methods assume
// the caller holds s.mu.

// getLocked resolves a graph while the lock is held
func (s *GraphStore) getLocked(id valueobjects.GraphID) (*entities.Graph, error) {
	graph, ok := s.graphs[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("graph")
	}
	return graph, nil
}

// indexLocked inserts a graph and records its container binding
func (s *GraphStore) indexLocked(graph *entities.Graph) {
	s.graphs[graph.ID()] = graph
	if containerID, bound := graph.BoundContainerID(); bound {
		if _, taken := s.byContainer[containerID]; !taken {
			s.byContainer[containerID] = graph.ID()
		}
	}
}

// removeLocked deletes a graph and returns the removal event
func (s *GraphStore) removeLocked(id valueobjects.GraphID, reason string) events.DomainEvent {
	if graph, ok := s.graphs[id]; ok {
		if containerID, bound := graph.BoundContainerID(); bound {
			if s.byContainer[containerID].Equals(id) {
				delete(s.byContainer, containerID)
			}
		}
	}
	delete(s.graphs, id)
	return events.NewGraphRemoved(id, reason, time.Now())
}

// cascadeRemoveLocked deletes the graphs orphaned by a container
// deletion and returns the removal events
func (s *GraphStore) cascadeRemoveLocked(ids []valueobjects.GraphID, reason string) []events.DomainEvent {
	batch := make([]events.DomainEvent, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.graphs[id]; !ok {
			continue
		}
		batch = append(batch, s.removeLocked(id, reason))
	}
	return batch
}

// containerForLocked resolves the container a graph is bound to
func (s *GraphStore) containerForLocked(graphID valueobjects.GraphID) (valueobjects.ContainerID, bool) {
	graph, ok := s.graphs[graphID]
	if !ok {
		return valueobjects.ContainerID{}, false
	}
	return graph.BoundContainerID()
}

// listLocked returns the graphs sorted by creation time then ID
func (s *GraphStore) listLocked() []*entities.Graph {
	graphs := make([]*entities.Graph, 0, len(s.graphs))
	for _, graph := range s.graphs {
		graphs = append(graphs, graph)
	}
	sort.Slice(graphs, func(i, j int) bool {
		if !graphs[i].CreatedAt().Equal(graphs[j].CreatedAt()) {
			return graphs[i].CreatedAt().Before(graphs[j].CreatedAt())
		}
		return graphs[i].ID().String() < graphs[j].ID().String()
	})
	return graphs
}

// drainLocked collects and commits the uncommitted events of the given
// graphs
func (s *GraphStore) drainLocked(graphs ...*entities.Graph) []events.DomainEvent {
	batch := []events.DomainEvent{}
	for _, graph := range graphs {
		if graph == nil {
			continue
		}
		batch = append(batch, graph.GetUncommittedEvents()...)
		graph.MarkEventsAsCommitted()
	}
	return batch
}

// insert adds a freshly created graph under the lock and flushes
func (s *GraphStore) insert(ctx context.Context, graph *entities.Graph) (*entities.Graph, error) {
	s.mu.Lock()
	s.indexLocked(graph)
	batch := s.drainLocked(graph)
	s.mu.Unlock()

	s.logger.Debug("Graph created",
		zap.String("graphID", graph.ID().String()),
		zap.String("scope", graph.Scope().String()),
	)

	s.publish(ctx, batch)
	s.enqueueSnapshot()
	return graph, nil
}

// publish sends domain events to the bus, logging failures without
// surfacing them
func (s *GraphStore) publish(ctx context.Context, batch []events.DomainEvent) {
	if len(batch) == 0 || s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishBatch(ctx, batch); err != nil {
		s.logger.Warn("Failed to publish graph events",
			zap.Error(err),
			zap.Int("eventCount", len(batch)),
		)
	}
}

// enqueueSnapshot schedules a collection snapshot on the write queue.
// The payload is produced at flush time so bursts coalesce into one
// write with the latest state.
func (s *GraphStore) enqueueSnapshot() {
	if s.scheduler == nil || s.codec == nil {
		return
	}
	s.scheduler.Enqueue(ports.KeyGraphsCollection, s.snapshotPayload)
}

func (s *GraphStore) snapshotPayload() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.codec.EncodeGraphs(s.listLocked())
}
