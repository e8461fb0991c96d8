package services

import (
	"context"
	"sync"
	"time"

	"github.com/PRicaldone/atelier-sub003/application/ports"
	"github.com/PRicaldone/atelier-sub003/domain/config"
	"github.com/PRicaldone/atelier-sub003/domain/core/aggregates"
	"github.com/PRicaldone/atelier-sub003/domain/core/entities"
	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
	"github.com/PRicaldone/atelier-sub003/domain/events"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
	"go.uber.org/zap"
)

// ContainerStore manages the canvas hierarchy and its navigation state.
// Every container is paired with a container-bound graph at creation, so
// structural operations reach into the graph store as well; the lock
// order is always containers before graphs.
type ContainerStore struct {
	mu     sync.RWMutex
	canvas *aggregates.Canvas

	graphs    *GraphStore
	cfg       *config.DomainConfig
	codec     ports.SnapshotCodec
	scheduler ports.WriteScheduler
	eventBus  ports.EventPublisher
	logger    *zap.Logger
}

// CreateContainerRequest creates a nested container. An empty ParentID
// targets the active level; an empty Scope inherits the parent's.
type CreateContainerRequest struct {
	Name      string
	ParentID  string
	Scope     string
	ProjectID string
}

// UpdateContainerRequest is a partial update; nil fields are left
// untouched.
type UpdateContainerRequest struct {
	Name     *string
	Position *valueobjects.Position
	Size     *valueobjects.Size
}

// DeleteContainerResult reports what a cascading delete removed
type DeleteContainerResult struct {
	RemovedContainers []string `json:"removedContainers"`
	RemovedGraphs     []string `json:"removedGraphs"`
}

// HierarchyNode is one level of the nested hierarchy view
type HierarchyNode struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Kind           string           `json:"kind"`
	Scope          string           `json:"scope"`
	Depth          int              `json:"depth"`
	BoundGraphID   string           `json:"boundGraphId,omitempty"`
	ElementCount   int              `json:"elementCount"`
	PromotionCount int              `json:"promotionCount"`
	OnActivePath   bool             `json:"onActivePath"`
	Active         bool             `json:"active"`
	Children       []*HierarchyNode `json:"children"`
}

// NewContainerStore creates a container store service
func NewContainerStore(
	cfg *config.DomainConfig,
	graphs *GraphStore,
	codec ports.SnapshotCodec,
	scheduler ports.WriteScheduler,
	eventBus ports.EventPublisher,
	logger *zap.Logger,
) *ContainerStore {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &ContainerStore{
		graphs:    graphs,
		cfg:       cfg,
		codec:     codec,
		scheduler: scheduler,
		eventBus:  eventBus,
		logger:    logger,
	}
}

// ReloadRules swaps the domain rules. The swap waits for in-flight
// operations, so each operation runs against one consistent rule set.
func (s *ContainerStore) ReloadRules(cfg *config.DomainConfig) {
	if cfg == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// Restore replaces the canvas with one rebuilt from a snapshot.
// No events are raised and no writes are scheduled.
func (s *ContainerStore) Restore(canvas *aggregates.Canvas) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if canvas != nil {
		canvas.MarkEventsAsCommitted()
	}
	s.canvas = canvas

	if canvas != nil {
		s.logger.Info("Canvas restored",
			zap.Int("containerCount", canvas.Count()),
			zap.Int("activeDepth", canvas.ActiveDepth()),
		)
	}
}

// EnsureRoot creates the canvas with its root container and the root's
// bound graph if none exists yet. Safe to call repeatedly.
func (s *ContainerStore) EnsureRoot(ctx context.Context, name string) (*entities.Container, error) {
	s.mu.Lock()
	if s.canvas != nil {
		root := s.canvas.Root()
		s.mu.Unlock()
		return root, nil
	}

	root, err := entities.NewRootContainer(name, s.cfg)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	graph, err := entities.NewContainerBoundGraph(root.Name(), root.ID(), 1, s.cfg)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := root.BindGraph(graph.ID()); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	canvas, err := aggregates.NewCanvas(root)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	// The canvas is only assigned once every piece exists, so a failure
	// above leaves the store untouched
	s.canvas = canvas

	s.graphs.mu.Lock()
	s.graphs.indexLocked(graph)
	batch := append(s.drainCanvasLocked(), s.graphs.drainLocked(graph)...)
	s.graphs.mu.Unlock()
	s.mu.Unlock()

	s.logger.Info("Canvas initialized",
		zap.String("rootID", root.ID().String()),
		zap.String("boundGraphID", graph.ID().String()),
	)

	s.publish(ctx, batch)
	s.enqueueCanvas()
	s.enqueueSession()
	s.graphs.enqueueSnapshot()
	return root, nil
}

// CreateContainer creates a nested container together with its bound
// graph. The two appear atomically: nothing is registered until both
// exist and are linked.
func (s *ContainerStore) CreateContainer(ctx context.Context, req CreateContainerRequest) (*entities.Container, error) {
	s.mu.Lock()
	canvas, err := s.canvasLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	parent, err := s.resolveParentLocked(canvas, req.ParentID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	scope, err := resolveContainerScope(req, parent)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	container, err := entities.NewContainer(req.Name, scope, parent, s.cfg)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	graph, err := entities.NewContainerBoundGraph(container.Name(), container.ID(), container.Depth()+1, s.cfg)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := container.BindGraph(graph.ID()); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	if err := canvas.Attach(container, s.cfg); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	s.graphs.mu.Lock()
	s.graphs.indexLocked(graph)
	batch := append(s.drainCanvasLocked(), s.graphs.drainLocked(graph)...)
	s.graphs.mu.Unlock()
	s.mu.Unlock()

	s.logger.Debug("Container created",
		zap.String("containerID", container.ID().String()),
		zap.String("parentID", parent.ID().String()),
		zap.Int("depth", container.Depth()),
		zap.String("boundGraphID", graph.ID().String()),
	)

	s.publish(ctx, batch)
	s.enqueueCanvas()
	s.graphs.enqueueSnapshot()
	return container, nil
}

// DeleteContainer removes a container, its subtree and every bound graph
// in it. The root cannot be deleted.
func (s *ContainerStore) DeleteContainer(ctx context.Context, id string) (*DeleteContainerResult, error) {
	containerID, err := valueobjects.NewContainerIDFromString(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	canvas, err := s.canvasLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	removedIDs, removedGraphs, err := canvas.RemoveSubtree(containerID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	s.graphs.mu.Lock()
	batch := append(s.drainCanvasLocked(), s.graphs.cascadeRemoveLocked(removedGraphs, "container cascade")...)
	s.graphs.mu.Unlock()
	s.mu.Unlock()

	result := &DeleteContainerResult{
		RemovedContainers: make([]string, len(removedIDs)),
		RemovedGraphs:     make([]string, len(removedGraphs)),
	}
	for i, removedID := range removedIDs {
		result.RemovedContainers[i] = removedID.String()
	}
	for i, graphID := range removedGraphs {
		result.RemovedGraphs[i] = graphID.String()
	}

	s.logger.Info("Container deleted",
		zap.String("containerID", containerID.String()),
		zap.Int("cascadedContainers", len(removedIDs)),
		zap.Int("cascadedGraphs", len(removedGraphs)),
	)

	s.publish(ctx, batch)
	s.enqueueCanvas()
	s.enqueueSession()
	s.graphs.enqueueSnapshot()
	return result, nil
}

// Enter descends into a container's level and opens an editing session
// on its bound graph. Entering the root resets navigation to the top.
func (s *ContainerStore) Enter(ctx context.Context, id string) (*entities.Container, error) {
	containerID, err := valueobjects.NewContainerIDFromString(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	canvas, err := s.canvasLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	active, err := canvas.Enter(containerID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	s.graphs.mu.Lock()
	if active.HasBoundGraph() {
		if graph, err := s.graphs.getLocked(active.BoundGraphID()); err == nil {
			graph.RecordSession()
		}
	}
	s.graphs.mu.Unlock()

	batch := s.drainCanvasLocked()
	s.mu.Unlock()

	s.publish(ctx, batch)
	s.enqueueSession()
	s.graphs.enqueueSnapshot()
	return active, nil
}

// Exit ascends one level. At the top it is a no-op returning the root.
func (s *ContainerStore) Exit(ctx context.Context) (*entities.Container, error) {
	s.mu.Lock()
	canvas, err := s.canvasLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	active, err := canvas.Exit()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	batch := s.drainCanvasLocked()
	s.mu.Unlock()

	s.publish(ctx, batch)
	s.enqueueSession()
	return active, nil
}

// SaveActiveLevel captures the elements of the level being edited
func (s *ContainerStore) SaveActiveLevel(ctx context.Context, elements []entities.Element) (*entities.Container, error) {
	s.mu.Lock()
	canvas, err := s.canvasLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	active, err := canvas.SaveActiveLevel(elements, s.cfg)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	batch := s.drainCanvasLocked()
	s.mu.Unlock()

	s.logger.Debug("Active level saved",
		zap.String("containerID", active.ID().String()),
		zap.Int("elementCount", active.ElementCount()),
	)

	s.publish(ctx, batch)
	s.enqueueCanvas()
	return active, nil
}

// UpdateContainer applies a partial update to a container
func (s *ContainerStore) UpdateContainer(ctx context.Context, id string, req UpdateContainerRequest) (*entities.Container, error) {
	containerID, err := valueobjects.NewContainerIDFromString(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	canvas, err := s.canvasLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	container, err := canvas.Get(containerID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	if req.Name != nil {
		if err := container.Rename(*req.Name, s.cfg); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	if req.Position != nil {
		container.MoveTo(*req.Position)
	}
	if req.Size != nil {
		container.Resize(*req.Size)
	}

	batch := s.drainCanvasLocked()
	s.mu.Unlock()

	s.publish(ctx, batch)
	s.enqueueCanvas()
	return container, nil
}

// GetContainer retrieves a container by ID
func (s *ContainerStore) GetContainer(ctx context.Context, id string) (*entities.Container, error) {
	containerID, err := valueobjects.NewContainerIDFromString(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	canvas, err := s.canvasLocked()
	if err != nil {
		return nil, err
	}
	return canvas.Get(containerID)
}

// ListChildren returns a container's direct children
func (s *ContainerStore) ListChildren(ctx context.Context, id string) ([]*entities.Container, error) {
	containerID, err := valueobjects.NewContainerIDFromString(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	canvas, err := s.canvasLocked()
	if err != nil {
		return nil, err
	}
	return canvas.ChildrenOf(containerID)
}

// Count reports how many containers the hierarchy holds
func (s *ContainerStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.canvas == nil {
		return 0
	}
	return s.canvas.Count()
}

// ActiveContainer returns the container whose level is being edited
func (s *ContainerStore) ActiveContainer(ctx context.Context) (*entities.Container, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	canvas, err := s.canvasLocked()
	if err != nil {
		return nil, err
	}
	return canvas.ActiveContainer(), nil
}

// GetHierarchy returns the full container tree annotated with the
// navigation state
func (s *ContainerStore) GetHierarchy(ctx context.Context) (*HierarchyNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	canvas, err := s.canvasLocked()
	if err != nil {
		return nil, err
	}

	onPath := make(map[valueobjects.ContainerID]bool)
	for _, pathID := range canvas.ActivePath() {
		onPath[pathID] = true
	}
	activeID := canvas.ActiveContainer().ID()

	var build func(container *entities.Container) *HierarchyNode
	build = func(container *entities.Container) *HierarchyNode {
		node := &HierarchyNode{
			ID:             container.ID().String(),
			Name:           container.Name(),
			Kind:           string(container.Kind()),
			Scope:          container.Scope().String(),
			Depth:          container.Depth(),
			ElementCount:   container.ElementCount(),
			PromotionCount: container.PromotionCount(),
			OnActivePath:   container.IsRoot() || onPath[container.ID()],
			Active:         container.ID().Equals(activeID),
			Children:       []*HierarchyNode{},
		}
		if container.HasBoundGraph() {
			node.BoundGraphID = container.BoundGraphID().String()
		}

		children, err := canvas.ChildrenOf(container.ID())
		if err != nil {
			return node
		}
		for _, child := range children {
			node.Children = append(node.Children, build(child))
		}
		return node
	}

	return build(canvas.Root()), nil
}

// Internal surface for same-package services. The *Locked methods assume
// the caller holds s.mu.

// canvasLocked returns the canvas or an error when EnsureRoot has not
// run yet
func (s *ContainerStore) canvasLocked() (*aggregates.Canvas, error) {
	if s.canvas == nil {
		return nil, pkgerrors.NewNotFoundError("canvas")
	}
	return s.canvas, nil
}

// resolveParentLocked maps an optional parent ID onto a container,
// defaulting to the active level
func (s *ContainerStore) resolveParentLocked(canvas *aggregates.Canvas, parentID string) (*entities.Container, error) {
	if parentID == "" {
		return canvas.ActiveContainer(), nil
	}

	id, err := valueobjects.NewContainerIDFromString(parentID)
	if err != nil {
		return nil, err
	}
	return canvas.Get(id)
}

// drainCanvasLocked collects and commits the canvas's uncommitted events
func (s *ContainerStore) drainCanvasLocked() []events.DomainEvent {
	if s.canvas == nil {
		return nil
	}
	batch := s.canvas.GetUncommittedEvents()
	s.canvas.MarkEventsAsCommitted()
	return batch
}

// publish sends domain events to the bus, logging failures without
// surfacing them
func (s *ContainerStore) publish(ctx context.Context, batch []events.DomainEvent) {
	if len(batch) == 0 || s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishBatch(ctx, batch); err != nil {
		s.logger.Warn("Failed to publish canvas events",
			zap.Error(err),
			zap.Int("eventCount", len(batch)),
		)
	}
}

// enqueueCanvas schedules a canvas snapshot on the write queue
func (s *ContainerStore) enqueueCanvas() {
	if s.scheduler == nil || s.codec == nil {
		return
	}
	s.scheduler.Enqueue(ports.KeyCanvasSnapshot, s.canvasPayload)
}

// enqueueSession schedules a navigation state write
func (s *ContainerStore) enqueueSession() {
	if s.scheduler == nil || s.codec == nil {
		return
	}
	s.scheduler.Enqueue(ports.KeyEngineSession, s.sessionPayload)
}

func (s *ContainerStore) canvasPayload() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	canvas, err := s.canvasLocked()
	if err != nil {
		return nil, err
	}
	return s.codec.EncodeCanvas(canvas)
}

func (s *ContainerStore) sessionPayload() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	canvas, err := s.canvasLocked()
	if err != nil {
		return nil, err
	}
	return s.codec.EncodeSession(ports.SessionState{
		RootID:     canvas.RootID(),
		ActivePath: canvas.ActivePath(),
		SavedAt:    time.Now(),
	})
}

// resolveContainerScope derives the scope of a new container from the
// request, falling back to the parent's scope
func resolveContainerScope(req CreateContainerRequest, parent *entities.Container) (valueobjects.Scope, error) {
	if req.Scope == "" {
		if req.ProjectID != "" {
			return valueobjects.ParseScope(string(valueobjects.ScopeProject), req.ProjectID, "")
		}
		return parent.Scope(), nil
	}
	return valueobjects.ParseScope(req.Scope, req.ProjectID, "")
}
