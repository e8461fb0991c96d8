package aggregates

import (
	"sort"
	"time"

	"github.com/PRicaldone/atelier-sub003/domain/config"
	"github.com/PRicaldone/atelier-sub003/domain/core/entities"
	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
	"github.com/PRicaldone/atelier-sub003/domain/events"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
)

// Canvas is the aggregate root for the container hierarchy. Containers
// live in a flat arena keyed by ID with parent and child links between
// them, and a navigation path tracks which level is active.
// An empty path means the root level is active.
type Canvas struct {
	containers map[valueobjects.ContainerID]*entities.Container
	rootID     valueobjects.ContainerID
	activePath []valueobjects.ContainerID
	updatedAt  time.Time
	version    int
	events     []events.DomainEvent
}

// NewCanvas creates a canvas seeded with its root container
func NewCanvas(root *entities.Container) (*Canvas, error) {
	if root == nil {
		return nil, pkgerrors.NewValidationError("root container required")
	}
	if !root.IsRoot() {
		return nil, pkgerrors.NewValidationError("canvas must be seeded with a root container")
	}

	return &Canvas{
		containers: map[valueobjects.ContainerID]*entities.Container{root.ID(): root},
		rootID:     root.ID(),
		activePath: []valueobjects.ContainerID{},
		updatedAt:  time.Now(),
		version:    1,
		events:     []events.DomainEvent{},
	}, nil
}

// RebuildCanvas recreates a canvas from stored containers. The arena is
// rebuilt leniently: dangling links are kept so integrity checks can
// find them, and a stale navigation path is truncated at the first
// broken step.
func RebuildCanvas(containers []*entities.Container, activePath []valueobjects.ContainerID) (*Canvas, error) {
	arena := make(map[valueobjects.ContainerID]*entities.Container, len(containers))
	var root *entities.Container

	for _, container := range containers {
		if container == nil {
			continue
		}
		arena[container.ID()] = container

		if container.IsRoot() {
			if root == nil || container.CreatedAt().Before(root.CreatedAt()) {
				root = container
			}
		}
	}

	if root == nil {
		return nil, pkgerrors.NewNotFoundError("root container")
	}

	canvas := &Canvas{
		containers: arena,
		rootID:     root.ID(),
		activePath: []valueobjects.ContainerID{},
		updatedAt:  time.Now(),
		version:    1,
		events:     []events.DomainEvent{},
	}

	// Re-validate the stored navigation history step by step
	for _, id := range activePath {
		if _, exists := arena[id]; !exists {
			break
		}
		canvas.activePath = append(canvas.activePath, id)
	}

	return canvas, nil
}

// Root returns the root container
func (c *Canvas) Root() *entities.Container {
	return c.containers[c.rootID]
}

// RootID returns the root container's ID
func (c *Canvas) RootID() valueobjects.ContainerID {
	return c.rootID
}

// Get retrieves a container by ID
func (c *Canvas) Get(id valueobjects.ContainerID) (*entities.Container, error) {
	container, exists := c.containers[id]
	if !exists {
		return nil, pkgerrors.NewNotFoundError("container")
	}
	return container, nil
}

// Has checks if a container exists without error
func (c *Canvas) Has(id valueobjects.ContainerID) bool {
	_, exists := c.containers[id]
	return exists
}

// Count returns the number of containers in the arena
func (c *Canvas) Count() int {
	return len(c.containers)
}

// All returns every container in a deterministic order
func (c *Canvas) All() []*entities.Container {
	containers := make([]*entities.Container, 0, len(c.containers))
	for _, container := range c.containers {
		containers = append(containers, container)
	}
	sort.Slice(containers, func(i, j int) bool {
		if !containers[i].CreatedAt().Equal(containers[j].CreatedAt()) {
			return containers[i].CreatedAt().Before(containers[j].CreatedAt())
		}
		return containers[i].ID().String() < containers[j].ID().String()
	})
	return containers
}

// Attach inserts a new container under its recorded parent
func (c *Canvas) Attach(container *entities.Container, cfg *config.DomainConfig) error {
	if container == nil {
		return pkgerrors.NewValidationError("container cannot be nil")
	}
	if container.IsRoot() {
		return pkgerrors.NewConflictError("canvas already has a root container")
	}
	if c.Has(container.ID()) {
		return pkgerrors.NewConflictError("container already exists in canvas")
	}

	parent, exists := c.containers[container.ParentID()]
	if !exists {
		return pkgerrors.NewNotFoundError("parent container")
	}

	if err := parent.AddChild(container.ID(), cfg); err != nil {
		return err
	}

	c.containers[container.ID()] = container
	c.touch()
	return nil
}

// RemoveSubtree deletes a container and everything beneath it, returning
// the removed container IDs in document order and the bound graph IDs
// that now need cascade removal from the graph collection
func (c *Canvas) RemoveSubtree(id valueobjects.ContainerID) ([]valueobjects.ContainerID, []valueobjects.GraphID, error) {
	target, exists := c.containers[id]
	if !exists {
		return nil, nil, pkgerrors.NewNotFoundError("container")
	}
	if target.IsRoot() {
		return nil, nil, pkgerrors.NewValidationError("the root container cannot be deleted")
	}

	removedIDs := []valueobjects.ContainerID{}
	removedGraphs := []valueobjects.GraphID{}

	var collect func(container *entities.Container)
	collect = func(container *entities.Container) {
		removedIDs = append(removedIDs, container.ID())
		if container.HasBoundGraph() {
			removedGraphs = append(removedGraphs, container.BoundGraphID())
		}
		for _, childID := range container.ChildIDs() {
			if child, ok := c.containers[childID]; ok {
				collect(child)
			}
		}
	}
	collect(target)

	if parent, ok := c.containers[target.ParentID()]; ok {
		if err := parent.RemoveChild(id); err != nil && !pkgerrors.IsNotFound(err) {
			return nil, nil, err
		}
	}

	for _, removedID := range removedIDs {
		delete(c.containers, removedID)
	}

	// If navigation history passed through the removed subtree,
	// truncate it at the first entry that no longer resolves
	for i, pathID := range c.activePath {
		if _, ok := c.containers[pathID]; !ok {
			c.activePath = c.activePath[:i]
			break
		}
	}

	now := time.Now()
	cascadedIDs := make([]string, len(removedIDs))
	for i, removedID := range removedIDs {
		cascadedIDs[i] = removedID.String()
	}
	cascadedGraphs := make([]string, len(removedGraphs))
	for i, graphID := range removedGraphs {
		cascadedGraphs[i] = graphID.String()
	}
	c.addEvent(events.NewContainerDeleted(id, cascadedIDs, cascadedGraphs, now))

	c.touch()
	return removedIDs, removedGraphs, nil
}

// Walk visits every container reachable from the root in preorder
func (c *Canvas) Walk(fn func(*entities.Container) error) error {
	var visit func(container *entities.Container) error
	visit = func(container *entities.Container) error {
		if err := fn(container); err != nil {
			return err
		}
		for _, childID := range container.ChildIDs() {
			if child, ok := c.containers[childID]; ok {
				if err := visit(child); err != nil {
					return err
				}
			}
		}
		return nil
	}

	root := c.Root()
	if root == nil {
		return pkgerrors.NewNotFoundError("root container")
	}
	return visit(root)
}

// ChildrenOf resolves the direct children of a container, skipping
// dangling links
func (c *Canvas) ChildrenOf(id valueobjects.ContainerID) ([]*entities.Container, error) {
	container, err := c.Get(id)
	if err != nil {
		return nil, err
	}

	children := []*entities.Container{}
	for _, childID := range container.ChildIDs() {
		if child, ok := c.containers[childID]; ok {
			children = append(children, child)
		}
	}
	return children, nil
}

// ActiveContainer returns the container whose level is being edited
func (c *Canvas) ActiveContainer() *entities.Container {
	if len(c.activePath) == 0 {
		return c.Root()
	}
	if container, ok := c.containers[c.activePath[len(c.activePath)-1]]; ok {
		return container
	}
	return c.Root()
}

// ActivePath returns the navigation path from the root, exclusive of it
func (c *Canvas) ActivePath() []valueobjects.ContainerID {
	path := make([]valueobjects.ContainerID, len(c.activePath))
	copy(path, c.activePath)
	return path
}

// ActiveDepth returns how many levels below the root are active
func (c *Canvas) ActiveDepth() int {
	return len(c.activePath)
}

// Enter pushes a container onto the navigation history and makes its
// level active. Entering the root clears the history instead; the root
// is the floor of the stack and never appears on it.
func (c *Canvas) Enter(id valueobjects.ContainerID) (*entities.Container, error) {
	if id.Equals(c.rootID) {
		c.activePath = c.activePath[:0]
		c.touch()

		root := c.Root()
		c.addEvent(events.NewLevelEntered(root.ID(), 0, []string{}, c.updatedAt))
		return root, nil
	}

	target, exists := c.containers[id]
	if !exists {
		return nil, pkgerrors.NewNotFoundError("container")
	}

	c.activePath = append(c.activePath, id)
	c.touch()

	path := make([]string, len(c.activePath))
	for i, pathID := range c.activePath {
		path[i] = pathID.String()
	}
	c.addEvent(events.NewLevelEntered(id, len(c.activePath), path, c.updatedAt))

	return target, nil
}

// Exit ascends one level. Exiting at the root level is a no-op that
// returns the root.
func (c *Canvas) Exit() (*entities.Container, error) {
	if len(c.activePath) == 0 {
		return c.Root(), nil
	}

	previous := c.activePath[len(c.activePath)-1]
	c.activePath = c.activePath[:len(c.activePath)-1]
	c.touch()

	active := c.ActiveContainer()
	c.addEvent(events.NewLevelExited(active.ID(), previous.String(), c.updatedAt))

	return active, nil
}

// ResetNavigation returns to the top level without raising events
func (c *Canvas) ResetNavigation() {
	if len(c.activePath) == 0 {
		return
	}
	c.activePath = c.activePath[:0]
	c.touch()
}

// SaveActiveLevel captures the active level's elements. Unlike reads,
// the write does not fall back to the root: a stale active entry aborts
// with NotFoundError and nothing is saved to a substitute level.
func (c *Canvas) SaveActiveLevel(elements []entities.Element, cfg *config.DomainConfig) (*entities.Container, error) {
	active := c.Root()
	if len(c.activePath) > 0 {
		container, ok := c.containers[c.activePath[len(c.activePath)-1]]
		if !ok {
			return nil, pkgerrors.NewNotFoundError("active container")
		}
		active = container
	}

	if err := active.ReplaceElements(elements, cfg); err != nil {
		return nil, err
	}

	c.touch()
	return active, nil
}

// FindByOriginGraph locates the container a promotion of the given
// graph created earlier, if any. With several candidates the oldest
// wins so repeated promotions land in the same place.
func (c *Canvas) FindByOriginGraph(graphID valueobjects.GraphID) (*entities.Container, bool) {
	var found *entities.Container
	for _, container := range c.containers {
		if !container.OriginGraphID().Equals(graphID) {
			continue
		}
		if found == nil || container.CreatedAt().Before(found.CreatedAt()) {
			found = container
		}
	}
	return found, found != nil
}

// BoundGraphIndex maps every recorded bound graph to its container
func (c *Canvas) BoundGraphIndex() map[valueobjects.GraphID]valueobjects.ContainerID {
	index := make(map[valueobjects.GraphID]valueobjects.ContainerID, len(c.containers))
	for _, container := range c.All() {
		if !container.HasBoundGraph() {
			continue
		}
		if _, taken := index[container.BoundGraphID()]; !taken {
			index[container.BoundGraphID()] = container.ID()
		}
	}
	return index
}

// UpdatedAt returns when the canvas last changed
func (c *Canvas) UpdatedAt() time.Time {
	return c.updatedAt
}

// Version returns the canvas version for change tracking
func (c *Canvas) Version() int {
	return c.version
}

// GetUncommittedEvents returns all uncommitted domain events
func (c *Canvas) GetUncommittedEvents() []events.DomainEvent {
	// Collect events from the canvas itself
	allEvents := make([]events.DomainEvent, len(c.events))
	copy(allEvents, c.events)

	// Collect events from all containers
	for _, container := range c.All() {
		allEvents = append(allEvents, container.GetUncommittedEvents()...)
	}

	return allEvents
}

// MarkEventsAsCommitted clears all uncommitted events
func (c *Canvas) MarkEventsAsCommitted() {
	c.events = []events.DomainEvent{}

	// Also mark container events as committed
	for _, container := range c.containers {
		container.MarkEventsAsCommitted()
	}
}

// Private helper methods

func (c *Canvas) addEvent(event events.DomainEvent) {
	c.events = append(c.events, event)
}

func (c *Canvas) touch() {
	c.updatedAt = time.Now()
	c.version++
}
