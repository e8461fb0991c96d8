package entities

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PRicaldone/atelier-sub003/domain/config"
	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
	"github.com/PRicaldone/atelier-sub003/domain/events"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
)

// ContainerKind distinguishes the single root from nested containers
type ContainerKind string

const (
	ContainerKindRoot   ContainerKind = "root"
	ContainerKindNested ContainerKind = "nested"
)

// Container is a level of the canvas hierarchy. Every container owns the
// elements placed at its level and is paired with exactly one
// container-bound graph; a container whose graph link is broken is an
// orphan until the consistency engine heals it.
type Container struct {
	// Private fields ensure encapsulation
	id             valueobjects.ContainerID
	kind           ContainerKind
	name           string
	parentID       valueobjects.ContainerID // zero for the root
	scope          valueobjects.Scope
	boundGraphID   valueobjects.GraphID // zero only while orphaned
	originGraphID  valueobjects.GraphID // set when a promotion created this container
	elements       []Element
	childIDs       []valueobjects.ContainerID
	position       valueobjects.Position
	size           valueobjects.Size
	depth          int
	promotionCount int
	createdAt      time.Time
	updatedAt      time.Time
	version        int

	// Domain events that occurred during this aggregate's lifetime
	events []events.DomainEvent
}

// NewRootContainer creates the root of the hierarchy
func NewRootContainer(name string, cfg *config.DomainConfig) (*Container, error) {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = cfg.DefaultRootName
	}
	if err := validateContainerName(name, cfg); err != nil {
		return nil, err
	}

	now := time.Now()
	container := &Container{
		id:        valueobjects.NewContainerID(),
		kind:      ContainerKindRoot,
		name:      name,
		scope:     valueobjects.FreestyleScope(),
		elements:  []Element{},
		childIDs:  []valueobjects.ContainerID{},
		depth:     0,
		createdAt: now,
		updatedAt: now,
		version:   1,
		events:    []events.DomainEvent{},
	}

	// Note: boundGraphID will be set when BindGraph is called
	container.addEvent(events.NewContainerCreated(
		container.id,
		name,
		"",
		valueobjects.GraphID{},
		0,
		now,
	))

	return container, nil
}

// NewContainer creates a nested container under the given parent
func NewContainer(name string, scope valueobjects.Scope, parent *Container, cfg *config.DomainConfig) (*Container, error) {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	if parent == nil {
		return nil, pkgerrors.NewValidationError("parent container required")
	}

	name = strings.TrimSpace(name)
	if err := validateContainerName(name, cfg); err != nil {
		return nil, err
	}

	if scope.IsZero() || scope.IsContainerBound() {
		return nil, pkgerrors.NewValidationError("container scope must be freestyle or project")
	}

	depth := parent.depth + 1
	if depth > cfg.MaxNestingDepth {
		return nil, pkgerrors.NewValidationError("maximum nesting depth reached")
	}

	now := time.Now()
	container := &Container{
		id:        valueobjects.NewContainerID(),
		kind:      ContainerKindNested,
		name:      name,
		parentID:  parent.id,
		scope:     scope,
		elements:  []Element{},
		childIDs:  []valueobjects.ContainerID{},
		depth:     depth,
		createdAt: now,
		updatedAt: now,
		version:   1,
		events:    []events.DomainEvent{},
	}

	container.addEvent(events.NewContainerCreated(
		container.id,
		name,
		parent.id.String(),
		valueobjects.GraphID{},
		depth,
		now,
	))

	return container, nil
}

// NewPromotedContainer creates a nested container recording the graph
// whose promotion produced it
func NewPromotedContainer(name string, scope valueobjects.Scope, parent *Container, originGraphID valueobjects.GraphID, cfg *config.DomainConfig) (*Container, error) {
	if originGraphID.IsZero() {
		return nil, pkgerrors.NewValidationError("promoted container requires an origin graph")
	}

	container, err := NewContainer(name, scope, parent, cfg)
	if err != nil {
		return nil, err
	}

	container.originGraphID = originGraphID
	return container, nil
}

// ReconstructContainer recreates a container from stored data.
// Lenient on purpose: corrupted snapshots must load so integrity
// checks can run against them.
func ReconstructContainer(
	id valueobjects.ContainerID,
	kind ContainerKind,
	name string,
	parentID valueobjects.ContainerID,
	scope valueobjects.Scope,
	boundGraphID valueobjects.GraphID,
	originGraphID valueobjects.GraphID,
	elements []Element,
	childIDs []valueobjects.ContainerID,
	position valueobjects.Position,
	size valueobjects.Size,
	depth int,
	promotionCount int,
	createdAt, updatedAt time.Time,
	version int,
) (*Container, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("container ID required for reconstruction")
	}

	if elements == nil {
		elements = []Element{}
	}
	if childIDs == nil {
		childIDs = []valueobjects.ContainerID{}
	}
	if version < 1 {
		version = 1
	}

	return &Container{
		id:             id,
		kind:           kind,
		name:           name,
		parentID:       parentID,
		scope:          scope,
		boundGraphID:   boundGraphID,
		originGraphID:  originGraphID,
		elements:       elements,
		childIDs:       childIDs,
		position:       position,
		size:           size,
		depth:          depth,
		promotionCount: promotionCount,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
		version:        version,
		events:         []events.DomainEvent{},
	}, nil
}

// ID returns the container's unique identifier
func (c *Container) ID() valueobjects.ContainerID {
	return c.id
}

// Kind returns the container kind
func (c *Container) Kind() ContainerKind {
	return c.kind
}

// IsRoot reports whether this is the hierarchy root
func (c *Container) IsRoot() bool {
	return c.kind == ContainerKindRoot
}

// Name returns the container's display name
func (c *Container) Name() string {
	return c.name
}

// ParentID returns the parent container's ID, zero for the root
func (c *Container) ParentID() valueobjects.ContainerID {
	return c.parentID
}

// Scope returns the container's scope
func (c *Container) Scope() valueobjects.Scope {
	return c.scope
}

// BoundGraphID returns the paired graph's ID, zero while orphaned
func (c *Container) BoundGraphID() valueobjects.GraphID {
	return c.boundGraphID
}

// HasBoundGraph reports whether a graph link is recorded
func (c *Container) HasBoundGraph() bool {
	return !c.boundGraphID.IsZero()
}

// OriginGraphID returns the graph whose promotion created this
// container, zero for containers created directly
func (c *Container) OriginGraphID() valueobjects.GraphID {
	return c.originGraphID
}

// Depth returns the container's depth in the hierarchy, 0 for the root
func (c *Container) Depth() int {
	return c.depth
}

// PromotionCount returns how many promotions have targeted this container
func (c *Container) PromotionCount() int {
	return c.promotionCount
}

// Position returns the container's canvas position
func (c *Container) Position() valueobjects.Position {
	return c.position
}

// Size returns the container's rendered size
func (c *Container) Size() valueobjects.Size {
	return c.size
}

// Elements returns the elements at this level
func (c *Container) Elements() []Element {
	// Return a copy to maintain encapsulation
	elements := make([]Element, len(c.elements))
	for i, element := range c.elements {
		elements[i] = element.Clone()
	}
	return elements
}

// ElementCount returns how many elements live at this level
func (c *Container) ElementCount() int {
	return len(c.elements)
}

// ChildIDs returns the IDs of direct child containers in display order
func (c *Container) ChildIDs() []valueobjects.ContainerID {
	childIDs := make([]valueobjects.ContainerID, len(c.childIDs))
	copy(childIDs, c.childIDs)
	return childIDs
}

// HasChild checks whether the given container is a direct child
func (c *Container) HasChild(id valueobjects.ContainerID) bool {
	for _, childID := range c.childIDs {
		if childID.Equals(id) {
			return true
		}
	}
	return false
}

// CreatedAt returns when the container was created
func (c *Container) CreatedAt() time.Time {
	return c.createdAt
}

// UpdatedAt returns when the container was last updated
func (c *Container) UpdatedAt() time.Time {
	return c.updatedAt
}

// Version returns the container's version for change tracking
func (c *Container) Version() int {
	return c.version
}

// Rename updates the container's display name
func (c *Container) Rename(name string, cfg *config.DomainConfig) error {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	name = strings.TrimSpace(name)
	if err := validateContainerName(name, cfg); err != nil {
		return err
	}

	if name == c.name {
		return nil // No change needed
	}

	c.name = name
	c.touch()
	return nil
}

// BindGraph records the paired container-bound graph
func (c *Container) BindGraph(graphID valueobjects.GraphID) error {
	if graphID.IsZero() {
		return pkgerrors.NewValidationError("bound graph ID cannot be empty")
	}
	if !c.boundGraphID.IsZero() {
		return pkgerrors.NewConflictError("container already has a bound graph")
	}

	c.boundGraphID = graphID
	c.touch()

	// Update the pending ContainerCreated event with the graph link
	for i, event := range c.events {
		if created, ok := event.(events.ContainerCreated); ok {
			created.BoundGraphID = graphID
			c.events[i] = created
			break
		}
	}

	return nil
}

// RebindGraph overwrites the graph link, used when a repair
// synthesizes a replacement graph for an orphaned container
func (c *Container) RebindGraph(graphID valueobjects.GraphID) error {
	if graphID.IsZero() {
		return pkgerrors.NewValidationError("bound graph ID cannot be empty")
	}

	c.boundGraphID = graphID
	c.touch()
	return nil
}

// ReplaceElements swaps the level's elements wholesale
func (c *Container) ReplaceElements(elements []Element, cfg *config.DomainConfig) error {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	if len(elements) > cfg.MaxElementsPerContainer {
		return pkgerrors.NewValidationError("maximum elements per container reached")
	}

	replaced := make([]Element, len(elements))
	for i, element := range elements {
		replaced[i] = element.Clone()
	}

	c.elements = replaced
	c.touch()

	c.addEvent(events.NewLevelSaved(c.id, len(c.elements), c.updatedAt))

	return nil
}

// AppendElement adds a single element to this level
func (c *Container) AppendElement(element Element, cfg *config.DomainConfig) error {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	if len(c.elements) >= cfg.MaxElementsPerContainer {
		return pkgerrors.NewValidationError("maximum elements per container reached")
	}

	c.elements = append(c.elements, element.Clone())
	c.touch()
	return nil
}

// AddChild links a direct child container
func (c *Container) AddChild(id valueobjects.ContainerID, cfg *config.DomainConfig) error {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	if id.IsZero() {
		return pkgerrors.NewValidationError("child container ID cannot be empty")
	}
	if c.HasChild(id) {
		return pkgerrors.NewConflictError("container is already a child")
	}
	if len(c.childIDs) >= cfg.MaxChildrenPerContainer {
		return pkgerrors.NewValidationError("maximum children per container reached")
	}

	c.childIDs = append(c.childIDs, id)
	c.touch()
	return nil
}

// RemoveChild unlinks a direct child container
func (c *Container) RemoveChild(id valueobjects.ContainerID) error {
	for i, childID := range c.childIDs {
		if childID.Equals(id) {
			c.childIDs = append(c.childIDs[:i], c.childIDs[i+1:]...)
			c.touch()
			return nil
		}
	}
	return pkgerrors.NewNotFoundError("child container")
}

// PromoteScope lifts a freestyle container into a project
func (c *Container) PromoteScope(projectID valueobjects.ProjectID) error {
	if c.scope.IsProject() {
		return pkgerrors.NewConflictError("container is already project-scoped")
	}

	scope, err := valueobjects.ProjectScope(projectID)
	if err != nil {
		return err
	}

	c.scope = scope
	c.touch()
	return nil
}

// RecordPromotion counts a promotion that landed in this container
func (c *Container) RecordPromotion() {
	c.promotionCount++
	c.touch()
}

// MoveTo moves the container to a new canvas position
func (c *Container) MoveTo(position valueobjects.Position) {
	if position.Equals(c.position) {
		return // No movement needed
	}
	c.position = position
	c.touch()
}

// Resize updates the container's rendered size
func (c *Container) Resize(size valueobjects.Size) {
	if size.Equals(c.size) {
		return
	}
	c.size = size
	c.touch()
}

// GetUncommittedEvents returns all uncommitted domain events
func (c *Container) GetUncommittedEvents() []events.DomainEvent {
	return c.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (c *Container) MarkEventsAsCommitted() {
	c.events = []events.DomainEvent{}
}

// addEvent adds a domain event to the uncommitted list
func (c *Container) addEvent(event events.DomainEvent) {
	c.events = append(c.events, event)
}

// touch updates modification bookkeeping
func (c *Container) touch() {
	c.updatedAt = time.Now()
	c.version++
}

// validateContainerName checks name constraints
func validateContainerName(name string, cfg *config.DomainConfig) error {
	length := utf8.RuneCountInString(name)
	if length < cfg.MinNameLength {
		return pkgerrors.NewValidationError("container name cannot be empty")
	}
	if length > cfg.MaxNameLength {
		return pkgerrors.NewValidationError("container name exceeds maximum length")
	}
	return nil
}
