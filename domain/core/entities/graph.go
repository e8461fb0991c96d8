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

// Graph is a workspace graph in the flat collection. Exactly one graph,
// the general graph, exists for the life of the workspace; the rest are
// freestyle, project or container-bound.
type Graph struct {
	id             valueobjects.GraphID
	name           string
	scope          valueobjects.Scope
	generation     int
	nodes          []GraphNode
	promotionCount int
	sessionCount   int
	createdAt      time.Time
	updatedAt      time.Time
	version        int

	events []events.DomainEvent
}

// NewGeneralGraph creates the reserved always-present graph
func NewGeneralGraph(cfg *config.DomainConfig) *Graph {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	now := time.Now()
	graph := &Graph{
		id:         valueobjects.GeneralGraphID(),
		name:       cfg.GeneralGraphName,
		scope:      valueobjects.FreestyleScope(),
		generation: 1,
		nodes:      []GraphNode{},
		createdAt:  now,
		updatedAt:  now,
		version:    1,
		events:     []events.DomainEvent{},
	}

	graph.addEvent(events.NewGraphCreated(graph.id, graph.name, graph.scope.String(), graph.generation, now))
	return graph
}

// NewFreestyleGraph creates an unscoped first-generation graph
func NewFreestyleGraph(name string, cfg *config.DomainConfig) (*Graph, error) {
	return newGraph(name, valueobjects.FreestyleScope(), 1, cfg)
}

// NewProjectGraph creates a project-scoped first-generation graph
func NewProjectGraph(name string, projectID valueobjects.ProjectID, cfg *config.DomainConfig) (*Graph, error) {
	scope, err := valueobjects.ProjectScope(projectID)
	if err != nil {
		return nil, err
	}
	return newGraph(name, scope, 1, cfg)
}

// NewContainerBoundGraph creates the graph paired with a container.
// Generation is derived from the container's depth, 1 for the root.
func NewContainerBoundGraph(name string, containerID valueobjects.ContainerID, generation int, cfg *config.DomainConfig) (*Graph, error) {
	scope, err := valueobjects.ContainerScope(containerID)
	if err != nil {
		return nil, err
	}
	if generation < 1 {
		return nil, pkgerrors.NewValidationError("graph generation must be at least 1")
	}
	return newGraph(name, scope, generation, cfg)
}

func newGraph(name string, scope valueobjects.Scope, generation int, cfg *config.DomainConfig) (*Graph, error) {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = cfg.DefaultGraphName
	}
	if utf8.RuneCountInString(name) > cfg.MaxNameLength {
		return nil, pkgerrors.NewValidationError("graph name exceeds maximum length")
	}

	now := time.Now()
	graph := &Graph{
		id:         valueobjects.NewGraphID(),
		name:       name,
		scope:      scope,
		generation: generation,
		nodes:      []GraphNode{},
		createdAt:  now,
		updatedAt:  now,
		version:    1,
		events:     []events.DomainEvent{},
	}

	graph.addEvent(events.NewGraphCreated(graph.id, name, scope.String(), generation, now))
	return graph, nil
}

// ReconstructGraph recreates a graph from stored data.
// Lenient on purpose: legacy records may carry no scope and a zero
// generation, and the migration sweep normalizes them later.
func ReconstructGraph(
	id valueobjects.GraphID,
	name string,
	scope valueobjects.Scope,
	generation int,
	nodes []GraphNode,
	promotionCount, sessionCount int,
	createdAt, updatedAt time.Time,
	version int,
) (*Graph, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("graph ID required for reconstruction")
	}

	if nodes == nil {
		nodes = []GraphNode{}
	}
	if version < 1 {
		version = 1
	}

	return &Graph{
		id:             id,
		name:           name,
		scope:          scope,
		generation:     generation,
		nodes:          nodes,
		promotionCount: promotionCount,
		sessionCount:   sessionCount,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
		version:        version,
		events:         []events.DomainEvent{},
	}, nil
}

// ID returns the graph's unique identifier
func (g *Graph) ID() valueobjects.GraphID {
	return g.id
}

// Name returns the graph's display name
func (g *Graph) Name() string {
	return g.name
}

// Scope returns the graph's scope
func (g *Graph) Scope() valueobjects.Scope {
	return g.scope
}

// Generation returns the graph's promotion generation
func (g *Graph) Generation() int {
	return g.generation
}

// IsGeneral reports whether this is the reserved general graph
func (g *Graph) IsGeneral() bool {
	return g.id.IsGeneral()
}

// BoundContainerID returns the paired container for container-bound graphs
func (g *Graph) BoundContainerID() (valueobjects.ContainerID, bool) {
	return g.scope.ContainerID()
}

// PromotionCount returns how many promotions this graph has sourced
// or received
func (g *Graph) PromotionCount() int {
	return g.promotionCount
}

// SessionCount returns how many editing sessions have opened this graph
func (g *Graph) SessionCount() int {
	return g.sessionCount
}

// Nodes returns the graph's nodes in display order
func (g *Graph) Nodes() []GraphNode {
	// Return a copy to maintain encapsulation
	nodes := make([]GraphNode, len(g.nodes))
	for i, node := range g.nodes {
		nodes[i] = node.Clone()
	}
	return nodes
}

// NodeCount returns how many nodes the graph holds
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// GetNode retrieves a node by ID
func (g *Graph) GetNode(nodeID valueobjects.NodeID) (GraphNode, error) {
	for _, node := range g.nodes {
		if node.ID.Equals(nodeID) {
			return node, nil
		}
	}
	return GraphNode{}, pkgerrors.NewNotFoundError("node")
}

// HasNode checks if a node exists without error
func (g *Graph) HasNode(nodeID valueobjects.NodeID) bool {
	for _, node := range g.nodes {
		if node.ID.Equals(nodeID) {
			return true
		}
	}
	return false
}

// CreatedAt returns when the graph was created
func (g *Graph) CreatedAt() time.Time {
	return g.createdAt
}

// UpdatedAt returns when the graph was last updated
func (g *Graph) UpdatedAt() time.Time {
	return g.updatedAt
}

// Version returns the graph's version for change tracking
func (g *Graph) Version() int {
	return g.version
}

// Rename updates the graph's display name
func (g *Graph) Rename(name string, cfg *config.DomainConfig) error {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return pkgerrors.NewValidationError("graph name cannot be empty")
	}
	if utf8.RuneCountInString(name) > cfg.MaxNameLength {
		return pkgerrors.NewValidationError("graph name exceeds maximum length")
	}

	if name == g.name {
		return nil // No change needed
	}

	g.name = name
	g.touch()

	g.addEvent(events.NewGraphUpdated(g.id, len(g.nodes), g.updatedAt))
	return nil
}

// ReplaceNodes swaps the graph's nodes wholesale
func (g *Graph) ReplaceNodes(nodes []GraphNode, cfg *config.DomainConfig) error {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	if len(nodes) > cfg.MaxNodesPerGraph {
		return pkgerrors.NewValidationError("maximum nodes per graph reached")
	}

	seen := make(map[valueobjects.NodeID]bool, len(nodes))
	for _, node := range nodes {
		if node.ID.IsZero() {
			return pkgerrors.NewValidationError("node ID cannot be empty")
		}
		if err := node.Content.Validate(cfg); err != nil {
			return err
		}
		if seen[node.ID] {
			return pkgerrors.NewConflictError("duplicate node ID in graph")
		}
		seen[node.ID] = true
	}

	replaced := make([]GraphNode, len(nodes))
	for i, node := range nodes {
		replaced[i] = node.Clone()
	}

	g.nodes = replaced
	g.touch()

	g.addEvent(events.NewGraphUpdated(g.id, len(g.nodes), g.updatedAt))
	return nil
}

// AppendNode adds a node to the graph
func (g *Graph) AppendNode(node GraphNode, cfg *config.DomainConfig) error {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	if node.ID.IsZero() {
		return pkgerrors.NewValidationError("node ID cannot be empty")
	}
	if err := node.Content.Validate(cfg); err != nil {
		return err
	}
	if g.HasNode(node.ID) {
		return pkgerrors.NewConflictError("node already exists in graph")
	}
	if len(g.nodes) >= cfg.MaxNodesPerGraph {
		return pkgerrors.NewValidationError("maximum nodes per graph reached")
	}

	g.nodes = append(g.nodes, node.Clone())
	g.touch()

	g.addEvent(events.NewGraphUpdated(g.id, len(g.nodes), g.updatedAt))
	return nil
}

// RemoveNode removes a node from the graph
func (g *Graph) RemoveNode(nodeID valueobjects.NodeID) error {
	for i, node := range g.nodes {
		if node.ID.Equals(nodeID) {
			g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
			g.touch()

			g.addEvent(events.NewGraphUpdated(g.id, len(g.nodes), g.updatedAt))
			return nil
		}
	}
	return pkgerrors.NewNotFoundError("node")
}

// PromoteScope reclassifies a freestyle graph into a project in place,
// preserving identity, nodes and counters
func (g *Graph) PromoteScope(projectID valueobjects.ProjectID) error {
	if g.IsGeneral() {
		return pkgerrors.NewValidationError("the general graph cannot be rescoped")
	}
	if g.scope.IsContainerBound() {
		return pkgerrors.NewValidationError("container-bound graphs cannot be rescoped")
	}
	if g.scope.IsProject() {
		return pkgerrors.NewConflictError("graph is already project-scoped")
	}

	scope, err := valueobjects.ProjectScope(projectID)
	if err != nil {
		return err
	}

	g.scope = scope
	g.touch()
	return nil
}

// RecordPromotion counts a promotion that read from or landed in this graph
func (g *Graph) RecordPromotion() {
	g.promotionCount++
	g.touch()
}

// RecordSession counts an editing session opening this graph
func (g *Graph) RecordSession() {
	g.sessionCount++
	g.touch()
}

// SetGeneration resets the promotion generation, used by integrity repair
func (g *Graph) SetGeneration(generation int) error {
	if generation < 1 {
		return pkgerrors.NewValidationError("graph generation must be at least 1")
	}
	if generation == g.generation {
		return nil
	}

	g.generation = generation
	g.touch()
	return nil
}

// NeedsLegacyMigration reports whether the graph predates scoped records
func (g *Graph) NeedsLegacyMigration() bool {
	return g.scope.IsZero() || g.generation < 1
}

// MigrateLegacy normalizes a pre-scope record to a freestyle graph.
// Returns true when something changed, false when the graph was
// already normalized, so repeated sweeps are safe.
func (g *Graph) MigrateLegacy(cfg *config.DomainConfig) bool {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	if !g.NeedsLegacyMigration() {
		return false
	}

	if g.scope.IsZero() {
		g.scope = valueobjects.FreestyleScope()
	}
	if g.generation < 1 {
		g.generation = 1
	}
	if strings.TrimSpace(g.name) == "" {
		g.name = cfg.DefaultGraphName
	}

	g.touch()
	return true
}

// GetUncommittedEvents returns all uncommitted domain events
func (g *Graph) GetUncommittedEvents() []events.DomainEvent {
	return g.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (g *Graph) MarkEventsAsCommitted() {
	g.events = []events.DomainEvent{}
}

// addEvent adds a domain event to the uncommitted list
func (g *Graph) addEvent(event events.DomainEvent) {
	g.events = append(g.events, event)
}

// touch updates modification bookkeeping
func (g *Graph) touch() {
	g.updatedAt = time.Now()
	g.version++
}
