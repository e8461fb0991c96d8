package services

import (
	"context"
	"time"

	"github.com/PRicaldone/atelier-sub003/application/ports"
	"github.com/PRicaldone/atelier-sub003/application/sagas"
	"github.com/PRicaldone/atelier-sub003/domain/config"
	"github.com/PRicaldone/atelier-sub003/domain/core/aggregates"
	"github.com/PRicaldone/atelier-sub003/domain/core/entities"
	"github.com/PRicaldone/atelier-sub003/domain/core/validators"
	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
	"github.com/PRicaldone/atelier-sub003/domain/events"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
	"go.uber.org/zap"
)

// PromoteRequest promotes selected nodes of a source graph onto the
// canvas. An empty TargetContainerID reuses the container an earlier
// promotion of the same graph created, or creates a new one.
// NewContainer skips that reuse and always creates a fresh container;
// ExistingOnly refuses to create one at all. ContainerName names a
// created container and is ignored when an existing target is used.
type PromoteRequest struct {
	SourceGraphID     string
	NodeIDs           []string
	TargetContainerID string
	ContainerName     string
	NewContainer      bool
	ExistingOnly      bool
}

// PromotionResult reports what a promotion produced
type PromotionResult struct {
	SourceGraphID     string   `json:"sourceGraphId"`
	TargetContainerID string   `json:"targetContainerId"`
	TargetGraphID     string   `json:"targetGraphId"`
	PromotedElements  []string `json:"promotedElements"`
	PromotedCount     int      `json:"promotedCount"`
	ContainerCreated  bool     `json:"containerCreated"`
	SourceGeneration  int      `json:"sourceGeneration"`
	TargetGeneration  int      `json:"targetGeneration"`
}

// ScopePromotionRequest lifts one freestyle container or graph into a
// project. An empty ProjectID mints a new project.
type ScopePromotionRequest struct {
	EntityID  string
	ProjectID string
}

// ScopePromotionResult reports a scope promotion and the integrity
// state it left behind. Rescoping one side of a persisted promotion
// link can surface new flow violations; they are reported here, never
// silently repaired.
type ScopePromotionResult struct {
	EntityID   string           `json:"entityId"`
	EntityKind string           `json:"entityKind"`
	ProjectID  string           `json:"projectId"`
	Scope      string           `json:"scope"`
	Integrity  *IntegrityReport `json:"integrity"`
}

// MigrationResult reports a legacy migration sweep
type MigrationResult struct {
	GraphsCreated    int      `json:"graphsCreated"`
	GraphsNormalized int      `json:"graphsNormalized"`
	Skipped          int      `json:"skipped"`
	CreatedGraphIDs  []string `json:"createdGraphIds"`
}

// PromotionEngine moves work between the two hierarchies. Promotion
// materializes graph nodes as canvas elements; the engine also owns the
// freestyle to project retag and the legacy bound-graph backfill.
type PromotionEngine struct {
	containers *ContainerStore
	graphs     *GraphStore
	flow       *validators.FlowValidator
	cfg        *config.DomainConfig
	eventBus   ports.EventPublisher
	logger     *zap.Logger
}

// NewPromotionEngine creates a promotion engine
func NewPromotionEngine(
	cfg *config.DomainConfig,
	containers *ContainerStore,
	graphs *GraphStore,
	flow *validators.FlowValidator,
	eventBus ports.EventPublisher,
	logger *zap.Logger,
) *PromotionEngine {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if flow == nil {
		flow = validators.NewFlowValidator()
	}
	return &PromotionEngine{
		containers: containers,
		graphs:     graphs,
		flow:       flow,
		cfg:        cfg,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// ReloadRules swaps the domain rules under both store locks
func (e *PromotionEngine) ReloadRules(cfg *config.DomainConfig) {
	if cfg == nil {
		return
	}
	e.containers.mu.Lock()
	e.graphs.mu.Lock()
	e.cfg = cfg
	e.graphs.mu.Unlock()
	e.containers.mu.Unlock()
}

// promotionPlan is the working state threaded through the promotion saga
type promotionPlan struct {
	source      *entities.Graph
	nodes       []entities.GraphNode
	target      *entities.Container
	targetGraph *entities.Graph
	created     bool
	elements    []entities.Element
}

// Promote materializes the selected nodes of a source graph as elements
// in a target container. The flow rules are enforced before anything is
// mutated, and a failure after the target container was created rolls
// it back, so the operation is all or nothing. Promotion copies are not
// deduplicated: promoting the same node twice yields two elements, each
// carrying its own provenance.
func (e *PromotionEngine) Promote(ctx context.Context, req PromoteRequest) (*PromotionResult, error) {
	started := time.Now()

	sourceID, err := valueobjects.NewGraphIDFromString(req.SourceGraphID)
	if err != nil {
		return nil, err
	}
	if len(req.NodeIDs) == 0 {
		return nil, pkgerrors.NewValidationError("at least one node must be selected for promotion")
	}
	if req.NewContainer && req.ExistingOnly {
		return nil, pkgerrors.NewValidationError("newContainer and existingOnly are mutually exclusive")
	}
	if req.NewContainer && req.TargetContainerID != "" {
		return nil, pkgerrors.NewValidationError("newContainer cannot be combined with an explicit target")
	}

	nodeIDs := make([]valueobjects.NodeID, 0, len(req.NodeIDs))
	for _, raw := range req.NodeIDs {
		nodeID, err := valueobjects.NewNodeIDFromString(raw)
		if err != nil {
			return nil, err
		}
		nodeIDs = append(nodeIDs, nodeID)
	}

	e.containers.mu.Lock()
	e.graphs.mu.Lock()

	canvas, err := e.containers.canvasLocked()
	if err != nil {
		e.unlock()
		return nil, err
	}

	source, err := e.graphs.getLocked(sourceID)
	if err != nil {
		e.unlock()
		return nil, err
	}

	nodes, err := selectNodes(source, nodeIDs)
	if err != nil {
		e.unlock()
		return nil, err
	}

	plan := &promotionPlan{source: source, nodes: nodes}

	saga := sagas.New[*promotionPlan]("promote-elements", e.logger).
		Then(sagas.Step[*promotionPlan]{
			Name: "resolve-target",
			Execute: func(ctx context.Context, plan *promotionPlan) error {
				return e.resolveTargetLocked(canvas, plan, req)
			},
			Compensate: func(ctx context.Context, plan *promotionPlan) {
				e.rollbackTargetLocked(canvas, plan)
			},
		}).
		Then(sagas.Step[*promotionPlan]{
			Name: "materialize-elements",
			Execute: func(ctx context.Context, plan *promotionPlan) error {
				return e.materializeLocked(plan)
			},
		}).
		Then(sagas.Step[*promotionPlan]{
			Name: "record-counters",
			Execute: func(ctx context.Context, plan *promotionPlan) error {
				e.recordCountersLocked(plan)
				return nil
			},
		})

	if err := saga.Execute(ctx, plan); err != nil {
		// Discard the events of rolled-back mutations
		e.containers.drainCanvasLocked()
		if plan.created && plan.targetGraph != nil {
			e.graphs.drainLocked(plan.targetGraph)
		}
		e.unlock()
		return nil, err
	}

	batch := append(e.containers.drainCanvasLocked(), e.graphs.drainLocked(plan.source, plan.targetGraph)...)
	batch = append(batch, events.NewElementsPromoted(
		source.ID(),
		string(source.Scope().Kind()),
		plan.target.ID(),
		string(plan.target.Scope().Kind()),
		plan.targetGraph.ID(),
		len(plan.elements),
		plan.created,
		time.Since(started),
		time.Now(),
	))

	result := &PromotionResult{
		SourceGraphID:     source.ID().String(),
		TargetContainerID: plan.target.ID().String(),
		TargetGraphID:     plan.targetGraph.ID().String(),
		PromotedElements:  make([]string, len(plan.elements)),
		PromotedCount:     len(plan.elements),
		ContainerCreated:  plan.created,
		SourceGeneration:  source.Generation(),
		TargetGeneration:  plan.targetGraph.Generation(),
	}
	for i, element := range plan.elements {
		result.PromotedElements[i] = element.ID.String()
	}

	e.unlock()

	e.logger.Info("Nodes promoted to canvas",
		zap.String("sourceGraphID", result.SourceGraphID),
		zap.String("targetContainerID", result.TargetContainerID),
		zap.Int("promotedCount", result.PromotedCount),
		zap.Bool("containerCreated", result.ContainerCreated),
	)

	e.publish(ctx, batch...)
	e.containers.enqueueCanvas()
	e.graphs.enqueueSnapshot()
	return result, nil
}

// PromoteScopeToProject reclassifies one freestyle container or graph
// as project-scoped, in place. Identity, content and counters are
// preserved; only the scope changes. Integrity is re-validated
// afterwards because rescoping can invalidate persisted promotion
// links, and any violations are surfaced in the result.
func (e *PromotionEngine) PromoteScopeToProject(ctx context.Context, req ScopePromotionRequest) (*ScopePromotionResult, error) {
	if req.EntityID == "" {
		return nil, pkgerrors.NewValidationError("entity ID is required")
	}

	projectID, err := resolveProjectID(req.ProjectID)
	if err != nil {
		return nil, err
	}

	e.containers.mu.Lock()
	e.graphs.mu.Lock()
	defer e.unlock()

	canvas, err := e.containers.canvasLocked()
	if err != nil {
		return nil, err
	}

	result := &ScopePromotionResult{
		EntityID:  req.EntityID,
		ProjectID: projectID.String(),
	}

	var batch []events.DomainEvent

	if containerID, parseErr := valueobjects.NewContainerIDFromString(req.EntityID); parseErr == nil {
		if container, getErr := canvas.Get(containerID); getErr == nil {
			if container.IsRoot() {
				return nil, pkgerrors.NewValidationError("the root container cannot be rescoped")
			}
			if err := container.PromoteScope(projectID); err != nil {
				return nil, err
			}
			result.EntityKind = "container"
			result.Scope = container.Scope().String()
			batch = e.containers.drainCanvasLocked()
		}
	}

	if result.EntityKind == "" {
		graphID, parseErr := valueobjects.NewGraphIDFromString(req.EntityID)
		if parseErr != nil {
			return nil, parseErr
		}
		graph, getErr := e.graphs.getLocked(graphID)
		if getErr != nil {
			return nil, pkgerrors.NewNotFoundError("entity")
		}
		if err := graph.PromoteScope(projectID); err != nil {
			return nil, err
		}
		result.EntityKind = "graph"
		result.Scope = graph.Scope().String()
		batch = e.graphs.drainLocked(graph)
	}

	// Rescoping one end of a promotion link can break the flow rules;
	// surface what the sweep finds rather than hiding it
	report := collectFindings(engineState{canvas: canvas, graphs: e.graphs.graphs, flow: e.flow})
	result.Integrity = report

	if !report.Healthy {
		e.logger.Warn("Scope promotion left integrity violations",
			zap.String("entityID", req.EntityID),
			zap.Int("invalidFlows", len(report.InvalidFlows)),
		)
	}

	batch = append(batch, events.NewScopePromoted(req.EntityID, result.EntityKind, projectID, time.Now()))

	e.logger.Info("Scope promoted to project",
		zap.String("entityID", req.EntityID),
		zap.String("entityKind", result.EntityKind),
		zap.String("projectID", projectID.String()),
	)

	e.publish(ctx, batch...)
	if result.EntityKind == "container" {
		e.containers.enqueueCanvas()
	} else {
		e.graphs.enqueueSnapshot()
	}
	return result, nil
}

// MigrateLegacy brings pre-pairing records up to the current model:
// graphs without a scope become freestyle, and every container lacking
// a resolvable bound graph gets one whose generation matches its depth.
// Exactly one graph is created per lacking container, and a second
// sweep finds nothing left to do.
func (e *PromotionEngine) MigrateLegacy(ctx context.Context) (*MigrationResult, error) {
	e.containers.mu.Lock()
	e.graphs.mu.Lock()
	defer e.unlock()

	if !e.cfg.EnableLegacyMigration {
		return nil, pkgerrors.NewValidationError("legacy migration is disabled")
	}

	canvas, err := e.containers.canvasLocked()
	if err != nil {
		return nil, err
	}

	result := &MigrationResult{CreatedGraphIDs: []string{}}
	var created []*entities.Graph

	for _, graph := range e.graphs.listLocked() {
		if graph.MigrateLegacy(e.cfg) {
			result.GraphsNormalized++
		}
	}

	for _, container := range canvas.All() {
		if container.HasBoundGraph() {
			if _, ok := e.graphs.graphs[container.BoundGraphID()]; ok {
				result.Skipped++
				continue
			}
		}

		graph, err := entities.NewContainerBoundGraph(container.Name(), container.ID(), container.Depth()+1, e.cfg)
		if err != nil {
			return nil, err
		}
		if err := container.RebindGraph(graph.ID()); err != nil {
			return nil, err
		}

		delete(e.graphs.byContainer, container.ID())
		e.graphs.indexLocked(graph)

		created = append(created, graph)
		result.GraphsCreated++
		result.CreatedGraphIDs = append(result.CreatedGraphIDs, graph.ID().String())
	}

	batch := append(e.containers.drainCanvasLocked(), e.graphs.drainLocked(created...)...)
	batch = append(batch, events.NewLegacyGraphsMigrated(result.GraphsCreated+result.GraphsNormalized, result.Skipped, time.Now()))

	e.logger.Info("Legacy migration completed",
		zap.Int("graphsCreated", result.GraphsCreated),
		zap.Int("graphsNormalized", result.GraphsNormalized),
		zap.Int("skipped", result.Skipped),
	)

	e.publish(ctx, batch...)
	if result.GraphsCreated > 0 || result.GraphsNormalized > 0 {
		e.containers.enqueueCanvas()
		e.graphs.enqueueSnapshot()
	}
	return result, nil
}

// resolveTargetLocked pins down the promotion target, creating the
// container and its bound graph when no explicit or remembered target
// exists. Flow rules are checked before any mutation.
func (e *PromotionEngine) resolveTargetLocked(canvas *aggregates.Canvas, plan *promotionPlan, req PromoteRequest) error {
	if plan.source.Scope().IsZero() {
		return pkgerrors.NewValidationError("source graph has no scope, run legacy migration first")
	}

	if req.TargetContainerID != "" {
		containerID, err := valueobjects.NewContainerIDFromString(req.TargetContainerID)
		if err != nil {
			return err
		}
		target, err := canvas.Get(containerID)
		if err != nil {
			return err
		}
		if err := e.flow.ValidatePromotionFlow(plan.source, target); err != nil {
			return err
		}
		graph, err := e.targetGraphLocked(target)
		if err != nil {
			return err
		}
		plan.target, plan.targetGraph, plan.created = target, graph, false
		return nil
	}

	if !req.NewContainer {
		if existing, ok := canvas.FindByOriginGraph(plan.source.ID()); ok {
			if err := e.flow.ValidatePromotionFlow(plan.source, existing); err != nil {
				return err
			}
			graph, err := e.targetGraphLocked(existing)
			if err != nil {
				return err
			}
			plan.target, plan.targetGraph, plan.created = existing, graph, false
			return nil
		}
	}

	if req.ExistingOnly {
		return pkgerrors.NewNotFoundError("compatible promotion target")
	}

	parent, scope, err := e.promotionSiteLocked(canvas, plan.source)
	if err != nil {
		return err
	}

	name := req.ContainerName
	if name == "" {
		name = plan.source.Name()
	}
	container, err := entities.NewPromotedContainer(name, scope, parent, plan.source.ID(), e.cfg)
	if err != nil {
		return err
	}
	graph, err := entities.NewContainerBoundGraph(container.Name(), container.ID(), container.Depth()+1, e.cfg)
	if err != nil {
		return err
	}
	if err := container.BindGraph(graph.ID()); err != nil {
		return err
	}
	if err := canvas.Attach(container, e.cfg); err != nil {
		return err
	}
	e.graphs.indexLocked(graph)

	plan.target, plan.targetGraph, plan.created = container, graph, true
	return nil
}

// promotionSiteLocked picks where a promotion-created container lands:
// under the source's own container for bound graphs, under the root for
// freestyle and project graphs
func (e *PromotionEngine) promotionSiteLocked(canvas *aggregates.Canvas, source *entities.Graph) (*entities.Container, valueobjects.Scope, error) {
	scope := source.Scope()

	if scope.IsContainerBound() {
		containerID, _ := source.BoundContainerID()
		parent, err := canvas.Get(containerID)
		if err != nil {
			return nil, valueobjects.Scope{}, pkgerrors.NewValidationError("source graph's container no longer exists, run integrity repair first")
		}
		return parent, parent.Scope(), nil
	}

	return canvas.Root(), scope, nil
}

// targetGraphLocked resolves the bound graph of a promotion target
func (e *PromotionEngine) targetGraphLocked(target *entities.Container) (*entities.Graph, error) {
	if !target.HasBoundGraph() {
		return nil, pkgerrors.NewValidationError("target container has no bound graph, run integrity repair first")
	}
	graph, err := e.graphs.getLocked(target.BoundGraphID())
	if err != nil {
		return nil, pkgerrors.NewValidationError("target container's bound graph is missing, run integrity repair first")
	}
	return graph, nil
}

// rollbackTargetLocked undoes the container and graph a failed
// promotion created
func (e *PromotionEngine) rollbackTargetLocked(canvas *aggregates.Canvas, plan *promotionPlan) {
	if !plan.created || plan.target == nil {
		return
	}

	if _, _, err := canvas.RemoveSubtree(plan.target.ID()); err != nil {
		e.logger.Error("Failed to roll back promotion container",
			zap.String("containerID", plan.target.ID().String()),
			zap.Error(err),
		)
	}
	if plan.targetGraph != nil {
		e.graphs.removeLocked(plan.targetGraph.ID(), "promotion rolled back")
	}
}

// materializeLocked transforms the selected nodes into elements and
// appends them. Capacity is checked up front so the append is all or
// nothing.
func (e *PromotionEngine) materializeLocked(plan *promotionPlan) error {
	promotedAt := time.Now()
	elements := make([]entities.Element, 0, len(plan.nodes))

	for _, node := range plan.nodes {
		element, err := entities.NewPromotedElement(
			node.Content.DisplayName(),
			entities.ElementKindNote,
			node.Position,
			node.ID,
			plan.source.ID(),
			promotedAt,
			e.cfg,
		)
		if err != nil {
			return err
		}
		elements = append(elements, element)
	}

	if plan.target.ElementCount()+len(elements) > e.cfg.MaxElementsPerContainer {
		return pkgerrors.NewValidationError("maximum elements per container reached")
	}
	for _, element := range elements {
		if err := plan.target.AppendElement(element, e.cfg); err != nil {
			return err
		}
	}

	plan.elements = elements
	return nil
}

// recordCountersLocked bumps the promotion counters on the source
// graph, the target container and the target graph, once per distinct
// entity
func (e *PromotionEngine) recordCountersLocked(plan *promotionPlan) {
	plan.source.RecordPromotion()
	plan.target.RecordPromotion()
	if plan.targetGraph != nil && !plan.targetGraph.ID().Equals(plan.source.ID()) {
		plan.targetGraph.RecordPromotion()
	}
}

// selectNodes resolves the requested nodes in request order
func selectNodes(source *entities.Graph, ids []valueobjects.NodeID) ([]entities.GraphNode, error) {
	selected := make([]entities.GraphNode, 0, len(ids))
	missing := []string{}

	for _, id := range ids {
		node, err := source.GetNode(id)
		if err != nil {
			missing = append(missing, id.String())
			continue
		}
		selected = append(selected, node)
	}

	if len(missing) > 0 {
		return nil, pkgerrors.NewNotFoundError("node").WithDetails(map[string]interface{}{
			"missing_node_ids": missing,
		})
	}
	return selected, nil
}

// resolveProjectID parses the requested project or mints a new one
func resolveProjectID(raw string) (valueobjects.ProjectID, error) {
	if raw == "" {
		return valueobjects.NewProjectID(), nil
	}
	return valueobjects.NewProjectIDFromString(raw)
}

// unlock releases both store locks in reverse acquisition order
func (e *PromotionEngine) unlock() {
	e.graphs.mu.Unlock()
	e.containers.mu.Unlock()
}

// publish sends events to the bus, logging failures without surfacing
// them
func (e *PromotionEngine) publish(ctx context.Context, batch ...events.DomainEvent) {
	if len(batch) == 0 || e.eventBus == nil {
		return
	}
	if err := e.eventBus.PublishBatch(ctx, batch); err != nil {
		e.logger.Warn("Failed to publish promotion events",
			zap.Error(err),
			zap.Int("eventCount", len(batch)),
		)
	}
}
