package services

import (
	"context"
	"sort"
	"time"

	"github.com/PRicaldone/atelier-sub003/application/ports"
	"github.com/PRicaldone/atelier-sub003/domain/config"
	"github.com/PRicaldone/atelier-sub003/domain/core/aggregates"
	"github.com/PRicaldone/atelier-sub003/domain/core/entities"
	"github.com/PRicaldone/atelier-sub003/domain/core/validators"
	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
	"github.com/PRicaldone/atelier-sub003/domain/events"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
	"go.uber.org/zap"
)

// OrphanedContainer is a container whose bound graph link is broken
type OrphanedContainer struct {
	ContainerID string `json:"containerId"`
	Name        string `json:"name"`
	Reason      string `json:"reason"`
}

// OrphanedGraph is a container-bound graph whose container is gone
type OrphanedGraph struct {
	GraphID     string `json:"graphId"`
	ContainerID string `json:"containerId"`
	Reason      string `json:"reason"`
}

// InvalidFlow is a persisted promotion link that violates the flow
// rules. Links are only checked while their source graph still exists.
type InvalidFlow struct {
	SourceGraphID     string `json:"sourceGraphId"`
	TargetContainerID string `json:"targetContainerId"`
	Link              string `json:"link"`
	Reason            string `json:"reason"`
}

// Link kinds recorded on InvalidFlow findings
const (
	FlowLinkContainerOrigin   = "container_origin"
	FlowLinkElementProvenance = "element_provenance"
)

// GenerationMismatch is a bound graph whose generation disagrees with
// its container's depth
type GenerationMismatch struct {
	GraphID     string `json:"graphId"`
	ContainerID string `json:"containerId"`
	Expected    int    `json:"expected"`
	Actual      int    `json:"actual"`
}

// IntegrityReport is the outcome of a full consistency sweep
type IntegrityReport struct {
	Healthy              bool                 `json:"healthy"`
	OrphanedContainers   []OrphanedContainer  `json:"orphanedContainers"`
	OrphanedGraphs       []OrphanedGraph      `json:"orphanedGraphs"`
	InvalidFlows         []InvalidFlow        `json:"invalidFlows"`
	GenerationMismatches []GenerationMismatch `json:"generationMismatches"`
	CheckedContainers    int                  `json:"checkedContainers"`
	CheckedGraphs        int                  `json:"checkedGraphs"`
	CheckedAt            time.Time            `json:"checkedAt"`
}

// TotalFindings returns how many violations the sweep found
func (r *IntegrityReport) TotalFindings() int {
	return len(r.OrphanedContainers) + len(r.OrphanedGraphs) + len(r.InvalidFlows) + len(r.GenerationMismatches)
}

// RepairActionKind names the repairs the engine knows how to apply
type RepairActionKind string

const (
	// RepairHealContainer synthesizes a replacement bound graph for an
	// orphaned container
	RepairHealContainer RepairActionKind = "heal_container"
	// RepairRemoveGraph deletes a graph whose container is gone
	RepairRemoveGraph RepairActionKind = "remove_orphan_graph"
	// RepairResetGeneration realigns a bound graph's generation with
	// its container's depth
	RepairResetGeneration RepairActionKind = "reset_generation"
)

// RepairAction is one planned repair. Planning is a pure function of
// the state and the report, so the same findings always yield the same
// plan.
type RepairAction struct {
	Kind        RepairActionKind
	ContainerID valueobjects.ContainerID
	GraphID     valueobjects.GraphID
	Generation  int
}

// RepairFailure is a planned repair that could not be applied
type RepairFailure struct {
	Action string `json:"action"`
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// RepairSummary reports what an auto-repair pass changed. Failures land
// in Remainder rather than aborting the pass.
type RepairSummary struct {
	ContainersHealed int              `json:"containersHealed"`
	GraphsRemoved    int              `json:"graphsRemoved"`
	GenerationsReset int              `json:"generationsReset"`
	Skipped          int              `json:"skipped"`
	Remainder        []RepairFailure  `json:"remainder"`
	Healthy          bool             `json:"healthy"`
	Before           *IntegrityReport `json:"before"`
	After            *IntegrityReport `json:"after"`
}

// ConsistencyEngine validates the cross-store invariants and heals the
// violations that have a safe, deterministic fix. Promotion links are
// never rewritten: provenance is history, not state to repair.
type ConsistencyEngine struct {
	containers *ContainerStore
	graphs     *GraphStore
	flow       *validators.FlowValidator
	cfg        *config.DomainConfig
	eventBus   ports.EventPublisher
	logger     *zap.Logger
}

// NewConsistencyEngine creates a consistency engine
func NewConsistencyEngine(
	cfg *config.DomainConfig,
	containers *ContainerStore,
	graphs *GraphStore,
	flow *validators.FlowValidator,
	eventBus ports.EventPublisher,
	logger *zap.Logger,
) *ConsistencyEngine {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if flow == nil {
		flow = validators.NewFlowValidator()
	}
	return &ConsistencyEngine{
		containers: containers,
		graphs:     graphs,
		flow:       flow,
		cfg:        cfg,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// ReloadRules swaps the domain rules under both store locks
func (e *ConsistencyEngine) ReloadRules(cfg *config.DomainConfig) {
	if cfg == nil {
		return
	}
	e.containers.mu.Lock()
	e.graphs.mu.Lock()
	e.cfg = cfg
	e.graphs.mu.Unlock()
	e.containers.mu.Unlock()
}

// ValidateIntegrity sweeps both stores and reports every violation.
// The sweep never mutates anything.
func (e *ConsistencyEngine) ValidateIntegrity(ctx context.Context) (*IntegrityReport, error) {
	e.containers.mu.RLock()
	e.graphs.mu.RLock()

	state, err := e.stateLocked()
	if err != nil {
		e.graphs.mu.RUnlock()
		e.containers.mu.RUnlock()
		return nil, err
	}
	report := collectFindings(state)

	e.graphs.mu.RUnlock()
	e.containers.mu.RUnlock()

	e.logger.Info("Integrity validated",
		zap.Bool("healthy", report.Healthy),
		zap.Int("orphanedContainers", len(report.OrphanedContainers)),
		zap.Int("orphanedGraphs", len(report.OrphanedGraphs)),
		zap.Int("invalidFlows", len(report.InvalidFlows)),
		zap.Int("generationMismatches", len(report.GenerationMismatches)),
	)

	e.publish(ctx, events.NewIntegrityValidated(
		report.Healthy,
		len(report.OrphanedContainers),
		len(report.OrphanedGraphs),
		len(report.InvalidFlows),
		len(report.GenerationMismatches),
		report.CheckedAt,
	))

	return report, nil
}

// AutoRepair validates, plans and applies repairs in one pass. Repairs
// that cannot be applied are collected in the summary's remainder;
// running the pass again on a healthy state changes nothing.
func (e *ConsistencyEngine) AutoRepair(ctx context.Context) (*RepairSummary, error) {
	e.containers.mu.Lock()
	e.graphs.mu.Lock()

	if !e.cfg.EnableAutoRepair {
		e.graphs.mu.Unlock()
		e.containers.mu.Unlock()
		return nil, pkgerrors.NewValidationError("auto repair is disabled")
	}

	state, err := e.stateLocked()
	if err != nil {
		e.graphs.mu.Unlock()
		e.containers.mu.Unlock()
		return nil, err
	}

	before := collectFindings(state)
	actions := planRepair(before)

	summary := &RepairSummary{
		Remainder: []RepairFailure{},
		Before:    before,
	}

	var healed []*entities.Graph
	batch := []events.DomainEvent{}

	for _, action := range actions {
		switch action.Kind {
		case RepairHealContainer:
			graph, failure := e.healContainerLocked(state, action)
			if failure != nil {
				summary.Remainder = append(summary.Remainder, *failure)
				continue
			}
			if graph == nil {
				summary.Skipped++
				continue
			}
			healed = append(healed, graph)
			summary.ContainersHealed++

		case RepairRemoveGraph:
			// Second pass: only remove the graph if it is still
			// orphaned at apply time
			graph, ok := state.graphs[action.GraphID]
			if !ok {
				summary.Skipped++
				continue
			}
			if containerID, bound := graph.BoundContainerID(); bound && state.canvas.Has(containerID) {
				summary.Skipped++
				continue
			}
			batch = append(batch, e.graphs.removeLocked(action.GraphID, "orphaned"))
			summary.GraphsRemoved++

		case RepairResetGeneration:
			graph, ok := state.graphs[action.GraphID]
			if !ok {
				summary.Remainder = append(summary.Remainder, RepairFailure{
					Action: string(action.Kind),
					Target: action.GraphID.String(),
					Reason: "graph no longer exists",
				})
				continue
			}
			if err := graph.SetGeneration(action.Generation); err != nil {
				summary.Remainder = append(summary.Remainder, RepairFailure{
					Action: string(action.Kind),
					Target: action.GraphID.String(),
					Reason: errReason(err),
				})
				continue
			}
			summary.GenerationsReset++
		}
	}

	after := collectFindings(state)
	summary.After = after
	summary.Healthy = after.Healthy

	batch = append(batch, e.graphs.drainLocked(healed...)...)
	batch = append(batch, e.containers.drainCanvasLocked()...)

	e.graphs.mu.Unlock()
	e.containers.mu.Unlock()

	applied := summary.ContainersHealed + summary.GraphsRemoved + summary.GenerationsReset
	if applied > 0 && len(summary.Remainder) == 0 && after.TotalFindings() >= before.TotalFindings() {
		return nil, pkgerrors.NewRepairError("integrity repair did not converge", nil)
	}

	e.logger.Info("Integrity repair completed",
		zap.Int("containersHealed", summary.ContainersHealed),
		zap.Int("graphsRemoved", summary.GraphsRemoved),
		zap.Int("generationsReset", summary.GenerationsReset),
		zap.Int("remainder", len(summary.Remainder)),
		zap.Bool("healthy", summary.Healthy),
	)

	e.publish(ctx, batch...)
	e.publish(ctx, events.NewIntegrityRepaired(
		summary.ContainersHealed,
		summary.GraphsRemoved,
		summary.GenerationsReset,
		summary.Healthy,
		time.Now(),
	))

	if applied > 0 {
		e.containers.enqueueCanvas()
		e.graphs.enqueueSnapshot()
	}

	return summary, nil
}

// healContainerLocked synthesizes a replacement bound graph for an
// orphaned container. Returns (nil, nil) when the container turns out
// to be healthy already.
func (e *ConsistencyEngine) healContainerLocked(state engineState, action RepairAction) (*entities.Graph, *RepairFailure) {
	container, err := state.canvas.Get(action.ContainerID)
	if err != nil {
		return nil, &RepairFailure{
			Action: string(action.Kind),
			Target: action.ContainerID.String(),
			Reason: "container no longer exists",
		}
	}

	if container.HasBoundGraph() {
		if _, ok := state.graphs[container.BoundGraphID()]; ok {
			return nil, nil
		}
	}

	graph, err := entities.NewContainerBoundGraph(container.Name(), container.ID(), container.Depth()+1, e.cfg)
	if err != nil {
		return nil, &RepairFailure{
			Action: string(action.Kind),
			Target: action.ContainerID.String(),
			Reason: errReason(err),
		}
	}
	if err := container.RebindGraph(graph.ID()); err != nil {
		return nil, &RepairFailure{
			Action: string(action.Kind),
			Target: action.ContainerID.String(),
			Reason: errReason(err),
		}
	}

	// The old binding may still be indexed; replace it outright
	delete(e.graphs.byContainer, container.ID())
	e.graphs.indexLocked(graph)

	e.logger.Debug("Orphaned container healed",
		zap.String("containerID", container.ID().String()),
		zap.String("graphID", graph.ID().String()),
	)

	return graph, nil
}

// stateLocked assembles the pure-function input. Callers hold both
// store locks, containers before graphs.
func (e *ConsistencyEngine) stateLocked() (engineState, error) {
	canvas, err := e.containers.canvasLocked()
	if err != nil {
		return engineState{}, err
	}
	return engineState{
		canvas: canvas,
		graphs: e.graphs.graphs,
		flow:   e.flow,
	}, nil
}

// publish sends events to the bus, logging failures without surfacing
// them
func (e *ConsistencyEngine) publish(ctx context.Context, batch ...events.DomainEvent) {
	if len(batch) == 0 || e.eventBus == nil {
		return
	}
	if err := e.eventBus.PublishBatch(ctx, batch); err != nil {
		e.logger.Warn("Failed to publish integrity events",
			zap.Error(err),
			zap.Int("eventCount", len(batch)),
		)
	}
}

// engineState is the read-only input of the pure validation and
// planning functions
type engineState struct {
	canvas *aggregates.Canvas
	graphs map[valueobjects.GraphID]*entities.Graph
	flow   *validators.FlowValidator
}

// collectFindings computes every violation in the given state. Pure:
// it reads the state and builds a report, nothing more.
func collectFindings(state engineState) *IntegrityReport {
	report := &IntegrityReport{
		OrphanedContainers:   []OrphanedContainer{},
		OrphanedGraphs:       []OrphanedGraph{},
		InvalidFlows:         []InvalidFlow{},
		GenerationMismatches: []GenerationMismatch{},
		CheckedAt:            time.Now(),
	}

	containers := state.canvas.All()
	graphs := sortGraphs(state.graphs)
	report.CheckedContainers = len(containers)
	report.CheckedGraphs = len(graphs)

	// Containers whose bound graph link is broken
	for _, container := range containers {
		if !container.HasBoundGraph() {
			report.OrphanedContainers = append(report.OrphanedContainers, OrphanedContainer{
				ContainerID: container.ID().String(),
				Name:        container.Name(),
				Reason:      "no bound graph recorded",
			})
			continue
		}
		if _, ok := state.graphs[container.BoundGraphID()]; !ok {
			report.OrphanedContainers = append(report.OrphanedContainers, OrphanedContainer{
				ContainerID: container.ID().String(),
				Name:        container.Name(),
				Reason:      "bound graph no longer exists",
			})
		}
	}

	// Container-bound graphs whose container is gone, and bound graphs
	// whose generation disagrees with the container's depth
	for _, graph := range graphs {
		containerID, bound := graph.BoundContainerID()
		if !bound {
			continue
		}

		container, err := state.canvas.Get(containerID)
		if err != nil {
			report.OrphanedGraphs = append(report.OrphanedGraphs, OrphanedGraph{
				GraphID:     graph.ID().String(),
				ContainerID: containerID.String(),
				Reason:      "bound container no longer exists",
			})
			continue
		}

		if expected := container.Depth() + 1; graph.Generation() != expected {
			report.GenerationMismatches = append(report.GenerationMismatches, GenerationMismatch{
				GraphID:     graph.ID().String(),
				ContainerID: containerID.String(),
				Expected:    expected,
				Actual:      graph.Generation(),
			})
		}
	}

	// Persisted promotion links that violate the flow rules. A link is
	// only checked while its source graph still exists; removing the
	// graph retires the check, not the provenance.
	seen := make(map[string]bool)
	for _, container := range containers {
		if originID := container.OriginGraphID(); !originID.IsZero() {
			if source, ok := state.graphs[originID]; ok {
				if err := state.flow.ValidatePromotionFlow(source, container); err != nil {
					report.InvalidFlows = append(report.InvalidFlows, InvalidFlow{
						SourceGraphID:     originID.String(),
						TargetContainerID: container.ID().String(),
						Link:              FlowLinkContainerOrigin,
						Reason:            errReason(err),
					})
				}
			}
		}

		for _, element := range container.Elements() {
			if !element.HasProvenance() {
				continue
			}
			sourceID := element.Provenance.SourceGraphID
			source, ok := state.graphs[sourceID]
			if !ok {
				continue
			}

			key := sourceID.String() + "/" + container.ID().String()
			if seen[key] {
				continue
			}
			seen[key] = true

			if err := state.flow.ValidatePromotionFlow(source, container); err != nil {
				report.InvalidFlows = append(report.InvalidFlows, InvalidFlow{
					SourceGraphID:     sourceID.String(),
					TargetContainerID: container.ID().String(),
					Link:              FlowLinkElementProvenance,
					Reason:            errReason(err),
				})
			}
		}
	}

	report.Healthy = report.TotalFindings() == 0
	return report
}

// planRepair maps findings onto repair actions. Pure and deterministic:
// the same report always yields the same plan, so replaying a repair is
// harmless. Invalid flows are deliberately absent, they are reported
// but never auto-repaired.
func planRepair(report *IntegrityReport) []RepairAction {
	actions := []RepairAction{}

	for _, finding := range report.OrphanedContainers {
		id, err := valueobjects.NewContainerIDFromString(finding.ContainerID)
		if err != nil {
			continue
		}
		actions = append(actions, RepairAction{Kind: RepairHealContainer, ContainerID: id})
	}

	for _, finding := range report.OrphanedGraphs {
		id, err := valueobjects.NewGraphIDFromString(finding.GraphID)
		if err != nil {
			continue
		}
		actions = append(actions, RepairAction{Kind: RepairRemoveGraph, GraphID: id})
	}

	for _, finding := range report.GenerationMismatches {
		id, err := valueobjects.NewGraphIDFromString(finding.GraphID)
		if err != nil {
			continue
		}
		actions = append(actions, RepairAction{
			Kind:       RepairResetGeneration,
			GraphID:    id,
			Generation: finding.Expected,
		})
	}

	return actions
}

// sortGraphs orders a graph map by creation time then ID
func sortGraphs(graphs map[valueobjects.GraphID]*entities.Graph) []*entities.Graph {
	sorted := make([]*entities.Graph, 0, len(graphs))
	for _, graph := range graphs {
		sorted = append(sorted, graph)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt().Equal(sorted[j].CreatedAt()) {
			return sorted[i].CreatedAt().Before(sorted[j].CreatedAt())
		}
		return sorted[i].ID().String() < sorted[j].ID().String()
	})
	return sorted
}

// errReason extracts a readable reason from a domain error
func errReason(err error) string {
	if appErr := pkgerrors.GetAppError(err); appErr != nil {
		return appErr.Message
	}
	return err.Error()
}
