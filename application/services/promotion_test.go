package services

import (
	"context"
	"testing"
	"time"

	"github.com/PRicaldone/atelier-sub003/domain/config"
	"github.com/PRicaldone/atelier-sub003/domain/core/entities"
	"github.com/PRicaldone/atelier-sub003/domain/core/validators"
	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPromoteFromFreestyleGraph(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)
	root := stack.bootstrap(t, ctx)

	source, nodeIDs := stack.seedGraphWithNodes(t, ctx, "Palette", "Teal", "Ochre")

	result, err := stack.promotion.Promote(ctx, PromoteRequest{
		SourceGraphID: source.ID().String(),
		NodeIDs:       nodeIDs,
	})
	require.NoError(t, err)

	t.Run("creates a container under the root", func(t *testing.T) {
		assert.True(t, result.ContainerCreated)
		assert.Equal(t, 2, result.PromotedCount)
		assert.Equal(t, 1, result.SourceGeneration)
		assert.Equal(t, 2, result.TargetGeneration)

		target, err := stack.containers.GetContainer(ctx, result.TargetContainerID)
		require.NoError(t, err)
		assert.Equal(t, "Palette", target.Name())
		assert.Equal(t, root.ID(), target.ParentID())
		assert.True(t, target.Scope().IsFreestyle())
		assert.Equal(t, source.ID(), target.OriginGraphID())
	})

	t.Run("materializes nodes as provenance-carrying notes", func(t *testing.T) {
		target, err := stack.containers.GetContainer(ctx, result.TargetContainerID)
		require.NoError(t, err)
		elements := target.Elements()
		require.Len(t, elements, 2)

		assert.Equal(t, "Teal", elements[0].Name)
		assert.Equal(t, entities.ElementKindNote, elements[0].Kind)
		require.NotNil(t, elements[0].Provenance)
		assert.Equal(t, nodeIDs[0], elements[0].Provenance.SourceNodeID.String())
		assert.Equal(t, source.ID(), elements[0].Provenance.SourceGraphID)
		assert.False(t, elements[0].Provenance.PromotedAt.IsZero())

		// Elements are copies with identities of their own
		assert.NotEqual(t, elements[0].ID.String(), nodeIDs[0])
	})

	t.Run("bumps each counter once", func(t *testing.T) {
		assert.Equal(t, 1, source.PromotionCount())

		target, err := stack.containers.GetContainer(ctx, result.TargetContainerID)
		require.NoError(t, err)
		assert.Equal(t, 1, target.PromotionCount())

		targetGraph, err := stack.graphs.Get(ctx, result.TargetGraphID)
		require.NoError(t, err)
		assert.Equal(t, 1, targetGraph.PromotionCount())
	})

	t.Run("promoting again reuses the container and duplicates freely", func(t *testing.T) {
		again, err := stack.promotion.Promote(ctx, PromoteRequest{
			SourceGraphID: source.ID().String(),
			NodeIDs:       nodeIDs[:1],
		})
		require.NoError(t, err)

		assert.False(t, again.ContainerCreated)
		assert.Equal(t, result.TargetContainerID, again.TargetContainerID)

		target, err := stack.containers.GetContainer(ctx, again.TargetContainerID)
		require.NoError(t, err)
		assert.Equal(t, 3, target.ElementCount())
		assert.Equal(t, 2, source.PromotionCount())
	})
}

func TestPromoteFromBoundGraph(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)
	stack.bootstrap(t, ctx)

	studio, err := stack.containers.CreateContainer(ctx, CreateContainerRequest{Name: "Studio"})
	require.NoError(t, err)
	boundGraph, err := stack.graphs.GetByContainer(ctx, studio.ID())
	require.NoError(t, err)

	node := testNode(t, "Sketch")
	_, err = stack.graphs.AppendNode(ctx, boundGraph.ID().String(), node)
	require.NoError(t, err)

	t.Run("descends one level below its own container", func(t *testing.T) {
		result, err := stack.promotion.Promote(ctx, PromoteRequest{
			SourceGraphID: boundGraph.ID().String(),
			NodeIDs:       []string{node.ID.String()},
		})
		require.NoError(t, err)

		assert.True(t, result.ContainerCreated)
		assert.Equal(t, 2, result.SourceGeneration)
		assert.Equal(t, 3, result.TargetGeneration)

		child, err := stack.containers.GetContainer(ctx, result.TargetContainerID)
		require.NoError(t, err)
		assert.Equal(t, studio.ID(), child.ParentID())
		assert.Equal(t, 2, child.Depth())
		assert.Equal(t, studio.Scope().String(), child.Scope().String())
	})

	t.Run("accepts its own container as an explicit target", func(t *testing.T) {
		result, err := stack.promotion.Promote(ctx, PromoteRequest{
			SourceGraphID:     boundGraph.ID().String(),
			NodeIDs:           []string{node.ID.String()},
			TargetContainerID: studio.ID().String(),
		})
		require.NoError(t, err)

		assert.False(t, result.ContainerCreated)
		assert.Equal(t, boundGraph.ID().String(), result.TargetGraphID)
		assert.Equal(t, 1, studio.ElementCount())

		// Source and target graph are the same entity, so its counter
		// moves by one, not two
		assert.Equal(t, 2, boundGraph.PromotionCount())
		assert.Equal(t, 1, studio.PromotionCount())
	})
}

func TestPromoteTargetOptions(t *testing.T) {
	ctx := context.Background()

	t.Run("newContainer skips the remembered target", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)
		source, nodeIDs := stack.seedGraphWithNodes(t, ctx, "Palette", "Teal", "Ochre")

		first, err := stack.promotion.Promote(ctx, PromoteRequest{
			SourceGraphID: source.ID().String(),
			NodeIDs:       nodeIDs[:1],
		})
		require.NoError(t, err)

		second, err := stack.promotion.Promote(ctx, PromoteRequest{
			SourceGraphID: source.ID().String(),
			NodeIDs:       nodeIDs[1:],
			NewContainer:  true,
		})
		require.NoError(t, err)
		assert.True(t, second.ContainerCreated)
		assert.NotEqual(t, first.TargetContainerID, second.TargetContainerID)

		// The oldest container stays the default for later promotions
		third, err := stack.promotion.Promote(ctx, PromoteRequest{
			SourceGraphID: source.ID().String(),
			NodeIDs:       nodeIDs[:1],
		})
		require.NoError(t, err)
		assert.False(t, third.ContainerCreated)
		assert.Equal(t, first.TargetContainerID, third.TargetContainerID)
	})

	t.Run("containerName overrides the source graph's name", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)
		source, nodeIDs := stack.seedGraphWithNodes(t, ctx, "Palette", "Teal")

		result, err := stack.promotion.Promote(ctx, PromoteRequest{
			SourceGraphID: source.ID().String(),
			NodeIDs:       nodeIDs,
			ContainerName: "Swatches",
		})
		require.NoError(t, err)

		target, err := stack.containers.GetContainer(ctx, result.TargetContainerID)
		require.NoError(t, err)
		assert.Equal(t, "Swatches", target.Name())
	})

	t.Run("existingOnly fails fast without a prior promotion", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)
		source, nodeIDs := stack.seedGraphWithNodes(t, ctx, "Palette", "Teal")
		containersBefore := stack.containers.Count(ctx)

		_, err := stack.promotion.Promote(ctx, PromoteRequest{
			SourceGraphID: source.ID().String(),
			NodeIDs:       nodeIDs,
			ExistingOnly:  true,
		})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsNotFound(err))

		assert.Equal(t, 0, source.PromotionCount())
		assert.Equal(t, containersBefore, stack.containers.Count(ctx))
	})

	t.Run("existingOnly reuses a remembered target", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)
		source, nodeIDs := stack.seedGraphWithNodes(t, ctx, "Palette", "Teal", "Ochre")

		first, err := stack.promotion.Promote(ctx, PromoteRequest{
			SourceGraphID: source.ID().String(),
			NodeIDs:       nodeIDs[:1],
		})
		require.NoError(t, err)

		second, err := stack.promotion.Promote(ctx, PromoteRequest{
			SourceGraphID: source.ID().String(),
			NodeIDs:       nodeIDs[1:],
			ExistingOnly:  true,
		})
		require.NoError(t, err)
		assert.False(t, second.ContainerCreated)
		assert.Equal(t, first.TargetContainerID, second.TargetContainerID)
	})
}

func TestPromoteRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("requires at least one node", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)
		source, _ := stack.seedGraphWithNodes(t, ctx, "Palette", "Teal")

		_, err := stack.promotion.Promote(ctx, PromoteRequest{SourceGraphID: source.ID().String()})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("names every missing node", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)
		source, nodeIDs := stack.seedGraphWithNodes(t, ctx, "Palette", "Teal")
		bogus := valueobjects.NewNodeID().String()

		_, err := stack.promotion.Promote(ctx, PromoteRequest{
			SourceGraphID: source.ID().String(),
			NodeIDs:       []string{nodeIDs[0], bogus},
		})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsNotFound(err))

		appErr := pkgerrors.GetAppError(err)
		require.NotNil(t, appErr)
		assert.Equal(t, []string{bogus}, appErr.Details["missing_node_ids"])
	})

	t.Run("rejects a cross-scope target without touching anything", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)

		source, err := stack.graphs.CreateProjectGraph(ctx, "Client board", valueobjects.NewProjectID().String())
		require.NoError(t, err)
		node := testNode(t, "Logo draft")
		_, err = stack.graphs.AppendNode(ctx, source.ID().String(), node)
		require.NoError(t, err)

		target, err := stack.containers.CreateContainer(ctx, CreateContainerRequest{Name: "Scratch"})
		require.NoError(t, err)
		graphsBefore := stack.graphs.Count(ctx)

		_, err = stack.promotion.Promote(ctx, PromoteRequest{
			SourceGraphID:     source.ID().String(),
			NodeIDs:           []string{node.ID.String()},
			TargetContainerID: target.ID().String(),
		})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsFlowIncompatible(err))

		assert.Equal(t, 0, target.ElementCount())
		assert.Equal(t, 0, source.PromotionCount())
		assert.Equal(t, graphsBefore, stack.graphs.Count(ctx))
	})

	t.Run("rejects contradictory target options", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)
		source, nodeIDs := stack.seedGraphWithNodes(t, ctx, "Palette", "Teal")

		_, err := stack.promotion.Promote(ctx, PromoteRequest{
			SourceGraphID: source.ID().String(),
			NodeIDs:       nodeIDs,
			NewContainer:  true,
			ExistingOnly:  true,
		})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))

		_, err = stack.promotion.Promote(ctx, PromoteRequest{
			SourceGraphID:     source.ID().String(),
			NodeIDs:           nodeIDs,
			TargetContainerID: valueobjects.NewContainerID().String(),
			NewContainer:      true,
		})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("refuses scope-less sources", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)

		node := testNode(t, "Old note")
		legacy, err := entities.ReconstructGraph(
			valueobjects.NewGraphID(), "Legacy sketches", valueobjects.Scope{}, 1,
			[]entities.GraphNode{node}, 0, 0, time.Now(), time.Now(), 1,
		)
		require.NoError(t, err)
		stack.graphs.graphs[legacy.ID()] = legacy

		_, err = stack.promotion.Promote(ctx, PromoteRequest{
			SourceGraphID: legacy.ID().String(),
			NodeIDs:       []string{node.ID.String()},
		})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
		assert.Contains(t, err.Error(), "legacy migration")
	})
}

func TestPromoteScopeToProject(t *testing.T) {
	ctx := context.Background()

	t.Run("rescopes a container in place", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)
		container, err := stack.containers.CreateContainer(ctx, CreateContainerRequest{Name: "Commission"})
		require.NoError(t, err)

		result, err := stack.promotion.PromoteScopeToProject(ctx, ScopePromotionRequest{
			EntityID: container.ID().String(),
		})
		require.NoError(t, err)

		assert.Equal(t, "container", result.EntityKind)
		assert.NotEmpty(t, result.ProjectID)
		assert.True(t, container.Scope().IsProject())
		require.NotNil(t, result.Integrity)
		assert.True(t, result.Integrity.Healthy)
	})

	t.Run("honors an explicit project", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)
		projectID := valueobjects.NewProjectID()
		graph, err := stack.graphs.CreateFreestyleGraph(ctx, "Sketchbook")
		require.NoError(t, err)

		result, err := stack.promotion.PromoteScopeToProject(ctx, ScopePromotionRequest{
			EntityID:  graph.ID().String(),
			ProjectID: projectID.String(),
		})
		require.NoError(t, err)

		assert.Equal(t, "graph", result.EntityKind)
		assert.Equal(t, projectID.String(), result.ProjectID)
		assert.True(t, graph.Scope().IsProject())
		got, ok := graph.Scope().ProjectID()
		require.True(t, ok)
		assert.Equal(t, projectID.String(), got.String())
	})

	t.Run("refuses the root container", func(t *testing.T) {
		stack := newTestStack(t)
		root := stack.bootstrap(t, ctx)

		_, err := stack.promotion.PromoteScopeToProject(ctx, ScopePromotionRequest{
			EntityID: root.ID().String(),
		})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("refuses the general graph", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)
		general := stack.graphs.EnsureGeneralGraph(ctx)

		_, err := stack.promotion.PromoteScopeToProject(ctx, ScopePromotionRequest{
			EntityID: general.ID().String(),
		})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("refuses bound graphs", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)
		container, err := stack.containers.CreateContainer(ctx, CreateContainerRequest{Name: "Studio"})
		require.NoError(t, err)

		_, err = stack.promotion.PromoteScopeToProject(ctx, ScopePromotionRequest{
			EntityID: container.BoundGraphID().String(),
		})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("rescoping twice is a conflict", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)
		container, err := stack.containers.CreateContainer(ctx, CreateContainerRequest{Name: "Commission"})
		require.NoError(t, err)

		_, err = stack.promotion.PromoteScopeToProject(ctx, ScopePromotionRequest{
			EntityID: container.ID().String(),
		})
		require.NoError(t, err)

		_, err = stack.promotion.PromoteScopeToProject(ctx, ScopePromotionRequest{
			EntityID: container.ID().String(),
		})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsConflict(err))
	})

	t.Run("unknown entities are not found", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)

		_, err := stack.promotion.PromoteScopeToProject(ctx, ScopePromotionRequest{
			EntityID: valueobjects.NewContainerID().String(),
		})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("surfaces the violations rescoping creates", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)
		source, nodeIDs := stack.seedGraphWithNodes(t, ctx, "Palette", "Teal")
		promoted, err := stack.promotion.Promote(ctx, PromoteRequest{
			SourceGraphID: source.ID().String(),
			NodeIDs:       nodeIDs,
		})
		require.NoError(t, err)

		result, err := stack.promotion.PromoteScopeToProject(ctx, ScopePromotionRequest{
			EntityID: promoted.TargetContainerID,
		})
		require.NoError(t, err)

		require.NotNil(t, result.Integrity)
		assert.False(t, result.Integrity.Healthy)
		assert.NotEmpty(t, result.Integrity.InvalidFlows)
	})
}

func TestMigrateLegacy(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the missing bound graphs", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)
		container, err := stack.containers.CreateContainer(ctx, CreateContainerRequest{Name: "Archive"})
		require.NoError(t, err)
		require.NoError(t, stack.graphs.Remove(ctx, container.BoundGraphID().String()))

		result, err := stack.promotion.MigrateLegacy(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, result.GraphsCreated)
		require.Len(t, result.CreatedGraphIDs, 1)

		graph, err := stack.graphs.GetByContainer(ctx, container.ID())
		require.NoError(t, err)
		assert.Equal(t, result.CreatedGraphIDs[0], graph.ID().String())
		assert.Equal(t, graph.ID(), container.BoundGraphID())
		assert.Equal(t, container.Depth()+1, graph.Generation())
	})

	t.Run("normalizes scope-less graphs to freestyle", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)

		legacy, err := entities.ReconstructGraph(
			valueobjects.NewGraphID(), "Legacy sketches", valueobjects.Scope{}, 1,
			nil, 0, 0, time.Now(), time.Now(), 1,
		)
		require.NoError(t, err)
		stack.graphs.graphs[legacy.ID()] = legacy

		result, err := stack.promotion.MigrateLegacy(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, result.GraphsNormalized)
		assert.True(t, legacy.Scope().IsFreestyle())
	})

	t.Run("a second sweep finds nothing to do", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)
		container, err := stack.containers.CreateContainer(ctx, CreateContainerRequest{Name: "Archive"})
		require.NoError(t, err)
		require.NoError(t, stack.graphs.Remove(ctx, container.BoundGraphID().String()))

		_, err = stack.promotion.MigrateLegacy(ctx)
		require.NoError(t, err)

		result, err := stack.promotion.MigrateLegacy(ctx)
		require.NoError(t, err)

		assert.Zero(t, result.GraphsCreated)
		assert.Zero(t, result.GraphsNormalized)
		assert.Equal(t, 2, result.Skipped)
	})

	t.Run("respects the feature flag", func(t *testing.T) {
		cfg := config.DefaultDomainConfig()
		cfg.EnableLegacyMigration = false
		logger := zap.NewNop()
		graphs := NewGraphStore(cfg, nil, nil, nil, logger)
		containers := NewContainerStore(cfg, graphs, nil, nil, nil, logger)
		engine := NewPromotionEngine(cfg, containers, graphs, validators.NewFlowValidator(), nil, logger)

		_, err := engine.MigrateLegacy(ctx)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
	})
}
