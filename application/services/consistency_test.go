package services

import (
	"context"
	"testing"

	"github.com/PRicaldone/atelier-sub003/domain/config"
	"github.com/PRicaldone/atelier-sub003/domain/core/validators"
	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConsistencyValidateIntegrity(t *testing.T) {
	ctx := context.Background()

	t.Run("a fresh workspace is healthy", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)

		report, err := stack.consistency.ValidateIntegrity(ctx)
		require.NoError(t, err)

		assert.True(t, report.Healthy)
		assert.Zero(t, report.TotalFindings())
		assert.Equal(t, 1, report.CheckedContainers)
		assert.Equal(t, 2, report.CheckedGraphs)
	})

	t.Run("detects a container whose bound graph is gone", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)

		container, err := stack.containers.CreateContainer(ctx, CreateContainerRequest{Name: "Atelier"})
		require.NoError(t, err)
		require.NoError(t, stack.graphs.Remove(ctx, container.BoundGraphID().String()))

		report, err := stack.consistency.ValidateIntegrity(ctx)
		require.NoError(t, err)

		assert.False(t, report.Healthy)
		require.Len(t, report.OrphanedContainers, 1)
		assert.Equal(t, container.ID().String(), report.OrphanedContainers[0].ContainerID)
		assert.Equal(t, "bound graph no longer exists", report.OrphanedContainers[0].Reason)
	})

	t.Run("detects a graph whose container is gone", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)

		stray, err := stack.graphs.CreateContainerBoundGraph(ctx, "Stray", valueobjects.NewContainerID(), 3)
		require.NoError(t, err)

		report, err := stack.consistency.ValidateIntegrity(ctx)
		require.NoError(t, err)

		assert.False(t, report.Healthy)
		require.Len(t, report.OrphanedGraphs, 1)
		assert.Equal(t, stray.ID().String(), report.OrphanedGraphs[0].GraphID)
	})

	t.Run("detects a generation out of step with nesting depth", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)

		container, err := stack.containers.CreateContainer(ctx, CreateContainerRequest{Name: "Atelier"})
		require.NoError(t, err)
		graph, err := stack.graphs.GetByContainer(ctx, container.ID())
		require.NoError(t, err)
		require.NoError(t, graph.SetGeneration(7))

		report, err := stack.consistency.ValidateIntegrity(ctx)
		require.NoError(t, err)

		assert.False(t, report.Healthy)
		require.Len(t, report.GenerationMismatches, 1)
		mismatch := report.GenerationMismatches[0]
		assert.Equal(t, graph.ID().String(), mismatch.GraphID)
		assert.Equal(t, 2, mismatch.Expected)
		assert.Equal(t, 7, mismatch.Actual)
	})

	t.Run("detects promotion links broken by rescoping", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)

		source, nodeIDs := stack.seedGraphWithNodes(t, ctx, "Palette", "Teal", "Ochre")
		promoted, err := stack.promotion.Promote(ctx, PromoteRequest{
			SourceGraphID: source.ID().String(),
			NodeIDs:       nodeIDs,
		})
		require.NoError(t, err)

		// Rescoping only the target leaves the freestyle source pointing
		// at a project container, which the flow rules reject
		_, err = stack.promotion.PromoteScopeToProject(ctx, ScopePromotionRequest{
			EntityID: promoted.TargetContainerID,
		})
		require.NoError(t, err)

		report, err := stack.consistency.ValidateIntegrity(ctx)
		require.NoError(t, err)

		assert.False(t, report.Healthy)
		require.Len(t, report.InvalidFlows, 2)

		links := map[string]bool{}
		for _, finding := range report.InvalidFlows {
			assert.Equal(t, source.ID().String(), finding.SourceGraphID)
			assert.Equal(t, promoted.TargetContainerID, finding.TargetContainerID)
			links[finding.Link] = true
		}
		assert.True(t, links[FlowLinkContainerOrigin])
		assert.True(t, links[FlowLinkElementProvenance])
	})

	t.Run("retires flow checks once the source graph is removed", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)

		source, nodeIDs := stack.seedGraphWithNodes(t, ctx, "Palette", "Teal")
		promoted, err := stack.promotion.Promote(ctx, PromoteRequest{
			SourceGraphID: source.ID().String(),
			NodeIDs:       nodeIDs,
		})
		require.NoError(t, err)

		_, err = stack.promotion.PromoteScopeToProject(ctx, ScopePromotionRequest{
			EntityID: promoted.TargetContainerID,
		})
		require.NoError(t, err)
		require.NoError(t, stack.graphs.Remove(ctx, source.ID().String()))

		report, err := stack.consistency.ValidateIntegrity(ctx)
		require.NoError(t, err)
		assert.Empty(t, report.InvalidFlows)
	})
}

func TestConsistencyAutoRepair(t *testing.T) {
	ctx := context.Background()

	t.Run("heals an orphaned container with a fresh bound graph", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)

		container, err := stack.containers.CreateContainer(ctx, CreateContainerRequest{Name: "Atelier"})
		require.NoError(t, err)
		require.NoError(t, stack.graphs.Remove(ctx, container.BoundGraphID().String()))

		summary, err := stack.consistency.AutoRepair(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, summary.ContainersHealed)
		assert.True(t, summary.Healthy)
		assert.True(t, summary.After.Healthy)

		healed, err := stack.graphs.GetByContainer(ctx, container.ID())
		require.NoError(t, err)
		assert.Equal(t, container.Depth()+1, healed.Generation())
		assert.Equal(t, container.Name(), healed.Name())
	})

	t.Run("removes a graph whose container is gone", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)

		stray, err := stack.graphs.CreateContainerBoundGraph(ctx, "Stray", valueobjects.NewContainerID(), 3)
		require.NoError(t, err)

		summary, err := stack.consistency.AutoRepair(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, summary.GraphsRemoved)
		assert.True(t, summary.Healthy)
		_, err = stack.graphs.Get(ctx, stray.ID().String())
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("realigns generations in place", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)

		container, err := stack.containers.CreateContainer(ctx, CreateContainerRequest{Name: "Atelier"})
		require.NoError(t, err)
		graph, err := stack.graphs.GetByContainer(ctx, container.ID())
		require.NoError(t, err)
		require.NoError(t, graph.SetGeneration(9))

		summary, err := stack.consistency.AutoRepair(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, summary.GenerationsReset)
		assert.True(t, summary.Healthy)
		assert.Equal(t, 2, graph.Generation())
	})

	t.Run("fixes a compound corruption in a single pass", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)

		orphanHost, err := stack.containers.CreateContainer(ctx, CreateContainerRequest{Name: "Orphaned"})
		require.NoError(t, err)
		require.NoError(t, stack.graphs.Remove(ctx, orphanHost.BoundGraphID().String()))

		_, err = stack.graphs.CreateContainerBoundGraph(ctx, "Stray", valueobjects.NewContainerID(), 4)
		require.NoError(t, err)

		drifting, err := stack.containers.CreateContainer(ctx, CreateContainerRequest{Name: "Drifting"})
		require.NoError(t, err)
		graph, err := stack.graphs.GetByContainer(ctx, drifting.ID())
		require.NoError(t, err)
		require.NoError(t, graph.SetGeneration(11))

		summary, err := stack.consistency.AutoRepair(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, summary.ContainersHealed)
		assert.Equal(t, 1, summary.GraphsRemoved)
		assert.Equal(t, 1, summary.GenerationsReset)
		assert.True(t, summary.Healthy)
		assert.Equal(t, 3, summary.Before.TotalFindings())
		assert.Zero(t, summary.After.TotalFindings())
	})

	t.Run("replaying a repair changes nothing", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)

		container, err := stack.containers.CreateContainer(ctx, CreateContainerRequest{Name: "Atelier"})
		require.NoError(t, err)
		require.NoError(t, stack.graphs.Remove(ctx, container.BoundGraphID().String()))

		_, err = stack.consistency.AutoRepair(ctx)
		require.NoError(t, err)

		summary, err := stack.consistency.AutoRepair(ctx)
		require.NoError(t, err)

		assert.True(t, summary.Before.Healthy)
		assert.Zero(t, summary.ContainersHealed)
		assert.Zero(t, summary.GraphsRemoved)
		assert.Zero(t, summary.GenerationsReset)
		assert.True(t, summary.Healthy)
	})

	t.Run("leaves invalid flows untouched", func(t *testing.T) {
		stack := newTestStack(t)
		stack.bootstrap(t, ctx)

		source, nodeIDs := stack.seedGraphWithNodes(t, ctx, "Palette", "Teal")
		promoted, err := stack.promotion.Promote(ctx, PromoteRequest{
			SourceGraphID: source.ID().String(),
			NodeIDs:       nodeIDs,
		})
		require.NoError(t, err)
		_, err = stack.promotion.PromoteScopeToProject(ctx, ScopePromotionRequest{
			EntityID: promoted.TargetContainerID,
		})
		require.NoError(t, err)

		summary, err := stack.consistency.AutoRepair(ctx)
		require.NoError(t, err)

		assert.False(t, summary.Healthy)
		assert.Len(t, summary.After.InvalidFlows, 2)
		assert.Zero(t, summary.ContainersHealed+summary.GraphsRemoved+summary.GenerationsReset)
		assert.Empty(t, summary.Remainder)
	})

	t.Run("respects the feature flag", func(t *testing.T) {
		cfg := config.DefaultDomainConfig()
		cfg.EnableAutoRepair = false
		logger := zap.NewNop()
		graphs := NewGraphStore(cfg, nil, nil, nil, logger)
		containers := NewContainerStore(cfg, graphs, nil, nil, nil, logger)
		engine := NewConsistencyEngine(cfg, containers, graphs, validators.NewFlowValidator(), nil, logger)

		_, err := engine.AutoRepair(ctx)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
	})
}
