package services

import (
	"context"
	"testing"

	"github.com/PRicaldone/atelier-sub003/domain/config"
	"github.com/PRicaldone/atelier-sub003/domain/core/entities"
	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphStoreGeneralGraph(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)

	t.Run("ensure is idempotent", func(t *testing.T) {
		first := stack.graphs.EnsureGeneralGraph(ctx)
		second := stack.graphs.EnsureGeneralGraph(ctx)

		assert.Equal(t, valueobjects.GeneralGraphID(), first.ID())
		assert.Same(t, first, second)
		assert.Equal(t, 1, stack.graphs.Count(ctx))
	})

	t.Run("general graph is freestyle first generation", func(t *testing.T) {
		general := stack.graphs.EnsureGeneralGraph(ctx)

		assert.True(t, general.IsGeneral())
		assert.True(t, general.Scope().IsFreestyle())
		assert.Equal(t, 1, general.Generation())
	})

	t.Run("general graph cannot be removed", func(t *testing.T) {
		general := stack.graphs.EnsureGeneralGraph(ctx)

		err := stack.graphs.Remove(ctx, general.ID().String())
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))

		_, err = stack.graphs.Get(ctx, general.ID().String())
		assert.NoError(t, err)
	})
}

func TestGraphStoreCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("freestyle graph", func(t *testing.T) {
		stack := newTestStack(t)

		graph, err := stack.graphs.CreateFreestyleGraph(ctx, "Ideas")
		require.NoError(t, err)

		assert.Equal(t, "Ideas", graph.Name())
		assert.True(t, graph.Scope().IsFreestyle())
		assert.Equal(t, 1, graph.Generation())
	})

	t.Run("empty name falls back to default", func(t *testing.T) {
		stack := newTestStack(t)

		graph, err := stack.graphs.CreateFreestyleGraph(ctx, "  ")
		require.NoError(t, err)
		assert.Equal(t, stack.cfg.DefaultGraphName, graph.Name())
	})

	t.Run("project graph requires a project", func(t *testing.T) {
		stack := newTestStack(t)

		_, err := stack.graphs.CreateProjectGraph(ctx, "Roadmap", "")
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))

		projectID := valueobjects.NewProjectID()
		graph, err := stack.graphs.CreateProjectGraph(ctx, "Roadmap", projectID.String())
		require.NoError(t, err)

		assert.True(t, graph.Scope().IsProject())
		got, ok := graph.Scope().ProjectID()
		require.True(t, ok)
		assert.Equal(t, projectID.String(), got.String())
	})

	t.Run("container bound graph is indexed by container", func(t *testing.T) {
		stack := newTestStack(t)
		containerID := valueobjects.NewContainerID()

		graph, err := stack.graphs.CreateContainerBoundGraph(ctx, "Level", containerID, 2)
		require.NoError(t, err)

		found, err := stack.graphs.GetByContainer(ctx, containerID)
		require.NoError(t, err)
		assert.Equal(t, graph.ID(), found.ID())
		assert.Equal(t, 2, found.Generation())
	})

	t.Run("duplicate binding returns the existing graph", func(t *testing.T) {
		stack := newTestStack(t)
		containerID := valueobjects.NewContainerID()

		first, err := stack.graphs.CreateContainerBoundGraph(ctx, "Level", containerID, 2)
		require.NoError(t, err)

		second, err := stack.graphs.CreateContainerBoundGraph(ctx, "Level again", containerID, 3)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, stack.graphs.Count(ctx))
	})
}

func TestGraphStoreNodes(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)

	graph, nodeIDs := stack.seedGraphWithNodes(t, ctx, "Sketchpad", "one", "two")

	t.Run("append and count", func(t *testing.T) {
		current, err := stack.graphs.Get(ctx, graph.ID().String())
		require.NoError(t, err)
		assert.Equal(t, 2, current.NodeCount())
	})

	t.Run("remove node", func(t *testing.T) {
		_, err := stack.graphs.RemoveNode(ctx, graph.ID().String(), nodeIDs[0])
		require.NoError(t, err)

		current, err := stack.graphs.Get(ctx, graph.ID().String())
		require.NoError(t, err)
		assert.Equal(t, 1, current.NodeCount())
	})

	t.Run("remove missing node", func(t *testing.T) {
		_, err := stack.graphs.RemoveNode(ctx, graph.ID().String(), nodeIDs[0])
		require.Error(t, err)
		assert.True(t, pkgerrors.IsNotFound(err))
	})
}

func TestGraphStoreContentRules(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)

	graph, _ := stack.seedGraphWithNodes(t, ctx, "Inbox", "seed")

	position, err := valueobjects.NewPosition(4, 8)
	require.NoError(t, err)
	untitled := entities.NewGraphNode(
		valueobjects.ReconstructNodeContent("", "loose thought, no title yet"),
		position, nil)

	t.Run("untitled node is rejected under default rules", func(t *testing.T) {
		_, err := stack.graphs.AppendNode(ctx, graph.ID().String(), untitled)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("reloaded permissive rules accept the same node", func(t *testing.T) {
		stack.graphs.ReloadRules(config.DevelopmentDomainConfig())

		updated, err := stack.graphs.AppendNode(ctx, graph.ID().String(), untitled)
		require.NoError(t, err)
		assert.Equal(t, 2, updated.NodeCount())
	})
}

func TestGraphStoreUpdate(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)

	graph, _ := stack.seedGraphWithNodes(t, ctx, "Draft", "keep me")

	t.Run("rename", func(t *testing.T) {
		name := "Final"
		updated, err := stack.graphs.Update(ctx, graph.ID().String(), UpdateGraphRequest{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "Final", updated.Name())
	})

	t.Run("replace nodes wholesale", func(t *testing.T) {
		replacement := testNode(t, "replacement")
		nodes := []entities.GraphNode{replacement}

		updated, err := stack.graphs.Update(ctx, graph.ID().String(), UpdateGraphRequest{Nodes: &nodes})
		require.NoError(t, err)
		assert.Equal(t, 1, updated.NodeCount())
		assert.True(t, updated.HasNode(replacement.ID))
	})

	t.Run("unknown graph", func(t *testing.T) {
		name := "x"
		_, err := stack.graphs.Update(ctx, valueobjects.NewGraphID().String(), UpdateGraphRequest{Name: &name})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsNotFound(err))
	})
}

func TestGraphStoreListing(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)

	stack.graphs.EnsureGeneralGraph(ctx)
	_, err := stack.graphs.CreateFreestyleGraph(ctx, "A")
	require.NoError(t, err)
	projectID := valueobjects.NewProjectID()
	_, err = stack.graphs.CreateProjectGraph(ctx, "B", projectID.String())
	require.NoError(t, err)

	t.Run("list is deterministic and complete", func(t *testing.T) {
		all := stack.graphs.List(ctx)
		require.Len(t, all, 3)
		assert.True(t, all[0].IsGeneral())
	})

	t.Run("filter by scope kind", func(t *testing.T) {
		projects := stack.graphs.ListByScope(ctx, valueobjects.ScopeProject)
		require.Len(t, projects, 1)
		assert.Equal(t, "B", projects[0].Name())

		freestyle := stack.graphs.ListByScope(ctx, valueobjects.ScopeFreestyle)
		assert.Len(t, freestyle, 2)
	})
}

func TestGraphStoreRemove(t *testing.T) {
	ctx := context.Background()
	stack := newTestStack(t)

	t.Run("freestyle graph removal", func(t *testing.T) {
		graph, err := stack.graphs.CreateFreestyleGraph(ctx, "Scratch")
		require.NoError(t, err)

		require.NoError(t, stack.graphs.Remove(ctx, graph.ID().String()))

		_, err = stack.graphs.Get(ctx, graph.ID().String())
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("container bound removal is permitted but unindexes", func(t *testing.T) {
		containerID := valueobjects.NewContainerID()
		graph, err := stack.graphs.CreateContainerBoundGraph(ctx, "Level", containerID, 2)
		require.NoError(t, err)

		require.NoError(t, stack.graphs.Remove(ctx, graph.ID().String()))

		_, err = stack.graphs.GetByContainer(ctx, containerID)
		assert.True(t, pkgerrors.IsNotFound(err))
	})
}
