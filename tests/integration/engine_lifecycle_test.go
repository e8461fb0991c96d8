// Package integration exercises the full stack the way the api binary
// runs it: di-wired services over a real snapshot store, through stop
// and restart.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/PRicaldone/atelier-sub003/application/services"
	"github.com/PRicaldone/atelier-sub003/domain/core/entities"
	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
	"github.com/PRicaldone/atelier-sub003/infrastructure/config"
	"github.com/PRicaldone/atelier-sub003/infrastructure/di"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startEngine wires a complete container against the given Redis and
// bootstraps it, exactly as cmd/api does on startup.
func startEngine(t *testing.T, ctx context.Context, redisURL string) *di.Container {
	t.Helper()

	cfg := &config.Config{
		Environment:    "test",
		StorageBackend: config.StorageRedis,
		RedisURL:       redisURL,

		SnapshotQuietPeriod:     50 * time.Millisecond,
		SnapshotMaxPendingAge:   time.Second,
		SnapshotVerifyChecksums: true,
		FlushMaxRetries:         1,
		FlushRetryBackoff:       10 * time.Millisecond,
		FlushWriteTimeout:       2 * time.Second,

		LogLevel:         "error",
		MetricsNamespace: "test",
	}

	container, err := di.InitializeContainer(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, container.Bootstrap(ctx))
	return container
}

// restartEngine flushes pending snapshots, shuts the engine down, and
// brings a fresh one up over the same store.
func restartEngine(t *testing.T, ctx context.Context, engine *di.Container, redisURL string) *di.Container {
	t.Helper()

	require.NoError(t, engine.Queue.Flush(ctx))
	engine.Cleanup(ctx)
	return startEngine(t, ctx, redisURL)
}

func redisURL(t *testing.T) string {
	t.Helper()
	return "redis://" + miniredis.RunT(t).Addr()
}

func testElement(t *testing.T, name string) entities.Element {
	t.Helper()

	position, err := valueobjects.NewPosition(12, 34)
	require.NoError(t, err)
	element, err := entities.NewElement(name, entities.ElementKindNote, position)
	require.NoError(t, err)
	return element
}

func seedNode(t *testing.T, ctx context.Context, engine *di.Container, graphID, title string) entities.GraphNode {
	t.Helper()

	content, err := valueobjects.NewNodeContent(title, "body of "+title)
	require.NoError(t, err)
	position, err := valueobjects.NewPosition(3, 7)
	require.NoError(t, err)
	node := entities.NewGraphNode(content, position, nil)

	_, err = engine.GraphStore.AppendNode(ctx, graphID, node)
	require.NoError(t, err)
	return node
}

func TestBootstrapPairsHierarchies(t *testing.T) {
	ctx := context.Background()
	engine := startEngine(t, ctx, redisURL(t))
	defer engine.Cleanup(ctx)

	root, err := engine.ContainerStore.ActiveContainer(ctx)
	require.NoError(t, err)
	assert.True(t, root.IsRoot())
	assert.True(t, root.HasBoundGraph())

	bound, err := engine.GraphStore.GetByContainer(ctx, root.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, bound.Generation())

	general, err := engine.GraphStore.Get(ctx, valueobjects.GeneralGraphID().String())
	require.NoError(t, err)
	assert.True(t, general.IsGeneral())

	report, err := engine.ConsistencyEngine.ValidateIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Healthy)
}

func TestCanvasStateSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	url := redisURL(t)
	engine := startEngine(t, ctx, url)

	root, err := engine.ContainerStore.ActiveContainer(ctx)
	require.NoError(t, err)
	rootID := root.ID().String()

	created, err := engine.ContainerStore.CreateContainer(ctx, services.CreateContainerRequest{Name: "Atelier"})
	require.NoError(t, err)

	_, err = engine.ContainerStore.Enter(ctx, created.ID().String())
	require.NoError(t, err)
	_, err = engine.ContainerStore.SaveActiveLevel(ctx, []entities.Element{
		testElement(t, "Sketch"),
		testElement(t, "Reference"),
	})
	require.NoError(t, err)
	_, err = engine.ContainerStore.Exit(ctx)
	require.NoError(t, err)

	graph, err := engine.GraphStore.CreateFreestyleGraph(ctx, "Ideas")
	require.NoError(t, err)
	node := seedNode(t, ctx, engine, graph.ID().String(), "First thought")

	engine = restartEngine(t, ctx, engine, url)
	defer engine.Cleanup(ctx)

	// The root is restored, not re-created
	restoredRoot, err := engine.ContainerStore.ActiveContainer(ctx)
	require.NoError(t, err)
	assert.Equal(t, rootID, restoredRoot.ID().String())

	restored, err := engine.ContainerStore.GetContainer(ctx, created.ID().String())
	require.NoError(t, err)
	elements := restored.Elements()
	require.Len(t, elements, 2)
	assert.Equal(t, "Sketch", elements[0].Name)
	assert.Equal(t, "Reference", elements[1].Name)
	assert.Equal(t, created.BoundGraphID().String(), restored.BoundGraphID().String())

	restoredGraph, err := engine.GraphStore.Get(ctx, graph.ID().String())
	require.NoError(t, err)
	require.Equal(t, 1, restoredGraph.NodeCount())
	assert.True(t, restoredGraph.HasNode(node.ID))

	// Bootstrap against restored state must not mint a second general graph
	generals := 0
	for _, g := range engine.GraphStore.List(ctx) {
		if g.IsGeneral() {
			generals++
		}
	}
	assert.Equal(t, 1, generals)

	report, err := engine.ConsistencyEngine.ValidateIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Healthy)
}

func TestNavigationSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	url := redisURL(t)
	engine := startEngine(t, ctx, url)

	created, err := engine.ContainerStore.CreateContainer(ctx, services.CreateContainerRequest{Name: "Deep work"})
	require.NoError(t, err)
	_, err = engine.ContainerStore.Enter(ctx, created.ID().String())
	require.NoError(t, err)

	engine = restartEngine(t, ctx, engine, url)
	defer engine.Cleanup(ctx)

	active, err := engine.ContainerStore.ActiveContainer(ctx)
	require.NoError(t, err)
	assert.Equal(t, created.ID().String(), active.ID().String())

	hierarchy, err := engine.ContainerStore.GetHierarchy(ctx)
	require.NoError(t, err)
	require.Len(t, hierarchy.Children, 1)
	assert.True(t, hierarchy.OnActivePath)
	assert.True(t, hierarchy.Children[0].Active)
}

func TestPromotionProvenanceSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	url := redisURL(t)
	engine := startEngine(t, ctx, url)

	source, err := engine.GraphStore.CreateFreestyleGraph(ctx, "Palette")
	require.NoError(t, err)
	sourceID := source.ID().String()
	teal := seedNode(t, ctx, engine, sourceID, "Teal")
	ochre := seedNode(t, ctx, engine, sourceID, "Ochre")

	result, err := engine.PromotionEngine.Promote(ctx, services.PromoteRequest{
		SourceGraphID: sourceID,
		NodeIDs:       []string{teal.ID.String(), ochre.ID.String()},
	})
	require.NoError(t, err)
	assert.True(t, result.ContainerCreated)
	assert.Equal(t, 2, result.PromotedCount)

	// Promotion copies; the source keeps its nodes
	after, err := engine.GraphStore.Get(ctx, sourceID)
	require.NoError(t, err)
	assert.Equal(t, 2, after.NodeCount())

	// Promoting the same node twice duplicates it, there is no dedup
	again, err := engine.PromotionEngine.Promote(ctx, services.PromoteRequest{
		SourceGraphID:     sourceID,
		NodeIDs:           []string{teal.ID.String()},
		TargetContainerID: result.TargetContainerID,
	})
	require.NoError(t, err)
	assert.False(t, again.ContainerCreated)

	engine = restartEngine(t, ctx, engine, url)
	defer engine.Cleanup(ctx)

	target, err := engine.ContainerStore.GetContainer(ctx, result.TargetContainerID)
	require.NoError(t, err)
	elements := target.Elements()
	require.Len(t, elements, 3)

	fromTeal := 0
	for _, element := range elements {
		require.True(t, element.HasProvenance())
		assert.Equal(t, sourceID, element.Provenance.SourceGraphID.String())
		if element.Provenance.SourceNodeID == teal.ID {
			fromTeal++
		}
	}
	assert.Equal(t, 2, fromTeal)

	report, err := engine.ConsistencyEngine.ValidateIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Healthy)
}

func TestRepairSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	url := redisURL(t)
	engine := startEngine(t, ctx, url)

	orphaned, err := engine.ContainerStore.CreateContainer(ctx, services.CreateContainerRequest{Name: "Orphaned"})
	require.NoError(t, err)
	require.NoError(t, engine.GraphStore.Remove(ctx, orphaned.BoundGraphID().String()))

	stray, err := engine.GraphStore.CreateContainerBoundGraph(ctx, "Stray", valueobjects.NewContainerID(), 3)
	require.NoError(t, err)

	report, err := engine.ConsistencyEngine.ValidateIntegrity(ctx)
	require.NoError(t, err)
	require.False(t, report.Healthy)
	assert.Len(t, report.OrphanedContainers, 1)
	assert.Len(t, report.OrphanedGraphs, 1)

	summary, err := engine.ConsistencyEngine.AutoRepair(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Healthy)
	assert.Equal(t, 1, summary.ContainersHealed)
	assert.Equal(t, 1, summary.GraphsRemoved)

	engine = restartEngine(t, ctx, engine, url)
	defer engine.Cleanup(ctx)

	healed, err := engine.GraphStore.GetByContainer(ctx, orphaned.ID())
	require.NoError(t, err)
	assert.Equal(t, orphaned.Depth()+1, healed.Generation())

	_, err = engine.GraphStore.Get(ctx, stray.ID().String())
	assert.True(t, pkgerrors.IsNotFound(err))

	report, err = engine.ConsistencyEngine.ValidateIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Healthy)
}

func TestCascadeDeletePersists(t *testing.T) {
	ctx := context.Background()
	url := redisURL(t)
	engine := startEngine(t, ctx, url)

	parent, err := engine.ContainerStore.CreateContainer(ctx, services.CreateContainerRequest{Name: "Parent"})
	require.NoError(t, err)
	child, err := engine.ContainerStore.CreateContainer(ctx, services.CreateContainerRequest{
		Name:     "Child",
		ParentID: parent.ID().String(),
	})
	require.NoError(t, err)

	result, err := engine.ContainerStore.DeleteContainer(ctx, parent.ID().String())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{parent.ID().String(), child.ID().String()}, result.RemovedContainers)
	assert.ElementsMatch(t, []string{parent.BoundGraphID().String(), child.BoundGraphID().String()}, result.RemovedGraphs)

	engine = restartEngine(t, ctx, engine, url)
	defer engine.Cleanup(ctx)

	_, err = engine.ContainerStore.GetContainer(ctx, parent.ID().String())
	assert.True(t, pkgerrors.IsNotFound(err))
	_, err = engine.GraphStore.Get(ctx, child.BoundGraphID().String())
	assert.True(t, pkgerrors.IsNotFound(err))

	// The general graph is never part of a cascade
	general, err := engine.GraphStore.Get(ctx, valueobjects.GeneralGraphID().String())
	require.NoError(t, err)
	assert.True(t, general.IsGeneral())

	report, err := engine.ConsistencyEngine.ValidateIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Healthy)
}
