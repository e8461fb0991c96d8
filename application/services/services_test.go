package services

import (
	"context"
	"testing"

	"github.com/PRicaldone/atelier-sub003/domain/config"
	"github.com/PRicaldone/atelier-sub003/domain/core/entities"
	"github.com/PRicaldone/atelier-sub003/domain/core/validators"
	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testStack wires the four services over in-memory state only, with no
// persistence or event bus attached
type testStack struct {
	cfg         *config.DomainConfig
	containers  *ContainerStore
	graphs      *GraphStore
	consistency *ConsistencyEngine
	promotion   *PromotionEngine
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	cfg := config.DefaultDomainConfig()
	logger := zap.NewNop()
	flow := validators.NewFlowValidator()

	graphs := NewGraphStore(cfg, nil, nil, nil, logger)
	containers := NewContainerStore(cfg, graphs, nil, nil, nil, logger)

	return &testStack{
		cfg:         cfg,
		containers:  containers,
		graphs:      graphs,
		consistency: NewConsistencyEngine(cfg, containers, graphs, flow, nil, logger),
		promotion:   NewPromotionEngine(cfg, containers, graphs, flow, nil, logger),
	}
}

// bootstrap initializes the canvas and the general graph the way the
// application does at startup
func (s *testStack) bootstrap(t *testing.T, ctx context.Context) *entities.Container {
	t.Helper()

	s.graphs.EnsureGeneralGraph(ctx)
	root, err := s.containers.EnsureRoot(ctx, "")
	require.NoError(t, err)
	return root
}

func testNode(t *testing.T, title string) entities.GraphNode {
	t.Helper()

	content, err := valueobjects.NewNodeContent(title, "body of "+title)
	require.NoError(t, err)
	position, err := valueobjects.NewPosition(10, 20)
	require.NoError(t, err)
	return entities.NewGraphNode(content, position, nil)
}

// seedGraphWithNodes creates a freestyle graph carrying one node per
// given title, returning the graph and the node IDs in order
func (s *testStack) seedGraphWithNodes(t *testing.T, ctx context.Context, name string, titles ...string) (*entities.Graph, []string) {
	t.Helper()

	graph, err := s.graphs.CreateFreestyleGraph(ctx, name)
	require.NoError(t, err)

	ids := make([]string, 0, len(titles))
	for _, title := range titles {
		node := testNode(t, title)
		_, err := s.graphs.AppendNode(ctx, graph.ID().String(), node)
		require.NoError(t, err)
		ids = append(ids, node.ID.String())
	}
	return graph, ids
}
