package handlers

import (
	"time"

	"github.com/PRicaldone/atelier-sub003/domain/core/entities"
	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
)

// View types decouple the JSON surface from the domain entities, which
// expose state through getters only.

type positionView struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type sizeView struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type scopeView struct {
	Kind        string `json:"kind"`
	ProjectID   string `json:"projectId,omitempty"`
	ContainerID string `json:"containerId,omitempty"`
}

type provenanceView struct {
	SourceNodeID  string    `json:"sourceNodeId"`
	SourceGraphID string    `json:"sourceGraphId"`
	PromotedAt    time.Time `json:"promotedAt"`
}

type elementView struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Kind       string          `json:"kind"`
	Position   positionView    `json:"position"`
	Provenance *provenanceView `json:"provenance,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

type containerView struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Kind           string        `json:"kind"`
	ParentID       string        `json:"parentId,omitempty"`
	Scope          scopeView     `json:"scope"`
	BoundGraphID   string        `json:"boundGraphId,omitempty"`
	Depth          int           `json:"depth"`
	PromotionCount int           `json:"promotionCount"`
	Position       positionView  `json:"position"`
	Size           *sizeView     `json:"size,omitempty"`
	Elements       []elementView `json:"elements"`
	ChildIDs       []string      `json:"childIds"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	Version        int           `json:"version"`
}

type nodeView struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Body        string          `json:"body,omitempty"`
	Position    positionView    `json:"position"`
	ParentChain []string        `json:"parentChain"`
	Provenance  *provenanceView `json:"provenance,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type graphView struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Scope          scopeView  `json:"scope"`
	Generation     int        `json:"generation"`
	General        bool       `json:"general"`
	NodeCount      int        `json:"nodeCount"`
	Nodes          []nodeView `json:"nodes,omitempty"`
	PromotionCount int        `json:"promotionCount"`
	SessionCount   int        `json:"sessionCount"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	Version        int        `json:"version"`
}

func newScopeView(scope valueobjects.Scope) scopeView {
	view := scopeView{Kind: string(scope.Kind())}
	if projectID, ok := scope.ProjectID(); ok {
		view.ProjectID = projectID.String()
	}
	if containerID, ok := scope.ContainerID(); ok {
		view.ContainerID = containerID.String()
	}
	return view
}

func newProvenanceView(provenance *entities.Provenance) *provenanceView {
	if provenance == nil {
		return nil
	}
	return &provenanceView{
		SourceNodeID:  provenance.SourceNodeID.String(),
		SourceGraphID: provenance.SourceGraphID.String(),
		PromotedAt:    provenance.PromotedAt,
	}
}

func newElementView(element entities.Element) elementView {
	return elementView{
		ID:         element.ID.String(),
		Name:       element.Name,
		Kind:       string(element.Kind),
		Position:   positionView{X: element.Position.X(), Y: element.Position.Y()},
		Provenance: newProvenanceView(element.Provenance),
		CreatedAt:  element.CreatedAt,
		UpdatedAt:  element.UpdatedAt,
	}
}

func newContainerView(container *entities.Container) containerView {
	elements := container.Elements()
	elementViews := make([]elementView, len(elements))
	for i, element := range elements {
		elementViews[i] = newElementView(element)
	}

	childIDs := container.ChildIDs()
	childViews := make([]string, len(childIDs))
	for i, id := range childIDs {
		childViews[i] = id.String()
	}

	view := containerView{
		ID:             container.ID().String(),
		Name:           container.Name(),
		Kind:           string(container.Kind()),
		Scope:          newScopeView(container.Scope()),
		Depth:          container.Depth(),
		PromotionCount: container.PromotionCount(),
		Position:       positionView{X: container.Position().X(), Y: container.Position().Y()},
		Elements:       elementViews,
		ChildIDs:       childViews,
		CreatedAt:      container.CreatedAt(),
		UpdatedAt:      container.UpdatedAt(),
		Version:        container.Version(),
	}
	if !container.ParentID().IsZero() {
		view.ParentID = container.ParentID().String()
	}
	if container.HasBoundGraph() {
		view.BoundGraphID = container.BoundGraphID().String()
	}
	if !container.Size().IsZero() {
		view.Size = &sizeView{Width: container.Size().Width(), Height: container.Size().Height()}
	}
	return view
}

func newNodeView(node entities.GraphNode) nodeView {
	chain := make([]string, len(node.ParentChain))
	for i, id := range node.ParentChain {
		chain[i] = id.String()
	}
	return nodeView{
		ID:          node.ID.String(),
		Title:       node.Content.Title(),
		Body:        node.Content.Body(),
		Position:    positionView{X: node.Position.X(), Y: node.Position.Y()},
		ParentChain: chain,
		Provenance:  newProvenanceView(node.Provenance),
		CreatedAt:   node.CreatedAt,
		UpdatedAt:   node.UpdatedAt,
	}
}

func newGraphView(graph *entities.Graph, includeNodes bool) graphView {
	view := graphView{
		ID:             graph.ID().String(),
		Name:           graph.Name(),
		Scope:          newScopeView(graph.Scope()),
		Generation:     graph.Generation(),
		General:        graph.IsGeneral(),
		NodeCount:      graph.NodeCount(),
		PromotionCount: graph.PromotionCount(),
		SessionCount:   graph.SessionCount(),
		CreatedAt:      graph.CreatedAt(),
		UpdatedAt:      graph.UpdatedAt(),
		Version:        graph.Version(),
	}
	if includeNodes {
		nodes := graph.Nodes()
		view.Nodes = make([]nodeView, len(nodes))
		for i, node := range nodes {
			view.Nodes[i] = newNodeView(node)
		}
	}
	return view
}

func newGraphViews(graphs []*entities.Graph) []graphView {
	views := make([]graphView, len(graphs))
	for i, graph := range graphs {
		views[i] = newGraphView(graph, false)
	}
	return views
}
