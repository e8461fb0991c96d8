package handlers

import (
	"time"

	"github.com/PRicaldone/atelier-sub003/domain/core/entities"
	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
)

// maxBodyBytes caps request bodies; whole-graph syncs stay well under it.
const maxBodyBytes = 4 << 20

type positionInput struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type sizeInput struct {
	Width  float64 `json:"width" validate:"gte=0"`
	Height float64 `json:"height" validate:"gte=0"`
}

type provenanceInput struct {
	SourceNodeID  string    `json:"sourceNodeId" validate:"required,uuid"`
	SourceGraphID string    `json:"sourceGraphId" validate:"required,uuid"`
	PromotedAt    time.Time `json:"promotedAt"`
}

type elementInput struct {
	ID         string           `json:"id" validate:"omitempty,uuid"`
	Name       string           `json:"name" validate:"required,max=200"`
	Kind       string           `json:"kind" validate:"omitempty,oneof=note image link frame"`
	Position   positionInput    `json:"position"`
	Provenance *provenanceInput `json:"provenance"`
}

type nodeInput struct {
	ID          string           `json:"id" validate:"omitempty,uuid"`
	Title       string           `json:"title" validate:"max=500"`
	Body        string           `json:"body"`
	Position    positionInput    `json:"position"`
	ParentChain []string         `json:"parentChain" validate:"dive,uuid"`
	Provenance  *provenanceInput `json:"provenance"`
}

func (in positionInput) toPosition() (valueobjects.Position, error) {
	return valueobjects.NewPosition(in.X, in.Y)
}

func (in *provenanceInput) toProvenance() (*entities.Provenance, error) {
	if in == nil {
		return nil, nil
	}
	nodeID, err := valueobjects.NewNodeIDFromString(in.SourceNodeID)
	if err != nil {
		return nil, pkgerrors.NewValidationError("invalid provenance source node").WithCause(err)
	}
	graphID, err := valueobjects.NewGraphIDFromString(in.SourceGraphID)
	if err != nil {
		return nil, pkgerrors.NewValidationError("invalid provenance source graph").WithCause(err)
	}
	promotedAt := in.PromotedAt
	if promotedAt.IsZero() {
		promotedAt = time.Now()
	}
	return &entities.Provenance{
		SourceNodeID:  nodeID,
		SourceGraphID: graphID,
		PromotedAt:    promotedAt,
	}, nil
}

// toElement builds a canvas element. Inputs without an id mint a fresh
// one through the validating constructor; inputs carrying an id are
// round-tripped state and are reconstructed as-is.
func (in elementInput) toElement() (entities.Element, error) {
	position, err := in.Position.toPosition()
	if err != nil {
		return entities.Element{}, err
	}

	if in.ID == "" {
		element, err := entities.NewElement(in.Name, entities.ElementKind(in.Kind), position)
		if err != nil {
			return entities.Element{}, err
		}
		provenance, err := in.Provenance.toProvenance()
		if err != nil {
			return entities.Element{}, err
		}
		element.Provenance = provenance
		return element, nil
	}

	id, err := valueobjects.NewElementIDFromString(in.ID)
	if err != nil {
		return entities.Element{}, pkgerrors.NewValidationError("invalid element ID").WithCause(err)
	}
	provenance, err := in.Provenance.toProvenance()
	if err != nil {
		return entities.Element{}, err
	}
	kind := entities.ElementKind(in.Kind)
	if kind == "" {
		kind = entities.ElementKindNote
	}
	if !entities.ValidElementKind(kind) {
		return entities.Element{}, pkgerrors.NewValidationError("unknown element kind: " + in.Kind)
	}
	now := time.Now()
	return entities.ReconstructElement(id, in.Name, kind, position, provenance, now, now), nil
}

func toElements(inputs []elementInput) ([]entities.Element, error) {
	elements := make([]entities.Element, len(inputs))
	for i, in := range inputs {
		element, err := in.toElement()
		if err != nil {
			return nil, err
		}
		elements[i] = element
	}
	return elements, nil
}

// toNode builds a graph node. Content is carried through unchecked;
// the graph mutation validates it against the rules live at that
// moment, so permissive profiles can accept untitled nodes.
func (in nodeInput) toNode() (entities.GraphNode, error) {
	content := valueobjects.ReconstructNodeContent(in.Title, in.Body)
	position, err := in.Position.toPosition()
	if err != nil {
		return entities.GraphNode{}, err
	}

	chain := make([]valueobjects.NodeID, len(in.ParentChain))
	for i, raw := range in.ParentChain {
		id, err := valueobjects.NewNodeIDFromString(raw)
		if err != nil {
			return entities.GraphNode{}, pkgerrors.NewValidationError("invalid parent chain entry").WithCause(err)
		}
		chain[i] = id
	}

	if in.ID == "" {
		node := entities.NewGraphNode(content, position, chain)
		provenance, err := in.Provenance.toProvenance()
		if err != nil {
			return entities.GraphNode{}, err
		}
		node.Provenance = provenance
		return node, nil
	}

	id, err := valueobjects.NewNodeIDFromString(in.ID)
	if err != nil {
		return entities.GraphNode{}, pkgerrors.NewValidationError("invalid node ID").WithCause(err)
	}
	provenance, err := in.Provenance.toProvenance()
	if err != nil {
		return entities.GraphNode{}, err
	}
	now := time.Now()
	return entities.ReconstructGraphNode(id, content, position, chain, provenance, now, now), nil
}

func toNodes(inputs []nodeInput) ([]entities.GraphNode, error) {
	nodes := make([]entities.GraphNode, len(inputs))
	for i, in := range inputs {
		node, err := in.toNode()
		if err != nil {
			return nil, err
		}
		nodes[i] = node
	}
	return nodes, nil
}
