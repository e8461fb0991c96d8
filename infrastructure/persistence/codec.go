package persistence

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/PRicaldone/atelier-sub003/application/ports"
	"github.com/PRicaldone/atelier-sub003/domain/core/aggregates"
	"github.com/PRicaldone/atelier-sub003/domain/core/entities"
	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
	"github.com/PRicaldone/atelier-sub003/domain/versioning"
	"github.com/PRicaldone/atelier-sub003/infrastructure/persistence/schema"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
	"go.uber.org/zap"
)

// envelope wraps every stored payload with its stamp. The stamp is
// computed over the inner data, so corruption is caught before any
// record is decoded.
type envelope struct {
	Stamp versioning.SnapshotStamp `json:"stamp"`
	Data  json.RawMessage          `json:"data"`
}

type positionRecord struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type sizeRecord struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type scopeRecord struct {
	Kind        string `json:"kind,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`
	ContainerID string `json:"container_id,omitempty"`
}

type provenanceRecord struct {
	SourceNodeID  string    `json:"source_node_id"`
	SourceGraphID string    `json:"source_graph_id"`
	PromotedAt    time.Time `json:"promoted_at"`
}

type elementRecord struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Kind       string            `json:"kind"`
	Position   positionRecord    `json:"position"`
	Provenance *provenanceRecord `json:"provenance,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type containerRecord struct {
	ID             string            `json:"id"`
	Kind           string            `json:"kind"`
	Name           string            `json:"name"`
	ParentID       string            `json:"parent_id,omitempty"`
	Scope          scopeRecord       `json:"scope"`
	BoundGraphID   string            `json:"bound_graph_id,omitempty"`
	OriginGraphID  string            `json:"origin_graph_id,omitempty"`
	Elements       []elementRecord   `json:"elements"`
	ChildIDs       []string          `json:"child_ids,omitempty"`
	Position       positionRecord    `json:"position"`
	Size           sizeRecord        `json:"size"`
	Depth          int               `json:"depth"`
	PromotionCount int               `json:"promotion_count"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Version        int               `json:"version"`
	Children       []containerRecord `json:"children,omitempty"`
}

// canvasRecord is the canvas:snapshot payload: the container tree from
// the root down, plus any containers the tree walk could not reach.
// Detached containers are kept so a reloaded engine can report them
// instead of silently forgetting them.
type canvasRecord struct {
	Root     *containerRecord  `json:"root"`
	Detached []containerRecord `json:"detached,omitempty"`
}

type nodeRecord struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Body        string            `json:"body,omitempty"`
	Position    positionRecord    `json:"position"`
	ParentChain []string          `json:"parent_chain,omitempty"`
	Provenance  *provenanceRecord `json:"provenance,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type graphRecord struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Scope          scopeRecord  `json:"scope"`
	Generation     int          `json:"generation"`
	Nodes          []nodeRecord `json:"nodes"`
	PromotionCount int          `json:"promotion_count"`
	SessionCount   int          `json:"session_count"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	Version        int          `json:"version"`
}

type sessionRecord struct {
	RootID     string    `json:"root_id"`
	ActivePath []string  `json:"active_path"`
	SavedAt    time.Time `json:"saved_at"`
}

// Codec serializes the engine state into stamped, versioned JSON
// payloads and rehydrates it back. Decoding is lenient where the domain
// is: broken links survive the round trip so the consistency engine can
// find them.
type Codec struct {
	evolution *schema.Evolution
	policy    versioning.SnapshotPolicy
	logger    *zap.Logger

	mu   sync.Mutex
	last map[string]versioning.SnapshotStamp
}

// NewCodec creates a codec. A nil evolution disables schema upgrades,
// which makes payloads older than the current version unreadable.
func NewCodec(evolution *schema.Evolution, policy versioning.SnapshotPolicy, logger *zap.Logger) *Codec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Codec{
		evolution: evolution,
		policy:    policy,
		logger:    logger,
		last:      make(map[string]versioning.SnapshotStamp),
	}
}

var _ ports.SnapshotCodec = (*Codec)(nil)

// EncodeCanvas serializes the container tree in one top-down walk
func (c *Codec) EncodeCanvas(canvas *aggregates.Canvas) ([]byte, error) {
	if canvas == nil {
		return nil, pkgerrors.NewValidationError("canvas required for encoding")
	}

	visited := make(map[valueobjects.ContainerID]bool)
	root := encodeContainerTree(canvas, canvas.Root(), visited)

	record := canvasRecord{Root: root}
	for _, container := range canvas.All() {
		if !visited[container.ID()] {
			record.Detached = append(record.Detached, *encodeContainerTree(canvas, container, visited))
		}
	}

	return c.seal(ports.KeyCanvasSnapshot, record, len(visited))
}

// DecodeCanvas rehydrates the containers of a canvas:snapshot payload
func (c *Codec) DecodeCanvas(payload []byte) ([]*entities.Container, error) {
	data, err := c.open(ports.KeyCanvasSnapshot, payload)
	if err != nil {
		return nil, err
	}

	var record canvasRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, pkgerrors.NewPersistenceError("decode canvas snapshot", err)
	}
	if record.Root == nil {
		return nil, pkgerrors.NewPersistenceError("decode canvas snapshot", pkgerrors.NewNotFoundError("root container"))
	}

	containers := []*entities.Container{}
	if err := flattenContainers(*record.Root, &containers); err != nil {
		return nil, err
	}
	for _, detached := range record.Detached {
		if err := flattenContainers(detached, &containers); err != nil {
			return nil, err
		}
	}
	return containers, nil
}

// EncodeGraphs serializes the graph collection
func (c *Codec) EncodeGraphs(graphs []*entities.Graph) ([]byte, error) {
	records := make([]graphRecord, 0, len(graphs))
	for _, graph := range graphs {
		if graph == nil {
			continue
		}
		records = append(records, encodeGraph(graph))
	}
	return c.seal(ports.KeyGraphsCollection, records, len(records))
}

// DecodeGraphs rehydrates a graphs:collection payload
func (c *Codec) DecodeGraphs(payload []byte) ([]*entities.Graph, error) {
	data, err := c.open(ports.KeyGraphsCollection, payload)
	if err != nil {
		return nil, err
	}

	var records []graphRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, pkgerrors.NewPersistenceError("decode graph collection", err)
	}

	graphs := make([]*entities.Graph, 0, len(records))
	for _, record := range records {
		graph, err := decodeGraph(record)
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, graph)
	}
	return graphs, nil
}

// EncodeSession serializes the navigation session
func (c *Codec) EncodeSession(state ports.SessionState) ([]byte, error) {
	record := sessionRecord{
		RootID:     state.RootID.String(),
		ActivePath: make([]string, len(state.ActivePath)),
		SavedAt:    state.SavedAt,
	}
	for i, id := range state.ActivePath {
		record.ActivePath[i] = id.String()
	}
	return c.seal(ports.KeyEngineSession, record, len(record.ActivePath))
}

// DecodeSession rehydrates an engine:session payload. Unparseable path
// steps are dropped rather than failing the load; the canvas rebuild
// re-validates the path against the actual tree anyway.
func (c *Codec) DecodeSession(payload []byte) (ports.SessionState, error) {
	data, err := c.open(ports.KeyEngineSession, payload)
	if err != nil {
		return ports.SessionState{}, err
	}

	var record sessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return ports.SessionState{}, pkgerrors.NewPersistenceError("decode engine session", err)
	}

	state := ports.SessionState{SavedAt: record.SavedAt}
	if record.RootID != "" {
		rootID, err := valueobjects.NewContainerIDFromString(record.RootID)
		if err == nil {
			state.RootID = rootID
		}
	}
	for _, raw := range record.ActivePath {
		id, err := valueobjects.NewContainerIDFromString(raw)
		if err != nil {
			c.logger.Warn("Dropping unparseable navigation step",
				zap.String("containerID", raw),
			)
			continue
		}
		state.ActivePath = append(state.ActivePath, id)
	}
	return state, nil
}

// seal marshals a record, stamps it and wraps it in the envelope
func (c *Codec) seal(key string, record interface{}, entityCount int) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("encode "+key, err)
	}

	stamp := versioning.NewStamp(key, schema.VersionCurrent, data, entityCount)
	c.recordDrift(stamp)

	sealed, err := json.Marshal(envelope{
		Stamp: stamp,
		Data:  data,
	})
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("encode "+key, err)
	}
	return sealed, nil
}

// recordDrift logs how a write moved its key since the previous one. An
// unchanged checksum means the debounce fired without an effective
// change.
func (c *Codec) recordDrift(stamp versioning.SnapshotStamp) {
	c.mu.Lock()
	prev, seen := c.last[stamp.Key]
	c.last[stamp.Key] = stamp
	c.mu.Unlock()
	if !seen {
		return
	}

	diff, err := versioning.CompareStamps(prev, stamp)
	if err != nil {
		return
	}
	if !diff.Rewritten {
		c.logger.Debug("Snapshot unchanged since last write",
			zap.String("key", stamp.Key),
			zap.Duration("sinceLast", diff.TimeDelta),
		)
		return
	}
	c.logger.Debug("Snapshot drift",
		zap.String("key", stamp.Key),
		zap.Int("entityDelta", diff.EntityDelta),
		zap.Int("byteDelta", diff.ByteDelta),
		zap.Duration("sinceLast", diff.TimeDelta),
	)
}

// open unwraps an envelope, verifies the stamp and upgrades the data to
// the current schema version
func (c *Codec) open(key string, payload []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, pkgerrors.NewPersistenceError("open "+key, err)
	}

	if c.policy.VerifyChecksums {
		if err := env.Stamp.Verify(env.Data); err != nil {
			c.logger.Error("Snapshot payload corrupted",
				zap.String("key", key),
				zap.Error(err),
			)
			return nil, pkgerrors.NewPersistenceError("verify "+key, err)
		}
	}

	version := env.Stamp.SchemaVersion
	if version == 0 {
		version = schema.VersionLegacy // Pre-stamp payloads carry no version
	}
	if version == schema.VersionCurrent {
		return env.Data, nil
	}

	if c.evolution == nil {
		return nil, pkgerrors.NewPersistenceError("open "+key,
			pkgerrors.NewValidationError("no schema migrations available"))
	}
	upgraded, err := c.evolution.Upgrade(key, env.Data, version, schema.VersionCurrent)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("upgrade "+key, err)
	}
	return upgraded, nil
}

func encodeContainerTree(canvas *aggregates.Canvas, container *entities.Container, visited map[valueobjects.ContainerID]bool) *containerRecord {
	visited[container.ID()] = true
	record := encodeContainer(container)

	for _, childID := range container.ChildIDs() {
		child, err := canvas.Get(childID)
		if err != nil || visited[childID] {
			// Dangling or repeated links are recorded by the child ID
			// list; the consistency engine reports them after reload
			continue
		}
		record.Children = append(record.Children, *encodeContainerTree(canvas, child, visited))
	}
	return record
}

func encodeContainer(container *entities.Container) *containerRecord {
	record := &containerRecord{
		ID:             container.ID().String(),
		Kind:           string(container.Kind()),
		Name:           container.Name(),
		Scope:          encodeScope(container.Scope()),
		Elements:       make([]elementRecord, 0, container.ElementCount()),
		Position:       positionRecord{X: container.Position().X(), Y: container.Position().Y()},
		Size:           sizeRecord{Width: container.Size().Width(), Height: container.Size().Height()},
		Depth:          container.Depth(),
		PromotionCount: container.PromotionCount(),
		CreatedAt:      container.CreatedAt(),
		UpdatedAt:      container.UpdatedAt(),
		Version:        container.Version(),
	}

	if !container.ParentID().IsZero() {
		record.ParentID = container.ParentID().String()
	}
	if container.HasBoundGraph() {
		record.BoundGraphID = container.BoundGraphID().String()
	}
	if !container.OriginGraphID().IsZero() {
		record.OriginGraphID = container.OriginGraphID().String()
	}
	for _, element := range container.Elements() {
		record.Elements = append(record.Elements, encodeElement(element))
	}
	// The child ID list is the authoritative, ordered record; the
	// nested children only cover the links that still resolve
	for _, childID := range container.ChildIDs() {
		record.ChildIDs = append(record.ChildIDs, childID.String())
	}
	return record
}

func flattenContainers(record containerRecord, out *[]*entities.Container) error {
	container, err := decodeContainer(record)
	if err != nil {
		return err
	}
	*out = append(*out, container)

	for _, child := range record.Children {
		if err := flattenContainers(child, out); err != nil {
			return err
		}
	}
	return nil
}

func decodeContainer(record containerRecord) (*entities.Container, error) {
	id, err := valueobjects.NewContainerIDFromString(record.ID)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("decode container", err)
	}

	scope, err := decodeScope(record.Scope)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("decode container", err)
	}

	var parentID valueobjects.ContainerID
	if record.ParentID != "" {
		if parentID, err = valueobjects.NewContainerIDFromString(record.ParentID); err != nil {
			return nil, pkgerrors.NewPersistenceError("decode container", err)
		}
	}
	var boundGraphID valueobjects.GraphID
	if record.BoundGraphID != "" {
		if boundGraphID, err = valueobjects.NewGraphIDFromString(record.BoundGraphID); err != nil {
			return nil, pkgerrors.NewPersistenceError("decode container", err)
		}
	}
	var originGraphID valueobjects.GraphID
	if record.OriginGraphID != "" {
		if originGraphID, err = valueobjects.NewGraphIDFromString(record.OriginGraphID); err != nil {
			return nil, pkgerrors.NewPersistenceError("decode container", err)
		}
	}

	elements := make([]entities.Element, 0, len(record.Elements))
	for _, elementRec := range record.Elements {
		element, err := decodeElement(elementRec)
		if err != nil {
			return nil, err
		}
		elements = append(elements, element)
	}

	childIDs := make([]valueobjects.ContainerID, 0, len(record.ChildIDs))
	for _, raw := range record.ChildIDs {
		childID, err := valueobjects.NewContainerIDFromString(raw)
		if err != nil {
			return nil, pkgerrors.NewPersistenceError("decode container", err)
		}
		childIDs = append(childIDs, childID)
	}
	if len(childIDs) == 0 {
		// Upgraded v1 records carry no child_ids; derive them from the
		// nested tree
		for _, child := range record.Children {
			childID, err := valueobjects.NewContainerIDFromString(child.ID)
			if err != nil {
				return nil, pkgerrors.NewPersistenceError("decode container", err)
			}
			childIDs = append(childIDs, childID)
		}
	}

	position, err := valueobjects.NewPosition(record.Position.X, record.Position.Y)
	if err != nil {
		position = valueobjects.Position{}
	}
	size, err := valueobjects.NewSize(record.Size.Width, record.Size.Height)
	if err != nil {
		size = valueobjects.Size{}
	}

	return entities.ReconstructContainer(
		id,
		entities.ContainerKind(record.Kind),
		record.Name,
		parentID,
		scope,
		boundGraphID,
		originGraphID,
		elements,
		childIDs,
		position,
		size,
		record.Depth,
		record.PromotionCount,
		record.CreatedAt,
		record.UpdatedAt,
		record.Version,
	)
}

func encodeElement(element entities.Element) elementRecord {
	return elementRecord{
		ID:         element.ID.String(),
		Name:       element.Name,
		Kind:       string(element.Kind),
		Position:   positionRecord{X: element.Position.X(), Y: element.Position.Y()},
		Provenance: encodeProvenance(element.Provenance),
		CreatedAt:  element.CreatedAt,
		UpdatedAt:  element.UpdatedAt,
	}
}

func decodeElement(record elementRecord) (entities.Element, error) {
	id, err := valueobjects.NewElementIDFromString(record.ID)
	if err != nil {
		return entities.Element{}, pkgerrors.NewPersistenceError("decode element", err)
	}

	position, err := valueobjects.NewPosition(record.Position.X, record.Position.Y)
	if err != nil {
		position = valueobjects.Position{}
	}

	provenance, err := decodeProvenance(record.Provenance)
	if err != nil {
		return entities.Element{}, err
	}

	return entities.ReconstructElement(
		id,
		record.Name,
		entities.ElementKind(record.Kind),
		position,
		provenance,
		record.CreatedAt,
		record.UpdatedAt,
	), nil
}

func encodeGraph(graph *entities.Graph) graphRecord {
	record := graphRecord{
		ID:             graph.ID().String(),
		Name:           graph.Name(),
		Scope:          encodeScope(graph.Scope()),
		Generation:     graph.Generation(),
		Nodes:          make([]nodeRecord, 0, graph.NodeCount()),
		PromotionCount: graph.PromotionCount(),
		SessionCount:   graph.SessionCount(),
		CreatedAt:      graph.CreatedAt(),
		UpdatedAt:      graph.UpdatedAt(),
		Version:        graph.Version(),
	}
	for _, node := range graph.Nodes() {
		record.Nodes = append(record.Nodes, encodeNode(node))
	}
	return record
}

func decodeGraph(record graphRecord) (*entities.Graph, error) {
	id, err := valueobjects.NewGraphIDFromString(record.ID)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("decode graph", err)
	}

	scope, err := decodeScope(record.Scope)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("decode graph", err)
	}

	nodes := make([]entities.GraphNode, 0, len(record.Nodes))
	for _, nodeRec := range record.Nodes {
		node, err := decodeNode(nodeRec)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	return entities.ReconstructGraph(
		id,
		record.Name,
		scope,
		record.Generation,
		nodes,
		record.PromotionCount,
		record.SessionCount,
		record.CreatedAt,
		record.UpdatedAt,
		record.Version,
	)
}

func encodeNode(node entities.GraphNode) nodeRecord {
	record := nodeRecord{
		ID:         node.ID.String(),
		Title:      node.Content.Title(),
		Body:       node.Content.Body(),
		Position:   positionRecord{X: node.Position.X(), Y: node.Position.Y()},
		Provenance: encodeProvenance(node.Provenance),
		CreatedAt:  node.CreatedAt,
		UpdatedAt:  node.UpdatedAt,
	}
	for _, ancestor := range node.ParentChain {
		record.ParentChain = append(record.ParentChain, ancestor.String())
	}
	return record
}

func decodeNode(record nodeRecord) (entities.GraphNode, error) {
	id, err := valueobjects.NewNodeIDFromString(record.ID)
	if err != nil {
		return entities.GraphNode{}, pkgerrors.NewPersistenceError("decode node", err)
	}

	content := valueobjects.ReconstructNodeContent(record.Title, record.Body)

	position, err := valueobjects.NewPosition(record.Position.X, record.Position.Y)
	if err != nil {
		position = valueobjects.Position{}
	}

	var parentChain []valueobjects.NodeID
	for _, raw := range record.ParentChain {
		ancestor, err := valueobjects.NewNodeIDFromString(raw)
		if err != nil {
			return entities.GraphNode{}, pkgerrors.NewPersistenceError("decode node", err)
		}
		parentChain = append(parentChain, ancestor)
	}

	provenance, err := decodeProvenance(record.Provenance)
	if err != nil {
		return entities.GraphNode{}, err
	}

	return entities.ReconstructGraphNode(id, content, position, parentChain, provenance, record.CreatedAt, record.UpdatedAt), nil
}

func encodeScope(scope valueobjects.Scope) scopeRecord {
	record := scopeRecord{Kind: string(scope.Kind())}
	if projectID, ok := scope.ProjectID(); ok {
		record.ProjectID = projectID.String()
	}
	if containerID, ok := scope.ContainerID(); ok {
		record.ContainerID = containerID.String()
	}
	return record
}

// decodeScope maps an empty kind to the zero scope: that is the legacy
// shape MigrateLegacy exists to normalize, so it must survive loading
func decodeScope(record scopeRecord) (valueobjects.Scope, error) {
	if record.Kind == "" {
		return valueobjects.Scope{}, nil
	}
	return valueobjects.ParseScope(record.Kind, record.ProjectID, record.ContainerID)
}

func encodeProvenance(provenance *entities.Provenance) *provenanceRecord {
	if provenance == nil {
		return nil
	}
	return &provenanceRecord{
		SourceNodeID:  provenance.SourceNodeID.String(),
		SourceGraphID: provenance.SourceGraphID.String(),
		PromotedAt:    provenance.PromotedAt,
	}
}

func decodeProvenance(record *provenanceRecord) (*entities.Provenance, error) {
	if record == nil {
		return nil, nil
	}

	nodeID, err := valueobjects.NewNodeIDFromString(record.SourceNodeID)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("decode provenance", err)
	}
	graphID, err := valueobjects.NewGraphIDFromString(record.SourceGraphID)
	if err != nil {
		return nil, pkgerrors.NewPersistenceError("decode provenance", err)
	}

	return &entities.Provenance{
		SourceNodeID:  nodeID,
		SourceGraphID: graphID,
		PromotedAt:    record.PromotedAt,
	}, nil
}
