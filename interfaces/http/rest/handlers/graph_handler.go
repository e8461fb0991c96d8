package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/PRicaldone/atelier-sub003/application/services"
	"github.com/PRicaldone/atelier-sub003/domain/core/entities"
	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
	"github.com/PRicaldone/atelier-sub003/pkg/common"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
)

// GraphHandler serves the workspace graph collection
type GraphHandler struct {
	graphs *services.GraphStore
	errors *pkgerrors.ErrorHandler
	logger *zap.Logger
}

// NewGraphHandler creates a graph handler
func NewGraphHandler(graphs *services.GraphStore, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *GraphHandler {
	return &GraphHandler{
		graphs: graphs,
		errors: errorHandler,
		logger: logger,
	}
}

// ListGraphs handles GET /graphs. The scope query parameter filters by
// scope kind; container_id resolves the graph bound to one container.
func (h *GraphHandler) ListGraphs(w http.ResponseWriter, r *http.Request) {
	if containerID := r.URL.Query().Get("container_id"); containerID != "" {
		id, err := valueobjects.NewContainerIDFromString(containerID)
		if err != nil {
			h.errors.HandleStatus(w, r, http.StatusBadRequest, "invalid container_id")
			return
		}
		graph, err := h.graphs.GetByContainer(r.Context(), id)
		if err != nil {
			h.errors.Handle(w, r, err)
			return
		}
		common.RespondJSON(w, http.StatusOK, newGraphViews([]*entities.Graph{graph}))
		return
	}

	if scope := r.URL.Query().Get("scope"); scope != "" {
		kind := valueobjects.ScopeKind(scope)
		switch kind {
		case valueobjects.ScopeFreestyle, valueobjects.ScopeProject, valueobjects.ScopeContainerBound:
		default:
			h.errors.HandleStatus(w, r, http.StatusBadRequest, "unknown scope kind")
			return
		}
		common.RespondJSON(w, http.StatusOK, newGraphViews(h.graphs.ListByScope(r.Context(), kind)))
		return
	}

	common.RespondJSON(w, http.StatusOK, newGraphViews(h.graphs.List(r.Context())))
}

type createGraphRequest struct {
	Name      string `json:"name" validate:"omitempty,max=200"`
	Scope     string `json:"scope" validate:"omitempty,oneof=freestyle project"`
	ProjectID string `json:"projectId" validate:"omitempty,uuid"`
}

// CreateGraph handles POST /graphs. Container-bound graphs are not
// creatable here; they exist only as the pair of a container.
func (h *GraphHandler) CreateGraph(w http.ResponseWriter, r *http.Request) {
	var req createGraphRequest
	if !decodeBody(w, r, h.errors, &req) {
		return
	}

	var (
		graph *entities.Graph
		err   error
	)
	switch req.Scope {
	case "", string(valueobjects.ScopeFreestyle):
		graph, err = h.graphs.CreateFreestyleGraph(r.Context(), req.Name)
	case string(valueobjects.ScopeProject):
		graph, err = h.graphs.CreateProjectGraph(r.Context(), req.Name, req.ProjectID)
	}
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, newGraphView(graph, true))
}

// GetGraph handles GET /graphs/{graphID}
func (h *GraphHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	graph, err := h.graphs.Get(r.Context(), chi.URLParam(r, "graphID"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, newGraphView(graph, true))
}

type updateGraphRequest struct {
	Name  *string      `json:"name" validate:"omitempty,max=200"`
	Nodes *[]nodeInput `json:"nodes" validate:"omitempty,dive"`
}

// UpdateGraph handles PATCH /graphs/{graphID}. A nodes field replaces
// the node set wholesale, matching how the canvas client syncs.
func (h *GraphHandler) UpdateGraph(w http.ResponseWriter, r *http.Request) {
	var req updateGraphRequest
	if !decodeBody(w, r, h.errors, &req) {
		return
	}

	update := services.UpdateGraphRequest{Name: req.Name}
	if req.Nodes != nil {
		nodes, err := toNodes(*req.Nodes)
		if err != nil {
			h.errors.Handle(w, r, err)
			return
		}
		update.Nodes = &nodes
	}

	graph, err := h.graphs.Update(r.Context(), chi.URLParam(r, "graphID"), update)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, newGraphView(graph, true))
}

// DeleteGraph handles DELETE /graphs/{graphID}
func (h *GraphHandler) DeleteGraph(w http.ResponseWriter, r *http.Request) {
	if err := h.graphs.Remove(r.Context(), chi.URLParam(r, "graphID")); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AppendNode handles POST /graphs/{graphID}/nodes
func (h *GraphHandler) AppendNode(w http.ResponseWriter, r *http.Request) {
	var req nodeInput
	if !decodeBody(w, r, h.errors, &req) {
		return
	}

	node, err := req.toNode()
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	graph, err := h.graphs.AppendNode(r.Context(), chi.URLParam(r, "graphID"), node)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, newGraphView(graph, true))
}

// RemoveNode handles DELETE /graphs/{graphID}/nodes/{nodeID}
func (h *GraphHandler) RemoveNode(w http.ResponseWriter, r *http.Request) {
	graph, err := h.graphs.RemoveNode(r.Context(), chi.URLParam(r, "graphID"), chi.URLParam(r, "nodeID"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, newGraphView(graph, true))
}
