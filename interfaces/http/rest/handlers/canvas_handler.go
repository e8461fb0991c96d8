package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/PRicaldone/atelier-sub003/application/ports"
	"github.com/PRicaldone/atelier-sub003/application/services"
	"github.com/PRicaldone/atelier-sub003/domain/core/valueobjects"
	"github.com/PRicaldone/atelier-sub003/pkg/common"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
)

// CanvasHandler serves the container hierarchy and the navigation
// surface of the nested canvas
type CanvasHandler struct {
	containers *services.ContainerStore
	queue      ports.WriteScheduler
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

// NewCanvasHandler creates a canvas handler
func NewCanvasHandler(
	containers *services.ContainerStore,
	queue ports.WriteScheduler,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *CanvasHandler {
	return &CanvasHandler{
		containers: containers,
		queue:      queue,
		errors:     errorHandler,
		logger:     logger,
	}
}

// GetHierarchy handles GET /canvas/hierarchy
func (h *CanvasHandler) GetHierarchy(w http.ResponseWriter, r *http.Request) {
	hierarchy, err := h.containers.GetHierarchy(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, hierarchy)
}

// GetActiveLevel handles GET /canvas/level
func (h *CanvasHandler) GetActiveLevel(w http.ResponseWriter, r *http.Request) {
	active, err := h.containers.ActiveContainer(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, newContainerView(active))
}

type replaceElementsRequest struct {
	Elements []elementInput `json:"elements" validate:"dive"`
}

// ReplaceActiveElements handles PUT /canvas/level/elements
func (h *CanvasHandler) ReplaceActiveElements(w http.ResponseWriter, r *http.Request) {
	var req replaceElementsRequest
	if !decodeBody(w, r, h.errors, &req) {
		return
	}

	elements, err := toElements(req.Elements)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	active, err := h.containers.SaveActiveLevel(r.Context(), elements)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, newContainerView(active))
}

type enterRequest struct {
	ContainerID string `json:"containerId" validate:"required,uuid"`
}

// Enter handles POST /canvas/enter
func (h *CanvasHandler) Enter(w http.ResponseWriter, r *http.Request) {
	var req enterRequest
	if !decodeBody(w, r, h.errors, &req) {
		return
	}

	active, err := h.containers.Enter(r.Context(), req.ContainerID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, newContainerView(active))
}

// Exit handles POST /canvas/exit
func (h *CanvasHandler) Exit(w http.ResponseWriter, r *http.Request) {
	active, err := h.containers.Exit(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, newContainerView(active))
}

// Save handles POST /canvas/save. It forces every debounced snapshot
// through to the store; the in-memory state is already current.
func (h *CanvasHandler) Save(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Flush(r.Context()); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewPersistenceError("flush", err))
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"flushed": true,
		"pending": h.queue.PendingKeys(),
	})
}

type createContainerRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	ParentID  string `json:"parentId" validate:"omitempty,uuid"`
	Scope     string `json:"scope" validate:"omitempty,oneof=freestyle project"`
	ProjectID string `json:"projectId" validate:"omitempty,uuid"`
}

// CreateContainer handles POST /containers
func (h *CanvasHandler) CreateContainer(w http.ResponseWriter, r *http.Request) {
	var req createContainerRequest
	if !decodeBody(w, r, h.errors, &req) {
		return
	}

	container, err := h.containers.CreateContainer(r.Context(), services.CreateContainerRequest{
		Name:      req.Name,
		ParentID:  req.ParentID,
		Scope:     req.Scope,
		ProjectID: req.ProjectID,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, newContainerView(container))
}

// GetContainer handles GET /containers/{containerID}
func (h *CanvasHandler) GetContainer(w http.ResponseWriter, r *http.Request) {
	container, err := h.containers.GetContainer(r.Context(), chi.URLParam(r, "containerID"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, newContainerView(container))
}

type updateContainerRequest struct {
	Name     *string        `json:"name" validate:"omitempty,max=200"`
	Position *positionInput `json:"position"`
	Size     *sizeInput     `json:"size"`
}

// UpdateContainer handles PATCH /containers/{containerID}
func (h *CanvasHandler) UpdateContainer(w http.ResponseWriter, r *http.Request) {
	var req updateContainerRequest
	if !decodeBody(w, r, h.errors, &req) {
		return
	}

	update := services.UpdateContainerRequest{Name: req.Name}
	if req.Position != nil {
		position, err := valueobjects.NewPosition(req.Position.X, req.Position.Y)
		if err != nil {
			h.errors.Handle(w, r, err)
			return
		}
		update.Position = &position
	}
	if req.Size != nil {
		size, err := valueobjects.NewSize(req.Size.Width, req.Size.Height)
		if err != nil {
			h.errors.Handle(w, r, err)
			return
		}
		update.Size = &size
	}

	container, err := h.containers.UpdateContainer(r.Context(), chi.URLParam(r, "containerID"), update)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, newContainerView(container))
}

// DeleteContainer handles DELETE /containers/{containerID}
func (h *CanvasHandler) DeleteContainer(w http.ResponseWriter, r *http.Request) {
	result, err := h.containers.DeleteContainer(r.Context(), chi.URLParam(r, "containerID"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// ListChildren handles GET /containers/{containerID}/children
func (h *CanvasHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.containers.ListChildren(r.Context(), chi.URLParam(r, "containerID"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	views := make([]containerView, len(children))
	for i, child := range children {
		views[i] = newContainerView(child)
	}
	common.RespondJSON(w, http.StatusOK, views)
}
