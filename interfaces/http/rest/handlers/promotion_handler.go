package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/PRicaldone/atelier-sub003/application/services"
	"github.com/PRicaldone/atelier-sub003/pkg/common"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
)

// PromotionHandler serves the cross-hierarchy promotion operations
type PromotionHandler struct {
	promotions *services.PromotionEngine
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

// NewPromotionHandler creates a promotion handler
func NewPromotionHandler(promotions *services.PromotionEngine, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *PromotionHandler {
	return &PromotionHandler{
		promotions: promotions,
		errors:     errorHandler,
		logger:     logger,
	}
}

type promoteRequest struct {
	SourceGraphID     string   `json:"sourceGraphId" validate:"required,uuid"`
	NodeIDs           []string `json:"nodeIds" validate:"required,min=1,dive,uuid"`
	TargetContainerID string   `json:"targetContainerId" validate:"omitempty,uuid"`
	ContainerName     string   `json:"containerName" validate:"omitempty,max=200"`
	NewContainer      bool     `json:"newContainer"`
	ExistingOnly      bool     `json:"existingOnly"`
}

// Promote handles POST /promotions. Without a target container the
// engine creates one, bound graph included.
func (h *PromotionHandler) Promote(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if !decodeBody(w, r, h.errors, &req) {
		return
	}

	result, err := h.promotions.Promote(r.Context(), services.PromoteRequest{
		SourceGraphID:     req.SourceGraphID,
		NodeIDs:           req.NodeIDs,
		TargetContainerID: req.TargetContainerID,
		ContainerName:     req.ContainerName,
		NewContainer:      req.NewContainer,
		ExistingOnly:      req.ExistingOnly,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

type promoteScopeRequest struct {
	EntityID  string `json:"entityId" validate:"required,uuid"`
	ProjectID string `json:"projectId" validate:"omitempty,uuid"`
}

// PromoteScope handles POST /promotions/scope. An empty projectId
// mints a new project.
func (h *PromotionHandler) PromoteScope(w http.ResponseWriter, r *http.Request) {
	var req promoteScopeRequest
	if !decodeBody(w, r, h.errors, &req) {
		return
	}

	result, err := h.promotions.PromoteScopeToProject(r.Context(), services.ScopePromotionRequest{
		EntityID:  req.EntityID,
		ProjectID: req.ProjectID,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// MigrateLegacy handles POST /migrations/legacy
func (h *PromotionHandler) MigrateLegacy(w http.ResponseWriter, r *http.Request) {
	result, err := h.promotions.MigrateLegacy(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}
