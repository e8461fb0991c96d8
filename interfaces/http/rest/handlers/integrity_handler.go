package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/PRicaldone/atelier-sub003/application/services"
	"github.com/PRicaldone/atelier-sub003/pkg/common"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
)

// IntegrityHandler serves the consistency engine
type IntegrityHandler struct {
	engine *services.ConsistencyEngine
	errors *pkgerrors.ErrorHandler
	logger *zap.Logger
}

// NewIntegrityHandler creates an integrity handler
func NewIntegrityHandler(engine *services.ConsistencyEngine, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *IntegrityHandler {
	return &IntegrityHandler{
		engine: engine,
		errors: errorHandler,
		logger: logger,
	}
}

// Validate handles GET /integrity
func (h *IntegrityHandler) Validate(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.ValidateIntegrity(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, report)
}

// Repair handles POST /integrity/repair
func (h *IntegrityHandler) Repair(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.AutoRepair(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, summary)
}
