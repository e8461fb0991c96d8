// Package handlers exposes the engine's services over REST. Handlers
// decode and validate request bodies, delegate to the application
// services, and map domain errors to HTTP statuses through the shared
// error handler.
package handlers

import (
	"net/http"

	"github.com/PRicaldone/atelier-sub003/pkg/common"
	pkgerrors "github.com/PRicaldone/atelier-sub003/pkg/errors"
	"github.com/PRicaldone/atelier-sub003/pkg/utils"
)

// decodeBody parses and validates a JSON request body. On failure it
// writes the error response and reports false.
func decodeBody(w http.ResponseWriter, r *http.Request, errorHandler *pkgerrors.ErrorHandler, v interface{}) bool {
	if err := common.ParseJSONBody(r, v, maxBodyBytes); err != nil {
		errorHandler.HandleStatus(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := utils.ValidateStruct(v); err != nil {
		errorHandler.HandleStatus(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
