// Package transport contains the HTTP router, middleware chain, and all
// request handlers for the staffdeck API.
package transport

import (
	"encoding/json"
	"net/http"

	"github.com/staffdeck/staffdeck/internal/observability"
	"github.com/staffdeck/staffdeck/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes. STALE_PAGE is
// a conflict between the client's remembered pagination and the collection's
// current size, so it maps to 409.
var statusForCode = map[string]int{
	model.ErrBadRequest:         http.StatusBadRequest,
	model.ErrUnauthorized:       http.StatusUnauthorized,
	model.ErrForbidden:          http.StatusForbidden,
	model.ErrNotFound:           http.StatusNotFound,
	model.ErrConflict:           http.StatusConflict,
	model.ErrValidationError:    http.StatusUnprocessableEntity,
	model.ErrStalePage:          http.StatusConflict,
	model.ErrInternalError:      http.StatusInternalServerError,
	model.ErrBackendUnavailable: http.StatusBadGateway,
	model.ErrBackendTimeout:     http.StatusGatewayTimeout,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes an error as a JSON envelope with the correct HTTP status
// code, stamping the active trace ID into the envelope. A *ValidationError
// is flattened to field details; anything that is not an *ErrorEnvelope
// becomes a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var ee *model.ErrorEnvelope
	switch e := err.(type) {
	case *model.ErrorEnvelope:
		ee = e
	case *model.ValidationError:
		ee = e.Envelope()
	default:
		ee = model.NewInternalError()
	}

	if ee.TraceID == "" {
		ee.TraceID = observability.TraceIDFromContext(r.Context())
	}

	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, status, errorResponse{Error: ee})
}
