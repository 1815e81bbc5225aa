package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/staffdeck/staffdeck/internal/bookmark"
	"github.com/staffdeck/staffdeck/internal/observability"
	"github.com/staffdeck/staffdeck/model"
)

// maxMutationBody bounds record mutation payloads.
const maxMutationBody = 1 << 20

func handleCreateRecord(h *handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}

		def, ok := h.registry.Get(chi.URLParam(r, "screenId"))
		if !ok {
			WriteError(w, r, model.NewNotFoundError("screen not found"))
			return
		}
		if err := h.requirePermission(r, rctx, def, def.Permissions.Create, ""); err != nil {
			WriteError(w, r, err)
			return
		}

		payload, err := decodePayload(r)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		observability.RequestLogger(r.Context(), h.logger).Debug("creating record",
			zap.String("screen", def.ID),
			zap.Any("payload", observability.RedactBody(payload, nil)),
		)
		result, err := h.backend.Create(r.Context(), rctx, def.Resource, payload)
		if err != nil {
			h.writeMutationError(w, r, def, err)
			return
		}

		h.queries.Invalidate(def.Resource)
		WriteJSON(w, result.StatusCode, result.Body)
	}
}

// handleUpdateRecord tunnels updates through POST with a _method=PUT query
// parameter, matching the backend convention.
func handleUpdateRecord(h *handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		if r.URL.Query().Get("_method") != "PUT" {
			WriteError(w, r, model.NewBadRequestError("record updates require _method=PUT"))
			return
		}

		def, ok := h.registry.Get(chi.URLParam(r, "screenId"))
		if !ok {
			WriteError(w, r, model.NewNotFoundError("screen not found"))
			return
		}

		payload, err := decodePayload(r)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if err := h.requirePermission(r, rctx, def, def.Permissions.Edit, payloadOwner(payload)); err != nil {
			WriteError(w, r, err)
			return
		}

		id := chi.URLParam(r, "id")
		observability.RequestLogger(r.Context(), h.logger).Debug("updating record",
			zap.String("screen", def.ID),
			zap.String("id", id),
			zap.Any("payload", observability.RedactBody(payload, nil)),
		)
		result, err := h.backend.Update(r.Context(), rctx, def.Resource, id, payload)
		if err != nil {
			h.writeMutationError(w, r, def, err)
			return
		}

		h.queries.Invalidate(def.Resource)
		WriteJSON(w, result.StatusCode, result.Body)
	}
}

func handleDeleteRecord(h *handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}

		def, ok := h.registry.Get(chi.URLParam(r, "screenId"))
		if !ok {
			WriteError(w, r, model.NewNotFoundError("screen not found"))
			return
		}

		// Delete bodies are optional and carry at most a reason and owner.
		var body struct {
			Reason  string `json:"reason"`
			OwnerID string `json:"owner_id"`
		}
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxMutationBody))
		if err == nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				WriteError(w, r, model.NewBadRequestError("invalid JSON body"))
				return
			}
		}

		if err := h.requirePermission(r, rctx, def, def.Permissions.Delete, body.OwnerID); err != nil {
			WriteError(w, r, err)
			return
		}

		id := chi.URLParam(r, "id")
		observability.RequestLogger(r.Context(), h.logger).Debug("deleting record",
			zap.String("screen", def.ID),
			zap.String("id", id),
		)
		result, err := h.backend.Delete(r.Context(), rctx, def.Resource, id, body.Reason)
		if err != nil {
			h.writeMutationError(w, r, def, err)
			return
		}

		h.queries.Invalidate(def.Resource)
		WriteJSON(w, result.StatusCode, result.Body)
	}
}

func decodePayload(r *http.Request) (map[string]any, error) {
	var payload map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxMutationBody)).Decode(&payload); err != nil {
		return nil, model.NewBadRequestError("invalid JSON body")
	}
	return payload, nil
}

func payloadOwner(payload map[string]any) string {
	owner, _ := payload["owner_id"].(string)
	return owner
}

// writeMutationError maps a backend validation failure to an error envelope
// annotated with the edit-drawer bookmarks that own the offending fields, so
// the frontend can mark the right tabs.
func (h *handlers) writeMutationError(w http.ResponseWriter, r *http.Request, def model.ScreenDefinition, err error) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		ee := verr.Envelope()
		coordinator := bookmark.NewCoordinator(def.Bookmarks)
		ee.Bookmarks = coordinator.ErrorNames(verr.FieldNames())
		WriteError(w, r, ee)
		return
	}
	WriteError(w, r, err)
}
