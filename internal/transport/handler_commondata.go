package transport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/staffdeck/staffdeck/model"
)

func handleGetCommonData(h *handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		screenID := chi.URLParam(r, "screenId")

		def, ok := h.registry.Get(screenID)
		if !ok {
			WriteError(w, r, model.NewNotFoundError("screen not found"))
			return
		}
		if err := h.requirePermission(r, rctx, def, def.Permissions.View, ""); err != nil {
			WriteError(w, r, err)
			return
		}

		if data, ok := h.common.Get(def.ID); ok {
			WriteJSON(w, http.StatusOK, data)
			return
		}

		data, err := h.common.FetchAll(r.Context(), rctx, def.ID, def.CommonData)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		// First successful fetch subscribes the screen to push invalidation.
		// Refreshes run outside any request, so they carry no caller identity.
		if h.realtime != nil {
			screenID := def.ID
			h.realtime.Register(screenID, def.CommonData, func(ctx context.Context, name string, source model.CommonDataSource) {
				h.common.Refresh(ctx, nil, screenID, name, source)
			})
		}

		WriteJSON(w, http.StatusOK, data)
	}
}
