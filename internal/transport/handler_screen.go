package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/staffdeck/staffdeck/internal/screen"
	"github.com/staffdeck/staffdeck/model"
)

func handleListScreens(screens *screen.DescriptorProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}

		descriptors, err := screens.DescribeAll(r.Context(), rctx)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"screens": descriptors})
	}
}

func handleGetScreen(screens *screen.DescriptorProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		screenID := chi.URLParam(r, "screenId")

		desc, err := screens.Describe(r.Context(), rctx, screenID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}
