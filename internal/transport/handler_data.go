package transport

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/staffdeck/staffdeck/internal/client"
	"github.com/staffdeck/staffdeck/internal/commondata"
	"github.com/staffdeck/staffdeck/internal/listquery"
	"github.com/staffdeck/staffdeck/internal/observability"
	"github.com/staffdeck/staffdeck/internal/permission"
	"github.com/staffdeck/staffdeck/internal/realtime"
	"github.com/staffdeck/staffdeck/internal/screen"
	"github.com/staffdeck/staffdeck/model"
)

// dataResponse is the list payload returned to the frontend. Stale marks a
// result served from the last good fetch after the live one failed.
type dataResponse struct {
	Data          []map[string]any  `json:"data"`
	Meta          model.ListMeta    `json:"meta"`
	Fields        map[string]string `json:"fields,omitempty"`
	CountEdits    int               `json:"count_edits,omitempty"`
	EntityBlockID string            `json:"entity_block_id,omitempty"`
	Page          int               `json:"page"`
	PageSize      int               `json:"page_size"`
	Mode          model.ViewMode    `json:"mode"`
	Stale         bool              `json:"stale,omitempty"`
	Cached        bool              `json:"cached,omitempty"`
}

func handleGetScreenData(h *handlers) http.HandlerFunc {
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

		session := h.sessions.GetOrCreate(rctx.SubjectID, def.ID, def.Resource, def.PageSize)
		applyQueryParams(session, r)

		result, err := h.queries.Query(r.Context(), rctx, session)
		if err != nil {
			var ee *model.ErrorEnvelope
			if errors.As(err, &ee) && ee.Code == model.ErrStalePage && h.metrics != nil {
				h.metrics.RecordStalePageRejection(def.Resource)
			}
			WriteError(w, r, err)
			return
		}

		params := session.Params()
		WriteJSON(w, http.StatusOK, dataResponse{
			Data:          result.Envelope.Data,
			Meta:          result.Envelope.Meta,
			Fields:        result.Envelope.Fields,
			CountEdits:    result.Envelope.CountEdits,
			EntityBlockID: result.Envelope.EntityBlockID,
			Page:          params.Pagination.Page,
			PageSize:      params.Pagination.PageSize,
			Mode:          session.Mode(),
			Stale:         result.Stale,
			Cached:        result.Cached,
		})
	}
}

// applyQueryParams folds request query parameters into the session. Absent
// parameters leave the corresponding state untouched, so a bare data request
// replays the session's current tuple. The page parameter is applied last:
// an explicit page wins over rewinds triggered by filter or mode changes.
func applyQueryParams(session *listquery.Session, r *http.Request) {
	q := r.URL.Query()

	if v, ok := firstValue(q, "mode"); ok {
		session.SetMode(model.ViewMode(v))
	}
	if v, ok := firstValue(q, "clear_filters"); ok && v == "true" {
		session.ClearFilters()
	}
	for name, f := range parseFilters(q) {
		session.SetFilter(name, f)
	}
	if v, ok := firstValue(q, "search"); ok {
		session.SetSearch(v)
	}
	if v, ok := firstValue(q, "sort"); ok {
		session.SetSort(parseSort(v))
	}
	if v, ok := firstValue(q, "page_size"); ok {
		if size, err := strconv.Atoi(v); err == nil {
			session.SetPageSize(size)
		}
	}
	if v, ok := firstValue(q, "page"); ok {
		if page, err := strconv.Atoi(v); err == nil {
			session.SetPage(page)
		}
	}
}

func firstValue(q map[string][]string, key string) (string, bool) {
	values, ok := q[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// parseSort parses "field:asc,other:desc" into sort fields. A missing
// direction defaults to ascending.
func parseSort(s string) []model.SortField {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	fields := make([]model.SortField, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, direction, found := strings.Cut(part, ":")
		if !found || direction == "" {
			direction = "asc"
		}
		fields = append(fields, model.SortField{Field: field, Direction: direction})
	}
	return fields
}

// parseFilters extracts filter[name][]= selections and filter[name][mode]=
// modes from the query. A name mentioned with no non-empty values yields an
// empty selection, which clears that filter.
func parseFilters(q map[string][]string) map[string]model.Filter {
	filters := make(map[string]model.Filter)
	for key, values := range q {
		name, suffix, ok := filterKey(key)
		if !ok {
			continue
		}
		f := filters[name]
		switch suffix {
		case "":
			for _, v := range values {
				if v != "" {
					f.Data = append(f.Data, v)
				}
			}
		case "mode":
			if len(values) > 0 {
				f.Mode = values[0]
			}
		}
		filters[name] = f
	}
	return filters
}

// filterKey splits "filter[name][suffix]" into name and suffix. The bare
// selection key "filter[name][]" yields an empty suffix.
func filterKey(key string) (name, suffix string, ok bool) {
	const prefix = "filter["
	if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, "]") {
		return "", "", false
	}
	rest := strings.TrimSuffix(strings.TrimPrefix(key, prefix), "]")
	name, suffix, found := strings.Cut(rest, "][")
	if !found || name == "" {
		return "", "", false
	}
	return name, suffix, true
}

// requirePermission resolves the caller's grants for a screen and checks a
// declared permission type. An empty declared type means the screen does not
// offer the operation at all.
func (h *handlers) requirePermission(r *http.Request, rctx *model.RequestContext, def model.ScreenDefinition, permissionType, ownerID string) error {
	if permissionType == "" {
		return model.NewForbiddenError("operation not available on this screen")
	}
	grants, err := h.grants.Resolve(r.Context(), rctx, def.ID)
	if err != nil {
		return err
	}
	allowed := permission.Allowed(permission.Check{
		Grants:  grants,
		Type:    permissionType,
		UserID:  rctx.SubjectID,
		OwnerID: ownerID,
		IsAdmin: rctx.IsAdmin,
	})
	if !allowed {
		return model.NewForbiddenError("permission denied")
	}
	return nil
}

// handlers bundles the dependencies shared by the screen data, common-data,
// and record mutation endpoints.
type handlers struct {
	registry *screen.Registry
	grants   *permission.Resolver
	sessions *listquery.SessionStore
	queries  *listquery.Controller
	common   *commondata.Store
	realtime *realtime.Listener
	backend  *client.Client
	metrics  *observability.Metrics
	logger   *zap.Logger
}
