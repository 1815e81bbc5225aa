package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/staffdeck/staffdeck/internal/client"
	"github.com/staffdeck/staffdeck/internal/commondata"
	"github.com/staffdeck/staffdeck/internal/config"
	"github.com/staffdeck/staffdeck/internal/listquery"
	"github.com/staffdeck/staffdeck/internal/permission"
	"github.com/staffdeck/staffdeck/internal/screen"
	"github.com/staffdeck/staffdeck/model"
)

// staticGrants serves the same grant table to every subject and screen.
type staticGrants struct {
	table model.GrantTable
}

func (s staticGrants) FetchGrants(context.Context, *model.RequestContext, string) (model.GrantTable, error) {
	return s.table, nil
}

// fakeAuth injects claims directly, standing in for the JWT middleware.
func fakeAuth(claims map[string]any) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func candidatesScreen() model.ScreenDefinition {
	return model.ScreenDefinition{
		ID:       "candidates",
		Title:    "Candidates",
		Resource: "candidates",
		PageSize: 2,
		CommonData: model.SourceTable{
			"tools": {URL: "/common/tools"},
		},
		Bookmarks: []model.BookmarkDefinition{
			{Name: "profile", Label: "Profile", Fields: []string{"name", "email"}},
			{Name: "work", Label: "Work", Fields: []string{"work"}},
		},
		Permissions: model.ScreenPermissions{
			View:   "candidates.view",
			Create: "candidates.create",
			Edit:   "candidates.edit",
			Delete: "candidates.delete",
		},
	}
}

// newBackend serves a minimal staffing backend: a paged candidate list, a
// reference-data slice, and create/update/delete endpoints.
func newBackend(t *testing.T, listCalls *atomic.Int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /candidates", func(w http.ResponseWriter, r *http.Request) {
		listCalls.Add(1)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "c-" + strconv.Itoa(page*2), "name": "Ada"},
				{"id": "c-" + strconv.Itoa(page*2+1), "name": "Grace"},
			},
			"meta": map[string]any{"total": 6},
		})
	})
	mux.HandleFunc("GET /common/tools", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": float64(1), "name": "Hammer"},
				{"id": float64(2), "name": "Wrench"},
			},
		})
	})
	mux.HandleFunc("POST /candidates", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["email"] == "" || payload["email"] == nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]any{
				"errors": map[string]any{
					"email":      []any{"is required"},
					"work.phone": []any{"is invalid"},
				},
			})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": "c-new"})
	})
	mux.HandleFunc("POST /candidates/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("_method") != "PUT" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": r.PathValue("id"), "updated": true})
	})
	mux.HandleFunc("DELETE /candidates/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"deleted": true})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type routerOptions struct {
	grants model.GrantTable
	claims map[string]any
}

func newTestRouter(t *testing.T, backendURL string, opts routerOptions) http.Handler {
	t.Helper()
	logger := zap.NewNop()

	if opts.grants == nil {
		opts.grants = model.GrantTable{
			"candidates.view":   true,
			"candidates.create": true,
			"candidates.edit":   true,
			"candidates.delete": true,
		}
	}
	if opts.claims == nil {
		opts.claims = map[string]any{"sub": "user-1", "roles": []any{"recruiter"}}
	}

	backend := client.New(config.BackendConfig{
		BaseURL: backendURL,
		Timeout: 2 * time.Second,
		Retry:   config.RetryConfig{MaxAttempts: 1},
		Breaker: config.BreakerConfig{FailureThreshold: 10, SuccessThreshold: 1, Timeout: time.Second},
	}, client.NewStaticTokenSource("token"), nil, logger)

	registry := screen.NewRegistry([]model.ScreenDefinition{candidatesScreen()})
	grants := permission.NewResolver(staticGrants{table: opts.grants}, time.Minute, nil)
	cache := listquery.NewCache(backend, time.Minute, 100, nil, logger)

	deps := Dependencies{
		Config: &config.Config{
			Identity: config.IdentityConfig{AdminRole: "admin"},
		},
		Logger:       logger,
		Authenticate: fakeAuth(opts.claims),
		Registry:     registry,
		Screens:      screen.NewDescriptorProvider(registry, grants),
		Grants:       grants,
		Sessions:     listquery.NewSessionStore(100, time.Minute),
		Queries:      listquery.NewController(cache),
		CommonData:   commondata.NewStore(backend, time.Second, nil, logger),
		Backend:      backend,
	}
	return NewRouter(deps)
}

func doJSON(t *testing.T, router http.Handler, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		raw, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(raw)
	} else {
		reqBody = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, reqBody)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	decoded := map[string]any{}
	if rec.Body.Len() > 0 {
		json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec, decoded
}

func TestListScreens(t *testing.T) {
	var listCalls atomic.Int64
	router := newTestRouter(t, newBackend(t, &listCalls).URL, routerOptions{})

	rec, body := doJSON(t, router, http.MethodGet, "/ui/screens", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	screens, _ := body["screens"].([]any)
	if len(screens) != 1 {
		t.Fatalf("screens = %d, want 1", len(screens))
	}
}

func TestListScreensHidesForbidden(t *testing.T) {
	var listCalls atomic.Int64
	router := newTestRouter(t, newBackend(t, &listCalls).URL, routerOptions{
		grants: model.GrantTable{},
	})

	rec, body := doJSON(t, router, http.MethodGet, "/ui/screens", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	screens, _ := body["screens"].([]any)
	if len(screens) != 0 {
		t.Errorf("screens = %d, want 0 without view grant", len(screens))
	}
}

func TestGetScreenDescriptor(t *testing.T) {
	var listCalls atomic.Int64
	router := newTestRouter(t, newBackend(t, &listCalls).URL, routerOptions{})

	rec, body := doJSON(t, router, http.MethodGet, "/ui/screens/candidates", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body["id"] != "candidates" {
		t.Errorf("id = %v", body["id"])
	}
	if body["can_create"] != true {
		t.Errorf("can_create = %v, want true", body["can_create"])
	}
}

func TestGetScreenDataRoundTrip(t *testing.T) {
	var listCalls atomic.Int64
	router := newTestRouter(t, newBackend(t, &listCalls).URL, routerOptions{})

	rec, body := doJSON(t, router, http.MethodGet, "/ui/screens/candidates/data", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := body["meta"].(map[string]any)["total"]; got != float64(6) {
		t.Errorf("total = %v, want 6", got)
	}
	if body["page"] != float64(0) {
		t.Errorf("page = %v, want 0", body["page"])
	}

	// Identical replay is served from the cache without a second backend call.
	rec, body = doJSON(t, router, http.MethodGet, "/ui/screens/candidates/data", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay status = %d", rec.Code)
	}
	if body["cached"] != true {
		t.Errorf("cached = %v, want true", body["cached"])
	}
	if got := listCalls.Load(); got != 1 {
		t.Errorf("backend list calls = %d, want 1", got)
	}
}

func TestGetScreenDataSessionState(t *testing.T) {
	var listCalls atomic.Int64
	router := newTestRouter(t, newBackend(t, &listCalls).URL, routerOptions{})

	rec, body := doJSON(t, router, http.MethodGet, "/ui/screens/candidates/data?page=2&search=ada", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body["page"] != float64(2) {
		t.Errorf("page = %v, want 2", body["page"])
	}

	// The session remembers page and search across bare requests.
	_, body = doJSON(t, router, http.MethodGet, "/ui/screens/candidates/data", nil)
	if body["page"] != float64(2) {
		t.Errorf("replayed page = %v, want 2", body["page"])
	}

	// Applying a filter rewinds pagination to the first page.
	_, body = doJSON(t, router, http.MethodGet, "/ui/screens/candidates/data?filter[tools][]=1", nil)
	if body["page"] != float64(0) {
		t.Errorf("page after filter = %v, want 0", body["page"])
	}
}

func TestGetScreenDataStalePage(t *testing.T) {
	var listCalls atomic.Int64
	router := newTestRouter(t, newBackend(t, &listCalls).URL, routerOptions{})

	// Establish the known total of 6 with a page size of 2 (3 pages).
	rec, _ := doJSON(t, router, http.MethodGet, "/ui/screens/candidates/data", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("seed status = %d", rec.Code)
	}
	before := listCalls.Load()

	rec, body := doJSON(t, router, http.MethodGet, "/ui/screens/candidates/data?page=7", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body %s", rec.Code, rec.Body.String())
	}
	errBody, _ := body["error"].(map[string]any)
	if errBody["code"] != model.ErrStalePage {
		t.Errorf("code = %v, want %v", errBody["code"], model.ErrStalePage)
	}
	if got := listCalls.Load(); got != before {
		t.Errorf("backend called %d extra times for a rejected page", got-before)
	}
}

func TestGetScreenDataForbidden(t *testing.T) {
	var listCalls atomic.Int64
	router := newTestRouter(t, newBackend(t, &listCalls).URL, routerOptions{
		grants: model.GrantTable{},
	})

	rec, _ := doJSON(t, router, http.MethodGet, "/ui/screens/candidates/data", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if listCalls.Load() != 0 {
		t.Error("backend reached without view grant")
	}
}

func TestGetScreenDataUnknownScreen(t *testing.T) {
	var listCalls atomic.Int64
	router := newTestRouter(t, newBackend(t, &listCalls).URL, routerOptions{})

	rec, _ := doJSON(t, router, http.MethodGet, "/ui/screens/nope/data", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetCommonData(t *testing.T) {
	var listCalls atomic.Int64
	router := newTestRouter(t, newBackend(t, &listCalls).URL, routerOptions{})

	rec, body := doJSON(t, router, http.MethodGet, "/ui/screens/candidates/common-data", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	tools, ok := body["tools"].(map[string]any)
	if !ok {
		t.Fatalf("tools slice missing: %v", body)
	}
	options, _ := tools["options"].([]any)
	if len(options) != 2 {
		t.Errorf("tools options = %d, want 2", len(options))
	}
}

func TestCreateRecord(t *testing.T) {
	var listCalls atomic.Int64
	router := newTestRouter(t, newBackend(t, &listCalls).URL, routerOptions{})

	rec, body := doJSON(t, router, http.MethodPost, "/ui/screens/candidates/records",
		map[string]any{"name": "Ada", "email": "ada@example.com"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body["id"] != "c-new" {
		t.Errorf("id = %v, want c-new", body["id"])
	}
}

func TestCreateRecordValidationMapsBookmarks(t *testing.T) {
	var listCalls atomic.Int64
	router := newTestRouter(t, newBackend(t, &listCalls).URL, routerOptions{})

	rec, body := doJSON(t, router, http.MethodPost, "/ui/screens/candidates/records",
		map[string]any{"name": "Ada"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body %s", rec.Code, rec.Body.String())
	}
	errBody, _ := body["error"].(map[string]any)
	if errBody["code"] != model.ErrValidationError {
		t.Fatalf("code = %v", errBody["code"])
	}
	bookmarks, _ := errBody["bookmarks"].([]any)
	found := map[any]bool{}
	for _, b := range bookmarks {
		found[b] = true
	}
	if !found["profile"] || !found["work"] {
		t.Errorf("bookmarks = %v, want profile and work", bookmarks)
	}
}

func TestCreateRecordForbidden(t *testing.T) {
	var listCalls atomic.Int64
	router := newTestRouter(t, newBackend(t, &listCalls).URL, routerOptions{
		grants: model.GrantTable{"candidates.view": true},
	})

	rec, _ := doJSON(t, router, http.MethodPost, "/ui/screens/candidates/records",
		map[string]any{"name": "Ada", "email": "ada@example.com"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestUpdateRecord(t *testing.T) {
	var listCalls atomic.Int64
	router := newTestRouter(t, newBackend(t, &listCalls).URL, routerOptions{})

	rec, body := doJSON(t, router, http.MethodPost, "/ui/screens/candidates/records/c-1?_method=PUT",
		map[string]any{"name": "Ada Lovelace"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body["updated"] != true {
		t.Errorf("updated = %v", body["updated"])
	}
}

func TestUpdateRecordRequiresMethodOverride(t *testing.T) {
	var listCalls atomic.Int64
	router := newTestRouter(t, newBackend(t, &listCalls).URL, routerOptions{})

	rec, _ := doJSON(t, router, http.MethodPost, "/ui/screens/candidates/records/c-1",
		map[string]any{"name": "Ada"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without _method=PUT", rec.Code)
	}
}

func TestDeleteRecord(t *testing.T) {
	var listCalls atomic.Int64
	router := newTestRouter(t, newBackend(t, &listCalls).URL, routerOptions{})

	rec, body := doJSON(t, router, http.MethodDelete, "/ui/screens/candidates/records/c-1",
		map[string]any{"reason": "duplicate entry"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body["deleted"] != true {
		t.Errorf("deleted = %v", body["deleted"])
	}
}

func TestMutationInvalidatesListCache(t *testing.T) {
	var listCalls atomic.Int64
	router := newTestRouter(t, newBackend(t, &listCalls).URL, routerOptions{})

	doJSON(t, router, http.MethodGet, "/ui/screens/candidates/data", nil)
	if got := listCalls.Load(); got != 1 {
		t.Fatalf("backend calls = %d, want 1", got)
	}

	rec, _ := doJSON(t, router, http.MethodPost, "/ui/screens/candidates/records",
		map[string]any{"name": "Ada", "email": "ada@example.com"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	// The cached page was dropped, so the next read refetches.
	doJSON(t, router, http.MethodGet, "/ui/screens/candidates/data", nil)
	if got := listCalls.Load(); got != 2 {
		t.Errorf("backend calls = %d, want 2 after invalidation", got)
	}
}
