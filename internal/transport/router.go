package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/staffdeck/staffdeck/internal/client"
	"github.com/staffdeck/staffdeck/internal/commondata"
	"github.com/staffdeck/staffdeck/internal/config"
	"github.com/staffdeck/staffdeck/internal/listquery"
	"github.com/staffdeck/staffdeck/internal/observability"
	"github.com/staffdeck/staffdeck/internal/permission"
	"github.com/staffdeck/staffdeck/internal/realtime"
	"github.com/staffdeck/staffdeck/internal/screen"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Authenticate func(http.Handler) http.Handler
	Registry     *screen.Registry
	Screens      *screen.DescriptorProvider
	Grants       *permission.Resolver
	Sessions     *listquery.SessionStore
	Queries      *listquery.Controller
	CommonData   *commondata.Store
	Realtime     *realtime.Listener
	Backend      *client.Client
	Ready        observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass
// authentication.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &handlers{
		registry: deps.Registry,
		grants:   deps.Grants,
		sessions: deps.Sessions,
		queries:  deps.Queries,
		common:   deps.CommonData,
		realtime: deps.Realtime,
		backend:  deps.Backend,
		metrics:  deps.Metrics,
		logger:   logger,
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes.
	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Ready))
	if deps.Config.Observability.Metrics.Enabled {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, observability.Handler())
	}

	// Authenticated routes.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(observability.TracingMiddleware)
		r.Use(auth)
		r.Use(BuildRequestContext(deps.Config.Identity.AdminRole))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Get("/ui/screens", handleListScreens(deps.Screens))
		r.Get("/ui/screens/{screenId}", handleGetScreen(deps.Screens))
		r.Get("/ui/screens/{screenId}/data", handleGetScreenData(h))
		r.Get("/ui/screens/{screenId}/common-data", handleGetCommonData(h))
		r.Post("/ui/screens/{screenId}/records", handleCreateRecord(h))
		r.Post("/ui/screens/{screenId}/records/{id}", handleUpdateRecord(h))
		r.Delete("/ui/screens/{screenId}/records/{id}", handleDeleteRecord(h))
	})

	return r
}
