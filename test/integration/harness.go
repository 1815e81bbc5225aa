// Package integration provides a reusable test harness for end-to-end
// integration testing of the staffdeck server. It starts a full HTTP server
// with a mock staffing backend, a test JWT issuer, and an optional in-memory
// Redis for the realtime change feed.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/staffdeck/staffdeck/internal/client"
	"github.com/staffdeck/staffdeck/internal/commondata"
	"github.com/staffdeck/staffdeck/internal/config"
	"github.com/staffdeck/staffdeck/internal/listquery"
	"github.com/staffdeck/staffdeck/internal/observability"
	"github.com/staffdeck/staffdeck/internal/permission"
	"github.com/staffdeck/staffdeck/internal/realtime"
	"github.com/staffdeck/staffdeck/internal/screen"
	"github.com/staffdeck/staffdeck/internal/transport"
)

// TestHarness encapsulates a fully wired staffdeck instance with a mock
// backend for integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Metrics  *observability.Metrics
	Registry *screen.Registry
	Grants   *permission.Resolver
	Sessions *listquery.SessionStore
	Queries  *listquery.Controller
	Common   *commondata.Store
	Listener *realtime.Listener
	Redis    *miniredis.Miniredis

	Backend *MockBackend
	cfg     *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	screenDirs     []string
	grantsFile     string
	realtime       bool
	handlerTimeout time.Duration
	freshTTL       time.Duration
	maxAttempts    int
}

// WithScreens sets the screen definition directories to load.
func WithScreens(dirs ...string) HarnessOption {
	return func(c *harnessConfig) {
		c.screenDirs = dirs
	}
}

// WithGrantsFile sets the static grants YAML file.
func WithGrantsFile(path string) HarnessOption {
	return func(c *harnessConfig) {
		c.grantsFile = path
	}
}

// WithRealtime starts an in-memory Redis and wires the realtime listener
// to it, so tests can publish common-data change events.
func WithRealtime() HarnessOption {
	return func(c *harnessConfig) {
		c.realtime = true
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithFreshTTL sets the list-query cache freshness window.
func WithFreshTTL(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.freshTTL = d
	}
}

// WithRetries sets the backend retry attempt count.
func WithRetries(maxAttempts int) HarnessOption {
	return func(c *harnessConfig) {
		c.maxAttempts = maxAttempts
	}
}

// NewTestHarness creates and starts a full staffdeck test instance. The
// server is automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout: 10 * time.Second,
		freshTTL:       30 * time.Second,
		maxAttempts:    1,
	}
	for _, opt := range opts {
		opt(hc)
	}

	testdata := testdataDir()
	if len(hc.screenDirs) == 0 {
		hc.screenDirs = []string{filepath.Join(testdata, "screens")}
	}
	if hc.grantsFile == "" {
		hc.grantsFile = filepath.Join(testdata, "grants.yaml")
	}

	h := &TestHarness{t: t}
	logger := zap.NewNop()
	h.Metrics = observability.InitMetrics(prometheus.NewRegistry())

	h.Backend = newMockBackend(t)
	h.issuer = newTokenIssuer(t)

	h.cfg = &config.Config{
		Server: config.ServerConfig{
			Port:           0, // unused, httptest picks a port
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			HandlerTimeout: hc.handlerTimeout,
			CORS: config.CORSConfig{
				AllowedOrigins: []string{"http://localhost:3000"},
				AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Identity: config.IdentityConfig{
			Issuer:       h.issuer.Issuer(),
			Audience:     h.issuer.Audience(),
			JWKSURL:      h.issuer.JWKSURL(),
			JWKSCacheTTL: 1 * time.Hour,
			Algorithms:   []string{"RS256"},
			AdminRole:    "admin",
		},
		Backend: config.BackendConfig{
			BaseURL: h.Backend.URL(),
			Timeout: 5 * time.Second,
			Retry: config.RetryConfig{
				MaxAttempts:    hc.maxAttempts,
				BackoffInitial: 1 * time.Millisecond,
				BackoffMax:     5 * time.Millisecond,
			},
			Breaker: config.BreakerConfig{
				FailureThreshold: 100,
				SuccessThreshold: 1,
				Timeout:          50 * time.Millisecond,
			},
		},
	}

	// Screen definitions.
	defs, err := screen.NewLoader().LoadAll(hc.screenDirs)
	if err != nil {
		t.Fatalf("load screens: %v", err)
	}
	if verrs := screen.NewValidator().Validate(defs); len(verrs) > 0 {
		t.Fatalf("validate screens: %v", verrs)
	}
	h.Registry = screen.NewRegistry(defs)

	// Backend client and grants.
	backend := client.New(h.cfg.Backend, client.NewStaticTokenSource("test-service-token"), h.Metrics, logger)
	grantSource, err := permission.NewStaticGrantSource(hc.grantsFile)
	if err != nil {
		t.Fatalf("load grants: %v", err)
	}
	h.Grants = permission.NewResolver(grantSource, 1*time.Minute, h.Metrics)

	// List-query pipeline and common-data store.
	cache := listquery.NewCache(backend, hc.freshTTL, 100, h.Metrics, logger)
	h.Queries = listquery.NewController(cache)
	h.Sessions = listquery.NewSessionStore(100, 30*time.Minute)
	h.Common = commondata.NewStore(backend, 3*time.Second, h.Metrics, logger)

	// Realtime change feed.
	var redisClient *redis.Client
	if hc.realtime {
		h.Redis = miniredis.RunT(t)
		redisClient = redis.NewClient(&redis.Options{Addr: h.Redis.Addr()})
		t.Cleanup(func() { redisClient.Close() })
	}
	h.Listener = realtime.NewListener(redisClient, "common-data", h.Metrics, logger)
	if err := h.Listener.Start(context.Background()); err != nil {
		t.Fatalf("start realtime listener: %v", err)
	}
	t.Cleanup(func() { h.Listener.Close() })

	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), 1*time.Hour, logger)
	router := transport.NewRouter(transport.Dependencies{
		Config:       h.cfg,
		Logger:       logger,
		Metrics:      h.Metrics,
		Authenticate: transport.JWTAuthenticator(h.cfg.Identity, jwks),
		Registry:     h.Registry,
		Screens:      screen.NewDescriptorProvider(h.Registry, h.Grants),
		Grants:       h.Grants,
		Sessions:     h.Sessions,
		Queries:      h.Queries,
		CommonData:   h.Common,
		Realtime:     h.Listener,
		Backend:      backend,
		Ready: observability.ReadinessChecks{
			ScreensLoaded: func() bool { return h.Registry.Len() > 0 },
			Realtime:      h.Listener,
		},
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token)
}

// DELETE performs an authenticated DELETE request with an optional JSON body.
func (h *TestHarness) DELETE(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("DELETE", path, body, token)
}

func (h *TestHarness) doRequest(method, path string, body any, token string) *http.Response {
	h.t.Helper()

	url := h.server.URL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// --- Default test claims ---

// RecruiterClaims returns TestClaims for a recruiter with full candidate access.
func RecruiterClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-recruiter",
		Email:     "recruiter@agency.example.com",
		Roles:     []string{"recruiter"},
	}
}

// ViewerClaims returns TestClaims for a read-only user.
func ViewerClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-viewer",
		Email:     "viewer@agency.example.com",
		Roles:     []string{"viewer"},
	}
}

// AdminClaims returns TestClaims carrying the configured admin role.
func AdminClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-admin",
		Email:     "admin@agency.example.com",
		Roles:     []string{"admin"},
	}
}

// --- Helpers ---

// testdataDir returns the absolute path to the testdata directory.
func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}

func assertEqual(t *testing.T, got, want any, name string) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func assertFloatEqual(t *testing.T, got any, wantInt int, name string) {
	t.Helper()
	f, ok := got.(float64)
	if !ok {
		t.Errorf("%s: expected float64, got %T (%v)", name, got, got)
		return
	}
	if int(f) != wantInt {
		t.Errorf("%s = %v, want %d", name, got, wantInt)
	}
}
