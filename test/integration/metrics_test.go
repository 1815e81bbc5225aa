package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// ==========================================================================
// Metrics Tests
// ==========================================================================

func TestMetrics_QueryCacheAndBackendCounters(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("listCandidates").RespondWith(http.StatusOK, candidatePage(2, 6))

	token := h.GenerateToken(RecruiterClaims())
	h.GET("/ui/screens/candidates/data", token)
	h.GET("/ui/screens/candidates/data", token)

	if got := testutil.ToFloat64(h.Metrics.QueryCacheMissesTotal.WithLabelValues("candidates")); got != 1 {
		t.Errorf("query cache misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.Metrics.QueryCacheHitsTotal.WithLabelValues("candidates")); got != 1 {
		t.Errorf("query cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.Metrics.BackendRequestsTotal.WithLabelValues("GET", "200")); got != 1 {
		t.Errorf("backend requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.Metrics.BackendCircuitBreakerState); got != 0 {
		t.Errorf("breaker gauge = %v, want 0 (closed)", got)
	}

	// Grants were resolved from the source once; the second request hit the
	// grant cache.
	if got := testutil.ToFloat64(h.Metrics.GrantCacheMissesTotal); got != 1 {
		t.Errorf("grant cache misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.Metrics.GrantCacheHitsTotal); got != 1 {
		t.Errorf("grant cache hits = %v, want 1", got)
	}
}

func TestMetrics_StaleServeRecorded(t *testing.T) {
	h := NewTestHarness(t, WithFreshTTL(time.Millisecond))
	h.Backend.OnOperation("listCandidates").
		RespondWith(http.StatusOK, candidatePage(2, 6)).
		RespondWithConnectionError()

	token := h.GenerateToken(RecruiterClaims())
	h.GET("/ui/screens/candidates/data", token)
	time.Sleep(10 * time.Millisecond)

	var body map[string]any
	resp := h.GET("/ui/screens/candidates/data", token)
	h.AssertJSON(t, resp, http.StatusOK, &body)

	if got := testutil.ToFloat64(h.Metrics.StaleResultsServed.WithLabelValues("candidates")); got != 1 {
		t.Errorf("stale results served = %v, want 1", got)
	}
}

func TestMetrics_CommonDataAndRealtimeCounters(t *testing.T) {
	h := NewTestHarness(t, WithRealtime())
	h.Backend.OnOperation("toolsSlice").
		RespondWith(http.StatusOK, optionSlice("Go")).
		RespondWith(http.StatusOK, optionSlice("Go", "Python"))
	h.Backend.OnOperation("statusesSlice").RespondWith(http.StatusOK, optionSlice("Active"))
	h.Backend.OnOperation("templatesSlice").RespondWith(http.StatusOK, map[string]any{"data": []map[string]any{}})

	token := h.GenerateToken(RecruiterClaims())
	resp := h.GET("/ui/screens/candidates/common-data", token)
	h.AssertStatus(t, resp, http.StatusOK)

	if got := testutil.ToFloat64(h.Metrics.CommonDataFetchesTotal.WithLabelValues("ok")); got != 3 {
		t.Errorf("common-data ok fetches = %v, want 3", got)
	}

	// A change event for a known collection dispatches a partial refresh.
	h.Redis.Publish("common-data", `{"key":"tools"}`)
	waitForCounter(t, func() float64 {
		return testutil.ToFloat64(h.Metrics.CommonDataRefreshTotal.WithLabelValues("tools"))
	}, 1)
	if got := testutil.ToFloat64(h.Metrics.RealtimeEventsTotal.WithLabelValues("dispatched")); got != 1 {
		t.Errorf("dispatched events = %v, want 1", got)
	}

	// A collection no mounted screen declares is counted as ignored.
	h.Redis.Publish("common-data", `{"key":"currencies"}`)
	waitForCounter(t, func() float64 {
		return testutil.ToFloat64(h.Metrics.RealtimeEventsTotal.WithLabelValues("ignored"))
	}, 1)
}

// waitForCounter polls a counter until it reaches want or the deadline passes.
func waitForCounter(t *testing.T, read func() float64, want float64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if read() >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("counter = %v, want at least %v before deadline", read(), want)
}
