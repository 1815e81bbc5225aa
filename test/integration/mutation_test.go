package integration

import (
	"net/http"
	"testing"
)

// ==========================================================================
// Record Mutation Tests
// ==========================================================================

func TestCreateRecord_Success(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("createCandidate").RespondWith(http.StatusCreated, map[string]any{
		"id":   "c-new",
		"name": "Ada Lovelace",
	})

	token := h.GenerateToken(RecruiterClaims())
	resp := h.POST("/ui/screens/candidates/records", map[string]any{
		"name":  "Ada Lovelace",
		"email": "ada@example.com",
	}, token)

	var body map[string]any
	h.AssertJSON(t, resp, http.StatusCreated, &body)
	assertEqual(t, body["id"], "c-new", "created id")

	req := h.Backend.LastRequest("createCandidate")
	if req == nil {
		t.Fatal("backend never received the create request")
	}
	assertEqual(t, req.Body["email"], "ada@example.com", "payload email")
}

func TestCreateRecord_ValidationMapsBookmarks(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("createCandidate").RespondWith(http.StatusUnprocessableEntity, map[string]any{
		"errors": map[string]any{
			"email":      []string{"is required"},
			"work.phone": []string{"is not a valid phone number"},
		},
	})

	token := h.GenerateToken(RecruiterClaims())
	resp := h.POST("/ui/screens/candidates/records", map[string]any{"name": "Ada"}, token)

	var body map[string]any
	h.AssertJSON(t, resp, http.StatusUnprocessableEntity, &body)

	errBody := body["error"].(map[string]any)
	assertEqual(t, errBody["code"], "VALIDATION_ERROR", "error code")

	details := errBody["details"].([]any)
	if len(details) != 2 {
		t.Fatalf("details = %d entries, want 2", len(details))
	}

	// email belongs to the profile bookmark, work.phone to the work one.
	bookmarks := errBody["bookmarks"].([]any)
	names := make(map[string]bool)
	for _, b := range bookmarks {
		names[b.(string)] = true
	}
	if !names["profile"] || !names["work"] {
		t.Errorf("bookmarks = %v, want profile and work", bookmarks)
	}
}

func TestCreateRecord_Forbidden(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ViewerClaims())

	resp := h.POST("/ui/screens/candidates/records", map[string]any{"name": "Ada"}, token)
	h.AssertStatus(t, resp, http.StatusForbidden)

	h.Backend.AssertNotCalled(t, "createCandidate")
}

func TestUpdateRecord_MethodOverride(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("updateCandidate").RespondWith(http.StatusOK, map[string]any{
		"id":     "c-1",
		"status": "placed",
	})

	token := h.GenerateToken(RecruiterClaims())

	t.Run("update tunnels through POST with _method=PUT", func(t *testing.T) {
		resp := h.POST("/ui/screens/candidates/records/c-1?_method=PUT", map[string]any{
			"status": "placed",
		}, token)

		var body map[string]any
		h.AssertJSON(t, resp, http.StatusOK, &body)
		assertEqual(t, body["status"], "placed", "updated status")

		req := h.Backend.LastRequest("updateCandidate")
		assertEqual(t, req.QueryParams.Get("_method"), "PUT", "backend _method param")
	})

	t.Run("missing override is rejected", func(t *testing.T) {
		resp := h.POST("/ui/screens/candidates/records/c-1", map[string]any{
			"status": "placed",
		}, token)
		h.AssertStatus(t, resp, http.StatusBadRequest)
		h.Backend.AssertCalled(t, "updateCandidate", 1)
	})
}

func TestUpdateRecord_OwnershipRestriction(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("updateCandidate").RespondWith(http.StatusOK, map[string]any{"id": "c-1"})

	t.Run("owner may edit their own record", func(t *testing.T) {
		token := h.GenerateToken(RecruiterClaims())
		resp := h.POST("/ui/screens/candidates/records/c-1?_method=PUT", map[string]any{
			"owner_id": "user-recruiter",
			"status":   "placed",
		}, token)
		h.AssertStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	})

	t.Run("someone else's record is off limits", func(t *testing.T) {
		token := h.GenerateToken(RecruiterClaims())
		resp := h.POST("/ui/screens/candidates/records/c-1?_method=PUT", map[string]any{
			"owner_id": "user-other",
			"status":   "placed",
		}, token)
		h.AssertStatus(t, resp, http.StatusForbidden)
	})

	t.Run("admin overrides ownership", func(t *testing.T) {
		token := h.GenerateToken(AdminClaims())
		resp := h.POST("/ui/screens/candidates/records/c-1?_method=PUT", map[string]any{
			"owner_id": "user-other",
			"status":   "placed",
		}, token)
		h.AssertStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	})
}

func TestDeleteRecord_ReasonForwarded(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("deleteCandidate").RespondWith(http.StatusOK, map[string]any{"deleted": true})

	token := h.GenerateToken(RecruiterClaims())
	resp := h.DELETE("/ui/screens/candidates/records/c-3", map[string]any{
		"reason": "duplicate entry",
	}, token)

	var body map[string]any
	h.AssertJSON(t, resp, http.StatusOK, &body)
	assertEqual(t, body["deleted"], true, "deleted flag")

	req := h.Backend.LastRequest("deleteCandidate")
	if req == nil {
		t.Fatal("backend never received the delete request")
	}
	assertEqual(t, req.Body["reason"], "duplicate entry", "forwarded reason")
}

func TestMutation_InvalidatesListCache(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.OnOperation("listCandidates").RespondWith(http.StatusOK, candidatePage(2, 6))
	h.Backend.OnOperation("createCandidate").RespondWith(http.StatusCreated, map[string]any{"id": "c-new"})

	token := h.GenerateToken(RecruiterClaims())

	resp := h.GET("/ui/screens/candidates/data", token)
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	h.Backend.AssertCalled(t, "listCandidates", 1)

	resp = h.POST("/ui/screens/candidates/records", map[string]any{"name": "Ada"}, token)
	h.AssertStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	// The create dropped the cached page, so the next load refetches.
	resp = h.GET("/ui/screens/candidates/data", token)
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	h.Backend.AssertCalled(t, "listCandidates", 2)
}

func TestMutation_UndeclaredOperation(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(RecruiterClaims())

	// The clients screen declares no create permission, so the operation
	// is not offered at all, regardless of grants.
	resp := h.POST("/ui/screens/clients/records", map[string]any{"company": "Acme"}, token)
	h.AssertStatus(t, resp, http.StatusForbidden)
}
