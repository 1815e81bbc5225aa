package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TokenSource supplies the bearer token attached to every backend request.
// Refresh is invoked at most once per logical request, after a 401.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token and cannot refresh. Suitable for
// service tokens managed outside the process.
type StaticTokenSource struct {
	token string
}

// NewStaticTokenSource creates a source around a fixed token.
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

// Token returns the fixed token.
func (s *StaticTokenSource) Token(context.Context) (string, error) {
	return s.token, nil
}

// Refresh fails: a static token has nothing to exchange.
func (s *StaticTokenSource) Refresh(context.Context) (string, error) {
	return "", fmt.Errorf("client: static token cannot be refreshed")
}

// RefreshingTokenSource exchanges a long-lived refresh token for access
// tokens at a refresh endpoint. Safe for concurrent use; concurrent 401s
// collapse into a single refresh call.
type RefreshingTokenSource struct {
	refreshURL   string
	refreshToken string
	httpClient   *http.Client

	group singleflight.Group

	mu      sync.Mutex
	current string
}

// NewRefreshingTokenSource creates a source that starts with initial and
// refreshes at refreshURL.
func NewRefreshingTokenSource(refreshURL, refreshToken, initial string) *RefreshingTokenSource {
	return &RefreshingTokenSource{
		refreshURL:   refreshURL,
		refreshToken: refreshToken,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		current:      initial,
	}
}

// Token returns the current access token, refreshing first if none is held.
func (s *RefreshingTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	token := s.current
	s.mu.Unlock()
	if token != "" {
		return token, nil
	}
	return s.Refresh(ctx)
}

// Refresh exchanges the refresh token for a new access token. Callers that
// arrive while an exchange is in flight share its result instead of
// performing their own.
func (s *RefreshingTokenSource) Refresh(ctx context.Context) (string, error) {
	v, err, _ := s.group.Do("refresh", func() (any, error) {
		return s.exchange(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// exchange performs one HTTP token exchange and stores the result.
func (s *RefreshingTokenSource) exchange(ctx context.Context) (string, error) {
	payload, _ := json.Marshal(map[string]string{"refresh_token": s.refreshToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.refreshURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("client: build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("client: token refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("client: token refresh returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("client: read refresh response: %w", err)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("client: parse refresh response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("client: refresh response missing access_token")
	}

	s.mu.Lock()
	s.current = out.AccessToken
	s.mu.Unlock()
	return out.AccessToken, nil
}
