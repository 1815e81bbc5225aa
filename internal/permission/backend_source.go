package permission

import (
	"context"
	"fmt"

	"github.com/staffdeck/staffdeck/model"
)

// SliceFetcher fetches a backend endpoint and returns the decoded JSON body.
type SliceFetcher interface {
	FetchSlice(ctx context.Context, rctx *model.RequestContext, url string) (any, error)
}

// BackendGrantSource resolves grant tables from the admin API, which exposes
// per-screen permissions at /screens/{screenID}/permissions. The body is
// either a list of granted types or a type-to-bool map, wrapped in the usual
// data envelope.
type BackendGrantSource struct {
	fetcher SliceFetcher
}

// NewBackendGrantSource creates a grant source backed by the admin API.
func NewBackendGrantSource(fetcher SliceFetcher) *BackendGrantSource {
	return &BackendGrantSource{fetcher: fetcher}
}

// FetchGrants fetches and parses the grant table for a screen.
func (s *BackendGrantSource) FetchGrants(ctx context.Context, rctx *model.RequestContext, screenID string) (model.GrantTable, error) {
	raw, err := s.fetcher.FetchSlice(ctx, rctx, "/screens/"+screenID+"/permissions")
	if err != nil {
		return nil, err
	}

	if envelope, ok := raw.(map[string]any); ok {
		if data, present := envelope["data"]; present {
			raw = data
		}
	}

	table := make(model.GrantTable)
	switch body := raw.(type) {
	case []any:
		for _, item := range body {
			if name, ok := item.(string); ok {
				table[name] = true
			}
		}
	case map[string]any:
		for name, granted := range body {
			if b, ok := granted.(bool); ok && b {
				table[name] = true
			}
		}
	default:
		return nil, fmt.Errorf("permission: unexpected grants body for screen %s", screenID)
	}
	return table, nil
}
