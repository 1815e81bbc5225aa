package permission

import (
	"context"
	"sync"
	"time"

	"github.com/staffdeck/staffdeck/internal/observability"
	"github.com/staffdeck/staffdeck/model"
)

// GrantSource resolves the grant table for a subject on a given screen.
type GrantSource interface {
	FetchGrants(ctx context.Context, rctx *model.RequestContext, screenID string) (model.GrantTable, error)
}

type cacheEntry struct {
	grants  model.GrantTable
	expires time.Time
}

// Resolver caches grant tables per (subject, screen) with a TTL.
type Resolver struct {
	source  GrantSource
	ttl     time.Duration
	metrics *observability.Metrics
	mu      sync.RWMutex
	cache   map[string]cacheEntry
}

// NewResolver creates a Resolver with the given source and cache TTL. A nil
// metrics disables recording.
func NewResolver(source GrantSource, ttl time.Duration, metrics *observability.Metrics) *Resolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Resolver{
		source:  source,
		ttl:     ttl,
		metrics: metrics,
		cache:   make(map[string]cacheEntry),
	}
}

func cacheKey(subjectID, screenID string) string {
	return subjectID + ":" + screenID
}

// Resolve returns the grant table for the subject on the screen. Results are
// cached for the configured TTL.
func (r *Resolver) Resolve(ctx context.Context, rctx *model.RequestContext, screenID string) (model.GrantTable, error) {
	key := cacheKey(rctx.SubjectID, screenID)

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && time.Now().Before(entry.expires) {
		r.mu.RUnlock()
		if r.metrics != nil {
			r.metrics.RecordGrantCacheHit()
		}
		return entry.grants, nil
	}
	r.mu.RUnlock()

	if r.metrics != nil {
		r.metrics.RecordGrantCacheMiss()
	}
	grants, err := r.source.FetchGrants(ctx, rctx, screenID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{grants: grants, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	return grants, nil
}

// Invalidate clears cached grants for a subject. An empty screenID clears
// every screen for that subject.
func (r *Resolver) Invalidate(subjectID, screenID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if screenID != "" {
		delete(r.cache, cacheKey(subjectID, screenID))
		return
	}
	prefix := subjectID + ":"
	for key := range r.cache {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(r.cache, key)
		}
	}
}
