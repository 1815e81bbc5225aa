package listquery

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/staffdeck/staffdeck/internal/observability"
	"github.com/staffdeck/staffdeck/model"
)

// Fetcher executes a list request against the backend.
type Fetcher interface {
	List(ctx context.Context, rctx *model.RequestContext, params model.ListParams) (model.ListEnvelope, error)
}

// Cache stores list envelopes keyed by the full parameter tuple. Identical
// tuples share one cache slot, and concurrent requests for the same key are
// collapsed into a single backend call.
type Cache struct {
	fetcher    Fetcher
	freshTTL   time.Duration
	maxEntries int
	metrics    *observability.Metrics
	logger     *zap.Logger

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	envelope  model.ListEnvelope
	expiresAt time.Time
}

// NewCache creates a list-query cache. A nil metrics disables recording.
func NewCache(fetcher Fetcher, freshTTL time.Duration, maxEntries int, metrics *observability.Metrics, logger *zap.Logger) *Cache {
	if freshTTL <= 0 {
		freshTTL = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Cache{
		fetcher:    fetcher,
		freshTTL:   freshTTL,
		maxEntries: maxEntries,
		metrics:    metrics,
		logger:     logger,
		entries:    make(map[string]cacheEntry),
	}
}

// Get returns the envelope for the given parameters, fetching from the
// backend on a miss. When the fetch fails and an expired entry for the same
// key is still held, that entry is returned flagged as stale so the screen
// stays visible and retryable.
func (c *Cache) Get(ctx context.Context, rctx *model.RequestContext, params model.ListParams) (model.ListResult, error) {
	key := params.Key()

	if envelope, hit := c.getFresh(key); hit {
		if c.metrics != nil {
			c.metrics.RecordQueryCacheHit(params.Resource)
		}
		return model.ListResult{Envelope: envelope, Key: key, Cached: true}, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		// A concurrent caller may have filled the slot while this one
		// queued on the flight group.
		if envelope, hit := c.getFresh(key); hit {
			return envelope, nil
		}
		if c.metrics != nil {
			c.metrics.RecordQueryCacheMiss(params.Resource)
		}
		envelope, fetchErr := c.fetcher.List(ctx, rctx, params)
		if fetchErr != nil {
			return model.ListEnvelope{}, fetchErr
		}
		c.put(key, envelope)
		return envelope, nil
	})
	if err != nil {
		if envelope, held := c.getAny(key); held {
			if c.metrics != nil {
				c.metrics.RecordStaleResult(params.Resource)
			}
			c.logger.Warn("list fetch failed, serving stale entry",
				zap.String("key", key),
				zap.Error(err),
			)
			return model.ListResult{Envelope: envelope, Key: key, Stale: true, Cached: true}, nil
		}
		return model.ListResult{}, err
	}

	return model.ListResult{Envelope: v.(model.ListEnvelope), Key: key, Cached: shared}, nil
}

// Invalidate drops every cached entry for the given resource. An empty
// resource clears the whole cache.
func (c *Cache) Invalidate(resource string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if resource == "" {
		c.entries = make(map[string]cacheEntry)
		return
	}
	prefix := resource + "|"
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of cached entries. For testing.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// getFresh returns the entry for key if it exists and has not expired.
func (c *Cache) getFresh(key string) (model.ListEnvelope, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || time.Now().After(entry.expiresAt) {
		return model.ListEnvelope{}, false
	}
	return entry.envelope, true
}

// getAny returns the entry for key regardless of expiry.
func (c *Cache) getAny(key string) (model.ListEnvelope, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	return entry.envelope, exists
}

func (c *Cache) put(key string, envelope model.ListEnvelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictExpired()
	}

	c.entries[key] = cacheEntry{
		envelope:  envelope,
		expiresAt: time.Now().Add(c.freshTTL),
	}
}

// evictExpired removes expired entries. Must be called with mu held.
func (c *Cache) evictExpired() {
	now := time.Now()
	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
		}
	}
}
