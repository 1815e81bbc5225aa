package listquery

import (
	"context"
	"sync"

	"github.com/staffdeck/staffdeck/model"
)

// Controller drives list queries for sessions: it applies the pagination
// guard, runs the fetch through the keyed cache, and commits results back
// to the session under generation protection.
type Controller struct {
	cache *Cache

	mu     sync.RWMutex
	totals map[string]int
}

// NewController creates a controller on top of a cache.
func NewController(cache *Cache) *Controller {
	return &Controller{
		cache:  cache,
		totals: make(map[string]int),
	}
}

// Query executes the session's current query. When the requested page lies
// beyond the last known total for the same resource/filter/search/sort
// combination, no request is fired and a stale-page error is returned
// instead. A result whose parameters were superseded while in flight is
// still returned to its caller but never committed as the session's
// current state.
func (q *Controller) Query(ctx context.Context, rctx *model.RequestContext, session *Session) (model.ListResult, error) {
	params, generation := session.Snapshot()

	if err := q.checkPagination(params); err != nil {
		return model.ListResult{}, err
	}

	result, err := q.cache.Get(ctx, rctx, params)
	if err != nil {
		return model.ListResult{}, err
	}

	if !result.Stale {
		q.rememberTotal(params, result.Envelope.Meta.Total)
	}
	session.commit(result, generation)
	return result, nil
}

// Invalidate drops cached pages for a resource, typically after a mutation.
func (q *Controller) Invalidate(resource string) {
	q.cache.Invalidate(resource)

	q.mu.Lock()
	defer q.mu.Unlock()
	if resource == "" {
		q.totals = make(map[string]int)
		return
	}
	for k := range q.totals {
		if paramsResource(k) == resource {
			delete(q.totals, k)
		}
	}
}

// checkPagination rejects page indexes that exceed the known total for the
// rest of the tuple, without issuing a request.
func (q *Controller) checkPagination(params model.ListParams) error {
	if params.Pagination.Page == 0 || params.Pagination.PageSize <= 0 {
		return nil
	}

	q.mu.RLock()
	total, known := q.totals[baseKey(params)]
	q.mu.RUnlock()
	if !known {
		return nil
	}

	pages := (total + params.Pagination.PageSize - 1) / params.Pagination.PageSize
	if params.Pagination.Page >= pages {
		return model.NewStalePageError(params.Pagination.Page, total)
	}
	return nil
}

func (q *Controller) rememberTotal(params model.ListParams, total int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.totals[baseKey(params)] = total
}

// baseKey is the parameter key with the page index zeroed, so every page of
// the same filtered view shares one total.
func baseKey(params model.ListParams) string {
	params.Pagination.Page = 0
	return params.Key()
}

// paramsResource extracts the resource prefix from a cache key.
func paramsResource(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i]
		}
	}
	return key
}
