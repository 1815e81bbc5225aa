package commondata

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/staffdeck/staffdeck/internal/observability"
	"github.com/staffdeck/staffdeck/model"
)

// SliceFetcher fetches one reference-data endpoint and returns the decoded
// JSON body.
type SliceFetcher interface {
	FetchSlice(ctx context.Context, rctx *model.RequestContext, url string) (any, error)
}

// Store caches reference-data sets per screen. Whole sets are fetched
// concurrently with all-settled semantics; change notifications re-fetch a
// single named slice and shallow-merge it in, leaving every other entry
// untouched.
type Store struct {
	fetcher      SliceFetcher
	fetchTimeout time.Duration
	metrics      *observability.Metrics
	logger       *zap.Logger

	mu    sync.RWMutex
	cache map[string]model.CommonData
}

// NewStore creates a common-data store. A nil metrics disables recording.
func NewStore(fetcher SliceFetcher, fetchTimeout time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Store {
	if fetchTimeout <= 0 {
		fetchTimeout = 5 * time.Second
	}
	return &Store{
		fetcher:      fetcher,
		fetchTimeout: fetchTimeout,
		metrics:      metrics,
		logger:       logger,
		cache:        make(map[string]model.CommonData),
	}
}

type sliceResult struct {
	name  string
	slice model.CommonDataSlice
}

// FetchAll fetches every descriptor in the table concurrently and caches
// the assembled set under screenKey. A slice that fails to fetch resolves
// to an empty list; one failure never aborts the rest of the batch.
func (s *Store) FetchAll(ctx context.Context, rctx *model.RequestContext, screenKey string, sources model.SourceTable) (model.CommonData, error) {
	if len(sources) == 0 {
		empty := model.CommonData{}
		s.putAll(screenKey, empty)
		return empty, nil
	}

	ch := make(chan sliceResult, len(sources))
	var wg sync.WaitGroup

	for name, source := range sources {
		wg.Add(1)
		go func(name string, source model.CommonDataSource) {
			defer wg.Done()
			ch <- sliceResult{name: name, slice: s.fetchSlice(ctx, rctx, name, source)}
		}(name, source)
	}

	go func() {
		wg.Wait()
		close(ch)
	}()

	data := make(model.CommonData, len(sources))
	for r := range ch {
		data[r.name] = r.slice
	}

	s.putAll(screenKey, data)
	return data, nil
}

// Refresh re-fetches the single named slice and merges it into the cached
// set for screenKey. The merge is shallow: every other entry keeps its
// existing value, so a concurrent unrelated fetch is never lost.
func (s *Store) Refresh(ctx context.Context, rctx *model.RequestContext, screenKey, name string, source model.CommonDataSource) model.CommonData {
	if s.metrics != nil {
		s.metrics.RecordCommonDataRefresh(name)
	}
	slice := s.fetchSlice(ctx, rctx, name, source)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.cache[screenKey]
	merged := make(model.CommonData, len(existing)+1)
	for k, v := range existing {
		merged[k] = v
	}
	merged[name] = slice
	s.cache[screenKey] = merged
	return merged
}

// Get returns the cached set for a screen, if one has been fetched.
func (s *Store) Get(screenKey string) (model.CommonData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.cache[screenKey]
	return data, ok
}

// Forget drops the cached set for a screen.
func (s *Store) Forget(screenKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, screenKey)
}

// fetchSlice fetches and normalizes one collection. Failures degrade to an
// empty slice rather than an error.
func (s *Store) fetchSlice(ctx context.Context, rctx *model.RequestContext, name string, source model.CommonDataSource) model.CommonDataSlice {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	raw, err := s.fetcher.FetchSlice(ctx, rctx, source.URL)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordCommonDataFetch("error")
		}
		s.logger.Warn("common-data slice fetch failed, degrading to empty list",
			zap.String("name", name),
			zap.String("url", source.URL),
			zap.Error(err),
		)
		if source.IsFull {
			return model.CommonDataSlice{Raw: []map[string]any{}, IsFull: true}
		}
		return model.CommonDataSlice{Options: []model.Option{}}
	}

	if s.metrics != nil {
		s.metrics.RecordCommonDataFetch("ok")
	}
	return NormalizeSlice(name, raw, source.IsFull)
}

func (s *Store) putAll(screenKey string, data model.CommonData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[screenKey] = data
}
