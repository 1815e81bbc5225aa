package listquery

import (
	"sync"

	"github.com/staffdeck/staffdeck/model"
)

// Session tracks the live query state of one subject on one list screen:
// the current parameter tuple, the rendering mode, and the generation
// counter that protects committed results against superseded fetches.
type Session struct {
	mu              sync.Mutex
	params          model.ListParams
	mode            model.ViewMode
	defaultPageSize int
	generation      uint64
	current         *model.ListResult
}

// NewSession starts a session at the reset state for a resource.
func NewSession(resource string, pageSize int) *Session {
	if pageSize <= 0 {
		pageSize = model.DefaultPageSize
	}
	return &Session{
		params:          model.NewListParams(resource, pageSize),
		mode:            model.ViewTable,
		defaultPageSize: pageSize,
	}
}

// Params returns a deep copy of the current parameter tuple.
func (s *Session) Params() model.ListParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneParams()
}

// Mode returns the current rendering mode.
func (s *Session) Mode() model.ViewMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Generation returns the current parameter generation.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Snapshot returns the current parameters and generation together, so a
// fetch can later prove its inputs were not superseded.
func (s *Session) Snapshot() (model.ListParams, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneParams(), s.generation
}

// SetPage moves to a page. Pagination moves only through explicit calls
// like this one.
func (s *Session) SetPage(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page < 0 {
		page = 0
	}
	if s.params.Pagination.Page == page {
		return
	}
	s.params.Pagination.Page = page
	s.generation++
}

// SetPageSize changes the page size and rewinds to the first page.
func (s *Session) SetPageSize(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if size <= 0 {
		size = s.defaultPageSize
	}
	if s.params.Pagination.PageSize == size {
		return
	}
	s.params.Pagination = model.Pagination{Page: 0, PageSize: size}
	s.generation++
}

// SetSearch replaces the search text. Pagination is left alone: only the
// explicit reset path touches it.
func (s *Session) SetSearch(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.params.Search == text {
		return
	}
	s.params.Search = text
	s.generation++
}

// SetSort replaces the sort spec. An empty spec means server default order.
func (s *Session) SetSort(fields []model.SortField) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params.Sort = append([]model.SortField(nil), fields...)
	s.generation++
}

// SetFilter applies one filter. An empty selection removes the filter and,
// like clearing all filters, rewinds pagination to the default.
func (s *Session) SetFilter(name string, f model.Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cleared := len(f.Data) == 0
	s.params.Filters.Set(name, f)
	if cleared {
		s.params.Pagination = model.DefaultPagination(s.defaultPageSize)
	}
	s.generation++
}

// ClearFilters removes every applied filter and rewinds pagination.
func (s *Session) ClearFilters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params.Filters = model.FilterSet{}
	s.params.Pagination = model.DefaultPagination(s.defaultPageSize)
	s.generation++
}

// SetMode switches between table and card rendering. A real switch clears
// search, sort, and pagination back to defaults regardless of prior state;
// filters survive. Setting the mode it already has is a no-op, and a value
// that is not a known mode is ignored so it can never trigger the reset.
func (s *Session) SetMode(mode model.ViewMode) {
	if mode != model.ViewTable && mode != model.ViewCard {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == mode {
		return
	}
	s.mode = mode
	s.params.Reset(s.defaultPageSize)
	s.generation++
}

// commit stores a result as the session's current one, but only when the
// generation it was fetched under is still the live one. A superseded fetch
// must never overwrite state produced by newer parameters.
func (s *Session) commit(result model.ListResult, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return false
	}
	s.current = &result
	return true
}

// Current returns the last committed result, if any.
func (s *Session) Current() (model.ListResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return model.ListResult{}, false
	}
	return *s.current, true
}

// cloneParams must be called with mu held.
func (s *Session) cloneParams() model.ListParams {
	out := s.params
	out.Sort = append([]model.SortField(nil), s.params.Sort...)
	out.Filters = s.params.Filters.Clone()
	return out
}
