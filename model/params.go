package model

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ViewMode selects how a list screen renders its collection.
type ViewMode string

const (
	ViewTable ViewMode = "table"
	ViewCard  ViewMode = "card"
)

// DefaultPageSize is applied when a screen definition does not set its own.
const DefaultPageSize = 25

// Pagination is the page window of a list request. Page is zero-based.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// DefaultPagination returns the reset state used on view-mode changes and
// filter clears.
func DefaultPagination(pageSize int) Pagination {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return Pagination{Page: 0, PageSize: pageSize}
}

// SortField is a single sort criterion.
type SortField struct {
	Field     string `json:"field"`
	Direction string `json:"direction"` // "asc" or "desc"
}

// Filter is one applied filter: the selected values and the match mode.
type Filter struct {
	Data []string `json:"data"`
	Mode string   `json:"mode"` // FilterModeStandard or FilterModeExclude
}

// Filter modes.
const (
	FilterModeStandard = "standard"
	FilterModeExclude  = "exclude"
)

// FilterSet maps filter names to applied filters. A name is present only
// while it holds a non-empty selection; an absent name means "no constraint".
// An empty Data slice must never be stored — use Set, which enforces this.
type FilterSet map[string]Filter

// Set applies a filter. An empty selection removes the name entirely, so a
// cleared filter round-trips to an absent key rather than an
// empty-constraint key.
func (fs FilterSet) Set(name string, f Filter) {
	if len(f.Data) == 0 {
		delete(fs, name)
		return
	}
	if f.Mode == "" {
		f.Mode = FilterModeStandard
	}
	fs[name] = f
}

// Clear removes a filter by name.
func (fs FilterSet) Clear(name string) {
	delete(fs, name)
}

// Clone returns a deep copy.
func (fs FilterSet) Clone() FilterSet {
	out := make(FilterSet, len(fs))
	for name, f := range fs {
		data := make([]string, len(f.Data))
		copy(data, f.Data)
		out[name] = Filter{Data: data, Mode: f.Mode}
	}
	return out
}

// ListParams is the full parameter tuple of a list request. Its Key uniquely
// identifies a query-cache slot: any field change produces a new slot.
type ListParams struct {
	Resource   string      `json:"resource"`
	Pagination Pagination  `json:"pagination"`
	Sort       []SortField `json:"sort,omitempty"`
	Search     string      `json:"search,omitempty"`
	Filters    FilterSet   `json:"filters,omitempty"`
}

// NewListParams returns params at the reset state for a resource.
func NewListParams(resource string, pageSize int) ListParams {
	return ListParams{
		Resource:   resource,
		Pagination: DefaultPagination(pageSize),
		Filters:    FilterSet{},
	}
}

// Reset clears search, sort, and pagination back to defaults while keeping
// the resource and applied filters. This is the explicit view-mode-change
// reset policy, not an incidental side effect.
func (p *ListParams) Reset(pageSize int) {
	p.Search = ""
	p.Sort = nil
	p.Pagination = DefaultPagination(pageSize)
}

// Key returns the canonical cache-key string for the parameter tuple.
// Identical tuples always produce identical keys; filters are emitted in
// sorted name order so map iteration order cannot leak into identity.
func (p ListParams) Key() string {
	var b strings.Builder
	b.WriteString(p.Resource)
	fmt.Fprintf(&b, "|p=%d,%d", p.Pagination.Page, p.Pagination.PageSize)
	b.WriteString("|s=")
	for i, s := range p.Sort {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s.Field)
		b.WriteByte(':')
		b.WriteString(s.Direction)
	}
	b.WriteString("|q=")
	b.WriteString(p.Search)
	b.WriteString("|f=")
	names := make([]string, 0, len(p.Filters))
	for name := range p.Filters {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			b.WriteByte(';')
		}
		f := p.Filters[name]
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strings.Join(f.Data, ","))
		b.WriteByte('~')
		b.WriteString(f.Mode)
	}
	return b.String()
}

// Encode serializes the tuple into backend query parameters:
// page, pageSize, sort, search, filter[name][]= and filter[name][mode]=.
// Absent filters contribute nothing; the mode key is emitted only for
// non-standard modes.
func (p ListParams) Encode() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(p.Pagination.Page))
	v.Set("pageSize", strconv.Itoa(p.Pagination.PageSize))
	if len(p.Sort) > 0 {
		parts := make([]string, len(p.Sort))
		for i, s := range p.Sort {
			parts[i] = s.Field + ":" + s.Direction
		}
		v.Set("sort", strings.Join(parts, ","))
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	names := make([]string, 0, len(p.Filters))
	for name := range p.Filters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f := p.Filters[name]
		key := "filter[" + name + "][]"
		for _, val := range f.Data {
			v.Add(key, val)
		}
		if f.Mode == FilterModeExclude {
			v.Set("filter["+name+"][mode]", f.Mode)
		}
	}
	return v
}
