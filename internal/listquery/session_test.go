package listquery

import (
	"testing"

	"github.com/staffdeck/staffdeck/model"
)

func TestSetModeResetsSearchSortPagination(t *testing.T) {
	s := NewSession("candidates", 25)
	s.SetSearch("foo")
	s.SetSort([]model.SortField{{Field: "name", Direction: "asc"}})
	s.SetPage(4)
	s.SetFilter("tools", model.Filter{Data: []string{"3"}, Mode: model.FilterModeStandard})

	s.SetMode(model.ViewCard)

	params := s.Params()
	if params.Search != "" {
		t.Errorf("Search = %q, want empty", params.Search)
	}
	if len(params.Sort) != 0 {
		t.Errorf("Sort = %v, want empty", params.Sort)
	}
	if params.Pagination != model.DefaultPagination(25) {
		t.Errorf("Pagination = %+v, want default", params.Pagination)
	}
	// Filters survive the mode switch.
	if _, ok := params.Filters["tools"]; !ok {
		t.Error("Filters lost the tools entry on mode switch")
	}
}

func TestSetModeUnknownValueIgnored(t *testing.T) {
	s := NewSession("candidates", 25)
	s.SetSearch("foo")
	s.SetPage(2)
	before := s.Generation()

	s.SetMode(model.ViewMode("banana"))

	if got := s.Mode(); got != model.ViewTable {
		t.Errorf("Mode() = %q, want %q", got, model.ViewTable)
	}
	if got := s.Generation(); got != before {
		t.Errorf("Generation() = %d, want %d", got, before)
	}
	params := s.Params()
	if params.Search != "foo" {
		t.Errorf("Search = %q, want foo", params.Search)
	}
	if params.Pagination.Page != 2 {
		t.Errorf("Page = %d, want 2", params.Pagination.Page)
	}
}

func TestSetModeSameModeIsNoOp(t *testing.T) {
	s := NewSession("candidates", 25)
	s.SetSearch("foo")
	before := s.Generation()

	s.SetMode(model.ViewTable)

	if got := s.Generation(); got != before {
		t.Errorf("Generation() = %d, want %d", got, before)
	}
	if params := s.Params(); params.Search != "foo" {
		t.Errorf("Search = %q, want foo", params.Search)
	}
}

func TestSetFilterEmptySelectionRemovesKeyAndRewinds(t *testing.T) {
	s := NewSession("candidates", 25)
	s.SetFilter("tools", model.Filter{Data: []string{"3", "7"}, Mode: model.FilterModeStandard})
	s.SetPage(3)

	s.SetFilter("tools", model.Filter{Data: nil})

	params := s.Params()
	if len(params.Filters) != 0 {
		t.Errorf("Filters = %v, want empty set after clearing", params.Filters)
	}
	if params.Pagination.Page != 0 {
		t.Errorf("Page = %d, want 0 after filter clear", params.Pagination.Page)
	}
}

func TestClearFiltersEmptiesSetAndRewinds(t *testing.T) {
	s := NewSession("candidates", 25)
	s.SetFilter("tools", model.Filter{Data: []string{"3"}})
	s.SetFilter("statuses", model.Filter{Data: []string{"active"}, Mode: model.FilterModeExclude})
	s.SetPage(2)

	s.ClearFilters()

	params := s.Params()
	if len(params.Filters) != 0 {
		t.Errorf("Filters = %v, want empty", params.Filters)
	}
	if params.Pagination.Page != 0 {
		t.Errorf("Page = %d, want 0", params.Pagination.Page)
	}
}

func TestSetSearchKeepsPagination(t *testing.T) {
	s := NewSession("candidates", 25)
	s.SetPage(2)

	s.SetSearch("foo")

	if got := s.Params().Pagination.Page; got != 2 {
		t.Errorf("Page = %d, want 2 after search change", got)
	}
}

func TestSetPageSizeRewindsToFirstPage(t *testing.T) {
	s := NewSession("candidates", 25)
	s.SetPage(5)

	s.SetPageSize(50)

	params := s.Params()
	if params.Pagination.Page != 0 || params.Pagination.PageSize != 50 {
		t.Errorf("Pagination = %+v, want page 0 size 50", params.Pagination)
	}
}

func TestCommitRejectsSupersededGeneration(t *testing.T) {
	s := NewSession("candidates", 25)
	_, generation := s.Snapshot()

	// Parameters change while the fetch is in flight.
	s.SetSearch("foo")

	stale := model.ListResult{Envelope: model.ListEnvelope{Meta: model.ListMeta{Total: 1}}}
	if s.commit(stale, generation) {
		t.Fatal("commit() accepted a superseded result")
	}
	if _, ok := s.Current(); ok {
		t.Error("Current() holds a result after rejected commit")
	}

	_, fresh := s.Snapshot()
	latest := model.ListResult{Envelope: model.ListEnvelope{Meta: model.ListMeta{Total: 2}}}
	if !s.commit(latest, fresh) {
		t.Fatal("commit() rejected the live-generation result")
	}
	current, ok := s.Current()
	if !ok || current.Envelope.Meta.Total != 2 {
		t.Errorf("Current() = %+v, %v, want committed total 2", current, ok)
	}
}

func TestParamsReturnsIsolatedCopy(t *testing.T) {
	s := NewSession("candidates", 25)
	s.SetFilter("tools", model.Filter{Data: []string{"3"}})

	params := s.Params()
	params.Filters.Set("tools", model.Filter{Data: []string{"changed"}})
	params.Search = "mutated"

	inner := s.Params()
	if inner.Search != "" {
		t.Errorf("Search = %q, want empty", inner.Search)
	}
	if got := inner.Filters["tools"].Data[0]; got != "3" {
		t.Errorf("Filters[tools].Data[0] = %q, want 3", got)
	}
}
