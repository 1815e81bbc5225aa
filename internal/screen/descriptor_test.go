package screen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/staffdeck/staffdeck/internal/permission"
	"github.com/staffdeck/staffdeck/model"
)

// tableSource serves a fixed grant table per screen.
type tableSource struct {
	grants map[string]model.GrantTable
}

func (s *tableSource) FetchGrants(_ context.Context, _ *model.RequestContext, screenID string) (model.GrantTable, error) {
	return s.grants[screenID], nil
}

func descriptorFixture() (*DescriptorProvider, *tableSource) {
	defs := []model.ScreenDefinition{
		{
			ID:          "candidates",
			Title:       "Candidates",
			Resource:    "candidates",
			PageSize:    25,
			DefaultView: model.ViewTable,
			Bookmarks: []model.BookmarkDefinition{
				{Name: "profile", Label: "Profile"},
				{Name: "documents", Label: "Documents", Permission: "candidates.documents.view"},
				{Name: "archive", Label: "Archive", Disabled: true},
			},
			Permissions: model.ScreenPermissions{
				View:   "candidates.view",
				Create: "candidates.create",
				Edit:   "candidates.edit",
			},
		},
		{
			ID:          "clients",
			Title:       "Clients",
			Resource:    "clients",
			PageSize:    25,
			Permissions: model.ScreenPermissions{View: "clients.view"},
		},
	}
	source := &tableSource{grants: map[string]model.GrantTable{}}
	provider := NewDescriptorProvider(NewRegistry(defs), permission.NewResolver(source, time.Minute, nil))
	return provider, source
}

func TestDescribeResolvesPermittedScreen(t *testing.T) {
	provider, source := descriptorFixture()
	source.grants["candidates"] = model.GrantTable{
		"candidates.view":   true,
		"candidates.create": true,
	}
	rctx := &model.RequestContext{SubjectID: "user-1"}

	desc, err := provider.Describe(context.Background(), rctx, "candidates")
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if desc.ID != "candidates" || desc.Resource != "candidates" {
		t.Errorf("descriptor = %+v", desc)
	}
	if !desc.CanCreate {
		t.Error("CanCreate = false, want true")
	}
	if desc.CanEdit {
		t.Error("CanEdit = true, want false without the edit grant")
	}
	if desc.CanDelete {
		t.Error("CanDelete = true, want false when no delete permission is declared")
	}
}

func TestDescribeFiltersBookmarks(t *testing.T) {
	provider, source := descriptorFixture()
	source.grants["candidates"] = model.GrantTable{"candidates.view": true}
	rctx := &model.RequestContext{SubjectID: "user-1"}

	desc, err := provider.Describe(context.Background(), rctx, "candidates")
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}

	// Disabled tab hidden, permission-gated tab hidden without the grant.
	if len(desc.Bookmarks) != 1 || desc.Bookmarks[0].Name != "profile" {
		t.Errorf("Bookmarks = %v, want [profile]", desc.Bookmarks)
	}
}

func TestDescribeAdminSeesGatedBookmarks(t *testing.T) {
	provider, source := descriptorFixture()
	source.grants["candidates"] = model.GrantTable{}
	rctx := &model.RequestContext{SubjectID: "admin-1", IsAdmin: true}

	desc, err := provider.Describe(context.Background(), rctx, "candidates")
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if len(desc.Bookmarks) != 2 {
		t.Errorf("Bookmarks = %v, want profile and documents", desc.Bookmarks)
	}
	if !desc.CanCreate || !desc.CanEdit {
		t.Error("admin short-circuit missing on Can* flags")
	}
}

func TestDescribeUnknownScreen(t *testing.T) {
	provider, _ := descriptorFixture()
	rctx := &model.RequestContext{SubjectID: "user-1"}

	_, err := provider.Describe(context.Background(), rctx, "missing")
	var envelope *model.ErrorEnvelope
	if !errors.As(err, &envelope) || envelope.Code != model.ErrNotFound {
		t.Fatalf("Describe() error = %v, want %s", err, model.ErrNotFound)
	}
}

func TestDescribeWithoutViewGrant(t *testing.T) {
	provider, source := descriptorFixture()
	source.grants["candidates"] = model.GrantTable{"candidates.create": true}
	rctx := &model.RequestContext{SubjectID: "user-1"}

	_, err := provider.Describe(context.Background(), rctx, "candidates")
	var envelope *model.ErrorEnvelope
	if !errors.As(err, &envelope) || envelope.Code != model.ErrForbidden {
		t.Fatalf("Describe() error = %v, want %s", err, model.ErrForbidden)
	}
}

func TestDescribeAllSkipsForbiddenScreens(t *testing.T) {
	provider, source := descriptorFixture()
	source.grants["candidates"] = model.GrantTable{"candidates.view": true}
	// no grants at all for clients
	rctx := &model.RequestContext{SubjectID: "user-1"}

	all, err := provider.DescribeAll(context.Background(), rctx)
	if err != nil {
		t.Fatalf("DescribeAll() error = %v", err)
	}
	if len(all) != 1 || all[0].ID != "candidates" {
		t.Errorf("DescribeAll() = %v, want only candidates", all)
	}
}
