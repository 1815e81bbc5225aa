package screen

import (
	"context"
	"fmt"

	"github.com/staffdeck/staffdeck/internal/bookmark"
	"github.com/staffdeck/staffdeck/internal/permission"
	"github.com/staffdeck/staffdeck/model"
)

// DescriptorProvider resolves ScreenDefinitions into ScreenDescriptors
// narrowed to what the caller is allowed to see.
type DescriptorProvider struct {
	registry *Registry
	grants   *permission.Resolver
}

// NewDescriptorProvider creates a provider backed by the registry and the
// grant resolver.
func NewDescriptorProvider(registry *Registry, grants *permission.Resolver) *DescriptorProvider {
	return &DescriptorProvider{
		registry: registry,
		grants:   grants,
	}
}

// Describe resolves a descriptor for one screen. Returns an error with code
// NOT_FOUND for unknown screens and FORBIDDEN when the caller lacks the
// view permission.
func (p *DescriptorProvider) Describe(ctx context.Context, rctx *model.RequestContext, screenID string) (model.ScreenDescriptor, error) {
	def, ok := p.registry.Get(screenID)
	if !ok {
		return model.ScreenDescriptor{}, model.NewNotFoundError(
			fmt.Sprintf("screen %q not found", screenID),
		)
	}

	grants, err := p.grants.Resolve(ctx, rctx, screenID)
	if err != nil {
		return model.ScreenDescriptor{}, err
	}

	if !p.allowed(grants, def.Permissions.View, rctx) {
		return model.ScreenDescriptor{}, model.NewForbiddenError(
			fmt.Sprintf("no view permission for screen %q", screenID),
		)
	}

	coordinator := bookmark.NewCoordinator(def.Bookmarks)

	return model.ScreenDescriptor{
		ID:          def.ID,
		Title:       def.Title,
		Resource:    def.Resource,
		PageSize:    def.PageSize,
		DefaultView: def.DefaultView,
		Columns:     def.Columns,
		Filters:     def.Filters,
		Bookmarks:   coordinator.Visible(grants, rctx.SubjectID, rctx.IsAdmin),
		CanCreate:   def.Permissions.Create != "" && p.allowed(grants, def.Permissions.Create, rctx),
		CanEdit:     def.Permissions.Edit != "" && p.allowed(grants, def.Permissions.Edit, rctx),
		CanDelete:   def.Permissions.Delete != "" && p.allowed(grants, def.Permissions.Delete, rctx),
	}, nil
}

// DescribeAll resolves descriptors for every screen the caller may view.
func (p *DescriptorProvider) DescribeAll(ctx context.Context, rctx *model.RequestContext) ([]model.ScreenDescriptor, error) {
	var out []model.ScreenDescriptor
	for _, def := range p.registry.All() {
		desc, err := p.Describe(ctx, rctx, def.ID)
		if err != nil {
			if envelope, ok := err.(*model.ErrorEnvelope); ok && envelope.Code == model.ErrForbidden {
				continue
			}
			return nil, err
		}
		out = append(out, desc)
	}
	return out, nil
}

func (p *DescriptorProvider) allowed(grants model.GrantTable, permissionType string, rctx *model.RequestContext) bool {
	return permission.Allowed(permission.Check{
		Grants:  grants,
		Type:    permissionType,
		UserID:  rctx.SubjectID,
		IsAdmin: rctx.IsAdmin,
	})
}
