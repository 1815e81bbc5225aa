// Package bookmark manages the tab state of a screen's edit drawer: which
// tab is active, which tabs are hidden, and which carry validation-error
// highlights.
package bookmark

import (
	"strings"
	"sync"

	"github.com/staffdeck/staffdeck/internal/permission"
	"github.com/staffdeck/staffdeck/model"
)

// DefaultName is the bookmark that receives validation errors whose field
// keys match no relation entry.
const DefaultName = "profile"

// Coordinator is the per-drawer tab state machine. All methods are safe for
// concurrent use.
type Coordinator struct {
	mu       sync.Mutex
	defs     []model.BookmarkDefinition
	errors   map[string]bool
	active   string
	visible  bool
	relation map[string][]string
}

// NewCoordinator creates a Coordinator from the screen's bookmark
// definitions. The first non-disabled bookmark starts active.
func NewCoordinator(defs []model.BookmarkDefinition) *Coordinator {
	c := &Coordinator{
		defs:     defs,
		errors:   make(map[string]bool),
		relation: relationTable(defs),
	}
	for _, d := range defs {
		if !d.Disabled {
			c.active = d.Name
			break
		}
	}
	return c
}

func relationTable(defs []model.BookmarkDefinition) map[string][]string {
	rel := make(map[string][]string, len(defs))
	for _, d := range defs {
		if len(d.Fields) > 0 {
			rel[d.Name] = d.Fields
		}
	}
	return rel
}

// Active returns the name of the active bookmark.
func (c *Coordinator) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// ChangeActive switches the active bookmark. Unknown or disabled names are
// ignored; there are no automatic transitions.
func (c *Coordinator) ChangeActive(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.defs {
		if d.Name == name && !d.Disabled {
			c.active = name
			return
		}
	}
}

// ToggleError sets the error flag on the named bookmarks and clears it on
// all others.
func (c *Coordinator) ToggleError(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = make(map[string]bool, len(names))
	for _, name := range names {
		c.errors[name] = true
	}
}

// SetVisible records whether the containing drawer is shown. Hiding the
// drawer clears every error flag.
func (c *Coordinator) SetVisible(visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visible = visible
	if !visible {
		c.errors = make(map[string]bool)
	}
}

// ErrorNames maps backend validation field keys to the bookmarks responsible
// for them, via the definitions' relation table. A field key matches a
// relation pattern when it equals the pattern or extends it ("destinations"
// matches "destinations.0.city"). Unmatched keys fall back to DefaultName.
// The result is unique, in bookmark definition order.
func (c *Coordinator) ErrorNames(fieldKeys []string) []string {
	hit := make(map[string]bool)
	for _, key := range fieldKeys {
		hit[c.bookmarkFor(key)] = true
	}

	var names []string
	if hit[DefaultName] {
		names = append(names, DefaultName)
		delete(hit, DefaultName)
	}
	for _, d := range c.defs {
		if hit[d.Name] {
			names = append(names, d.Name)
		}
	}
	return names
}

func (c *Coordinator) bookmarkFor(fieldKey string) string {
	for _, d := range c.defs {
		for _, pattern := range c.relation[d.Name] {
			if fieldKey == pattern || strings.HasPrefix(fieldKey, pattern+".") {
				return d.Name
			}
		}
	}
	return DefaultName
}

// Bookmarks returns the current state of every bookmark, including disabled
// ones. Use Visible for the permission-filtered view.
func (c *Coordinator) Bookmarks() []model.Bookmark {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Bookmark, len(c.defs))
	for i, d := range c.defs {
		out[i] = model.Bookmark{
			Name:     d.Name,
			Label:    d.Label,
			Disabled: d.Disabled,
			Error:    c.errors[d.Name],
		}
	}
	return out
}

// Visible returns the bookmarks shown to the caller: disabled tabs are
// hidden, and tabs guarded by a permission type are filtered through the
// permission filter.
func (c *Coordinator) Visible(grants model.GrantTable, userID string, isAdmin bool) []model.Bookmark {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.Bookmark
	for _, d := range c.defs {
		if d.Disabled {
			continue
		}
		if d.Permission != "" && !permission.Allowed(permission.Check{
			Grants:  grants,
			Type:    d.Permission,
			UserID:  userID,
			IsAdmin: isAdmin,
		}) {
			continue
		}
		out = append(out, model.Bookmark{
			Name:  d.Name,
			Label: d.Label,
			Error: c.errors[d.Name],
		})
	}
	return out
}
