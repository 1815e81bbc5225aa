package model

// ScreenDefinition is the root structure of a screen definition file. Each
// file declares one list screen: its backend resource, table shape, filter
// schema, common-data sources, bookmarks, and guarding permission types.
type ScreenDefinition struct {
	ID          string               `yaml:"id"           json:"id"`
	Title       string               `yaml:"title"        json:"title"`
	Resource    string               `yaml:"resource"     json:"resource"`
	PageSize    int                  `yaml:"page_size"    json:"page_size,omitempty"`
	DefaultView ViewMode             `yaml:"default_view" json:"default_view,omitempty"`
	Columns     []ColumnDefinition   `yaml:"columns"      json:"columns,omitempty"`
	Filters     []FilterDefinition   `yaml:"filters"      json:"filters,omitempty"`
	CommonData  SourceTable          `yaml:"common_data"  json:"common_data,omitempty"`
	Bookmarks   []BookmarkDefinition `yaml:"bookmarks"    json:"bookmarks,omitempty"`
	Permissions ScreenPermissions    `yaml:"permissions"  json:"permissions"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// ColumnDefinition describes a table column. Labels may be overridden per
// response by the backend envelope's fields map.
type ColumnDefinition struct {
	Field    string `yaml:"field"    json:"field"`
	Label    string `yaml:"label"    json:"label"`
	Sortable bool   `yaml:"sortable" json:"sortable,omitempty"`
}

// FilterDefinition describes one filter control and the common-data name
// that supplies its options.
type FilterDefinition struct {
	Name       string `yaml:"name"        json:"name"`
	Label      string `yaml:"label"       json:"label"`
	OptionsKey string `yaml:"options_key" json:"options_key,omitempty"`
	Mode       string `yaml:"mode"        json:"mode,omitempty"`
}

// BookmarkDefinition declares one tab of the screen's edit drawer and the
// backend field-name patterns whose validation errors map to it.
type BookmarkDefinition struct {
	Name     string   `yaml:"name"     json:"name"`
	Label    string   `yaml:"label"    json:"label"`
	Disabled bool     `yaml:"disabled" json:"disabled,omitempty"`
	Fields   []string `yaml:"fields"   json:"fields,omitempty"`
	// Permission gates tab visibility; empty means always visible.
	Permission string `yaml:"permission" json:"permission,omitempty"`
}

// ScreenPermissions names the permission types guarding each operation.
type ScreenPermissions struct {
	View   string `yaml:"view"   json:"view"`
	Create string `yaml:"create" json:"create,omitempty"`
	Edit   string `yaml:"edit"   json:"edit,omitempty"`
	Delete string `yaml:"delete" json:"delete,omitempty"`
}

// RelationTable maps bookmark names to the field-name patterns they own.
func (d ScreenDefinition) RelationTable() map[string][]string {
	rel := make(map[string][]string, len(d.Bookmarks))
	for _, b := range d.Bookmarks {
		if len(b.Fields) > 0 {
			rel[b.Name] = b.Fields
		}
	}
	return rel
}

// ScreenDescriptor is the resolved screen sent to the frontend: the static
// definition narrowed to what the caller may see.
type ScreenDescriptor struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Resource    string             `json:"resource"`
	PageSize    int                `json:"page_size"`
	DefaultView ViewMode           `json:"default_view"`
	Columns     []ColumnDefinition `json:"columns,omitempty"`
	Filters     []FilterDefinition `json:"filters,omitempty"`
	Bookmarks   []Bookmark         `json:"bookmarks,omitempty"`
	CanCreate   bool               `json:"can_create"`
	CanEdit     bool               `json:"can_edit"`
	CanDelete   bool               `json:"can_delete"`
}

// Bookmark is the live tab state within an edit drawer.
type Bookmark struct {
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	Disabled bool   `json:"disabled"`
	Error    bool   `json:"error"`
}
