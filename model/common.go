package model

// CommonDataSource describes how to fetch one named reference collection.
// When IsFull is set the raw item objects are kept as-is; otherwise every
// item is normalized to the minimal Option shape.
type CommonDataSource struct {
	URL    string `yaml:"url"    json:"url"`
	IsFull bool   `yaml:"is_full" json:"is_full,omitempty"`
}

// SourceTable maps logical common-data names ("tools", "statuses", ...) to
// their fetch descriptors. It is the static translation table the realtime
// listener consults when a change event names a collection.
type SourceTable map[string]CommonDataSource

// Option is the normalized common-data item used to populate dropdowns.
// Only ID and Name are guaranteed; the rest is a fixed set of passthrough
// fields kept when the backend provides them.
type Option struct {
	ID   any    `json:"id"`
	Name string `json:"name"`

	Image          string `json:"image,omitempty"`
	ISO2           string `json:"iso2,omitempty"`
	ISO3           string `json:"iso3,omitempty"`
	IsDefault      bool   `json:"is_default,omitempty"`
	Guides         any    `json:"guides,omitempty"`
	Objects        any    `json:"objects,omitempty"`
	StepTemplates  any    `json:"step_templates,omitempty"`
	ChecklistItems any    `json:"checklist_items,omitempty"`
	Formats        any    `json:"formats,omitempty"`
	StartTime      string `json:"start_time,omitempty"`
	EndTime        string `json:"end_time,omitempty"`
	DepartmentID   any    `json:"department_id,omitempty"`
	CountryID      any    `json:"country_id,omitempty"`
}

// CommonDataSlice is the cached value for one logical name: either the
// normalized options or, for IsFull sources, the raw item objects.
type CommonDataSlice struct {
	Options []Option         `json:"options,omitempty"`
	Raw     []map[string]any `json:"raw,omitempty"`
	IsFull  bool             `json:"is_full,omitempty"`
}

// CommonData is a screen's full reference-data set keyed by logical name.
type CommonData map[string]CommonDataSlice
