package commondata

import "github.com/staffdeck/staffdeck/model"

// NormalizeSlice shapes one fetched reference collection. IsFull sources
// keep their raw item objects; everything else is reduced to Option pairs
// plus the fixed passthrough fields.
func NormalizeSlice(name string, raw any, isFull bool) model.CommonDataSlice {
	items := itemList(raw)

	if isFull {
		rawItems := make([]map[string]any, 0, len(items))
		for _, it := range items {
			if m, ok := it.(map[string]any); ok {
				rawItems = append(rawItems, m)
			}
		}
		return model.CommonDataSlice{Raw: rawItems, IsFull: true}
	}

	options := make([]model.Option, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		options = append(options, normalizeItem(name, m))
	}
	return model.CommonDataSlice{Options: options}
}

// itemList unwraps the backend's item array, tolerating both a bare array
// and a { data: [...] } envelope.
func itemList(raw any) []any {
	switch v := raw.(type) {
	case []any:
		return v
	case map[string]any:
		if data, ok := v["data"].([]any); ok {
			return data
		}
	}
	return nil
}

// normalizeItem maps one backend item to the Option shape. Grouped-variant
// collections expose their primary key as item_id rather than id, and city
// items carry the owning country.
func normalizeItem(name string, item map[string]any) model.Option {
	opt := model.Option{
		ID:   item["id"],
		Name: stringField(item, "name"),
	}

	if name == "groups" || name == "groups_similar" {
		if itemID, ok := item["item_id"]; ok && itemID != nil {
			opt.ID = itemID
		}
	}

	if opt.Name == "" {
		opt.Name = stringField(item, "title")
	}

	opt.Image = stringField(item, "image")
	opt.ISO2 = stringField(item, "iso2")
	opt.ISO3 = stringField(item, "iso3")
	if v, ok := item["is_default"].(bool); ok {
		opt.IsDefault = v
	}
	opt.Guides = item["guides"]
	opt.Objects = item["objects"]
	opt.StepTemplates = item["step_templates"]
	opt.ChecklistItems = item["checklist_items"]
	opt.Formats = item["formats"]
	opt.StartTime = stringField(item, "start_time")
	opt.EndTime = stringField(item, "end_time")
	opt.DepartmentID = item["department_id"]

	if name == "cities" {
		opt.CountryID = item["country_id"]
	}

	return opt
}

func stringField(item map[string]any, key string) string {
	if v, ok := item[key].(string); ok {
		return v
	}
	return ""
}
