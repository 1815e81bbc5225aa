package screen

import (
	"fmt"

	"github.com/staffdeck/staffdeck/model"
)

// VError describes a single validation error in a screen definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator checks screen definitions structurally and referentially.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all definitions and returns every error found.
func (v *Validator) Validate(defs []model.ScreenDefinition) []VError {
	var errs []VError

	seen := make(map[string]string, len(defs))
	for i, def := range defs {
		prefix := fmt.Sprintf("screens[%d]", i)
		if def.ID != "" {
			if prior, dup := seen[def.ID]; dup {
				errs = append(errs, VError{
					Path:    prefix + ".id",
					Code:    "DUPLICATE",
					Message: fmt.Sprintf("screen id %q already defined in %s", def.ID, prior),
				})
			} else {
				seen[def.ID] = def.SourceFile
			}
		}
		errs = append(errs, v.validateScreen(prefix, def)...)
	}
	return errs
}

func (v *Validator) validateScreen(prefix string, def model.ScreenDefinition) []VError {
	var errs []VError

	if def.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if def.Title == "" {
		errs = append(errs, VError{Path: prefix + ".title", Code: "REQUIRED", Message: "title is required"})
	}
	if def.Resource == "" {
		errs = append(errs, VError{Path: prefix + ".resource", Code: "REQUIRED", Message: "resource is required"})
	}
	if def.Permissions.View == "" {
		errs = append(errs, VError{Path: prefix + ".permissions.view", Code: "REQUIRED", Message: "permissions.view is required"})
	}
	if def.DefaultView != "" && def.DefaultView != model.ViewTable && def.DefaultView != model.ViewCard {
		errs = append(errs, VError{
			Path:    prefix + ".default_view",
			Code:    "INVALID",
			Message: fmt.Sprintf("default_view %q must be %q or %q", def.DefaultView, model.ViewTable, model.ViewCard),
		})
	}

	commonDataNames := make(map[string]bool, len(def.CommonData))
	for name, source := range def.CommonData {
		commonDataNames[name] = true
		if source.URL == "" {
			errs = append(errs, VError{
				Path:    fmt.Sprintf("%s.common_data[%s].url", prefix, name),
				Code:    "REQUIRED",
				Message: "url is required",
			})
		}
	}

	for i, col := range def.Columns {
		if col.Field == "" {
			errs = append(errs, VError{
				Path:    fmt.Sprintf("%s.columns[%d].field", prefix, i),
				Code:    "REQUIRED",
				Message: "field is required",
			})
		}
	}

	for i, f := range def.Filters {
		fp := fmt.Sprintf("%s.filters[%d]", prefix, i)
		if f.Name == "" {
			errs = append(errs, VError{Path: fp + ".name", Code: "REQUIRED", Message: "name is required"})
		}
		if f.Mode != "" && f.Mode != model.FilterModeStandard && f.Mode != model.FilterModeExclude {
			errs = append(errs, VError{
				Path:    fp + ".mode",
				Code:    "INVALID",
				Message: fmt.Sprintf("mode %q must be %q or %q", f.Mode, model.FilterModeStandard, model.FilterModeExclude),
			})
		}
		if f.OptionsKey != "" && !commonDataNames[f.OptionsKey] {
			errs = append(errs, VError{
				Path:    fp + ".options_key",
				Code:    "UNKNOWN_REF",
				Message: fmt.Sprintf("options_key %q is not declared in common_data", f.OptionsKey),
			})
		}
	}

	bookmarkNames := make(map[string]bool, len(def.Bookmarks))
	for i, b := range def.Bookmarks {
		bp := fmt.Sprintf("%s.bookmarks[%d]", prefix, i)
		if b.Name == "" {
			errs = append(errs, VError{Path: bp + ".name", Code: "REQUIRED", Message: "name is required"})
			continue
		}
		if bookmarkNames[b.Name] {
			errs = append(errs, VError{
				Path:    bp + ".name",
				Code:    "DUPLICATE",
				Message: fmt.Sprintf("bookmark %q already defined", b.Name),
			})
		}
		bookmarkNames[b.Name] = true
	}

	return errs
}
