package entity

import (
	"fmt"

	"github.com/pitabwire/formbridge/internal/validate"
	"github.com/pitabwire/formbridge/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// PathChecker reports whether a backend service exposes a path. It is
// satisfied by the backend OpenAPI index.
type PathChecker interface {
	HasPath(serviceID, method, path string) bool
}

// Validator validates entity definitions structurally and referentially.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

var validKinds = map[string]bool{
	model.KindText: true, model.KindNumber: true, model.KindBoolean: true,
	model.KindOption: true, model.KindFile: true, model.KindDate: true,
}

var validEncodings = map[string]bool{
	model.EncodingJSON: true, model.EncodingMultipart: true,
}

var validSpecialKinds = map[string]bool{
	model.SpecialCreatedToday: true, model.SpecialDuplicateKey: true,
}

// Validate checks all definitions. The checker may be nil to skip backend
// path checks.
func (v *Validator) Validate(defs []model.EntityDefinition, checker PathChecker) []VError {
	var errs []VError

	// Lookups are referenced across entity files, so build the set first.
	lookupIDs := make(map[string]bool)
	for _, def := range defs {
		for _, l := range def.Lookups {
			lookupIDs[l.ID] = true
		}
	}

	seen := make(map[string]bool, len(defs))
	for i, def := range defs {
		prefix := fmt.Sprintf("definitions[%d]", i)
		if seen[def.Entity] {
			errs = append(errs, VError{Path: prefix + ".entity", Code: "DUPLICATE", Message: fmt.Sprintf("entity %q defined more than once", def.Entity)})
		}
		seen[def.Entity] = true
		errs = append(errs, v.validateEntity(prefix, def, lookupIDs, checker)...)
	}
	return errs
}

func (v *Validator) validateEntity(prefix string, def model.EntityDefinition, lookupIDs map[string]bool, checker PathChecker) []VError {
	var errs []VError

	if def.Entity == "" {
		errs = append(errs, VError{Path: prefix + ".entity", Code: "REQUIRED", Message: "entity is required"})
	}
	if def.Version == "" {
		errs = append(errs, VError{Path: prefix + ".version", Code: "REQUIRED", Message: "version is required"})
	}

	errs = append(errs, v.validateBackend(prefix+".backend", def.Backend, checker)...)

	// Field keys visible to discriminators and views, by key and wire key.
	fieldKeys := make(map[string]bool)
	wireKeys := make(map[string]bool)
	for i, f := range def.Fields {
		fp := fmt.Sprintf("%s.fields[%d]", prefix, i)
		errs = append(errs, v.validateField(fp, f, def.Backend.Encoding, lookupIDs)...)

		fieldKeys[f.Key] = true
		fieldKeys[f.EffectiveWireKey()] = true
		wk := f.EffectiveWireKey()
		if wireKeys[wk] {
			errs = append(errs, VError{Path: fp + ".wire_key", Code: "DUPLICATE", Message: fmt.Sprintf("wire key %q used more than once", wk)})
		}
		wireKeys[wk] = true
	}

	groupKeys := make(map[string]bool)
	for i, g := range def.Groups {
		gp := fmt.Sprintf("%s.groups[%d]", prefix, i)
		errs = append(errs, v.validateGroup(gp, g, def.Backend.Encoding, lookupIDs, fieldKeys)...)

		gwk := g.EffectiveWireKey()
		if wireKeys[gwk] || groupKeys[gwk] {
			errs = append(errs, VError{Path: gp + ".wire_key", Code: "DUPLICATE", Message: fmt.Sprintf("wire key %q used more than once", gwk)})
		}
		groupKeys[gwk] = true
	}

	// Discriminator targets must be top-level fields.
	for i, f := range def.Fields {
		if f.RequiredWhen != nil && !fieldKeys[f.RequiredWhen.Field] {
			errs = append(errs, VError{
				Path:    fmt.Sprintf("%s.fields[%d].required_when.field", prefix, i),
				Code:    "REF_NOT_FOUND",
				Message: fmt.Sprintf("field %q not found", f.RequiredWhen.Field),
			})
		}
	}
	for i, g := range def.Groups {
		if g.RequiredWhen != nil && !fieldKeys[g.RequiredWhen.Field] {
			errs = append(errs, VError{
				Path:    fmt.Sprintf("%s.groups[%d].required_when.field", prefix, i),
				Code:    "REF_NOT_FOUND",
				Message: fmt.Sprintf("field %q not found", g.RequiredWhen.Field),
			})
		}
	}

	errs = append(errs, v.validateView(prefix+".view", def.View, fieldKeys)...)
	errs = append(errs, v.validateExport(prefix+".export", def.Export, def.View)...)
	return errs
}

func (v *Validator) validateBackend(prefix string, b model.BackendBinding, checker PathChecker) []VError {
	var errs []VError

	if b.ServiceID == "" {
		errs = append(errs, VError{Path: prefix + ".service_id", Code: "REQUIRED", Message: "service_id is required"})
	}
	if b.ListPath == "" {
		errs = append(errs, VError{Path: prefix + ".list_path", Code: "REQUIRED", Message: "list_path is required"})
	}
	if b.CreatePath == "" {
		errs = append(errs, VError{Path: prefix + ".create_path", Code: "REQUIRED", Message: "create_path is required"})
	}
	if b.Encoding != "" && !validEncodings[b.Encoding] {
		errs = append(errs, VError{Path: prefix + ".encoding", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid encoding %q", b.Encoding)})
	}

	if checker != nil && b.ServiceID != "" {
		if b.ListPath != "" && !checker.HasPath(b.ServiceID, "GET", b.ListPath) {
			errs = append(errs, VError{Path: prefix + ".list_path", Code: "PATH_NOT_FOUND", Message: fmt.Sprintf("path %q not found in service %q", b.ListPath, b.ServiceID)})
		}
		if b.CreatePath != "" && !checker.HasPath(b.ServiceID, "POST", b.CreatePath) {
			errs = append(errs, VError{Path: prefix + ".create_path", Code: "PATH_NOT_FOUND", Message: fmt.Sprintf("path %q not found in service %q", b.CreatePath, b.ServiceID)})
		}
	}

	return errs
}

func (v *Validator) validateField(prefix string, f model.FieldSpec, encoding string, lookupIDs map[string]bool) []VError {
	var errs []VError

	if f.Key == "" {
		errs = append(errs, VError{Path: prefix + ".key", Code: "REQUIRED", Message: "key is required"})
	}
	if f.Kind == "" {
		errs = append(errs, VError{Path: prefix + ".kind", Code: "REQUIRED", Message: "kind is required"})
	} else if !validKinds[f.Kind] {
		errs = append(errs, VError{Path: prefix + ".kind", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid kind %q", f.Kind)})
	}

	if f.Kind == model.KindOption && f.Lookup == "" {
		errs = append(errs, VError{Path: prefix + ".lookup", Code: "REQUIRED", Message: "lookup is required for option fields"})
	}
	if f.Lookup != "" && !lookupIDs[f.Lookup] {
		errs = append(errs, VError{Path: prefix + ".lookup", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("lookup %q not found", f.Lookup)})
	}

	// File uploads travel as multipart parts, never inside a JSON body.
	if f.Kind == model.KindFile && encoding == model.EncodingJSON {
		errs = append(errs, VError{Path: prefix + ".kind", Code: "ENCODING_MISMATCH", Message: "file fields require multipart encoding"})
	}

	if f.Format != "" && !validate.KnownFormat(f.Format) {
		errs = append(errs, VError{Path: prefix + ".format", Code: "INVALID_ENUM", Message: fmt.Sprintf("unknown format %q", f.Format)})
	}

	return errs
}

func (v *Validator) validateGroup(prefix string, g model.GroupSpec, encoding string, lookupIDs, fieldKeys map[string]bool) []VError {
	var errs []VError

	if g.Key == "" {
		errs = append(errs, VError{Path: prefix + ".key", Code: "REQUIRED", Message: "key is required"})
	}
	if len(g.Fields) == 0 {
		errs = append(errs, VError{Path: prefix + ".fields", Code: "REQUIRED", Message: "at least one field is required"})
	}

	subKeys := make(map[string]bool)
	for i, f := range g.Fields {
		fp := fmt.Sprintf("%s.fields[%d]", prefix, i)
		errs = append(errs, v.validateField(fp, f, encoding, lookupIDs)...)
		wk := f.EffectiveWireKey()
		if subKeys[wk] {
			errs = append(errs, VError{Path: fp + ".wire_key", Code: "DUPLICATE", Message: fmt.Sprintf("wire key %q used more than once", wk)})
		}
		subKeys[wk] = true
	}

	for i, dr := range g.DateRanges {
		dp := fmt.Sprintf("%s.date_ranges[%d]", prefix, i)
		if !subKeys[dr.From] {
			errs = append(errs, VError{Path: dp + ".from", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("field %q not found in group", dr.From)})
		}
		if !subKeys[dr.To] {
			errs = append(errs, VError{Path: dp + ".to", Code: "REF_NOT_FOUND", Message: fmt.Sprintf("field %q not found in group", dr.To)})
		}
	}

	return errs
}

func (v *Validator) validateView(prefix string, view model.ViewSpec, fieldKeys map[string]bool) []VError {
	var errs []VError

	if view.PageSize < 0 || view.PageSize > 200 {
		errs = append(errs, VError{Path: prefix + ".page_size", Code: "RANGE", Message: "page_size must be 0-200"})
	}

	for i, f := range view.Filters {
		if !fieldKeys[f.Field] {
			errs = append(errs, VError{Path: fmt.Sprintf("%s.filters[%d].field", prefix, i), Code: "REF_NOT_FOUND", Message: fmt.Sprintf("field %q not found", f.Field)})
		}
	}
	for i, s := range view.Special {
		sp := fmt.Sprintf("%s.special[%d]", prefix, i)
		if s.Name == "" {
			errs = append(errs, VError{Path: sp + ".name", Code: "REQUIRED", Message: "name is required"})
		}
		if !validSpecialKinds[s.Kind] {
			errs = append(errs, VError{Path: sp + ".kind", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid special filter kind %q", s.Kind)})
		}
	}

	if view.SortDir != "" && view.SortDir != "asc" && view.SortDir != "desc" {
		errs = append(errs, VError{Path: prefix + ".sort_dir", Code: "INVALID_ENUM", Message: fmt.Sprintf("invalid sort direction %q", view.SortDir)})
	}

	return errs
}

// validateExport requires export columns to be a subset of what the view
// can show; the CSV mirrors the table.
func (v *Validator) validateExport(prefix string, exp model.ExportSpec, view model.ViewSpec) []VError {
	var errs []VError

	if len(exp.Columns) == 0 {
		return nil
	}

	visible := make(map[string]bool, len(view.Columns))
	for _, c := range view.Columns {
		visible[c.Field] = true
	}
	for i, c := range exp.Columns {
		if !visible[c] {
			errs = append(errs, VError{
				Path:    fmt.Sprintf("%s.columns[%d]", prefix, i),
				Code:    "REF_NOT_FOUND",
				Message: fmt.Sprintf("column %q is not a view column", c),
			})
		}
	}
	return errs
}
