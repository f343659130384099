package entity

import (
	"strings"
	"testing"

	"github.com/pitabwire/formbridge/model"
)

func validDef() model.EntityDefinition {
	return model.EntityDefinition{
		Entity:  "company",
		Version: "1.0.0",
		Backend: model.BackendBinding{
			ServiceID:  "admin-svc",
			ListPath:   "/api/companies",
			CreatePath: "/api/companies",
			Encoding:   model.EncodingMultipart,
		},
		Fields: []model.FieldSpec{
			{Key: "name", Kind: model.KindText, Required: true},
			{Key: "country", Kind: model.KindOption, Lookup: "countries"},
			{Key: "logo", Kind: model.KindFile},
		},
		Groups: []model.GroupSpec{
			{
				Key: "offices",
				Fields: []model.FieldSpec{
					{Key: "city", Kind: model.KindText},
					{Key: "opened_on", Kind: model.KindDate},
					{Key: "closed_on", Kind: model.KindDate},
				},
				DateRanges: []model.DateRangeSpec{{From: "opened_on", To: "closed_on"}},
			},
		},
		View: model.ViewSpec{
			Columns: []model.ColumnSpec{{Field: "name", Label: "Name"}},
			Filters: []model.FilterSpec{{Field: "country", Label: "Country"}},
		},
		Export: model.ExportSpec{Columns: []string{"name"}},
		Lookups: []model.LookupDefinition{
			{ID: "countries", ServiceID: "admin-svc", Path: "/api/countries", LabelField: "name", ValueField: "id"},
		},
	}
}

func hasError(t *testing.T, errs []VError, code, pathFragment string) {
	t.Helper()
	for _, e := range errs {
		if e.Code == code && strings.Contains(e.Path, pathFragment) {
			return
		}
	}
	t.Errorf("expected %s error at path containing %q, got %v", code, pathFragment, errs)
}

func TestValidator_validDefinition(t *testing.T) {
	v := NewValidator()
	errs := v.Validate([]model.EntityDefinition{validDef()}, nil)
	if len(errs) != 0 {
		t.Fatalf("valid definition produced errors: %v", errs)
	}
}

func TestValidator_missingRequiredTopLevel(t *testing.T) {
	v := NewValidator()
	def := validDef()
	def.Entity = ""
	def.Version = ""
	def.Backend.ServiceID = ""

	errs := v.Validate([]model.EntityDefinition{def}, nil)

	hasError(t, errs, "REQUIRED", ".entity")
	hasError(t, errs, "REQUIRED", ".version")
	hasError(t, errs, "REQUIRED", ".backend.service_id")
}

func TestValidator_duplicateWireKeys(t *testing.T) {
	v := NewValidator()
	def := validDef()
	def.Fields = append(def.Fields, model.FieldSpec{Key: "other", Kind: model.KindText, WireKey: "name"})

	errs := v.Validate([]model.EntityDefinition{def}, nil)
	hasError(t, errs, "DUPLICATE", ".wire_key")
}

func TestValidator_groupWireKeyCollidesWithField(t *testing.T) {
	v := NewValidator()
	def := validDef()
	def.Groups[0].WireKey = "name"

	errs := v.Validate([]model.EntityDefinition{def}, nil)
	hasError(t, errs, "DUPLICATE", "groups[0].wire_key")
}

func TestValidator_optionWithoutLookup(t *testing.T) {
	v := NewValidator()
	def := validDef()
	def.Fields[1].Lookup = ""

	errs := v.Validate([]model.EntityDefinition{def}, nil)
	hasError(t, errs, "REQUIRED", "fields[1].lookup")
}

func TestValidator_unknownLookupRef(t *testing.T) {
	v := NewValidator()
	def := validDef()
	def.Fields[1].Lookup = "planets"

	errs := v.Validate([]model.EntityDefinition{def}, nil)
	hasError(t, errs, "REF_NOT_FOUND", "fields[1].lookup")
}

func TestValidator_lookupSharedAcrossFiles(t *testing.T) {
	v := NewValidator()
	a := validDef()
	a.Lookups = nil // countries lives in the second file

	b := validDef()
	b.Entity = "branch"
	b.Fields = []model.FieldSpec{{Key: "name", Kind: model.KindText}}
	b.Groups = nil
	b.View = model.ViewSpec{Columns: []model.ColumnSpec{{Field: "name", Label: "Name"}}}
	b.Export = model.ExportSpec{}
	b.View.Filters = nil

	errs := v.Validate([]model.EntityDefinition{a, b}, nil)
	if len(errs) != 0 {
		t.Fatalf("cross-file lookup reference rejected: %v", errs)
	}
}

func TestValidator_fileFieldOnJSONEncoding(t *testing.T) {
	v := NewValidator()
	def := validDef()
	def.Backend.Encoding = model.EncodingJSON

	errs := v.Validate([]model.EntityDefinition{def}, nil)
	hasError(t, errs, "ENCODING_MISMATCH", "fields[2]")
}

func TestValidator_unknownKindAndFormat(t *testing.T) {
	v := NewValidator()
	def := validDef()
	def.Fields[0].Kind = "hologram"
	def.Fields[1].Format = "zipcode"

	errs := v.Validate([]model.EntityDefinition{def}, nil)
	hasError(t, errs, "INVALID_ENUM", "fields[0].kind")
	hasError(t, errs, "INVALID_ENUM", "fields[1].format")
}

func TestValidator_discriminatorTargetMissing(t *testing.T) {
	v := NewValidator()
	def := validDef()
	def.Fields[0].RequiredWhen = &model.Condition{Field: "ghost", Equals: "1"}

	errs := v.Validate([]model.EntityDefinition{def}, nil)
	hasError(t, errs, "REF_NOT_FOUND", "fields[0].required_when.field")
}

func TestValidator_dateRangeFieldMissing(t *testing.T) {
	v := NewValidator()
	def := validDef()
	def.Groups[0].DateRanges = []model.DateRangeSpec{{From: "opened_on", To: "demolished_on"}}

	errs := v.Validate([]model.EntityDefinition{def}, nil)
	hasError(t, errs, "REF_NOT_FOUND", "date_ranges[0].to")
}

func TestValidator_exportColumnNotInView(t *testing.T) {
	v := NewValidator()
	def := validDef()
	def.Export.Columns = []string{"name", "secret_margin"}

	errs := v.Validate([]model.EntityDefinition{def}, nil)
	hasError(t, errs, "REF_NOT_FOUND", "export.columns[1]")
}

func TestValidator_duplicateEntityName(t *testing.T) {
	v := NewValidator()
	a := validDef()
	b := validDef()

	errs := v.Validate([]model.EntityDefinition{a, b}, nil)
	hasError(t, errs, "DUPLICATE", ".entity")
}

type stubChecker struct {
	paths map[string]bool
}

func (s stubChecker) HasPath(serviceID, method, path string) bool {
	return s.paths[serviceID+" "+method+" "+path]
}

func TestValidator_backendPathCheck(t *testing.T) {
	v := NewValidator()
	def := validDef()

	checker := stubChecker{paths: map[string]bool{
		"admin-svc GET /api/companies": true,
		// POST create path deliberately absent.
	}}

	errs := v.Validate([]model.EntityDefinition{def}, checker)
	hasError(t, errs, "PATH_NOT_FOUND", ".backend.create_path")
}

func TestValidator_invalidSpecialFilterKind(t *testing.T) {
	v := NewValidator()
	def := validDef()
	def.View.Special = []model.SpecialFilter{{Name: "weird", Kind: "random_sample"}}

	errs := v.Validate([]model.EntityDefinition{def}, nil)
	hasError(t, errs, "INVALID_ENUM", "special[0].kind")
}
