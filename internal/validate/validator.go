// Package validate checks a FormModel against its entity definition:
// requiredness (static and discriminator-gated), shared format contracts,
// and cross-field rules. Validation never panics and always returns the
// complete error map; server-side field errors merge into the same shape.
package validate

import (
	"fmt"
	"time"

	"github.com/pitabwire/formbridge/internal/mapper"
	"github.com/pitabwire/formbridge/model"
)

// Result is the outcome of one validation pass. Errors is keyed by field
// path: "gst_number" for scalars, "bank_details[1].valid_to" for group item
// fields.
type Result struct {
	Valid  bool
	Errors map[string]model.FieldError
}

// FieldErrors flattens the error map into the envelope detail shape.
func (r Result) FieldErrors() []model.FieldError {
	out := make([]model.FieldError, 0, len(r.Errors))
	for _, fe := range r.Errors {
		out = append(out, fe)
	}
	return out
}

// Validate checks the form against the entity definition. The form is never
// mutated: flipping a discriminator changes requiredness only, value
// clearing is an explicit caller decision.
func Validate(def model.EntityDefinition, form model.FormModel) Result {
	errs := make(map[string]model.FieldError)

	for _, f := range def.Fields {
		checkField(errs, f, f.Key, form.Values)
	}

	for _, g := range def.Groups {
		items := form.Groups[g.Key]

		if groupRequired(g, form.Values) && len(items) == 0 {
			errs[g.Key] = model.FieldError{
				Field:   g.Key,
				Code:    model.FieldErrRequired,
				Message: fmt.Sprintf("At least one %s entry is required", g.Key),
			}
		}

		// Each item is validated independently: one item's invalid date
		// range does not invalidate its siblings.
		for i, item := range items {
			for _, f := range g.Fields {
				path := fmt.Sprintf("%s[%d].%s", g.Key, i, f.Key)
				checkField(errs, f, path, item.Values)
			}
			for _, dr := range g.DateRanges {
				checkDateRange(errs, g.Key, i, dr, item.Values)
			}
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// checkField applies requiredness and format rules for one field within
// its scope (top-level values or one group item).
func checkField(errs map[string]model.FieldError, f model.FieldSpec, path string, scope map[string]any) {
	v := scope[f.Key]
	empty := mapper.IsEmpty(v)

	if empty {
		if fieldRequired(f, scope) {
			errs[path] = model.FieldError{
				Field:   path,
				Code:    model.FieldErrRequired,
				Message: fmt.Sprintf("%s is required", displayName(f)),
			}
		}
		return
	}

	if f.Format != "" {
		if s := mapper.CoerceString(v); !matchesFormat(f.Format, s) {
			errs[path] = model.FieldError{
				Field:   path,
				Code:    model.FieldErrFormat,
				Message: fmt.Sprintf("%s is not a valid %s", displayName(f), f.Format),
			}
		}
	}
}

// fieldRequired resolves a field's effective requiredness against its
// sibling values. A RequiredWhen condition replaces the static flag; a
// RequiredIfSet dependency adds to it.
func fieldRequired(f model.FieldSpec, scope map[string]any) bool {
	if f.RequiredWhen != nil {
		return discriminatorMatches(*f.RequiredWhen, scope)
	}
	if f.RequiredIfSet != "" && !mapper.IsEmpty(scope[f.RequiredIfSet]) {
		return true
	}
	return f.Required
}

// groupRequired resolves a group's non-empty requirement.
func groupRequired(g model.GroupSpec, values map[string]any) bool {
	if g.RequiredWhen != nil {
		return discriminatorMatches(*g.RequiredWhen, values)
	}
	return g.Required
}

// discriminatorMatches compares the discriminator field's current value,
// string-coerced, against the condition. Option values compare on Value.
func discriminatorMatches(c model.Condition, scope map[string]any) bool {
	v := scope[c.Field]
	if opt, ok := v.(model.OptionValue); ok {
		return opt.Value == c.Equals
	}
	return mapper.CoerceString(v) == c.Equals
}

// dateLayouts accepted for range comparisons, most specific first.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// checkDateRange enforces from <= to for one item's date pair. Unparseable
// or empty endpoints are left to requiredness/format rules.
func checkDateRange(errs map[string]model.FieldError, groupKey string, index int, dr model.DateRangeSpec, values map[string]any) {
	from, okFrom := parseDate(mapper.CoerceString(values[dr.From]))
	to, okTo := parseDate(mapper.CoerceString(values[dr.To]))
	if !okFrom || !okTo {
		return
	}

	if to.Before(from) {
		path := fmt.Sprintf("%s[%d].%s", groupKey, index, dr.To)
		errs[path] = model.FieldError{
			Field:   path,
			Code:    model.FieldErrCrossField,
			Message: fmt.Sprintf("%s must not be before %s", dr.To, dr.From),
		}
	}
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func displayName(f model.FieldSpec) string {
	if f.Label != "" {
		return f.Label
	}
	return f.Key
}

// MergeServerErrors folds a backend's field-keyed rejection map into an
// existing error map, translating wire keys back to form keys. Unmapped
// keys are returned so the caller can log them and surface a top-level
// message instead of dropping them silently.
func MergeServerErrors(def model.EntityDefinition, errs map[string]model.FieldError, serverErrs map[string][]string) (unmapped []string) {
	reverse := reverseWireMap(def)

	for wireKey, messages := range serverErrs {
		msg := ""
		if len(messages) > 0 {
			msg = messages[0]
		}

		formKey, ok := reverse[wireKey]
		if !ok {
			unmapped = append(unmapped, wireKey)
			continue
		}

		// Client-side errors win: the user has not re-submitted since
		// they were produced.
		if _, exists := errs[formKey]; exists {
			continue
		}
		errs[formKey] = model.FieldError{
			Field:   formKey,
			Code:    model.FieldErrServer,
			Message: msg,
		}
	}
	return unmapped
}

// reverseWireMap maps backend field names to form keys for one entity.
func reverseWireMap(def model.EntityDefinition) map[string]string {
	reverse := make(map[string]string, len(def.Fields))
	for _, f := range def.Fields {
		reverse[f.EffectiveWireKey()] = f.Key
	}
	for _, g := range def.Groups {
		reverse[g.EffectiveWireKey()] = g.Key
	}
	return reverse
}
