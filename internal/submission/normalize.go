package submission

import (
	"github.com/pitabwire/formbridge/model"
)

// normalizeForm re-types values that arrive as generic JSON into the shapes
// the validation and mapping pipeline works with. Option selections decoded
// as {"label","value"} objects become model.OptionValue; everything else
// passes through untouched.
func normalizeForm(def model.EntityDefinition, form model.FormModel) model.FormModel {
	if form.Values != nil {
		normalizeScope(def.Fields, form.Values)
	}
	for _, g := range def.Groups {
		for _, item := range form.Groups[g.Key] {
			if item.Values != nil {
				normalizeScope(g.Fields, item.Values)
			}
		}
	}
	return form
}

func normalizeScope(fields []model.FieldSpec, values map[string]any) {
	for _, f := range fields {
		if f.Kind != model.KindOption {
			continue
		}
		raw, ok := values[f.Key].(map[string]any)
		if !ok {
			continue
		}
		label, _ := raw["label"].(string)
		value, _ := raw["value"].(string)
		values[f.Key] = model.OptionValue{Label: label, Value: value}
	}
}
