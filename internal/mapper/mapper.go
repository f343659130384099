// Package mapper converts API records into editable form models and back.
// Conversions are pure functions of the entity definition, the record, and
// the injected reference data; malformed input degrades to best-effort
// fallback values and never panics.
package mapper

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/pitabwire/formbridge/internal/listedit"
	"github.com/pitabwire/formbridge/model"
)

// Mapper performs bidirectional API-shape ↔ form-shape conversion for one
// entity.
type Mapper struct {
	def    model.EntityDefinition
	logger *zap.Logger
}

// New creates a Mapper for the given entity definition. A nil logger
// disables fallback-resolution logging.
func New(def model.EntityDefinition, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{def: def, logger: logger}
}

// ToForm maps an API record into a FormModel. Option fields resolve against
// the injected reference data; boolean fields pass through the shared
// coercion rule; file URLs pass through unchanged. Absent group arrays map
// to empty sequences, never nil.
func (m *Mapper) ToForm(apiRecord map[string]any, ref model.ReferenceData) model.FormModel {
	form := model.NewFormModel()
	if apiRecord == nil {
		apiRecord = map[string]any{}
	}

	for _, f := range m.def.Fields {
		form.Values[f.Key] = m.fieldToForm(f, apiRecord, ref)
	}

	for _, g := range m.def.Groups {
		form.Groups[g.Key] = m.groupToForm(g, apiRecord, ref)
	}

	return form
}

// fieldToForm maps a single field value from the API record.
func (m *Mapper) fieldToForm(f model.FieldSpec, record map[string]any, ref model.ReferenceData) any {
	raw := navigatePath(record, f.EffectiveWireKey())

	switch f.Kind {
	case model.KindBoolean:
		return CoerceBool(raw)

	case model.KindOption:
		return m.resolveOption(f, raw, record, ref)

	case model.KindFile:
		// URL strings pass through untouched; the string-vs-binary
		// distinction drives the payload builder later.
		if s, ok := raw.(string); ok {
			return s
		}
		return ""

	case model.KindNumber:
		return coerceNumber(raw)

	default: // text, date
		return CoerceString(raw)
	}
}

// resolveOption matches the raw id against the field's lookup list. When no
// entry matches and the record carries a denormalized display name, that
// name is first containment-matched against the lookup labels to recover
// the canonical option; failing that, a fallback option is synthesized so
// the field is not silently emptied while reference lists are still
// loading.
func (m *Mapper) resolveOption(f model.FieldSpec, raw any, record map[string]any, ref model.ReferenceData) model.OptionValue {
	value := CoerceString(raw)
	if value != "" {
		if opt, ok := ref.FindByValue(f.Lookup, value); ok {
			return opt
		}
	}

	if f.FallbackLabelPath != "" {
		if name := CoerceString(navigatePath(record, f.FallbackLabelPath)); name != "" {
			if opt, ok := ref.FindByLabel(f.Lookup, name); ok {
				m.logger.Warn("option recovered by label containment",
					zap.String("entity", m.def.Entity),
					zap.String("field", f.Key),
					zap.String("name", name),
					zap.String("value", value),
				)
				return opt
			}
			if value != "" {
				m.logger.Debug("option resolved via denormalized name fallback",
					zap.String("entity", m.def.Entity),
					zap.String("field", f.Key),
					zap.String("value", value),
				)
				return model.OptionValue{Label: name, Value: value}
			}
		}
	}

	if value == "" {
		return model.OptionValue{}
	}
	return model.OptionValue{Label: value, Value: value}
}

// groupToForm maps an API array into group items, seeding them through the
// list editor so every item carries a fresh identity token.
func (m *Mapper) groupToForm(g model.GroupSpec, record map[string]any, ref model.ReferenceData) []model.GroupItem {
	items := []model.GroupItem{}

	raw := navigatePath(record, g.EffectiveWireKey())
	arr, ok := raw.([]any)
	if !ok {
		return items
	}

	for _, el := range arr {
		itemRecord, ok := el.(map[string]any)
		if !ok {
			continue
		}
		values := make(map[string]any, len(g.Fields))
		for _, f := range g.Fields {
			values[f.Key] = m.fieldToForm(f, itemRecord, ref)
		}
		items = append(items, model.GroupItem{Values: values})
	}

	return listedit.Seed(items).Items()
}

// ToWire maps a FormModel back into a flat wire record. Option fields emit
// their value only; booleans use the per-field wire encoding; unset scalars
// emit the empty string rather than omitting the key, since the observed
// backends do not treat absence and empty string as equivalent.
func (m *Mapper) ToWire(form model.FormModel) map[string]any {
	wire := make(map[string]any, len(m.def.Fields)+len(m.def.Groups))

	for _, f := range m.def.Fields {
		wire[f.EffectiveWireKey()] = m.fieldToWire(f, form.Values[f.Key])
	}

	for _, g := range m.def.Groups {
		items := form.Groups[g.Key]
		out := make([]map[string]any, 0, len(items))
		for _, item := range items {
			itemWire := make(map[string]any, len(g.Fields))
			for _, f := range g.Fields {
				itemWire[f.EffectiveWireKey()] = m.fieldToWire(f, item.Values[f.Key])
			}
			out = append(out, itemWire)
		}
		wire[g.EffectiveWireKey()] = out
	}

	return wire
}

// fieldToWire maps a single form value to its wire representation.
func (m *Mapper) fieldToWire(f model.FieldSpec, v any) any {
	switch f.Kind {
	case model.KindBoolean:
		return EncodeBool(CoerceBool(v), m.boolEncoding(f))

	case model.KindOption:
		if opt, ok := v.(model.OptionValue); ok {
			return opt.Value
		}
		return CoerceString(v)

	case model.KindFile:
		// Binary uploads survive to the payload builder; unchanged URL
		// strings collapse to the empty "leave unchanged" marker.
		if fv, ok := v.(*model.FileValue); ok && fv != nil {
			return fv
		}
		return ""

	case model.KindNumber:
		if v == nil || v == "" {
			return ""
		}
		return coerceNumber(v)

	default:
		return CoerceString(v)
	}
}

// boolEncoding returns the field's boolean wire encoding, inheriting the
// entity default and finally native.
func (m *Mapper) boolEncoding(f model.FieldSpec) string {
	if f.WireBoolean != "" {
		return f.WireBoolean
	}
	if m.def.Backend.BooleanWire != "" {
		return m.def.Backend.BooleanWire
	}
	return model.BoolWireNative
}

// coerceNumber normalizes numeric input to float64 where possible. Strings
// that do not parse pass through unchanged so nothing is silently dropped.
func coerceNumber(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		if val == "" {
			return ""
		}
		if n, err := strconv.ParseFloat(val, 64); err == nil {
			return n
		}
		return val
	default:
		return v
	}
}
