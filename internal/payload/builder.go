// Package payload serializes validated form models into the wire format a
// backend expects: multipart form data with bracketed array indices, or a
// nested JSON object. One encoding per payload, applied uniformly to every
// group in it.
package payload

import (
	"fmt"

	"github.com/pitabwire/formbridge/internal/mapper"
	"github.com/pitabwire/formbridge/model"
)

// Builder serializes form models for one entity. Building the same form
// twice yields identical field sets: fields are emitted in declaration
// order, group items in display order.
type Builder struct {
	def model.EntityDefinition
	m   *mapper.Mapper
}

// New creates a Builder for the given entity definition.
func New(def model.EntityDefinition, m *mapper.Mapper) *Builder {
	return &Builder{def: def, m: m}
}

// Build serializes the form into the entity's configured encoding. In edit
// mode the record identity and, when configured, a _method=PUT override are
// prepended, since multipart updates commonly cannot ride a native PUT.
func (b *Builder) Build(form model.FormModel, mode string, recordID string) (model.WirePayload, error) {
	switch b.def.Backend.Encoding {
	case model.EncodingMultipart:
		return b.buildMultipart(form, mode, recordID)
	case model.EncodingJSON, "":
		return b.buildJSON(form, mode, recordID)
	default:
		return model.WirePayload{}, fmt.Errorf("payload: unknown encoding %q for entity %q", b.def.Backend.Encoding, b.def.Entity)
	}
}

// idWireKey returns the identity field name for edit payloads.
func (b *Builder) idWireKey() string {
	if b.def.Backend.IDWireKey != "" {
		return b.def.Backend.IDWireKey
	}
	return "id"
}

// buildMultipart emits ordered bracketed fields: scalar keys first, then
// one group[index][subKey] entry per sub-field per item.
func (b *Builder) buildMultipart(form model.FormModel, mode string, recordID string) (model.WirePayload, error) {
	wire := b.m.ToWire(form)

	p := model.WirePayload{Encoding: model.EncodingMultipart}

	if mode == model.ModeEdit {
		p.Fields = append(p.Fields, model.WireField{Key: b.idWireKey(), Value: recordID})
		if b.def.Backend.MethodOverride {
			p.Fields = append(p.Fields, model.WireField{Key: "_method", Value: "PUT"})
		}
	}

	for _, f := range b.def.Fields {
		key := f.EffectiveWireKey()
		v := wire[key]

		if f.Kind == model.KindFile {
			if fv, ok := v.(*model.FileValue); ok && fv != nil {
				p.Files = append(p.Files, model.FilePart{
					Key:         key,
					Filename:    fv.Filename,
					ContentType: fv.ContentType,
					Content:     fv.Content,
				})
				continue
			}
			// Unchanged URL or unset: emit the key as the empty
			// "no change" marker rather than omitting it.
			p.Fields = append(p.Fields, model.WireField{Key: key, Value: ""})
			continue
		}

		p.Fields = append(p.Fields, model.WireField{Key: key, Value: mapper.CoerceString(v)})
	}

	for _, g := range b.def.Groups {
		groupKey := g.EffectiveWireKey()
		items, _ := wire[groupKey].([]map[string]any)
		for i, item := range items {
			for _, f := range g.Fields {
				subKey := f.EffectiveWireKey()
				p.Fields = append(p.Fields, model.WireField{
					Key:   fmt.Sprintf("%s[%d][%s]", groupKey, i, subKey),
					Value: mapper.CoerceString(item[subKey]),
				})
			}
		}
	}

	return p, nil
}

// buildJSON emits the wire record as a nested JSON object. Binary uploads
// cannot ride a JSON payload; the definition validator rejects file fields
// on JSON entities, this check is the runtime backstop.
func (b *Builder) buildJSON(form model.FormModel, mode string, recordID string) (model.WirePayload, error) {
	wire := b.m.ToWire(form)

	for key, v := range wire {
		if _, ok := v.(*model.FileValue); ok {
			return model.WirePayload{}, fmt.Errorf("payload: field %q carries a binary upload but entity %q uses json encoding", key, b.def.Entity)
		}
	}

	if mode == model.ModeEdit {
		wire[b.idWireKey()] = recordID
		if b.def.Backend.MethodOverride {
			wire["_method"] = "PUT"
		}
	}

	return model.WirePayload{Encoding: model.EncodingJSON, Body: wire}, nil
}
