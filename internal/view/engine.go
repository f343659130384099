// Package view computes the derived table projection of an in-memory record
// set: special filters, per-dimension filters, free-text query, sort, and
// pagination, in that fixed order. Projection is a pure function of its
// inputs and never mutates the record set.
package view

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pitabwire/formbridge/internal/mapper"
	"github.com/pitabwire/formbridge/model"
)

// Criteria is everything the frontend controls about a table view.
type Criteria struct {
	// Filters maps dimension field name to the selected values. An empty
	// or absent set means no constraint on that dimension.
	Filters map[string][]string `json:"filters,omitempty"`
	// Special names active special filters declared on the entity view.
	Special []string `json:"special,omitempty"`
	Query   string   `json:"query,omitempty"`
	Sort    model.SortSpec `json:"sort"`
	Page    model.PageSpec `json:"page"`
}

// Engine projects record sets for one entity.
type Engine struct {
	def model.EntityDefinition
}

// New creates an Engine for the given entity definition.
func New(def model.EntityDefinition) *Engine {
	return &Engine{def: def}
}

// Project runs the full pipeline. Each stage consumes the previous stage's
// output; special filters that depend on global uniqueness scan the full
// unfiltered set. An out-of-range page yields empty PageData rather than
// clamping; callers reset to page 1 when criteria change.
func (e *Engine) Project(records []map[string]any, ref model.ReferenceData, c Criteria) model.DerivedView {
	// Stage 1: special filters over the full set.
	current := e.applySpecial(records, c.Special)

	// Stage 2: per-dimension membership filters, ANDed.
	current = e.applyFilters(current, c.Filters)

	// Stage 3: free-text query, OR'd across searchable fields.
	current = e.applyQuery(current, ref, c.Query)

	// Stage 4: single-key sort on a copy.
	current = e.applySort(current, ref, c.Sort)

	// Stage 5: page slice.
	page := paginate(current, c.Page, e.def.View.PageSize)

	return model.DerivedView{
		PageData: page,
		Total:    len(current),
		All:      current,
	}
}

// applySpecial evaluates the named special filters. Duplicate detection
// counts occurrences across all records, not the current page, so
// duplicates spanning pages are not missed.
func (e *Engine) applySpecial(records []map[string]any, active []string) []map[string]any {
	if len(active) == 0 {
		out := make([]map[string]any, len(records))
		copy(out, records)
		return out
	}

	specs := make(map[string]model.SpecialFilter, len(e.def.View.Special))
	for _, s := range e.def.View.Special {
		specs[s.Name] = s
	}

	current := records
	for _, name := range active {
		s, ok := specs[name]
		if !ok {
			continue
		}
		switch s.Kind {
		case model.SpecialCreatedToday:
			current = filterCreatedToday(current, s.Field)
		case model.SpecialDuplicateKey:
			counts := make(map[string]int, len(records))
			for _, r := range records {
				if v := mapper.CoerceString(fieldValue(r, s.Field)); v != "" {
					counts[v]++
				}
			}
			var kept []map[string]any
			for _, r := range current {
				if counts[mapper.CoerceString(fieldValue(r, s.Field))] > 1 {
					kept = append(kept, r)
				}
			}
			current = kept
		}
	}

	out := make([]map[string]any, len(current))
	copy(out, current)
	return out
}

func filterCreatedToday(records []map[string]any, field string) []map[string]any {
	if field == "" {
		field = "created_at"
	}
	today := time.Now().UTC().Format("2006-01-02")

	var kept []map[string]any
	for _, r := range records {
		v := mapper.CoerceString(fieldValue(r, field))
		if len(v) >= 10 && v[:10] == today {
			kept = append(kept, r)
		}
	}
	return kept
}

// applyFilters keeps records whose value for every active dimension is a
// member of that dimension's selected set.
func (e *Engine) applyFilters(records []map[string]any, filters map[string][]string) []map[string]any {
	active := make(map[string]map[string]bool)
	for dim, selected := range filters {
		if len(selected) == 0 {
			continue // No constraint on this dimension.
		}
		set := make(map[string]bool, len(selected))
		for _, v := range selected {
			set[v] = true
		}
		active[dim] = set
	}
	if len(active) == 0 {
		return records
	}

	var kept []map[string]any
	for _, r := range records {
		match := true
		for dim, set := range active {
			if !set[mapper.CoerceString(fieldValue(r, dim))] {
				match = false
				break
			}
		}
		if match {
			kept = append(kept, r)
		}
	}
	return kept
}

// applyQuery keeps records where any searchable field contains the query,
// case-insensitive. Option fields match on their resolved display label,
// since that is what the user sees in the column.
func (e *Engine) applyQuery(records []map[string]any, ref model.ReferenceData, query string) []map[string]any {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return records
	}

	searchable := e.searchableFields()

	var kept []map[string]any
	for _, r := range records {
		for _, f := range searchable {
			if strings.Contains(strings.ToLower(e.displayValue(r, ref, f)), q) {
				kept = append(kept, r)
				break
			}
		}
	}
	return kept
}

func (e *Engine) searchableFields() []model.FieldSpec {
	var out []model.FieldSpec
	for _, f := range e.def.Fields {
		if f.Searchable {
			out = append(out, f)
		}
	}
	return out
}

// displayValue renders the user-visible value of a field on a raw record.
func (e *Engine) displayValue(r map[string]any, ref model.ReferenceData, f model.FieldSpec) string {
	raw := mapper.CoerceString(fieldValue(r, f.EffectiveWireKey()))
	if f.Kind == model.KindOption && f.Lookup != "" {
		return ref.LabelFor(f.Lookup, raw)
	}
	return raw
}

// applySort sorts a copy by the named field. Strings compare
// case-insensitive; number and date fields compare numerically and
// chronologically; reference-id fields sort by resolved label.
func (e *Engine) applySort(records []map[string]any, ref model.ReferenceData, s model.SortSpec) []map[string]any {
	if s.Field == "" {
		s.Field = e.def.View.DefaultSort
		s.Dir = e.def.View.SortDir
	}
	if s.Field == "" {
		return records
	}

	spec := e.fieldByWireKey(s.Field)

	out := make([]map[string]any, len(records))
	copy(out, records)

	less := func(a, b map[string]any) bool {
		return compareField(a, b, ref, s.Field, spec) < 0
	}
	sort.SliceStable(out, func(i, j int) bool {
		if s.Dir == "desc" {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

func (e *Engine) fieldByWireKey(key string) *model.FieldSpec {
	for i := range e.def.Fields {
		if e.def.Fields[i].EffectiveWireKey() == key || e.def.Fields[i].Key == key {
			return &e.def.Fields[i]
		}
	}
	return nil
}

// compareField orders two records on one field.
func compareField(a, b map[string]any, ref model.ReferenceData, key string, spec *model.FieldSpec) int {
	av := fieldValue(a, key)
	bv := fieldValue(b, key)

	if spec != nil {
		switch spec.Kind {
		case model.KindNumber:
			return compareFloats(toFloat(av), toFloat(bv))
		case model.KindDate:
			return strings.Compare(mapper.CoerceString(av), mapper.CoerceString(bv))
		case model.KindOption:
			al := ref.LabelFor(spec.Lookup, mapper.CoerceString(av))
			bl := ref.LabelFor(spec.Lookup, mapper.CoerceString(bv))
			return strings.Compare(strings.ToLower(al), strings.ToLower(bl))
		}
	}

	// Numeric-looking values on unspecified fields still compare
	// numerically (ids arrive as both numbers and digit strings).
	af, aok := tryFloat(av)
	bf, bok := tryFloat(bv)
	if aok && bok {
		return compareFloats(af, bf)
	}

	return strings.Compare(
		strings.ToLower(mapper.CoerceString(av)),
		strings.ToLower(mapper.CoerceString(bv)),
	)
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	f, _ := tryFloat(v)
	return f
}

func tryFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// paginate slices [(index-1)*size, +size). Out-of-range pages are empty.
func paginate(records []map[string]any, p model.PageSpec, defaultSize int) []map[string]any {
	size := p.Size
	if size <= 0 {
		size = defaultSize
	}
	if size <= 0 {
		size = 10
	}
	index := p.Index
	if index <= 0 {
		index = 1
	}

	start := (index - 1) * size
	if start >= len(records) {
		return []map[string]any{}
	}
	end := start + size
	if end > len(records) {
		end = len(records)
	}
	return records[start:end]
}

// fieldValue reads a possibly dotted field path from a raw record.
func fieldValue(r map[string]any, key string) any {
	if !strings.Contains(key, ".") {
		return r[key]
	}
	var current any = r
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}
