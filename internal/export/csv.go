// Package export renders a projected record set as CSV, mirroring the table
// view's columns and the values the user sees on screen.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/pitabwire/formbridge/internal/mapper"
	"github.com/pitabwire/formbridge/model"
)

// Writer renders CSV exports for one entity.
type Writer struct {
	def model.EntityDefinition
}

// New creates a Writer for the given entity definition.
func New(def model.EntityDefinition) *Writer {
	return &Writer{def: def}
}

// Filename returns the configured export filename, defaulting to
// "<entity>.csv".
func (w *Writer) Filename() string {
	if w.def.Export.Filename != "" {
		return w.def.Export.Filename
	}
	return w.def.Entity + ".csv"
}

// Render writes the full filtered set (never just the visible page) as CSV.
// Option values are exported as their resolved display labels.
func (w *Writer) Render(records []map[string]any, ref model.ReferenceData) ([]byte, error) {
	columns := w.columns()
	if len(columns) == 0 {
		return nil, fmt.Errorf("export: entity %q has no exportable columns", w.def.Entity)
	}

	buf := &bytes.Buffer{}
	cw := csv.NewWriter(buf)

	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.Label
	}
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("export: write header: %w", err)
	}

	row := make([]string, len(columns))
	for _, r := range records {
		for i, c := range columns {
			row[i] = w.cellValue(r, ref, c.Field)
		}
		if err := cw.Write(row); err != nil {
			return nil, fmt.Errorf("export: write row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("export: flush: %w", err)
	}
	return buf.Bytes(), nil
}

// columns resolves the export column list. An explicit export list selects a
// subset of view columns; otherwise every view column is exported.
func (w *Writer) columns() []model.ColumnSpec {
	if len(w.def.Export.Columns) == 0 {
		return w.def.View.Columns
	}

	byField := make(map[string]model.ColumnSpec, len(w.def.View.Columns))
	for _, c := range w.def.View.Columns {
		byField[c.Field] = c
	}

	out := make([]model.ColumnSpec, 0, len(w.def.Export.Columns))
	for _, field := range w.def.Export.Columns {
		if c, ok := byField[field]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (w *Writer) cellValue(r map[string]any, ref model.ReferenceData, field string) string {
	raw := mapper.CoerceString(fieldValue(r, field))

	for _, f := range w.def.Fields {
		if f.EffectiveWireKey() != field && f.Key != field {
			continue
		}
		if f.Kind == model.KindOption && f.Lookup != "" {
			return ref.LabelFor(f.Lookup, raw)
		}
		break
	}
	return raw
}

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
