// Package forms resolves entity definitions into frontend-facing form
// descriptors, loads records into editable form state, and projects record
// sets into table views and CSV exports.
package forms

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pitabwire/formbridge/internal/backend"
	"github.com/pitabwire/formbridge/internal/entity"
	"github.com/pitabwire/formbridge/internal/export"
	"github.com/pitabwire/formbridge/internal/mapper"
	"github.com/pitabwire/formbridge/internal/refdata"
	"github.com/pitabwire/formbridge/internal/view"
	"github.com/pitabwire/formbridge/model"
)

// Provider resolves entity definitions into descriptors and record data.
type Provider struct {
	registry *entity.Registry
	client   *backend.Client
	ref      *refdata.Provider
	logger   *zap.Logger
}

// NewProvider creates a Provider backed by the given registry, backend
// client, and reference-data provider.
func NewProvider(registry *entity.Registry, client *backend.Client, ref *refdata.Provider, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		registry: registry,
		client:   client,
		ref:      ref,
		logger:   logger,
	}
}

// EntitySummary is one entry of the entity listing.
type EntitySummary struct {
	Entity  string `json:"entity"`
	Version string `json:"version"`
	Title   string `json:"title"`
}

// ListEntities returns a summary of every registered entity.
func (p *Provider) ListEntities() []EntitySummary {
	defs := p.registry.AllEntities()
	out := make([]EntitySummary, 0, len(defs))
	for _, def := range defs {
		out = append(out, EntitySummary{
			Entity:  def.Entity,
			Version: def.Version,
			Title:   def.Title,
		})
	}
	return out
}

// Descriptor resolves a FormDescriptor for an entity, with lookup option
// lists resolved through the reference-data provider.
func (p *Provider) Descriptor(ctx context.Context, rctx *model.RequestContext, entityName string) (model.FormDescriptor, error) {
	def, ok := p.registry.GetEntity(entityName)
	if !ok {
		return model.FormDescriptor{}, model.NewNotFoundError(
			fmt.Sprintf("entity %q not found", entityName),
		)
	}

	ref, err := p.ref.ReferenceFor(ctx, rctx, def)
	if err != nil {
		return model.FormDescriptor{}, err
	}

	desc := model.FormDescriptor{
		Entity:         def.Entity,
		Title:          def.Title,
		SubmitEndpoint: fmt.Sprintf("/ui/entities/%s/records", def.Entity),
	}
	for _, f := range def.Fields {
		desc.Fields = append(desc.Fields, fieldDescriptor(f, ref))
	}
	for _, g := range def.Groups {
		gd := model.GroupDescriptor{Key: g.Key, Label: g.Label}
		for _, f := range g.Fields {
			gd.Fields = append(gd.Fields, fieldDescriptor(f, ref))
		}
		desc.Groups = append(desc.Groups, gd)
	}
	return desc, nil
}

// RecordForm fetches one record from the backend and maps it into editable
// form state.
func (p *Provider) RecordForm(ctx context.Context, rctx *model.RequestContext, entityName, recordID string) (model.FormModel, error) {
	def, ok := p.registry.GetEntity(entityName)
	if !ok {
		return model.FormModel{}, model.NewNotFoundError(
			fmt.Sprintf("entity %q not found", entityName),
		)
	}
	if def.Backend.GetPath == "" {
		return model.FormModel{}, model.NewNotFoundError(
			fmt.Sprintf("entity %q has no record endpoint", entityName),
		)
	}

	ref, err := p.ref.ReferenceFor(ctx, rctx, def)
	if err != nil {
		return model.FormModel{}, err
	}

	path := backend.PathWithID(def.Backend.GetPath, recordID)
	record, err := p.client.FetchRecord(ctx, rctx, def.Backend.ServiceID, path)
	if err != nil {
		return model.FormModel{}, err
	}

	m := mapper.New(def, p.logger)
	return m.ToForm(record, ref), nil
}

// ViewData fetches the entity's record set and projects it through the
// derived view pipeline.
func (p *Provider) ViewData(ctx context.Context, rctx *model.RequestContext, entityName string, c view.Criteria) (model.DerivedView, error) {
	def, ok := p.registry.GetEntity(entityName)
	if !ok {
		return model.DerivedView{}, model.NewNotFoundError(
			fmt.Sprintf("entity %q not found", entityName),
		)
	}

	records, ref, err := p.fetchRecords(ctx, rctx, def)
	if err != nil {
		return model.DerivedView{}, err
	}

	return view.New(def).Project(records, ref, c), nil
}

// ExportCSV renders the entity's filtered record set as CSV. Pagination in
// the criteria is ignored: the export always covers every matching record.
func (p *Provider) ExportCSV(ctx context.Context, rctx *model.RequestContext, entityName string, c view.Criteria) (string, []byte, error) {
	def, ok := p.registry.GetEntity(entityName)
	if !ok {
		return "", nil, model.NewNotFoundError(
			fmt.Sprintf("entity %q not found", entityName),
		)
	}

	records, ref, err := p.fetchRecords(ctx, rctx, def)
	if err != nil {
		return "", nil, err
	}

	dv := view.New(def).Project(records, ref, c)

	w := export.New(def)
	data, err := w.Render(dv.All, ref)
	if err != nil {
		return "", nil, model.NewBadRequestError(err.Error())
	}
	return w.Filename(), data, nil
}

// fetchRecords loads the full record set and reference data for an entity.
func (p *Provider) fetchRecords(ctx context.Context, rctx *model.RequestContext, def model.EntityDefinition) ([]map[string]any, model.ReferenceData, error) {
	ref, err := p.ref.ReferenceFor(ctx, rctx, def)
	if err != nil {
		return nil, nil, err
	}

	records, err := p.client.FetchItems(ctx, rctx, def.Backend.ServiceID, def.Backend.ListPath, def.Backend.ItemsPath)
	if err != nil {
		return nil, nil, err
	}
	return records, ref, nil
}

// fieldDescriptor resolves one field of a FormDescriptor, attaching lookup
// options for option fields.
func fieldDescriptor(f model.FieldSpec, ref model.ReferenceData) model.FieldDescriptor {
	fd := model.FieldDescriptor{
		Key:         f.Key,
		Kind:        f.Kind,
		Label:       f.Label,
		Required:    f.Required,
		Format:      f.Format,
		Lookup:      f.Lookup,
		Placeholder: f.Placeholder,
		HelpText:    f.HelpText,
	}
	if f.Kind == model.KindOption && f.Lookup != "" {
		fd.Options = ref[f.Lookup]
	}
	return fd
}
