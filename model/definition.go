package model

// EntityDefinition is the root structure of an entity definition file. Each
// file declares one record type's fields, repeatable groups, backend binding,
// table view, and CSV export contract.
type EntityDefinition struct {
	Entity  string             `yaml:"entity"  json:"entity"`
	Version string             `yaml:"version" json:"version"`
	Title   string             `yaml:"title"   json:"title"`
	Backend BackendBinding     `yaml:"backend" json:"backend"`
	Fields  []FieldSpec        `yaml:"fields"  json:"fields"`
	Groups  []GroupSpec        `yaml:"groups"  json:"groups,omitempty"`
	View    ViewSpec           `yaml:"view"    json:"view"`
	Export  ExportSpec         `yaml:"export"  json:"export"`
	Lookups []LookupDefinition `yaml:"lookups" json:"lookups,omitempty"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// Field kinds.
const (
	KindText    = "text"
	KindNumber  = "number"
	KindBoolean = "boolean"
	KindOption  = "option"
	KindFile    = "file"
	KindDate    = "date"
)

// Boolean wire encodings.
const (
	BoolWireNative = "native" // true / false
	BoolWireString = "string" // "1" / "0"
)

// Payload encodings.
const (
	EncodingJSON      = "json"
	EncodingMultipart = "multipart"
)

// FieldSpec describes one scalar, option, or file field of an entity.
type FieldSpec struct {
	Key      string `yaml:"key"       json:"key"`
	Kind     string `yaml:"kind"      json:"kind"`
	Label    string `yaml:"label"     json:"label,omitempty"`
	Required bool   `yaml:"required"  json:"required,omitempty"`

	// WireKey is the backend field name when it differs from Key.
	WireKey string `yaml:"wire_key" json:"wire_key,omitempty"`

	// RequiredWhen gates requiredness on a sibling discriminator field.
	RequiredWhen *Condition `yaml:"required_when" json:"required_when,omitempty"`

	// RequiredIfSet makes the field required whenever the named sibling
	// field is non-empty (e.g. reference → reference_specify).
	RequiredIfSet string `yaml:"required_if_set" json:"required_if_set,omitempty"`

	// Format names a shared format contract: gst, pan, year, phone, url, email.
	Format string `yaml:"format" json:"format,omitempty"`

	// Lookup is the reference-data lookup ID for option fields.
	Lookup string `yaml:"lookup" json:"lookup,omitempty"`

	// FallbackLabelPath is a dotted path to a denormalized display name on
	// the API record, used when the lookup list has no matching entry.
	FallbackLabelPath string `yaml:"fallback_label_path" json:"fallback_label_path,omitempty"`

	// WireBoolean selects the wire encoding for boolean fields: "native"
	// or "string". Empty inherits the entity default.
	WireBoolean string `yaml:"wire_boolean" json:"wire_boolean,omitempty"`

	Searchable  bool   `yaml:"searchable"  json:"searchable,omitempty"`
	Placeholder string `yaml:"placeholder" json:"placeholder,omitempty"`
	HelpText    string `yaml:"help_text"   json:"help_text,omitempty"`
}

// EffectiveWireKey returns WireKey, falling back to Key.
func (f FieldSpec) EffectiveWireKey() string {
	if f.WireKey != "" {
		return f.WireKey
	}
	return f.Key
}

// Condition gates requiredness on another field holding an exact value.
type Condition struct {
	Field  string `yaml:"field"  json:"field"`
	Equals string `yaml:"equals" json:"equals"`
}

// GroupSpec describes a repeatable group: an ordered list of uniformly
// shaped sub-records (bank details, certificates, offices).
type GroupSpec struct {
	Key     string `yaml:"key"      json:"key"`
	WireKey string `yaml:"wire_key" json:"wire_key,omitempty"`
	Label   string `yaml:"label"    json:"label,omitempty"`

	// Required marks the group as needing at least one item.
	Required bool `yaml:"required" json:"required,omitempty"`

	// RequiredWhen gates the non-empty requirement on a discriminator.
	RequiredWhen *Condition `yaml:"required_when" json:"required_when,omitempty"`

	Fields []FieldSpec `yaml:"fields" json:"fields"`

	// DateRanges pairs from/to date fields validated per item.
	DateRanges []DateRangeSpec `yaml:"date_ranges" json:"date_ranges,omitempty"`
}

// EffectiveWireKey returns WireKey, falling back to Key.
func (g GroupSpec) EffectiveWireKey() string {
	if g.WireKey != "" {
		return g.WireKey
	}
	return g.Key
}

// DateRangeSpec names a from/to date pair inside a group item.
type DateRangeSpec struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to"   json:"to"`
}

// BackendBinding describes the REST endpoints and payload conventions of
// the backing service for one entity.
type BackendBinding struct {
	ServiceID  string `yaml:"service_id"  json:"service_id"`
	ListPath   string `yaml:"list_path"   json:"list_path"`
	GetPath    string `yaml:"get_path"    json:"get_path"`
	CreatePath string `yaml:"create_path" json:"create_path"`
	UpdatePath string `yaml:"update_path" json:"update_path"`

	// ItemsPath is the dotted path to the record array in list responses.
	ItemsPath string `yaml:"items_path" json:"items_path,omitempty"`

	// Encoding selects the submission payload encoding: "json" or
	// "multipart". Applied uniformly to every group in the payload.
	Encoding string `yaml:"encoding" json:"encoding"`

	// MethodOverride emits _method=PUT alongside POST on edit, for
	// backends that cannot accept multipart bodies on native PUT.
	MethodOverride bool `yaml:"method_override" json:"method_override,omitempty"`

	// IDWireKey is the identity field prepended in edit mode.
	IDWireKey string `yaml:"id_wire_key" json:"id_wire_key,omitempty"`

	// BooleanWire is the entity-default boolean encoding.
	BooleanWire string `yaml:"boolean_wire" json:"boolean_wire,omitempty"`
}

// ViewSpec describes the derived table view of an entity's record set.
type ViewSpec struct {
	Columns     []ColumnSpec    `yaml:"columns"      json:"columns"`
	Filters     []FilterSpec    `yaml:"filters"      json:"filters,omitempty"`
	Special     []SpecialFilter `yaml:"special"      json:"special,omitempty"`
	DefaultSort string          `yaml:"default_sort" json:"default_sort,omitempty"`
	SortDir     string          `yaml:"sort_dir"     json:"sort_dir,omitempty"`
	PageSize    int             `yaml:"page_size"    json:"page_size,omitempty"`
}

// ColumnSpec describes one visible table column.
type ColumnSpec struct {
	Field    string `yaml:"field"    json:"field"`
	Label    string `yaml:"label"    json:"label"`
	Sortable bool   `yaml:"sortable" json:"sortable,omitempty"`
}

// FilterSpec describes a multi-select filter dimension over a record field.
type FilterSpec struct {
	Field  string `yaml:"field"  json:"field"`
	Label  string `yaml:"label"  json:"label"`
	Lookup string `yaml:"lookup" json:"lookup,omitempty"`
}

// Special filter kinds.
const (
	SpecialCreatedToday = "created_today"
	SpecialDuplicateKey = "duplicate_key"
)

// SpecialFilter describes a filter computed over the full record set rather
// than per record (e.g. duplicate detection needs global scan).
type SpecialFilter struct {
	Name string `yaml:"name" json:"name"`
	Kind string `yaml:"kind" json:"kind"`
	// Field is the record field the special filter inspects.
	Field string `yaml:"field" json:"field,omitempty"`
}

// ExportSpec pins the CSV header list and column order for an entity. It
// must stay in lockstep with the view's visible columns; the definition
// validator enforces that every export column is a declared view column.
type ExportSpec struct {
	Filename string   `yaml:"filename" json:"filename,omitempty"`
	Columns  []string `yaml:"columns"  json:"columns"`
}

// LookupDefinition describes a reference-data list (countries, members,
// companies) fetched from a backend endpoint and served as label/value
// options.
type LookupDefinition struct {
	ID         string     `yaml:"id"          json:"id"`
	ServiceID  string     `yaml:"service_id"  json:"service_id"`
	Path       string     `yaml:"path"        json:"path"`
	ItemsPath  string     `yaml:"items_path"  json:"items_path,omitempty"`
	LabelField string     `yaml:"label_field" json:"label_field"`
	ValueField string     `yaml:"value_field" json:"value_field"`
	Cache      *CacheSpec `yaml:"cache"       json:"cache,omitempty"`
}

// CacheSpec describes caching for a lookup.
type CacheSpec struct {
	TTL string `yaml:"ttl" json:"ttl"`
}
