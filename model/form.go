package model

// OptionValue is a single-select's chosen value. Value is the canonical
// identifier used for equality against reference lists; Label is display
// only and never round-tripped for identity comparisons.
type OptionValue struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// FileValue is a newly selected binary upload. The presence of a FileValue
// (as opposed to a URL string) tells the payload builder to attach the
// binary; a string value means "existing URL, leave unchanged".
type FileValue struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Content     []byte `json:"-"`
}

// GroupItem is one sub-record of a repeatable group. Token is a client-only
// identity used for re-render keying and error re-association; it is never
// sent to the backend.
type GroupItem struct {
	Token  string         `json:"token"`
	Values map[string]any `json:"values"`
}

// FormModel is the full in-memory editable state for one record. Scalar and
// option values live in Values keyed by FieldSpec.Key; repeatable groups
// live in Groups keyed by GroupSpec.Key, insertion order meaningful.
type FormModel struct {
	Values map[string]any         `json:"values"`
	Groups map[string][]GroupItem `json:"groups,omitempty"`
}

// NewFormModel returns an empty FormModel with allocated maps.
func NewFormModel() FormModel {
	return FormModel{
		Values: make(map[string]any),
		Groups: make(map[string][]GroupItem),
	}
}

// WireField is one ordered key/value pair of a serialized payload.
type WireField struct {
	Key   string
	Value string
}

// FilePart is one binary attachment of a multipart payload.
type FilePart struct {
	Key         string
	Filename    string
	ContentType string
	Content     []byte
}

// WirePayload is the serialized form destined for the backend. Exactly one
// of Fields/Files (multipart) or Body (JSON) is populated, per Encoding.
type WirePayload struct {
	Encoding string
	Fields   []WireField
	Files    []FilePart
	Body     map[string]any
}

// Submission modes.
const (
	ModeCreate = "create"
	ModeEdit   = "edit"
)

// DerivedView is the filtered/sorted/paginated projection of a record set.
// PageData is a strict sub-slice of All; Total always equals len(All).
type DerivedView struct {
	PageData []map[string]any `json:"page_data"`
	Total    int              `json:"total"`
	All      []map[string]any `json:"-"`
}

// SortSpec is a single-key, two-direction sort.
type SortSpec struct {
	Field string `json:"field"`
	Dir   string `json:"dir"` // "asc" or "desc"
}

// PageSpec is a 1-based page selection.
type PageSpec struct {
	Index int `json:"index"`
	Size  int `json:"size"`
}

// FormDescriptor is the resolved form metadata sent to the frontend.
type FormDescriptor struct {
	Entity         string            `json:"entity"`
	Title          string            `json:"title"`
	SubmitEndpoint string            `json:"submit_endpoint"`
	Fields         []FieldDescriptor `json:"fields"`
	Groups         []GroupDescriptor `json:"groups,omitempty"`
}

// FieldDescriptor is one resolved field of a FormDescriptor.
type FieldDescriptor struct {
	Key         string        `json:"key"`
	Kind        string        `json:"kind"`
	Label       string        `json:"label,omitempty"`
	Required    bool          `json:"required"`
	Format      string        `json:"format,omitempty"`
	Lookup      string        `json:"lookup,omitempty"`
	Options     []OptionValue `json:"options,omitempty"`
	Placeholder string        `json:"placeholder,omitempty"`
	HelpText    string        `json:"help_text,omitempty"`
}

// GroupDescriptor is one resolved repeatable group of a FormDescriptor.
type GroupDescriptor struct {
	Key    string            `json:"key"`
	Label  string            `json:"label,omitempty"`
	Fields []FieldDescriptor `json:"fields"`
}
