// Package listedit manages the ordered item collections of repeatable
// groups: stable client-side identity tokens, contiguous reindexing on
// removal, and error-state re-association.
package listedit

import (
	"github.com/google/uuid"

	"github.com/pitabwire/formbridge/model"
)

// Editor holds the ordered items of one repeatable group. Item order is the
// serialization order; the index an item occupies at build time is the array
// index the backend sees.
type Editor struct {
	items []model.GroupItem
	// errs keys field errors by item token, not index, so removal of one
	// item never leaves a stale error on a shifted neighbour.
	errs map[string]map[string]model.FieldError
}

// New creates an empty Editor.
func New() *Editor {
	return &Editor{errs: make(map[string]map[string]model.FieldError)}
}

// Seed replaces the editor's contents with items mapped from an API record,
// assigning each a fresh identity token. Tokens are client-side only and
// never reach the wire.
func Seed(items []model.GroupItem) *Editor {
	e := New()
	for _, item := range items {
		item.Token = newToken()
		e.items = append(e.items, item)
	}
	return e
}

// newToken returns a collision-free identity token. Array indices are not
// usable here: they are reused after removal.
func newToken() string {
	return uuid.NewString()
}

// Append inserts defaultItem at the end and returns its assigned token.
func (e *Editor) Append(defaultItem map[string]any) string {
	if defaultItem == nil {
		defaultItem = map[string]any{}
	}
	token := newToken()
	e.items = append(e.items, model.GroupItem{Token: token, Values: defaultItem})
	return token
}

// Remove deletes the item at index. Subsequent items shift down one logical
// position; the removed item's error state is discarded. Out-of-range
// indices are ignored.
func (e *Editor) Remove(index int) {
	if index < 0 || index >= len(e.items) {
		return
	}
	delete(e.errs, e.items[index].Token)
	e.items = append(e.items[:index], e.items[index+1:]...)
}

// Items returns the items in display order. Serialized order is guaranteed
// to match this order; there is no independent reordering state.
func (e *Editor) Items() []model.GroupItem {
	out := make([]model.GroupItem, len(e.items))
	copy(out, e.items)
	return out
}

// Len returns the number of items.
func (e *Editor) Len() int {
	return len(e.items)
}

// SetError records a field error for the item with the given token.
func (e *Editor) SetError(token, field string, fe model.FieldError) {
	m, ok := e.errs[token]
	if !ok {
		m = make(map[string]model.FieldError)
		e.errs[token] = m
	}
	m[field] = fe
}

// ErrorsAt returns the errors currently associated with the item at index,
// resolved through its token. After removals, errors follow the item, not
// its old position.
func (e *Editor) ErrorsAt(index int) map[string]model.FieldError {
	if index < 0 || index >= len(e.items) {
		return nil
	}
	return e.errs[e.items[index].Token]
}

// ClearErrors discards all recorded error state.
func (e *Editor) ClearErrors() {
	e.errs = make(map[string]map[string]model.FieldError)
}
