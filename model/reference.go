package model

import "strings"

// ReferenceData is the read-only set of resolved lookup option lists
// (countries, members, companies) injected into mapping calls. Keyed by
// lookup ID. It is an explicit dependency, never ambient state, so mapping
// stays pure and testable.
type ReferenceData map[string][]OptionValue

// FindByValue returns the option whose Value matches, keyed on Value only.
func (rd ReferenceData) FindByValue(lookupID, value string) (OptionValue, bool) {
	for _, opt := range rd[lookupID] {
		if opt.Value == value {
			return opt, true
		}
	}
	return OptionValue{}, false
}

// FindByLabel does a case-insensitive containment match on labels. This is
// a last-resort fallback for records carrying only a display name; callers
// should log when it fires.
func (rd ReferenceData) FindByLabel(lookupID, label string) (OptionValue, bool) {
	if label == "" {
		return OptionValue{}, false
	}
	needle := strings.ToLower(label)
	for _, opt := range rd[lookupID] {
		if strings.Contains(strings.ToLower(opt.Label), needle) {
			return opt, true
		}
	}
	return OptionValue{}, false
}

// LabelFor returns the display label for a value, or the value itself when
// the lookup has no matching entry.
func (rd ReferenceData) LabelFor(lookupID, value string) string {
	if opt, ok := rd.FindByValue(lookupID, value); ok {
		return opt.Label
	}
	return value
}
