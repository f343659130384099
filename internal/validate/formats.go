package validate

import "regexp"

// Shared data-format contracts, declared once and referenced by name from
// field specs. These are format checks, not business rules; mismatches
// produce FORMAT errors, distinct from REQUIRED, so the UI can phrase the
// two differently.
var formatPatterns = map[string]*regexp.Regexp{
	"gst":   regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`),
	"pan":   regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`),
	"year":  regexp.MustCompile(`^[0-9]{4}$`),
	"phone": regexp.MustCompile(`^\+?[0-9]{7,15}$`),
	"url":   regexp.MustCompile(`^https?://[^\s]+\.[^\s]+$`),
	"email": regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`),
}

// KnownFormat reports whether name is a declared format contract.
func KnownFormat(name string) bool {
	_, ok := formatPatterns[name]
	return ok
}

// matchesFormat checks a non-empty value against a named format. Unknown
// format names pass; the definition validator rejects them at load time.
func matchesFormat(name, value string) bool {
	re, ok := formatPatterns[name]
	if !ok {
		return true
	}
	return re.MatchString(value)
}
