package mapper

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pitabwire/formbridge/model"
)

// CoerceBool is the single boolean coercion rule applied to every boolean
// field on the way in. Exactly true, "1", "true", and "yes" (case-insensitive)
// coerce to true; everything else, including nil, "0", and "", is false.
// Total over all inputs; never panics.
func CoerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "true", "yes":
			return true
		}
		return false
	case float64:
		return val == 1
	case int:
		return val == 1
	default:
		return false
	}
}

// EncodeBool renders a boolean in the configured wire encoding.
func EncodeBool(b bool, encoding string) any {
	if encoding == model.BoolWireString {
		if b {
			return "1"
		}
		return "0"
	}
	return b
}

// CoerceString renders any scalar as its wire string. nil and absent values
// become the empty string; the key is still emitted, since the observed
// backends treat a missing key as "leave unchanged" rather than "clear".
func CoerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		// JSON numbers arrive as float64; render integers without a
		// trailing ".0".
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprint(val)
	}
}

// IsEmpty reports whether a form value counts as unset for requiredness
// checks. Zero numbers are values; empty strings and nil are not.
func IsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case model.OptionValue:
		return val.Value == ""
	case *model.FileValue:
		return val == nil || len(val.Content) == 0
	default:
		return false
	}
}
