package mapper

import "strings"

// navigatePath navigates a dot-separated path through nested maps. Returns
// nil when any segment is missing or not a map.
func navigatePath(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var current any = data
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}
