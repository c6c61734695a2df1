// utils/keys.go
package utils

import "strings"

// NormalizeKey converts form and CSV keys to field slugs: trimmed, lowercase,
// underscores replaced with hyphens ("end_date" -> "end-date").
func NormalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "_", "-")
}

// NormalizeValues returns a copy of values with normalized keys and trimmed
// values. When two keys normalize to the same slug the hyphenated spelling wins.
func NormalizeValues(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		slug := NormalizeKey(k)
		if _, taken := out[slug]; taken && strings.Contains(k, "_") {
			continue
		}
		out[slug] = strings.TrimSpace(v)
	}
	return out
}

// IsBlank reports whether a CSV or form value is empty after trimming.
func IsBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}
