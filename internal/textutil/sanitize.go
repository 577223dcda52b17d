package textutil

import "strings"

// SanitizeToken lowercases value and maps anything outside [a-z0-9_-] to an
// underscore so upload tokens and filename stems are safe as path segments
// under the staging and library roots. Input that strips to nothing yields
// "unknown"; callers treat that as a cue to fall back to the item ID.
func SanitizeToken(value string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, strings.TrimSpace(value))
	mapped = strings.Trim(mapped, "_-")
	if mapped == "" {
		return "unknown"
	}
	return mapped
}
