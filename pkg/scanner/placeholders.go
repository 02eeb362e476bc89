package scanner

import "strings"

// Placeholder keys always bound while reading a manifest.
const (
	PropertyThisRelative = "this.relative"
	PropertyThisAbsolute = "this.absolute"
)

// Lookup resolves a placeholder key.
type Lookup func(key string) (string, bool)

// ResolvePlaceholders replaces every ${key} in s for which lookup has a value.
// Unknown placeholders and an unterminated "${" are left untouched.
func ResolvePlaceholders(s string, lookup Lookup) string {
	if !strings.Contains(s, "${") {
		return s
	}

	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start+2:], "}")
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += start + 2

		b.WriteString(rest[:start])
		key := rest[start+2 : end]
		if value, ok := lookup(key); ok {
			b.WriteString(value)
		} else {
			b.WriteString(rest[start : end+1])
		}
		rest = rest[end+1:]
	}
	return b.String()
}

// chain returns a lookup that consults each lookup in order.
func chain(lookups ...Lookup) Lookup {
	return func(key string) (string, bool) {
		for _, l := range lookups {
			if v, ok := l(key); ok {
				return v, true
			}
		}
		return "", false
	}
}

// mapLookup adapts a map to a Lookup.
func mapLookup(m map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}
