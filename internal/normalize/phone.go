// Package normalize canonicalizes free-text inputs (phones, city names,
// condition labels) into comparable keys.
package normalize

import "strings"

// Phone strips every non-digit character. An empty result means "no phone".
func Phone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Phones normalizes a list, dropping empties and duplicates while keeping the
// first-seen order.
func Phones(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		p := Phone(r)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// SplitPhones accepts a comma-separated phone list as sent by form clients.
func SplitPhones(raw string) []string {
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return Phones(parts)
}
