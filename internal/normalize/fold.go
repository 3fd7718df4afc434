package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Folder lowercases text with a fixed alphabet table applied before a
// language-specific caser. It never reads the process locale.
type Folder struct {
	special map[rune]string
	tag     language.Tag
}

// NewFolder builds a folder for the given language tag. Runes in special are
// replaced verbatim before the caser runs.
func NewFolder(tag language.Tag, special map[rune]string) *Folder {
	cp := make(map[rune]string, len(special))
	for k, v := range special {
		cp[k] = v
	}
	return &Folder{special: cp, tag: tag}
}

// turkishSpecials holds the dotted/dotless I pairs that the default Unicode
// mapping gets wrong for Turkish.
var turkishSpecials = map[rune]string{
	'İ': "i",
	'I': "ı",
}

// Turkish is the folder used for city names and condition labels.
var Turkish = NewFolder(language.Turkish, turkishSpecials)

// Fold returns the lowercase form of s.
func (f *Folder) Fold(s string) string {
	if s == "" {
		return ""
	}
	if len(f.special) > 0 {
		var b strings.Builder
		b.Grow(len(s))
		for _, r := range s {
			if rep, ok := f.special[r]; ok {
				b.WriteString(rep)
				continue
			}
			b.WriteRune(r)
		}
		s = b.String()
	}
	// A Caser is stateful, so each call gets its own.
	return cases.Lower(f.tag).String(s)
}

// City folds a city name into its comparison key.
func City(raw string) string {
	return Turkish.Fold(strings.TrimSpace(raw))
}
