package normalize

import "strings"

// Canonical condition labels.
const (
	ConditionUsed        = "çıkma"
	ConditionNew         = "sıfır"
	ConditionRefurbished = "yenilenmiş"
)

// conditionSynonyms maps folded spellings to their canonical label. ASCII
// capitals fold to a dotless ı under Turkish rules, so "CIKMA" arrives here
// as "cıkma".
var conditionSynonyms = map[string]string{
	"cikma":       ConditionUsed,
	"cıkma":       ConditionUsed,
	"çıkma":       ConditionUsed,
	"used":        ConditionUsed,
	"sifir":       ConditionNew,
	"sıfır":       ConditionNew,
	"new":         ConditionNew,
	"yenilenmis":  ConditionRefurbished,
	"yenılenmıs":  ConditionRefurbished,
	"yenilenmiş":  ConditionRefurbished,
	"yenılenmış":  ConditionRefurbished,
	"refurbished": ConditionRefurbished,
	"refurbıshed": ConditionRefurbished,
}

// Condition maps a raw condition label to its canonical form. Unknown labels
// come back folded.
func Condition(raw string) string {
	k := Turkish.Fold(strings.TrimSpace(raw))
	if c, ok := conditionSynonyms[k]; ok {
		return c
	}
	return k
}

// IsKnownCondition reports whether raw is one of the recognized spellings.
func IsKnownCondition(raw string) bool {
	_, ok := conditionSynonyms[Turkish.Fold(strings.TrimSpace(raw))]
	return ok
}

// ConditionSynonyms returns a copy of the synonym table.
func ConditionSynonyms() map[string]string {
	out := make(map[string]string, len(conditionSynonyms))
	for k, v := range conditionSynonyms {
		out[k] = v
	}
	return out
}
