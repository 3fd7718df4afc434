package pipeline

import (
	"github.com/parcabul/broker/internal/model"
)

// ApplyScope narrows a ranked set to the submission scope. RecipientPhones
// must already be normalized; nil means no whitelist. Order is preserved.
func ApplyScope(matches []model.EnrichedMatch, s model.Scope) []model.EnrichedMatch {
	if s.RecipientPhones == nil && !s.OnlyKnownSuppliers {
		return matches
	}

	allowed := make(map[string]struct{}, len(s.RecipientPhones))
	for _, p := range s.RecipientPhones {
		allowed[p] = struct{}{}
	}

	out := make([]model.EnrichedMatch, 0, len(matches))
	for _, m := range matches {
		if s.RecipientPhones != nil {
			if _, ok := allowed[m.NormalizedPhone]; !ok {
				continue
			}
		}
		if s.OnlyKnownSuppliers && !m.SupplierKnown {
			continue
		}
		out = append(out, m)
	}
	return out
}
