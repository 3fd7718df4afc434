package pipeline

import (
	"github.com/parcabul/broker/internal/model"
	"github.com/parcabul/broker/internal/normalize"
)

// LookupPhones returns the deduplicated normalized phones of the matches.
func LookupPhones(matches []model.CatalogMatch) []string {
	raw := make([]string, len(matches))
	for i, m := range matches {
		raw[i] = m.SupplierPhone
	}
	return normalize.Phones(raw)
}

// Enrich tags each match with its directory record. Catalog fields are
// copied unchanged; the directory city, when set, overrides the catalog city
// in ResolvedCity only.
func Enrich(matches []model.CatalogMatch, dir map[string]model.SupplierRecord) []model.EnrichedMatch {
	out := make([]model.EnrichedMatch, len(matches))
	for i, m := range matches {
		e := model.EnrichedMatch{
			CatalogMatch:    m,
			NormalizedPhone: normalize.Phone(m.SupplierPhone),
			ResolvedCity:    m.City,
		}
		if e.NormalizedPhone != "" {
			if rec, ok := dir[e.NormalizedPhone]; ok {
				rec := rec
				e.SupplierKnown = true
				e.Supplier = &rec
				if rec.City != "" {
					e.ResolvedCity = rec.City
				}
			}
		}
		out[i] = e
	}
	return out
}
