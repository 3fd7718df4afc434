package pipeline

import (
	"github.com/parcabul/broker/internal/model"
	"github.com/parcabul/broker/internal/normalize"
)

// Filter keeps matches satisfying every set filter. City and condition
// values are normalized here, so raw user input is accepted. A match without
// a numeric price is dropped whenever either price bound is set.
func Filter(matches []model.EnrichedMatch, f model.Filters) []model.EnrichedMatch {
	if f.IsEmpty() {
		return matches
	}

	var city, cond string
	if f.City != nil {
		city = normalize.City(*f.City)
	}
	if f.Condition != nil {
		cond = normalize.Condition(*f.Condition)
	}

	out := make([]model.EnrichedMatch, 0, len(matches))
	for _, m := range matches {
		if f.City != nil && normalize.City(m.ResolvedCity) != city {
			continue
		}
		if f.Condition != nil && normalize.Condition(m.Condition) != cond {
			continue
		}
		if f.HasPriceBound() {
			p, ok := m.Price.Float()
			if !ok {
				continue
			}
			if f.MinPrice != nil && p < *f.MinPrice {
				continue
			}
			if f.MaxPrice != nil && p > *f.MaxPrice {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}
