package pipeline

import (
	"math"
	"sort"

	"github.com/parcabul/broker/internal/model"
)

// Rank sorts matches in place: known suppliers first, then ascending price
// with non-numeric prices last. Equal keys keep their catalog order.
func Rank(matches []model.EnrichedMatch) []model.EnrichedMatch {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.SupplierKnown != b.SupplierKnown {
			return a.SupplierKnown
		}
		return sortPrice(a) < sortPrice(b)
	})
	return matches
}

func sortPrice(m model.EnrichedMatch) float64 {
	if p, ok := m.Price.Float(); ok {
		return p
	}
	return math.Inf(1)
}
