package pipeline

import (
	"math"

	"github.com/parcabul/broker/internal/model"
	"github.com/parcabul/broker/internal/normalize"
)

// emptyBucket is the histogram key for a missing city or condition.
const emptyBucket = "-"

// Aggregate summarizes the final match set. Currency is taken from the first
// match, falling back to defaultCurrency.
func Aggregate(matches []model.EnrichedMatch, defaultCurrency string) model.Summary {
	s := model.Summary{
		Total:     len(matches),
		Currency:  defaultCurrency,
		City:      map[string]int{},
		Condition: map[string]int{},
	}
	if len(matches) > 0 && matches[0].Currency != "" {
		s.Currency = matches[0].Currency
	}

	var lo, hi, sum float64
	var n int
	for _, m := range matches {
		if m.SupplierKnown {
			s.Suppliers.Known++
		} else {
			s.Suppliers.Unknown++
		}

		s.City[bucket(normalize.City(m.ResolvedCity))]++
		s.Condition[bucket(normalize.Condition(m.Condition))]++

		p, ok := m.Price.Float()
		if !ok {
			continue
		}
		if n == 0 || p < lo {
			lo = p
		}
		if n == 0 || p > hi {
			hi = p
		}
		sum += p
		n++
	}

	if n > 0 {
		avg := math.Round(sum/float64(n)*100) / 100
		s.Price = model.PriceStats{Min: &lo, Max: &hi, Avg: &avg}
	}
	return s
}

func bucket(key string) string {
	if key == "" {
		return emptyBucket
	}
	return key
}
