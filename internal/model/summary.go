package model

// PriceStats summarizes numeric prices. All fields are nil for an empty set.
type PriceStats struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
	Avg *float64 `json:"avg"`
}

// SupplierCounts splits a match set by directory membership.
type SupplierCounts struct {
	Known   int `json:"known"`
	Unknown int `json:"unknown"`
}

// Summary holds the facet aggregation over a final match set.
type Summary struct {
	Total     int            `json:"total"`
	Currency  string         `json:"currency"`
	Price     PriceStats     `json:"price"`
	Suppliers SupplierCounts `json:"suppliers"`
	City      map[string]int `json:"city"`
	Condition map[string]int `json:"condition"`
}
