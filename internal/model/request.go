package model

import "time"

// FilterSnapshot is the audit copy of every refinement applied to a request.
type FilterSnapshot struct {
	City               *string  `json:"city"`
	Condition          *string  `json:"condition"`
	MinPrice           *float64 `json:"min_price"`
	MaxPrice           *float64 `json:"max_price"`
	RecipientPhones    []string `json:"recipient_phones"`
	OnlyKnownSuppliers bool     `json:"only_known_suppliers"`
}

// NewFilterSnapshot combines filters and scope.
func NewFilterSnapshot(f Filters, s Scope) FilterSnapshot {
	return FilterSnapshot{
		City:               f.City,
		Condition:          f.Condition,
		MinPrice:           f.MinPrice,
		MaxPrice:           f.MaxPrice,
		RecipientPhones:    s.RecipientPhones,
		OnlyKnownSuppliers: s.OnlyKnownSuppliers,
	}
}

// RequestRecord is the immutable header of one submitted request.
type RequestRecord struct {
	RequestID     string         `json:"request_id"`
	CustomerName  string         `json:"customer_name"`
	CustomerPhone string         `json:"customer_phone"`
	Criteria      Criteria       `json:"criteria"`
	Filters       FilterSnapshot `json:"filters"`
	MatchCount    int            `json:"match_count"`
	CreatedAt     time.Time      `json:"created_at"`
}

// MatchRecord is the persisted snapshot of one enriched match.
type MatchRecord struct {
	ID            string    `json:"id"`
	RequestID     string    `json:"request_id"`
	Position      int       `json:"position"`
	SupplierName  string    `json:"supplier_name"`
	SupplierPhone string    `json:"supplier_phone"`
	City          string    `json:"city,omitempty"`
	Condition     string    `json:"condition"`
	Price         *float64  `json:"price"`
	Currency      string    `json:"currency"`
	PartName      string    `json:"part_name,omitempty"`
	StockCode     string    `json:"stock_code,omitempty"`
	SupplierKnown bool      `json:"supplier_known"`
	SupplierID    *int64    `json:"supplier_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// RequestDetail is a request header with its persisted matches.
type RequestDetail struct {
	Request RequestRecord `json:"request"`
	Matches []MatchRecord `json:"matches"`
}
