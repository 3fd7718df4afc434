package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DefaultCurrency is used when a catalog match carries no currency.
const DefaultCurrency = "TRY"

// Criteria is the required vehicle/part search key sent to the catalog.
type Criteria struct {
	Brand    string `json:"brand" yaml:"brand"`
	Model    string `json:"model" yaml:"model"`
	Year     int    `json:"year" yaml:"year"`
	PartCode string `json:"part_code" yaml:"part_code"`
}

// Filters narrows an enriched match set. Nil fields are not applied.
type Filters struct {
	City      *string  `json:"city"`
	Condition *string  `json:"condition"`
	MinPrice  *float64 `json:"min_price"`
	MaxPrice  *float64 `json:"max_price"`
}

// IsEmpty reports whether no filter is set.
func (f Filters) IsEmpty() bool {
	return f.City == nil && f.Condition == nil && f.MinPrice == nil && f.MaxPrice == nil
}

// HasPriceBound reports whether either price bound is set.
func (f Filters) HasPriceBound() bool {
	return f.MinPrice != nil || f.MaxPrice != nil
}

// Scope holds submission-only refinements applied after ranking.
type Scope struct {
	// RecipientPhones is a normalized whitelist; nil means no whitelist.
	RecipientPhones    []string `json:"recipient_phones"`
	OnlyKnownSuppliers bool     `json:"only_known_suppliers"`
}

// CatalogMatch is one raw result from the catalog source. It is untrusted
// input: every field may be empty.
type CatalogMatch struct {
	PartName           string   `json:"part_name"`
	OEM                string   `json:"oem"`
	StockCode          string   `json:"stock_code"`
	CompatibleVehicles []string `json:"compatible_vehicles"`
	Price              Price    `json:"price"`
	Currency           string   `json:"currency"`
	Condition          string   `json:"condition"`
	City               string   `json:"city"`
	SupplierName       string   `json:"supplier_name"`
	SupplierPhone      string   `json:"supplier_phone"`
	ShippingDays       *int     `json:"shipping_days"`
}

// Price keeps the catalog's raw price value untouched and exposes a numeric
// view of it. JSON numbers and numeric strings are numeric; anything else
// (missing, null, text, booleans) is not.
type Price struct {
	raw json.RawMessage
}

// NewPrice returns a numeric price.
func NewPrice(v float64) Price {
	return Price{raw: json.RawMessage(strconv.FormatFloat(v, 'f', -1, 64))}
}

// RawPrice wraps an arbitrary JSON value as a price.
func RawPrice(raw string) Price {
	return Price{raw: json.RawMessage(raw)}
}

// Float returns the numeric value and whether the price is a finite number.
func (p Price) Float() (float64, bool) {
	raw := bytes.TrimSpace(p.raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Ptr returns the numeric value as a pointer, nil when not numeric.
func (p Price) Ptr() *float64 {
	f, ok := p.Float()
	if !ok {
		return nil
	}
	return &f
}

// MarshalJSON emits the raw value, or null when absent.
func (p Price) MarshalJSON() ([]byte, error) {
	if len(bytes.TrimSpace(p.raw)) == 0 {
		return []byte("null"), nil
	}
	return p.raw, nil
}

// UnmarshalJSON stores a copy of the raw value.
func (p *Price) UnmarshalJSON(data []byte) error {
	p.raw = append(p.raw[:0], data...)
	return nil
}
