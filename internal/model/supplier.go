package model

import "time"

// SupplierRecord is a known-supplier directory entry keyed by normalized phone.
type SupplierRecord struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	City       string    `json:"city,omitempty"`
	Conditions []string  `json:"supported_conditions"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SupplierUpdate carries a partial vendor update; nil fields are left alone.
type SupplierUpdate struct {
	Name       *string
	Phone      *string
	City       *string
	Conditions []string
}

// IsEmpty reports whether the update changes nothing.
func (u SupplierUpdate) IsEmpty() bool {
	return u.Name == nil && u.Phone == nil && u.City == nil && u.Conditions == nil
}

// EnrichedMatch is a catalog match merged with directory data.
type EnrichedMatch struct {
	CatalogMatch
	NormalizedPhone string          `json:"normalized_phone"`
	ResolvedCity    string          `json:"resolved_city"`
	SupplierKnown   bool            `json:"supplier_known"`
	Supplier        *SupplierRecord `json:"supplier"`
}
