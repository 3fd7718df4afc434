// Package directory resolves supplier phone numbers to known-supplier records.
package directory

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/parcabul/broker/internal/model"
	"github.com/parcabul/broker/internal/normalize"
)

// Directory finds all supplier records whose normalized phone is in the
// given set. Phones with no entry are absent from the result.
type Directory interface {
	FindByPhones(ctx context.Context, phones []string) (map[string]model.SupplierRecord, error)
}

// VendorFinder is the store query backing a StoreDirectory.
type VendorFinder interface {
	FindVendorsByPhones(ctx context.Context, phones []string) ([]model.SupplierRecord, error)
}

// StoreDirectory answers lookups with one batched store query.
type StoreDirectory struct {
	finder VendorFinder
}

// NewStoreDirectory wraps a vendor finder.
func NewStoreDirectory(f VendorFinder) *StoreDirectory {
	return &StoreDirectory{finder: f}
}

// FindByPhones normalizes and dedupes phones, then issues a single query.
func (d *StoreDirectory) FindByPhones(ctx context.Context, phones []string) (map[string]model.SupplierRecord, error) {
	keys := normalize.Phones(phones)
	out := make(map[string]model.SupplierRecord, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	recs, err := d.finder.FindVendorsByPhones(ctx, keys)
	if err != nil {
		return nil, eris.Wrap(err, "directory: find by phones")
	}
	for _, r := range recs {
		if p := normalize.Phone(r.Phone); p != "" {
			out[p] = r
		}
	}
	return out, nil
}
