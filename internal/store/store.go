package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/parcabul/broker/internal/model"
)

var (
	// ErrNotFound is returned when a vendor or request does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrDuplicate is returned when an insert violates a uniqueness constraint
	// (request id, vendor phone). Writes are never silently merged.
	ErrDuplicate = eris.New("store: duplicate key")
)

// VendorFilter specifies criteria for listing vendors.
type VendorFilter struct {
	Query string `json:"q,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// RequestFilter specifies criteria for listing recorded requests.
type RequestFilter struct {
	Limit int `json:"limit,omitempty"`
}

// Store defines the persistence interface for the broker.
type Store interface {
	// Vendors
	CreateVendor(ctx context.Context, v model.SupplierRecord) (*model.SupplierRecord, error)
	UpdateVendor(ctx context.Context, id int64, u model.SupplierUpdate) error
	DeleteVendor(ctx context.Context, id int64) error
	GetVendor(ctx context.Context, id int64) (*model.SupplierRecord, error)
	ListVendors(ctx context.Context, filter VendorFilter) ([]model.SupplierRecord, error)
	FindVendorsByPhones(ctx context.Context, phones []string) ([]model.SupplierRecord, error)

	// Requests
	InsertRequest(ctx context.Context, r model.RequestRecord) error
	InsertMatches(ctx context.Context, requestID string, matches []model.MatchRecord) error
	RecordRequest(ctx context.Context, r model.RequestRecord, matches []model.MatchRecord) error
	GetRequest(ctx context.Context, requestID string) (*model.RequestRecord, error)
	ListMatches(ctx context.Context, requestID string) ([]model.MatchRecord, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]model.RequestRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func vendorLimit(n int) int {
	switch {
	case n <= 0:
		return 50
	case n > 200:
		return 200
	default:
		return n
	}
}

func requestLimit(n int) int {
	switch {
	case n <= 0:
		return 20
	case n > 100:
		return 100
	default:
		return n
	}
}
