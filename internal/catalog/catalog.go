// Package catalog queries the external part catalog for matches.
package catalog

import (
	"context"
	"fmt"

	"github.com/parcabul/broker/internal/model"
)

// Source searches the catalog by vehicle and part code.
type Source interface {
	Search(ctx context.Context, c model.Criteria) ([]model.CatalogMatch, error)
}

// Error is a failed catalog call. Detail carries the upstream response body
// or transport error text unchanged.
type Error struct {
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("catalog: status %d: %s", e.Status, e.Detail)
	}
	return "catalog: " + e.Detail
}

func (e *Error) Unwrap() error { return e.Err }
