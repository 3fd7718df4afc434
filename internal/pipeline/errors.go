package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/parcabul/broker/internal/catalog"
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError rejects input before any external call.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Message
	}
	return "pipeline: invalid input: " + strings.Join(parts, "; ")
}

// UpstreamError means the catalog call failed; the whole request fails.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return "pipeline: catalog: " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

// Status is the upstream HTTP status, or 0 for transport failures.
func (e *UpstreamError) Status() int {
	var ce *catalog.Error
	if errors.As(e.Err, &ce) {
		return ce.Status
	}
	return 0
}

// Detail is the upstream error text exactly as received.
func (e *UpstreamError) Detail() string {
	var ce *catalog.Error
	if errors.As(e.Err, &ce) {
		return ce.Detail
	}
	return e.Err.Error()
}

// ErrDirectoryDegraded is logged when the supplier lookup fails and every
// match is treated as coming from an unknown supplier. It is never returned.
var ErrDirectoryDegraded = eris.New("pipeline: directory lookup degraded")

// PersistenceError means the request could not be durably recorded, so it
// must not be reported as created.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("pipeline: persist (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
