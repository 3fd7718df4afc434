// Package registry manages the known-supplier (vendor) list: validation,
// normalization, persistence and cache invalidation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parcabul/broker/internal/model"
	"github.com/parcabul/broker/internal/normalize"
	"github.com/parcabul/broker/internal/pipeline"
	"github.com/parcabul/broker/internal/store"
)

// Store is the vendor half of store.Store.
type Store interface {
	CreateVendor(ctx context.Context, v model.SupplierRecord) (*model.SupplierRecord, error)
	UpdateVendor(ctx context.Context, id int64, u model.SupplierUpdate) error
	DeleteVendor(ctx context.Context, id int64) error
	GetVendor(ctx context.Context, id int64) (*model.SupplierRecord, error)
	ListVendors(ctx context.Context, filter store.VendorFilter) ([]model.SupplierRecord, error)
}

// Invalidator drops cached directory entries.
type Invalidator interface {
	Invalidate(ctx context.Context, phones ...string) error
}

// VendorInput is a new vendor as submitted by an admin or a file.
type VendorInput struct {
	Name       string   `json:"name" yaml:"name" validate:"required,min=2"`
	Phone      string   `json:"phone" yaml:"phone" validate:"required,phone_digits"`
	City       string   `json:"city,omitempty" yaml:"city,omitempty"`
	Conditions []string `json:"supported_conditions,omitempty" yaml:"supported_conditions,omitempty"`
}

// VendorPatch is a partial update; nil fields are left alone.
type VendorPatch struct {
	Name       *string  `json:"name,omitempty" validate:"omitempty,min=2"`
	Phone      *string  `json:"phone,omitempty" validate:"omitempty,phone_digits"`
	City       *string  `json:"city,omitempty"`
	Conditions []string `json:"supported_conditions,omitempty"`
}

// Registry applies vendor changes.
type Registry struct {
	store Store
	cache Invalidator
	v     *validator.Validate
}

// New creates a Registry. cache may be nil.
func New(st Store, cache Invalidator) *Registry {
	v := validator.New()
	v.RegisterTagNameFunc(jsonName)
	if err := v.RegisterValidation("phone_digits", func(fl validator.FieldLevel) bool {
		return normalize.Phone(fl.Field().String()) != ""
	}); err != nil {
		panic(fmt.Sprintf("registry: register phone_digits: %v", err))
	}
	return &Registry{store: st, cache: cache, v: v}
}

// Create validates, normalizes and stores a vendor.
func (r *Registry) Create(ctx context.Context, in VendorInput) (*model.SupplierRecord, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := r.check(in); err != nil {
		return nil, err
	}

	rec, err := r.store.CreateVendor(ctx, model.SupplierRecord{
		Name:       in.Name,
		Phone:      normalize.Phone(in.Phone),
		City:       strings.TrimSpace(in.City),
		Conditions: Conditions(in.Conditions),
	})
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, rec.Phone)
	return rec, nil
}

// Update applies a patch. An empty patch is a validation error.
func (r *Registry) Update(ctx context.Context, id int64, p VendorPatch) error {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		p.Name = &name
	}
	if err := r.check(p); err != nil {
		return err
	}
	var u model.SupplierUpdate
	if p.Conditions != nil {
		u.Conditions = Conditions(p.Conditions)
	}
	u.Name = p.Name
	if p.Phone != nil {
		phone := normalize.Phone(*p.Phone)
		u.Phone = &phone
	}
	if p.City != nil {
		city := strings.TrimSpace(*p.City)
		u.City = &city
	}
	if u.IsEmpty() {
		return &pipeline.ValidationError{Fields: []pipeline.FieldError{{
			Rule: "required", Message: "no fields to update",
		}}}
	}

	prev, err := r.store.GetVendor(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.UpdateVendor(ctx, id, u); err != nil {
		return err
	}

	phones := []string{prev.Phone}
	if u.Phone != nil {
		phones = append(phones, *u.Phone)
	}
	r.invalidate(ctx, phones...)
	return nil
}

// Delete removes a vendor.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	prev, err := r.store.GetVendor(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.DeleteVendor(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, prev.Phone)
	return nil
}

// Get returns one vendor.
func (r *Registry) Get(ctx context.Context, id int64) (*model.SupplierRecord, error) {
	return r.store.GetVendor(ctx, id)
}

// List searches vendors by name, phone or city. The store clamps limit.
func (r *Registry) List(ctx context.Context, query string, limit int) ([]model.SupplierRecord, error) {
	return r.store.ListVendors(ctx, store.VendorFilter{Query: strings.TrimSpace(query), Limit: limit})
}

// Conditions canonicalizes supported-condition labels, dropping blanks and
// duplicates. Unknown labels are kept folded.
func Conditions(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := map[string]bool{}
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			c := normalize.Condition(part)
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) invalidate(ctx context.Context, phones ...string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, phones...); err != nil {
		zap.L().Warn("registry: cache invalidation failed",
			zap.Strings("phones", phones),
			zap.Error(err),
		)
	}
}

func (r *Registry) check(s any) error {
	err := r.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return eris.Wrap(err, "registry: validate")
	}
	out := &pipeline.ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, pipeline.FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: message(fe),
		})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "phone_digits":
		return fmt.Sprintf("%s must contain digits", fe.Field())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}

func jsonName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}
