package pipeline

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/parcabul/broker/internal/model"
	"github.com/parcabul/broker/internal/normalize"
)

const minYear = 1980

// SearchInput is a raw search request.
type SearchInput struct {
	Brand     string   `json:"brand" yaml:"brand" validate:"required,min=2"`
	Model     string   `json:"model" yaml:"model" validate:"required,min=1"`
	Year      int      `json:"year" yaml:"year" validate:"required,vehicle_year"`
	PartCode  string   `json:"part_code" yaml:"part_code" validate:"required,min=3"`
	City      *string  `json:"city,omitempty" yaml:"city,omitempty" validate:"omitempty,min=2"`
	Condition *string  `json:"condition,omitempty" yaml:"condition,omitempty" validate:"omitempty,condition"`
	MinPrice  *float64 `json:"min_price,omitempty" yaml:"min_price,omitempty" validate:"omitempty,gte=0"`
	MaxPrice  *float64 `json:"max_price,omitempty" yaml:"max_price,omitempty" validate:"omitempty,gte=0"`
}

// SubmitInput is a raw submission: customer details, search and scope.
type SubmitInput struct {
	CustomerName       string   `json:"customer_name" yaml:"customer_name" validate:"required,min=2"`
	CustomerPhone      string   `json:"customer_phone" yaml:"customer_phone" validate:"required,min=8"`
	SearchInput        `yaml:",inline"`
	RecipientPhones    []string `json:"recipient_phones,omitempty" yaml:"recipient_phones,omitempty"`
	OnlyKnownSuppliers bool     `json:"only_known_suppliers,omitempty" yaml:"only_known_suppliers,omitempty"`
}

// Criteria returns the catalog search key.
func (in SearchInput) Criteria() model.Criteria {
	return model.Criteria{Brand: in.Brand, Model: in.Model, Year: in.Year, PartCode: in.PartCode}
}

// Filters returns normalized filters: city folded, condition canonical.
func (in SearchInput) Filters() model.Filters {
	f := model.Filters{MinPrice: in.MinPrice, MaxPrice: in.MaxPrice}
	if in.City != nil {
		c := normalize.City(*in.City)
		f.City = &c
	}
	if in.Condition != nil {
		c := normalize.Condition(*in.Condition)
		f.Condition = &c
	}
	return f
}

// Scope returns the normalized recipient whitelist. An empty list after
// normalization still counts as a whitelist that matches nothing.
func (in SubmitInput) Scope() model.Scope {
	s := model.Scope{OnlyKnownSuppliers: in.OnlyKnownSuppliers}
	if in.RecipientPhones != nil {
		var raw []string
		for _, p := range in.RecipientPhones {
			raw = append(raw, normalize.SplitPhones(p)...)
		}
		s.RecipientPhones = normalize.Phones(raw)
		if s.RecipientPhones == nil {
			s.RecipientPhones = []string{}
		}
	}
	return s
}

func (in *SearchInput) trim() {
	in.Brand = strings.TrimSpace(in.Brand)
	in.Model = strings.TrimSpace(in.Model)
	in.PartCode = strings.TrimSpace(in.PartCode)
	if in.City != nil {
		c := strings.TrimSpace(*in.City)
		in.City = &c
	}
	if in.Condition != nil {
		c := strings.TrimSpace(*in.Condition)
		in.Condition = &c
	}
}

// Validator checks inputs with go-playground/validator.
type Validator struct {
	v   *validator.Validate
	now func() time.Time
}

// NewValidator registers the vehicle_year and condition rules.
func NewValidator() *Validator {
	val := &Validator{v: validator.New(validator.WithRequiredStructEnabled()), now: time.Now}
	val.v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(val.v, "vehicle_year", func(fl validator.FieldLevel) bool {
		y := int(fl.Field().Int())
		return y >= minYear && y <= val.now().Year()+1
	})
	mustRegister(val.v, "condition", func(fl validator.FieldLevel) bool {
		return normalize.IsKnownCondition(fl.Field().String())
	})
	return val
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("pipeline: register %q: %v", tag, err))
	}
}

// Search trims and validates a search input in place.
func (val *Validator) Search(in *SearchInput) error {
	in.trim()
	return val.check(in)
}

// Submit trims and validates a submission in place.
func (val *Validator) Submit(in *SubmitInput) error {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerPhone = strings.TrimSpace(in.CustomerPhone)
	in.SearchInput.trim()
	return val.check(in)
}

func (val *Validator) check(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: []FieldError{{Rule: "invalid", Message: err.Error()}}}
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: val.message(fe),
		})
	}
	return out
}

func (val *Validator) message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	case "vehicle_year":
		return fmt.Sprintf("%s must be between %d and %d", fe.Field(), minYear, val.now().Year()+1)
	case "condition":
		return fmt.Sprintf("%s must be one of çıkma, sıfır, yenilenmiş", fe.Field())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}
