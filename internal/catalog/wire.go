package catalog

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/parcabul/broker/internal/model"
)

// searchRequest is the body posted to {base}/search.
type searchRequest struct {
	Brand    string `json:"marka"`
	Model    string `json:"model"`
	Year     int    `json:"yil"`
	PartCode string `json:"parcaKodu"`
}

func newSearchRequest(c model.Criteria) searchRequest {
	return searchRequest{Brand: c.Brand, Model: c.Model, Year: c.Year, PartCode: c.PartCode}
}

// wireMatch is one upstream result as the catalog service spells it.
type wireMatch struct {
	PartName     flexString  `json:"parcaAdi"`
	OEM          flexString  `json:"oem"`
	StockCode    flexString  `json:"stokKodu"`
	Vehicles     flexStrings `json:"aracUyumluluk"`
	Price        model.Price `json:"fiyatTL"`
	Currency     flexString  `json:"doviz"`
	Condition    flexString  `json:"durum"`
	City         flexString  `json:"sehir"`
	Supplier     flexString  `json:"tedarikci"`
	Phone        flexString  `json:"telefon"`
	ShippingDays flexInt     `json:"kargoSuresiGun"`
}

func (w wireMatch) toModel() model.CatalogMatch {
	return model.CatalogMatch{
		PartName:           string(w.PartName),
		OEM:                string(w.OEM),
		StockCode:          string(w.StockCode),
		CompatibleVehicles: []string(w.Vehicles),
		Price:              w.Price,
		Currency:           string(w.Currency),
		Condition:          string(w.Condition),
		City:               string(w.City),
		SupplierName:       string(w.Supplier),
		SupplierPhone:      string(w.Phone),
		ShippingDays:       w.ShippingDays.ptr(),
	}
}

// decodeMatches accepts either {"matches": [...]} or a bare array.
func decodeMatches(body []byte) ([]model.CatalogMatch, error) {
	body = bytes.TrimSpace(body)
	var raw []wireMatch
	switch {
	case len(body) == 0:
		return nil, eris.New("catalog: empty response")
	case body[0] == '[':
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, eris.Wrap(err, "catalog: decode matches")
		}
	case body[0] == '{':
		var env struct {
			Matches *[]wireMatch `json:"matches"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, eris.Wrap(err, "catalog: decode envelope")
		}
		if env.Matches == nil {
			return nil, eris.New("catalog: response has no matches field")
		}
		raw = *env.Matches
	default:
		return nil, eris.New("catalog: unexpected response shape")
	}

	out := make([]model.CatalogMatch, 0, len(raw))
	for _, w := range raw {
		out = append(out, w.toModel())
	}
	return out, nil
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		*f = flexString(b)
	}
	return nil
}

// flexStrings accepts an array of scalars or a single scalar.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var items []flexString
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		out := make([]string, 0, len(items))
		for _, s := range items {
			if s != "" {
				out = append(out, string(s))
			}
		}
		*f = out
		return nil
	}
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		*f = nil
	} else {
		*f = []string{string(s)}
	}
	return nil
}

// flexInt accepts an integer, a numeric string or null. Anything else is
// treated as absent.
type flexInt struct {
	v  int
	ok bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(s)))
	if err != nil {
		*f = flexInt{}
		return nil
	}
	*f = flexInt{v: n, ok: true}
	return nil
}

func (f flexInt) ptr() *int {
	if !f.ok {
		return nil
	}
	v := f.v
	return &v
}
