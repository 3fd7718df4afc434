package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/parcabul/broker/internal/model"
	"github.com/parcabul/broker/internal/pipeline"
)

const previewNote = "Preview only: nothing was sent to suppliers."

type criteriaEcho struct {
	model.Criteria
	City      *string  `json:"city"`
	Condition *string  `json:"condition"`
	MinPrice  *float64 `json:"min_price"`
	MaxPrice  *float64 `json:"max_price"`
}

func echo(c model.Criteria, f model.Filters) criteriaEcho {
	return criteriaEcho{Criteria: c, City: f.City, Condition: f.Condition, MinPrice: f.MinPrice, MaxPrice: f.MaxPrice}
}

type searchMeta struct {
	Total             int                  `json:"total"`
	Currency          string               `json:"currency"`
	Price             model.PriceStats     `json:"price"`
	Suppliers         model.SupplierCounts `json:"suppliers"`
	DirectoryDegraded bool                 `json:"directory_degraded,omitempty"`
}

type searchFacets struct {
	City         map[string]int `json:"city"`
	Condition    map[string]int `json:"condition"`
	PriceOverall struct {
		Min *float64 `json:"min"`
		Max *float64 `json:"max"`
	} `json:"price_overall"`
}

type searchResponse struct {
	OK       bool                  `json:"ok"`
	Criteria criteriaEcho          `json:"criteria"`
	Meta     searchMeta            `json:"meta"`
	Facets   searchFacets          `json:"facets"`
	Matches  []model.EnrichedMatch `json:"matches"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var in pipeline.SearchInput
	if !decode(w, r, &in) {
		return
	}

	res, err := s.broker.Search(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := searchResponse{
		OK:       true,
		Criteria: echo(res.Criteria, res.Filters),
		Meta: searchMeta{
			Total:             res.Summary.Total,
			Currency:          res.Summary.Currency,
			Price:             res.Summary.Price,
			Suppliers:         res.Summary.Suppliers,
			DirectoryDegraded: res.DirectoryDegraded,
		},
		Facets:  searchFacets{City: res.Summary.City, Condition: res.Summary.Condition},
		Matches: res.Matches,
	}
	out.Facets.PriceOverall.Min = res.Summary.Price.Min
	out.Facets.PriceOverall.Max = res.Summary.Price.Max
	if out.Matches == nil {
		out.Matches = []model.EnrichedMatch{}
	}
	writeJSON(w, http.StatusOK, out)
}

// phoneList accepts either a JSON array of phones or one comma-separated
// string.
type phoneList []string

func (p *phoneList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*p = strings.Split(one, ",")
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*p = many
	if *p == nil {
		*p = phoneList{}
	}
	return nil
}

type submitRequest struct {
	pipeline.SubmitInput
	RecipientPhones phoneList `json:"recipient_phones"`
}

type customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type submitResponse struct {
	OK        bool                 `json:"ok"`
	RequestID string               `json:"request_id"`
	Customer  customer             `json:"customer"`
	Criteria  criteriaEcho         `json:"criteria"`
	Count     int                  `json:"count"`
	ToSend    []pipeline.Recipient `json:"to_send"`
	Summary   model.Summary        `json:"summary"`
	Note      string               `json:"note"`
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decode(w, r, &req) {
		return
	}
	in := req.SubmitInput
	if req.RecipientPhones != nil {
		in.RecipientPhones = []string(req.RecipientPhones)
	}

	sub, err := s.broker.Submit(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	toSend := sub.Recipients
	if toSend == nil {
		toSend = []pipeline.Recipient{}
	}
	writeJSON(w, http.StatusOK, submitResponse{
		OK:        true,
		RequestID: sub.Request.RequestID,
		Customer:  customer{Name: sub.Request.CustomerName, Phone: sub.Request.CustomerPhone},
		Criteria:  echo(sub.Request.Criteria, sub.Filters),
		Count:     len(toSend),
		ToSend:    toSend,
		Summary:   sub.Summary,
		Note:      previewNote,
	})
}
