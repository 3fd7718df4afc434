// Package pipeline turns part criteria into an enriched, filtered and ranked
// match set, and records submissions.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/parcabul/broker/internal/catalog"
	"github.com/parcabul/broker/internal/contact"
	"github.com/parcabul/broker/internal/directory"
	"github.com/parcabul/broker/internal/events"
	"github.com/parcabul/broker/internal/model"
	"github.com/parcabul/broker/internal/normalize"
	"github.com/parcabul/broker/internal/recorder"
)

// fallbackSupplierName labels a recipient with no name from either source.
const fallbackSupplierName = "Parçacı"

// Recorder durably stores a submission.
type Recorder interface {
	Record(ctx context.Context, hdr model.RequestRecord, matches []model.EnrichedMatch) (*model.RequestRecord, error)
}

// Config bounds the external calls.
type Config struct {
	CatalogTimeout   time.Duration
	DirectoryTimeout time.Duration
	DefaultCurrency  string
}

func (c Config) withDefaults() Config {
	if c.CatalogTimeout <= 0 {
		c.CatalogTimeout = 10 * time.Second
	}
	if c.DirectoryTimeout <= 0 {
		c.DirectoryTimeout = 2 * time.Second
	}
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = model.DefaultCurrency
	}
	return c
}

// Pipeline runs searches and submissions against injected collaborators.
type Pipeline struct {
	cfg      Config
	source   catalog.Source
	dir      directory.Directory
	recorder Recorder
	events   events.Publisher
	validate *Validator
}

// New creates a Pipeline. dir and pub may be nil.
func New(cfg Config, src catalog.Source, dir directory.Directory, rec Recorder, pub events.Publisher) *Pipeline {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Pipeline{
		cfg:      cfg.withDefaults(),
		source:   src,
		dir:      dir,
		recorder: rec,
		events:   pub,
		validate: NewValidator(),
	}
}

// SearchResult is the response to a search.
type SearchResult struct {
	Criteria          model.Criteria        `json:"criteria"`
	Filters           model.Filters         `json:"filters"`
	Summary           model.Summary         `json:"summary"`
	Matches           []model.EnrichedMatch `json:"matches"`
	DirectoryDegraded bool                  `json:"directory_degraded"`
}

// Recipient is one supplier to contact for a submission.
type Recipient struct {
	SupplierName string   `json:"supplier_name"`
	Phone        string   `json:"phone"`
	City         string   `json:"city,omitempty"`
	Condition    string   `json:"condition"`
	Price        *float64 `json:"price"`
	Link         string   `json:"contact_link,omitempty"`
}

// Submission is the response to a recorded request.
type Submission struct {
	Request    model.RequestRecord   `json:"request"`
	Filters    model.Filters         `json:"filters"`
	Scope      model.Scope           `json:"scope"`
	Summary    model.Summary         `json:"summary"`
	Matches    []model.EnrichedMatch `json:"matches"`
	Recipients []Recipient           `json:"recipients"`
}

// Search validates, queries the catalog, enriches, filters, ranks and
// aggregates. Nothing is persisted.
func (p *Pipeline) Search(ctx context.Context, in SearchInput) (*SearchResult, error) {
	if err := p.validate.Search(&in); err != nil {
		return nil, err
	}
	res, err := p.run(ctx, in)
	if err != nil {
		return nil, err
	}
	res.Summary = Aggregate(res.Matches, p.cfg.DefaultCurrency)
	return res, nil
}

// Submit runs the search, applies the scope, records the request and its
// matches, and builds contact links. If recording fails no result is
// returned.
func (p *Pipeline) Submit(ctx context.Context, in SubmitInput) (*Submission, error) {
	if err := p.validate.Submit(&in); err != nil {
		return nil, err
	}
	res, err := p.run(ctx, in.SearchInput)
	if err != nil {
		return nil, err
	}

	scope := in.Scope()
	matches := ApplyScope(res.Matches, scope)

	hdr := model.RequestRecord{
		CustomerName:  in.CustomerName,
		CustomerPhone: normalize.Phone(in.CustomerPhone),
		Criteria:      res.Criteria,
		Filters:       model.NewFilterSnapshot(res.Filters, scope),
	}
	stored, err := p.recorder.Record(ctx, hdr, matches)
	if err != nil {
		op := "record"
		var re *recorder.Error
		if errors.As(err, &re) {
			op = re.Op
		}
		return nil, &PersistenceError{Op: op, Err: err}
	}

	sub := &Submission{
		Request:    *stored,
		Filters:    res.Filters,
		Scope:      scope,
		Summary:    Aggregate(matches, p.cfg.DefaultCurrency),
		Matches:    matches,
		Recipients: recipients(stored.RequestID, res.Criteria, res.Filters, matches),
	}

	if err := p.events.PublishRequestCreated(ctx, events.NewRequestCreated(*stored, sub.Summary.Suppliers.Known)); err != nil {
		zap.L().Warn("pipeline: audit event not published",
			zap.String("request_id", stored.RequestID),
			zap.Error(err),
		)
	}
	return sub, nil
}

func (p *Pipeline) run(ctx context.Context, in SearchInput) (*SearchResult, error) {
	criteria := in.Criteria()
	filters := in.Filters()
	log := zap.L().With(
		zap.String("brand", criteria.Brand),
		zap.String("model", criteria.Model),
		zap.Int("year", criteria.Year),
		zap.String("part_code", criteria.PartCode),
	)

	cctx, cancel := context.WithTimeout(ctx, p.cfg.CatalogTimeout)
	raw, err := p.source.Search(cctx, criteria)
	cancel()
	if err != nil {
		log.Warn("pipeline: catalog search failed", zap.Error(err))
		return nil, &UpstreamError{Err: err}
	}

	dir, degraded := p.lookup(ctx, raw)
	matches := Rank(Filter(Enrich(raw, dir), filters))

	log.Info("pipeline: search complete",
		zap.Int("catalog", len(raw)),
		zap.Int("kept", len(matches)),
		zap.Bool("directory_degraded", degraded),
	)
	return &SearchResult{
		Criteria:          criteria,
		Filters:           filters,
		Matches:           matches,
		DirectoryDegraded: degraded,
	}, nil
}

// lookup resolves supplier phones in one batch. Failure degrades to an empty
// directory rather than failing the request.
func (p *Pipeline) lookup(ctx context.Context, raw []model.CatalogMatch) (map[string]model.SupplierRecord, bool) {
	phones := LookupPhones(raw)
	if p.dir == nil || len(phones) == 0 {
		return nil, false
	}

	dctx, cancel := context.WithTimeout(ctx, p.cfg.DirectoryTimeout)
	defer cancel()
	recs, err := p.dir.FindByPhones(dctx, phones)
	if err != nil {
		zap.L().Warn(ErrDirectoryDegraded.Error(),
			zap.Int("phones", len(phones)),
			zap.Error(err),
		)
		return nil, true
	}
	return recs, false
}

func recipients(requestID string, c model.Criteria, f model.Filters, matches []model.EnrichedMatch) []Recipient {
	msg := contact.Message{RequestID: requestID, Criteria: c, MinPrice: f.MinPrice}
	if f.City != nil {
		msg.City = *f.City
	}
	if f.Condition != nil {
		msg.Condition = *f.Condition
	}

	out := make([]Recipient, 0, len(matches))
	for _, m := range matches {
		name := m.SupplierName
		if m.Supplier != nil && m.Supplier.Name != "" {
			name = m.Supplier.Name
		}
		if name == "" {
			name = fallbackSupplierName
		}
		msg.PartName = m.PartName
		out = append(out, Recipient{
			SupplierName: name,
			Phone:        m.NormalizedPhone,
			City:         m.ResolvedCity,
			Condition:    normalize.Condition(m.Condition),
			Price:        m.Price.Ptr(),
			Link:         contact.Link(m.NormalizedPhone, msg),
		})
	}
	return out
}
