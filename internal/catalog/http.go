package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parcabul/broker/internal/model"
	"github.com/parcabul/broker/internal/resilience"
)

// DefaultTimeout bounds one catalog search including retries.
const DefaultTimeout = 10 * time.Second

// Option configures an HTTPSource.
type Option func(*HTTPSource)

// WithAPIKey sends the key as a bearer token.
func WithAPIKey(key string) Option {
	return func(s *HTTPSource) { s.apiKey = key }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *HTTPSource) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxAttempts enables retries of transient failures.
func WithMaxAttempts(n int) Option {
	return func(s *HTTPSource) { s.retry.MaxAttempts = n }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *HTTPSource) { s.http = hc }
}

// HTTPSource posts criteria to a remote catalog service.
type HTTPSource struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	retry   resilience.RetryPolicy
	breaker *resilience.Breaker
	http    *http.Client
}

// NewHTTPSource creates a catalog client for baseURL.
func NewHTTPSource(baseURL string, opts ...Option) *HTTPSource {
	s := &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
		retry:   resilience.RetryPolicy{MaxAttempts: 1},
		breaker: resilience.NewBreaker(resilience.BreakerConfig{Name: "catalog"}),
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search posts criteria to {base}/search. Any failure, including the
// breaker being open, is returned as *Error.
func (s *HTTPSource) Search(ctx context.Context, c model.Criteria) ([]model.CatalogMatch, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	matches, err := resilience.Call(ctx, s.breaker, func(ctx context.Context) ([]model.CatalogMatch, error) {
		return resilience.Retry(ctx, s.retry, "catalog.search", func(ctx context.Context) ([]model.CatalogMatch, error) {
			return s.search(ctx, c)
		})
	})
	if err != nil {
		var ce *Error
		if !errors.As(err, &ce) {
			ce = &Error{Detail: err.Error(), Err: err}
		}
		zap.L().Warn("catalog: search failed",
			zap.String("part_code", c.PartCode),
			zap.Int("status", ce.Status),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, ce
	}

	zap.L().Debug("catalog: search complete",
		zap.String("part_code", c.PartCode),
		zap.Int("matches", len(matches)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return matches, nil
}

func (s *HTTPSource) search(ctx context.Context, c model.Criteria) ([]model.CatalogMatch, error) {
	payload, err := json.Marshal(newSearchRequest(c))
	if err != nil {
		return nil, eris.Wrap(err, "catalog: marshal criteria")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "catalog: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, &Error{Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &Error{Status: resp.StatusCode, Detail: err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ce := &Error{Status: resp.StatusCode, Detail: strings.TrimSpace(string(body))}
		if resilience.TransientStatus(resp.StatusCode) {
			ce.Err = resilience.NewTransientError(eris.Errorf("catalog: status %d", resp.StatusCode), resp.StatusCode)
		}
		return nil, ce
	}

	matches, err := decodeMatches(body)
	if err != nil {
		return nil, &Error{Status: resp.StatusCode, Detail: err.Error(), Err: err}
	}
	return matches, nil
}
