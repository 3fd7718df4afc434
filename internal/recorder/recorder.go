// Package recorder persists submitted requests and their match snapshots.
package recorder

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parcabul/broker/internal/model"
	"github.com/parcabul/broker/internal/normalize"
)

// Write operations reported in Error.Op.
const (
	OpRequestID = "generate request id"
	OpWrite     = "insert request"
)

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Writer is the storage used by the recorder. RecordRequest must write the
// header and the rows atomically.
type Writer interface {
	RecordRequest(ctx context.Context, r model.RequestRecord, matches []model.MatchRecord) error
}

// Error reports which write failed. The request must be treated as not
// created.
type Error struct {
	Op        string
	RequestID string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("recorder: %s %s: %v", e.Op, e.RequestID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Recorder writes a request header together with its match rows.
type Recorder struct {
	w    Writer
	now  func() time.Time
	rand io.Reader
}

// New creates a Recorder backed by w.
func New(w Writer) *Recorder {
	return &Recorder{w: w, now: time.Now, rand: rand.Reader}
}

// NewRequestID returns REQ-<YYYYMMDD>-<6 chars of [A-Z0-9]>, dated in UTC.
func NewRequestID(now time.Time, src io.Reader) (string, error) {
	suffix := make([]byte, 0, 6)
	buf := make([]byte, 16)
	for len(suffix) < 6 {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", eris.Wrap(err, "recorder: read random")
		}
		for _, b := range buf {
			// 252 = 7*36; rejecting the tail keeps the draw uniform.
			if b >= 252 || len(suffix) == 6 {
				continue
			}
			suffix = append(suffix, idAlphabet[int(b)%len(idAlphabet)])
		}
	}
	return "REQ-" + now.UTC().Format("20060102") + "-" + string(suffix), nil
}

// Record assigns a request id and timestamp when absent, then writes the
// header and the rows in one unit. Collisions surface as a failed write;
// nothing is overwritten or retried.
func (r *Recorder) Record(ctx context.Context, hdr model.RequestRecord, matches []model.EnrichedMatch) (*model.RequestRecord, error) {
	now := r.now().UTC()
	if hdr.CreatedAt.IsZero() {
		hdr.CreatedAt = now
	}
	if hdr.RequestID == "" {
		id, err := NewRequestID(hdr.CreatedAt, r.rand)
		if err != nil {
			return nil, &Error{Op: OpRequestID, Err: err}
		}
		hdr.RequestID = id
	}
	hdr.MatchCount = len(matches)

	rows := MatchRecords(hdr.RequestID, matches, hdr.CreatedAt)
	if err := r.w.RecordRequest(ctx, hdr, rows); err != nil {
		zap.L().Error("recorder: request not recorded",
			zap.String("request_id", hdr.RequestID),
			zap.Int("rows", len(rows)),
			zap.Error(err),
		)
		return nil, &Error{Op: OpWrite, RequestID: hdr.RequestID, Err: err}
	}

	zap.L().Info("recorder: request recorded",
		zap.String("request_id", hdr.RequestID),
		zap.Int("matches", len(rows)),
	)
	return &hdr, nil
}

// MatchRecords snapshots enriched matches in rank order.
func MatchRecords(requestID string, matches []model.EnrichedMatch, at time.Time) []model.MatchRecord {
	rows := make([]model.MatchRecord, 0, len(matches))
	for i, m := range matches {
		row := model.MatchRecord{
			RequestID:     requestID,
			Position:      i,
			SupplierName:  m.SupplierName,
			SupplierPhone: m.NormalizedPhone,
			City:          m.ResolvedCity,
			Condition:     normalize.Condition(m.Condition),
			Price:         m.Price.Ptr(),
			Currency:      m.Currency,
			PartName:      m.PartName,
			StockCode:     m.StockCode,
			SupplierKnown: m.SupplierKnown,
			CreatedAt:     at,
		}
		if row.SupplierName == "" {
			row.SupplierName = "-"
		}
		if row.Currency == "" {
			row.Currency = model.DefaultCurrency
		}
		if m.Supplier != nil {
			id := m.Supplier.ID
			row.SupplierID = &id
		}
		rows = append(rows, row)
	}
	return rows
}
