// Package events publishes audit events for recorded requests.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/parcabul/broker/internal/model"
)

// TypeRequestCreated is the event type emitted after a request is recorded.
const TypeRequestCreated = "request.created"

// RequestCreated describes a durably recorded request.
type RequestCreated struct {
	Type       string               `json:"type"`
	RequestID  string               `json:"request_id"`
	Criteria   model.Criteria       `json:"criteria"`
	Filters    model.FilterSnapshot `json:"filters"`
	MatchCount int                  `json:"match_count"`
	Known      int                  `json:"known_suppliers"`
	CreatedAt  time.Time            `json:"created_at"`
}

// NewRequestCreated builds the event for a stored header.
func NewRequestCreated(r model.RequestRecord, known int) RequestCreated {
	return RequestCreated{
		Type:       TypeRequestCreated,
		RequestID:  r.RequestID,
		Criteria:   r.Criteria,
		Filters:    r.Filters,
		MatchCount: r.MatchCount,
		Known:      known,
		CreatedAt:  r.CreatedAt,
	}
}

// Publisher emits request events.
type Publisher interface {
	PublishRequestCreated(ctx context.Context, e RequestCreated) error
	Close() error
}

// Nop discards events. Used when no brokers are configured.
type Nop struct{}

func (Nop) PublishRequestCreated(context.Context, RequestCreated) error { return nil }
func (Nop) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events as JSON messages keyed by request id.
type Kafka struct {
	w messageWriter
}

// NewKafka creates a publisher writing to topic on the given brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

// PublishRequestCreated writes one message. The key keeps all events for a
// request on one partition.
func (k *Kafka) PublishRequestCreated(ctx context.Context, e RequestCreated) error {
	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "events: marshal")
	}
	msg := kafka.Message{
		Key:   []byte(e.RequestID),
		Value: data,
		Time:  e.CreatedAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return eris.Wrapf(err, "events: publish %s", e.RequestID)
	}
	zap.L().Debug("events: published", zap.String("type", e.Type), zap.String("request_id", e.RequestID))
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return eris.Wrap(k.w.Close(), "events: close")
}
