package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Lifecycle event types emitted by the scheduling engine.
const (
	TypeBookingCreated       = "booking.created"
	TypeBookingUpdated       = "booking.updated"
	TypeBookingConfirmed     = "booking.confirmed"
	TypeBookingCancelled     = "booking.cancelled"
	TypeBookingCheckedIn     = "booking.checked_in"
	TypeBookingDispatched    = "booking.dispatched"
	TypeBookingCompleted     = "booking.completed"
	TypeBookingNoShow        = "booking.no_show"
	TypeWaitlistOfferSent    = "waitlist.offer_sent"
	TypeWaitlistOfferAccept  = "waitlist.offer_accepted"
	TypeWaitlistOfferDecline = "waitlist.offer_declined"
	TypeWaitlistOfferExpired = "waitlist.offer_expired"
)

// Event is the wire format for lifecycle notifications. Payload carries the
// entity snapshot at the time of the transition.
type Event struct {
	Type           string          `json:"type"`
	OrganizationID string          `json:"organization_id"`
	EntityID       string          `json:"entity_id"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an Event, marshalling the payload snapshot.
func NewEvent(eventType, orgID, entityID string, payload any) (Event, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal event payload: %w", err)
		}
		raw = data
	}
	return Event{
		Type:           eventType,
		OrganizationID: orgID,
		EntityID:       entityID,
		OccurredAt:     time.Now().UTC(),
		Payload:        raw,
	}, nil
}

// Producer publishes events to Kafka.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return &Producer{writer: writer, topic: topic}
}

func (p *Producer) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.EntityID),
		Value: data,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event to kafka: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
