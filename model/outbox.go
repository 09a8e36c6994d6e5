package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification event types relayed to the dispatcher topic.
const (
	EventBookingCreated   = "booking.created"
	EventBookingCancelled = "booking.cancelled"
	EventBookingRefunded  = "booking.refunded"
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
)

// ============================================================================
// DATABASE ENTITIES (Internal - GORM only, no JSON tags)
// ============================================================================

// OutboxEvent is appended in the same transaction as the state transition it
// describes, then relayed to the notification topic by the outbox worker.
// Delivery is at-least-once; consumers must tolerate duplicates.
type OutboxEvent struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	EventType   string    `gorm:"type:varchar(40);not null;index"`
	Payload     []byte    `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time `gorm:"default:CURRENT_TIMESTAMP;index"`
	PublishedAt *time.Time `gorm:"index"`
}

// TableName sets the table name for GORM
func (OutboxEvent) TableName() string {
	return "outbox_events"
}

// NewOutboxEvent marshals payload and wraps it as an unpublished event.
func NewOutboxEvent(eventType string, payload interface{}) (*OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   data,
	}, nil
}

// ============================================================================
// NOTIFICATION PAYLOADS (JSON - consumed by the notification dispatcher)
// ============================================================================

// BookingEventPayload carries booking data for booking.* notifications
type BookingEventPayload struct {
	BookingID     uuid.UUID `json:"booking_id"`
	ReferenceCode string    `json:"reference_code"`
	TouristID     uuid.UUID `json:"tourist_id"`
	TourID        uuid.UUID `json:"tour_id"`
	SlotDate      string    `json:"slot_date"`
	PartySize     int       `json:"party_size"`
	TotalCost     float64   `json:"total_cost"`
	ContactEmail  string    `json:"contact_email"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// PaymentEventPayload carries payment data for payment.* notifications
type PaymentEventPayload struct {
	PaymentID     uuid.UUID `json:"payment_id"`
	BookingID     uuid.UUID `json:"booking_id"`
	ReferenceCode string    `json:"reference_code"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Method        string    `json:"method"`
	ContactEmail  string    `json:"contact_email"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NotificationMessage is the envelope written to the notification topic.
type NotificationMessage struct {
	EventID   uuid.UUID       `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	EmittedAt time.Time       `json:"emitted_at"`
}
