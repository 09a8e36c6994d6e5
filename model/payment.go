package model

import (
	"time"

	"github.com/google/uuid"
)

// Payment status values. Transitions are one-directional except for the
// explicit refund of a completed payment. A failed payment is never mutated
// further; retrying creates a new Payment attempt.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
	PaymentStatusRefunded   = "refunded"
)

// Supported payment methods.
const (
	PaymentMethodPesapal = "pesapal"
	PaymentMethodDPO     = "dpo"
	PaymentMethodMpesa   = "mpesa"
	PaymentMethodCard    = "card"
	PaymentMethodCash    = "cash"
)

// DefaultCurrency is used when the caller does not specify one.
const DefaultCurrency = "UGX"

// ValidPaymentMethod reports whether method is one of the supported values.
func ValidPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodPesapal, PaymentMethodDPO, PaymentMethodMpesa,
		PaymentMethodCard, PaymentMethodCash:
		return true
	}
	return false
}

// ============================================================================
// DATABASE ENTITIES (Internal - GORM only, no JSON tags)
// ============================================================================

// Payment represents one payment attempt against a booking. Amount is pinned
// to the booking's TotalCost at creation. At most one payment per booking is
// open (pending, processing or completed) at any time.
type Payment struct {
	ID                   uuid.UUID `gorm:"type:uuid;primary_key"`
	BookingID            uuid.UUID `gorm:"type:uuid;not null;index"`
	Method               string    `gorm:"type:varchar(20);not null"`
	Amount               float64   `gorm:"type:decimal(10,2);not null"`
	Currency             string    `gorm:"type:varchar(3);not null;default:'UGX'"`
	GatewayTransactionID string    `gorm:"type:varchar(255);index"`
	GatewayReference     string    `gorm:"type:varchar(255)"`
	Status               string    `gorm:"type:varchar(20);not null;default:'pending';index"`
	FailureReason        string    `gorm:"type:text"`
	InitiatedAt          time.Time `gorm:"default:CURRENT_TIMESTAMP"`
	CompletedAt          *time.Time
}

// TableName sets the table name for GORM
func (Payment) TableName() string {
	return "payments"
}

// IsOpen reports whether this payment blocks creation of a new attempt.
func (p *Payment) IsOpen() bool {
	switch p.Status {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted:
		return true
	}
	return false
}

// ============================================================================
// API DATA TRANSFER OBJECTS (External - JSON tags for HTTP)
// ============================================================================

// InitiatePaymentRequest represents the API request to start a payment
type InitiatePaymentRequest struct {
	Method string `json:"method" binding:"required"`
}

// FailPaymentRequest represents the mock-gateway request to fail a payment
type FailPaymentRequest struct {
	Reason string `json:"reason,omitempty"`
}

// PaymentResponse represents a payment in API responses
type PaymentResponse struct {
	PaymentID            uuid.UUID  `json:"payment_id"`
	BookingID            uuid.UUID  `json:"booking_id"`
	Method               string     `json:"method"`
	Amount               float64    `json:"amount"`
	Currency             string     `json:"currency"`
	Status               string     `json:"status"`
	GatewayTransactionID string     `json:"gateway_transaction_id,omitempty"`
	FailureReason        string     `json:"failure_reason,omitempty"`
	InitiatedAt          time.Time  `json:"initiated_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

// GatewayWebhookRequest represents the inbound payment-gateway callback.
// Amount is optional; when present it is checked against the pinned amount.
type GatewayWebhookRequest struct {
	TransactionID string   `json:"transaction_id" binding:"required"`
	Status        string   `json:"status" binding:"required"`
	Reference     string   `json:"reference,omitempty"`
	Amount        *float64 `json:"amount,omitempty"`
	Reason        string   `json:"reason,omitempty"`
}

// ============================================================================
// CONVERSION METHODS
// ============================================================================

// ToPaymentResponse converts a Payment entity to an API response
func (p *Payment) ToPaymentResponse() PaymentResponse {
	return PaymentResponse{
		PaymentID:            p.ID,
		BookingID:            p.BookingID,
		Method:               p.Method,
		Amount:               p.Amount,
		Currency:             p.Currency,
		Status:               p.Status,
		GatewayTransactionID: p.GatewayTransactionID,
		FailureReason:        p.FailureReason,
		InitiatedAt:          p.InitiatedAt,
		CompletedAt:          p.CompletedAt,
	}
}
