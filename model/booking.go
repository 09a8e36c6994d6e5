package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Booking status values. Cancelled, completed and refunded are terminal.
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusCompleted = "completed"
	BookingStatusRefunded  = "refunded"
)

// ============================================================================
// DATABASE ENTITIES (Internal - GORM only, no JSON tags)
// ============================================================================

// Booking represents the database model for bookings. UnitPrice and TotalCost
// are pinned at creation time and never recomputed, regardless of later tour
// price changes.
type Booking struct {
	ID                  uuid.UUID `gorm:"type:uuid;primary_key"`
	SlotID              uuid.UUID `gorm:"type:uuid;not null;index"`
	TourID              uuid.UUID `gorm:"type:uuid;not null;index"`
	TouristID           uuid.UUID `gorm:"type:uuid;not null;index"`
	PartySize           int       `gorm:"not null"`
	UnitPrice           float64   `gorm:"type:decimal(10,2);not null"`
	TotalCost           float64   `gorm:"type:decimal(10,2);not null"`
	Status              string    `gorm:"type:varchar(20);not null;default:'pending';index"`
	ContactEmail        string    `gorm:"type:varchar(255);not null"`
	ContactPhone        string    `gorm:"type:varchar(20)"`
	SpecialRequirements string    `gorm:"type:text"`
	CreatedAt           time.Time `gorm:"default:CURRENT_TIMESTAMP"`
	ConfirmedAt         *time.Time
	CancelledAt         *time.Time
}

// TableName sets the table name for GORM
func (Booking) TableName() string {
	return "bookings"
}

// ReferenceCode returns the user-facing booking reference, derived from the
// first eight characters of the booking ID.
func (b *Booking) ReferenceCode() string {
	return "UWA-" + strings.ToUpper(b.ID.String()[:8])
}

// IsTerminal reports whether the booking is in a state that allows no
// further transitions except refund of a completed booking.
func (b *Booking) IsTerminal() bool {
	switch b.Status {
	case BookingStatusCancelled, BookingStatusCompleted, BookingStatusRefunded:
		return true
	}
	return false
}

// ============================================================================
// REPOSITORY DATA TRANSFER OBJECTS (Internal - no JSON tags)
// ============================================================================

// CreateBookingParams represents the data needed to persist a booking
type CreateBookingParams struct {
	SlotID              uuid.UUID
	TourID              uuid.UUID
	TouristID           uuid.UUID
	PartySize           int
	UnitPrice           float64
	TotalCost           float64
	ContactEmail        string
	ContactPhone        string
	SpecialRequirements string
}

// BookingFilter represents filtering options for booking queries
type BookingFilter struct {
	TouristID uuid.UUID
	Status    string
	Limit     int
	Offset    int
}

// ============================================================================
// API DATA TRANSFER OBJECTS (External - JSON tags for HTTP)
// ============================================================================

// SubmitBookingRequest represents the API request to create a booking
type SubmitBookingRequest struct {
	SlotID              uuid.UUID `json:"slot_id" binding:"required"`
	PartySize           int       `json:"party_size" binding:"required,gte=1"`
	ContactEmail        string    `json:"contact_email,omitempty"`
	ContactPhone        string    `json:"contact_phone,omitempty"`
	SpecialRequirements string    `json:"special_requirements,omitempty"`
}

// CancelBookingRequest represents the API request to cancel a booking
type CancelBookingRequest struct {
	Reason string `json:"reason,omitempty"`
}

// BookingResponse represents a booking in API responses
type BookingResponse struct {
	BookingID           uuid.UUID  `json:"booking_id"`
	ReferenceCode       string     `json:"reference_code"`
	SlotID              uuid.UUID  `json:"slot_id"`
	TourID              uuid.UUID  `json:"tour_id"`
	PartySize           int        `json:"party_size"`
	UnitPrice           float64    `json:"unit_price"`
	TotalCost           float64    `json:"total_cost"`
	Status              string     `json:"status"`
	ContactEmail        string     `json:"contact_email"`
	ContactPhone        string     `json:"contact_phone,omitempty"`
	SpecialRequirements string     `json:"special_requirements,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	ConfirmedAt         *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
}

// UserBookingsResponse represents a paginated list of a user's bookings
type UserBookingsResponse struct {
	Bookings []BookingResponse `json:"bookings"`
	Total    int               `json:"total"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ============================================================================
// CONVERSION METHODS
// ============================================================================

// ToBookingResponse converts a Booking entity to an API response
func (b *Booking) ToBookingResponse() BookingResponse {
	return BookingResponse{
		BookingID:           b.ID,
		ReferenceCode:       b.ReferenceCode(),
		SlotID:              b.SlotID,
		TourID:              b.TourID,
		PartySize:           b.PartySize,
		UnitPrice:           b.UnitPrice,
		TotalCost:           b.TotalCost,
		Status:              b.Status,
		ContactEmail:        b.ContactEmail,
		ContactPhone:        b.ContactPhone,
		SpecialRequirements: b.SpecialRequirements,
		CreatedAt:           b.CreatedAt,
		ConfirmedAt:         b.ConfirmedAt,
		CancelledAt:         b.CancelledAt,
	}
}
