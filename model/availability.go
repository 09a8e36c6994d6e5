package model

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// DATABASE ENTITIES (Internal - GORM only, no JSON tags)
// ============================================================================

// AvailabilitySlot represents bookable capacity for one tour on one date.
// ReservedCount is only ever mutated under a row lock inside a booking
// transaction; 0 <= ReservedCount <= TotalCapacity holds at all times.
type AvailabilitySlot struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key"`
	TourID        uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:idx_slots_tour_date"`
	Date          time.Time  `gorm:"type:date;not null;uniqueIndex:idx_slots_tour_date"`
	TotalCapacity int        `gorm:"not null"`
	ReservedCount int        `gorm:"not null;default:0"`
	GuideID       *uuid.UUID `gorm:"type:uuid"`
	CreatedAt     time.Time  `gorm:"default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time
}

// TableName sets the table name for GORM
func (AvailabilitySlot) TableName() string {
	return "availability_slots"
}

// AvailableCapacity returns the number of people the slot can still take.
func (s *AvailabilitySlot) AvailableCapacity() int {
	return s.TotalCapacity - s.ReservedCount
}

// IsPastDate reports whether the slot's date is before today.
func (s *AvailabilitySlot) IsPastDate(now time.Time) bool {
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return s.Date.Before(today)
}

// CanBookFor reports whether a booking for partySize people could currently
// be made against this slot. Advisory only; the booking transaction re-checks
// under the row lock.
func (s *AvailabilitySlot) CanBookFor(partySize int, now time.Time) bool {
	return !s.IsPastDate(now) && s.AvailableCapacity() >= partySize
}

// ============================================================================
// REPOSITORY DATA TRANSFER OBJECTS (Internal - no JSON tags)
// ============================================================================

// CreateSlotParams represents the data needed to schedule a tour date
type CreateSlotParams struct {
	TourID        uuid.UUID
	Date          time.Time
	TotalCapacity int
	GuideID       *uuid.UUID
}

// SlotFilter represents filtering options for slot queries
type SlotFilter struct {
	TourIDs      []uuid.UUID
	DateFrom     *time.Time
	DateTo       *time.Time
	MinAvailable int
	Limit        int
	Offset       int
}

// SlotSnapshot is the cached view of a slot's capacity used by the
// availability check endpoint. Advisory; bookings always re-check under the
// row lock.
type SlotSnapshot struct {
	SlotID        uuid.UUID `json:"slot_id"`
	TourID        uuid.UUID `json:"tour_id"`
	Date          string    `json:"date"`
	TotalCapacity int       `json:"total_capacity"`
	ReservedCount int       `json:"reserved_count"`
	CachedAt      time.Time `json:"cached_at"`
}

// ============================================================================
// API DATA TRANSFER OBJECTS (External - JSON tags for HTTP)
// ============================================================================

// CreateSlotRequest represents the operator API request to schedule a tour date
type CreateSlotRequest struct {
	TourID        uuid.UUID  `json:"tour_id" binding:"required"`
	Date          string     `json:"date" binding:"required"`
	TotalCapacity int        `json:"total_capacity" binding:"required,gt=0"`
	GuideID       *uuid.UUID `json:"guide_id,omitempty"`
}

// ReconfigureSlotRequest represents the operator API request to change capacity
type ReconfigureSlotRequest struct {
	TotalCapacity int `json:"total_capacity" binding:"required,gt=0"`
}

// SlotResponse represents a slot in API responses
type SlotResponse struct {
	SlotID            uuid.UUID  `json:"slot_id"`
	TourID            uuid.UUID  `json:"tour_id"`
	Date              string     `json:"date"`
	TotalCapacity     int        `json:"total_capacity"`
	ReservedCount     int        `json:"reserved_count"`
	AvailableCapacity int        `json:"available_capacity"`
	GuideID           *uuid.UUID `json:"guide_id,omitempty"`
}

// SlotListResponse represents a paginated slot listing
type SlotListResponse struct {
	Slots []SlotResponse `json:"slots"`
	Total int            `json:"total"`
}

// AvailabilityCheckResponse represents the real-time availability check result
type AvailabilityCheckResponse struct {
	SlotID        uuid.UUID `json:"slot_id"`
	CanBook       bool      `json:"can_book"`
	Available     int       `json:"available"`
	IsPastDate    bool      `json:"is_past_date"`
	Message       string    `json:"message"`
	CheckedAt     time.Time `json:"checked_at"`
	FromSnapshot  bool      `json:"from_snapshot"`
}

// ============================================================================
// CONVERSION METHODS
// ============================================================================

// ToSlotResponse converts an AvailabilitySlot entity to an API response
func (s *AvailabilitySlot) ToSlotResponse() SlotResponse {
	return SlotResponse{
		SlotID:            s.ID,
		TourID:            s.TourID,
		Date:              s.Date.Format("2006-01-02"),
		TotalCapacity:     s.TotalCapacity,
		ReservedCount:     s.ReservedCount,
		AvailableCapacity: s.AvailableCapacity(),
		GuideID:           s.GuideID,
	}
}
