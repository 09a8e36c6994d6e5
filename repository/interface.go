package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/safariworks/tourbooking/model"
)

// BookingRepository defines the interface for booking, slot, payment and
// outbox data operations. State transitions that span entities run inside
// InTransaction; the ForUpdate variants take a row lock for the duration of
// the surrounding transaction, which is what serializes check-then-act
// capacity arithmetic per slot.
type BookingRepository interface {
	// InTransaction runs fn within a transaction and passes a repository
	// bound to it. Returns model.ErrConcurrencyConflict (wrapped) when the
	// transaction was aborted by lock contention and may be retried.
	InTransaction(ctx context.Context, fn func(tx BookingRepository) error) error

	// Slot operations
	CreateSlot(ctx context.Context, params model.CreateSlotParams) (*model.AvailabilitySlot, error)
	GetSlotByID(ctx context.Context, slotID uuid.UUID) (*model.AvailabilitySlot, error)
	GetSlotForUpdate(ctx context.Context, slotID uuid.UUID) (*model.AvailabilitySlot, error)
	SaveSlot(ctx context.Context, slot *model.AvailabilitySlot) error
	DeleteSlot(ctx context.Context, slotID uuid.UUID) error
	ListSlots(ctx context.Context, filter model.SlotFilter) ([]model.AvailabilitySlot, int, error)
	CountBookingsForSlot(ctx context.Context, slotID uuid.UUID) (int64, error)

	// Booking operations
	CreateBooking(ctx context.Context, params model.CreateBookingParams) (*model.Booking, error)
	GetBookingByID(ctx context.Context, bookingID uuid.UUID) (*model.Booking, error)
	GetBookingForUpdate(ctx context.Context, bookingID uuid.UUID) (*model.Booking, error)
	SaveBooking(ctx context.Context, booking *model.Booking) error
	ListUserBookings(ctx context.Context, filter model.BookingFilter) ([]model.Booking, int, error)
	ListConfirmedBookingsBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Booking, error)

	// Payment operations
	CreatePayment(ctx context.Context, payment *model.Payment) error
	GetPaymentByID(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error)
	GetPaymentForUpdate(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error)
	GetPaymentByGatewayTransactionID(ctx context.Context, transactionID string) (*model.Payment, error)
	GetOpenPaymentForBooking(ctx context.Context, bookingID uuid.UUID) (*model.Payment, error)
	SavePayment(ctx context.Context, payment *model.Payment) error

	// Outbox operations
	AppendOutboxEvent(ctx context.Context, event *model.OutboxEvent) error
	ListUnpublishedEvents(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkEventsPublished(ctx context.Context, eventIDs []uuid.UUID, publishedAt time.Time) error

	// Health check
	GetDB() *gorm.DB
}
