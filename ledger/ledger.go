// Package ledger implements the booking and payment state machines on top of
// the repository. All multi-entity transitions run inside a single database
// transaction; per-slot capacity arithmetic is serialized by the slot row
// lock taken in that transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/safariworks/tourbooking/cache"
	"github.com/safariworks/tourbooking/model"
	"github.com/safariworks/tourbooking/repository"
	"github.com/safariworks/tourbooking/service"
)

// maxTxAttempts bounds retries of transactions aborted by lock contention.
const maxTxAttempts = 3

type BookingLedger struct {
	repo     repository.BookingRepository
	catalog  service.TourCatalog
	identity service.IdentityService
	cache    cache.CacheRepository
	now      func() time.Time
}

func NewBookingLedger(repo repository.BookingRepository, catalog service.TourCatalog, identity service.IdentityService, cacheRepo cache.CacheRepository) *BookingLedger {
	return &BookingLedger{
		repo:     repo,
		catalog:  catalog,
		identity: identity,
		cache:    cacheRepo,
		now:      time.Now,
	}
}

// CreateBookingInput represents a booking request after authentication
type CreateBookingInput struct {
	TouristID           uuid.UUID
	SlotID              uuid.UUID
	PartySize           int
	ContactEmail        string
	ContactPhone        string
	SpecialRequirements string
}

// CreateBooking validates the request against the tour catalog, then
// reserves capacity, persists the pending booking and appends the
// booking.created event in one transaction. Capacity is reserved here and
// only here; confirmation never decrements again.
func (l *BookingLedger) CreateBooking(ctx context.Context, input CreateBookingInput) (*model.Booking, error) {
	if input.PartySize < 1 {
		return nil, fmt.Errorf("%w: party size must be at least 1", model.ErrInvalidStatus)
	}

	slot, err := l.repo.GetSlotByID(ctx, input.SlotID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	if slot.IsPastDate(now) {
		return nil, model.ErrPastDate
	}

	tour, err := l.catalog.GetTour(ctx, slot.TourID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up tour: %w", err)
	}
	if input.PartySize > tour.MaxParticipants {
		return nil, model.ErrExceedsMaxParticipants
	}

	// Default contact details from the identity service when not supplied
	if input.ContactEmail == "" {
		contact, err := l.identity.GetContactInfo(ctx, input.TouristID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up contact info: %w", err)
		}
		input.ContactEmail = contact.Email
		if input.ContactPhone == "" {
			input.ContactPhone = contact.Phone
		}
	}

	params := model.CreateBookingParams{
		SlotID:              slot.ID,
		TourID:              slot.TourID,
		TouristID:           input.TouristID,
		PartySize:           input.PartySize,
		UnitPrice:           tour.Price,
		TotalCost:           tour.Price * float64(input.PartySize),
		ContactEmail:        input.ContactEmail,
		ContactPhone:        input.ContactPhone,
		SpecialRequirements: input.SpecialRequirements,
	}

	var booking *model.Booking
	err = l.runInTransaction(ctx, func(tx repository.BookingRepository) error {
		locked, err := tx.GetSlotForUpdate(ctx, input.SlotID)
		if err != nil {
			return err
		}
		if locked.IsPastDate(l.now()) {
			return model.ErrPastDate
		}
		if locked.ReservedCount+input.PartySize > locked.TotalCapacity {
			return model.ErrCapacityExceeded
		}

		locked.ReservedCount += input.PartySize
		if err := tx.SaveSlot(ctx, locked); err != nil {
			return err
		}

		booking, err = tx.CreateBooking(ctx, params)
		if err != nil {
			return err
		}

		return appendBookingEvent(ctx, tx, model.EventBookingCreated, booking, locked, "", l.now())
	})
	if err != nil {
		return nil, err
	}

	l.invalidateSnapshot(ctx, input.SlotID)
	return booking, nil
}

// ConfirmBooking transitions a pending booking with a completed payment to
// confirmed. Confirming an already-confirmed booking is a no-op success.
func (l *BookingLedger) ConfirmBooking(ctx context.Context, bookingID uuid.UUID) error {
	return l.runInTransaction(ctx, func(tx repository.BookingRepository) error {
		booking, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status == model.BookingStatusConfirmed {
			return nil
		}
		payment, err := tx.GetOpenPaymentForBooking(ctx, bookingID)
		if err != nil {
			if errors.Is(err, model.ErrPaymentNotFound) {
				return fmt.Errorf("%w: no completed payment for booking", model.ErrInvalidStatus)
			}
			return err
		}
		if payment.Status != model.PaymentStatusCompleted {
			return fmt.Errorf("%w: payment is %s", model.ErrInvalidStatus, payment.Status)
		}
		_, err = confirmLocked(ctx, tx, booking, l.now())
		return err
	})
}

// CancelBooking cancels a pending or confirmed booking, releases its slot
// capacity and refunds a completed payment. Rejected once the tour date has
// passed or the booking is terminal.
func (l *BookingLedger) CancelBooking(ctx context.Context, bookingID uuid.UUID, reason string) error {
	var slotID uuid.UUID
	err := l.runInTransaction(ctx, func(tx repository.BookingRepository) error {
		booking, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != model.BookingStatusPending && booking.Status != model.BookingStatusConfirmed {
			return model.ErrNotCancellable
		}

		slot, err := tx.GetSlotForUpdate(ctx, booking.SlotID)
		if err != nil {
			return err
		}
		if slot.IsPastDate(l.now()) {
			return model.ErrNotCancellable
		}
		slotID = slot.ID

		// Pending and confirmed bookings both hold capacity under
		// single-decrement accounting, so both release it.
		if slot.ReservedCount < booking.PartySize {
			return fmt.Errorf("%w: slot %s reserved %d, releasing %d",
				model.ErrCapacityUnderflow, slot.ID, slot.ReservedCount, booking.PartySize)
		}
		slot.ReservedCount -= booking.PartySize
		if err := tx.SaveSlot(ctx, slot); err != nil {
			return err
		}

		now := l.now()
		refunded, err := refundOpenPayment(ctx, tx, booking.ID)
		if err != nil {
			return err
		}

		booking.Status = model.BookingStatusCancelled
		booking.CancelledAt = &now
		if err := tx.SaveBooking(ctx, booking); err != nil {
			return err
		}

		if err := appendBookingEvent(ctx, tx, model.EventBookingCancelled, booking, slot, reason, now); err != nil {
			return err
		}
		if refunded != nil {
			if err := appendPaymentEvent(ctx, tx, model.EventBookingRefunded, refunded, booking, reason, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.invalidateSnapshot(ctx, slotID)
	return nil
}

// GetBooking retrieves a booking by ID
func (l *BookingLedger) GetBooking(ctx context.Context, bookingID uuid.UUID) (*model.Booking, error) {
	return l.repo.GetBookingByID(ctx, bookingID)
}

// ListUserBookings retrieves a tourist's bookings
func (l *BookingLedger) ListUserBookings(ctx context.Context, filter model.BookingFilter) ([]model.Booking, int, error) {
	return l.repo.ListUserBookings(ctx, filter)
}

// CompletePastBookings sweeps confirmed bookings whose tour date has passed
// into the completed state. Returns the number of bookings completed.
func (l *BookingLedger) CompletePastBookings(ctx context.Context, limit int) (int, error) {
	now := l.now().UTC()
	y, m, d := now.Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	candidates, err := l.repo.ListConfirmedBookingsBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	completed := 0
	for i := range candidates {
		id := candidates[i].ID
		err := l.runInTransaction(ctx, func(tx repository.BookingRepository) error {
			booking, err := tx.GetBookingForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if booking.Status != model.BookingStatusConfirmed {
				return nil
			}
			booking.Status = model.BookingStatusCompleted
			return tx.SaveBooking(ctx, booking)
		})
		if err != nil {
			log.Printf("completion sweep: booking %s: %v", id, err)
			continue
		}
		completed++
	}
	return completed, nil
}

// RefundCompletedBooking is the operator path for refunding a booking after
// the tour has run. The booking and its payment both move to refunded.
func (l *BookingLedger) RefundCompletedBooking(ctx context.Context, bookingID uuid.UUID, reason string) error {
	return l.runInTransaction(ctx, func(tx repository.BookingRepository) error {
		booking, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != model.BookingStatusCompleted {
			return fmt.Errorf("%w: booking is %s", model.ErrInvalidStatus, booking.Status)
		}

		now := l.now()
		refunded, err := refundOpenPayment(ctx, tx, booking.ID)
		if err != nil {
			return err
		}

		booking.Status = model.BookingStatusRefunded
		if err := tx.SaveBooking(ctx, booking); err != nil {
			return err
		}

		if refunded != nil {
			return appendPaymentEvent(ctx, tx, model.EventBookingRefunded, refunded, booking, reason, now)
		}
		return nil
	})
}

// runInTransaction retries transactions aborted by lock contention a bounded
// number of times, then surfaces model.ErrConcurrencyConflict to the caller.
func (l *BookingLedger) runInTransaction(ctx context.Context, fn func(tx repository.BookingRepository) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = l.repo.InTransaction(ctx, fn)
		if err == nil || !errors.Is(err, model.ErrConcurrencyConflict) {
			return err
		}
	}
	return err
}

// invalidateSnapshot drops the cached capacity snapshot after a change.
// Cache failures never fail the transaction that already committed.
func (l *BookingLedger) invalidateSnapshot(ctx context.Context, slotID uuid.UUID) {
	if l.cache == nil || slotID == uuid.Nil {
		return
	}
	if err := l.cache.InvalidateSlotSnapshot(ctx, slotID); err != nil {
		log.Printf("failed to invalidate slot snapshot %s: %v", slotID, err)
	}
}

// confirmLocked transitions an already-locked booking to confirmed.
// Returns false without error when the booking was already confirmed.
func confirmLocked(ctx context.Context, tx repository.BookingRepository, booking *model.Booking, at time.Time) (bool, error) {
	switch booking.Status {
	case model.BookingStatusConfirmed:
		return false, nil
	case model.BookingStatusPending:
		at = at.UTC()
		booking.Status = model.BookingStatusConfirmed
		booking.ConfirmedAt = &at
		return true, tx.SaveBooking(ctx, booking)
	default:
		return false, fmt.Errorf("%w: booking is %s", model.ErrInvalidStatus, booking.Status)
	}
}

// refundOpenPayment marks a completed payment refunded, if one exists.
// Returns nil when the booking has no completed payment.
func refundOpenPayment(ctx context.Context, tx repository.BookingRepository, bookingID uuid.UUID) (*model.Payment, error) {
	payment, err := tx.GetOpenPaymentForBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, model.ErrPaymentNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if payment.Status != model.PaymentStatusCompleted {
		return nil, nil
	}
	payment.Status = model.PaymentStatusRefunded
	if err := tx.SavePayment(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func appendBookingEvent(ctx context.Context, tx repository.BookingRepository, eventType string, booking *model.Booking, slot *model.AvailabilitySlot, reason string, at time.Time) error {
	payload := model.BookingEventPayload{
		BookingID:     booking.ID,
		ReferenceCode: booking.ReferenceCode(),
		TouristID:     booking.TouristID,
		TourID:        booking.TourID,
		SlotDate:      slot.Date.Format("2006-01-02"),
		PartySize:     booking.PartySize,
		TotalCost:     booking.TotalCost,
		ContactEmail:  booking.ContactEmail,
		Reason:        reason,
		Timestamp:     at.UTC(),
	}
	event, err := model.NewOutboxEvent(eventType, payload)
	if err != nil {
		return err
	}
	return tx.AppendOutboxEvent(ctx, event)
}

func appendPaymentEvent(ctx context.Context, tx repository.BookingRepository, eventType string, payment *model.Payment, booking *model.Booking, reason string, at time.Time) error {
	payload := model.PaymentEventPayload{
		PaymentID:     payment.ID,
		BookingID:     booking.ID,
		ReferenceCode: booking.ReferenceCode(),
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Method:        payment.Method,
		ContactEmail:  booking.ContactEmail,
		Reason:        reason,
		Timestamp:     at.UTC(),
	}
	event, err := model.NewOutboxEvent(eventType, payload)
	if err != nil {
		return err
	}
	return tx.AppendOutboxEvent(ctx, event)
}
