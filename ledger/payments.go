package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/safariworks/tourbooking/model"
	"github.com/safariworks/tourbooking/repository"
)

// PaymentStateMachine drives the payment lifecycle and triggers booking
// confirmation as part of payment completion. Completion and confirmation
// share one transaction: there is no state where a payment is completed but
// its booking silently stays pending.
type PaymentStateMachine struct {
	repo repository.BookingRepository
	now  func() time.Time
}

func NewPaymentStateMachine(repo repository.BookingRepository) *PaymentStateMachine {
	return &PaymentStateMachine{
		repo: repo,
		now:  time.Now,
	}
}

// InitiatePayment creates a payment attempt for a pending booking, pinning
// the amount to the booking's total cost. A pending attempt has its method
// updated in place; a processing or completed attempt blocks a new one. A
// failed attempt is superseded by a fresh row.
func (m *PaymentStateMachine) InitiatePayment(ctx context.Context, bookingID uuid.UUID, method string) (*model.Payment, error) {
	if !model.ValidPaymentMethod(method) {
		return nil, fmt.Errorf("%w: unknown payment method %q", model.ErrInvalidStatus, method)
	}

	var payment *model.Payment
	err := m.runInTransaction(ctx, func(tx repository.BookingRepository) error {
		booking, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != model.BookingStatusPending {
			return fmt.Errorf("%w: booking is %s", model.ErrInvalidStatus, booking.Status)
		}

		existing, err := tx.GetOpenPaymentForBooking(ctx, bookingID)
		if err != nil && !errors.Is(err, model.ErrPaymentNotFound) {
			return err
		}
		if existing != nil {
			if existing.Status != model.PaymentStatusPending {
				return model.ErrPaymentAlreadyOpen
			}
			existing.Method = method
			if err := tx.SavePayment(ctx, existing); err != nil {
				return err
			}
			payment = existing
			return nil
		}

		payment = &model.Payment{
			ID:        uuid.New(),
			BookingID: booking.ID,
			Method:    method,
			Amount:    booking.TotalCost,
			Currency:  model.DefaultCurrency,
			Status:    model.PaymentStatusPending,
		}
		return tx.CreatePayment(ctx, payment)
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// AttachGatewayTransaction records the gateway's transaction identifiers and
// moves the payment from pending to processing.
func (m *PaymentStateMachine) AttachGatewayTransaction(ctx context.Context, paymentID uuid.UUID, transactionID, reference string) error {
	return m.runInTransaction(ctx, func(tx repository.BookingRepository) error {
		payment, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status != model.PaymentStatusPending {
			return fmt.Errorf("%w: payment is %s", model.ErrInvalidStatus, payment.Status)
		}
		payment.Status = model.PaymentStatusProcessing
		payment.GatewayTransactionID = transactionID
		payment.GatewayReference = reference
		return tx.SavePayment(ctx, payment)
	})
}

// MarkCompleted completes a payment and confirms its booking in one
// transaction. Completing an already-completed payment is a no-op, so
// duplicate gateway callbacks cannot double-confirm.
func (m *PaymentStateMachine) MarkCompleted(ctx context.Context, paymentID uuid.UUID) error {
	return m.runInTransaction(ctx, func(tx repository.BookingRepository) error {
		// Resolve the booking first so rows always lock in booking,
		// payment order.
		peek, err := tx.GetPaymentByID(ctx, paymentID)
		if err != nil {
			return err
		}
		booking, err := tx.GetBookingForUpdate(ctx, peek.BookingID)
		if err != nil {
			return err
		}
		payment, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}

		if payment.Status == model.PaymentStatusCompleted {
			return nil
		}
		if payment.Status != model.PaymentStatusPending && payment.Status != model.PaymentStatusProcessing {
			return fmt.Errorf("%w: payment is %s", model.ErrInvalidStatus, payment.Status)
		}

		now := m.now().UTC()
		payment.Status = model.PaymentStatusCompleted
		payment.CompletedAt = &now
		if err := tx.SavePayment(ctx, payment); err != nil {
			return err
		}

		if _, err := confirmLocked(ctx, tx, booking, now); err != nil {
			return err
		}

		return appendPaymentEvent(ctx, tx, model.EventPaymentCompleted, payment, booking, "", now)
	})
}

// MarkFailed fails a pending or processing payment. The booking stays
// pending; the tourist retries with a new payment attempt. Failing an
// already-failed payment is a no-op.
func (m *PaymentStateMachine) MarkFailed(ctx context.Context, paymentID uuid.UUID, reason string) error {
	return m.runInTransaction(ctx, func(tx repository.BookingRepository) error {
		payment, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status == model.PaymentStatusFailed {
			return nil
		}
		if payment.Status != model.PaymentStatusPending && payment.Status != model.PaymentStatusProcessing {
			return fmt.Errorf("%w: payment is %s", model.ErrInvalidStatus, payment.Status)
		}

		payment.Status = model.PaymentStatusFailed
		payment.FailureReason = reason
		if err := tx.SavePayment(ctx, payment); err != nil {
			return err
		}

		booking, err := tx.GetBookingByID(ctx, payment.BookingID)
		if err != nil {
			return err
		}
		return appendPaymentEvent(ctx, tx, model.EventPaymentFailed, payment, booking, reason, m.now())
	})
}

// GetPayment retrieves a payment by ID
func (m *PaymentStateMachine) GetPayment(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	return m.repo.GetPaymentByID(ctx, paymentID)
}

// HandleGatewayCallback maps an inbound webhook to a payment transition.
// Callbacks are at-least-once and may arrive out of order; the status guards
// in MarkCompleted and MarkFailed make duplicates no-ops. An amount that
// disagrees with the pinned amount is a hard failure for manual
// reconciliation, never auto-corrected.
func (m *PaymentStateMachine) HandleGatewayCallback(ctx context.Context, req model.GatewayWebhookRequest) error {
	payment, err := m.repo.GetPaymentByGatewayTransactionID(ctx, req.TransactionID)
	if err != nil {
		return err
	}

	if req.Amount != nil && *req.Amount != payment.Amount {
		return fmt.Errorf("%w: gateway reported %.2f, pinned %.2f",
			model.ErrPaymentAmountMismatch, *req.Amount, payment.Amount)
	}

	switch strings.ToLower(req.Status) {
	case "completed", "success", "successful":
		return m.MarkCompleted(ctx, payment.ID)
	case "failed", "declined":
		return m.MarkFailed(ctx, payment.ID, req.Reason)
	default:
		return fmt.Errorf("%w: unknown gateway status %q", model.ErrInvalidStatus, req.Status)
	}
}

func (m *PaymentStateMachine) runInTransaction(ctx context.Context, fn func(tx repository.BookingRepository) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = m.repo.InTransaction(ctx, fn)
		if err == nil || !errors.Is(err, model.ErrConcurrencyConflict) {
			return err
		}
	}
	return err
}
