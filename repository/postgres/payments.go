package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/safariworks/tourbooking/model"
)

// CreatePayment inserts a new payment attempt
func (r *PostgresBookingRepository) CreatePayment(ctx context.Context, payment *model.Payment) error {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPaymentByID retrieves a payment by its ID
func (r *PostgresBookingRepository) GetPaymentByID(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).Where("id = ?", paymentID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

// GetPaymentForUpdate retrieves a payment holding a row lock until the
// surrounding transaction ends. Webhook handling locks the payment row so
// duplicate callbacks serialize instead of racing.
func (r *PostgresBookingRepository) GetPaymentForUpdate(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", paymentID).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to lock payment: %w", err)
	}
	return &payment, nil
}

// GetPaymentByGatewayTransactionID resolves a gateway callback to a payment
func (r *PostgresBookingRepository) GetPaymentByGatewayTransactionID(ctx context.Context, transactionID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).
		Where("gateway_transaction_id = ?", transactionID).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment by gateway transaction: %w", err)
	}
	return &payment, nil
}

// GetOpenPaymentForBooking returns the pending, processing or completed
// payment for a booking, or model.ErrPaymentNotFound when only failed or
// refunded attempts exist.
func (r *PostgresBookingRepository) GetOpenPaymentForBooking(ctx context.Context, bookingID uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).
		Where("booking_id = ? AND status IN ?", bookingID, []string{
			model.PaymentStatusPending,
			model.PaymentStatusProcessing,
			model.PaymentStatusCompleted,
		}).
		Order("initiated_at DESC").
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get open payment: %w", err)
	}
	return &payment, nil
}

// SavePayment persists payment mutations made under the row lock
func (r *PostgresBookingRepository) SavePayment(ctx context.Context, payment *model.Payment) error {
	if err := r.db.WithContext(ctx).Save(payment).Error; err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}
