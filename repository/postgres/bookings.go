package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/safariworks/tourbooking/model"
)

// CreateBooking inserts a new pending booking. Called inside the
// booking-creation transaction after capacity has been reserved.
func (r *PostgresBookingRepository) CreateBooking(ctx context.Context, params model.CreateBookingParams) (*model.Booking, error) {
	booking := &model.Booking{
		ID:                  uuid.New(),
		SlotID:              params.SlotID,
		TourID:              params.TourID,
		TouristID:           params.TouristID,
		PartySize:           params.PartySize,
		UnitPrice:           params.UnitPrice,
		TotalCost:           params.TotalCost,
		Status:              model.BookingStatusPending,
		ContactEmail:        params.ContactEmail,
		ContactPhone:        params.ContactPhone,
		SpecialRequirements: params.SpecialRequirements,
	}

	if err := r.db.WithContext(ctx).Create(booking).Error; err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	return booking, nil
}

// GetBookingByID retrieves a booking by its ID
func (r *PostgresBookingRepository) GetBookingByID(ctx context.Context, bookingID uuid.UUID) (*model.Booking, error) {
	var booking model.Booking
	err := r.db.WithContext(ctx).Where("id = ?", bookingID).First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// GetBookingForUpdate retrieves a booking holding a row lock until the
// surrounding transaction ends. Status transitions read and write behind
// this lock.
func (r *PostgresBookingRepository) GetBookingForUpdate(ctx context.Context, bookingID uuid.UUID) (*model.Booking, error) {
	var booking model.Booking
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", bookingID).
		First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return &booking, nil
}

// SaveBooking persists booking mutations made under the row lock
func (r *PostgresBookingRepository) SaveBooking(ctx context.Context, booking *model.Booking) error {
	if err := r.db.WithContext(ctx).Save(booking).Error; err != nil {
		return fmt.Errorf("failed to save booking: %w", err)
	}
	return nil
}

// ListUserBookings retrieves bookings for a tourist with filtering and
// pagination, newest first.
func (r *PostgresBookingRepository) ListUserBookings(ctx context.Context, filter model.BookingFilter) ([]model.Booking, int, error) {
	var bookings []model.Booking
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Booking{}).
		Where("tourist_id = ?", filter.TouristID)

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	err := query.Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&bookings).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}

	return bookings, int(total), nil
}

// ListConfirmedBookingsBefore returns confirmed bookings whose slot date is
// before cutoff. Used by the completion sweep.
func (r *PostgresBookingRepository) ListConfirmedBookingsBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Booking, error) {
	var bookings []model.Booking
	err := r.db.WithContext(ctx).
		Joins("JOIN availability_slots ON availability_slots.id = bookings.slot_id").
		Where("bookings.status = ?", model.BookingStatusConfirmed).
		Where("availability_slots.date < ?", cutoff).
		Limit(limit).
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired confirmed bookings: %w", err)
	}
	return bookings, nil
}
