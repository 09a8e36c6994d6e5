package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/safariworks/tourbooking/model"
)

// CreateSlot schedules a new tour date. The unique (tour_id, date) index
// rejects duplicates.
func (r *PostgresBookingRepository) CreateSlot(ctx context.Context, params model.CreateSlotParams) (*model.AvailabilitySlot, error) {
	slot := &model.AvailabilitySlot{
		ID:            uuid.New(),
		TourID:        params.TourID,
		Date:          params.Date,
		TotalCapacity: params.TotalCapacity,
		GuideID:       params.GuideID,
	}

	if err := r.db.WithContext(ctx).Create(slot).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, model.ErrDuplicateSlot
		}
		return nil, fmt.Errorf("failed to create slot: %w", err)
	}

	return slot, nil
}

// GetSlotByID retrieves a slot without locking it
func (r *PostgresBookingRepository) GetSlotByID(ctx context.Context, slotID uuid.UUID) (*model.AvailabilitySlot, error) {
	var slot model.AvailabilitySlot
	err := r.db.WithContext(ctx).Where("id = ?", slotID).First(&slot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrSlotNotFound
		}
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return &slot, nil
}

// GetSlotForUpdate retrieves a slot holding a row lock until the surrounding
// transaction ends. All capacity arithmetic happens behind this lock so that
// concurrent reservations against the same slot are serialized; different
// slots do not contend.
func (r *PostgresBookingRepository) GetSlotForUpdate(ctx context.Context, slotID uuid.UUID) (*model.AvailabilitySlot, error) {
	var slot model.AvailabilitySlot
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", slotID).
		First(&slot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrSlotNotFound
		}
		return nil, fmt.Errorf("failed to lock slot: %w", err)
	}
	return &slot, nil
}

// SaveSlot persists slot mutations made under the row lock
func (r *PostgresBookingRepository) SaveSlot(ctx context.Context, slot *model.AvailabilitySlot) error {
	if err := r.db.WithContext(ctx).Save(slot).Error; err != nil {
		return fmt.Errorf("failed to save slot: %w", err)
	}
	return nil
}

// DeleteSlot removes a slot. Callers must have verified no bookings
// reference it.
func (r *PostgresBookingRepository) DeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", slotID).Delete(&model.AvailabilitySlot{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete slot: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return model.ErrSlotNotFound
	}
	return nil
}

// ListSlots retrieves slots matching the filter with pagination
func (r *PostgresBookingRepository) ListSlots(ctx context.Context, filter model.SlotFilter) ([]model.AvailabilitySlot, int, error) {
	var slots []model.AvailabilitySlot
	var total int64

	query := r.db.WithContext(ctx).Model(&model.AvailabilitySlot{})

	if len(filter.TourIDs) > 0 {
		ids := make([]string, 0, len(filter.TourIDs))
		for _, id := range filter.TourIDs {
			ids = append(ids, id.String())
		}
		query = query.Where("tour_id = ANY(?)", pq.Array(ids))
	}
	if filter.DateFrom != nil {
		query = query.Where("date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("date <= ?", *filter.DateTo)
	}
	if filter.MinAvailable > 0 {
		query = query.Where("total_capacity - reserved_count >= ?", filter.MinAvailable)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count slots: %w", err)
	}

	err := query.Order("date ASC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&slots).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list slots: %w", err)
	}

	return slots, int(total), nil
}

// CountBookingsForSlot counts bookings that reference a slot, regardless of
// status. Used to guard slot deletion.
func (r *PostgresBookingRepository) CountBookingsForSlot(ctx context.Context, slotID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Booking{}).
		Where("slot_id = ?", slotID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings for slot: %w", err)
	}
	return count, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "SQLSTATE 23505") ||
		strings.Contains(err.Error(), "duplicate key value")
}
