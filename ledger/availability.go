package ledger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/safariworks/tourbooking/cache"
	"github.com/safariworks/tourbooking/model"
	"github.com/safariworks/tourbooking/repository"
)

// snapshotTTL bounds how stale the advisory availability check may be.
const snapshotTTL = 30 * time.Second

// AvailabilityManager owns capacity bookkeeping for tour dates: operator
// scheduling and the read side of availability. Reservation arithmetic
// itself happens in BookingLedger transactions.
type AvailabilityManager struct {
	repo  repository.BookingRepository
	cache cache.CacheRepository
	now   func() time.Time
}

func NewAvailabilityManager(repo repository.BookingRepository, cacheRepo cache.CacheRepository) *AvailabilityManager {
	return &AvailabilityManager{
		repo:  repo,
		cache: cacheRepo,
		now:   time.Now,
	}
}

// CreateSlot schedules bookable capacity for a tour date
func (a *AvailabilityManager) CreateSlot(ctx context.Context, params model.CreateSlotParams) (*model.AvailabilitySlot, error) {
	if params.TotalCapacity < 1 {
		return nil, fmt.Errorf("%w: total capacity must be at least 1", model.ErrInvalidStatus)
	}
	probe := model.AvailabilitySlot{Date: params.Date}
	if probe.IsPastDate(a.now()) {
		return nil, model.ErrPastDate
	}
	return a.repo.CreateSlot(ctx, params)
}

// GetSlot retrieves a slot by ID
func (a *AvailabilityManager) GetSlot(ctx context.Context, slotID uuid.UUID) (*model.AvailabilitySlot, error) {
	return a.repo.GetSlotByID(ctx, slotID)
}

// ListSlots retrieves slots matching the filter
func (a *AvailabilityManager) ListSlots(ctx context.Context, filter model.SlotFilter) ([]model.AvailabilitySlot, int, error) {
	return a.repo.ListSlots(ctx, filter)
}

// ReconfigureCapacity changes a slot's total capacity. The new total must
// cover the capacity already reserved.
func (a *AvailabilityManager) ReconfigureCapacity(ctx context.Context, slotID uuid.UUID, totalCapacity int) (*model.AvailabilitySlot, error) {
	if totalCapacity < 1 {
		return nil, fmt.Errorf("%w: total capacity must be at least 1", model.ErrInvalidStatus)
	}

	var updated *model.AvailabilitySlot
	err := a.repo.InTransaction(ctx, func(tx repository.BookingRepository) error {
		slot, err := tx.GetSlotForUpdate(ctx, slotID)
		if err != nil {
			return err
		}
		if totalCapacity < slot.ReservedCount {
			return model.ErrCapacityBelowReserved
		}
		slot.TotalCapacity = totalCapacity
		if err := tx.SaveSlot(ctx, slot); err != nil {
			return err
		}
		updated = slot
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.invalidateSnapshot(ctx, slotID)
	return updated, nil
}

// DeleteSlot removes a slot that no bookings reference
func (a *AvailabilityManager) DeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	err := a.repo.InTransaction(ctx, func(tx repository.BookingRepository) error {
		if _, err := tx.GetSlotForUpdate(ctx, slotID); err != nil {
			return err
		}
		count, err := tx.CountBookingsForSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if count > 0 {
			return model.ErrSlotInUse
		}
		return tx.DeleteSlot(ctx, slotID)
	})
	if err != nil {
		return err
	}

	a.invalidateSnapshot(ctx, slotID)
	return nil
}

// CheckAvailability answers the real-time availability question for a party
// size, served from the snapshot cache when possible. Advisory only; the
// booking transaction is the authority.
func (a *AvailabilityManager) CheckAvailability(ctx context.Context, slotID uuid.UUID, partySize int) (*model.AvailabilityCheckResponse, error) {
	if partySize < 1 {
		partySize = 1
	}

	now := a.now()
	fromSnapshot := false
	var slot *model.AvailabilitySlot

	if a.cache != nil {
		snapshot, err := a.cache.GetSlotSnapshot(ctx, slotID)
		if err != nil {
			log.Printf("slot snapshot read failed for %s: %v", slotID, err)
		} else if snapshot != nil {
			date, perr := time.Parse("2006-01-02", snapshot.Date)
			if perr == nil {
				slot = &model.AvailabilitySlot{
					ID:            snapshot.SlotID,
					TourID:        snapshot.TourID,
					Date:          date,
					TotalCapacity: snapshot.TotalCapacity,
					ReservedCount: snapshot.ReservedCount,
				}
				fromSnapshot = true
			}
		}
	}

	if slot == nil {
		var err error
		slot, err = a.repo.GetSlotByID(ctx, slotID)
		if err != nil {
			return nil, err
		}
		if a.cache != nil {
			snapshot := &model.SlotSnapshot{
				SlotID:        slot.ID,
				TourID:        slot.TourID,
				Date:          slot.Date.Format("2006-01-02"),
				TotalCapacity: slot.TotalCapacity,
				ReservedCount: slot.ReservedCount,
				CachedAt:      now.UTC(),
			}
			if err := a.cache.SetSlotSnapshot(ctx, snapshot, snapshotTTL); err != nil {
				log.Printf("slot snapshot write failed for %s: %v", slotID, err)
			}
		}
	}

	canBook := slot.CanBookFor(partySize, now)
	message := "Available"
	if !canBook {
		message = "Not available"
	}

	return &model.AvailabilityCheckResponse{
		SlotID:       slotID,
		CanBook:      canBook,
		Available:    slot.AvailableCapacity(),
		IsPastDate:   slot.IsPastDate(now),
		Message:      message,
		CheckedAt:    now.UTC(),
		FromSnapshot: fromSnapshot,
	}, nil
}

func (a *AvailabilityManager) invalidateSnapshot(ctx context.Context, slotID uuid.UUID) {
	if a.cache == nil {
		return
	}
	if err := a.cache.InvalidateSlotSnapshot(ctx, slotID); err != nil {
		log.Printf("failed to invalidate slot snapshot %s: %v", slotID, err)
	}
}
