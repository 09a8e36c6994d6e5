package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safariworks/tourbooking/model"
)

func newAvailabilityManager(f *fixture, cache *fakeCache) *AvailabilityManager {
	manager := NewAvailabilityManager(f.repo, nil)
	if cache != nil {
		manager.cache = cache
	}
	manager.now = f.clock.Now
	return manager
}

// ============================================================================
// SLOT LIFECYCLE
// ============================================================================

func TestCreateSlotValidation(t *testing.T) {
	f := newFixture(t)
	manager := newAvailabilityManager(f, nil)

	_, err := manager.CreateSlot(context.Background(), model.CreateSlotParams{
		TourID:        f.tourID,
		Date:          time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		TotalCapacity: 0,
	})
	assert.ErrorIs(t, err, model.ErrInvalidStatus)

	_, err = manager.CreateSlot(context.Background(), model.CreateSlotParams{
		TourID:        f.tourID,
		Date:          time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		TotalCapacity: 5,
	})
	assert.ErrorIs(t, err, model.ErrPastDate)
}

func TestCreateSlotDuplicateDate(t *testing.T) {
	f := newFixture(t)
	manager := newAvailabilityManager(f, nil)

	// The fixture already has a slot for this tour on 2026-03-20.
	_, err := manager.CreateSlot(context.Background(), model.CreateSlotParams{
		TourID:        f.tourID,
		Date:          time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		TotalCapacity: 8,
	})
	assert.ErrorIs(t, err, model.ErrDuplicateSlot)

	// Same date for a different tour is fine.
	_, err = manager.CreateSlot(context.Background(), model.CreateSlotParams{
		TourID:        uuid.New(),
		Date:          time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		TotalCapacity: 8,
	})
	assert.NoError(t, err)
}

func TestReconfigureCapacity(t *testing.T) {
	f := newFixture(t)
	manager := newAvailabilityManager(f, nil)
	f.book(t, 3)

	updated, err := manager.ReconfigureCapacity(context.Background(), f.slotID, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, updated.TotalCapacity)
	assert.Equal(t, 3, updated.ReservedCount)

	_, err = manager.ReconfigureCapacity(context.Background(), f.slotID, 2)
	assert.ErrorIs(t, err, model.ErrCapacityBelowReserved)

	// Shrinking down to exactly the reserved count is allowed.
	updated, err = manager.ReconfigureCapacity(context.Background(), f.slotID, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.AvailableCapacity())
}

func TestDeleteSlotGuardedByBookings(t *testing.T) {
	f := newFixture(t)
	manager := newAvailabilityManager(f, nil)
	booking := f.book(t, 1)

	err := manager.DeleteSlot(context.Background(), f.slotID)
	assert.ErrorIs(t, err, model.ErrSlotInUse)

	// Even a cancelled booking keeps the slot referenced for its history.
	require.NoError(t, f.ledger.CancelBooking(context.Background(), booking.ID, ""))
	err = manager.DeleteSlot(context.Background(), f.slotID)
	assert.ErrorIs(t, err, model.ErrSlotInUse)

	empty, err := manager.CreateSlot(context.Background(), model.CreateSlotParams{
		TourID:        f.tourID,
		Date:          time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
		TotalCapacity: 4,
	})
	require.NoError(t, err)
	require.NoError(t, manager.DeleteSlot(context.Background(), empty.ID))

	_, err = manager.GetSlot(context.Background(), empty.ID)
	assert.ErrorIs(t, err, model.ErrSlotNotFound)
}

func TestListSlotsFilters(t *testing.T) {
	f := newFixture(t)
	manager := newAvailabilityManager(f, nil)

	otherTour := uuid.New()
	_, err := manager.CreateSlot(context.Background(), model.CreateSlotParams{
		TourID:        otherTour,
		Date:          time.Date(2026, 3, 25, 0, 0, 0, 0, time.UTC),
		TotalCapacity: 2,
	})
	require.NoError(t, err)
	f.book(t, 4)

	slots, total, err := manager.ListSlots(context.Background(), model.SlotFilter{
		TourIDs: []uuid.UUID{f.tourID},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, slots, 1)
	assert.Equal(t, f.slotID, slots[0].ID)

	// Only the other tour's slot still has room for a party of 2.
	slots, total, err = manager.ListSlots(context.Background(), model.SlotFilter{
		MinAvailable: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, slots, 1)
	assert.Equal(t, otherTour, slots[0].TourID)

	from := time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC)
	_, total, err = manager.ListSlots(context.Background(), model.SlotFilter{
		DateFrom: &from,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

// ============================================================================
// AVAILABILITY CHECK
// ============================================================================

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t)
	manager := newAvailabilityManager(f, nil)
	f.book(t, 3)

	check, err := manager.CheckAvailability(context.Background(), f.slotID, 2)
	require.NoError(t, err)
	assert.True(t, check.CanBook)
	assert.Equal(t, 2, check.Available)
	assert.False(t, check.FromSnapshot)

	check, err = manager.CheckAvailability(context.Background(), f.slotID, 3)
	require.NoError(t, err)
	assert.False(t, check.CanBook)
}

func TestCheckAvailabilityPastDate(t *testing.T) {
	f := newFixture(t)
	manager := newAvailabilityManager(f, nil)
	f.clock.Set(time.Date(2026, 3, 21, 9, 0, 0, 0, time.UTC))

	check, err := manager.CheckAvailability(context.Background(), f.slotID, 1)
	require.NoError(t, err)
	assert.False(t, check.CanBook)
	assert.True(t, check.IsPastDate)
}

func TestCheckAvailabilityServedFromSnapshot(t *testing.T) {
	f := newFixture(t)
	cache := newFakeCache()
	manager := newAvailabilityManager(f, cache)

	first, err := manager.CheckAvailability(context.Background(), f.slotID, 1)
	require.NoError(t, err)
	assert.False(t, first.FromSnapshot)

	second, err := manager.CheckAvailability(context.Background(), f.slotID, 1)
	require.NoError(t, err)
	assert.True(t, second.FromSnapshot)
	assert.Equal(t, first.Available, second.Available)
}

// The snapshot is advisory: it may answer stale until the writer invalidates
// it, and bookings re-check under the row lock anyway.
func TestBookingInvalidatesSnapshot(t *testing.T) {
	f := newFixture(t)
	cache := newFakeCache()
	manager := newAvailabilityManager(f, cache)
	f.ledger.cache = cache

	warm, err := manager.CheckAvailability(context.Background(), f.slotID, 1)
	require.NoError(t, err)
	assert.Equal(t, testCapacity, warm.Available)

	f.book(t, 2)

	fresh, err := manager.CheckAvailability(context.Background(), f.slotID, 1)
	require.NoError(t, err)
	assert.False(t, fresh.FromSnapshot)
	assert.Equal(t, testCapacity-2, fresh.Available)
}
