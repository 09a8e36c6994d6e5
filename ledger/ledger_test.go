package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safariworks/tourbooking/model"
	"github.com/safariworks/tourbooking/repository"
	"github.com/safariworks/tourbooking/repository/memory"
	"github.com/safariworks/tourbooking/service"
)

// ============================================================================
// TEST FIXTURE
// ============================================================================

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type stubCatalog struct {
	mu    sync.Mutex
	tours map[uuid.UUID]service.TourDetails
}

func (c *stubCatalog) GetTour(ctx context.Context, tourID uuid.UUID) (*service.TourDetails, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tour, ok := c.tours[tourID]
	if !ok {
		return nil, fmt.Errorf("tour %s not found", tourID)
	}
	out := tour
	return &out, nil
}

func (c *stubCatalog) setPrice(tourID uuid.UUID, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tour := c.tours[tourID]
	tour.Price = price
	c.tours[tourID] = tour
}

type stubIdentity struct {
	contact service.ContactInfo
	roles   []string
}

func (i *stubIdentity) GetContactInfo(ctx context.Context, userID uuid.UUID) (*service.ContactInfo, error) {
	out := i.contact
	return &out, nil
}

func (i *stubIdentity) GetRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return i.roles, nil
}

type fakeCache struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]model.SlotSnapshot
}

func newFakeCache() *fakeCache {
	return &fakeCache{snapshots: make(map[uuid.UUID]model.SlotSnapshot)}
}

func (c *fakeCache) GetSlotSnapshot(ctx context.Context, slotID uuid.UUID) (*model.SlotSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot, ok := c.snapshots[slotID]
	if !ok {
		return nil, nil
	}
	out := snapshot
	return &out, nil
}

func (c *fakeCache) SetSlotSnapshot(ctx context.Context, snapshot *model.SlotSnapshot, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[snapshot.SlotID] = *snapshot
	return nil
}

func (c *fakeCache) InvalidateSlotSnapshot(ctx context.Context, slotID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, slotID)
	return nil
}

func (c *fakeCache) Ping(ctx context.Context) error {
	return nil
}

const (
	testPrice           = 150000.0
	testMaxParticipants = 8
	testCapacity        = 5
)

type fixture struct {
	repo     *memory.Repository
	catalog  *stubCatalog
	identity *stubIdentity
	clock    *fakeClock
	ledger   *BookingLedger
	payments *PaymentStateMachine
	tourID   uuid.UUID
	slotID   uuid.UUID
}

// newFixture wires a ledger over the in-memory repository with one tour and
// one slot ten days out from the frozen clock.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := memory.NewRepository()
	clock := &fakeClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}

	tourID := uuid.New()
	catalog := &stubCatalog{tours: map[uuid.UUID]service.TourDetails{
		tourID: {
			TourID:          tourID,
			Name:            "Gorilla Trekking",
			Price:           testPrice,
			MaxParticipants: testMaxParticipants,
		},
	}}
	identity := &stubIdentity{contact: service.ContactInfo{
		Email: "tourist@example.com",
		Phone: "+256700000000",
	}}

	slot, err := repo.CreateSlot(context.Background(), model.CreateSlotParams{
		TourID:        tourID,
		Date:          time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		TotalCapacity: testCapacity,
	})
	require.NoError(t, err)

	bookings := NewBookingLedger(repo, catalog, identity, nil)
	bookings.now = clock.Now
	payments := NewPaymentStateMachine(repo)
	payments.now = clock.Now

	return &fixture{
		repo:     repo,
		catalog:  catalog,
		identity: identity,
		clock:    clock,
		ledger:   bookings,
		payments: payments,
		tourID:   tourID,
		slotID:   slot.ID,
	}
}

func (f *fixture) book(t *testing.T, partySize int) *model.Booking {
	t.Helper()
	booking, err := f.ledger.CreateBooking(context.Background(), CreateBookingInput{
		TouristID: uuid.New(),
		SlotID:    f.slotID,
		PartySize: partySize,
	})
	require.NoError(t, err)
	return booking
}

// payAndConfirm drives a booking through initiate and complete, which
// confirms it.
func (f *fixture) payAndConfirm(t *testing.T, bookingID uuid.UUID) *model.Payment {
	t.Helper()
	payment, err := f.payments.InitiatePayment(context.Background(), bookingID, model.PaymentMethodMpesa)
	require.NoError(t, err)
	require.NoError(t, f.payments.MarkCompleted(context.Background(), payment.ID))
	return payment
}

func (f *fixture) reservedCount(t *testing.T) int {
	t.Helper()
	slot, err := f.repo.GetSlotByID(context.Background(), f.slotID)
	require.NoError(t, err)
	return slot.ReservedCount
}

func (f *fixture) eventCount(t *testing.T, eventType string) int {
	t.Helper()
	events, err := f.repo.ListUnpublishedEvents(context.Background(), 0)
	require.NoError(t, err)
	count := 0
	for _, event := range events {
		if event.EventType == eventType {
			count++
		}
	}
	return count
}

// ============================================================================
// CREATE BOOKING
// ============================================================================

func TestCreateBookingReservesCapacity(t *testing.T) {
	f := newFixture(t)

	booking := f.book(t, 3)

	assert.Equal(t, model.BookingStatusPending, booking.Status)
	assert.Equal(t, testPrice, booking.UnitPrice)
	assert.Equal(t, testPrice*3, booking.TotalCost)
	assert.Equal(t, "tourist@example.com", booking.ContactEmail)
	assert.Equal(t, 3, f.reservedCount(t))
	assert.Equal(t, 1, f.eventCount(t, model.EventBookingCreated))
}

func TestCreateBookingReferenceCode(t *testing.T) {
	f := newFixture(t)

	booking := f.book(t, 1)

	code := booking.ReferenceCode()
	assert.Len(t, code, 12)
	assert.Equal(t, "UWA-", code[:4])
	assert.Equal(t, code, booking.ReferenceCode())
}

func TestCreateBookingCapacityExceeded(t *testing.T) {
	f := newFixture(t)

	f.book(t, 3)

	_, err := f.ledger.CreateBooking(context.Background(), CreateBookingInput{
		TouristID: uuid.New(),
		SlotID:    f.slotID,
		PartySize: 3,
	})
	assert.ErrorIs(t, err, model.ErrCapacityExceeded)
	assert.Equal(t, 3, f.reservedCount(t))
	assert.Equal(t, 1, f.eventCount(t, model.EventBookingCreated))
}

func TestCreateBookingPastDate(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(time.Date(2026, 3, 21, 9, 0, 0, 0, time.UTC))

	_, err := f.ledger.CreateBooking(context.Background(), CreateBookingInput{
		TouristID: uuid.New(),
		SlotID:    f.slotID,
		PartySize: 1,
	})
	assert.ErrorIs(t, err, model.ErrPastDate)
	assert.Equal(t, 0, f.reservedCount(t))
}

func TestCreateBookingOnSlotDateAllowed(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(time.Date(2026, 3, 20, 6, 0, 0, 0, time.UTC))

	booking := f.book(t, 1)
	assert.Equal(t, model.BookingStatusPending, booking.Status)
}

func TestCreateBookingExceedsMaxParticipants(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.CreateBooking(context.Background(), CreateBookingInput{
		TouristID: uuid.New(),
		SlotID:    f.slotID,
		PartySize: testMaxParticipants + 1,
	})
	assert.ErrorIs(t, err, model.ErrExceedsMaxParticipants)
	assert.Equal(t, 0, f.reservedCount(t))
}

func TestCreateBookingInvalidPartySize(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.CreateBooking(context.Background(), CreateBookingInput{
		TouristID: uuid.New(),
		SlotID:    f.slotID,
		PartySize: 0,
	})
	assert.ErrorIs(t, err, model.ErrInvalidStatus)
}

func TestCreateBookingUnknownSlot(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.CreateBooking(context.Background(), CreateBookingInput{
		TouristID: uuid.New(),
		SlotID:    uuid.New(),
		PartySize: 1,
	})
	assert.ErrorIs(t, err, model.ErrSlotNotFound)
}

func TestCreateBookingKeepsSuppliedContact(t *testing.T) {
	f := newFixture(t)

	booking, err := f.ledger.CreateBooking(context.Background(), CreateBookingInput{
		TouristID:    uuid.New(),
		SlotID:       f.slotID,
		PartySize:    1,
		ContactEmail: "custom@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "custom@example.com", booking.ContactEmail)
}

// Concurrent bookings against one slot must never oversell it, whatever the
// interleaving.
func TestConcurrentBookingsNeverOversell(t *testing.T) {
	f := newFixture(t)

	slot, err := f.repo.CreateSlot(context.Background(), model.CreateSlotParams{
		TourID:        f.tourID,
		Date:          time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC),
		TotalCapacity: 10,
	})
	require.NoError(t, err)

	const attempts = 25
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.CreateBooking(context.Background(), CreateBookingInput{
				TouristID: uuid.New(),
				SlotID:    slot.ID,
				PartySize: 1,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, model.ErrCapacityExceeded)
		}
	}
	assert.Equal(t, 10, successes)

	final, err := f.repo.GetSlotByID(context.Background(), slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, final.ReservedCount)
}

// ============================================================================
// COST PINNING
// ============================================================================

func TestBookingCostPinnedAgainstPriceChange(t *testing.T) {
	f := newFixture(t)

	booking := f.book(t, 2)
	f.catalog.setPrice(f.tourID, testPrice*2)

	payment, err := f.payments.InitiatePayment(context.Background(), booking.ID, model.PaymentMethodCard)
	require.NoError(t, err)
	assert.Equal(t, testPrice*2, payment.Amount)

	stored, err := f.repo.GetBookingByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, testPrice*2, stored.TotalCost)
	assert.Equal(t, testPrice, stored.UnitPrice)
}

// ============================================================================
// CONFIRM
// ============================================================================

func TestConfirmBookingRequiresCompletedPayment(t *testing.T) {
	f := newFixture(t)
	booking := f.book(t, 1)

	err := f.ledger.ConfirmBooking(context.Background(), booking.ID)
	assert.ErrorIs(t, err, model.ErrInvalidStatus)

	_, err = f.payments.InitiatePayment(context.Background(), booking.ID, model.PaymentMethodCash)
	require.NoError(t, err)
	err = f.ledger.ConfirmBooking(context.Background(), booking.ID)
	assert.ErrorIs(t, err, model.ErrInvalidStatus)
}

func TestConfirmBookingIdempotent(t *testing.T) {
	f := newFixture(t)
	booking := f.book(t, 2)
	f.payAndConfirm(t, booking.ID)

	confirmed, err := f.repo.GetBookingByID(context.Background(), booking.ID)
	require.NoError(t, err)
	require.Equal(t, model.BookingStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)
	firstConfirmedAt := *confirmed.ConfirmedAt

	require.NoError(t, f.ledger.ConfirmBooking(context.Background(), booking.ID))

	again, err := f.repo.GetBookingByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, firstConfirmedAt, *again.ConfirmedAt)
	// Capacity was reserved at creation; confirmation must not decrement
	// again.
	assert.Equal(t, 2, f.reservedCount(t))
}

// ============================================================================
// CANCEL
// ============================================================================

func TestCancelPendingBookingRestoresCapacity(t *testing.T) {
	f := newFixture(t)
	booking := f.book(t, 3)

	require.NoError(t, f.ledger.CancelBooking(context.Background(), booking.ID, "change of plans"))

	cancelled, err := f.repo.GetBookingByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 0, f.reservedCount(t))
	assert.Equal(t, 1, f.eventCount(t, model.EventBookingCancelled))
	assert.Equal(t, 0, f.eventCount(t, model.EventBookingRefunded))
}

func TestCancelCancelledBookingRejected(t *testing.T) {
	f := newFixture(t)
	booking := f.book(t, 2)
	require.NoError(t, f.ledger.CancelBooking(context.Background(), booking.ID, ""))

	err := f.ledger.CancelBooking(context.Background(), booking.ID, "")
	assert.ErrorIs(t, err, model.ErrNotCancellable)
	assert.Equal(t, 0, f.reservedCount(t))
}

func TestCancelConfirmedBookingRefundsPayment(t *testing.T) {
	f := newFixture(t)
	booking := f.book(t, 2)
	payment := f.payAndConfirm(t, booking.ID)

	require.NoError(t, f.ledger.CancelBooking(context.Background(), booking.ID, "emergency"))

	cancelled, err := f.repo.GetBookingByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, 0, f.reservedCount(t))

	refunded, err := f.repo.GetPaymentByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, refunded.Status)
	assert.Equal(t, 1, f.eventCount(t, model.EventBookingRefunded))
}

func TestCancelAfterDatePassedRejected(t *testing.T) {
	f := newFixture(t)
	booking := f.book(t, 1)
	f.clock.Set(time.Date(2026, 3, 21, 9, 0, 0, 0, time.UTC))

	err := f.ledger.CancelBooking(context.Background(), booking.ID, "")
	assert.ErrorIs(t, err, model.ErrNotCancellable)
	assert.Equal(t, 1, f.reservedCount(t))
}

// A cancelled booking frees capacity that a waiting party can immediately
// take.
func TestCancelFreesCapacityForNewBooking(t *testing.T) {
	f := newFixture(t)

	first := f.book(t, 3)

	_, err := f.ledger.CreateBooking(context.Background(), CreateBookingInput{
		TouristID: uuid.New(),
		SlotID:    f.slotID,
		PartySize: 3,
	})
	require.ErrorIs(t, err, model.ErrCapacityExceeded)

	require.NoError(t, f.ledger.CancelBooking(context.Background(), first.ID, ""))

	second := f.book(t, 3)
	assert.Equal(t, model.BookingStatusPending, second.Status)

	third := f.book(t, 2)
	assert.Equal(t, model.BookingStatusPending, third.Status)
	assert.Equal(t, testCapacity, f.reservedCount(t))

	_, err = f.ledger.CreateBooking(context.Background(), CreateBookingInput{
		TouristID: uuid.New(),
		SlotID:    f.slotID,
		PartySize: 1,
	})
	assert.ErrorIs(t, err, model.ErrCapacityExceeded)
}

// ============================================================================
// COMPLETION SWEEP AND REFUND
// ============================================================================

func TestCompletePastBookings(t *testing.T) {
	f := newFixture(t)
	confirmed := f.book(t, 1)
	f.payAndConfirm(t, confirmed.ID)
	pending := f.book(t, 1)

	f.clock.Set(time.Date(2026, 3, 25, 9, 0, 0, 0, time.UTC))

	count, err := f.ledger.CompletePastBookings(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	swept, err := f.repo.GetBookingByID(context.Background(), confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCompleted, swept.Status)

	untouched, err := f.repo.GetBookingByID(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, untouched.Status)

	count, err = f.ledger.CompletePastBookings(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCompletedBookingNotCancellable(t *testing.T) {
	f := newFixture(t)
	booking := f.book(t, 1)
	f.payAndConfirm(t, booking.ID)
	f.clock.Set(time.Date(2026, 3, 25, 9, 0, 0, 0, time.UTC))

	_, err := f.ledger.CompletePastBookings(context.Background(), 100)
	require.NoError(t, err)

	err = f.ledger.CancelBooking(context.Background(), booking.ID, "")
	assert.ErrorIs(t, err, model.ErrNotCancellable)
}

func TestRefundCompletedBooking(t *testing.T) {
	f := newFixture(t)
	booking := f.book(t, 2)
	payment := f.payAndConfirm(t, booking.ID)
	f.clock.Set(time.Date(2026, 3, 25, 9, 0, 0, 0, time.UTC))
	_, err := f.ledger.CompletePastBookings(context.Background(), 100)
	require.NoError(t, err)

	require.NoError(t, f.ledger.RefundCompletedBooking(context.Background(), booking.ID, "tour cancelled by operator"))

	refunded, err := f.repo.GetBookingByID(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusRefunded, refunded.Status)

	refundedPayment, err := f.repo.GetPaymentByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, refundedPayment.Status)
}

func TestRefundPendingBookingRejected(t *testing.T) {
	f := newFixture(t)
	booking := f.book(t, 1)

	err := f.ledger.RefundCompletedBooking(context.Background(), booking.ID, "")
	assert.ErrorIs(t, err, model.ErrInvalidStatus)
}

// ============================================================================
// CONFLICT RETRY
// ============================================================================

// conflictRepository fails the first conflictsLeft transactions with a lock
// conflict, then delegates.
type conflictRepository struct {
	repository.BookingRepository
	mu            sync.Mutex
	conflictsLeft int
	attempts      int
}

func (r *conflictRepository) InTransaction(ctx context.Context, fn func(tx repository.BookingRepository) error) error {
	r.mu.Lock()
	r.attempts++
	fail := r.conflictsLeft > 0
	if fail {
		r.conflictsLeft--
	}
	r.mu.Unlock()

	if fail {
		return fmt.Errorf("%w: could not serialize access", model.ErrConcurrencyConflict)
	}
	return r.BookingRepository.InTransaction(ctx, fn)
}

func TestTransientConflictRetried(t *testing.T) {
	f := newFixture(t)
	wrapped := &conflictRepository{BookingRepository: f.repo, conflictsLeft: 2}
	bookings := NewBookingLedger(wrapped, f.catalog, f.identity, nil)
	bookings.now = f.clock.Now

	booking, err := bookings.CreateBooking(context.Background(), CreateBookingInput{
		TouristID: uuid.New(),
		SlotID:    f.slotID,
		PartySize: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, booking.Status)
	assert.Equal(t, 3, wrapped.attempts)
}

func TestPersistentConflictSurfaces(t *testing.T) {
	f := newFixture(t)
	wrapped := &conflictRepository{BookingRepository: f.repo, conflictsLeft: 100}
	bookings := NewBookingLedger(wrapped, f.catalog, f.identity, nil)
	bookings.now = f.clock.Now

	_, err := bookings.CreateBooking(context.Background(), CreateBookingInput{
		TouristID: uuid.New(),
		SlotID:    f.slotID,
		PartySize: 1,
	})
	assert.ErrorIs(t, err, model.ErrConcurrencyConflict)
	assert.Equal(t, maxTxAttempts, wrapped.attempts)
	assert.Equal(t, 0, f.reservedCount(t))
}
