// Package memory provides an in-memory BookingRepository for tests and local
// development. A single mutex serializes transactions, which gives the same
// effective isolation per slot as the row locks the postgres implementation
// takes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/safariworks/tourbooking/model"
	"github.com/safariworks/tourbooking/repository"
)

const dateLayout = "2006-01-02"

type store struct {
	slots        map[uuid.UUID]model.AvailabilitySlot
	bookings     map[uuid.UUID]model.Booking
	bookingOrder []uuid.UUID
	payments     map[uuid.UUID]model.Payment
	paymentOrder []uuid.UUID
	events       []model.OutboxEvent
}

func (s *store) clone() store {
	cp := store{
		slots:        make(map[uuid.UUID]model.AvailabilitySlot, len(s.slots)),
		bookings:     make(map[uuid.UUID]model.Booking, len(s.bookings)),
		bookingOrder: append([]uuid.UUID(nil), s.bookingOrder...),
		payments:     make(map[uuid.UUID]model.Payment, len(s.payments)),
		paymentOrder: append([]uuid.UUID(nil), s.paymentOrder...),
		events:       append([]model.OutboxEvent(nil), s.events...),
	}
	for k, v := range s.slots {
		cp.slots[k] = v
	}
	for k, v := range s.bookings {
		cp.bookings[k] = v
	}
	for k, v := range s.payments {
		cp.payments[k] = v
	}
	return cp
}

// Repository is the in-memory implementation of repository.BookingRepository.
type Repository struct {
	mu sync.Mutex
	st store
}

func NewRepository() *Repository {
	return &Repository{
		st: store{
			slots:    make(map[uuid.UUID]model.AvailabilitySlot),
			bookings: make(map[uuid.UUID]model.Booking),
			payments: make(map[uuid.UUID]model.Payment),
		},
	}
}

// InTransaction serializes on the store mutex and rolls the store back to a
// snapshot when fn fails, matching the all-or-nothing semantics of the
// postgres implementation.
func (r *Repository) InTransaction(ctx context.Context, fn func(tx repository.BookingRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.st.clone()
	if err := fn(&txRepository{st: &r.st}); err != nil {
		r.st = snapshot
		return err
	}
	return nil
}

func (r *Repository) CreateSlot(ctx context.Context, params model.CreateSlotParams) (*model.AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.createSlot(params)
}

func (r *Repository) GetSlotByID(ctx context.Context, slotID uuid.UUID) (*model.AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.getSlot(slotID)
}

func (r *Repository) GetSlotForUpdate(ctx context.Context, slotID uuid.UUID) (*model.AvailabilitySlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.getSlot(slotID)
}

func (r *Repository) SaveSlot(ctx context.Context, slot *model.AvailabilitySlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.saveSlot(slot)
}

func (r *Repository) DeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.deleteSlot(slotID)
}

func (r *Repository) ListSlots(ctx context.Context, filter model.SlotFilter) ([]model.AvailabilitySlot, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.listSlots(filter)
}

func (r *Repository) CountBookingsForSlot(ctx context.Context, slotID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.countBookingsForSlot(slotID)
}

func (r *Repository) CreateBooking(ctx context.Context, params model.CreateBookingParams) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.createBooking(params)
}

func (r *Repository) GetBookingByID(ctx context.Context, bookingID uuid.UUID) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.getBooking(bookingID)
}

func (r *Repository) GetBookingForUpdate(ctx context.Context, bookingID uuid.UUID) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.getBooking(bookingID)
}

func (r *Repository) SaveBooking(ctx context.Context, booking *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.saveBooking(booking)
}

func (r *Repository) ListUserBookings(ctx context.Context, filter model.BookingFilter) ([]model.Booking, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.listUserBookings(filter)
}

func (r *Repository) ListConfirmedBookingsBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.listConfirmedBookingsBefore(cutoff, limit)
}

func (r *Repository) CreatePayment(ctx context.Context, payment *model.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.createPayment(payment)
}

func (r *Repository) GetPaymentByID(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.getPayment(paymentID)
}

func (r *Repository) GetPaymentForUpdate(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.getPayment(paymentID)
}

func (r *Repository) GetPaymentByGatewayTransactionID(ctx context.Context, transactionID string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.getPaymentByGatewayTransactionID(transactionID)
}

func (r *Repository) GetOpenPaymentForBooking(ctx context.Context, bookingID uuid.UUID) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.getOpenPaymentForBooking(bookingID)
}

func (r *Repository) SavePayment(ctx context.Context, payment *model.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.savePayment(payment)
}

func (r *Repository) AppendOutboxEvent(ctx context.Context, event *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.appendOutboxEvent(event)
}

func (r *Repository) ListUnpublishedEvents(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.listUnpublishedEvents(limit)
}

func (r *Repository) MarkEventsPublished(ctx context.Context, eventIDs []uuid.UUID, publishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.markEventsPublished(eventIDs, publishedAt)
}

func (r *Repository) GetDB() *gorm.DB {
	return nil
}

// txRepository operates on the store without locking; the enclosing
// InTransaction already holds the mutex.
type txRepository struct {
	st *store
}

// InTransaction on an already-open transaction joins it, the way gorm nests
// into the outer transaction.
func (t *txRepository) InTransaction(ctx context.Context, fn func(tx repository.BookingRepository) error) error {
	return fn(t)
}

func (t *txRepository) CreateSlot(ctx context.Context, params model.CreateSlotParams) (*model.AvailabilitySlot, error) {
	return t.st.createSlot(params)
}

func (t *txRepository) GetSlotByID(ctx context.Context, slotID uuid.UUID) (*model.AvailabilitySlot, error) {
	return t.st.getSlot(slotID)
}

func (t *txRepository) GetSlotForUpdate(ctx context.Context, slotID uuid.UUID) (*model.AvailabilitySlot, error) {
	return t.st.getSlot(slotID)
}

func (t *txRepository) SaveSlot(ctx context.Context, slot *model.AvailabilitySlot) error {
	return t.st.saveSlot(slot)
}

func (t *txRepository) DeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	return t.st.deleteSlot(slotID)
}

func (t *txRepository) ListSlots(ctx context.Context, filter model.SlotFilter) ([]model.AvailabilitySlot, int, error) {
	return t.st.listSlots(filter)
}

func (t *txRepository) CountBookingsForSlot(ctx context.Context, slotID uuid.UUID) (int64, error) {
	return t.st.countBookingsForSlot(slotID)
}

func (t *txRepository) CreateBooking(ctx context.Context, params model.CreateBookingParams) (*model.Booking, error) {
	return t.st.createBooking(params)
}

func (t *txRepository) GetBookingByID(ctx context.Context, bookingID uuid.UUID) (*model.Booking, error) {
	return t.st.getBooking(bookingID)
}

func (t *txRepository) GetBookingForUpdate(ctx context.Context, bookingID uuid.UUID) (*model.Booking, error) {
	return t.st.getBooking(bookingID)
}

func (t *txRepository) SaveBooking(ctx context.Context, booking *model.Booking) error {
	return t.st.saveBooking(booking)
}

func (t *txRepository) ListUserBookings(ctx context.Context, filter model.BookingFilter) ([]model.Booking, int, error) {
	return t.st.listUserBookings(filter)
}

func (t *txRepository) ListConfirmedBookingsBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Booking, error) {
	return t.st.listConfirmedBookingsBefore(cutoff, limit)
}

func (t *txRepository) CreatePayment(ctx context.Context, payment *model.Payment) error {
	return t.st.createPayment(payment)
}

func (t *txRepository) GetPaymentByID(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	return t.st.getPayment(paymentID)
}

func (t *txRepository) GetPaymentForUpdate(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	return t.st.getPayment(paymentID)
}

func (t *txRepository) GetPaymentByGatewayTransactionID(ctx context.Context, transactionID string) (*model.Payment, error) {
	return t.st.getPaymentByGatewayTransactionID(transactionID)
}

func (t *txRepository) GetOpenPaymentForBooking(ctx context.Context, bookingID uuid.UUID) (*model.Payment, error) {
	return t.st.getOpenPaymentForBooking(bookingID)
}

func (t *txRepository) SavePayment(ctx context.Context, payment *model.Payment) error {
	return t.st.savePayment(payment)
}

func (t *txRepository) AppendOutboxEvent(ctx context.Context, event *model.OutboxEvent) error {
	return t.st.appendOutboxEvent(event)
}

func (t *txRepository) ListUnpublishedEvents(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	return t.st.listUnpublishedEvents(limit)
}

func (t *txRepository) MarkEventsPublished(ctx context.Context, eventIDs []uuid.UUID, publishedAt time.Time) error {
	return t.st.markEventsPublished(eventIDs, publishedAt)
}

func (t *txRepository) GetDB() *gorm.DB {
	return nil
}

// ============================================================================
// STORE OPERATIONS
// ============================================================================

func (s *store) createSlot(params model.CreateSlotParams) (*model.AvailabilitySlot, error) {
	for _, existing := range s.slots {
		if existing.TourID == params.TourID &&
			existing.Date.Format(dateLayout) == params.Date.Format(dateLayout) {
			return nil, model.ErrDuplicateSlot
		}
	}

	slot := model.AvailabilitySlot{
		ID:            uuid.New(),
		TourID:        params.TourID,
		Date:          params.Date,
		TotalCapacity: params.TotalCapacity,
		GuideID:       params.GuideID,
		CreatedAt:     time.Now(),
	}
	s.slots[slot.ID] = slot

	out := slot
	return &out, nil
}

func (s *store) getSlot(slotID uuid.UUID) (*model.AvailabilitySlot, error) {
	slot, ok := s.slots[slotID]
	if !ok {
		return nil, model.ErrSlotNotFound
	}
	out := slot
	return &out, nil
}

func (s *store) saveSlot(slot *model.AvailabilitySlot) error {
	if _, ok := s.slots[slot.ID]; !ok {
		return model.ErrSlotNotFound
	}
	slot.UpdatedAt = time.Now()
	s.slots[slot.ID] = *slot
	return nil
}

func (s *store) deleteSlot(slotID uuid.UUID) error {
	if _, ok := s.slots[slotID]; !ok {
		return model.ErrSlotNotFound
	}
	delete(s.slots, slotID)
	return nil
}

func (s *store) listSlots(filter model.SlotFilter) ([]model.AvailabilitySlot, int, error) {
	var matched []model.AvailabilitySlot
	for _, slot := range s.slots {
		if len(filter.TourIDs) > 0 && !containsID(filter.TourIDs, slot.TourID) {
			continue
		}
		if filter.DateFrom != nil && slot.Date.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && slot.Date.After(*filter.DateTo) {
			continue
		}
		if filter.MinAvailable > 0 && slot.AvailableCapacity() < filter.MinAvailable {
			continue
		}
		matched = append(matched, slot)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.Before(matched[j].Date)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *store) countBookingsForSlot(slotID uuid.UUID) (int64, error) {
	var count int64
	for _, booking := range s.bookings {
		if booking.SlotID == slotID {
			count++
		}
	}
	return count, nil
}

func (s *store) createBooking(params model.CreateBookingParams) (*model.Booking, error) {
	booking := model.Booking{
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
		CreatedAt:           time.Now(),
	}
	s.bookings[booking.ID] = booking
	s.bookingOrder = append(s.bookingOrder, booking.ID)

	out := booking
	return &out, nil
}

func (s *store) getBooking(bookingID uuid.UUID) (*model.Booking, error) {
	booking, ok := s.bookings[bookingID]
	if !ok {
		return nil, model.ErrBookingNotFound
	}
	out := booking
	return &out, nil
}

func (s *store) saveBooking(booking *model.Booking) error {
	if _, ok := s.bookings[booking.ID]; !ok {
		return model.ErrBookingNotFound
	}
	s.bookings[booking.ID] = *booking
	return nil
}

func (s *store) listUserBookings(filter model.BookingFilter) ([]model.Booking, int, error) {
	var matched []model.Booking
	// Newest first, matching the created_at DESC ordering of the postgres
	// implementation.
	for i := len(s.bookingOrder) - 1; i >= 0; i-- {
		booking := s.bookings[s.bookingOrder[i]]
		if booking.TouristID != filter.TouristID {
			continue
		}
		if filter.Status != "" && booking.Status != filter.Status {
			continue
		}
		matched = append(matched, booking)
	}

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *store) listConfirmedBookingsBefore(cutoff time.Time, limit int) ([]model.Booking, error) {
	var matched []model.Booking
	for _, id := range s.bookingOrder {
		booking := s.bookings[id]
		if booking.Status != model.BookingStatusConfirmed {
			continue
		}
		slot, ok := s.slots[booking.SlotID]
		if !ok || !slot.Date.Before(cutoff) {
			continue
		}
		matched = append(matched, booking)
		if limit > 0 && len(matched) >= limit {
			break
		}
	}
	return matched, nil
}

func (s *store) createPayment(payment *model.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	if payment.InitiatedAt.IsZero() {
		payment.InitiatedAt = time.Now()
	}
	s.payments[payment.ID] = *payment
	s.paymentOrder = append(s.paymentOrder, payment.ID)
	return nil
}

func (s *store) getPayment(paymentID uuid.UUID) (*model.Payment, error) {
	payment, ok := s.payments[paymentID]
	if !ok {
		return nil, model.ErrPaymentNotFound
	}
	out := payment
	return &out, nil
}

func (s *store) getPaymentByGatewayTransactionID(transactionID string) (*model.Payment, error) {
	for i := len(s.paymentOrder) - 1; i >= 0; i-- {
		payment := s.payments[s.paymentOrder[i]]
		if payment.GatewayTransactionID != "" && payment.GatewayTransactionID == transactionID {
			out := payment
			return &out, nil
		}
	}
	return nil, model.ErrPaymentNotFound
}

func (s *store) getOpenPaymentForBooking(bookingID uuid.UUID) (*model.Payment, error) {
	// Latest attempt first, matching initiated_at DESC.
	for i := len(s.paymentOrder) - 1; i >= 0; i-- {
		payment := s.payments[s.paymentOrder[i]]
		if payment.BookingID == bookingID && payment.IsOpen() {
			out := payment
			return &out, nil
		}
	}
	return nil, model.ErrPaymentNotFound
}

func (s *store) savePayment(payment *model.Payment) error {
	if _, ok := s.payments[payment.ID]; !ok {
		return model.ErrPaymentNotFound
	}
	s.payments[payment.ID] = *payment
	return nil
}

func (s *store) appendOutboxEvent(event *model.OutboxEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	s.events = append(s.events, *event)
	return nil
}

func (s *store) listUnpublishedEvents(limit int) ([]model.OutboxEvent, error) {
	var matched []model.OutboxEvent
	for _, event := range s.events {
		if event.PublishedAt != nil {
			continue
		}
		matched = append(matched, event)
		if limit > 0 && len(matched) >= limit {
			break
		}
	}
	return matched, nil
}

func (s *store) markEventsPublished(eventIDs []uuid.UUID, publishedAt time.Time) error {
	for i := range s.events {
		if s.events[i].PublishedAt == nil && containsID(eventIDs, s.events[i].ID) {
			at := publishedAt
			s.events[i].PublishedAt = &at
		}
	}
	return nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
