package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/safariworks/tourbooking/cache"
	"github.com/safariworks/tourbooking/ledger"
	"github.com/safariworks/tourbooking/model"
	"github.com/safariworks/tourbooking/repository"
	"github.com/safariworks/tourbooking/service"
)

type BookingHandler struct {
	availability  *ledger.AvailabilityManager
	bookings      *ledger.BookingLedger
	payments      *ledger.PaymentStateMachine
	repo          repository.BookingRepository
	cache         cache.CacheRepository
	canManageTour service.CapabilityChecker
}

func NewBookingHandler(
	availability *ledger.AvailabilityManager,
	bookings *ledger.BookingLedger,
	payments *ledger.PaymentStateMachine,
	repo repository.BookingRepository,
	cacheRepo cache.CacheRepository,
	canManageTour service.CapabilityChecker,
) *BookingHandler {
	return &BookingHandler{
		availability:  availability,
		bookings:      bookings,
		payments:      payments,
		repo:          repo,
		cache:         cacheRepo,
		canManageTour: canManageTour,
	}
}

// ============================================================================
// BOOKING ENDPOINTS
// ============================================================================

// SubmitBooking creates a pending booking against a slot
func (h *BookingHandler) SubmitBooking(c *gin.Context) {
	var req model.SubmitBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_failed",
			Message: err.Error(),
		})
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	booking, err := h.bookings.CreateBooking(c.Request.Context(), ledger.CreateBookingInput{
		TouristID:           userID,
		SlotID:              req.SlotID,
		PartySize:           req.PartySize,
		ContactEmail:        req.ContactEmail,
		ContactPhone:        req.ContactPhone,
		SpecialRequirements: req.SpecialRequirements,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, booking.ToBookingResponse())
}

// GetBooking returns one of the caller's bookings
func (h *BookingHandler) GetBooking(c *gin.Context) {
	booking, ok := h.ownedBooking(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, booking.ToBookingResponse())
}

// ListUserBookings returns the caller's bookings, newest first
func (h *BookingHandler) ListUserBookings(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	limit, offset := pagination(c, 50)
	filter := model.BookingFilter{
		TouristID: userID,
		Status:    c.Query("status"),
		Limit:     limit,
		Offset:    offset,
	}

	bookings, total, err := h.bookings.ListUserBookings(c.Request.Context(), filter)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	responses := make([]model.BookingResponse, 0, len(bookings))
	for i := range bookings {
		responses = append(responses, bookings[i].ToBookingResponse())
	}

	c.JSON(http.StatusOK, model.UserBookingsResponse{
		Bookings: responses,
		Total:    total,
	})
}

// CancelBooking cancels one of the caller's bookings
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	booking, ok := h.ownedBooking(c)
	if !ok {
		return
	}

	var req model.CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{
				Error:   "validation_failed",
				Message: err.Error(),
			})
			return
		}
	}

	if err := h.bookings.CancelBooking(c.Request.Context(), booking.ID, req.Reason); err != nil {
		writeDomainError(c, err)
		return
	}

	updated, err := h.bookings.GetBooking(c.Request.Context(), booking.ID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated.ToBookingResponse())
}

// ============================================================================
// PAYMENT ENDPOINTS
// ============================================================================

// InitiatePayment starts a payment attempt for one of the caller's bookings
func (h *BookingHandler) InitiatePayment(c *gin.Context) {
	booking, ok := h.ownedBooking(c)
	if !ok {
		return
	}

	var req model.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_failed",
			Message: err.Error(),
		})
		return
	}

	payment, err := h.payments.InitiatePayment(c.Request.Context(), booking.ID, req.Method)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, payment.ToPaymentResponse())
}

// CompletePayment is the mock-gateway path that completes a payment and
// confirms its booking.
func (h *BookingHandler) CompletePayment(c *gin.Context) {
	payment, ok := h.ownedPayment(c)
	if !ok {
		return
	}

	if err := h.payments.MarkCompleted(c.Request.Context(), payment.ID); err != nil {
		writeDomainError(c, err)
		return
	}

	updated, err := h.payments.GetPayment(c.Request.Context(), payment.ID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated.ToPaymentResponse())
}

// FailPayment is the mock-gateway path that fails a payment
func (h *BookingHandler) FailPayment(c *gin.Context) {
	payment, ok := h.ownedPayment(c)
	if !ok {
		return
	}

	var req model.FailPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{
				Error:   "validation_failed",
				Message: err.Error(),
			})
			return
		}
	}

	if err := h.payments.MarkFailed(c.Request.Context(), payment.ID, req.Reason); err != nil {
		writeDomainError(c, err)
		return
	}

	updated, err := h.payments.GetPayment(c.Request.Context(), payment.ID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated.ToPaymentResponse())
}

// PaymentWebhook receives gateway callbacks. At-least-once and unordered;
// duplicate callbacks resolve to no-ops inside the state machine.
func (h *BookingHandler) PaymentWebhook(c *gin.Context) {
	var req model.GatewayWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_failed",
			Message: err.Error(),
		})
		return
	}

	if err := h.payments.HandleGatewayCallback(c.Request.Context(), req); err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// HealthCheck handles the health check endpoint
func (h *BookingHandler) HealthCheck(c *gin.Context) {
	sqlDB, err := h.repo.GetDB().DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{
			Error:   "service_unavailable",
			Message: "Database connection failed",
		})
		return
	}
	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{
			Error:   "service_unavailable",
			Message: "Database ping failed",
		})
		return
	}

	if h.cache != nil {
		if err := h.cache.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{
				Error:   "service_unavailable",
				Message: "Cache ping failed",
			})
			return
		}
	}

	c.JSON(http.StatusOK, model.HealthResponse{
		Status:    "healthy",
		Service:   "booking-engine",
		Timestamp: time.Now(),
	})
}

// ============================================================================
// HELPERS
// ============================================================================

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{
			Error:   "unauthorized",
			Message: "User ID not found in token",
		})
		return uuid.Nil, false
	}
	userID, ok := value.(uuid.UUID)
	if !ok {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "internal_error",
			Message: "Invalid user ID format",
		})
		return uuid.Nil, false
	}
	return userID, true
}

// ownedBooking loads the booking from the bookingId route param and verifies
// the caller owns it. A foreign booking reads as not found.
func (h *BookingHandler) ownedBooking(c *gin.Context) (*model.Booking, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		return nil, false
	}

	bookingID, err := uuid.Parse(c.Param("bookingId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid booking ID format",
		})
		return nil, false
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		writeDomainError(c, err)
		return nil, false
	}
	if booking.TouristID != userID {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Error:   "not_found",
			Message: "Booking not found",
		})
		return nil, false
	}
	return booking, true
}

func (h *BookingHandler) ownedPayment(c *gin.Context) (*model.Payment, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		return nil, false
	}

	paymentID, err := uuid.Parse(c.Param("paymentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid payment ID format",
		})
		return nil, false
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		writeDomainError(c, err)
		return nil, false
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), payment.BookingID)
	if err != nil {
		writeDomainError(c, err)
		return nil, false
	}
	if booking.TouristID != userID {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Error:   "not_found",
			Message: "Payment not found",
		})
		return nil, false
	}
	return payment, true
}

func pagination(c *gin.Context, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}

// writeDomainError maps domain errors to HTTP responses
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrSlotNotFound),
		errors.Is(err, model.ErrBookingNotFound),
		errors.Is(err, model.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, model.ErrCapacityExceeded):
		c.JSON(http.StatusConflict, model.ErrorResponse{
			Error:   "capacity_exceeded",
			Message: err.Error(),
		})
	case errors.Is(err, model.ErrDuplicateSlot),
		errors.Is(err, model.ErrSlotInUse),
		errors.Is(err, model.ErrPaymentAlreadyOpen):
		c.JSON(http.StatusConflict, model.ErrorResponse{
			Error:   "conflict",
			Message: err.Error(),
		})
	case errors.Is(err, model.ErrConcurrencyConflict):
		c.JSON(http.StatusConflict, model.ErrorResponse{
			Error:   "concurrency_conflict",
			Message: err.Error(),
		})
	case errors.Is(err, model.ErrPaymentAmountMismatch):
		c.JSON(http.StatusConflict, model.ErrorResponse{
			Error:   "amount_mismatch",
			Message: err.Error(),
		})
	case errors.Is(err, model.ErrNotCancellable):
		c.JSON(http.StatusUnprocessableEntity, model.ErrorResponse{
			Error:   "not_cancellable",
			Message: err.Error(),
		})
	case errors.Is(err, model.ErrPastDate),
		errors.Is(err, model.ErrExceedsMaxParticipants),
		errors.Is(err, model.ErrCapacityBelowReserved),
		errors.Is(err, model.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_failed",
			Message: err.Error(),
		})
	case errors.Is(err, model.ErrCapacityUnderflow):
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "invariant_violation",
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "internal_error",
			Message: "Request failed",
		})
	}
}
