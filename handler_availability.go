package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/safariworks/tourbooking/model"
)

// ============================================================================
// AVAILABILITY ENDPOINTS
// ============================================================================

// ListAvailability lists upcoming slots with search filters
func (h *BookingHandler) ListAvailability(c *gin.Context) {
	limit, offset := pagination(c, 20)
	filter := model.SlotFilter{
		Limit:  limit,
		Offset: offset,
	}

	for _, raw := range c.QueryArray("tour_id") {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{
				Error:   "validation_failed",
				Message: "Invalid tour_id: " + raw,
			})
			return
		}
		filter.TourIDs = append(filter.TourIDs, id)
	}

	if raw := c.Query("date_from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{
				Error:   "validation_failed",
				Message: "date_from must be YYYY-MM-DD",
			})
			return
		}
		filter.DateFrom = &t
	}
	if raw := c.Query("date_to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{
				Error:   "validation_failed",
				Message: "date_to must be YYYY-MM-DD",
			})
			return
		}
		filter.DateTo = &t
	}
	if raw := c.Query("min_slots"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			filter.MinAvailable = v
		}
	}

	slots, total, err := h.availability.ListSlots(c.Request.Context(), filter)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	responses := make([]model.SlotResponse, 0, len(slots))
	for i := range slots {
		responses = append(responses, slots[i].ToSlotResponse())
	}

	c.JSON(http.StatusOK, model.SlotListResponse{
		Slots: responses,
		Total: total,
	})
}

// GetAvailability returns one slot
func (h *BookingHandler) GetAvailability(c *gin.Context) {
	slotID, err := uuid.Parse(c.Param("slotId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid slot ID format",
		})
		return
	}

	slot, err := h.availability.GetSlot(c.Request.Context(), slotID)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, slot.ToSlotResponse())
}

// CheckAvailability answers the real-time availability question for a party
// size, served from the snapshot cache when warm.
func (h *BookingHandler) CheckAvailability(c *gin.Context) {
	slotID, err := uuid.Parse(c.Query("slot_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_failed",
			Message: "slot_id is required",
		})
		return
	}

	partySize := 1
	if raw := c.Query("party_size"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			partySize = v
		}
	}

	check, err := h.availability.CheckAvailability(c.Request.Context(), slotID, partySize)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, check)
}

// ============================================================================
// OPERATOR ENDPOINTS
// ============================================================================

// CreateSlot schedules a tour date (operator only)
func (h *BookingHandler) CreateSlot(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req model.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_failed",
			Message: err.Error(),
		})
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_failed",
			Message: "date must be YYYY-MM-DD",
		})
		return
	}

	if !h.canManageTour(c.Request.Context(), userID, req.TourID) {
		c.JSON(http.StatusForbidden, model.ErrorResponse{
			Error:   "forbidden",
			Message: "Not allowed to manage this tour",
		})
		return
	}

	slot, err := h.availability.CreateSlot(c.Request.Context(), model.CreateSlotParams{
		TourID:        req.TourID,
		Date:          date,
		TotalCapacity: req.TotalCapacity,
		GuideID:       req.GuideID,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, slot.ToSlotResponse())
}

// ReconfigureSlot changes a slot's total capacity (operator only)
func (h *BookingHandler) ReconfigureSlot(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	slotID, err := uuid.Parse(c.Param("slotId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid slot ID format",
		})
		return
	}

	var req model.ReconfigureSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_failed",
			Message: err.Error(),
		})
		return
	}

	slot, err := h.availability.GetSlot(c.Request.Context(), slotID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if !h.canManageTour(c.Request.Context(), userID, slot.TourID) {
		c.JSON(http.StatusForbidden, model.ErrorResponse{
			Error:   "forbidden",
			Message: "Not allowed to manage this tour",
		})
		return
	}

	updated, err := h.availability.ReconfigureCapacity(c.Request.Context(), slotID, req.TotalCapacity)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated.ToSlotResponse())
}

// DeleteSlot removes an unreferenced slot (operator only)
func (h *BookingHandler) DeleteSlot(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	slotID, err := uuid.Parse(c.Param("slotId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid slot ID format",
		})
		return
	}

	slot, err := h.availability.GetSlot(c.Request.Context(), slotID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if !h.canManageTour(c.Request.Context(), userID, slot.TourID) {
		c.JSON(http.StatusForbidden, model.ErrorResponse{
			Error:   "forbidden",
			Message: "Not allowed to manage this tour",
		})
		return
	}

	if err := h.availability.DeleteSlot(c.Request.Context(), slotID); err != nil {
		writeDomainError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
