package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aerodesk/flight-scheduling-backend/internal/auth"
	"github.com/aerodesk/flight-scheduling-backend/internal/pkg/response"
	"github.com/aerodesk/flight-scheduling-backend/internal/waitlist"
)

type WaitlistHandler struct {
	service waitlist.Service
}

func NewHandler(service waitlist.Service) *WaitlistHandler {
	return &WaitlistHandler{service: service}
}

func entryID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid waitlist entry id"})
		return "", false
	}
	return id, true
}

// Add joins the waitlist for a future slot.
func (h *WaitlistHandler) Add(c *gin.Context) {
	var body AddEntryBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	entry, err := h.service.AddToWaitlist(c.Request.Context(), waitlist.AddEntryRequest{
		OrganizationID:   body.OrganizationID,
		UserID:           auth.GetUserID(c),
		RequestedDate:    body.RequestedDate,
		PreferredStart:   body.PreferredStart,
		PreferredEnd:     body.PreferredEnd,
		DurationMinutes:  body.DurationMinutes,
		AircraftID:       body.AircraftID,
		AnyAircraft:      body.AnyAircraft,
		InstructorID:     body.InstructorID,
		AnyInstructor:    body.AnyInstructor,
		FlexibilityDays:  body.FlexibilityDays,
		FlexibilityHours: body.FlexibilityHours,
		Priority:         body.Priority,
		Notes:            body.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewEntryResponse(entry))
}

// Get retrieves one waitlist entry.
func (h *WaitlistHandler) Get(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}

	entry, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewEntryResponse(entry))
}

// List retrieves a paginated list of waitlist entries.
func (h *WaitlistHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := waitlist.Filter{
		OrganizationID: c.Query("organization_id"),
		UserID:         c.Query("user_id"),
		Status:         c.Query("status"),
		Page:           page,
		PageSize:       pageSize,
	}
	if from := c.Query("date_from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			filter.DateFrom = &t
		}
	}
	if to := c.Query("date_to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			filter.DateTo = &t
		}
	}

	entries, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]EntryResponse, len(entries))
	for i, e := range entries {
		items[i] = NewEntryResponse(e)
	}

	c.JSON(http.StatusOK, response.NewPageResponse(items, page, pageSize, total))
}

// Cancel withdraws a waiting entry.
func (h *WaitlistHandler) Cancel(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}

	entry, err := h.service.CancelEntry(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewEntryResponse(entry))
}

// Accept takes the offered slot; the held booking is confirmed.
func (h *WaitlistHandler) Accept(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}

	entry, err := h.service.AcceptOffer(c.Request.Context(), id, auth.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewEntryResponse(entry))
}

// Decline releases the offered slot back to the calendar.
func (h *WaitlistHandler) Decline(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}

	entry, err := h.service.DeclineOffer(c.Request.Context(), id, auth.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewEntryResponse(entry))
}

// ExpireOffers runs the stale-offer sweep on demand. Normally driven by the
// background worker.
func (h *WaitlistHandler) ExpireOffers(c *gin.Context) {
	count, err := h.service.ProcessExpiredOffers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"expired": count})
}
