package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aerodesk/flight-scheduling-backend/internal/auth"
	"github.com/aerodesk/flight-scheduling-backend/internal/booking"
	"github.com/aerodesk/flight-scheduling-backend/internal/pkg/response"
)

type BookingHandler struct {
	service booking.Service
}

func NewHandler(service booking.Service) *BookingHandler {
	return &BookingHandler{service: service}
}

func bookingID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return "", false
	}
	return id, true
}

// Create schedules a new booking.
func (h *BookingHandler) Create(c *gin.Context) {
	var body CreateBookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	b, err := h.service.Create(c.Request.Context(), booking.CreateBookingRequest{
		OrganizationID:          body.OrganizationID,
		LocationID:              body.LocationID,
		Type:                    booking.Type(body.Type),
		StartTime:               body.StartTime,
		EndTime:                 body.EndTime,
		PreflightBufferMinutes:  body.PreflightBufferMinutes,
		PostflightBufferMinutes: body.PostflightBufferMinutes,
		AircraftID:              body.AircraftID,
		InstructorID:            body.InstructorID,
		StudentID:               body.StudentID,
		PilotID:                 body.PilotID,
		CreatedBy:               auth.GetUserID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewBookingResponse(b))
}

// Get retrieves one booking.
func (h *BookingHandler) Get(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	b, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

// List retrieves a paginated, filtered list of bookings.
func (h *BookingHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := booking.Filter{
		OrganizationID: c.Query("organization_id"),
		LocationID:     c.Query("location_id"),
		AircraftID:     c.Query("aircraft_id"),
		InstructorID:   c.Query("instructor_id"),
		StudentID:      c.Query("student_id"),
		Status:         c.Query("status"),
		Type:           c.Query("type"),
		Page:           page,
		PageSize:       pageSize,
		SortBy:         c.DefaultQuery("sort_by", "start_time"),
		SortOrder:      c.DefaultQuery("sort_order", "ASC"),
	}
	if from := c.Query("start_time_from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.StartTimeFrom = &t
		}
	}
	if to := c.Query("start_time_to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.StartTimeTo = &t
		}
	}

	bookings, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		items[i] = NewBookingResponse(b)
	}

	c.JSON(http.StatusOK, response.NewPageResponse(items, page, pageSize, total))
}

// Update applies a partial update and re-runs validation when timing or
// resources change.
func (h *BookingHandler) Update(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	var body UpdateBookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	b, err := h.service.Update(c.Request.Context(), id, booking.UpdateBookingRequest{
		StartTime:               body.StartTime,
		EndTime:                 body.EndTime,
		PreflightBufferMinutes:  body.PreflightBufferMinutes,
		PostflightBufferMinutes: body.PostflightBufferMinutes,
		AircraftID:              body.AircraftID,
		InstructorID:            body.InstructorID,
		StudentID:               body.StudentID,
		PilotID:                 body.PilotID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

// Cancel cancels a booking and computes the applicable fee.
func (h *BookingHandler) Cancel(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	var body CancelBookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	b, err := h.service.Cancel(c.Request.Context(), id, auth.GetUserID(c), body.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

// Confirm approves a pending booking.
func (h *BookingHandler) Confirm(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	b, err := h.service.Confirm(c.Request.Context(), id, auth.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

// CheckIn marks the crew as arrived.
func (h *BookingHandler) CheckIn(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	b, err := h.service.CheckIn(c.Request.Context(), id, auth.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

// Dispatch releases the aircraft for the flight.
func (h *BookingHandler) Dispatch(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	var body DispatchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	b, err := h.service.Dispatch(c.Request.Context(), id, auth.GetUserID(c), body.HobbsOut)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

// Complete closes out a flight.
func (h *BookingHandler) Complete(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	var body CompleteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	b, err := h.service.Complete(c.Request.Context(), id, auth.GetUserID(c), body.HobbsIn, body.ActualCost)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

// MarkNoShow records a no-show and applies the no-show fee.
func (h *BookingHandler) MarkNoShow(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	b, err := h.service.MarkNoShow(c.Request.Context(), id, auth.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

// UpdateReadiness records the pre-dispatch weather and risk checks.
func (h *BookingHandler) UpdateReadiness(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	var body ReadinessBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	b, err := h.service.UpdateReadiness(c.Request.Context(), id, body.WeatherCheckDone, body.RiskAssessmentDone)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewBookingResponse(b))
}

// CheckConflicts probes a block window without writing anything.
func (h *BookingHandler) CheckConflicts(c *gin.Context) {
	var body CheckConflictsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	conflicts, err := h.service.CheckConflicts(c.Request.Context(), booking.ConflictQuery{
		AircraftID:       body.AircraftID,
		InstructorID:     body.InstructorID,
		StudentID:        body.StudentID,
		PilotID:          body.PilotID,
		BlockStart:       body.BlockStart,
		BlockEnd:         body.BlockEnd,
		ExcludeBookingID: body.ExcludeBookingID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if conflicts == nil {
		conflicts = []booking.ConflictInfo{}
	}
	c.JSON(http.StatusOK, ConflictsResponse{Conflicts: conflicts})
}

// GetCalendar returns the bookings visible in a day or week pane.
func (h *BookingHandler) GetCalendar(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be formatted YYYY-MM-DD"})
		return
	}

	view := booking.CalendarView(c.DefaultQuery("view", string(booking.ViewDay)))
	if view != booking.ViewDay && view != booking.ViewWeek {
		c.JSON(http.StatusBadRequest, gin.H{"error": "view must be day or week"})
		return
	}

	bookings, err := h.service.GetCalendar(c.Request.Context(), booking.CalendarQuery{
		OrganizationID: c.Query("organization_id"),
		View:           view,
		Date:           date,
		LocationID:     c.Query("location_id"),
		AircraftID:     c.Query("aircraft_id"),
		InstructorID:   c.Query("instructor_id"),
		StudentID:      c.Query("student_id"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		items[i] = NewBookingResponse(b)
	}
	c.JSON(http.StatusOK, gin.H{"view": view, "date": c.Query("date"), "bookings": items})
}
