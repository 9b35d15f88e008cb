package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aerodesk/flight-scheduling-backend/internal/availability"
	"github.com/aerodesk/flight-scheduling-backend/internal/pkg/response"
)

type AvailabilityHandler struct {
	service availability.Service
}

func NewHandler(service availability.Service) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// FindSlots returns open candidate windows for a resource on one day. The
// underlying sequence is lazy; consumption stops at the requested limit.
func (h *AvailabilityHandler) FindSlots(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be formatted YYYY-MM-DD"})
		return
	}
	durationMin, _ := strconv.Atoi(c.DefaultQuery("duration_minutes", "60"))
	intervalMin, _ := strconv.Atoi(c.DefaultQuery("interval_minutes", "30"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	seq, err := h.service.FindAvailableSlots(c.Request.Context(), availability.SlotQuery{
		OrganizationID: c.Query("organization_id"),
		ResourceType:   availability.ResourceType(c.Query("resource_type")),
		ResourceID:     c.Query("resource_id"),
		LocationID:     c.Query("location_id"),
		Date:           date,
		Duration:       time.Duration(durationMin) * time.Minute,
		SlotInterval:   time.Duration(intervalMin) * time.Minute,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	slots := make([]availability.TimeSlot, 0, limit)
	for slot := range seq {
		slots = append(slots, slot)
		if len(slots) >= limit {
			break
		}
	}

	c.JSON(http.StatusOK, SlotsResponse{Slots: slots, Total: len(slots)})
}

// CheckResource reports whether a resource is open at one instant.
func (h *AvailabilityHandler) CheckResource(c *gin.Context) {
	at, err := time.Parse(time.RFC3339, c.Query("at"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at must be an RFC3339 timestamp"})
		return
	}

	open, err := h.service.IsResourceAvailable(
		c.Request.Context(),
		availability.ResourceType(c.Query("resource_type")),
		c.Query("resource_id"),
		c.Query("location_id"),
		at,
	)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"available": open})
}

// GetSchedule lists every occupied interval for a resource in a range.
func (h *AvailabilityHandler) GetSchedule(c *gin.Context) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be an RFC3339 timestamp"})
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be an RFC3339 timestamp"})
		return
	}

	resourceType := availability.ResourceType(c.Query("resource_type"))
	resourceID := c.Query("resource_id")

	entries, err := h.service.GetResourceSchedule(c.Request.Context(), resourceType, resourceID, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}

	if entries == nil {
		entries = []availability.ScheduleEntry{}
	}
	c.JSON(http.StatusOK, ScheduleResponse{
		ResourceType: string(resourceType),
		ResourceID:   resourceID,
		Entries:      entries,
	})
}

// CreateBlock declares a manual availability block.
func (h *AvailabilityHandler) CreateBlock(c *gin.Context) {
	var body CreateBlockBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	block, err := h.service.CreateBlock(c.Request.Context(), availability.CreateBlockRequest{
		OrganizationID: body.OrganizationID,
		ResourceType:   availability.ResourceType(body.ResourceType),
		ResourceID:     body.ResourceID,
		Kind:           availability.Kind(body.Kind),
		StartTime:      body.StartTime,
		EndTime:        body.EndTime,
		Reason:         body.Reason,
		MaxBookings:    body.MaxBookings,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewBlockResponse(block))
}

// ListBlocks retrieves a paginated list of availability blocks.
func (h *AvailabilityHandler) ListBlocks(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := availability.BlockFilter{
		OrganizationID: c.Query("organization_id"),
		ResourceType:   c.Query("resource_type"),
		ResourceID:     c.Query("resource_id"),
		Page:           page,
		PageSize:       pageSize,
	}
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = &t
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = &t
		}
	}

	blocks, total, err := h.service.ListBlocks(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]BlockResponse, len(blocks))
	for i, b := range blocks {
		items[i] = NewBlockResponse(b)
	}

	c.JSON(http.StatusOK, response.NewPageResponse(items, page, pageSize, total))
}

// DeleteBlock removes a manual block.
func (h *AvailabilityHandler) DeleteBlock(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid block id"})
		return
	}

	if err := h.service.DeleteBlock(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// SetOperatingHours configures a location's weekday open/close bounds.
func (h *AvailabilityHandler) SetOperatingHours(c *gin.Context) {
	var body SetOperatingHoursBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	hours, err := h.service.SetOperatingHours(c.Request.Context(), availability.SetHoursRequest{
		LocationID:     body.LocationID,
		Weekday:        time.Weekday(body.Weekday),
		OpenTime:       body.OpenTime,
		CloseTime:      body.CloseTime,
		EffectiveFrom:  body.EffectiveFrom,
		EffectiveUntil: body.EffectiveUntil,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewOperatingHoursResponse(hours))
}

// ListOperatingHours lists a location's configured weekday hours.
func (h *AvailabilityHandler) ListOperatingHours(c *gin.Context) {
	locationID := c.Query("location_id")
	if _, err := uuid.Parse(locationID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location id"})
		return
	}

	hours, err := h.service.ListOperatingHours(c.Request.Context(), locationID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]OperatingHoursResponse, len(hours))
	for i, oh := range hours {
		items[i] = NewOperatingHoursResponse(oh)
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
