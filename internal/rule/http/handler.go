package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aerodesk/flight-scheduling-backend/internal/pkg/response"
	"github.com/aerodesk/flight-scheduling-backend/internal/rule"
)

type RuleHandler struct {
	service rule.Service
}

func NewHandler(service rule.Service) *RuleHandler {
	return &RuleHandler{service: service}
}

// Create adds a new booking rule.
func (h *RuleHandler) Create(c *gin.Context) {
	var body CreateRuleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	r, err := h.service.Create(c.Request.Context(), rule.CreateRuleRequest{
		OrganizationID:             body.OrganizationID,
		Name:                       body.Name,
		TargetType:                 rule.TargetType(body.TargetType),
		TargetID:                   body.TargetID,
		Priority:                   body.Priority,
		MinDurationMinutes:         body.MinDurationMinutes,
		MaxDurationMinutes:         body.MaxDurationMinutes,
		MinNoticeHours:             body.MinNoticeHours,
		MaxAdvanceDays:             body.MaxAdvanceDays,
		MaxDailyHours:              body.MaxDailyHours,
		MaxWeeklyHours:             body.MaxWeeklyHours,
		MaxConcurrentBookings:      body.MaxConcurrentBookings,
		PreflightBufferMinutes:     body.PreflightBufferMinutes,
		PostflightBufferMinutes:    body.PostflightBufferMinutes,
		RequiresPaymentOnFile:      body.RequiresPaymentOnFile,
		MinAccountBalance:          body.MinAccountBalance,
		FreeCancellationHours:      body.FreeCancellationHours,
		LateCancellationFeePercent: body.LateCancellationFeePercent,
		NoShowFeePercent:           body.NoShowFeePercent,
		RequiresApproval:           body.RequiresApproval,
		EffectiveFrom:              body.EffectiveFrom,
		EffectiveUntil:             body.EffectiveUntil,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewRuleResponse(r))
}

// Get retrieves one rule.
func (h *RuleHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
		return
	}

	r, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewRuleResponse(r))
}

// List retrieves a paginated list of rules.
func (h *RuleHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := rule.Filter{
		OrganizationID: c.Query("organization_id"),
		TargetType:     c.Query("target_type"),
		TargetID:       c.Query("target_id"),
		ActiveOnly:     c.Query("active") == "true",
		Page:           page,
		PageSize:       pageSize,
	}

	rules, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]RuleResponse, len(rules))
	for i, r := range rules {
		items[i] = NewRuleResponse(r)
	}

	c.JSON(http.StatusOK, response.NewPageResponse(items, page, pageSize, total))
}

// Update replaces a rule's definition.
func (h *RuleHandler) Update(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
		return
	}

	var body UpdateRuleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	r, err := h.service.Update(c.Request.Context(), id, rule.UpdateRuleRequest{
		Name:                       body.Name,
		Priority:                   body.Priority,
		MinDurationMinutes:         body.MinDurationMinutes,
		MaxDurationMinutes:         body.MaxDurationMinutes,
		MinNoticeHours:             body.MinNoticeHours,
		MaxAdvanceDays:             body.MaxAdvanceDays,
		MaxDailyHours:              body.MaxDailyHours,
		MaxWeeklyHours:             body.MaxWeeklyHours,
		MaxConcurrentBookings:      body.MaxConcurrentBookings,
		PreflightBufferMinutes:     body.PreflightBufferMinutes,
		PostflightBufferMinutes:    body.PostflightBufferMinutes,
		RequiresPaymentOnFile:      body.RequiresPaymentOnFile,
		MinAccountBalance:          body.MinAccountBalance,
		FreeCancellationHours:      body.FreeCancellationHours,
		LateCancellationFeePercent: body.LateCancellationFeePercent,
		NoShowFeePercent:           body.NoShowFeePercent,
		RequiresApproval:           body.RequiresApproval,
		EffectiveFrom:              body.EffectiveFrom,
		EffectiveUntil:             body.EffectiveUntil,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, NewRuleResponse(r))
}

// Deactivate soft-disables a rule. Rules are never deleted.
func (h *RuleHandler) Deactivate(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
		return
	}

	if err := h.service.Deactivate(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ResolvePolicy returns the merged effective policy for a booking context.
func (h *RuleHandler) ResolvePolicy(c *gin.Context) {
	var body ResolvePolicyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	policy, err := h.service.ResolvePolicy(c.Request.Context(), rule.ResolveContext{
		OrganizationID: body.OrganizationID,
		AircraftID:     body.AircraftID,
		InstructorID:   body.InstructorID,
		StudentID:      body.StudentID,
		LocationID:     body.LocationID,
		BookingType:    body.BookingType,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, policy)
}

// ValidateBooking checks a prospective window against the effective policy
// without creating anything.
func (h *RuleHandler) ValidateBooking(c *gin.Context) {
	var body ValidateBookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	policy, err := h.service.ResolvePolicy(c.Request.Context(), rule.ResolveContext{
		OrganizationID: body.OrganizationID,
		AircraftID:     body.AircraftID,
		InstructorID:   body.InstructorID,
		StudentID:      body.StudentID,
		LocationID:     body.LocationID,
		BookingType:    body.BookingType,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	result := h.service.ValidateWindow(policy, body.StartTime, body.EndTime, time.Now().UTC())
	c.JSON(http.StatusOK, result)
}
