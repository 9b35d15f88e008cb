package http

import (
	"time"

	"github.com/aerodesk/flight-scheduling-backend/internal/rule"
)

type RuleResponse struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	TargetType     string `json:"target_type"`
	TargetID       string `json:"target_id,omitempty"`
	Priority       int    `json:"priority"`

	MinDurationMinutes      *int     `json:"min_duration_minutes,omitempty"`
	MaxDurationMinutes      *int     `json:"max_duration_minutes,omitempty"`
	MinNoticeHours          *int     `json:"min_notice_hours,omitempty"`
	MaxAdvanceDays          *int     `json:"max_advance_days,omitempty"`
	MaxDailyHours           *float64 `json:"max_daily_hours,omitempty"`
	MaxWeeklyHours          *float64 `json:"max_weekly_hours,omitempty"`
	MaxConcurrentBookings   *int     `json:"max_concurrent_bookings,omitempty"`
	PreflightBufferMinutes  *int     `json:"preflight_buffer_minutes,omitempty"`
	PostflightBufferMinutes *int     `json:"postflight_buffer_minutes,omitempty"`

	RequiresPaymentOnFile *bool    `json:"requires_payment_on_file,omitempty"`
	MinAccountBalance     *float64 `json:"min_account_balance,omitempty"`

	FreeCancellationHours      *int     `json:"free_cancellation_hours,omitempty"`
	LateCancellationFeePercent *float64 `json:"late_cancellation_fee_percent,omitempty"`
	NoShowFeePercent           *float64 `json:"no_show_fee_percent,omitempty"`

	RequiresApproval *bool `json:"requires_approval,omitempty"`

	EffectiveFrom  *time.Time `json:"effective_from,omitempty"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`
	Active         bool       `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewRuleResponse(r *rule.BookingRule) RuleResponse {
	return RuleResponse{
		ID:                         r.ID,
		OrganizationID:             r.OrganizationID,
		Name:                       r.Name,
		TargetType:                 string(r.TargetType),
		TargetID:                   r.TargetID,
		Priority:                   r.Priority,
		MinDurationMinutes:         r.MinDurationMinutes,
		MaxDurationMinutes:         r.MaxDurationMinutes,
		MinNoticeHours:             r.MinNoticeHours,
		MaxAdvanceDays:             r.MaxAdvanceDays,
		MaxDailyHours:              r.MaxDailyHours,
		MaxWeeklyHours:             r.MaxWeeklyHours,
		MaxConcurrentBookings:      r.MaxConcurrentBookings,
		PreflightBufferMinutes:     r.PreflightBufferMinutes,
		PostflightBufferMinutes:    r.PostflightBufferMinutes,
		RequiresPaymentOnFile:      r.RequiresPaymentOnFile,
		MinAccountBalance:          r.MinAccountBalance,
		FreeCancellationHours:      r.FreeCancellationHours,
		LateCancellationFeePercent: r.LateCancellationFeePercent,
		NoShowFeePercent:           r.NoShowFeePercent,
		RequiresApproval:           r.RequiresApproval,
		EffectiveFrom:              r.EffectiveFrom,
		EffectiveUntil:             r.EffectiveUntil,
		Active:                     r.Active,
		CreatedAt:                  r.CreatedAt,
		UpdatedAt:                  r.UpdatedAt,
	}
}

type CreateRuleBody struct {
	OrganizationID string `json:"organization_id" binding:"required,uuid"`
	Name           string `json:"name" binding:"required"`
	TargetType     string `json:"target_type" binding:"required"`
	TargetID       string `json:"target_id"`
	Priority       int    `json:"priority"`

	MinDurationMinutes      *int     `json:"min_duration_minutes" binding:"omitempty,min=1"`
	MaxDurationMinutes      *int     `json:"max_duration_minutes" binding:"omitempty,min=1"`
	MinNoticeHours          *int     `json:"min_notice_hours" binding:"omitempty,min=0"`
	MaxAdvanceDays          *int     `json:"max_advance_days" binding:"omitempty,min=1"`
	MaxDailyHours           *float64 `json:"max_daily_hours"`
	MaxWeeklyHours          *float64 `json:"max_weekly_hours"`
	MaxConcurrentBookings   *int     `json:"max_concurrent_bookings"`
	PreflightBufferMinutes  *int     `json:"preflight_buffer_minutes" binding:"omitempty,min=0"`
	PostflightBufferMinutes *int     `json:"postflight_buffer_minutes" binding:"omitempty,min=0"`

	RequiresPaymentOnFile *bool    `json:"requires_payment_on_file"`
	MinAccountBalance     *float64 `json:"min_account_balance"`

	FreeCancellationHours      *int     `json:"free_cancellation_hours" binding:"omitempty,min=0"`
	LateCancellationFeePercent *float64 `json:"late_cancellation_fee_percent" binding:"omitempty,min=0,max=100"`
	NoShowFeePercent           *float64 `json:"no_show_fee_percent" binding:"omitempty,min=0,max=100"`

	RequiresApproval *bool `json:"requires_approval"`

	EffectiveFrom  *time.Time `json:"effective_from"`
	EffectiveUntil *time.Time `json:"effective_until"`
}

// UpdateRuleBody replaces a rule's definition. Organization and target stay
// as created; constraint fields omitted from the body clear back to deferred.
type UpdateRuleBody struct {
	Name     string `json:"name" binding:"required"`
	Priority int    `json:"priority"`

	MinDurationMinutes      *int     `json:"min_duration_minutes" binding:"omitempty,min=1"`
	MaxDurationMinutes      *int     `json:"max_duration_minutes" binding:"omitempty,min=1"`
	MinNoticeHours          *int     `json:"min_notice_hours" binding:"omitempty,min=0"`
	MaxAdvanceDays          *int     `json:"max_advance_days" binding:"omitempty,min=1"`
	MaxDailyHours           *float64 `json:"max_daily_hours"`
	MaxWeeklyHours          *float64 `json:"max_weekly_hours"`
	MaxConcurrentBookings   *int     `json:"max_concurrent_bookings"`
	PreflightBufferMinutes  *int     `json:"preflight_buffer_minutes" binding:"omitempty,min=0"`
	PostflightBufferMinutes *int     `json:"postflight_buffer_minutes" binding:"omitempty,min=0"`

	RequiresPaymentOnFile *bool    `json:"requires_payment_on_file"`
	MinAccountBalance     *float64 `json:"min_account_balance"`

	FreeCancellationHours      *int     `json:"free_cancellation_hours" binding:"omitempty,min=0"`
	LateCancellationFeePercent *float64 `json:"late_cancellation_fee_percent" binding:"omitempty,min=0,max=100"`
	NoShowFeePercent           *float64 `json:"no_show_fee_percent" binding:"omitempty,min=0,max=100"`

	RequiresApproval *bool `json:"requires_approval"`

	EffectiveFrom  *time.Time `json:"effective_from"`
	EffectiveUntil *time.Time `json:"effective_until"`
}

type ResolvePolicyBody struct {
	OrganizationID string `json:"organization_id" binding:"required,uuid"`
	AircraftID     string `json:"aircraft_id" binding:"omitempty,uuid"`
	InstructorID   string `json:"instructor_id" binding:"omitempty,uuid"`
	StudentID      string `json:"student_id" binding:"omitempty,uuid"`
	LocationID     string `json:"location_id" binding:"omitempty,uuid"`
	BookingType    string `json:"booking_type"`
}

type ValidateBookingBody struct {
	ResolvePolicyBody
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required"`
}
