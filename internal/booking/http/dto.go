package http

import (
	"time"

	"github.com/aerodesk/flight-scheduling-backend/internal/booking"
)

type BookingResponse struct {
	ID             string `json:"id"`
	BookingNumber  string `json:"booking_number"`
	OrganizationID string `json:"organization_id"`
	LocationID     string `json:"location_id,omitempty"`
	Type           string `json:"type"`
	Status         string `json:"status"`

	StartTime               time.Time `json:"start_time"`
	EndTime                 time.Time `json:"end_time"`
	PreflightBufferMinutes  int       `json:"preflight_buffer_minutes"`
	PostflightBufferMinutes int       `json:"postflight_buffer_minutes"`
	BlockStart              time.Time `json:"block_start"`
	BlockEnd                time.Time `json:"block_end"`

	AircraftID   string `json:"aircraft_id,omitempty"`
	InstructorID string `json:"instructor_id,omitempty"`
	StudentID    string `json:"student_id,omitempty"`
	PilotID      string `json:"pilot_id,omitempty"`

	EstimatedCost float64  `json:"estimated_cost"`
	ActualCost    *float64 `json:"actual_cost,omitempty"`
	PaymentStatus string   `json:"payment_status"`

	RequiresApproval   bool `json:"requires_approval"`
	WeatherCheckDone   bool `json:"weather_check_done"`
	RiskAssessmentDone bool `json:"risk_assessment_done"`

	CancellationType   *string    `json:"cancellation_type,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	CancellationFee    *float64   `json:"cancellation_fee,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`

	HobbsOut     *float64   `json:"hobbs_out,omitempty"`
	HobbsIn      *float64   `json:"hobbs_in,omitempty"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
	CheckedInAt  *time.Time `json:"checked_in_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewBookingResponse(b *booking.Booking) BookingResponse {
	resp := BookingResponse{
		ID:                      b.ID,
		BookingNumber:           b.BookingNumber,
		OrganizationID:          b.OrganizationID,
		LocationID:              b.LocationID,
		Type:                    string(b.Type),
		Status:                  string(b.Status),
		StartTime:               b.StartTime,
		EndTime:                 b.EndTime,
		PreflightBufferMinutes:  b.PreflightBufferMinutes,
		PostflightBufferMinutes: b.PostflightBufferMinutes,
		BlockStart:              b.BlockStart,
		BlockEnd:                b.BlockEnd,
		AircraftID:              b.AircraftID,
		InstructorID:            b.InstructorID,
		StudentID:               b.StudentID,
		PilotID:                 b.PilotID,
		EstimatedCost:           b.EstimatedCost,
		ActualCost:              b.ActualCost,
		PaymentStatus:           string(b.PaymentStatus),
		RequiresApproval:        b.RequiresApproval,
		WeatherCheckDone:        b.WeatherCheckDone,
		RiskAssessmentDone:      b.RiskAssessmentDone,
		CancellationReason:      b.CancellationReason,
		CancellationFee:         b.CancellationFee,
		CancelledAt:             b.CancelledAt,
		HobbsOut:                b.HobbsOut,
		HobbsIn:                 b.HobbsIn,
		DispatchedAt:            b.DispatchedAt,
		CheckedInAt:             b.CheckedInAt,
		CompletedAt:             b.CompletedAt,
		CreatedBy:               b.CreatedBy,
		CreatedAt:               b.CreatedAt,
		UpdatedAt:               b.UpdatedAt,
	}
	if b.CancellationType != nil {
		t := string(*b.CancellationType)
		resp.CancellationType = &t
	}
	return resp
}

type CreateBookingBody struct {
	OrganizationID string    `json:"organization_id" binding:"required,uuid"`
	LocationID     string    `json:"location_id" binding:"omitempty,uuid"`
	Type           string    `json:"type" binding:"required"`
	StartTime      time.Time `json:"start_time" binding:"required"`
	EndTime        time.Time `json:"end_time" binding:"required"`

	PreflightBufferMinutes  *int `json:"preflight_buffer_minutes" binding:"omitempty,min=0"`
	PostflightBufferMinutes *int `json:"postflight_buffer_minutes" binding:"omitempty,min=0"`

	AircraftID   string `json:"aircraft_id" binding:"omitempty,uuid"`
	InstructorID string `json:"instructor_id" binding:"omitempty,uuid"`
	StudentID    string `json:"student_id" binding:"omitempty,uuid"`
	PilotID      string `json:"pilot_id" binding:"omitempty,uuid"`
}

type UpdateBookingBody struct {
	StartTime               *time.Time `json:"start_time"`
	EndTime                 *time.Time `json:"end_time"`
	PreflightBufferMinutes  *int       `json:"preflight_buffer_minutes" binding:"omitempty,min=0"`
	PostflightBufferMinutes *int       `json:"postflight_buffer_minutes" binding:"omitempty,min=0"`
	AircraftID              *string    `json:"aircraft_id"`
	InstructorID            *string    `json:"instructor_id"`
	StudentID               *string    `json:"student_id"`
	PilotID                 *string    `json:"pilot_id"`
}

type CancelBookingBody struct {
	Reason string `json:"reason"`
}

type DispatchBody struct {
	HobbsOut float64 `json:"hobbs_out" binding:"min=0"`
}

type CompleteBody struct {
	HobbsIn    float64  `json:"hobbs_in" binding:"min=0"`
	ActualCost *float64 `json:"actual_cost" binding:"omitempty,min=0"`
}

type ReadinessBody struct {
	WeatherCheckDone   *bool `json:"weather_check_done"`
	RiskAssessmentDone *bool `json:"risk_assessment_done"`
}

type CheckConflictsBody struct {
	AircraftID       string    `json:"aircraft_id" binding:"omitempty,uuid"`
	InstructorID     string    `json:"instructor_id" binding:"omitempty,uuid"`
	StudentID        string    `json:"student_id" binding:"omitempty,uuid"`
	PilotID          string    `json:"pilot_id" binding:"omitempty,uuid"`
	BlockStart       time.Time `json:"block_start" binding:"required"`
	BlockEnd         time.Time `json:"block_end" binding:"required"`
	ExcludeBookingID string    `json:"exclude_booking_id" binding:"omitempty,uuid"`
}

type ConflictsResponse struct {
	Conflicts []booking.ConflictInfo `json:"conflicts"`
}
