package http

import (
	"time"

	"github.com/aerodesk/flight-scheduling-backend/internal/waitlist"
)

type EntryResponse struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`

	RequestedDate   time.Time `json:"requested_date"`
	PreferredStart  time.Time `json:"preferred_start"`
	PreferredEnd    time.Time `json:"preferred_end"`
	DurationMinutes int       `json:"duration_minutes"`

	AircraftID   string `json:"aircraft_id,omitempty"`
	InstructorID string `json:"instructor_id,omitempty"`

	FlexibilityDays  int `json:"flexibility_days"`
	FlexibilityHours int `json:"flexibility_hours"`

	Priority int    `json:"priority"`
	Status   string `json:"status"`

	OfferedBookingID *string    `json:"offered_booking_id,omitempty"`
	OfferExpiresAt   *time.Time `json:"offer_expires_at,omitempty"`

	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewEntryResponse(e *waitlist.Entry) EntryResponse {
	return EntryResponse{
		ID:               e.ID,
		OrganizationID:   e.OrganizationID,
		UserID:           e.UserID,
		RequestedDate:    e.RequestedDate,
		PreferredStart:   e.PreferredStart,
		PreferredEnd:     e.PreferredEnd,
		DurationMinutes:  e.DurationMinutes,
		AircraftID:       e.AircraftID,
		InstructorID:     e.InstructorID,
		FlexibilityDays:  e.FlexibilityDays,
		FlexibilityHours: e.FlexibilityHours,
		Priority:         e.Priority,
		Status:           string(e.Status),
		OfferedBookingID: e.OfferedBookingID,
		OfferExpiresAt:   e.OfferExpiresAt,
		Notes:            e.Notes,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

type AddEntryBody struct {
	OrganizationID string `json:"organization_id" binding:"required,uuid"`

	RequestedDate   time.Time `json:"requested_date" binding:"required"`
	PreferredStart  time.Time `json:"preferred_start" binding:"required"`
	PreferredEnd    time.Time `json:"preferred_end" binding:"required"`
	DurationMinutes int       `json:"duration_minutes" binding:"required,min=1"`

	AircraftID    string `json:"aircraft_id" binding:"omitempty,uuid"`
	AnyAircraft   bool   `json:"any_aircraft"`
	InstructorID  string `json:"instructor_id" binding:"omitempty,uuid"`
	AnyInstructor bool   `json:"any_instructor"`

	FlexibilityDays  int `json:"flexibility_days" binding:"omitempty,min=0"`
	FlexibilityHours int `json:"flexibility_hours" binding:"omitempty,min=0"`

	Priority int    `json:"priority"`
	Notes    string `json:"notes"`
}
