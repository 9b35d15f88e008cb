package http

import (
	"time"

	"github.com/aerodesk/flight-scheduling-backend/internal/availability"
)

type BlockResponse struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	ResourceType   string    `json:"resource_type"`
	ResourceID     string    `json:"resource_id"`
	Kind           string    `json:"kind"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Reason         string    `json:"reason,omitempty"`
	MaxBookings    *int      `json:"max_bookings,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewBlockResponse(a *availability.Availability) BlockResponse {
	return BlockResponse{
		ID:             a.ID,
		OrganizationID: a.OrganizationID,
		ResourceType:   string(a.ResourceType),
		ResourceID:     a.ResourceID,
		Kind:           string(a.Kind),
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
		Reason:         a.Reason,
		MaxBookings:    a.MaxBookings,
		CreatedAt:      a.CreatedAt,
	}
}

type CreateBlockBody struct {
	OrganizationID string    `json:"organization_id" binding:"required,uuid"`
	ResourceType   string    `json:"resource_type" binding:"required,oneof=aircraft instructor student"`
	ResourceID     string    `json:"resource_id" binding:"required,uuid"`
	Kind           string    `json:"kind" binding:"required,oneof=unavailable special"`
	StartTime      time.Time `json:"start_time" binding:"required"`
	EndTime        time.Time `json:"end_time" binding:"required"`
	Reason         string    `json:"reason"`
	MaxBookings    *int      `json:"max_bookings" binding:"omitempty,min=1"`
}

type OperatingHoursResponse struct {
	ID             string     `json:"id"`
	LocationID     string     `json:"location_id"`
	Weekday        int        `json:"weekday"`
	OpenTime       string     `json:"open_time"`
	CloseTime      string     `json:"close_time"`
	EffectiveFrom  *time.Time `json:"effective_from,omitempty"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`
}

func NewOperatingHoursResponse(h *availability.OperatingHours) OperatingHoursResponse {
	return OperatingHoursResponse{
		ID:             h.ID,
		LocationID:     h.LocationID,
		Weekday:        int(h.Weekday),
		OpenTime:       h.OpenTime,
		CloseTime:      h.CloseTime,
		EffectiveFrom:  h.EffectiveFrom,
		EffectiveUntil: h.EffectiveUntil,
	}
}

type SetOperatingHoursBody struct {
	LocationID     string     `json:"location_id" binding:"required,uuid"`
	Weekday        int        `json:"weekday" binding:"min=0,max=6"`
	OpenTime       string     `json:"open_time" binding:"required"`
	CloseTime      string     `json:"close_time" binding:"required"`
	EffectiveFrom  *time.Time `json:"effective_from"`
	EffectiveUntil *time.Time `json:"effective_until"`
}

type SlotsResponse struct {
	Slots []availability.TimeSlot `json:"slots"`
	Total int                     `json:"total"`
}

type ScheduleResponse struct {
	ResourceType string                       `json:"resource_type"`
	ResourceID   string                       `json:"resource_id"`
	Entries      []availability.ScheduleEntry `json:"entries"`
}
