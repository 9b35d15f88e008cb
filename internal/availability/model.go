package availability

import (
	"time"

	"github.com/aerodesk/flight-scheduling-backend/internal/pkg/apperror"
)

var (
	ErrNotFound          = apperror.NotFound("availability block not found")
	ErrHoursNotFound     = apperror.NotFound("operating hours not found")
	ErrInvalidTimeRange  = apperror.Validation("end must be after start")
	ErrInvalidKind       = apperror.Validation("invalid availability kind")
	ErrInvalidResource   = apperror.Validation("invalid resource type")
	ErrInvalidHours      = apperror.Validation("close time must be after open time")
	ErrInvalidTimeOfDay  = apperror.Validation("time of day must be in HH:MM format")
	ErrResourceNotOpen   = apperror.Availability("resource is not open at the requested time")
	ErrInvalidSlotQuery  = apperror.Validation("slot duration and interval must be positive")
	ErrDuplicateWeekday  = apperror.Conflict("operating hours already defined for this weekday and effective date")
	ErrLocationRequired  = apperror.Validation("location_id is required")
	ErrResourceRequired  = apperror.Validation("resource_id is required")
	ErrOrgIDRequired     = apperror.Validation("organization_id is required")
	ErrReasonTooLong     = apperror.Validation("reason must be at most 500 characters")
	ErrMaxBookingsInvald = apperror.Validation("max_bookings must be positive")
)

// ResourceType names a schedulable resource dimension.
type ResourceType string

const (
	ResourceAircraft   ResourceType = "aircraft"
	ResourceInstructor ResourceType = "instructor"
	ResourceStudent    ResourceType = "student"
)

func (t ResourceType) Valid() bool {
	switch t {
	case ResourceAircraft, ResourceInstructor, ResourceStudent:
		return true
	}
	return false
}

// Kind distinguishes manual unavailability from special-availability windows.
type Kind string

const (
	KindUnavailable Kind = "unavailable"
	KindSpecial     Kind = "special"
)

func (k Kind) Valid() bool {
	return k == KindUnavailable || k == KindSpecial
}

// Availability is a manually declared interval during which a resource is
// unavailable (or has capped special availability) for booking.
type Availability struct {
	ID             string
	OrganizationID string
	ResourceType   ResourceType
	ResourceID     string
	Kind           Kind
	StartTime      time.Time
	EndTime        time.Time
	Reason         string
	MaxBookings    *int // only meaningful for special windows
	CreatedAt      time.Time
}

// OperatingHours is a per-weekday open/close bound for a location, applied
// within an effective date range. Times are local to the location's zone.
type OperatingHours struct {
	ID             string
	LocationID     string
	Weekday        time.Weekday
	OpenTime       string // HH:MM local
	CloseTime      string // HH:MM local
	EffectiveFrom  *time.Time
	EffectiveUntil *time.Time
	CreatedAt      time.Time
}

// Fallback bounds used when a location has no configured hours for a weekday.
const (
	DefaultOpenTime  = "08:00"
	DefaultCloseTime = "20:00"
)

// TimeSlot is a candidate booking window.
type TimeSlot struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Overlaps applies the half-open interval test shared with conflict
// detection: [a, b) and [c, d) overlap iff a < d && b > c.
func (s TimeSlot) Overlaps(other TimeSlot) bool {
	return s.StartTime.Before(other.EndTime) && s.EndTime.After(other.StartTime)
}

// ScheduleEntry is one occupied interval on a resource schedule, either a
// booking's block window or a manual availability block.
type ScheduleEntry struct {
	Source    string    `json:"source"` // "booking" or "block"
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Reason    string    `json:"reason,omitempty"`
}

// BlockFilter defines parameters for listing availability blocks.
type BlockFilter struct {
	OrganizationID string
	ResourceType   string
	ResourceID     string
	From           *time.Time
	To             *time.Time
	Page           int
	PageSize       int
}
