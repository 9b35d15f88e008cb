package booking

import (
	"fmt"
	"time"

	"github.com/aerodesk/flight-scheduling-backend/internal/pkg/apperror"
)

var (
	ErrNotFound           = apperror.NotFound("booking not found")
	ErrInvalidTimeRange   = apperror.Validation("scheduled end must be after scheduled start")
	ErrStartTimePast      = apperror.Validation("cannot create booking in the past")
	ErrDurationOutOfRange = apperror.Validation("booking duration must be between 15 and 480 minutes")
	ErrInvalidType        = apperror.Validation("invalid booking type")
	ErrNegativeBuffer     = apperror.Validation("buffer minutes cannot be negative")
	ErrMissingPerson      = apperror.Validation("rental bookings require a student or pilot")
	ErrMissingCrew        = apperror.Validation("training and check-ride bookings require an instructor and a student")
	ErrNoResources        = apperror.Validation("at least one resource must be specified")
	ErrNotEditable        = apperror.State("booking can only be modified while draft, pending approval or scheduled")
	ErrNotCancellable     = apperror.State("booking can no longer be cancelled")
	ErrNotPendingApproval = apperror.State("booking is not pending approval")
	ErrNotScheduled       = apperror.State("booking is not scheduled")
	ErrNotCheckedIn       = apperror.State("booking is not checked in")
	ErrNotInProgress      = apperror.State("booking is not in progress")
	ErrDispatchTooEarly   = apperror.State("dispatch is allowed at most one hour before the scheduled start")
	ErrDispatchNotReady   = apperror.State("weather check and risk assessment must be completed before dispatch")
	ErrHobbsMismatch      = apperror.State("hobbs-in must be greater than or equal to hobbs-out")
	ErrAircraftGrounded   = apperror.Availability("aircraft is not airworthy or not available")
	ErrCalendarBusy       = apperror.RetryableConflict("resource calendar is busy, please retry")
)

// Scheduling bounds shared by create and update validation.
const (
	MinDurationMinutes = 15
	MaxDurationMinutes = 480
	// PastGrace tolerates clock skew on "start not in the past" checks.
	PastGrace = 5 * time.Minute
	// DispatchLead is how early a flight may be dispatched.
	DispatchLead = time.Hour
)

// Status is the booking lifecycle state.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusScheduled       Status = "scheduled"
	StatusCheckedIn       Status = "checked_in"
	StatusInProgress      Status = "in_progress"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
	StatusNoShow          Status = "no_show"
)

// ActiveStatuses are the states that reserve block time on a calendar.
var ActiveStatuses = []Status{
	StatusDraft, StatusPendingApproval, StatusScheduled, StatusCheckedIn, StatusInProgress,
}

func (s Status) Active() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// transitions holds the legal status edges. Everything else is a StateError.
var transitions = map[Status][]Status{
	StatusDraft:           {StatusPendingApproval, StatusScheduled, StatusCancelled},
	StatusPendingApproval: {StatusScheduled, StatusCancelled},
	StatusScheduled:       {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn:       {StatusInProgress},
	StatusInProgress:      {StatusCompleted},
}

// CanTransition reports whether from -> to is a legal status edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Type classifies the purpose of a booking.
type Type string

const (
	TypeFlight      Type = "flight"
	TypeTraining    Type = "training"
	TypeCheckRide   Type = "check_ride"
	TypeRental      Type = "rental"
	TypeMaintenance Type = "maintenance"
	TypeOther       Type = "other"
)

func (t Type) Valid() bool {
	switch t {
	case TypeFlight, TypeTraining, TypeCheckRide, TypeRental, TypeMaintenance, TypeOther:
		return true
	}
	return false
}

// PaymentStatus tracks settlement of the booking cost.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentWaived   PaymentStatus = "waived"
	PaymentRefunded PaymentStatus = "refunded"
)

// CancellationType records how a booking ended up cancelled.
type CancellationType string

const (
	CancelStandard CancellationType = "standard"
	CancelLate     CancellationType = "late"
	CancelNoShow   CancellationType = "no_show"
)

// Booking is a reservation of one or more resources for a time window. The
// block window (scheduled window extended by the buffers) is what is actually
// reserved against double-booking.
type Booking struct {
	ID             string
	OrganizationID string
	LocationID     string
	BookingNumber  string // B-<year>-<seq>, unique per org per calendar year, immutable
	Type           Type
	Status         Status

	StartTime               time.Time
	EndTime                 time.Time
	PreflightBufferMinutes  int
	PostflightBufferMinutes int
	BlockStart              time.Time
	BlockEnd                time.Time

	AircraftID   string
	InstructorID string
	StudentID    string
	PilotID      string

	EstimatedCost float64
	ActualCost    *float64
	PaymentStatus PaymentStatus

	RequiresApproval bool

	CancellationType   *CancellationType
	CancellationReason *string
	CancellationFee    *float64
	CancelledAt        *time.Time
	CancelledBy        *string

	WeatherCheckDone   bool
	RiskAssessmentDone bool
	HobbsOut           *float64
	HobbsIn            *float64
	DispatchedAt       *time.Time
	CheckedInAt        *time.Time
	CompletedAt        *time.Time

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DurationMinutes is the scheduled (not block) duration.
func (b *Booking) DurationMinutes() int {
	return int(b.EndTime.Sub(b.StartTime).Minutes())
}

// ComputeBlockWindow derives the block window from the scheduled window and
// the buffer minutes. block_start <= start < end <= block_end always holds
// because buffers are non-negative.
func (b *Booking) ComputeBlockWindow() {
	b.BlockStart = b.StartTime.Add(-time.Duration(b.PreflightBufferMinutes) * time.Minute)
	b.BlockEnd = b.EndTime.Add(time.Duration(b.PostflightBufferMinutes) * time.Minute)
}

// Dimension names one conflict-detection axis of a booking.
type Dimension string

const (
	DimAircraft   Dimension = "aircraft"
	DimInstructor Dimension = "instructor"
	DimStudent    Dimension = "student"
)

// ConflictInfo describes one colliding booking, returned inside the details
// of a ConflictError so callers can render the collision.
type ConflictInfo struct {
	BookingID     string    `json:"booking_id"`
	BookingNumber string    `json:"booking_number"`
	Dimension     Dimension `json:"dimension"`
	ResourceID    string    `json:"resource_id"`
	BlockStart    time.Time `json:"block_start"`
	BlockEnd      time.Time `json:"block_end"`
	Status        Status    `json:"status"`
}

// NewConflictError builds the typed conflict error carrying every collision.
func NewConflictError(conflicts []ConflictInfo) error {
	return apperror.Conflict(
		fmt.Sprintf("requested block window collides with %d existing booking(s)", len(conflicts)),
	).WithDetails(conflicts)
}

// FormatBookingNumber renders the human-readable booking number.
func FormatBookingNumber(year, seq int) string {
	return fmt.Sprintf("B-%d-%04d", year, seq)
}

// Filter defines parameters for listing bookings.
type Filter struct {
	OrganizationID string
	LocationID     string
	AircraftID     string
	InstructorID   string
	StudentID      string
	Status         string
	Type           string
	StartTimeFrom  *time.Time
	StartTimeTo    *time.Time
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// CalendarView selects the span of a calendar query.
type CalendarView string

const (
	ViewDay  CalendarView = "day"
	ViewWeek CalendarView = "week"
)

// CalendarQuery requests the bookings visible in a calendar pane.
type CalendarQuery struct {
	OrganizationID string
	View           CalendarView
	Date           time.Time
	LocationID     string
	AircraftID     string
	InstructorID   string
	StudentID      string
}
