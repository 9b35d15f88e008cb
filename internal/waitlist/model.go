package waitlist

import (
	"time"

	"github.com/aerodesk/flight-scheduling-backend/internal/pkg/apperror"
)

var (
	ErrNotFound          = apperror.NotFound("waitlist entry not found")
	ErrInvalidWindow     = apperror.Validation("preferred end must be after preferred start")
	ErrInvalidDuration   = apperror.Validation("requested duration must be positive")
	ErrAmbiguousResource = apperror.Validation("cannot request both a specific resource and any resource of the same class")
	ErrNotWaiting        = apperror.Waitlist("waitlist entry is not waiting")
	ErrNotOffered        = apperror.Waitlist("waitlist entry has no pending offer")
	ErrOfferExpired      = apperror.Waitlist("the offer has expired")
)

// EntryStatus is the waitlist entry state machine.
type EntryStatus string

const (
	StatusWaiting   EntryStatus = "waiting"
	StatusOffered   EntryStatus = "offered"
	StatusAccepted  EntryStatus = "accepted"
	StatusDeclined  EntryStatus = "declined"
	StatusExpired   EntryStatus = "expired"
	StatusCancelled EntryStatus = "cancelled"
	StatusFulfilled EntryStatus = "fulfilled"
)

func (s EntryStatus) Terminal() bool {
	switch s {
	case StatusFulfilled, StatusDeclined, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// AnyResource marks a preference for any resource of a class. An entry may
// carry a concrete id or AnyResource per class, never both.
const AnyResource = "any"

// MatchWindowDays bounds how far a freed slot may drift from an entry's
// requested date before the entry is even considered.
const MatchWindowDays = 7

// Entry is a standing request for a future slot. Entries are never
// physically removed; terminal statuses retire them.
type Entry struct {
	ID             string
	OrganizationID string
	UserID         string

	RequestedDate   time.Time
	PreferredStart  time.Time
	PreferredEnd    time.Time
	DurationMinutes int

	// Resource preferences. Empty means the class is not requested,
	// AnyResource means any resource of the class satisfies the entry.
	AircraftID   string
	InstructorID string

	FlexibilityDays  int
	FlexibilityHours int

	Priority int
	Status   EntryStatus

	OfferedBookingID *string
	OfferExpiresAt   *time.Time

	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// wantsAircraft reports whether the entry cares about the aircraft class.
func (e *Entry) wantsAircraft() bool {
	return e.AircraftID != ""
}

// MatchesResource reports whether the freed aircraft and instructor satisfy
// the entry's preferences. An empty preference for a class means the entry
// does not need that class and matches regardless.
func (e *Entry) MatchesResource(aircraftID, instructorID string) bool {
	if e.wantsAircraft() && e.AircraftID != AnyResource {
		if aircraftID == "" || aircraftID != e.AircraftID {
			return false
		}
	}
	if e.wantsAircraft() && e.AircraftID == AnyResource && aircraftID == "" {
		return false
	}
	if e.InstructorID != "" && e.InstructorID != AnyResource {
		if instructorID == "" || instructorID != e.InstructorID {
			return false
		}
	}
	if e.InstructorID == AnyResource && instructorID == "" {
		return false
	}
	return true
}

// MatchesWindow reports whether the freed window fits the entry's preferred
// time stretched by its declared flexibility.
func (e *Entry) MatchesWindow(start, end time.Time) bool {
	flex := time.Duration(e.FlexibilityDays)*24*time.Hour +
		time.Duration(e.FlexibilityHours)*time.Hour
	earliest := e.PreferredStart.Add(-flex)
	latest := e.PreferredEnd.Add(flex)
	return !start.Before(earliest) && !end.After(latest)
}

// Filter defines parameters for listing waitlist entries.
type Filter struct {
	OrganizationID string
	UserID         string
	Status         string
	DateFrom       *time.Time
	DateTo         *time.Time
	Page           int
	PageSize       int
}
