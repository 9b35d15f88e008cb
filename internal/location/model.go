package location

import (
	"time"

	"github.com/aerodesk/flight-scheduling-backend/internal/pkg/apperror"
)

var (
	ErrNotFound        = apperror.NotFound("location not found")
	ErrNameRequired    = apperror.Validation("location name cannot be empty")
	ErrOrgIDRequired   = apperror.Validation("organization_id is required")
	ErrInvalidTimezone = apperror.Validation("invalid IANA timezone")
)

// Location represents a physical base of operations (airfield, hangar,
// training center) under an organization. Its timezone is the effective zone
// for operating-hours and slot computations.
type Location struct {
	ID             string
	OrganizationID string
	Name           string
	Timezone       string // IANA name, e.g. "America/Denver"
	Address        string
	Description    string
	CreatedAt      time.Time
}

// Zone resolves the location's time.Location, falling back to UTC when the
// stored name no longer loads.
func (l *Location) Zone() *time.Location {
	zone, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return time.UTC
	}
	return zone
}

// Filter defines parameters for listing locations.
type Filter struct {
	OrganizationID string
	Keyword        string // Search in Name or Address
	Page           int
	PageSize       int
}
