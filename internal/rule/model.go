package rule

import (
	"time"

	"github.com/aerodesk/flight-scheduling-backend/internal/pkg/apperror"
)

var (
	ErrNotFound         = apperror.NotFound("booking rule not found")
	ErrNameRequired     = apperror.Validation("rule name cannot be empty")
	ErrTargetIDRequired = apperror.Validation("target_id is required for non-default rules")
	ErrInvalidTarget    = apperror.Validation("invalid rule target type")
	ErrInvalidEffective = apperror.Validation("effective_until must be after effective_from")
)

// TargetType scopes a rule to a class of booking context.
type TargetType string

const (
	TargetOrgDefault  TargetType = "org_default"
	TargetAircraft    TargetType = "aircraft"
	TargetInstructor  TargetType = "instructor"
	TargetStudent     TargetType = "student"
	TargetLocation    TargetType = "location"
	TargetBookingType TargetType = "booking_type"
)

// Unlimited is the explicit sentinel meaning "no limit" for a numeric
// constraint. An unset (nil) field defers to lower-priority rules instead.
const Unlimited = -1

// specificity ranks target types for priority tie-breaks: a rule pinned to a
// concrete resource beats a location rule, which beats a booking-type rule,
// which beats the organization default.
func (t TargetType) specificity() int {
	switch t {
	case TargetAircraft, TargetInstructor, TargetStudent:
		return 3
	case TargetLocation:
		return 2
	case TargetBookingType:
		return 1
	default:
		return 0
	}
}

func (t TargetType) valid() bool {
	switch t {
	case TargetOrgDefault, TargetAircraft, TargetInstructor, TargetStudent, TargetLocation, TargetBookingType:
		return true
	}
	return false
}

// BookingRule is a named, prioritized policy record. Every constraint field
// is a pointer: nil means "deferred to a lower-priority rule", never
// "unlimited". Unlimited values use the explicit Unlimited sentinel.
type BookingRule struct {
	ID             string
	OrganizationID string
	Name           string
	TargetType     TargetType
	TargetID       string // empty for org_default; booking type name for booking_type targets
	Priority       int    // higher wins

	MinDurationMinutes      *int
	MaxDurationMinutes      *int
	MinNoticeHours          *int
	MaxAdvanceDays          *int
	MaxDailyHours           *float64
	MaxWeeklyHours          *float64
	MaxConcurrentBookings   *int
	PreflightBufferMinutes  *int
	PostflightBufferMinutes *int

	RequiresPaymentOnFile *bool
	MinAccountBalance     *float64

	FreeCancellationHours      *int
	LateCancellationFeePercent *float64
	NoShowFeePercent           *float64

	RequiresApproval *bool

	EffectiveFrom  *time.Time
	EffectiveUntil *time.Time
	Active         bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// effectiveAt reports whether the rule applies at the given instant.
func (r *BookingRule) effectiveAt(now time.Time) bool {
	if !r.Active {
		return false
	}
	if r.EffectiveFrom != nil && now.Before(*r.EffectiveFrom) {
		return false
	}
	if r.EffectiveUntil != nil && now.After(*r.EffectiveUntil) {
		return false
	}
	return true
}

// ResolveContext identifies the booking context a policy is resolved for.
// Empty resource fields mean that dimension is absent from the request.
type ResolveContext struct {
	OrganizationID string
	AircraftID     string
	InstructorID   string
	StudentID      string
	LocationID     string
	BookingType    string
}

// matches reports whether the rule applies to the context. The org-wide
// default always matches; scoped rules match only when the corresponding
// context field is supplied and equal.
func (r *BookingRule) matches(ctx ResolveContext) bool {
	switch r.TargetType {
	case TargetOrgDefault:
		return true
	case TargetAircraft:
		return ctx.AircraftID != "" && ctx.AircraftID == r.TargetID
	case TargetInstructor:
		return ctx.InstructorID != "" && ctx.InstructorID == r.TargetID
	case TargetStudent:
		return ctx.StudentID != "" && ctx.StudentID == r.TargetID
	case TargetLocation:
		return ctx.LocationID != "" && ctx.LocationID == r.TargetID
	case TargetBookingType:
		return ctx.BookingType != "" && ctx.BookingType == r.TargetID
	}
	return false
}

// System defaults applied for fields no matching rule sets.
const (
	DefaultMinDurationMinutes         = 15
	DefaultMaxDurationMinutes         = 480
	DefaultMinNoticeHours             = 1
	DefaultMaxAdvanceDays             = 90
	DefaultPreflightBufferMinutes     = 30
	DefaultPostflightBufferMinutes    = 30
	DefaultFreeCancellationHours      = 24
	DefaultLateCancellationFeePercent = 50.0
	DefaultNoShowFeePercent           = 100.0
)

// EffectivePolicy is the single merged constraint set for a booking context
// after priority resolution. All fields are resolved; Unlimited marks
// explicitly unbounded numeric limits.
type EffectivePolicy struct {
	MinDurationMinutes      int     `json:"min_duration_minutes"`
	MaxDurationMinutes      int     `json:"max_duration_minutes"`
	MinNoticeHours          int     `json:"min_notice_hours"`
	MaxAdvanceDays          int     `json:"max_advance_days"`
	MaxDailyHours           float64 `json:"max_daily_hours"`
	MaxWeeklyHours          float64 `json:"max_weekly_hours"`
	MaxConcurrentBookings   int     `json:"max_concurrent_bookings"`
	PreflightBufferMinutes  int     `json:"preflight_buffer_minutes"`
	PostflightBufferMinutes int     `json:"postflight_buffer_minutes"`

	RequiresPaymentOnFile bool    `json:"requires_payment_on_file"`
	MinAccountBalance     float64 `json:"min_account_balance"`

	FreeCancellationHours      int     `json:"free_cancellation_hours"`
	LateCancellationFeePercent float64 `json:"late_cancellation_fee_percent"`
	NoShowFeePercent           float64 `json:"no_show_fee_percent"`

	RequiresApproval bool `json:"requires_approval"`

	// AppliedRuleIDs lists the matching rules in the order they were folded,
	// lowest priority first.
	AppliedRuleIDs []string `json:"applied_rule_ids"`
}

// ValidationResult is the structured outcome of checking a booking window
// against an effective policy. Warnings are non-blocking.
type ValidationResult struct {
	Valid           bool     `json:"valid"`
	Violations      []string `json:"violations"`
	Warnings        []string `json:"warnings"`
	EvaluatedFields []string `json:"evaluated_fields"`
}

// Filter defines parameters for listing booking rules.
type Filter struct {
	OrganizationID string
	TargetType     string
	TargetID       string
	ActiveOnly     bool
	Page           int
	PageSize       int
}
