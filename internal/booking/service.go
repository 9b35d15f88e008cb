package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/aerodesk/flight-scheduling-backend/internal/availability"
	"github.com/aerodesk/flight-scheduling-backend/internal/events"
	"github.com/aerodesk/flight-scheduling-backend/internal/pkg/apperror"
	"github.com/aerodesk/flight-scheduling-backend/internal/registry"
	"github.com/aerodesk/flight-scheduling-backend/internal/rule"
)

// CreateBookingRequest carries data to create a booking. Buffer overrides,
// when set, take precedence over the resolved policy's defaults.
type CreateBookingRequest struct {
	OrganizationID string
	LocationID     string
	Type           Type
	StartTime      time.Time
	EndTime        time.Time

	PreflightBufferMinutes  *int
	PostflightBufferMinutes *int

	AircraftID   string
	InstructorID string
	StudentID    string
	PilotID      string

	CreatedBy string
}

// UpdateBookingRequest carries data for partial updates. Changing any timing
// or resource field re-runs full validation and conflict detection.
type UpdateBookingRequest struct {
	StartTime               *time.Time
	EndTime                 *time.Time
	PreflightBufferMinutes  *int
	PostflightBufferMinutes *int
	AircraftID              *string
	InstructorID            *string
	StudentID               *string
	PilotID                 *string
}

// ConflictQuery is a read-only conflict probe over a block window.
type ConflictQuery struct {
	AircraftID       string
	InstructorID     string
	StudentID        string
	PilotID          string
	BlockStart       time.Time
	BlockEnd         time.Time
	ExcludeBookingID string
}

// CancellationHook is invoked synchronously inside the cancel operation's
// lock scope, before the calendar locks are released, so a freed slot cannot
// be concurrently re-claimed. Wired to the waitlist engine.
type CancellationHook interface {
	OnBookingCancelled(ctx context.Context, cancelled *Booking) error
}

// ResourceLocker is the cross-instance guard taken around conflict-check-
// then-write. Satisfied by cache.CalendarCache.
type ResourceLocker interface {
	AcquireCalendarLock(ctx context.Context, resourceType, resourceID string) (bool, error)
	ReleaseCalendarLock(ctx context.Context, resourceType, resourceID string) error
}

// CalendarInvalidator drops cached calendar days after a write. Satisfied by
// cache.CalendarCache.
type CalendarInvalidator interface {
	InvalidateCalendar(ctx context.Context, resourceType, resourceID string, from, to time.Time) error
}

type Service interface {
	Create(ctx context.Context, req CreateBookingRequest) (*Booking, error)

	// CreateHeld creates a booking on behalf of the waitlist engine while
	// the caller already holds the resource calendar locks. The booking is
	// parked in pending approval until the offer is accepted.
	CreateHeld(ctx context.Context, req CreateBookingRequest) (*Booking, error)

	// ReleaseHeld cancels a held, pending-approval booking with no fee and
	// without running the cancellation hook, so a declined or expired offer
	// does not recurse back into the waitlist engine.
	ReleaseHeld(ctx context.Context, id, reason string) (*Booking, error)

	GetByID(ctx context.Context, id string) (*Booking, error)
	List(ctx context.Context, filter Filter) ([]*Booking, int, error)
	Update(ctx context.Context, id string, req UpdateBookingRequest) (*Booking, error)

	Cancel(ctx context.Context, id, actor, reason string) (*Booking, error)
	Confirm(ctx context.Context, id, actor string) (*Booking, error)
	CheckIn(ctx context.Context, id, actor string) (*Booking, error)
	Dispatch(ctx context.Context, id, actor string, hobbsOut float64) (*Booking, error)
	Complete(ctx context.Context, id, actor string, hobbsIn float64, actualCost *float64) (*Booking, error)
	MarkNoShow(ctx context.Context, id, actor string) (*Booking, error)
	UpdateReadiness(ctx context.Context, id string, weatherDone, riskDone *bool) (*Booking, error)

	CheckConflicts(ctx context.Context, q ConflictQuery) ([]ConflictInfo, error)
	GetCalendar(ctx context.Context, q CalendarQuery) ([]*Booking, error)

	SetCancellationHook(hook CancellationHook)
}

type service struct {
	repo        Repository
	rules       rule.Service
	avail       availability.Service
	aircraftReg registry.AircraftRegistry
	orgReg      registry.OrganizationRegistry
	publisher   events.Publisher
	locker      ResourceLocker
	invalidator CalendarInvalidator
	hook        CancellationHook
	lockWait    time.Duration
}

// NewService wires the booking engine. locker and invalidator may be nil in
// single-node deployments; the advisory-lock transaction still serializes
// writers on the same database.
func NewService(
	repo Repository,
	rules rule.Service,
	avail availability.Service,
	aircraftReg registry.AircraftRegistry,
	orgReg registry.OrganizationRegistry,
	publisher events.Publisher,
	locker ResourceLocker,
	invalidator CalendarInvalidator,
	lockWait time.Duration,
) Service {
	return &service{
		repo:        repo,
		rules:       rules,
		avail:       avail,
		aircraftReg: aircraftReg,
		orgReg:      orgReg,
		publisher:   publisher,
		locker:      locker,
		invalidator: invalidator,
		lockWait:    lockWait,
	}
}

func (s *service) SetCancellationHook(hook CancellationHook) {
	s.hook = hook
}

// resourceKeys lists the (type, id) calendar keys a booking touches.
func resourceKeys(b *Booking) [][2]string {
	var keys [][2]string
	if b.AircraftID != "" {
		keys = append(keys, [2]string{string(availability.ResourceAircraft), b.AircraftID})
	}
	if b.InstructorID != "" {
		keys = append(keys, [2]string{string(availability.ResourceInstructor), b.InstructorID})
	}
	if b.StudentID != "" {
		keys = append(keys, [2]string{string(availability.ResourceStudent), b.StudentID})
	}
	if b.PilotID != "" && b.PilotID != b.StudentID {
		keys = append(keys, [2]string{string(availability.ResourceStudent), b.PilotID})
	}
	return keys
}

func advisoryKeys(b *Booking) []string {
	pairs := resourceKeys(b)
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p[0] + ":" + p[1]
	}
	return keys
}

// acquireLocks takes the distributed calendar locks with a bounded wait.
// Contention past the deadline surfaces as a retryable conflict, never a hang.
func (s *service) acquireLocks(ctx context.Context, b *Booking) (release func(), err error) {
	if s.locker == nil {
		return func() {}, nil
	}

	pairs := resourceKeys(b)
	var held [][2]string
	release = func() {
		for _, p := range held {
			_ = s.locker.ReleaseCalendarLock(context.WithoutCancel(ctx), p[0], p[1])
		}
	}

	deadline := time.Now().Add(s.lockWait)
	for _, p := range pairs {
		for {
			ok, lockErr := s.locker.AcquireCalendarLock(ctx, p[0], p[1])
			if lockErr != nil {
				release()
				return nil, apperror.Internal(lockErr)
			}
			if ok {
				held = append(held, p)
				break
			}
			if time.Now().After(deadline) {
				release()
				return nil, ErrCalendarBusy
			}
			select {
			case <-ctx.Done():
				release()
				return nil, apperror.Wrap(ctx.Err(), apperror.KindInternal, 500, "request cancelled")
			case <-time.After(50 * time.Millisecond):
			}
		}
	}
	return release, nil
}

// withRetry re-runs fn on retryable conflicts (lock timeouts, transient
// contention) with backoff before surfacing the error.
func withRetry(ctx context.Context, fn func() error) error {
	const attempts = 3
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !apperror.IsRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
		}
	}
	return err
}

func validateWindow(req *CreateBookingRequest, now time.Time) error {
	if !req.Type.Valid() {
		return ErrInvalidType
	}
	if !req.EndTime.After(req.StartTime) {
		return ErrInvalidTimeRange
	}
	minutes := int(req.EndTime.Sub(req.StartTime).Minutes())
	if minutes < MinDurationMinutes || minutes > MaxDurationMinutes {
		return ErrDurationOutOfRange
	}
	if req.StartTime.Before(now.Add(-PastGrace)) {
		return ErrStartTimePast
	}
	if req.PreflightBufferMinutes != nil && *req.PreflightBufferMinutes < 0 {
		return ErrNegativeBuffer
	}
	if req.PostflightBufferMinutes != nil && *req.PostflightBufferMinutes < 0 {
		return ErrNegativeBuffer
	}

	switch req.Type {
	case TypeRental:
		if req.StudentID == "" && req.PilotID == "" {
			return ErrMissingPerson
		}
	case TypeTraining, TypeCheckRide:
		if req.InstructorID == "" || req.StudentID == "" {
			return ErrMissingCrew
		}
	}

	if req.AircraftID == "" && req.InstructorID == "" && req.StudentID == "" && req.PilotID == "" {
		return ErrNoResources
	}
	return nil
}

func (s *service) Create(ctx context.Context, req CreateBookingRequest) (*Booking, error) {
	return s.create(ctx, req, false)
}

func (s *service) CreateHeld(ctx context.Context, req CreateBookingRequest) (*Booking, error) {
	return s.create(ctx, req, true)
}

func (s *service) create(ctx context.Context, req CreateBookingRequest, held bool) (*Booking, error) {
	now := time.Now().UTC()
	if err := validateWindow(&req, now); err != nil {
		return nil, err
	}

	// Registry lookups happen before the transaction opens; the booking
	// transaction boundary never spans a network call.
	var hourlyRate float64
	if req.AircraftID != "" && s.aircraftReg != nil {
		status, err := s.aircraftReg.GetAircraftStatus(ctx, req.AircraftID)
		if err != nil {
			return nil, err
		}
		if !status.IsAirworthy || !status.IsAvailable {
			return nil, ErrAircraftGrounded
		}
		hourlyRate = status.HourlyRate
	}

	if req.AircraftID != "" && s.orgReg != nil {
		withinLimit, err := s.orgReg.CheckResourceLimit(ctx, req.OrganizationID, string(availability.ResourceAircraft))
		if err != nil {
			return nil, err
		}
		if !withinLimit {
			return nil, apperror.RuleViolation("organization has reached its aircraft booking limit")
		}
	}

	policy, err := s.rules.ResolvePolicy(ctx, rule.ResolveContext{
		OrganizationID: req.OrganizationID,
		AircraftID:     req.AircraftID,
		InstructorID:   req.InstructorID,
		StudentID:      req.StudentID,
		LocationID:     req.LocationID,
		BookingType:    string(req.Type),
	})
	if err != nil {
		return nil, err
	}

	result := s.rules.ValidateWindow(policy, req.StartTime, req.EndTime, now)
	if !result.Valid {
		return nil, apperror.RuleViolation(result.Violations[0]).WithDetails(result)
	}

	if req.AircraftID != "" && req.LocationID != "" && s.avail != nil {
		open, err := s.avail.IsResourceAvailable(ctx, availability.ResourceAircraft, req.AircraftID, req.LocationID, req.StartTime)
		if err != nil {
			return nil, err
		}
		if !open {
			return nil, availability.ErrResourceNotOpen
		}
	}

	b := &Booking{
		OrganizationID:          req.OrganizationID,
		LocationID:              req.LocationID,
		Type:                    req.Type,
		StartTime:               req.StartTime,
		EndTime:                 req.EndTime,
		PreflightBufferMinutes:  policy.PreflightBufferMinutes,
		PostflightBufferMinutes: policy.PostflightBufferMinutes,
		AircraftID:              req.AircraftID,
		InstructorID:            req.InstructorID,
		StudentID:               req.StudentID,
		PilotID:                 req.PilotID,
		PaymentStatus:           PaymentPending,
		RequiresApproval:        policy.RequiresApproval,
		CreatedBy:               req.CreatedBy,
	}
	if req.PreflightBufferMinutes != nil {
		b.PreflightBufferMinutes = *req.PreflightBufferMinutes
	}
	if req.PostflightBufferMinutes != nil {
		b.PostflightBufferMinutes = *req.PostflightBufferMinutes
	}
	b.ComputeBlockWindow()

	hours := b.EndTime.Sub(b.StartTime).Hours()
	b.EstimatedCost = hourlyRate * hours

	if err := s.enforceUsageLimits(ctx, policy, b, now); err != nil {
		return nil, err
	}

	// Held bookings stay pending until the offer is accepted.
	b.Status = StatusScheduled
	if policy.RequiresApproval || held {
		b.Status = StatusPendingApproval
		b.RequiresApproval = b.RequiresApproval || held
	}

	err = withRetry(ctx, func() error {
		if !held {
			release, lockErr := s.acquireLocks(ctx, b)
			if lockErr != nil {
				return lockErr
			}
			defer release()
		}

		return s.repo.InTx(ctx, func(tx Repository) error {
			if err := tx.LockResourceCalendars(ctx, advisoryKeys(b)); err != nil {
				return err
			}

			conflicts, err := findConflicts(ctx, tx, b, "")
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return NewConflictError(conflicts)
			}

			seq, err := tx.NextBookingNumber(ctx, b.OrganizationID, b.StartTime.Year())
			if err != nil {
				return err
			}
			b.BookingNumber = FormatBookingNumber(b.StartTime.Year(), seq)

			return tx.Create(ctx, b)
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCalendars(ctx, b)
	s.publish(ctx, events.TypeBookingCreated, b)
	return b, nil
}

// enforceUsageLimits applies the concurrent-bookings and daily/weekly hour
// caps when the policy sets them.
func (s *service) enforceUsageLimits(ctx context.Context, policy *rule.EffectivePolicy, b *Booking, now time.Time) error {
	person := b.StudentID
	if person == "" {
		person = b.PilotID
	}
	if person == "" {
		return nil
	}

	if policy.MaxConcurrentBookings != rule.Unlimited {
		count, err := s.repo.CountActiveForUser(ctx, b.OrganizationID, person, now)
		if err != nil {
			return err
		}
		if count >= policy.MaxConcurrentBookings {
			return apperror.RuleViolation(
				fmt.Sprintf("user already has %d active bookings (limit %d)", count, policy.MaxConcurrentBookings))
		}
	}

	newMinutes := b.DurationMinutes()

	if policy.MaxDailyHours != rule.Unlimited {
		dayStart := time.Date(b.StartTime.Year(), b.StartTime.Month(), b.StartTime.Day(), 0, 0, 0, 0, b.StartTime.Location())
		booked, err := s.repo.ScheduledMinutes(ctx, person, dayStart, dayStart.AddDate(0, 0, 1))
		if err != nil {
			return err
		}
		if float64(booked+newMinutes)/60 > policy.MaxDailyHours {
			return apperror.RuleViolation(
				fmt.Sprintf("booking would exceed the daily limit of %.1f hours", policy.MaxDailyHours))
		}
	}

	if policy.MaxWeeklyHours != rule.Unlimited {
		weekStart := b.StartTime.AddDate(0, 0, -int(b.StartTime.Weekday()))
		weekStart = time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, b.StartTime.Location())
		booked, err := s.repo.ScheduledMinutes(ctx, person, weekStart, weekStart.AddDate(0, 0, 7))
		if err != nil {
			return err
		}
		if float64(booked+newMinutes)/60 > policy.MaxWeeklyHours {
			return apperror.RuleViolation(
				fmt.Sprintf("booking would exceed the weekly limit of %.1f hours", policy.MaxWeeklyHours))
		}
	}

	return nil
}

// findConflicts probes every resource dimension present on the booking.
func findConflicts(ctx context.Context, repo Repository, b *Booking, excludeID string) ([]ConflictInfo, error) {
	var conflicts []ConflictInfo

	probe := func(dim Dimension, resourceID string) error {
		if resourceID == "" {
			return nil
		}
		hits, err := repo.FindOverlapping(ctx, dim, resourceID, b.BlockStart, b.BlockEnd, excludeID)
		if err != nil {
			return err
		}
		for _, hit := range hits {
			conflicts = append(conflicts, ConflictInfo{
				BookingID:     hit.ID,
				BookingNumber: hit.BookingNumber,
				Dimension:     dim,
				ResourceID:    resourceID,
				BlockStart:    hit.BlockStart,
				BlockEnd:      hit.BlockEnd,
				Status:        hit.Status,
			})
		}
		return nil
	}

	if err := probe(DimAircraft, b.AircraftID); err != nil {
		return nil, err
	}
	if err := probe(DimInstructor, b.InstructorID); err != nil {
		return nil, err
	}
	if err := probe(DimStudent, b.StudentID); err != nil {
		return nil, err
	}
	if b.PilotID != "" && b.PilotID != b.StudentID {
		if err := probe(DimStudent, b.PilotID); err != nil {
			return nil, err
		}
	}
	return conflicts, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Booking, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) Update(ctx context.Context, id string, req UpdateBookingRequest) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch b.Status {
	case StatusDraft, StatusPendingApproval, StatusScheduled:
	default:
		return nil, ErrNotEditable
	}

	oldWindow := *b
	changed := false

	if req.StartTime != nil {
		b.StartTime = *req.StartTime
		changed = true
	}
	if req.EndTime != nil {
		b.EndTime = *req.EndTime
		changed = true
	}
	if req.PreflightBufferMinutes != nil {
		if *req.PreflightBufferMinutes < 0 {
			return nil, ErrNegativeBuffer
		}
		b.PreflightBufferMinutes = *req.PreflightBufferMinutes
		changed = true
	}
	if req.PostflightBufferMinutes != nil {
		if *req.PostflightBufferMinutes < 0 {
			return nil, ErrNegativeBuffer
		}
		b.PostflightBufferMinutes = *req.PostflightBufferMinutes
		changed = true
	}
	if req.AircraftID != nil {
		b.AircraftID = *req.AircraftID
		changed = true
	}
	if req.InstructorID != nil {
		b.InstructorID = *req.InstructorID
		changed = true
	}
	if req.StudentID != nil {
		b.StudentID = *req.StudentID
		changed = true
	}
	if req.PilotID != nil {
		b.PilotID = *req.PilotID
		changed = true
	}

	if !changed {
		return b, nil
	}

	now := time.Now().UTC()
	createReq := CreateBookingRequest{
		OrganizationID: b.OrganizationID,
		LocationID:     b.LocationID,
		Type:           b.Type,
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		AircraftID:     b.AircraftID,
		InstructorID:   b.InstructorID,
		StudentID:      b.StudentID,
		PilotID:        b.PilotID,
	}
	if err := validateWindow(&createReq, now); err != nil {
		return nil, err
	}

	policy, err := s.rules.ResolvePolicy(ctx, rule.ResolveContext{
		OrganizationID: b.OrganizationID,
		AircraftID:     b.AircraftID,
		InstructorID:   b.InstructorID,
		StudentID:      b.StudentID,
		LocationID:     b.LocationID,
		BookingType:    string(b.Type),
	})
	if err != nil {
		return nil, err
	}
	result := s.rules.ValidateWindow(policy, b.StartTime, b.EndTime, now)
	if !result.Valid {
		return nil, apperror.RuleViolation(result.Violations[0]).WithDetails(result)
	}

	b.ComputeBlockWindow()

	err = withRetry(ctx, func() error {
		release, lockErr := s.acquireLocks(ctx, b)
		if lockErr != nil {
			return lockErr
		}
		defer release()

		return s.repo.InTx(ctx, func(tx Repository) error {
			if err := tx.LockResourceCalendars(ctx, advisoryKeys(b)); err != nil {
				return err
			}

			conflicts, err := findConflicts(ctx, tx, b, b.ID)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return NewConflictError(conflicts)
			}

			return tx.Update(ctx, b)
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCalendars(ctx, &oldWindow)
	s.invalidateCalendars(ctx, b)
	s.publish(ctx, events.TypeBookingUpdated, b)
	return b, nil
}

// CancellationFee computes the fee owed for cancelling at the given distance
// from the scheduled start. At or past the start the no-show percentage
// applies; inside the free-cancellation window the late percentage applies.
func CancellationFee(estimatedCost, hoursUntilStart float64, policy *rule.EffectivePolicy) (float64, CancellationType) {
	switch {
	case hoursUntilStart <= 0:
		return estimatedCost * policy.NoShowFeePercent / 100, CancelNoShow
	case hoursUntilStart < float64(policy.FreeCancellationHours):
		return estimatedCost * policy.LateCancellationFeePercent / 100, CancelLate
	default:
		return 0, CancelStandard
	}
}

func (s *service) Cancel(ctx context.Context, id, actor, reason string) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !CanTransition(b.Status, StatusCancelled) {
		return nil, ErrNotCancellable
	}

	policy, err := s.rules.ResolvePolicy(ctx, rule.ResolveContext{
		OrganizationID: b.OrganizationID,
		AircraftID:     b.AircraftID,
		InstructorID:   b.InstructorID,
		StudentID:      b.StudentID,
		LocationID:     b.LocationID,
		BookingType:    string(b.Type),
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	fee, cancelType := CancellationFee(b.EstimatedCost, b.StartTime.Sub(now).Hours(), policy)

	err = withRetry(ctx, func() error {
		release, lockErr := s.acquireLocks(ctx, b)
		if lockErr != nil {
			return lockErr
		}
		defer release()

		txErr := s.repo.InTx(ctx, func(tx Repository) error {
			b.Status = StatusCancelled
			b.CancellationType = &cancelType
			b.CancellationReason = &reason
			b.CancellationFee = &fee
			b.CancelledAt = &now
			b.CancelledBy = &actor
			return tx.Update(ctx, b)
		})
		if txErr != nil {
			return txErr
		}

		// Waitlist cascading runs while the calendar locks are still held
		// so the freed slot cannot be concurrently re-claimed.
		if s.hook != nil {
			if hookErr := s.hook.OnBookingCancelled(ctx, b); hookErr != nil {
				// The cancellation itself is durable; a failed cascade is
				// retried by the periodic sweep.
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCalendars(ctx, b)
	s.publish(ctx, events.TypeBookingCancelled, b)
	return b, nil
}

func (s *service) ReleaseHeld(ctx context.Context, id, reason string) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusPendingApproval {
		return nil, ErrNotPendingApproval
	}

	now := time.Now().UTC()
	zero := 0.0
	standard := CancelStandard
	b.Status = StatusCancelled
	b.CancellationType = &standard
	b.CancellationReason = &reason
	b.CancellationFee = &zero
	b.CancelledAt = &now
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}

	s.invalidateCalendars(ctx, b)
	s.publish(ctx, events.TypeBookingCancelled, b)
	return b, nil
}

func (s *service) Confirm(ctx context.Context, id, actor string) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusPendingApproval {
		return nil, ErrNotPendingApproval
	}

	b.Status = StatusScheduled
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeBookingConfirmed, b)
	return b, nil
}

func (s *service) CheckIn(ctx context.Context, id, actor string) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusScheduled {
		return nil, ErrNotScheduled
	}

	now := time.Now().UTC()
	b.Status = StatusCheckedIn
	b.CheckedInAt = &now
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeBookingCheckedIn, b)
	return b, nil
}

func (s *service) Dispatch(ctx context.Context, id, actor string, hobbsOut float64) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusCheckedIn {
		return nil, ErrNotCheckedIn
	}

	now := time.Now().UTC()
	if now.Before(b.StartTime.Add(-DispatchLead)) {
		return nil, ErrDispatchTooEarly
	}
	if !b.WeatherCheckDone || !b.RiskAssessmentDone {
		return nil, ErrDispatchNotReady
	}

	b.Status = StatusInProgress
	b.HobbsOut = &hobbsOut
	b.DispatchedAt = &now
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeBookingDispatched, b)
	return b, nil
}

func (s *service) Complete(ctx context.Context, id, actor string, hobbsIn float64, actualCost *float64) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusInProgress {
		return nil, ErrNotInProgress
	}
	if b.HobbsOut != nil && hobbsIn < *b.HobbsOut {
		return nil, ErrHobbsMismatch
	}

	now := time.Now().UTC()
	b.Status = StatusCompleted
	b.HobbsIn = &hobbsIn
	b.CompletedAt = &now
	if actualCost != nil {
		b.ActualCost = actualCost
	}
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}

	s.invalidateCalendars(ctx, b)
	s.publish(ctx, events.TypeBookingCompleted, b)
	return b, nil
}

func (s *service) MarkNoShow(ctx context.Context, id, actor string) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusScheduled {
		return nil, ErrNotScheduled
	}

	policy, err := s.rules.ResolvePolicy(ctx, rule.ResolveContext{
		OrganizationID: b.OrganizationID,
		AircraftID:     b.AircraftID,
		InstructorID:   b.InstructorID,
		StudentID:      b.StudentID,
		LocationID:     b.LocationID,
		BookingType:    string(b.Type),
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	fee := b.EstimatedCost * policy.NoShowFeePercent / 100
	noShow := CancelNoShow

	b.Status = StatusNoShow
	b.CancellationType = &noShow
	b.CancellationFee = &fee
	b.CancelledAt = &now
	b.CancelledBy = &actor
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}

	s.invalidateCalendars(ctx, b)
	s.publish(ctx, events.TypeBookingNoShow, b)
	return b, nil
}

func (s *service) UpdateReadiness(ctx context.Context, id string, weatherDone, riskDone *bool) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status.Terminal() {
		return nil, ErrNotEditable
	}

	if weatherDone != nil {
		b.WeatherCheckDone = *weatherDone
	}
	if riskDone != nil {
		b.RiskAssessmentDone = *riskDone
	}
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) CheckConflicts(ctx context.Context, q ConflictQuery) ([]ConflictInfo, error) {
	if !q.BlockEnd.After(q.BlockStart) {
		return nil, ErrInvalidTimeRange
	}

	probe := &Booking{
		AircraftID:   q.AircraftID,
		InstructorID: q.InstructorID,
		StudentID:    q.StudentID,
		PilotID:      q.PilotID,
		BlockStart:   q.BlockStart,
		BlockEnd:     q.BlockEnd,
	}
	return findConflicts(ctx, s.repo, probe, q.ExcludeBookingID)
}

func (s *service) GetCalendar(ctx context.Context, q CalendarQuery) ([]*Booking, error) {
	from := time.Date(q.Date.Year(), q.Date.Month(), q.Date.Day(), 0, 0, 0, 0, q.Date.Location())
	var to time.Time
	switch q.View {
	case ViewWeek:
		from = from.AddDate(0, 0, -int(from.Weekday()))
		to = from.AddDate(0, 0, 7)
	default:
		to = from.AddDate(0, 0, 1)
	}

	bookings, _, err := s.repo.List(ctx, Filter{
		OrganizationID: q.OrganizationID,
		LocationID:     q.LocationID,
		AircraftID:     q.AircraftID,
		InstructorID:   q.InstructorID,
		StudentID:      q.StudentID,
		StartTimeFrom:  &from,
		StartTimeTo:    &to,
		PageSize:       500,
		SortBy:         "start_time",
		SortOrder:      "ASC",
	})
	return bookings, err
}

func (s *service) invalidateCalendars(ctx context.Context, b *Booking) {
	if s.invalidator == nil {
		return
	}
	for _, p := range resourceKeys(b) {
		_ = s.invalidator.InvalidateCalendar(ctx, p[0], p[1], b.BlockStart.UTC(), b.BlockEnd.UTC())
	}
}

func (s *service) publish(ctx context.Context, eventType string, b *Booking) {
	if s.publisher == nil {
		return
	}
	event, err := events.NewEvent(eventType, b.OrganizationID, b.ID, b)
	if err != nil {
		return
	}
	s.publisher.Publish(ctx, event)
}
