package booking

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerodesk/flight-scheduling-backend/internal/availability"
	"github.com/aerodesk/flight-scheduling-backend/internal/pkg/apperror"
	"github.com/aerodesk/flight-scheduling-backend/internal/rule"
)

// fakeRepo is an in-memory Repository for service tests.
type fakeRepo struct {
	bookings map[string]*Booking
	nextID   int
	seq      int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{bookings: make(map[string]*Booking)}
}

func (f *fakeRepo) Create(ctx context.Context, b *Booking) error {
	f.nextID++
	b.ID = fmt.Sprintf("booking-%d", f.nextID)
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	stored := *b
	f.bookings[b.ID] = &stored
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (*Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (f *fakeRepo) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	var out []*Booking
	for _, b := range f.bookings {
		copied := *b
		out = append(out, &copied)
	}
	return out, len(out), nil
}

func (f *fakeRepo) Update(ctx context.Context, b *Booking) error {
	if _, ok := f.bookings[b.ID]; !ok {
		return ErrNotFound
	}
	b.UpdatedAt = time.Now().UTC()
	stored := *b
	f.bookings[b.ID] = &stored
	return nil
}

func (f *fakeRepo) FindOverlapping(ctx context.Context, dim Dimension, resourceID string, blockStart, blockEnd time.Time, excludeID string) ([]*Booking, error) {
	var hits []*Booking
	for _, b := range f.bookings {
		if b.ID == excludeID || !b.Status.Active() {
			continue
		}
		var match bool
		switch dim {
		case DimAircraft:
			match = b.AircraftID == resourceID
		case DimInstructor:
			match = b.InstructorID == resourceID
		case DimStudent:
			match = b.StudentID == resourceID || b.PilotID == resourceID
		}
		if !match {
			continue
		}
		if b.BlockStart.Before(blockEnd) && b.BlockEnd.After(blockStart) {
			copied := *b
			hits = append(hits, &copied)
		}
	}
	return hits, nil
}

func (f *fakeRepo) NextBookingNumber(ctx context.Context, orgID string, year int) (int, error) {
	f.seq++
	return f.seq, nil
}

func (f *fakeRepo) LockResourceCalendars(ctx context.Context, keys []string) error {
	return nil
}

func (f *fakeRepo) CountActiveForUser(ctx context.Context, orgID, userID string, now time.Time) (int, error) {
	return 0, nil
}

func (f *fakeRepo) ScheduledMinutes(ctx context.Context, studentID string, from, to time.Time) (int, error) {
	return 0, nil
}

func (f *fakeRepo) BlockedWindows(ctx context.Context, resourceType availability.ResourceType, resourceID string, from, to time.Time) ([]availability.TimeSlot, error) {
	return nil, nil
}

func (f *fakeRepo) InTx(ctx context.Context, fn func(Repository) error) error {
	return fn(f)
}

// ruleStub resolves a fixed policy and accepts every window.
type ruleStub struct {
	policy *rule.EffectivePolicy
}

func (r *ruleStub) Create(ctx context.Context, req rule.CreateRuleRequest) (*rule.BookingRule, error) {
	return nil, nil
}
func (r *ruleStub) GetByID(ctx context.Context, id string) (*rule.BookingRule, error) {
	return nil, nil
}
func (r *ruleStub) List(ctx context.Context, filter rule.Filter) ([]*rule.BookingRule, int, error) {
	return nil, 0, nil
}
func (r *ruleStub) Update(ctx context.Context, id string, req rule.UpdateRuleRequest) (*rule.BookingRule, error) {
	return nil, nil
}
func (r *ruleStub) Deactivate(ctx context.Context, id string) error { return nil }
func (r *ruleStub) ResolvePolicy(ctx context.Context, rctx rule.ResolveContext) (*rule.EffectivePolicy, error) {
	return r.policy, nil
}
func (r *ruleStub) ValidateWindow(policy *rule.EffectivePolicy, start, end, now time.Time) rule.ValidationResult {
	return rule.ValidationResult{Valid: true}
}

func permissivePolicy() *rule.EffectivePolicy {
	return &rule.EffectivePolicy{
		MinDurationMinutes:         15,
		MaxDurationMinutes:         480,
		MinNoticeHours:             0,
		MaxAdvanceDays:             rule.Unlimited,
		MaxDailyHours:              rule.Unlimited,
		MaxWeeklyHours:             rule.Unlimited,
		MaxConcurrentBookings:      rule.Unlimited,
		PreflightBufferMinutes:     30,
		PostflightBufferMinutes:    30,
		FreeCancellationHours:      24,
		LateCancellationFeePercent: 50,
		NoShowFeePercent:           100,
	}
}

func newTestService(repo Repository, policy *rule.EffectivePolicy) Service {
	return NewService(repo, &ruleStub{policy: policy}, nil, nil, nil, nil, nil, nil, time.Second)
}

func tomorrowAt(hour, minute int) time.Time {
	d := time.Now().UTC().AddDate(0, 0, 1)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, time.UTC)
}

func TestCancellationFee(t *testing.T) {
	policy := permissivePolicy()

	tests := []struct {
		name            string
		hoursUntilStart float64
		wantFee         float64
		wantType        CancellationType
	}{
		{"inside free window", 10, 100, CancelLate},
		{"outside free window", 30, 0, CancelStandard},
		{"after start is a no-show", -1, 200, CancelNoShow},
		{"exactly at start is a no-show", 0, 200, CancelNoShow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, cancelType := CancellationFee(200, tt.hoursUntilStart, policy)
			assert.InDelta(t, tt.wantFee, fee, 0.001)
			assert.Equal(t, tt.wantType, cancelType)
		})
	}
}

func TestCreateDetectsBufferedConflicts(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo, permissivePolicy())

	// Book the aircraft 10:00-11:00 with 30-min buffers: block 09:30-11:30.
	first, err := svc.Create(ctx, CreateBookingRequest{
		OrganizationID: "org-1",
		Type:           TypeRental,
		StartTime:      tomorrowAt(10, 0),
		EndTime:        tomorrowAt(11, 0),
		AircraftID:     "acft-1",
		PilotID:        "pilot-1",
	})
	require.NoError(t, err)
	assert.Equal(t, tomorrowAt(9, 30), first.BlockStart)
	assert.Equal(t, tomorrowAt(11, 30), first.BlockEnd)
	assert.Equal(t, StatusScheduled, first.Status)

	// 11:15-12:00 collides through the buffers.
	_, err = svc.Create(ctx, CreateBookingRequest{
		OrganizationID: "org-1",
		Type:           TypeRental,
		StartTime:      tomorrowAt(11, 15),
		EndTime:        tomorrowAt(12, 0),
		AircraftID:     "acft-1",
		PilotID:        "pilot-2",
	})
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	// 11:31-12:15 without buffers starts after the first block ends.
	zero := 0
	_, err = svc.Create(ctx, CreateBookingRequest{
		OrganizationID:          "org-1",
		Type:                    TypeRental,
		StartTime:               tomorrowAt(11, 31),
		EndTime:                 tomorrowAt(12, 15),
		PreflightBufferMinutes:  &zero,
		PostflightBufferMinutes: &zero,
		AircraftID:              "acft-1",
		PilotID:                 "pilot-2",
	})
	assert.NoError(t, err)
}

func TestCreateRejectsDuplicateRequest(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo, permissivePolicy())

	req := CreateBookingRequest{
		OrganizationID: "org-1",
		Type:           TypeRental,
		StartTime:      tomorrowAt(14, 0),
		EndTime:        tomorrowAt(15, 0),
		AircraftID:     "acft-1",
		PilotID:        "pilot-1",
	}

	_, err := svc.Create(ctx, req)
	require.NoError(t, err)

	// Retrying the identical request yields a conflict, never a duplicate.
	_, err = svc.Create(ctx, req)
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	assert.Len(t, repo.bookings, 1)
}

func TestCreatePersonCannotDoubleBookAcrossResources(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo, permissivePolicy())

	_, err := svc.Create(ctx, CreateBookingRequest{
		OrganizationID: "org-1",
		Type:           TypeRental,
		StartTime:      tomorrowAt(10, 0),
		EndTime:        tomorrowAt(11, 0),
		AircraftID:     "acft-1",
		PilotID:        "pilot-1",
	})
	require.NoError(t, err)

	// Same person, different aircraft, same window.
	_, err = svc.Create(ctx, CreateBookingRequest{
		OrganizationID: "org-1",
		Type:           TypeRental,
		StartTime:      tomorrowAt(10, 0),
		EndTime:        tomorrowAt(11, 0),
		AircraftID:     "acft-2",
		PilotID:        "pilot-1",
	})
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeRepo(), permissivePolicy())

	tests := []struct {
		name    string
		req     CreateBookingRequest
		wantErr error
	}{
		{
			name: "end before start",
			req: CreateBookingRequest{
				OrganizationID: "org-1", Type: TypeRental,
				StartTime: tomorrowAt(11, 0), EndTime: tomorrowAt(10, 0),
				AircraftID: "acft-1", PilotID: "pilot-1",
			},
			wantErr: ErrInvalidTimeRange,
		},
		{
			name: "too short",
			req: CreateBookingRequest{
				OrganizationID: "org-1", Type: TypeRental,
				StartTime: tomorrowAt(10, 0), EndTime: tomorrowAt(10, 10),
				AircraftID: "acft-1", PilotID: "pilot-1",
			},
			wantErr: ErrDurationOutOfRange,
		},
		{
			name: "in the past",
			req: CreateBookingRequest{
				OrganizationID: "org-1", Type: TypeRental,
				StartTime: time.Now().UTC().Add(-2 * time.Hour), EndTime: time.Now().UTC().Add(-1 * time.Hour),
				AircraftID: "acft-1", PilotID: "pilot-1",
			},
			wantErr: ErrStartTimePast,
		},
		{
			name: "training without instructor",
			req: CreateBookingRequest{
				OrganizationID: "org-1", Type: TypeTraining,
				StartTime: tomorrowAt(10, 0), EndTime: tomorrowAt(11, 0),
				AircraftID: "acft-1", StudentID: "student-1",
			},
			wantErr: ErrMissingCrew,
		},
		{
			name: "rental without a person",
			req: CreateBookingRequest{
				OrganizationID: "org-1", Type: TypeRental,
				StartTime: tomorrowAt(10, 0), EndTime: tomorrowAt(11, 0),
				AircraftID: "acft-1",
			},
			wantErr: ErrMissingPerson,
		},
		{
			name: "no resources at all",
			req: CreateBookingRequest{
				OrganizationID: "org-1", Type: TypeFlight,
				StartTime: tomorrowAt(10, 0), EndTime: tomorrowAt(11, 0),
			},
			wantErr: ErrNoResources,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCancelAppliesFeeTiers(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo, permissivePolicy())

	// Starts in 10 hours: inside the 24h free-cancellation window.
	start := time.Now().UTC().Add(10 * time.Hour).Truncate(time.Minute)
	b, err := svc.Create(ctx, CreateBookingRequest{
		OrganizationID: "org-1",
		Type:           TypeRental,
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
		AircraftID:     "acft-1",
		PilotID:        "pilot-1",
	})
	require.NoError(t, err)

	// Estimated cost is zero without an aircraft registry, so pin one.
	stored := repo.bookings[b.ID]
	stored.EstimatedCost = 200

	cancelled, err := svc.Cancel(ctx, b.ID, "pilot-1", "weather")
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancellationType)
	assert.Equal(t, CancelLate, *cancelled.CancellationType)
	require.NotNil(t, cancelled.CancellationFee)
	assert.InDelta(t, 100, *cancelled.CancellationFee, 0.001)
}

func TestCancelRejectsTerminalStates(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo, permissivePolicy())

	b := &Booking{
		OrganizationID: "org-1",
		Type:           TypeRental,
		Status:         StatusInProgress,
		StartTime:      tomorrowAt(10, 0),
		EndTime:        tomorrowAt(11, 0),
		AircraftID:     "acft-1",
		PilotID:        "pilot-1",
	}
	b.ComputeBlockWindow()
	require.NoError(t, repo.Create(ctx, b))

	_, err := svc.Cancel(ctx, b.ID, "pilot-1", "changed my mind")
	assert.ErrorIs(t, err, ErrNotCancellable)
}

func seedBooking(t *testing.T, repo *fakeRepo, status Status, start time.Time) *Booking {
	t.Helper()
	b := &Booking{
		OrganizationID: "org-1",
		Type:           TypeTraining,
		Status:         status,
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
		AircraftID:     "acft-1",
		InstructorID:   "instr-1",
		StudentID:      "student-1",
		EstimatedCost:  300,
	}
	b.ComputeBlockWindow()
	require.NoError(t, repo.Create(context.Background(), b))
	return b
}

func TestDispatchGates(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo, permissivePolicy())

	t.Run("too early", func(t *testing.T) {
		b := seedBooking(t, repo, StatusCheckedIn, time.Now().UTC().Add(3*time.Hour))
		_, err := svc.Dispatch(ctx, b.ID, "instr-1", 1200.5)
		assert.ErrorIs(t, err, ErrDispatchTooEarly)
	})

	t.Run("readiness checks missing", func(t *testing.T) {
		b := seedBooking(t, repo, StatusCheckedIn, time.Now().UTC().Add(30*time.Minute))
		_, err := svc.Dispatch(ctx, b.ID, "instr-1", 1200.5)
		assert.ErrorIs(t, err, ErrDispatchNotReady)
	})

	t.Run("wrong status", func(t *testing.T) {
		b := seedBooking(t, repo, StatusScheduled, time.Now().UTC().Add(30*time.Minute))
		_, err := svc.Dispatch(ctx, b.ID, "instr-1", 1200.5)
		assert.ErrorIs(t, err, ErrNotCheckedIn)
	})

	t.Run("ready", func(t *testing.T) {
		b := seedBooking(t, repo, StatusCheckedIn, time.Now().UTC().Add(30*time.Minute))
		_, err := svc.UpdateReadiness(ctx, b.ID, boolPtr(true), boolPtr(true))
		require.NoError(t, err)

		dispatched, err := svc.Dispatch(ctx, b.ID, "instr-1", 1200.5)
		require.NoError(t, err)
		assert.Equal(t, StatusInProgress, dispatched.Status)
		require.NotNil(t, dispatched.HobbsOut)
		assert.InDelta(t, 1200.5, *dispatched.HobbsOut, 0.001)
	})
}

func boolPtr(v bool) *bool { return &v }

func TestCompleteRequiresConsistentHobbs(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo, permissivePolicy())

	b := seedBooking(t, repo, StatusInProgress, time.Now().UTC().Add(-time.Hour))
	hobbsOut := 1200.5
	stored := repo.bookings[b.ID]
	stored.HobbsOut = &hobbsOut

	_, err := svc.Complete(ctx, b.ID, "instr-1", 1199.0, nil)
	assert.ErrorIs(t, err, ErrHobbsMismatch)

	completed, err := svc.Complete(ctx, b.ID, "instr-1", 1202.3, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
	require.NotNil(t, completed.HobbsIn)
	assert.InDelta(t, 1202.3, *completed.HobbsIn, 0.001)
}

func TestMarkNoShowChargesFullFee(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo, permissivePolicy())

	b := seedBooking(t, repo, StatusScheduled, time.Now().UTC().Add(-time.Hour))

	marked, err := svc.MarkNoShow(ctx, b.ID, "dispatcher-1")
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, marked.Status)
	require.NotNil(t, marked.CancellationFee)
	assert.InDelta(t, 300, *marked.CancellationFee, 0.001)

	// Terminal: a second attempt fails.
	_, err = svc.MarkNoShow(ctx, b.ID, "dispatcher-1")
	assert.ErrorIs(t, err, ErrNotScheduled)
}

func TestCheckConflictsReportsEveryCollision(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo, permissivePolicy())

	b := seedBooking(t, repo, StatusScheduled, tomorrowAt(10, 0))

	conflicts, err := svc.CheckConflicts(ctx, ConflictQuery{
		AircraftID:   "acft-1",
		InstructorID: "instr-1",
		BlockStart:   tomorrowAt(10, 30),
		BlockEnd:     tomorrowAt(11, 30),
	})
	require.NoError(t, err)
	require.Len(t, conflicts, 2)
	assert.Equal(t, b.ID, conflicts[0].BookingID)

	// Excluding the booking itself drops both hits.
	conflicts, err = svc.CheckConflicts(ctx, ConflictQuery{
		AircraftID:       "acft-1",
		InstructorID:     "instr-1",
		BlockStart:       tomorrowAt(10, 30),
		BlockEnd:         tomorrowAt(11, 30),
		ExcludeBookingID: b.ID,
	})
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestCancellationHookRunsOnCancel(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo, permissivePolicy())

	var hooked *Booking
	svc.SetCancellationHook(cancellationHookFunc(func(ctx context.Context, b *Booking) error {
		hooked = b
		return nil
	}))

	b := seedBooking(t, repo, StatusScheduled, time.Now().UTC().Add(48*time.Hour))

	_, err := svc.Cancel(ctx, b.ID, "student-1", "schedule change")
	require.NoError(t, err)
	require.NotNil(t, hooked)
	assert.Equal(t, b.ID, hooked.ID)
	assert.Equal(t, StatusCancelled, hooked.Status)
}

type cancellationHookFunc func(ctx context.Context, b *Booking) error

func (f cancellationHookFunc) OnBookingCancelled(ctx context.Context, b *Booking) error {
	return f(ctx, b)
}
