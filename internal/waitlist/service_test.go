package waitlist

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerodesk/flight-scheduling-backend/internal/booking"
)

type fakeWaitlistRepo struct {
	entries   map[string]*Entry
	nextID    int
	updateErr error
}

func newFakeWaitlistRepo() *fakeWaitlistRepo {
	return &fakeWaitlistRepo{entries: make(map[string]*Entry)}
}

func (f *fakeWaitlistRepo) Create(ctx context.Context, entry *Entry) error {
	f.nextID++
	entry.ID = fmt.Sprintf("entry-%d", f.nextID)
	entry.CreatedAt = time.Now().UTC().Add(time.Duration(f.nextID) * time.Millisecond)
	f.entries[entry.ID] = entry
	return nil
}

func (f *fakeWaitlistRepo) GetByID(ctx context.Context, id string) (*Entry, error) {
	e, ok := f.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (f *fakeWaitlistRepo) List(ctx context.Context, filter Filter) ([]*Entry, int, error) {
	var out []*Entry
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, len(out), nil
}

func (f *fakeWaitlistRepo) Update(ctx context.Context, entry *Entry) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.entries[entry.ID] = entry
	return nil
}

func (f *fakeWaitlistRepo) ListWaiting(ctx context.Context, organizationID string, from, to time.Time) ([]*Entry, error) {
	var out []*Entry
	for _, e := range f.entries {
		if e.OrganizationID != organizationID || e.Status != StatusWaiting {
			continue
		}
		if e.RequestedDate.Before(from) || e.RequestedDate.After(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeWaitlistRepo) ListExpiredOffers(ctx context.Context, now time.Time) ([]*Entry, error) {
	var out []*Entry
	for _, e := range f.entries {
		if e.Status == StatusOffered && e.OfferExpiresAt != nil && e.OfferExpiresAt.Before(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeWaitlistRepo) CompareAndSetStatus(ctx context.Context, id string, from, to EntryStatus) (bool, error) {
	e, ok := f.entries[id]
	if !ok {
		return false, nil
	}
	if e.Status != from {
		return false, nil
	}
	e.Status = to
	return true, nil
}

// fakeBookings records held-booking traffic and satisfies booking.Service.
type fakeBookings struct {
	nextID    int
	held      []booking.CreateBookingRequest
	released  []string
	confirmed []string
}

func (f *fakeBookings) CreateHeld(ctx context.Context, req booking.CreateBookingRequest) (*booking.Booking, error) {
	f.nextID++
	f.held = append(f.held, req)
	return &booking.Booking{
		ID:             fmt.Sprintf("held-%d", f.nextID),
		OrganizationID: req.OrganizationID,
		Type:           req.Type,
		Status:         booking.StatusPendingApproval,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		AircraftID:     req.AircraftID,
		InstructorID:   req.InstructorID,
		StudentID:      req.StudentID,
	}, nil
}

func (f *fakeBookings) ReleaseHeld(ctx context.Context, id, reason string) (*booking.Booking, error) {
	f.released = append(f.released, id)
	return &booking.Booking{ID: id, Status: booking.StatusCancelled}, nil
}

func (f *fakeBookings) Confirm(ctx context.Context, id, actor string) (*booking.Booking, error) {
	f.confirmed = append(f.confirmed, id)
	return &booking.Booking{ID: id, Status: booking.StatusScheduled}, nil
}

func (f *fakeBookings) Create(ctx context.Context, req booking.CreateBookingRequest) (*booking.Booking, error) {
	return nil, nil
}
func (f *fakeBookings) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	return nil, booking.ErrNotFound
}
func (f *fakeBookings) List(ctx context.Context, filter booking.Filter) ([]*booking.Booking, int, error) {
	return nil, 0, nil
}
func (f *fakeBookings) Update(ctx context.Context, id string, req booking.UpdateBookingRequest) (*booking.Booking, error) {
	return nil, nil
}
func (f *fakeBookings) Cancel(ctx context.Context, id, actor, reason string) (*booking.Booking, error) {
	return nil, nil
}
func (f *fakeBookings) CheckIn(ctx context.Context, id, actor string) (*booking.Booking, error) {
	return nil, nil
}
func (f *fakeBookings) Dispatch(ctx context.Context, id, actor string, hobbsOut float64) (*booking.Booking, error) {
	return nil, nil
}
func (f *fakeBookings) Complete(ctx context.Context, id, actor string, hobbsIn float64, actualCost *float64) (*booking.Booking, error) {
	return nil, nil
}
func (f *fakeBookings) MarkNoShow(ctx context.Context, id, actor string) (*booking.Booking, error) {
	return nil, nil
}
func (f *fakeBookings) UpdateReadiness(ctx context.Context, id string, weatherDone, riskDone *bool) (*booking.Booking, error) {
	return nil, nil
}
func (f *fakeBookings) CheckConflicts(ctx context.Context, q booking.ConflictQuery) ([]booking.ConflictInfo, error) {
	return nil, nil
}
func (f *fakeBookings) GetCalendar(ctx context.Context, q booking.CalendarQuery) ([]*booking.Booking, error) {
	return nil, nil
}
func (f *fakeBookings) SetCancellationHook(hook booking.CancellationHook) {}

func futureDay(days int, hour int) time.Time {
	d := time.Now().UTC().AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
}

func freedBooking(start time.Time, durationHours int) *booking.Booking {
	return &booking.Booking{
		ID:             "cancelled-1",
		OrganizationID: "org-1",
		Type:           booking.TypeRental,
		Status:         booking.StatusCancelled,
		StartTime:      start,
		EndTime:        start.Add(time.Duration(durationHours) * time.Hour),
		AircraftID:     "acft-1",
	}
}

func waitingEntry(user string, priority int, start time.Time) *Entry {
	return &Entry{
		OrganizationID:  "org-1",
		UserID:          user,
		RequestedDate:   start.Truncate(24 * time.Hour),
		PreferredStart:  start,
		PreferredEnd:    start.Add(2 * time.Hour),
		DurationMinutes: 60,
		AircraftID:      AnyResource,
		Priority:        priority,
		Status:          StatusWaiting,
	}
}

func TestMatchesResource(t *testing.T) {
	tests := []struct {
		name               string
		entryAircraft      string
		entryInstructor    string
		freedAircraft      string
		freedInstructor    string
		want               bool
	}{
		{"any aircraft matches any freed aircraft", AnyResource, "", "acft-1", "", true},
		{"any aircraft needs an aircraft", AnyResource, "", "", "instr-1", false},
		{"specific aircraft matches", "acft-1", "", "acft-1", "", true},
		{"specific aircraft rejects another", "acft-1", "", "acft-2", "", false},
		{"no aircraft preference ignores the class", "", AnyResource, "acft-9", "instr-1", true},
		{"specific instructor matches", "", "instr-1", "", "instr-1", true},
		{"specific instructor rejects another", "", "instr-1", "", "instr-2", false},
		{"both classes must match", "acft-1", "instr-1", "acft-1", "instr-2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{AircraftID: tt.entryAircraft, InstructorID: tt.entryInstructor}
			assert.Equal(t, tt.want, e.MatchesResource(tt.freedAircraft, tt.freedInstructor))
		})
	}
}

func TestMatchesWindow(t *testing.T) {
	preferred := time.Date(2027, time.March, 10, 10, 0, 0, 0, time.UTC)
	e := &Entry{
		PreferredStart:   preferred,
		PreferredEnd:     preferred.Add(2 * time.Hour),
		FlexibilityHours: 3,
	}

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"exact preferred window", preferred, preferred.Add(2 * time.Hour), true},
		{"within flexibility", preferred.Add(-3 * time.Hour), preferred.Add(-2 * time.Hour), true},
		{"too early", preferred.Add(-4 * time.Hour), preferred.Add(-3 * time.Hour), false},
		{"ends too late", preferred.Add(4 * time.Hour), preferred.Add(6 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.MatchesWindow(tt.start, tt.end))
		})
	}

	t.Run("day flexibility stretches the window", func(t *testing.T) {
		flexible := &Entry{
			PreferredStart:  preferred,
			PreferredEnd:    preferred.Add(2 * time.Hour),
			FlexibilityDays: 1,
		}
		assert.True(t, flexible.MatchesWindow(preferred.AddDate(0, 0, 1), preferred.AddDate(0, 0, 1).Add(time.Hour)))
		assert.False(t, flexible.MatchesWindow(preferred.AddDate(0, 0, 2), preferred.AddDate(0, 0, 2).Add(time.Hour)))
	})
}

func TestAddToWaitlistValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeWaitlistRepo(), &fakeBookings{}, nil, 0, false)

	start := futureDay(3, 10)

	_, err := svc.AddToWaitlist(ctx, AddEntryRequest{
		OrganizationID: "org-1", UserID: "u1",
		PreferredStart: start, PreferredEnd: start,
		DurationMinutes: 60,
	})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	_, err = svc.AddToWaitlist(ctx, AddEntryRequest{
		OrganizationID: "org-1", UserID: "u1",
		PreferredStart: start, PreferredEnd: start.Add(2 * time.Hour),
	})
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = svc.AddToWaitlist(ctx, AddEntryRequest{
		OrganizationID: "org-1", UserID: "u1",
		PreferredStart: start, PreferredEnd: start.Add(2 * time.Hour),
		DurationMinutes: 60,
		AircraftID:      "acft-1", AnyAircraft: true,
	})
	assert.ErrorIs(t, err, ErrAmbiguousResource)

	entry, err := svc.AddToWaitlist(ctx, AddEntryRequest{
		OrganizationID: "org-1", UserID: "u1",
		PreferredStart: start, PreferredEnd: start.Add(2 * time.Hour),
		DurationMinutes: 60,
		AnyAircraft:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, entry.Status)
	assert.Equal(t, AnyResource, entry.AircraftID)
}

func TestProcessCancellationOffersBestRanked(t *testing.T) {
	ctx := context.Background()
	repo := newFakeWaitlistRepo()
	bookings := &fakeBookings{}
	svc := NewService(repo, bookings, nil, time.Hour, false)

	start := futureDay(3, 10)

	// Equal priority: the earlier-created entry wins the offer.
	first := waitingEntry("student-1", 5, start)
	second := waitingEntry("student-2", 5, start)
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	require.NoError(t, svc.ProcessCancellation(ctx, freedBooking(start, 2)))

	require.Len(t, bookings.held, 1)
	assert.Equal(t, "student-1", bookings.held[0].StudentID)
	assert.Equal(t, "acft-1", bookings.held[0].AircraftID)

	assert.Equal(t, StatusOffered, first.Status)
	require.NotNil(t, first.OfferedBookingID)
	require.NotNil(t, first.OfferExpiresAt)
	assert.Equal(t, StatusWaiting, second.Status)
}

func TestProcessCancellationPrefersHigherPriority(t *testing.T) {
	ctx := context.Background()
	repo := newFakeWaitlistRepo()
	bookings := &fakeBookings{}
	svc := NewService(repo, bookings, nil, time.Hour, false)

	start := futureDay(3, 10)
	low := waitingEntry("student-low", 1, start)
	high := waitingEntry("student-high", 9, start)
	require.NoError(t, repo.Create(ctx, low))
	require.NoError(t, repo.Create(ctx, high))

	require.NoError(t, svc.ProcessCancellation(ctx, freedBooking(start, 2)))

	require.Len(t, bookings.held, 1)
	assert.Equal(t, "student-high", bookings.held[0].StudentID)
}

func TestProcessCancellationSkipsUnmatchedEntries(t *testing.T) {
	ctx := context.Background()
	repo := newFakeWaitlistRepo()
	bookings := &fakeBookings{}
	svc := NewService(repo, bookings, nil, time.Hour, false)

	start := futureDay(3, 10)

	tooLong := waitingEntry("student-1", 9, start)
	tooLong.DurationMinutes = 240
	wrongAircraft := waitingEntry("student-2", 8, start)
	wrongAircraft.AircraftID = "acft-other"
	outOfWindow := waitingEntry("student-3", 7, start.Add(48*time.Hour))
	outOfWindow.PreferredStart = start.Add(48 * time.Hour)
	outOfWindow.PreferredEnd = start.Add(50 * time.Hour)

	require.NoError(t, repo.Create(ctx, tooLong))
	require.NoError(t, repo.Create(ctx, wrongAircraft))
	require.NoError(t, repo.Create(ctx, outOfWindow))

	require.NoError(t, svc.ProcessCancellation(ctx, freedBooking(start, 2)))
	assert.Empty(t, bookings.held)

	// A slot with neither aircraft nor instructor is a no-op.
	require.NoError(t, svc.ProcessCancellation(ctx, &booking.Booking{OrganizationID: "org-1", StartTime: start, EndTime: start.Add(time.Hour)}))
	assert.Empty(t, bookings.held)
}

func TestSendOfferReleasesHeldBookingOnFailure(t *testing.T) {
	ctx := context.Background()
	repo := newFakeWaitlistRepo()
	bookings := &fakeBookings{}
	svc := NewService(repo, bookings, nil, time.Hour, false)

	start := futureDay(3, 10)
	entry := waitingEntry("student-1", 5, start)
	require.NoError(t, repo.Create(ctx, entry))

	repo.updateErr = fmt.Errorf("connection reset")
	err := svc.SendOffer(ctx, entry, freedBooking(start, 2))
	require.Error(t, err)

	// The held booking must not keep the slot when the offer was never
	// recorded.
	require.Len(t, bookings.held, 1)
	require.Len(t, bookings.released, 1)
	assert.Equal(t, "held-1", bookings.released[0])
}

func TestAcceptOffer(t *testing.T) {
	ctx := context.Background()
	repo := newFakeWaitlistRepo()
	bookings := &fakeBookings{}
	svc := NewService(repo, bookings, nil, time.Hour, false)

	start := futureDay(3, 10)
	entry := waitingEntry("student-1", 5, start)
	require.NoError(t, repo.Create(ctx, entry))
	require.NoError(t, svc.SendOffer(ctx, entry, freedBooking(start, 2)))

	accepted, err := svc.AcceptOffer(ctx, entry.ID, "student-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFulfilled, accepted.Status)
	require.Len(t, bookings.confirmed, 1)
	assert.Equal(t, "held-1", bookings.confirmed[0])

	// A second accept finds no pending offer.
	_, err = svc.AcceptOffer(ctx, entry.ID, "student-1")
	assert.ErrorIs(t, err, ErrNotOffered)
}

func TestAcceptOfferExpired(t *testing.T) {
	ctx := context.Background()
	repo := newFakeWaitlistRepo()
	bookings := &fakeBookings{}
	svc := NewService(repo, bookings, nil, time.Hour, false)

	start := futureDay(3, 10)
	entry := waitingEntry("student-1", 5, start)
	require.NoError(t, repo.Create(ctx, entry))
	require.NoError(t, svc.SendOffer(ctx, entry, freedBooking(start, 2)))

	past := time.Now().UTC().Add(-time.Minute)
	entry.OfferExpiresAt = &past

	_, err := svc.AcceptOffer(ctx, entry.ID, "student-1")
	assert.ErrorIs(t, err, ErrOfferExpired)
	assert.Equal(t, StatusExpired, entry.Status)
	require.Len(t, bookings.released, 1)
	assert.Empty(t, bookings.confirmed)
}

func TestDeclineOfferCascades(t *testing.T) {
	ctx := context.Background()
	repo := newFakeWaitlistRepo()
	bookings := &fakeBookings{}
	svc := NewService(repo, bookings, nil, time.Hour, true)

	start := futureDay(3, 10)
	first := waitingEntry("student-1", 9, start)
	next := waitingEntry("student-2", 5, start)
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, next))

	require.NoError(t, svc.ProcessCancellation(ctx, freedBooking(start, 2)))
	require.Len(t, bookings.held, 1)
	assert.Equal(t, "student-1", bookings.held[0].StudentID)

	declined, err := svc.DeclineOffer(ctx, first.ID, "student-1")
	require.NoError(t, err)
	assert.Equal(t, StatusDeclined, declined.Status)
	require.Len(t, bookings.released, 1)

	// Cascade re-offers the released slot to the next waiting entry.
	require.Len(t, bookings.held, 2)
	assert.Equal(t, "student-2", bookings.held[1].StudentID)
	assert.Equal(t, StatusOffered, next.Status)
}

func TestDeclineOfferWithoutCascadeStops(t *testing.T) {
	ctx := context.Background()
	repo := newFakeWaitlistRepo()
	bookings := &fakeBookings{}
	svc := NewService(repo, bookings, nil, time.Hour, false)

	start := futureDay(3, 10)
	first := waitingEntry("student-1", 9, start)
	next := waitingEntry("student-2", 5, start)
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, next))

	require.NoError(t, svc.ProcessCancellation(ctx, freedBooking(start, 2)))
	_, err := svc.DeclineOffer(ctx, first.ID, "student-1")
	require.NoError(t, err)

	require.Len(t, bookings.held, 1)
	assert.Equal(t, StatusWaiting, next.Status)
}

func TestProcessExpiredOffers(t *testing.T) {
	ctx := context.Background()
	repo := newFakeWaitlistRepo()
	bookings := &fakeBookings{}
	svc := NewService(repo, bookings, nil, time.Hour, false)

	start := futureDay(3, 10)
	past := time.Now().UTC().Add(-time.Minute)

	for i := 1; i <= 2; i++ {
		entry := waitingEntry(fmt.Sprintf("student-%d", i), 5, start)
		require.NoError(t, repo.Create(ctx, entry))
		require.NoError(t, svc.SendOffer(ctx, entry, freedBooking(start, 2)))
		entry.OfferExpiresAt = &past
	}

	count, err := svc.ProcessExpiredOffers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, bookings.released, 2)

	// Nothing left to expire on the next sweep.
	count, err = svc.ProcessExpiredOffers(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCancelEntry(t *testing.T) {
	ctx := context.Background()
	repo := newFakeWaitlistRepo()
	svc := NewService(repo, &fakeBookings{}, nil, time.Hour, false)

	start := futureDay(3, 10)
	entry := waitingEntry("student-1", 5, start)
	require.NoError(t, repo.Create(ctx, entry))

	cancelled, err := svc.CancelEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = svc.CancelEntry(ctx, entry.ID)
	assert.ErrorIs(t, err, ErrNotWaiting)
}
