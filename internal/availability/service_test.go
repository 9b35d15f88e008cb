package availability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aerodesk/flight-scheduling-backend/internal/location"
)

type fakeAvailRepo struct {
	blocks []*Availability
	hours  map[time.Weekday]*OperatingHours
}

func (f *fakeAvailRepo) CreateBlock(ctx context.Context, block *Availability) error {
	block.ID = "block-1"
	block.CreatedAt = time.Now().UTC()
	f.blocks = append(f.blocks, block)
	return nil
}

func (f *fakeAvailRepo) GetBlockByID(ctx context.Context, id string) (*Availability, error) {
	for _, b := range f.blocks {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeAvailRepo) ListBlocks(ctx context.Context, filter BlockFilter) ([]*Availability, int, error) {
	return f.blocks, len(f.blocks), nil
}

func (f *fakeAvailRepo) DeleteBlock(ctx context.Context, id string) error { return nil }

func (f *fakeAvailRepo) ListBlocksInRange(ctx context.Context, resourceType ResourceType, resourceID string, from, to time.Time) ([]*Availability, error) {
	var out []*Availability
	for _, b := range f.blocks {
		if b.ResourceType != resourceType || b.ResourceID != resourceID {
			continue
		}
		if b.StartTime.Before(to) && b.EndTime.After(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeAvailRepo) SetOperatingHours(ctx context.Context, hours *OperatingHours) error {
	if f.hours == nil {
		f.hours = make(map[time.Weekday]*OperatingHours)
	}
	if _, ok := f.hours[hours.Weekday]; ok {
		return ErrDuplicateWeekday
	}
	hours.ID = "hours-1"
	f.hours[hours.Weekday] = hours
	return nil
}

func (f *fakeAvailRepo) ListOperatingHours(ctx context.Context, locationID string) ([]*OperatingHours, error) {
	var out []*OperatingHours
	for _, h := range f.hours {
		out = append(out, h)
	}
	return out, nil
}

func (f *fakeAvailRepo) HoursFor(ctx context.Context, locationID string, weekday time.Weekday, date time.Time) (*OperatingHours, error) {
	return f.hours[weekday], nil
}

// fakeCalendar serves booking block windows from a fixed slice.
type fakeCalendar struct {
	windows []TimeSlot
}

func (f *fakeCalendar) BlockedWindows(ctx context.Context, resourceType ResourceType, resourceID string, from, to time.Time) ([]TimeSlot, error) {
	var out []TimeSlot
	for _, w := range f.windows {
		if w.StartTime.Before(to) && w.EndTime.After(from) {
			out = append(out, w)
		}
	}
	return out, nil
}

type fakeLocations struct {
	locations map[string]*location.Location
}

func (f *fakeLocations) Create(ctx context.Context, req location.CreateLocationRequest) (*location.Location, error) {
	return nil, nil
}

func (f *fakeLocations) GetByID(ctx context.Context, id string) (*location.Location, error) {
	loc, ok := f.locations[id]
	if !ok {
		return nil, location.ErrNotFound
	}
	return loc, nil
}

func (f *fakeLocations) List(ctx context.Context, filter location.Filter) ([]*location.Location, int, error) {
	return nil, 0, nil
}

func (f *fakeLocations) Update(ctx context.Context, id string, req location.UpdateLocationRequest) (*location.Location, error) {
	return nil, nil
}

func newAvailService(repo *fakeAvailRepo, cal *fakeCalendar, locs *fakeLocations) Service {
	if locs == nil {
		locs = &fakeLocations{}
	}
	return NewService(repo, locs, cal, nil)
}

// A fixed future Tuesday keeps the slot walk deterministic.
var testDay = time.Date(2027, time.June, 15, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(2027, time.June, 15, hour, minute, 0, 0, time.UTC)
}

func collectSlots(t *testing.T, svc Service, q SlotQuery) []TimeSlot {
	t.Helper()
	seq, err := svc.FindAvailableSlots(context.Background(), q)
	require.NoError(t, err)
	var out []TimeSlot
	for slot := range seq {
		out = append(out, slot)
	}
	return out
}

func TestFindAvailableSlotsSkipsBookedWindows(t *testing.T) {
	repo := &fakeAvailRepo{}
	cal := &fakeCalendar{windows: []TimeSlot{{StartTime: at(9, 30), EndTime: at(11, 30)}}}
	svc := newAvailService(repo, cal, nil)

	slots := collectSlots(t, svc, SlotQuery{
		ResourceType: ResourceAircraft,
		ResourceID:   "acft-1",
		Date:         testDay,
		Duration:     time.Hour,
		SlotInterval: 30 * time.Minute,
	})

	// Default hours 08:00-20:00: 23 half-hourly candidates, 5 of which
	// collide with the 09:30-11:30 block.
	require.Len(t, slots, 18)
	assert.Equal(t, at(8, 0), slots[0].StartTime)
	assert.Equal(t, at(8, 30), slots[1].StartTime)
	// 08:30-09:30 touches the block boundary; half-open intervals do not
	// overlap there.
	assert.Equal(t, at(11, 30), slots[2].StartTime)
	assert.Equal(t, at(19, 0), slots[len(slots)-1].StartTime)
}

func TestFindAvailableSlotsHonorsManualBlocks(t *testing.T) {
	repo := &fakeAvailRepo{blocks: []*Availability{
		{
			ID: "b1", ResourceType: ResourceInstructor, ResourceID: "instr-1",
			Kind: KindUnavailable, StartTime: at(14, 0), EndTime: at(16, 0),
		},
		{
			ID: "b2", ResourceType: ResourceInstructor, ResourceID: "instr-1",
			Kind: KindSpecial, StartTime: at(8, 0), EndTime: at(10, 0),
		},
	}}
	svc := newAvailService(repo, &fakeCalendar{}, nil)

	slots := collectSlots(t, svc, SlotQuery{
		ResourceType: ResourceInstructor,
		ResourceID:   "instr-1",
		Date:         testDay,
		Duration:     time.Hour,
		SlotInterval: time.Hour,
	})

	for _, s := range slots {
		assert.False(t, s.Overlaps(TimeSlot{StartTime: at(14, 0), EndTime: at(16, 0)}),
			"slot %v overlaps the unavailable block", s.StartTime)
	}
	// Special-availability windows do not remove slots.
	assert.Equal(t, at(8, 0), slots[0].StartTime)
}

func TestFindAvailableSlotsUsesLocationHours(t *testing.T) {
	repo := &fakeAvailRepo{hours: map[time.Weekday]*OperatingHours{
		time.Tuesday: {LocationID: "loc-1", Weekday: time.Tuesday, OpenTime: "09:00", CloseTime: "12:00"},
	}}
	locs := &fakeLocations{locations: map[string]*location.Location{
		"loc-1": {ID: "loc-1", Timezone: "UTC"},
	}}
	svc := newAvailService(repo, &fakeCalendar{}, locs)

	slots := collectSlots(t, svc, SlotQuery{
		ResourceType: ResourceAircraft,
		ResourceID:   "acft-1",
		LocationID:   "loc-1",
		Date:         testDay,
		Duration:     time.Hour,
		SlotInterval: time.Hour,
	})

	require.Len(t, slots, 3)
	assert.Equal(t, at(9, 0), slots[0].StartTime)
	assert.Equal(t, at(11, 0), slots[2].StartTime)
	assert.Equal(t, at(12, 0), slots[2].EndTime)
}

func TestFindAvailableSlotsSequenceRestarts(t *testing.T) {
	svc := newAvailService(&fakeAvailRepo{}, &fakeCalendar{}, nil)

	seq, err := svc.FindAvailableSlots(context.Background(), SlotQuery{
		ResourceType: ResourceAircraft,
		ResourceID:   "acft-1",
		Date:         testDay,
		Duration:     time.Hour,
		SlotInterval: time.Hour,
	})
	require.NoError(t, err)

	var firstPass []TimeSlot
	for slot := range seq {
		firstPass = append(firstPass, slot)
		if len(firstPass) == 2 {
			break
		}
	}
	require.Len(t, firstPass, 2)

	// Re-ranging walks from the start again.
	for slot := range seq {
		assert.Equal(t, firstPass[0], slot)
		break
	}
}

func TestFindAvailableSlotsValidation(t *testing.T) {
	svc := newAvailService(&fakeAvailRepo{}, &fakeCalendar{}, nil)

	tests := []struct {
		name    string
		q       SlotQuery
		wantErr error
	}{
		{
			name:    "invalid resource type",
			q:       SlotQuery{ResourceType: "hangar", ResourceID: "h1", Date: testDay, Duration: time.Hour, SlotInterval: time.Hour},
			wantErr: ErrInvalidResource,
		},
		{
			name:    "missing resource id",
			q:       SlotQuery{ResourceType: ResourceAircraft, Date: testDay, Duration: time.Hour, SlotInterval: time.Hour},
			wantErr: ErrResourceRequired,
		},
		{
			name:    "non-positive duration",
			q:       SlotQuery{ResourceType: ResourceAircraft, ResourceID: "acft-1", Date: testDay, SlotInterval: time.Hour},
			wantErr: ErrInvalidSlotQuery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.FindAvailableSlots(context.Background(), tt.q)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIsResourceAvailable(t *testing.T) {
	ctx := context.Background()
	repo := &fakeAvailRepo{blocks: []*Availability{{
		ID: "b1", ResourceType: ResourceAircraft, ResourceID: "acft-1",
		Kind: KindUnavailable, StartTime: at(13, 0), EndTime: at(15, 0),
	}}}
	svc := newAvailService(repo, &fakeCalendar{}, nil)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"inside hours and unblocked", at(10, 0), true},
		{"before opening", at(7, 0), false},
		{"exactly at close", at(20, 0), false},
		{"inside an unavailable block", at(14, 0), false},
		{"after the block ends", at(15, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.IsResourceAvailable(ctx, ResourceAircraft, "acft-1", "", tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsResourceAvailableEnforcesSpecialWindowCap(t *testing.T) {
	ctx := context.Background()
	maxBookings := 1
	repo := &fakeAvailRepo{blocks: []*Availability{{
		ID: "b1", ResourceType: ResourceAircraft, ResourceID: "acft-1",
		Kind: KindSpecial, StartTime: at(9, 0), EndTime: at(12, 0),
		MaxBookings: &maxBookings,
	}}}

	t.Run("cap reached", func(t *testing.T) {
		cal := &fakeCalendar{windows: []TimeSlot{{StartTime: at(9, 30), EndTime: at(10, 30)}}}
		svc := newAvailService(repo, cal, nil)

		got, err := svc.IsResourceAvailable(ctx, ResourceAircraft, "acft-1", "", at(11, 0))
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("capacity remaining", func(t *testing.T) {
		svc := newAvailService(repo, &fakeCalendar{}, nil)

		got, err := svc.IsResourceAvailable(ctx, ResourceAircraft, "acft-1", "", at(11, 0))
		require.NoError(t, err)
		assert.True(t, got)
	})

	t.Run("bookings outside the window do not count", func(t *testing.T) {
		cal := &fakeCalendar{windows: []TimeSlot{{StartTime: at(14, 0), EndTime: at(15, 0)}}}
		svc := newAvailService(repo, cal, nil)

		got, err := svc.IsResourceAvailable(ctx, ResourceAircraft, "acft-1", "", at(11, 0))
		require.NoError(t, err)
		assert.True(t, got)
	})
}

func TestGetResourceScheduleMergesSources(t *testing.T) {
	ctx := context.Background()
	repo := &fakeAvailRepo{blocks: []*Availability{{
		ID: "b1", ResourceType: ResourceAircraft, ResourceID: "acft-1",
		Kind: KindUnavailable, StartTime: at(8, 0), EndTime: at(9, 0), Reason: "100h inspection",
	}}}
	cal := &fakeCalendar{windows: []TimeSlot{{StartTime: at(10, 0), EndTime: at(12, 0)}}}
	svc := newAvailService(repo, cal, nil)

	entries, err := svc.GetResourceSchedule(ctx, ResourceAircraft, "acft-1", at(0, 0), at(23, 59))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "block", entries[0].Source)
	assert.Equal(t, "100h inspection", entries[0].Reason)
	assert.Equal(t, "booking", entries[1].Source)
	assert.Equal(t, at(10, 0), entries[1].StartTime)

	_, err = svc.GetResourceSchedule(ctx, ResourceAircraft, "acft-1", at(12, 0), at(12, 0))
	assert.ErrorIs(t, err, ErrInvalidTimeRange)
}

func TestCreateBlockValidation(t *testing.T) {
	ctx := context.Background()
	svc := newAvailService(&fakeAvailRepo{}, &fakeCalendar{}, nil)

	valid := CreateBlockRequest{
		OrganizationID: "org-1",
		ResourceType:   ResourceAircraft,
		ResourceID:     "acft-1",
		Kind:           KindUnavailable,
		StartTime:      at(8, 0),
		EndTime:        at(10, 0),
		Reason:         "maintenance",
	}

	tests := []struct {
		name    string
		mutate  func(r *CreateBlockRequest)
		wantErr error
	}{
		{"missing org", func(r *CreateBlockRequest) { r.OrganizationID = "" }, ErrOrgIDRequired},
		{"bad resource type", func(r *CreateBlockRequest) { r.ResourceType = "hangar" }, ErrInvalidResource},
		{"missing resource id", func(r *CreateBlockRequest) { r.ResourceID = "" }, ErrResourceRequired},
		{"bad kind", func(r *CreateBlockRequest) { r.Kind = "closed" }, ErrInvalidKind},
		{"inverted range", func(r *CreateBlockRequest) { r.EndTime = r.StartTime }, ErrInvalidTimeRange},
		{"zero max bookings", func(r *CreateBlockRequest) { zero := 0; r.MaxBookings = &zero }, ErrMaxBookingsInvald},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := svc.CreateBlock(ctx, req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	block, err := svc.CreateBlock(ctx, valid)
	require.NoError(t, err)
	assert.NotEmpty(t, block.ID)
}

func TestSetOperatingHours(t *testing.T) {
	ctx := context.Background()
	repo := &fakeAvailRepo{}
	locs := &fakeLocations{locations: map[string]*location.Location{
		"loc-1": {ID: "loc-1", Timezone: "America/Denver"},
	}}
	svc := newAvailService(repo, &fakeCalendar{}, locs)

	_, err := svc.SetOperatingHours(ctx, SetHoursRequest{
		LocationID: "loc-1", Weekday: time.Monday, OpenTime: "8am", CloseTime: "17:00",
	})
	assert.ErrorIs(t, err, ErrInvalidTimeOfDay)

	_, err = svc.SetOperatingHours(ctx, SetHoursRequest{
		LocationID: "loc-1", Weekday: time.Monday, OpenTime: "17:00", CloseTime: "09:00",
	})
	assert.ErrorIs(t, err, ErrInvalidHours)

	_, err = svc.SetOperatingHours(ctx, SetHoursRequest{
		LocationID: "missing", Weekday: time.Monday, OpenTime: "09:00", CloseTime: "17:00",
	})
	assert.ErrorIs(t, err, location.ErrNotFound)

	hours, err := svc.SetOperatingHours(ctx, SetHoursRequest{
		LocationID: "loc-1", Weekday: time.Monday, OpenTime: "09:00", CloseTime: "17:00",
	})
	require.NoError(t, err)
	assert.Equal(t, time.Monday, hours.Weekday)

	_, err = svc.SetOperatingHours(ctx, SetHoursRequest{
		LocationID: "loc-1", Weekday: time.Monday, OpenTime: "10:00", CloseTime: "16:00",
	})
	assert.ErrorIs(t, err, ErrDuplicateWeekday)
}
