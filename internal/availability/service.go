package availability

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/aerodesk/flight-scheduling-backend/internal/cache"
	"github.com/aerodesk/flight-scheduling-backend/internal/location"
)

// BookingCalendar exposes the booking engine's reserved block windows to the
// availability engine. Implemented by the booking repository and injected at
// wiring time; availability stays a leaf below the booking engine.
type BookingCalendar interface {
	BlockedWindows(ctx context.Context, resourceType ResourceType, resourceID string, from, to time.Time) ([]TimeSlot, error)
}

// SlotQuery describes one find-available-slots request.
type SlotQuery struct {
	OrganizationID string
	ResourceType   ResourceType
	ResourceID     string
	LocationID     string
	Date           time.Time // any instant on the requested day
	Duration       time.Duration
	SlotInterval   time.Duration
}

// CreateBlockRequest carries data to declare a manual availability block.
type CreateBlockRequest struct {
	OrganizationID string
	ResourceType   ResourceType
	ResourceID     string
	Kind           Kind
	StartTime      time.Time
	EndTime        time.Time
	Reason         string
	MaxBookings    *int
}

// SetHoursRequest carries data to configure a location's weekday hours.
type SetHoursRequest struct {
	LocationID     string
	Weekday        time.Weekday
	OpenTime       string
	CloseTime      string
	EffectiveFrom  *time.Time
	EffectiveUntil *time.Time
}

type Service interface {
	// FindAvailableSlots returns a lazy, restartable sequence of open
	// candidate windows on the requested day. Callers may stop consuming
	// at a page limit; re-ranging restarts the walk.
	FindAvailableSlots(ctx context.Context, q SlotQuery) (iter.Seq[TimeSlot], error)

	// IsResourceAvailable checks operating hours and manual blocks at one
	// instant, converted to the location's effective zone.
	IsResourceAvailable(ctx context.Context, resourceType ResourceType, resourceID, locationID string, at time.Time) (bool, error)

	// GetResourceSchedule lists every occupied interval (booking block
	// windows and manual blocks) for a resource in [from, to).
	GetResourceSchedule(ctx context.Context, resourceType ResourceType, resourceID string, from, to time.Time) ([]ScheduleEntry, error)

	CreateBlock(ctx context.Context, req CreateBlockRequest) (*Availability, error)
	ListBlocks(ctx context.Context, filter BlockFilter) ([]*Availability, int, error)
	DeleteBlock(ctx context.Context, id string) error

	SetOperatingHours(ctx context.Context, req SetHoursRequest) (*OperatingHours, error)
	ListOperatingHours(ctx context.Context, locationID string) ([]*OperatingHours, error)
}

type service struct {
	repo       Repository
	locService location.Service
	calendar   BookingCalendar
	cache      *cache.CalendarCache
}

func NewService(repo Repository, locService location.Service, calendar BookingCalendar, calCache *cache.CalendarCache) Service {
	return &service{
		repo:       repo,
		locService: locService,
		calendar:   calendar,
		cache:      calCache,
	}
}

// parseTimeOfDay accepts HH:MM with an HH:MM:SS fallback.
func parseTimeOfDay(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		t, err = time.Parse("15:04:05", s)
	}
	if err != nil {
		return 0, ErrInvalidTimeOfDay
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// dayWindow resolves the open/close instants for a location on the given day,
// in the location's zone. Falls back to 08:00-20:00 when no hours are
// configured for the weekday.
func (s *service) dayWindow(ctx context.Context, locationID string, date time.Time) (time.Time, time.Time, *time.Location, error) {
	zone := time.UTC
	if locationID != "" {
		loc, err := s.locService.GetByID(ctx, locationID)
		if err != nil {
			return time.Time{}, time.Time{}, nil, err
		}
		zone = loc.Zone()
	}

	localDate := date.In(zone)
	openStr, closeStr := DefaultOpenTime, DefaultCloseTime

	if locationID != "" {
		hours, err := s.repo.HoursFor(ctx, locationID, localDate.Weekday(), localDate)
		if err != nil {
			return time.Time{}, time.Time{}, nil, err
		}
		if hours != nil {
			openStr, closeStr = hours.OpenTime, hours.CloseTime
		}
	}

	openOfDay, err := parseTimeOfDay(openStr)
	if err != nil {
		return time.Time{}, time.Time{}, nil, err
	}
	closeOfDay, err := parseTimeOfDay(closeStr)
	if err != nil {
		return time.Time{}, time.Time{}, nil, err
	}

	midnight := time.Date(localDate.Year(), localDate.Month(), localDate.Day(), 0, 0, 0, 0, zone)
	return midnight.Add(openOfDay), midnight.Add(closeOfDay), zone, nil
}

// blockedIntervals collects booking block windows plus manual unavailability
// blocks for a resource day, read through the calendar cache when present.
func (s *service) blockedIntervals(ctx context.Context, resourceType ResourceType, resourceID string, from, to time.Time) ([]TimeSlot, error) {
	day := from.UTC().Truncate(24 * time.Hour)
	if s.cache != nil {
		if cached, ok, err := s.cache.GetBlockedIntervals(ctx, string(resourceType), resourceID, day); err == nil && ok {
			out := make([]TimeSlot, len(cached))
			for i, iv := range cached {
				out[i] = TimeSlot{StartTime: iv.Start, EndTime: iv.End}
			}
			return out, nil
		}
	}

	blocked, err := s.calendar.BlockedWindows(ctx, resourceType, resourceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load booking block windows: %w", err)
	}

	manual, err := s.repo.ListBlocksInRange(ctx, resourceType, resourceID, from, to)
	if err != nil {
		return nil, err
	}
	for _, b := range manual {
		if b.Kind != KindUnavailable {
			continue
		}
		blocked = append(blocked, TimeSlot{StartTime: b.StartTime, EndTime: b.EndTime})
	}

	sort.Slice(blocked, func(i, j int) bool { return blocked[i].StartTime.Before(blocked[j].StartTime) })

	if s.cache != nil {
		intervals := make([]cache.Interval, len(blocked))
		for i, b := range blocked {
			intervals[i] = cache.Interval{Start: b.StartTime, End: b.EndTime}
		}
		// Best-effort; a failed cache write only costs a re-read.
		_ = s.cache.SetBlockedIntervals(ctx, string(resourceType), resourceID, day, intervals)
	}

	return blocked, nil
}

func (s *service) FindAvailableSlots(ctx context.Context, q SlotQuery) (iter.Seq[TimeSlot], error) {
	if !q.ResourceType.Valid() {
		return nil, ErrInvalidResource
	}
	if q.ResourceID == "" {
		return nil, ErrResourceRequired
	}
	if q.Duration <= 0 || q.SlotInterval <= 0 {
		return nil, ErrInvalidSlotQuery
	}

	open, close, _, err := s.dayWindow(ctx, q.LocationID, q.Date)
	if err != nil {
		return nil, err
	}

	blocked, err := s.blockedIntervals(ctx, q.ResourceType, q.ResourceID, open, close)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	duration := q.Duration
	interval := q.SlotInterval

	// The walk itself is pure over the captured state, so the sequence can
	// be re-ranged and stopped early without re-querying.
	seq := func(yield func(TimeSlot) bool) {
		for t := open; !t.Add(duration).After(close); t = t.Add(interval) {
			if t.Before(now) {
				continue
			}
			candidate := TimeSlot{StartTime: t, EndTime: t.Add(duration)}
			if overlapsAny(candidate, blocked) {
				continue
			}
			if !yield(candidate) {
				return
			}
		}
	}
	return seq, nil
}

func overlapsAny(candidate TimeSlot, blocked []TimeSlot) bool {
	for _, b := range blocked {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}

func (s *service) IsResourceAvailable(ctx context.Context, resourceType ResourceType, resourceID, locationID string, at time.Time) (bool, error) {
	if !resourceType.Valid() {
		return false, ErrInvalidResource
	}

	open, close, _, err := s.dayWindow(ctx, locationID, at)
	if err != nil {
		return false, err
	}
	if at.Before(open) || !at.Before(close) {
		return false, nil
	}

	blocks, err := s.repo.ListBlocksInRange(ctx, resourceType, resourceID, at, at.Add(time.Nanosecond))
	if err != nil {
		return false, err
	}
	for _, b := range blocks {
		if b.Kind == KindUnavailable {
			return false, nil
		}
		if b.Kind == KindSpecial && b.MaxBookings != nil {
			// A capped special window admits only so many bookings at once.
			windows, err := s.calendar.BlockedWindows(ctx, resourceType, resourceID, b.StartTime, b.EndTime)
			if err != nil {
				return false, fmt.Errorf("load booking block windows: %w", err)
			}
			if len(windows) >= *b.MaxBookings {
				return false, nil
			}
		}
	}
	return true, nil
}

func (s *service) GetResourceSchedule(ctx context.Context, resourceType ResourceType, resourceID string, from, to time.Time) ([]ScheduleEntry, error) {
	if !resourceType.Valid() {
		return nil, ErrInvalidResource
	}
	if !to.After(from) {
		return nil, ErrInvalidTimeRange
	}

	windows, err := s.calendar.BlockedWindows(ctx, resourceType, resourceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load booking block windows: %w", err)
	}

	entries := make([]ScheduleEntry, 0, len(windows))
	for _, w := range windows {
		entries = append(entries, ScheduleEntry{
			Source:    "booking",
			StartTime: w.StartTime,
			EndTime:   w.EndTime,
		})
	}

	blocks, err := s.repo.ListBlocksInRange(ctx, resourceType, resourceID, from, to)
	if err != nil {
		return nil, err
	}
	for _, b := range blocks {
		entries = append(entries, ScheduleEntry{
			Source:    "block",
			StartTime: b.StartTime,
			EndTime:   b.EndTime,
			Reason:    b.Reason,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].StartTime.Before(entries[j].StartTime) })
	return entries, nil
}

func (s *service) CreateBlock(ctx context.Context, req CreateBlockRequest) (*Availability, error) {
	if req.OrganizationID == "" {
		return nil, ErrOrgIDRequired
	}
	if !req.ResourceType.Valid() {
		return nil, ErrInvalidResource
	}
	if req.ResourceID == "" {
		return nil, ErrResourceRequired
	}
	if !req.Kind.Valid() {
		return nil, ErrInvalidKind
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, ErrInvalidTimeRange
	}
	if len(req.Reason) > 500 {
		return nil, ErrReasonTooLong
	}
	if req.MaxBookings != nil && *req.MaxBookings <= 0 {
		return nil, ErrMaxBookingsInvald
	}

	block := &Availability{
		OrganizationID: req.OrganizationID,
		ResourceType:   req.ResourceType,
		ResourceID:     req.ResourceID,
		Kind:           req.Kind,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Reason:         req.Reason,
		MaxBookings:    req.MaxBookings,
	}

	if err := s.repo.CreateBlock(ctx, block); err != nil {
		return nil, err
	}

	s.invalidate(ctx, block)
	return block, nil
}

func (s *service) ListBlocks(ctx context.Context, filter BlockFilter) ([]*Availability, int, error) {
	return s.repo.ListBlocks(ctx, filter)
}

func (s *service) DeleteBlock(ctx context.Context, id string) error {
	block, err := s.repo.GetBlockByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteBlock(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, block)
	return nil
}

func (s *service) invalidate(ctx context.Context, block *Availability) {
	if s.cache == nil {
		return
	}
	err := s.cache.InvalidateCalendar(ctx, string(block.ResourceType), block.ResourceID,
		block.StartTime.UTC(), block.EndTime.UTC())
	if err != nil {
		// Stale entries expire on TTL; nothing else to do here.
		return
	}
}

func (s *service) SetOperatingHours(ctx context.Context, req SetHoursRequest) (*OperatingHours, error) {
	if req.LocationID == "" {
		return nil, ErrLocationRequired
	}

	openOfDay, err := parseTimeOfDay(req.OpenTime)
	if err != nil {
		return nil, err
	}
	closeOfDay, err := parseTimeOfDay(req.CloseTime)
	if err != nil {
		return nil, err
	}
	if closeOfDay <= openOfDay {
		return nil, ErrInvalidHours
	}

	// Verify the location exists before writing hours for it.
	if _, err := s.locService.GetByID(ctx, req.LocationID); err != nil {
		return nil, err
	}

	hours := &OperatingHours{
		LocationID:     req.LocationID,
		Weekday:        req.Weekday,
		OpenTime:       req.OpenTime,
		CloseTime:      req.CloseTime,
		EffectiveFrom:  req.EffectiveFrom,
		EffectiveUntil: req.EffectiveUntil,
	}

	if err := s.repo.SetOperatingHours(ctx, hours); err != nil {
		return nil, err
	}
	return hours, nil
}

func (s *service) ListOperatingHours(ctx context.Context, locationID string) ([]*OperatingHours, error) {
	if locationID == "" {
		return nil, ErrLocationRequired
	}
	return s.repo.ListOperatingHours(ctx, locationID)
}
