package waitlist

import (
	"context"
	"log"
	"time"

	"github.com/aerodesk/flight-scheduling-backend/internal/booking"
	"github.com/aerodesk/flight-scheduling-backend/internal/events"
)

// AddEntryRequest carries data to join the waitlist. Exactly one of a
// concrete resource id or the any-resource flag may be set per class.
type AddEntryRequest struct {
	OrganizationID string
	UserID         string

	RequestedDate   time.Time
	PreferredStart  time.Time
	PreferredEnd    time.Time
	DurationMinutes int

	AircraftID    string
	AnyAircraft   bool
	InstructorID  string
	AnyInstructor bool

	FlexibilityDays  int
	FlexibilityHours int

	Priority int
	Notes    string
}

type Service interface {
	AddToWaitlist(ctx context.Context, req AddEntryRequest) (*Entry, error)
	GetByID(ctx context.Context, id string) (*Entry, error)
	List(ctx context.Context, filter Filter) ([]*Entry, int, error)
	CancelEntry(ctx context.Context, id string) (*Entry, error)

	// ProcessCancellation matches a freed slot against waiting entries and
	// offers it to the single best-ranked match.
	ProcessCancellation(ctx context.Context, cancelled *booking.Booking) error

	// SendOffer creates a held booking for the window and offers it to the
	// entry with a time-boxed deadline.
	SendOffer(ctx context.Context, entry *Entry, freed *booking.Booking) error

	AcceptOffer(ctx context.Context, entryID, actor string) (*Entry, error)
	DeclineOffer(ctx context.Context, entryID, actor string) (*Entry, error)

	// ProcessExpiredOffers sweeps offers past their deadline and releases
	// the held bookings. Returns how many entries were expired.
	ProcessExpiredOffers(ctx context.Context) (int, error)
}

type service struct {
	repo      Repository
	bookings  booking.Service
	publisher events.Publisher
	offerTTL  time.Duration
	cascade   bool
}

// NewService wires the waitlist engine. cascade controls whether a declined
// offer immediately re-offers the slot to the next-ranked waiting entry.
func NewService(repo Repository, bookings booking.Service, publisher events.Publisher, offerTTL time.Duration, cascade bool) Service {
	if offerTTL <= 0 {
		offerTTL = 4 * time.Hour
	}
	return &service{
		repo:      repo,
		bookings:  bookings,
		publisher: publisher,
		offerTTL:  offerTTL,
		cascade:   cascade,
	}
}

// OnBookingCancelled satisfies booking.CancellationHook.
func (s *service) OnBookingCancelled(ctx context.Context, cancelled *booking.Booking) error {
	return s.ProcessCancellation(ctx, cancelled)
}

func (s *service) AddToWaitlist(ctx context.Context, req AddEntryRequest) (*Entry, error) {
	if !req.PreferredEnd.After(req.PreferredStart) {
		return nil, ErrInvalidWindow
	}
	if req.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	if (req.AircraftID != "" && req.AnyAircraft) || (req.InstructorID != "" && req.AnyInstructor) {
		return nil, ErrAmbiguousResource
	}

	entry := &Entry{
		OrganizationID:   req.OrganizationID,
		UserID:           req.UserID,
		RequestedDate:    req.RequestedDate,
		PreferredStart:   req.PreferredStart,
		PreferredEnd:     req.PreferredEnd,
		DurationMinutes:  req.DurationMinutes,
		AircraftID:       req.AircraftID,
		InstructorID:     req.InstructorID,
		FlexibilityDays:  req.FlexibilityDays,
		FlexibilityHours: req.FlexibilityHours,
		Priority:         req.Priority,
		Status:           StatusWaiting,
		Notes:            req.Notes,
	}
	if req.AnyAircraft {
		entry.AircraftID = AnyResource
	}
	if req.AnyInstructor {
		entry.InstructorID = AnyResource
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Entry, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Entry, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) CancelEntry(ctx context.Context, id string) (*Entry, error) {
	ok, err := s.repo.CompareAndSetStatus(ctx, id, StatusWaiting, StatusCancelled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotWaiting
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) ProcessCancellation(ctx context.Context, cancelled *booking.Booking) error {
	if cancelled.AircraftID == "" && cancelled.InstructorID == "" {
		return nil
	}

	from := cancelled.StartTime.AddDate(0, 0, -MatchWindowDays)
	to := cancelled.StartTime.AddDate(0, 0, MatchWindowDays)

	candidates, err := s.repo.ListWaiting(ctx, cancelled.OrganizationID, from, to)
	if err != nil {
		return err
	}

	windowMinutes := int(cancelled.EndTime.Sub(cancelled.StartTime).Minutes())
	for _, entry := range candidates {
		if entry.DurationMinutes > windowMinutes {
			continue
		}
		if !entry.MatchesResource(cancelled.AircraftID, cancelled.InstructorID) {
			continue
		}
		if !entry.MatchesWindow(cancelled.StartTime, cancelled.EndTime) {
			continue
		}
		return s.SendOffer(ctx, entry, cancelled)
	}
	return nil
}

func (s *service) SendOffer(ctx context.Context, entry *Entry, freed *booking.Booking) error {
	if entry.Status != StatusWaiting {
		return ErrNotWaiting
	}

	aircraftID := freed.AircraftID
	if entry.AircraftID == "" {
		aircraftID = ""
	}
	instructorID := freed.InstructorID
	if entry.InstructorID == "" {
		instructorID = ""
	}

	held, err := s.bookings.CreateHeld(ctx, booking.CreateBookingRequest{
		OrganizationID: entry.OrganizationID,
		LocationID:     freed.LocationID,
		Type:           freed.Type,
		StartTime:      freed.StartTime,
		EndTime:        freed.EndTime,
		AircraftID:     aircraftID,
		InstructorID:   instructorID,
		StudentID:      entry.UserID,
		CreatedBy:      entry.UserID,
	})
	if err != nil {
		return err
	}

	expires := time.Now().UTC().Add(s.offerTTL)
	entry.Status = StatusOffered
	entry.OfferedBookingID = &held.ID
	entry.OfferExpiresAt = &expires
	if err := s.repo.Update(ctx, entry); err != nil {
		// The held booking would otherwise leak the slot.
		if _, relErr := s.bookings.ReleaseHeld(ctx, held.ID, "offer could not be recorded"); relErr != nil {
			log.Printf("waitlist: release held booking %s failed: %v", held.ID, relErr)
		}
		return err
	}

	s.publish(ctx, events.TypeWaitlistOfferSent, entry)
	return nil
}

func (s *service) AcceptOffer(ctx context.Context, entryID, actor string) (*Entry, error) {
	entry, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != StatusOffered || entry.OfferedBookingID == nil {
		return nil, ErrNotOffered
	}

	now := time.Now().UTC()
	if entry.OfferExpiresAt != nil && now.After(*entry.OfferExpiresAt) {
		if expireErr := s.expireEntry(ctx, entry); expireErr != nil {
			return nil, expireErr
		}
		return nil, ErrOfferExpired
	}

	ok, err := s.repo.CompareAndSetStatus(ctx, entry.ID, StatusOffered, StatusAccepted)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotOffered
	}

	if _, err := s.bookings.Confirm(ctx, *entry.OfferedBookingID, actor); err != nil {
		return nil, err
	}

	entry.Status = StatusFulfilled
	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeWaitlistOfferAccept, entry)
	return entry, nil
}

func (s *service) DeclineOffer(ctx context.Context, entryID, actor string) (*Entry, error) {
	entry, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != StatusOffered || entry.OfferedBookingID == nil {
		return nil, ErrNotOffered
	}

	ok, err := s.repo.CompareAndSetStatus(ctx, entry.ID, StatusOffered, StatusDeclined)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotOffered
	}
	entry.Status = StatusDeclined

	released, err := s.bookings.ReleaseHeld(ctx, *entry.OfferedBookingID, "waitlist offer declined")
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeWaitlistOfferDecline, entry)

	if s.cascade {
		if err := s.ProcessCancellation(ctx, released); err != nil {
			log.Printf("waitlist: cascade after decline of entry %s failed: %v", entry.ID, err)
		}
	}
	return entry, nil
}

func (s *service) ProcessExpiredOffers(ctx context.Context) (int, error) {
	expired, err := s.repo.ListExpiredOffers(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range expired {
		if err := s.expireEntry(ctx, entry); err != nil {
			log.Printf("waitlist: expire entry %s failed: %v", entry.ID, err)
			continue
		}
		count++
	}
	return count, nil
}

// expireEntry transitions an offered entry to expired and releases its held
// booking. Guarded by compare-and-set so a concurrent accept wins cleanly.
func (s *service) expireEntry(ctx context.Context, entry *Entry) error {
	ok, err := s.repo.CompareAndSetStatus(ctx, entry.ID, StatusOffered, StatusExpired)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	entry.Status = StatusExpired

	if entry.OfferedBookingID != nil {
		if _, err := s.bookings.ReleaseHeld(ctx, *entry.OfferedBookingID, "waitlist offer expired"); err != nil {
			log.Printf("waitlist: release held booking for entry %s failed: %v", entry.ID, err)
		}
	}

	s.publish(ctx, events.TypeWaitlistOfferExpired, entry)
	return nil
}

func (s *service) publish(ctx context.Context, eventType string, entry *Entry) {
	if s.publisher == nil {
		return
	}
	event, err := events.NewEvent(eventType, entry.OrganizationID, entry.ID, entry)
	if err != nil {
		return
	}
	s.publisher.Publish(ctx, event)
}
