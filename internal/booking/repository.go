package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aerodesk/flight-scheduling-backend/internal/availability"
)

type Repository interface {
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id string) (*Booking, error)
	List(ctx context.Context, filter Filter) ([]*Booking, int, error)
	Update(ctx context.Context, b *Booking) error

	// FindOverlapping returns the active bookings whose block interval
	// overlaps [blockStart, blockEnd) on the given dimension, using the
	// half-open test. The student dimension also matches bookings where the
	// person flies as pilot: a person cannot be double-booked across
	// resources. excludeID ignores the booking itself on updates.
	FindOverlapping(ctx context.Context, dim Dimension, resourceID string, blockStart, blockEnd time.Time, excludeID string) ([]*Booking, error)

	// NextBookingNumber atomically advances the per-org, per-year sequence.
	NextBookingNumber(ctx context.Context, orgID string, year int) (int, error)

	// LockResourceCalendars takes transaction-scoped advisory locks on the
	// given resource keys, sorted to keep lock order stable. Only valid
	// inside InTx; bounded by the connection's lock_timeout.
	LockResourceCalendars(ctx context.Context, keys []string) error

	// CountActiveForUser counts active bookings involving the user that
	// have not yet ended.
	CountActiveForUser(ctx context.Context, orgID, userID string, after time.Time) (int, error)

	// ScheduledMinutes sums scheduled (not block) minutes of active
	// bookings for a student within [from, to).
	ScheduledMinutes(ctx context.Context, studentID string, from, to time.Time) (int, error)

	// BlockedWindows implements availability.BookingCalendar.
	BlockedWindows(ctx context.Context, resourceType availability.ResourceType, resourceID string, from, to time.Time) ([]availability.TimeSlot, error)

	// InTx runs fn against a transaction-bound repository. A lock wait that
	// exceeds lock_timeout is translated into a retryable conflict.
	InTx(ctx context.Context, fn func(Repository) error) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxRepository struct {
	q    querier
	pool *pgxpool.Pool // nil when transaction-bound
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{q: pool, pool: pool}
}

var bookingColumns = []string{
	"id", "organization_id", "location_id", "booking_number", "type", "status",
	"start_time", "end_time", "preflight_buffer_minutes", "postflight_buffer_minutes",
	"block_start", "block_end",
	"aircraft_id", "instructor_id", "student_id", "pilot_id",
	"estimated_cost", "actual_cost", "payment_status", "requires_approval",
	"cancellation_type", "cancellation_reason", "cancellation_fee", "cancelled_at", "cancelled_by",
	"weather_check_done", "risk_assessment_done", "hobbs_out", "hobbs_in",
	"dispatched_at", "checked_in_at", "completed_at",
	"created_by", "created_at", "updated_at",
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var locationID, aircraftID, instructorID, studentID, pilotID *string
	err := row.Scan(
		&b.ID, &b.OrganizationID, &locationID, &b.BookingNumber, &b.Type, &b.Status,
		&b.StartTime, &b.EndTime, &b.PreflightBufferMinutes, &b.PostflightBufferMinutes,
		&b.BlockStart, &b.BlockEnd,
		&aircraftID, &instructorID, &studentID, &pilotID,
		&b.EstimatedCost, &b.ActualCost, &b.PaymentStatus, &b.RequiresApproval,
		&b.CancellationType, &b.CancellationReason, &b.CancellationFee, &b.CancelledAt, &b.CancelledBy,
		&b.WeatherCheckDone, &b.RiskAssessmentDone, &b.HobbsOut, &b.HobbsIn,
		&b.DispatchedAt, &b.CheckedInAt, &b.CompletedAt,
		&b.CreatedBy, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.LocationID = deref(locationID)
	b.AircraftID = deref(aircraftID)
	b.InstructorID = deref(instructorID)
	b.StudentID = deref(studentID)
	b.PilotID = deref(pilotID)
	return &b, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *pgxRepository) Create(ctx context.Context, b *Booking) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.bookings").
		Columns(
			"organization_id", "location_id", "booking_number", "type", "status",
			"start_time", "end_time", "preflight_buffer_minutes", "postflight_buffer_minutes",
			"block_start", "block_end",
			"aircraft_id", "instructor_id", "student_id", "pilot_id",
			"estimated_cost", "payment_status", "requires_approval",
			"weather_check_done", "risk_assessment_done", "created_by",
		).
		Values(
			b.OrganizationID, nilIfEmpty(b.LocationID), b.BookingNumber, b.Type, b.Status,
			b.StartTime, b.EndTime, b.PreflightBufferMinutes, b.PostflightBufferMinutes,
			b.BlockStart, b.BlockEnd,
			nilIfEmpty(b.AircraftID), nilIfEmpty(b.InstructorID), nilIfEmpty(b.StudentID), nilIfEmpty(b.PilotID),
			b.EstimatedCost, b.PaymentStatus, b.RequiresApproval,
			b.WeatherCheckDone, b.RiskAssessmentDone, b.CreatedBy,
		).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create booking query failed: %w", err)
	}

	err = r.q.QueryRow(ctx, query, args...).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			// Duplicate booking number within the org/year.
			return NewConflictError(nil)
		}
		return fmt.Errorf("create booking failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Booking, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(bookingColumns...).
		From("public.bookings").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get booking query failed: %w", err)
	}

	b, err := scanBooking(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking failed: %w", err)
	}
	return b, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	cols := append(append([]string{}, bookingColumns...), "count(*) OVER() as total_count")
	query := psql.Select(cols...).From("public.bookings")

	if filter.OrganizationID != "" {
		query = query.Where(squirrel.Eq{"organization_id": filter.OrganizationID})
	}
	if filter.LocationID != "" {
		query = query.Where(squirrel.Eq{"location_id": filter.LocationID})
	}
	if filter.AircraftID != "" {
		query = query.Where(squirrel.Eq{"aircraft_id": filter.AircraftID})
	}
	if filter.InstructorID != "" {
		query = query.Where(squirrel.Eq{"instructor_id": filter.InstructorID})
	}
	if filter.StudentID != "" {
		query = query.Where(squirrel.Or{
			squirrel.Eq{"student_id": filter.StudentID},
			squirrel.Eq{"pilot_id": filter.StudentID},
		})
	}
	if filter.Status != "" {
		query = query.Where(squirrel.Eq{"status": filter.Status})
	}
	if filter.Type != "" {
		query = query.Where(squirrel.Eq{"type": filter.Type})
	}
	// Date range filtering (intersection logic)
	if filter.StartTimeFrom != nil {
		query = query.Where(squirrel.GtOrEq{"end_time": filter.StartTimeFrom})
	}
	if filter.StartTimeTo != nil {
		query = query.Where(squirrel.LtOrEq{"start_time": filter.StartTimeTo})
	}

	orderBy := "start_time"
	if filter.SortBy != "" {
		orderBy = filter.SortBy
	}
	orderDir := "DESC"
	if filter.SortOrder != "" {
		orderDir = filter.SortOrder
	}
	query = query.OrderBy(orderBy + " " + orderDir)

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize
	query = query.Limit(uint64(filter.PageSize)).Offset(uint64(offset))

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list bookings query failed: %w", err)
	}

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings failed: %w", err)
	}
	defer rows.Close()

	var bookings []*Booking
	var total int
	for rows.Next() {
		var b Booking
		var locationID, aircraftID, instructorID, studentID, pilotID *string
		if err := rows.Scan(
			&b.ID, &b.OrganizationID, &locationID, &b.BookingNumber, &b.Type, &b.Status,
			&b.StartTime, &b.EndTime, &b.PreflightBufferMinutes, &b.PostflightBufferMinutes,
			&b.BlockStart, &b.BlockEnd,
			&aircraftID, &instructorID, &studentID, &pilotID,
			&b.EstimatedCost, &b.ActualCost, &b.PaymentStatus, &b.RequiresApproval,
			&b.CancellationType, &b.CancellationReason, &b.CancellationFee, &b.CancelledAt, &b.CancelledBy,
			&b.WeatherCheckDone, &b.RiskAssessmentDone, &b.HobbsOut, &b.HobbsIn,
			&b.DispatchedAt, &b.CheckedInAt, &b.CompletedAt,
			&b.CreatedBy, &b.CreatedAt, &b.UpdatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan booking failed: %w", err)
		}
		b.LocationID = deref(locationID)
		b.AircraftID = deref(aircraftID)
		b.InstructorID = deref(instructorID)
		b.StudentID = deref(studentID)
		b.PilotID = deref(pilotID)
		bookings = append(bookings, &b)
	}
	return bookings, total, nil
}

func (r *pgxRepository) Update(ctx context.Context, b *Booking) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.bookings").
		Set("type", b.Type).
		Set("status", b.Status).
		Set("start_time", b.StartTime).
		Set("end_time", b.EndTime).
		Set("preflight_buffer_minutes", b.PreflightBufferMinutes).
		Set("postflight_buffer_minutes", b.PostflightBufferMinutes).
		Set("block_start", b.BlockStart).
		Set("block_end", b.BlockEnd).
		Set("aircraft_id", nilIfEmpty(b.AircraftID)).
		Set("instructor_id", nilIfEmpty(b.InstructorID)).
		Set("student_id", nilIfEmpty(b.StudentID)).
		Set("pilot_id", nilIfEmpty(b.PilotID)).
		Set("estimated_cost", b.EstimatedCost).
		Set("actual_cost", b.ActualCost).
		Set("payment_status", b.PaymentStatus).
		Set("requires_approval", b.RequiresApproval).
		Set("cancellation_type", b.CancellationType).
		Set("cancellation_reason", b.CancellationReason).
		Set("cancellation_fee", b.CancellationFee).
		Set("cancelled_at", b.CancelledAt).
		Set("cancelled_by", b.CancelledBy).
		Set("weather_check_done", b.WeatherCheckDone).
		Set("risk_assessment_done", b.RiskAssessmentDone).
		Set("hobbs_out", b.HobbsOut).
		Set("hobbs_in", b.HobbsIn).
		Set("dispatched_at", b.DispatchedAt).
		Set("checked_in_at", b.CheckedInAt).
		Set("completed_at", b.CompletedAt).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": b.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update booking query failed: %w", err)
	}

	ct, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update booking failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) FindOverlapping(ctx context.Context, dim Dimension, resourceID string, blockStart, blockEnd time.Time, excludeID string) ([]*Booking, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query := psql.Select(bookingColumns...).
		From("public.bookings").
		Where(squirrel.Eq{"status": statusStrings(ActiveStatuses)}).
		Where(squirrel.Lt{"block_start": blockEnd}).
		Where(squirrel.Gt{"block_end": blockStart})

	switch dim {
	case DimAircraft:
		query = query.Where(squirrel.Eq{"aircraft_id": resourceID})
	case DimInstructor:
		query = query.Where(squirrel.Eq{"instructor_id": resourceID})
	case DimStudent:
		query = query.Where(squirrel.Or{
			squirrel.Eq{"student_id": resourceID},
			squirrel.Eq{"pilot_id": resourceID},
		})
	default:
		return nil, fmt.Errorf("unknown conflict dimension %q", dim)
	}

	if excludeID != "" {
		query = query.Where(squirrel.NotEq{"id": excludeID})
	}

	sql, args, err := query.OrderBy("block_start ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build overlap query failed: %w", err)
	}

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("overlap query failed: %w", err)
	}
	defer rows.Close()

	var out []*Booking
	for rows.Next() {
		var b Booking
		var locationID, aircraftID, instructorID, studentID, pilotID *string
		if err := rows.Scan(
			&b.ID, &b.OrganizationID, &locationID, &b.BookingNumber, &b.Type, &b.Status,
			&b.StartTime, &b.EndTime, &b.PreflightBufferMinutes, &b.PostflightBufferMinutes,
			&b.BlockStart, &b.BlockEnd,
			&aircraftID, &instructorID, &studentID, &pilotID,
			&b.EstimatedCost, &b.ActualCost, &b.PaymentStatus, &b.RequiresApproval,
			&b.CancellationType, &b.CancellationReason, &b.CancellationFee, &b.CancelledAt, &b.CancelledBy,
			&b.WeatherCheckDone, &b.RiskAssessmentDone, &b.HobbsOut, &b.HobbsIn,
			&b.DispatchedAt, &b.CheckedInAt, &b.CompletedAt,
			&b.CreatedBy, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan overlapping booking failed: %w", err)
		}
		b.LocationID = deref(locationID)
		b.AircraftID = deref(aircraftID)
		b.InstructorID = deref(instructorID)
		b.StudentID = deref(studentID)
		b.PilotID = deref(pilotID)
		out = append(out, &b)
	}
	return out, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *pgxRepository) NextBookingNumber(ctx context.Context, orgID string, year int) (int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.booking_sequences").
		Columns("organization_id", "year", "seq").
		Values(orgID, year, 1).
		Suffix("ON CONFLICT (organization_id, year) DO UPDATE SET seq = booking_sequences.seq + 1 RETURNING seq").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build booking number query failed: %w", err)
	}

	var seq int
	if err := r.q.QueryRow(ctx, query, args...).Scan(&seq); err != nil {
		return 0, fmt.Errorf("advance booking number failed: %w", err)
	}
	return seq, nil
}

func (r *pgxRepository) LockResourceCalendars(ctx context.Context, keys []string) error {
	sorted := append([]string{}, keys...)
	sort.Strings(sorted)
	for _, key := range sorted {
		if _, err := r.q.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
			return translateLockErr(err)
		}
	}
	return nil
}

func translateLockErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.LockNotAvailable {
		return ErrCalendarBusy
	}
	return fmt.Errorf("acquire calendar lock failed: %w", err)
}

func (r *pgxRepository) CountActiveForUser(ctx context.Context, orgID, userID string, after time.Time) (int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select("count(*)").
		From("public.bookings").
		Where(squirrel.Eq{"organization_id": orgID}).
		Where(squirrel.Eq{"status": statusStrings(ActiveStatuses)}).
		Where(squirrel.Gt{"end_time": after}).
		Where(squirrel.Or{
			squirrel.Eq{"student_id": userID},
			squirrel.Eq{"pilot_id": userID},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build active count query failed: %w", err)
	}

	var count int
	if err := r.q.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("active count query failed: %w", err)
	}
	return count, nil
}

func (r *pgxRepository) ScheduledMinutes(ctx context.Context, studentID string, from, to time.Time) (int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"coalesce(sum(extract(epoch from (end_time - start_time)) / 60), 0)::int",
	).
		From("public.bookings").
		Where(squirrel.Eq{"status": statusStrings(ActiveStatuses)}).
		Where(squirrel.Or{
			squirrel.Eq{"student_id": studentID},
			squirrel.Eq{"pilot_id": studentID},
		}).
		Where(squirrel.Lt{"start_time": to}).
		Where(squirrel.GtOrEq{"start_time": from}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build scheduled minutes query failed: %w", err)
	}

	var minutes int
	if err := r.q.QueryRow(ctx, query, args...).Scan(&minutes); err != nil {
		return 0, fmt.Errorf("scheduled minutes query failed: %w", err)
	}
	return minutes, nil
}

func (r *pgxRepository) BlockedWindows(ctx context.Context, resourceType availability.ResourceType, resourceID string, from, to time.Time) ([]availability.TimeSlot, error) {
	var dim Dimension
	switch resourceType {
	case availability.ResourceAircraft:
		dim = DimAircraft
	case availability.ResourceInstructor:
		dim = DimInstructor
	case availability.ResourceStudent:
		dim = DimStudent
	default:
		return nil, fmt.Errorf("unknown resource type %q", resourceType)
	}

	overlapping, err := r.FindOverlapping(ctx, dim, resourceID, from, to, "")
	if err != nil {
		return nil, err
	}

	windows := make([]availability.TimeSlot, len(overlapping))
	for i, b := range overlapping {
		windows[i] = availability.TimeSlot{StartTime: b.BlockStart, EndTime: b.BlockEnd}
	}
	return windows, nil
}

func (r *pgxRepository) InTx(ctx context.Context, fn func(Repository) error) error {
	if r.pool == nil {
		// Already transaction-bound; nest by reusing the same tx.
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin booking transaction failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgxRepository{q: tx}); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.LockNotAvailable {
			return ErrCalendarBusy
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit booking transaction failed: %w", err)
	}
	return nil
}
