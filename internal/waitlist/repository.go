package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	GetByID(ctx context.Context, id string) (*Entry, error)
	List(ctx context.Context, filter Filter) ([]*Entry, int, error)
	Update(ctx context.Context, entry *Entry) error

	// ListWaiting returns waiting entries for the organization whose
	// requested date falls in [from, to], ranked by priority descending
	// then creation time ascending.
	ListWaiting(ctx context.Context, organizationID string, from, to time.Time) ([]*Entry, error)

	// ListExpiredOffers returns offered entries whose offer deadline has
	// passed.
	ListExpiredOffers(ctx context.Context, now time.Time) ([]*Entry, error)

	// CompareAndSetStatus transitions the entry only if it still holds the
	// expected status. Returns false when another writer got there first.
	CompareAndSetStatus(ctx context.Context, id string, from, to EntryStatus) (bool, error)
}

var entryColumns = []string{
	"id", "organization_id", "user_id",
	"requested_date", "preferred_start", "preferred_end", "duration_minutes",
	"aircraft_id", "instructor_id",
	"flexibility_days", "flexibility_hours",
	"priority", "status",
	"offered_booking_id", "offer_expires_at",
	"notes", "created_at", "updated_at",
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var aircraftID, instructorID, notes *string
	if err := row.Scan(
		&e.ID, &e.OrganizationID, &e.UserID,
		&e.RequestedDate, &e.PreferredStart, &e.PreferredEnd, &e.DurationMinutes,
		&aircraftID, &instructorID,
		&e.FlexibilityDays, &e.FlexibilityHours,
		&e.Priority, &e.Status,
		&e.OfferedBookingID, &e.OfferExpiresAt,
		&notes, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if aircraftID != nil {
		e.AircraftID = *aircraftID
	}
	if instructorID != nil {
		e.InstructorID = *instructorID
	}
	if notes != nil {
		e.Notes = *notes
	}
	return &e, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *pgxRepository) Create(ctx context.Context, entry *Entry) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.waitlist_entries").
		Columns("organization_id", "user_id",
			"requested_date", "preferred_start", "preferred_end", "duration_minutes",
			"aircraft_id", "instructor_id",
			"flexibility_days", "flexibility_hours",
			"priority", "status", "notes").
		Values(entry.OrganizationID, entry.UserID,
			entry.RequestedDate, entry.PreferredStart, entry.PreferredEnd, entry.DurationMinutes,
			nilIfEmpty(entry.AircraftID), nilIfEmpty(entry.InstructorID),
			entry.FlexibilityDays, entry.FlexibilityHours,
			entry.Priority, entry.Status, nilIfEmpty(entry.Notes)).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create waitlist entry query failed: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).
		Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return fmt.Errorf("create waitlist entry failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Entry, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(entryColumns...).
		From("public.waitlist_entries").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get waitlist entry query failed: %w", err)
	}

	entry, err := scanEntry(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get waitlist entry failed: %w", err)
	}
	return entry, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Entry, int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	base := psql.Select().From("public.waitlist_entries")
	if filter.OrganizationID != "" {
		base = base.Where(squirrel.Eq{"organization_id": filter.OrganizationID})
	}
	if filter.UserID != "" {
		base = base.Where(squirrel.Eq{"user_id": filter.UserID})
	}
	if filter.Status != "" {
		base = base.Where(squirrel.Eq{"status": filter.Status})
	}
	if filter.DateFrom != nil {
		base = base.Where(squirrel.GtOrEq{"requested_date": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		base = base.Where(squirrel.LtOrEq{"requested_date": *filter.DateTo})
	}

	countQuery, countArgs, err := base.Columns("COUNT(*)").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count waitlist query failed: %w", err)
	}
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count waitlist entries failed: %w", err)
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize

	query, args, err := base.Columns(entryColumns...).
		OrderBy("priority DESC", "created_at ASC").
		Limit(uint64(filter.PageSize)).Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list waitlist query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list waitlist entries failed: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan waitlist entry failed: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

func (r *pgxRepository) Update(ctx context.Context, entry *Entry) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.waitlist_entries").
		Set("status", entry.Status).
		Set("priority", entry.Priority).
		Set("offered_booking_id", entry.OfferedBookingID).
		Set("offer_expires_at", entry.OfferExpiresAt).
		Set("notes", nilIfEmpty(entry.Notes)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": entry.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update waitlist entry query failed: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update waitlist entry failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) ListWaiting(ctx context.Context, organizationID string, from, to time.Time) ([]*Entry, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(entryColumns...).
		From("public.waitlist_entries").
		Where(squirrel.Eq{"organization_id": organizationID, "status": StatusWaiting}).
		Where(squirrel.GtOrEq{"requested_date": from}).
		Where(squirrel.LtOrEq{"requested_date": to}).
		OrderBy("priority DESC", "created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list waiting query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list waiting entries failed: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan waiting entry failed: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *pgxRepository) ListExpiredOffers(ctx context.Context, now time.Time) ([]*Entry, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(entryColumns...).
		From("public.waitlist_entries").
		Where(squirrel.Eq{"status": StatusOffered}).
		Where(squirrel.Lt{"offer_expires_at": now}).
		OrderBy("offer_expires_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list expired offers query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expired offers failed: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired offer failed: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *pgxRepository) CompareAndSetStatus(ctx context.Context, id string, from, to EntryStatus) (bool, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.waitlist_entries").
		Set("status", to).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id, "status": from}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build status transition query failed: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition waitlist entry failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
