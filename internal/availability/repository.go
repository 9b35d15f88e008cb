package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	CreateBlock(ctx context.Context, block *Availability) error
	GetBlockByID(ctx context.Context, id string) (*Availability, error)
	ListBlocks(ctx context.Context, filter BlockFilter) ([]*Availability, int, error)
	DeleteBlock(ctx context.Context, id string) error

	// ListBlocksInRange returns unavailability blocks for one resource whose
	// interval overlaps [from, to).
	ListBlocksInRange(ctx context.Context, resourceType ResourceType, resourceID string, from, to time.Time) ([]*Availability, error)

	SetOperatingHours(ctx context.Context, hours *OperatingHours) error
	ListOperatingHours(ctx context.Context, locationID string) ([]*OperatingHours, error)

	// HoursFor returns the operating-hours record effective for the location
	// and weekday on the given date, or nil when none is configured.
	HoursFor(ctx context.Context, locationID string, weekday time.Weekday, date time.Time) (*OperatingHours, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func (r *pgxRepository) CreateBlock(ctx context.Context, block *Availability) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.availability_blocks").
		Columns("organization_id", "resource_type", "resource_id", "kind",
			"start_time", "end_time", "reason", "max_bookings").
		Values(block.OrganizationID, block.ResourceType, block.ResourceID, block.Kind,
			block.StartTime, block.EndTime, block.Reason, block.MaxBookings).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create block query failed: %w", err)
	}

	return r.pool.QueryRow(ctx, query, args...).Scan(&block.ID, &block.CreatedAt)
}

func (r *pgxRepository) GetBlockByID(ctx context.Context, id string) (*Availability, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"id", "organization_id", "resource_type", "resource_id", "kind",
		"start_time", "end_time", "reason", "max_bookings", "created_at",
	).
		From("public.availability_blocks").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get block query failed: %w", err)
	}

	var b Availability
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&b.ID, &b.OrganizationID, &b.ResourceType, &b.ResourceID, &b.Kind,
		&b.StartTime, &b.EndTime, &b.Reason, &b.MaxBookings, &b.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get block failed: %w", err)
	}
	return &b, nil
}

func (r *pgxRepository) ListBlocks(ctx context.Context, filter BlockFilter) ([]*Availability, int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query := psql.Select(
		"id", "organization_id", "resource_type", "resource_id", "kind",
		"start_time", "end_time", "reason", "max_bookings", "created_at",
		"count(*) OVER() as total_count",
	).From("public.availability_blocks")

	if filter.OrganizationID != "" {
		query = query.Where(squirrel.Eq{"organization_id": filter.OrganizationID})
	}
	if filter.ResourceType != "" {
		query = query.Where(squirrel.Eq{"resource_type": filter.ResourceType})
	}
	if filter.ResourceID != "" {
		query = query.Where(squirrel.Eq{"resource_id": filter.ResourceID})
	}
	if filter.From != nil {
		query = query.Where(squirrel.Gt{"end_time": filter.From})
	}
	if filter.To != nil {
		query = query.Where(squirrel.Lt{"start_time": filter.To})
	}

	query = query.OrderBy("start_time ASC")

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
		return nil, 0, fmt.Errorf("build list blocks query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list blocks failed: %w", err)
	}
	defer rows.Close()

	var blocks []*Availability
	var total int
	for rows.Next() {
		var b Availability
		if err := rows.Scan(
			&b.ID, &b.OrganizationID, &b.ResourceType, &b.ResourceID, &b.Kind,
			&b.StartTime, &b.EndTime, &b.Reason, &b.MaxBookings, &b.CreatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan block failed: %w", err)
		}
		blocks = append(blocks, &b)
	}
	return blocks, total, nil
}

func (r *pgxRepository) DeleteBlock(ctx context.Context, id string) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Delete("public.availability_blocks").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete block query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete block failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) ListBlocksInRange(ctx context.Context, resourceType ResourceType, resourceID string, from, to time.Time) ([]*Availability, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"id", "organization_id", "resource_type", "resource_id", "kind",
		"start_time", "end_time", "reason", "max_bookings", "created_at",
	).
		From("public.availability_blocks").
		Where(squirrel.Eq{"resource_type": resourceType, "resource_id": resourceID}).
		Where(squirrel.Lt{"start_time": to}).
		Where(squirrel.Gt{"end_time": from}).
		OrderBy("start_time ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build blocks in range query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list blocks in range failed: %w", err)
	}
	defer rows.Close()

	var blocks []*Availability
	for rows.Next() {
		var b Availability
		if err := rows.Scan(
			&b.ID, &b.OrganizationID, &b.ResourceType, &b.ResourceID, &b.Kind,
			&b.StartTime, &b.EndTime, &b.Reason, &b.MaxBookings, &b.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan block failed: %w", err)
		}
		blocks = append(blocks, &b)
	}
	return blocks, nil
}

func (r *pgxRepository) SetOperatingHours(ctx context.Context, hours *OperatingHours) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.operating_hours").
		Columns("location_id", "weekday", "open_time", "close_time", "effective_from", "effective_until").
		Values(hours.LocationID, int(hours.Weekday), hours.OpenTime, hours.CloseTime,
			hours.EffectiveFrom, hours.EffectiveUntil).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build set operating hours query failed: %w", err)
	}

	err = r.pool.QueryRow(ctx, query, args...).Scan(&hours.ID, &hours.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		// At most one record per (location, weekday, effective_from).
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateWeekday
		}
		return fmt.Errorf("set operating hours failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) ListOperatingHours(ctx context.Context, locationID string) ([]*OperatingHours, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"id", "location_id", "weekday", "open_time", "close_time",
		"effective_from", "effective_until", "created_at",
	).
		From("public.operating_hours").
		Where(squirrel.Eq{"location_id": locationID}).
		OrderBy("weekday ASC", "effective_from ASC NULLS FIRST").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list operating hours query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list operating hours failed: %w", err)
	}
	defer rows.Close()

	var out []*OperatingHours
	for rows.Next() {
		var h OperatingHours
		var weekday int
		if err := rows.Scan(
			&h.ID, &h.LocationID, &weekday, &h.OpenTime, &h.CloseTime,
			&h.EffectiveFrom, &h.EffectiveUntil, &h.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan operating hours failed: %w", err)
		}
		h.Weekday = time.Weekday(weekday)
		out = append(out, &h)
	}
	return out, nil
}

func (r *pgxRepository) HoursFor(ctx context.Context, locationID string, weekday time.Weekday, date time.Time) (*OperatingHours, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"id", "location_id", "weekday", "open_time", "close_time",
		"effective_from", "effective_until", "created_at",
	).
		From("public.operating_hours").
		Where(squirrel.Eq{"location_id": locationID, "weekday": int(weekday)}).
		Where(squirrel.Or{
			squirrel.Eq{"effective_from": nil},
			squirrel.LtOrEq{"effective_from": date},
		}).
		Where(squirrel.Or{
			squirrel.Eq{"effective_until": nil},
			squirrel.GtOrEq{"effective_until": date},
		}).
		OrderBy("effective_from DESC NULLS LAST").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build hours-for query failed: %w", err)
	}

	var h OperatingHours
	var wd int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&h.ID, &h.LocationID, &wd, &h.OpenTime, &h.CloseTime,
		&h.EffectiveFrom, &h.EffectiveUntil, &h.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("hours-for query failed: %w", err)
	}
	h.Weekday = time.Weekday(wd)
	return &h, nil
}
