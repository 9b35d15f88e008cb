package location

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, loc *Location) error
	GetByID(ctx context.Context, id string) (*Location, error)
	List(ctx context.Context, filter Filter) ([]*Location, int, error)
	Update(ctx context.Context, loc *Location) error
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func (r *pgxRepository) Create(ctx context.Context, loc *Location) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.locations").
		Columns("organization_id", "name", "timezone", "address", "description").
		Values(loc.OrganizationID, loc.Name, loc.Timezone, loc.Address, loc.Description).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create location query failed: %w", err)
	}

	return r.pool.QueryRow(ctx, query, args...).Scan(&loc.ID, &loc.CreatedAt)
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Location, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(
		"id", "organization_id", "name", "timezone", "address", "description", "created_at",
	).
		From("public.locations").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get location query failed: %w", err)
	}

	var loc Location
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&loc.ID, &loc.OrganizationID, &loc.Name, &loc.Timezone,
		&loc.Address, &loc.Description, &loc.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get location failed: %w", err)
	}
	return &loc, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Location, int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query := psql.Select(
		"id", "organization_id", "name", "timezone", "address", "description", "created_at",
		"count(*) OVER() as total_count",
	).From("public.locations")

	if filter.OrganizationID != "" {
		query = query.Where(squirrel.Eq{"organization_id": filter.OrganizationID})
	}
	if filter.Keyword != "" {
		like := "%" + filter.Keyword + "%"
		query = query.Where(squirrel.Or{
			squirrel.ILike{"name": like},
			squirrel.ILike{"address": like},
		})
	}

	query = query.OrderBy("created_at ASC")

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
		return nil, 0, fmt.Errorf("build list locations query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list locations failed: %w", err)
	}
	defer rows.Close()

	var locations []*Location
	var total int
	for rows.Next() {
		var loc Location
		if err := rows.Scan(
			&loc.ID, &loc.OrganizationID, &loc.Name, &loc.Timezone,
			&loc.Address, &loc.Description, &loc.CreatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan location failed: %w", err)
		}
		locations = append(locations, &loc)
	}
	return locations, total, nil
}

func (r *pgxRepository) Update(ctx context.Context, loc *Location) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.locations").
		Set("name", loc.Name).
		Set("timezone", loc.Timezone).
		Set("address", loc.Address).
		Set("description", loc.Description).
		Where(squirrel.Eq{"id": loc.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update location query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update location failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
