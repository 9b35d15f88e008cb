package rule

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
	Create(ctx context.Context, rule *BookingRule) error
	GetByID(ctx context.Context, id string) (*BookingRule, error)
	List(ctx context.Context, filter Filter) ([]*BookingRule, int, error)
	Update(ctx context.Context, rule *BookingRule) error

	// ListActive returns every active, currently-effective rule for the
	// organization. Context matching happens in the service so the merge
	// fold stays unit-testable.
	ListActive(ctx context.Context, orgID string, now time.Time) ([]*BookingRule, error)

	// Deactivate soft-disables a rule. Rules are never deleted.
	Deactivate(ctx context.Context, id string) error
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

var ruleColumns = []string{
	"id", "organization_id", "name", "target_type", "target_id", "priority",
	"min_duration_minutes", "max_duration_minutes", "min_notice_hours", "max_advance_days",
	"max_daily_hours", "max_weekly_hours", "max_concurrent_bookings",
	"preflight_buffer_minutes", "postflight_buffer_minutes",
	"requires_payment_on_file", "min_account_balance",
	"free_cancellation_hours", "late_cancellation_fee_percent", "no_show_fee_percent",
	"requires_approval", "effective_from", "effective_until", "active",
	"created_at", "updated_at",
}

func scanRule(row pgx.Row) (*BookingRule, error) {
	var r BookingRule
	err := row.Scan(
		&r.ID, &r.OrganizationID, &r.Name, &r.TargetType, &r.TargetID, &r.Priority,
		&r.MinDurationMinutes, &r.MaxDurationMinutes, &r.MinNoticeHours, &r.MaxAdvanceDays,
		&r.MaxDailyHours, &r.MaxWeeklyHours, &r.MaxConcurrentBookings,
		&r.PreflightBufferMinutes, &r.PostflightBufferMinutes,
		&r.RequiresPaymentOnFile, &r.MinAccountBalance,
		&r.FreeCancellationHours, &r.LateCancellationFeePercent, &r.NoShowFeePercent,
		&r.RequiresApproval, &r.EffectiveFrom, &r.EffectiveUntil, &r.Active,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *pgxRepository) Create(ctx context.Context, rule *BookingRule) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Insert("public.booking_rules").
		Columns(
			"organization_id", "name", "target_type", "target_id", "priority",
			"min_duration_minutes", "max_duration_minutes", "min_notice_hours", "max_advance_days",
			"max_daily_hours", "max_weekly_hours", "max_concurrent_bookings",
			"preflight_buffer_minutes", "postflight_buffer_minutes",
			"requires_payment_on_file", "min_account_balance",
			"free_cancellation_hours", "late_cancellation_fee_percent", "no_show_fee_percent",
			"requires_approval", "effective_from", "effective_until", "active",
		).
		Values(
			rule.OrganizationID, rule.Name, rule.TargetType, rule.TargetID, rule.Priority,
			rule.MinDurationMinutes, rule.MaxDurationMinutes, rule.MinNoticeHours, rule.MaxAdvanceDays,
			rule.MaxDailyHours, rule.MaxWeeklyHours, rule.MaxConcurrentBookings,
			rule.PreflightBufferMinutes, rule.PostflightBufferMinutes,
			rule.RequiresPaymentOnFile, rule.MinAccountBalance,
			rule.FreeCancellationHours, rule.LateCancellationFeePercent, rule.NoShowFeePercent,
			rule.RequiresApproval, rule.EffectiveFrom, rule.EffectiveUntil, rule.Active,
		).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create rule query failed: %w", err)
	}

	return r.pool.QueryRow(ctx, query, args...).
		Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*BookingRule, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(ruleColumns...).
		From("public.booking_rules").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get rule query failed: %w", err)
	}

	rule, err := scanRule(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get rule failed: %w", err)
	}
	return rule, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*BookingRule, int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	cols := append(append([]string{}, ruleColumns...), "count(*) OVER() as total_count")
	query := psql.Select(cols...).From("public.booking_rules")

	if filter.OrganizationID != "" {
		query = query.Where(squirrel.Eq{"organization_id": filter.OrganizationID})
	}
	if filter.TargetType != "" {
		query = query.Where(squirrel.Eq{"target_type": filter.TargetType})
	}
	if filter.TargetID != "" {
		query = query.Where(squirrel.Eq{"target_id": filter.TargetID})
	}
	if filter.ActiveOnly {
		query = query.Where(squirrel.Eq{"active": true})
	}

	query = query.OrderBy("priority DESC", "created_at ASC")

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
		return nil, 0, fmt.Errorf("build list rules query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list rules failed: %w", err)
	}
	defer rows.Close()

	var rules []*BookingRule
	var total int
	for rows.Next() {
		var rl BookingRule
		if err := rows.Scan(
			&rl.ID, &rl.OrganizationID, &rl.Name, &rl.TargetType, &rl.TargetID, &rl.Priority,
			&rl.MinDurationMinutes, &rl.MaxDurationMinutes, &rl.MinNoticeHours, &rl.MaxAdvanceDays,
			&rl.MaxDailyHours, &rl.MaxWeeklyHours, &rl.MaxConcurrentBookings,
			&rl.PreflightBufferMinutes, &rl.PostflightBufferMinutes,
			&rl.RequiresPaymentOnFile, &rl.MinAccountBalance,
			&rl.FreeCancellationHours, &rl.LateCancellationFeePercent, &rl.NoShowFeePercent,
			&rl.RequiresApproval, &rl.EffectiveFrom, &rl.EffectiveUntil, &rl.Active,
			&rl.CreatedAt, &rl.UpdatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan rule failed: %w", err)
		}
		rules = append(rules, &rl)
	}
	return rules, total, nil
}

func (r *pgxRepository) Update(ctx context.Context, rule *BookingRule) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.booking_rules").
		Set("name", rule.Name).
		Set("priority", rule.Priority).
		Set("min_duration_minutes", rule.MinDurationMinutes).
		Set("max_duration_minutes", rule.MaxDurationMinutes).
		Set("min_notice_hours", rule.MinNoticeHours).
		Set("max_advance_days", rule.MaxAdvanceDays).
		Set("max_daily_hours", rule.MaxDailyHours).
		Set("max_weekly_hours", rule.MaxWeeklyHours).
		Set("max_concurrent_bookings", rule.MaxConcurrentBookings).
		Set("preflight_buffer_minutes", rule.PreflightBufferMinutes).
		Set("postflight_buffer_minutes", rule.PostflightBufferMinutes).
		Set("requires_payment_on_file", rule.RequiresPaymentOnFile).
		Set("min_account_balance", rule.MinAccountBalance).
		Set("free_cancellation_hours", rule.FreeCancellationHours).
		Set("late_cancellation_fee_percent", rule.LateCancellationFeePercent).
		Set("no_show_fee_percent", rule.NoShowFeePercent).
		Set("requires_approval", rule.RequiresApproval).
		Set("effective_from", rule.EffectiveFrom).
		Set("effective_until", rule.EffectiveUntil).
		Set("active", rule.Active).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": rule.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update rule query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update rule failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) ListActive(ctx context.Context, orgID string, now time.Time) ([]*BookingRule, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(ruleColumns...).
		From("public.booking_rules").
		Where(squirrel.Eq{"organization_id": orgID, "active": true}).
		Where(squirrel.Or{
			squirrel.Eq{"effective_from": nil},
			squirrel.LtOrEq{"effective_from": now},
		}).
		Where(squirrel.Or{
			squirrel.Eq{"effective_until": nil},
			squirrel.GtOrEq{"effective_until": now},
		}).
		OrderBy("priority ASC", "created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list active rules query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active rules failed: %w", err)
	}
	defer rows.Close()

	var rules []*BookingRule
	for rows.Next() {
		var rl BookingRule
		if err := rows.Scan(
			&rl.ID, &rl.OrganizationID, &rl.Name, &rl.TargetType, &rl.TargetID, &rl.Priority,
			&rl.MinDurationMinutes, &rl.MaxDurationMinutes, &rl.MinNoticeHours, &rl.MaxAdvanceDays,
			&rl.MaxDailyHours, &rl.MaxWeeklyHours, &rl.MaxConcurrentBookings,
			&rl.PreflightBufferMinutes, &rl.PostflightBufferMinutes,
			&rl.RequiresPaymentOnFile, &rl.MinAccountBalance,
			&rl.FreeCancellationHours, &rl.LateCancellationFeePercent, &rl.NoShowFeePercent,
			&rl.RequiresApproval, &rl.EffectiveFrom, &rl.EffectiveUntil, &rl.Active,
			&rl.CreatedAt, &rl.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan active rule failed: %w", err)
		}
		rules = append(rules, &rl)
	}
	return rules, nil
}

func (r *pgxRepository) Deactivate(ctx context.Context, id string) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Update("public.booking_rules").
		Set("active", false).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate rule query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deactivate rule failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
