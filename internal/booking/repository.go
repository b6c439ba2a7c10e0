package booking

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

	"github.com/nekogravitycat/parking-booking-backend/internal/pricing"
)

type Repository interface {
	// Create persists a booking together with its frozen price breakdown in
	// a single transaction. No partial state survives a failure.
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id string) (*Booking, error)
	List(ctx context.Context, filter Filter) ([]*Booking, int, error)
	Update(ctx context.Context, b *Booking) error

	// HasOverlap checks whether any pending or confirmed booking for the
	// parking overlaps [start, end) under the half-open test.
	HasOverlap(ctx context.Context, parkingID string, start, end time.Time) (bool, error)

	// ListExpired returns confirmed bookings whose end time has passed, for
	// the completion sweep.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Booking, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

func (r *pgxRepository) Create(ctx context.Context, b *Booking) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create booking tx failed: %w", err)
	}
	defer tx.Rollback(ctx)

	query, args, err := psql.Insert("public.bookings").
		Columns(
			"parking_id", "user_id", "start_time", "end_time", "status",
			"total_price", "access_code", "notes",
		).
		Values(
			b.ParkingID, b.UserID, b.StartTime, b.EndTime, b.Status,
			b.TotalPrice, b.AccessCode, b.Notes,
		).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create booking query failed: %w", err)
	}

	if err := tx.QueryRow(ctx, query, args...).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		// The exclusion constraint on (parking_id, interval) backstops the
		// in-process lock for multi-instance deployments.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ExclusionViolation {
			return ErrConflict
		}
		return fmt.Errorf("create booking failed: %w", err)
	}

	for position, applied := range b.AppliedRules {
		query, args, err := psql.Insert("public.applied_price_rules").
			Columns("booking_id", "price_rule_id", "rule_name", "rule_type", "factor", "effect_on_price", "position").
			Values(b.ID, applied.RuleID, applied.RuleName, applied.RuleType, applied.Factor, applied.EffectOnPrice, position).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert applied rule query failed: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert applied rule failed: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Booking, error) {
	query, args, err := psql.Select(
		"id", "parking_id", "user_id", "start_time", "end_time", "status",
		"total_price", "access_code", "checked_in_at", "checked_out_at", "notes",
		"created_at", "updated_at",
	).
		From("public.bookings").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get booking query failed: %w", err)
	}

	var b Booking
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&b.ID, &b.ParkingID, &b.UserID, &b.StartTime, &b.EndTime, &b.Status,
		&b.TotalPrice, &b.AccessCode, &b.CheckedInAt, &b.CheckedOutAt, &b.Notes,
		&b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking failed: %w", err)
	}

	if b.AppliedRules, err = r.loadBreakdown(ctx, id); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	query := psql.Select(
		"id", "parking_id", "user_id", "start_time", "end_time", "status",
		"total_price", "access_code", "checked_in_at", "checked_out_at", "notes",
		"created_at", "updated_at",
		"count(*) OVER() as total_count",
	).From("public.bookings")

	if filter.UserID != "" {
		query = query.Where(squirrel.Eq{"user_id": filter.UserID})
	}
	if filter.ParkingID != "" {
		query = query.Where(squirrel.Eq{"parking_id": filter.ParkingID})
	}
	if filter.Status != "" {
		query = query.Where(squirrel.Eq{"status": filter.Status})
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize

	query = query.OrderBy("start_time DESC").
		Limit(uint64(filter.PageSize)).
		Offset(uint64(offset))

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list bookings query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings failed: %w", err)
	}
	defer rows.Close()

	var bookings []*Booking
	var total int

	for rows.Next() {
		var b Booking
		if err := rows.Scan(
			&b.ID, &b.ParkingID, &b.UserID, &b.StartTime, &b.EndTime, &b.Status,
			&b.TotalPrice, &b.AccessCode, &b.CheckedInAt, &b.CheckedOutAt, &b.Notes,
			&b.CreatedAt, &b.UpdatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan booking failed: %w", err)
		}
		bookings = append(bookings, &b)
	}

	return bookings, total, nil
}

func (r *pgxRepository) Update(ctx context.Context, b *Booking) error {
	query, args, err := psql.Update("public.bookings").
		Set("status", b.Status).
		Set("checked_in_at", b.CheckedInAt).
		Set("checked_out_at", b.CheckedOutAt).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": b.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update booking query failed: %w", err)
	}

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update booking failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgxRepository) HasOverlap(ctx context.Context, parkingID string, start, end time.Time) (bool, error) {
	subQuery := psql.Select("1").
		From("public.bookings").
		Where(squirrel.Eq{"parking_id": parkingID}).
		Where(squirrel.Eq{"status": []Status{StatusPending, StatusConfirmed}}).
		Where(squirrel.Lt{"start_time": end}).
		Where(squirrel.Gt{"end_time": start})

	sql, args, err := subQuery.ToSql()
	if err != nil {
		return false, fmt.Errorf("build check overlap query failed: %w", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, "SELECT EXISTS ("+sql+")", args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check overlap failed: %w", err)
	}
	return exists, nil
}

func (r *pgxRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Booking, error) {
	query, args, err := psql.Select(
		"id", "parking_id", "user_id", "start_time", "end_time", "status",
		"total_price", "access_code", "checked_in_at", "checked_out_at", "notes",
		"created_at", "updated_at",
	).
		From("public.bookings").
		Where(squirrel.Eq{"status": StatusConfirmed}).
		Where(squirrel.LtOrEq{"end_time": now}).
		OrderBy("end_time").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list expired query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expired bookings failed: %w", err)
	}
	defer rows.Close()

	var bookings []*Booking
	for rows.Next() {
		var b Booking
		if err := rows.Scan(
			&b.ID, &b.ParkingID, &b.UserID, &b.StartTime, &b.EndTime, &b.Status,
			&b.TotalPrice, &b.AccessCode, &b.CheckedInAt, &b.CheckedOutAt, &b.Notes,
			&b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan expired booking failed: %w", err)
		}
		bookings = append(bookings, &b)
	}
	return bookings, nil
}

func (r *pgxRepository) loadBreakdown(ctx context.Context, bookingID string) ([]pricing.Applied, error) {
	query, args, err := psql.Select("price_rule_id", "rule_name", "rule_type", "factor", "effect_on_price").
		From("public.applied_price_rules").
		Where(squirrel.Eq{"booking_id": bookingID}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build breakdown query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load breakdown failed: %w", err)
	}
	defer rows.Close()

	var breakdown []pricing.Applied
	for rows.Next() {
		var a pricing.Applied
		if err := rows.Scan(&a.RuleID, &a.RuleName, &a.RuleType, &a.Factor, &a.EffectOnPrice); err != nil {
			return nil, fmt.Errorf("scan breakdown entry failed: %w", err)
		}
		breakdown = append(breakdown, a)
	}
	return breakdown, nil
}
