package parking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nekogravitycat/parking-booking-backend/internal/pricing"
	"github.com/nekogravitycat/parking-booking-backend/internal/schedule"
)

type Repository interface {
	Create(ctx context.Context, p *Parking) error
	GetByID(ctx context.Context, id string) (*Parking, error)
	List(ctx context.Context, filter Filter) ([]*Parking, int, error)
	Update(ctx context.Context, p *Parking) error
	CountByOwner(ctx context.Context, ownerID string) (int, error)

	// ActiveRules returns the parking's active price rules in evaluation
	// order (priority, then creation time).
	ActiveRules(ctx context.Context, parkingID string) ([]pricing.Rule, error)
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

func (r *pgxRepository) Create(ctx context.Context, p *Parking) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create parking tx failed: %w", err)
	}
	defer tx.Rollback(ctx)

	query, args, err := psql.Insert("public.parkings").
		Columns(
			"owner_id", "title", "description", "address", "latitude", "longitude",
			"base_price", "currency", "access_method", "is_active", "has_ev_charging",
		).
		Values(
			p.OwnerID, p.Title, p.Description, p.Address, p.Latitude, p.Longitude,
			p.BasePrice, p.Currency, p.AccessMethod, p.IsActive, p.HasEVCharging,
		).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build create parking query failed: %w", err)
	}

	if err := tx.QueryRow(ctx, query, args...).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("create parking failed: %w", err)
	}

	if err := insertCalendar(ctx, tx, p); err != nil {
		return err
	}
	if err := insertRules(ctx, tx, p.ID, p.PriceRules); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Parking, error) {
	query, args, err := psql.Select(
		"id", "owner_id", "title", "description", "address", "latitude", "longitude",
		"base_price", "currency", "access_method", "is_active", "has_ev_charging",
		"created_at", "updated_at",
	).
		From("public.parkings").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get parking query failed: %w", err)
	}

	var p Parking
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.Address, &p.Latitude, &p.Longitude,
		&p.BasePrice, &p.Currency, &p.AccessMethod, &p.IsActive, &p.HasEVCharging,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get parking failed: %w", err)
	}

	if p.Weekly, err = r.loadWeekly(ctx, id); err != nil {
		return nil, err
	}
	if p.Exceptions, err = r.loadExceptions(ctx, id); err != nil {
		return nil, err
	}
	if p.PriceRules, err = r.loadRules(ctx, id, false); err != nil {
		return nil, err
	}

	return &p, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Parking, int, error) {
	query := psql.Select(
		"id", "owner_id", "title", "description", "address", "latitude", "longitude",
		"base_price", "currency", "access_method", "is_active", "has_ev_charging",
		"created_at", "updated_at",
		"count(*) OVER() as total_count",
	).From("public.parkings")

	if filter.OwnerID != "" {
		query = query.Where(squirrel.Eq{"owner_id": filter.OwnerID})
	}
	if filter.ActiveOnly {
		query = query.Where(squirrel.Eq{"is_active": true})
	}
	if filter.MaxPrice > 0 {
		query = query.Where(squirrel.LtOrEq{"base_price": filter.MaxPrice})
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize

	query = query.OrderBy("created_at DESC").
		Limit(uint64(filter.PageSize)).
		Offset(uint64(offset))

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list parkings query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list parkings failed: %w", err)
	}
	defer rows.Close()

	var parkings []*Parking
	var total int

	for rows.Next() {
		var p Parking
		if err := rows.Scan(
			&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.Address, &p.Latitude, &p.Longitude,
			&p.BasePrice, &p.Currency, &p.AccessMethod, &p.IsActive, &p.HasEVCharging,
			&p.CreatedAt, &p.UpdatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan parking failed: %w", err)
		}
		parkings = append(parkings, &p)
	}

	return parkings, total, nil
}

func (r *pgxRepository) Update(ctx context.Context, p *Parking) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update parking tx failed: %w", err)
	}
	defer tx.Rollback(ctx)

	query, args, err := psql.Update("public.parkings").
		Set("title", p.Title).
		Set("description", p.Description).
		Set("address", p.Address).
		Set("latitude", p.Latitude).
		Set("longitude", p.Longitude).
		Set("base_price", p.BasePrice).
		Set("currency", p.Currency).
		Set("access_method", p.AccessMethod).
		Set("is_active", p.IsActive).
		Set("has_ev_charging", p.HasEVCharging).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": p.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update parking query failed: %w", err)
	}

	ct, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update parking failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}

	// The calendar and rule sets are small and owner writes are rare, so a
	// delete-and-reinsert keeps the write path simple.
	for _, table := range []string{
		"public.parking_open_hours",
		"public.parking_exceptions",
		"public.price_rules",
	} {
		sql, args, err := psql.Delete(table).Where(squirrel.Eq{"parking_id": p.ID}).ToSql()
		if err != nil {
			return fmt.Errorf("build clear %s query failed: %w", table, err)
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("clear %s failed: %w", table, err)
		}
	}

	if err := insertCalendar(ctx, tx, p); err != nil {
		return err
	}
	if err := insertRules(ctx, tx, p.ID, p.PriceRules); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *pgxRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	query, args, err := psql.Select("count(*)").
		From("public.parkings").
		Where(squirrel.Eq{"owner_id": ownerID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count parkings query failed: %w", err)
	}

	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count parkings failed: %w", err)
	}
	return count, nil
}

func (r *pgxRepository) ActiveRules(ctx context.Context, parkingID string) ([]pricing.Rule, error) {
	return r.loadRules(ctx, parkingID, true)
}

func (r *pgxRepository) loadWeekly(ctx context.Context, parkingID string) (schedule.Weekly, error) {
	query, args, err := psql.Select("weekday", "start_min", "end_min").
		From("public.parking_open_hours").
		Where(squirrel.Eq{"parking_id": parkingID}).
		OrderBy("weekday", "start_min").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build open hours query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load open hours failed: %w", err)
	}
	defer rows.Close()

	weekly := schedule.Weekly{}
	for rows.Next() {
		var weekday int
		var rng schedule.Range
		if err := rows.Scan(&weekday, &rng.StartMin, &rng.EndMin); err != nil {
			return nil, fmt.Errorf("scan open hours failed: %w", err)
		}
		day := time.Weekday(weekday)
		weekly[day] = append(weekly[day], rng)
	}
	return weekly, nil
}

func (r *pgxRepository) loadExceptions(ctx context.Context, parkingID string) (schedule.Exceptions, error) {
	query, args, err := psql.Select(
		"e.date", "e.available", "h.start_min", "h.end_min",
	).
		From("public.parking_exceptions e").
		LeftJoin("public.parking_exception_hours h ON h.exception_id = e.id").
		Where(squirrel.Eq{"e.parking_id": parkingID}).
		OrderBy("e.date", "h.start_min").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build exceptions query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load exceptions failed: %w", err)
	}
	defer rows.Close()

	exceptions := schedule.Exceptions{}
	for rows.Next() {
		var date time.Time
		var available bool
		var startMin, endMin *int
		if err := rows.Scan(&date, &available, &startMin, &endMin); err != nil {
			return nil, fmt.Errorf("scan exception failed: %w", err)
		}

		key := date.UTC().Format(schedule.DateLayout)
		exc, ok := exceptions[key]
		if !ok {
			exc = schedule.Exception{Date: key, Available: available}
		}
		if startMin != nil && endMin != nil {
			exc.Ranges = append(exc.Ranges, schedule.Range{StartMin: *startMin, EndMin: *endMin})
		}
		exceptions[key] = exc
	}
	return exceptions, nil
}

func (r *pgxRepository) loadRules(ctx context.Context, parkingID string, activeOnly bool) ([]pricing.Rule, error) {
	query := psql.Select(
		"id", "name", "rule_type", "factor", "is_active", "priority",
		"start_min", "end_min", "days", "start_date", "end_date", "min_duration_min",
		"created_at",
	).
		From("public.price_rules").
		Where(squirrel.Eq{"parking_id": parkingID}).
		OrderBy("priority", "created_at")

	if activeOnly {
		query = query.Where(squirrel.Eq{"is_active": true})
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build price rules query failed: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("load price rules failed: %w", err)
	}
	defer rows.Close()

	var rules []pricing.Rule
	for rows.Next() {
		var rule pricing.Rule
		var days []int32
		var minDuration int
		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Type, &rule.Factor, &rule.IsActive, &rule.Priority,
			&rule.StartMin, &rule.EndMin, &days, &rule.StartDate, &rule.EndDate, &minDuration,
			&rule.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan price rule failed: %w", err)
		}
		rule.ParkingID = parkingID
		rule.MinDuration = time.Duration(minDuration) * time.Minute
		for _, d := range days {
			rule.Days = append(rule.Days, time.Weekday(d))
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func insertCalendar(ctx context.Context, tx pgx.Tx, p *Parking) error {
	for day, ranges := range p.Weekly {
		for _, rng := range ranges {
			query, args, err := psql.Insert("public.parking_open_hours").
				Columns("parking_id", "weekday", "start_min", "end_min").
				Values(p.ID, int(day), rng.StartMin, rng.EndMin).
				ToSql()
			if err != nil {
				return fmt.Errorf("build insert open hours query failed: %w", err)
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("insert open hours failed: %w", err)
			}
		}
	}

	for _, exc := range p.Exceptions {
		query, args, err := psql.Insert("public.parking_exceptions").
			Columns("parking_id", "date", "available").
			Values(p.ID, exc.Date, exc.Available).
			Suffix("RETURNING id").
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert exception query failed: %w", err)
		}
		var excID string
		if err := tx.QueryRow(ctx, query, args...).Scan(&excID); err != nil {
			return fmt.Errorf("insert exception failed: %w", err)
		}

		for _, rng := range exc.Ranges {
			query, args, err := psql.Insert("public.parking_exception_hours").
				Columns("exception_id", "start_min", "end_min").
				Values(excID, rng.StartMin, rng.EndMin).
				ToSql()
			if err != nil {
				return fmt.Errorf("build insert exception hours query failed: %w", err)
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("insert exception hours failed: %w", err)
			}
		}
	}
	return nil
}

func insertRules(ctx context.Context, tx pgx.Tx, parkingID string, rules []pricing.Rule) error {
	for _, rule := range rules {
		days := make([]int32, 0, len(rule.Days))
		for _, d := range rule.Days {
			days = append(days, int32(d))
		}

		query, args, err := psql.Insert("public.price_rules").
			Columns(
				"parking_id", "name", "rule_type", "factor", "is_active", "priority",
				"start_min", "end_min", "days", "start_date", "end_date", "min_duration_min",
			).
			Values(
				parkingID, rule.Name, rule.Type, rule.Factor, rule.IsActive, rule.Priority,
				rule.StartMin, rule.EndMin, days, rule.StartDate, rule.EndDate,
				int(rule.MinDuration/time.Minute),
			).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert price rule query failed: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert price rule failed: %w", err)
		}
	}
	return nil
}
