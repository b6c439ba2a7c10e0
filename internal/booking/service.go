package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nekogravitycat/parking-booking-backend/internal/events"
	"github.com/nekogravitycat/parking-booking-backend/internal/parking"
	"github.com/nekogravitycat/parking-booking-backend/internal/pricing"
	"github.com/nekogravitycat/parking-booking-backend/internal/schedule"
)

// ParkingDirectory is the slice of the parking module the scheduler needs:
// the resource's calendar and base price, and its active rules in evaluation
// order. Schedules and rules are read-only inputs here.
type ParkingDirectory interface {
	GetByID(ctx context.Context, id string) (*parking.Parking, error)
	ActiveRules(ctx context.Context, id string) ([]pricing.Rule, error)
}

type RequestInput struct {
	UserID    string
	ParkingID string
	StartTime time.Time
	EndTime   time.Time
	Notes     string
}

// Config tunes the scheduler's policy constants.
type Config struct {
	// CancellationWindow is how long before the start a pending or confirmed
	// booking may still be canceled.
	CancellationWindow time.Duration
	// LockWait bounds one acquisition of the per-parking critical section.
	LockWait time.Duration
	// LockRetries is how many times acquisition is retried internally before
	// ErrConcurrencyTimeout surfaces. Business failures are never retried.
	LockRetries int
}

type Service interface {
	Request(ctx context.Context, input RequestInput) (*Booking, error)
	GetByID(ctx context.Context, id string) (*Booking, error)
	List(ctx context.Context, filter Filter) ([]*Booking, int, error)

	Confirm(ctx context.Context, id, actorID string) (*Booking, error)
	Reject(ctx context.Context, id, actorID string) (*Booking, error)
	Cancel(ctx context.Context, id, actorID string) (*Booking, error)
	CheckIn(ctx context.Context, id, actorID string) (*Booking, error)
	CheckOut(ctx context.Context, id, actorID string) (*Booking, error)

	// Complete finishes a confirmed, checked-out booking once its end time
	// has passed.
	Complete(ctx context.Context, id string) (*Booking, error)

	// SweepCompletions force-completes confirmed bookings whose end time has
	// passed, including ones never checked out. Run by the worker.
	SweepCompletions(ctx context.Context, limit int) (int, error)
}

type service struct {
	repo      Repository
	parkings  ParkingDirectory
	locker    *Locker
	publisher events.Publisher
	logger    zerolog.Logger
	cfg       Config

	now func() time.Time
}

func NewService(
	repo Repository,
	parkings ParkingDirectory,
	locker *Locker,
	publisher events.Publisher,
	logger zerolog.Logger,
	cfg Config,
) Service {
	if cfg.CancellationWindow <= 0 {
		cfg.CancellationWindow = 2 * time.Hour
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 3 * time.Second
	}
	return &service{
		repo:      repo,
		parkings:  parkings,
		locker:    locker,
		publisher: publisher,
		logger:    logger.With().Str("component", "booking").Logger(),
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *service) Request(ctx context.Context, input RequestInput) (*Booking, error) {
	start := input.StartTime.UTC()
	end := input.EndTime.UTC()

	if !start.Before(end) {
		return nil, ErrInvalidInterval
	}
	if !start.After(s.now().UTC()) {
		return nil, ErrInvalidInterval
	}

	p, err := s.parkings.GetByID(ctx, input.ParkingID)
	if err != nil {
		if errors.Is(err, parking.ErrNotFound) {
			return nil, ErrParkingNotFound
		}
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrParkingNotFound
	}

	// Every calendar day touched by the interval must contain its slice
	// within a single open range of that day.
	for _, slice := range schedule.SplitDays(start, end) {
		ranges := schedule.Resolve(p.Weekly, p.Exceptions, slice.Date)
		if !schedule.Contains(ranges, slice.StartMin, slice.EndMin) {
			return nil, ErrNotAvailable
		}
	}

	rules, err := s.parkings.ActiveRules(ctx, input.ParkingID)
	if err != nil {
		return nil, err
	}

	// Check-then-insert must be atomic per parking; two concurrent requests
	// must never both observe "no conflict".
	release, err := s.acquire(ctx, input.ParkingID)
	if err != nil {
		return nil, err
	}
	defer release()

	overlap, err := s.repo.HasOverlap(ctx, input.ParkingID, start, end)
	if err != nil {
		return nil, err
	}
	if overlap {
		return nil, ErrConflict
	}

	total, breakdown, err := pricing.Quote(p.BasePrice, rules, pricing.Interval{Start: start, End: end})
	if err != nil {
		// A malformed rule aborts the booking; admitting with a silently
		// skipped rule would corrupt the price ledger.
		return nil, err
	}

	b := &Booking{
		ParkingID:    input.ParkingID,
		UserID:       input.UserID,
		StartTime:    start,
		EndTime:      end,
		Status:       StatusPending,
		TotalPrice:   total,
		AppliedRules: breakdown,
		AccessCode:   newAccessCode(),
		Notes:        input.Notes,
	}

	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("booking_id", b.ID).
		Str("parking_id", b.ParkingID).
		Float64("total_price", b.TotalPrice).
		Msg("booking admitted")

	s.emit(ctx, events.BookingRequested, b)
	return b, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Booking, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) Confirm(ctx context.Context, id, actorID string) (*Booking, error) {
	b, err := s.ownerDecision(ctx, id, actorID, StatusConfirmed)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.BookingConfirmed, b)
	return b, nil
}

func (s *service) Reject(ctx context.Context, id, actorID string) (*Booking, error) {
	b, err := s.ownerDecision(ctx, id, actorID, StatusRejected)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.BookingRejected, b)
	return b, nil
}

// ownerDecision applies a pending-only transition decided by the parking's
// owner.
func (s *service) ownerDecision(ctx context.Context, id, actorID string, to Status) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	p, err := s.parkings.GetByID(ctx, b.ParkingID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != actorID {
		return nil, ErrPermissionDenied
	}

	if b.Status != StatusPending {
		return nil, ErrInvalidStateTransition
	}
	b.Status = to

	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) Cancel(ctx context.Context, id, actorID string) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.UserID != actorID {
		return nil, ErrPermissionDenied
	}

	if b.Status != StatusPending && b.Status != StatusConfirmed {
		return nil, ErrInvalidStateTransition
	}
	if !s.now().UTC().Before(b.StartTime.Add(-s.cfg.CancellationWindow)) {
		return nil, ErrTooLateToCancel
	}

	b.Status = StatusCanceled
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}

	s.emit(ctx, events.BookingCanceled, b)
	return b, nil
}

func (s *service) CheckIn(ctx context.Context, id, actorID string) (*Booking, error) {
	b, now, err := s.occupancyOp(ctx, id, actorID)
	if err != nil {
		return nil, err
	}

	b.CheckedInAt = &now
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) CheckOut(ctx context.Context, id, actorID string) (*Booking, error) {
	b, now, err := s.occupancyOp(ctx, id, actorID)
	if err != nil {
		return nil, err
	}

	b.CheckedOutAt = &now
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// occupancyOp validates a check-in/check-out: only the booking's user, only
// while confirmed, only while the interval contains now. Status is not
// changed by these operations.
func (s *service) occupancyOp(ctx context.Context, id, actorID string) (*Booking, time.Time, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, time.Time{}, err
	}
	if b.UserID != actorID {
		return nil, time.Time{}, ErrPermissionDenied
	}
	if b.Status != StatusConfirmed {
		return nil, time.Time{}, ErrInvalidStateTransition
	}

	now := s.now().UTC()
	if now.Before(b.StartTime) || !now.Before(b.EndTime) {
		return nil, time.Time{}, ErrNotWithinInterval
	}
	return b, now, nil
}

func (s *service) Complete(ctx context.Context, id string) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusConfirmed {
		return nil, ErrInvalidStateTransition
	}
	if s.now().UTC().Before(b.EndTime) || b.CheckedOutAt == nil {
		return nil, ErrInvalidStateTransition
	}

	b.Status = StatusCompleted
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}

	s.emit(ctx, events.BookingCompleted, b)
	return b, nil
}

func (s *service) SweepCompletions(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	expired, err := s.repo.ListExpired(ctx, s.now().UTC(), limit)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, b := range expired {
		b.Status = StatusCompleted
		if err := s.repo.Update(ctx, b); err != nil {
			s.logger.Error().Err(err).Str("booking_id", b.ID).Msg("sweep completion failed")
			continue
		}
		s.emit(ctx, events.BookingCompleted, b)
		completed++
	}
	return completed, nil
}

func (s *service) acquire(ctx context.Context, parkingID string) (func(), error) {
	for attempt := 0; ; attempt++ {
		release, err := s.locker.Acquire(ctx, parkingID, s.cfg.LockWait)
		if err == nil {
			return release, nil
		}
		if attempt >= s.cfg.LockRetries || ctx.Err() != nil {
			return nil, ErrConcurrencyTimeout
		}
		s.logger.Warn().Str("parking_id", parkingID).Int("attempt", attempt+1).Msg("lock acquisition retry")
	}
}

// emit publishes a lifecycle event. Delivery is best-effort: the booking
// state is already committed and collaborators reconcile via queries.
func (s *service) emit(ctx context.Context, eventType events.Type, b *Booking) {
	err := s.publisher.Publish(ctx, events.Event{
		Type:       eventType,
		BookingID:  b.ID,
		ParkingID:  b.ParkingID,
		UserID:     b.UserID,
		StartTime:  b.StartTime,
		EndTime:    b.EndTime,
		TotalPrice: b.TotalPrice,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("booking_id", b.ID).Str("event", string(eventType)).Msg("event publish failed")
	}
}

func newAccessCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
