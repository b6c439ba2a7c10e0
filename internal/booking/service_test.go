package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/parking-booking-backend/internal/events"
	"github.com/nekogravitycat/parking-booking-backend/internal/parking"
	"github.com/nekogravitycat/parking-booking-backend/internal/pricing"
	"github.com/nekogravitycat/parking-booking-backend/internal/schedule"
)

// memoryRepository is an in-memory Repository for service tests.
type memoryRepository struct {
	mu       sync.Mutex
	bookings map[string]*Booking
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{bookings: make(map[string]*Booking)}
}

func (r *memoryRepository) Create(_ context.Context, b *Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.ID = uuid.NewString()
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	clone := *b
	r.bookings[b.ID] = &clone
	return nil
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *b
	return &clone, nil
}

func (r *memoryRepository) List(_ context.Context, filter Filter) ([]*Booking, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Booking
	for _, b := range r.bookings {
		if filter.ParkingID != "" && b.ParkingID != filter.ParkingID {
			continue
		}
		if filter.UserID != "" && b.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && string(b.Status) != filter.Status {
			continue
		}
		clone := *b
		out = append(out, &clone)
	}
	return out, len(out), nil
}

func (r *memoryRepository) Update(_ context.Context, b *Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookings[b.ID]; !ok {
		return ErrNotFound
	}
	clone := *b
	r.bookings[b.ID] = &clone
	return nil
}

func (r *memoryRepository) HasOverlap(_ context.Context, parkingID string, start, end time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bookings {
		if b.ParkingID == parkingID && b.Status.Blocking() && b.Overlaps(start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepository) ListExpired(_ context.Context, now time.Time, limit int) ([]*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Booking
	for _, b := range r.bookings {
		if b.Status == StatusConfirmed && !b.EndTime.After(now) {
			clone := *b
			out = append(out, &clone)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// memoryDirectory is an in-memory ParkingDirectory.
type memoryDirectory struct {
	parkings map[string]*parking.Parking
}

func (d *memoryDirectory) GetByID(_ context.Context, id string) (*parking.Parking, error) {
	p, ok := d.parkings[id]
	if !ok {
		// Wrapped like the pgx repository returns it.
		return nil, fmt.Errorf("get parking failed: %w", parking.ErrNotFound)
	}
	return p, nil
}

func (d *memoryDirectory) ActiveRules(_ context.Context, id string) ([]pricing.Rule, error) {
	p, ok := d.parkings[id]
	if !ok {
		return nil, parking.ErrNotFound
	}
	var active []pricing.Rule
	for _, rule := range p.PriceRules {
		if rule.IsActive {
			active = append(active, rule)
		}
	}
	return active, nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

const (
	ownerID  = "owner-1"
	driverID = "driver-1"
)

func allDayParking(id string) *parking.Parking {
	weekly := schedule.Weekly{}
	for day := time.Sunday; day <= time.Saturday; day++ {
		weekly[day] = []schedule.Range{{StartMin: 0, EndMin: schedule.MinutesPerDay}}
	}
	return &parking.Parking{
		ID:        id,
		OwnerID:   ownerID,
		Title:     "Test spot " + id,
		BasePrice: 5.00,
		Currency:  "EUR",
		IsActive:  true,
		Weekly:    weekly,
	}
}

func officeHoursParking(id string) *parking.Parking {
	p := allDayParking(id)
	p.Weekly = schedule.Weekly{}
	for day := time.Monday; day <= time.Friday; day++ {
		p.Weekly[day] = []schedule.Range{{StartMin: 9 * 60, EndMin: 18 * 60}}
	}
	p.Exceptions = schedule.Exceptions{
		"2026-03-04": {Date: "2026-03-04", Available: false},
	}
	return p
}

type fixture struct {
	svc       *service
	repo      *memoryRepository
	publisher *capturingPublisher
}

func newFixture(t *testing.T, parkings ...*parking.Parking) *fixture {
	t.Helper()

	directory := &memoryDirectory{parkings: make(map[string]*parking.Parking)}
	for _, p := range parkings {
		directory.parkings[p.ID] = p
	}

	repo := newMemoryRepository()
	publisher := &capturingPublisher{}

	svc := NewService(repo, directory, NewLocker(), publisher, zerolog.Nop(), Config{
		CancellationWindow: 2 * time.Hour,
		LockWait:           time.Second,
		LockRetries:        2,
	}).(*service)

	// Frozen clock keeps boundary assertions exact.
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }

	return &fixture{svc: svc, repo: repo, publisher: publisher}
}

func (f *fixture) request(t *testing.T, parkingID string, start, end time.Time) *Booking {
	t.Helper()
	b, err := f.svc.Request(context.Background(), RequestInput{
		UserID:    driverID,
		ParkingID: parkingID,
		StartTime: start,
		EndTime:   end,
	})
	require.NoError(t, err)
	return b
}

func TestRequestAdmitsPendingBookingWithFrozenBreakdown(t *testing.T) {
	p := allDayParking("p1")
	p.PriceRules = []pricing.Rule{
		{ID: "r1", Name: "weekend surcharge", Type: pricing.RuleDayBased, Factor: 1.2, IsActive: true,
			Days: []time.Weekday{time.Saturday, time.Sunday}},
		{ID: "r2", Name: "long stay discount", Type: pricing.RuleDiscount, Factor: 10, IsActive: true},
	}
	f := newFixture(t, p)

	start := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC) // Saturday
	b := f.request(t, "p1", start, start.Add(24*time.Hour))

	assert.Equal(t, StatusPending, b.Status)
	assert.Equal(t, 5.40, b.TotalPrice)
	require.Len(t, b.AppliedRules, 2)
	assert.Equal(t, 1.00, b.AppliedRules[0].EffectOnPrice)
	assert.Equal(t, -0.60, b.AppliedRules[1].EffectOnPrice)
	assert.Len(t, b.AccessCode, 8)

	// Mutating live rules later must not touch the persisted snapshot.
	p.PriceRules[0].Factor = 99

	stored, err := f.svc.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.40, stored.TotalPrice)
	assert.Equal(t, 1.2, stored.AppliedRules[0].Factor)

	assert.Equal(t, []events.Type{events.BookingRequested}, f.publisher.types())
}

func TestRequestValidatesInterval(t *testing.T) {
	f := newFixture(t, allDayParking("p1"))
	ctx := context.Background()

	start := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)

	_, err := f.svc.Request(ctx, RequestInput{UserID: driverID, ParkingID: "p1", StartTime: start, EndTime: start})
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = f.svc.Request(ctx, RequestInput{UserID: driverID, ParkingID: "p1", StartTime: start, EndTime: start.Add(-time.Hour)})
	assert.ErrorIs(t, err, ErrInvalidInterval)

	past := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	_, err = f.svc.Request(ctx, RequestInput{UserID: driverID, ParkingID: "p1", StartTime: past, EndTime: past.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestRequestEnforcesOpenHours(t *testing.T) {
	f := newFixture(t, officeHoursParking("p1"))
	ctx := context.Background()

	// Tuesday inside open hours succeeds.
	inside := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	f.request(t, "p1", inside, inside.Add(2*time.Hour))

	// Before opening fails.
	early := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	_, err := f.svc.Request(ctx, RequestInput{UserID: driverID, ParkingID: "p1", StartTime: early, EndTime: early.Add(2 * time.Hour)})
	assert.ErrorIs(t, err, ErrNotAvailable)

	// Running past closing fails even though it starts inside.
	late := time.Date(2026, 3, 5, 17, 0, 0, 0, time.UTC)
	_, err = f.svc.Request(ctx, RequestInput{UserID: driverID, ParkingID: "p1", StartTime: late, EndTime: late.Add(2 * time.Hour)})
	assert.ErrorIs(t, err, ErrNotAvailable)

	// The excepted Wednesday is closed despite the weekday pattern.
	excepted := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	_, err = f.svc.Request(ctx, RequestInput{UserID: driverID, ParkingID: "p1", StartTime: excepted, EndTime: excepted.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrNotAvailable)

	// Weekend has no configured hours.
	weekend := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	_, err = f.svc.Request(ctx, RequestInput{UserID: driverID, ParkingID: "p1", StartTime: weekend, EndTime: weekend.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrNotAvailable)

	// A sub-minute tail past closing fails; ending exactly at closing is fine.
	closing := time.Date(2026, 3, 5, 17, 0, 0, 0, time.UTC)
	_, err = f.svc.Request(ctx, RequestInput{UserID: driverID, ParkingID: "p1", StartTime: closing, EndTime: time.Date(2026, 3, 5, 18, 0, 30, 0, time.UTC)})
	assert.ErrorIs(t, err, ErrNotAvailable)
	f.request(t, "p1", closing, time.Date(2026, 3, 5, 18, 0, 0, 0, time.UTC))
}

func TestRequestMultiDayIntervalChecksEveryDay(t *testing.T) {
	p := allDayParking("p1")
	// Thursday is closed; a Wednesday-to-Friday interval must fail.
	p.Exceptions = schedule.Exceptions{
		"2026-03-05": {Date: "2026-03-05", Available: false},
	}
	f := newFixture(t, p)

	start := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	_, err := f.svc.Request(context.Background(), RequestInput{
		UserID: driverID, ParkingID: "p1",
		StartTime: start, EndTime: start.Add(48 * time.Hour),
	})
	assert.ErrorIs(t, err, ErrNotAvailable)

	// Wednesday-only stays fine.
	f.request(t, "p1", start, start.Add(6*time.Hour))
}

func TestRequestRejectsOverlap(t *testing.T) {
	f := newFixture(t, allDayParking("p1"))
	ctx := context.Background()

	start := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	f.request(t, "p1", start, start.Add(4*time.Hour))

	// Any overlap with the pending booking conflicts.
	_, err := f.svc.Request(ctx, RequestInput{
		UserID: "driver-2", ParkingID: "p1",
		StartTime: start.Add(2 * time.Hour), EndTime: start.Add(6 * time.Hour),
	})
	assert.ErrorIs(t, err, ErrConflict)

	// Back-to-back intervals do not conflict (half-open).
	f.request(t, "p1", start.Add(4*time.Hour), start.Add(6*time.Hour))
}

func TestRequestConflictBeatsAvailability(t *testing.T) {
	f := newFixture(t, allDayParking("p1"))

	start := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	b := f.request(t, "p1", start, start.Add(4*time.Hour))

	_, err := f.svc.Confirm(context.Background(), b.ID, ownerID)
	require.NoError(t, err)

	// Inside open hours, but overlapping a confirmed booking.
	_, err = f.svc.Request(context.Background(), RequestInput{
		UserID: "driver-2", ParkingID: "p1",
		StartTime: start.Add(time.Hour), EndTime: start.Add(2 * time.Hour),
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestConcurrentOverlappingRequestsSameParking(t *testing.T) {
	f := newFixture(t, allDayParking("p1"))

	start := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)

	const attempts = 8
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Request(context.Background(), RequestInput{
				UserID: driverID, ParkingID: "p1",
				StartTime: start, EndTime: end,
			})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrConflict)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent overlapping request may win")
}

func TestConcurrentRequestsDistinctParkingsAreIndependent(t *testing.T) {
	f := newFixture(t, allDayParking("p1"), allDayParking("p2"))

	start := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, parkingID := range []string{"p1", "p2"} {
		i, parkingID := i, parkingID
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Request(context.Background(), RequestInput{
				UserID: driverID, ParkingID: parkingID,
				StartTime: start, EndTime: end,
			})
		}()
	}
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1], "identical intervals on distinct parkings never conflict")
}

func TestRequestAbortsOnMalformedRule(t *testing.T) {
	p := allDayParking("p1")
	p.PriceRules = []pricing.Rule{
		{ID: "bad", Name: "broken", Type: pricing.RuleDiscount, Factor: 500, IsActive: true},
	}
	f := newFixture(t, p)

	start := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	_, err := f.svc.Request(context.Background(), RequestInput{
		UserID: driverID, ParkingID: "p1",
		StartTime: start, EndTime: start.Add(time.Hour),
	})
	assert.ErrorIs(t, err, pricing.ErrRuleEvaluation)

	bookings, _, listErr := f.repo.List(context.Background(), Filter{ParkingID: "p1"})
	require.NoError(t, listErr)
	assert.Empty(t, bookings, "no partial booking may survive an aborted request")
}

func TestConfirmRejectTransitions(t *testing.T) {
	f := newFixture(t, allDayParking("p1"))
	ctx := context.Background()

	start := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	b := f.request(t, "p1", start, start.Add(time.Hour))

	// Only the parking owner decides.
	_, err := f.svc.Confirm(ctx, b.ID, driverID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	confirmed, err := f.svc.Confirm(ctx, b.ID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	// Confirmed is no longer pending; a second decision fails.
	_, err = f.svc.Reject(ctx, b.ID, ownerID)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	_, err = f.svc.Confirm(ctx, b.ID, ownerID)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	b2 := f.request(t, "p1", start.Add(2*time.Hour), start.Add(3*time.Hour))
	rejected, err := f.svc.Reject(ctx, b2.ID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)

	assert.Contains(t, f.publisher.types(), events.BookingConfirmed)
	assert.Contains(t, f.publisher.types(), events.BookingRejected)
}

func TestRejectedBookingFreesTheInterval(t *testing.T) {
	f := newFixture(t, allDayParking("p1"))
	ctx := context.Background()

	start := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	b := f.request(t, "p1", start, start.Add(time.Hour))

	_, err := f.svc.Reject(ctx, b.ID, ownerID)
	require.NoError(t, err)

	// The same interval is bookable again.
	f.request(t, "p1", start, start.Add(time.Hour))
}

func TestCancelWindowBoundary(t *testing.T) {
	f := newFixture(t, allDayParking("p1"))
	ctx := context.Background()

	start := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)

	t.Run("too late one second inside the window", func(t *testing.T) {
		b := f.request(t, "p1", start, start.Add(time.Hour))
		f.svc.now = func() time.Time { return start.Add(-2*time.Hour + time.Second) } // start - 1:59:59

		_, err := f.svc.Cancel(ctx, b.ID, driverID)
		assert.ErrorIs(t, err, ErrTooLateToCancel)

		stored, err := f.svc.GetByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, stored.Status)
	})

	t.Run("allowed one second outside the window", func(t *testing.T) {
		b := f.request(t, "p1", start.Add(4*time.Hour), start.Add(5*time.Hour))
		cancelAt := start.Add(4*time.Hour).Add(-2*time.Hour - time.Second) // start - 2:00:01
		f.svc.now = func() time.Time { return cancelAt }

		canceled, err := f.svc.Cancel(ctx, b.ID, driverID)
		require.NoError(t, err)
		assert.Equal(t, StatusCanceled, canceled.Status)
	})
}

func TestCancelRules(t *testing.T) {
	f := newFixture(t, allDayParking("p1"))
	ctx := context.Background()

	start := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	b := f.request(t, "p1", start, start.Add(time.Hour))

	_, err := f.svc.Cancel(ctx, b.ID, "someone-else")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// Confirmed bookings may still be canceled inside the policy window.
	_, err = f.svc.Confirm(ctx, b.ID, ownerID)
	require.NoError(t, err)
	canceled, err := f.svc.Cancel(ctx, b.ID, driverID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)

	// Terminal states cannot be canceled again.
	_, err = f.svc.Cancel(ctx, b.ID, driverID)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestCheckInCheckOutAndComplete(t *testing.T) {
	f := newFixture(t, allDayParking("p1"))
	ctx := context.Background()

	start := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)
	b := f.request(t, "p1", start, end)

	// Check-in requires a confirmed booking.
	f.svc.now = func() time.Time { return start.Add(time.Minute) }
	_, err := f.svc.CheckIn(ctx, b.ID, driverID)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	f.svc.now = func() time.Time { return start.Add(-3 * time.Hour) }
	_, err = f.svc.Confirm(ctx, b.ID, ownerID)
	require.NoError(t, err)

	// Outside the interval check-in is refused.
	_, err = f.svc.CheckIn(ctx, b.ID, driverID)
	assert.ErrorIs(t, err, ErrNotWithinInterval)

	// Inside the interval it records a timestamp without changing status.
	inAt := start.Add(5 * time.Minute)
	f.svc.now = func() time.Time { return inAt }
	checkedIn, err := f.svc.CheckIn(ctx, b.ID, driverID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, checkedIn.Status)
	require.NotNil(t, checkedIn.CheckedInAt)
	assert.Equal(t, inAt, *checkedIn.CheckedInAt)

	outAt := start.Add(3 * time.Hour)
	f.svc.now = func() time.Time { return outAt }
	checkedOut, err := f.svc.CheckOut(ctx, b.ID, driverID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, checkedOut.Status)
	require.NotNil(t, checkedOut.CheckedOutAt)

	// Completion waits for the end time to pass.
	_, err = f.svc.Complete(ctx, b.ID)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	f.svc.now = func() time.Time { return end.Add(time.Minute) }
	completed, err := f.svc.Complete(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	assert.Contains(t, f.publisher.types(), events.BookingCompleted)
}

func TestSweepCompletionsForcesExpiredConfirmed(t *testing.T) {
	f := newFixture(t, allDayParking("p1"))
	ctx := context.Background()

	start := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	b1 := f.request(t, "p1", start, start.Add(time.Hour))
	b2 := f.request(t, "p1", start.Add(2*time.Hour), start.Add(3*time.Hour))
	b3 := f.request(t, "p1", start.Add(26*time.Hour), start.Add(27*time.Hour))

	for _, id := range []string{b1.ID, b2.ID, b3.ID} {
		_, err := f.svc.Confirm(ctx, id, ownerID)
		require.NoError(t, err)
	}

	// A day later the first two expired; the third is still upcoming.
	f.svc.now = func() time.Time { return start.Add(24 * time.Hour) }
	completed, err := f.svc.SweepCompletions(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, completed)

	for id, want := range map[string]Status{
		b1.ID: StatusCompleted,
		b2.ID: StatusCompleted,
		b3.ID: StatusConfirmed,
	} {
		stored, err := f.svc.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, stored.Status)
	}
}

func TestRequestUnknownOrInactiveParking(t *testing.T) {
	inactive := allDayParking("p2")
	inactive.IsActive = false
	f := newFixture(t, inactive)
	ctx := context.Background()

	start := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)

	_, err := f.svc.Request(ctx, RequestInput{UserID: driverID, ParkingID: "missing", StartTime: start, EndTime: start.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrParkingNotFound)

	_, err = f.svc.Request(ctx, RequestInput{UserID: driverID, ParkingID: "p2", StartTime: start, EndTime: start.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrParkingNotFound)
}
