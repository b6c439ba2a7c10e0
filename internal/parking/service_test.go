package parking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/parking-booking-backend/internal/pricing"
	"github.com/nekogravitycat/parking-booking-backend/internal/schedule"
)

type memoryRepository struct {
	mu       sync.Mutex
	parkings map[string]*Parking
	nextID   int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{parkings: make(map[string]*Parking)}
}

func (r *memoryRepository) Create(_ context.Context, p *Parking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p.ID = fmt.Sprintf("parking-%d", r.nextID)
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	clone := *p
	r.parkings[p.ID] = &clone
	return nil
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (*Parking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.parkings[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *memoryRepository) List(_ context.Context, filter Filter) ([]*Parking, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Parking
	for _, p := range r.parkings {
		if filter.OwnerID != "" && p.OwnerID != filter.OwnerID {
			continue
		}
		if filter.ActiveOnly && !p.IsActive {
			continue
		}
		clone := *p
		out = append(out, &clone)
	}
	return out, len(out), nil
}

func (r *memoryRepository) Update(_ context.Context, p *Parking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.parkings[p.ID]; !ok {
		return ErrNotFound
	}
	clone := *p
	r.parkings[p.ID] = &clone
	return nil
}

func (r *memoryRepository) CountByOwner(_ context.Context, ownerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, p := range r.parkings {
		if p.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepository) ActiveRules(_ context.Context, parkingID string) ([]pricing.Rule, error) {
	p, err := r.GetByID(context.Background(), parkingID)
	if err != nil {
		return nil, err
	}
	var active []pricing.Rule
	for _, rule := range p.PriceRules {
		if rule.IsActive {
			active = append(active, rule)
		}
	}
	return active, nil
}

// spyCache records invalidations and serves one canned entry.
type spyCache struct {
	mu          sync.Mutex
	entries     map[string][]schedule.DayOpening
	invalidated []string
	setCalls    int
	getHits     int
	getMisses   int
}

func newSpyCache() *spyCache {
	return &spyCache{entries: make(map[string][]schedule.DayOpening)}
}

func (c *spyCache) key(parkingID, from, to string) string {
	return parkingID + "|" + from + "|" + to
}

func (c *spyCache) GetOpenings(_ context.Context, parkingID, from, to string) ([]schedule.DayOpening, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	openings, ok := c.entries[c.key(parkingID, from, to)]
	if ok {
		c.getHits++
	} else {
		c.getMisses++
	}
	return openings, ok
}

func (c *spyCache) SetOpenings(_ context.Context, parkingID, from, to string, openings []schedule.DayOpening) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setCalls++
	c.entries[c.key(parkingID, from, to)] = openings
}

func (c *spyCache) Invalidate(_ context.Context, parkingID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, parkingID)
	for k := range c.entries {
		delete(c.entries, k)
	}
}

func weekdayHours() schedule.Weekly {
	weekly := schedule.Weekly{}
	for day := time.Monday; day <= time.Friday; day++ {
		weekly[day] = []schedule.Range{{StartMin: 9 * 60, EndMin: 18 * 60}}
	}
	return weekly
}

func createReq(owner string, level int) CreateRequest {
	return CreateRequest{
		OwnerID:           owner,
		VerificationLevel: level,
		Title:             "Garage spot",
		BasePrice:         4.50,
		Weekly:            weekdayHours(),
	}
}

func TestCreateRequiresVerificationLevel(t *testing.T) {
	svc := NewService(newMemoryRepository(), newSpyCache(), zerolog.Nop())
	ctx := context.Background()

	for _, level := range []int{0, 1, 2} {
		_, err := svc.Create(ctx, createReq("owner-1", level))
		assert.ErrorIs(t, err, ErrVerificationLevel, "level %d must not publish", level)
	}

	p, err := svc.Create(ctx, createReq("owner-1", 3))
	require.NoError(t, err)
	assert.True(t, p.IsActive)
	assert.Equal(t, "EUR", p.Currency)
	assert.Equal(t, AccessCode, p.AccessMethod)
}

func TestCreateLevelThreeCapped(t *testing.T) {
	svc := NewService(newMemoryRepository(), newSpyCache(), zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, createReq("owner-1", 3))
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, createReq("owner-1", 3))
	assert.ErrorIs(t, err, ErrParkingLimit)

	// Level 4 owners are not capped.
	svc2 := NewService(newMemoryRepository(), newSpyCache(), zerolog.Nop())
	for i := 0; i < 5; i++ {
		_, err := svc2.Create(ctx, createReq("owner-2", 4))
		require.NoError(t, err)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	svc := NewService(newMemoryRepository(), newSpyCache(), zerolog.Nop())
	ctx := context.Background()

	req := createReq("owner-1", 3)
	req.Title = "   "
	_, err := svc.Create(ctx, req)
	assert.ErrorIs(t, err, ErrEmptyTitle)

	req = createReq("owner-1", 3)
	req.BasePrice = 0
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidBasePrice)

	req = createReq("owner-1", 3)
	req.Weekly = schedule.Weekly{
		time.Monday: {{StartMin: 600, EndMin: 540}},
	}
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	req = createReq("owner-1", 3)
	req.PriceRules = []pricing.Rule{{Name: "bad", Type: "percentage", Factor: 1.5}}
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidRule)

	req = createReq("owner-1", 3)
	req.PriceRules = []pricing.Rule{{Name: "too deep", Type: pricing.RuleDiscount, Factor: 150}}
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestUpdateOnlyOwner(t *testing.T) {
	svc := NewService(newMemoryRepository(), newSpyCache(), zerolog.Nop())
	ctx := context.Background()

	p, err := svc.Create(ctx, createReq("owner-1", 3))
	require.NoError(t, err)

	newTitle := "Renamed"
	_, err = svc.Update(ctx, p.ID, "intruder", UpdateRequest{Title: &newTitle})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	updated, err := svc.Update(ctx, p.ID, "owner-1", UpdateRequest{Title: &newTitle})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
}

func TestUpdateInvalidatesCache(t *testing.T) {
	cache := newSpyCache()
	svc := NewService(newMemoryRepository(), cache, zerolog.Nop())
	ctx := context.Background()

	p, err := svc.Create(ctx, createReq("owner-1", 3))
	require.NoError(t, err)

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 6)

	// First read misses and fills the cache, second read hits.
	_, err = svc.OpenIntervals(ctx, p.ID, from, to)
	require.NoError(t, err)
	_, err = svc.OpenIntervals(ctx, p.ID, from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.getHits)
	assert.Equal(t, 1, cache.setCalls)

	active := false
	_, err = svc.Update(ctx, p.ID, "owner-1", UpdateRequest{IsActive: &active})
	require.NoError(t, err)
	assert.Equal(t, []string{p.ID}, cache.invalidated)
}

func TestOpenIntervalsResolvesCalendar(t *testing.T) {
	svc := NewService(newMemoryRepository(), newSpyCache(), zerolog.Nop())
	ctx := context.Background()

	req := createReq("owner-1", 3)
	req.Exceptions = schedule.Exceptions{
		"2026-03-04": {Date: "2026-03-04", Available: false},
	}
	p, err := svc.Create(ctx, req)
	require.NoError(t, err)

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // Monday
	to := from.AddDate(0, 0, 6)                         // through Sunday

	openings, err := svc.OpenIntervals(ctx, p.ID, from, to)
	require.NoError(t, err)
	require.Len(t, openings, 7)

	byDate := make(map[string][]schedule.Range, len(openings))
	for _, day := range openings {
		byDate[day.Date] = day.Ranges
	}
	assert.Equal(t, []schedule.Range{{StartMin: 540, EndMin: 1080}}, byDate["2026-03-02"])
	assert.Empty(t, byDate["2026-03-04"], "excepted day is closed")
	assert.Empty(t, byDate["2026-03-07"], "Saturday has no weekly hours")
}

func TestOpenIntervalsRejectsBadRange(t *testing.T) {
	svc := NewService(newMemoryRepository(), newSpyCache(), zerolog.Nop())
	ctx := context.Background()

	p, err := svc.Create(ctx, createReq("owner-1", 3))
	require.NoError(t, err)

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	_, err = svc.OpenIntervals(ctx, p.ID, from, from.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	_, err = svc.OpenIntervals(ctx, p.ID, from, from.AddDate(0, 6, 0))
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}

func TestQuoteUsesActiveRules(t *testing.T) {
	svc := NewService(newMemoryRepository(), newSpyCache(), zerolog.Nop())
	ctx := context.Background()

	req := createReq("owner-1", 3)
	req.BasePrice = 10.00
	req.PriceRules = []pricing.Rule{
		{Name: "evening", Type: pricing.RuleTimeBased, Factor: 1.5, IsActive: true,
			StartMin: 18 * 60, EndMin: 23 * 60},
		{Name: "dormant", Type: pricing.RuleDiscount, Factor: 50, IsActive: false},
	}
	p, err := svc.Create(ctx, req)
	require.NoError(t, err)

	start := time.Date(2026, 3, 3, 19, 0, 0, 0, time.UTC)
	quote, err := svc.Quote(ctx, p.ID, pricing.Interval{Start: start, End: start.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 10.00, quote.BasePrice)
	assert.Equal(t, p.Currency, quote.Currency)
	assert.Equal(t, 15.00, quote.TotalPrice)
	require.Len(t, quote.AppliedRules, 1)
	assert.Equal(t, "evening", quote.AppliedRules[0].RuleName)
}
