package parking

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nekogravitycat/parking-booking-backend/internal/pricing"
	"github.com/nekogravitycat/parking-booking-backend/internal/schedule"
)

// Publishing a parking requires identity verification level 3; level 4
// removes the per-owner limit.
const (
	minPublishLevel   = 3
	level3ParkingCap  = 3
	maxOpeningSpanDay = 92 // availability queries are capped to one quarter
)

type CreateRequest struct {
	OwnerID           string
	VerificationLevel int
	Title             string
	Description       string
	Address           string
	Latitude          float64
	Longitude         float64
	BasePrice         float64
	Currency          string
	AccessMethod      AccessMethod
	HasEVCharging     bool
	Weekly            schedule.Weekly
	Exceptions        schedule.Exceptions
	PriceRules        []pricing.Rule
}

type UpdateRequest struct {
	Title         *string
	Description   *string
	Address       *string
	BasePrice     *float64
	IsActive      *bool
	HasEVCharging *bool
	Weekly        schedule.Weekly
	Exceptions    schedule.Exceptions
	PriceRules    []pricing.Rule
}

// AvailabilityCache caches resolved per-day openings for the display path.
// The booking path never reads it; admission always resolves fresh.
type AvailabilityCache interface {
	GetOpenings(ctx context.Context, parkingID, from, to string) ([]schedule.DayOpening, bool)
	SetOpenings(ctx context.Context, parkingID, from, to string, openings []schedule.DayOpening)
	Invalidate(ctx context.Context, parkingID string)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Parking, error)
	GetByID(ctx context.Context, id string) (*Parking, error)
	List(ctx context.Context, filter Filter) ([]*Parking, int, error)
	Update(ctx context.Context, id, updaterID string, req UpdateRequest) (*Parking, error)

	// OpenIntervals resolves the parking's open hours for every date in
	// [from, to], for display and search collaborators.
	OpenIntervals(ctx context.Context, id string, from, to time.Time) ([]schedule.DayOpening, error)

	// ActiveRules returns the rules a quote or admission must evaluate, in
	// evaluation order.
	ActiveRules(ctx context.Context, id string) ([]pricing.Rule, error)

	// Quote computes a side-effect-free price preview over the current
	// active rules, in one pass over the parking.
	Quote(ctx context.Context, id string, interval pricing.Interval) (*Quote, error)
}

type service struct {
	repo   Repository
	cache  AvailabilityCache
	logger zerolog.Logger
}

func NewService(repo Repository, cache AvailabilityCache, logger zerolog.Logger) Service {
	return &service{
		repo:   repo,
		cache:  cache,
		logger: logger.With().Str("component", "parking").Logger(),
	}
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*Parking, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, ErrEmptyTitle
	}
	if req.BasePrice <= 0 {
		return nil, ErrInvalidBasePrice
	}
	if req.VerificationLevel < minPublishLevel {
		return nil, ErrVerificationLevel
	}
	if err := validateCalendar(req.Weekly, req.Exceptions); err != nil {
		return nil, err
	}
	if err := validateRules(req.PriceRules); err != nil {
		return nil, err
	}

	if req.VerificationLevel == minPublishLevel {
		count, err := s.repo.CountByOwner(ctx, req.OwnerID)
		if err != nil {
			return nil, err
		}
		if count >= level3ParkingCap {
			return nil, ErrParkingLimit
		}
	}

	currency := req.Currency
	if currency == "" {
		currency = "EUR"
	}
	accessMethod := req.AccessMethod
	if accessMethod == "" {
		accessMethod = AccessCode
	}

	p := &Parking{
		OwnerID:       req.OwnerID,
		Title:         req.Title,
		Description:   req.Description,
		Address:       req.Address,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		BasePrice:     req.BasePrice,
		Currency:      currency,
		AccessMethod:  accessMethod,
		IsActive:      true,
		HasEVCharging: req.HasEVCharging,
		Weekly:        req.Weekly,
		Exceptions:    req.Exceptions,
		PriceRules:    req.PriceRules,
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info().Str("parking_id", p.ID).Str("owner_id", p.OwnerID).Msg("parking published")
	return p, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Parking, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter Filter) ([]*Parking, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) Update(ctx context.Context, id, updaterID string, req UpdateRequest) (*Parking, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != updaterID {
		return nil, ErrPermissionDenied
	}

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, ErrEmptyTitle
		}
		p.Title = *req.Title
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Address != nil {
		p.Address = *req.Address
	}
	if req.BasePrice != nil {
		if *req.BasePrice <= 0 {
			return nil, ErrInvalidBasePrice
		}
		p.BasePrice = *req.BasePrice
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if req.HasEVCharging != nil {
		p.HasEVCharging = *req.HasEVCharging
	}
	if req.Weekly != nil {
		if err := schedule.ValidateWeekly(req.Weekly); err != nil {
			return nil, ErrInvalidSchedule
		}
		p.Weekly = req.Weekly
	}
	if req.Exceptions != nil {
		if err := validateExceptions(req.Exceptions); err != nil {
			return nil, err
		}
		p.Exceptions = req.Exceptions
	}
	if req.PriceRules != nil {
		if err := validateRules(req.PriceRules); err != nil {
			return nil, err
		}
		p.PriceRules = req.PriceRules
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, p.ID)
	return p, nil
}

func (s *service) OpenIntervals(ctx context.Context, id string, from, to time.Time) ([]schedule.DayOpening, error) {
	if to.Before(from) || to.Sub(from) > maxOpeningSpanDay*24*time.Hour {
		return nil, ErrInvalidDateRange
	}

	fromKey := schedule.DateKey(from)
	toKey := schedule.DateKey(to)
	if openings, ok := s.cache.GetOpenings(ctx, id, fromKey, toKey); ok {
		return openings, nil
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	openings := schedule.OpenIntervals(p.Weekly, p.Exceptions, from, to)
	s.cache.SetOpenings(ctx, id, fromKey, toKey, openings)
	return openings, nil
}

func (s *service) ActiveRules(ctx context.Context, id string) ([]pricing.Rule, error) {
	return s.repo.ActiveRules(ctx, id)
}

func (s *service) Quote(ctx context.Context, id string, interval pricing.Interval) (*Quote, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rules, err := s.repo.ActiveRules(ctx, id)
	if err != nil {
		return nil, err
	}

	total, applied, err := pricing.Quote(p.BasePrice, rules, interval)
	if err != nil {
		return nil, err
	}
	return &Quote{
		BasePrice:    p.BasePrice,
		Currency:     p.Currency,
		TotalPrice:   total,
		AppliedRules: applied,
	}, nil
}

func validateCalendar(weekly schedule.Weekly, exceptions schedule.Exceptions) error {
	if err := schedule.ValidateWeekly(weekly); err != nil {
		return ErrInvalidSchedule
	}
	return validateExceptions(exceptions)
}

func validateExceptions(exceptions schedule.Exceptions) error {
	for _, exc := range exceptions {
		if _, err := time.Parse(schedule.DateLayout, exc.Date); err != nil {
			return ErrInvalidSchedule
		}
		if err := schedule.Validate(exc.Ranges); err != nil {
			return ErrInvalidSchedule
		}
	}
	return nil
}

func validateRules(rules []pricing.Rule) error {
	for _, rule := range rules {
		valid := false
		for _, t := range pricing.ValidRuleTypes {
			if rule.Type == t {
				valid = true
				break
			}
		}
		if !valid || rule.Factor <= 0 {
			return ErrInvalidRule
		}
		if rule.Type == pricing.RuleDiscount && rule.Factor > 100 {
			return ErrInvalidRule
		}
	}
	return nil
}
