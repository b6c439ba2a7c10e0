package http

import (
	"sort"
	"time"

	"github.com/nekogravitycat/parking-booking-backend/internal/parking"
	"github.com/nekogravitycat/parking-booking-backend/internal/pricing"
	"github.com/nekogravitycat/parking-booking-backend/internal/schedule"
)

// OpenHourItem is one recurring open range on a weekday (0 = Sunday).
type OpenHourItem struct {
	Weekday  int `json:"weekday" binding:"min=0,max=6"`
	StartMin int `json:"start_min" binding:"min=0,max=1439"`
	EndMin   int `json:"end_min" binding:"min=1,max=1440"`
}

type RangeItem struct {
	StartMin int `json:"start_min" binding:"min=0,max=1439"`
	EndMin   int `json:"end_min" binding:"min=1,max=1440"`
}

// ExceptionItem overrides the weekly pattern for one calendar date.
type ExceptionItem struct {
	Date      string      `json:"date" binding:"required,datetime=2006-01-02"`
	Available bool        `json:"available"`
	Ranges    []RangeItem `json:"ranges" binding:"omitempty,dive"`
}

type PriceRuleItem struct {
	ID             string  `json:"id,omitempty"`
	Name           string  `json:"name" binding:"required,max=100"`
	Type           string  `json:"type" binding:"required,oneof=time_based day_based date_based duration_based discount"`
	Factor         float64 `json:"factor" binding:"required"`
	IsActive       bool    `json:"is_active"`
	Priority       int     `json:"priority"`
	StartMin       int     `json:"start_min,omitempty"`
	EndMin         int     `json:"end_min,omitempty"`
	Days           []int   `json:"days,omitempty" binding:"omitempty,dive,min=0,max=6"`
	StartDate      *string `json:"start_date,omitempty" binding:"omitempty,datetime=2006-01-02"`
	EndDate        *string `json:"end_date,omitempty" binding:"omitempty,datetime=2006-01-02"`
	MinDurationMin int     `json:"min_duration_min,omitempty" binding:"omitempty,min=0"`
}

type CreateParkingRequest struct {
	Title         string          `json:"title" binding:"required,max=200"`
	Description   string          `json:"description" binding:"omitempty,max=2000"`
	Address       string          `json:"address" binding:"omitempty,max=500"`
	Latitude      float64         `json:"latitude" binding:"omitempty,latitude"`
	Longitude     float64         `json:"longitude" binding:"omitempty,longitude"`
	BasePrice     float64         `json:"base_price" binding:"required,gt=0"`
	Currency      string          `json:"currency" binding:"omitempty,len=3"`
	AccessMethod  string          `json:"access_method" binding:"omitempty,oneof=code key remote app none"`
	HasEVCharging bool            `json:"has_ev_charging"`
	OpenHours     []OpenHourItem  `json:"open_hours" binding:"omitempty,dive"`
	Exceptions    []ExceptionItem `json:"exceptions" binding:"omitempty,dive"`
	PriceRules    []PriceRuleItem `json:"price_rules" binding:"omitempty,dive"`
}

type UpdateParkingRequest struct {
	Title         *string         `json:"title" binding:"omitempty,max=200"`
	Description   *string         `json:"description" binding:"omitempty,max=2000"`
	Address       *string         `json:"address" binding:"omitempty,max=500"`
	BasePrice     *float64        `json:"base_price" binding:"omitempty,gt=0"`
	IsActive      *bool           `json:"is_active"`
	HasEVCharging *bool           `json:"has_ev_charging"`
	OpenHours     []OpenHourItem  `json:"open_hours" binding:"omitempty,dive"`
	Exceptions    []ExceptionItem `json:"exceptions" binding:"omitempty,dive"`
	PriceRules    []PriceRuleItem `json:"price_rules" binding:"omitempty,dive"`
}

// ListParkingsRequest defines query parameters for listing parkings.
type ListParkingsRequest struct {
	OwnerID  string  `form:"owner_id" binding:"omitempty,uuid"`
	MaxPrice float64 `form:"max_price" binding:"omitempty,gt=0"`
	Page     int     `form:"page,default=1" binding:"omitempty,min=1"`
	PageSize int     `form:"page_size,default=20" binding:"omitempty,min=1,max=100"`
}

type AvailabilityRequest struct {
	From string `form:"from" binding:"required,datetime=2006-01-02"`
	To   string `form:"to" binding:"required,datetime=2006-01-02"`
}

type QuoteRequest struct {
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required"`
}

type QuoteResponse struct {
	BasePrice    float64           `json:"base_price"`
	TotalPrice   float64           `json:"total_price"`
	Currency     string            `json:"currency"`
	AppliedRules []pricing.Applied `json:"applied_price_rules"`
}

type ParkingResponse struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	Address       string          `json:"address,omitempty"`
	Latitude      float64         `json:"latitude,omitempty"`
	Longitude     float64         `json:"longitude,omitempty"`
	BasePrice     float64         `json:"base_price"`
	Currency      string          `json:"currency"`
	AccessMethod  string          `json:"access_method,omitempty"`
	IsActive      bool            `json:"is_active"`
	HasEVCharging bool            `json:"has_ev_charging"`
	OpenHours     []OpenHourItem  `json:"open_hours"`
	Exceptions    []ExceptionItem `json:"exceptions"`
	PriceRules    []PriceRuleItem `json:"price_rules"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func NewParkingResponse(p *parking.Parking) ParkingResponse {
	return ParkingResponse{
		ID:            p.ID,
		OwnerID:       p.OwnerID,
		Title:         p.Title,
		Description:   p.Description,
		Address:       p.Address,
		Latitude:      p.Latitude,
		Longitude:     p.Longitude,
		BasePrice:     p.BasePrice,
		Currency:      p.Currency,
		AccessMethod:  string(p.AccessMethod),
		IsActive:      p.IsActive,
		HasEVCharging: p.HasEVCharging,
		OpenHours:     openHourItems(p.Weekly),
		Exceptions:    exceptionItems(p.Exceptions),
		PriceRules:    priceRuleItems(p.PriceRules),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func toWeekly(items []OpenHourItem) schedule.Weekly {
	if len(items) == 0 {
		return schedule.Weekly{}
	}
	weekly := schedule.Weekly{}
	for _, item := range items {
		day := time.Weekday(item.Weekday)
		weekly[day] = append(weekly[day], schedule.Range{StartMin: item.StartMin, EndMin: item.EndMin})
	}
	// Clients may send ranges in any order; validation expects them sorted.
	for _, ranges := range weekly {
		sort.Slice(ranges, func(i, j int) bool { return ranges[i].StartMin < ranges[j].StartMin })
	}
	return weekly
}

func toExceptions(items []ExceptionItem) schedule.Exceptions {
	if len(items) == 0 {
		return schedule.Exceptions{}
	}
	exceptions := schedule.Exceptions{}
	for _, item := range items {
		ranges := make([]schedule.Range, len(item.Ranges))
		for i, r := range item.Ranges {
			ranges[i] = schedule.Range{StartMin: r.StartMin, EndMin: r.EndMin}
		}
		sort.Slice(ranges, func(i, j int) bool { return ranges[i].StartMin < ranges[j].StartMin })
		exceptions[item.Date] = schedule.Exception{
			Date:      item.Date,
			Available: item.Available,
			Ranges:    ranges,
		}
	}
	return exceptions
}

func toPriceRules(items []PriceRuleItem) []pricing.Rule {
	rules := make([]pricing.Rule, len(items))
	for i, item := range items {
		days := make([]time.Weekday, len(item.Days))
		for j, d := range item.Days {
			days[j] = time.Weekday(d)
		}
		rules[i] = pricing.Rule{
			ID:          item.ID,
			Name:        item.Name,
			Type:        pricing.RuleType(item.Type),
			Factor:      item.Factor,
			IsActive:    item.IsActive,
			Priority:    item.Priority,
			StartMin:    item.StartMin,
			EndMin:      item.EndMin,
			Days:        days,
			StartDate:   parseDate(item.StartDate),
			EndDate:     parseDate(item.EndDate),
			MinDuration: time.Duration(item.MinDurationMin) * time.Minute,
		}
	}
	return rules
}

func parseDate(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse(schedule.DateLayout, *s)
	if err != nil {
		return nil
	}
	return &t
}

func openHourItems(weekly schedule.Weekly) []OpenHourItem {
	items := make([]OpenHourItem, 0)
	for day := time.Sunday; day <= time.Saturday; day++ {
		for _, r := range weekly[day] {
			items = append(items, OpenHourItem{Weekday: int(day), StartMin: r.StartMin, EndMin: r.EndMin})
		}
	}
	return items
}

func exceptionItems(exceptions schedule.Exceptions) []ExceptionItem {
	items := make([]ExceptionItem, 0, len(exceptions))
	for _, e := range exceptions {
		ranges := make([]RangeItem, len(e.Ranges))
		for i, r := range e.Ranges {
			ranges[i] = RangeItem{StartMin: r.StartMin, EndMin: r.EndMin}
		}
		items = append(items, ExceptionItem{Date: e.Date, Available: e.Available, Ranges: ranges})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Date < items[j].Date })
	return items
}

func priceRuleItems(rules []pricing.Rule) []PriceRuleItem {
	items := make([]PriceRuleItem, len(rules))
	for i, r := range rules {
		days := make([]int, len(r.Days))
		for j, d := range r.Days {
			days[j] = int(d)
		}
		items[i] = PriceRuleItem{
			ID:             r.ID,
			Name:           r.Name,
			Type:           string(r.Type),
			Factor:         r.Factor,
			IsActive:       r.IsActive,
			Priority:       r.Priority,
			StartMin:       r.StartMin,
			EndMin:         r.EndMin,
			Days:           days,
			StartDate:      formatDate(r.StartDate),
			EndDate:        formatDate(r.EndDate),
			MinDurationMin: int(r.MinDuration / time.Minute),
		}
	}
	return items
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(schedule.DateLayout)
	return &s
}
