package parking

import (
	"net/http"
	"time"

	"github.com/nekogravitycat/parking-booking-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/parking-booking-backend/internal/pricing"
	"github.com/nekogravitycat/parking-booking-backend/internal/schedule"
)

var (
	ErrNotFound          = apperror.New(http.StatusNotFound, "parking not found")
	ErrPermissionDenied  = apperror.New(http.StatusForbidden, "permission denied")
	ErrEmptyTitle        = apperror.New(http.StatusBadRequest, "title cannot be empty")
	ErrInvalidBasePrice  = apperror.New(http.StatusBadRequest, "base price must be positive")
	ErrInvalidSchedule   = apperror.New(http.StatusBadRequest, "invalid availability schedule")
	ErrInvalidRule       = apperror.New(http.StatusBadRequest, "invalid price rule")
	ErrVerificationLevel = apperror.New(http.StatusBadRequest, "verification level 3 is required to publish a parking")
	ErrParkingLimit      = apperror.New(http.StatusBadRequest, "parking limit reached for current verification level")
	ErrInvalidDateRange  = apperror.New(http.StatusBadRequest, "invalid date range")
)

// AccessMethod describes how a driver physically enters the parking.
type AccessMethod string

const (
	AccessCode   AccessMethod = "code"
	AccessKey    AccessMethod = "key"
	AccessRemote AccessMethod = "remote"
	AccessApp    AccessMethod = "app"
	AccessNone   AccessMethod = "none"
)

// Parking is the bookable physical unit. Its weekly pattern, date exceptions
// and price rules are owned by the parking's owner; the booking core reads
// them but never writes them.
type Parking struct {
	ID            string
	OwnerID       string
	Title         string
	Description   string
	Address       string
	Latitude      float64
	Longitude     float64
	BasePrice     float64
	Currency      string
	AccessMethod  AccessMethod
	IsActive      bool
	HasEVCharging bool

	Weekly     schedule.Weekly
	Exceptions schedule.Exceptions
	PriceRules []pricing.Rule

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Quote is a price preview over a parking's active rules. Nothing about it
// is persisted.
type Quote struct {
	BasePrice    float64
	Currency     string
	TotalPrice   float64
	AppliedRules []pricing.Applied
}

// Filter defines parameters for listing parkings.
type Filter struct {
	OwnerID    string
	ActiveOnly bool
	MaxPrice   float64
	Page       int
	PageSize   int
}
