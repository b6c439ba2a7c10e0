package booking

import (
	"net/http"
	"time"

	"github.com/nekogravitycat/parking-booking-backend/internal/pkg/apperror"
	"github.com/nekogravitycat/parking-booking-backend/internal/pricing"
)

var (
	ErrNotFound               = apperror.New(http.StatusNotFound, "booking not found")
	ErrParkingNotFound        = apperror.New(http.StatusNotFound, "parking not found")
	ErrInvalidInterval        = apperror.New(http.StatusBadRequest, "invalid booking interval")
	ErrNotAvailable           = apperror.New(http.StatusConflict, "requested interval is outside open hours")
	ErrConflict               = apperror.New(http.StatusConflict, "interval overlaps an existing booking")
	ErrTooLateToCancel        = apperror.New(http.StatusConflict, "cancellation window has closed")
	ErrInvalidStateTransition = apperror.New(http.StatusConflict, "operation not permitted in current status")
	ErrConcurrencyTimeout     = apperror.New(http.StatusServiceUnavailable, "could not acquire booking slot, try again")
	ErrNotWithinInterval      = apperror.New(http.StatusConflict, "operation only permitted during the booking interval")
	ErrPermissionDenied       = apperror.New(http.StatusForbidden, "permission denied")
)

// Status is the booking lifecycle state. Transitions:
//
//	pending -> confirmed -> completed
//	pending -> rejected
//	pending|confirmed -> canceled
//
// Terminal states are never left and bookings are never deleted.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCanceled  Status = "canceled"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
)

// Blocking reports whether a booking in this status holds its interval
// against new requests. Only pending and confirmed bookings do.
func (s Status) Blocking() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Booking is a reservation of a parking for a half-open [StartTime, EndTime)
// interval. TotalPrice and AppliedRules are frozen at creation time and never
// recomputed from live price rules.
type Booking struct {
	ID         string
	ParkingID  string
	UserID     string
	StartTime  time.Time
	EndTime    time.Time
	Status     Status
	TotalPrice float64

	AppliedRules []pricing.Applied

	AccessCode   string
	CheckedInAt  *time.Time
	CheckedOutAt *time.Time
	Notes        string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Overlaps applies the half-open interval overlap test against another
// window: startA < endB && endA > startB.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartTime.Before(end) && b.EndTime.After(start)
}

// Filter defines parameters for listing bookings.
type Filter struct {
	UserID    string
	ParkingID string
	Status    string
	Page      int
	PageSize  int
}
