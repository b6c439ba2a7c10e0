package http

import (
	"time"

	"github.com/nekogravitycat/parking-booking-backend/internal/booking"
	"github.com/nekogravitycat/parking-booking-backend/internal/pricing"
)

// ListBookingsRequest defines query parameters for listing bookings.
type ListBookingsRequest struct {
	ParkingID string `form:"parking_id" binding:"omitempty,uuid"`
	Status    string `form:"status" binding:"omitempty,oneof=pending confirmed canceled completed rejected"`
	UserID    string `form:"user_id" binding:"omitempty,uuid"`
	Page      int    `form:"page,default=1" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size,default=20" binding:"omitempty,min=1,max=100"`
}

type CreateBookingRequest struct {
	ParkingID string    `json:"parking_id" binding:"required,uuid"`
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required"`
	Notes     string    `json:"notes" binding:"omitempty,max=500"`
}

// Validate performs custom validation for CreateBookingRequest.
func (r *CreateBookingRequest) Validate() error {
	if !r.StartTime.Before(r.EndTime) {
		return booking.ErrInvalidInterval
	}
	return nil
}

type BookingResponse struct {
	ID           string            `json:"id"`
	ParkingID    string            `json:"parking_id"`
	UserID       string            `json:"user_id"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time"`
	Status       string            `json:"status"`
	TotalPrice   float64           `json:"total_price"`
	AppliedRules []pricing.Applied `json:"applied_price_rules"`
	AccessCode   string            `json:"access_code,omitempty"`
	CheckedInAt  *time.Time        `json:"checked_in_at,omitempty"`
	CheckedOutAt *time.Time        `json:"checked_out_at,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func NewBookingResponse(b *booking.Booking) BookingResponse {
	rules := b.AppliedRules
	if rules == nil {
		rules = make([]pricing.Applied, 0)
	}
	return BookingResponse{
		ID:           b.ID,
		ParkingID:    b.ParkingID,
		UserID:       b.UserID,
		StartTime:    b.StartTime,
		EndTime:      b.EndTime,
		Status:       string(b.Status),
		TotalPrice:   b.TotalPrice,
		AppliedRules: rules,
		AccessCode:   b.AccessCode,
		CheckedInAt:  b.CheckedInAt,
		CheckedOutAt: b.CheckedOutAt,
		Notes:        b.Notes,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
}
