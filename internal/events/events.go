package events

import (
	"context"
	"time"
)

// Type enumerates the booking lifecycle events consumed by the notification,
// payment-capture and analytics collaborators.
type Type string

const (
	BookingRequested Type = "booking.requested"
	BookingConfirmed Type = "booking.confirmed"
	BookingRejected  Type = "booking.rejected"
	BookingCanceled  Type = "booking.canceled"
	BookingCompleted Type = "booking.completed"
)

// Event is the payload published for every booking lifecycle transition.
// TotalPrice carries the frozen price snapshot; payment capture uses it
// as-is and never re-quotes.
type Event struct {
	Type       Type      `json:"type"`
	BookingID  string    `json:"booking_id"`
	ParkingID  string    `json:"parking_id"`
	UserID     string    `json:"user_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	TotalPrice float64   `json:"total_price"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers domain events to external collaborators.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards events; used in tests and when no broker is
// configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
