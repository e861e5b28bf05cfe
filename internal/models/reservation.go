package models

import (
	"time"

	"olympspa/internal/interval"
)

// Reservation is a confirmed stay. It is only ever created by the confirmation
// reconciler and never mutated afterwards.
type Reservation struct {
	ID        string    `json:"id"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Guests    int       `json:"guests"`
	Status    string    `json:"status"`
	SessionID string    `json:"session_id,omitempty"`
	EventID   string    `json:"event_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Reservation) Range() interval.Range {
	return interval.Range{From: r.From, To: r.To}
}

// Conflict records a paid confirmation that lost the race for its range.
// It needs a manual refund and never blocks availability.
type Conflict struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	EventID    string    `json:"event_id"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	Guests     int       `json:"guests"`
	Reason     string    `json:"reason"`
	DetectedAt time.Time `json:"detected_at"`
}

func (c *Conflict) Range() interval.Range {
	return interval.Range{From: c.From, To: c.To}
}

// CheckoutRequest is a validated booking request handed to the payment gateway.
type CheckoutRequest struct {
	Range  interval.Range
	Guests int
}

// CheckoutHandle is what the client needs to redirect the guest to the payment page.
type CheckoutHandle struct {
	SessionID string `json:"id"`
	URL       string `json:"url"`
}
