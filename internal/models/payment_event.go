package models

import (
	"strconv"
	"strings"
)

// PaymentEvent is a verified gateway notification reduced to the fields the
// reconciler needs.
type PaymentEvent struct {
	ID        string
	Type      string
	SessionID string
	Paid      bool
	Metadata  map[string]string
}

// GetString returns a trimmed metadata value or "" when absent.
func (e *PaymentEvent) GetString(key string) string {
	if e.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(e.Metadata[key])
}

// GetInt parses a metadata value as an integer. ok is false when the key is
// missing or the value is not a number.
func (e *PaymentEvent) GetInt(key string) (int, bool) {
	raw := e.GetString(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ConfirmationOutcome is the terminal state of a confirmation attempt.
type ConfirmationOutcome string

const (
	OutcomeAwaitingPayment  ConfirmationOutcome = "awaiting_payment"
	OutcomeConfirmed        ConfirmationOutcome = "confirmed"
	OutcomeRejectedConflict ConfirmationOutcome = "rejected_conflict"
	OutcomeRejectedInvalid  ConfirmationOutcome = "rejected_invalid"
	OutcomeIgnored          ConfirmationOutcome = "ignored"
)

// Terminal reports whether a ledger entry with this outcome should short-circuit
// later deliveries of the same event.
func (o ConfirmationOutcome) Terminal() bool {
	switch o {
	case OutcomeConfirmed, OutcomeRejectedConflict, OutcomeRejectedInvalid:
		return true
	}
	return false
}
