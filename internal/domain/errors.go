package domain

import (
	"errors"

	"olympspa/internal/interval"
)

var (
	ErrInvalidRange    = interval.ErrInvalidRange
	ErrInvalidGuests   = errors.New("guests must be at least 1")
	ErrConflict        = errors.New("range overlaps a confirmed reservation")
	ErrPaymentGateway  = errors.New("payment gateway error")
	ErrUntrustedEvent  = errors.New("payment event failed authenticity check")
	ErrRejectedInvalid = errors.New("payment event metadata is missing or malformed")
)
