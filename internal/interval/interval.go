// Package interval implements the half-open [from, to) stay ranges used as
// the admission rule for reservations.
package interval

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidRange = errors.New("invalid range: from must be before to")

const (
	// StorageLayout is fixed width and always UTC, so lexicographic order of the
	// persisted text equals chronological order.
	StorageLayout = "2006-01-02T15:04:05Z"
	DateLayout    = "2006-01-02"

	// StorageLayout only stays fixed width for four-digit UTC years.
	minYear = 0
	maxYear = 9999
)

// Range is a half-open interval [From, To).
type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// New normalizes both bounds to UTC second precision and validates from < to.
func New(from, to time.Time) (Range, error) {
	r := Range{From: Normalize(from), To: Normalize(to)}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

// Parse builds a range from wire values (YYYY-MM-DD or RFC 3339).
func Parse(from, to string) (Range, error) {
	f, err := ParseTime(from)
	if err != nil {
		return Range{}, fmt.Errorf("from: %w", err)
	}
	t, err := ParseTime(to)
	if err != nil {
		return Range{}, fmt.Errorf("to: %w", err)
	}
	return New(f, t)
}

// ParseTime accepts a calendar date (midnight UTC) or an RFC 3339 instant.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unsupported time format %q: expected YYYY-MM-DD or RFC 3339", s)
	}
	return Normalize(t), nil
}

func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// Validate rejects empty and inverted ranges and bounds whose UTC year does
// not fit four digits.
func (r Range) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return ErrInvalidRange
	}
	if !storable(r.From) || !storable(r.To) {
		return ErrInvalidRange
	}
	if !r.From.Before(r.To) {
		return ErrInvalidRange
	}
	return nil
}

// Overlaps reports whether a and b share at least one instant.
// Touching ranges (a.To == b.From) do not overlap.
func Overlaps(a, b Range) bool {
	return a.From.Before(b.To) && b.From.Before(a.To)
}

func (r Range) Overlaps(other Range) bool {
	return Overlaps(r, other)
}

func storable(t time.Time) bool {
	y := t.UTC().Year()
	return y >= minYear && y <= maxYear
}

func (r Range) Duration() time.Duration {
	return r.To.Sub(r.From)
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s)", Format(r.From), Format(r.To))
}

// Format renders a bound for humans and gateway metadata: the bare date when the
// instant is midnight UTC, RFC 3339 otherwise. ParseTime reads both back.
func Format(t time.Time) string {
	t = Normalize(t)
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format(DateLayout)
	}
	return t.Format(time.RFC3339)
}

// FormatStorage renders the fixed-width UTC text used by stores that compare
// bounds as strings.
func FormatStorage(t time.Time) string {
	return Normalize(t).Format(StorageLayout)
}

func ParseStorage(s string) (time.Time, error) {
	t, err := time.Parse(StorageLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t.UTC(), nil
}
