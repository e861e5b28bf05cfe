package interval

import (
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2025, time.March, d, 0, 0, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Range
		want bool
	}{
		{"identical", Range{day(1), day(5)}, Range{day(1), day(5)}, true},
		{"partial left", Range{day(1), day(5)}, Range{day(3), day(7)}, true},
		{"partial right", Range{day(3), day(7)}, Range{day(1), day(5)}, true},
		{"contained", Range{day(1), day(10)}, Range{day(3), day(4)}, true},
		{"touching end to start", Range{day(1), day(5)}, Range{day(5), day(7)}, false},
		{"touching start to end", Range{day(5), day(7)}, Range{day(1), day(5)}, false},
		{"disjoint", Range{day(1), day(2)}, Range{day(8), day(9)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.a, tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a), "overlap must be symmetric")
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("ValidRange", func(t *testing.T) {
		loc := time.FixedZone("BRT", -3*3600)
		from := time.Date(2025, 3, 1, 12, 0, 0, 999, loc)
		r, err := New(from, from.Add(48*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, time.UTC, r.From.Location())
		assert.Equal(t, 0, r.From.Nanosecond())
		assert.Equal(t, 15, r.From.Hour())
	})

	t.Run("EqualBounds", func(t *testing.T) {
		_, err := New(day(3), day(3))
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("InvertedBounds", func(t *testing.T) {
		_, err := New(day(5), day(3))
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("UTCYearPastFourDigits", func(t *testing.T) {
		loc := time.FixedZone("EST", -5*3600)
		to := time.Date(9999, 12, 31, 23, 0, 0, 0, loc)
		require.Equal(t, 10000, to.UTC().Year())
		_, err := New(day(3), to)
		assert.ErrorIs(t, err, ErrInvalidRange)

		_, err = New(time.Date(-1, 1, 1, 0, 0, 0, 0, time.UTC), day(3))
		assert.ErrorIs(t, err, ErrInvalidRange)

		r, err := New(day(3), time.Date(9999, 12, 31, 18, 0, 0, 0, loc))
		require.NoError(t, err)
		assert.Equal(t, "9999-12-31T23:00:00Z", FormatStorage(r.To))
	})

	t.Run("ZeroBound", func(t *testing.T) {
		_, err := New(time.Time{}, day(3))
		assert.ErrorIs(t, err, ErrInvalidRange)
	})
}

func TestParse(t *testing.T) {
	t.Run("Dates", func(t *testing.T) {
		r, err := Parse("2025-03-01", "2025-03-04")
		require.NoError(t, err)
		assert.Equal(t, day(1), r.From)
		assert.Equal(t, day(4), r.To)
		assert.Equal(t, 72*time.Hour, r.Duration())
	})

	t.Run("RFC3339WithOffset", func(t *testing.T) {
		r, err := Parse("2025-03-01T14:00:00-03:00", "2025-03-02T11:00:00-03:00")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 3, 1, 17, 0, 0, 0, time.UTC), r.From)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := Parse("tomorrow", "2025-03-04")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("Inverted", func(t *testing.T) {
		_, err := Parse("2025-03-04", "2025-03-01")
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("NegativeOffsetRollsIntoYear10000", func(t *testing.T) {
		_, err := Parse("2025-07-03", "9999-12-31T23:00:00-05:00")
		assert.ErrorIs(t, err, ErrInvalidRange)
	})
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "2025-03-01", Format(day(1)))
	assert.Equal(t, "2025-03-01T10:30:00Z", Format(day(1).Add(10*time.Hour+30*time.Minute)))

	back, err := ParseTime(Format(day(1).Add(90 * time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, day(1).Add(90*time.Minute), back)
}

func TestStorageTextOrdering(t *testing.T) {
	instants := []time.Time{
		day(1).Add(9 * time.Hour),
		day(10),
		day(2),
		time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2025, 3, 1, 9, 0, 0, 0, time.FixedZone("X", 5*3600)),
		time.Date(9999, 12, 31, 18, 0, 0, 0, time.FixedZone("Y", -5*3600)),
		time.Date(1, 1, 1, 0, 0, 1, 0, time.UTC),
	}
	for _, ts := range instants {
		_, err := New(ts, ts.Add(time.Second))
		require.NoError(t, err, "fixture %s must be storable", ts)
	}
	texts := make([]string, len(instants))
	for i, ts := range instants {
		texts[i] = FormatStorage(ts)
	}

	sort.Slice(instants, func(i, j int) bool { return instants[i].Before(instants[j]) })
	sort.Strings(texts)

	for i := range instants {
		parsed, err := ParseStorage(texts[i])
		require.NoError(t, err)
		assert.True(t, parsed.Equal(Normalize(instants[i])), "position %d", i)
	}
}

// A greedy admission loop using only Overlaps never accepts two overlapping ranges.
func TestAdmissionNeverAcceptsOverlap(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := day(1)

	var accepted []Range
	for i := 0; i < 2000; i++ {
		start := base.Add(time.Duration(rng.Intn(24*60)) * time.Hour)
		length := time.Duration(1+rng.Intn(72)) * time.Hour
		candidate, err := New(start, start.Add(length))
		require.NoError(t, err)

		ok := true
		for _, a := range accepted {
			if candidate.Overlaps(a) {
				ok = false
				break
			}
		}
		if ok {
			accepted = append(accepted, candidate)
		}
	}

	require.NotEmpty(t, accepted)
	for i := range accepted {
		for j := i + 1; j < len(accepted); j++ {
			assert.False(t, Overlaps(accepted[i], accepted[j]), "%s vs %s", accepted[i], accepted[j])
		}
	}
}
