package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NA is the storage sentinel for an unset count.
const NA = "N/A"

// Count is an optional enrollment count. The zero value is unset.
type Count struct {
	Value int64
	Valid bool
}

// Some returns a set count.
func Some(n int64) Count {
	return Count{Value: n, Valid: true}
}

// ParseCount decodes a stored cell. Sentinels, blanks and junk decode to an
// unset count; it never fails.
func ParseCount(s string) Count {
	c, err := ParseStrictCount(s)
	if err != nil {
		if f, ok := parseFloat(s); ok && fitsInt64(f) {
			return Some(int64(f))
		}
		return Count{}
	}
	return c
}

// ParseStrictCount decodes a cell supplied for writing. Blanks and sentinels
// are unset; anything else must be a non-negative integral number.
func ParseStrictCount(s string) (Count, error) {
	s = strings.TrimSpace(s)
	if isSentinel(s) {
		return Count{}, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return Count{}, fmt.Errorf("%w: %d is negative", ErrInvalidCount, n)
		}
		return Some(n), nil
	}
	f, ok := parseFloat(s)
	if !ok || f != math.Trunc(f) {
		return Count{}, fmt.Errorf("%w: %q is not a whole number", ErrInvalidCount, s)
	}
	if f < 0 {
		return Count{}, fmt.Errorf("%w: %q is negative", ErrInvalidCount, s)
	}
	if !fitsInt64(f) {
		return Count{}, fmt.Errorf("%w: %q is too large", ErrInvalidCount, s)
	}
	return Some(int64(f)), nil
}

// fitsInt64 reports whether f converts to int64 without wrapping.
func fitsInt64(f float64) bool {
	return f >= math.MinInt64 && f < math.MaxInt64
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func isSentinel(s string) bool {
	switch strings.ToLower(s) {
	case "", "n/a", "na", "nan", "null", "none":
		return true
	}
	return false
}

// Int returns the count, or 0 when unset.
func (c Count) Int() int64 {
	if !c.Valid {
		return 0
	}
	return c.Value
}

// Add returns c incremented by n; an unset count is treated as 0.
func (c Count) Add(n int64) Count {
	return Some(c.Int() + n)
}

// IsZero reports whether the count is unset or zero.
func (c Count) IsZero() bool {
	return c.Int() == 0
}

// String encodes the count for storage. Unset and zero both encode as NA.
func (c Count) String() string {
	if c.IsZero() {
		return NA
	}
	return strconv.FormatInt(c.Value, 10)
}
