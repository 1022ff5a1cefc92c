package types

import "errors"

var (
	// ErrInvalidSchoolYear is returned when a school year is not "YYYY-YYYY".
	ErrInvalidSchoolYear = errors.New("invalid school year")

	// ErrInvalidCount is returned when a count is negative or not a whole number.
	ErrInvalidCount = errors.New("invalid count")
)
