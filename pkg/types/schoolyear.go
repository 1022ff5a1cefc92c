package types

import (
	"fmt"
	"regexp"
	"strconv"
)

var schoolYearPattern = regexp.MustCompile(`^(\d{4})-(\d{4})$`)

// SchoolYear is a "YYYY-YYYY" school year label.
type SchoolYear string

// ParseSchoolYear validates a school year label. The second year must
// directly follow the first.
func ParseSchoolYear(s string) (SchoolYear, error) {
	m := schoolYearPattern.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidSchoolYear, s)
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	if end != start+1 {
		return "", fmt.Errorf("%w: %q does not span consecutive years", ErrInvalidSchoolYear, s)
	}
	return SchoolYear(s), nil
}

// Start returns the first calendar year of the school year.
func (y SchoolYear) Start() int {
	m := schoolYearPattern.FindStringSubmatch(string(y))
	if m == nil {
		return 0
	}
	start, _ := strconv.Atoi(m[1])
	return start
}

// Shift returns the school year offset by n years.
func (y SchoolYear) Shift(n int) SchoolYear {
	start := y.Start() + n
	return SchoolYear(fmt.Sprintf("%04d-%04d", start, start+1))
}

// Previous returns the school year before y, decrementing both halves.
func (y SchoolYear) Previous() SchoolYear {
	return y.Shift(-1)
}

func (y SchoolYear) String() string {
	return string(y)
}
