package types

import "strings"

// Gender is a column-name gender suffix, or All when used as a filter.
type Gender string

const (
	Male   Gender = "Male"
	Female Gender = "Female"
	All    Gender = "All"
)

// Genders returns the two column genders in column order.
func Genders() []Gender {
	return []Gender{Male, Female}
}

// ParseGender accepts "Male", "Female" or "All" (case-insensitive).
// An empty string is treated as All.
func ParseGender(s string) (Gender, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male":
		return Male, true
	case "female":
		return Female, true
	case "all", "":
		return All, true
	}
	return "", false
}

// IsMaleColumn reports whether a grade column counts male learners.
// "Female" does not contain the capitalised "Male", so the check is exact.
func IsMaleColumn(column string) bool {
	return strings.Contains(column, string(Male))
}

// IsFemaleColumn reports whether a grade column counts female learners.
func IsFemaleColumn(column string) bool {
	return strings.Contains(column, string(Female))
}
