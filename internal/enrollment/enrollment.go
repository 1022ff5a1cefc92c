// Package enrollment models the per-year enrollment files: one row per
// (School Year, BEIS School ID) with one count cell per grade column.
package enrollment

import (
	"fmt"
	"regexp"

	lerrors "github.com/learnerinfo/lis/internal/errors"
	"github.com/learnerinfo/lis/internal/tabular"
	"github.com/learnerinfo/lis/pkg/types"
)

// Schema returns the fixed enrollment column list.
func Schema() []string {
	return types.EnrollmentColumns()
}

// CountColumns returns the fixed grade×gender (and strand) columns.
func CountColumns() []string {
	return types.CountColumns()
}

// Record is one school's enrollment for one school year.
type Record struct {
	SchoolYear string
	SchoolID   string
	// Counts holds every grade column of the file, schema or discovered.
	Counts map[string]types.Count
	// Extra holds non-grade columns the file carries beyond the key columns.
	Extra map[string]string
}

// Count returns the value of a grade column, 0 when unset or absent.
func (r *Record) Count(column string) int64 {
	return r.Counts[column].Int()
}

// File is a decoded enrollment file.
type File struct {
	// Columns is the header in file order.
	Columns []string
	Records []*Record
}

// NewFile returns an empty file carrying the fixed schema.
func NewFile() *File {
	return &File{Columns: Schema()}
}

// DecodeTable decodes a parsed enrollment table. Grade columns are decoded
// leniently: sentinels, blanks and junk become unset counts.
func DecodeTable(t *tabular.Table) (*File, error) {
	if !t.Has(types.ColSchoolID) {
		return nil, lerrors.NewMalformedError(
			fmt.Sprintf("enrollment table has no %q column", types.ColSchoolID), nil)
	}

	f := &File{
		Columns: append([]string(nil), t.Header...),
		Records: make([]*Record, 0, t.Len()),
	}
	for _, row := range t.Rows {
		rec := &Record{
			Counts: make(map[string]types.Count),
			Extra:  make(map[string]string),
		}
		for i, col := range t.Header {
			v := row[i]
			switch {
			case col == types.ColSchoolYear:
				rec.SchoolYear = v
			case col == types.ColSchoolID:
				rec.SchoolID = v
			case isGradeColumn(col):
				rec.Counts[col] = types.ParseCount(v)
			default:
				rec.Extra[col] = v
			}
		}
		f.Records = append(f.Records, rec)
	}
	return f, nil
}

// GradeColumns returns the grade columns of the file in header order.
func (f *File) GradeColumns() []string {
	var cols []string
	for _, c := range f.Columns {
		if isGradeColumn(c) {
			cols = append(cols, c)
		}
	}
	return cols
}

// Find returns the record for (year, schoolID), or nil.
func (f *File) Find(year, schoolID string) *Record {
	for _, r := range f.Records {
		if r.SchoolYear == year && r.SchoolID == schoolID {
			return r
		}
	}
	return nil
}

// Insert appends an all-unset record for (year, schoolID).
func (f *File) Insert(year, schoolID string) *Record {
	rec := &Record{
		SchoolYear: year,
		SchoolID:   schoolID,
		Counts:     make(map[string]types.Count),
		Extra:      make(map[string]string),
	}
	f.Records = append(f.Records, rec)
	return rec
}

// EnsureColumn adds a column to the header if the file lacks it.
func (f *File) EnsureColumn(column string) {
	for _, c := range f.Columns {
		if c == column {
			return
		}
	}
	f.Columns = append(f.Columns, column)
}

// Table encodes the file. The fixed schema comes first, followed by any
// other columns in their original order. Unset and zero counts encode as
// N/A, as do absent extra cells.
func (f *File) Table() *tabular.Table {
	header := Schema()
	seen := make(map[string]bool, len(header))
	for _, c := range header {
		seen[c] = true
	}
	for _, c := range f.Columns {
		if !seen[c] {
			header = append(header, c)
			seen[c] = true
		}
	}

	t := tabular.New(header)
	t.Rows = make([][]string, 0, len(f.Records))
	for _, rec := range f.Records {
		row := make([]string, len(header))
		for i, col := range header {
			switch {
			case col == types.ColSchoolYear:
				row[i] = rec.SchoolYear
			case col == types.ColSchoolID:
				row[i] = rec.SchoolID
			case isGradeColumn(col):
				row[i] = rec.Counts[col].String()
			default:
				if v, ok := rec.Extra[col]; ok {
					row[i] = v
				} else {
					row[i] = types.NA
				}
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// EncodeTable encodes records under the fixed schema.
func EncodeTable(records []*Record) *tabular.Table {
	return (&File{Columns: Schema(), Records: records}).Table()
}

// PadToSchema adds every missing schema column to t, filled with N/A.
func PadToSchema(t *tabular.Table) {
	for _, col := range Schema() {
		t.AddColumn(col, types.NA)
	}
}

func isGradeColumn(column string) bool {
	_, ok := types.GradeOfColumn(column)
	return ok
}

// Layout names per-year enrollment objects: <Prefix><YYYY-YYYY>.csv.
type Layout struct {
	Prefix string
	re     *regexp.Regexp
}

// DefaultLayout uses the data_ prefix.
var DefaultLayout = NewLayout("data_")

// NewLayout creates a layout for the given prefix.
func NewLayout(prefix string) Layout {
	return Layout{
		Prefix: prefix,
		re:     regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `(\d{4}-\d{4})\.csv$`),
	}
}

// Key returns the object key for year.
func (l Layout) Key(year types.SchoolYear) string {
	return l.Prefix + string(year) + ".csv"
}

// ParseKey extracts the school year from an object key.
func (l Layout) ParseKey(key string) (types.SchoolYear, bool) {
	m := l.re.FindStringSubmatch(key)
	if m == nil {
		return "", false
	}
	year, err := types.ParseSchoolYear(m[1])
	if err != nil {
		return "", false
	}
	return year, true
}

// FileName returns the default object key for year.
func FileName(year types.SchoolYear) string {
	return DefaultLayout.Key(year)
}

// ParseFileName extracts the school year from a default-layout key.
func ParseFileName(key string) (types.SchoolYear, bool) {
	return DefaultLayout.ParseKey(key)
}
