package aggregator

import (
	"strconv"

	"github.com/learnerinfo/lis/internal/loader"
	"github.com/learnerinfo/lis/internal/tabular"
	"github.com/learnerinfo/lis/pkg/types"
)

// SchoolSummary is the per-school detail card.
type SchoolSummary struct {
	SchoolID        string `json:"school_id"`
	SchoolName      string `json:"school_name"`
	Region          string `json:"region"`
	Division        string `json:"division"`
	Barangay        string `json:"barangay"`
	SchoolYear      string `json:"school_year"`
	TotalMale       int64  `json:"total_male"`
	TotalFemale     int64  `json:"total_female"`
	TotalEnrollment int64  `json:"total_enrollment"`
}

// SummarizeSchool returns the first row of the dataset for schoolID.
func SummarizeSchool(ds *loader.Dataset, schoolID string) (SchoolSummary, bool) {
	if ds.Empty() {
		return SchoolSummary{}, false
	}
	for _, r := range ds.Rows {
		if r.School.ID != schoolID {
			continue
		}
		return SchoolSummary{
			SchoolID:        r.School.ID,
			SchoolName:      r.School.Name,
			Region:          r.School.Region,
			Division:        r.School.Division,
			Barangay:        r.School.Barangay,
			SchoolYear:      r.SchoolYear,
			TotalMale:       r.TotalMale,
			TotalFemale:     r.TotalFemale,
			TotalEnrollment: r.TotalEnrollment,
		}, true
	}
	return SchoolSummary{}, false
}

// TableRow is one row of the enrollment table.
type TableRow struct {
	SchoolID        string `json:"school_id"`
	SchoolName      string `json:"school_name"`
	Region          string `json:"region"`
	Division        string `json:"division"`
	TotalMale       int64  `json:"total_male"`
	TotalFemale     int64  `json:"total_female"`
	TotalEnrollment int64  `json:"total_enrollment"`
}

// EnrollmentTable lists the dataset's rows for its school year with their
// totals.
func EnrollmentTable(ds *loader.Dataset) []TableRow {
	if ds.Empty() {
		return []TableRow{}
	}
	out := make([]TableRow, 0, len(ds.Rows))
	for _, r := range ds.Rows {
		if ds.Year != "" && r.SchoolYear != string(ds.Year) {
			continue
		}
		out = append(out, TableRow{
			SchoolID:        r.School.ID,
			SchoolName:      r.School.Name,
			Region:          r.School.Region,
			Division:        r.School.Division,
			TotalMale:       r.TotalMale,
			TotalFemale:     r.TotalFemale,
			TotalEnrollment: r.TotalEnrollment,
		})
	}
	return out
}

// TableSheet converts enrollment table rows for CSV or XLSX export.
func TableSheet(rows []TableRow) *tabular.Table {
	t := tabular.New([]string{
		types.ColSchoolID, types.ColSchoolName, types.ColRegion, types.ColDivision,
		types.ColTotalMale, types.ColTotalFemale, types.ColTotalEnrollment,
	})
	t.Rows = make([][]string, 0, len(rows))
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			r.SchoolID, r.SchoolName, r.Region, r.Division,
			strconv.FormatInt(r.TotalMale, 10),
			strconv.FormatInt(r.TotalFemale, 10),
			strconv.FormatInt(r.TotalEnrollment, 10),
		})
	}
	return t
}
