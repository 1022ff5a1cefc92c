package types

// Registry column names.
const (
	ColSchoolID          = "BEIS School ID"
	ColSchoolName        = "School Name"
	ColRegion            = "Region"
	ColDivision          = "Division"
	ColBarangay          = "Barangay"
	ColSector            = "Sector"
	ColSubclassification = "School Subclassification"
	ColSchoolType        = "School Type"
	ColModifiedCOC       = "Modified COC"
)

// RegistryColumns lists the columns the school registry file defines.
func RegistryColumns() []string {
	return []string{
		ColSchoolID, ColSchoolName, ColRegion, ColDivision, ColBarangay,
		ColSector, ColSubclassification, ColSchoolType, ColModifiedCOC,
	}
}

// School is a row of the school registry.
type School struct {
	ID                string `json:"beis_school_id"`
	Name              string `json:"school_name"`
	Region            string `json:"region"`
	Division          string `json:"division"`
	Barangay          string `json:"barangay"`
	Sector            string `json:"sector"`
	Subclassification string `json:"school_subclassification"`
	SchoolType        string `json:"school_type"`
	ModifiedCOC       string `json:"modified_coc"`
}

// Field returns the value of a registry column.
func (s School) Field(column string) string {
	switch column {
	case ColSchoolID:
		return s.ID
	case ColSchoolName:
		return s.Name
	case ColRegion:
		return s.Region
	case ColDivision:
		return s.Division
	case ColBarangay:
		return s.Barangay
	case ColSector:
		return s.Sector
	case ColSubclassification:
		return s.Subclassification
	case ColSchoolType:
		return s.SchoolType
	case ColModifiedCOC:
		return s.ModifiedCOC
	}
	return ""
}

// SetField assigns a registry column. Unknown columns are ignored.
func (s *School) SetField(column, value string) {
	switch column {
	case ColSchoolID:
		s.ID = value
	case ColSchoolName:
		s.Name = value
	case ColRegion:
		s.Region = value
	case ColDivision:
		s.Division = value
	case ColBarangay:
		s.Barangay = value
	case ColSector:
		s.Sector = value
	case ColSubclassification:
		s.Subclassification = value
	case ColSchoolType:
		s.SchoolType = value
	case ColModifiedCOC:
		s.ModifiedCOC = value
	}
}

// Sectors in display order.
const (
	SectorPublic   = "Public"
	SectorPrivate  = "Private"
	SectorSUCsLUCs = "SUCsLUCs"
)

// SectorOrder returns sectors in display order.
func SectorOrder() []string {
	return []string{SectorPublic, SectorPrivate, SectorSUCsLUCs}
}

// COC offering categories in display order.
const (
	COCPurelyES    = "Purely ES"
	COCPurelyJHS   = "Purely JHS"
	COCPurelySHS   = "Purely SHS"
	COCESAndJHS    = "ES and JHS"
	COCJHSWithSHS  = "JHS with SHS"
	COCAllOffering = "All Offering"
)

// COCOrder returns the Modified COC categories in display order.
func COCOrder() []string {
	return []string{COCPurelyES, COCPurelyJHS, COCPurelySHS, COCESAndJHS, COCJHSWithSHS, COCAllOffering}
}
