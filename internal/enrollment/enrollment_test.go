package enrollment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lerrors "github.com/learnerinfo/lis/internal/errors"
	"github.com/learnerinfo/lis/internal/tabular"
	"github.com/learnerinfo/lis/pkg/types"
)

func TestDecodeTable_SentinelsAndJunk(t *testing.T) {
	in := "School Year,BEIS School ID,G1 Male,G1 Female,G2 Male,Notes\n" +
		"2023-2024,100,10,N/A,junk,hello\n" +
		"2023-2024,200,,12.0,NaN,\n"
	tbl, err := tabular.ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	f, err := DecodeTable(tbl)
	require.NoError(t, err)
	require.Len(t, f.Records, 2)

	a := f.Find("2023-2024", "100")
	require.NotNil(t, a)
	assert.Equal(t, int64(10), a.Count("G1 Male"))
	assert.False(t, a.Counts["G1 Female"].Valid)
	assert.False(t, a.Counts["G2 Male"].Valid)
	assert.Equal(t, "hello", a.Extra["Notes"])

	b := f.Find("2023-2024", "200")
	require.NotNil(t, b)
	assert.Equal(t, int64(12), b.Count("G1 Female"))
	assert.Equal(t, int64(0), b.Count("G1 Male"))

	assert.Equal(t, []string{"G1 Male", "G1 Female", "G2 Male"}, f.GradeColumns())
}

func TestDecodeTable_MissingIDColumn(t *testing.T) {
	tbl := tabular.New([]string{"School Year", "G1 Male"})
	_, err := DecodeTable(tbl)
	require.Error(t, err)
	assert.Equal(t, lerrors.ErrCategoryMalformed, lerrors.GetCategory(err))
}

func TestTable_SchemaFirstAndZeroAsNA(t *testing.T) {
	f := NewFile()
	rec := f.Insert("2024-2025", "X")
	rec.Counts["G2 Male"] = types.Some(5)
	rec.Counts["G3 Male"] = types.Some(0)

	tbl := f.Table()
	assert.Equal(t, Schema(), tbl.Header)
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, "2024-2025", tbl.Get(0, types.ColSchoolYear))
	assert.Equal(t, "X", tbl.Get(0, types.ColSchoolID))
	assert.Equal(t, "5", tbl.Get(0, "G2 Male"))
	assert.Equal(t, types.NA, tbl.Get(0, "G3 Male"))

	for _, col := range CountColumns() {
		if col == "G2 Male" {
			continue
		}
		assert.Equal(t, types.NA, tbl.Get(0, col), col)
	}
}

func TestTable_KeepsExtraColumns(t *testing.T) {
	in := "BEIS School ID,Remarks,G1 Male\n100,ok,3\n"
	tbl, err := tabular.ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	f, err := DecodeTable(tbl)
	require.NoError(t, err)

	out := f.Table()
	assert.Equal(t, len(Schema())+1, len(out.Header))
	assert.Equal(t, "Remarks", out.Header[len(out.Header)-1])
	assert.Equal(t, "ok", out.Get(0, "Remarks"))
	assert.Equal(t, "3", out.Get(0, "G1 Male"))
}

func TestPadToSchema(t *testing.T) {
	tbl := tabular.New([]string{"BEIS School ID", "G1 Male"})
	tbl.AppendRow(map[string]string{"BEIS School ID": "1", "G1 Male": "4"}, "")

	PadToSchema(tbl)
	for _, col := range Schema() {
		assert.True(t, tbl.Has(col), col)
	}
	assert.Equal(t, "4", tbl.Get(0, "G1 Male"))
	assert.Equal(t, types.NA, tbl.Get(0, "G12 TVL Female"))
}

func TestLayout(t *testing.T) {
	assert.Equal(t, "data_2023-2024.csv", FileName("2023-2024"))

	year, ok := ParseFileName("data_2023-2024.csv")
	assert.True(t, ok)
	assert.Equal(t, types.SchoolYear("2023-2024"), year)

	for _, bad := range []string{"data_2023-2025.csv", "data_2023.csv", "schools.csv", "x/data_2023-2024.csv", "data_2023-2024.csv.sz"} {
		_, ok := ParseFileName(bad)
		assert.False(t, ok, bad)
	}

	l := NewLayout("enrol/")
	assert.Equal(t, "enrol/2022-2023.csv", l.Key("2022-2023"))
	_, ok = l.ParseKey("enrol/2022-2023.csv")
	assert.True(t, ok)
}
