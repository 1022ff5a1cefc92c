package tabular

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lerrors "github.com/learnerinfo/lis/internal/errors"
)

func TestReadCSV_PadsRaggedRowsAndStripsBOM(t *testing.T) {
	in := "\ufeffBEIS School ID,School Name,Region\n100,Alpha ES\n200,Beta HS,NCR,extra\n\n"
	tbl, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"BEIS School ID", "School Name", "Region"}, tbl.Header)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"100", "Alpha ES", ""}, tbl.Rows[0])
	assert.Equal(t, []string{"200", "Beta HS", "NCR"}, tbl.Rows[1])
}

func TestTable_SetAddsColumn(t *testing.T) {
	tbl := New([]string{"BEIS School ID"})
	tbl.AppendRow(map[string]string{"BEIS School ID": "1"}, "N/A")

	tbl.Set(0, "G1 Male", "5")
	assert.Equal(t, "5", tbl.Get(0, "G1 Male"))
	assert.Equal(t, "", tbl.Get(0, "Missing"))

	idx := tbl.AddColumn("G1 Female", "N/A")
	assert.Equal(t, 2, idx)
	assert.Equal(t, "N/A", tbl.Get(0, "G1 Female"))
	// Adding again is a no-op.
	assert.Equal(t, idx, tbl.AddColumn("G1 Female", "x"))
}

func TestCSV_RoundTrip(t *testing.T) {
	tbl := New([]string{"School Year", "BEIS School ID", "G1 Male"})
	tbl.AppendRow(map[string]string{"School Year": "2023-2024", "BEIS School ID": "1", "G1 Male": "N/A"}, "")

	data, err := tbl.CSV()
	require.NoError(t, err)

	back, err := ReadCSV(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, tbl.Header, back.Header)
	assert.Equal(t, tbl.Rows, back.Rows)
}

func TestXLSX_RoundTrip(t *testing.T) {
	tbl := New([]string{"BEIS School ID", "G3 Male", "G3 Female"})
	tbl.AppendRow(map[string]string{"BEIS School ID": "300", "G3 Male": "7", "G3 Female": "9"}, "")

	var buf bytes.Buffer
	require.NoError(t, tbl.WriteXLSX(&buf, "Enrollment"))

	back, err := Decode("upload.xlsx", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, tbl.Header, back.Header)
	require.Equal(t, 1, back.Len())
	assert.Equal(t, "9", back.Get(0, "G3 Female"))
}

func TestDecode_UnsupportedExtension(t *testing.T) {
	_, err := Decode("upload.pdf", []byte("x"))
	require.Error(t, err)
	assert.True(t, lerrors.IsValidation(err))
}

func TestReadCSV_Empty(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
	assert.Empty(t, tbl.Header)
}
