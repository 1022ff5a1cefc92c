// Package tabular reads and writes the flat header-plus-rows tables that
// back the registry, the per-year enrollment files and bulk uploads.
package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	lerrors "github.com/learnerinfo/lis/internal/errors"
)

const utf8BOM = "\ufeff"

// Table is a rectangular string table. Every row has len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]string
}

// New creates an empty table with the given header.
func New(header []string) *Table {
	h := make([]string, len(header))
	copy(h, header)
	return &Table{Header: h}
}

// Index returns the position of column, or -1.
func (t *Table) Index(column string) int {
	for i, h := range t.Header {
		if h == column {
			return i
		}
	}
	return -1
}

// Has reports whether the table has column.
func (t *Table) Has(column string) bool {
	return t.Index(column) >= 0
}

// Get returns the cell at (row, column), or "" when the column is absent.
func (t *Table) Get(row int, column string) string {
	i := t.Index(column)
	if i < 0 || row < 0 || row >= len(t.Rows) {
		return ""
	}
	return t.Rows[row][i]
}

// Set writes a cell, adding the column (filled with "") if needed.
func (t *Table) Set(row int, column, value string) {
	i := t.Index(column)
	if i < 0 {
		i = t.AddColumn(column, "")
	}
	t.Rows[row][i] = value
}

// AddColumn appends a column filled with def and returns its index. An
// existing column is left untouched.
func (t *Table) AddColumn(column, def string) int {
	if i := t.Index(column); i >= 0 {
		return i
	}
	t.Header = append(t.Header, column)
	for r := range t.Rows {
		t.Rows[r] = append(t.Rows[r], def)
	}
	return len(t.Header) - 1
}

// AppendRow appends a row keyed by column name; unknown keys are ignored
// and missing columns get def.
func (t *Table) AppendRow(values map[string]string, def string) int {
	row := make([]string, len(t.Header))
	for i, h := range t.Header {
		if v, ok := values[h]; ok {
			row[i] = v
		} else {
			row[i] = def
		}
	}
	t.Rows = append(t.Rows, row)
	return len(t.Rows) - 1
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ReadCSV parses a CSV document with a header row. Ragged rows are padded
// or truncated to the header width.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, lerrors.NewMalformedError("failed to parse CSV", err)
	}
	return fromRecords(records), nil
}

// WriteCSV writes the table as CSV with a header row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// CSV returns the table encoded as CSV bytes.
func (t *Table) CSV() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadXLSX reads the first worksheet of an XLSX workbook.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, lerrors.NewMalformedError("failed to open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, lerrors.NewMalformedError("workbook has no sheets", nil)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, lerrors.NewMalformedError("failed to read sheet "+sheets[0], err)
	}
	return fromRecords(rows), nil
}

// WriteXLSX writes the table to a single-sheet workbook.
func (t *Table) WriteXLSX(w io.Writer, sheet string) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Sheet1"
	}
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return err
		}
	}

	write := func(rowIdx int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowIdx)
		if err != nil {
			return err
		}
		row := make([]interface{}, len(values))
		for i, v := range values {
			row[i] = v
		}
		return f.SetSheetRow(sheet, cell, &row)
	}

	if err := write(1, t.Header); err != nil {
		return err
	}
	for i, r := range t.Rows {
		if err := write(i+2, r); err != nil {
			return err
		}
	}
	return f.Write(w)
}

// Decode picks the codec from the file extension of name.
func Decode(name string, data []byte) (*Table, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return ReadCSV(bytes.NewReader(data))
	case ".xlsx", ".xlsm":
		return ReadXLSX(bytes.NewReader(data))
	default:
		return nil, lerrors.NewValidationError(lerrors.CodeUnsupportedInput,
			fmt.Sprintf("unsupported file type %q (expected .csv or .xlsx)", filepath.Ext(name)))
	}
}

func fromRecords(records [][]string) *Table {
	if len(records) == 0 {
		return &Table{}
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		header[i] = strings.TrimSpace(h)
	}

	t := &Table{Header: header, Rows: make([][]string, 0, len(records)-1)}
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		row := make([]string, len(header))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
