package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/creditscope/internal/testutil"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteCSV(t, dir, 2015, 2, testutil.Table2Rows(2015))
	testutil.WriteXLSX(t, filepath.Join(dir, "BUDGET-2015-FCS-table1.xlsx"), testutil.Sheet{Table: 1})
	testutil.WriteXLSX(t, filepath.Join(dir, "BUDGET-2025-FCS.xlsx"), testutil.Sheet{Table: 1}, testutil.Sheet{Table: 2})

	tests := []struct {
		name         string
		year, table  int
		wantFile     string
		wantFormat   Format
		consolidated bool
	}{
		{name: "per-table csv", year: 2015, table: 2, wantFile: "BUDGET-2015-FCS-table2.csv", wantFormat: FormatCSV},
		{name: "per-table xlsx", year: 2015, table: 1, wantFile: "BUDGET-2015-FCS-table1.xlsx", wantFormat: FormatXLSX},
		{name: "consolidated", year: 2025, table: 2, wantFile: "BUDGET-2025-FCS.xlsx", wantFormat: FormatXLSX, consolidated: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Resolve(dir, tt.year, tt.table)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFile, filepath.Base(src.Path))
			assert.Equal(t, tt.wantFormat, src.Format)
			assert.Equal(t, tt.consolidated, src.Consolidated)
			assert.Equal(t, SheetName(tt.table), src.Sheet)
		})
	}

	_, err := Resolve(dir, 2016, 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDetectFormat(t *testing.T) {
	dir := t.TempDir()

	ole := writeFile(t, dir, "BUDGET-2011-FCS-table1.xls", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1})
	f, err := DetectFormat(ole)
	require.NoError(t, err)
	assert.Equal(t, FormatXLS, f)

	// A .xls name holding an OOXML workbook is read as xlsx. excelize only
	// saves under OOXML extensions, so the fixture is renamed afterwards.
	ooxml := testutil.WriteXLSX(t, filepath.Join(dir, "BUDGET-2012-FCS-table1.xlsx"), testutil.Sheet{Table: 1})
	renamed := filepath.Join(dir, "BUDGET-2012-FCS-table1.xls")
	require.NoError(t, os.Rename(ooxml, renamed))
	f, err = DetectFormat(renamed)
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	junk := writeFile(t, dir, "junk.xlsx", []byte("hi"))
	_, err = DetectFormat(junk)
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = DetectFormat(filepath.Join(dir, "nope.csv"))
	require.Error(t, err)
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteCSV(t, dir, 2014, 2, testutil.Table2Rows(2014))
	testutil.WriteCSV(t, dir, 2015, 1, testutil.Table2Rows(2015))
	writeFile(t, dir, "BUDGET-2015-FCS-table2.xls", []byte{0xD0, 0xCF, 0x11, 0xE0})

	found, missing := Discover(dir, Years(2014, 2015), []int{1, 2})

	require.Len(t, found, 3)
	assert.Equal(t, [][2]int{{2014, 2}, {2015, 1}, {2015, 2}},
		[][2]int{{found[0].Year, found[0].Table}, {found[1].Year, found[1].Table}, {found[2].Year, found[2].Table}})
	assert.Equal(t, []Missing{{Year: 2014, Table: 1, Reason: "file not found"}}, missing)

	_, err := ReadRows(context.Background(), found[2], nil)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestReadRows_XLS(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "magic only", data: []byte{0xD0, 0xCF, 0x11, 0xE0}},
		{name: "truncated header", data: append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 40)...)},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeFile(t, dir, fmt.Sprintf("BUDGET-%d-FCS-table1.xls", 2000+i), tt.data)
			src, err := Resolve(dir, 2000+i, 1)
			require.NoError(t, err)
			assert.Equal(t, FormatXLS, src.Format)

			_, err = ReadRows(context.Background(), src, testutil.NewTestLogger(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupportedFormat)
			assert.NotContains(t, err.Error(), "no reader")
		})
	}
}

func TestYears(t *testing.T) {
	assert.Equal(t, []int{2010, 2011, 2012}, Years(2010, 2012))
	assert.Nil(t, Years(2012, 2010))
}

func TestReadRows_CSV(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteCSV(t, dir, 2020, 8, testutil.Table8Rows(2015, "1.5"))

	src, err := Resolve(dir, 2020, 8)
	require.NoError(t, err)
	rows, err := ReadRows(context.Background(), src, testutil.NewTestLogger(t))
	require.NoError(t, err)

	require.Len(t, rows, 7)
	assert.Equal(t, "Department of Agriculture", rows[2].First())
	assert.Equal(t, 2, rows[4].Indent)
	assert.Equal(t, 6, rows[5].Indent)
	assert.Equal(t, "1.5", rows[6].Cell(1))
}

func TestReadRows_XLSX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "BUDGET-2025-FCS.xlsx")
	testutil.WriteXLSX(t, path,
		testutil.Sheet{Table: 2, Rows: testutil.Table2Rows(2025)},
		testutil.Sheet{
			Table: 8,
			Rows: [][]string{
				{"Table 8"}, {"header"},
				{"Department of Agriculture"},
				{"Farm Service Agency:"},
				{"Agricultural Credit Insurance Fund:"},
				{"Farm Operating"},
				{"FY 2015", "1.5"},
			},
			Indents: map[int]int{4: 1, 5: 3},
		},
	)

	src, err := Resolve(dir, 2025, 8)
	require.NoError(t, err)
	rows, err := ReadRows(context.Background(), src, testutil.NewTestLogger(t))
	require.NoError(t, err)

	require.Len(t, rows, 7)
	assert.Equal(t, 0, rows[3].Indent)
	assert.Equal(t, 2, rows[4].Indent)
	assert.Equal(t, 6, rows[5].Indent)
	assert.Equal(t, "1.5", rows[6].Cell(1))

	src, err = Resolve(dir, 2025, 2)
	require.NoError(t, err)
	rows, err = ReadRows(context.Background(), src, nil)
	require.NoError(t, err)
	assert.Equal(t, "Farm Operating-Guaranteed......", rows[5].First())
	assert.Equal(t, "1,500,000", rows[5].Cell(3))
}

func TestReadRows_MissingSheet(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteXLSX(t, filepath.Join(dir, "BUDGET-2024-FCS.xlsx"), testutil.Sheet{Table: 1})

	src, err := Resolve(dir, 2024, 9)
	require.NoError(t, err)
	_, err = ReadRows(context.Background(), src, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadRows_Cancelled(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteCSV(t, dir, 2020, 2, testutil.Table2Rows(2020))
	src, err := Resolve(dir, 2020, 2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ReadRows(ctx, src, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFormats(t *testing.T) {
	assert.Equal(t, []string{"csv", "xls", "xlsx"}, Formats())
}
