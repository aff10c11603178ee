package testutil

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

// SheetName is the sheet name FCS workbooks use for a table.
func SheetName(table int) string {
	return fmt.Sprintf("Table %d", table)
}

// WriteCSV writes a per-table CSV export named the way the resolver expects
// and returns its path.
func WriteCSV(t testing.TB, dir string, year, table int, rows [][]string) string {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("BUDGET-%d-FCS-table%d.csv", year, table))
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		t.Fatalf("failed to write %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close %s: %v", path, err)
	}
	return path
}

// Sheet is one worksheet of a fixture workbook. Indents maps zero-based row
// numbers to an alignment indent level for column A.
type Sheet struct {
	Table   int
	Rows    [][]string
	Indents map[int]int
}

// WriteXLSX writes a workbook with one sheet per table to path.
func WriteXLSX(t testing.TB, path string, sheets ...Sheet) string {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, s := range sheets {
		name := SheetName(s.Table)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				t.Fatalf("failed to rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			t.Fatalf("failed to add sheet %s: %v", name, err)
		}
		for r, row := range s.Rows {
			values := make([]any, len(row))
			for c, v := range row {
				values[c] = v
			}
			axis, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatalf("bad coordinates: %v", err)
			}
			if err := f.SetSheetRow(name, axis, &values); err != nil {
				t.Fatalf("failed to write row %d: %v", r, err)
			}
			level, ok := s.Indents[r]
			if !ok {
				continue
			}
			style, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{Indent: level}})
			if err != nil {
				t.Fatalf("failed to create style: %v", err)
			}
			if err := f.SetCellStyle(name, axis, axis, style); err != nil {
				t.Fatalf("failed to style %s: %v", axis, err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("failed to save %s: %v", path, err)
	}
	return path
}

// Table2Rows is a small Table 2 sheet: two header rows, one agency, one
// bureau, one account and two programs.
func Table2Rows(budgetYear int) [][]string {
	return [][]string{
		{fmt.Sprintf("Table 2. Loan Guarantee Programs, %d and %d", budgetYear-1, budgetYear)},
		{"Agency and Program", "BEA Category", "Subsidy Rate", "Obligations", "Average Loan", "Subsidy Rate", "Obligations", "Average Loan"},
		{"Department of Agriculture"},
		{"Farm Service Agency:"},
		{"Agricultural Credit Insurance Fund Program Account:"},
		{"Farm Operating-Guaranteed......", "Mandatory", "1.02", "1,500,000", "400", "0.98", "1,600,000", "420"},
		{"Farm Ownership-Guaranteed......", "Mandatory", "0.50", "3,000", "", "0.60", "3,100", ""},
	}
}

// Table8Rows is a small Table 8 sheet with indented labels and one
// reestimate cohort per program.
func Table8Rows(cohort int, rate string) [][]string {
	return [][]string{
		{"Table 8. Loan Guarantee Programs: Subsidy Reestimates"},
		{"Agency, Bureau, Account, Program, Cohort", "Original Subsidy Rate"},
		{"Department of Agriculture"},
		{"Farm Service Agency:"},
		{"  Agricultural Credit Insurance Fund:"},
		{"      Farm Operating-Guaranteed"},
		{fmt.Sprintf("FY %d", cohort), rate, "0.9", "", "", "100", "200", "", "", ""},
	}
}
