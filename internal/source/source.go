// Package source locates FCS workbooks on disk and reads their sheets into
// raw rows for extraction.
//
// FY2024 onwards ships one consolidated workbook with a "Table N" sheet per
// table; earlier budgets ship one workbook per table, the oldest as legacy
// BIFF .xls files. CSV exports of a sheet are accepted under the per-table
// naming scheme.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound means no file exists for a (year, table) pair.
	ErrNotFound = errors.New("source not found")
	// ErrUnsupportedFormat means a file exists but cannot be read, such as a
	// damaged workbook or one with no registered reader.
	ErrUnsupportedFormat = errors.New("unsupported workbook format")
)

// Format is the on-disk encoding of a source.
type Format string

// Known formats.
const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
)

var (
	zipMagic = []byte{'P', 'K', 0x03, 0x04}
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
)

// Source is one resolved (year, table) input.
type Source struct {
	Year   int    `json:"year"`
	Table  int    `json:"table"`
	Path   string `json:"path"`
	Sheet  string `json:"sheet"`
	Format Format `json:"format"`
	// Consolidated is set for single-workbook budgets holding every table.
	Consolidated bool `json:"consolidated"`
}

func (s Source) String() string {
	return fmt.Sprintf("FY%d table %d (%s)", s.Year, s.Table, filepath.Base(s.Path))
}

// SheetName returns the sheet name of a table.
func SheetName(table int) string {
	return fmt.Sprintf("Table %d", table)
}

// Candidates lists the file names tried for a (year, table) pair, in order.
func Candidates(year, table int) []string {
	return []string{
		fmt.Sprintf("BUDGET-%d-FCS.xlsx", year),
		fmt.Sprintf("BUDGET-%d-FCS-table%d.xlsx", year, table),
		fmt.Sprintf("BUDGET-%d-FCS-table%d.xls", year, table),
		fmt.Sprintf("BUDGET-%d-FCS-table%d.csv", year, table),
	}
}

// Resolve finds the file for a (year, table) pair in rawDir.
func Resolve(rawDir string, year, table int) (Source, error) {
	for i, name := range Candidates(year, table) {
		path := filepath.Join(rawDir, name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		format, err := DetectFormat(path)
		if err != nil {
			return Source{}, err
		}
		return Source{
			Year:         year,
			Table:        table,
			Path:         path,
			Sheet:        SheetName(table),
			Format:       format,
			Consolidated: i == 0,
		}, nil
	}
	return Source{}, fmt.Errorf("FY%d table %d in %s: %w", year, table, rawDir, ErrNotFound)
}

// DetectFormat identifies a file by its magic bytes, falling back to the
// extension for text formats.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, 4)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	head = head[:n]

	switch {
	case bytes.Equal(head, zipMagic):
		return FormatXLSX, nil
	case bytes.Equal(head, oleMagic):
		return FormatXLS, nil
	case strings.EqualFold(filepath.Ext(path), ".csv"):
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

// Missing records a (year, table) pair with no file.
type Missing struct {
	Year   int    `json:"year"`
	Table  int    `json:"table"`
	Reason string `json:"reason"`
}

// Discover resolves every (year, table) pair, years outer and tables inner,
// so the result is in registration order.
func Discover(rawDir string, years, tables []int) ([]Source, []Missing) {
	var found []Source
	var missing []Missing
	for _, y := range years {
		for _, t := range tables {
			src, err := Resolve(rawDir, y, t)
			switch {
			case err == nil:
				found = append(found, src)
			case errors.Is(err, ErrNotFound):
				missing = append(missing, Missing{Year: y, Table: t, Reason: "file not found"})
			default:
				// Unreadable files are kept so extraction reports them as failed.
				found = append(found, Source{Year: y, Table: t, Path: unreadablePath(rawDir, y, t), Sheet: SheetName(t)})
			}
		}
	}
	return found, missing
}

func unreadablePath(rawDir string, year, table int) string {
	for _, name := range Candidates(year, table) {
		path := filepath.Join(rawDir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return rawDir
}

// Years returns the inclusive range start..end.
func Years(start, end int) []int {
	if end < start {
		return nil
	}
	out := make([]int, 0, end-start+1)
	for y := start; y <= end; y++ {
		out = append(out, y)
	}
	return out
}
