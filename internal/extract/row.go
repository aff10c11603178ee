package extract

import (
	"strings"

	"github.com/leapstack-labs/creditscope/internal/cell"
)

// Row is one raw table row in document order.
type Row struct {
	Cells []string
	// Indent is the leading whitespace of the first cell, or a synthetic
	// value derived from cell alignment for formats that indent by style.
	Indent int
}

// NewRow builds a Row and derives Indent from the first cell's leading
// whitespace.
func NewRow(cells ...string) Row {
	r := Row{Cells: cells}
	if len(cells) > 0 {
		r.Indent = cell.Indent(cells[0])
	}
	return r
}

// Cell returns the raw text at column i, or "" past the end of the row.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

// First returns the trimmed label cell with unicode ellipses expanded.
func (r Row) First() string {
	return strings.ReplaceAll(strings.TrimSpace(r.Cell(0)), "…", "...")
}

// Blank reports whether every cell is empty or whitespace.
func (r Row) Blank() bool {
	for _, c := range r.Cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
