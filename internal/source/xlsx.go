package source

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/xuri/excelize/v2"

	"github.com/leapstack-labs/creditscope/internal/extract"
)

func init() {
	RegisterReader(FormatXLSX, func(l *slog.Logger) Reader { return &xlsxReader{logger: l} })
}

type xlsxReader struct {
	logger *slog.Logger
}

func (r *xlsxReader) Read(ctx context.Context, src Source) ([]extract.Row, error) {
	f, err := excelize.OpenFile(src.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", src.Path, err)
	}
	defer func() { _ = f.Close() }()

	sheet, err := pickSheet(f.GetSheetList(), src)
	if err != nil {
		return nil, err
	}

	cells, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q of %s: %w", sheet, src.Path, err)
	}

	rows := make([]extract.Row, 0, len(cells))
	for i, c := range cells {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := extract.NewRow(c...)
		if row.Indent == 0 && len(c) > 0 && c[0] != "" {
			row.Indent = 2 * styleIndent(f, sheet, i+1)
		}
		rows = append(rows, row)
	}
	r.logger.Debug("read workbook",
		slog.String("path", src.Path),
		slog.String("sheet", sheet),
		slog.Int("rows", len(rows)))
	return rows, nil
}

// pickSheet returns the "Table N" sheet. Per-table workbooks with a single
// differently named sheet fall back to their first sheet.
func pickSheet(sheets []string, src Source) (string, error) {
	if slices.Contains(sheets, src.Sheet) {
		return src.Sheet, nil
	}
	if !src.Consolidated && len(sheets) > 0 {
		return sheets[0], nil
	}
	return "", fmt.Errorf("sheet %q not in %s: %w", src.Sheet, src.Path, ErrNotFound)
}

// styleIndent returns the alignment indent level of column A in a row.
func styleIndent(f *excelize.File, sheet string, row int) int {
	axis, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return 0
	}
	id, err := f.GetCellStyle(sheet, axis)
	if err != nil || id == 0 {
		return 0
	}
	style, err := f.GetStyle(id)
	if err != nil || style == nil || style.Alignment == nil {
		return 0
	}
	return style.Alignment.Indent
}
