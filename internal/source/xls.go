package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/extrame/xls"

	"github.com/leapstack-labs/creditscope/internal/extract"
)

func init() {
	RegisterReader(FormatXLS, func(l *slog.Logger) Reader { return &xlsReader{logger: l} })
}

// xlsReader reads legacy BIFF8 workbooks. BIFF carries no alignment indent
// that the decoder exposes, so rows rely on leading-space indentation.
type xlsReader struct {
	logger *slog.Logger
}

func (r *xlsReader) Read(ctx context.Context, src Source) (rows []extract.Row, err error) {
	// The decoder panics on some truncated or damaged files.
	defer func() {
		if p := recover(); p != nil {
			rows = nil
			err = fmt.Errorf("failed to decode workbook %s: %v: %w", src.Path, p, ErrUnsupportedFormat)
		}
	}()

	wb, closer, err := xls.OpenWithCloser(src.Path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %v: %w", src.Path, err, ErrUnsupportedFormat)
	}
	defer func() { _ = closer.Close() }()

	names := make([]string, 0, wb.NumSheets())
	for i := 0; i < wb.NumSheets(); i++ {
		names = append(names, wb.GetSheet(i).Name)
	}
	name, err := pickSheet(names, src)
	if err != nil {
		return nil, err
	}
	var sheet *xls.WorkSheet
	for i, n := range names {
		if n == name {
			sheet = wb.GetSheet(i)
			break
		}
	}

	rows = make([]extract.Row, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows = append(rows, extract.NewRow(xlsCells(sheet.Row(i))...))
	}
	r.logger.Debug("read workbook",
		slog.String("path", src.Path),
		slog.String("sheet", name),
		slog.Int("rows", len(rows)))
	return rows, nil
}

// xlsCells returns a row's values from column A to its last column. Missing
// rows are empty.
func xlsCells(row *xls.Row) []string {
	if row == nil {
		return nil
	}
	last := row.LastCol()
	cells := make([]string, 0, max(last, 0))
	for c := 0; c < last; c++ {
		cells = append(cells, row.Col(c))
	}
	return cells
}
