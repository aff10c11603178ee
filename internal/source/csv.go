package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/leapstack-labs/creditscope/internal/extract"
)

func init() {
	RegisterReader(FormatCSV, func(l *slog.Logger) Reader { return &csvReader{logger: l} })
}

type csvReader struct {
	logger *slog.Logger
}

func (r *csvReader) Read(ctx context.Context, src Source) ([]extract.Row, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", src.Path, err)
	}
	defer func() { _ = f.Close() }()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var rows []extract.Row
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", src.Path, err)
		}
		rows = append(rows, extract.NewRow(rec...))
	}
	r.logger.Debug("read csv", slog.String("path", src.Path), slog.Int("rows", len(rows)))
	return rows, nil
}
