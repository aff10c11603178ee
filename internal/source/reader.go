package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/leapstack-labs/creditscope/internal/extract"
)

// Reader turns one source into document-ordered rows.
type Reader interface {
	Read(ctx context.Context, src Source) ([]extract.Row, error)
}

var (
	readersMu sync.RWMutex
	readers   = make(map[Format]func(*slog.Logger) Reader)
)

// RegisterReader adds a reader factory for a format. Readers register
// themselves from init().
func RegisterReader(format Format, factory func(*slog.Logger) Reader) {
	readersMu.Lock()
	defer readersMu.Unlock()
	readers[format] = factory
}

// Formats returns the formats with a registered reader.
func Formats() []string {
	readersMu.RLock()
	defer readersMu.RUnlock()
	out := make([]string, 0, len(readers))
	for f := range readers {
		out = append(out, string(f))
	}
	sort.Strings(out)
	return out
}

// ReadRows reads a source with the reader registered for its format.
func ReadRows(ctx context.Context, src Source, logger *slog.Logger) ([]extract.Row, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	readersMu.RLock()
	factory, ok := readers[src.Format]
	readersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: no reader for format %q: %w", src, src.Format, ErrUnsupportedFormat)
	}
	return factory(logger).Read(ctx, src)
}
