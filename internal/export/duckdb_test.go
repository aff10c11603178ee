package export

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuckDBSink_Open(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{name: "in-memory", path: func(_ *testing.T) string { return "" }},
		{name: "file-based", path: func(t *testing.T) string {
			return filepath.Join(t.TempDir(), "nested", "credit.duckdb")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewDuckDB(nil)
			path := tt.path(t)
			require.NoError(t, s.Open(context.Background(), Config{DuckDBPath: path}))
			defer func() { _ = s.Close() }()

			if path != "" {
				assert.FileExists(t, path)
			}
		})
	}
}

func TestDuckDBSink_WriteIsRepeatable(t *testing.T) {
	ctx := context.Background()
	s := NewDuckDB(nil)
	require.NoError(t, s.Open(ctx, Config{}))
	defer func() { _ = s.Close() }()

	ds := sampleDataset()
	require.NoError(t, s.Write(ctx, ds))
	require.NoError(t, s.Write(ctx, ds))

	var programs, observations int
	require.NoError(t, s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM programs").Scan(&programs))
	require.NoError(t, s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM observations").Scan(&observations))
	assert.Equal(t, 1, programs)
	assert.Equal(t, 2, observations)

	var name string
	var first, last int
	require.NoError(t, s.DB.QueryRowContext(ctx,
		"SELECT canonical_name, first_year, last_year FROM programs WHERE program_id = ?", "P001",
	).Scan(&name, &first, &last))
	assert.Equal(t, "Single Family Housing Direct Loans", name)
	assert.Equal(t, 2023, first)
	assert.Equal(t, 2024, last)

	var rate float64
	require.NoError(t, s.DB.QueryRowContext(ctx,
		"SELECT value_num FROM observations WHERE field = 'subsidy_rate_percent'",
	).Scan(&rate))
	assert.InDelta(t, 1.5, rate, 1e-9)
}
