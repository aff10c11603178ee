package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_WriteFile(t *testing.T) {
	m := New()
	m.Source(StatusSuccess)
	m.Source(StatusSuccess)
	m.Source(StatusSkipped)
	m.Records(2, 14)
	m.Reconciled(40, 37, 3, 1)
	m.Duration(1500 * time.Millisecond)

	path := filepath.Join(t.TempDir(), "creditscope.prom")
	require.NoError(t, m.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `creditscope_sources_total{status="success"} 2`)
	assert.Contains(t, out, `creditscope_sources_total{status="skipped"} 1`)
	assert.Contains(t, out, `creditscope_records_extracted_total{table="2"} 14`)
	assert.Contains(t, out, "creditscope_programs_registered 40")
	assert.Contains(t, out, "creditscope_programs_final 37")
	assert.Contains(t, out, "creditscope_reconcile_merges_total 3")
	assert.Contains(t, out, "creditscope_reconcile_blocked_total 1")
	assert.Contains(t, out, "creditscope_run_duration_seconds 1.5")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Source(StatusFailed)
		m.Records(1, 1)
		m.Reconciled(1, 1, 0, 0)
		m.Duration(time.Second)
	})
	assert.NoError(t, m.WriteFile(filepath.Join(t.TempDir(), "x.prom")))
	assert.Nil(t, m.Registry())
}
