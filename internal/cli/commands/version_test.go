package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	tests := []struct {
		version string
		want    string
	}{
		{version: "0.1.0", want: "creditscope v0.1.0\n"},
		{version: "1.2.3", want: "creditscope v1.2.3\n"},
		{version: "dev", want: "creditscope vdev\n"},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			cmd := NewVersionCommand(tt.version)
			buf := &bytes.Buffer{}
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(nil)

			require.NoError(t, cmd.Execute())
			assert.Contains(t, buf.String(), tt.want)
			assert.Contains(t, buf.String(), "Federal Credit Supplement historical dataset builder")
		})
	}

	cmd := NewVersionCommand("test")
	assert.Equal(t, "version", cmd.Use)
	assert.NotEmpty(t, cmd.Long)
}
