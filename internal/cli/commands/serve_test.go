package commands

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/creditscope/internal/cli/output"
)

// serveCancelled runs serve with an already cancelled context so the server
// shuts down as soon as it starts listening.
func serveCancelled(t *testing.T) (string, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := NewServeCommand()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{"--host", "127.0.0.1", "--port", "0"})
	require.NoError(t, cmd.ExecuteContext(ctx))
	return out.String(), errOut.String()
}

func TestServeCommand_WithoutState(t *testing.T) {
	loadProject(t, output.ModeText)

	out, errOut := serveCancelled(t)
	assert.Contains(t, out, "on http://127.0.0.1:0")
	assert.Contains(t, errOut, "run endpoints are disabled")
}

func TestServeCommand_WithState(t *testing.T) {
	loadProject(t, output.ModeText)
	_, _, err := execute(t, NewRunCommand())
	require.NoError(t, err)

	_, errOut := serveCancelled(t)
	assert.NotContains(t, errOut, "run endpoints are disabled")
}

func TestServeCommand_BadPort(t *testing.T) {
	loadProject(t, output.ModeText)

	cmd := NewServeCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--port=-5"})
	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}
