package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/consent/internal/capability"
)

func runKeyCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewKeyCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestKeyCommand_OrderIndependent(t *testing.T) {
	a, err := runKeyCommand(t, "text", "MICROPHONE", "CAMERA")
	require.NoError(t, err)
	b, err := runKeyCommand(t, "text", "CAMERA", "MICROPHONE", "CAMERA")
	require.NoError(t, err)

	assert.Equal(t, "CAMERA|MICROPHONE\n", a)
	assert.Equal(t, a, b)
}

func TestKeyCommand_JSON(t *testing.T) {
	out, err := runKeyCommand(t, "json", "MICROPHONE", "CAMERA")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   KeyResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"MICROPHONE", "CAMERA"}, resp.Data.Capabilities)
	assert.Equal(t, "CAMERA|MICROPHONE", resp.Data.Key)
	assert.Equal(t, capability.KeyDigest("CAMERA|MICROPHONE"), resp.Data.Digest)
}

func TestKeyCommand_InvalidName(t *testing.T) {
	out, err := runKeyCommand(t, "text", "CAMERA", "A|B")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeInvalidKey)
}

func TestKeyCommand_MissingArgs(t *testing.T) {
	_, err := runKeyCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}
