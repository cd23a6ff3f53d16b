package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/consent/internal/journal"
)

const joinScenario = `name: join
description: Two callers share one platform request
contexts:
  - name: main
    kind: activity
steps:
  - bind_top: main
  - request: {handler: C1, code: 1, capabilities: [CAMERA]}
  - request: {handler: C2, code: 2, capabilities: [CAMERA]}
  - result: {capabilities: [CAMERA], granted: [true]}
assertions:
  - type: trace_count
    event: platform_request
    count: 1
  - type: callback
    handler: C2
    result: {CAMERA: true}
`

const failingScenario = `name: failing
description: Expects a second platform request that never happens
contexts:
  - name: main
    kind: activity
steps:
  - bind_top: main
  - request: {handler: C1, code: 1, capabilities: [CAMERA]}
  - request: {handler: C2, code: 2, capabilities: [CAMERA]}
assertions:
  - type: trace_count
    event: platform_request
    count: 2
`

// writeScenario writes content to dir/name and returns the path.
func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runSimulateCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewSimulateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestSimulate_Text(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "join.yaml", joinScenario)

	out, err := runSimulateCommand(t, "text", path)
	require.NoError(t, err)

	assert.Contains(t, out, "=== Trace ===")
	assert.Contains(t, out, "[1] bind_top main")
	assert.Contains(t, out, "joined CAMERA")
	assert.Contains(t, out, "C1 <- {CAMERA=true}")
	assert.Contains(t, out, "C2 <- {CAMERA=true}")
	assert.Contains(t, out, "(empty)")
}

func TestSimulate_JSON(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "join.yaml", joinScenario)

	out, err := runSimulateCommand(t, "json", path)
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Scenario string `json:"scenario"`
			Result   struct {
				Pass  bool                         `json:"pass"`
				Calls map[string][]map[string]bool `json:"calls"`
			} `json:"result"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "join", resp.Data.Scenario)
	assert.True(t, resp.Data.Result.Pass)
	assert.Len(t, resp.Data.Result.Calls["C1"], 1)
}

func TestSimulate_Failure(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "failing.yaml", failingScenario)

	out, err := runSimulateCommand(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "2 occurrences")
	assert.Contains(t, out, "stack-1")
}

func TestSimulate_MissingFile(t *testing.T) {
	_, err := runSimulateCommand(t, "text", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSimulate_JournalToDatabase(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "join.yaml", joinScenario)
	dbPath := filepath.Join(dir, "consent.db")

	_, err := runSimulateCommand(t, "text", path, "--db", dbPath)
	require.NoError(t, err)

	j, err := journal.Open(dbPath)
	require.NoError(t, err)
	defer j.Close()

	stacks, err := j.Stacks(context.Background())
	require.NoError(t, err)
	require.Len(t, stacks, 1)
	assert.Equal(t, "resolved", stacks[0].State)
	assert.Equal(t, 2, stacks[0].Handlers)
}
