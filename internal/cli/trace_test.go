package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/consent/internal/harness"
)

const queuedScenario = `name: queued
description: A second key waits for the first to resolve
contexts:
  - name: main
    kind: activity
steps:
  - bind_top: main
  - request: {handler: H1, code: 1, capabilities: [CAMERA]}
  - request: {handler: H2, code: 2, capabilities: [LOCATION]}
  - result: {capabilities: [CAMERA], granted: [true]}
assertions:
  - type: trace_count
    event: platform_request
    count: 2
`

// journalFixture runs queuedScenario into a fresh database and returns its path.
func journalFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	scenario, err := harness.LoadScenario(writeScenario(t, dir, "queued.yaml", queuedScenario))
	require.NoError(t, err)

	dbPath := filepath.Join(dir, "consent.db")
	result, err := harness.Run(scenario, harness.WithJournalPath(dbPath))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	return dbPath
}

func runTraceCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTraceMissingDatabaseFlag(t *testing.T) {
	_, err := runTraceCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTraceNonExistentDatabase(t *testing.T) {
	out, err := runTraceCommand(t, "text", "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestTraceKeyAndStackExclusive(t *testing.T) {
	_, err := runTraceCommand(t, "text", "--db", "x.db", "--key", "CAMERA", "--stack", "stack-1")
	require.Error(t, err)
}

func TestTraceAll(t *testing.T) {
	db := journalFixture(t)

	out, err := runTraceCommand(t, "text", "--db", db)
	require.NoError(t, err)

	assert.Contains(t, out, "=== Timeline ===")
	assert.Contains(t, out, "QUEUED CAMERA")
	assert.Contains(t, out, "RESOLVED CAMERA {CAMERA=true}")
	assert.Contains(t, out, "ISSUED LOCATION")
	assert.Contains(t, out, "stack-2 LOCATION executed")
	assert.Contains(t, out, "Stacks:       2 (1 resolved, 1 outstanding)")
	assert.Contains(t, out, "Deliveries:   1 (0 failed)")
}

func TestTraceByKeyJSON(t *testing.T) {
	db := journalFixture(t)

	out, err := runTraceCommand(t, "json", "--db", db, "--key", "CAMERA")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	// queued, issued, resolved, delivered
	require.Len(t, resp.Data.Timeline, 4)
	for _, e := range resp.Data.Timeline {
		assert.Equal(t, "CAMERA", e.Key)
	}
	require.Len(t, resp.Data.Stacks, 1)
	assert.Equal(t, "stack-1", resp.Data.Stacks[0].ID)
	assert.Equal(t, 1, resp.Data.Stats.Resolved)
	assert.Equal(t, 1, resp.Data.Stats.Deliveries)
}

func TestTraceByStackVerbose(t *testing.T) {
	db := journalFixture(t)

	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text", Verbose: true})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", db, "--stack", "stack-2"})
	require.NoError(t, cmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "Stack: stack-2")
	assert.Contains(t, out, "Code:  2")
	assert.NotContains(t, out, "QUEUED CAMERA")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "stack-1", truncateID("stack-1"))
	assert.Equal(t, "0190a1b2...7e8f9a0b", truncateID("0190a1b2-c3d4-7e5f-8a9b-0c1d7e8f9a0b"))
}

func TestFormatOutcome(t *testing.T) {
	assert.Equal(t, "{}", formatOutcome(nil))
	assert.Equal(t, "{CAMERA=false, MICROPHONE=true}", formatOutcome(map[string]bool{"MICROPHONE": true, "CAMERA": false}))
}
