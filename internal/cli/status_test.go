package cli

// Test Plan for Status Command:
// - An empty ledger reports that nothing is built
// - The table lists each artifact with its latest notarization
// - --json emits one object per artifact
// - formatTimeSince renders compact relative times

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/mvp-joe/pew/internal/runner"
	"github.com/mvp-joe/pew/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Empty(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, writeTestProject(t), runner.NewMockRunner(), false)
	var out bytes.Buffer
	require.NoError(t, executeStatus(&out, s, false, time.Now()))
	assert.Equal(t, "Nothing built yet for Demo App\n", out.String())
}

func TestStatus_Table(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, writeTestProject(t), runner.NewMockRunner(), false)
	require.NoError(t, s.ledger.SetState("osx", "", storage.StateSigned, "/dist/osx/Demo App.app"))
	require.NoError(t, s.ledger.SetState("linux", "beta", storage.StateBuilt, "/dist/linux/beta/Demo App"))
	require.NoError(t, s.ledger.RecordSubmission(storage.Submission{
		RequestID: "req-42", Platform: "osx", Artifact: "/build/Demo App.zip", Status: "In Progress",
	}))

	var out bytes.Buffer
	require.NoError(t, executeStatus(&out, s, false, time.Now()))
	text := out.String()
	assert.Contains(t, text, "signed")
	assert.Contains(t, text, "In Progress (req-42)")
	assert.Contains(t, text, "beta")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("linux")), bytes.Index(out.Bytes(), []byte("osx")))
}

func TestStatus_JSON(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, writeTestProject(t), runner.NewMockRunner(), false)
	require.NoError(t, s.ledger.SetState("win", "", storage.StateBuilt, "/dist/win/main.exe"))

	var out bytes.Buffer
	require.NoError(t, executeStatus(&out, s, true, time.Now()))

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "win", rows[0]["platform"])
	assert.Equal(t, "built", rows[0]["state"])
	assert.NotContains(t, rows[0], "request_id")
}

func TestFormatTimeSince(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{30 * time.Second, "30s ago"},
		{5 * time.Minute, "5m ago"},
		{2 * time.Hour, "2h ago"},
		{2*time.Hour + 10*time.Minute, "2h 10m ago"},
		{72 * time.Hour, "3d ago"},
		{27 * time.Hour, "1d 3h ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatTimeSince(now.Add(-tt.ago), now))
	}
	assert.Equal(t, "never", formatTimeSince(time.Time{}, now))
}

func TestWriteVersion(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, writeVersion(&out, false))
	assert.Contains(t, out.String(), "pew "+Version+"\n")

	out.Reset()
	require.NoError(t, writeVersion(&out, true))
	var info map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, Version, info["version"])
	assert.NotEmpty(t, info["host"])
}
