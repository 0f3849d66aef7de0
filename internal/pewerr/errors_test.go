package pewerr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Test Plan for error taxonomy:
// - Each kind is detectable through wrapping
// - ExitCode maps nil to 0, tool failures to their status, everything else to 1
// - Messages carry the user-facing text unchanged

func TestKinds_DetectedThroughWrapping(t *testing.T) {
	t.Parallel()

	cfg := fmt.Errorf("load: %w", Configf("missing key %q", "name"))
	pre := fmt.Errorf("dist: %w", Preconditionf("run build first"))
	tmo := fmt.Errorf("notarize: %w", &TimeoutError{Operation: "notarization", After: time.Minute})

	assert.True(t, IsConfig(cfg))
	assert.False(t, IsConfig(pre))
	assert.True(t, IsPrecondition(pre))
	assert.False(t, IsPrecondition(tmo))
	assert.True(t, IsTimeout(tmo))
	assert.False(t, IsTimeout(cfg))
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"config", Configf("bad"), 1},
		{"precondition", Preconditionf("missing"), 1},
		{"tool status", &ExternalToolError{Command: "p4a", ExitCode: 3}, 3},
		{"tool not started", &ExternalToolError{Command: "p4a", ExitCode: -1, Err: errors.New("not found")}, 1},
		{"wrapped tool", fmt.Errorf("build: %w", &ExternalToolError{Command: "codesign", ExitCode: 2}), 2},
		{"timeout", &TimeoutError{Operation: "notarization", After: time.Second}, 1},
		{"plain", errors.New("boom"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestMessages(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Built application does not exist", Preconditionf("Built application does not exist").Error())
	assert.Equal(t, "config error in project_info.json: unresolved variable", (&ConfigError{Path: "project_info.json", Message: "unresolved variable"}).Error())
	assert.Equal(t, "dmgbuild: exited with status 2", (&ExternalToolError{Command: "dmgbuild", ExitCode: 2}).Error())
}
