// Package pewerr defines the error taxonomy shared by every pew command.
//
// Four kinds of failure are distinguished:
//
//   - ConfigError: the project descriptor is malformed or incomplete
//   - PreconditionError: a required artifact or tool is missing
//   - ExternalToolError: a spawned command exited non-zero
//   - TimeoutError: notarization polling ran out of wall-clock budget
//
// All of them are fatal for the current command. ExitCode maps an error
// chain onto the process exit status used by the CLI.
package pewerr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ConfigError reports a malformed or under-specified project descriptor.
type ConfigError struct {
	Path    string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config error")
	if e.Path != "" {
		b.WriteString(" in ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Configf builds a ConfigError without an underlying cause.
func Configf(format string, args ...any) error {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// PreconditionError reports that an operation's prior artifact or tool is missing.
// Message is meant to be shown to the user verbatim.
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string { return e.Message }

// Preconditionf builds a PreconditionError.
func Preconditionf(format string, args ...any) error {
	return &PreconditionError{Message: fmt.Sprintf(format, args...)}
}

// ExternalToolError reports a spawned command that failed.
// ExitCode is -1 when the command could not be started at all.
type ExternalToolError struct {
	Command  string
	ExitCode int
	Err      error
}

func (e *ExternalToolError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("%s: failed to start: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s: exited with status %d", e.Command, e.ExitCode)
}

func (e *ExternalToolError) Unwrap() error { return e.Err }

// TimeoutError reports that polling exceeded its wall-clock budget.
type TimeoutError struct {
	Operation string
	After     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Operation, e.After)
}

// IsConfig reports whether err wraps a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsPrecondition reports whether err wraps a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// IsTimeout reports whether err wraps a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// ExitCode returns the process exit status for err.
// nil maps to 0. An ExternalToolError propagates the tool's own status when
// it is a usable non-zero value; everything else maps to 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var te *ExternalToolError
	if errors.As(err, &te) && te.ExitCode > 0 && te.ExitCode < 256 {
		return te.ExitCode
	}
	return 1
}
