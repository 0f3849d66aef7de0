// Package runner invokes external packaging, signing and notarization tools.
//
// Every tool pew drives (p4a, pyinstaller, codesign, notarytool, dmgbuild,
// iscc...) goes through the Runner interface so controllers can be tested
// against MockRunner without any tool installed. A command's exit status is
// its only success signal; output is passed through to the terminal.
package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mvp-joe/pew/internal/pewerr"
	"github.com/sirupsen/logrus"
)

// Command describes one external tool invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env entries (KEY=VALUE) are appended to the process environment.
	Env []string
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		if strings.ContainsAny(a, " \t") {
			a = `"` + a + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Runner executes external commands synchronously.
type Runner interface {
	// Run executes cmd with output passed through. A non-zero exit is
	// reported as *pewerr.ExternalToolError.
	Run(ctx context.Context, cmd Command) error

	// Output executes cmd and returns its captured stdout.
	// Stderr is still passed through.
	Output(ctx context.Context, cmd Command) ([]byte, error)

	// LookPath resolves a tool name on PATH.
	LookPath(name string) (string, error)
}

// execRunner is the real implementation using os/exec.
type execRunner struct {
	log    logrus.FieldLogger
	stdout io.Writer
	stderr io.Writer
}

// New returns a Runner backed by os/exec writing tool output to the
// process stdout/stderr.
func New(log logrus.FieldLogger) Runner {
	return &execRunner{log: log, stdout: os.Stdout, stderr: os.Stderr}
}

func (r *execRunner) Run(ctx context.Context, cmd Command) error {
	c := r.build(ctx, cmd)
	c.Stdout = r.stdout
	c.Stderr = r.stderr
	return r.wait(cmd, c.Run())
}

func (r *execRunner) Output(ctx context.Context, cmd Command) ([]byte, error) {
	var out bytes.Buffer
	c := r.build(ctx, cmd)
	c.Stdout = &out
	c.Stderr = r.stderr
	err := r.wait(cmd, c.Run())
	return out.Bytes(), err
}

func (r *execRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (r *execRunner) build(ctx context.Context, cmd Command) *exec.Cmd {
	r.log.WithField("dir", cmd.Dir).Debugf("running %s", cmd)
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	return c
}

func (r *execRunner) wait(cmd Command, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &pewerr.ExternalToolError{Command: cmd.String(), ExitCode: exitErr.ExitCode(), Err: err}
	}
	return &pewerr.ExternalToolError{Command: cmd.String(), ExitCode: -1, Err: err}
}
