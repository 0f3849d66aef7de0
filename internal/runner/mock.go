package runner

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/mvp-joe/pew/internal/pewerr"
)

// Response is a scripted result for one MockRunner invocation.
type Response struct {
	Output   []byte
	ExitCode int
}

// MockRunner is a recording implementation of Runner for testing.
// Every invocation is appended to Calls. Results come from Handler when set,
// otherwise from the per-tool queue filled by Script, otherwise success.
type MockRunner struct {
	Calls   []Command
	Handler func(cmd Command) Response
	// Missing lists tool names LookPath must fail for.
	Missing map[string]bool

	scripted map[string][]Response
}

// NewMockRunner creates a mock that succeeds for every command.
func NewMockRunner() *MockRunner {
	return &MockRunner{
		Missing:  map[string]bool{},
		scripted: map[string][]Response{},
	}
}

// Script queues responses for commands named name, consumed in order.
func (m *MockRunner) Script(name string, responses ...Response) {
	m.scripted[name] = append(m.scripted[name], responses...)
}

func (m *MockRunner) Run(ctx context.Context, cmd Command) error {
	_, err := m.invoke(cmd)
	return err
}

func (m *MockRunner) Output(ctx context.Context, cmd Command) ([]byte, error) {
	return m.invoke(cmd)
}

func (m *MockRunner) LookPath(name string) (string, error) {
	if m.Missing[name] {
		return "", fmt.Errorf("%w: %s", exec.ErrNotFound, name)
	}
	return "/usr/local/bin/" + name, nil
}

// CallsTo returns the recorded invocations of the named tool.
func (m *MockRunner) CallsTo(name string) []Command {
	var out []Command
	for _, c := range m.Calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func (m *MockRunner) invoke(cmd Command) ([]byte, error) {
	m.Calls = append(m.Calls, cmd)

	var resp Response
	switch {
	case m.Handler != nil:
		resp = m.Handler(cmd)
	case len(m.scripted[cmd.Name]) > 0:
		resp = m.scripted[cmd.Name][0]
		m.scripted[cmd.Name] = m.scripted[cmd.Name][1:]
	}

	if resp.ExitCode != 0 {
		return resp.Output, &pewerr.ExternalToolError{Command: cmd.String(), ExitCode: resp.ExitCode}
	}
	return resp.Output, nil
}
