// Package pyenv runs Python on behalf of build controllers.
//
// By default the interpreter comes from go-embed-python and is unpacked once
// under ~/.pyeverywhere/python, so a project can vendor pure-Python packages
// without any Python installed on the host. A project may name a system
// interpreter instead through its "python" key.
package pyenv

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kluctl/go-embed-python/python"
	"github.com/mvp-joe/pew/internal/runner"
)

// Interpreter builds commands that run Python with the given arguments.
type Interpreter interface {
	Command(args ...string) (runner.Command, error)
}

// SystemInterpreter runs a Python executable found on the host.
type SystemInterpreter struct {
	Path string
}

func (s SystemInterpreter) Command(args ...string) (runner.Command, error) {
	name := s.Path
	if name == "" {
		name = "python3"
	}
	return runner.Command{Name: name, Args: args}, nil
}

// EmbeddedInterpreter runs the interpreter bundled into the pew binary.
type EmbeddedInterpreter struct {
	ep *python.EmbeddedPython
}

// NewEmbeddedInterpreter unpacks the bundled interpreter into dir, reusing
// a previous extraction when its contents still match.
func NewEmbeddedInterpreter(dir string) (*EmbeddedInterpreter, error) {
	ep, err := python.NewEmbeddedPythonWithTmpDir(dir, true)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare embedded Python: %w", err)
	}
	return &EmbeddedInterpreter{ep: ep}, nil
}

func (e *EmbeddedInterpreter) Command(args ...string) (runner.Command, error) {
	cmd, err := e.ep.PythonCmd(args...)
	if err != nil {
		return runner.Command{}, fmt.Errorf("failed to create Python command: %w", err)
	}
	return runner.Command{Name: cmd.Path, Args: cmd.Args[1:], Env: cmd.Env}, nil
}

// DefaultDir is where the embedded interpreter is unpacked.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".pyeverywhere", "python"), nil
}

// Select returns a SystemInterpreter when path is set, otherwise the
// embedded interpreter.
func Select(path string) (Interpreter, error) {
	if path != "" {
		return SystemInterpreter{Path: path}, nil
	}
	dir, err := DefaultDir()
	if err != nil {
		return nil, err
	}
	return NewEmbeddedInterpreter(dir)
}
