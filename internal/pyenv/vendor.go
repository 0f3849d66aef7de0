package pyenv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mvp-joe/pew/internal/files"
	"github.com/mvp-joe/pew/internal/runner"
	"github.com/sirupsen/logrus"
)

// TargetDirName is the throwaway install target created inside the build dir.
const TargetDirName = "venv"

// skipped entries pip writes next to packages that do not belong in an app.
var skipped = map[string]bool{
	"bin":         true,
	"__pycache__": true,
}

// Vendorer installs packages into an isolated target and copies the
// result into an application's source tree.
type Vendorer struct {
	Python Interpreter
	Runner runner.Runner
	Log    logrus.FieldLogger
}

// Vendor installs packages into buildDir/venv, copies every produced entry
// into destDir and removes the target again, whether or not the install
// succeeded. It is a no-op for an empty package list.
func (v *Vendorer) Vendor(ctx context.Context, packages []string, buildDir, destDir string) error {
	if len(packages) == 0 {
		return nil
	}

	target := filepath.Join(buildDir, TargetDirName)
	if err := os.RemoveAll(target); err != nil {
		return err
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer os.RemoveAll(target)

	args := append([]string{"-m", "pip", "install", "--disable-pip-version-check", "--no-compile", "--target", target}, packages...)
	cmd, err := v.Python.Command(args...)
	if err != nil {
		return err
	}
	v.Log.WithField("packages", packages).Info("Installing Python dependencies")
	if err := v.Runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to install dependencies: %w", err)
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if skipped[e.Name()] {
			v.Log.Debugf("Ignoring %s", e.Name())
			continue
		}
		src := filepath.Join(target, e.Name())
		dst := filepath.Join(destDir, e.Name())
		v.Log.Debugf("Copying dependency: %s", e.Name())
		if e.IsDir() {
			err = files.CopyTree(src, dst)
		} else {
			err = files.CopyFile(src, dst)
		}
		if err != nil {
			return fmt.Errorf("failed to copy dependency %s: %w", e.Name(), err)
		}
	}
	return nil
}
