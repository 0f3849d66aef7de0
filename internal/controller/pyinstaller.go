package controller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mvp-joe/pew/internal/files"
	"github.com/mvp-joe/pew/internal/pewerr"
)

// PyInstallerArgs builds the pyinstaller argument list for the desktop
// platforms. extra is inserted after the common flags.
func (b *Base) PyInstallerArgs(extra ...string) ([]string, error) {
	build, err := b.BuildDir()
	if err != nil {
		return nil, err
	}
	dist, err := b.DistDir()
	if err != nil {
		return nil, err
	}

	args := []string{
		"-D", "--noconfirm",
		"-n", b.project.Name(),
		"--distpath", dist,
		"--workpath", filepath.Join(build, "pyinstaller"),
		"--specpath", build,
		"--noconsole",
	}
	args = append(args, extra...)

	// A platform-keyed mapping that matched nothing has no usable icon.
	if icon, ok := b.project.Resolve("icons", b.platform, nil).(string); ok && icon != "" {
		args = append(args, "--icon="+absPath(b.root, icon))
	}
	for _, pkg := range b.project.ResolveStrings("packages", b.platform, nil) {
		args = append(args, "--hidden-import="+pkg)
	}
	for _, inc := range b.project.ResolveStrings("includes", b.platform, nil) {
		args = append(args, "--hidden-import="+inc)
	}
	for _, exc := range b.project.ResolveStrings("excludes", b.platform, nil) {
		args = append(args, "--exclude-module="+exc)
	}

	dataFiles, err := b.DataFiles()
	if err != nil {
		return nil, err
	}
	sep := string(os.PathListSeparator)
	for _, df := range dataFiles {
		for _, src := range df.Sources {
			args = append(args, fmt.Sprintf("--add-data=%s%s%s", filepath.FromSlash(src), sep, df.Dest))
		}
	}

	// PyInstaller writes its .spec file into the build dir, so scripts must be absolute.
	args = append(args, filepath.Join(b.root, b.MainScript()))
	if hooks := b.ImportHooksScript(); hooks != "" {
		full := filepath.Join(b.root, hooks)
		if files.Exists(full) {
			args = append(args, full)
		} else {
			b.log.Warnf("Cannot find import hooks file %s; the path must be relative to the source directory", hooks)
		}
	}
	return args, nil
}

// pyinstallerBuild runs pyinstaller with a wiped build dir into a freshly
// emptied dist directory.
func (b *Base) pyinstallerBuild(ctx context.Context, extra ...string) error {
	if err := b.requireTools("pyinstaller"); err != nil {
		return err
	}
	if _, err := b.resetBuildDir(); err != nil {
		return err
	}
	dist, err := b.DistDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dist)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dist, e.Name())); err != nil {
			return err
		}
	}

	args, err := b.PyInstallerArgs(extra...)
	if err != nil {
		return err
	}
	b.log.Infof("Running pyinstaller for %s", b.project.Name())
	if err := b.RunCmd(ctx, "pyinstaller", args...); err != nil {
		return fmt.Errorf("pyinstaller build failed: %w", err)
	}
	return nil
}

// validateBuildTool rejects build_tool values other than pyinstaller.
func (b *Base) validateBuildTool() error {
	tool := b.project.ResolveString("build_tool", b.platform, "pyinstaller")
	if !strings.EqualFold(tool, "pyinstaller") {
		return pewerr.Configf("build_tool %q is not supported on %s; use pyinstaller", tool, b.platform)
	}
	return nil
}
