package controller

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mvp-joe/pew/internal/config"
	"github.com/mvp-joe/pew/internal/pewerr"
	"github.com/mvp-joe/pew/internal/runner"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for the controller registry and shared base:
// - New resolves aliases and rejects unknown platforms with a ConfigError
// - Platform directories are created once and stable across calls
// - A --config name adds a directory level
// - NewBuildPlan resolves requirements, extra options and absolute ignore dirs
// - Packaging without a built app fails before any command runs
// - Unsupported operations wrap ErrUnsupported

// writeProject creates a project tree with a descriptor built from the
// defaults overlaid with extra, and returns the loaded project.
func writeProject(t *testing.T, extra map[string]any) *config.Project {
	t.Helper()
	root := t.TempDir()

	desc := map[string]any{
		"name":       "Demo",
		"version":    "1.0",
		"identifier": "com.example.demo",
		"asset_dirs": []string{"src/files"},
	}
	for k, v := range extra {
		desc[k] = v
	}
	data, err := json.MarshalIndent(desc, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, config.DescriptorFile), data, 0644))

	writeFile(t, filepath.Join(root, "src", "main.py"), "print('hello')\n")
	writeFile(t, filepath.Join(root, "src", "files", "web", "index.html"), "<html></html>\n")

	p, err := config.Load(filepath.Join(root, config.DescriptorFile))
	require.NoError(t, err)
	return p
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func testOptions(p *config.Project, m *runner.MockRunner) Options {
	log, _ := test.NewNullLogger()
	return Options{
		Project: p,
		Runner:  m,
		Log:     log,
		Getenv:  func(string) string { return "" },
	}
}

func TestNew_Aliases(t *testing.T) {
	t.Parallel()

	p := writeProject(t, nil)
	for alias, want := range map[string]string{
		"mac":     "osx",
		"macOS":   "osx",
		"darwin":  "osx",
		"windows": "win",
		"linux":   "linux",
		"android": "android",
		"ios":     "ios",
	} {
		c, err := New(alias, testOptions(p, runner.NewMockRunner()))
		require.NoError(t, err, alias)
		assert.Equal(t, want, c.Platform(), alias)
	}

	_, err := New("amiga", testOptions(p, runner.NewMockRunner()))
	require.Error(t, err)
	assert.True(t, pewerr.IsConfig(err))
	assert.Contains(t, err.Error(), "android, ios, linux, osx, win")
}

func TestPlatforms(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"android", "ios", "linux", "osx", "win"}, Platforms())
}

func TestPlatformDirs_Idempotent(t *testing.T) {
	t.Parallel()

	p := writeProject(t, nil)
	c, err := New("linux", testOptions(p, runner.NewMockRunner()))
	require.NoError(t, err)

	first, err := c.BuildDir()
	require.NoError(t, err)
	second, err := c.BuildDir()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, filepath.Join(p.Dir(), "build", "linux"), first)
	assert.DirExists(t, first)

	for _, get := range []func() (string, error){c.DistDir, c.PackageDir} {
		dir, err := get()
		require.NoError(t, err)
		assert.DirExists(t, dir)
	}
}

func TestPlatformDirs_ConfigLevel(t *testing.T) {
	t.Parallel()

	p := writeProject(t, nil)
	opts := testOptions(p, runner.NewMockRunner())
	opts.Config = "beta"
	c, err := New("osx", opts)
	require.NoError(t, err)

	dist, err := c.DistDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(p.Dir(), "dist", "osx", "beta"), dist)

	app, err := c.AppPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dist, "Demo.app"), app)
}

func TestNewBuildPlan(t *testing.T) {
	t.Parallel()

	p := writeProject(t, map[string]any{
		"requirements": map[string]any{
			"common":  []string{"requests"},
			"android": []string{"pyjnius"},
		},
		"extra_build_options": map[string]any{
			"android": map[string]any{"minsdk": "21"},
		},
		"ignore_dirs": map[string]any{
			"configs": map[string]any{"release": []string{"src/tests", "/abs/skip"}},
		},
	})

	plan := NewBuildPlan(p, "android", "release", true, false, []string{"64bit"})
	assert.Equal(t, []string{"pyjnius", "requests"}, plan.Requirements)
	assert.Equal(t, "21", plan.ExtraOptions["minsdk"])
	assert.Equal(t, []string{filepath.Join(p.Dir(), "src", "tests"), filepath.Clean("/abs/skip")}, plan.IgnorePaths)
	assert.True(t, plan.Release)
	assert.Equal(t, []string{"64bit"}, plan.ExtraArgs)

	plain := NewBuildPlan(p, "linux", "", false, false, nil)
	assert.Empty(t, plain.IgnorePaths)
	assert.Equal(t, []string{"requests"}, plain.Requirements)
	assert.NotNil(t, plain.ExtraOptions)
}

func TestDist_RequiresBuiltApp(t *testing.T) {
	t.Parallel()

	for _, platform := range []string{"android", "ios", "osx", "win", "linux"} {
		p := writeProject(t, map[string]any{"id": "0b7d2d6e-5a0b-4f55-9d8c-1a2f7c3e9f10"})
		m := runner.NewMockRunner()
		c, err := New(platform, testOptions(p, m))
		require.NoError(t, err)

		err = c.Dist(context.Background())
		require.Error(t, err, platform)
		assert.True(t, pewerr.IsPrecondition(err), platform)
		assert.Contains(t, err.Error(), "pew build "+platform)
		assert.Empty(t, m.Calls, platform)
	}
}

func TestUnsupportedOperations(t *testing.T) {
	t.Parallel()

	p := writeProject(t, nil)
	c, err := New("linux", testOptions(p, runner.NewMockRunner()))
	require.NoError(t, err)

	assert.ErrorIs(t, c.Codesign(context.Background()), ErrUnsupported)
	assert.ErrorIs(t, c.Notarize(context.Background(), NotarizeOptions{}), ErrUnsupported)
}

func TestPyInstallerArgs(t *testing.T) {
	t.Parallel()

	p := writeProject(t, map[string]any{
		"packages": []string{"requests"},
		"excludes": map[string]any{"linux": []string{"tkinter"}},
	})
	c := newLinux(testOptions(p, runner.NewMockRunner()))

	args, err := c.PyInstallerArgs("--extra")
	require.NoError(t, err)

	assert.Equal(t, []string{"-D", "--noconfirm", "-n", "Demo"}, args[:4])
	assert.Contains(t, args, "--extra")
	assert.Contains(t, args, "--hidden-import=requests")
	assert.Contains(t, args, "--exclude-module=tkinter")
	assert.Equal(t, filepath.Join(p.Dir(), "src", "main.py"), args[len(args)-1])

	sep := string(os.PathListSeparator)
	build := filepath.Join(p.Dir(), "build", "linux")
	assert.Contains(t, args, "--add-data="+filepath.Join(build, config.DescriptorFile)+sep+".")
	assert.Contains(t, args, "--add-data="+filepath.Join(p.Dir(), "src", "files", "web", "index.html")+sep+"files/web")
}

func TestDesktopBuild_RejectsOtherBuildTools(t *testing.T) {
	t.Parallel()

	p := writeProject(t, map[string]any{"build_tool": "briefcase"})
	m := runner.NewMockRunner()
	c := newWin(testOptions(p, m))

	err := c.Build(context.Background(), NewBuildPlan(p, "win", "", false, false, nil))
	require.Error(t, err)
	assert.True(t, pewerr.IsConfig(err))
	assert.Empty(t, m.Calls)
}
