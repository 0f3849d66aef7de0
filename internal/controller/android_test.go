package controller

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mvp-joe/pew/internal/config"
	"github.com/mvp-joe/pew/internal/pewerr"
	"github.com/mvp-joe/pew/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for the Android controller:
// - Permissions always include the baseline and never repeat
// - A missing or non-integer build_number is a ConfigError before any command
// - Build stages the private tree, passes the numeric version and permissions,
//   and moves the APK p4a leaves in the project root into dist
// - Release builds without a keystore password fail before any command
// - 64bit in the extra arguments selects arm64-v8a
// - A missing p4a or adb is a precondition failure before any command or staging
// - AppPath picks the most recently modified APK in dist

// argValues returns every value following flag in args.
func argValues(args []string, flag string) []string {
	var out []string
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			out = append(out, args[i+1])
		}
	}
	return out
}

func TestPermissions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"ACCESS_NETWORK_STATE", "WRITE_EXTERNAL_STORAGE"}, Permissions(nil))
	assert.Equal(t,
		[]string{"ACCESS_NETWORK_STATE", "CAMERA", "INTERNET", "WRITE_EXTERNAL_STORAGE"},
		Permissions([]string{"INTERNET", "CAMERA", "INTERNET", "ACCESS_NETWORK_STATE", " "}),
	)
}

func TestAndroidBuild_InvalidBuildNumber(t *testing.T) {
	t.Parallel()

	for name, extra := range map[string]map[string]any{
		"missing":     nil,
		"non-integer": {"build_number": "12a"},
	} {
		p := writeProject(t, extra)
		m := runner.NewMockRunner()
		a := newAndroid(testOptions(p, m))

		err := a.Build(context.Background(), NewBuildPlan(p, "android", "", false, false, nil))
		require.Error(t, err, name)
		assert.True(t, pewerr.IsConfig(err), name)
		assert.ErrorIs(t, err, config.ErrInvalidBuildNumber, name)
		assert.Empty(t, m.Calls, name)
		assert.NoFileExists(t, filepath.Join(p.Dir(), "build", "android", "main.py"), name)
	}
}

func TestAndroidBuild(t *testing.T) {
	t.Parallel()

	p := writeProject(t, map[string]any{
		"build_number": 12,
		"extra_build_options": map[string]any{
			"android": map[string]any{
				"extra_permissions": []string{"INTERNET", "ACCESS_NETWORK_STATE"},
				"minsdk":            "21",
			},
		},
	})
	m := runner.NewMockRunner()
	m.Handler = func(cmd runner.Command) runner.Response {
		if cmd.Name == "p4a" {
			writeFile(t, filepath.Join(cmd.Dir, "Demo-1.0-debug.apk"), "apk")
		}
		return runner.Response{}
	}
	a := newAndroid(testOptions(p, m))

	require.NoError(t, a.Build(context.Background(), NewBuildPlan(p, "android", "", false, false, nil)))

	calls := m.CallsTo("p4a")
	require.Len(t, calls, 1)
	args := calls[0].Args
	assert.Equal(t, "apk", args[0])
	assert.Equal(t, []string{"12"}, argValues(args, "--numeric-version"))
	assert.Equal(t, []string{"com.example.demo"}, argValues(args, "--package"))
	assert.Equal(t, []string{"21"}, argValues(args, "--minsdk"))
	assert.Equal(t, []string{"armeabi-v7a"}, argValues(args, "--arch"))
	assert.Equal(t, []string{"sensor"}, argValues(args, "--orientation"))
	assert.Equal(t,
		[]string{"ACCESS_NETWORK_STATE", "INTERNET", "WRITE_EXTERNAL_STORAGE"},
		argValues(args, "--permission"),
	)
	assert.NotContains(t, args, "--release")
	assert.Contains(t, calls[0].Env, "ANDROIDAPI=29")

	build := filepath.Join(p.Dir(), "build", "android")
	assert.Equal(t, []string{build}, argValues(args, "--private"))
	assert.FileExists(t, filepath.Join(build, "main.py"))
	assert.FileExists(t, filepath.Join(build, config.DescriptorFile))
	assert.FileExists(t, filepath.Join(build, "files", "web", "index.html"))

	assert.NoFileExists(t, filepath.Join(p.Dir(), "Demo-1.0-debug.apk"))
	apk, err := a.AppPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(p.Dir(), "dist", "android", "Demo-1.0-debug.apk"), apk)
	assert.FileExists(t, apk)
}

func TestAndroidBuild_NoAPKProduced(t *testing.T) {
	t.Parallel()

	p := writeProject(t, map[string]any{"build_number": "3"})
	m := runner.NewMockRunner()
	a := newAndroid(testOptions(p, m))

	err := a.Build(context.Background(), NewBuildPlan(p, "android", "", false, false, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no APK")
}

func TestAndroidBuild_ReleaseNeedsPassword(t *testing.T) {
	t.Parallel()

	p := writeProject(t, map[string]any{
		"build_number": 1,
		"codesign": map[string]any{
			"android": map[string]any{"keystore": "release.keystore", "alias": "demo"},
		},
	})
	m := runner.NewMockRunner()
	a := newAndroid(testOptions(p, m))

	err := a.Build(context.Background(), NewBuildPlan(p, "android", "", true, false, nil))
	require.Error(t, err)
	assert.True(t, pewerr.IsPrecondition(err))
	assert.Contains(t, err.Error(), "PEW_ANDROID_KEYSTORE_PASSWORD")
	assert.Empty(t, m.Calls)
}

func TestAndroidBuild_ReleaseSigning(t *testing.T) {
	t.Parallel()

	p := writeProject(t, map[string]any{
		"build_number": 1,
		"codesign": map[string]any{
			"android": map[string]any{"keystore": "release.keystore", "alias": "demo"},
		},
	})
	m := runner.NewMockRunner()
	m.Handler = func(cmd runner.Command) runner.Response {
		if cmd.Name == "p4a" {
			writeFile(t, filepath.Join(cmd.Dir, "Demo-1.0-release.apk"), "apk")
		}
		return runner.Response{}
	}
	opts := testOptions(p, m)
	opts.Getenv = func(key string) string {
		if key == "PEW_ANDROID_KEYSTORE_PASSWORD" {
			return "s3cret"
		}
		return ""
	}
	a := newAndroid(opts)

	require.NoError(t, a.Build(context.Background(), NewBuildPlan(p, "android", "", true, false, nil)))
	args := m.CallsTo("p4a")[0].Args
	assert.Equal(t, []string{filepath.Join(p.Dir(), "release.keystore")}, argValues(args, "--keystore"))
	assert.Equal(t, []string{"demo"}, argValues(args, "--signkey"))
	assert.Equal(t, []string{"s3cret"}, argValues(args, "--keystorepw"))
	assert.Equal(t, "--release", args[len(args)-1])
}

func TestAndroidArch(t *testing.T) {
	t.Parallel()

	p := writeProject(t, nil)
	opts := testOptions(p, runner.NewMockRunner())
	assert.Equal(t, "armeabi-v7a", newAndroid(opts).Arch())

	opts.ExtraArgs = []string{"64bit"}
	assert.Equal(t, "arm64-v8a", newAndroid(opts).Arch())
}

func TestAndroidDistAndRun(t *testing.T) {
	t.Parallel()

	p := writeProject(t, nil)
	m := runner.NewMockRunner()
	a := newAndroid(testOptions(p, m))

	dist, err := a.DistDir()
	require.NoError(t, err)
	apk := filepath.Join(dist, "Demo-1.0-debug.apk")
	require.NoError(t, os.WriteFile(apk, []byte("apk"), 0644))

	require.NoError(t, a.Dist(context.Background()))
	assert.FileExists(t, filepath.Join(p.Dir(), "package", "android", "Demo-1.0-debug.apk"))

	require.NoError(t, a.Run(context.Background(), nil))
	adb := m.CallsTo("adb")
	require.Len(t, adb, 2)
	assert.Equal(t, []string{"install", "-r", apk}, adb[0].Args)
	assert.Equal(t, []string{"shell", "monkey", "-p", "com.example.demo", "1"}, adb[1].Args)
}

func TestAndroid_MissingP4A(t *testing.T) {
	t.Parallel()

	p := writeProject(t, map[string]any{"build_number": 4})
	m := runner.NewMockRunner()
	m.Missing["p4a"] = true
	a := newAndroid(testOptions(p, m))

	err := a.Build(context.Background(), NewBuildPlan(p, "android", "", false, false, nil))
	require.Error(t, err)
	assert.True(t, pewerr.IsPrecondition(err))
	assert.Contains(t, err.Error(), "p4a")
	assert.Empty(t, m.Calls)
	assert.NoFileExists(t, filepath.Join(p.Dir(), "build", "android", "main.py"))

	err = a.Init(context.Background())
	require.Error(t, err)
	assert.True(t, pewerr.IsPrecondition(err))
	assert.Empty(t, m.Calls)
}

func TestAndroidRun_MissingADB(t *testing.T) {
	t.Parallel()

	p := writeProject(t, nil)
	m := runner.NewMockRunner()
	m.Missing["adb"] = true
	a := newAndroid(testOptions(p, m))

	dist, err := a.DistDir()
	require.NoError(t, err)
	writeFile(t, filepath.Join(dist, "Demo-1.0-debug.apk"), "apk")

	err = a.Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, pewerr.IsPrecondition(err))
	assert.Empty(t, m.Calls)
}

func TestAndroidAppPath_NewestAPK(t *testing.T) {
	t.Parallel()

	p := writeProject(t, nil)
	a := newAndroid(testOptions(p, runner.NewMockRunner()))

	dist, err := a.DistDir()
	require.NoError(t, err)
	fallback, err := a.AppPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dist, "Demo-1.0-debug.apk"), fallback)

	// Lexicographically last, but older.
	older := filepath.Join(dist, "Demo-1.0-release.apk")
	newer := filepath.Join(dist, "Demo-1.0-debug.apk")
	writeFile(t, older, "old")
	writeFile(t, newer, "new")
	now := time.Now()
	require.NoError(t, os.Chtimes(older, now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(newer, now, now))

	app, err := a.AppPath()
	require.NoError(t, err)
	assert.Equal(t, newer, app)
}
