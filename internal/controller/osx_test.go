package controller

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/mvp-joe/pew/internal/pewerr"
	"github.com/mvp-joe/pew/internal/runner"
	"github.com/mvp-joe/pew/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"
)

// Test Plan for the macOS controller:
// - Build passes the bundle identifier and opens App Transport Security for localhost
// - Build continues into code signing when the project has a codesign.osx block
// - Codesign needs an identity and strips Python sources from the bundle
// - Notarize refuses a bundle the ledger has not seen signed, before any command
// - Notarize without --wait records the submission and leaves the state alone
// - Notarize with --wait staples on acceptance and records the notarized state
// - Dist renders dmgbuild settings and targets the package dir
// - Missing codesign, xcrun or dmgbuild fail as preconditions before any command

const infoPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleName</key>
	<string>Demo</string>
</dict>
</plist>
`

func openLedger(t *testing.T, root string) *storage.Ledger {
	t.Helper()
	l, err := storage.Open(root)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

// fakeBundle creates a minimal built app at the osx AppPath.
func fakeBundle(t *testing.T, o *OSX) string {
	t.Helper()
	app, err := o.AppPath()
	require.NoError(t, err)
	writeFile(t, filepath.Join(app, "Contents", "Info.plist"), infoPlist)
	writeFile(t, filepath.Join(app, "Contents", "MacOS", "Demo"), "bin")
	require.NoError(t, os.Chmod(filepath.Join(app, "Contents", "MacOS", "Demo"), 0755))
	writeFile(t, filepath.Join(app, "Contents", "Resources", "lib", "site.py"), "x")
	writeFile(t, filepath.Join(app, "Contents", "Resources", "lib", "site.pyo"), "x")
	writeFile(t, filepath.Join(app, "Contents", "Resources", "lib", "site.pyc"), "x")
	return app
}

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestOSXBuild(t *testing.T) {
	t.Parallel()

	p := writeProject(t, nil)
	m := runner.NewMockRunner()
	o := newOSX(testOptions(p, m))
	m.Handler = func(cmd runner.Command) runner.Response {
		if cmd.Name == "pyinstaller" {
			fakeBundle(t, o)
		}
		return runner.Response{}
	}

	require.NoError(t, o.Build(context.Background(), NewBuildPlan(p, "osx", "", false, false, nil)))

	calls := m.CallsTo("pyinstaller")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"com.example.demo"}, argValues(calls[0].Args, "--osx-bundle-identifier"))
	assert.Contains(t, calls[0].Args, "--windowed")
	assert.Empty(t, m.CallsTo("codesign"))

	app, err := o.AppPath()
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(app, "Contents", "Info.plist"))
	require.NoError(t, err)
	var doc map[string]any
	_, err = plist.Unmarshal(data, &doc)
	require.NoError(t, err)
	assert.Equal(t, "Demo", doc["CFBundleName"])
	ats, ok := doc["NSAppTransportSecurity"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, ats["NSAllowsArbitraryLoads"])
	assert.Contains(t, ats["NSExceptionDomains"], "localhost")
}

func TestOSXBuild_SignsWhenConfigured(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on POSIX executable bits")
	}
	t.Parallel()

	p := writeProject(t, map[string]any{
		"codesign": map[string]any{"osx": map[string]any{"identity": "Developer ID Application: Demo"}},
	})
	m := runner.NewMockRunner()
	opts := testOptions(p, m)
	opts.Ledger = openLedger(t, p.Dir())
	o := newOSX(opts)
	m.Handler = func(cmd runner.Command) runner.Response {
		if cmd.Name == "pyinstaller" {
			fakeBundle(t, o)
		}
		return runner.Response{}
	}

	require.NoError(t, o.Build(context.Background(), NewBuildPlan(p, "osx", "", false, false, nil)))
	assert.NotEmpty(t, m.CallsTo("codesign"))

	state, err := opts.Ledger.State("osx", "")
	require.NoError(t, err)
	assert.Equal(t, storage.StateSigned, state)
}

func TestOSXCodesign(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on POSIX executable bits")
	}
	t.Parallel()

	p := writeProject(t, nil)
	m := runner.NewMockRunner()
	opts := testOptions(p, m)
	o := newOSX(opts)
	app := fakeBundle(t, o)

	err := o.Codesign(context.Background())
	require.Error(t, err)
	assert.True(t, pewerr.IsPrecondition(err))
	assert.Contains(t, err.Error(), "MAC_CODESIGN_IDENTITY")
	assert.Empty(t, m.Calls)

	opts.Getenv = envMap(map[string]string{"MAC_CODESIGN_IDENTITY": "Developer ID Application: Env"})
	o = newOSX(opts)
	require.NoError(t, o.Codesign(context.Background()))

	lib := filepath.Join(app, "Contents", "Resources", "lib")
	assert.NoFileExists(t, filepath.Join(lib, "site.py"))
	assert.NoFileExists(t, filepath.Join(lib, "site.pyo"))
	assert.FileExists(t, filepath.Join(lib, "site.pyc"))

	calls := m.CallsTo("codesign")
	require.NotEmpty(t, calls)
	assert.Equal(t, []string{"Developer ID Application: Env"}, argValues(calls[0].Args, "--sign"))
}

func TestOSXCodesign_MissingEntitlements(t *testing.T) {
	t.Parallel()

	p := writeProject(t, map[string]any{
		"codesign": map[string]any{"osx": map[string]any{"identity": "X", "entitlements": "missing.plist"}},
	})
	m := runner.NewMockRunner()
	o := newOSX(testOptions(p, m))
	fakeBundle(t, o)

	err := o.Codesign(context.Background())
	require.Error(t, err)
	assert.True(t, pewerr.IsPrecondition(err))
	assert.Empty(t, m.Calls)
}

func TestOSXNotarize_RequiresSignedState(t *testing.T) {
	t.Parallel()

	p := writeProject(t, nil)
	m := runner.NewMockRunner()
	opts := testOptions(p, m)
	opts.Ledger = openLedger(t, p.Dir())
	o := newOSX(opts)
	app := fakeBundle(t, o)
	require.NoError(t, opts.Ledger.SetState("osx", "", storage.StateBuilt, app))

	err := o.Notarize(context.Background(), NotarizeOptions{Wait: true})
	require.Error(t, err)
	assert.True(t, pewerr.IsPrecondition(err))
	assert.Contains(t, err.Error(), "pew codesign")
	assert.Empty(t, m.Calls)
}

func notaryHandler(cmd runner.Command) runner.Response {
	if cmd.Name != "xcrun" {
		return runner.Response{}
	}
	switch cmd.Args[0] + " " + cmd.Args[1] {
	case "notarytool submit":
		return runner.Response{Output: []byte(`{"id":"req-9","message":"Successfully uploaded file"}`)}
	case "notarytool info":
		return runner.Response{Output: []byte(`{"id":"req-9","status":"Accepted"}`)}
	}
	return runner.Response{}
}

var notaryEnv = map[string]string{
	"MAC_DEV_ID_EMAIL": "dev@example.com",
	"MAC_APP_PASSWORD": "app-pass",
}

func TestOSXNotarize_NoWait(t *testing.T) {
	t.Parallel()

	p := writeProject(t, nil)
	m := runner.NewMockRunner()
	m.Handler = notaryHandler
	opts := testOptions(p, m)
	opts.Ledger = openLedger(t, p.Dir())
	opts.Getenv = envMap(notaryEnv)
	o := newOSX(opts)
	app := fakeBundle(t, o)
	require.NoError(t, opts.Ledger.SetState("osx", "", storage.StateSigned, app))

	require.NoError(t, o.Notarize(context.Background(), NotarizeOptions{}))

	ditto := m.CallsTo("ditto")
	require.Len(t, ditto, 1)
	assert.Equal(t, []string{"-c", "-k", "--keepParent", app, filepath.Join(p.Dir(), "build", "osx", "Demo.zip")}, ditto[0].Args)
	for _, c := range m.CallsTo("xcrun") {
		assert.NotEqual(t, "info", c.Args[1])
	}

	sub, err := opts.Ledger.LatestSubmission("osx", "")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "req-9", sub.RequestID)
	assert.Equal(t, "In Progress", sub.Status)

	state, err := opts.Ledger.State("osx", "")
	require.NoError(t, err)
	assert.Equal(t, storage.StateSigned, state)
}

func TestOSXNotarize_WaitAndStaple(t *testing.T) {
	t.Parallel()

	p := writeProject(t, nil)
	m := runner.NewMockRunner()
	m.Handler = notaryHandler
	opts := testOptions(p, m)
	opts.Ledger = openLedger(t, p.Dir())
	opts.Getenv = envMap(notaryEnv)
	o := newOSX(opts)
	app := fakeBundle(t, o)
	require.NoError(t, opts.Ledger.SetState("osx", "", storage.StateSigned, app))

	require.NoError(t, o.Notarize(context.Background(), NotarizeOptions{Wait: true, Interval: time.Millisecond, Timeout: time.Second}))

	xcrun := m.CallsTo("xcrun")
	last := xcrun[len(xcrun)-1]
	assert.Equal(t, []string{"stapler", "staple", app}, last.Args)

	sub, err := opts.Ledger.LatestSubmission("osx", "")
	require.NoError(t, err)
	assert.Equal(t, "Accepted", sub.Status)

	state, err := opts.Ledger.State("osx", "")
	require.NoError(t, err)
	assert.Equal(t, storage.StateNotarized, state)
}

func TestOSXNotarize_Rejected(t *testing.T) {
	t.Parallel()

	p := writeProject(t, nil)
	m := runner.NewMockRunner()
	m.Handler = func(cmd runner.Command) runner.Response {
		if cmd.Name == "xcrun" && cmd.Args[1] == "info" {
			return runner.Response{Output: []byte(`{"status":"Invalid"}`)}
		}
		return notaryHandler(cmd)
	}
	opts := testOptions(p, m)
	opts.Ledger = openLedger(t, p.Dir())
	opts.Getenv = envMap(notaryEnv)
	o := newOSX(opts)
	app := fakeBundle(t, o)
	require.NoError(t, opts.Ledger.SetState("osx", "", storage.StateSigned, app))

	err := o.Notarize(context.Background(), NotarizeOptions{Wait: true, Interval: time.Millisecond})
	require.Error(t, err)

	for _, c := range m.CallsTo("xcrun") {
		assert.NotEqual(t, "stapler", c.Args[0])
	}
	sub, err := opts.Ledger.LatestSubmission("osx", "")
	require.NoError(t, err)
	assert.Equal(t, "Invalid", sub.Status)
}

func TestOSXNotarize_MissingCredentials(t *testing.T) {
	t.Parallel()

	p := writeProject(t, nil)
	m := runner.NewMockRunner()
	o := newOSX(testOptions(p, m))
	fakeBundle(t, o)

	err := o.Notarize(context.Background(), NotarizeOptions{})
	require.Error(t, err)
	assert.True(t, pewerr.IsPrecondition(err))
	assert.Empty(t, m.Calls)
}

func TestOSXDist(t *testing.T) {
	t.Parallel()

	p := writeProject(t, map[string]any{"name": "My Demo"})
	m := runner.NewMockRunner()
	o := newOSX(testOptions(p, m))
	app := fakeBundle(t, o)

	pkg, err := o.PackageDir()
	require.NoError(t, err)
	stale := filepath.Join(pkg, "my_demo-1.0.dmg")
	writeFile(t, stale, "old")

	require.NoError(t, o.Dist(context.Background()))

	settings := filepath.Join(p.Dir(), "build", "osx", "dmgbuild_settings.py")
	data, err := os.ReadFile(settings)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), app))

	calls := m.CallsTo("dmgbuild")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"-s", settings, "My Demo-1.0", stale}, calls[0].Args)
	assert.NoFileExists(t, stale)
}

func TestOSX_MissingTools(t *testing.T) {
	t.Parallel()

	cases := map[string]func(o *OSX) error{
		"codesign": func(o *OSX) error { return o.Codesign(context.Background()) },
		"xcrun":    func(o *OSX) error { return o.Notarize(context.Background(), NotarizeOptions{Wait: true}) },
		"dmgbuild": func(o *OSX) error { return o.Dist(context.Background()) },
	}
	for tool, op := range cases {
		p := writeProject(t, map[string]any{
			"codesign": map[string]any{"osx": map[string]any{"identity": "Developer ID Application: Demo"}},
		})
		m := runner.NewMockRunner()
		m.Missing[tool] = true
		opts := testOptions(p, m)
		opts.Ledger = openLedger(t, p.Dir())
		opts.Getenv = envMap(notaryEnv)
		o := newOSX(opts)
		app := fakeBundle(t, o)
		require.NoError(t, opts.Ledger.SetState("osx", "", storage.StateSigned, app))

		err := op(o)
		require.Error(t, err, tool)
		assert.True(t, pewerr.IsPrecondition(err), tool)
		assert.Contains(t, err.Error(), tool, tool)
		assert.Empty(t, m.Calls, tool)
		assert.FileExists(t, filepath.Join(app, "Contents", "Resources", "lib", "site.py"), tool)
	}
}
