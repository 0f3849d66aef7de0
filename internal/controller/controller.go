// Package controller turns a loaded project into native builds.
//
// Each target platform has a Controller. They share the directory layout,
// data-file collection and command execution in Base, and differ in the
// packaging backend they drive: python-for-android for android, an Xcode
// template for ios, PyInstaller for the desktop platforms. Every operation
// returns an error; a nil error is success.
//
// Controllers never read process-wide state. The project, global settings,
// runner and ledger all arrive through Options.
package controller

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/mvp-joe/pew/internal/config"
	"github.com/mvp-joe/pew/internal/pewerr"
	"github.com/mvp-joe/pew/internal/pyenv"
	"github.com/mvp-joe/pew/internal/runner"
	"github.com/mvp-joe/pew/internal/storage"
	"github.com/sirupsen/logrus"
)

// ErrUnsupported is returned by operations a platform does not implement.
var ErrUnsupported = errors.New("operation not supported for this platform")

// Controller is the per-platform build strategy.
type Controller interface {
	Platform() string

	// Directory accessors create the directory on first use.
	BuildDir() (string, error)
	DistDir() (string, error)
	PackageDir() (string, error)

	// AppPath is where the built application is expected. It may not exist.
	AppPath() (string, error)

	Init(ctx context.Context) error
	Build(ctx context.Context, plan *BuildPlan) error
	Dist(ctx context.Context) error
	Codesign(ctx context.Context) error
	Notarize(ctx context.Context, opts NotarizeOptions) error
	Run(ctx context.Context, args []string) error
}

// Options carries everything a controller needs.
type Options struct {
	Project *config.Project
	Global  *config.GlobalConfig
	Runner  runner.Runner
	Log     logrus.FieldLogger

	// Config is the --config overlay name; it adds a level to every
	// platform directory.
	Config    string
	ExtraArgs []string

	// Ledger records artifact states; nil disables state tracking.
	Ledger *storage.Ledger
	// Python vendors packages into builds; nil selects the embedded interpreter.
	Python pyenv.Interpreter

	// Getenv reads secrets and overrides; nil means os.Getenv.
	Getenv func(string) string
}

// NotarizeOptions controls submission and polling.
type NotarizeOptions struct {
	Wait     bool
	Interval time.Duration
	Timeout  time.Duration
}

// BuildPlan is the resolved input of one build invocation.
type BuildPlan struct {
	Platform   string
	ConfigName string
	Release    bool
	Sign       bool

	Requirements []string
	IgnorePaths  []string
	ExtraOptions map[string]any
	ExtraArgs    []string
}

// NewBuildPlan resolves the platform-dependent settings of a build.
// Ignore directories come from the "ignore_dirs" key of the named config
// and are made absolute against the project root.
func NewBuildPlan(p *config.Project, platform, configName string, release, sign bool, extraArgs []string) *BuildPlan {
	plan := &BuildPlan{
		Platform:     platform,
		ConfigName:   configName,
		Release:      release,
		Sign:         sign,
		Requirements: p.ResolveStrings("requirements", platform, []string{}),
		ExtraOptions: p.ResolveMap("extra_build_options", platform),
		ExtraArgs:    extraArgs,
	}
	if plan.ExtraOptions == nil {
		plan.ExtraOptions = map[string]any{}
	}
	if configName != "" {
		for _, dir := range p.ResolveStringsForConfig("ignore_dirs", configName, nil) {
			plan.IgnorePaths = append(plan.IgnorePaths, absPath(p.Dir(), dir))
		}
	}
	return plan
}

type factory func(Options) Controller

var registry = map[string]factory{
	"android": func(o Options) Controller { return newAndroid(o) },
	"ios":     func(o Options) Controller { return newIOS(o) },
	"osx":     func(o Options) Controller { return newOSX(o) },
	"win":     func(o Options) Controller { return newWin(o) },
	"linux":   func(o Options) Controller { return newLinux(o) },
}

var aliases = map[string]string{
	"mac":     "osx",
	"macos":   "osx",
	"darwin":  "osx",
	"windows": "win",
}

// Platforms lists the supported platform names.
func Platforms() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalize maps aliases such as "mac" to their canonical platform name.
func Normalize(platform string) string {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if canonical, ok := aliases[platform]; ok {
		return canonical
	}
	return platform
}

// HostPlatform is the desktop platform pew is running on.
func HostPlatform() string {
	switch runtime.GOOS {
	case "windows":
		return "win"
	case "darwin":
		return "osx"
	}
	return "linux"
}

// New returns the controller for platform.
func New(platform string, opts Options) (Controller, error) {
	name := Normalize(platform)
	f, ok := registry[name]
	if !ok {
		return nil, pewerr.Configf("unknown platform %q (supported: %s)", platform, strings.Join(Platforms(), ", "))
	}
	if opts.Project == nil {
		return nil, errors.New("controller requires a loaded project")
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Runner == nil {
		opts.Runner = runner.New(opts.Log)
	}
	return f(opts), nil
}
