package controller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mvp-joe/pew/internal/config"
	"github.com/mvp-joe/pew/internal/files"
	"github.com/mvp-joe/pew/internal/pewerr"
	"github.com/mvp-joe/pew/internal/pyenv"
	"github.com/mvp-joe/pew/internal/runner"
	"github.com/mvp-joe/pew/internal/storage"
	"github.com/sirupsen/logrus"
)

// Base implements the parts of Controller shared by every platform.
type Base struct {
	platform string
	appExt   string
	opts     Options
	project  *config.Project
	root     string
	planner  *files.Planner
	log      logrus.FieldLogger

	// env returns extra KEY=VALUE entries for every command.
	env func() []string
}

func newBase(platform, appExt string, opts Options) Base {
	log := opts.Log.WithField("platform", platform)
	return Base{
		platform: platform,
		appExt:   appExt,
		opts:     opts,
		project:  opts.Project,
		root:     opts.Project.Dir(),
		planner:  files.NewPlanner(log),
		log:      log,
	}
}

func (b *Base) Platform() string { return b.platform }

// ProjectRoot is the directory holding project_info.json.
func (b *Base) ProjectRoot() string { return b.root }

func (b *Base) BuildDir() (string, error)   { return b.platformDir("build") }
func (b *Base) DistDir() (string, error)    { return b.platformDir("dist") }
func (b *Base) PackageDir() (string, error) { return b.platformDir("package") }

// platformDir returns {root}/{kind}/{platform}[/{config}], creating it.
func (b *Base) platformDir(kind string) (string, error) {
	dir := filepath.Join(b.root, kind, b.platform)
	if b.opts.Config != "" {
		dir = filepath.Join(dir, b.opts.Config)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", kind, err)
	}
	return dir, nil
}

// AppPath defaults to {dist}/{name}{ext}.
func (b *Base) AppPath() (string, error) {
	dist, err := b.DistDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dist, b.project.Name()+b.appExt), nil
}

// SourceDirRel is the source directory relative to the project root.
func (b *Base) SourceDirRel() string {
	if dir := b.project.String("source_dir"); dir != "" {
		return dir
	}
	return "src"
}

func (b *Base) SourceDir() string {
	return filepath.Join(b.root, b.SourceDirRel())
}

// MainScript is the entry point relative to the project root.
func (b *Base) MainScript() string {
	return filepath.Join(b.SourceDirRel(), "main.py")
}

// ImportHooksScript is the optional extra import hooks file relative to
// the project root, or "".
func (b *Base) ImportHooksScript() string {
	if hooks := b.project.String("import_hooks_file"); hooks != "" {
		return filepath.Join(b.SourceDirRel(), hooks)
	}
	return ""
}

// GenerateProjectInfoFile writes the resolved descriptor into the build
// directory. The source file may still hold $VARS; the copy never does.
func (b *Base) GenerateProjectInfoFile() (string, error) {
	dir, err := b.BuildDir()
	if err != nil {
		return "", err
	}
	data, err := b.project.MarshalIndented()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, config.DescriptorFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// AssetDirs returns the "asset_dirs" list, defaulting to {src}/files
// with a warning when the key is absent.
func (b *Base) AssetDirs() []string {
	if dirs := b.project.ResolveStrings("asset_dirs", b.platform, nil); dirs != nil {
		return dirs
	}
	def := filepath.ToSlash(filepath.Join(b.SourceDirRel(), "files"))
	b.log.Warnf(`Specifying asset_dirs is required. Please add "asset_dirs": ["%s"] to your project_info.json file.`, def)
	return []string{def}
}

// AppDataFiles collects the static files shipped next to the code.
func (b *Base) AppDataFiles() ([]files.DataFile, error) {
	return b.planner.CollectDataFiles(b.root, b.AssetDirs(), b.SourceDirRel())
}

// DataFiles is the generated descriptor followed by AppDataFiles.
func (b *Base) DataFiles() ([]files.DataFile, error) {
	info, err := b.GenerateProjectInfoFile()
	if err != nil {
		return nil, err
	}
	data, err := b.AppDataFiles()
	if err != nil {
		return nil, err
	}
	return append([]files.DataFile{{Dest: ".", Sources: []string{info}}}, data...), nil
}

// RunCmd runs a tool from the project root with the platform environment.
func (b *Base) RunCmd(ctx context.Context, name string, args ...string) error {
	cmd := runner.Command{Name: name, Args: args, Dir: b.root}
	if b.env != nil {
		cmd.Env = b.env()
	}
	return b.opts.Runner.Run(ctx, cmd)
}

func (b *Base) getenv(key string) string {
	if b.opts.Getenv != nil {
		return b.opts.Getenv(key)
	}
	return os.Getenv(key)
}

func (b *Base) Init(ctx context.Context) error { return nil }

func (b *Base) Build(ctx context.Context, plan *BuildPlan) error {
	return fmt.Errorf("%w: build on %s", ErrUnsupported, b.platform)
}

func (b *Base) Dist(ctx context.Context) error {
	return fmt.Errorf("%w: package on %s", ErrUnsupported, b.platform)
}

func (b *Base) Codesign(ctx context.Context) error {
	return fmt.Errorf("%w: code signing on %s", ErrUnsupported, b.platform)
}

func (b *Base) Notarize(ctx context.Context, opts NotarizeOptions) error {
	return fmt.Errorf("%w: notarization is only available for osx", ErrUnsupported)
}

// Run starts the app from source with the project's Python.
func (b *Base) Run(ctx context.Context, args []string) error {
	interp := pyenv.SystemInterpreter{Path: b.project.String("python")}
	cmd, err := interp.Command(append([]string{b.MainScript()}, args...)...)
	if err != nil {
		return err
	}
	cmd.Dir = b.root
	return b.opts.Runner.Run(ctx, cmd)
}

// vendorer returns the dependency vendoring helper, creating the embedded
// interpreter on first use.
func (b *Base) vendorer() (*pyenv.Vendorer, error) {
	if b.opts.Python == nil {
		interp, err := pyenv.Select(b.project.String("python"))
		if err != nil {
			return nil, err
		}
		b.opts.Python = interp
	}
	return &pyenv.Vendorer{Python: b.opts.Python, Runner: b.opts.Runner, Log: b.log}, nil
}

// setState records the artifact state when a ledger is attached.
func (b *Base) setState(state storage.ArtifactState, path string) error {
	if b.opts.Ledger == nil {
		return nil
	}
	return b.opts.Ledger.SetState(b.platform, b.opts.Config, state, path)
}

func (b *Base) state() (storage.ArtifactState, error) {
	if b.opts.Ledger == nil {
		return storage.StateUnbuilt, nil
	}
	return b.opts.Ledger.State(b.platform, b.opts.Config)
}

// requireTools fails with a PreconditionError naming the first tool that
// cannot be found. Operations call it before touching the build tree.
func (b *Base) requireTools(tools ...string) error {
	for _, tool := range tools {
		if _, err := b.opts.Runner.LookPath(tool); err != nil {
			return pewerr.Preconditionf("%s is required for %s builds but was not found on PATH. Install it or run 'pew init %s'.", tool, b.platform, b.platform)
		}
	}
	return nil
}

// resetBuildDir removes the build dir and recreates it empty.
func (b *Base) resetBuildDir() (string, error) {
	dir, err := b.BuildDir()
	if err != nil {
		return "", err
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to clear build directory: %w", err)
	}
	return b.BuildDir()
}

// requireApp fails with a PreconditionError when c's app is missing.
func requireApp(c Controller) (string, error) {
	app, err := c.AppPath()
	if err != nil {
		return "", err
	}
	if !files.Exists(app) {
		return "", pewerr.Preconditionf("Built application does not exist at %s. Please run `pew build %s` first and then re-run this command.", app, c.Platform())
	}
	return app, nil
}

// absPath resolves p against root unless it is already absolute.
func absPath(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

// packageBaseName is "<name>-<version>" lowered with spaces as underscores.
func packageBaseName(p *config.Project) string {
	full := p.Name() + "-" + p.Version()
	return strings.ToLower(strings.ReplaceAll(full, " ", "_"))
}
