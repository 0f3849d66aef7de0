package controller

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mvp-joe/pew/internal/files"
	"github.com/mvp-joe/pew/internal/pewerr"
	"github.com/mvp-joe/pew/internal/storage"
	"github.com/mvp-joe/pew/internal/templates"
)

// innoSetupCandidates are the default install locations of the Inno Setup
// compiler, newest first.
var innoSetupCandidates = []string{
	`C:\Program Files (x86)\Inno Setup 6\iscc.exe`,
	`C:\Program Files (x86)\Inno Setup 5\iscc.exe`,
}

// Win builds a PyInstaller folder app and packages it with Inno Setup.
type Win struct {
	Base
}

func newWin(opts Options) *Win {
	return &Win{Base: newBase("win", ".exe", opts)}
}

// AppPath prefers a single-file dist/main.exe and otherwise points at the
// executable inside the one-folder build.
func (w *Win) AppPath() (string, error) {
	dist, err := w.DistDir()
	if err != nil {
		return "", err
	}
	if single := filepath.Join(dist, "main.exe"); files.Exists(single) {
		return single, nil
	}
	name := w.project.Name()
	return filepath.Join(dist, name, name+".exe"), nil
}

func (w *Win) Build(ctx context.Context, plan *BuildPlan) error {
	if err := w.validateBuildTool(); err != nil {
		return err
	}
	if err := w.pyinstallerBuild(ctx); err != nil {
		return err
	}
	app, err := w.AppPath()
	if err != nil {
		return err
	}
	return w.setState(storage.StateBuilt, app)
}

// innoCompiler locates iscc: PEW_INNO_SETUP, the default install
// directories, then PATH.
func (w *Win) innoCompiler() (string, error) {
	if env := w.getenv("PEW_INNO_SETUP"); env != "" {
		if files.Exists(env) {
			return env, nil
		}
		return "", pewerr.Preconditionf("PEW_INNO_SETUP points at %s, which does not exist", env)
	}
	for _, c := range innoSetupCandidates {
		if files.Exists(c) {
			return c, nil
		}
	}
	if path, err := w.opts.Runner.LookPath("iscc"); err == nil {
		return path, nil
	}
	return "", pewerr.Preconditionf("Unable to find the Inno Setup compiler (iscc.exe). Install Inno Setup 6 or set PEW_INNO_SETUP.")
}

// Dist writes an Inno Setup script for the built app and compiles an
// installer into the package dir.
func (w *Win) Dist(ctx context.Context) error {
	app, err := requireApp(w)
	if err != nil {
		return err
	}
	id := w.project.String("id")
	if id == "" {
		return pewerr.Preconditionf(`The Windows installer needs a stable application id. Add it to project_info.json, for example: "id": "%s"`, uuid.NewString())
	}
	iscc, err := w.innoCompiler()
	if err != nil {
		return err
	}

	pkg, err := w.PackageDir()
	if err != nil {
		return err
	}
	script, err := templates.RenderInnoSetup(templates.InnoSetup{
		ID:             id,
		AppName:        w.project.Name(),
		AppVersion:     w.project.Version(),
		AppDir:         filepath.Dir(app),
		ExeName:        filepath.Base(app),
		OutputDir:      pkg,
		OutputFilename: packageBaseName(w.project),
	})
	if err != nil {
		return err
	}

	buildDir, err := w.BuildDir()
	if err != nil {
		return err
	}
	scriptFile := filepath.Join(buildDir, "innosetup_install_script.iss")
	if err := os.WriteFile(scriptFile, script, 0644); err != nil {
		return err
	}
	return w.RunCmd(ctx, iscc, scriptFile)
}
