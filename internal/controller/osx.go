package controller

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mvp-joe/pew/internal/codesign"
	"github.com/mvp-joe/pew/internal/files"
	"github.com/mvp-joe/pew/internal/notarize"
	"github.com/mvp-joe/pew/internal/pewerr"
	"github.com/mvp-joe/pew/internal/storage"
	"github.com/mvp-joe/pew/internal/templates"
)

// OSX builds a .app with PyInstaller and carries it through signing,
// notarization and disk image creation. The ledger tracks how far the
// current build has progressed: unbuilt, built, signed, notarized.
type OSX struct {
	Base
}

func newOSX(opts Options) *OSX {
	return &OSX{Base: newBase("osx", ".app", opts)}
}

// Build runs PyInstaller and signs the result when asked to or when the
// project has a codesign.osx block.
func (o *OSX) Build(ctx context.Context, plan *BuildPlan) error {
	if err := o.validateBuildTool(); err != nil {
		return err
	}
	args := []string{"--windowed", "--osx-bundle-identifier", o.project.Identifier()}
	if err := o.pyinstallerBuild(ctx, args...); err != nil {
		return err
	}

	app, err := o.AppPath()
	if err != nil {
		return err
	}
	plistFile := filepath.Join(app, "Contents", "Info.plist")
	if files.Exists(plistFile) {
		if err := editPlist(plistFile, allowLocalhost); err != nil {
			return err
		}
	}
	if err := o.setState(storage.StateBuilt, app); err != nil {
		return err
	}

	if _, hasSigning := o.project.Lookup("codesign", "osx"); plan.Sign || hasSigning {
		return o.Codesign(ctx)
	}
	return nil
}

// allowLocalhost lets the embedded web view load the app's local server.
func allowLocalhost(doc map[string]any) error {
	doc["NSAppTransportSecurity"] = map[string]any{
		"NSAllowsArbitraryLoads": true,
		"NSExceptionDomains": map[string]any{
			"localhost": map[string]any{
				"NSExceptionAllowsInsecureHTTPLoads": true,
			},
		},
	}
	return nil
}

// identity is MAC_CODESIGN_IDENTITY, else codesign.osx.identity.
func (o *OSX) identity() (string, error) {
	if id := o.getenv("MAC_CODESIGN_IDENTITY"); id != "" {
		return id, nil
	}
	if id := o.project.LookupString("codesign", "osx", "identity"); id != "" {
		return id, nil
	}
	return "", pewerr.Preconditionf("No code signing identity: set MAC_CODESIGN_IDENTITY or codesign.osx.identity")
}

// Codesign signs the app bundle inside-out and verifies it.
func (o *OSX) Codesign(ctx context.Context) error {
	app, err := requireApp(o)
	if err != nil {
		return err
	}
	if err := o.requireTools("codesign"); err != nil {
		return err
	}
	identity, err := o.identity()
	if err != nil {
		return err
	}
	var entitlements string
	if e := o.project.LookupString("codesign", "osx", "entitlements"); e != "" {
		entitlements = absPath(o.root, e)
		if !files.Exists(entitlements) {
			return pewerr.Preconditionf("Entitlements file %s does not exist", entitlements)
		}
	}

	if err := removeSources(filepath.Join(app, "Contents", "Resources", "lib")); err != nil {
		return err
	}

	orch := &codesign.Orchestrator{
		Runner:       o.opts.Runner,
		Log:          o.log,
		Identity:     identity,
		Entitlements: entitlements,
	}
	if err := orch.Run(ctx, app); err != nil {
		return err
	}
	return o.setState(storage.StateSigned, app)
}

// removeSources deletes .py and .pyo files under dir; running one from
// inside a signed bundle would modify it.
func removeSources(dir string) error {
	if !files.Exists(dir) {
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext := filepath.Ext(path); ext == ".py" || ext == ".pyo" {
			return os.Remove(path)
		}
		return nil
	})
}

// Notarize zips the signed app and submits it. With Wait it polls to a
// verdict, staples the ticket on success and records the outcome.
func (o *OSX) Notarize(ctx context.Context, opts NotarizeOptions) error {
	app, err := requireApp(o)
	if err != nil {
		return err
	}
	state, err := o.state()
	if err != nil {
		return err
	}
	if o.opts.Ledger != nil && !state.AtLeast(storage.StateSigned) {
		return pewerr.Preconditionf("The application has not been signed (state: %s). Please run `pew codesign osx` first.", state)
	}
	if err := o.requireTools("ditto", "xcrun"); err != nil {
		return err
	}
	creds, err := notarize.CredentialsFromEnv(o.getenv)
	if err != nil {
		return err
	}

	buildDir, err := o.BuildDir()
	if err != nil {
		return err
	}
	archive := filepath.Join(buildDir, o.project.Name()+".zip")
	_ = os.Remove(archive)
	if err := o.RunCmd(ctx, "ditto", "-c", "-k", "--keepParent", app, archive); err != nil {
		return fmt.Errorf("failed to zip application for notarization: %w", err)
	}

	poller := notarize.NewPoller(o.opts.Runner, o.log, creds)
	if opts.Interval > 0 {
		poller.Interval = opts.Interval
	}
	if opts.Timeout > 0 {
		poller.Timeout = opts.Timeout
	}

	id, err := poller.Submit(ctx, archive)
	if err != nil {
		return err
	}
	if o.opts.Ledger != nil {
		err := o.opts.Ledger.RecordSubmission(storage.Submission{
			RequestID: id,
			Platform:  o.platform,
			Config:    o.opts.Config,
			Artifact:  archive,
			Status:    string(notarize.StatusInProgress),
		})
		if err != nil {
			return err
		}
	}
	if !opts.Wait {
		fmt.Printf("Notarization request submitted: %s\n", id)
		fmt.Printf("Check its progress with `xcrun notarytool info %s` or re-run with --wait.\n", id)
		return nil
	}

	status, waitErr := poller.Wait(ctx, id)
	if err := o.recordStatus(id, status, waitErr); err != nil {
		return err
	}
	if waitErr != nil {
		return waitErr
	}

	if err := poller.Staple(ctx, app); err != nil {
		return err
	}
	return o.setState(storage.StateNotarized, app)
}

func (o *OSX) recordStatus(id string, status notarize.Status, waitErr error) error {
	if o.opts.Ledger == nil {
		return nil
	}
	value := string(status)
	if pewerr.IsTimeout(waitErr) {
		value = "Timeout"
	} else if value == "" && waitErr != nil {
		value = "Error"
	}
	if err := o.opts.Ledger.UpdateSubmission(id, value); err != nil && !errors.Is(err, storage.ErrSubmissionNotFound) {
		return err
	}
	return nil
}

// Dist renders the dmgbuild settings and builds a disk image in the
// package dir, replacing any previous image.
func (o *OSX) Dist(ctx context.Context) error {
	app, err := requireApp(o)
	if err != nil {
		return err
	}
	if err := o.requireTools("dmgbuild"); err != nil {
		return err
	}
	settings, err := templates.RenderDMGSettings(templates.DMGSettings{AppPath: app})
	if err != nil {
		return err
	}
	buildDir, err := o.BuildDir()
	if err != nil {
		return err
	}
	settingsFile := filepath.Join(buildDir, "dmgbuild_settings.py")
	if err := os.WriteFile(settingsFile, settings, 0644); err != nil {
		return err
	}

	pkg, err := o.PackageDir()
	if err != nil {
		return err
	}
	output := filepath.Join(pkg, packageBaseName(o.project)+".dmg")
	if err := os.Remove(output); err != nil && !os.IsNotExist(err) {
		return err
	}
	volume := o.project.Name() + "-" + o.project.Version()
	return o.RunCmd(ctx, "dmgbuild", "-s", settingsFile, volume, output)
}
