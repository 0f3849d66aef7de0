package controller

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mvp-joe/pew/internal/files"
	"github.com/mvp-joe/pew/internal/pewerr"
	"github.com/mvp-joe/pew/internal/storage"
	"github.com/tidwall/gjson"
)

const (
	iosTemplateDir  = "PythonistaAppTemplate-master"
	iosXcodeDir     = "PythonistaAppTemplate"
	iosXcodeProject = "PythonistaAppTemplate.xcodeproj"
)

// Libraries bundled with the Python runtime reference these APIs, so the
// App Store requires usage descriptions even when the app never calls them.
var iosUsageDescriptions = map[string]string{
	"NSCalendarsUsageDescription":           "This app requires access to your calendar information.",
	"NSPhotoLibraryUsageDescription":        "This app requires access to your photo library.",
	"NSBluetoothPeripheralUsageDescription": "This app requires access to a bluetooth peripheral.",
}

// IOS fills a Pythonista-based Xcode project template with the app.
type IOS struct {
	Base
}

func newIOS(opts Options) *IOS {
	return &IOS{Base: newBase("ios", ".app", opts)}
}

// TemplateDir is where `pew init ios` unpacks the Xcode template.
func (i *IOS) TemplateDir() string {
	return filepath.Join(i.root, "native", "ios", iosTemplateDir)
}

// AppPath is the generated Xcode project inside the build dir.
func (i *IOS) AppPath() (string, error) {
	build, err := i.BuildDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(build, iosTemplateDir, iosXcodeProject), nil
}

// Init checks the Xcode template that `pew update ios` unpacked. The
// download itself belongs to update, which `pew init` runs first.
func (i *IOS) Init(ctx context.Context) error {
	template := i.TemplateDir()
	if !files.Exists(template) {
		return pewerr.Preconditionf("iOS support files not downloaded for this project. Run 'pew update ios' first.")
	}
	i.log.WithField("path", template).Info("Xcode template is ready")
	return nil
}

func (i *IOS) Build(ctx context.Context, plan *BuildPlan) error {
	template := i.TemplateDir()
	if !files.Exists(template) {
		return pewerr.Preconditionf("iOS support files not downloaded for this project. Run 'pew init ios' first.")
	}
	if err := i.requireTools("open"); err != nil {
		return err
	}

	buildDir, err := i.BuildDir()
	if err != nil {
		return err
	}
	if err := os.RemoveAll(buildDir); err != nil {
		return err
	}
	projectDir := filepath.Join(buildDir, iosTemplateDir)
	if err := files.CopyTree(template, projectDir); err != nil {
		return fmt.Errorf("failed to copy Xcode template: %w", err)
	}

	xcodeDir := filepath.Join(projectDir, iosXcodeDir)
	plistFile := filepath.Join(xcodeDir, "Info.plist")
	if files.Exists(plistFile) {
		if err := editPlist(plistFile, i.updateInfoPlist); err != nil {
			return err
		}
		if err := i.copyAppIcons(xcodeDir); err != nil {
			return err
		}
	}

	scriptDir := filepath.Join(projectDir, "Script")
	ignore := append([]string{}, plan.IgnorePaths...)
	for _, dir := range i.AssetDirs() {
		ignore = append(ignore, absPath(i.root, dir))
	}
	if err := i.planner.Stage(i.SourceDir(), scriptDir, ignore); err != nil {
		return err
	}
	info, err := i.GenerateProjectInfoFile()
	if err != nil {
		return err
	}
	if err := files.CopyFile(info, filepath.Join(scriptDir, filepath.Base(info))); err != nil {
		return err
	}
	dataFiles, err := i.AppDataFiles()
	if err != nil {
		return err
	}
	if err := i.planner.CopyDataFiles(dataFiles, projectDir); err != nil {
		return err
	}
	if err := i.copyLooseIcons(projectDir); err != nil {
		return err
	}

	// Only pure-Python requirements can be vendored this way.
	if len(plan.Requirements) > 0 {
		v, err := i.vendorer()
		if err != nil {
			return err
		}
		if err := v.Vendor(ctx, plan.Requirements, buildDir, scriptDir); err != nil {
			return err
		}
	}

	xcodeProject := filepath.Join(projectDir, iosXcodeProject)
	pbxproj := filepath.Join(xcodeProject, "project.pbxproj")
	if files.Exists(pbxproj) {
		data, err := os.ReadFile(pbxproj)
		if err != nil {
			return err
		}
		updated := strings.ReplaceAll(string(data), "My App", i.project.Name())
		if err := os.WriteFile(pbxproj, []byte(updated), 0644); err != nil {
			return err
		}
	} else {
		i.log.Warn("Unable to update the Xcode project file; you may need to change some settings manually")
	}

	if err := i.setState(storage.StateBuilt, xcodeProject); err != nil {
		return err
	}
	return i.RunCmd(ctx, "open", xcodeProject)
}

// updateInfoPlist applies the project's identity and presentation settings.
func (i *IOS) updateInfoPlist(doc map[string]any) error {
	p := i.project
	version := p.Version()
	short := strings.Split(version, ".")
	if len(short) > 3 {
		short = short[:3]
	}

	doc["CFBundleIdentifier"] = p.Identifier()
	doc["CFBundleName"] = p.Name()
	doc["CFBundleDisplayName"] = p.Name()
	doc["CFBundleVersion"] = version
	doc["CFBundleIconName"] = "AppIcon"
	doc["CFBundleShortVersionString"] = strings.Join(short, ".")
	doc["UIStatusBarHidden"] = p.ResolveBool("hide_status_bar", i.platform, true)
	for k, v := range iosUsageDescriptions {
		doc[k] = v
	}

	orientation := p.ResolveString("orientation", i.platform, "both")
	orientations := []string{orientation}
	if orientation == "all" || orientation == "sensor" || orientation == "both" {
		orientations = []string{"landscape", "portrait"}
	} else {
		doc["UIRequiresFullScreen"] = true
	}
	var supported []any
	for _, o := range orientations {
		switch o {
		case "landscape":
			supported = append(supported, "UIInterfaceOrientationLandscapeLeft", "UIInterfaceOrientationLandscapeRight")
		case "portrait":
			supported = append(supported, "UIInterfaceOrientationPortrait", "UIInterfaceOrientationPortraitUpsideDown")
		}
	}
	doc["UISupportedInterfaceOrientations"] = supported
	doc["UISupportedInterfaceOrientations~ipad"] = supported

	launch := p.ResolveStrings("launch_images", i.platform, nil)
	if len(launch) > 0 {
		delete(doc, "UILaunchStoryboardName")
		var images []any
		for _, name := range launch {
			path := filepath.Join(i.root, "icons", "ios", name)
			w, h, err := pngSize(path)
			if err != nil {
				return err
			}
			orient := "Portrait"
			// Sizes are always given as if the image were portrait.
			size := fmt.Sprintf("{%d, %d}", w, h)
			if w > h {
				orient = "Landscape"
				size = fmt.Sprintf("{%d, %d}", h, w)
			}
			images = append(images, map[string]any{
				"UILaunchImageMinimumOSVersion": "7.0",
				"UILaunchImageOrientation":      orient,
				"UILaunchImageName":             strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)),
				"UILaunchImageSize":             size,
			})
		}
		doc["UILaunchImages"] = images
	}
	return nil
}

// copyAppIcons fills the asset catalog's AppIcon set from icons/ios,
// matching each slot by the pixel size suffix of the icon file name
// (icon-120.png fills a 60pt @2x slot).
func (i *IOS) copyAppIcons(xcodeDir string) error {
	icons, ok := i.project.Resolve("icons", i.platform, nil).([]any)
	if !ok || len(icons) == 0 {
		return nil
	}
	var names []string
	for _, icon := range icons {
		if s, ok := icon.(string); ok {
			names = append(names, s)
		}
	}

	appIconDir := filepath.Join(xcodeDir, "Assets.xcassets", "AppIcon.appiconset")
	contents, err := os.ReadFile(filepath.Join(appIconDir, "Contents.json"))
	if err != nil {
		return fmt.Errorf("failed to read app icon set: %w", err)
	}

	var copyErr error
	gjson.GetBytes(contents, "images").ForEach(func(_, slot gjson.Result) bool {
		size := slot.Get("size").String()
		if size == "" {
			return true
		}
		scale := 1.0
		if s := slot.Get("scale").String(); s != "" {
			if f, err := strconv.ParseFloat(strings.TrimSuffix(s, "x"), 64); err == nil {
				scale = f
			}
		}
		width, err := strconv.ParseFloat(strings.SplitN(size, "x", 2)[0], 64)
		if err != nil {
			return true
		}
		pixels := int(math.Round(width * scale))

		best := bestIcon(names, pixels)
		if best == "" {
			i.log.Warnf("Could not find icon for size %d", pixels)
			return true
		}
		filename := slot.Get("filename").String()
		if filename == "" {
			i.log.Warnf("No filename listed for icon size %d", pixels)
			return true
		}
		copyErr = files.CopyFile(filepath.Join(i.root, "icons", "ios", best), filepath.Join(appIconDir, filename))
		return copyErr == nil
	})
	return copyErr
}

// bestIcon returns the icon whose size suffix equals pixels, else the
// smallest one larger than pixels, else "".
func bestIcon(names []string, pixels int) string {
	best, bestSize := "", 0
	for _, name := range names {
		base := strings.TrimSuffix(name, filepath.Ext(name))
		dash := strings.LastIndex(base, "-")
		size, err := strconv.Atoi(base[dash+1:])
		if err != nil {
			continue
		}
		if size == pixels {
			return name
		}
		if size > pixels && (best == "" || size < bestSize) {
			best, bestSize = name, size
		}
	}
	return best
}

// copyLooseIcons copies icons/ios/* next to the Xcode project.
func (i *IOS) copyLooseIcons(projectDir string) error {
	matches, err := filepath.Glob(filepath.Join(i.root, "icons", "ios", "*"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if info, err := os.Stat(m); err != nil || info.IsDir() {
			continue
		}
		if err := files.CopyFile(m, filepath.Join(projectDir, filepath.Base(m))); err != nil {
			return err
		}
	}
	return nil
}

// Dist opens the generated Xcode project for archiving. It never rebuilds;
// a missing project means `pew build ios` has not run.
func (i *IOS) Dist(ctx context.Context) error {
	xcodeProject, err := requireApp(i)
	if err != nil {
		return err
	}
	if err := i.requireTools("open"); err != nil {
		return err
	}
	i.log.Info("Archive the app from Xcode with Product > Archive")
	return i.RunCmd(ctx, "open", xcodeProject)
}

// Run regenerates and opens the Xcode project; iOS apps cannot be
// launched from here.
func (i *IOS) Run(ctx context.Context, args []string) error {
	return i.Build(ctx, NewBuildPlan(i.project, i.platform, i.opts.Config, false, false, args))
}
