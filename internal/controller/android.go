package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/mvp-joe/pew/internal/config"
	"github.com/mvp-joe/pew/internal/files"
	"github.com/mvp-joe/pew/internal/pewerr"
	"github.com/mvp-joe/pew/internal/storage"
)

const (
	defaultAndroidSDK        = "29"
	defaultAndroidBuildTools = "29.0.2"
	defaultAndroidArch       = "armeabi-v7a"
	androidNDKVersion        = "r21"
	antVersion               = "1.9.9"
	androidBootstrap         = "webview"
)

var (
	defaultAndroidRequirements = []string{"openssl", "python3", "pyjnius", "genericndkbuild"}
	baselineAndroidPermissions = []string{"WRITE_EXTERNAL_STORAGE", "ACCESS_NETWORK_STATE"}
)

// Android builds APKs with python-for-android (p4a).
type Android struct {
	Base
}

func newAndroid(opts Options) *Android {
	a := &Android{Base: newBase("android", ".apk", opts)}
	a.env = a.Env
	return a
}

// SDKInfo returns the target SDK and build-tools versions.
func (a *Android) SDKInfo() (sdk, buildTools string) {
	sdk, buildTools = defaultAndroidSDK, defaultAndroidBuildTools
	if v := a.project.LookupString("sdks", "android", "target_sdk"); v != "" {
		sdk = v
	}
	if v := a.project.LookupString("sdks", "android", "build_tools"); v != "" {
		buildTools = v
	}
	return sdk, buildTools
}

// Root is the directory holding the Android SDK, NDK and ant.
func (a *Android) Root() string {
	if a.opts.Global != nil {
		return a.opts.Global.AndroidRoot()
	}
	if dir, err := config.PewDir(); err == nil {
		return filepath.Join(dir, "native", "android")
	}
	return filepath.Join(".pyeverywhere", "native", "android")
}

// Env returns the variables p4a and the Android tools expect.
func (a *Android) Env() []string {
	sdk, buildTools := a.SDKInfo()
	root := a.Root()
	sdkPlatform := "linux"
	if runtime.GOOS == "darwin" {
		sdkPlatform = "macosx"
	}
	sdkDir := fmt.Sprintf("%s/android-sdk-%s", root, sdkPlatform)
	ndkDir := fmt.Sprintf("%s/android-ndk-%s", root, androidNDKVersion)
	antHome := fmt.Sprintf("%s/apache-ant-%s", root, antVersion)

	home, _ := os.UserHomeDir()
	path := strings.Join([]string{
		os.Getenv("PATH"),
		ndkDir,
		filepath.Join(home, ".local", "bin"),
		sdkDir + "/platform-tools",
		sdkDir + "/tools",
		antHome + "/bin",
	}, string(os.PathListSeparator))

	return []string{
		"ANDROIDAPI=" + sdk,
		"ANDROIDBUILDTOOLSVER=" + buildTools,
		"ANDROID_ROOT=" + root,
		"ANDROIDSDK=" + sdkDir,
		"ANDROIDNDKVER=" + androidNDKVersion,
		"ANDROIDNDK=" + ndkDir,
		"ANT_VERSION=" + antVersion,
		"ANT_HOME=" + antHome,
		"PATH=" + path,
	}
}

// Arch is arm64-v8a when "64bit" is among the extra arguments.
func (a *Android) Arch() string {
	for _, arg := range a.opts.ExtraArgs {
		if arg == "64bit" {
			return "arm64-v8a"
		}
	}
	return defaultAndroidArch
}

func (a *Android) fileName() string {
	return strings.ReplaceAll(a.project.Name(), " ", "")
}

// DistName names the p4a distribution built by Init.
func (a *Android) DistName() string {
	return a.fileName() + "_dist"
}

// PythonDistFolder is where p4a keeps the cross-compiled distribution.
func (a *Android) PythonDistFolder() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".python-for-android", "dists", a.DistName())
}

// AppPath is the most recently modified APK in the dist dir, or the
// expected debug APK when none exists.
func (a *Android) AppPath() (string, error) {
	dist, err := a.DistDir()
	if err != nil {
		return "", err
	}
	matches, _ := filepath.Glob(filepath.Join(dist, "*.apk"))
	var newest string
	var newestTime time.Time
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest, newestTime = m, info.ModTime()
		}
	}
	if newest != "" {
		return newest, nil
	}
	return filepath.Join(dist, fmt.Sprintf("%s-%s-debug.apk", a.fileName(), a.project.Version())), nil
}

// Permissions is the deduplicated union of the requested extra
// permissions and the baseline, sorted.
func Permissions(extra []string) []string {
	set := map[string]bool{}
	for _, p := range append(append([]string{}, extra...), baselineAndroidPermissions...) {
		if p = strings.TrimSpace(p); p != "" {
			set[p] = true
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Init creates the p4a distribution unless it already exists.
func (a *Android) Init(ctx context.Context) error {
	if files.Exists(a.PythonDistFolder()) {
		a.log.WithField("path", a.PythonDistFolder()).Info("Python distribution already exists")
		return nil
	}
	if err := a.requireTools("p4a"); err != nil {
		return err
	}
	args := []string{"create", "--arch", a.Arch(), "--dist_name", a.DistName(), "--bootstrap", androidBootstrap}
	if reqs := a.project.ResolveStrings("requirements", a.platform, defaultAndroidRequirements); len(reqs) > 0 {
		args = append(args, "--requirements", strings.Join(reqs, ","))
	}
	return a.RunCmd(ctx, "p4a", args...)
}

// Build validates the project, stages the private tree and runs p4a apk.
// Every validation happens before the staging tree is touched.
func (a *Android) Build(ctx context.Context, plan *BuildPlan) error {
	buildNumber, err := a.project.BuildNumber()
	if err != nil {
		return &pewerr.ConfigError{
			Path:    a.project.Path(),
			Message: "Android builds require build_number to be set to an integer in addition to the version field",
			Err:     err,
		}
	}

	args, err := a.apkArgs(plan, buildNumber)
	if err != nil {
		return err
	}
	if err := a.requireTools("p4a"); err != nil {
		return err
	}

	buildDir, err := a.BuildDir()
	if err != nil {
		return err
	}
	if err := a.planner.Stage(a.SourceDir(), buildDir, plan.IgnorePaths); err != nil {
		return err
	}
	if _, err := a.GenerateProjectInfoFile(); err != nil {
		return err
	}
	dataFiles, err := a.AppDataFiles()
	if err != nil {
		return err
	}
	if err := a.planner.CopyDataFiles(dataFiles, buildDir); err != nil {
		return err
	}
	if packages := a.project.ResolveStrings("packages", a.platform, nil); len(packages) > 0 {
		v, err := a.vendorer()
		if err != nil {
			return err
		}
		if err := v.Vendor(ctx, packages, buildDir, buildDir); err != nil {
			return err
		}
	}

	if err := a.RunCmd(ctx, "p4a", args...); err != nil {
		return fmt.Errorf("p4a apk failed: %w", err)
	}

	apk, err := a.collectAPKs()
	if err != nil {
		return err
	}
	return a.setState(storage.StateBuilt, apk)
}

// apkArgs assembles the p4a apk argument list.
func (a *Android) apkArgs(plan *BuildPlan, buildNumber int) ([]string, error) {
	buildDir, err := a.BuildDir()
	if err != nil {
		return nil, err
	}
	opts := plan.ExtraOptions

	args := []string{"apk",
		"--window",
		"--bootstrap", androidBootstrap,
		"--package", a.project.Identifier(),
		"--name", a.fileName(),
		"--dist_name", a.DistName(),
		"--version", a.project.Version(),
		"--private", buildDir,
		"--arch", a.Arch(),
	}
	for _, src := range optionStrings(opts, "add_source") {
		args = append(args, "--add-source", absPath(a.root, src))
	}
	if minsdk := optionString(opts, "minsdk"); minsdk != "" {
		args = append(args, "--minsdk", minsdk, "--ndk-api", minsdk)
	}
	if sdk := optionString(opts, "sdk"); sdk != "" {
		args = append(args, "--android-api", sdk)
	}
	for _, svc := range optionStrings(opts, "services") {
		args = append(args, "--service", svc)
	}
	if fp := optionString(opts, "fileprovider_paths_filename"); fp != "" {
		args = append(args, "--fileprovider-paths", filepath.Join(a.SourceDir(), fp))
	}
	for _, perm := range Permissions(optionStrings(opts, "extra_permissions")) {
		args = append(args, "--permission", perm)
	}

	reqs := plan.Requirements
	if len(reqs) == 0 {
		reqs = defaultAndroidRequirements
	}
	args = append(args, "--requirements", strings.Join(reqs, ","))
	args = append(args, "--numeric-version", fmt.Sprint(buildNumber))

	icon, err := a.icon()
	if err != nil {
		return nil, err
	}
	if icon != "" {
		args = append(args, "--icon", icon)
	}
	if p := a.existingFile("whitelist_file"); p != "" {
		args = append(args, "--whitelist", p)
	}
	if p := a.existingFile("launch_images"); p != "" {
		args = append(args, "--presplash", p)
	}
	if orientation := a.project.ResolveString("orientation", a.platform, "sensor"); orientation != "" {
		args = append(args, "--orientation", orientation)
	}
	if p := a.existingFile("intent_filters"); p != "" {
		args = append(args, "--intent-filters", p)
	}

	if plan.Release {
		signing, err := a.releaseSigning()
		if err != nil {
			return nil, err
		}
		args = append(args, signing...)
		args = append(args, "--release")
	}
	return args, nil
}

// icon resolves the launcher icon, accepting a bare file name under
// icons/android for older projects.
func (a *Android) icon() (string, error) {
	name, ok := a.project.Resolve("icons", a.platform, nil).(string)
	if !ok || name == "" {
		return "", nil
	}
	icon := absPath(a.root, name)
	if !files.Exists(icon) {
		icon = filepath.Join(a.root, "icons", "android", name)
		a.log.Warn("Specifying android icons by file name only is deprecated; use a path relative to project_info.json")
	}
	if !files.Exists(icon) {
		return "", pewerr.Preconditionf("Could not find specified icon file: %s", name)
	}
	return icon, nil
}

func (a *Android) existingFile(key string) string {
	name, ok := a.project.Resolve(key, a.platform, nil).(string)
	if !ok || name == "" {
		return ""
	}
	p := absPath(a.root, name)
	if !files.Exists(p) {
		return ""
	}
	return p
}

// releaseSigning returns the keystore arguments for a release build. The
// password comes from the descriptor or PEW_ANDROID_KEYSTORE_PASSWORD.
func (a *Android) releaseSigning() ([]string, error) {
	signing := a.project.ResolveMap("codesign", a.platform)
	if signing == nil {
		a.log.Warn("Release build without a codesign.android block; the APK will be unsigned")
		return nil, nil
	}
	keystore, _ := signing["keystore"].(string)
	alias, _ := signing["alias"].(string)
	if keystore == "" || alias == "" {
		return nil, pewerr.Configf("codesign.android requires keystore and alias")
	}
	passwd, _ := signing["passwd"].(string)
	if passwd == "" {
		passwd = a.getenv("PEW_ANDROID_KEYSTORE_PASSWORD")
	}
	if passwd == "" {
		return nil, pewerr.Preconditionf("Release signing needs the keystore password: set codesign.android.passwd or PEW_ANDROID_KEYSTORE_PASSWORD")
	}
	return []string{"--keystore", absPath(a.root, keystore), "--signkey", alias, "--keystorepw", passwd}, nil
}

// collectAPKs moves the APKs p4a wrote into the project root to the dist
// dir and returns the last one moved.
func (a *Android) collectAPKs() (string, error) {
	dist, err := a.DistDir()
	if err != nil {
		return "", err
	}
	apks, err := filepath.Glob(filepath.Join(a.root, "*.apk"))
	if err != nil {
		return "", err
	}
	if len(apks) == 0 {
		return "", errors.New("p4a finished but produced no APK in the project directory")
	}
	sort.Strings(apks)
	var last string
	for _, apk := range apks {
		last = filepath.Join(dist, filepath.Base(apk))
		if err := files.Move(apk, last); err != nil {
			return "", fmt.Errorf("failed to move %s to %s: %w", apk, dist, err)
		}
	}
	return last, nil
}

// Dist copies the built APK into the package dir.
func (a *Android) Dist(ctx context.Context) error {
	apk, err := requireApp(a)
	if err != nil {
		return err
	}
	pkg, err := a.PackageDir()
	if err != nil {
		return err
	}
	return files.CopyFile(apk, filepath.Join(pkg, filepath.Base(apk)))
}

// Run installs the APK on the attached device and launches it.
func (a *Android) Run(ctx context.Context, args []string) error {
	apk, err := requireApp(a)
	if err != nil {
		return err
	}
	if err := a.requireTools("adb"); err != nil {
		return err
	}
	if err := a.RunCmd(ctx, "adb", "install", "-r", apk); err != nil {
		return err
	}
	return a.RunCmd(ctx, "adb", "shell", "monkey", "-p", a.project.Identifier(), "1")
}

func optionString(opts map[string]any, key string) string {
	switch v := opts[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func optionStrings(opts map[string]any, key string) []string {
	switch v := opts[key].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}
