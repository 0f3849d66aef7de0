// Package templates holds the files pew writes into projects and build
// trees: new-project skeletons, the dmgbuild settings script and the Inno
// Setup installer script.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"text/template"
)

//go:embed files
var content embed.FS

const projectRoot = "files/project"

// DMGSettings fills dmgbuild_settings.py.tmpl.
type DMGSettings struct {
	AppPath string
}

// InnoSetup fills innosetup.iss.tmpl.
type InnoSetup struct {
	ID             string
	AppName        string
	AppVersion     string
	AppDir         string
	ExeName        string
	OutputDir      string
	OutputFilename string
}

// RenderDMGSettings returns the dmgbuild settings script for an app bundle.
func RenderDMGSettings(s DMGSettings) ([]byte, error) {
	return render("dmgbuild_settings.py.tmpl", s)
}

// RenderInnoSetup returns the Inno Setup script for a Windows build.
func RenderInnoSetup(s InnoSetup) ([]byte, error) {
	return render("innosetup.iss.tmpl", s)
}

func render(name string, data any) ([]byte, error) {
	tmpl, err := template.ParseFS(content, path.Join("files", name))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// ProjectTemplates lists the names accepted by CopyProject.
func ProjectTemplates() []string {
	entries, err := fs.ReadDir(content, projectRoot)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// CopyProject writes the named project template into dest, which must not exist.
func CopyProject(name, dest string) error {
	root := path.Join(projectRoot, name)
	if _, err := fs.Stat(content, root); err != nil {
		return fmt.Errorf("unknown project template %q (available: %v)", name, ProjectTemplates())
	}
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("%s already exists", dest)
	}

	return fs.WalkDir(content, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, filepath.FromSlash(rel))
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := content.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
}
