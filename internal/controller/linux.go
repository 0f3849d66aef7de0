package controller

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mvp-joe/pew/internal/storage"
)

// Linux builds a PyInstaller folder app and ships it as a tarball.
type Linux struct {
	Base
}

func newLinux(opts Options) *Linux {
	return &Linux{Base: newBase("linux", "", opts)}
}

// AppPath is the executable inside the one-folder build.
func (l *Linux) AppPath() (string, error) {
	dist, err := l.DistDir()
	if err != nil {
		return "", err
	}
	name := l.project.Name()
	return filepath.Join(dist, name, name), nil
}

func (l *Linux) Build(ctx context.Context, plan *BuildPlan) error {
	if err := l.validateBuildTool(); err != nil {
		return err
	}
	if err := l.pyinstallerBuild(ctx); err != nil {
		return err
	}
	app, err := l.AppPath()
	if err != nil {
		return err
	}
	return l.setState(storage.StateBuilt, app)
}

// Dist archives the app folder to {package}/{name}-{version}.tar.gz.
func (l *Linux) Dist(ctx context.Context) error {
	app, err := requireApp(l)
	if err != nil {
		return err
	}
	pkg, err := l.PackageDir()
	if err != nil {
		return err
	}
	out := filepath.Join(pkg, packageBaseName(l.project)+".tar.gz")
	l.log.WithField("output", out).Info("Creating archive")
	return writeTarGz(filepath.Dir(app), out)
}

// writeTarGz archives srcDir so that it unpacks into a directory of the
// same base name.
func writeTarGz(srcDir, dest string) (err error) {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dest)
		}
	}()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	prefix := filepath.Base(srcDir)

	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(prefix, rel))
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
	if walkErr != nil {
		return walkErr
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
