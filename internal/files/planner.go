// Package files plans and copies the file sets a build bundles: the staged
// source tree and the static asset directories.
package files

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// DataFile maps one destination subdirectory of the bundle to the source
// files copied into it.
type DataFile struct {
	Dest    string
	Sources []string
}

// Planner stages source trees and asset directories into a build tree.
type Planner struct {
	Log logrus.FieldLogger
}

// NewPlanner creates a planner logging to log.
func NewPlanner(log logrus.FieldLogger) *Planner {
	return &Planner{Log: log}
}

// Stage replaces dest with a copy of src. Any path whose full source path
// contains one of the ignore strings is skipped; a skipped directory takes
// its whole subtree with it. Matching is plain substring matching.
func (p *Planner) Stage(src, dest string, ignore []string) error {
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("failed to clear %s: %w", dest, err)
	}

	p.Log.WithField("dest", dest).Info("Copying source files to build tree")
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		if path != src && matchesAny(path, ignore) {
			p.Log.WithField("path", path).Debug("Ignoring")
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(target, info.Mode().Perm()|0700); err != nil {
				return err
			}
			// The root's own contents are ignored when the root path itself matches.
			if path == src && matchesAny(path, ignore) {
				p.Log.WithField("path", path).Debug("Ignoring")
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				p.Log.WithField("path", path).Debug("Skipping symlink")
				return nil
			}
		}

		p.Log.WithField("path", path).Debug("Copying")
		return CopyFile(path, target)
	})
}

// CollectDataFiles walks each asset directory (relative to root) and returns
// one DataFile per directory holding at least one non-dotfile. The
// destination is the directory path relative to root with every
// "<sourcePrefix>/" removed. Missing asset directories contribute nothing.
func (p *Planner) CollectDataFiles(root string, assetDirs []string, sourcePrefix string) ([]DataFile, error) {
	var out []DataFile
	strip := sourcePrefix + "/"

	for _, assetDir := range assetDirs {
		base := assetDir
		if !filepath.IsAbs(base) {
			base = filepath.Join(root, assetDir)
		}
		if _, err := os.Stat(base); err != nil {
			p.Log.WithField("dir", assetDir).Warn("Asset directory does not exist")
			continue
		}

		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}

			entries, err := os.ReadDir(path)
			if err != nil {
				return err
			}
			var sources []string
			for _, e := range entries {
				if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
					continue
				}
				sources = append(sources, filepath.Join(path, e.Name()))
			}
			if len(sources) == 0 {
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil || strings.HasPrefix(rel, "..") {
				rel = path
			}
			dest := strings.ReplaceAll(filepath.ToSlash(rel), strip, "")
			out = append(out, DataFile{Dest: dest, Sources: sources})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk asset directory %s: %w", assetDir, err)
		}
	}

	return out, nil
}

// CopyDataFiles copies every DataFile into destRoot/<Dest>, creating
// directories as needed and overwriting existing files.
func (p *Planner) CopyDataFiles(dataFiles []DataFile, destRoot string) error {
	for _, df := range dataFiles {
		dir := filepath.Join(destRoot, filepath.FromSlash(df.Dest))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		for _, src := range df.Sources {
			if err := CopyFile(src, filepath.Join(dir, filepath.Base(src))); err != nil {
				return err
			}
		}
	}
	return nil
}

func matchesAny(path string, ignore []string) bool {
	for _, s := range ignore {
		if s != "" && strings.Contains(path, s) {
			return true
		}
	}
	return false
}
