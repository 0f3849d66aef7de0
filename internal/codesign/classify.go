package codesign

import (
	"archive/zip"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Kind classifies a path inside a bundle that needs its own signature.
type Kind int

const (
	KindExecutable Kind = iota
	KindLibrary
	KindArchive
	KindFramework
	KindBundle
)

func (k Kind) String() string {
	switch k {
	case KindExecutable:
		return "executable"
	case KindLibrary:
		return "library"
	case KindArchive:
		return "archive"
	case KindFramework:
		return "framework"
	case KindBundle:
		return "bundle"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// container reports whether items may nest inside this kind.
func (k Kind) container() bool {
	return k == KindFramework || k == KindBundle
}

// Item is one signable path. Rel is slash-separated and relative to the
// bundle root; the root itself has Rel "".
type Item struct {
	Path string
	Rel  string
	Kind Kind
}

// Patterns are matched against slash-separated paths relative to the bundle.
var (
	frameworkPattern = glob.MustCompile("**.framework", '/')
	bundlePattern    = glob.MustCompile("**.{app,bundle,plugin,appex,xpc}", '/')
	libraryPattern   = glob.MustCompile("**.{dylib,so}", '/')
	archivePattern   = glob.MustCompile("**.zip", '/')
	skipPattern      = glob.MustCompile("{_CodeSignature,**/_CodeSignature}", '/')
)

// Classify walks root and returns every nested item needing a signature.
// Symlinks are skipped; their targets are signed where they live.
func Classify(root string) ([]Item, error) {
	var items []Item

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if d.IsDir() {
			switch {
			case skipPattern.Match(rel):
				return filepath.SkipDir
			case frameworkPattern.Match(rel):
				items = append(items, Item{Path: path, Rel: rel, Kind: KindFramework})
			case bundlePattern.Match(rel):
				items = append(items, Item{Path: path, Rel: rel, Kind: KindBundle})
			}
			return nil
		}

		switch {
		case libraryPattern.Match(rel):
			items = append(items, Item{Path: path, Rel: rel, Kind: KindLibrary})
		case archivePattern.Match(rel):
			signable, err := archiveHasBinaries(path)
			if err != nil {
				return err
			}
			if signable {
				items = append(items, Item{Path: path, Rel: rel, Kind: KindArchive})
			}
		default:
			info, err := d.Info()
			if err != nil {
				return err
			}
			if info.Mode().IsRegular() && info.Mode().Perm()&0111 != 0 {
				items = append(items, Item{Path: path, Rel: rel, Kind: KindExecutable})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to classify %s: %w", root, err)
	}

	return items, nil
}

// archiveHasBinaries reports whether a zip holds libraries or executables.
func archiveHasBinaries(path string) (bool, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		// Not every .zip in a bundle is a real archive.
		return false, nil
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := strings.TrimPrefix(f.Name, "./")
		if libraryPattern.Match(name) || f.Mode().Perm()&0111 != 0 {
			return true, nil
		}
	}
	return false, nil
}

// exists is a small helper shared by the orchestrator.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
