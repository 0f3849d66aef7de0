package files

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ExtractZip unpacks archivePath into targetDir, overwriting existing files.
// Symlink entries are recreated as links and must point inside targetDir.
// Extracted files are always owner-writable.
func ExtractZip(archivePath, targetDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	root := filepath.Clean(targetDir) + string(os.PathSeparator)
	for _, f := range r.File {
		target := filepath.Join(targetDir, f.Name)
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("illegal file path in archive: %s", f.Name)
		}

		switch {
		case f.FileInfo().IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
		case f.Mode()&os.ModeSymlink != 0:
			if err := extractSymlink(f, target, root); err != nil {
				return err
			}
		default:
			if err := extractFile(f, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	_ = os.Remove(target)
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode|0200)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", target, err)
	}
	defer out.Close()

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open file in archive: %w", err)
	}
	defer rc.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("failed to write file %s: %w", target, err)
	}
	return nil
}

func extractSymlink(f *zip.File, target, root string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	link, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	resolved := filepath.Join(filepath.Dir(target), string(link))
	if filepath.IsAbs(string(link)) || !strings.HasPrefix(resolved, root) {
		return fmt.Errorf("illegal symlink in archive: %s -> %s", f.Name, link)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	_ = os.Remove(target)
	return os.Symlink(string(link), target)
}
