package codesign

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// repackZip rewrites archivePath from the (possibly re-signed) files in
// srcDir, keeping the original entry order, names, modes and compression.
func repackZip(archivePath, srcDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	tmpPath := archivePath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	if err := writeArchive(out, r.File, srcDir); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	r.Close()
	if err := os.Rename(tmpPath, archivePath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func writeArchive(w io.Writer, entries []*zip.File, srcDir string) error {
	zw := zip.NewWriter(w)
	for _, f := range entries {
		header := f.FileHeader
		if f.FileInfo().IsDir() {
			if _, err := zw.CreateHeader(&header); err != nil {
				return err
			}
			continue
		}

		data, err := entryData(f, srcDir)
		if err != nil {
			return err
		}
		// Sizes and CRC are recomputed by the writer.
		header.CompressedSize64 = 0
		header.UncompressedSize64 = 0
		header.CRC32 = 0

		ew, err := zw.CreateHeader(&header)
		if err != nil {
			return err
		}
		if _, err := ew.Write(data); err != nil {
			return err
		}
	}
	return zw.Close()
}

// entryData reads the extracted content of f. A symlink entry stores its
// link target, not the file it points to.
func entryData(f *zip.File, srcDir string) ([]byte, error) {
	path := filepath.Join(srcDir, f.Name)
	if f.Mode()&os.ModeSymlink != 0 {
		link, err := os.Readlink(path)
		if err != nil {
			return nil, fmt.Errorf("missing extracted link %s: %w", f.Name, err)
		}
		return []byte(link), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("missing extracted entry %s: %w", f.Name, err)
	}
	return data, nil
}
