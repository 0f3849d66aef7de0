package controller

import (
	"fmt"
	"image/png"
	"os"

	"howett.net/plist"
)

// editPlist decodes the property list at path, applies edit and writes it
// back in its original format.
func editPlist(path string, edit func(map[string]any) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc map[string]any
	format, err := plist.Unmarshal(data, &doc)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if err := edit(doc); err != nil {
		return err
	}
	out, err := plist.MarshalIndent(doc, format, "\t")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return os.WriteFile(path, out, 0644)
}

// pngSize returns the pixel dimensions of a PNG file.
func pngSize(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("%s is not a png image: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}
