package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// KnownSettings documents the global settings pew itself reads.
// `pew set` accepts any key; these are the ones with meaning.
var KnownSettings = map[string]string{
	"android.root":   "Directory holding the Android SDK, NDK and Ant (default ~/.pyeverywhere/native/android)",
	"browser.opener": "Command `pew run browser` opens pages with: xdg-open, open or rundll32",
}

// GlobalConfig is the user-global settings store (~/.pyeverywhere/config.json).
// Keys are flat dotted names such as "android.root".
type GlobalConfig struct {
	dir    string
	v      *viper.Viper
	stored map[string]any
}

// PewDir returns ~/.pyeverywhere.
func PewDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".pyeverywhere"), nil
}

// LoadGlobalConfig loads global settings from ~/.pyeverywhere/config.json.
// A missing file is not an error. PEW_* environment variables override file
// values (android.root ← PEW_ANDROID_ROOT) but are never written back.
func LoadGlobalConfig() (*GlobalConfig, error) {
	dir, err := PewDir()
	if err != nil {
		return nil, err
	}
	return LoadGlobalConfigFromDir(dir)
}

// LoadGlobalConfigFromDir loads <dir>/config.json.
func LoadGlobalConfigFromDir(dir string) (*GlobalConfig, error) {
	// "::" keeps dotted keys flat instead of nesting them.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Snapshot file values before environment overrides are enabled.
	stored := v.AllSettings()

	v.SetEnvPrefix("PEW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key := range KnownSettings {
		v.BindEnv(key)
	}

	return &GlobalConfig{dir: dir, v: v, stored: stored}, nil
}

// Path returns the settings file location.
func (g *GlobalConfig) Path() string {
	return filepath.Join(g.dir, "config.json")
}

// Dir returns the pew home directory the settings live in.
func (g *GlobalConfig) Dir() string { return g.dir }

// Get returns a setting and whether it is set.
func (g *GlobalConfig) Get(key string) (string, bool) {
	key = strings.ToLower(key)
	if !g.v.IsSet(key) {
		return "", false
	}
	return g.v.GetString(key), true
}

// Set stores a setting in memory; call Save to persist it.
func (g *GlobalConfig) Set(key, value string) {
	key = strings.ToLower(key)
	g.stored[key] = value
	g.v.Set(key, value)
}

// Keys returns every set key in sorted order.
func (g *GlobalConfig) Keys() []string {
	keys := g.v.AllKeys()
	out := keys[:0]
	for _, k := range keys {
		if g.v.IsSet(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Save writes the file-backed settings using an atomic write (temp + rename).
func (g *GlobalConfig) Save() error {
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", g.dir, err)
	}

	data, err := json.MarshalIndent(g.stored, "", "    ")
	if err != nil {
		return err
	}

	path := g.Path()
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// AndroidRoot returns the directory holding the Android toolchain.
func (g *GlobalConfig) AndroidRoot() string {
	if root, ok := g.Get("android.root"); ok && root != "" {
		return root
	}
	return filepath.Join(g.dir, "native", "android")
}
