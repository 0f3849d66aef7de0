// Package config loads the project descriptor (project_info.json) and the
// user-global pew settings.
//
// It supports two distinct configuration scopes:
//
// 1. Project descriptor (<project>/project_info.json)
//   - Name, version, identifier and every platform-keyed build setting
//   - $NAME / ${NAME} substituted from the environment before parsing
//   - An optional .env next to the descriptor seeds missing variables
//   - Loaded via Load() or a Store
//
// 2. Global settings (~/.pyeverywhere/config.json)
//   - Machine-wide tool locations such as android.root
//   - Loaded via LoadGlobalConfig(), written only by `pew set`
//   - PEW_* environment variables override file values
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mvp-joe/pew/internal/pewerr"
)

// DescriptorFile is the project descriptor's file name at the project root.
const DescriptorFile = "project_info.json"

// ErrNotLoaded is the panic value of Store.Project before a successful load.
var ErrNotLoaded = errors.New("attempt to access project properties before the project descriptor was loaded")

// Project is a loaded, immutable project descriptor.
type Project struct {
	path string
	data map[string]any
}

// Load reads the descriptor at path, substitutes environment variables and
// parses it. Any `$` left after substitution fails the load with a ConfigError.
func Load(path string) (*Project, error) {
	if err := loadDotEnv(filepath.Dir(path)); err != nil {
		return nil, &pewerr.ConfigError{Path: path, Message: "failed to read .env", Err: err}
	}

	text, err := os.ReadFile(path)
	if err != nil {
		return nil, &pewerr.ConfigError{Path: path, Message: "failed to read project descriptor", Err: err}
	}

	p, err := Parse(text)
	if err != nil {
		var ce *pewerr.ConfigError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	p.path = path
	return p, nil
}

// Parse substitutes environment variables in text, then decodes and
// validates it.
func Parse(text []byte) (*Project, error) {
	substituted := ExpandVars(string(text), os.LookupEnv)
	if i := strings.IndexByte(substituted, '$'); i >= 0 {
		return nil, pewerr.Configf("unresolved environment variables in project descriptor near %q", excerpt(substituted, i))
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(substituted)))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, &pewerr.ConfigError{Message: "invalid JSON", Err: err}
	}

	p := &Project{data: data}
	if err := Validate(p); err != nil {
		return nil, &pewerr.ConfigError{Message: "invalid project descriptor", Err: err}
	}
	return p, nil
}

// loadDotEnv seeds unset variables from <dir>/.env when the file exists.
// Variables already in the environment are never overridden.
func loadDotEnv(dir string) error {
	envFile := filepath.Join(dir, ".env")
	if _, err := os.Stat(envFile); err != nil {
		return nil
	}
	return godotenv.Load(envFile)
}

func excerpt(s string, i int) string {
	end := i + 24
	if end > len(s) {
		end = len(s)
	}
	return s[i:end]
}

// Path returns the descriptor's file path, empty for parsed text.
func (p *Project) Path() string { return p.path }

// Dir returns the project root (the descriptor's directory).
func (p *Project) Dir() string { return filepath.Dir(p.path) }

func (p *Project) Name() string       { return p.String("name") }
func (p *Project) Version() string    { return p.String("version") }
func (p *Project) Identifier() string { return p.String("identifier") }

// Has reports whether a top-level key is present.
func (p *Project) Has(key string) bool {
	_, ok := p.data[key]
	return ok
}

// String returns a top-level scalar as a string, or "" when absent.
func (p *Project) String(key string) string {
	s, _ := asString(p.data[key])
	return s
}

// Lookup walks nested mappings, e.g. Lookup("sdks", "android", "target_sdk").
func (p *Project) Lookup(path ...string) (any, bool) {
	var cur any = p.data
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cloneValue(cur), true
}

// LookupString is Lookup for scalar leaves.
func (p *Project) LookupString(path ...string) string {
	v, ok := p.Lookup(path...)
	if !ok {
		return ""
	}
	s, _ := asString(v)
	return s
}

// MarshalIndented renders the substituted descriptor with four-space indents.
func (p *Project) MarshalIndented() ([]byte, error) {
	return json.MarshalIndent(p.data, "", "    ")
}

// Store is the per-invocation holder of the loaded project. Each command
// session owns one and hands its project to the controllers it creates.
type Store struct {
	project *Project
}

// Load loads path into the store. On failure the store is left untouched.
func (s *Store) Load(path string) error {
	p, err := Load(path)
	if err != nil {
		return err
	}
	s.project = p
	return nil
}

// Loaded reports whether a project has been loaded.
func (s *Store) Loaded() bool { return s.project != nil }

// Project returns the loaded project. Calling it before a successful Load
// is a programming error and panics with ErrNotLoaded.
func (s *Store) Project() *Project {
	if s.project == nil {
		panic(ErrNotLoaded)
	}
	return s.project
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return fmt.Sprint(t), true
	case float64, int, int64:
		return fmt.Sprint(t), true
	}
	return "", false
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	}
	return v
}
