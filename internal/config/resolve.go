package config

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	defaultKey = "default"
	commonKey  = "common"
	configsKey = "configs"
)

// Resolve returns the effective value of key for platform.
//
// A mapping value is resolved as: the platform entry, else "default"; a
// "common" entry is then merged in: when either side is a list the common
// items are appended after the platform items, mappings merge with the
// platform entry winning, and between scalars the platform entry wins. A mapping with
// none of those keys is returned whole. Non-mapping values are returned as-is
// and an absent key yields def. The result is a copy; callers may mutate it.
func (p *Project) Resolve(key, platform string, def any) any {
	raw, ok := p.data[key]
	if !ok {
		return def
	}

	m, ok := raw.(map[string]any)
	if !ok {
		return cloneValue(raw)
	}

	value, resolved := m[platform]
	if !resolved || value == nil {
		value, resolved = m[defaultKey]
		resolved = resolved && value != nil
	}

	if common, ok := m[commonKey]; ok && common != nil {
		value = mergeCommon(value, common, resolved)
		resolved = true
	}

	if !resolved {
		return cloneValue(m)
	}
	return cloneValue(value)
}

// ResolveForConfig resolves key for a named --config overlay: the
// "configs"[name] entry, else "default", else def.
func (p *Project) ResolveForConfig(key, configName string, def any) any {
	m, ok := p.data[key].(map[string]any)
	if !ok {
		return def
	}
	if configs, ok := m[configsKey].(map[string]any); ok {
		if v, ok := configs[configName]; ok {
			return cloneValue(v)
		}
	}
	if v, ok := m[defaultKey]; ok {
		return cloneValue(v)
	}
	return def
}

func mergeCommon(value, common any, resolved bool) any {
	if !resolved {
		return cloneValue(common)
	}

	vList, vIsList := value.([]any)
	cList, cIsList := common.([]any)
	if vIsList || cIsList {
		if !vIsList {
			vList = []any{value}
		}
		if !cIsList {
			cList = []any{common}
		}
		out := make([]any, 0, len(vList)+len(cList))
		out = append(out, vList...)
		return append(out, cList...)
	}

	switch v := value.(type) {
	case map[string]any:
		if c, ok := common.(map[string]any); ok {
			out := make(map[string]any, len(v)+len(c))
			for k, val := range c {
				out[k] = val
			}
			for k, val := range v {
				out[k] = val
			}
			return out
		}
	}
	return value
}

// ResolveString resolves key to a scalar rendered as a string.
// Anything that is not a scalar yields def.
func (p *Project) ResolveString(key, platform, def string) string {
	if s, ok := asString(p.Resolve(key, platform, nil)); ok {
		return s
	}
	return def
}

// ResolveStrings resolves key to a list of strings. A single string becomes
// a one-element list; non-string list items are rendered with fmt.
func (p *Project) ResolveStrings(key, platform string, def []string) []string {
	return toStrings(p.Resolve(key, platform, nil), def)
}

// ResolveStringsForConfig is ResolveForConfig for string lists.
func (p *Project) ResolveStringsForConfig(key, configName string, def []string) []string {
	return toStrings(p.ResolveForConfig(key, configName, nil), def)
}

// ResolveBool resolves key to a boolean; strings "true"/"1" count as true.
func (p *Project) ResolveBool(key, platform string, def bool) bool {
	switch v := p.Resolve(key, platform, nil).(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

// ResolveMap resolves key to a mapping, nil when the value is not one.
func (p *Project) ResolveMap(key, platform string) map[string]any {
	m, _ := p.Resolve(key, platform, nil).(map[string]any)
	return m
}

// BuildNumber returns the integer build_number used by mobile stores.
func (p *Project) BuildNumber() (int, error) {
	raw, ok := p.data["build_number"]
	if !ok {
		return 0, fmt.Errorf("%w: key is missing", ErrInvalidBuildNumber)
	}
	s, ok := asString(raw)
	if !ok {
		return 0, fmt.Errorf("%w: %v is not a number", ErrInvalidBuildNumber, raw)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidBuildNumber, s)
	}
	return n, nil
}

func toStrings(v any, def []string) []string {
	switch t := v.(type) {
	case nil:
		return def
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := asString(item); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	}
	return def
}
