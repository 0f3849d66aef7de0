package config

import "strings"

// ExpandVars replaces $NAME and ${NAME} references using lookup.
// Unknown names and malformed references are left untouched so the caller
// can detect them; this differs from os.Expand, which substitutes "".
func ExpandVars(s string, lookup func(string) (string, bool)) string {
	if !strings.Contains(s, "$") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '$' || i+1 >= len(s) {
			b.WriteByte(s[i])
			i++
			continue
		}

		if s[i+1] == '{' {
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				b.WriteByte(s[i])
				i++
				continue
			}
			name := s[i+2 : i+2+end]
			if val, ok := lookup(name); ok && isVarName(name) {
				b.WriteString(val)
			} else {
				b.WriteString(s[i : i+3+end])
			}
			i += 3 + end
			continue
		}

		j := i + 1
		for j < len(s) && isVarByte(s[j]) {
			j++
		}
		if j == i+1 {
			b.WriteByte(s[i])
			i++
			continue
		}
		if val, ok := lookup(s[i+1 : j]); ok {
			b.WriteString(val)
		} else {
			b.WriteString(s[i:j])
		}
		i = j
	}
	return b.String()
}

func isVarByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isVarName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isVarByte(name[i]) {
			return false
		}
	}
	return true
}
