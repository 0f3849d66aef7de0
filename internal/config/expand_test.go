package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandVars(t *testing.T) {
	t.Parallel()

	env := map[string]string{"NAME": "pew", "ORG": "example", "EMPTY": ""}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	tests := []struct {
		in, want string
	}{
		{"no vars", "no vars"},
		{"$NAME", "pew"},
		{"${NAME}-app", "pew-app"},
		{"com.$ORG.$NAME", "com.example.pew"},
		{"[$EMPTY]", "[]"},
		{"$UNSET stays", "$UNSET stays"},
		{"${UNSET} stays", "${UNSET} stays"},
		{"${NAME", "${NAME"},
		{"cost: $", "cost: $"},
		{"$$NAME", "$pew"},
		{"${bad name}", "${bad name}"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandVars(tt.in, lookup), tt.in)
	}
}
