package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingName indicates the descriptor has no "name"
	ErrMissingName = errors.New("missing required key \"name\"")

	// ErrMissingVersion indicates the descriptor has no "version"
	ErrMissingVersion = errors.New("missing required key \"version\"")

	// ErrMissingIdentifier indicates the descriptor has no "identifier"
	ErrMissingIdentifier = errors.New("missing required key \"identifier\"")

	// ErrInvalidBuildNumber indicates a build_number that is not an integer
	ErrInvalidBuildNumber = errors.New("invalid build_number")
)

// Validate checks the keys every platform needs.
func Validate(p *Project) error {
	var errs []error

	if strings.TrimSpace(p.Name()) == "" {
		errs = append(errs, ErrMissingName)
	}
	if strings.TrimSpace(p.Version()) == "" {
		errs = append(errs, ErrMissingVersion)
	}
	if strings.TrimSpace(p.Identifier()) == "" {
		errs = append(errs, ErrMissingIdentifier)
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

// joinErrors combines multiple errors into a single error with clear formatting.
// A single error is returned as-is so errors.Is keeps working.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	var msgs []string
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}

	return fmt.Errorf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
