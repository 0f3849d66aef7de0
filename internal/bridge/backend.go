package bridge

import (
	"errors"
	"fmt"
)

// ErrNoBackend is returned when every provider's probe fails.
var ErrNoBackend = errors.New("no usable backend")

// Provider is one candidate implementation. Probe returns nil when the
// provider can be used on this machine.
type Provider struct {
	Name  string
	Probe func() error
}

// SelectBackend probes providers and returns the first usable one.
// Names in preferred are tried first, in the given order; the remaining
// providers follow in list order. Each provider is probed at most once.
func SelectBackend(providers []Provider, preferred ...string) (Provider, error) {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name] = p
	}

	order := make([]Provider, 0, len(providers))
	seen := map[string]bool{}
	for _, name := range preferred {
		p, ok := byName[name]
		if !ok {
			return Provider{}, fmt.Errorf("unknown backend %q", name)
		}
		if !seen[name] {
			seen[name] = true
			order = append(order, p)
		}
	}
	for _, p := range providers {
		if !seen[p.Name] {
			seen[p.Name] = true
			order = append(order, p)
		}
	}

	var failures []error
	for _, p := range order {
		err := p.Probe()
		if err == nil {
			return p, nil
		}
		failures = append(failures, fmt.Errorf("%s: %w", p.Name, err))
	}
	return Provider{}, fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(failures...))
}
