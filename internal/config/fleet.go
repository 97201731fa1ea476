// Package config loads the connector fleet definition. Runtime settings
// (storage, NATS, delivery endpoint) come from the environment on the
// command side; the fleet file describes the connectors themselves.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/feedbridge/feedbridge/internal/connector"
)

// Fleet is the top-level fleet file shape.
type Fleet struct {
	Connectors []connector.Config `koanf:"connectors"`
}

// LoadFleet loads and validates the fleet definition from the given YAML
// file, with FEEDBRIDGE_-prefixed environment variables layered on top
// (FEEDBRIDGE_FOO__BAR=x overrides foo.bar). Every connector must
// validate and ids must be unique; a single bad definition fails the
// whole load so a broken connector never silently drops out of the
// fleet.
func LoadFleet(path string) ([]connector.Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load fleet file: %w", err)
		}
	}

	if err := k.Load(env.Provider("FEEDBRIDGE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "FEEDBRIDGE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env overrides: %w", err)
	}

	var fleet Fleet
	if err := k.Unmarshal("", &fleet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fleet: %w", err)
	}

	seen := make(map[string]bool, len(fleet.Connectors))
	for i, cfg := range fleet.Connectors {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("connector %d (%q): %w", i, cfg.ID, err)
		}
		if seen[cfg.ID] {
			return nil, fmt.Errorf("duplicate connector id %q", cfg.ID)
		}
		seen[cfg.ID] = true
	}

	return fleet.Connectors, nil
}
