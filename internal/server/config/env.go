package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv overlays variables that are set in the environment onto target.
// Unset variables leave the current value untouched.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// parseEnv panics on malformed values, like the other config sources.
func parseEnv(config *Config) {
	if err := ParseEnv(config); err != nil {
		panic(err)
	}
}
