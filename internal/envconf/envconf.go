// Package envconf resolves launcher settings from environment variables.
//
// Every function takes a getenv func instead of reading os.Getenv directly,
// so callers (and tests) decide where the environment comes from.
package envconf

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Lookup returns the value of key, or def when the variable is absent or empty.
func Lookup(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// HasAll reports whether every key is set to a non-empty value.
func HasAll(getenv func(string) string, keys ...string) bool {
	for _, k := range keys {
		if getenv(k) == "" {
			return false
		}
	}
	return true
}

// Parse fills the env-tagged struct target from getenv.
// Variables that are set but empty fall back to their envDefault.
func Parse(getenv func(string) string, target any) error {
	params, err := env.GetFieldParams(target)
	if err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	environment := make(map[string]string, len(params))
	for _, p := range params {
		if v := getenv(p.Key); v != "" {
			environment[p.Key] = v
		}
	}

	if err := env.ParseWithOptions(target, env.Options{Environment: environment}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// DefaultAppHost is the externally visible URL used when DEMO_APP_HOST is unset.
func DefaultAppHost(port int) string {
	return fmt.Sprintf("http://localhost:%d", port)
}
