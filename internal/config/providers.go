package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider is one job board the worker can scrape.
type Provider struct {
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`
	// Notes is free-form operator documentation, ignored by the daemon.
	Notes string `yaml:"notes,omitempty"`
}

type providersFile struct {
	Providers []Provider `yaml:"providers"`
}

// DefaultProviders is the toggle set used when no providers file exists.
func DefaultProviders() map[string]bool {
	return map[string]bool{
		"stepstone": true,
		"adzuna":    true,
		"jsearch":   true,
	}
}

// LoadProviders reads the provider toggle file. A missing file yields the
// defaults; a present but malformed file is an error because silently
// scraping the wrong boards is worse than failing.
func LoadProviders(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultProviders(), nil
		}
		return nil, fmt.Errorf("read providers file: %w", err)
	}

	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}

	out := DefaultProviders()
	for _, p := range file.Providers {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			return nil, fmt.Errorf("providers file: entry with empty name")
		}
		out[name] = p.Enabled
	}
	return out, nil
}
