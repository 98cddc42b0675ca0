package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SeedEntry is one ticker in the watchlist seed file
type SeedEntry struct {
	Ticker  string `yaml:"ticker"`
	Name    string `yaml:"name,omitempty"`
	Enabled *bool  `yaml:"enabled,omitempty"`
}

// IsEnabled treats a missing enabled flag as true
func (e SeedEntry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// Seed is the initial watchlist loaded for the seed chat on startup
type Seed struct {
	Stocks []SeedEntry `yaml:"stocks"`
}

// LoadSeed reads a YAML watchlist seed file
func LoadSeed(path string) (*Seed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(b, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	for i := range seed.Stocks {
		seed.Stocks[i].Ticker = strings.ToUpper(strings.TrimSpace(seed.Stocks[i].Ticker))
		if seed.Stocks[i].Ticker == "" {
			return nil, fmt.Errorf("seed entry %d has no ticker", i)
		}
	}
	return &seed, nil
}
