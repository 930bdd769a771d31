// Package config loads driver options from a YAML file, so toolchain
// invocations can keep include paths and macro definitions out of the
// command line.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Options struct {
	IncludePaths       []string          `yaml:"include-paths"`
	SystemIncludePaths []string          `yaml:"system-include-paths"`
	Defines            map[string]string `yaml:"defines"`
	Undefines          []string          `yaml:"undefines"`

	MaxErrors        int    `yaml:"max-errors"`
	WarningsAsErrors bool   `yaml:"werror"`
	EmbedLimit       string `yaml:"embed-limit"`
	EmbedHardLimit   bool   `yaml:"embed-hard-limit"`
	NoStdHeaders     bool   `yaml:"no-std-headers"`
}

// FromFile reads and strictly parses path.
func FromFile(path string) (*Options, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	parsed := &Options{}
	if err = yaml.UnmarshalStrict(raw, parsed); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return parsed, nil
}
