package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds dataset location settings loadable from a YAML file.
// Flags override anything read from the file.
type Config struct {
	Prefix           string `yaml:"prefix"`
	AnnoOffset       string `yaml:"anno_offset"`
	ObjOffset        string `yaml:"obj_offset"`
	AffordanceOffset string `yaml:"affordance_offset"`
	StrictOrphans    bool   `yaml:"strict_orphans"`
}

// LoadConfig reads a YAML config file. A missing file with an empty
// path is not an error; a missing file with an explicit path is.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Merge applies non-empty flag values over the file config and returns
// the effective settings.
func (c Config) Merge(prefix string) Config {
	out := c
	if prefix != "" {
		out.Prefix = prefix
	}
	return out
}
