package server

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration, loaded from a YAML file.
type Config struct {
	// Listen is the address to serve on, e.g. ":7765".
	Listen string `yaml:"listen"`
	// IndexPath is the segment directory to open.
	IndexPath string `yaml:"index_path"`
	// MaxResults caps the documents returned per query.
	MaxResults int `yaml:"max_results"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:     ":7765",
		MaxResults: 100,
	}
}

// LoadConfig reads a YAML config file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}
	return cfg, nil
}
