package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the lagoon configuration
type Config struct {
	// Catalog settings
	Catalog CatalogConfig `yaml:"catalog"`

	// Write settings
	Write WriteConfig `yaml:"write"`
}

// CatalogConfig contains catalog connection settings
type CatalogConfig struct {
	URI string `yaml:"uri"` // Catalog connection URI, e.g. sqlite:///lagoon.db
}

// WriteConfig contains dataset write defaults
type WriteConfig struct {
	Compression     string `yaml:"compression"`        // Parquet codec: snappy, zstd, gzip, none
	MaxRowsPerGroup int64  `yaml:"max_rows_per_group"` // Upper bound on rows per Parquet row group
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			URI: "sqlite:///lagoon.db",
		},
		Write: WriteConfig{
			Compression:     "snappy",
			MaxRowsPerGroup: 65536,
		},
	}
}

// LoadConfig loads configuration from a YAML file, falling back to defaults
// when the file does not exist
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values
func (cfg *Config) Validate() error {
	if cfg.Catalog.URI == "" {
		return fmt.Errorf("catalog.uri must not be empty")
	}
	if cfg.Write.MaxRowsPerGroup < 0 {
		return fmt.Errorf("write.max_rows_per_group must not be negative")
	}
	switch cfg.Write.Compression {
	case "", "snappy", "zstd", "gzip", "none":
		return nil
	default:
		return fmt.Errorf("unsupported compression %q (expected snappy, zstd, gzip or none)", cfg.Write.Compression)
	}
}
