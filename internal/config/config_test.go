package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig tests the built-in defaults
func TestDefaultConfig(testingT *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(testingT, "sqlite:///lagoon.db", cfg.Catalog.URI)
	assert.Equal(testingT, "snappy", cfg.Write.Compression)
	assert.Equal(testingT, int64(65536), cfg.Write.MaxRowsPerGroup)
	assert.NoError(testingT, cfg.Validate())
}

// TestLoadConfigMissingFile tests the fallback to defaults
func TestLoadConfigMissingFile(testingT *testing.T) {
	cfg, err := LoadConfig("/nonexistent/lagoon.yaml")
	require.NoError(testingT, err)
	assert.Equal(testingT, DefaultConfig().Catalog.URI, cfg.Catalog.URI)
}

// TestLoadConfigFromFile tests YAML parsing and overrides
func TestLoadConfigFromFile(testingT *testing.T) {
	tempDir, err := os.MkdirTemp("", "lagoon-config-test-")
	require.NoError(testingT, err)
	defer func() { _ = os.RemoveAll(tempDir) }()

	path := filepath.Join(tempDir, "lagoon.yaml")
	content := "catalog:\n  uri: sqlite:///custom.db\nwrite:\n  compression: zstd\n  max_rows_per_group: 1024\n"
	require.NoError(testingT, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(testingT, err)
	assert.Equal(testingT, "sqlite:///custom.db", cfg.Catalog.URI)
	assert.Equal(testingT, "zstd", cfg.Write.Compression)
	assert.Equal(testingT, int64(1024), cfg.Write.MaxRowsPerGroup)
}

// TestValidateRejectsBadValues tests validation failures
func TestValidateRejectsBadValues(testingT *testing.T) {
	cfg := DefaultConfig()
	cfg.Catalog.URI = ""
	assert.Error(testingT, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Write.Compression = "lz77"
	assert.Error(testingT, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Write.MaxRowsPerGroup = -1
	assert.Error(testingT, cfg.Validate())
}
