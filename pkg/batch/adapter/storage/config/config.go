package config

import (
	"fmt"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/configbinder"
)

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // Type of storage ("local", "gcs").
	BucketName      string `yaml:"bucket_name"`      // Default bucket name for operations.
	CredentialsFile string `yaml:"credentials_file"` // Path to a service account key for GCS.
	BaseDir         string `yaml:"base_dir"`         // Base directory for local file system operations.
	Prefix          string `yaml:"prefix"`           // Object name prefix applied to exports.
}

// DatasourcesConfig holds a map of named storage configurations.
type DatasourcesConfig map[string]StorageConfig

// Lookup decodes the entry called name out of the raw storage map.
func Lookup(raw map[string]interface{}, name string) (StorageConfig, error) {
	var cfg StorageConfig
	entry, ok := raw[name]
	if !ok {
		return cfg, fmt.Errorf("storage configuration for name '%s' not found", name)
	}
	if err := configbinder.Bind(entry, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
	}
	if cfg.Type == "" {
		return cfg, fmt.Errorf("storage configuration '%s' has no type", name)
	}
	return cfg, nil
}
