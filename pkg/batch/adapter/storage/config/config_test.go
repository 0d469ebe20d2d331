package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	raw := map[string]interface{}{
		"local": map[string]interface{}{"type": "local", "base_dir": "/tmp/export", "prefix": "records"},
		"gcs":   map[string]interface{}{"type": "gcs", "bucket_name": "bucket", "credentials_file": "key.json"},
		"bad":   map[string]interface{}{"base_dir": "/tmp"},
	}

	cfg, err := Lookup(raw, "local")
	require.NoError(t, err)
	assert.Equal(t, StorageConfig{Type: "local", BaseDir: "/tmp/export", Prefix: "records"}, cfg)

	cfg, err = Lookup(raw, "gcs")
	require.NoError(t, err)
	assert.Equal(t, "bucket", cfg.BucketName)
	assert.Equal(t, "key.json", cfg.CredentialsFile)

	_, err = Lookup(raw, "missing")
	assert.Error(t, err)
	_, err = Lookup(raw, "bad")
	assert.Error(t, err)
}
