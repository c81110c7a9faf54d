package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsSelfConsistent(t *testing.T) {
	cfg := Default()
	require.Equal(t, "embedded", cfg.MetaStore.Backend)
	require.Equal(t, "local", cfg.ObjectStore.Backend)
	require.Greater(t, cfg.Limit.ReqColsPerRecordLimit, 0)
}

func TestLoadOverridesOnlyGivenFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
object_store:
  backend: s3
  bucket: ingest
limit:
  req_cols_per_record_limit: 500
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "s3", cfg.ObjectStore.Backend)
	require.Equal(t, "ingest", cfg.ObjectStore.Bucket)
	require.Equal(t, 500, cfg.Limit.ReqColsPerRecordLimit)
	// untouched fields keep their defaults
	require.Equal(t, "embedded", cfg.MetaStore.Backend)
	require.True(t, cfg.MemoryCache.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
