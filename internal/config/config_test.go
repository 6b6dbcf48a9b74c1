package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"data_path":"/tmp/data"}`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, defaultBatchSize, c.BatchSize)
	require.Equal(t, 5, c.SleepTime)
	require.False(t, c.UseObjectStore())
}

func TestLoadRequiresDataPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestComputeDefaultBatchSizeWithinBounds(t *testing.T) {
	got := computeDefaultBatchSize()
	require.GreaterOrEqual(t, got, 4)
	require.LessOrEqual(t, got, 10)
}

func TestLoadRespectsExplicitBatchSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"data_path":"/tmp/data","batch_size":50,"bucket_name":"b"}`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 50, c.BatchSize)
	require.True(t, c.UseObjectStore())
}
