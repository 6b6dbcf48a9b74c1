package resources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func writeGzipCSV(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	zw := pgzip.NewWriter(f)
	_, err = zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
}

func TestLoadElsevierOAMapIndexesByDOIAndPII(t *testing.T) {
	dir := t.TempDir()
	writeGzipCSV(t, filepath.Join(dir, "map.csv.gz"), "doi,pii,pdf\n10.1/ABC,S0001,file1.pdf\n,S0002,file2.pdf\n")

	m, err := LoadElsevierOAMap(dir, "map.csv.gz", logrus.New())
	require.NoError(t, err)

	path, ok := m.Lookup("/mirror", "10.1/abc", "")
	require.True(t, ok)
	require.Equal(t, "/mirror/file1.pdf", path)

	path, ok = m.Lookup("/mirror", "", "S0002")
	require.True(t, ok)
	require.Equal(t, "/mirror/file2.pdf", path)

	_, ok = m.Lookup("/mirror", "10.1/unknown", "")
	require.False(t, ok)
}

func TestLoadElsevierOAMapMissingFileReturnsEmptyMap(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadElsevierOAMap(dir, "absent.csv.gz", logrus.New())
	require.NoError(t, err)
	require.NotNil(t, m)
	_, ok := m.Lookup("/mirror", "anything", "")
	require.False(t, ok)
}
