package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestZIP(t *testing.T, files map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	w := zip.NewWriter(f)
	for _, name := range names {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func TestExtractZIP_ShapefileParts(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"BOFEK2020.dbf": "dbf",
		"BOFEK2020.shp": "shp",
		"BOFEK2020.shx": "shx",
	})

	destDir := t.TempDir()
	extracted, err := ExtractZIP(zipPath, destDir)
	require.NoError(t, err)
	assert.Len(t, extracted, 3)

	for _, p := range extracted {
		_, err := os.Stat(p)
		require.NoError(t, err)
	}

	data, err := os.ReadFile(filepath.Join(destDir, "BOFEK2020.shp"))
	require.NoError(t, err)
	assert.Equal(t, "shp", string(data))
}

func TestExtractZIPFile_NestedCaseInsensitive(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"Staringreeks/Staringreeks2018.csv":      "params",
		"Staringreeks/StaringreeksNamen2018.csv": "names",
		"readme.txt":                             "docs",
	})

	destDir := t.TempDir()
	p, err := ExtractZIPFile(zipPath, "staringreeksnamen2018.csv", destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "Staringreeks", "StaringreeksNamen2018.csv"), p)

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "names", string(data))
}

func TestExtractZIPFile_NotFound(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"a.txt": "aaa",
	})

	_, err := ExtractZIPFile(zipPath, "missing.txt", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestExtractZIP_ZipSlipPrevention(t *testing.T) {
	// Create a ZIP with a malicious path
	zipPath := filepath.Join(t.TempDir(), "malicious.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)

	w := zip.NewWriter(f)
	fw, err := w.Create("../../../etc/passwd")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("malicious")) //nolint:errcheck
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	_, err = ExtractZIP(zipPath, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip slip")
}

func TestExtractZIP_InvalidArchive(t *testing.T) {
	p := filepath.Join(t.TempDir(), "notazip.zip")
	require.NoError(t, os.WriteFile(p, []byte("this is not a zip"), 0o644))

	_, err := ExtractZIP(p, t.TempDir())
	require.Error(t, err)
}

func TestIsZIP(t *testing.T) {
	assert.True(t, IsZIP("BOFEK2020_GIS.zip"))
	assert.True(t, IsZIP("/tmp/A.ZIP"))
	assert.False(t, IsZIP("bofek.shp"))
}

func TestFindFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b", "BOFEK.SHP"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "names.csv"), []byte("x"), 0o644))

	p, err := FindFile(dir, ".shp")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a", "b", "BOFEK.SHP"), p)

	p, err = FindFile(dir, "NAMES.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a", "names.csv"), p)

	_, err = FindFile(dir, ".gpkg")
	assert.Error(t, err)
}
