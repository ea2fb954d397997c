package ingest

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalflow/fiscalflow/internal/parse/archive"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func buildZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestDiscoverSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "MPFM_Hourly_13FT0367.txt", "Hourly report from 2024.05.01 06:00 to 2024.05.01 07:00\n")

	d, cleanup, err := Discover(path, archive.Limits{})
	require.NoError(t, err)
	defer cleanup()

	require.Len(t, d.Items, 1)
	assert.Equal(t, "MPFM_Hourly_13FT0367.txt", d.Name)
	assert.Equal(t, d.Items[0].Fingerprint, d.Fingerprint)
	assert.Equal(t, path, d.Items[0].Origin)
	assert.Greater(t, d.Items[0].SizeBytes, int64(0))
	assert.Len(t, d.Fingerprint, 64)
}

func TestDiscoverRejectsUnsupportedSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.md", "not a report")

	_, cleanup, err := Discover(path, archive.Limits{})
	defer cleanup()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported submission file type")
}

func TestDiscoverDirectorySkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a/MPFM_Hourly_1.txt", "report a")
	writeFile(t, dir, "b/daily_oil.xlsx", "workbook bytes")
	writeFile(t, dir, "readme.md", "noise")
	writeFile(t, dir, "nested.zip", "archives are not expanded inside dirs")

	d, cleanup, err := Discover(dir, archive.Limits{})
	require.NoError(t, err)
	defer cleanup()

	require.Len(t, d.Items, 2)
	names := []string{d.Items[0].Name, d.Items[1].Name}
	assert.Contains(t, names, "a/MPFM_Hourly_1.txt")
	assert.Contains(t, names, "b/daily_oil.xlsx")
	assert.ElementsMatch(t, []string{"readme.md", "nested.zip"}, d.Skipped)
}

func TestDirectoryFingerprintIgnoresNamesAndOrder(t *testing.T) {
	first := t.TempDir()
	writeFile(t, first, "one.txt", "alpha")
	writeFile(t, first, "two.txt", "bravo")

	second := t.TempDir()
	writeFile(t, second, "renamed/bravo.txt", "bravo")
	writeFile(t, second, "zz_alpha.txt", "alpha")

	d1, c1, err := Discover(first, archive.Limits{})
	require.NoError(t, err)
	defer c1()
	d2, c2, err := Discover(second, archive.Limits{})
	require.NoError(t, err)
	defer c2()

	assert.Equal(t, d1.Fingerprint, d2.Fingerprint)

	third := t.TempDir()
	writeFile(t, third, "one.txt", "alpha")
	writeFile(t, third, "two.txt", "charlie")
	d3, c3, err := Discover(third, archive.Limits{})
	require.NoError(t, err)
	defer c3()
	assert.NotEqual(t, d1.Fingerprint, d3.Fingerprint)
}

func TestDiscoverEmptyDirectoryFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "only.md", "noise")

	_, cleanup, err := Discover(dir, archive.Limits{})
	defer cleanup()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ingestible files")
}

func TestDiscoverZipArchive(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "submission_20240501.zip")
	buildZip(t, zipPath, map[string]string{
		"reports/MPFM_Hourly_13FT0367_B01.txt": "Hourly report from 2024.05.01 06:00 to 2024.05.01 07:00\n",
		"reports/notes.md":                     "skip me",
		"__MACOSX/._junk":                      "resource fork",
	})

	d, cleanup, err := Discover(zipPath, archive.Limits{})
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "submission_20240501.zip", d.Name)

	// The batch identity is the archive's own digest.
	want, err := fileDigest(zipPath)
	require.NoError(t, err)
	assert.Equal(t, want, d.Fingerprint)

	require.Len(t, d.Items, 1)
	item := d.Items[0]
	assert.Equal(t, "reports/MPFM_Hourly_13FT0367_B01.txt", item.Name)
	assert.Equal(t, zipPath+"::reports/MPFM_Hourly_13FT0367_B01.txt", item.Origin)
	assert.FileExists(t, item.Path)
	assert.Equal(t, []string{"reports/notes.md"}, d.Skipped)

	cleanup()
	assert.NoFileExists(t, item.Path)
}

func TestDiscoverZipWithoutIngestibleFilesFails(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "noise.zip")
	buildZip(t, zipPath, map[string]string{"readme.md": "nothing here"})

	_, cleanup, err := Discover(zipPath, archive.Limits{})
	defer cleanup()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ingestible files")
}

func TestDiscoverMissingPathFails(t *testing.T) {
	_, cleanup, err := Discover(filepath.Join(t.TempDir(), "absent"), archive.Limits{})
	defer cleanup()
	require.Error(t, err)
}
