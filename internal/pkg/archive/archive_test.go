package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestZip(t *testing.T, files map[string][]byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "batch.zip")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	return path
}

func TestOpenZip(t *testing.T) {
	t.Parallel()

	path := writeTestZip(t, map[string][]byte{
		"1234567890_CDP_firmado.pdf": []byte("%PDF-1.4 fake"),
		"nested/other.pdf":           []byte("%PDF-1.4 nested"),
	})

	rd, err := OpenZip(path)
	require.NoError(t, err)
	defer rd.Close()

	entries := rd.Entries()
	require.Len(t, entries, 2)

	byName := map[string]Entry{}
	for _, e := range entries {
		byName[e.Name()] = e
	}

	e := byName["1234567890_CDP_firmado.pdf"]
	require.NotNil(t, e)
	assert.False(t, e.IsDir())
	data, err := e.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 fake"), data)
}

func TestOpenZipMissingFile(t *testing.T) {
	t.Parallel()

	_, err := OpenZip(filepath.Join(t.TempDir(), "missing.zip"))
	assert.Error(t, err)
}
