package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentFiles_SaveListRemove(t *testing.T) {
	files, err := NewDocumentFiles(t.TempDir())
	require.NoError(t, err)

	path, meta, err := files.Save("handbook.txt", strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(files.Dir, "handbook.txt"), path)
	assert.Equal(t, "handbook", meta.FileName)
	assert.Equal(t, ".txt", meta.FileExtension)
	assert.Equal(t, int64(11), meta.Size)
	assert.Len(t, meta.Checksum, 64)
	assert.FileExists(t, path+".json")

	hash, err := calculateFileHash(path)
	require.NoError(t, err)
	assert.Equal(t, meta.Checksum, hash)

	_, _, err = files.WriteText("example_com.txt", "page one\n\npage two", []string{"https://example.com", "https://example.com/a"})
	require.NoError(t, err)

	docs, err := files.List()
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "example_com.txt", docs[0].DocumentID())
	assert.Equal(t, []string{"https://example.com", "https://example.com/a"}, docs[0].CrawledURLs)
	assert.Equal(t, "handbook.txt", docs[1].DocumentID())

	require.NoError(t, files.Remove("handbook.txt"))
	require.NoError(t, files.Remove("handbook.txt"), "removing twice is fine")
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+".json")

	_, err = files.Metadata("handbook.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocumentFiles_RejectsUnsafeNames(t *testing.T) {
	dir := t.TempDir()
	files, err := NewDocumentFiles(filepath.Join(dir, "data"))
	require.NoError(t, err)

	path, _, err := files.Save("../../escape.txt", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(files.Dir, "escape.txt"), path, "directory components are stripped")
	_, statErr := os.Stat(filepath.Join(dir, "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))

	_, _, err = files.Save(".env.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrConfiguration)

	_, _, err = files.Save("archive.zip", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrConfiguration)
}
