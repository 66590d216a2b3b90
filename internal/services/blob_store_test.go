package services

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var blobPathPattern = regexp.MustCompile(`^submission_files/2025/01/[0-9a-f-]{36}\.pdf$`)

func TestFilesystemBlobStore_CreateAndOpen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFilesystemBlobStore(dir)
	require.NoError(t, err)

	at := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	writer, err := store.Create(context.Background(), "PDF", at)
	require.NoError(t, err)
	require.Regexp(t, blobPathPattern, writer.Path)

	content := []byte("hello world")
	_, err = writer.Writer.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Writer.Close())

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(writer.Path)))
	require.NoError(t, err)
	require.Equal(t, content, data)

	info, err := store.Stat(context.Background(), writer.Path)
	require.NoError(t, err)
	require.Equal(t, writer.Path, info.Path)
	require.EqualValues(t, len(content), info.Size)

	reader, err := store.Open(context.Background(), writer.Path)
	require.NoError(t, err)
	defer reader.Close()

	read, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, content, read)
}

func TestFilesystemBlobStore_DeleteAndWalk(t *testing.T) {
	store, err := NewFilesystemBlobStore(t.TempDir())
	require.NoError(t, err)

	keep, err := store.Create(context.Background(), "txt", time.Now())
	require.NoError(t, err)
	require.NoError(t, keep.Writer.Close())

	drop, err := store.Create(context.Background(), "txt", time.Now())
	require.NoError(t, err)
	require.NoError(t, drop.Writer.Close())

	require.NoError(t, store.Delete(context.Background(), drop.Path))
	require.NoError(t, store.Delete(context.Background(), drop.Path), "deleting a missing blob is not an error")

	_, err = store.Stat(context.Background(), drop.Path)
	require.Error(t, err)

	var seen []string
	require.NoError(t, store.Walk(context.Background(), func(info BlobInfo) error {
		seen = append(seen, info.Path)
		return nil
	}))
	require.Equal(t, []string{keep.Path}, seen)
}

func TestFilesystemBlobStore_RejectsPathsOutsideNamespace(t *testing.T) {
	store, err := NewFilesystemBlobStore(t.TempDir())
	require.NoError(t, err)

	for _, path := range []string{
		"../etc/passwd",
		"submission_files/../../secret",
		"/etc/passwd",
		"other/file.txt",
	} {
		_, err := store.Open(context.Background(), path)
		require.Error(t, err, path)
		require.Error(t, store.Delete(context.Background(), path), path)
	}
}

func TestFilesystemBlobStore_SanitizesExtension(t *testing.T) {
	store, err := NewFilesystemBlobStore(t.TempDir())
	require.NoError(t, err)

	writer, err := store.Create(context.Background(), "../P/DF", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, writer.Writer.Close())
	require.Regexp(t, blobPathPattern, writer.Path)

	_, err = store.Create(context.Background(), "..", time.Now())
	require.Error(t, err)
}
