package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BlobNamespace is the top-level directory for submission attachment blobs.
const BlobNamespace = "submission_files"

var (
	_ BlobStore = (*FilesystemBlobStore)(nil)
)

// BlobStore abstracts the storage that holds attachment bytes.
type BlobStore interface {
	// Create allocates a new writable blob with the given extension.
	Create(ctx context.Context, extension string, at time.Time) (*BlobWriter, error)
	// Open returns a readable stream for the blob at path.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Stat returns metadata for the blob located at path.
	Stat(ctx context.Context, path string) (BlobInfo, error)
	// Delete removes the blob at path. Missing blobs are not an error.
	Delete(ctx context.Context, path string) error
	// Walk visits every blob in the namespace.
	Walk(ctx context.Context, fn func(BlobInfo) error) error
}

// BlobWriter represents a writable handle created by the BlobStore.
type BlobWriter struct {
	Path   string
	Writer io.WriteCloser
}

// BlobInfo captures size and timestamp metadata for stored blobs.
type BlobInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// FilesystemBlobStore persists blobs on the local filesystem under
// <root>/submission_files/<yyyy>/<mm>/<uuid>.<ext>.
type FilesystemBlobStore struct {
	root string
}

// NewFilesystemBlobStore initialises a filesystem-backed blob store rooted at dir.
func NewFilesystemBlobStore(dir string) (*FilesystemBlobStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("blob store: root directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, BlobNamespace), 0o755); err != nil {
		return nil, fmt.Errorf("blob store: ensure root directory: %w", err)
	}
	return &FilesystemBlobStore{root: dir}, nil
}

// Create opens a new blob for writing, organising directories by year/month.
func (s *FilesystemBlobStore) Create(_ context.Context, extension string, at time.Time) (*BlobWriter, error) {
	if s == nil {
		return nil, errors.New("blob store: store not initialised")
	}
	ext := sanitizeExtension(extension)
	if ext == "" {
		return nil, errors.New("blob store: extension is required")
	}
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	dir := filepath.Join(s.root, BlobNamespace, fmt.Sprintf("%04d", at.Year()), fmt.Sprintf("%02d", int(at.Month())))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob store: mkdir %s: %w", dir, err)
	}

	fullPath := filepath.Join(dir, uuid.NewString()+"."+ext)
	fh, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("blob store: create file: %w", err)
	}

	return &BlobWriter{
		Path:   s.relative(fullPath),
		Writer: fh,
	}, nil
}

// Open returns a reader for the stored blob.
func (s *FilesystemBlobStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	fullPath, err := s.absolute(path)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("blob store: open file: %w", err)
	}
	return fh, nil
}

// Stat returns file metadata for the stored blob.
func (s *FilesystemBlobStore) Stat(_ context.Context, path string) (BlobInfo, error) {
	fullPath, err := s.absolute(path)
	if err != nil {
		return BlobInfo{}, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return BlobInfo{}, fmt.Errorf("blob store: stat file: %w", err)
	}
	return BlobInfo{
		Path:    s.relative(fullPath),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Delete removes the stored blob.
func (s *FilesystemBlobStore) Delete(_ context.Context, path string) error {
	fullPath, err := s.absolute(path)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blob store: delete file: %w", err)
	}
	return nil
}

// Walk visits every regular file below the blob namespace.
func (s *FilesystemBlobStore) Walk(ctx context.Context, fn func(BlobInfo) error) error {
	if s == nil {
		return errors.New("blob store: store not initialised")
	}
	ctx = ensureContext(ctx)
	base := filepath.Join(s.root, BlobNamespace)

	return filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(BlobInfo{Path: s.relative(path), Size: info.Size(), ModTime: info.ModTime()})
	})
}

// absolute resolves a stored blob path and refuses anything outside the namespace.
func (s *FilesystemBlobStore) absolute(path string) (string, error) {
	if s == nil {
		return "", errors.New("blob store: store not initialised")
	}
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSpace(path)))
	prefix := BlobNamespace + string(filepath.Separator)
	if filepath.IsAbs(clean) || !strings.HasPrefix(clean, prefix) {
		return "", fmt.Errorf("blob store: path %q outside %s", path, BlobNamespace)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *FilesystemBlobStore) relative(fullPath string) string {
	rel, err := filepath.Rel(s.root, fullPath)
	if err != nil {
		return fullPath
	}
	return filepath.ToSlash(rel)
}

func sanitizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return -1
		}
	}, ext)
}
