package storage

import (
	"context"
	"io"
	"os"

	"github.com/spf13/afero"

	"filecrush/compressd/pkg/apperr"
)

// LocalStore keeps artifacts on a filesystem. Backed by afero so tests
// can run against a MemMapFs.
type LocalStore struct {
	fs afero.Fs
}

func NewLocal(root string) (*LocalStore, error) {
	base := afero.NewOsFs()

	if err := base.MkdirAll(root, 0o755); err != nil {
		return nil, apperr.Storage("failed to create storage directory", err)
	}

	return &LocalStore{fs: afero.NewBasePathFs(base, root)}, nil
}

// NewLocalFs builds a store over an arbitrary filesystem
func NewLocalFs(fs afero.Fs) *LocalStore {
	return &LocalStore{fs: fs}
}

func (l *LocalStore) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	f, err := l.fs.Create(key)
	if err != nil {
		return apperr.Storage("failed to create blob", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return apperr.Storage("failed to write blob", err)
	}

	if err := f.Close(); err != nil {
		return apperr.Storage("failed to flush blob", err)
	}

	return nil
}

func (l *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := l.fs.Open(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NotFound("blob not found")
		}

		return nil, apperr.Storage("failed to open blob", err)
	}

	return f, nil
}

func (l *LocalStore) Stat(ctx context.Context, key string) (int64, error) {
	info, err := l.fs.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, apperr.NotFound("blob not found")
		}

		return 0, apperr.Storage("failed to stat blob", err)
	}

	return info.Size(), nil
}

// Delete removes the blob. A missing key is not an error.
func (l *LocalStore) Delete(ctx context.Context, key string) error {
	if err := l.fs.Remove(key); err != nil && !os.IsNotExist(err) {
		return apperr.Storage("failed to delete blob", err)
	}

	return nil
}

func (l *LocalStore) List(ctx context.Context) ([]ObjectInfo, error) {
	entries, err := afero.ReadDir(l.fs, ".")
	if err != nil {
		return nil, apperr.Storage("failed to list blobs", err)
	}

	objects := make([]ObjectInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		objects = append(objects, ObjectInfo{
			Key:     e.Name(),
			Size:    e.Size(),
			ModTime: e.ModTime(),
		})
	}

	return objects, nil
}
