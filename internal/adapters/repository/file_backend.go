package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/osamaflash/catalog/internal/domain/entities"
)

// FileBackend keeps each document in <dir>/<key>.txt
type FileBackend struct {
	fs  afero.Fs
	dir string
}

// NewFileBackend creates the data directory if needed.
func NewFileBackend(fs afero.Fs, dir string) (*FileBackend, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &FileBackend{fs: fs, dir: dir}, nil
}

func (b *FileBackend) Name() string { return "file" }

// Path returns the file backing key.
func (b *FileBackend) Path(key entities.DocumentKey) string {
	return filepath.Join(b.dir, string(key)+".txt")
}

func (b *FileBackend) Read(ctx context.Context, key entities.DocumentKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(b.fs, b.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrDocumentMissing
		}
		return nil, err
	}
	return data, nil
}

// Write stages the document in a temp file in the same directory, flushes it
// to disk and renames it over the target.
func (b *FileBackend) Write(ctx context.Context, key entities.DocumentKey, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := afero.TempFile(b.fs, b.dir, string(key)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		b.fs.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		b.fs.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		b.fs.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := b.fs.Rename(tmpName, b.Path(key)); err != nil {
		b.fs.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

func (b *FileBackend) HealthCheck(ctx context.Context) error {
	info, err := b.fs.Stat(b.dir)
	if err != nil {
		return fmt.Errorf("file store health check failed: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("file store health check failed: %s is not a directory", b.dir)
	}
	return nil
}

func (b *FileBackend) Close() error { return nil }
