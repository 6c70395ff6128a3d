package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemStore implements ObjectStore on a directory, typically a mounted
// volume shared across deploys. Keys map to file names under Dir.
type FilesystemStore struct {
	dir string
}

// NewFilesystemStore returns a store rooted at dir, creating it if needed.
func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("filesystem store: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filesystem store: create dir: %w", err)
	}
	return &FilesystemStore{dir: dir}, nil
}

// Name implements ObjectStore.
func (s *FilesystemStore) Name() string { return "filesystem" }

func (s *FilesystemStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("filesystem store: invalid key %q", key)
	}
	return filepath.Join(s.dir, clean), nil
}

// Get implements ObjectStore.
func (s *FilesystemStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return nil, fmt.Errorf("filesystem store get: %w", err)
	}
	return data, nil
}

// Put implements ObjectStore. The object is written to a temp file and
// renamed so readers never see a partial copy.
func (s *FilesystemStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := WriteFileAtomic(p, data); err != nil {
		return fmt.Errorf("filesystem store put: %w", err)
	}
	return nil
}

// Ping implements ObjectStore.
func (s *FilesystemStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("filesystem store ping: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("filesystem store ping: %s is not a directory", s.dir)
	}
	return nil
}

// WriteFileAtomic writes data to a temp file beside path, syncs it, and
// renames it over path. Missing parent directories are created.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
