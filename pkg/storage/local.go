package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// LocalFileSystem serves file:// URIs and bare paths.
type LocalFileSystem struct{}

// NewLocalFileSystem returns the local filesystem backend.
func NewLocalFileSystem() *LocalFileSystem {
	return &LocalFileSystem{}
}

func (fs *LocalFileSystem) Protocol() string {
	return "file"
}

func (fs *LocalFileSystem) Sep() string {
	return "/"
}

func (fs *LocalFileSystem) RootMarker() string {
	return "/"
}

func (fs *LocalFileSystem) MakeDirs(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %q: %w", path, err)
	}
	return nil
}

func (fs *LocalFileSystem) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %q: %w", path, err)
	}
	return info.Size(), nil
}

func (fs *LocalFileSystem) OpenInputFile(path string) (File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", path, err)
	}
	return file, nil
}

func (fs *LocalFileSystem) Create(path string) (WritableFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %q: %w", path, err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %q: %w", path, err)
	}
	return file, nil
}

func (fs *LocalFileSystem) UnstripProtocol(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return "file://" + path
}
