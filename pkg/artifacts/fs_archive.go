package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FSArchive keeps blobs as files under a base directory.
type FSArchive struct {
	baseDir string
}

// NewFSArchive creates the directory if needed.
func NewFSArchive(baseDir string) (*FSArchive, error) {
	//nolint:gosec // G301: shared artifact directory
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure artifact dir: %w", err)
	}
	return &FSArchive{baseDir: baseDir}, nil
}

func (a *FSArchive) path(addr string) (string, error) {
	digest, err := digestOf(addr)
	if err != nil {
		return "", err
	}
	return filepath.Join(a.baseDir, objectKey("", digest)), nil
}

func (a *FSArchive) Put(ctx context.Context, data []byte) (string, error) {
	addr := Address(data)
	path, _ := a.path(addr)
	if _, err := os.Stat(path); err == nil {
		return addr, nil
	}

	tmp, err := os.CreateTemp(a.baseDir, "put-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp blob: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}
	return addr, nil
}

func (a *FSArchive) Get(ctx context.Context, addr string) ([]byte, error) {
	path, err := a.path(addr)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // path built from validated hex
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	return data, err
}

func (a *FSArchive) Exists(ctx context.Context, addr string) (bool, error) {
	path, err := a.path(addr)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (a *FSArchive) Delete(ctx context.Context, addr string) error {
	path, err := a.path(addr)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}
