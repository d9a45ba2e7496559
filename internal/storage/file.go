package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileBackend stores each drop as a file under Root.
type FileBackend struct {
	root string
}

// NewFileBackend creates a FileBackend rooted at root, creating the directory.
func NewFileBackend(root string) (*FileBackend, error) {
	if root == "" {
		return nil, errors.New("storage: file backend root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root %s: %w", root, err)
	}
	return &FileBackend{root: root}, nil
}

// Root returns the backend's root directory.
func (b *FileBackend) Root() string {
	return b.root
}

// Path returns the file path used for key.
func (b *FileBackend) Path(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}

// resolve returns the file path of key, refusing keys that resolve to the
// root itself or outside of it.
func (b *FileBackend) resolve(key string) (string, error) {
	path := b.Path(key)
	rel, err := filepath.Rel(b.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return path, nil
}

func (b *FileBackend) Append(ctx context.Context, key string, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("storage: append %s: %w", key, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("storage: append %s: %w", key, err)
	}
	if _, err := f.Write(p); err != nil {
		f.Close()
		return fmt.Errorf("storage: append %s: %w", key, err)
	}
	return f.Close()
}

func (b *FileBackend) Commit(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("storage: commit %s: %w", key, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("storage: commit %s: %w", key, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("storage: commit %s: %w", key, err)
	}
	return f.Close()
}

func (b *FileBackend) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := b.resolve(key)
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
	return false, fmt.Errorf("storage: stat %s: %w", key, err)
}

func (b *FileBackend) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := b.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return f, nil
}

func (b *FileBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := b.resolve(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("storage: delete %s: %w", key, err)
}

var _ Backend = (*FileBackend)(nil)
