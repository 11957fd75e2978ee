package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Filesystem stores objects as files under a root directory.
type Filesystem struct {
	root string
}

// NewFilesystem returns a Filesystem rooted at root, creating it if needed.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "./published"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Filesystem{root: root}, nil
}

// Driver implements Store.
func (f *Filesystem) Driver() Driver { return DriverFilesystem }

// Put writes r to root/key atomically: temp file, sync, rename.
func (f *Filesystem) Put(ctx context.Context, key string, r io.Reader, _ string) (string, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst := filepath.Join(f.root, filepath.FromSlash(k))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".blob-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write blob %s: %w", k, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync blob %s: %w", k, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close blob %s: %w", k, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return "", fmt.Errorf("rename blob %s: %w", k, err)
	}
	return dst, nil
}
