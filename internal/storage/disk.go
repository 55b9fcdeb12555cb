package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Disk stores images as files in one directory.
type Disk struct {
	dir  string
	base string
}

var _ Store = (*Disk)(nil)

// NewDisk creates dir if needed. publicBase is the URL the server mounts dir
// at, e.g. "http://localhost:8080/media".
func NewDisk(dir, publicBase string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating media dir %q: %w", dir, err)
	}
	return &Disk{dir: dir, base: strings.TrimRight(publicBase, "/")}, nil
}

// Dir is the directory to serve at PublicBase.
func (d *Disk) Dir() string { return d.dir }

func (d *Disk) PublicBase() string { return d.base }

func (d *Disk) Upload(ctx context.Context, name string, r io.Reader, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name != filepath.Base(name) {
		return "", fmt.Errorf("storage: invalid object name %q", name)
	}

	target := filepath.Join(d.dir, name)
	// O_EXCL: unique names mean an existing file is a bug, not an overwrite
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("storage: creating %s: %w", name, err)
	}
	n, err := io.Copy(f, io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		_ = f.Close()
		_ = os.Remove(target)
		return "", fmt.Errorf("storage: writing %s: %w", name, err)
	}
	if n > MaxImageBytes {
		_ = f.Close()
		_ = os.Remove(target)
		return "", CheckImage("image/", n)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("storage: closing %s: %w", name, err)
	}
	return d.base + "/" + name, nil
}

func (d *Disk) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, ok := ObjectKeyFromURL(d.base, url)
	if !ok || key != filepath.Base(key) {
		return fmt.Errorf("%w: %s", ErrForeignURL, url)
	}
	if err := os.Remove(filepath.Join(d.dir, key)); err != nil {
		return fmt.Errorf("storage: deleting %s: %w", key, err)
	}
	return nil
}

func (d *Disk) Close() error { return nil }
