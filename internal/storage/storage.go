// Package storage keeps method images.
//
// Two backends share one interface:
//   - Disk: files under MEDIA_DIR, served by the API server at /media/
//   - GCS:  objects in a Google Cloud Storage bucket, served by GCS itself
//
// Every uploaded object gets a fresh name (<unix ms>-<xid>.<ext>), so an
// upload never overwrites another. Replacing an image is upload-new, point
// the method at it, delete-old.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/pickleit/internal/apperror"
)

// MaxImageBytes is the largest accepted upload.
const MaxImageBytes = 5 << 20

// ErrForeignURL is returned by Delete for URLs this store did not issue.
var ErrForeignURL = errors.New("storage: url not issued by this store")

// Store uploads and deletes public images.
type Store interface {
	// Upload writes r under name and returns the public URL.
	Upload(ctx context.Context, name string, r io.Reader, contentType string) (string, error)
	// Delete removes the object behind a URL returned by Upload.
	Delete(ctx context.Context, url string) error
	// PublicBase is the URL prefix of every object this store serves.
	PublicBase() string
	Close() error
}

// UniqueFilename builds a collision-free object name that keeps the
// original extension: "<unix ms>-<xid>.<ext>".
func UniqueFilename(original string, now time.Time) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(original), "."))
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%d-%s.%s", now.UnixMilli(), xid.New().String(), ext)
}

// ObjectKeyFromURL returns the object key of url under base, or ok=false
// when url does not belong to base.
func ObjectKeyFromURL(base, url string) (string, bool) {
	base = strings.TrimRight(base, "/") + "/"
	if base == "/" || !strings.HasPrefix(url, base) {
		return "", false
	}
	key := strings.TrimPrefix(url, base)
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	if key == "" || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}

// CheckImage validates an upload before it reaches the store.
func CheckImage(contentType string, size int64) error {
	if !strings.HasPrefix(contentType, "image/") {
		return apperror.ValidationFailed("image", "Please select an image file")
	}
	if size > MaxImageBytes {
		return apperror.ValidationFailed("image", "Image must be smaller than 5MB")
	}
	return nil
}
