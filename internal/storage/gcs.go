package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS stores images in a Google Cloud Storage bucket that allows public reads.
type GCS struct {
	client *gcs.Client
	bucket string
	base   string
}

var _ Store = (*GCS)(nil)

// GCSConfig names the bucket. CredentialsFile may be a path or inline JSON;
// empty means Application Default Credentials. PublicBase defaults to
// https://storage.googleapis.com/<bucket>.
type GCSConfig struct {
	Bucket          string
	CredentialsFile string
	PublicBase      string
}

func NewGCS(ctx context.Context, cfg GCSConfig) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: missing GCS bucket name")
	}

	opts := []option.ClientOption{option.WithScopes(gcs.ScopeReadWrite)}
	switch creds := strings.TrimSpace(cfg.CredentialsFile); {
	case strings.HasPrefix(creds, "{"):
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	case creds != "":
		opts = append(opts, option.WithCredentialsFile(creds))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: creating GCS client: %w", err)
	}

	base := strings.TrimRight(cfg.PublicBase, "/")
	if base == "" {
		base = "https://storage.googleapis.com/" + cfg.Bucket
	}
	return &GCS{client: client, bucket: cfg.Bucket, base: base}, nil
}

func (g *GCS) PublicBase() string { return g.base }

func (g *GCS) Upload(ctx context.Context, name string, r io.Reader, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	// DoesNotExist: never replace an object that already has this name
	obj := g.client.Bucket(g.bucket).Object(name).If(gcs.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=3600"

	n, err := io.Copy(w, io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage: writing gs://%s/%s: %w", g.bucket, name, err)
	}
	if n > MaxImageBytes {
		// cancelling before Close abandons the upload
		cancel()
		_ = w.Close()
		return "", CheckImage("image/", n)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: closing gs://%s/%s: %w", g.bucket, name, err)
	}
	return g.base + "/" + name, nil
}

func (g *GCS) Delete(ctx context.Context, url string) error {
	key, ok := ObjectKeyFromURL(g.base, url)
	if !ok {
		return fmt.Errorf("%w: %s", ErrForeignURL, url)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := g.client.Bucket(g.bucket).Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("storage: deleting gs://%s/%s: %w", g.bucket, key, err)
	}
	return nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
