// Package config loads process configuration from the environment.
//
// SOURCES, IN ORDER:
//  1. A .env file in the working directory, if there is one (godotenv).
//     Variables already set in the environment win over the file.
//  2. The environment itself.
//  3. Defaults that make `go run ./cmd/server` work on a laptop.
//
// Nothing here talks to the network or the filesystem beyond reading .env,
// so LoadServer and LoadClient are safe to call from tests.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends for method images.
const (
	StorageDisk = "disk"
	StorageGCS  = "gcs"
)

// Server is everything cmd/server needs.
type Server struct {
	Port   int
	DBPath string

	JWTSecret  string
	SessionTTL time.Duration
	AdminEmail string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	CORSOrigins []string

	// RedisAddr switches the session bus and stats cache from in-process to Redis.
	RedisAddr    string
	RedisChannel string

	StorageBackend     string
	MediaDir           string
	PublicBaseURL      string
	GCSBucket          string
	GCSCredentialsFile string

	SeedOnStart bool
}

// GitHubEnabled reports whether GitHub sign-in routes should be registered.
func (c Server) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// MediaBase is the public URL prefix for uploaded images. Empty means the
// backend's own default; the disk store serves under /media on this server.
func (c Server) MediaBase() string {
	if c.PublicBaseURL != "" || c.StorageBackend == StorageGCS {
		return c.PublicBaseURL
	}
	return fmt.Sprintf("http://localhost:%d/media", c.Port)
}

// LoadServer reads the server configuration.
func LoadServer() (Server, error) {
	_ = godotenv.Load() // ok if missing

	var errs []error
	port := intEnv("PORT", 8080, &errs)

	cfg := Server{
		Port:               port,
		DBPath:             envOr("DB_PATH", "data/pickleit.db"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		SessionTTL:         durationEnv("SESSION_TTL", 7*24*time.Hour, &errs),
		AdminEmail:         strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		GitHubCallbackURL:  envOr("GITHUB_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/github/callback", port)),
		CORSOrigins:        splitList(envOr("CORS_ORIGINS", "http://localhost:5173")),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisChannel:       envOr("REDIS_CHANNEL", "pickleit:sessions"),
		StorageBackend:     strings.ToLower(envOr("STORAGE_BACKEND", StorageDisk)),
		MediaDir:           envOr("MEDIA_DIR", "data/media"),
		PublicBaseURL:      strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		GCSBucket:          os.Getenv("GCS_BUCKET"),
		GCSCredentialsFile: os.Getenv("GCS_CREDENTIALS_FILE"),
		SeedOnStart:        boolEnv("SEED_ON_START", false, &errs),
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required (try: openssl rand -hex 32)"))
	}
	switch cfg.StorageBackend {
	case StorageDisk:
	case StorageGCS:
		if cfg.GCSBucket == "" {
			errs = append(errs, errors.New("GCS_BUCKET is required when STORAGE_BACKEND=gcs"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StorageDisk, StorageGCS, cfg.StorageBackend))
	}

	if err := errors.Join(errs...); err != nil {
		return Server{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Client is the CLI's configuration. Flags override both fields.
type Client struct {
	APIURL string
	Home   string
}

// LoadClient reads PICKLEIT_API_URL and PICKLEIT_HOME. Home defaults to
// ~/.pickleit, or ./.pickleit when there is no home directory.
func LoadClient() Client {
	_ = godotenv.Load()

	home := os.Getenv("PICKLEIT_HOME")
	if home == "" {
		if dir, err := os.UserHomeDir(); err == nil {
			home = filepath.Join(dir, ".pickleit")
		} else {
			home = ".pickleit"
		}
	}
	return Client{
		APIURL: strings.TrimRight(envOr("PICKLEIT_API_URL", "http://localhost:8080"), "/"),
		Home:   home,
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		*errs = append(*errs, fmt.Errorf("%s must be a positive integer, got %q", key, v))
		return def
	}
	return n
}

func durationEnv(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s must be a positive duration like 168h, got %q", key, v))
		return def
	}
	return d
}

func boolEnv(key string, def bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be true or false, got %q", key, v))
		return def
	}
	return b
}

// splitList splits a comma-separated list, dropping blanks and trailing slashes.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if o := strings.TrimRight(strings.TrimSpace(p), "/"); o != "" {
			out = append(out, o)
		}
	}
	return out
}
