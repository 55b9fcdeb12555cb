// Package apiclient is the HTTP client for the PickleIt API.
//
// ONE CLIENT, MANY INTERFACES:
// *Client satisfies every repository interface the client-side state core
// needs (methods, saved methods, completions, achievements, profile) plus
// session.Backend. The CLI builds one Client at startup, injects it
// everywhere, and closes it at exit.
//
// AUTHENTICATION:
// The server reads the session JWT from the "token" cookie. Sign-up and
// sign-in return the token in the body as well; the client keeps it and
// sends it as a cookie on every request. Persisting it between runs is the
// caller's job (see Token/SetToken).
//
// ERRORS:
// Error bodies ({"error": "not_found", ...}) are turned back into apperror
// values, so errors.Is(err, apperror.ErrConflict) works the same against the
// HTTP API as against the sqlite repository.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sakif/pickleit/internal/apperror"
	"github.com/sakif/pickleit/internal/auth"
)

// DefaultTimeout bounds each plain request. The session stream is not subject to it.
const DefaultTimeout = 15 * time.Second

// Client talks to one PickleIt server.
type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger

	mu    sync.RWMutex
	token string

	// streams tracks open session streams so Close can end them.
	streams sync.WaitGroup
	closeMu sync.Mutex
	closers map[int]func()
	nextID  int
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client (for tests or proxies).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken starts the client with a saved session token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client for the server at baseURL (e.g. "http://localhost:8080").
func New(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  logger,
		closers: make(map[int]func()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current session token, or "" when signed out.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the session token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Close ends every open session stream and waits for their readers to exit.
func (c *Client) Close() error {
	c.closeMu.Lock()
	for id, stop := range c.closers {
		stop()
		delete(c.closers, id)
	}
	c.closeMu.Unlock()
	c.streams.Wait()
	c.http.CloseIdleConnections()
	return nil
}

// do sends a request and decodes a JSON response into out (which may be nil).
// A non-2xx status becomes an apperror via decodeError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("apiclient: encoding %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("apiclient: building %s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

// send attaches the session cookie, runs req, and decodes the response.
func (c *Client) send(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api request",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("apiclient: decoding %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// errorBody mirrors handler.ErrorResponse.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

// decodeError maps an error response to the apperror sentinel the server started from.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil || eb.Message == "" {
		eb.Message = strings.TrimSpace(string(raw))
		if eb.Message == "" {
			eb.Message = http.StatusText(resp.StatusCode)
		}
	}

	var sentinel error
	switch {
	case eb.Error == "validation_error" || resp.StatusCode == http.StatusBadRequest:
		sentinel = apperror.ErrValidation
	case eb.Error == "unauthorized" || resp.StatusCode == http.StatusUnauthorized:
		sentinel = apperror.ErrUnauthenticated
	case eb.Error == "forbidden" || resp.StatusCode == http.StatusForbidden:
		sentinel = apperror.ErrForbidden
	case eb.Error == "not_found" || resp.StatusCode == http.StatusNotFound:
		sentinel = apperror.ErrNotFound
	case eb.Error == "conflict" || resp.StatusCode == http.StatusConflict:
		sentinel = apperror.ErrConflict
	default:
		return &StatusError{Code: resp.StatusCode, Message: eb.Message}
	}
	return &apperror.AppError{Err: sentinel, Message: eb.Message, Field: eb.Field}
}

// StatusError is an unexpected (usually 5xx) response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("apiclient: server returned %d: %s", e.Code, e.Message)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
