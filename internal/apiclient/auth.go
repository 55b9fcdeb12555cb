package apiclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/pickleit/internal/apperror"
	"github.com/sakif/pickleit/internal/auth"
	"github.com/sakif/pickleit/internal/model"
	"github.com/sakif/pickleit/internal/session"
)

var _ session.Backend = (*Client)(nil)

type sessionBody struct {
	User  *model.User `json:"user"`
	Token string      `json:"token,omitempty"`
}

// SignUp registers an email account and keeps the returned session token.
func (c *Client) SignUp(ctx context.Context, email, password string) (*model.User, error) {
	return c.authenticate(ctx, "/api/auth/signup", email, password)
}

// SignIn checks credentials and keeps the returned session token.
func (c *Client) SignIn(ctx context.Context, email, password string) (*model.User, error) {
	return c.authenticate(ctx, "/api/auth/signin", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (*model.User, error) {
	in := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{email, password}

	var out sessionBody
	if err := c.do(ctx, http.MethodPost, path, in, &out); err != nil {
		return nil, err
	}
	if out.User == nil || out.Token == "" {
		return nil, fmt.Errorf("apiclient: %s returned no session", path)
	}
	c.SetToken(out.Token)
	return out.User, nil
}

// SignOut tells the server (which notifies open session streams) and forgets
// the token. The token is dropped even when the request fails.
func (c *Client) SignOut(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/signout", nil, nil)
	c.SetToken("")
	return err
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// CurrentSession returns the signed-in user id, or "" when signed out or the
// saved token has expired.
func (c *Client) CurrentSession(ctx context.Context) (string, error) {
	if c.Token() == "" {
		return "", nil
	}
	var out sessionBody
	if err := c.do(ctx, http.MethodGet, "/api/auth/session", nil, &out); err != nil {
		return "", err
	}
	if out.User == nil {
		return "", nil
	}
	return out.User.ID, nil
}

// SubscribeSession opens the websocket session stream and delivers its
// events to fn until ctx is cancelled, the client is closed, or the server
// hangs up. It returns once the stream is open.
//
// Without a token there is no stream to open; SubscribeSession returns nil
// and never calls fn.
func (c *Client) SubscribeSession(ctx context.Context, fn func(session.Event)) error {
	token := c.Token()
	if token == "" {
		return nil
	}

	header := http.Header{}
	header.Set("Cookie", (&http.Cookie{Name: auth.CookieName, Value: token}).String())

	dialer := websocket.Dialer{HandshakeTimeout: DefaultTimeout}
	ws, resp, err := dialer.DialContext(ctx, streamURL(c.base), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return decodeError(resp)
		}
		return fmt.Errorf("apiclient: opening session stream: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	id := c.track(cancel)

	// ReadJSON blocks; closing the connection is what unblocks it.
	go func() {
		<-ctx.Done()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ws.Close()
	}()

	c.streams.Add(1)
	go func() {
		defer c.streams.Done()
		defer c.untrack(id)
		defer cancel()
		for {
			var ev session.Event
			if err := ws.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					c.logger.Warn("session stream ended", slog.String("error", err.Error()))
				}
				return
			}
			fn(ev)
		}
	}()
	return nil
}

func (c *Client) track(stop func()) int {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	c.nextID++
	c.closers[c.nextID] = stop
	return c.nextID
}

func (c *Client) untrack(id int) {
	c.closeMu.Lock()
	delete(c.closers, id)
	c.closeMu.Unlock()
}

func streamURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/auth/stream"
}

// IsSignedOut reports whether err means the session is missing or expired.
func IsSignedOut(err error) bool {
	return errors.Is(err, apperror.ErrUnauthenticated)
}
