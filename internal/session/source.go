package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Backend is what a Source needs from the server: the current session and a
// stream of changes. SubscribeSession follows the Bus.Subscribe contract.
type Backend interface {
	CurrentSession(ctx context.Context) (userID string, err error)
	SubscribeSession(ctx context.Context, fn func(Event)) error
}

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("session: source already started")

// Source tracks the signed-in user id.
//
// LIFECYCLE:
//
//	src := session.NewSource(client, logger)
//	if err := src.Start(ctx); err != nil { ... }   // fetch once, then subscribe
//	defer src.Close()                               // unsubscribe
//
// After Close returns, no callback from the stream can change the user id or
// send on Changes: every mutation checks the closed flag under the same mutex
// that Close takes.
type Source struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.Mutex
	userID  string
	started bool
	closed  bool
	cancel  context.CancelFunc
	changes chan string
}

// NewSource builds an unstarted Source.
func NewSource(backend Backend, logger *slog.Logger) *Source {
	return &Source{
		backend: backend,
		logger:  logger,
		changes: make(chan string, 1),
	}
}

// Start fetches the current session, then subscribes to session changes.
//
// A failed fetch is logged and leaves the user id empty until the stream
// delivers one. A failed subscription is returned; there is no retry.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	userID, err := s.backend.CurrentSession(ctx)
	if err != nil {
		s.logger.Warn("session: initial fetch failed", slog.String("error", err.Error()))
	} else {
		s.set(userID)
	}

	if err := s.backend.SubscribeSession(ctx, s.onEvent); err != nil {
		s.logger.Warn("session: subscribe failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// UserID returns the latest known user id, or "" when signed out.
func (s *Source) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Changes delivers the user id each time it changes. Only the latest value is
// kept if the reader falls behind. The channel is closed by Close.
func (s *Source) Changes() <-chan string {
	return s.changes
}

// Close unsubscribes. It is safe to call more than once.
func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	close(s.changes)
}

func (s *Source) onEvent(e Event) {
	switch e.Kind {
	case KindSignedOut:
		s.set("")
	case KindSignedIn, KindCurrent:
		s.set(e.UserID)
	default:
		s.logger.Debug("session: ignoring event", slog.String("kind", string(e.Kind)))
	}
}

func (s *Source) set(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || userID == s.userID {
		return
	}
	s.userID = userID

	// latest-value channel: drop a stale unread value, then send
	select {
	case <-s.changes:
	default:
	}
	s.changes <- userID
}
