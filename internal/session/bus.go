// Package session carries session-change events (sign-in, sign-out) from the
// place they happen to everyone who cares.
//
// Server side, a Bus fans events out to every open session stream. With one
// server instance the in-memory bus is enough; behind a load balancer the
// Redis bus makes a sign-out on instance A reach a stream held by instance B.
//
// Client side, a Source turns "fetch the session once, then follow the stream"
// into a single current user id.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Kind names a session transition.
type Kind string

const (
	KindSignedIn  Kind = "signed_in"
	KindSignedOut Kind = "signed_out"
	// KindCurrent is sent first on every stream: the session as it is right now.
	KindCurrent Kind = "current"
)

// Event is one session transition. UserID is empty for a signed-out KindCurrent.
type Event struct {
	Kind   Kind      `json:"kind"`
	UserID string    `json:"userId"`
	At     time.Time `json:"at"`
}

// Bus publishes events and delivers them to subscribers.
//
// Subscribe returns once the subscription is live and delivers events to fn
// until ctx is cancelled.
type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(ctx context.Context, fn func(Event)) error
	Close() error
}

// =========================================================================
// MEMORY BUS
// =========================================================================

type memoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

// NewMemoryBus returns a Bus that only reaches subscribers in this process.
func NewMemoryBus() Bus {
	return &memoryBus{subs: make(map[int]func(Event))}
}

// Publish delivers e synchronously to every current subscriber.
func (b *memoryBus) Publish(_ context.Context, e Event) error {
	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
	return nil
}

func (b *memoryBus) Subscribe(ctx context.Context, fn func(Event)) error {
	if fn == nil {
		return fmt.Errorf("session: subscriber callback required")
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *memoryBus) Close() error { return nil }

// =========================================================================
// REDIS BUS
// =========================================================================

type redisBus struct {
	log     *slog.Logger
	rdb     *goredis.Client
	channel string
}

// NewRedisBus connects to addr and publishes on channel (default "pickleit:sessions").
func NewRedisBus(addr, channel string, logger *slog.Logger) (Bus, error) {
	if addr == "" {
		return nil, fmt.Errorf("session: missing redis address")
	}
	if channel == "" {
		channel = "pickleit:sessions"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("session: redis ping: %w", err)
	}

	return &redisBus{
		log:     logger.With(slog.String("component", "session.redisBus")),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (b *redisBus) Publish(ctx context.Context, e Event) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("session: encoding event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("session: redis publish: %w", err)
	}
	return nil
}

func (b *redisBus) Subscribe(ctx context.Context, fn func(Event)) error {
	if fn == nil {
		return fmt.Errorf("session: subscriber callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// Receive blocks until Redis confirms the subscription.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("session: redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(m.Payload), &e); err != nil {
					b.log.Warn("bad session event payload", slog.String("error", err.Error()))
					continue
				}
				fn(e)
			}
		}
	}()

	return nil
}

func (b *redisBus) Close() error {
	return b.rdb.Close()
}
