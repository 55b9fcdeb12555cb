// Package statscache keeps last-known counts so a screen can show plausible
// numbers before the network answers.
//
// ADVISORY ONLY:
// Nothing read from here is ever treated as the truth. Values have no TTL; every
// successful fetch overwrites them, and readers replace them as soon as the
// authoritative value arrives. Concurrent writers race and the last one wins,
// which is fine for a hint.
//
// The Store interface is deliberately tiny (Get/Set/Invalidate) so tests can use
// the in-memory store while the CLI persists to SQLite and the server shares
// counts across instances through Redis.
package statscache

import (
	"context"
	"log/slog"
	"strconv"
)

// Fixed keys for global counts.
const (
	KeyAchievementsTotal  = "achievements_total"
	KeyAchievementsEarned = "achievements_earned"
	KeyTotalMethods       = "total_methods_count"
	KeyCompletedMethods   = "completed_methods_count"
	KeySavedMethods       = "saved_methods_count"
)

// UserPointsKey is the per-user key for the cached point total.
func UserPointsKey(userID string) string { return "user_points_" + userID }

// UserLevelTitleKey is the per-user key for the cached level title.
func UserLevelTitleKey(userID string) string { return "user_level_title_" + userID }

// Store is a flat string key/value store.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Invalidate(ctx context.Context, key string) error
}

// Stats is a typed view over a Store.
//
// Errors from the store are logged at debug level and swallowed: a broken cache
// must never break the screen that consults it.
type Stats struct {
	store  Store
	logger *slog.Logger
}

// New wraps store.
func New(store Store, logger *slog.Logger) *Stats {
	return &Stats{store: store, logger: logger}
}

// Counts is a snapshot of every global count the cache knows about.
// A missing entry is reported as ok=false in Has.
type Counts struct {
	AchievementsTotal  int
	AchievementsEarned int
	TotalMethods       int
	CompletedMethods   int
	SavedMethods       int
	Has                map[string]bool
}

// Int returns the cached integer under key.
func (s *Stats) Int(ctx context.Context, key string) (int, bool) {
	raw, ok := s.get(ctx, key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		s.logger.Debug("stats cache: ignoring non-numeric value",
			slog.String("key", key),
			slog.String("value", raw),
		)
		return 0, false
	}
	return n, true
}

// SetInt stores n under key.
func (s *Stats) SetInt(ctx context.Context, key string, n int) {
	s.set(ctx, key, strconv.Itoa(n))
}

// Counts reads every global count in one go.
func (s *Stats) Counts(ctx context.Context) Counts {
	c := Counts{Has: make(map[string]bool, 5)}
	read := func(key string, dst *int) {
		if n, ok := s.Int(ctx, key); ok {
			*dst = n
			c.Has[key] = true
		}
	}
	read(KeyAchievementsTotal, &c.AchievementsTotal)
	read(KeyAchievementsEarned, &c.AchievementsEarned)
	read(KeyTotalMethods, &c.TotalMethods)
	read(KeyCompletedMethods, &c.CompletedMethods)
	read(KeySavedMethods, &c.SavedMethods)
	return c
}

// UserPoints returns the cached point total for userID.
func (s *Stats) UserPoints(ctx context.Context, userID string) (int, bool) {
	return s.Int(ctx, UserPointsKey(userID))
}

// SetUserPoints caches the point total for userID.
func (s *Stats) SetUserPoints(ctx context.Context, userID string, points int) {
	s.SetInt(ctx, UserPointsKey(userID), points)
}

// UserLevelTitle returns the cached level title for userID.
func (s *Stats) UserLevelTitle(ctx context.Context, userID string) (string, bool) {
	return s.get(ctx, UserLevelTitleKey(userID))
}

// SetUserLevelTitle caches the level title for userID.
func (s *Stats) SetUserLevelTitle(ctx context.Context, userID, title string) {
	s.set(ctx, UserLevelTitleKey(userID), title)
}

// Invalidate drops key.
func (s *Stats) Invalidate(ctx context.Context, key string) {
	if err := s.store.Invalidate(ctx, key); err != nil {
		s.logger.Debug("stats cache: invalidate failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// ForgetUser drops the per-user entries, e.g. on sign-out.
func (s *Stats) ForgetUser(ctx context.Context, userID string) {
	s.Invalidate(ctx, UserPointsKey(userID))
	s.Invalidate(ctx, UserLevelTitleKey(userID))
}

func (s *Stats) get(ctx context.Context, key string) (string, bool) {
	v, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Debug("stats cache: read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return "", false
	}
	return v, ok
}

func (s *Stats) set(ctx context.Context, key, value string) {
	if err := s.store.Set(ctx, key, value); err != nil {
		s.logger.Debug("stats cache: write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
