package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/pickleit/internal/apperror"
	"github.com/sakif/pickleit/internal/model"
	"github.com/sakif/pickleit/internal/progress"
	"github.com/sakif/pickleit/internal/repository"
	"github.com/sakif/pickleit/internal/session"
	"github.com/sakif/pickleit/internal/statscache"
)

// CompletionPoints is credited for mastering a method for the first time.
const CompletionPoints = 10

// Backend is everything the core reads and writes remotely. Both
// *apiclient.Client and *sqlite.DB satisfy it.
type Backend interface {
	AwardBackend
	repository.SavedMethodRepository
}

// Core wires the session source to the profile and saved-methods state for
// one process.
//
//	core := state.NewCore(client, src, stats, logger, state.Options{})
//	if err := core.Start(ctx); err != nil { ... }
//	defer core.Close()
type Core struct {
	Profile  *ProfileSync
	Saved    *SavedMethods
	Awarder  *Awarder
	Notifier *Notifier

	backend Backend
	source  *session.Source
	stats   *statscache.Stats
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options tunes the notifier.
type Options struct {
	NotifyDelay time.Duration
	OnAward     func(progress.Achievement)
}

func NewCore(backend Backend, source *session.Source, stats *statscache.Stats, logger *slog.Logger, opts Options) *Core {
	notifier := NewNotifier(opts.NotifyDelay, opts.OnAward)
	profile := NewProfileSync(backend, stats, logger)
	awarder := NewAwarder(backend, stats, notifier, logger)
	return &Core{
		Profile:  profile,
		Saved:    NewSavedMethods(backend, awarder, profile, stats, logger),
		Awarder:  awarder,
		Notifier: notifier,
		backend:  backend,
		source:   source,
		stats:    stats,
		logger:   logger,
	}
}

// Start starts the session source, applies the current user, and then
// follows session changes in the background until Close.
func (c *Core) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	err := c.source.Start(ctx)
	if err != nil && !errors.Is(err, session.ErrAlreadyStarted) {
		// the initial fetch still stands; only live updates are lost
		c.logger.Warn("session stream unavailable", slog.String("error", err.Error()))
	}

	c.apply(ctx, c.source.UserID())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for userID := range c.source.Changes() {
			c.apply(ctx, userID)
		}
	}()
	return nil
}

// UserID is the current user, or "".
func (c *Core) UserID() string {
	return c.source.UserID()
}

// Close stops following the session and cancels in-flight loads.
func (c *Core) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.source.Close()
	c.wg.Wait()
	c.Profile.Close()
	c.Notifier.Close()
}

// apply loads the profile and the saved set for userID side by side.
// Failures are already logged by each component.
func (c *Core) apply(ctx context.Context, userID string) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = c.Profile.SetUser(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		_ = c.Saved.SetUser(ctx, userID)
	}()
	wg.Wait()
}

// CompleteMethod marks methodID as mastered, credits CompletionPoints the
// first time, and runs the award check. It returns the achievements granted.
func (c *Core) CompleteMethod(ctx context.Context, methodID int64, notes string, rating int) ([]progress.Achievement, error) {
	userID := c.UserID()
	if userID == "" {
		return nil, apperror.Unauthenticated("You must be logged in to complete methods.")
	}
	if rating != 0 && (rating < 1 || rating > 5) {
		return nil, apperror.ValidationFailed("rating", "Rating must be between 1 and 5")
	}

	comp := &model.CompletedMethod{
		UserID:      userID,
		MethodID:    methodID,
		Notes:       notes,
		Rating:      rating,
		CompletedAt: time.Now(),
	}
	// first-ness comes from the insert itself, not from a prior read
	firstTime, err := c.backend.UpsertCompletion(ctx, comp)
	if err != nil {
		return nil, fmt.Errorf("state: completing method %d: %w", methodID, err)
	}

	reward := 0
	if firstTime {
		if err := c.backend.AddUserPoints(ctx, userID, CompletionPoints); err != nil {
			c.logger.Error("completion recorded but points not credited",
				slog.String("user_id", userID),
				slog.Int64("method_id", methodID),
				slog.String("error", err.Error()),
			)
		} else {
			reward += CompletionPoints
		}
	}

	awarded, err := c.Awarder.CheckAndAward(ctx, userID, c.Saved.Count())
	if err != nil {
		c.logger.Warn("achievement check after completion failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	reward += progress.TotalPoints(awarded)
	c.Profile.AddPoints(ctx, reward)

	return awarded, nil
}

// UncompleteMethod removes a mastered mark. Points already credited stay.
func (c *Core) UncompleteMethod(ctx context.Context, methodID int64) error {
	userID := c.UserID()
	if userID == "" {
		return apperror.Unauthenticated("You must be logged in to complete methods.")
	}
	if err := c.backend.DeleteCompletion(ctx, userID, methodID); err != nil {
		return fmt.Errorf("state: uncompleting method %d: %w", methodID, err)
	}
	c.stats.Invalidate(ctx, statscache.KeyCompletedMethods)
	return nil
}
