package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/pickleit/internal/apperror"
	"github.com/sakif/pickleit/internal/progress"
	"github.com/sakif/pickleit/internal/repository"
	"github.com/sakif/pickleit/internal/statscache"
)

// AwardBackend is the slice of the backend the award flow reads and writes.
type AwardBackend interface {
	repository.MethodRepository
	repository.CompletedMethodRepository
	repository.AchievementRepository
	repository.ProfileRepository
}

// Awarder evaluates a user's progress and grants achievements they newly qualify for.
type Awarder struct {
	backend  AwardBackend
	stats    *statscache.Stats
	notifier *Notifier
	logger   *slog.Logger
}

func NewAwarder(backend AwardBackend, stats *statscache.Stats, notifier *Notifier, logger *slog.Logger) *Awarder {
	return &Awarder{backend: backend, stats: stats, notifier: notifier, logger: logger}
}

// Snapshot gathers the counts the achievement rules need. The five reads run
// concurrently and any failure fails the snapshot.
//
// savedCount is taken from the caller rather than fetched: a caller that has
// just saved a method passes the prospective count.
func (a *Awarder) Snapshot(ctx context.Context, userID string, savedCount int) (progress.Snapshot, []string, error) {
	var (
		earned     []string
		completed  int
		categories []string
		learned    int
		total      int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		earned, err = a.backend.EarnedAchievementIDs(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		completed, err = a.backend.CompletedCount(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		categories, err = a.backend.CompletedCategories(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		learned, err = a.backend.LearnedMethodsCount(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		total, err = a.backend.CountMethods(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return progress.Snapshot{}, nil, fmt.Errorf("state: fetching progress snapshot: %w", err)
	}

	return progress.Snapshot{
		SavedCount:          savedCount,
		CompletedCount:      completed,
		CompletedCategories: categories,
		AllMethodsLearned:   total > 0 && learned >= total,
		TotalMethods:        total,
	}, earned, nil
}

// CheckAndAward grants every achievement the user now qualifies for and has
// not yet earned, and returns the ones this call actually granted.
//
// Each award is two writes: the award row, then the atomic points increment.
// A duplicate award row means another caller got there first and is skipped
// without touching points. A failed increment after a stored row is logged
// and reported in the returned error, but the achievement still counts as
// granted; the two writes are not transactional.
func (a *Awarder) CheckAndAward(ctx context.Context, userID string, savedCount int) ([]progress.Achievement, error) {
	if userID == "" {
		return nil, apperror.Unauthenticated("You must be logged in to earn achievements.")
	}

	snap, earned, err := a.Snapshot(ctx, userID, savedCount)
	if err != nil {
		return nil, err
	}

	pending := progress.Pending(progress.Evaluate(snap), earned)

	var (
		awarded []progress.Achievement
		errs    []error
	)
	for _, ach := range pending {
		if err := a.backend.InsertAchievement(ctx, userID, ach.ID); err != nil {
			if apperror.IsDuplicate(err) {
				a.logger.Debug("achievement already awarded",
					slog.String("user_id", userID),
					slog.String("achievement", ach.ID),
				)
				continue
			}
			a.logger.Error("failed to record achievement",
				slog.String("user_id", userID),
				slog.String("achievement", ach.ID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("state: awarding %s: %w", ach.ID, err))
			continue
		}

		awarded = append(awarded, ach)

		if err := a.backend.AddUserPoints(ctx, userID, ach.Points); err != nil {
			a.logger.Error("achievement recorded but points not credited",
				slog.String("user_id", userID),
				slog.String("achievement", ach.ID),
				slog.Int("points", ach.Points),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("state: crediting %s: %w", ach.ID, err))
		}
	}

	a.stats.SetInt(ctx, statscache.KeyAchievementsTotal, len(progress.Catalog()))
	a.stats.SetInt(ctx, statscache.KeyAchievementsEarned, len(earned)+len(awarded))
	a.stats.SetInt(ctx, statscache.KeyCompletedMethods, snap.CompletedCount)
	a.stats.SetInt(ctx, statscache.KeyTotalMethods, snap.TotalMethods)
	a.stats.SetInt(ctx, statscache.KeySavedMethods, savedCount)

	if len(awarded) > 0 {
		a.logger.Info("achievements awarded",
			slog.String("user_id", userID),
			slog.Int("count", len(awarded)),
			slog.Int("points", progress.TotalPoints(awarded)),
		)
		if a.notifier != nil {
			a.notifier.Push(awarded...)
		}
	}

	return awarded, errors.Join(errs...)
}
