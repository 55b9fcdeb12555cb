package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/pickleit/internal/apperror"
	"github.com/sakif/pickleit/internal/model"
	"github.com/sakif/pickleit/internal/progress"
	"github.com/sakif/pickleit/internal/repository"
	"github.com/sakif/pickleit/internal/statscache"
)

// ProgressStore is every per-user table the progress endpoints touch.
// *sqlite.DB satisfies it.
type ProgressStore interface {
	repository.MethodRepository
	repository.SavedMethodRepository
	repository.CompletedMethodRepository
	repository.AchievementRepository
	repository.ProfileRepository
}

// ProgressService is the server side of saving, mastering, awards and points.
//
// It is deliberately thin. Deciding WHEN to award and how many points to add
// is the client's job (internal/state); the server validates, scopes every
// call to the signed-in user, and applies writes atomically.
type ProgressService struct {
	store  ProgressStore
	stats  *statscache.Stats
	logger *slog.Logger
}

func NewProgressService(store ProgressStore, stats *statscache.Stats, logger *slog.Logger) *ProgressService {
	return &ProgressService{store: store, stats: stats, logger: logger}
}

// =========================================================================
// SAVED METHODS
// =========================================================================

func (s *ProgressService) SavedIDs(ctx context.Context, userID string) ([]int64, error) {
	if err := requireUser(userID, "view saved methods"); err != nil {
		return nil, err
	}
	ids, err := s.store.SavedMethodIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing saved methods: %w", err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

// Save bookmarks methodID. Saving twice is not an error.
func (s *ProgressService) Save(ctx context.Context, userID string, methodID int64) error {
	if err := requireUser(userID, "save methods"); err != nil {
		return err
	}
	if methodID <= 0 {
		return apperror.ValidationFailed("methodId", "Invalid method ID")
	}
	if err := s.store.AddSavedMethod(ctx, userID, methodID); err != nil {
		return err
	}
	savedToggles.WithLabelValues("save").Inc()
	s.logger.Debug("method saved",
		slog.String("userID", userID),
		slog.Int64("methodID", methodID),
	)
	return nil
}

// Unsave removes the bookmark. Removing a missing bookmark is not an error.
func (s *ProgressService) Unsave(ctx context.Context, userID string, methodID int64) error {
	if err := requireUser(userID, "save methods"); err != nil {
		return err
	}
	if methodID <= 0 {
		return apperror.ValidationFailed("methodId", "Invalid method ID")
	}
	if err := s.store.RemoveSavedMethod(ctx, userID, methodID); err != nil {
		return err
	}
	savedToggles.WithLabelValues("unsave").Inc()
	return nil
}

// =========================================================================
// COMPLETIONS
// =========================================================================

func (s *ProgressService) Completions(ctx context.Context, userID string) ([]model.CompletedMethod, error) {
	if err := requireUser(userID, "view completed methods"); err != nil {
		return nil, err
	}
	list, err := s.store.ListCompletions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing completions: %w", err)
	}
	if list == nil {
		list = []model.CompletedMethod{}
	}
	return list, nil
}

func (s *ProgressService) CompletedCount(ctx context.Context, userID string) (int, error) {
	if err := requireUser(userID, "view completed methods"); err != nil {
		return 0, err
	}
	return s.store.CompletedCount(ctx, userID)
}

// Completion returns the user's completion of methodID, or ErrNotFound.
func (s *ProgressService) Completion(ctx context.Context, userID string, methodID int64) (*model.CompletedMethod, error) {
	if err := requireUser(userID, "view completed methods"); err != nil {
		return nil, err
	}
	if methodID <= 0 {
		return nil, apperror.ValidationFailed("methodId", "Invalid method ID")
	}
	return s.store.GetCompletion(ctx, userID, methodID)
}

// Complete upserts a completion and reports whether this call created it.
// Points are not credited here: the client adds them through AddPoints, and
// only when created is true.
func (s *ProgressService) Complete(ctx context.Context, c *model.CompletedMethod) (created bool, err error) {
	if err := requireUser(c.UserID, "complete methods"); err != nil {
		return false, err
	}
	if c.MethodID <= 0 {
		return false, apperror.ValidationFailed("methodId", "Invalid method ID")
	}
	if err := methodValidate.Struct(c); err != nil {
		return false, apperror.ValidationFailed("rating", "Rating must be between 1 and 5")
	}

	created, err = s.store.UpsertCompletion(ctx, c)
	if err != nil {
		return false, err
	}
	completions.WithLabelValues("complete").Inc()
	s.stats.Invalidate(ctx, statscache.KeyCompletedMethods)

	s.logger.Info("method completed",
		slog.String("userID", c.UserID),
		slog.Int64("methodID", c.MethodID),
		slog.Bool("first", created),
	)
	return created, nil
}

func (s *ProgressService) Uncomplete(ctx context.Context, userID string, methodID int64) error {
	if err := requireUser(userID, "complete methods"); err != nil {
		return err
	}
	if methodID <= 0 {
		return apperror.ValidationFailed("methodId", "Invalid method ID")
	}
	if err := s.store.DeleteCompletion(ctx, userID, methodID); err != nil {
		return err
	}
	completions.WithLabelValues("uncomplete").Inc()
	s.stats.Invalidate(ctx, statscache.KeyCompletedMethods)
	return nil
}

// CompletedCategories is the get_completed_categories RPC.
func (s *ProgressService) CompletedCategories(ctx context.Context, userID string) ([]string, error) {
	if err := requireUser(userID, "view progress"); err != nil {
		return nil, err
	}
	cats, err := s.store.CompletedCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing completed categories: %w", err)
	}
	if cats == nil {
		cats = []string{}
	}
	return cats, nil
}

// LearnedMethodsCount is the get_learned_methods_count RPC.
func (s *ProgressService) LearnedMethodsCount(ctx context.Context, userID string) (int, error) {
	if err := requireUser(userID, "view progress"); err != nil {
		return 0, err
	}
	return s.store.LearnedMethodsCount(ctx, userID)
}

// =========================================================================
// ACHIEVEMENTS AND POINTS
// =========================================================================

func (s *ProgressService) EarnedAchievements(ctx context.Context, userID string) ([]string, error) {
	if err := requireUser(userID, "view achievements"); err != nil {
		return nil, err
	}
	ids, err := s.store.EarnedAchievementIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing achievements: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Award stores an achievement from the catalog. A second award of the same
// id returns an error wrapping apperror.ErrConflict, which callers treat as
// "already awarded".
func (s *ProgressService) Award(ctx context.Context, userID, achievementID string) error {
	if err := requireUser(userID, "earn achievements"); err != nil {
		return err
	}
	if _, ok := progress.ByID(achievementID); !ok {
		return apperror.ValidationFailed("achievementId", "Unknown achievement")
	}

	if err := s.store.InsertAchievement(ctx, userID, achievementID); err != nil {
		if apperror.IsDuplicate(err) {
			achievementDuplicates.Inc()
		}
		return err
	}
	achievementsAwarded.WithLabelValues(achievementID).Inc()

	s.logger.Info("achievement awarded",
		slog.String("userID", userID),
		slog.String("achievement", achievementID),
	)
	return nil
}

func (s *ProgressService) Profile(ctx context.Context, userID string) (*model.Profile, error) {
	if err := requireUser(userID, "view your profile"); err != nil {
		return nil, err
	}
	return s.store.GetProfile(ctx, userID)
}

// AddPoints is the add_user_points RPC: one atomic increment.
func (s *ProgressService) AddPoints(ctx context.Context, userID string, points int) error {
	if err := requireUser(userID, "earn points"); err != nil {
		return err
	}
	if points <= 0 {
		return apperror.ValidationFailed("points", "Points must be a positive number")
	}
	if err := s.store.AddUserPoints(ctx, userID, points); err != nil {
		return err
	}
	pointsAdded.Add(float64(points))
	s.stats.Invalidate(ctx, statscache.UserPointsKey(userID))
	return nil
}

// =========================================================================
// OVERVIEW
// =========================================================================

// AchievementStatus is one catalog entry as a given user sees it.
type AchievementStatus struct {
	progress.Achievement
	Earned   bool `json:"earned"`
	Progress int  `json:"progress"`
}

// Overview is everything the achievements screen shows, in one response.
type Overview struct {
	Snapshot     progress.Snapshot      `json:"snapshot"`
	Level        progress.LevelProgress `json:"level"`
	Achievements []AchievementStatus    `json:"achievements"`
	Earned       int                    `json:"earned"`
	Next         *progress.Achievement  `json:"next,omitempty"`
}

// Overview gathers the user's counts concurrently and resolves them against
// the catalog and the level tiers.
func (s *ProgressService) Overview(ctx context.Context, userID string) (*Overview, error) {
	if err := requireUser(userID, "view achievements"); err != nil {
		return nil, err
	}

	var (
		saved      []int64
		earned     []string
		completed  int
		categories []string
		learned    int
		total      int
		profile    *model.Profile
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { saved, err = s.store.SavedMethodIDs(gctx, userID); return })
	g.Go(func() (err error) { earned, err = s.store.EarnedAchievementIDs(gctx, userID); return })
	g.Go(func() (err error) { completed, err = s.store.CompletedCount(gctx, userID); return })
	g.Go(func() (err error) { categories, err = s.store.CompletedCategories(gctx, userID); return })
	g.Go(func() (err error) { learned, err = s.store.LearnedMethodsCount(gctx, userID); return })
	g.Go(func() (err error) { total, err = s.store.CountMethods(gctx); return })
	g.Go(func() (err error) { profile, err = s.store.GetProfile(gctx, userID); return })
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading overview for %s: %w", userID, err)
	}

	snap := progress.Snapshot{
		SavedCount:          len(saved),
		CompletedCount:      completed,
		CompletedCategories: categories,
		AllMethodsLearned:   total > 0 && learned >= total,
		TotalMethods:        total,
	}
	if snap.CompletedCategories == nil {
		snap.CompletedCategories = []string{}
	}

	pct := progress.ProgressFor(snap)
	catalog := progress.Catalog()
	out := &Overview{
		Snapshot:     snap,
		Level:        progress.Level(profile.Points),
		Achievements: make([]AchievementStatus, 0, len(catalog)),
	}
	for _, a := range catalog {
		has := slices.Contains(earned, a.ID)
		p := pct[a.ID]
		if has {
			p = 100
			out.Earned++
		}
		out.Achievements = append(out.Achievements, AchievementStatus{Achievement: a, Earned: has, Progress: p})
	}
	if next, ok := progress.NextAchievement(earned); ok {
		out.Next = &next
	}

	s.stats.SetInt(ctx, statscache.KeyAchievementsTotal, len(catalog))
	s.stats.SetInt(ctx, statscache.KeyAchievementsEarned, out.Earned)
	s.stats.SetInt(ctx, statscache.KeyTotalMethods, total)
	return out, nil
}

func requireUser(userID, action string) error {
	if userID == "" {
		return apperror.Unauthenticated("You must be logged in to " + action + ".")
	}
	return nil
}
