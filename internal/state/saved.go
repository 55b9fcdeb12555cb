package state

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/sakif/pickleit/internal/apperror"
	"github.com/sakif/pickleit/internal/progress"
	"github.com/sakif/pickleit/internal/repository"
	"github.com/sakif/pickleit/internal/statscache"
)

// PointsAdder receives the optimistic reward of freshly granted achievements.
// *ProfileSync implements it.
type PointsAdder interface {
	AddPoints(ctx context.Context, amount int)
}

type idSet = map[int64]struct{}

// SavedMethods is the signed-in user's set of bookmarked method ids.
//
// IN-FLIGHT DISCIPLINE:
// Toggles on different ids may run at the same time. A toggle on an id that
// is already being persisted is rejected with apperror.ErrConflict instead of
// racing the first one. The local set changes only after the backend call
// succeeds, so a failure needs no rollback.
type SavedMethods struct {
	repo    repository.SavedMethodRepository
	awarder *Awarder
	points  PointsAdder
	stats   *statscache.Stats
	logger  *slog.Logger

	mu       sync.Mutex
	userID   string
	ids      Entity[idSet]
	inFlight map[int64]bool
	marker   int64
	errMsg   string
	gen      uint64
}

// NewSavedMethods builds the component. awarder and points may be nil, in
// which case saving grants nothing.
func NewSavedMethods(repo repository.SavedMethodRepository, awarder *Awarder, points PointsAdder, stats *statscache.Stats, logger *slog.Logger) *SavedMethods {
	return &SavedMethods{
		repo:     repo,
		awarder:  awarder,
		points:   points,
		stats:    stats,
		logger:   logger,
		inFlight: make(map[int64]bool),
	}
}

// SetUser switches to userID and loads its saved ids.
func (s *SavedMethods) SetUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	if userID == s.userID {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	s.userID = userID
	s.ids.Reset()
	s.errMsg = ""
	s.mu.Unlock()

	if userID == "" {
		return nil
	}
	return s.Load(ctx)
}

// Load fetches the full saved set. On failure the previous set is kept.
func (s *SavedMethods) Load(ctx context.Context) error {
	s.mu.Lock()
	userID, gen := s.userID, s.gen
	if userID == "" {
		s.mu.Unlock()
		return apperror.Unauthenticated("You must be logged in to view saved methods.")
	}
	s.ids.Begin()
	s.mu.Unlock()

	list, err := s.repo.SavedMethodIDs(ctx, userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil
	}
	if err != nil {
		s.ids.Fail()
		s.logger.Warn("failed to load saved methods",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("state: loading saved methods: %w", err)
	}

	set := make(idSet, len(list))
	for _, id := range list {
		set[id] = struct{}{}
	}
	s.ids.Reconcile(set)
	s.stats.SetInt(context.WithoutCancel(ctx), statscache.KeySavedMethods, len(set))
	return nil
}

// ToggleSave saves methodID if it is not saved and unsaves it if it is.
//
// On a save, the prospective count (current size + 1) is handed to the
// awarder, and the reward of anything granted is added to the displayed
// points straight away. Award failures are logged; they do not fail the save.
func (s *SavedMethods) ToggleSave(ctx context.Context, methodID string) error {
	s.mu.Lock()
	userID := s.userID
	if userID == "" {
		s.errMsg = "You must be logged in to save methods."
		s.mu.Unlock()
		return apperror.Unauthenticated("You must be logged in to save methods.")
	}

	id, err := strconv.ParseInt(strings.TrimSpace(methodID), 10, 64)
	if err != nil || id <= 0 {
		s.errMsg = "Invalid method ID"
		s.mu.Unlock()
		return apperror.ValidationFailed("methodId", "Invalid method ID")
	}

	if s.inFlight[id] {
		s.mu.Unlock()
		return apperror.Conflict("saved method", methodID)
	}
	s.inFlight[id] = true
	s.marker = id
	s.errMsg = ""

	set, _ := s.ids.Value()
	_, saved := set[id]
	prospective := len(set) + 1
	gen := s.gen
	s.mu.Unlock()

	defer s.clearInFlight(id)

	if saved {
		if err := s.repo.RemoveSavedMethod(ctx, userID, id); err != nil {
			return s.fail(userID, id, err)
		}
		s.apply(ctx, gen, func(set idSet) { delete(set, id) })
		return nil
	}

	if err := s.repo.AddSavedMethod(ctx, userID, id); err != nil {
		return s.fail(userID, id, err)
	}
	s.apply(ctx, gen, func(set idSet) { set[id] = struct{}{} })

	if s.awarder == nil {
		return nil
	}
	awarded, err := s.awarder.CheckAndAward(ctx, userID, prospective)
	if err != nil {
		s.logger.Warn("achievement check after save failed",
			slog.String("user_id", userID),
			slog.Int64("method_id", id),
			slog.String("error", err.Error()),
		)
	}
	if reward := progress.TotalPoints(awarded); reward > 0 && s.points != nil {
		s.points.AddPoints(ctx, reward)
	}
	return nil
}

// IDs returns the saved ids in ascending order.
func (s *SavedMethods) IDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, _ := s.ids.Value()
	return slices.Sorted(maps.Keys(set))
}

func (s *SavedMethods) IsSaved(methodID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, _ := s.ids.Value()
	_, ok := set[methodID]
	return ok
}

func (s *SavedMethods) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, _ := s.ids.Value()
	return len(set)
}

// Phase reports where the saved set is in its sync cycle.
func (s *SavedMethods) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids.Phase()
}

// InFlight returns the id most recently sent to the backend, or 0.
func (s *SavedMethods) InFlight() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marker
}

// Err returns the last user-visible error message, or "".
func (s *SavedMethods) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

func (s *SavedMethods) apply(ctx context.Context, gen uint64, mutate func(idSet)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	wasReconciled := s.ids.Phase() == PhaseReconciled
	s.ids.Adjust(func(set idSet) idSet {
		next := maps.Clone(set)
		if next == nil {
			next = make(idSet)
		}
		mutate(next)
		return next
	})
	set, _ := s.ids.Value()
	// a confirmed write on top of a reconciled set is still reconciled
	if wasReconciled {
		s.ids.Reconcile(set)
	}
	s.stats.SetInt(context.WithoutCancel(ctx), statscache.KeySavedMethods, len(set))
}

func (s *SavedMethods) fail(userID string, id int64, err error) error {
	s.logger.Warn("failed to toggle saved method",
		slog.String("user_id", userID),
		slog.Int64("method_id", id),
		slog.String("error", err.Error()),
	)
	s.mu.Lock()
	s.errMsg = "Failed to save method"
	s.mu.Unlock()
	return fmt.Errorf("state: toggling saved method %d: %w", id, err)
}

func (s *SavedMethods) clearInFlight(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
	if s.marker == id {
		s.marker = 0
	}
}
