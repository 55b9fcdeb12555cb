package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sakif/pickleit/internal/apperror"
	"github.com/sakif/pickleit/internal/progress"
	"github.com/sakif/pickleit/internal/repository"
	"github.com/sakif/pickleit/internal/statscache"
)

// Status is the profile's load state.
type Status int

const (
	StatusUnauthenticated Status = iota
	StatusLoading
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ProfileView is a consistent read of the profile.
type ProfileView struct {
	Status    Status
	UserID    string
	Points    int
	Phase     Phase
	Level     progress.LevelProgress
	Refreshes int
}

// ProfileSync keeps the signed-in user's points.
//
//	Unauthenticated → Loading → Ready(points) → Loading (Refresh) → Ready(points') → …
//
// and back to Unauthenticated when the user id becomes "". There is no
// polling: a load happens on user change and on Refresh only.
type ProfileSync struct {
	repo   repository.ProfileRepository
	stats  *statscache.Stats
	logger *slog.Logger

	mu        sync.Mutex
	userID    string
	status    Status
	points    Entity[int]
	refreshes int
	gen       uint64
	cancel    context.CancelFunc
}

func NewProfileSync(repo repository.ProfileRepository, stats *statscache.Stats, logger *slog.Logger) *ProfileSync {
	return &ProfileSync{repo: repo, stats: stats, logger: logger}
}

// SetUser switches to userID and loads its profile. The cached total, if
// any, is visible while the load is in flight. Setting the same user again
// is a no-op.
func (p *ProfileSync) SetUser(ctx context.Context, userID string) error {
	p.mu.Lock()
	if userID == p.userID && p.status != StatusUnauthenticated {
		p.mu.Unlock()
		return nil
	}
	p.stopLocked()
	p.userID = userID
	p.points.Reset()

	if userID == "" {
		p.status = StatusUnauthenticated
		p.mu.Unlock()
		return nil
	}

	if cached, ok := p.stats.UserPoints(ctx, userID); ok {
		p.points.Seed(cached)
	}
	ctx, gen := p.beginLocked(ctx)
	p.mu.Unlock()

	return p.load(ctx, userID, gen)
}

// Refresh forces a fresh load of the current user's points.
func (p *ProfileSync) Refresh(ctx context.Context) error {
	p.mu.Lock()
	userID := p.userID
	if userID == "" {
		p.mu.Unlock()
		return apperror.Unauthenticated("You must be logged in to view your profile.")
	}
	p.refreshes++
	p.stopLocked()
	ctx, gen := p.beginLocked(ctx)
	p.mu.Unlock()

	return p.load(ctx, userID, gen)
}

// AddPoints raises the displayed total immediately, without a fetch. The
// next load replaces it with the backend's figure.
func (p *ProfileSync) AddPoints(ctx context.Context, amount int) {
	if amount <= 0 {
		return
	}
	p.mu.Lock()
	if p.userID == "" {
		p.mu.Unlock()
		return
	}
	p.points.Adjust(func(v int) int { return v + amount })
	userID := p.userID
	total, _ := p.points.Value()
	based := p.points.Based()
	p.mu.Unlock()

	if based {
		p.cache(ctx, userID, total)
	}
}

// Points is the displayed total: authoritative, cached, or adjusted.
func (p *ProfileSync) Points() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, _ := p.points.Value()
	return v
}

func (p *ProfileSync) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *ProfileSync) View() ProfileView {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, _ := p.points.Value()
	return ProfileView{
		Status:    p.status,
		UserID:    p.userID,
		Points:    v,
		Phase:     p.points.Phase(),
		Level:     progress.Level(v),
		Refreshes: p.refreshes,
	}
}

// Close cancels any load in flight.
func (p *ProfileSync) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *ProfileSync) beginLocked(ctx context.Context) (context.Context, uint64) {
	p.gen++
	ctx, p.cancel = context.WithCancel(ctx)
	p.status = StatusLoading
	p.points.Begin()
	return ctx, p.gen
}

func (p *ProfileSync) stopLocked() {
	p.gen++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *ProfileSync) load(ctx context.Context, userID string, gen uint64) error {
	prof, err := p.repo.GetProfile(ctx, userID)

	p.mu.Lock()
	if gen != p.gen {
		// superseded by a user switch or a newer refresh
		p.mu.Unlock()
		return nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if err != nil {
		p.points.Fail()
		// an overlay alone is not a total worth showing as Ready
		if p.points.Based() {
			p.status = StatusReady
		}
		p.mu.Unlock()
		p.logger.Warn("profile load failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("state: loading profile: %w", err)
	}
	p.points.Reconcile(prof.Points)
	p.status = StatusReady
	p.mu.Unlock()

	p.cache(context.WithoutCancel(ctx), userID, prof.Points)
	return nil
}

func (p *ProfileSync) cache(ctx context.Context, userID string, points int) {
	p.stats.SetUserPoints(ctx, userID, points)
	p.stats.SetUserLevelTitle(ctx, userID, progress.TierFor(points).Name)
}
