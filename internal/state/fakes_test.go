package state

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"github.com/sakif/pickleit/internal/apperror"
	"github.com/sakif/pickleit/internal/model"
	"github.com/sakif/pickleit/internal/repository"
	"github.com/sakif/pickleit/internal/statscache"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStats() (*statscache.Stats, *statscache.Memory) {
	mem := statscache.NewMemory()
	return statscache.New(mem, testLogger()), mem
}

// fakeBackend is an in-memory Backend for a single user. Error fields let a
// test fail one call at a time.
type fakeBackend struct {
	mu sync.Mutex

	totalMethods int
	saved        map[int64]bool
	completed    map[int64]*model.CompletedMethod
	categories   []string
	learned      int
	earned       []string
	points       int

	// gate, when set, blocks AddSavedMethod until closed
	gate chan struct{}
	// completeGate, when set, parks UpsertCompletion callers (each announces
	// itself on completeArrived) until closed
	completeGate    chan struct{}
	completeArrived chan struct{}
	// profileGate does the same for GetProfile
	profileGate    chan struct{}
	profileArrived chan struct{}

	savedErr    error
	addSavedErr error
	removeErr   error
	profileErr  error
	pointsErr   error
	insertErr   error
	countErr    error

	pointCalls  int
	insertCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		totalMethods: 5,
		saved:        make(map[int64]bool),
		completed:    make(map[int64]*model.CompletedMethod),
	}
}

var _ Backend = (*fakeBackend)(nil)

func (f *fakeBackend) CreateMethod(context.Context, *model.Method) error { return nil }
func (f *fakeBackend) GetMethod(_ context.Context, id int64) (*model.Method, error) {
	return &model.Method{ID: id}, nil
}
func (f *fakeBackend) ListMethods(context.Context, repository.ListOptions) ([]model.Method, error) {
	return nil, nil
}
func (f *fakeBackend) UpdateMethod(context.Context, *model.Method) error { return nil }
func (f *fakeBackend) CountMethods(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totalMethods, f.countErr
}

func (f *fakeBackend) SavedMethodIDs(context.Context, string) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.savedErr != nil {
		return nil, f.savedErr
	}
	var ids []int64
	for id := range f.saved {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (f *fakeBackend) AddSavedMethod(_ context.Context, _ string, id int64) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addSavedErr != nil {
		return f.addSavedErr
	}
	f.saved[id] = true
	return nil
}

func (f *fakeBackend) RemoveSavedMethod(_ context.Context, _ string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.saved, id)
	return nil
}

func (f *fakeBackend) UpsertCompletion(_ context.Context, c *model.CompletedMethod) (bool, error) {
	if f.completeGate != nil {
		f.completeArrived <- struct{}{}
		<-f.completeGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, existed := f.completed[c.MethodID]
	copied := *c
	f.completed[c.MethodID] = &copied
	return !existed, nil
}

func (f *fakeBackend) GetCompletion(_ context.Context, _ string, id int64) (*model.CompletedMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.completed[id]
	if !ok {
		return nil, apperror.NotFound("completed method", strconv.FormatInt(id, 10))
	}
	return c, nil
}

func (f *fakeBackend) DeleteCompletion(_ context.Context, _ string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.completed[id]; !ok {
		return apperror.NotFound("completed method", strconv.FormatInt(id, 10))
	}
	delete(f.completed, id)
	return nil
}

func (f *fakeBackend) ListCompletions(context.Context, string) ([]model.CompletedMethod, error) {
	return nil, nil
}

func (f *fakeBackend) CompletedCount(context.Context, string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completed), nil
}

func (f *fakeBackend) CompletedCategories(context.Context, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.categories, nil
}

func (f *fakeBackend) LearnedMethodsCount(context.Context, string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.learned, nil
}

func (f *fakeBackend) EarnedAchievementIDs(context.Context, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.earned), nil
}

func (f *fakeBackend) InsertAchievement(_ context.Context, _ string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	if f.insertErr != nil {
		return f.insertErr
	}
	if slices.Contains(f.earned, id) {
		return apperror.Conflict("achievement", id)
	}
	f.earned = append(f.earned, id)
	return nil
}

func (f *fakeBackend) GetProfile(_ context.Context, userID string) (*model.Profile, error) {
	if f.profileGate != nil {
		f.profileArrived <- struct{}{}
		<-f.profileGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return &model.Profile{UserID: userID, Points: f.points}, nil
}

func (f *fakeBackend) AddUserPoints(_ context.Context, _ string, points int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pointCalls++
	if f.pointsErr != nil {
		return f.pointsErr
	}
	f.points += points
	return nil
}

// recordingPoints collects optimistic point additions.
type recordingPoints struct {
	mu    sync.Mutex
	total int
}

func (r *recordingPoints) AddPoints(_ context.Context, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total += n
}

func (r *recordingPoints) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
