package state

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/pickleit/internal/apperror"
)

func TestProfile_StateMachine(t *testing.T) {
	b := newFakeBackend()
	b.points = 60
	stats, _ := newTestStats()
	p := NewProfileSync(b, stats, testLogger())
	ctx := context.Background()

	assert.Equal(t, StatusUnauthenticated, p.Status())

	require.NoError(t, p.SetUser(ctx, "u1"))
	v := p.View()
	assert.Equal(t, StatusReady, v.Status)
	assert.Equal(t, 60, v.Points)
	assert.Equal(t, "Brine Beginner", v.Level.Current.Name)

	b.points = 200
	require.NoError(t, p.Refresh(ctx))
	assert.Equal(t, 200, p.Points())
	assert.Equal(t, 1, p.View().Refreshes)

	require.NoError(t, p.SetUser(ctx, ""))
	assert.Equal(t, StatusUnauthenticated, p.Status())
	assert.Equal(t, 0, p.Points())
}

func TestProfile_CachedValueFirst(t *testing.T) {
	b := newFakeBackend()
	b.profileErr = errors.New("offline")
	stats, _ := newTestStats()
	stats.SetUserPoints(context.Background(), "u1", 420)
	p := NewProfileSync(b, stats, testLogger())

	assert.Error(t, p.SetUser(context.Background(), "u1"))

	v := p.View()
	assert.Equal(t, 420, v.Points)
	assert.Equal(t, PhaseStale, v.Phase)
	assert.Equal(t, StatusReady, v.Status, "a cached value is shown")
}

func TestProfile_NoCacheFailureStaysLoading(t *testing.T) {
	b := newFakeBackend()
	b.profileErr = errors.New("offline")
	stats, _ := newTestStats()
	p := NewProfileSync(b, stats, testLogger())

	assert.Error(t, p.SetUser(context.Background(), "u1"))
	assert.Equal(t, StatusLoading, p.Status())
}

func TestProfile_AddPointsIsOverlay(t *testing.T) {
	b := newFakeBackend()
	b.points = 10
	stats, _ := newTestStats()
	p := NewProfileSync(b, stats, testLogger())
	ctx := context.Background()
	require.NoError(t, p.SetUser(ctx, "u1"))

	p.AddPoints(ctx, 25)
	assert.Equal(t, 35, p.Points())
	assert.Equal(t, PhaseStale, p.View().Phase)

	title, _ := stats.UserLevelTitle(ctx, "u1")
	assert.Equal(t, "Fresh Picker", title)

	// backend credited only 15; the authoritative figure wins
	b.points = 25
	require.NoError(t, p.Refresh(ctx))
	assert.Equal(t, 25, p.Points())
	assert.Equal(t, PhaseReconciled, p.View().Phase)
}

// Points credited while the very first load is in flight are an overlay on
// nothing. If that load fails there is still no total to show.
func TestProfile_OverlayWithoutBaseIsNotReady(t *testing.T) {
	b := newFakeBackend()
	b.profileGate = make(chan struct{})
	b.profileArrived = make(chan struct{}, 1)
	stats, _ := newTestStats()
	p := NewProfileSync(b, stats, testLogger())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- p.SetUser(ctx, "u1") }()
	<-b.profileArrived

	p.AddPoints(ctx, 10)
	assert.Equal(t, 10, p.Points())

	b.mu.Lock()
	b.profileErr = errors.New("offline")
	b.mu.Unlock()
	close(b.profileGate)
	assert.Error(t, <-done)

	assert.Equal(t, StatusLoading, p.Status(), "an overlay alone is not the user's total")
	_, cached := stats.UserPoints(ctx, "u1")
	assert.False(t, cached, "an overlay alone must not be cached as the total")
}

func TestProfile_OverlayOnCachedValueIsReady(t *testing.T) {
	b := newFakeBackend()
	b.profileGate = make(chan struct{})
	b.profileArrived = make(chan struct{}, 1)
	stats, _ := newTestStats()
	stats.SetUserPoints(context.Background(), "u1", 40)
	p := NewProfileSync(b, stats, testLogger())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- p.SetUser(ctx, "u1") }()
	<-b.profileArrived

	p.AddPoints(ctx, 10)

	b.mu.Lock()
	b.profileErr = errors.New("offline")
	b.mu.Unlock()
	close(b.profileGate)
	assert.Error(t, <-done)

	v := p.View()
	assert.Equal(t, StatusReady, v.Status)
	assert.Equal(t, 50, v.Points)
	cachedPoints, _ := stats.UserPoints(ctx, "u1")
	assert.Equal(t, 50, cachedPoints)
}

func TestProfile_AddPointsIgnoredWhenSignedOut(t *testing.T) {
	stats, _ := newTestStats()
	p := NewProfileSync(newFakeBackend(), stats, testLogger())
	p.AddPoints(context.Background(), 10)
	assert.Equal(t, 0, p.Points())
}

func TestProfile_RefreshRequiresUser(t *testing.T) {
	stats, _ := newTestStats()
	p := NewProfileSync(newFakeBackend(), stats, testLogger())
	assert.ErrorIs(t, p.Refresh(context.Background()), apperror.ErrUnauthenticated)
}

func TestProfile_WritesCache(t *testing.T) {
	b := newFakeBackend()
	b.points = 900
	stats, _ := newTestStats()
	p := NewProfileSync(b, stats, testLogger())
	ctx := context.Background()
	require.NoError(t, p.SetUser(ctx, "u1"))

	pts, ok := stats.UserPoints(ctx, "u1")
	assert.True(t, ok)
	assert.Equal(t, 900, pts)
	title, _ := stats.UserLevelTitle(ctx, "u1")
	assert.Equal(t, "Time Lord of the Pantry", title)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "unauthenticated", StatusUnauthenticated.String())
	assert.Equal(t, "loading", StatusLoading.String())
	assert.Equal(t, "ready", StatusReady.String())
}
