package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/pickleit/internal/apperror"
	"github.com/sakif/pickleit/internal/statscache"
)

func newTestAwarder(b *fakeBackend) (*Awarder, *statscache.Stats, *Notifier) {
	stats, _ := newTestStats()
	n := NewNotifier(time.Hour, nil)
	return NewAwarder(b, stats, n, testLogger()), stats, n
}

func TestAwarder_FirstSave(t *testing.T) {
	b := newFakeBackend()
	a, stats, n := newTestAwarder(b)
	defer n.Close()

	awarded, err := a.CheckAndAward(context.Background(), "u1", 1)
	require.NoError(t, err)
	require.Len(t, awarded, 1)
	assert.Equal(t, "first-save", awarded[0].ID)
	assert.Equal(t, 10, b.points)
	assert.Equal(t, 1, n.Len())

	earned, _ := stats.Int(context.Background(), statscache.KeyAchievementsEarned)
	assert.Equal(t, 1, earned)
	saved, _ := stats.Int(context.Background(), statscache.KeySavedMethods)
	assert.Equal(t, 1, saved)
}

func TestAwarder_SkipsEarned(t *testing.T) {
	b := newFakeBackend()
	b.earned = []string{"first-save"}
	a, _, n := newTestAwarder(b)
	defer n.Close()

	awarded, err := a.CheckAndAward(context.Background(), "u1", 3)
	require.NoError(t, err)
	assert.Empty(t, awarded)
	assert.Equal(t, 0, b.insertCalls)
	assert.Equal(t, 0, b.pointCalls)
}

func TestAwarder_DuplicateInsertIsNoOp(t *testing.T) {
	b := newFakeBackend()
	b.insertErr = apperror.Conflict("achievement", "first-save")
	a, _, n := newTestAwarder(b)
	defer n.Close()

	awarded, err := a.CheckAndAward(context.Background(), "u1", 1)
	require.NoError(t, err)
	assert.Empty(t, awarded)
	assert.Equal(t, 0, b.pointCalls, "no points for a duplicate award")
	assert.Equal(t, 0, n.Len())
}

func TestAwarder_PointsFailureStillAwards(t *testing.T) {
	b := newFakeBackend()
	b.pointsErr = errors.New("rpc down")
	a, _, n := newTestAwarder(b)
	defer n.Close()

	awarded, err := a.CheckAndAward(context.Background(), "u1", 1)
	assert.Error(t, err)
	require.Len(t, awarded, 1)
	assert.Equal(t, []string{"first-save"}, b.earned)
	assert.Equal(t, 0, b.points)
}

func TestAwarder_InsertFailure(t *testing.T) {
	b := newFakeBackend()
	b.insertErr = errors.New("disk full")
	a, _, n := newTestAwarder(b)
	defer n.Close()

	awarded, err := a.CheckAndAward(context.Background(), "u1", 1)
	assert.Error(t, err)
	assert.Empty(t, awarded)
	assert.Equal(t, 0, b.pointCalls)
}

func TestAwarder_SnapshotFailure(t *testing.T) {
	b := newFakeBackend()
	b.countErr = errors.New("timeout")
	a, _, n := newTestAwarder(b)
	defer n.Close()

	_, err := a.CheckAndAward(context.Background(), "u1", 1)
	assert.Error(t, err)
	assert.Equal(t, 0, b.insertCalls)
}

func TestAwarder_AllLearned(t *testing.T) {
	b := newFakeBackend()
	b.totalMethods = 2
	b.learned = 2
	b.categories = []string{"Pickling", "Canning", "Drying"}
	b.earned = []string{"first-save", "first-completion"}
	a, _, n := newTestAwarder(b)
	defer n.Close()

	awarded, err := a.CheckAndAward(context.Background(), "u1", 1)
	require.NoError(t, err)

	var got []string
	for _, ach := range awarded {
		got = append(got, ach.ID)
	}
	assert.Equal(t, []string{"category-master", "multi-category", "master-preserver"}, got)
	assert.Equal(t, 75+150+250, b.points)
}

func TestAwarder_RequiresUser(t *testing.T) {
	a, _, n := newTestAwarder(newFakeBackend())
	defer n.Close()

	_, err := a.CheckAndAward(context.Background(), "", 1)
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}
