package seed

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/pickleit/internal/repository"
	"github.com/sakif/pickleit/internal/repository/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMethods_AreValid(t *testing.T) {
	v := validator.New()
	titles := map[string]bool{}
	for _, m := range Methods() {
		assert.NoError(t, v.Struct(m), m.Title)
		assert.False(t, titles[m.Title], "duplicate title %q", m.Title)
		titles[m.Title] = true
		for i, s := range m.Steps {
			assert.Equal(t, i+1, s.Order, "%s step %d", m.Title, i)
		}
	}
	assert.True(t, titles["Quick Pickle Vegetables"])
	assert.True(t, titles["Pressure Canning"])
}

func TestSeed_EmptyCatalog(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	n, err := Seed(ctx, db, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, len(Methods()), n)

	list, err := db.ListMethods(ctx, repository.ListOptions{Category: "Canning"})
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestSeed_LeavesPopulatedCatalogAlone(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := Seed(ctx, db, quietLogger())
	require.NoError(t, err)

	n, err := Seed(ctx, db, quietLogger())
	require.NoError(t, err)
	assert.Zero(t, n)

	total, err := db.CountMethods(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(Methods()), total)
}
