package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/pickleit/internal/apperror"
	"github.com/sakif/pickleit/internal/model"
	"github.com/sakif/pickleit/internal/repository"
	"github.com/sakif/pickleit/internal/repository/sqlite"
	"github.com/sakif/pickleit/internal/statscache"
	"github.com/sakif/pickleit/internal/storage"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// memStore is an in-memory storage.Store.
type memStore struct {
	mu        sync.Mutex
	objects   map[string]string
	uploadErr error
	deleted   []string
}

func newMemStore() *memStore { return &memStore{objects: make(map[string]string)} }

func (m *memStore) PublicBase() string { return "http://media.test" }
func (m *memStore) Close() error       { return nil }

func (m *memStore) Upload(_ context.Context, name string, r io.Reader, _ string) (string, error) {
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = string(b)
	return m.PublicBase() + "/" + name, nil
}

func (m *memStore) Delete(_ context.Context, url string) error {
	key, ok := storage.ObjectKeyFromURL(m.PublicBase(), url)
	if !ok {
		return storage.ErrForeignURL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deleted = append(m.deleted, url)
	return nil
}

// failingUpdates wraps a MethodRepository and fails every UpdateMethod.
type failingUpdates struct {
	repository.MethodRepository
}

func (failingUpdates) UpdateMethod(context.Context, *model.Method) error {
	return errors.New("disk full")
}

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestStats() (*statscache.Stats, *statscache.Memory) {
	mem := statscache.NewMemory()
	return statscache.New(mem, testLogger()), mem
}

func newTestMethodService(t *testing.T) (*MethodService, *sqlite.DB, *memStore, *statscache.Memory) {
	t.Helper()
	db := newTestDB(t)
	images := newMemStore()
	stats, mem := newTestStats()
	return NewMethodService(db, images, stats, testLogger()), db, images, mem
}

func validMethod(title string) *model.Method {
	return &model.Method{
		Title:       title,
		Description: "Crisp and tangy",
		Category:    "Pickling",
		Duration:    "1 hour",
	}
}

// =========================================================================
// CREATE / UPDATE TESTS
// =========================================================================

func TestMethodCreate_RenumbersSteps(t *testing.T) {
	svc, _, _, _ := newTestMethodService(t)

	m := validMethod("  Quick Pickles ")
	m.Steps = []model.Step{
		{Order: 5, Title: "Pack jars"},
		{Order: 2, Title: "Make brine"},
	}

	got, err := svc.Create(context.Background(), m)
	require.NoError(t, err)
	assert.NotZero(t, got.ID)
	assert.Equal(t, "Quick Pickles", got.Title)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, 1, got.Steps[0].Order)
	assert.Equal(t, "Make brine", got.Steps[0].Title)
	assert.Equal(t, 2, got.Steps[1].Order)
}

func TestMethodCreate_RequiredFields(t *testing.T) {
	svc, _, _, _ := newTestMethodService(t)

	for _, field := range []string{"title", "description", "category", "duration"} {
		t.Run(field, func(t *testing.T) {
			m := validMethod("Quick Pickles")
			switch field {
			case "title":
				m.Title = "   "
			case "description":
				m.Description = ""
			case "category":
				m.Category = ""
			case "duration":
				m.Duration = ""
			}
			_, err := svc.Create(context.Background(), m)
			require.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, "Please fill in all required fields", err.Error())
		})
	}
}

func TestMethodCreate_InvalidIngredient(t *testing.T) {
	svc, _, _, _ := newTestMethodService(t)

	m := validMethod("Sauerkraut")
	m.Ingredients = []model.Ingredient{{Name: "cabbage", Quantity: -1}}

	_, err := svc.Create(context.Background(), m)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestMethodCreate_InvalidatesCount(t *testing.T) {
	svc, _, _, mem := newTestMethodService(t)
	ctx := context.Background()

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	_, cached, _ := mem.Get(ctx, statscache.KeyTotalMethods)
	assert.True(t, cached)

	_, err = svc.Create(ctx, validMethod("Jam"))
	require.NoError(t, err)
	_, cached, _ = mem.Get(ctx, statscache.KeyTotalMethods)
	assert.False(t, cached, "create drops the stale total")

	n, err = svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMethodUpdate(t *testing.T) {
	svc, _, _, _ := newTestMethodService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validMethod("Jam"))
	require.NoError(t, err)

	in := validMethod("Strawberry Jam")
	in.BaseYield = 4
	in.YieldUnit = "jars"
	got, err := svc.Update(ctx, created.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Strawberry Jam", got.Title)
	assert.Equal(t, created.ID, got.ID)

	stored, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Strawberry Jam", stored.Title)
	assert.Equal(t, 4.0, stored.BaseYield)
}

func TestMethodUpdate_NotFound(t *testing.T) {
	svc, _, _, _ := newTestMethodService(t)

	_, err := svc.Update(context.Background(), 999, validMethod("Ghost"))
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestMethodGet_InvalidID(t *testing.T) {
	svc, _, _, _ := newTestMethodService(t)

	_, err := svc.Get(context.Background(), 0)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestMethodList_FilterAndClamp(t *testing.T) {
	svc, _, _, _ := newTestMethodService(t)
	ctx := context.Background()

	for i := range 3 {
		m := validMethod(fmt.Sprintf("Pickle %d", i))
		_, err := svc.Create(ctx, m)
		require.NoError(t, err)
	}
	dried := validMethod("Dried Apples")
	dried.Category = "Drying"
	_, err := svc.Create(ctx, dried)
	require.NoError(t, err)

	all, err := svc.List(ctx, "", -1, -5)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	drying, err := svc.List(ctx, "Drying", 0, 0)
	require.NoError(t, err)
	require.Len(t, drying, 1)
	assert.Equal(t, "Dried Apples", drying[0].Title)
}

func TestParseMethodID(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
		ok   bool
	}{
		{"42", 42, true},
		{" 7 ", 7, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseMethodID(tt.raw)
		if tt.ok {
			assert.NoError(t, err, tt.raw)
			assert.Equal(t, tt.want, got)
		} else {
			assert.ErrorIs(t, err, apperror.ErrValidation, tt.raw)
		}
	}
}

// =========================================================================
// IMAGE TESTS
// =========================================================================

func TestReplaceImage_SwapsAndDeletesOld(t *testing.T) {
	svc, _, images, _ := newTestMethodService(t)
	ctx := context.Background()

	m, err := svc.Create(ctx, validMethod("Jam"))
	require.NoError(t, err)

	first, err := svc.ReplaceImage(ctx, m.ID, ImageUpload{
		Filename: "jar.png", ContentType: "image/png", Size: 3, Body: strings.NewReader("one"),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.ImageURL, "http://media.test/"))
	assert.True(t, strings.HasSuffix(first.ImageURL, ".png"))

	second, err := svc.ReplaceImage(ctx, m.ID, ImageUpload{
		Filename: "jar2.jpg", ContentType: "image/jpeg", Size: 3, Body: strings.NewReader("two"),
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ImageURL, second.ImageURL)
	assert.Equal(t, []string{first.ImageURL}, images.deleted)
	assert.Len(t, images.objects, 1)
}

func TestReplaceImage_KeepsForeignImage(t *testing.T) {
	svc, _, images, _ := newTestMethodService(t)
	ctx := context.Background()

	in := validMethod("Jam")
	in.ImageURL = "https://images.example.com/jam.png"
	m, err := svc.Create(ctx, in)
	require.NoError(t, err)

	_, err = svc.ReplaceImage(ctx, m.ID, ImageUpload{
		Filename: "jar.png", ContentType: "image/png", Size: 3, Body: strings.NewReader("one"),
	})
	require.NoError(t, err)
	assert.Empty(t, images.deleted, "only our own uploads are deleted")
}

func TestReplaceImage_RejectsNonImage(t *testing.T) {
	svc, _, _, _ := newTestMethodService(t)
	ctx := context.Background()
	m, err := svc.Create(ctx, validMethod("Jam"))
	require.NoError(t, err)

	_, err = svc.ReplaceImage(ctx, m.ID, ImageUpload{
		Filename: "notes.txt", ContentType: "text/plain", Size: 3, Body: strings.NewReader("txt"),
	})
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "Please select an image file", err.Error())
}

func TestReplaceImage_UpdateFailureRemovesUpload(t *testing.T) {
	db := newTestDB(t)
	images := newMemStore()
	stats, _ := newTestStats()
	ctx := context.Background()

	m := validMethod("Jam")
	require.NoError(t, db.CreateMethod(ctx, m))

	svc := NewMethodService(failingUpdates{db}, images, stats, testLogger())
	_, err := svc.ReplaceImage(ctx, m.ID, ImageUpload{
		Filename: "jar.png", ContentType: "image/png", Size: 3, Body: strings.NewReader("one"),
	})
	require.Error(t, err)
	assert.Empty(t, images.objects)
	assert.Len(t, images.deleted, 1)
}

func TestReplaceImage_NotConfigured(t *testing.T) {
	db := newTestDB(t)
	stats, _ := newTestStats()
	svc := NewMethodService(db, nil, stats, testLogger())

	_, err := svc.ReplaceImage(context.Background(), 1, ImageUpload{ContentType: "image/png"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
