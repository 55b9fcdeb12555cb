// Package repository declares the storage contracts the rest of the app depends on.
//
// The same interfaces are satisfied by two very different implementations:
//   - repository/sqlite: the server's own relational store
//   - apiclient         : the HTTP client the CLI uses to reach that server
//
// Services and the client-side state core only ever see these interfaces, so
// they run unchanged in-process (tests, server) or across the network (CLI).
//
// USER SCOPING:
// Every per-user method takes the userID explicitly. The sqlite implementation
// filters on it; the HTTP client ignores it because the server derives the user
// from the session cookie.
package repository

import (
	"context"

	"github.com/sakif/pickleit/internal/model"
)

type ListOptions struct {
	Category string
	Limit    int
	Offset   int
}

type MethodRepository interface {
	CreateMethod(ctx context.Context, m *model.Method) error
	GetMethod(ctx context.Context, id int64) (*model.Method, error)
	ListMethods(ctx context.Context, opts ListOptions) ([]model.Method, error)
	UpdateMethod(ctx context.Context, m *model.Method) error
	CountMethods(ctx context.Context) (int, error)
}

// SavedMethodRepository manages the (user, method) bookmark pairs.
// AddSavedMethod is an upsert: saving twice is not an error.
type SavedMethodRepository interface {
	SavedMethodIDs(ctx context.Context, userID string) ([]int64, error)
	AddSavedMethod(ctx context.Context, userID string, methodID int64) error
	RemoveSavedMethod(ctx context.Context, userID string, methodID int64) error
}

// CompletedMethodRepository manages mastered-method records and the two
// aggregate reads the achievement rules need.
type CompletedMethodRepository interface {
	// UpsertCompletion reports created=true only for the call that inserted the
	// row; concurrent first completions see exactly one true.
	UpsertCompletion(ctx context.Context, c *model.CompletedMethod) (created bool, err error)
	GetCompletion(ctx context.Context, userID string, methodID int64) (*model.CompletedMethod, error)
	DeleteCompletion(ctx context.Context, userID string, methodID int64) error
	ListCompletions(ctx context.Context, userID string) ([]model.CompletedMethod, error)
	CompletedCount(ctx context.Context, userID string) (int, error)
	// CompletedCategories returns the categories in which the user completed every method.
	CompletedCategories(ctx context.Context, userID string) ([]string, error)
	LearnedMethodsCount(ctx context.Context, userID string) (int, error)
}

// AchievementRepository persists awards. InsertAchievement returns an error
// wrapping apperror.ErrConflict when the pair already exists.
type AchievementRepository interface {
	EarnedAchievementIDs(ctx context.Context, userID string) ([]string, error)
	InsertAchievement(ctx context.Context, userID, achievementID string) error
}

// ProfileRepository reads points and applies the atomic increment.
// AddUserPoints must never be implemented as read-modify-write.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	AddUserPoints(ctx context.Context, userID string, points int) error
}

type UserRepository interface {
	Upsert(ctx context.Context, user *model.User) error
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// KVRepository is a flat string store. The CLI keeps its session token and
// the local stats cache in it.
type KVRepository interface {
	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string) error
	DeleteValue(ctx context.Context, key string) error
}
