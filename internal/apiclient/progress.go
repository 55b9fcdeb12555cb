package apiclient

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sakif/pickleit/internal/model"
	"github.com/sakif/pickleit/internal/repository"
	"github.com/sakif/pickleit/internal/service"
)

// The userID arguments below are accepted to satisfy the repository
// interfaces and otherwise ignored: the server takes the user from the
// session cookie.
var (
	_ repository.SavedMethodRepository     = (*Client)(nil)
	_ repository.CompletedMethodRepository = (*Client)(nil)
	_ repository.AchievementRepository     = (*Client)(nil)
	_ repository.ProfileRepository         = (*Client)(nil)
)

// =========================================================================
// SAVED METHODS
// =========================================================================

func (c *Client) SavedMethodIDs(ctx context.Context, _ string) ([]int64, error) {
	var out struct {
		MethodIDs []int64 `json:"methodIds"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/saved", nil, &out); err != nil {
		return nil, err
	}
	return out.MethodIDs, nil
}

func (c *Client) AddSavedMethod(ctx context.Context, _ string, methodID int64) error {
	return c.do(ctx, http.MethodPut, savedPath(methodID), nil, nil)
}

func (c *Client) RemoveSavedMethod(ctx context.Context, _ string, methodID int64) error {
	return c.do(ctx, http.MethodDelete, savedPath(methodID), nil, nil)
}

func savedPath(id int64) string { return "/api/saved/" + strconv.FormatInt(id, 10) }

// =========================================================================
// COMPLETIONS
// =========================================================================

func completedPath(id int64) string { return "/api/completed/" + strconv.FormatInt(id, 10) }

// UpsertCompletion reports created=true when the server inserted the row.
func (c *Client) UpsertCompletion(ctx context.Context, comp *model.CompletedMethod) (bool, error) {
	in := struct {
		Notes  string `json:"notes"`
		Rating int    `json:"rating"`
	}{comp.Notes, comp.Rating}
	out := struct {
		*model.CompletedMethod
		Created bool `json:"created"`
	}{CompletedMethod: comp}
	if err := c.do(ctx, http.MethodPut, completedPath(comp.MethodID), in, &out); err != nil {
		return false, err
	}
	return out.Created, nil
}

func (c *Client) GetCompletion(ctx context.Context, _ string, methodID int64) (*model.CompletedMethod, error) {
	var out model.CompletedMethod
	if err := c.do(ctx, http.MethodGet, completedPath(methodID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteCompletion(ctx context.Context, _ string, methodID int64) error {
	return c.do(ctx, http.MethodDelete, completedPath(methodID), nil, nil)
}

func (c *Client) ListCompletions(ctx context.Context, _ string) ([]model.CompletedMethod, error) {
	var out []model.CompletedMethod
	if err := c.do(ctx, http.MethodGet, "/api/completed", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CompletedCount(ctx context.Context, _ string) (int, error) {
	return c.count(ctx, "/api/completed/count")
}

func (c *Client) CompletedCategories(ctx context.Context, _ string) ([]string, error) {
	var out struct {
		Categories []string `json:"categories"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/rpc/get_completed_categories", nil, &out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

func (c *Client) LearnedMethodsCount(ctx context.Context, _ string) (int, error) {
	return c.count(ctx, "/api/rpc/get_learned_methods_count")
}

func (c *Client) count(ctx context.Context, path string) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// =========================================================================
// ACHIEVEMENTS AND PROFILE
// =========================================================================

func (c *Client) EarnedAchievementIDs(ctx context.Context, _ string) ([]string, error) {
	var out struct {
		AchievementIDs []string `json:"achievementIds"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/achievements", nil, &out); err != nil {
		return nil, err
	}
	return out.AchievementIDs, nil
}

// InsertAchievement returns an error wrapping apperror.ErrConflict when the
// award already exists (HTTP 409).
func (c *Client) InsertAchievement(ctx context.Context, _ string, achievementID string) error {
	in := struct {
		AchievementID string `json:"achievementId"`
	}{achievementID}
	return c.do(ctx, http.MethodPost, "/api/achievements", in, nil)
}

// Overview is the server-computed achievements screen.
func (c *Client) Overview(ctx context.Context) (*service.Overview, error) {
	var out service.Overview
	if err := c.do(ctx, http.MethodGet, "/api/achievements/overview", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetProfile(ctx context.Context, _ string) (*model.Profile, error) {
	var out model.Profile
	if err := c.do(ctx, http.MethodGet, "/api/profile", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddUserPoints is the server's atomic increment.
func (c *Client) AddUserPoints(ctx context.Context, _ string, points int) error {
	in := struct {
		Points int `json:"points"`
	}{points}
	return c.do(ctx, http.MethodPost, "/api/rpc/add_user_points", in, nil)
}
