package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/pickleit/internal/apperror"
	"github.com/sakif/pickleit/internal/model"
	"github.com/sakif/pickleit/internal/repository"
)

var (
	_ repository.SavedMethodRepository     = (*DB)(nil)
	_ repository.CompletedMethodRepository = (*DB)(nil)
	_ repository.AchievementRepository     = (*DB)(nil)
	_ repository.ProfileRepository         = (*DB)(nil)
)

// =========================================================================
// SAVED METHODS
// =========================================================================

// SavedMethodIDs returns the ids of every method the user has saved, oldest first.
func (db *DB) SavedMethodIDs(ctx context.Context, userID string) ([]int64, error) {
	return db.queryIDs(ctx,
		`SELECT method_id FROM saved_methods WHERE user_id = ? ORDER BY created_at, method_id`,
		userID,
	)
}

// AddSavedMethod upserts the (user, method) pair. Saving twice is a no-op.
func (db *DB) AddSavedMethod(ctx context.Context, userID string, methodID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO saved_methods (user_id, method_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, method_id) DO NOTHING`,
		userID, methodID, time.Now(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("method", strconv.FormatInt(methodID, 10))
		}
		return fmt.Errorf("sqlite: saving method %d for user %s: %w", methodID, userID, err)
	}
	return nil
}

// RemoveSavedMethod deletes the pair. Removing a pair that does not exist is not an error.
func (db *DB) RemoveSavedMethod(ctx context.Context, userID string, methodID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM saved_methods WHERE user_id = ? AND method_id = ?`,
		userID, methodID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing saved method %d for user %s: %w", methodID, userID, err)
	}
	return nil
}

// =========================================================================
// COMPLETED METHODS
// =========================================================================

// UpsertCompletion marks a method as mastered. Re-completing overwrites notes,
// rating and timestamp but never creates a second row.
//
// FIRST COMPLETION:
// The INSERT ... DO NOTHING decides who created the row. SQLite serialises
// writers, so of two concurrent first completions exactly one sees
// RowsAffected == 1; the other falls through to the UPDATE.
func (db *DB) UpsertCompletion(ctx context.Context, c *model.CompletedMethod) (bool, error) {
	if c.CompletedAt.IsZero() {
		c.CompletedAt = time.Now()
	}
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO completed_methods (user_id, method_id, notes, rating, completed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, method_id) DO NOTHING`,
		c.UserID, c.MethodID, c.Notes, c.Rating, c.CompletedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, apperror.NotFound("method", strconv.FormatInt(c.MethodID, 10))
		}
		return false, fmt.Errorf("sqlite: completing method %d for user %s: %w", c.MethodID, c.UserID, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking completion insert: %w", err)
	}
	if inserted == 1 {
		return true, nil
	}

	_, err = db.conn.ExecContext(ctx,
		`UPDATE completed_methods SET notes = ?, rating = ?, completed_at = ?
		 WHERE user_id = ? AND method_id = ?`,
		c.Notes, c.Rating, c.CompletedAt, c.UserID, c.MethodID,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: updating completion of method %d for user %s: %w", c.MethodID, c.UserID, err)
	}
	return false, nil
}

// GetCompletion returns the completion record, or apperror.ErrNotFound.
func (db *DB) GetCompletion(ctx context.Context, userID string, methodID int64) (*model.CompletedMethod, error) {
	c := model.CompletedMethod{UserID: userID, MethodID: methodID}
	err := db.conn.QueryRowContext(ctx,
		`SELECT notes, rating, completed_at FROM completed_methods
		 WHERE user_id = ? AND method_id = ?`,
		userID, methodID,
	).Scan(&c.Notes, &c.Rating, &c.CompletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("completed method", strconv.FormatInt(methodID, 10))
		}
		return nil, fmt.Errorf("sqlite: getting completion %d for user %s: %w", methodID, userID, err)
	}
	return &c, nil
}

// DeleteCompletion removes the completion record.
// Returns apperror.ErrNotFound if the method was not completed.
func (db *DB) DeleteCompletion(ctx context.Context, userID string, methodID int64) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM completed_methods WHERE user_id = ? AND method_id = ?`,
		userID, methodID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting completion %d for user %s: %w", methodID, userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("completed method", strconv.FormatInt(methodID, 10))
	}
	return nil
}

// ListCompletions returns the user's completions, most recent first.
func (db *DB) ListCompletions(ctx context.Context, userID string) ([]model.CompletedMethod, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT method_id, notes, rating, completed_at FROM completed_methods
		 WHERE user_id = ? ORDER BY completed_at DESC, method_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing completions for user %s: %w", userID, err)
	}
	defer rows.Close()

	out := []model.CompletedMethod{}
	for rows.Next() {
		c := model.CompletedMethod{UserID: userID}
		if err := rows.Scan(&c.MethodID, &c.Notes, &c.Rating, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning completion row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating completion rows: %w", err)
	}
	return out, nil
}

// CompletedCount returns how many methods the user has completed.
func (db *DB) CompletedCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM completed_methods WHERE user_id = ?`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting completions for user %s: %w", userID, err)
	}
	return n, nil
}

// CompletedCategories returns every category whose methods the user has ALL completed.
//
// HOW THE QUERY WORKS:
// LEFT JOIN keeps every method in the category; methods the user has not
// completed get a NULL c.method_id. COUNT(column) skips NULLs, so a category is
// complete exactly when COUNT(m.id) = COUNT(c.method_id).
func (db *DB) CompletedCategories(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT m.category
		 FROM methods m
		 LEFT JOIN completed_methods c ON c.method_id = m.id AND c.user_id = ?
		 GROUP BY m.category
		 HAVING COUNT(m.id) > 0 AND COUNT(m.id) = COUNT(c.method_id)
		 ORDER BY m.category`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: completed categories for user %s: %w", userID, err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("sqlite: scanning category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating categories: %w", err)
	}
	return categories, nil
}

// LearnedMethodsCount counts completed methods that still exist in the catalog.
func (db *DB) LearnedMethodsCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM completed_methods c
		 JOIN methods m ON m.id = c.method_id
		 WHERE c.user_id = ?`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: learned methods for user %s: %w", userID, err)
	}
	return n, nil
}

// =========================================================================
// ACHIEVEMENTS
// =========================================================================

// EarnedAchievementIDs returns the ids of every achievement awarded to the user.
func (db *DB) EarnedAchievementIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT achievement_id FROM user_achievements WHERE user_id = ? ORDER BY earned_at, achievement_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: earned achievements for user %s: %w", userID, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning achievement id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating achievement ids: %w", err)
	}
	return ids, nil
}

// InsertAchievement records an award. A second insert of the same pair
// returns an error wrapping apperror.ErrConflict.
func (db *DB) InsertAchievement(ctx context.Context, userID, achievementID string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_achievements (user_id, achievement_id, earned_at) VALUES (?, ?, ?)`,
		userID, achievementID, time.Now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user achievement", achievementID)
		}
		return fmt.Errorf("sqlite: inserting achievement %s for user %s: %w", achievementID, userID, err)
	}
	return nil
}

// =========================================================================
// PROFILES
// =========================================================================

// GetProfile returns the user's points. A user with no profile row has 0 points.
func (db *DB) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	p := model.Profile{UserID: userID}
	err := db.conn.QueryRowContext(ctx,
		`SELECT points FROM profiles WHERE id = ?`, userID,
	).Scan(&p.Points)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("sqlite: getting profile %s: %w", userID, err)
	}
	return &p, nil
}

// AddUserPoints atomically increments the user's points.
//
// ATOMIC INCREMENT:
// The addition happens inside one SQL statement (points = points + excluded.points),
// so two concurrent awards can never overwrite each other the way a
// read-then-write from the caller could.
func (db *DB) AddUserPoints(ctx context.Context, userID string, points int) error {
	if points < 0 {
		return apperror.ValidationFailed("points", "points must not be negative")
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO profiles (id, points) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET points = points + excluded.points`,
		userID, points,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("user", userID)
		}
		return fmt.Errorf("sqlite: adding %d points to %s: %w", points, userID, err)
	}
	return nil
}

func (db *DB) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying ids: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating ids: %w", err)
	}
	return ids, nil
}
