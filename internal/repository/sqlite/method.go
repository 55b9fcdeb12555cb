package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/pickleit/internal/apperror"
	"github.com/sakif/pickleit/internal/model"
	"github.com/sakif/pickleit/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// `var _ X = (*Y)(nil)` fails to compile if *Y stops implementing X.
var _ repository.MethodRepository = (*DB)(nil)

// methodColumns is shared by every SELECT so scanMethod always sees the same order.
const methodColumns = `id, title, description, category, duration, image_url,
	steps, ingredients, base_yield, yield_unit, created_at, updated_at`

// CreateMethod inserts a new method. The database assigns the integer ID.
//
// JSON COLUMNS:
// Steps and ingredients are owned exclusively by their method and are always
// read together with it, so they live in TEXT columns as JSON instead of child
// tables. Steps are renumbered 1..n before they are stored.
func (db *DB) CreateMethod(ctx context.Context, m *model.Method) error {
	m.Steps = model.RenumberSteps(m.Steps)
	steps, ingredients, err := encodeMethodParts(m)
	if err != nil {
		return err
	}

	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO methods (title, description, category, duration, image_url,
			steps, ingredients, base_yield, yield_unit, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Title, m.Description, m.Category, m.Duration, m.ImageURL,
		steps, ingredients, m.BaseYield, m.YieldUnit, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating method: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading method id: %w", err)
	}
	m.ID = id

	return nil
}

// GetMethod retrieves a method by ID.
// Returns apperror.ErrNotFound if no method exists with that ID.
func (db *DB) GetMethod(ctx context.Context, id int64) (*model.Method, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+methodColumns+` FROM methods WHERE id = ?`, id)

	m, err := scanMethod(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("method", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting method %d: %w", id, err)
	}
	return m, nil
}

// ListMethods returns methods ordered by newest first, optionally filtered by category.
//
// A zero Limit means "no limit"; the catalog is small and the CLI lists it all.
func (db *DB) ListMethods(ctx context.Context, opts repository.ListOptions) ([]model.Method, error) {
	query := `SELECT ` + methodColumns + ` FROM methods`
	var args []any

	if opts.Category != "" {
		query += ` WHERE category = ?`
		args = append(args, opts.Category)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing methods: %w", err)
	}
	defer rows.Close()

	// Start with an empty (non-nil) slice so JSON encodes [] rather than null.
	methods := []model.Method{}
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning method row: %w", err)
		}
		methods = append(methods, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating method rows: %w", err)
	}

	return methods, nil
}

// UpdateMethod replaces the content fields of an existing method.
// ID and CreatedAt are never changed.
func (db *DB) UpdateMethod(ctx context.Context, m *model.Method) error {
	m.Steps = model.RenumberSteps(m.Steps)
	steps, ingredients, err := encodeMethodParts(m)
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE methods SET title = ?, description = ?, category = ?, duration = ?,
			image_url = ?, steps = ?, ingredients = ?, base_yield = ?, yield_unit = ?,
			updated_at = ?
		 WHERE id = ?`,
		m.Title, m.Description, m.Category, m.Duration, m.ImageURL,
		steps, ingredients, m.BaseYield, m.YieldUnit, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating method %d: %w", m.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("method", strconv.FormatInt(m.ID, 10))
	}

	return nil
}

// CountMethods returns the total number of methods in the catalog.
func (db *DB) CountMethods(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM methods`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting methods: %w", err)
	}
	return n, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMethod(s scanner) (*model.Method, error) {
	var (
		m           model.Method
		steps       string
		ingredients string
	)
	err := s.Scan(
		&m.ID, &m.Title, &m.Description, &m.Category, &m.Duration, &m.ImageURL,
		&steps, &ingredients, &m.BaseYield, &m.YieldUnit, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(steps), &m.Steps); err != nil {
		return nil, fmt.Errorf("decoding steps of method %d: %w", m.ID, err)
	}
	if err := json.Unmarshal([]byte(ingredients), &m.Ingredients); err != nil {
		return nil, fmt.Errorf("decoding ingredients of method %d: %w", m.ID, err)
	}
	return &m, nil
}

func encodeMethodParts(m *model.Method) (string, string, error) {
	steps := m.Steps
	if steps == nil {
		steps = []model.Step{}
	}
	ingredients := m.Ingredients
	if ingredients == nil {
		ingredients = []model.Ingredient{}
	}

	s, err := json.Marshal(steps)
	if err != nil {
		return "", "", fmt.Errorf("sqlite: encoding steps: %w", err)
	}
	i, err := json.Marshal(ingredients)
	if err != nil {
		return "", "", fmt.Errorf("sqlite: encoding ingredients: %w", err)
	}
	return string(s), string(i), nil
}
