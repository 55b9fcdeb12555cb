// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database; it lives inside the Go binary and stores everything
// in one file. The server uses it as PickleIt's relational backend, and the CLI uses a
// second, tiny SQLite file as its local key/value cache. One driver, two roles.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// modernc.org/sqlite is a pure Go translation of the SQLite C code: no CGo, no C
// compiler, cross-compiles everywhere Go does. That matters for a CLI we ship as a
// single static binary.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB      : a connection pool (NOT a single connection!)
//   - sql.Tx      : a transaction
//   - sql.Row     : a single result row
//   - sql.Rows    : multiple result rows (must be closed!)
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// The driver registers itself with database/sql as "sqlite" in its init().
	// We also use its Error type to recognise constraint violations.
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and implements every repository interface:
// methods, saved methods, completions, achievements, profiles, users, and the KV store.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) a SQLite database and runs migrations.
//
// dbPath examples:
//   - "data/pickleit.db"  → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests)
//
// IN-MEMORY POOLS:
// Every connection to ":memory:" gets its OWN empty database. A pool with two
// connections would see two different databases, so in-memory DBs are pinned
// to a single connection.
//
// PER-CONNECTION PRAGMAS:
// A PRAGMA run through conn.Exec only reaches whichever pooled connection ran
// it. Settings every connection needs go in the DSN instead; the driver applies
// them each time it opens a connection. See dsnFor.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsnFor(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	// sql.Open does not connect; Ping forces a connection so a bad path
	// surfaces here instead of on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// dsnFor adds the per-connection pragmas to dbPath:
//
//	foreign_keys(1)       saved/completed rows must point at real methods and users
//	busy_timeout(5000)    writers wait up to 5s for the lock instead of SQLITE_BUSY
//
// Foreign keys are OFF by default in SQLite and the setting is per connection,
// so it has to be here for file databases, whose pool opens several.
func dsnFor(dbPath string) string {
	pragmas := "_pragma=foreign_keys(1)"
	if dbPath != ":memory:" {
		pragmas += "&_pragma=busy_timeout(5000)"
	}
	if strings.Contains(dbPath, "?") {
		return dbPath + "&" + pragmas
	}
	return dbPath + "?" + pragmas
}

// Close closes the database connection pool.
//
//	db, err := sqlite.New("data/pickleit.db")
//	if err != nil { ... }
//	defer db.Close()
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates every table the app needs.
//
// CREATE TABLE IF NOT EXISTS makes each statement idempotent, so migrate runs on
// every start. Column additions go through addColumnIfNotExists.
//
// UNIQUE PAIRS:
// saved_methods, completed_methods and user_achievements use a composite primary
// key on (user_id, <thing>). The database, not the client, enforces "at most once".
func (db *DB) migrate() error {
	steps := []struct {
		name string
		sql  string
	}{
		{"users table", `
			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				github_id     INTEGER UNIQUE,
				login         TEXT NOT NULL DEFAULT '',
				email         TEXT NOT NULL DEFAULT '',
				avatar_url    TEXT NOT NULL DEFAULT '',
				password_hash TEXT NOT NULL DEFAULT '',
				created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_users_password_email
				ON users(email) WHERE password_hash <> '';
		`},
		{"methods table", `
			CREATE TABLE IF NOT EXISTS methods (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				title       TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				category    TEXT NOT NULL,
				duration    TEXT NOT NULL DEFAULT '',
				image_url   TEXT NOT NULL DEFAULT '',
				steps       TEXT NOT NULL DEFAULT '[]',
				ingredients TEXT NOT NULL DEFAULT '[]',
				base_yield  REAL NOT NULL DEFAULT 0,
				yield_unit  TEXT NOT NULL DEFAULT '',
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_methods_category ON methods(category);
		`},
		{"profiles table", `
			CREATE TABLE IF NOT EXISTS profiles (
				id     TEXT PRIMARY KEY REFERENCES users(id),
				points INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0)
			);
		`},
		{"saved_methods table", `
			CREATE TABLE IF NOT EXISTS saved_methods (
				user_id    TEXT NOT NULL REFERENCES users(id),
				method_id  INTEGER NOT NULL REFERENCES methods(id),
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (user_id, method_id)
			);
		`},
		{"completed_methods table", `
			CREATE TABLE IF NOT EXISTS completed_methods (
				user_id      TEXT NOT NULL REFERENCES users(id),
				method_id    INTEGER NOT NULL REFERENCES methods(id),
				notes        TEXT NOT NULL DEFAULT '',
				rating       INTEGER NOT NULL DEFAULT 0,
				completed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (user_id, method_id)
			);
		`},
		{"user_achievements table", `
			CREATE TABLE IF NOT EXISTS user_achievements (
				user_id        TEXT NOT NULL REFERENCES users(id),
				achievement_id TEXT NOT NULL,
				earned_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (user_id, achievement_id)
			);
		`},
		{"kv table", `
			CREATE TABLE IF NOT EXISTS kv (
				key        TEXT PRIMARY KEY,
				value      TEXT NOT NULL,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`},
	}

	for _, s := range steps {
		if _, err := db.conn.Exec(s.sql); err != nil {
			return fmt.Errorf("creating %s: %w", s.name, err)
		}
	}

	// Yield fields arrived after the first release of the methods table.
	if err := db.addColumnIfNotExists("methods", "yield_unit", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding yield_unit to methods: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent; safe to run multiple times.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	if err != nil {
		return fmt.Errorf("adding column %s.%s: %w", table, column, err)
	}
	return nil
}

// isUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY constraint.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlitedrv.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation reports whether err came from a FOREIGN KEY constraint.
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlitedrv.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
