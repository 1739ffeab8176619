package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kavehrad/traffic-dashboard/internal/model"
)

// The repositories run the same parameterized SQL against MySQL in
// production and SQLite here; timestamps always travel as Go values, never
// as SQL functions, so both dialects behave identically.

const testSchema = `
CREATE TABLE users (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT NOT NULL,
	email            TEXT NOT NULL UNIQUE,
	password_hash    TEXT NOT NULL,
	role             TEXT NOT NULL,
	is_active        INTEGER NOT NULL DEFAULT 1,
	last_login_at    DATETIME,
	reset_token_hash TEXT,
	reset_expires_at DATETIME,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE TABLE refresh_tokens (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id       INTEGER NOT NULL REFERENCES users(id),
	token_hash    TEXT NOT NULL UNIQUE,
	expires_at    DATETIME NOT NULL,
	created_at    DATETIME NOT NULL,
	created_by_ip TEXT NOT NULL,
	revoked_at    DATETIME,
	revoked_by_ip TEXT,
	replaced_by   TEXT,
	is_active     INTEGER NOT NULL DEFAULT 1
);
`

// testDB opens a throwaway SQLite database with the identity schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("applying schema: %v", err)
	}
	return db
}

// mustCreateUser inserts a user with the given role and returns its id.
func mustCreateUser(t *testing.T, users *UserRepo, name, email, password, role string) uint64 {
	t.Helper()
	id, err := users.Create(context.Background(), name, email, password, role, 4)
	if err != nil {
		t.Fatalf("creating user %s: %v", email, err)
	}
	return id
}

func mustCreateOwner(t *testing.T, users *UserRepo, email string) uint64 {
	t.Helper()
	return mustCreateUser(t, users, "Owner", email, "ownerpass", model.RoleOwner)
}
