package bootstrap_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavehrad/traffic-dashboard/internal/bootstrap"
	"github.com/kavehrad/traffic-dashboard/internal/config"
	"github.com/kavehrad/traffic-dashboard/internal/model"
	"github.com/kavehrad/traffic-dashboard/internal/repository"
	"github.com/kavehrad/traffic-dashboard/internal/utils"
)

const usersSchema = `
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
`

func testRepo(t *testing.T) *repository.UserRepo {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "boot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(usersSchema)
	require.NoError(t, err)
	return repository.NewUserRepo(db)
}

func testCfg() config.Config {
	return config.Config{
		OwnerEmail: "owner@traffic.local",
		BcryptCost: 4,
	}
}

func TestEnsureOwnerCreatesWithGeneratedPassword(t *testing.T) {
	users := testRepo(t)
	cfg := testCfg()

	res, err := bootstrap.EnsureOwner(t.Context(), cfg, users)
	require.NoError(t, err)
	assert.True(t, res.Created)
	require.NotEmpty(t, res.Password)

	u, err := users.GetByID(t.Context(), res.UserID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleOwner, u.Role)
	assert.True(t, u.IsActive)
	assert.True(t, utils.VerifyPassword(u.PasswordHash, res.Password))
}

func TestEnsureOwnerUsesConfiguredPassword(t *testing.T) {
	users := testRepo(t)
	cfg := testCfg()
	cfg.OwnerPassword = "configured-secret"

	res, err := bootstrap.EnsureOwner(t.Context(), cfg, users)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Empty(t, res.Password)

	u, err := users.GetByID(t.Context(), res.UserID)
	require.NoError(t, err)
	assert.True(t, utils.VerifyPassword(u.PasswordHash, "configured-secret"))
}

func TestEnsureOwnerIsIdempotent(t *testing.T) {
	users := testRepo(t)
	cfg := testCfg()

	first, err := bootstrap.EnsureOwner(t.Context(), cfg, users)
	require.NoError(t, err)
	second, err := bootstrap.EnsureOwner(t.Context(), cfg, users)
	require.NoError(t, err)

	assert.Equal(t, first.UserID, second.UserID)
	assert.False(t, second.Created)
	assert.Empty(t, second.Password)

	all, err := users.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEnsureOwnerPromotesExistingAccount(t *testing.T) {
	users := testRepo(t)
	cfg := testCfg()

	// A plain viewer already holds the configured address, deactivated on
	// top of that.
	id, err := users.Create(t.Context(), "Old Hand", cfg.OwnerEmail, "old-password",
		model.RoleViewer, cfg.BcryptCost)
	require.NoError(t, err)
	require.NoError(t, users.SetActive(t.Context(), id, false))

	res, err := bootstrap.EnsureOwner(t.Context(), cfg, users)
	require.NoError(t, err)
	assert.Equal(t, id, res.UserID)
	assert.False(t, res.Created)

	u, err := users.GetByID(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, model.RoleOwner, u.Role)
	assert.True(t, u.IsActive)
	// The existing credential is untouched.
	assert.True(t, utils.VerifyPassword(u.PasswordHash, "old-password"))
}
