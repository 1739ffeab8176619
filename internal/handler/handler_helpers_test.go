package handler_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/kavehrad/traffic-dashboard/internal/config"
	"github.com/kavehrad/traffic-dashboard/internal/handler"
	"github.com/kavehrad/traffic-dashboard/internal/middleware"
	"github.com/kavehrad/traffic-dashboard/internal/model"
	"github.com/kavehrad/traffic-dashboard/internal/repository"
	"github.com/kavehrad/traffic-dashboard/internal/router"
)

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

type testApp struct {
	e      *echo.Echo
	cfg    config.Config
	users  *repository.UserRepo
	tokens *repository.TokenRepo
}

// newTestApp spins up the full route table against a throwaway SQLite
// database, with rate limiting disabled.
func newTestApp(t *testing.T) *testApp {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	cfg := config.Config{
		Env:            "test",
		JWTSecret:      "test-secret",
		AccessTTLMin:   5,
		RefreshTTLDays: 7,
		ResetTTLMin:    30,
		BcryptCost:     4,
		OwnerEmail:     "owner@traffic.local",
	}
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)

	e := echo.New()
	limiter := middleware.NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil)
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens),
		handler.NewAccountHandler(cfg, users, tokens), limiter, users, cfg.JWTSecret)
	router.RegisterOwner(e, handler.NewOwnerUserHandler(cfg, users), users, cfg.JWTSecret)

	return &testApp{e: e, cfg: cfg, users: users, tokens: tokens}
}

// do performs a JSON request against the app and returns the recorder.
func (a *testApp) do(method, path, body, bearer string) *httptest.ResponseRecorder {
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

// authPayload is the decoded register/login/refresh response.
type authPayload struct {
	User struct {
		ID    uint64 `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
	Access struct {
		Token string `json:"token"`
	} `json:"access"`
	Refresh struct {
		Token string `json:"token"`
	} `json:"refresh"`
}

func decodeAuth(t *testing.T, rec *httptest.ResponseRecorder) authPayload {
	t.Helper()
	var p authPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

// seedOwner creates the privileged account directly, the way the bootstrap
// would, and logs it in.
func (a *testApp) seedOwner(t *testing.T) authPayload {
	t.Helper()
	_, err := a.users.Create(context.Background(), "System Owner", a.cfg.OwnerEmail,
		"owner-secret", model.RoleOwner, a.cfg.BcryptCost)
	require.NoError(t, err)

	rec := a.do("POST", "/v1/auth/login",
		`{"email":"`+a.cfg.OwnerEmail+`","password":"owner-secret"}`, "")
	require.Equal(t, 200, rec.Code, rec.Body.String())
	return decodeAuth(t, rec)
}

func (a *testApp) register(t *testing.T, name, email, password string) authPayload {
	t.Helper()
	rec := a.do("POST", "/v1/auth/register",
		`{"name":"`+name+`","email":"`+email+`","password":"`+password+`"}`, "")
	require.Equal(t, 201, rec.Code, rec.Body.String())
	return decodeAuth(t, rec)
}
