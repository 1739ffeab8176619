package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/kavehrad/traffic-dashboard/internal/model"
	"github.com/kavehrad/traffic-dashboard/internal/utils"
)

// UserRepo is the identity registry. All timestamps are written from Go in
// UTC so the same queries run against MySQL in production and SQLite in
// tests.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `id, name, email, password_hash, role, is_active,
	last_login_at, reset_token_hash, reset_expires_at, created_at, updated_at`

// Create inserts a user with the given role and returns its ID. The caller
// is responsible for role policy: self-registration always passes
// model.RoleViewer, the admin path only assignable roles, the bootstrap
// model.RoleOwner.
func (r *UserRepo) Create(ctx context.Context, name, email, password, role string, cost int) (uint64, error) {
	if !model.ValidRole(role) {
		return 0, ErrRoleNotAssignable
	}
	email = NormalizeEmail(email)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (name, email, password_hash, role, is_active, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?)`,
		name, email, hash, role, true, now, now)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.get(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", NormalizeEmail(email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.get(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
}

// GetByResetHash fetches the user holding the given reset-token hash. Expiry
// is checked by the caller so that expired and unknown tokens produce the
// same response.
func (r *UserRepo) GetByResetHash(ctx context.Context, hash string) (model.User, error) {
	return r.get(ctx, "SELECT "+userColumns+" FROM users WHERE reset_token_hash=? LIMIT 1", hash)
}

// List returns all users ordered by id.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// TouchLastLogin records a successful login.
func (r *UserRepo) TouchLastLogin(ctx context.Context, id uint64) error {
	now := time.Now().UTC()
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET last_login_at=?, updated_at=? WHERE id=?", now, now, id)
	return err
}

// CountActiveOwners reports how many active owner accounts exist.
func (r *UserRepo) CountActiveOwners(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE role=? AND is_active=?", model.RoleOwner, true).Scan(&n)
	return n, err
}

// UpdateRole changes a user's role under the registry invariants: owners are
// immutable, OWNER is never assignable, and the change must not drop the
// active-owner count to zero. The checks and the write share one transaction.
func (r *UserRepo) UpdateRole(ctx context.Context, id uint64, newRole string) error {
	if !model.AssignableRoles[newRole] {
		return ErrRoleNotAssignable
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var curRole string
	var active bool
	err = tx.QueryRowContext(ctx,
		"SELECT role, is_active FROM users WHERE id=?", id).Scan(&curRole, &active)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if curRole == model.RoleOwner {
		// The zero-active-owner check runs even though owner targets are
		// rejected outright just below; the invariant must hold on its own
		// if owner mutability is ever relaxed.
		if active {
			if err := requireOtherActiveOwner(ctx, tx, id); err != nil {
				return err
			}
		}
		return ErrOwnerImmutable
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET role=?, updated_at=? WHERE id=?", newRole, now, id); err != nil {
		return err
	}
	return tx.Commit()
}

// SetActive toggles the active flag. Deactivating the last active owner is
// refused; everything else is last-writer-wins.
func (r *UserRepo) SetActive(ctx context.Context, id uint64, active bool) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var role string
	var curActive bool
	err = tx.QueryRowContext(ctx,
		"SELECT role, is_active FROM users WHERE id=?", id).Scan(&role, &curActive)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !active && curActive && role == model.RoleOwner {
		if err := requireOtherActiveOwner(ctx, tx, id); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET is_active=?, updated_at=? WHERE id=?", active, now, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Deactivate is the canonical removal path: a soft, reversible delete.
// Owners are protected, and nobody may delete themselves — not even an owner.
func (r *UserRepo) Deactivate(ctx context.Context, requesterID, targetID uint64) error {
	if requesterID == targetID {
		return ErrSelfDelete
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var role string
	err = tx.QueryRowContext(ctx,
		"SELECT role FROM users WHERE id=?", targetID).Scan(&role)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if role == model.RoleOwner {
		return ErrOwnerProtected
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET is_active=?, updated_at=? WHERE id=?", false, now, targetID); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdatePassword stores a new password hash and clears any pending reset
// token. Callers revoke the user's refresh tokens afterwards.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, plain string, cost int) error {
	hash, err := utils.HashPassword(plain, cost)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET password_hash=?, reset_token_hash=NULL, reset_expires_at=NULL, updated_at=?
		 WHERE id=?`, hash, now, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetResetToken stores the hash and expiry of a freshly issued password-reset
// token, replacing any previous one.
func (r *UserRepo) SetResetToken(ctx context.Context, id uint64, hash string, exp time.Time) error {
	now := time.Now().UTC()
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET reset_token_hash=?, reset_expires_at=?, updated_at=? WHERE id=?",
		hash, exp.UTC(), now, id)
	return err
}

// PromoteOwner forces role=OWNER and is_active=true on an existing account.
// This is the bootstrap path — the only way the owner role is ever assigned.
func (r *UserRepo) PromoteOwner(ctx context.Context, id uint64) error {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET role=?, is_active=?, updated_at=? WHERE id=?",
		model.RoleOwner, true, now, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// requireOtherActiveOwner fails with ErrLastOwner unless an active owner
// other than excludeID exists.
func requireOtherActiveOwner(ctx context.Context, tx *sql.Tx, excludeID uint64) error {
	var n int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE role=? AND is_active=? AND id<>?",
		model.RoleOwner, true, excludeID).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return ErrLastOwner
	}
	return nil
}

// NormalizeEmail lower-cases and trims an email so uniqueness is
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *UserRepo) get(ctx context.Context, query string, arg interface{}) (model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return model.User{}, ErrNotFound
	}
	return u, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u         model.User
		lastLogin sql.NullTime
		resetHash sql.NullString
		resetExp  sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive,
		&lastLogin, &resetHash, &resetExp, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	if resetHash.Valid {
		s := resetHash.String
		u.ResetTokenHash = &s
	}
	if resetExp.Valid {
		t := resetExp.Time
		u.ResetExpiresAt = &t
	}
	return u, nil
}

// isDuplicate matches the unique-key violation of both MySQL (error 1062)
// and SQLite ("UNIQUE constraint failed", used by the test harness).
func isDuplicate(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "1062") || strings.Contains(msg, "unique")
}
