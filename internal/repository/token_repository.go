package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/kavehrad/traffic-dashboard/internal/model"
)

// TokenRepo is the refresh store. Rows are append-then-revoke: nothing in the
// request path ever deletes or reactivates a record, so the table doubles as
// the session audit trail.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

const tokenColumns = `id, user_id, token_hash, expires_at, created_at,
	created_by_ip, revoked_at, revoked_by_ip, replaced_by, is_active`

// Store inserts a refresh-token record. If the insert fails no token reaches
// the client, so issuance is all-or-nothing.
func (r *TokenRepo) Store(ctx context.Context, t *model.RefreshToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.IsActive = true
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at, created_by_ip, is_active)
		 VALUES (?,?,?,?,?,?)`,
		t.UserID, t.TokenHash, t.ExpiresAt.UTC(), t.CreatedAt, t.CreatedByIP, t.IsActive)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// GetByHash looks up a record by token hash.
func (r *TokenRepo) GetByHash(ctx context.Context, hash string) (*model.RefreshToken, error) {
	var (
		t         model.RefreshToken
		revokedAt sql.NullTime
		revokedIP sql.NullString
		replaced  sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+tokenColumns+" FROM refresh_tokens WHERE token_hash=? LIMIT 1", hash).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt,
			&t.CreatedByIP, &revokedAt, &revokedIP, &replaced, &t.IsActive)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		v := revokedAt.Time
		t.RevokedAt = &v
	}
	if revokedIP.Valid {
		v := revokedIP.String
		t.RevokedByIP = &v
	}
	if replaced.Valid {
		v := replaced.String
		t.ReplacedBy = &v
	}
	return &t, nil
}

// Rotate atomically retires the presented token and persists its successor.
// The revocation is conditioned on the row still being active, so of two
// concurrent rotations of the same token exactly one wins; the loser gets
// ErrTokenRotated. Both statements share a transaction: if the successor
// insert fails the revocation rolls back and the presented token stays
// valid (fail closed — the user is never locked out by a half rotation).
func (r *TokenRepo) Rotate(ctx context.Context, oldHash, ip string, succ *model.RefreshToken) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens
		 SET revoked_at=?, revoked_by_ip=?, replaced_by=?, is_active=?
		 WHERE token_hash=? AND is_active=? AND revoked_at IS NULL`,
		now, ip, succ.TokenHash, false, oldHash, true)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTokenRotated
	}

	succ.CreatedAt = now
	succ.IsActive = true
	ins, err := tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at, created_by_ip, is_active)
		 VALUES (?,?,?,?,?,?)`,
		succ.UserID, succ.TokenHash, succ.ExpiresAt.UTC(), succ.CreatedAt, succ.CreatedByIP, succ.IsActive)
	if err != nil {
		return err
	}
	id, err := ins.LastInsertId()
	if err != nil {
		return err
	}
	succ.ID = uint64(id)
	return tx.Commit()
}

// RevokeByHash retires a single token. Idempotent: revoking a missing or
// already-inactive token is a success, which is what logout needs.
func (r *TokenRepo) RevokeByHash(ctx context.Context, hash, ip string) error {
	now := time.Now().UTC()
	_, err := r.DB.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at=?, revoked_by_ip=?, is_active=?
		 WHERE token_hash=? AND is_active=? AND revoked_at IS NULL`,
		now, ip, false, hash, true)
	return err
}

// RevokeAllForUser retires every active token of a user and reports how many
// sessions that ended. Used by logout-all and by password change/reset; no
// successor chain is recorded.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64, ip string) (int64, error) {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at=?, revoked_by_ip=?, is_active=?
		 WHERE user_id=? AND is_active=? AND revoked_at IS NULL`,
		now, ip, false, userID, true)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpired removes inactive records that expired before the cutoff.
// Retention cleanup is a housekeeping concern; nothing in the request path
// calls this.
func (r *TokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at < ? AND is_active=?",
		before.UTC(), false)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
