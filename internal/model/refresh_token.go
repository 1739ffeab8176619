package model

import "time"

// RefreshToken mirrors the 'refresh_tokens' table. Only the SHA-256 hash of
// the raw token is stored; the raw value exists solely in the client's hands.
// Rows are never deleted by the request path — revoked and expired rows stay
// behind as the audit trail, chained through ReplacedBy.
type RefreshToken struct {
	ID          uint64
	UserID      uint64
	TokenHash   string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	CreatedByIP string
	RevokedAt   *time.Time
	RevokedByIP *string
	ReplacedBy  *string // token hash of the successor minted during rotation
	IsActive    bool
}

// Valid reports whether the token is usable at the given instant: still
// flagged active, not revoked, not expired.
func (t *RefreshToken) Valid(now time.Time) bool {
	return t.IsActive && t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
