// Package queue defines the auth notification payloads exchanged over the
// message broker and the background consumer that delivers them.
package queue

// Event kinds published to the auth.notifications queue.
const (
	EventOwnerBootstrapped     = "owner.bootstrapped"
	EventPasswordResetRequest  = "password.reset_requested"
	EventSessionsRevoked       = "sessions.revoked"
)

// AuthEvent is the envelope for out-of-band credential delivery and session
// audit notices. Credentials that must reach a human through a side channel
// (the generated owner password, password-reset tokens) travel here instead
// of an HTTP response; the consumer writes them to the auth log, standing in
// for the mail gateway.
type AuthEvent struct {
	Kind       string `json:"kind"`
	UserID     uint64 `json:"user_id,omitempty"`
	Email      string `json:"email,omitempty"`
	Credential string `json:"credential,omitempty"` // raw reset token or generated password
	ExpiresAt  string `json:"expires_at,omitempty"`
	Sessions   int64  `json:"sessions,omitempty"` // revoked session count
	Reason     string `json:"reason,omitempty"`
	OccurredAt string `json:"occurred_at"`
}
