package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	at, err := NewAccessToken("secret", 42, "a@x.com", "ADMIN", 15)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), at.Exp, 5*time.Second)

	id, email, role, err := ParseAccessToken("secret", at.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
	assert.Equal(t, "a@x.com", email)
	assert.Equal(t, "ADMIN", role)
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	at, err := NewAccessToken("secret", 1, "a@x.com", "VIEWER", 15)
	require.NoError(t, err)

	_, _, _, err = ParseAccessToken("other-secret", at.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	at, err := NewAccessToken("secret", 1, "a@x.com", "VIEWER", -5)
	require.NoError(t, err)

	_, _, _, err = ParseAccessToken("secret", at.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAccessTokenRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "not-a-jwt", "a.b.c"} {
		_, _, _, err := ParseAccessToken("secret", raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestNewRefreshTokenIsUniqueAndOpaque(t *testing.T) {
	a, err := NewRefreshToken(7)
	require.NoError(t, err)
	b, err := NewRefreshToken(7)
	require.NoError(t, err)

	assert.Len(t, a.Raw, 96)
	assert.NotEqual(t, a.Raw, b.Raw)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), a.Exp, 5*time.Second)
}

func TestHashTokenRawIsDeterministic(t *testing.T) {
	h1 := HashTokenRaw("some-raw-token")
	h2 := HashTokenRaw("some-raw-token")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, HashTokenRaw("other-token"))
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("hunter22", 4)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "hunter22"))
	assert.False(t, VerifyPassword(hash, "hunter23"))
	assert.False(t, VerifyPassword("not-a-bcrypt-hash", "hunter22"))
}
