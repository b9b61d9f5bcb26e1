package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	tok, err := NewSessionToken("secret", SessionClaims{UserID: 42, Username: "alice", Superuser: true}, time.Hour)
	require.NoError(t, err)
	assert.True(t, tok.Exp.After(time.Now()))

	claims, err := ParseSessionToken("secret", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.Superuser)
}

func TestParseSessionTokenRejects(t *testing.T) {
	good, err := NewSessionToken("secret", SessionClaims{UserID: 1, Username: "bob"}, time.Hour)
	require.NoError(t, err)
	expired, err := NewSessionToken("secret", SessionClaims{UserID: 1, Username: "bob"}, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		raw    string
	}{
		{"wrong secret", "other", good.Token},
		{"expired", "secret", expired.Token},
		{"garbage", "secret", "not-a-jwt"},
		{"empty", "secret", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSessionToken(tt.secret, tt.raw)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "s3cret"))
	assert.False(t, VerifyPassword(hash, "wrong"))

	_, err = HashPassword("", bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrEmptyPassword)
}
