package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, VerifyPassword(hash, "correct horse battery staple"))
	assert.False(t, VerifyPassword(hash, "wrong password"))
}

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken("test-secret", 42, time.Hour)
	require.NoError(t, err)

	claims, err := ParseAccessToken("test-secret", token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
}

func TestParseAccessTokenRejectsBadInput(t *testing.T) {
	token, err := GenerateAccessToken("test-secret", 42, time.Hour)
	require.NoError(t, err)

	_, err = ParseAccessToken("other-secret", token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseAccessToken("test-secret", "not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	token, err := GenerateAccessToken("test-secret", 42, -time.Minute)
	require.NoError(t, err)

	_, err = ParseAccessToken("test-secret", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
