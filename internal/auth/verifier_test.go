package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifierAcceptsValidToken(t *testing.T) {
	token, err := SignJWT("secret", "user-1", time.Now().Add(time.Hour).Unix())
	require.NoError(t, err)

	userID, err := NewJWTVerifier("secret").Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestJWTVerifierRejects(t *testing.T) {
	expired, err := SignJWT("secret", "user-1", time.Now().Add(-time.Hour).Unix())
	require.NoError(t, err)
	wrongKey, err := SignJWT("other", "user-1", time.Now().Add(time.Hour).Unix())
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{ExpiresAt: time.Now().Add(time.Hour).Unix()}).SignedString([]byte("secret"))
	require.NoError(t, err)

	verifier := NewJWTVerifier("secret")
	for name, token := range map[string]string{
		"expired":    expired,
		"wrong key":  wrongKey,
		"no subject": noSubject,
		"garbage":    "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := verifier.Verify(context.Background(), token)
			assert.True(t, errors.Is(err, ErrInvalidToken))
		})
	}

	_, err = verifier.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingToken)
}
