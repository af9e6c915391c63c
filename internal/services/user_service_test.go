package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := GenerateAccessToken(42, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, float64(42), claims["user_id"])
	assert.Equal(t, "alice", claims["username"])
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	_, err := ValidateToken("not-a-jwt")
	assert.Error(t, err)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token, err := GenerateAccessToken(42, "alice")
	require.NoError(t, err)

	t.Setenv("JWT_SECRET", "other-secret")
	_, err = ValidateToken(token)
	assert.Error(t, err)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := GenerateRefreshToken(7, "bob")
	require.NoError(t, err)

	claims, err := ValidateRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, float64(7), claims["user_id"])
	assert.Equal(t, "refresh", claims["type"])
}

func TestRefreshValidationRejectsAccessToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	access, err := GenerateAccessToken(7, "bob")
	require.NoError(t, err)

	_, err = ValidateRefreshToken(access)
	assert.Error(t, err, "an access token must not pass refresh validation")
}

func TestRefreshUsesDedicatedSecretWhenSet(t *testing.T) {
	t.Setenv("JWT_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")

	refresh, err := GenerateRefreshToken(7, "bob")
	require.NoError(t, err)

	// Valid against the refresh secret only.
	_, err = ValidateRefreshToken(refresh)
	require.NoError(t, err)
	_, err = ValidateToken(refresh)
	assert.Error(t, err)
}
