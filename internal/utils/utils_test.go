package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("secret", 42, "STAFF", "ann", 15)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), tok.Exp, 5*time.Second)

	claims, err := ParseAccessToken("secret", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, "STAFF", claims.Role)
	assert.Equal(t, "ann", claims.Username)
	assert.NotEmpty(t, claims.ID)

	other, err := NewAccessToken("secret", 42, "STAFF", "ann", 15)
	require.NoError(t, err)
	assert.NotEqual(t, tok.Token, other.Token)
}

func TestParseAccessTokenRejects(t *testing.T) {
	tok, err := NewAccessToken("secret", 1, "USER", "ann", 15)
	require.NoError(t, err)
	_, err = ParseAccessToken("other-secret", tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewAccessToken("secret", 1, "USER", "ann", -1)
	require.NoError(t, err)
	_, err = ParseAccessToken("secret", expired.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(time.Hour).Unix()})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseAccessToken("secret", raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1"})
	raw, err = noExp.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = ParseAccessToken("secret", raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseAccessToken("secret", "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshToken(t *testing.T) {
	rt, err := NewRefreshToken(7)
	require.NoError(t, err)
	assert.Len(t, rt.Raw, 96)
	assert.True(t, LooksLikeRefreshToken(rt.Raw))
	assert.False(t, LooksLikeRefreshToken("abc"))
	assert.False(t, LooksLikeRefreshToken(strings.Repeat("z", 96)))

	h := HashRefreshRaw(rt.Raw)
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashRefreshRaw(rt.Raw))
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("secret123", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "secret123"))
	assert.False(t, VerifyPassword(hash, "secret124"))
	BurnPasswordCheck("anything")
}
