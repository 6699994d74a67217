package auth

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
)

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	key, err := LoadOrGenerateKey(t.TempDir())
	require.NoError(t, err)

	svc, err := NewTokenService(hex.EncodeToString(key), 15*time.Minute, 30*24*time.Hour)
	require.NoError(t, err)
	return svc
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := newTestTokenService(t)

	user := &domain.User{Email: "ada@example.com", Role: domain.RoleAdmin}
	user.ID = "usr-1"

	token, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "usr-1", claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.True(t, claims.IsAdmin)
}

func TestVerifyAccessToken_WrongKey(t *testing.T) {
	svc := newTestTokenService(t)
	other := newTestTokenService(t)

	user := &domain.User{Email: "ada@example.com"}
	user.ID = "usr-1"

	token, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)

	_, err = other.VerifyAccessToken(token)
	assert.Error(t, err)
}

func TestVerifyAccessToken_Expired(t *testing.T) {
	key, err := LoadOrGenerateKey(t.TempDir())
	require.NoError(t, err)

	svc, err := NewTokenService(hex.EncodeToString(key), -time.Minute, time.Hour)
	require.NoError(t, err)

	user := &domain.User{Email: "ada@example.com"}
	user.ID = "usr-1"

	token, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(token)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$")

	ok, err := VerifyPassword(hash, "correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword(hash, "wrong password")
	require.NoError(t, err)
	assert.False(t, ok)

	// Garbage hashes verify false, not error
	ok, err = VerifyPassword("not-a-hash", "anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPassword_RejectsEmpty(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)
}

func TestRefreshTokenHashing(t *testing.T) {
	svc := newTestTokenService(t)

	token, err := svc.GenerateRefreshToken()
	require.NoError(t, err)

	h1 := HashRefreshToken(token)
	h2 := HashRefreshToken(token)
	assert.Equal(t, h1, h2, "hashing is deterministic")
	assert.NotEqual(t, token, h1)
}

func TestLoadOrGenerateKey_Persists(t *testing.T) {
	dir := t.TempDir()

	key1, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	require.Len(t, key1, 32)

	key2, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Equal(t, key1, key2, "same key loaded on subsequent calls")
}
