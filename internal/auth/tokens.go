package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json/v2"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
	"github.com/cardlinkapp/cardlink-server/internal/id"
)

const (
	tokenIssuer   = "cardlink-server"
	tokenAudience = "cardlink-client"

	// Refresh tokens are opaque: 256 bits of entropy, stored hashed.
	refreshTokenSize = 32
)

// TokenService issues and verifies session tokens. Access tokens are
// encrypted PASETO v4.local tokens carrying user claims; refresh tokens are
// opaque random strings validated against a stored hash.
type TokenService struct {
	key        paseto.V4SymmetricKey
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService builds a token service from a hex-encoded 256-bit key.
func NewTokenService(keyHex string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	keyBytes, err := decodeKey(keyHex)
	if err != nil {
		return nil, err
	}

	key, err := paseto.V4SymmetricKeyFromBytes(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("create PASETO key: %w", err)
	}

	return &TokenService{
		key:        key,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// GenerateAccessToken issues an encrypted access token for the user.
func (s *TokenService) GenerateAccessToken(user *domain.User) (string, error) {
	tokenID, err := id.Generate("token")
	if err != nil {
		return "", fmt.Errorf("generate token ID: %w", err)
	}

	now := time.Now()
	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetAudience(tokenAudience)
	token.SetSubject(user.ID)
	token.SetJti(tokenID)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(now.Add(s.accessTTL))

	// Set only errors on unserializable values, which these are not
	_ = token.Set("user_id", user.ID)
	_ = token.Set("email", user.Email)
	_ = token.Set("is_admin", user.IsAdmin())

	return token.V4Encrypt(s.key, nil), nil
}

// VerifyAccessToken decrypts and validates an access token, returning its
// claims.
func (s *TokenService) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	parser := paseto.NewParser()
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.NotExpired())
	parser.AddRule(paseto.ValidAt(time.Now()))

	token, err := parser.ParseV4Local(s.key, tokenString, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	var claims AccessClaims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	return &claims, nil
}

// GenerateRefreshToken returns a new opaque refresh token, base64url
// encoded.
func (s *TokenService) GenerateRefreshToken() (string, error) {
	b := make([]byte, refreshTokenSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// HashRefreshToken derives the lookup form of a refresh token for storage.
func HashRefreshToken(token string) string {
	decoded, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return hex.EncodeToString([]byte(token))
	}
	return hex.EncodeToString(decoded)
}

// AccessTokenDuration returns the configured access token lifetime.
func (s *TokenService) AccessTokenDuration() time.Duration {
	return s.accessTTL
}

// RefreshTokenDuration returns the configured refresh token lifetime.
func (s *TokenService) RefreshTokenDuration() time.Duration {
	return s.refreshTTL
}
