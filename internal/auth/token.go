// ABOUTME: JWT realm token issuing and verification for the dispatch surface.
// ABOUTME: Uses HS256 signing with a configurable secret.

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Identity is the verified caller identity carried by a realm token.
type Identity struct {
	Realm    string
	TenantID string
	UserID   string
}

// TokenVerifier defines the interface for realm token verification.
type TokenVerifier interface {
	Verify(tokenString string) (Identity, error)
}

// JWTManager issues and verifies HS256-signed realm tokens.
type JWTManager struct {
	secret []byte
}

// NewJWTManager creates a manager with the given signing secret.
func NewJWTManager(secret []byte) *JWTManager {
	return &JWTManager{secret: secret}
}

// Issue creates a signed token for the given identity, valid for ttl.
// The realm claim is required; tenant and user are optional.
func (m *JWTManager) Issue(id Identity, ttl time.Duration) (string, error) {
	if id.Realm == "" {
		return "", fmt.Errorf("%w: realm", ErrMissingClaim)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"realm": id.Realm,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if id.TenantID != "" {
		claims["tenant_id"] = id.TenantID
	}
	if id.UserID != "" {
		claims["sub"] = id.UserID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify validates the token and extracts the caller identity.
func (m *JWTManager) Verify(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	realm, ok := claims["realm"].(string)
	if !ok || realm == "" {
		return Identity{}, fmt.Errorf("%w: realm", ErrMissingClaim)
	}

	id := Identity{Realm: realm}
	if tenant, ok := claims["tenant_id"].(string); ok {
		id.TenantID = tenant
	}
	if sub, ok := claims["sub"].(string); ok {
		id.UserID = sub
	}
	return id, nil
}
