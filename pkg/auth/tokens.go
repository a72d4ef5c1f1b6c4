package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/shulecore/shulecore/pkg/apperrors"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// AccessClaims is the payload of a short-lived access token. TenantID holds
// the tenant uuid or the reserved platform marker.
type AccessClaims struct {
	TenantID    string   `json:"tenant_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	TokenType   string   `json:"type"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token, bound to one session.
type RefreshClaims struct {
	SessionID string `json:"sid"`
	TenantID  string `json:"tenant_id"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// Codec signs and verifies both token kinds with a shared HS256 secret.
type Codec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewCodec creates a token codec.
func NewCodec(secret string, issuer string, accessTTL, refreshTTL time.Duration) *Codec {
	return &Codec{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// IssueAccess signs an access token embedding the resolved authorization
// state.
func (c *Codec) IssueAccess(userID uuid.UUID, scopeMarker string, roles, permissions []string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		TenantID:    scopeMarker,
		Roles:       roles,
		Permissions: permissions,
		TokenType:   tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return token, nil
}

// IssueRefresh signs a refresh token bound to a session and returns it with
// its expiry.
func (c *Codec) IssueRefresh(sessionID, userID uuid.UUID, scopeMarker string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(c.refreshTTL)
	claims := RefreshClaims{
		SessionID: sessionID.String(),
		TenantID:  scopeMarker,
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return token, expiresAt, nil
}

// DecodeAccess verifies an access token's signature, expiry and type.
func (c *Codec) DecodeAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.decode(token, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, apperrors.E(apperrors.KindUnauthorized, "invalid token type")
	}
	return claims, nil
}

// DecodeRefresh verifies a refresh token's signature, expiry and type.
func (c *Codec) DecodeRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.decode(token, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeRefresh {
		return nil, apperrors.E(apperrors.KindUnauthorized, "invalid token type")
	}
	return claims, nil
}

func (c *Codec) decode(token string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindUnauthorized, "invalid or expired token", err)
	}
	if !parsed.Valid {
		return apperrors.E(apperrors.KindUnauthorized, "invalid or expired token")
	}
	return nil
}
