package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/procurement/internal/application/port"
	"github.com/garyjia/procurement/internal/domain/entity"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification
var ErrInvalidToken = errors.New("invalid token")

// claims is the JWT body
type claims struct {
	Role    string `json:"role"`
	IsAdmin bool   `json:"adm,omitempty"`
	Type    string `json:"typ"`
	jwt.RegisteredClaims
}

// JWTIssuer implements port.TokenIssuer with HS256 tokens
type JWTIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

// NewJWTIssuer creates a token issuer
func NewJWTIssuer(secret string, accessTTL, refreshTTL time.Duration) *JWTIssuer {
	return &JWTIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     "procurement",
		now:        time.Now,
	}
}

// Issue signs an access and a refresh token for user
func (i *JWTIssuer) Issue(user *entity.User) (*port.TokenPair, error) {
	now := i.now()
	access, accessExp, err := i.sign(user, port.TokenTypeAccess, now, i.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := i.sign(user, port.TokenTypeRefresh, now, i.refreshTTL)
	if err != nil {
		return nil, err
	}

	return &port.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (i *JWTIssuer) sign(user *entity.User, tokenType string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	c := claims{
		Role:    string(user.Role),
		IsAdmin: user.Actor().IsAdmin,
		Type:    tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, exp, nil
}

// Verify parses token and checks its signature, expiry and type
func (i *JWTIssuer) Verify(token, tokenType string) (*port.TokenClaims, error) {
	c := &claims{}
	parsed, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Type != tokenType {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, tokenType, c.Type)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &port.TokenClaims{
		UserID:    c.Subject,
		Role:      entity.Role(c.Role),
		IsAdmin:   c.IsAdmin,
		TokenType: c.Type,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
