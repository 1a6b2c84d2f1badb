package port

import (
	"context"
	"time"

	"github.com/garyjia/procurement/internal/domain/entity"
)

// AuthorityResolver looks up how much a user may approve
type AuthorityResolver interface {
	ApprovalLimit(ctx context.Context, userID string) (entity.ApprovalLimit, error)
}

// Token types carried in the typ claim
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenPair is returned on login and refresh
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenClaims is the verified identity extracted from a token
type TokenClaims struct {
	UserID    string
	Role      entity.Role
	IsAdmin   bool
	TokenType string
	ExpiresAt time.Time
}

// TokenIssuer signs and verifies bearer tokens
type TokenIssuer interface {
	Issue(user *entity.User) (*TokenPair, error)
	// Verify parses token and checks that its typ claim equals tokenType
	Verify(token, tokenType string) (*TokenClaims, error)
}

// PasswordHasher hashes and checks user passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}
