package session

import (
	"context"
	"errors"
	"time"

	"crewdock.io/internal/crew"
)

var (
	// ErrInvalidCredentials is returned identically for an unknown
	// username and a wrong password, so login never leaks existence.
	ErrInvalidCredentials = errors.New("session: invalid credentials")

	// ErrInvalidToken covers malformed, expired, revoked and tampered
	// refresh or reset tokens.
	ErrInvalidToken = errors.New("session: invalid token")

	// ErrNotOnboard means a crew account authenticated correctly but is
	// not currently onboard. Administrative roles are exempt.
	ErrNotOnboard = errors.New("session: account is not onboard")
)

// Session is a persisted refresh token record. Only the hash of the token
// secret is stored.
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// Store persists refresh sessions.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	FindSession(ctx context.Context, id string) (*Session, error)
	RevokeSession(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

// AccountSource is the slice of the crew store the session manager needs.
type AccountSource interface {
	Get(ctx context.Context, id string) (*crew.Account, error)
	GetByUsername(ctx context.Context, username string) (*crew.Account, error)
	GetByResetTokenHash(ctx context.Context, hash string) (*crew.Account, error)
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id string) error
	SetPassword(ctx context.Context, id, passwordHash, passwordEnc string) error
}
