package crew

import (
	"context"
	"time"

	"crewdock.io/internal/scope"
)

// Store describes the persistence operations the crew domain requires.
// Uniqueness of seafarer_id and username is enforced by constraints at the
// storage layer; violations surface as ErrConflict.
type Store interface {
	Create(ctx context.Context, a *Account) error
	Get(ctx context.Context, id string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	GetBySeafarerID(ctx context.Context, seafarerID string) (*Account, error)
	GetByResetTokenHash(ctx context.Context, hash string) (*Account, error)
	List(ctx context.Context, p scope.Predicate) ([]*Account, error)
	Update(ctx context.Context, id string, upd AccountUpdate) (*Account, error)
	Delete(ctx context.Context, id string) error
	UsernameExists(ctx context.Context, username string) (bool, error)

	// WithAccountsLocked runs fn inside a single transaction with the
	// identified rows read FOR UPDATE in stable id order, then applies the
	// returned writes before committing. Any error rolls the whole
	// transaction back.
	WithAccountsLocked(ctx context.Context, ids []string, fn func(accounts []*Account) ([]AccountWrite, error)) error

	// Credential and reset-token slots.
	SetPassword(ctx context.Context, id, passwordHash, passwordEnc string) error
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id string) error
}
