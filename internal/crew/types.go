package crew

import (
	"errors"
	"strings"
	"time"

	"crewdock.io/internal/scope"
)

var (
	ErrInvalidInput = errors.New("crew: invalid input")
	ErrNotFound     = errors.New("crew: not found")
	ErrConflict     = errors.New("crew: duplicate")
	ErrForbidden    = errors.New("crew: forbidden")
)

// StatusOnboard is the only status value with lifecycle meaning. All other
// values are free text carried through verbatim.
const StatusOnboard = "onboard"

// NormalizeStatus trims and lower-cases a status for comparison. Storage
// keeps the caller-provided spelling.
func NormalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsOnboard reports whether a status means the seafarer is aboard.
func IsOnboard(status string) bool {
	return NormalizeStatus(status) == StatusOnboard
}

// Account is a row in the crew/users table. The credential bundle fields
// (Username, PasswordHash, PasswordEnc) are present together or absent
// together; empty string means absent.
type Account struct {
	ID         string     `json:"id"`
	SeafarerID string     `json:"seafarer_id"`
	FullName   string     `json:"full_name"`
	Rank       string     `json:"rank,omitempty"`
	CompanyID  string     `json:"company_id"`
	ShipID     string     `json:"ship_id,omitempty"`
	Status     string     `json:"status"`
	Role       scope.Role `json:"-"`
	RoleName   string     `json:"role"`

	Username     string `json:"username,omitempty"`
	PasswordHash string `json:"-"`
	PasswordEnc  string `json:"-"`

	ResetTokenHash string    `json:"-"`
	ResetExpiresAt time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasCredentials reports whether the account carries a credential bundle.
func (a *Account) HasCredentials() bool {
	return a.Username != "" && a.PasswordHash != "" && a.PasswordEnc != ""
}

// Tenancy exposes the filter keys the scope resolver operates on. An
// account owns itself.
func (a *Account) Tenancy() scope.Tenancy {
	return scope.Tenancy{
		CompanyID: a.CompanyID,
		ShipID:    a.ShipID,
		OwnerID:   a.ID,
	}
}

// Principal builds the identity claims carried by this account's tokens.
func (a *Account) Principal() scope.Principal {
	return scope.Principal{
		UserID:    a.ID,
		Role:      a.Role,
		CompanyID: a.CompanyID,
		ShipID:    a.ShipID,
	}
}

// AccountUpdate carries a partial update: nil fields preserve the stored
// values (COALESCE semantics in the storage layer).
type AccountUpdate struct {
	FullName *string
	Rank     *string
	ShipID   *string
	Status   *string
	Role     *scope.Role
}

// CredentialWrite is the credential portion of a lifecycle write. Set
// replaces the bundle; Clear nulls all three fields together.
type CredentialWrite struct {
	Username     string
	PasswordHash string
	PasswordEnc  string
	Clear        bool
}

// AccountWrite is one row's outcome of a locked lifecycle transition.
type AccountWrite struct {
	ID          string
	Update      AccountUpdate
	Credentials *CredentialWrite
}
