package crew

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crewdock.io/internal/authz"
	"crewdock.io/internal/credential"
	"crewdock.io/internal/ids"
	"crewdock.io/internal/scope"
)

const (
	skipAlreadyIssued = "credentials already issued"
	skipExhausted     = "username generation exhausted"
)

// Revoker invalidates refresh sessions when an account's password changes
// out from under it.
type Revoker interface {
	RevokeAllForUser(ctx context.Context, userID string) error
}

// Service owns account CRUD and the onboard/offboard lifecycle machine.
type Service struct {
	store    Store
	creds    *credential.Engine
	sessions Revoker
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithSessionRevoker wires refresh-session invalidation into password
// mutations.
func WithSessionRevoker(r Revoker) ServiceOption {
	return func(s *Service) { s.sessions = r }
}

// NewService constructs the crew service.
func NewService(store Store, creds *credential.Engine, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("crew: store is required")
	}
	if creds == nil {
		return nil, errors.New("crew: credential engine is required")
	}
	s := &Service{store: store, creds: creds, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewAccount is the input for an administrative account creation.
type NewAccount struct {
	SeafarerID string
	FullName   string
	Rank       string
	CompanyID  string
	ShipID     string
	Status     string
	Role       scope.Role
}

// IssuedCredentials is the plaintext pair surfaced exactly once, in the
// direct response of the call that generated it.
type IssuedCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TransitionResult is one row's outcome of a status transition.
type TransitionResult struct {
	AccountID          string             `json:"account_id"`
	Credentials        *IssuedCredentials `json:"credentials,omitempty"`
	CredentialsRemoved bool               `json:"credentials_removed,omitempty"`
	Skipped            string             `json:"skipped,omitempty"`
}

// Create inserts a new account. When the requested status is Onboard the
// credential bundle is generated in the same call and the plaintext pair
// returned alongside the row.
func (s *Service) Create(ctx context.Context, p scope.Principal, in NewAccount) (*Account, *IssuedCredentials, error) {
	in.SeafarerID = strings.TrimSpace(in.SeafarerID)
	in.FullName = strings.TrimSpace(in.FullName)
	if in.SeafarerID == "" {
		return nil, nil, fmt.Errorf("%w: seafarer_id is required", ErrInvalidInput)
	}
	if in.FullName == "" {
		return nil, nil, fmt.Errorf("%w: full_name is required", ErrInvalidInput)
	}
	if in.CompanyID == "" {
		return nil, nil, fmt.Errorf("%w: company_id is required", ErrInvalidInput)
	}
	target := scope.Tenancy{CompanyID: in.CompanyID, ShipID: in.ShipID}
	if err := authz.CheckWrite(p, scope.EntityAccount, authz.ActionCreate, target); err != nil {
		return nil, nil, ErrForbidden
	}
	if err := authz.CheckRoleAssignment(p, in.Role); err != nil {
		return nil, nil, ErrForbidden
	}

	// Best-effort pre-check; the unique constraint is the final barrier.
	if existing, err := s.store.GetBySeafarerID(ctx, in.SeafarerID); err == nil && existing != nil {
		return nil, nil, fmt.Errorf("%w: seafarer_id already registered", ErrConflict)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, nil, err
	}

	account := &Account{
		ID:         ids.New(),
		SeafarerID: in.SeafarerID,
		FullName:   in.FullName,
		Rank:       strings.TrimSpace(in.Rank),
		CompanyID:  in.CompanyID,
		ShipID:     in.ShipID,
		Status:     strings.TrimSpace(in.Status),
		Role:       in.Role,
		RoleName:   in.Role.String(),
	}

	var issued *IssuedCredentials
	if IsOnboard(account.Status) {
		creds, err := s.issueCredentials(ctx, account.SeafarerID)
		if err != nil {
			return nil, nil, err
		}
		account.Username = creds.username
		account.PasswordHash = creds.bundle.Hash
		account.PasswordEnc = creds.bundle.Recovery
		issued = &IssuedCredentials{Username: creds.username, Password: creds.password}
	}

	if err := s.store.Create(ctx, account); err != nil {
		return nil, nil, err
	}
	return account, issued, nil
}

// SignupInput is a self-service registration. The caller picks their own
// username and password; the account starts as crew.
type SignupInput struct {
	SeafarerID string
	FullName   string
	Rank       string
	CompanyID  string
	ShipID     string
	Username   string
	Password   string
}

// Signup registers a crew account with caller-chosen credentials. The
// bundle pairing invariant holds here too: hash and recovery token are
// derived from the same plaintext in the same call.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*Account, error) {
	in.SeafarerID = strings.TrimSpace(in.SeafarerID)
	in.FullName = strings.TrimSpace(in.FullName)
	in.Username = strings.TrimSpace(strings.ToLower(in.Username))
	if in.SeafarerID == "" || in.FullName == "" || in.CompanyID == "" {
		return nil, fmt.Errorf("%w: seafarer_id, full_name and company_id are required", ErrInvalidInput)
	}
	if in.Username == "" || len(in.Password) < 8 {
		return nil, fmt.Errorf("%w: username and a password of at least 8 characters are required", ErrInvalidInput)
	}
	bundle, err := s.creds.Seal(in.Password)
	if err != nil {
		return nil, err
	}
	account := &Account{
		ID:           ids.New(),
		SeafarerID:   in.SeafarerID,
		FullName:     in.FullName,
		Rank:         strings.TrimSpace(in.Rank),
		CompanyID:    in.CompanyID,
		ShipID:       in.ShipID,
		Status:       "Offboard",
		Role:         scope.RoleCrew,
		RoleName:     scope.RoleCrew.String(),
		Username:     in.Username,
		PasswordHash: bundle.Hash,
		PasswordEnc:  bundle.Recovery,
	}
	if err := s.store.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Get returns an account. Absent rows are NotFound; rows outside the
// caller's scope are Forbidden, since on targeted access existence is
// checked first.
func (s *Service) Get(ctx context.Context, p scope.Principal, id string) (*Account, error) {
	account, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.Resolve(p, scope.EntityAccount).Matches(account.Tenancy()) {
		return nil, ErrForbidden
	}
	return account, nil
}

// List returns the accounts visible to the caller.
func (s *Service) List(ctx context.Context, p scope.Principal) ([]*Account, error) {
	return s.store.List(ctx, scope.Resolve(p, scope.EntityAccount))
}

// Update applies a partial update. Non-lifecycle fields are written in
// place; a status change routes through the lifecycle machine inside one
// locked transaction, so a transition to Onboard generates credentials at
// most once and a transition away preserves them unless removeCredentials
// is set.
func (s *Service) Update(ctx context.Context, p scope.Principal, id string, upd AccountUpdate, removeCredentials bool) (*Account, *IssuedCredentials, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !scope.Resolve(p, scope.EntityAccount).Matches(existing.Tenancy()) {
		return nil, nil, ErrForbidden
	}
	// The boundary gate evaluates the placement the write requests, not
	// the row's current one.
	target := existing.Tenancy()
	if upd.ShipID != nil {
		target.ShipID = *upd.ShipID
	}
	if err := authz.CheckWrite(p, scope.EntityAccount, authz.ActionUpdate, target); err != nil {
		return nil, nil, ErrForbidden
	}
	if upd.Role != nil {
		if err := authz.CheckRoleAssignment(p, *upd.Role); err != nil {
			return nil, nil, ErrForbidden
		}
	}

	if upd.Status == nil {
		updated, err := s.store.Update(ctx, id, upd)
		if err != nil {
			return nil, nil, err
		}
		return updated, nil, nil
	}

	var issued *IssuedCredentials
	err = s.store.WithAccountsLocked(ctx, []string{id}, func(accounts []*Account) ([]AccountWrite, error) {
		if len(accounts) != 1 {
			return nil, ErrNotFound
		}
		row := accounts[0]
		write := AccountWrite{ID: row.ID, Update: upd}
		credWrite, result, err := transition(ctx, s.creds, s.store, row, *upd.Status, removeCredentials)
		if err != nil {
			return nil, err
		}
		write.Credentials = credWrite
		issued = result
		return []AccountWrite{write}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	updated, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return updated, issued, nil
}

// Delete removes an account permanently. Its seafarer id stays reserved in
// the registry and is never reissued.
func (s *Service) Delete(ctx context.Context, p scope.Principal, id string) error {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !scope.Resolve(p, scope.EntityAccount).Matches(existing.Tenancy()) {
		return ErrForbidden
	}
	if err := authz.CheckWrite(p, scope.EntityAccount, authz.ActionDelete, existing.Tenancy()); err != nil {
		return ErrForbidden
	}
	return s.store.Delete(ctx, id)
}

// ChangeStatus applies one target status to a set of accounts. The scope
// check over the full id set is all-or-nothing and happens before any
// write; row outcomes (credentials generated, skips) are per-row. Rows are
// locked FOR UPDATE so concurrent batches over overlapping ids serialize.
func (s *Service) ChangeStatus(ctx context.Context, p scope.Principal, accountIDs []string, status string, removeCredentials bool) ([]TransitionResult, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		return nil, fmt.Errorf("%w: status is required", ErrInvalidInput)
	}
	idSet := dedupe(accountIDs)
	if len(idSet) == 0 {
		return nil, fmt.Errorf("%w: account ids are required", ErrInvalidInput)
	}

	pred := scope.Resolve(p, scope.EntityAccount)
	var results []TransitionResult
	err := s.store.WithAccountsLocked(ctx, idSet, func(accounts []*Account) ([]AccountWrite, error) {
		if len(accounts) != len(idSet) {
			return nil, fmt.Errorf("%w: one or more accounts do not exist", ErrNotFound)
		}
		// Authorization pre-check over the whole batch: any violation
		// aborts before a single write.
		for _, row := range accounts {
			if !pred.Matches(row.Tenancy()) {
				return nil, ErrForbidden
			}
			if err := authz.CheckWrite(p, scope.EntityAccount, authz.ActionUpdate, row.Tenancy()); err != nil {
				return nil, ErrForbidden
			}
		}

		writes := make([]AccountWrite, 0, len(accounts))
		for _, row := range accounts {
			res := TransitionResult{AccountID: row.ID}
			credWrite, issued, err := transition(ctx, s.creds, s.store, row, status, removeCredentials)
			if errors.Is(err, credential.ErrUsernameExhausted) {
				// Fail this row, keep the batch: the row keeps its
				// current status rather than onboarding nameless.
				res.Skipped = skipExhausted
				results = append(results, res)
				continue
			}
			if err != nil {
				return nil, err
			}
			res.Credentials = issued
			if credWrite != nil && credWrite.Clear {
				res.CredentialsRemoved = true
			}
			if issued == nil && IsOnboard(status) && row.HasCredentials() {
				res.Skipped = skipAlreadyIssued
			}
			results = append(results, res)

			st := status
			writes = append(writes, AccountWrite{
				ID:          row.ID,
				Update:      AccountUpdate{Status: &st},
				Credentials: credWrite,
			})
		}
		return writes, nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// RecoverPassword decrypts the stored recovery token for administrators.
// Unavailability (no bundle, undecryptable token) is not an error.
func (s *Service) RecoverPassword(ctx context.Context, p scope.Principal, id string) (string, bool, error) {
	account, err := s.store.Get(ctx, id)
	if err != nil {
		return "", false, err
	}
	if !scope.Resolve(p, scope.EntityAccount).Matches(account.Tenancy()) {
		return "", false, ErrForbidden
	}
	if !p.Role.Administrative() {
		return "", false, ErrForbidden
	}
	plaintext, ok := s.creds.DecryptForRecovery(account.PasswordEnc)
	return plaintext, ok, nil
}

// SetPassword replaces an account's credential bundle with one derived
// from the supplied plaintext and revokes all refresh sessions for it.
func (s *Service) SetPassword(ctx context.Context, p scope.Principal, id, plaintext string) error {
	if strings.TrimSpace(plaintext) == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	account, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !scope.Resolve(p, scope.EntityAccount).Matches(account.Tenancy()) {
		return ErrForbidden
	}
	if err := authz.CheckWrite(p, scope.EntityAccount, authz.ActionUpdate, account.Tenancy()); err != nil {
		return ErrForbidden
	}
	bundle, err := s.creds.Seal(plaintext)
	if err != nil {
		return err
	}
	if err := s.store.SetPassword(ctx, id, bundle.Hash, bundle.Recovery); err != nil {
		return err
	}
	if s.sessions != nil {
		return s.sessions.RevokeAllForUser(ctx, id)
	}
	return nil
}

type issuedBundle struct {
	username string
	password string
	bundle   credential.Bundle
}

func (s *Service) issueCredentials(ctx context.Context, seed string) (issuedBundle, error) {
	username, err := s.creds.GenerateUsername(ctx, seed, s.store.UsernameExists)
	if err != nil {
		return issuedBundle{}, err
	}
	password, err := s.creds.GeneratePassword(credential.DefaultPasswordLength)
	if err != nil {
		return issuedBundle{}, err
	}
	bundle, err := s.creds.Seal(password)
	if err != nil {
		return issuedBundle{}, err
	}
	return issuedBundle{username: username, password: password, bundle: bundle}, nil
}

// transition computes the credential side effect of moving row to status.
// Generate-once: a row that already has credentials keeps them untouched
// on a redundant Onboard. Moving away from Onboard preserves the bundle
// unless removal was requested explicitly.
func transition(ctx context.Context, engine *credential.Engine, store Store, row *Account, status string, removeCredentials bool) (*CredentialWrite, *IssuedCredentials, error) {
	if IsOnboard(status) {
		if row.HasCredentials() {
			return nil, nil, nil
		}
		username, err := engine.GenerateUsername(ctx, row.SeafarerID, store.UsernameExists)
		if err != nil {
			return nil, nil, err
		}
		password, err := engine.GeneratePassword(credential.DefaultPasswordLength)
		if err != nil {
			return nil, nil, err
		}
		bundle, err := engine.Seal(password)
		if err != nil {
			return nil, nil, err
		}
		write := &CredentialWrite{
			Username:     username,
			PasswordHash: bundle.Hash,
			PasswordEnc:  bundle.Recovery,
		}
		return write, &IssuedCredentials{Username: username, Password: password}, nil
	}
	if removeCredentials && row.HasCredentials() {
		return &CredentialWrite{Clear: true}, nil, nil
	}
	return nil, nil, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
