package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"crewdock.io/internal/credential"
	"crewdock.io/internal/crew"
	"crewdock.io/internal/ids"
	"crewdock.io/internal/scope"
)

const (
	defaultAccessTTL  = 4 * time.Hour
	defaultRefreshTTL = 14 * 24 * time.Hour
	defaultResetTTL   = 15 * time.Minute

	defaultIssuer = "crewdock"
)

// Claims are the principal claims carried by an access token.
type Claims struct {
	Role      string `json:"role"`
	CompanyID string `json:"company_id,omitempty"`
	ShipID    string `json:"ship_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a successful login.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Manager issues and verifies access tokens, persists refresh sessions and
// runs the password-reset flow.
type Manager struct {
	accounts AccountSource
	sessions Store
	creds    *credential.Engine
	secret   []byte
	issuer   string

	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration

	now func() time.Time
}

// Option configures Manager behavior.
type Option func(*Manager)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(m *Manager) {
		if s := strings.TrimSpace(issuer); s != "" {
			m.issuer = s
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh session lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.refreshTTL = ttl
		}
	}
}

// WithResetTTL configures password-reset token lifetime.
func WithResetTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.resetTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager constructs a Manager. The signing secret is required and
// loaded once at process start.
func NewManager(accounts AccountSource, sessions Store, creds *credential.Engine, secret []byte, opts ...Option) (*Manager, error) {
	if accounts == nil || sessions == nil || creds == nil {
		return nil, errors.New("session: account source, session store and credential engine are required")
	}
	if len(secret) == 0 {
		return nil, errors.New("session: signing secret is required")
	}
	m := &Manager{
		accounts:   accounts,
		sessions:   sessions,
		creds:      creds,
		secret:     secret,
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		resetTTL:   defaultResetTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// RevokeAllForUser satisfies crew.Revoker.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) error {
	return m.sessions.RevokeAllForUser(ctx, userID)
}

// Login authenticates a username/password pair and issues a token pair.
// Unknown username and wrong password produce the identical error. Crew
// accounts must be onboard; administrative roles log in regardless of
// status, since seeded admin accounts carry no meaningful one.
func (m *Manager) Login(ctx context.Context, username, password string) (TokenPair, *crew.Account, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" || password == "" {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	account, err := m.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, crew.ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidCredentials
		}
		return TokenPair{}, nil, err
	}
	if err := credential.VerifyPassword(account.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	if !account.Role.Administrative() && !crew.IsOnboard(account.Status) {
		return TokenPair{}, nil, ErrNotOnboard
	}

	now := m.now().UTC()
	access, accessExp, err := m.signAccessToken(account.Principal(), now)
	if err != nil {
		return TokenPair{}, nil, err
	}
	refresh, record, err := m.newRefreshSession(account.ID, now)
	if err != nil {
		return TokenPair{}, nil, err
	}
	if err := m.sessions.CreateSession(ctx, record); err != nil {
		return TokenPair{}, nil, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: record.ExpiresAt,
	}, account, nil
}

// Refresh exchanges a valid refresh token for a fresh access token. The
// principal is re-fetched so role or tenancy changes take effect, and the
// onboard gate is re-applied for crew. The refresh token itself is not
// rotated.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	record, err := m.lookupSession(ctx, refreshToken)
	if err != nil {
		return "", time.Time{}, err
	}
	account, err := m.accounts.Get(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, crew.ErrNotFound) {
			return "", time.Time{}, ErrInvalidToken
		}
		return "", time.Time{}, err
	}
	if !account.Role.Administrative() && !crew.IsOnboard(account.Status) {
		return "", time.Time{}, ErrNotOnboard
	}
	return m.signAccessTokenNow(account.Principal())
}

// Logout revokes the named refresh session only; other concurrent
// sessions for the same account stay valid.
func (m *Manager) Logout(ctx context.Context, refreshToken string) error {
	record, err := m.lookupSession(ctx, refreshToken)
	if err != nil {
		return err
	}
	return m.sessions.RevokeSession(ctx, record.ID)
}

// Authenticate verifies an access token statelessly and returns the
// principal its claims describe.
func (m *Manager) Authenticate(token string) (scope.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return scope.Principal{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithTimeFunc(func() time.Time { return m.now().UTC() }))
	if err != nil {
		return scope.Principal{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return scope.Principal{}, ErrInvalidToken
	}
	role, err := scope.ParseRole(claims.Role)
	if err != nil {
		return scope.Principal{}, ErrInvalidToken
	}
	return scope.Principal{
		UserID:    claims.Subject,
		Role:      role,
		CompanyID: claims.CompanyID,
		ShipID:    claims.ShipID,
	}, nil
}

// IssueResetToken creates a password-reset token for the named username.
// The single stored slot means a new token implicitly invalidates any
// previous unconsumed one.
func (m *Manager) IssueResetToken(ctx context.Context, username string) (string, time.Time, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" {
		return "", time.Time{}, fmt.Errorf("%w: username is required", crew.ErrInvalidInput)
	}
	account, err := m.accounts.GetByUsername(ctx, username)
	if err != nil {
		return "", time.Time{}, err
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	expiresAt := m.now().UTC().Add(m.resetTTL)
	if err := m.accounts.SetResetToken(ctx, account.ID, hashToken(token), expiresAt); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ResetPassword consumes a reset token: single use, time-boxed, and all
// refresh sessions for the account are revoked as part of the reset.
func (m *Manager) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", crew.ErrInvalidInput)
	}
	account, err := m.accounts.GetByResetTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, crew.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if m.now().UTC().After(account.ResetExpiresAt) {
		_ = m.accounts.ClearResetToken(ctx, account.ID)
		return ErrInvalidToken
	}
	bundle, err := m.creds.Seal(newPassword)
	if err != nil {
		return err
	}
	if err := m.accounts.SetPassword(ctx, account.ID, bundle.Hash, bundle.Recovery); err != nil {
		return err
	}
	if err := m.accounts.ClearResetToken(ctx, account.ID); err != nil {
		return err
	}
	return m.sessions.RevokeAllForUser(ctx, account.ID)
}

func (m *Manager) signAccessTokenNow(p scope.Principal) (string, time.Time, error) {
	return m.signAccessToken(p, m.now().UTC())
}

func (m *Manager) signAccessToken(p scope.Principal, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.accessTTL)
	claims := Claims{
		Role:      p.Role.String(),
		CompanyID: p.CompanyID,
		ShipID:    p.ShipID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// newRefreshSession builds the opaque token handed to the caller and the
// record persisted server-side. Token format is "<id>.<secret>"; only the
// secret's hash is stored.
func (m *Manager) newRefreshSession(userID string, now time.Time) (string, *Session, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)
	record := &Session{
		ID:        ids.New(),
		UserID:    userID,
		TokenHash: hashToken(secret),
		ExpiresAt: now.Add(m.refreshTTL),
		CreatedAt: now,
	}
	return record.ID + "." + secret, record, nil
}

func (m *Manager) lookupSession(ctx context.Context, refreshToken string) (*Session, error) {
	id, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	record, err := m.sessions.FindSession(ctx, id)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if record.RevokedAt != nil || m.now().UTC().After(record.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	if !compareTokenHash(record.TokenHash, secret) {
		// A wrong secret against a live session id is suspicious enough
		// to burn the session.
		_ = m.sessions.RevokeSession(ctx, record.ID)
		return nil, ErrInvalidToken
	}
	return record, nil
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func hashToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func compareTokenHash(expected, secret string) bool {
	actual := hashToken(secret)
	if len(expected) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}
