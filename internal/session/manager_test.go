package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"crewdock.io/internal/credential"
	"crewdock.io/internal/crew"
	"crewdock.io/internal/scope"
)

type memAccounts struct {
	byID map[string]*crew.Account
}

func newMemAccounts(accounts ...*crew.Account) *memAccounts {
	m := &memAccounts{byID: make(map[string]*crew.Account)}
	for _, a := range accounts {
		m.byID[a.ID] = a
	}
	return m
}

func (m *memAccounts) Get(_ context.Context, id string) (*crew.Account, error) {
	if a, ok := m.byID[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, crew.ErrNotFound
}

func (m *memAccounts) GetByUsername(_ context.Context, username string) (*crew.Account, error) {
	for _, a := range m.byID {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, crew.ErrNotFound
}

func (m *memAccounts) GetByResetTokenHash(_ context.Context, hash string) (*crew.Account, error) {
	for _, a := range m.byID {
		if a.ResetTokenHash != "" && a.ResetTokenHash == hash {
			cp := *a
			return &cp, nil
		}
	}
	return nil, crew.ErrNotFound
}

func (m *memAccounts) SetResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	a, ok := m.byID[id]
	if !ok {
		return crew.ErrNotFound
	}
	a.ResetTokenHash, a.ResetExpiresAt = tokenHash, expiresAt
	return nil
}

func (m *memAccounts) ClearResetToken(_ context.Context, id string) error {
	a, ok := m.byID[id]
	if !ok {
		return crew.ErrNotFound
	}
	a.ResetTokenHash, a.ResetExpiresAt = "", time.Time{}
	return nil
}

func (m *memAccounts) SetPassword(_ context.Context, id, hash, enc string) error {
	a, ok := m.byID[id]
	if !ok {
		return crew.ErrNotFound
	}
	a.PasswordHash, a.PasswordEnc = hash, enc
	return nil
}

type memSessions struct {
	byID map[string]*Session
}

func newMemSessions() *memSessions {
	return &memSessions{byID: make(map[string]*Session)}
}

func (m *memSessions) CreateSession(_ context.Context, s *Session) error {
	cp := *s
	m.byID[s.ID] = &cp
	return nil
}

func (m *memSessions) FindSession(_ context.Context, id string) (*Session, error) {
	if s, ok := m.byID[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, ErrInvalidToken
}

func (m *memSessions) RevokeSession(_ context.Context, id string) error {
	s, ok := m.byID[id]
	if !ok {
		return ErrInvalidToken
	}
	if s.RevokedAt == nil {
		now := time.Now().UTC()
		s.RevokedAt = &now
	}
	return nil
}

func (m *memSessions) RevokeAllForUser(_ context.Context, userID string) error {
	now := time.Now().UTC()
	for _, s := range m.byID {
		if s.UserID == userID && s.RevokedAt == nil {
			at := now
			s.RevokedAt = &at
		}
	}
	return nil
}

func testEngine(t *testing.T) *credential.Engine {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(0x40 + i)
	}
	engine, err := credential.NewEngine(key)
	if err != nil {
		t.Fatal(err)
	}
	return engine
}

func testAccount(t *testing.T, engine *credential.Engine, id, username, password, status string, role scope.Role) *crew.Account {
	t.Helper()
	bundle, err := engine.Seal(password)
	if err != nil {
		t.Fatal(err)
	}
	return &crew.Account{
		ID:           id,
		SeafarerID:   "SF-" + id,
		FullName:     "Account " + id,
		CompanyID:    "c1",
		ShipID:       "s1",
		Status:       status,
		Role:         role,
		RoleName:     role.String(),
		Username:     username,
		PasswordHash: bundle.Hash,
		PasswordEnc:  bundle.Recovery,
	}
}

func newTestManager(t *testing.T, accounts *memAccounts, sessions *memSessions, opts ...Option) *Manager {
	t.Helper()
	mgr, err := NewManager(accounts, sessions, testEngine(t), []byte("test-signing-secret"), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return mgr
}

func TestLoginIdenticalErrorForUnknownAndWrong(t *testing.T) {
	engine := testEngine(t)
	accounts := newMemAccounts(testAccount(t, engine, "a1", "sailor", "correct-pass", "Onboard", scope.RoleCrew))
	mgr := newTestManager(t, accounts, newMemSessions())

	_, _, unknownErr := mgr.Login(context.Background(), "ghost", "whatever")
	_, _, wrongErr := mgr.Login(context.Background(), "sailor", "wrong-pass")
	if !errors.Is(unknownErr, ErrInvalidCredentials) || !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("both failures must be ErrInvalidCredentials, got %v and %v", unknownErr, wrongErr)
	}
}

func TestLoginOnboardGate(t *testing.T) {
	engine := testEngine(t)
	accounts := newMemAccounts(
		testAccount(t, engine, "a1", "sailor", "correct-pass", "Offboard", scope.RoleCrew),
		testAccount(t, engine, "a2", "chief", "admin-pass", "Offboard", scope.RoleAdmin),
	)
	mgr := newTestManager(t, accounts, newMemSessions())

	if _, _, err := mgr.Login(context.Background(), "sailor", "correct-pass"); !errors.Is(err, ErrNotOnboard) {
		t.Fatalf("offboard crew must be rejected with ErrNotOnboard, got %v", err)
	}
	if _, _, err := mgr.Login(context.Background(), "chief", "admin-pass"); err != nil {
		t.Fatalf("administrative roles log in regardless of status: %v", err)
	}
}

func TestLoginAuthenticateRoundTrip(t *testing.T) {
	engine := testEngine(t)
	accounts := newMemAccounts(testAccount(t, engine, "a1", "sailor", "correct-pass", "Onboard", scope.RoleCrew))
	mgr := newTestManager(t, accounts, newMemSessions())

	pair, account, err := mgr.Login(context.Background(), "Sailor", "correct-pass")
	if err != nil {
		t.Fatal(err)
	}
	if account == nil || account.ID != "a1" {
		t.Fatalf("login should return the account, got %+v", account)
	}
	p, err := mgr.Authenticate(pair.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if p.UserID != "a1" || p.Role != scope.RoleCrew || p.CompanyID != "c1" || p.ShipID != "s1" {
		t.Fatalf("principal claims mismatch: %+v", p)
	}
}

func TestAuthenticateRejectsGarbageAndExpired(t *testing.T) {
	engine := testEngine(t)
	accounts := newMemAccounts(testAccount(t, engine, "a1", "sailor", "correct-pass", "Onboard", scope.RoleCrew))
	sessions := newMemSessions()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mgr := newTestManager(t, accounts, sessions, WithClock(func() time.Time { return clock }))

	pair, _, err := mgr.Login(context.Background(), "sailor", "correct-pass")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Authenticate("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage must be ErrInvalidToken, got %v", err)
	}
	if _, err := mgr.Authenticate(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty must be ErrInvalidToken, got %v", err)
	}

	clock = clock.Add(5 * time.Hour)
	if _, err := mgr.Authenticate(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired access token must be ErrInvalidToken, got %v", err)
	}
}

func TestRefreshRoundTrip(t *testing.T) {
	engine := testEngine(t)
	accounts := newMemAccounts(testAccount(t, engine, "a1", "sailor", "correct-pass", "Onboard", scope.RoleCrew))
	mgr := newTestManager(t, accounts, newMemSessions())

	pair, _, err := mgr.Login(context.Background(), "sailor", "correct-pass")
	if err != nil {
		t.Fatal(err)
	}
	access, exp, err := mgr.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatal(err)
	}
	if access == "" || exp.IsZero() {
		t.Fatal("refresh must return a new access token and expiry")
	}
	if _, err := mgr.Authenticate(access); err != nil {
		t.Fatalf("refreshed access token must verify: %v", err)
	}
}

func TestRefreshRejectsRevokedAndExpired(t *testing.T) {
	engine := testEngine(t)
	accounts := newMemAccounts(testAccount(t, engine, "a1", "sailor", "correct-pass", "Onboard", scope.RoleCrew))
	sessions := newMemSessions()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mgr := newTestManager(t, accounts, sessions, WithClock(func() time.Time { return clock }))

	pair, _, err := mgr.Login(context.Background(), "sailor", "correct-pass")
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatal(err)
	}
	if _, _, err := mgr.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("revoked session must be ErrInvalidToken, got %v", err)
	}

	pair, _, err = mgr.Login(context.Background(), "sailor", "correct-pass")
	if err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(15 * 24 * time.Hour)
	if _, _, err := mgr.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired session must be ErrInvalidToken, got %v", err)
	}
}

func TestRefreshWrongSecretBurnsSession(t *testing.T) {
	engine := testEngine(t)
	accounts := newMemAccounts(testAccount(t, engine, "a1", "sailor", "correct-pass", "Onboard", scope.RoleCrew))
	sessions := newMemSessions()
	mgr := newTestManager(t, accounts, sessions)

	pair, _, err := mgr.Login(context.Background(), "sailor", "correct-pass")
	if err != nil {
		t.Fatal(err)
	}
	id := strings.SplitN(pair.RefreshToken, ".", 2)[0]

	if _, _, err := mgr.Refresh(context.Background(), id+".forged-secret"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("forged secret must be ErrInvalidToken, got %v", err)
	}
	// The forgery attempt revokes the real session too.
	if _, _, err := mgr.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("burned session must reject the genuine token, got %v", err)
	}
}

func TestRefreshReappliesOnboardGate(t *testing.T) {
	engine := testEngine(t)
	account := testAccount(t, engine, "a1", "sailor", "correct-pass", "Onboard", scope.RoleCrew)
	accounts := newMemAccounts(account)
	mgr := newTestManager(t, accounts, newMemSessions())

	pair, _, err := mgr.Login(context.Background(), "sailor", "correct-pass")
	if err != nil {
		t.Fatal(err)
	}
	accounts.byID["a1"].Status = "Offboard"
	if _, _, err := mgr.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrNotOnboard) {
		t.Fatalf("offboarded crew must not refresh, got %v", err)
	}
}

func TestLogoutRevokesOnlyThatSession(t *testing.T) {
	engine := testEngine(t)
	accounts := newMemAccounts(testAccount(t, engine, "a1", "sailor", "correct-pass", "Onboard", scope.RoleCrew))
	mgr := newTestManager(t, accounts, newMemSessions())

	first, _, err := mgr.Login(context.Background(), "sailor", "correct-pass")
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := mgr.Login(context.Background(), "sailor", "correct-pass")
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.Logout(context.Background(), first.RefreshToken); err != nil {
		t.Fatal(err)
	}
	if _, _, err := mgr.Refresh(context.Background(), first.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatal("logged-out session must be invalid")
	}
	if _, _, err := mgr.Refresh(context.Background(), second.RefreshToken); err != nil {
		t.Fatalf("other session must survive logout: %v", err)
	}
}

func TestResetPasswordFlow(t *testing.T) {
	engine := testEngine(t)
	accounts := newMemAccounts(testAccount(t, engine, "a1", "sailor", "old-password", "Onboard", scope.RoleCrew))
	sessions := newMemSessions()
	mgr := newTestManager(t, accounts, sessions)

	pair, _, err := mgr.Login(context.Background(), "sailor", "old-password")
	if err != nil {
		t.Fatal(err)
	}

	token, expiresAt, err := mgr.IssueResetToken(context.Background(), "Sailor")
	if err != nil {
		t.Fatal(err)
	}
	if token == "" || expiresAt.IsZero() {
		t.Fatal("reset issuance must return token and expiry")
	}

	if err := mgr.ResetPassword(context.Background(), "wrong-token", "new-password"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong token must be ErrInvalidToken, got %v", err)
	}
	if err := mgr.ResetPassword(context.Background(), token, "short"); !errors.Is(err, crew.ErrInvalidInput) {
		t.Fatalf("short password must be ErrInvalidInput, got %v", err)
	}
	if err := mgr.ResetPassword(context.Background(), token, "new-password"); err != nil {
		t.Fatal(err)
	}

	// Single use.
	if err := mgr.ResetPassword(context.Background(), token, "another-one"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("consumed token must be ErrInvalidToken, got %v", err)
	}
	// Reset revokes every refresh session.
	if _, _, err := mgr.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatal("reset must revoke existing refresh sessions")
	}
	// Old password out, new password in.
	if _, _, err := mgr.Login(context.Background(), "sailor", "old-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("old password must stop working")
	}
	if _, _, err := mgr.Login(context.Background(), "sailor", "new-password"); err != nil {
		t.Fatalf("new password must work: %v", err)
	}
}

func TestResetTokenSingleSlot(t *testing.T) {
	engine := testEngine(t)
	accounts := newMemAccounts(testAccount(t, engine, "a1", "sailor", "old-password", "Onboard", scope.RoleCrew))
	mgr := newTestManager(t, accounts, newMemSessions())

	first, _, err := mgr.IssueResetToken(context.Background(), "sailor")
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := mgr.IssueResetToken(context.Background(), "sailor")
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.ResetPassword(context.Background(), first, "new-password"); !errors.Is(err, ErrInvalidToken) {
		t.Fatal("reissuing must invalidate the earlier token")
	}
	if err := mgr.ResetPassword(context.Background(), second, "new-password"); err != nil {
		t.Fatal(err)
	}
}

func TestResetTokenExpiry(t *testing.T) {
	engine := testEngine(t)
	accounts := newMemAccounts(testAccount(t, engine, "a1", "sailor", "old-password", "Onboard", scope.RoleCrew))

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mgr := newTestManager(t, accounts, newMemSessions(), WithClock(func() time.Time { return clock }))

	token, _, err := mgr.IssueResetToken(context.Background(), "sailor")
	if err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(16 * time.Minute)
	if err := mgr.ResetPassword(context.Background(), token, "new-password"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token must be ErrInvalidToken, got %v", err)
	}
	if accounts.byID["a1"].ResetTokenHash != "" {
		t.Fatal("expired slot must be cleared on the failed attempt")
	}
}

func TestIssueResetTokenUnknownUser(t *testing.T) {
	mgr := newTestManager(t, newMemAccounts(), newMemSessions())
	if _, _, err := mgr.IssueResetToken(context.Background(), "ghost"); !errors.Is(err, crew.ErrNotFound) {
		t.Fatalf("unknown username surfaces ErrNotFound for the caller to mask, got %v", err)
	}
}
