package credential

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestNewEngineKeyLength(t *testing.T) {
	if _, err := NewEngine(nil); err != nil {
		t.Fatalf("nil key must be accepted: %v", err)
	}
	if _, err := NewEngine([]byte("short")); err == nil {
		t.Fatal("expected error for short key")
	}
	if _, err := NewEngine(testKey()); err != nil {
		t.Fatalf("32-byte key: %v", err)
	}
}

func TestSealRoundTrip(t *testing.T) {
	e, err := NewEngine(testKey())
	if err != nil {
		t.Fatal(err)
	}
	bundle, err := e.Seal("s3cret-pass")
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyPassword(bundle.Hash, "s3cret-pass"); err != nil {
		t.Fatalf("hash should verify: %v", err)
	}
	if err := VerifyPassword(bundle.Hash, "wrong"); err == nil {
		t.Fatal("wrong password must not verify")
	}
	plain, ok := e.DecryptForRecovery(bundle.Recovery)
	if !ok || plain != "s3cret-pass" {
		t.Fatalf("recovery round trip failed: %q %v", plain, ok)
	}
}

func TestRecoveryTokenShape(t *testing.T) {
	e, _ := NewEngine(testKey())
	token, err := e.EncryptForRecovery("abc")
	if err != nil {
		t.Fatal(err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Fatalf("token should have 3 segments, got %d", len(parts))
	}
}

func TestDecryptFailsClosed(t *testing.T) {
	e, _ := NewEngine(testKey())
	token, _ := e.EncryptForRecovery("abc")

	// Tampered ciphertext segment.
	parts := strings.Split(token, ".")
	parts[1] = parts[1][:len(parts[1])-1] + "A"
	if _, ok := e.DecryptForRecovery(strings.Join(parts, ".")); ok {
		t.Fatal("tampered token must not decrypt")
	}

	for _, bad := range []string{"", "not-a-token", "a.b", "!!.!!.!!"} {
		if _, ok := e.DecryptForRecovery(bad); ok {
			t.Fatalf("malformed token %q must not decrypt", bad)
		}
	}

	// Wrong key.
	other, _ := NewEngine(bytes.Repeat([]byte{0x01}, 32))
	if _, ok := other.DecryptForRecovery(token); ok {
		t.Fatal("token must not decrypt under a different key")
	}

	// No key configured.
	nokey, _ := NewEngine(nil)
	if _, ok := nokey.DecryptForRecovery(token); ok {
		t.Fatal("keyless engine must not decrypt")
	}
}

func TestEncryptWithoutKeyFailsLoudly(t *testing.T) {
	e, _ := NewEngine(nil)
	if _, err := e.EncryptForRecovery("abc"); !errors.Is(err, ErrRecoveryKeyMissing) {
		t.Fatalf("expected ErrRecoveryKeyMissing, got %v", err)
	}
}

func TestGeneratePasswordAlphabet(t *testing.T) {
	e, _ := NewEngine(nil)
	pwd, err := e.GeneratePassword(DefaultPasswordLength)
	if err != nil {
		t.Fatal(err)
	}
	if len(pwd) != DefaultPasswordLength {
		t.Fatalf("expected %d chars, got %d", DefaultPasswordLength, len(pwd))
	}
	for _, c := range pwd {
		if !strings.ContainsRune(passwordAlphabet, c) {
			t.Fatalf("character %q outside alphabet", c)
		}
		if strings.ContainsRune("0O1lI", c) {
			t.Fatalf("ambiguous character %q generated", c)
		}
	}
}

func TestGenerateUsernameSanitizesSeed(t *testing.T) {
	e, _ := NewEngine(nil)
	never := func(context.Context, string) (bool, error) { return false, nil }

	name, err := e.GenerateUsername(context.Background(), "SF-1234/B", never)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(name, "sf1234b") {
		t.Fatalf("expected sanitized seed prefix, got %q", name)
	}
	if len(name) != len("sf1234b")+usernameSuffixLength {
		t.Fatalf("unexpected length for %q", name)
	}

	// An all-symbol seed falls back to a generic stem.
	name, err = e.GenerateUsername(context.Background(), "---", never)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(name, "crew") {
		t.Fatalf("expected fallback stem, got %q", name)
	}
}

func TestGenerateUsernameExhaustion(t *testing.T) {
	e, _ := NewEngine(nil)
	calls := 0
	always := func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	}
	_, err := e.GenerateUsername(context.Background(), "sf1", always)
	if !errors.Is(err, ErrUsernameExhausted) {
		t.Fatalf("expected ErrUsernameExhausted, got %v", err)
	}
	if calls != usernameMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", usernameMaxAttempts, calls)
	}
}
