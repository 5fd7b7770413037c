// Package credential generates and protects crew login credentials: unique
// usernames, random passwords, a one-way bcrypt hash for verification, and
// a reversible AES-GCM token that lets an authorized administrator recover
// the plaintext.
package credential

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultPasswordLength matches the length issued on onboarding.
	DefaultPasswordLength = 12

	usernameSuffixLength = 4
	usernameMaxAttempts  = 5

	recoveryKeyLength = 32
	tokenDelimiter    = "."
)

// passwordAlphabet excludes visually ambiguous characters (0/O, 1/l/I).
// Bytes are mapped in with a modulo, which skews the distribution slightly
// toward the front of the alphabet; the skew is accepted for this domain.
const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789!@#$%&*"

var (
	// ErrUsernameExhausted means every generation attempt collided with an
	// existing username. The retry bound is internal policy, so callers
	// treat this as a server-side failure.
	ErrUsernameExhausted = errors.New("credential: username generation exhausted")

	// ErrRecoveryKeyMissing means reversible encryption was requested but
	// no recovery key is configured. This fails loudly: storing a bundle
	// without its recovery half would violate the pairing invariant.
	ErrRecoveryKeyMissing = errors.New("credential: recovery key is not configured")
)

// ExistsFunc probes whether a candidate username is already taken.
type ExistsFunc func(ctx context.Context, username string) (bool, error)

// Engine holds the process-wide recovery key and random source. Construct
// it once at startup and inject it where credentials are issued.
type Engine struct {
	key  []byte
	rand io.Reader
}

// Option configures Engine behavior.
type Option func(*Engine)

// WithRandom overrides the random source (useful for tests).
func WithRandom(r io.Reader) Option {
	return func(e *Engine) {
		if r != nil {
			e.rand = r
		}
	}
}

// NewEngine constructs an Engine. key may be nil, in which case recovery
// encryption is unavailable and EncryptForRecovery fails loudly; a non-nil
// key must be exactly 32 bytes (AES-256).
func NewEngine(key []byte, opts ...Option) (*Engine, error) {
	if key != nil && len(key) != recoveryKeyLength {
		return nil, fmt.Errorf("credential: recovery key must be %d bytes, got %d", recoveryKeyLength, len(key))
	}
	e := &Engine{key: key, rand: rand.Reader}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// GenerateUsername derives a lowercase alphanumeric username from seed
// (typically the seafarer id) plus a random suffix, retrying a bounded
// number of times against the uniqueness probe. The probe is a best-effort
// pre-check; the storage uniqueness constraint remains the final barrier.
func (e *Engine) GenerateUsername(ctx context.Context, seed string, exists ExistsFunc) (string, error) {
	base := sanitizeSeed(seed)
	if base == "" {
		base = "crew"
	}
	for attempt := 0; attempt < usernameMaxAttempts; attempt++ {
		suffix, err := e.randomString(usernameSuffixLength, "abcdefghijkmnpqrstuvwxyz23456789")
		if err != nil {
			return "", err
		}
		candidate := base + suffix
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrUsernameExhausted
}

// GeneratePassword draws length cryptographically random bytes and maps
// each into the password alphabet.
func (e *Engine) GeneratePassword(length int) (string, error) {
	if length <= 0 {
		length = DefaultPasswordLength
	}
	return e.randomString(length, passwordAlphabet)
}

func (e *Engine) randomString(length int, alphabet string) (string, error) {
	buf := make([]byte, length)
	if _, err := io.ReadFull(e.rand, buf); err != nil {
		return "", fmt.Errorf("credential: read random: %w", err)
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}

func sanitizeSeed(seed string) string {
	seed = strings.ToLower(strings.TrimSpace(seed))
	var b strings.Builder
	for _, r := range seed {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// HashPassword produces the one-way verification hash.
func HashPassword(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("credential: password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored hash.
func VerifyPassword(hash, plaintext string) error {
	if hash == "" {
		return errors.New("credential: password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
}

// Bundle is the pair of protected forms derived from one plaintext at one
// moment. The two halves are always stored together or not at all.
type Bundle struct {
	Hash     string
	Recovery string
}

// Seal produces both protected forms from the same plaintext.
func (e *Engine) Seal(plaintext string) (Bundle, error) {
	hash, err := HashPassword(plaintext)
	if err != nil {
		return Bundle{}, err
	}
	enc, err := e.EncryptForRecovery(plaintext)
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{Hash: hash, Recovery: enc}, nil
}

// EncryptForRecovery seals the plaintext under the process recovery key.
// The token is base64(nonce) "." base64(ciphertext) "." base64(tag).
func (e *Engine) EncryptForRecovery(plaintext string) (string, error) {
	if e.key == nil {
		return "", ErrRecoveryKeyMissing
	}
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(e.rand, nonce); err != nil {
		return "", fmt.Errorf("credential: read nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	split := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:split], sealed[split:]
	return strings.Join([]string{
		base64.RawStdEncoding.EncodeToString(nonce),
		base64.RawStdEncoding.EncodeToString(ciphertext),
		base64.RawStdEncoding.EncodeToString(tag),
	}, tokenDelimiter), nil
}

// DecryptForRecovery opens a recovery token. It fails closed: a missing
// key, a malformed token, or a failed authentication tag all yield
// ("", false) and never an error, because many valid accounts carry no
// recoverable password at all.
func (e *Engine) DecryptForRecovery(token string) (string, bool) {
	if e.key == nil || token == "" {
		return "", false
	}
	parts := strings.Split(token, tokenDelimiter)
	if len(parts) != 3 {
		return "", false
	}
	nonce, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", false
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", false
	}
	tag, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", false
	}
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", false
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil || len(nonce) != gcm.NonceSize() {
		return "", false
	}
	plain, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", false
	}
	return string(plain), true
}
