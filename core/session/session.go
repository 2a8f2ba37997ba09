// Package session implements the encrypted session envelope (spec component
// C): an opaque, tamper-evident token carrying session state, sealed with
// AES-256-GCM under a key derived per-token via PBKDF2-SHA256. Every
// successful Rotate mints a fresh token (mandatory rotation); every
// encryption draws a fresh salt and nonce so no two tokens, even for an
// identical record, ever share ciphertext.
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize       = 32
	nonceSize      = 12
	pbkdf2Rounds   = 100_000
	derivedKeySize = 32 // AES-256
)

// ErrInvalidSession is returned for any decrypt failure: wrong key, truncated
// wire format, or a failed GCM authentication tag check. The caller's only
// recourse is to mint a new session, exactly as if the token had never
// existed — no partial-trust path exists.
var ErrInvalidSession = errors.New("session: invalid or tampered token")

// Record is the plaintext payload carried inside a session token.
type Record struct {
	SessionID      string            `json:"session_id"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
	RequestCount   int64             `json:"request_count"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}

// Expired reports whether Record has crossed its rolling idle timeout or its
// absolute maximum lifetime, whichever comes first.
func (r *Record) Expired(now time.Time, idleTimeout, maxAge time.Duration) bool {
	if now.Sub(r.LastAccessedAt) >= idleTimeout {
		return true
	}
	if now.Sub(r.CreatedAt) >= maxAge {
		return true
	}
	return false
}

// Envelope seals and opens session tokens under a master key. The master key
// is the raw operator secret (e.g. loaded from SESSION_MASTER_KEY); a fresh
// per-token key is derived from it via PBKDF2 using that token's own salt, so
// compromising one token's derived key reveals nothing about another's.
type Envelope struct {
	masterKey []byte
}

// NewEnvelope constructs an Envelope from the operator's master key. The key
// may be any length; PBKDF2 stretches the salt+masterKey pair into a 32-byte
// AES key per token regardless.
func NewEnvelope(masterKey []byte) *Envelope {
	return &Envelope{masterKey: masterKey}
}

// Encrypt seals record into an opaque base64 token. Wire layout (before
// base64): salt(32) || nonce(12) || ciphertext+tag. The salt is also used as
// GCM's associated data, binding the derived-key material to the ciphertext
// it produced.
func (e *Envelope) Encrypt(record *Record) (string, error) {
	plaintext, err := json.Marshal(record)
	if err != nil {
		return "", err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	gcm, err := e.gcmFor(salt)
	if err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, nonce, plaintext, salt)

	wire := make([]byte, 0, saltSize+nonceSize+len(sealed))
	wire = append(wire, salt...)
	wire = append(wire, nonce...)
	wire = append(wire, sealed...)

	return base64.StdEncoding.EncodeToString(wire), nil
}

// Decrypt opens token and returns its Record. Any structural, cryptographic,
// or authentication failure collapses to ErrInvalidSession; no detail about
// which check failed is ever surfaced to the caller.
func (e *Envelope) Decrypt(token string) (*Record, error) {
	wire, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidSession
	}
	if len(wire) < saltSize+nonceSize {
		return nil, ErrInvalidSession
	}

	salt := wire[:saltSize]
	nonce := wire[saltSize : saltSize+nonceSize]
	ciphertext := wire[saltSize+nonceSize:]

	gcm, err := e.gcmFor(salt)
	if err != nil {
		return nil, ErrInvalidSession
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, salt)
	if err != nil {
		return nil, ErrInvalidSession
	}

	var record Record
	if err := json.Unmarshal(plaintext, &record); err != nil {
		return nil, ErrInvalidSession
	}
	return &record, nil
}

// Rotate decodes token, verifies it, bumps LastAccessedAt and RequestCount to
// reflect this request, and re-encrypts under a fresh salt and nonce. Every
// successful request rotates its session token; no token is ever re-issued
// twice in its exact prior ciphertext form, and counters persist across
// rotation rather than resetting with each new token.
func (e *Envelope) Rotate(token string, now time.Time) (string, *Record, error) {
	record, err := e.Decrypt(token)
	if err != nil {
		return "", nil, err
	}
	record.LastAccessedAt = now
	record.RequestCount++

	next, err := e.Encrypt(record)
	if err != nil {
		return "", nil, err
	}
	return next, record, nil
}

func (e *Envelope) gcmFor(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(e.masterKey, salt, pbkdf2Rounds, derivedKeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
