package adaptive

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the length of derived keys.
	KeySize = 32

	// MinMasterKeyLength is the shortest master key DeriveKey accepts.
	MinMasterKeyLength = 16

	// MinPassphraseLength is the shortest passphrase KeyFromPassphrase
	// accepts.
	MinPassphraseLength = 8

	// SaltSize is the length of passphrase salts.
	SaltSize = 16

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

var (
	ErrKeyTooShort       = errors.New("adaptive: master key too short (minimum 16 bytes)")
	ErrPassphraseTooWeak = errors.New("adaptive: passphrase too weak (minimum 8 characters)")
	ErrBadSalt           = errors.New("adaptive: salt must be 16 bytes")
)

// DeriveKey derives a KeySize key for purpose info from master with
// HKDF-SHA256. Different info strings give independent keys.
func DeriveKey(master []byte, info string) ([]byte, error) {
	if len(master) < MinMasterKeyLength {
		return nil, ErrKeyTooShort
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("adaptive: derive key: %w", err)
	}
	return key, nil
}

// NewSalt returns a random SaltSize salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("adaptive: salt: %w", err)
	}
	return salt, nil
}

// KeyFromPassphrase derives a KeySize key from passphrase with Argon2id.
// The same passphrase and salt always give the same key.
func KeyFromPassphrase(passphrase, salt []byte) ([]byte, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, ErrPassphraseTooWeak
	}
	if len(salt) != SaltSize {
		return nil, ErrBadSalt
	}
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, KeySize), nil
}

// Zero overwrites key.
func Zero(key []byte) {
	clear(key)
}
