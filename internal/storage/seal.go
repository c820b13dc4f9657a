package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/libos-go/pkg/crypto/adaptive"
)

const (
	saltKey = "meta/salt"

	// sealedMagic starts every sealed value. Plain values are JSON objects
	// and start with '{'.
	sealedMagic byte = 0x01

	recordKeyInfo = "libos profile records"
)

var (
	// ErrSealed is returned when a sealed record is read without a key.
	ErrSealed = errors.New("record is sealed; configure storage.encryption_key or storage.passphrase")
	// ErrUnseal is returned when a sealed record does not open with the
	// configured key.
	ErrUnseal = errors.New("record does not open with the configured key")
)

// openCipher builds the record cipher from cfg. It returns nil when the
// store keeps records in plain JSON.
func openCipher(db *badger.DB, cfg Config) (adaptive.Cipher, error) {
	var key []byte
	var err error
	switch {
	case len(cfg.EncryptionKey) > 0 && len(cfg.Passphrase) > 0:
		return nil, errors.New("set either an encryption key or a passphrase, not both")
	case len(cfg.EncryptionKey) > 0:
		key, err = adaptive.DeriveKey(cfg.EncryptionKey, recordKeyInfo)
	case len(cfg.Passphrase) > 0:
		var salt []byte
		salt, err = loadSalt(db)
		if err == nil {
			key, err = adaptive.KeyFromPassphrase(cfg.Passphrase, salt)
		}
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer adaptive.Zero(key)
	return adaptive.NewWithType(key, cfg.Cipher)
}

// loadSalt returns the passphrase salt of the store, creating it on first
// use.
func loadSalt(db *badger.DB) ([]byte, error) {
	var salt []byte
	err := db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(saltKey))
		if err == nil {
			salt, err = item.ValueCopy(nil)
			return err
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		salt, err = adaptive.NewSalt()
		if err != nil {
			return err
		}
		return txn.Set([]byte(saltKey), salt)
	})
	if err != nil {
		return nil, fmt.Errorf("load salt: %w", err)
	}
	return salt, nil
}

// encodeRecord marshals rec, sealed when the store has a cipher. The key
// is bound to the ciphertext so a record cannot be moved to another key.
func (s *ProfileStore) encodeRecord(key []byte, rec ProcessRecord) ([]byte, error) {
	value, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	if s.cipher == nil {
		return value, nil
	}
	sealed, err := s.cipher.Encrypt(value, key)
	if err != nil {
		return nil, fmt.Errorf("seal record: %w", err)
	}
	return append([]byte{sealedMagic}, sealed...), nil
}

// decodeRecord reverses encodeRecord. Plain records stay readable after a
// key is configured.
func (s *ProfileStore) decodeRecord(key, value []byte, rec *ProcessRecord) error {
	if len(value) > 0 && value[0] == sealedMagic {
		if s.cipher == nil {
			return ErrSealed
		}
		plain, err := s.cipher.Decrypt(value[1:], key)
		if err != nil {
			return ErrUnseal
		}
		value = plain
	}
	return json.Unmarshal(value, rec)
}
