package adaptive

import (
	"bytes"
	"errors"
	"testing"
)

func testKey(n int) []byte {
	key := make([]byte, n)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestNew(t *testing.T) {
	c, err := New(testKey(32))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.Type() != preferred() {
		t.Errorf("Type() = %q, want %q", c.Type(), preferred())
	}
}

func TestNewWithType(t *testing.T) {
	tests := []struct {
		name    string
		typ     CipherType
		keyLen  int
		wantErr bool
	}{
		{"aes-128", CipherAESGCM, 16, false},
		{"aes-256", CipherAESGCM, 32, false},
		{"aes bad key", CipherAESGCM, 15, true},
		{"chacha20", CipherChaCha20, 32, false},
		{"chacha20 short key", CipherChaCha20, 16, true},
		{"unknown", CipherType("rot13"), 32, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewWithType(testKey(tt.keyLen), tt.typ)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewWithType() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && c.Type() != tt.typ {
				t.Errorf("Type() = %q, want %q", c.Type(), tt.typ)
			}
		})
	}
}

func TestParseType(t *testing.T) {
	for _, s := range []string{"", "aes-gcm", "chacha20-poly1305"} {
		if got, err := ParseType(s); err != nil || string(got) != s {
			t.Errorf("ParseType(%q) = %q, %v", s, got, err)
		}
	}
	if _, err := ParseType("des"); err == nil {
		t.Error("ParseType(des) error = nil, want error")
	}
}

func TestCipher_RoundTrip(t *testing.T) {
	for _, typ := range []CipherType{CipherAESGCM, CipherChaCha20} {
		t.Run(string(typ), func(t *testing.T) {
			c, err := NewWithType(testKey(32), typ)
			if err != nil {
				t.Fatalf("NewWithType() error = %v", err)
			}
			plaintext := []byte(`{"pid":7,"exit_code":3}`)
			aad := []byte("proc/01")

			sealed, err := c.Encrypt(plaintext, aad)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if len(sealed) != len(plaintext)+c.Overhead() {
				t.Errorf("len(sealed) = %d, want %d", len(sealed), len(plaintext)+c.Overhead())
			}
			again, _ := c.Encrypt(plaintext, aad)
			if bytes.Equal(sealed, again) {
				t.Error("two encryptions are identical, want fresh nonces")
			}

			got, err := c.Decrypt(sealed, aad)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Errorf("Decrypt() = %q, want %q", got, plaintext)
			}

			if _, err := c.Decrypt(sealed, []byte("proc/02")); err == nil {
				t.Error("Decrypt() with other aad error = nil, want error")
			}
			tampered := append([]byte{}, sealed...)
			tampered[len(tampered)-1] ^= 0xff
			if _, err := c.Decrypt(tampered, aad); err == nil {
				t.Error("Decrypt() of tampered data error = nil, want error")
			}
			if _, err := c.Decrypt([]byte{1, 2}, aad); !errors.Is(err, ErrCiphertextTooShort) {
				t.Errorf("Decrypt() of short data error = %v, want %v", err, ErrCiphertextTooShort)
			}
		})
	}
}
