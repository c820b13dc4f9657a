package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/libos-go/internal/config"
	"github.com/yndnr/libos-go/pkg/crypto/adaptive"
)

func openSealed(t *testing.T, dir string, mutate func(*Config)) *ProfileStore {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Dir = dir
	cfg.GCInterval = time.Hour
	mutate(&cfg)
	s, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func rawValue(t *testing.T, s *ProfileStore, id string) []byte {
	t.Helper()
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(recordPrefix + id))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		t.Fatalf("read raw value error = %v", err)
	}
	return raw
}

func TestProfileStore_Sealed(t *testing.T) {
	master := []byte("0123456789abcdef")
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"key aes-gcm", func(c *Config) { c.EncryptionKey = master; c.Cipher = adaptive.CipherAESGCM }},
		{"key chacha20", func(c *Config) { c.EncryptionKey = master; c.Cipher = adaptive.CipherChaCha20 }},
		{"passphrase", func(c *Config) { c.Passphrase = []byte("correct horse") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()

			s := openSealed(t, dir, tt.mutate)
			rec, err := s.Put(ctx, ProcessRecord{PID: 9, ExitCode: 3, Counters: map[string]uint64{"thread_exit": 2}})
			if err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			raw := rawValue(t, s, rec.ID)
			if raw[0] != sealedMagic || bytes.Contains(raw, []byte("thread_exit")) {
				t.Errorf("stored value is not sealed: %q", raw)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			s = openSealed(t, dir, tt.mutate)
			got, err := s.Get(ctx, rec.ID)
			if err != nil {
				t.Fatalf("Get() after reopen error = %v", err)
			}
			if got.PID != 9 || got.ExitCode != 3 || got.Counters["thread_exit"] != 2 {
				t.Errorf("Get() = %+v", got)
			}
			s.Close()

			s = openSealed(t, dir, func(*Config) {})
			if _, err := s.List(ctx); !errors.Is(err, ErrSealed) {
				t.Errorf("List() without key error = %v, want %v", err, ErrSealed)
			}
			s.Close()
		})
	}
}

func TestProfileStore_WrongKey(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := openSealed(t, dir, func(c *Config) { c.Passphrase = []byte("correct horse") })
	rec, err := s.Put(ctx, ProcessRecord{PID: 1})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	s.Close()

	s = openSealed(t, dir, func(c *Config) { c.Passphrase = []byte("battery staple") })
	defer s.Close()
	if _, err := s.Get(ctx, rec.ID); !errors.Is(err, ErrUnseal) {
		t.Errorf("Get() with wrong passphrase error = %v, want %v", err, ErrUnseal)
	}
}

func TestProfileStore_PlainRecordsStayReadable(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := openSealed(t, dir, func(*Config) {})
	if _, err := s.Put(ctx, ProcessRecord{PID: 5}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	s.Close()

	s = openSealed(t, dir, func(c *Config) { c.EncryptionKey = []byte("0123456789abcdef") })
	defer s.Close()
	if _, err := s.Put(ctx, ProcessRecord{PID: 6}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	recs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(recs) != 2 || recs[0].PID != 5 || recs[1].PID != 6 {
		t.Errorf("List() = %+v, want the plain and the sealed record", recs)
	}
}

func TestOpen_CipherErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"key and passphrase", func(c *Config) {
			c.EncryptionKey = []byte("0123456789abcdef")
			c.Passphrase = []byte("correct horse")
		}},
		{"short key", func(c *Config) { c.EncryptionKey = []byte("short") }},
		{"weak passphrase", func(c *Config) { c.Passphrase = []byte("short") }},
		{"unknown cipher", func(c *Config) { c.EncryptionKey = []byte("0123456789abcdef"); c.Cipher = "des" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if s, err := Open(cfg, nil); err == nil {
				s.Close()
				t.Error("Open() error = nil, want cipher error")
			}
		})
	}
}

func TestConfigFromSection(t *testing.T) {
	key := []byte("0123456789abcdef")
	sec := config.StorageSection{
		DataDir:       "/var/lib/libos",
		GCInterval:    time.Minute,
		EncryptionKey: base64.StdEncoding.EncodeToString(key),
		Cipher:        "chacha20-poly1305",
	}

	cfg, err := ConfigFromSection(sec)
	if err != nil {
		t.Fatalf("ConfigFromSection() error = %v", err)
	}
	if cfg.Dir != sec.DataDir || cfg.GCInterval != time.Minute || cfg.GCThreshold != DefaultConfig().GCThreshold {
		t.Errorf("ConfigFromSection() = %+v", cfg)
	}
	if !bytes.Equal(cfg.EncryptionKey, key) || cfg.Cipher != adaptive.CipherChaCha20 {
		t.Errorf("sealing = %q/%q", cfg.EncryptionKey, cfg.Cipher)
	}

	sec.Cipher = "des"
	if _, err := ConfigFromSection(sec); err == nil {
		t.Error("ConfigFromSection() with unknown cipher error = nil")
	}
}
