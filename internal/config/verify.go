package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yndnr/libos-go/pkg/crypto/adaptive"
)

// Verify validates the configuration.
func Verify(cfg *Config) error {
	if err := verifyLog(&cfg.Log); err != nil {
		return err
	}
	if cfg.Exit.HelperHostExitTimeout < 0 {
		return errors.New("exit.helper_host_exit_timeout must not be negative")
	}
	if err := verifyIPC(&cfg.IPC); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifySealing(&cfg.Storage); err != nil {
		return err
	}
	if cfg.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
			return fmt.Errorf("metrics.addr: %w", err)
		}
	}
	if (cfg.Metrics.TLSCertFile == "") != (cfg.Metrics.TLSKeyFile == "") {
		return errors.New("metrics.tls_cert_file and metrics.tls_key_file must be set together")
	}
	if cfg.Metrics.RateLimit < 0 {
		return errors.New("metrics.rate_limit must not be negative")
	}
	for _, entry := range cfg.Metrics.AllowList {
		if _, _, err := net.ParseCIDR(entry); err == nil {
			continue
		}
		if net.ParseIP(entry) == nil {
			return fmt.Errorf("metrics.allow_list: %q is neither an IP nor a CIDR", entry)
		}
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level)
	}
	switch cfg.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q is not one of json, text", cfg.Format)
	}
	return nil
}

func verifyIPC(cfg *IPCSection) error {
	if cfg.PID <= 0 {
		return errors.New("ipc.pid must be positive")
	}
	switch cfg.Transport {
	case TransportLoopback:
		return nil
	case TransportGossip:
	default:
		return fmt.Errorf("ipc.transport %q is not one of %s, %s", cfg.Transport, TransportLoopback, TransportGossip)
	}

	if net.ParseIP(cfg.BindAddr) == nil {
		return fmt.Errorf("ipc.bind_addr %q is not an IP address", cfg.BindAddr)
	}
	if cfg.BindPort < 0 || cfg.BindPort > 65535 {
		return fmt.Errorf("ipc.bind_port %d out of range", cfg.BindPort)
	}
	for _, seed := range cfg.Seeds {
		if _, _, err := net.SplitHostPort(seed); err != nil {
			return fmt.Errorf("ipc.seeds: %w", err)
		}
	}
	if cfg.LeaveTimeout < 0 {
		return errors.New("ipc.leave_timeout must not be negative")
	}
	if _, err := cfg.DecodeSecretKey(); err != nil {
		return err
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return fmt.Errorf("cannot create storage.data_dir: %w", err)
	}
	if cfg.GCInterval < 0 {
		return errors.New("storage.gc_interval must not be negative")
	}
	return nil
}

func verifySealing(cfg *StorageSection) error {
	if cfg.EncryptionKey != "" && cfg.Passphrase != "" {
		return errors.New("storage.encryption_key and storage.passphrase are mutually exclusive")
	}
	if _, err := cfg.DecodeEncryptionKey(); err != nil {
		return err
	}
	if cfg.Passphrase != "" && len(cfg.Passphrase) < adaptive.MinPassphraseLength {
		return fmt.Errorf("storage.passphrase must be at least %d characters", adaptive.MinPassphraseLength)
	}
	if _, err := adaptive.ParseType(cfg.Cipher); err != nil {
		return fmt.Errorf("storage.cipher: %w", err)
	}
	return nil
}

// DecodeEncryptionKey returns the raw record master key, or nil if none is
// set.
func (s *StorageSection) DecodeEncryptionKey() ([]byte, error) {
	if s.EncryptionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(s.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("storage.encryption_key: %w", err)
	}
	if len(key) < adaptive.MinMasterKeyLength {
		return nil, fmt.Errorf("storage.encryption_key must decode to at least %d bytes, got %d", adaptive.MinMasterKeyLength, len(key))
	}
	return key, nil
}

// DecodeSecretKey returns the raw gossip encryption key, or nil if none is
// set.
func (s *IPCSection) DecodeSecretKey() ([]byte, error) {
	if s.SecretKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(s.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("ipc.secret_key: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("ipc.secret_key must decode to 16, 24 or 32 bytes, got %d", len(key))
	}
}
