package config

import "strings"

// Sanitize returns a copy of the config with sensitive fields masked.
func Sanitize(cfg *Config) *Config {
	sanitized := *cfg
	sanitized.IPC.Seeds = append([]string(nil), cfg.IPC.Seeds...)
	sanitized.Metrics.AllowList = append([]string(nil), cfg.Metrics.AllowList...)

	if sanitized.IPC.SecretKey != "" {
		sanitized.IPC.SecretKey = maskSecret(sanitized.IPC.SecretKey)
	}
	if sanitized.Storage.EncryptionKey != "" {
		sanitized.Storage.EncryptionKey = maskSecret(sanitized.Storage.EncryptionKey)
	}
	if sanitized.Storage.Passphrase != "" {
		sanitized.Storage.Passphrase = maskSecret(sanitized.Storage.Passphrase)
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
