package config

import "time"

// Config is the root configuration.
type Config struct {
	Log     LogSection     `koanf:"log" json:"log" yaml:"log"`
	Exit    ExitSection    `koanf:"exit" json:"exit" yaml:"exit"`
	IPC     IPCSection     `koanf:"ipc" json:"ipc" yaml:"ipc"`
	Storage StorageSection `koanf:"storage" json:"storage" yaml:"storage"`
	Metrics MetricsSection `koanf:"metrics" json:"metrics" yaml:"metrics"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Format string `koanf:"format" json:"format" yaml:"format"`
}

// ExitSection tunes the process exit sequence.
type ExitSection struct {
	// WaitHelperHostExit waits for a stopped helper's host thread to be gone
	// before its record is freed.
	WaitHelperHostExit bool `koanf:"wait_helper_host_exit" json:"wait_helper_host_exit" yaml:"wait_helper_host_exit"`

	// HelperHostExitTimeout bounds that wait. Zero waits forever.
	HelperHostExitTimeout time.Duration `koanf:"helper_host_exit_timeout" json:"helper_host_exit_timeout" yaml:"helper_host_exit_timeout"`
}

// Transports for remote child-exit messages.
const (
	TransportLoopback = "loopback"
	TransportGossip   = "gossip"
)

// IPCSection configures the remote exit transport.
type IPCSection struct {
	// Transport is "loopback" (in-process) or "gossip" (memberlist).
	Transport string `koanf:"transport" json:"transport" yaml:"transport"`

	// PID is the LibOS process this node speaks for.
	PID int32 `koanf:"pid" json:"pid" yaml:"pid"`

	// BindAddr and BindPort are the gossip bind address. Port 0 picks a
	// free port.
	BindAddr string `koanf:"bind_addr" json:"bind_addr" yaml:"bind_addr"`
	BindPort int    `koanf:"bind_port" json:"bind_port" yaml:"bind_port"`

	// Seeds are gossip members to join, as host:port.
	Seeds []string `koanf:"seeds" json:"seeds" yaml:"seeds"`

	// SecretKey is the base64 gossip encryption key (16, 24 or 32 bytes).
	SecretKey string `koanf:"secret_key" json:"secret_key" yaml:"secret_key"`

	// LeaveTimeout bounds how long process exit waits for the leave
	// broadcast to be acknowledged.
	LeaveTimeout time.Duration `koanf:"leave_timeout" json:"leave_timeout" yaml:"leave_timeout"`
}

// StorageSection configures the profile store.
type StorageSection struct {
	// DataDir is the Badger directory. Empty keeps records in memory.
	DataDir    string        `koanf:"data_dir" json:"data_dir" yaml:"data_dir"`
	GCInterval time.Duration `koanf:"gc_interval" json:"gc_interval" yaml:"gc_interval"`

	// EncryptionKey is a base64 master key (at least 16 bytes) that seals
	// records at rest. Passphrase seals them with a key derived from a
	// phrase instead. At most one of the two may be set.
	EncryptionKey string `koanf:"encryption_key" json:"encryption_key" yaml:"encryption_key"`
	Passphrase    string `koanf:"passphrase" json:"passphrase" yaml:"passphrase"`
	// Cipher is aes-gcm or chacha20-poly1305. Empty picks one by hardware.
	Cipher string `koanf:"cipher" json:"cipher" yaml:"cipher"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	// Addr is the listen address of /metrics. Empty disables it.
	Addr string `koanf:"addr" json:"addr" yaml:"addr"`
	// TLSCertFile and TLSKeyFile switch /metrics to HTTPS. The key pair is
	// reloaded when either file changes.
	TLSCertFile string `koanf:"tls_cert_file" json:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file" json:"tls_key_file" yaml:"tls_key_file"`
	// RateLimit is the requests per second allowed per client IP. Zero
	// disables limiting.
	RateLimit int `koanf:"rate_limit" json:"rate_limit" yaml:"rate_limit"`
	// AllowList holds the IPs and CIDRs allowed to connect. Empty allows
	// everyone.
	AllowList []string `koanf:"allow_list" json:"allow_list" yaml:"allow_list"`
}
