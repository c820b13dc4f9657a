package config

import "time"

// Default configuration values.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultHelperHostExitTimeout = 5 * time.Second

	DefaultTransport = TransportLoopback
	DefaultPID       = 1
	DefaultBindAddr  = "127.0.0.1"
	DefaultBindPort  = 7946

	DefaultLeaveTimeout = 500 * time.Millisecond

	DefaultGCInterval = 10 * time.Minute

	DefaultMetricsAddr      = "127.0.0.1:9464"
	DefaultMetricsRateLimit = 20
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Exit: ExitSection{
			WaitHelperHostExit:    true,
			HelperHostExitTimeout: DefaultHelperHostExitTimeout,
		},
		IPC: IPCSection{
			Transport: DefaultTransport,
			PID:       DefaultPID,
			BindAddr:  DefaultBindAddr,
			BindPort:  DefaultBindPort,

			LeaveTimeout: DefaultLeaveTimeout,
		},
		Storage: StorageSection{
			GCInterval: DefaultGCInterval,
		},
		Metrics: MetricsSection{
			Addr:      DefaultMetricsAddr,
			RateLimit: DefaultMetricsRateLimit,
		},
	}
}
