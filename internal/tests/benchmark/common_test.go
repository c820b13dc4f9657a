package benchmark

import (
	"io"
	"testing"

	"github.com/yndnr/libos-go/internal/storage"
	"github.com/yndnr/libos-go/internal/telemetry/logger"
)

// ThreadCounts are the thread counts of the multi-thread benchmarks.
var ThreadCounts = []int{2, 8, 32, 128}

func quietLogger(b *testing.B) logger.Logger {
	b.Helper()
	l, err := logger.New(logger.Config{Level: "error", Format: "text", Output: io.Discard})
	if err != nil {
		b.Fatalf("logger.New() error = %v", err)
	}
	return l
}

func openStore(b *testing.B, cfg storage.Config) *storage.ProfileStore {
	b.Helper()
	store, err := storage.Open(cfg, quietLogger(b))
	if err != nil {
		b.Fatalf("storage.Open() error = %v", err)
	}
	b.Cleanup(func() { store.Close() })
	return store
}
