package exit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/yndnr/libos-go/internal/core/domain"
	"github.com/yndnr/libos-go/internal/infra/shutdown"
	"github.com/yndnr/libos-go/internal/telemetry/logger"
)

// ProfileSink persists the profile counters of an exiting process.
type ProfileSink interface {
	FlushProfile(ctx context.Context, pid int32, exitCode int, counters map[string]uint64) error
}

// Cleanup is the default Cleaner. It flushes profile counters to a sink and
// then runs the registered shutdown hooks in reverse order. It runs once.
type Cleanup struct {
	sink   ProfileSink
	hooks  *shutdown.Handler
	ran    atomic.Bool
	logger logger.Logger
}

// NewCleanup creates a Cleanup. sink and hooks may be nil.
func NewCleanup(sink ProfileSink, hooks *shutdown.Handler, log logger.Logger) *Cleanup {
	if log == nil {
		log = logger.Default()
	}
	return &Cleanup{
		sink:   sink,
		hooks:  hooks,
		logger: log.With("component", "cleanup"),
	}
}

// Clean implements Cleaner.
func (c *Cleanup) Clean(ctx context.Context, proc *domain.Process) error {
	if !c.ran.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	code, _ := proc.ExitCode()
	if c.sink != nil {
		if err := c.sink.FlushProfile(ctx, proc.PID, code, proc.Profile.Snapshot()); err != nil {
			errs = append(errs, fmt.Errorf("flush profile: %w", err))
		}
	}
	if c.hooks != nil {
		if err := c.hooks.Run(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	c.logger.Info("process cleaned up", "pid", proc.PID, "exit_code", code)
	return errors.Join(errs...)
}
