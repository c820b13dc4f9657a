package exit

import (
	"context"
	"time"

	"github.com/yndnr/libos-go/internal/core/domain"
	"github.com/yndnr/libos-go/internal/host"
	"github.com/yndnr/libos-go/internal/telemetry/logger"
	"github.com/yndnr/libos-go/internal/telemetry/metric"
)

// SequencerConfig tunes the process exit sequence.
type SequencerConfig struct {
	// WaitHelperHostExit makes the sequencer wait until a stopped helper's
	// host thread is gone before freeing its record.
	WaitHelperHostExit bool
	// HelperHostExitTimeout bounds that wait. Zero waits forever.
	HelperHostExitTimeout time.Duration
}

// SequencerDeps are the collaborators of a Sequencer.
type SequencerDeps struct {
	Coordinator *Coordinator
	Helpers     Helpers
	Reclaimer   Reclaimer
	Cleaner     Cleaner
	Host        host.Host
	Metrics     *metric.Registry
	Logger      logger.Logger
}

// Sequencer drives the group-wide part of a thread's exit.
type Sequencer struct {
	cfg     SequencerConfig
	coord   *Coordinator
	helpers Helpers
	reclaim Reclaimer
	cleaner Cleaner
	host    host.Host
	metrics *metric.Registry
	logger  logger.Logger
}

// NewSequencer creates a Sequencer.
func NewSequencer(cfg SequencerConfig, deps SequencerDeps) *Sequencer {
	if deps.Metrics == nil {
		deps.Metrics = metric.NewRegistry()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	return &Sequencer{
		cfg:     cfg,
		coord:   deps.Coordinator,
		helpers: deps.Helpers,
		reclaim: deps.Reclaimer,
		cleaner: deps.Cleaner,
		host:    deps.Host,
		metrics: deps.Metrics,
		logger:  deps.Logger.With("component", "exit"),
	}
}

// TerminateProcess records the caller's exit status and terminates it. If
// the caller was the last live thread of its process, it also stops the
// helper threads and ends the process: with cleanup when no IPC obligation
// is outstanding, otherwise by ending only the calling host thread and
// leaving cleanup to the IPC helper.
//
// It returns when the caller is not the last thread, and in the last-thread
// case only if the host primitive returns.
func (s *Sequencer) TerminateProcess(ctx context.Context, cur *domain.Thread, errorCode, termSignal int) {
	proc := cur.Process
	cur.SetExitStatus(errorCode, termSignal)
	if proc != nil {
		proc.SetExitCode(errorCode)
	}

	_ = s.coord.TerminateThread(ctx, cur, true)

	if proc == nil || !proc.ClaimLastThread() {
		return
	}
	log := s.logger.WithContext(ctx).With("pid", proc.PID)
	log.Debug("last thread exiting, draining helpers", "tid", cur.TID)

	proc.Advance(domain.StateLastThreadDetected, domain.StateHelpersDraining)
	start := time.Now()

	if t := s.helpers.TerminateAsyncHelper(); t != nil {
		s.reclaimHelper(ctx, t)
	}

	ipcThread, outstanding := s.helpers.ExitWithIPCHelper(true, func() {
		s.cleanAndExit(context.WithoutCancel(ctx), proc)
	})
	if ipcThread != nil {
		s.reclaimHelper(ctx, ipcThread)
	}
	s.metrics.HelperDrain.Observe(time.Since(start).Seconds())

	if outstanding == 0 {
		proc.Advance(domain.StateHelpersDraining, domain.StateCleanupThenTerminate)
		s.cleanAndExit(ctx, proc)
		return
	}

	proc.Advance(domain.StateHelpersDraining, domain.StateTerminateOnly)
	log.Debug("ipc obligations outstanding, helper will clean up", "outstanding", outstanding)
	s.metrics.ProcessExits.WithLabelValues(metric.OutcomeTerminateOnly).Inc()
	s.host.ThreadExit()
}

// reclaimHelper frees a stopped helper's record, after its host thread is
// gone when so configured.
func (s *Sequencer) reclaimHelper(ctx context.Context, t *domain.Thread) {
	if s.cfg.WaitHelperHostExit {
		waitCtx := ctx
		if s.cfg.HelperHostExitTimeout > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, s.cfg.HelperHostExitTimeout)
			defer cancel()
		}
		if err := t.HostExited.Wait(waitCtx); err != nil {
			s.logFor(ctx).Warn("helper host thread still running, freeing record", "tid", t.TID, "error", err)
		}
	}
	s.reclaim.Put(t)
}

func (s *Sequencer) cleanAndExit(ctx context.Context, proc *domain.Process) {
	if err := s.cleaner.Clean(ctx, proc); err != nil {
		s.logFor(ctx).Warn("process cleanup failed", "pid", proc.PID, "error", err)
	}
	code, _ := proc.ExitCode()
	s.metrics.ProcessExits.WithLabelValues(metric.OutcomeCleanup).Inc()
	s.host.ProcessExit(code)
}

// logFor tags the sequencer logger with the thread the exit path runs on.
func (s *Sequencer) logFor(ctx context.Context) logger.Logger {
	l := s.logger.WithContext(ctx)
	if id, ok := logger.ThreadFromContext(ctx); ok {
		l = l.With("caller_tid", id.TID)
	}
	return l
}
