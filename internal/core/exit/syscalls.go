package exit

import (
	"context"
	"fmt"

	"github.com/yndnr/libos-go/internal/core/domain"
	"github.com/yndnr/libos-go/internal/host"
	"github.com/yndnr/libos-go/internal/telemetry/logger"
)

// Relocator runs the rest of a thread's exit on its private exit region.
// RelocateAndFinish never returns.
type Relocator interface {
	RelocateAndFinish(ec *domain.ExecContext, errorCode int, continuation func(errorCode int))
}

// SyscallsDeps are the collaborators of Syscalls.
type SyscallsDeps struct {
	Coordinator *Coordinator
	Sequencer   *Sequencer
	Relocator   Relocator
	Signals     SignalDelivery
	Host        host.Host
	Logger      logger.Logger
}

// Syscalls implements the exit system calls.
type Syscalls struct {
	coord     *Coordinator
	seq       *Sequencer
	relocator Relocator
	signals   SignalDelivery
	host      host.Host
	logger    logger.Logger
}

// NewSyscalls creates the exit entry points.
func NewSyscalls(deps SyscallsDeps) *Syscalls {
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	return &Syscalls{
		coord:     deps.Coordinator,
		seq:       deps.Sequencer,
		relocator: deps.Relocator,
		signals:   deps.Signals,
		host:      deps.Host,
		logger:    deps.Logger.With("component", "exit"),
	}
}

// Exit terminates the calling thread with code. It never returns.
func (s *Syscalls) Exit(ctx context.Context, ec *domain.ExecContext, code int) {
	s.enter(ec, "exit", code)
	cur := s.handoff(ctx, ec)
	s.finish(ctx, ec, cur, code, 0, domain.ProfileSyscallExit)
}

// ExitGroup kills every other thread of the caller's group and then
// terminates the caller with code. It never returns.
func (s *Syscalls) ExitGroup(ctx context.Context, ec *domain.ExecContext, code int) {
	s.enter(ec, "exit_group", code)
	cur := s.handoff(ctx, ec)

	// Killed siblings exit with code 0; the group's code is settled first.
	if cur.Process != nil {
		cur.Process.SetExitCode(code)
	}
	s.logger.Debug("now kill other threads in the process", "tgid", cur.TGID)
	s.signals.KillGroup(cur.TGID, cur.TID, domain.SIGKILL, false)

	s.logger.Debug("now exit the process", "tgid", cur.TGID)
	s.finish(ctx, ec, cur, code, 0, domain.ProfileSyscallExitGrp)
}

// ExitBySignal is the default action of a fatal signal: the calling thread
// exits with code 0 and sig as its terminating signal. It never returns.
func (s *Syscalls) ExitBySignal(ctx context.Context, ec *domain.ExecContext, sig int) {
	cur := ec.Current()
	s.logger.Debug("thread killed by signal", "tid", cur.TID, "signo", sig)
	cur = s.handoff(ctx, ec)
	s.finish(ctx, ec, cur, 0, sig, "")
}

// PendingFatal reports whether t has a fatal signal queued. Thread run loops
// poll it after waking on their signal event.
func PendingFatal(t *domain.Thread) bool {
	return t.HasPending(domain.SIGKILL)
}

func (s *Syscalls) enter(ec *domain.ExecContext, name string, code int) {
	cur := ec.Current()
	if cur.Internal {
		panic(domain.ErrInternalThreadExit.WithDetails(fmt.Sprintf("%s from tid %d", name, cur.TID)))
	}
	if cur.Process != nil {
		cur.Process.Profile.Inc(domain.ProfileSyscallUseIPC)
	}
	ec.TCB().BeginSyscall(name)
	s.logger.Debug("---- "+name, "tid", cur.TID, "returning", code)
}

// finish relocates to the exit region and runs the process exit sequence
// there. profile names the interval counter for the syscall, if any.
func (s *Syscalls) finish(ctx context.Context, ec *domain.ExecContext, cur *domain.Thread, code, termSignal int, profile string) {
	pid := cur.TGID
	if cur.Process != nil {
		pid = cur.Process.PID
	}
	ctx = logger.WithThread(ctx, cur.TID, pid)

	s.relocator.RelocateAndFinish(ec, code, func(errorCode int) {
		s.seq.TerminateProcess(ctx, cur, errorCode, termSignal)
		if profile != "" && cur.Process != nil {
			cur.Process.Profile.Interval(profile, ec.TCB().EnterTime)
		}
		s.host.ThreadExit()
	})
}
