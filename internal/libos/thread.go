package libos

import (
	"context"
	"fmt"

	"github.com/yndnr/libos-go/internal/core/domain"
	"github.com/yndnr/libos-go/internal/core/exit"
	"github.com/yndnr/libos-go/internal/telemetry/logger"
)

// futexBase is where the simulated per-thread futex words live.
const futexBase uintptr = 0x7f0000000000

// ThreadSpec describes a thread to create.
type ThreadSpec struct {
	// Parent is the local parent. Without one, PPID names the remote parent.
	Parent *domain.Thread
	PPID   int32
	UID    int32
	// InVM marks a thread whose parent process is reachable by message.
	InVM bool
	// Exec is the executable path. Empty leaves the thread without an exec
	// handle.
	Exec string
}

// NewThread creates a thread of this process and registers it. The thread
// owns a fresh handle table, its robust futex list and a clear_child_tid
// word.
func (k *Kernel) NewThread(spec ThreadSpec) *domain.Thread {
	return k.newThread(k.lastTID.Add(1), spec)
}

func (k *Kernel) newThread(tid int32, spec ThreadSpec) *domain.Thread {
	cfg := domain.ThreadConfig{
		TID:           tid,
		PPID:          spec.PPID,
		TGID:          k.pid,
		UID:           spec.UID,
		Process:       k.proc,
		Parent:        spec.Parent,
		InVM:          spec.InVM,
		HandleMap:     &domain.HandleMap{ID: k.lastMap.Add(1)},
		RobustList:    futexBase + uintptr(tid)<<12,
		ClearChildTID: futexBase + uintptr(tid)<<12 + 8,
	}
	if spec.Exec != "" {
		cfg.Exec = &domain.Handle{Path: spec.Exec}
	}
	t := domain.NewThread(cfg)
	k.table.Add(t)
	return t
}

// AdoptRemoteChild records a child living in process childPID under the
// local parent, so that its exit message can be applied here. The proxy is
// not a live thread of this process.
func (k *Kernel) AdoptRemoteChild(parent *domain.Thread, childPID, childTID int32) (*domain.Thread, error) {
	t := domain.NewThread(domain.ThreadConfig{
		TID:    childTID,
		TGID:   childPID,
		UID:    parent.UID,
		Parent: parent,
		InVM:   true,
	})
	if !k.table.Add(t) {
		return nil, domain.ErrThreadExists.WithDetails(fmt.Sprintf("tid %d", childTID))
	}
	return t, nil
}

// Body is the code a thread runs.
type Body func(ctx context.Context, ec *domain.ExecContext)

// Go starts t on a new goroutine running body. A body that returns exits
// the thread with code 0.
func (k *Kernel) Go(t *domain.Thread, body Body) {
	go func() {
		defer t.HostExited.Set()

		ec := domain.NewExecContext(t)
		ctx := logger.WithLogger(context.Background(), k.logger)
		ctx = logger.WithThread(ctx, t.TID, k.pid)
		logger.L(ctx).Debug("thread started")

		body(ctx, ec)
		k.syscalls.Exit(ctx, ec, 0)
	}()
}

// Exit terminates the calling thread. It never returns.
func (k *Kernel) Exit(ctx context.Context, ec *domain.ExecContext, code int) {
	k.syscalls.Exit(ctx, ec, code)
}

// ExitGroup terminates every thread of the process. It never returns.
func (k *Kernel) ExitGroup(ctx context.Context, ec *domain.ExecContext, code int) {
	k.syscalls.ExitGroup(ctx, ec, code)
}

// TerminateThread terminates t from outside its own host thread, as the
// reaper of a thread that can no longer run would. Terminating a dead
// thread is a no-op.
func (k *Kernel) TerminateThread(ctx context.Context, t *domain.Thread) error {
	return k.coord.TerminateThread(ctx, t, true)
}

// Kill queues a fatal signal on every live thread but from, as a kill(2)
// of the whole group would. from may be 0 for a kill from outside.
func (k *Kernel) Kill(from int32) int {
	return k.signals.KillGroup(k.pid, from, domain.SIGKILL, false)
}

// Park blocks the calling thread until a fatal signal is queued for it and
// then exits by that signal. It returns only when ctx ends.
func (k *Kernel) Park(ctx context.Context, ec *domain.ExecContext) error {
	cur := ec.Current()
	for {
		if exit.PendingFatal(cur) {
			k.syscalls.ExitBySignal(ctx, ec, domain.SIGKILL)
		}
		select {
		case <-cur.SignalEvent.C():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WaitChild blocks t until a child has exited, then reaps it. It returns
// the child record and its wait status.
func (k *Kernel) WaitChild(ctx context.Context, t *domain.Thread) (*domain.Thread, int, error) {
	for {
		for _, c := range t.ExitedChildren() {
			if child := t.ReapExited(c.TID); child != nil {
				code, _ := child.ExitStatus()
				return child, domain.ChildStatus(code), nil
			}
		}
		select {
		case <-t.ChildExitEvent.C():
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
}
