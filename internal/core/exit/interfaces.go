package exit

import (
	"context"

	"github.com/yndnr/libos-go/internal/core/domain"
)

// RemoteNotifier sends a child-exit notification to the process holding the
// parent. Delivery is best-effort and must not block.
type RemoteNotifier interface {
	SendChildExit(ctx context.Context, dest, childTID int32, exitCode, termSignal int) error
}

// SignalDelivery queues signals on threads.
type SignalDelivery interface {
	// Enqueue queues info on the thread held by g.
	Enqueue(g *domain.Guard, info domain.Siginfo)
	// KillGroup queues sig on every other live thread of tgid.
	KillGroup(tgid, except int32, sig int, force bool) int
}

// HandleReleaser drops references on handle tables and handles.
type HandleReleaser interface {
	PutHandleMap(m *domain.HandleMap) error
	PutHandle(h *domain.Handle) error
}

// FutexReleaser runs the futex side effects of a thread's death.
type FutexReleaser interface {
	ReleaseRobustList(t *domain.Thread, head uintptr) error
	ReleaseClearChildTID(t *domain.Thread, addr uintptr) error
}

// Helpers stops the LibOS helper threads of the process.
type Helpers interface {
	// TerminateAsyncHelper stops the async helper and returns its thread
	// record once it has acknowledged, or nil if it was not running.
	TerminateAsyncHelper() *domain.Thread
	// ExitWithIPCHelper stops the IPC helper. It returns the helper's thread
	// record, or nil if the helper keeps running, together with the number of
	// outstanding IPC obligations. With handoff set and obligations
	// outstanding, the helper runs final after the last one completes.
	ExitWithIPCHelper(handoff bool, final func()) (*domain.Thread, int)
}

// Reclaimer frees a thread record.
type Reclaimer interface {
	Put(t *domain.Thread)
}

// Cleaner runs the process-wide cleanup before the host process exits.
type Cleaner interface {
	Clean(ctx context.Context, proc *domain.Process) error
}
