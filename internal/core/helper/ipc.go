package helper

import (
	"context"
	"sync"

	"github.com/yndnr/libos-go/internal/core/domain"
	"github.com/yndnr/libos-go/internal/ipc"
	"github.com/yndnr/libos-go/internal/telemetry/logger"
)

// Dispatcher applies inbound child-exit messages.
type Dispatcher interface {
	Apply(ctx context.Context, msg ipc.ChildExit) error
}

// IPC applies inbound messages on a dedicated helper thread and counts the
// IPC obligations of the process: messages queued or being applied, plus
// anything bracketed by Begin and End. The thread starts with the first
// obligation.
type IPC struct {
	id       Identity
	reg      Registrar
	dispatch Dispatcher
	logger   logger.Logger

	mu          sync.Mutex
	thread      *domain.Thread
	inbox       chan ipc.ChildExit
	quit        chan struct{}
	acked       chan struct{}
	runFinal    chan func()
	outstanding int
	final       func()
	stopped     bool
}

// NewIPC creates an IPC helper that hands messages to dispatch. reg may be
// nil.
func NewIPC(id Identity, reg Registrar, dispatch Dispatcher, log logger.Logger) *IPC {
	if log == nil {
		log = logger.Default()
	}
	return &IPC{
		id:       id,
		reg:      reg,
		dispatch: dispatch,
		logger:   log.With("component", "ipc_helper", "tid", id.TID),
	}
}

// Deliver queues msg for the helper thread. It matches ipc.Handler.
// Messages arriving after the helper stopped are dropped.
func (h *IPC) Deliver(ctx context.Context, msg ipc.ChildExit) {
	h.mu.Lock()
	if !h.beginLocked() {
		h.mu.Unlock()
		h.logger.Debug("ipc helper stopped, message dropped", "child", msg.ChildTID)
		return
	}
	inbox, quit := h.inbox, h.quit
	h.mu.Unlock()

	select {
	case inbox <- msg:
	case <-quit:
		h.logger.Debug("ipc helper stopped, message dropped", "child", msg.ChildTID)
	case <-ctx.Done():
		h.End()
	}
}

// Begin records an outstanding obligation. It returns ErrHelperStopped once
// the helper is gone.
func (h *IPC) Begin() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.beginLocked() {
		return domain.ErrHelperStopped
	}
	return nil
}

// End completes an obligation. Completing the last one after a hand-off
// runs the pending final action on the helper thread.
func (h *IPC) End() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.outstanding == 0 {
		return
	}
	h.outstanding--
	if h.outstanding == 0 && h.final != nil {
		h.runFinal <- h.final
		h.final = nil
	}
}

// Outstanding returns the number of open obligations.
func (h *IPC) Outstanding() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outstanding
}

// Thread returns the running helper's record, or nil.
func (h *IPC) Thread() *domain.Thread {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.thread
}

// ExitWithIPCHelper stops the helper. With handoff set and obligations
// outstanding, the helper keeps running, runs final after the last one
// completes and a nil thread is returned. Otherwise the helper is stopped and
// its record returned once it has acknowledged, or nil if it never ran.
func (h *IPC) ExitWithIPCHelper(handoff bool, final func()) (*domain.Thread, int) {
	h.mu.Lock()
	n := h.outstanding
	if handoff && n > 0 && h.thread != nil {
		h.final = final
		h.mu.Unlock()
		h.logger.Debug("ipc helper takes over process exit", "outstanding", n)
		return nil, n
	}

	t, quit, acked := h.thread, h.quit, h.acked
	h.thread = nil
	h.stopped = true
	h.mu.Unlock()

	if t == nil {
		return nil, n
	}
	close(quit)
	<-acked
	h.logger.Debug("ipc helper stopped", "outstanding", n)
	return t, n
}

func (h *IPC) beginLocked() bool {
	if h.stopped {
		return false
	}
	if h.thread == nil {
		h.startLocked()
	}
	h.outstanding++
	return true
}

func (h *IPC) startLocked() {
	t := h.id.newThread()
	if h.reg != nil {
		h.reg.Add(t)
	}
	h.thread = t
	h.inbox = make(chan ipc.ChildExit, 64)
	h.quit = make(chan struct{})
	h.acked = make(chan struct{})
	h.runFinal = make(chan func(), 1)
	go h.loop(t, h.inbox, h.quit, h.acked, h.runFinal)
	h.logger.Debug("ipc helper started")
}

func (h *IPC) loop(t *domain.Thread, inbox <-chan ipc.ChildExit, quit <-chan struct{}, acked chan<- struct{}, runFinal <-chan func()) {
	defer t.HostExited.Set()

	pid := t.TGID
	if t.Process != nil {
		pid = t.Process.PID
	}
	ctx := logger.WithThread(context.Background(), t.TID, pid)

	for {
		select {
		case msg := <-inbox:
			if err := h.dispatch.Apply(ctx, msg); err != nil {
				h.logger.Warn("apply child exit failed", "child", msg.ChildTID, "error", err)
			}
			h.End()
		case <-quit:
			markDead(t)
			close(acked)
			return
		case final := <-runFinal:
			h.mu.Lock()
			h.thread = nil
			h.stopped = true
			h.mu.Unlock()
			markDead(t)
			final()
			return
		}
	}
}

func markDead(t *domain.Thread) {
	g := t.Lock()
	g.MarkDead()
	g.Unlock()
}
