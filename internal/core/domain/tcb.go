package domain

import (
	"sync"
	"time"
)

// TLSCanary marks a TCB as initialized.
const TLSCanary uint64 = 0xdeadbeef

// TCB is the per-thread control block the LibOS keeps in thread-local
// storage.
type TCB struct {
	Canary uint64
	TID    int32
	Thread *Thread

	// Depth counts nested LibOS calls on this thread.
	Depth int32

	// Syscall profiling marks.
	Syscall   string
	EnterTime time.Time
}

// CopyFrom copies every field of src into t.
func (t *TCB) CopyFrom(src *TCB) {
	*t = *src
}

// BeginSyscall records the syscall being measured.
func (t *TCB) BeginSyscall(name string) {
	t.Syscall = name
	t.EnterTime = time.Now()
}

// ExecContext is the execution context of one running host thread: it holds
// the active TCB and, through it, the effective thread identity.
type ExecContext struct {
	mu  sync.Mutex
	tcb *TCB
}

// NewExecContext creates an execution context running as t with a fresh TCB.
func NewExecContext(t *Thread) *ExecContext {
	tcb := &TCB{
		Canary: TLSCanary,
		TID:    t.TID,
		Thread: t,
	}
	g := t.Lock()
	g.SetTCB(tcb)
	g.Unlock()
	return &ExecContext{tcb: tcb}
}

// TCB returns the active control block.
func (ec *ExecContext) TCB() *TCB {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.tcb
}

// Install makes tcb the active control block.
func (ec *ExecContext) Install(tcb *TCB) {
	ec.mu.Lock()
	ec.tcb = tcb
	ec.mu.Unlock()
}

// Current returns the thread this context is running as.
func (ec *ExecContext) Current() *Thread {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.tcb == nil {
		return nil
	}
	return ec.tcb.Thread
}

// SwitchIdentity continues this context under t.
func (ec *ExecContext) SwitchIdentity(t *Thread) {
	ec.mu.Lock()
	tcb := ec.tcb
	tcb.Thread = t
	tcb.TID = t.TID
	ec.mu.Unlock()

	g := t.Lock()
	g.SetTCB(tcb)
	g.Unlock()
}
