package domain

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// ExitStackSize is the size of the private stack a thread switches to before
// its final teardown.
const ExitStackSize = 4096

// FatalExitCode is the process exit code used when resource release fails on
// the termination path.
const FatalExitCode = 255

// HandleMap is a thread's handle table. Its contents belong to the handle
// subsystem; the exit path only transfers and releases it.
type HandleMap struct {
	ID uint64
}

// Handle is an open file handle, such as a thread's executable.
type Handle struct {
	Path string
}

// Owned is the set of shared resources a thread gives up when it dies. It is
// moved out of the thread record under the thread lock and released after
// the lock is dropped.
type Owned struct {
	HandleMap     *HandleMap
	Exec          *Handle
	RobustList    uintptr
	ClearChildTID uintptr
}

// Empty reports whether nothing is left to release.
func (o Owned) Empty() bool {
	return o.HandleMap == nil && o.Exec == nil && o.RobustList == 0 && o.ClearChildTID == 0
}

// ThreadConfig holds the fields of a new thread record.
type ThreadConfig struct {
	TID  int32
	PPID int32
	TGID int32
	UID  int32

	Process *Process
	Parent  *Thread

	InVM     bool
	Internal bool

	HandleMap     *HandleMap
	Exec          *Handle
	RobustList    uintptr
	ClearChildTID uintptr
}

// Thread is the LibOS record of one thread.
//
// The fields below mu may only be touched through a Guard obtained from
// Lock, or through the accessors that take the lock themselves.
type Thread struct {
	TID  int32
	PPID int32
	TGID int32
	UID  int32

	// InVM marks a thread whose parent process is reachable only by message.
	InVM bool
	// Internal marks LibOS helper threads, which are never reaped externally.
	Internal bool

	Process *Process

	// ExitEvent is set once the thread has fully exited.
	ExitEvent Latch
	// ChildExitEvent is pulsed whenever a child of this thread exits.
	ChildExitEvent Pulse
	// SignalEvent is pulsed when a signal is queued for this thread.
	SignalEvent Pulse
	// HostExited is set once the host thread backing this record is gone.
	HostExited Latch

	refs       atomic.Int32
	remoteSent atomic.Bool

	mu             sync.Mutex
	alive          bool
	counted        bool
	exitCode       int
	termSignal     int
	owned          Owned
	parent         *Thread
	dummy          *Thread
	children       []*Thread
	exitedChildren []*Thread
	pending        []Siginfo
	tcb            *TCB

	exitTCB   TCB
	exitStack [ExitStackSize]byte
}

// NewThread creates a live thread record and links it under its parent.
func NewThread(cfg ThreadConfig) *Thread {
	t := &Thread{
		TID:      cfg.TID,
		PPID:     cfg.PPID,
		TGID:     cfg.TGID,
		UID:      cfg.UID,
		InVM:     cfg.InVM,
		Internal: cfg.Internal,
		Process:  cfg.Process,
		alive:    true,
		parent:   cfg.Parent,
		owned: Owned{
			HandleMap:     cfg.HandleMap,
			Exec:          cfg.Exec,
			RobustList:    cfg.RobustList,
			ClearChildTID: cfg.ClearChildTID,
		},
	}
	t.refs.Store(1)

	if !t.Internal && t.Process != nil {
		t.counted = true
		t.Process.attach()
	}
	if p := cfg.Parent; p != nil {
		if t.PPID == 0 {
			t.PPID = p.TID
		}
		p.mu.Lock()
		p.children = append(p.children, t)
		p.mu.Unlock()
	}
	return t
}

// NewDummy creates a placeholder record for an identity that is about to be
// retired in favor of successor. Placeholders do not count as live threads
// of the process.
func NewDummy(cfg ThreadConfig, successor *Thread) *Thread {
	cfg.Process = nil
	t := NewThread(cfg)
	t.dummy = successor
	return t
}

// IsDummy reports whether t is a placeholder.
func (t *Thread) IsDummy() bool {
	return t.Successor() != nil
}

// Successor returns the thread a placeholder hands off to, or nil.
func (t *Thread) Successor() *Thread {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dummy
}

// IsAlive reports whether the thread has not yet been terminated.
func (t *Thread) IsAlive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alive
}

// ClaimRemoteNotice reports whether the caller is the first to send the
// child-exit message for t. It returns true at most once per record.
func (t *Thread) ClaimRemoteNotice() bool {
	return t.remoteSent.CompareAndSwap(false, true)
}

// ExitStatus returns the recorded exit code and terminating signal.
func (t *Thread) ExitStatus() (code, termSignal int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitCode, t.termSignal
}

// SetExitStatus records the exit code and terminating signal.
func (t *Thread) SetExitStatus(code, termSignal int) {
	t.mu.Lock()
	t.exitCode = code
	t.termSignal = termSignal
	t.mu.Unlock()
}

// SetTermSignal records only the terminating signal.
func (t *Thread) SetTermSignal(sig int) {
	t.mu.Lock()
	t.termSignal = sig
	t.mu.Unlock()
}

// Parent returns the local parent record, if any.
func (t *Thread) Parent() *Thread {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.parent
}

// Children returns a snapshot of the live children list.
func (t *Thread) Children() []*Thread {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Thread(nil), t.children...)
}

// ExitedChildren returns a snapshot of the exited children list.
func (t *Thread) ExitedChildren() []*Thread {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Thread(nil), t.exitedChildren...)
}

// ReapExited removes an exited child by TID. It is used by wait(2)-style
// reapers outside the termination path.
func (t *Thread) ReapExited(tid int32) *Thread {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, c := range t.exitedChildren {
		if c.TID == tid {
			t.exitedChildren = append(t.exitedChildren[:i], t.exitedChildren[i+1:]...)
			return c
		}
	}
	return nil
}

// Pending returns a snapshot of queued signals.
func (t *Thread) Pending() []Siginfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Siginfo(nil), t.pending...)
}

// HasPending reports whether signo is queued.
func (t *Thread) HasPending(signo int) bool {
	g := t.Lock()
	defer g.Unlock()
	return g.HasPending(signo)
}

// TCB returns the control block the thread currently runs on.
func (t *Thread) TCB() *TCB {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tcb
}

// Owned returns a copy of the resources still held by the thread.
func (t *Thread) Owned() Owned {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.owned
}

// ExitStack returns the bounds of the private exit stack.
func (t *Thread) ExitStack() (base, size uintptr) {
	return uintptr(unsafe.Pointer(&t.exitStack[0])), uintptr(len(t.exitStack))
}

// ExitTCB returns the private control block used during final teardown.
func (t *Thread) ExitTCB() *TCB {
	return &t.exitTCB
}

// Get takes a reference on the record.
func (t *Thread) Get() {
	t.refs.Add(1)
}

// Put drops a reference and reports whether it was the last one.
func (t *Thread) Put() bool {
	return t.refs.Add(-1) == 0
}

// Refs returns the current reference count.
func (t *Thread) Refs() int32 {
	return t.refs.Load()
}
