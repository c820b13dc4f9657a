package domain

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ExitState is the group-exit state of a process.
//
// State machine (one flow per process, driven by the last live thread):
//
//	StateRunning → StateLastThreadDetected
//	StateLastThreadDetected → StateHelpersDraining
//	StateHelpersDraining → StateCleanupThenTerminate
//	StateHelpersDraining → StateTerminateOnly
//
// Transitions use compare-and-swap so that exactly one thread drives them.
type ExitState int32

const (
	StateRunning ExitState = iota
	StateLastThreadDetected
	StateHelpersDraining
	StateCleanupThenTerminate
	StateTerminateOnly
)

func (s ExitState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateLastThreadDetected:
		return "last_thread_detected"
	case StateHelpersDraining:
		return "helpers_draining"
	case StateCleanupThenTerminate:
		return "cleanup_then_terminate"
	case StateTerminateOnly:
		return "terminate_only"
	default:
		return "unknown"
	}
}

// Process is the state shared by all threads of one thread group.
type Process struct {
	PID int32

	mu          sync.Mutex
	exitCode    int
	exitCodeSet bool

	// live counts threads that are alive and neither internal nor dummy.
	live  atomic.Int32
	state atomic.Int32

	Profile *Profile
}

// NewProcess creates the process-scoped state for a thread group.
func NewProcess(pid int32) *Process {
	return &Process{
		PID:     pid,
		Profile: NewProfile(),
	}
}

// SetExitCode records the group exit code. Only the first call wins; later
// calls return false and leave the value unchanged.
func (p *Process) SetExitCode(code int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exitCodeSet {
		return false
	}
	p.exitCode = code
	p.exitCodeSet = true
	return true
}

// ExitCode returns the group exit code and whether it has been set.
func (p *Process) ExitCode() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.exitCodeSet
}

// LiveThreads returns the number of live, externally visible threads.
func (p *Process) LiveThreads() int {
	return int(p.live.Load())
}

func (p *Process) attach() {
	p.live.Add(1)
}

func (p *Process) detach() int32 {
	return p.live.Add(-1)
}

// State returns the current exit state.
func (p *Process) State() ExitState {
	return ExitState(p.state.Load())
}

// Advance moves the exit state from one value to another and reports whether
// this caller performed the transition.
func (p *Process) Advance(from, to ExitState) bool {
	return p.state.CompareAndSwap(int32(from), int32(to))
}

// ClaimLastThread reports whether the caller is the thread that drives the
// group's final exit. It succeeds for at most one caller, and only once no
// live thread remains.
func (p *Process) ClaimLastThread() bool {
	if p.live.Load() != 0 {
		return false
	}
	return p.Advance(StateRunning, StateLastThreadDetected)
}

// Profile counter names.
const (
	ProfileSyscallUseIPC   = "syscall_use_ipc"
	ProfileSyscallExit     = "syscall_exit"
	ProfileSyscallExitGrp  = "syscall_exit_group"
	ProfileThreadExit      = "thread_exit"
	ProfileRemoteExitNotif = "remote_exit_notify"
)

// Profile holds process-wide profiling counters. Interval counters hold
// nanoseconds.
type Profile struct {
	mu       sync.Mutex
	counters map[string]uint64
}

// NewProfile returns an empty profile.
func NewProfile() *Profile {
	return &Profile{counters: make(map[string]uint64)}
}

// Inc increments an occurrence counter.
func (p *Profile) Inc(name string) {
	p.Add(name, 1)
}

// Add adds n to a counter.
func (p *Profile) Add(name string, n uint64) {
	p.mu.Lock()
	p.counters[name] += n
	p.mu.Unlock()
}

// Interval records the time elapsed since start under name.
func (p *Profile) Interval(name string, start time.Time) {
	if start.IsZero() {
		return
	}
	p.Add(name, uint64(time.Since(start).Nanoseconds()))
}

// Get returns the value of one counter.
func (p *Profile) Get(name string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters[name]
}

// Snapshot returns a copy of all counters.
func (p *Profile) Snapshot() map[string]uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]uint64, len(p.counters))
	for k, v := range p.counters {
		out[k] = v
	}
	return out
}

// Names returns the counter names in sorted order.
func (p *Profile) Names() []string {
	p.mu.Lock()
	names := make([]string, 0, len(p.counters))
	for k := range p.counters {
		names = append(names, k)
	}
	p.mu.Unlock()
	sort.Strings(names)
	return names
}
