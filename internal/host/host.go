// Package host provides the host-level termination primitives the LibOS
// exit path ends in.
package host

import (
	"os"
	"runtime"
	"sync"
	"sync/atomic"
)

// Host terminates the calling host thread or the whole host process.
// Neither method returns to its caller.
type Host interface {
	ThreadExit()
	ProcessExit(code int)
}

// Goroutine is a Host for LibOS threads backed by goroutines. ThreadExit
// ends the calling goroutine. ProcessExit records the exit code, closes
// Done and ends the calling goroutine; the rest of the Go process keeps
// running, which lets simulations and tests observe the outcome.
//
// Both methods must be called from a goroutine the caller is willing to
// lose, never from a test's main goroutine.
type Goroutine struct {
	threadExits  atomic.Int64
	processExits atomic.Int64

	once sync.Once
	code int
	done chan struct{}
}

// NewGoroutine creates a goroutine-backed host.
func NewGoroutine() *Goroutine {
	return &Goroutine{done: make(chan struct{})}
}

// ThreadExit ends the calling goroutine.
func (h *Goroutine) ThreadExit() {
	h.threadExits.Add(1)
	runtime.Goexit()
}

// ProcessExit records code on the first call and ends the calling goroutine.
func (h *Goroutine) ProcessExit(code int) {
	h.processExits.Add(1)
	h.once.Do(func() {
		h.code = code
		close(h.done)
	})
	runtime.Goexit()
}

// Done is closed by the first ProcessExit.
func (h *Goroutine) Done() <-chan struct{} {
	return h.done
}

// ExitCode returns the recorded process exit code and whether ProcessExit
// has been called.
func (h *Goroutine) ExitCode() (int, bool) {
	select {
	case <-h.done:
		return h.code, true
	default:
		return 0, false
	}
}

// ThreadExits returns the number of ThreadExit calls.
func (h *Goroutine) ThreadExits() int64 {
	return h.threadExits.Load()
}

// ProcessExits returns the number of ProcessExit calls.
func (h *Goroutine) ProcessExits() int64 {
	return h.processExits.Load()
}

// OS is the Host of a real process. ThreadExit ends the calling goroutine,
// which also ends its OS thread when the goroutine is locked to it.
type OS struct{}

// ThreadExit ends the calling goroutine.
func (OS) ThreadExit() {
	runtime.Goexit()
}

// ProcessExit exits the process with code.
func (OS) ProcessExit(code int) {
	os.Exit(code)
}
