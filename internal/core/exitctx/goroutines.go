package exitctx

import (
	"runtime"

	"github.com/yndnr/libos-go/internal/core/domain"
)

// Goroutines is the Platform for goroutine-backed LibOS threads.
//
// The entry runs on a fresh goroutine, with its own Go-managed stack, locked
// to an OS thread. The calling goroutine waits for it and then exits, so
// nothing continues on the original stack.
type Goroutines struct{}

// Switch runs entry on a new goroutine and ends the caller once it is done.
func (Goroutines) Switch(_ uintptr, _ *domain.TCB, entry func()) {
	done := make(chan struct{})
	go func() {
		// Never unlocked: the OS thread goes away with the goroutine.
		runtime.LockOSThread()
		defer close(done)
		entry()
	}()
	<-done
	runtime.Goexit()
}
