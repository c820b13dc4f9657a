// Package exitctx moves a terminating thread onto its private exit stack and
// control block before the final teardown runs.
//
// Once the thread record says the thread is dead, its original stack and TLS
// may be reclaimed by others. Everything that runs after that point executes
// on memory owned by the thread record itself.
package exitctx

import (
	"github.com/yndnr/libos-go/internal/core/domain"
	"github.com/yndnr/libos-go/internal/host"
	"github.com/yndnr/libos-go/internal/telemetry/logger"
)

// stackAlign is the required alignment of the exit stack top.
const stackAlign = 16

// Platform installs a stack and control block and runs entry on them.
// Switch never returns to its caller.
type Platform interface {
	Switch(stackTop uintptr, tcb *domain.TCB, entry func())
}

// Switcher relocates the calling thread to its exit region.
type Switcher struct {
	platform Platform
	host     host.Host
	logger   logger.Logger
}

// NewSwitcher creates a Switcher.
func NewSwitcher(platform Platform, h host.Host, log logger.Logger) *Switcher {
	if log == nil {
		log = logger.Default()
	}
	return &Switcher{
		platform: platform,
		host:     h,
		logger:   log.With("component", "exitctx"),
	}
}

// StackTop returns the aligned top of a stack region, leaving one aligned
// slot of headroom.
func StackTop(base, size uintptr) uintptr {
	return (base + size - stackAlign) &^ (stackAlign - 1)
}

// RelocateAndFinish switches ec's thread onto its private exit stack and
// TCB, then runs continuation(errorCode) there. If the continuation returns,
// the host thread is terminated. It never returns.
func (s *Switcher) RelocateAndFinish(ec *domain.ExecContext, errorCode int, continuation func(errorCode int)) {
	cur := ec.Current()
	base, size := cur.ExitStack()
	top := StackTop(base, size)

	// The copy keeps nesting depth and profiling marks of the running TCB.
	tcb := cur.ExitTCB()
	tcb.CopyFrom(ec.TCB())
	tcb.Canary = domain.TLSCanary

	g := cur.Lock()
	g.SetTCB(tcb)
	g.Unlock()
	ec.Install(tcb)

	s.logger.Debug("switching to exit stack", "tid", cur.TID, "stack_top", uint64(top))

	s.platform.Switch(top, tcb, func() {
		continuation(errorCode)
		s.host.ThreadExit()
	})
	panic("exitctx: platform switch returned")
}
