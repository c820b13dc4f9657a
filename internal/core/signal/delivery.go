// Package signal queues signals on LibOS thread records.
//
// The queueing engine itself is out of scope for the exit path. Delivery
// covers the two operations termination needs: SIGCHLD to a locked parent,
// and a group-wide kill that wakes every sibling.
package signal

import (
	"github.com/yndnr/libos-go/internal/core/domain"
	"github.com/yndnr/libos-go/internal/core/threadtable"
	"github.com/yndnr/libos-go/internal/telemetry/logger"
)

// Delivery queues signals on threads registered in a thread table.
type Delivery struct {
	table  *threadtable.Table
	logger logger.Logger
}

// NewDelivery creates a Delivery over table.
func NewDelivery(table *threadtable.Table, log logger.Logger) *Delivery {
	if log == nil {
		log = logger.Default()
	}
	return &Delivery{
		table:  table,
		logger: log.With("component", "signal"),
	}
}

// Enqueue queues info on the thread held by g and wakes it. The caller keeps
// the lock.
func (d *Delivery) Enqueue(g *domain.Guard, info domain.Siginfo) {
	g.AppendSignal(info)
	g.Thread().SignalEvent.Set()
}

// KillGroup queues sig on every live thread of tgid except the sender and
// helper threads, and returns how many threads were signalled. Unless force
// is set, threads that already have sig pending are skipped.
func (d *Delivery) KillGroup(tgid, except int32, sig int, force bool) int {
	sent := 0
	for _, t := range d.table.Group(tgid) {
		if t.TID == except || t.Internal {
			continue
		}
		g := t.Lock()
		if !g.Alive() {
			g.Unlock()
			continue
		}
		if !force && g.HasPending(sig) {
			g.Unlock()
			continue
		}
		d.Enqueue(g, domain.Siginfo{Signo: sig, PID: except})
		g.Unlock()
		sent++
	}
	d.logger.Debug("group kill", "tgid", tgid, "sender", except, "signo", sig, "signalled", sent)
	return sent
}
