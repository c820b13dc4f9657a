package exit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/libos-go/internal/core/domain"
	"github.com/yndnr/libos-go/internal/core/signal"
	"github.com/yndnr/libos-go/internal/core/threadtable"
	"github.com/yndnr/libos-go/internal/host"
	"github.com/yndnr/libos-go/internal/telemetry/metric"
)

type sentExit struct {
	dest, tid int32
	code, sig int
}

type fakeRemote struct {
	mu   sync.Mutex
	sent []sentExit
}

func (r *fakeRemote) SendChildExit(_ context.Context, dest, tid int32, code, sig int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentExit{dest, tid, code, sig})
	return nil
}

func (r *fakeRemote) Sent() []sentExit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentExit(nil), r.sent...)
}

type failingFutex struct{}

func (failingFutex) ReleaseRobustList(*domain.Thread, uintptr) error {
	return errors.New("robust list corrupted")
}

func (failingFutex) ReleaseClearChildTID(*domain.Thread, uintptr) error { return nil }

type fakeHelpers struct {
	mu          sync.Mutex
	async       *domain.Thread
	ipc         *domain.Thread
	outstanding int
	final       func()
	asyncCalls  int
	ipcCalls    int
}

func (h *fakeHelpers) TerminateAsyncHelper() *domain.Thread {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.asyncCalls++
	t := h.async
	h.async = nil
	return t
}

func (h *fakeHelpers) ExitWithIPCHelper(handoff bool, final func()) (*domain.Thread, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ipcCalls++
	if h.outstanding > 0 && handoff {
		h.final = final
		return nil, h.outstanding
	}
	t := h.ipc
	h.ipc = nil
	return t, 0
}

func (h *fakeHelpers) calls() (async, ipc int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.asyncCalls, h.ipcCalls
}

type countingCleaner struct {
	mu    sync.Mutex
	calls int
	codes []int
}

func (c *countingCleaner) Clean(_ context.Context, proc *domain.Process) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	code, _ := proc.ExitCode()
	c.codes = append(c.codes, code)
	return nil
}

func (c *countingCleaner) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type harness struct {
	host     *host.Goroutine
	remote   *fakeRemote
	releaser *ResourceReleaser
	table    *threadtable.Table
	signals  *signal.Delivery
	metrics  *metric.Registry
	helpers  *fakeHelpers
	cleaner  *countingCleaner
	coord    *Coordinator
	seq      *Sequencer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		host:     host.NewGoroutine(),
		remote:   &fakeRemote{},
		releaser: NewResourceReleaser(),
		table:    threadtable.New(),
		metrics:  metric.NewRegistry(),
		helpers:  &fakeHelpers{},
		cleaner:  &countingCleaner{},
	}
	h.signals = signal.NewDelivery(h.table, nil)
	h.coord = NewCoordinator(CoordinatorDeps{
		Remote:  h.remote,
		Signals: h.signals,
		Handles: h.releaser,
		Futex:   h.releaser,
		Host:    h.host,
		Metrics: h.metrics,
	})
	h.seq = NewSequencer(SequencerConfig{WaitHelperHostExit: true, HelperHostExitTimeout: time.Second}, SequencerDeps{
		Coordinator: h.coord,
		Helpers:     h.helpers,
		Reclaimer:   h.table,
		Cleaner:     h.cleaner,
		Host:        h.host,
		Metrics:     h.metrics,
	})
	return h
}

// spawn registers a thread with every owned resource set.
func (h *harness) spawn(proc *domain.Process, parent *domain.Thread, tid int32, inVM bool) *domain.Thread {
	tgid := int32(0)
	if proc != nil {
		tgid = proc.PID
	}
	th := domain.NewThread(domain.ThreadConfig{
		TID:           tid,
		PPID:          tid - 1,
		TGID:          tgid,
		UID:           1000,
		Process:       proc,
		Parent:        parent,
		InVM:          inVM,
		HandleMap:     &domain.HandleMap{ID: uint64(tid)},
		Exec:          &domain.Handle{Path: "/bin/app"},
		RobustList:    0x7f0000001000,
		ClearChildTID: 0x7f0000002000,
	})
	h.table.Add(th)
	return th
}

// run calls fn on a new goroutine and returns a channel closed when that
// goroutine ends, whether fn returned or the host ended it.
func run(fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	return done
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}
