package helper

import (
	"sync"
	"time"

	"github.com/yndnr/libos-go/internal/core/domain"
	"github.com/yndnr/libos-go/internal/telemetry/logger"
)

// Registrar records helper threads so they can be looked up and reclaimed.
type Registrar interface {
	Add(t *domain.Thread) bool
}

// Identity names the thread record a helper runs on.
type Identity struct {
	TID     int32
	TGID    int32
	Process *domain.Process
}

func (id Identity) newThread() *domain.Thread {
	return domain.NewThread(domain.ThreadConfig{
		TID:      id.TID,
		PPID:     id.TGID,
		TGID:     id.TGID,
		Process:  id.Process,
		Internal: true,
	})
}

type timerRequest struct {
	delay time.Duration
	fn    func()
}

// Async fires callbacks after a delay on a dedicated helper thread. The
// thread starts with the first request.
type Async struct {
	id     Identity
	reg    Registrar
	logger logger.Logger

	mu      sync.Mutex
	thread  *domain.Thread
	reqs    chan timerRequest
	quit    chan struct{}
	acked   chan struct{}
	stopped bool
}

// NewAsync creates an async helper. reg may be nil.
func NewAsync(id Identity, reg Registrar, log logger.Logger) *Async {
	if log == nil {
		log = logger.Default()
	}
	return &Async{
		id:     id,
		reg:    reg,
		logger: log.With("component", "async_helper", "tid", id.TID),
	}
}

// After schedules fn to run on the helper thread once d has elapsed. It
// returns ErrHelperStopped after Terminate.
func (a *Async) After(d time.Duration, fn func()) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return domain.ErrHelperStopped
	}
	if a.thread == nil {
		a.startLocked()
	}
	a.reqs <- timerRequest{delay: d, fn: fn}
	return nil
}

// Thread returns the running helper's record, or nil.
func (a *Async) Thread() *domain.Thread {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.thread
}

// Terminate stops the helper and returns its thread record once the helper
// has acknowledged. Pending callbacks are dropped. It returns nil if the
// helper is not running.
func (a *Async) Terminate() *domain.Thread {
	a.mu.Lock()
	t, quit, acked := a.thread, a.quit, a.acked
	a.thread = nil
	a.stopped = true
	a.mu.Unlock()

	if t == nil {
		return nil
	}
	close(quit)
	<-acked
	a.logger.Debug("async helper stopped")
	return t
}

func (a *Async) startLocked() {
	t := a.id.newThread()
	if a.reg != nil {
		a.reg.Add(t)
	}
	a.thread = t
	a.reqs = make(chan timerRequest, 16)
	a.quit = make(chan struct{})
	a.acked = make(chan struct{})
	go a.loop(t, a.reqs, a.quit, a.acked)
	a.logger.Debug("async helper started")
}

func (a *Async) loop(t *domain.Thread, reqs <-chan timerRequest, quit <-chan struct{}, acked chan<- struct{}) {
	defer t.HostExited.Set()

	fired := make(chan func())
	var timers []*time.Timer
	for {
		select {
		case req := <-reqs:
			fn := req.fn
			timers = append(timers, time.AfterFunc(req.delay, func() {
				select {
				case fired <- fn:
				case <-quit:
				}
			}))
		case fn := <-fired:
			fn()
		case <-quit:
			for _, tm := range timers {
				tm.Stop()
			}
			markDead(t)
			close(acked)
			return
		}
	}
}
