package ipc

import (
	"context"
	"fmt"
	"sync"

	"github.com/yndnr/libos-go/internal/core/domain"
	"github.com/yndnr/libos-go/internal/telemetry/logger"
	"github.com/yndnr/libos-go/internal/telemetry/metric"
)

// Handler receives decoded messages. It must not block for long.
type Handler func(ctx context.Context, msg ChildExit)

// Loopback routes messages between LibOS processes living in one Go
// process. Each send is encoded, then decoded and delivered on its own
// goroutine.
type Loopback struct {
	mu       sync.RWMutex
	routes   map[int32]Handler
	inflight sync.WaitGroup
	metrics  *metric.Registry
	logger   logger.Logger
}

// NewLoopback creates an empty router.
func NewLoopback(m *metric.Registry, log logger.Logger) *Loopback {
	if m == nil {
		m = metric.NewRegistry()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Loopback{
		routes:  make(map[int32]Handler),
		metrics: m,
		logger:  log.With("component", "ipc", "transport", "loopback"),
	}
}

// Register routes messages addressed to pid to h.
func (l *Loopback) Register(pid int32, h Handler) {
	l.mu.Lock()
	l.routes[pid] = h
	l.mu.Unlock()
}

// Unregister removes the route for pid.
func (l *Loopback) Unregister(pid int32) {
	l.mu.Lock()
	delete(l.routes, pid)
	l.mu.Unlock()
}

// SendChildExit implements the exit path's RemoteNotifier.
func (l *Loopback) SendChildExit(ctx context.Context, dest, childTID int32, exitCode, termSignal int) error {
	l.mu.RLock()
	h, ok := l.routes[dest]
	l.mu.RUnlock()
	if !ok {
		l.metrics.IPCDropped.Inc()
		return domain.ErrUnknownPeer.WithDetails(fmt.Sprintf("pid %d", dest))
	}

	payload := ChildExit{Dest: dest, ChildTID: childTID, ExitCode: exitCode, TermSignal: termSignal}.Marshal()
	ctx = context.WithoutCancel(ctx)

	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		msg, err := Decode(payload)
		if err != nil {
			l.metrics.IPCDropped.Inc()
			l.logger.Warn("dropping malformed message", "dest", dest, "error", err)
			return
		}
		h(ctx, msg)
	}()
	return nil
}

// Wait blocks until every message sent so far has been handled.
func (l *Loopback) Wait() {
	l.inflight.Wait()
}
