package domain

import (
	"context"
	"sync"
	"sync/atomic"
)

// Latch is a one-shot event: once set it stays set. The zero value is ready
// to use.
type Latch struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

func (l *Latch) chLocked() chan struct{} {
	if l.ch == nil {
		l.ch = make(chan struct{})
	}
	return l.ch
}

// Set releases every current and future waiter. Extra calls are no-ops.
func (l *Latch) Set() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set {
		return
	}
	l.set = true
	close(l.chLocked())
}

// IsSet reports whether Set has been called.
func (l *Latch) IsSet() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.set
}

// Done returns a channel closed by Set.
func (l *Latch) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chLocked()
}

// Wait blocks until the latch is set or ctx ends.
func (l *Latch) Wait(ctx context.Context) error {
	select {
	case <-l.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pulse is an auto-reset event: each Set wakes at most one pending receive on
// C, and Count records every Set. The zero value is ready to use.
type Pulse struct {
	once  sync.Once
	ch    chan struct{}
	count atomic.Uint64
}

func (p *Pulse) c() chan struct{} {
	p.once.Do(func() {
		p.ch = make(chan struct{}, 1)
	})
	return p.ch
}

// Set signals the pulse without blocking.
func (p *Pulse) Set() {
	p.count.Add(1)
	select {
	case p.c() <- struct{}{}:
	default:
	}
}

// C returns the channel a waiter receives from.
func (p *Pulse) C() <-chan struct{} {
	return p.c()
}

// Count returns how many times Set was called.
func (p *Pulse) Count() uint64 {
	return p.count.Load()
}
