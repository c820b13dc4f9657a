package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/yndnr/libos-go/internal/telemetry/logger"
)

// Hook is a named cleanup step.
type Hook struct {
	Name string
	Fn   func(context.Context) error
}

// Handler runs its hooks once, newest first, under one shared deadline.
type Handler struct {
	timeout time.Duration
	log     logger.Logger

	mu    sync.Mutex
	hooks []Hook

	once sync.Once
	err  error
	done chan struct{}
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger logs each hook as it runs.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// NewHandler returns a Handler whose hooks together get at most timeout.
func NewHandler(timeout time.Duration, opts ...Option) *Handler {
	h := &Handler{timeout: timeout, done: make(chan struct{})}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logger.Default()
	}
	return h
}

// OnShutdown adds a hook. Hooks added after Run has started are not run.
func (h *Handler) OnShutdown(name string, fn func(context.Context) error) {
	h.mu.Lock()
	h.hooks = append(h.hooks, Hook{Name: name, Fn: fn})
	h.mu.Unlock()
}

// Hooks lists the registered hooks in the order Run calls them.
func (h *Handler) Hooks() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.hooks))
	for i := len(h.hooks) - 1; i >= 0; i-- {
		names = append(names, h.hooks[i].Name)
	}
	return names
}

// Run calls every hook, newest first, even when some fail, and returns
// their errors joined. A panicking hook counts as failed. Calls after the
// first return the first result.
func (h *Handler) Run(ctx context.Context) error {
	h.once.Do(func() {
		defer close(h.done)
		ctx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()

		h.mu.Lock()
		hooks := append([]Hook(nil), h.hooks...)
		h.mu.Unlock()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			if err := h.call(ctx, hooks[i]); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", hooks[i].Name, err))
			}
		}
		h.err = errors.Join(errs...)
	})
	return h.err
}

func (h *Handler) call(ctx context.Context, hk Hook) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			h.log.Warn("shutdown hook failed", "hook", hk.Name, "error", err)
			return
		}
		h.log.Debug("shutdown hook done", "hook", hk.Name, "took", time.Since(start))
	}()
	return hk.Fn(ctx)
}

// Wait blocks until SIGINT, SIGTERM or the end of ctx, then calls Run with
// a context that is no longer cancelled.
func (h *Handler) Wait(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	<-sigCtx.Done()
	stop()
	return h.Run(context.WithoutCancel(ctx))
}

// Done is closed once Run has finished.
func (h *Handler) Done() <-chan struct{} { return h.done }
