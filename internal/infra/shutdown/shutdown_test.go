package shutdown

import (
	"context"
	"errors"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestNewHandler(t *testing.T) {
	h := NewHandler(5 * time.Second)
	if h.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", h.timeout)
	}
	if len(h.Hooks()) != 0 {
		t.Errorf("Hooks() = %v, want none", h.Hooks())
	}
	select {
	case <-h.Done():
		t.Error("Done channel should not be closed initially")
	default:
	}
}

func orderedHooks(h *Handler) func() []int {
	var mu sync.Mutex
	order := make([]int, 0)
	for i := 1; i <= 3; i++ {
		id := i
		h.OnShutdown("hook", func(ctx context.Context) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		})
	}
	return func() []int {
		mu.Lock()
		defer mu.Unlock()
		return append([]int(nil), order...)
	}
}

func TestHandler_RunReverseOrderOnce(t *testing.T) {
	h := NewHandler(time.Second)
	order := orderedHooks(h)

	if err := h.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := h.Run(context.Background()); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	got := order()
	if len(got) != 3 || got[0] != 3 || got[1] != 2 || got[2] != 1 {
		t.Errorf("hooks called as %v, want [3 2 1]", got)
	}
	select {
	case <-h.Done():
	default:
		t.Error("Done channel should be closed after Run")
	}
}

func TestHandler_RunJoinsErrors(t *testing.T) {
	h := NewHandler(time.Second)
	errA := errors.New("flush failed")
	errB := errors.New("close failed")
	ran := 0

	h.OnShutdown("a", func(ctx context.Context) error { ran++; return errA })
	h.OnShutdown("ok", func(ctx context.Context) error { ran++; return nil })
	h.OnShutdown("b", func(ctx context.Context) error { ran++; return errB })

	err := h.Run(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Run() error = %v, want both hook errors", err)
	}
	if ran != 3 {
		t.Errorf("ran %d hooks, want 3", ran)
	}
}

func TestHandler_WaitContext(t *testing.T) {
	h := NewHandler(time.Second)
	order := orderedHooks(h)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not complete in time")
	}
	if len(order()) != 3 {
		t.Errorf("expected 3 hooks called, got %d", len(order()))
	}
}

func TestHandler_WaitSignal(t *testing.T) {
	h := NewHandler(time.Second)
	order := orderedHooks(h)

	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait(context.Background()) }()

	// Give Wait time to set up signal handler
	time.Sleep(50 * time.Millisecond)
	syscall.Kill(syscall.Getpid(), syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not complete in time")
	}
	if len(order()) != 3 {
		t.Errorf("expected 3 hooks called, got %d", len(order()))
	}
}

func TestHandler_ConcurrentOnShutdown(t *testing.T) {
	h := NewHandler(time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.OnShutdown("noop", func(ctx context.Context) error { return nil })
		}()
	}
	wg.Wait()

	if n := len(h.Hooks()); n != 10 {
		t.Errorf("expected 10 hooks, got %d", n)
	}
}

func TestHandler_Hooks(t *testing.T) {
	h := NewHandler(time.Second)
	for _, name := range []string{"profile-store", "ipc-gossip", "metrics-http"} {
		h.OnShutdown(name, func(context.Context) error { return nil })
	}
	got := h.Hooks()
	want := []string{"metrics-http", "ipc-gossip", "profile-store"}
	if len(got) != len(want) {
		t.Fatalf("Hooks() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Hooks()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestHandler_PanickingHook(t *testing.T) {
	h := NewHandler(time.Second)
	ran := false
	h.OnShutdown("after", func(context.Context) error { ran = true; return nil })
	h.OnShutdown("boom", func(context.Context) error { panic("double close") })

	err := h.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "boom: panic: double close") {
		t.Errorf("Run() error = %v, want the recovered panic", err)
	}
	if !ran {
		t.Error("hook after the panicking one did not run")
	}
}

func TestHandler_SharedDeadline(t *testing.T) {
	h := NewHandler(20 * time.Millisecond)
	h.OnShutdown("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	err := h.Run(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Run() ignored the timeout")
	}
}
