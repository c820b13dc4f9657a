package exit

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/libos-go/internal/core/domain"
	"github.com/yndnr/libos-go/internal/telemetry/metric"
)

func TestTerminateThread_Idempotent(t *testing.T) {
	h := newHarness(t)
	th := h.spawn(domain.NewProcess(10), nil, 10, false)

	for i := 0; i < 2; i++ {
		if err := h.coord.TerminateThread(context.Background(), th, true); err != nil {
			t.Fatalf("TerminateThread() call %d error = %v", i, err)
		}
	}

	if got := h.releaser.Total(); got != 4 {
		t.Errorf("released %d resources, want 4", got)
	}
	if got := testutil.ToFloat64(h.metrics.DuplicateTerminations); got != 1 {
		t.Errorf("duplicate_terminations_total = %v, want 1", got)
	}
	if !th.ExitEvent.IsSet() {
		t.Error("ExitEvent not set")
	}
}

func TestTerminateThread_AlreadyDead(t *testing.T) {
	h := newHarness(t)
	th := h.spawn(domain.NewProcess(10), nil, 10, false)
	g := th.Lock()
	g.MarkDead()
	g.Unlock()

	if err := h.coord.TerminateThread(context.Background(), th, true); err != nil {
		t.Fatalf("TerminateThread() error = %v", err)
	}
	if got := h.releaser.Total(); got != 0 {
		t.Errorf("released %d resources, want 0", got)
	}
	if len(h.remote.Sent()) != 0 {
		t.Error("dead thread should not notify")
	}
	if th.Owned().Empty() {
		t.Error("owned resources should stay with the record")
	}
}

func TestTerminateThread_ConcurrentReleasesOnce(t *testing.T) {
	h := newHarness(t)
	proc := domain.NewProcess(10)
	parent := h.spawn(proc, nil, 10, false)
	th := h.spawn(proc, parent, 11, false)

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.coord.TerminateThread(context.Background(), th, true)
		}()
	}
	wg.Wait()

	for _, kind := range []string{KindHandleMap, KindExec, KindRobustList, KindClearChildTID} {
		if got := h.releaser.Count(kind); got != 1 {
			t.Errorf("%s released %d times, want 1", kind, got)
		}
	}
	if got := len(parent.Pending()); got != 1 {
		t.Errorf("parent has %d pending signals, want 1", got)
	}
	if got := testutil.ToFloat64(h.metrics.DuplicateTerminations); got != n-1 {
		t.Errorf("duplicate_terminations_total = %v, want %d", got, n-1)
	}
}

func TestTerminateThread_LocalParent(t *testing.T) {
	h := newHarness(t)
	proc := domain.NewProcess(10)
	parent := h.spawn(proc, nil, 10, false)
	child := h.spawn(proc, parent, 11, false)
	child.SetExitStatus(7, 0)

	if err := h.coord.TerminateThread(context.Background(), child, true); err != nil {
		t.Fatalf("TerminateThread() error = %v", err)
	}

	if got := parent.ExitedChildren(); len(got) != 1 || got[0] != child {
		t.Errorf("ExitedChildren() = %v, want [child]", got)
	}
	if len(parent.Children()) != 0 {
		t.Error("child still in the live children list")
	}
	want := domain.Siginfo{Signo: domain.SIGCHLD, PID: 11, UID: 1000, Status: 7 << 8}
	if got := parent.Pending(); len(got) != 1 || got[0] != want {
		t.Errorf("Pending() = %v, want [%v]", got, want)
	}
	if parent.ChildExitEvent.Count() != 1 {
		t.Errorf("ChildExitEvent.Count() = %d, want 1", parent.ChildExitEvent.Count())
	}
	if len(h.remote.Sent()) != 0 {
		t.Errorf("remote sends = %v, want none", h.remote.Sent())
	}
	if got := testutil.ToFloat64(h.metrics.ThreadsTerminated.WithLabelValues(metric.PathLocalParent)); got != 1 {
		t.Errorf("threads_terminated_total{local_parent} = %v, want 1", got)
	}
}

func TestTerminateThread_RemoteParent(t *testing.T) {
	tests := []struct {
		name         string
		inVM         bool
		localParent  bool
		notifyRemote bool
		wantSends    int
		wantSigchld  bool
	}{
		{"orphan", false, false, true, 1, false},
		{"orphan without early notify", false, false, false, 1, false},
		{"distributed orphan notified once", true, false, true, 1, false},
		{"distributed with local parent", true, true, true, 1, false},
		{"distributed silent", true, true, false, 0, false},
		{"local", false, true, true, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			proc := domain.NewProcess(20)
			var parent *domain.Thread
			if tt.localParent {
				parent = h.spawn(proc, nil, 20, false)
			}
			child := h.spawn(proc, parent, 21, tt.inVM)
			child.SetExitStatus(3, domain.SIGKILL)

			if err := h.coord.TerminateThread(context.Background(), child, tt.notifyRemote); err != nil {
				t.Fatalf("TerminateThread() error = %v", err)
			}

			sent := h.remote.Sent()
			if len(sent) != tt.wantSends {
				t.Fatalf("remote sends = %v, want %d", sent, tt.wantSends)
			}
			if tt.wantSends > 0 {
				want := sentExit{dest: 20, tid: 21, code: 3, sig: domain.SIGKILL}
				if sent[0] != want {
					t.Errorf("sent %+v, want %+v", sent[0], want)
				}
			}
			if parent != nil {
				if got := parent.HasPending(domain.SIGCHLD); got != tt.wantSigchld {
					t.Errorf("parent HasPending(SIGCHLD) = %v, want %v", got, tt.wantSigchld)
				}
				if len(parent.ExitedChildren()) != 1 {
					t.Error("child should move to the exited list")
				}
			}
			if !child.ExitEvent.IsSet() {
				t.Error("ExitEvent not set")
			}
		})
	}
}

func TestTerminateThread_DistributedNotifiesOnce(t *testing.T) {
	tests := []struct {
		name        string
		localParent bool
	}{
		{"with local parent", true},
		{"orphan", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			proc := domain.NewProcess(30)
			var parent *domain.Thread
			if tt.localParent {
				parent = h.spawn(proc, nil, 30, false)
			}
			child := h.spawn(proc, parent, 31, true)

			for i := 0; i < 2; i++ {
				if err := h.coord.TerminateThread(context.Background(), child, true); err != nil {
					t.Fatalf("TerminateThread() call %d error = %v", i, err)
				}
			}
			if got := len(h.remote.Sent()); got != 1 {
				t.Errorf("remote sends after two terminations = %d, want 1", got)
			}
			if got := testutil.ToFloat64(h.metrics.DuplicateTerminations); got != 1 {
				t.Errorf("duplicate_terminations_total = %v, want 1", got)
			}
		})
	}
}

func TestTerminateThread_Internal(t *testing.T) {
	h := newHarness(t)
	proc := domain.NewProcess(30)
	th := domain.NewThread(domain.ThreadConfig{
		TID:       31,
		TGID:      30,
		Process:   proc,
		Internal:  true,
		HandleMap: &domain.HandleMap{ID: 31},
	})

	if err := h.coord.TerminateThread(context.Background(), th, true); err != nil {
		t.Fatalf("TerminateThread() error = %v", err)
	}
	if th.IsAlive() {
		t.Error("internal thread should be marked dead")
	}
	if h.releaser.Total() != 0 {
		t.Error("internal thread resources should not be released")
	}
	if th.ExitEvent.IsSet() {
		t.Error("internal thread should not set ExitEvent")
	}
	if got := testutil.ToFloat64(h.metrics.ThreadsTerminated.WithLabelValues(metric.PathInternal)); got != 1 {
		t.Errorf("threads_terminated_total{internal} = %v, want 1", got)
	}
}

func TestTerminateThread_ReleaseFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	coord := NewCoordinator(CoordinatorDeps{
		Signals: h.signals,
		Handles: h.releaser,
		Futex:   failingFutex{},
		Host:    h.host,
		Metrics: h.metrics,
	})
	th := h.spawn(domain.NewProcess(40), nil, 40, false)

	waitClosed(t, run(func() {
		_ = coord.TerminateThread(context.Background(), th, true)
		t.Error("TerminateThread() returned after a fatal release")
	}), "fatal exit")

	code, ok := h.host.ExitCode()
	if !ok || code != domain.FatalExitCode {
		t.Errorf("host exit code = (%d, %v), want (%d, true)", code, ok, domain.FatalExitCode)
	}
	if th.ExitEvent.IsSet() {
		t.Error("ExitEvent should not be set after a failed release")
	}
	if got := testutil.ToFloat64(h.metrics.ProcessExits.WithLabelValues(metric.OutcomeFatal)); got != 1 {
		t.Errorf("process_exits_total{fatal} = %v, want 1", got)
	}
}

func TestTerminateThread_GenerationsExitConcurrently(t *testing.T) {
	h := newHarness(t)
	proc := domain.NewProcess(50)
	root := h.spawn(proc, nil, 50, false)

	var all []*domain.Thread
	mids := make([]*domain.Thread, 4)
	for i := range mids {
		mids[i] = h.spawn(proc, root, int32(100+i), false)
		all = append(all, mids[i])
		for j := 0; j < 4; j++ {
			all = append(all, h.spawn(proc, mids[i], int32(1000+i*10+j), false))
		}
	}
	all = append(all, root)

	done := run(func() {
		var wg sync.WaitGroup
		for _, th := range all {
			wg.Add(1)
			go func(th *domain.Thread) {
				defer wg.Done()
				_ = h.coord.TerminateThread(context.Background(), th, true)
			}(th)
		}
		wg.Wait()
	})
	waitClosed(t, done, "concurrent terminations")

	for _, mid := range append([]*domain.Thread{root}, mids...) {
		live, exited := mid.Children(), mid.ExitedChildren()
		seen := make(map[int32]int)
		for _, c := range append(live, exited...) {
			seen[c.TID]++
		}
		for tid, n := range seen {
			if n != 1 {
				t.Errorf("tid %d appears %d times under %d", tid, n, mid.TID)
			}
		}
		if len(live) != 0 {
			t.Errorf("tid %d still has %d live children", mid.TID, len(live))
		}
	}
	if got := h.releaser.Total(); got != 4*len(all) {
		t.Errorf("released %d resources, want %d", got, 4*len(all))
	}
	if proc.LiveThreads() != 0 {
		t.Errorf("LiveThreads() = %d, want 0", proc.LiveThreads())
	}
}
