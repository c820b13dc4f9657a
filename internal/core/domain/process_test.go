package domain

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestProcess_SetExitCodeFirstWriterWins(t *testing.T) {
	proc := NewProcess(1)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 1; i <= 16; i++ {
		wg.Add(1)
		go func(code int) {
			defer wg.Done()
			if proc.SetExitCode(code) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("SetExitCode() won %d times, want 1", wins.Load())
	}
	code, ok := proc.ExitCode()
	if !ok || code < 1 || code > 16 {
		t.Errorf("ExitCode() = (%d, %v)", code, ok)
	}
	if proc.SetExitCode(99) {
		t.Error("SetExitCode() after first writer should return false")
	}
}

func TestProcess_ClaimLastThread(t *testing.T) {
	proc := NewProcess(1)
	a := NewThread(ThreadConfig{TID: 1, TGID: 1, Process: proc})
	b := NewThread(ThreadConfig{TID: 2, TGID: 1, Process: proc})

	if proc.ClaimLastThread() {
		t.Fatal("ClaimLastThread() with live threads should fail")
	}

	for _, th := range []*Thread{a, b} {
		g := th.Lock()
		g.MarkDead()
		g.Unlock()
	}

	var claims atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if proc.ClaimLastThread() {
				claims.Add(1)
			}
		}()
	}
	wg.Wait()

	if claims.Load() != 1 {
		t.Errorf("ClaimLastThread() succeeded %d times, want 1", claims.Load())
	}
	if proc.State() != StateLastThreadDetected {
		t.Errorf("State() = %s, want %s", proc.State(), StateLastThreadDetected)
	}
}

func TestProcess_Advance(t *testing.T) {
	proc := NewProcess(1)
	if proc.Advance(StateLastThreadDetected, StateHelpersDraining) {
		t.Error("Advance() from wrong state should fail")
	}
	if !proc.Advance(StateRunning, StateLastThreadDetected) {
		t.Error("Advance() from current state should succeed")
	}
	if got := ExitState(99).String(); got != "unknown" {
		t.Errorf("String() = %q, want %q", got, "unknown")
	}
}

func TestProfile(t *testing.T) {
	p := NewProfile()
	p.Inc(ProfileSyscallUseIPC)
	p.Inc(ProfileSyscallUseIPC)
	p.Add(ProfileSyscallExit, 10)
	p.Interval(ProfileThreadExit, time.Time{})

	if got := p.Get(ProfileSyscallUseIPC); got != 2 {
		t.Errorf("Get(%s) = %d, want 2", ProfileSyscallUseIPC, got)
	}
	snap := p.Snapshot()
	if len(snap) != 2 {
		t.Errorf("Snapshot() len = %d, want 2", len(snap))
	}
	snap[ProfileSyscallExit] = 0
	if p.Get(ProfileSyscallExit) != 10 {
		t.Error("Snapshot() should return a copy")
	}
	if names := p.Names(); names[0] != ProfileSyscallExit {
		t.Errorf("Names() = %v, want sorted", names)
	}
}

func TestLatch(t *testing.T) {
	var l Latch
	if l.IsSet() {
		t.Fatal("zero Latch should not be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Error("Wait() on unset latch should time out")
	}

	go l.Set()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	l.Set()
	if !l.IsSet() {
		t.Error("IsSet() = false after Set")
	}
}

func TestPulse(t *testing.T) {
	var p Pulse
	p.Set()
	p.Set()

	select {
	case <-p.C():
	default:
		t.Fatal("C() should be ready after Set")
	}
	select {
	case <-p.C():
		t.Error("pulse should auto-reset after one receive")
	default:
	}
	if p.Count() != 2 {
		t.Errorf("Count() = %d, want 2", p.Count())
	}
}

func TestExecContext_SwitchIdentity(t *testing.T) {
	proc := NewProcess(1)
	cont := NewThread(ThreadConfig{TID: 1, TGID: 1, Process: proc})
	dummy := NewDummy(ThreadConfig{TID: 2, TGID: 1}, cont)

	ec := NewExecContext(dummy)
	if ec.Current() != dummy || dummy.TCB() != ec.TCB() {
		t.Fatal("NewExecContext() should bind the thread to the TCB")
	}
	if ec.TCB().Canary != TLSCanary {
		t.Errorf("Canary = %#x", ec.TCB().Canary)
	}

	ec.SwitchIdentity(cont)
	if ec.Current() != cont || ec.TCB().TID != cont.TID || cont.TCB() != ec.TCB() {
		t.Error("SwitchIdentity() should continue under the new thread")
	}

	var copyTCB TCB
	copyTCB.CopyFrom(ec.TCB())
	copyTCB.BeginSyscall("exit")
	if copyTCB.Thread != cont || ec.TCB().Syscall != "" {
		t.Error("CopyFrom() should copy fields without aliasing")
	}
}
