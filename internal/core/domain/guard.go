package domain

// Guard is proof that a thread's lock is held. Mutable thread state is reached
// through it, and a parent's lock can only be taken from the held guard of a
// child, which fixes the lock order at self then parent.
type Guard struct {
	t        *Thread
	released bool

	// parentTaken is set once LockParent has handed out the parent guard.
	parentTaken bool
}

// Lock acquires t's lock.
func (t *Thread) Lock() *Guard {
	t.mu.Lock()
	return &Guard{t: t}
}

// Unlock releases the lock. A guard can be unlocked once.
func (g *Guard) Unlock() {
	g.mustHold("unlock")
	g.released = true
	g.t.mu.Unlock()
}

func (g *Guard) mustHold(op string) {
	if g == nil || g.released {
		panic(ErrLockOrder.WithDetails(op + " on a released guard"))
	}
}

// Thread returns the locked thread.
func (g *Guard) Thread() *Thread {
	return g.t
}

// LockParent acquires the lock of the thread's local parent and returns its
// guard, or nil when the thread has no local parent. The parent pointer is
// read once, under the child's lock.
func (g *Guard) LockParent() *Guard {
	g.mustHold("lock parent")
	if g.parentTaken {
		panic(ErrLockOrder.WithDetails("parent already locked through this guard"))
	}
	p := g.t.parent
	if p == nil {
		return nil
	}
	if p == g.t {
		panic(ErrLockOrder.WithDetails("thread is its own parent"))
	}
	g.parentTaken = true
	p.mu.Lock()
	return &Guard{t: p}
}

// Parent returns the parent pointer as seen under the lock.
func (g *Guard) Parent() *Thread {
	g.mustHold("read parent")
	return g.t.parent
}

// Alive reports liveness.
func (g *Guard) Alive() bool {
	g.mustHold("read liveness")
	return g.t.alive
}

// MarkDead clears liveness and returns the exit code. It returns false if
// the thread was already dead. The first call drops the thread from its
// process's live count.
func (g *Guard) MarkDead() (exitCode int, ok bool) {
	g.mustHold("mark dead")
	t := g.t
	if !t.alive {
		return 0, false
	}
	t.alive = false
	if t.counted {
		t.counted = false
		t.Process.detach()
	}
	return t.exitCode, true
}

// ExitStatus returns the exit code and terminating signal.
func (g *Guard) ExitStatus() (code, termSignal int) {
	g.mustHold("read exit status")
	return g.t.exitCode, g.t.termSignal
}

// TakeOwned moves the thread's shared resources out of the record. A second
// call returns an empty Owned.
func (g *Guard) TakeOwned() Owned {
	g.mustHold("take owned")
	o := g.t.owned
	g.t.owned = Owned{}
	return o
}

// MoveToExited moves child from the children list to the exited list. It
// reports false if child was not a live child of the locked thread.
func (g *Guard) MoveToExited(child *Thread) bool {
	g.mustHold("move child")
	t := g.t
	for i, c := range t.children {
		if c == child {
			t.children = append(t.children[:i], t.children[i+1:]...)
			t.exitedChildren = append(t.exitedChildren, child)
			return true
		}
	}
	return false
}

// AppendSignal queues a signal on the locked thread.
func (g *Guard) AppendSignal(info Siginfo) {
	g.mustHold("queue signal")
	g.t.pending = append(g.t.pending, info)
}

// SetTCB points the thread at the control block it now runs on.
func (g *Guard) SetTCB(tcb *TCB) {
	g.mustHold("set tcb")
	g.t.tcb = tcb
}

// HasPending reports whether signo is queued on the locked thread.
func (g *Guard) HasPending(signo int) bool {
	g.mustHold("read pending")
	for _, s := range g.t.pending {
		if s.Signo == signo {
			return true
		}
	}
	return false
}
