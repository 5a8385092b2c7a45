/*
 * msimkernel - Kernel thread subsystem
 *
 * Copyright 2026, msimkernel contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package thread is the C6 kernel thread subsystem (spec.md §4.6).
// cpu_switch_context has no hardware stack to flip in this
// reimplementation, so each thread is its own goroutine and the
// dispatcher hands it a baton (an unbuffered channel send) to let it
// run; the thread hands the baton back on yield, suspend, or finish.
// This mirrors the teacher's emu/core.core.Start dispatch loop and the
// channel handoffs in emu/sys_channel, generalized from "CPU steps one
// device per tick" to "CPU runs one kernel thread at a time."
package thread

import (
	"runtime"
	"sync"

	"github.com/rcornwell/msimkernel/internal/errs"
	"github.com/rcornwell/msimkernel/internal/machine"
	"github.com/rcornwell/msimkernel/internal/mm/as"
	"github.com/rcornwell/msimkernel/internal/sched"
)

// State is a thread's coarse lifecycle state, reported by Manager's
// debug dump and used by tests to assert kill/join semantics.
type State int

const (
	Ready State = iota
	Running
	Suspended
	Finished
	Killed
)

// Thread is one kernel (or user-backed) thread of control.
type Thread struct {
	mgr  *Manager
	id   int
	name string
	as   *as.AddrSpace

	resume chan struct{} // dispatcher -> thread: you may run now.

	mu       sync.Mutex
	state    State
	killed   bool
	exitCode int
	joinCh   chan struct{}

	// sched.Thread linkage.
	next, prev sched.Thread
	onReady    bool

	// FIFO wait-queue linkage used by ksync's mutex/semaphore queues;
	// independent of the scheduler linkage above since a thread is
	// simultaneously "suspended" in the scheduler and "queued" on
	// whichever sync primitive it is blocked on.
	waitNext, waitPrev *Thread
}

func (t *Thread) SchedNext() sched.Thread        { return t.next }
func (t *Thread) SchedPrev() sched.Thread        { return t.prev }
func (t *Thread) SetSchedNext(n sched.Thread)    { t.next = n }
func (t *Thread) SetSchedPrev(p sched.Thread)    { t.prev = p }
func (t *Thread) OnReadyQueue() bool             { return t.onReady }
func (t *Thread) SetOnReadyQueue(v bool)         { t.onReady = v }

// WaitNext, WaitPrev, SetWaitNext, SetWaitPrev implement the link
// accessors ksync's FIFO wait queues use.
func (t *Thread) WaitNext() *Thread     { return t.waitNext }
func (t *Thread) WaitPrev() *Thread     { return t.waitPrev }
func (t *Thread) SetWaitNext(n *Thread) { t.waitNext = n }
func (t *Thread) SetWaitPrev(p *Thread) { t.waitPrev = p }

// ID returns the thread's kernel-assigned identifier.
func (t *Thread) ID() int { return t.id }

// Name returns the thread's debug name.
func (t *Thread) Name() string { return t.name }

// AddrSpace returns the address space this thread runs in.
func (t *Thread) AddrSpace() *as.AddrSpace { return t.as }

// State reports the thread's current lifecycle state.
func (t *Thread) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Thread) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Manager owns the scheduler, the ASID pool, and the single dispatch
// loop goroutine that plays baton-holder among all live threads.
type Manager struct {
	m     *machine.Machine
	sched *sched.Scheduler
	asid  *as.Pool

	mu      sync.Mutex
	nextID  int
	threads map[int]*Thread

	yielded chan struct{} // a running thread signals here when it gives up the baton.
	running *Thread
}

// NewManager creates a thread manager with an empty thread table.
func NewManager(m *machine.Machine, s *sched.Scheduler, asid *as.Pool) *Manager {
	return &Manager{
		m:       m,
		sched:   s,
		asid:    asid,
		threads: make(map[int]*Thread),
		yielded: make(chan struct{}),
	}
}

// Create starts a new thread running fn, sharing addrSpace (refcount
// bumped), per spec.md §4.6's thread_create.
func (mgr *Manager) Create(name string, addrSpace *as.AddrSpace, fn func(*Thread)) (*Thread, errs.KernelError) {
	if len(name) > machine.ThreadNameMax {
		return nil, errs.EINVAL
	}
	mgr.asid.Ref(addrSpace)
	return mgr.spawn(name, addrSpace, fn), errs.EOK
}

// CreateNewAS allocates a fresh address space of size bytes from the
// ASID pool and starts a new thread running fn inside it, per spec.md
// §4.6's thread_create_new_as(size). Returns ENOMEM if the ASID pool
// or the frame allocator backing it is exhausted, EINVAL if size is
// not a positive multiple of PAGE_SIZE.
func (mgr *Manager) CreateNewAS(name string, size uint64, fn func(*Thread)) (*Thread, errs.KernelError) {
	if len(name) > machine.ThreadNameMax {
		return nil, errs.EINVAL
	}
	addrSpace, err := mgr.asid.Create(size)
	if !err.Ok() {
		return nil, err
	}
	return mgr.spawn(name, addrSpace, fn), errs.EOK
}

// Machine returns the machine this manager's threads run against, for
// callers (process's loader) that need to touch simulated physical
// memory directly.
func (mgr *Manager) Machine() *machine.Machine { return mgr.m }

func (mgr *Manager) spawn(name string, addrSpace *as.AddrSpace, fn func(*Thread)) *Thread {
	mgr.mu.Lock()
	mgr.nextID++
	id := mgr.nextID
	mgr.mu.Unlock()

	t := &Thread{
		mgr:    mgr,
		id:     id,
		name:   name,
		as:     addrSpace,
		resume: make(chan struct{}),
		joinCh: make(chan struct{}),
		state:  Ready,
	}

	mgr.mu.Lock()
	mgr.threads[id] = t
	mgr.mu.Unlock()

	go func() {
		<-t.resume
		t.setState(Running)
		if !t.wasKilledAtStart() {
			fn(t)
		}
		mgr.finish(t)
	}()

	mgr.sched.AddReady(t)
	return t
}

func (t *Thread) wasKilledAtStart() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.killed
}

// RunOnce asks the scheduler who runs next, hands that thread the
// baton, and waits for it to yield, block, or finish. It reports false
// when the scheduler has nothing left to run. Callers that need to
// observe machine state between scheduling steps -- kernel.Kernel's
// timer-driven dispatch loop, in particular -- drive this directly
// instead of calling Run.
func (mgr *Manager) RunOnce() bool {
	next := mgr.sched.ScheduleNext()
	if next == nil {
		return false
	}
	t := next.(*Thread)

	mgr.mu.Lock()
	mgr.running = t
	mgr.mu.Unlock()

	t.resume <- struct{}{}
	<-mgr.yielded
	return true
}

// Run is the purely cooperative dispatch loop: the single simulated
// CPU repeatedly hands the baton to whichever thread the scheduler
// names next, with no clock ticked in between. It returns once the
// scheduler has nothing left to run.
func (mgr *Manager) Run() {
	for mgr.RunOnce() {
	}
}

// Current returns the thread the dispatch loop most recently handed
// the baton to. Only meaningful from within a thread's own goroutine.
func (mgr *Manager) Current() *Thread {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.running
}

// Yield gives up the remainder of t's turn, per spec.md §4.6's
// thread_yield: it asks the scheduler for round-robin rotation, hands
// the baton back to the dispatch loop, and blocks until resumed.
func (t *Thread) Yield() {
	t.mgr.sched.Yield()
	t.setState(Ready)
	t.mgr.yielded <- struct{}{}
	<-t.resume
	t.checkKilled()
	t.setState(Running)
}

// Suspend removes t from the ready queue until a matching Wakeup,
// handing the baton back to the dispatch loop. Used by ksync to block
// a thread on a mutex or semaphore.
func (t *Thread) Suspend() {
	t.mgr.sched.Suspend(t)
	t.setState(Suspended)
	t.mgr.yielded <- struct{}{}
	<-t.resume
	t.checkKilled()
	t.setState(Running)
}

// Wakeup makes t eligible to run again after a Suspend, per spec.md
// §4.6/§4.7; waking a thread that is not suspended is a no-op.
func (mgr *Manager) Wakeup(t *Thread) {
	mgr.sched.Wakeup(t)
}

// checkKilled terminates the calling goroutine via runtime.Goexit
// (running its deferred cleanups) if the thread was killed while
// suspended or yielded -- the "safe point" at which this
// reimplementation observes a pending kill, since nothing here can
// truly preempt arbitrary running Go code mid-instruction.
func (t *Thread) checkKilled() {
	if t.State() == Killed || t.wasKilledAtStart() {
		t.mgr.finish(t)
		runtime.Goexit()
	}
}

// Finish records exitCode and tears the thread down: removed from the
// scheduler, marked Finished, and every Join waiter released. Per
// spec.md §4.6's thread_finish. On a thread that has already finished
// or been killed, the scheduler, address space and join state are left
// untouched; only the recorded exit code is overwritten.
func (t *Thread) Finish(exitCode int) {
	t.mu.Lock()
	t.exitCode = exitCode
	t.mu.Unlock()
	t.mgr.finish(t)
	runtime.Goexit()
}

func (mgr *Manager) finish(t *Thread) {
	t.mu.Lock()
	already := t.state == Finished || t.state == Killed
	if !already {
		if t.killed {
			t.state = Killed
		} else {
			t.state = Finished
		}
	}
	t.mu.Unlock()
	if already {
		return
	}

	mgr.sched.Finish(t)
	mgr.asid.Destroy(t.as)
	close(t.joinCh)

	mgr.mu.Lock()
	delete(mgr.threads, t.id)
	mgr.mu.Unlock()

	mgr.yielded <- struct{}{}
}

// Kill terminates t from within its own running goroutine -- the
// thread_kill(self) path a faulting or syscall-exiting thread takes
// when the C8 dispatcher decides it cannot continue, per spec.md
// §4.8. Never returns.
func (t *Thread) Kill() {
	t.mgr.Kill(t)
}

// Kill marks target for termination and ensures it is runnable so it
// reaches a safe point (Yield/Suspend return, or dispatcher entry)
// where checkKilled can act, per spec.md §4.6's thread_kill. Killing an
// already-finished thread is EEXITED.
func (mgr *Manager) Kill(target *Thread) errs.KernelError {
	target.mu.Lock()
	if target.state == Finished || target.state == Killed {
		target.mu.Unlock()
		return errs.EEXITED
	}
	target.killed = true
	target.mu.Unlock()

	if mgr.Current() == target {
		// Self-kill: target is the caller, holding the baton right now.
		// It will never pass through Suspend/Yield's checkKilled, so
		// finish it immediately instead of waiting for a wakeup that
		// would never come (Wakeup is a no-op on the running thread).
		mgr.finish(target)
		runtime.Goexit()
	}

	mgr.sched.Wakeup(target)
	return errs.EOK
}

// Join blocks the calling goroutine until target has finished (or been
// killed) and returns its exit code alongside EOK, or EKILLED (with
// the exit code unchanged from its zero value) if target was killed,
// per spec.md §4.6's thread_join and §8's kill-semantics property.
func (mgr *Manager) Join(target *Thread) (int, errs.KernelError) {
	<-target.joinCh
	target.mu.Lock()
	defer target.mu.Unlock()
	if target.state == Killed {
		return target.exitCode, errs.EKILLED
	}
	return target.exitCode, errs.EOK
}
