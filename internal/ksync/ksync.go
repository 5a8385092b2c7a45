/*
 * msimkernel - Kernel mutex and semaphore
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

// Package ksync is the C7 mutex and semaphore (spec.md §4.7): both
// block the calling thread by suspending it through the thread
// manager rather than spinning, and both keep a FIFO queue of waiters
// so wakeup order matches block order.
package ksync

import (
	"github.com/rcornwell/msimkernel/internal/errs"
	"github.com/rcornwell/msimkernel/internal/klog"
	"github.com/rcornwell/msimkernel/internal/machine"
	"github.com/rcornwell/msimkernel/internal/thread"
)

// waitQueue is a FIFO list of blocked threads built on
// thread.Thread's WaitNext/WaitPrev linkage.
type waitQueue struct {
	head, tail *thread.Thread
}

func (q *waitQueue) pushBack(t *thread.Thread) {
	t.SetWaitNext(nil)
	t.SetWaitPrev(q.tail)
	if q.tail != nil {
		q.tail.SetWaitNext(t)
	} else {
		q.head = t
	}
	q.tail = t
}

func (q *waitQueue) popFront() *thread.Thread {
	t := q.head
	if t == nil {
		return nil
	}
	q.head = t.WaitNext()
	if q.head != nil {
		q.head.SetWaitPrev(nil)
	} else {
		q.tail = nil
	}
	t.SetWaitNext(nil)
	t.SetWaitPrev(nil)
	return t
}

func (q *waitQueue) empty() bool { return q.head == nil }

// Mutex is a non-recursive, owner-tracked lock. Unlocking a mutex you
// do not own, or locking one you already own, is a programming error
// and panics -- spec.md §4.7 and §7 both call this out as a fatal
// misuse, not a recoverable error.
type Mutex struct {
	m   *machine.Machine
	mgr *thread.Manager

	owner   *thread.Thread
	waiters waitQueue
}

// NewMutex creates an unlocked mutex.
func NewMutex(m *machine.Machine, mgr *thread.Manager) *Mutex {
	return &Mutex{m: m, mgr: mgr}
}

// Lock blocks the calling thread until it owns mu. Calling Lock while
// already holding mu is a fatal misuse.
func (mu *Mutex) Lock(self *thread.Thread) {
	for {
		enable := mu.m.InterruptsDisable()
		if mu.owner == nil {
			mu.owner = self
			mu.m.InterruptsRestore(enable)
			return
		}
		klog.PanicIf(mu.owner == self, "mutex: thread %s re-locked a mutex it already owns", self.Name())
		mu.waiters.pushBack(self)
		mu.m.InterruptsRestore(enable)
		self.Suspend()
	}
}

// TryLock acquires mu only if it is free, returning EBUSY otherwise,
// never blocking -- spec.md §4.7's mutex_trylock.
func (mu *Mutex) TryLock(self *thread.Thread) errs.KernelError {
	enable := mu.m.InterruptsDisable()
	defer mu.m.InterruptsRestore(enable)
	if mu.owner != nil {
		return errs.EBUSY
	}
	mu.owner = self
	return errs.EOK
}

// Unlock releases mu. If a thread is waiting, it is popped and woken,
// but ownership is NOT handed to it directly -- it goes back to racing
// TryLock like anyone else, the same cooperative-fairness heuristic
// the teacher's scheduler uses elsewhere, not a handoff. The caller
// then yields, giving the woken thread a chance to run before the
// unlocker potentially loops back and re-acquires the same mutex.
// Unlocking a mutex the caller does not own is a fatal misuse.
func (mu *Mutex) Unlock(self *thread.Thread) {
	enable := mu.m.InterruptsDisable()
	if mu.owner != self {
		mu.m.InterruptsRestore(enable)
		klog.PanicKernel("mutex: thread %s unlocked a mutex it does not own", self.Name())
	}

	next := mu.waiters.popFront()
	mu.owner = nil
	mu.m.InterruptsRestore(enable)

	if next != nil {
		mu.mgr.Wakeup(next)
		self.Yield()
	}
}

// Semaphore is a classic counting semaphore with a FIFO wait queue.
type Semaphore struct {
	m   *machine.Machine
	mgr *thread.Manager

	count   int
	waiters waitQueue
}

// NewSemaphore creates a semaphore with the given initial count.
func NewSemaphore(m *machine.Machine, mgr *thread.Manager, initial int) *Semaphore {
	return &Semaphore{m: m, mgr: mgr, count: initial}
}

// Wait decrements the count, blocking the caller while it is zero.
func (s *Semaphore) Wait(self *thread.Thread) {
	for {
		enable := s.m.InterruptsDisable()
		if s.count > 0 {
			s.count--
			s.m.InterruptsRestore(enable)
			return
		}
		s.waiters.pushBack(self)
		s.m.InterruptsRestore(enable)
		self.Suspend()
	}
}

// TryWait decrements the count only if it is currently positive,
// returning EBUSY otherwise, never blocking.
func (s *Semaphore) TryWait() errs.KernelError {
	enable := s.m.InterruptsDisable()
	defer s.m.InterruptsRestore(enable)
	if s.count <= 0 {
		return errs.EBUSY
	}
	s.count--
	return errs.EOK
}

// Post pops a waiter (if any) to re-race for the slot, then always
// increments the count, then yields -- but only if it actually woke
// someone. The open question of whether post must yield unconditionally
// is resolved per spec.md §9: yield only after a wake.
func (s *Semaphore) Post(self *thread.Thread) {
	enable := s.m.InterruptsDisable()
	next := s.waiters.popFront()
	s.count++
	s.m.InterruptsRestore(enable)

	if next != nil {
		s.mgr.Wakeup(next)
		self.Yield()
	}
}

// Destroy panics if any thread is still waiting on s, per spec.md
// §8's sync-safety property.
func (s *Semaphore) Destroy() {
	enable := s.m.InterruptsDisable()
	defer s.m.InterruptsRestore(enable)
	klog.PanicIf(!s.waiters.empty(), "semaphore: destroyed with waiters still queued")
}

// Count reports the semaphore's current count, for tests and monitor
// dumps.
func (s *Semaphore) Count() int {
	enable := s.m.InterruptsDisable()
	defer s.m.InterruptsRestore(enable)
	return s.count
}

// HasWaiters reports whether any thread is currently blocked on mu.
func (mu *Mutex) HasWaiters() bool {
	enable := mu.m.InterruptsDisable()
	defer mu.m.InterruptsRestore(enable)
	return !mu.waiters.empty()
}
