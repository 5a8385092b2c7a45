/*
 * msimkernel - Round-robin thread scheduler
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

// Package sched is the C5 round-robin scheduler (spec.md §4.5): a
// ready queue and a suspended set, both manual doubly linked lists in
// the style of the teacher's emu/event.Event, plus the single
// scheduled_thread pointer and its fairness flag.
package sched

import "github.com/rcornwell/msimkernel/internal/machine"

// Thread is the link interface a schedulable object must implement.
// thread.Thread embeds the fields backing this so the scheduler never
// needs to import the thread package.
type Thread interface {
	SchedNext() Thread
	SchedPrev() Thread
	SetSchedNext(Thread)
	SetSchedPrev(Thread)
	OnReadyQueue() bool
	SetOnReadyQueue(bool)
}

// list is an address-ordered (insertion-ordered) doubly linked queue
// of Thread, mirroring emu/event.Event's next/prev style.
type list struct {
	head Thread
	tail Thread
}

func (l *list) pushBack(t Thread) {
	t.SetSchedNext(nil)
	t.SetSchedPrev(l.tail)
	if l.tail != nil {
		l.tail.SetSchedNext(t)
	} else {
		l.head = t
	}
	l.tail = t
}

func (l *list) remove(t Thread) {
	if p := t.SchedPrev(); p != nil {
		p.SetSchedNext(t.SchedNext())
	} else if l.head == t {
		l.head = t.SchedNext()
	}
	if n := t.SchedNext(); n != nil {
		n.SetSchedPrev(t.SchedPrev())
	} else if l.tail == t {
		l.tail = t.SchedPrev()
	}
	t.SetSchedNext(nil)
	t.SetSchedPrev(nil)
}

func (l *list) popFront() Thread {
	t := l.head
	if t == nil {
		return nil
	}
	l.remove(t)
	return t
}

// Scheduler holds the ready queue, the suspended set, and the single
// currently scheduled thread, per spec.md §4.5 and §5.
type Scheduler struct {
	m *machine.Machine

	ready     list
	suspended list

	scheduled             Thread
	changedScheduledThread bool
}

// New creates an empty scheduler with nothing scheduled.
func New(m *machine.Machine) *Scheduler {
	return &Scheduler{m: m}
}

// AddReady appends t to the end of the ready queue. If nothing is
// currently scheduled, t becomes the scheduled thread immediately,
// matching spec.md §4.5's bootstrap case (the first thread created has
// no predecessor to yield from).
func (s *Scheduler) AddReady(t Thread) {
	enable := s.m.InterruptsDisable()
	defer s.m.InterruptsRestore(enable)

	s.addReadyLocked(t)
}

func (s *Scheduler) addReadyLocked(t Thread) {
	t.SetOnReadyQueue(true)
	s.ready.pushBack(t)
	if s.scheduled == nil {
		s.scheduled = s.ready.popFront()
		t.SetOnReadyQueue(false)
	}
}

// Remove takes t out of whichever queue currently holds it (ready or
// suspended), used when a thread finishes or is killed.
func (s *Scheduler) Remove(t Thread) {
	enable := s.m.InterruptsDisable()
	defer s.m.InterruptsRestore(enable)
	s.removeLocked(t)
}

func (s *Scheduler) removeLocked(t Thread) {
	if t.OnReadyQueue() {
		s.ready.remove(t)
		t.SetOnReadyQueue(false)
		return
	}
	s.suspended.remove(t)
}

// Suspend moves t from the ready queue (or, if t is the currently
// scheduled thread, the CPU) to the suspended set, immediately
// promoting the next ready thread to scheduled -- a suspended thread
// can't be resumed by rotation, only by a matching Wakeup, so there is
// nothing to rotate back to until then.
func (s *Scheduler) Suspend(t Thread) {
	enable := s.m.InterruptsDisable()
	defer s.m.InterruptsRestore(enable)

	if t.OnReadyQueue() {
		s.ready.remove(t)
		t.SetOnReadyQueue(false)
	}
	s.suspended.pushBack(t)

	if s.scheduled == t {
		s.scheduled = s.ready.popFront()
		if s.scheduled != nil {
			s.scheduled.SetOnReadyQueue(false)
		}
		s.changedScheduledThread = false
	}
}

// Wakeup moves t from the suspended set back onto the ready queue.
// Waking an already-ready (or already-running) thread is a no-op,
// matching spec.md §4.5's "wakeup is idempotent" testable property.
func (s *Scheduler) Wakeup(t Thread) {
	enable := s.m.InterruptsDisable()
	defer s.m.InterruptsRestore(enable)

	if t.OnReadyQueue() || t == s.scheduled {
		return
	}
	s.suspended.remove(t)
	s.addReadyLocked(t)
}

// ScheduleNext picks the next thread to run: the current one's
// successor on the ready queue if changedScheduledThread was raised
// since the last pick (round-robin fairness), otherwise the same
// thread continues running. The currently-scheduled thread, if any,
// is pushed onto the back of the ready queue first.
func (s *Scheduler) ScheduleNext() Thread {
	enable := s.m.InterruptsDisable()
	defer s.m.InterruptsRestore(enable)

	if !s.changedScheduledThread {
		return s.scheduled
	}
	s.changedScheduledThread = false

	if old := s.scheduled; old != nil {
		old.SetOnReadyQueue(true)
		s.ready.pushBack(old)
	}
	s.scheduled = s.ready.popFront()
	if s.scheduled != nil {
		s.scheduled.SetOnReadyQueue(false)
	}
	return s.scheduled
}

// Yield marks that a fresh pick is due on the next ScheduleNext call,
// spec.md §4.5's changed_scheduled_thread flag, and is how
// thread_yield asks the scheduler to rotate.
func (s *Scheduler) Yield() {
	enable := s.m.InterruptsDisable()
	defer s.m.InterruptsRestore(enable)
	s.changedScheduledThread = true
}

// Scheduled returns the thread currently selected to run.
func (s *Scheduler) Scheduled() Thread {
	enable := s.m.InterruptsDisable()
	defer s.m.InterruptsRestore(enable)
	return s.scheduled
}

// Finish removes t from whichever queue holds it and, if t was the
// scheduled thread, immediately promotes the next ready thread (or
// nil, if none remain) rather than waiting for a changed-flag pick --
// a finished thread can never be resumed, so there is nothing to
// rotate back to.
func (s *Scheduler) Finish(t Thread) {
	enable := s.m.InterruptsDisable()
	defer s.m.InterruptsRestore(enable)

	s.removeLocked(t)
	if s.scheduled == t {
		s.scheduled = s.ready.popFront()
		s.changedScheduledThread = false
	}
}

// ReadyLen reports the ready queue's length, used by tests asserting
// round-robin fairness.
func (s *Scheduler) ReadyLen() int {
	enable := s.m.InterruptsDisable()
	defer s.m.InterruptsRestore(enable)
	n := 0
	for t := s.ready.head; t != nil; t = t.SchedNext() {
		n++
	}
	return n
}
