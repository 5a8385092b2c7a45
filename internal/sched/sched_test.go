package sched

import (
	"testing"

	"github.com/rcornwell/msimkernel/internal/machine"
)

// fakeThread is a minimal sched.Thread for exercising the scheduler in
// isolation, without pulling in the goroutine-backed thread package.
type fakeThread struct {
	name          string
	next, prev    Thread
	onReady       bool
}

func (f *fakeThread) SchedNext() Thread     { return f.next }
func (f *fakeThread) SchedPrev() Thread     { return f.prev }
func (f *fakeThread) SetSchedNext(t Thread) { f.next = t }
func (f *fakeThread) SetSchedPrev(t Thread) { f.prev = t }
func (f *fakeThread) OnReadyQueue() bool    { return f.onReady }
func (f *fakeThread) SetOnReadyQueue(v bool) { f.onReady = v }

func TestSchedulerBootstrap(t *testing.T) {
	s := New(machine.New())
	a := &fakeThread{name: "a"}
	s.AddReady(a)
	if s.Scheduled() != Thread(a) {
		t.Fatalf("first thread added should be scheduled immediately")
	}
	if s.ReadyLen() != 0 {
		t.Fatalf("ready queue should be empty once the only thread is scheduled")
	}
}

func TestSchedulerRoundRobinFairness(t *testing.T) {
	s := New(machine.New())
	a := &fakeThread{name: "a"}
	b := &fakeThread{name: "b"}
	c := &fakeThread{name: "c"}
	s.AddReady(a)
	s.AddReady(b)
	s.AddReady(c)

	if s.Scheduled() != Thread(a) {
		t.Fatalf("a should be scheduled first")
	}
	if s.ReadyLen() != 2 {
		t.Fatalf("ready len = %d, want 2", s.ReadyLen())
	}

	// Without Yield, repeated ScheduleNext keeps running the same thread.
	if next := s.ScheduleNext(); next != Thread(a) {
		t.Fatalf("without yield, ScheduleNext should keep running a")
	}

	s.Yield()
	if next := s.ScheduleNext(); next != Thread(b) {
		t.Fatalf("after yield, ScheduleNext should rotate to b")
	}
	s.Yield()
	if next := s.ScheduleNext(); next != Thread(c) {
		t.Fatalf("after yield, ScheduleNext should rotate to c")
	}
	s.Yield()
	if next := s.ScheduleNext(); next != Thread(a) {
		t.Fatalf("after yield, ScheduleNext should wrap back to a")
	}
}

func TestSchedulerWakeupIdempotence(t *testing.T) {
	s := New(machine.New())
	a := &fakeThread{name: "a"}
	b := &fakeThread{name: "b"}
	s.AddReady(a)
	s.AddReady(b)

	// b is on the ready queue; waking it again should not duplicate it.
	s.Wakeup(b)
	if s.ReadyLen() != 1 {
		t.Fatalf("waking an already-ready thread should be a no-op, ready len = %d", s.ReadyLen())
	}

	// Waking the scheduled thread itself should also be a no-op.
	s.Wakeup(a)
	if s.ReadyLen() != 1 {
		t.Fatalf("waking the scheduled thread should be a no-op, ready len = %d", s.ReadyLen())
	}
}

func TestSchedulerSuspendAndWakeup(t *testing.T) {
	s := New(machine.New())
	a := &fakeThread{name: "a"}
	b := &fakeThread{name: "b"}
	s.AddReady(a)
	s.AddReady(b)

	s.Suspend(b)
	if s.ReadyLen() != 0 {
		t.Fatalf("suspending the only ready thread should empty the ready queue, got %d", s.ReadyLen())
	}

	s.Wakeup(b)
	if s.ReadyLen() != 1 {
		t.Fatalf("waking a suspended thread should re-add it to ready, got %d", s.ReadyLen())
	}
}

func TestSchedulerFinishPromotesNext(t *testing.T) {
	s := New(machine.New())
	a := &fakeThread{name: "a"}
	b := &fakeThread{name: "b"}
	s.AddReady(a)
	s.AddReady(b)

	s.Finish(a)
	if s.Scheduled() != Thread(b) {
		t.Fatalf("finishing the scheduled thread should promote the next ready thread")
	}
}
