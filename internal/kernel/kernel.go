/*
 * msimkernel - Boot sequencing
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

// Package kernel wires the nine components together in the boot order
// spec.md §9's Design Notes require: frame allocator, then ASID pool,
// then heap, then scheduler, then threads. Nothing downstream may
// observe an uninitialized upstream component.
package kernel

import (
	"github.com/rcornwell/msimkernel/internal/bootconfig"
	"github.com/rcornwell/msimkernel/internal/errs"
	"github.com/rcornwell/msimkernel/internal/exc"
	"github.com/rcornwell/msimkernel/internal/klog"
	"github.com/rcornwell/msimkernel/internal/machine"
	"github.com/rcornwell/msimkernel/internal/mm/as"
	"github.com/rcornwell/msimkernel/internal/mm/frame"
	"github.com/rcornwell/msimkernel/internal/mm/heap"
	"github.com/rcornwell/msimkernel/internal/process"
	"github.com/rcornwell/msimkernel/internal/sched"
	"github.com/rcornwell/msimkernel/internal/testimage"
	"github.com/rcornwell/msimkernel/internal/thread"
)

// Kernel bundles every booted subsystem, the way the original
// kernel's kmain() holds them as implicit global state.
type Kernel struct {
	Machine *machine.Machine
	Frames  *frame.Allocator
	ASIDs   *as.Pool
	Heap    *heap.Heap
	Sched   *sched.Scheduler
	Threads *thread.Manager
	Images  *testimage.Builder

	cfg bootconfig.Config
}

// Boot initializes every component in dependency order and returns
// the assembled Kernel, ready to accept processes.
func Boot(cfg bootconfig.Config) *Kernel {
	klog.Printk("booting: ram=%d cycles=%d", cfg.RAMBytes, cfg.Cycles)

	m := machine.New()
	m.WriteCompare(cfg.Cycles)

	frames := frame.Init(m, cfg.RAMBytes)
	klog.Printk("frame allocator: %d pages managed", frames.PageCount())

	asidPool := as.NewPool(m, frames)
	h := heap.Init(m, frames)
	s := sched.New(m)
	threads := thread.NewManager(m, s, asidPool)

	return &Kernel{
		Machine: m,
		Frames:  frames,
		ASIDs:   asidPool,
		Heap:    h,
		Sched:   s,
		Threads: threads,
		Images:  testimage.NewBuilder(m),
		cfg:     cfg,
	}
}

// Spawn creates a new process running img in a memSize-byte address
// space, without starting the dispatch loop, so callers can queue
// several processes (for scheduler fairness tests, for example)
// before calling RunAll once.
func (k *Kernel) Spawn(name string, img process.Image, memSize uint64) (*process.Process, errs.KernelError) {
	return process.Create(k.Threads, name, img, memSize)
}

// RunAll drives the dispatch loop until every queued process has
// finished. Between scheduling steps it ticks the machine's clock and,
// when COUNT reaches COMPARE, routes the resulting interrupt through
// the real C8 fault dispatcher -- spec.md §5's "preemptive via a
// periodic timer" requirement, to the extent a goroutine-per-thread
// model can honor it: a thread that never yields still holds the
// baton until it does, since nothing here can suspend an arbitrary
// running goroutine mid-instruction. What this does guarantee is that
// the COUNT/COMPARE/ExcInt path is exercised by every real boot and
// run, not left dead.
func (k *Kernel) RunAll() {
	for k.Threads.RunOnce() {
		k.Machine.Tick()
		if machine.IsInterruptPending(k.Machine.ReadCause(), machine.ClockIRQ) {
			exc.Fault(k.Machine, k.Machine.ReadCause(), 0, nil, k.cfg.Cycles)
		}
	}
}

// RunImage starts name as a new process in a memSize-byte address
// space and runs the dispatch loop until every process has finished,
// returning that new process's exit code and join status. Used by
// the monitor's "run" command and by process integration tests.
func (k *Kernel) RunImage(name string, img process.Image, memSize uint64) (int, errs.KernelError) {
	p, err := k.Spawn(name, img, memSize)
	if !err.Ok() {
		return 0, err
	}
	k.RunAll()
	return process.Join(k.Threads, p)
}
