/*
 * msimkernel - Process abstraction
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

// Package process is the C9 process abstraction (spec.md §4.9): a
// process pairs one userspace thread with a fresh, sized address space
// and an "image" loaded into it. Since this reimplementation has no
// MIPS decoder, the image's instruction stream is a Go closure (see
// internal/testimage), but the loader still performs spec.md's real
// validation and the byte copy from kernel-visible image storage into
// the new address space's user virtual memory.
package process

import (
	"sync"

	"github.com/rcornwell/msimkernel/internal/errs"
	"github.com/rcornwell/msimkernel/internal/exc"
	"github.com/rcornwell/msimkernel/internal/klog"
	"github.com/rcornwell/msimkernel/internal/machine"
	"github.com/rcornwell/msimkernel/internal/thread"
)

var (
	nextPIDMu sync.Mutex
	nextPID   int
)

func allocPID() int {
	nextPIDMu.Lock()
	defer nextPIDMu.Unlock()
	nextPID++
	return nextPID
}

// Image describes a loaded userspace program: Loc/Size describe a
// flat byte blob conceptually already sitting in kernel memory (the
// way a boot loader would have placed a compiled binary), and Run is
// the closure standing in for executing it, per the reasoning in
// internal/exc's package doc.
type Image struct {
	Loc  uintptr // physical address the image bytes live at, kernel-side.
	Size int     // total image size in bytes, including the header region below PROCESS_ENTRY.
	Run  func(p *Process)
}

// Process pairs a userspace thread with its own address space.
type Process struct {
	pid  int
	name string
	t    *thread.Thread

	mu         sync.Mutex
	exitCode   int
	totalTicks uint32
}

// Create starts a new process, per spec.md §4.9's process_create:
// validates that memSize is a page-aligned upper bound on img.Size,
// allocates a fresh address space of memSize bytes (via
// thread.Manager.CreateNewAS), copies the image's payload into that
// address space at PROCESS_ENTRY_POINT, and starts the image running.
// Returns EINVAL if the size validation fails, or ENOMEM if the
// address space cannot be allocated.
func Create(mgr *thread.Manager, name string, img Image, memSize uint64) (*Process, errs.KernelError) {
	if memSize%machine.PageSize != 0 || memSize < uint64(img.Size) {
		return nil, errs.EINVAL
	}

	p := &Process{pid: allocPID(), name: name}

	t, err := mgr.CreateNewAS(name, memSize, func(t *thread.Thread) {
		p.t = t
		loadImage(mgr.Machine(), t, img)
		img.Run(p)
	})
	if !err.Ok() {
		return nil, err
	}
	p.t = t
	return p, errs.EOK
}

// loadImage performs spec.md §4.9's loader steps 1-2: copying the
// image bytes living at img.Loc+PROCESS_ENTRY_POINT in kernel memory
// into the new address space's user virtual memory at
// PROCESS_ENTRY_POINT, for img.Size-PROCESS_ENTRY_POINT bytes. Step 3,
// the jump to userspace, is simulated since there is no instruction
// decoder to actually fetch at entry.
func loadImage(m *machine.Machine, t *thread.Thread, img Image) {
	if img.Size > machine.ProcessEntry {
		payload := m.ReadPhys(img.Loc+machine.ProcessEntry, img.Size-machine.ProcessEntry)
		destPhys, err := t.AddrSpace().GetMapping(machine.ProcessEntry)
		if !err.Ok() {
			klog.PanicKernel("process: image entry point unmapped in its own address space: %v", err)
		}
		m.WritePhys(uintptr(destPhys), payload)
	}

	userSP := uint32(machine.InitialVirtual) + 3*machine.PageSize - 4
	m.JumpToUserspace(userSP, machine.ProcessEntry)
}

// PID returns the process's kernel-assigned identifier.
func (p *Process) PID() int { return p.pid }

// Name returns the process's debug name.
func (p *Process) Name() string { return p.name }

// Thread returns the single userspace thread backing this process.
func (p *Process) Thread() *thread.Thread { return p.t }

// Info satisfies exc.Process, backing the INFO syscall. total_ticks is
// incremented on every call, per spec.md §4.8 -- this reimplementation
// does not attempt true scheduler-tick accounting (an Open Question
// spec.md §9 leaves to the implementation).
func (p *Process) Info() exc.ProcInfo {
	p.mu.Lock()
	p.totalTicks++
	ticks := p.totalTicks
	p.mu.Unlock()

	return exc.ProcInfo{
		PID:         p.pid,
		Name:        p.name,
		ThreadID:    p.t.ID(),
		VirtMemSize: uint32(p.t.AddrSpace().Size()),
		TotalTicks:  ticks,
	}
}

// Translate satisfies exc.Process, resolving a user virtual address
// against this process's own address space.
func (p *Process) Translate(virt uint32) (uint32, errs.KernelError) {
	return p.t.AddrSpace().GetMapping(virt)
}

// Touch simulates one load/store to user virtual address vaddr -- the
// minimal memory-access primitive available without a MIPS
// instruction decoder (see internal/exc's package doc). A misaligned
// address raises an address-error trap; otherwise a TLB miss is
// simulated and routed through the real C4/C8 fault path. An
// unresolvable fault kills the calling thread exactly as a genuine
// trap would, via exc.ApplyToThread; Touch does not return in that
// case.
func (p *Process) Touch(m *machine.Machine, vaddr uint32) {
	code := uint32(machine.ExcTLBL)
	if vaddr%4 != 0 {
		code = machine.ExcAdEL
	}
	m.SetExcCode(code)
	r := exc.Fault(m, m.ReadCause(), vaddr, p.t.AddrSpace(), 0)
	exc.ApplyToThread(p.t, r)
}

// Exit records code as this process's exit status. Called by the
// image when it issues the EXIT syscall; the thread itself is torn
// down by exc.ApplyToThread's call to thread.Thread.Finish.
func (p *Process) Exit(code int) {
	p.mu.Lock()
	p.exitCode = code
	p.mu.Unlock()
}

// Join blocks until the process's thread has finished and returns its
// exit code alongside EOK, or EKILLED if the thread was killed rather
// than exiting normally, per spec.md §4.9's process_join.
func Join(mgr *thread.Manager, p *Process) (int, errs.KernelError) {
	return mgr.Join(p.Thread())
}
