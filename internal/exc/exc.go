/*
 * msimkernel - Exception and syscall dispatcher
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

// Package exc is the C8 exception and syscall dispatcher (spec.md
// §4.8): it decodes CAUSE's 5-bit exception code and routes to the
// TLB refill handler, the clock tick handler, or one of the four
// syscalls a test image can issue (EXIT, PUTCHAR, WRITE, INFO).
//
// There is no MIPS instruction decoder here -- building one is its own
// project, and spec.md's testable scenarios never require executing
// arbitrary compiled user code. A "syscall trap" in this
// reimplementation is a direct call into Syscall from the running
// test image (internal/testimage), carrying the syscall number (v0)
// and the single a0 argument, plus WRITE's bytes as a Go slice in
// place of the user pointer a0 would carry.
package exc

import (
	"encoding/binary"

	"github.com/rcornwell/msimkernel/internal/errs"
	"github.com/rcornwell/msimkernel/internal/klog"
	"github.com/rcornwell/msimkernel/internal/machine"
	"github.com/rcornwell/msimkernel/internal/mm/tlb"
	"github.com/rcornwell/msimkernel/internal/thread"
)

// Number identifies a syscall, spec.md §4.8's four-entry table.
type Number int

const (
	Exit Number = iota
	Putchar
	Write
	Info
)

// ProcInfo mirrors np_proc_info, spec.md §6's mandatory userspace-
// visible record: { id, virt_mem_size, total_ticks }, plus two
// debug-only fields (Name, ThreadID) this reimplementation reports
// for the monitor but which are not part of that wire layout.
type ProcInfo struct {
	PID         int
	Name        string
	ThreadID    int
	VirtMemSize uint32
	TotalTicks  uint32
}

// Process is the subset of process.Process the dispatcher needs,
// kept as an interface so this package never imports process
// (process imports exc, not the other way around).
type Process interface {
	Info() ProcInfo
	// Translate resolves a user virtual address to the physical
	// address the INFO syscall should write its result record to.
	Translate(virt uint32) (uint32, errs.KernelError)
}

// Outcome reports what the dispatcher decided a trap should do to the
// faulting thread.
type Outcome int

const (
	Continue Outcome = iota // trap handled, thread resumes.
	Exited                  // EXIT syscall: thread should finish(code).
	Killed                  // unresolvable fault: thread should be killed.
)

// Result is the outcome of a Syscall or Fault call.
type Result struct {
	Outcome  Outcome
	ExitCode int
	Value    uint32 // return value for syscalls that produce one (WRITE's byte count).
}

// Syscall executes one of the four syscalls a test image may issue.
// proc may be nil for syscalls that do not need process identity.
func Syscall(m *machine.Machine, num Number, arg0 uint32, data []byte, proc Process) Result {
	switch num {
	case Exit:
		return Result{Outcome: Exited, ExitCode: int(int32(arg0))}

	case Putchar:
		m.PrinterPutchar(byte(arg0))
		return Result{Outcome: Continue}

	case Write:
		for _, b := range data {
			m.PrinterPutchar(b)
		}
		return Result{Outcome: Continue, Value: uint32(len(data))}

	case Info:
		// arg0 is the user pointer np_proc_info should be written to;
		// a NULL pointer (or no process context at all) is rejected
		// with 3, per spec.md §4.8.
		if proc == nil || arg0 == 0 {
			return Result{Outcome: Continue, Value: 3}
		}
		info := proc.Info()
		phys, err := proc.Translate(arg0)
		if !err.Ok() {
			return Result{Outcome: Continue, Value: 3}
		}
		var record [12]byte
		binary.LittleEndian.PutUint32(record[0:4], uint32(info.PID))
		binary.LittleEndian.PutUint32(record[4:8], info.VirtMemSize)
		binary.LittleEndian.PutUint32(record[8:12], info.TotalTicks)
		m.WritePhys(uintptr(phys), record[:])
		return Result{Outcome: Continue, Value: uint32(info.PID)}

	default:
		klog.PanicKernel("exc: unknown syscall number %d", num)
		return Result{} // unreachable
	}
}

// Fault handles a non-syscall trap: a TLB miss (ExcTLBL/ExcTLBS),
// an address error (ExcAdEL), or a coprocessor-unusable trap
// (ExcCpU, since this reimplementation carries no floating-point
// context per spec.md's non-goals). A clock interrupt (ExcInt) clears
// itself, re-arms COMPARE for another cycles ticks, and returns
// Continue; it does not switch threads or mark the scheduler for
// rotation. Everything else is an unhandled exception and panics the
// kernel, per spec.md §7.
func Fault(m *machine.Machine, cause uint32, badVAddr uint32, as tlb.AddressSpace, cycles uint32) Result {
	switch machine.ExcCode(cause) {
	case machine.ExcInt:
		m.ClearClockInterrupt()
		m.WriteCompare(cycles)
		return Result{Outcome: Continue}

	case machine.ExcTLBL, machine.ExcTLBS:
		if tlb.Refill(m, as, badVAddr) {
			return Result{Outcome: Continue}
		}
		return Result{Outcome: Killed}

	case machine.ExcAdEL:
		return Result{Outcome: Killed}

	case machine.ExcCpU:
		return Result{Outcome: Killed}

	default:
		klog.PanicKernel("exc: unhandled exception code %d", machine.ExcCode(cause))
		return Result{} // unreachable
	}
}

// ApplyToThread drives a thread (and, for EXIT, its exit code) to match
// a dispatch Result, so callers in process/testimage don't each need
// to repeat the same three-way switch.
func ApplyToThread(t *thread.Thread, r Result) errs.KernelError {
	switch r.Outcome {
	case Exited:
		t.Finish(r.ExitCode) // never returns: runs runtime.Goexit internally.
		return errs.EOK
	case Killed:
		t.Kill() // never returns: self-kill via runtime.Goexit.
		return errs.EKILLED
	default:
		return errs.EOK
	}
}
