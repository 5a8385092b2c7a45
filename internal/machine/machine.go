/*
   msimkernel - Simulated CP0 register file and TLB hardware.

   Copyright (c) 2026, msimkernel contributors

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/

// Package machine stands in for the MSIM-simulated MIPS R4000 hardware
// spec.md §6 treats as external: CP0 register accessors, the 48-entry
// TLB, cpu_switch_context/cpu_jump_to_userspace, the printer MMIO
// register, and machine halt. Everything here is single-goroutine
// state guarded by a package mutex standing in for "disable interrupts".
package machine

import (
	"fmt"
	"sync"

	"github.com/rcornwell/msimkernel/internal/klog"
)

// Constants from spec.md §6.
const (
	PageSize        = 4096
	FrameSize       = 4096
	ThreadStackSize = 4096
	ThreadNameMax   = 31
	TLBEntryCount   = 48
	ASIDCount       = 256
	InitialVirtual  = PageSize
	ProcessEntry    = 0x00004000
	Cycles          = 100000
	KSEG0Base       = 0x80000000
	InvalidASID     = 0
)

// Exception cause codes (CP0 Cause register ExcCode field).
const (
	ExcInt  = 0
	ExcTLBL = 2
	ExcTLBS = 3
	ExcAdEL = 4
	ExcSys  = 8
	ExcCpU  = 11
)

// Interrupt pending bits within Cause.IP.
const ClockIRQ = 7

// TLBEntry mirrors one hardware TLB row: an even/odd PFN pair tagged by
// VPN2 and ASID.
type TLBEntry struct {
	VPN2       uint32
	ASID       uint8
	PFNEven    uint32
	PFNOdd     uint32
	ValidEven  bool
	ValidOdd   bool
	DirtyEven  bool
	DirtyOdd   bool
	GlobalPage bool
}

// Machine is the simulated CP0 register file plus TLB array. It is the
// concrete body for spec.md §6's "Hardware interface (assumed by the
// core, provided externally)".
type Machine struct {
	mu sync.Mutex

	status uint32 // STATUS register; bit 0 is IE (interrupts enabled).
	cause  uint32 // CAUSE register; ExcCode in bits 2-6, IP in bits 8-15.
	count  uint32 // free-running cycle counter.
	compar uint32 // COMPARE: raises the timer IP bit when count reaches it.
	index  uint32
	random uint32

	entryHiVPN2 uint32
	entryHiASID uint8
	pageMask    uint32
	entryLo0    TLBEntry
	entryLo1    TLBEntry

	tlb [TLBEntryCount]TLBEntry

	printed []byte // printer_putchar MMIO sink.
	halted  bool

	physMem []byte // simulated physical byte store backing ReadPhys/WritePhys.

	// bkl ("big kernel lock") is what InterruptsDisable/InterruptsRestore
	// actually hold. Every critical section spec.md §5 lists (scheduler,
	// frame allocator, heap, sync primitives, ASID pool, running_thread,
	// process attach, global-table init) brackets its mutation with
	// these two calls instead of a second, independent lock -- matching
	// §5's "there is exactly one mechanism for atomicity". Callers must
	// not call InterruptsDisable again while already holding it; nested
	// critical sections are a bug in the caller, not in this package.
	bkl sync.Mutex
}

const statusIEBit = 1 << 0

// New creates a Machine with interrupts disabled and an empty TLB, the
// reset state of real CP0 hardware.
func New() *Machine {
	return &Machine{}
}

// --- CP0 register accessors (spec.md §6) ---

// ReadStatus returns the raw STATUS register.
func (m *Machine) ReadStatus() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// WriteStatus overwrites the raw STATUS register.
func (m *Machine) WriteStatus(v uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = v
}

// InterruptsDisable acquires the kernel's sole critical-section lock
// and clears STATUS.IE, returning whether it was set beforehand -- the
// exact contract spec.md §4.8 and §6 require.
func (m *Machine) InterruptsDisable() bool {
	m.bkl.Lock()
	m.mu.Lock()
	was := m.status&statusIEBit != 0
	m.status &^= statusIEBit
	m.mu.Unlock()
	return was
}

// InterruptsRestore writes STATUS.IE back to enable (unconditionally)
// and releases the critical-section lock taken by InterruptsDisable.
func (m *Machine) InterruptsRestore(enable bool) {
	m.mu.Lock()
	if enable {
		m.status |= statusIEBit
	} else {
		m.status &^= statusIEBit
	}
	m.mu.Unlock()
	m.bkl.Unlock()
}

// ReadCause returns the CAUSE register.
func (m *Machine) ReadCause() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cause
}

// SetExcCode sets CAUSE's 5-bit exception code field, simulating the
// CPU trapping into the dispatcher.
func (m *Machine) SetExcCode(code uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cause = (m.cause &^ (0x1f << 2)) | ((code & 0x1f) << 2)
}

// ExcCode extracts the exception code from a CAUSE value.
func ExcCode(cause uint32) uint32 {
	return (cause >> 2) & 0x1f
}

// IsInterruptPending reports whether CAUSE.IP has bit irq set.
func IsInterruptPending(cause uint32, irq uint) bool {
	return cause&(1<<(8+irq)) != 0
}

// RaiseClockInterrupt sets the clock IP bit and the Int exception code,
// simulating COUNT reaching COMPARE.
func (m *Machine) RaiseClockInterrupt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cause |= 1 << (8 + ClockIRQ)
	m.cause &^= 0x1f << 2 // ExcInt == 0
}

// ClearClockInterrupt clears the clock IP bit, as if COMPARE were
// rewritten (the real hardware's side effect of writing CP0 COMPARE).
func (m *Machine) ClearClockInterrupt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cause &^= 1 << (8 + ClockIRQ)
}

// WriteCompare arms the timer for `cycles` COUNT ticks from now.
func (m *Machine) WriteCompare(cycles uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compar = m.count + cycles
	m.cause &^= 1 << (8 + ClockIRQ)
}

// Tick advances COUNT by one and raises the clock interrupt if COMPARE
// was reached, the hardware behavior backing timer-driven preemption.
func (m *Machine) Tick() {
	m.mu.Lock()
	m.count++
	fire := m.count == m.compar
	m.mu.Unlock()
	if fire {
		m.RaiseClockInterrupt()
	}
}

// WritePageMask4K records a PageMask write. Only the 4K page size is
// ever used (spec.md §4.4), so this simply documents the write.
func (m *Machine) WritePageMask4K() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageMask = 0
}

// WriteEntryLo0 stages EntryLo0 for the next TLB write.
func (m *Machine) WriteEntryLo0(pfn uint32, dirty, valid, global bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entryLo0 = TLBEntry{PFNEven: pfn, DirtyEven: dirty, ValidEven: valid, GlobalPage: global}
}

// WriteEntryLo1 stages EntryLo1 for the next TLB write.
func (m *Machine) WriteEntryLo1(pfn uint32, dirty, valid, global bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entryLo1 = TLBEntry{PFNOdd: pfn, DirtyOdd: dirty, ValidOdd: valid, GlobalPage: global}
}

// WriteEntryHi stages EntryHi (VPN2, ASID) for the next TLB write.
// virt must be the even-page address of the pair; only its VPN2 bits
// (above bit 13) are kept.
func (m *Machine) WriteEntryHi(virt uint32, asid uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entryHiVPN2 = virt >> 13
	m.entryHiASID = asid
}

// TLBWriteRandom programs one TLB entry (any index) from the currently
// staged EntryHi/EntryLo0/EntryLo1, simulating `tlb_write_random`.
func (m *Machine) TLBWriteRandom() {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.random % TLBEntryCount
	m.random++
	m.tlb[idx] = TLBEntry{
		VPN2:       m.entryHiVPN2,
		ASID:       m.entryHiASID,
		PFNEven:    m.entryLo0.PFNEven,
		ValidEven:  m.entryLo0.ValidEven,
		DirtyEven:  m.entryLo0.DirtyEven,
		PFNOdd:     m.entryLo1.PFNOdd,
		ValidOdd:   m.entryLo1.ValidOdd,
		DirtyOdd:   m.entryLo1.DirtyOdd,
		GlobalPage: m.entryLo0.GlobalPage || m.entryLo1.GlobalPage,
	}
}

// ReadEntryASID returns the ASID tagging TLB row i, spec.md §4.4's
// `tlb_read_entry_asid(i)`.
func (m *Machine) ReadEntryASID(i int) uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tlb[i].ASID
}

// WriteTLBIndexed overwrites TLB row i directly, used by
// InvalidateTLB to rewrite an entry as invalid/unowned.
func (m *Machine) WriteTLBIndexed(i int, e TLBEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tlb[i] = e
}

// InvalidateTLB rewrites every TLB row tagged with asid to
// valid=false, ASID=InvalidASID, per spec.md §4.4.
func (m *Machine) InvalidateTLB(asid uint8) {
	for i := 0; i < TLBEntryCount; i++ {
		if m.ReadEntryASID(i) == asid {
			m.WriteTLBIndexed(i, TLBEntry{ASID: InvalidASID})
		}
	}
}

// LookupTLB returns the TLB row matching vpn2/asid, or ok=false.
func (m *Machine) LookupTLB(vpn2 uint32, asid uint8) (TLBEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.tlb {
		if e.ASID == asid && e.VPN2 == vpn2 && (e.ValidEven || e.ValidOdd) {
			return e, true
		}
	}
	return TLBEntry{}, false
}

// ReadPhys reads length bytes of simulated physical memory starting at
// phys, zero-filling any portion past what has ever been written. This
// stands in for the byte-addressable RAM the real loader and INFO
// syscall read and write directly.
func (m *Machine) ReadPhys(phys uintptr, length int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, length)
	if int(phys) >= len(m.physMem) {
		return out
	}
	end := int(phys) + length
	if end > len(m.physMem) {
		end = len(m.physMem)
	}
	copy(out, m.physMem[phys:end])
	return out
}

// WritePhys writes data into simulated physical memory at phys,
// growing the backing store if the write runs past its current end.
func (m *Machine) WritePhys(phys uintptr, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := int(phys) + len(data)
	if end > len(m.physMem) {
		grown := make([]byte, end)
		copy(grown, m.physMem)
		m.physMem = grown
	}
	copy(m.physMem[phys:end], data)
}

// JumpToUserspace simulates cpu_jump_to_userspace: real hardware would
// switch to user mode and start fetching at entry with stack pointer
// sp. This reimplementation has no instruction decoder, so the "jump"
// is just logged -- the calling goroutine's Image.Run closure is what
// actually represents the running program from here on.
func (m *Machine) JumpToUserspace(sp, entry uint32) {
	klog.Printk("jump to userspace sp=%#x entry=%#x", sp, entry)
}

// --- Printer MMIO / halt (spec.md §6) ---

// PrinterPutchar writes one byte to the simulated printer MMIO port.
func (m *Machine) PrinterPutchar(c byte) {
	m.mu.Lock()
	m.printed = append(m.printed, c)
	m.mu.Unlock()
}

// PrinterOutput returns everything written to the printer so far, for
// tests and the monitor's `dump` command.
func (m *Machine) PrinterOutput() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.printed))
	copy(out, m.printed)
	return out
}

// Halt stops the simulated machine. Real hardware never returns from
// this; the host process instead records the halted flag so the boot
// driver's run loop can observe it and stop feeding ticks.
func (m *Machine) Halt(reason string) {
	m.mu.Lock()
	m.halted = true
	m.mu.Unlock()
	klog.Printk("machine halted: %s", reason)
}

// Halted reports whether Halt was called.
func (m *Machine) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// ProbeMemory stands in for the original kernel's linker-provided
// `_kernel_end` plus the debug memory-probing routine (spec.md §1, §6):
// it reports where the "kernel image" ends and the last usable
// physical byte, given a configured RAM size.
func ProbeMemory(ramBytes uint64) (kernelEnd uintptr, topOfRAM uintptr) {
	const reservedForKernelImage = 64 * PageSize
	return uintptr(reservedForKernelImage), uintptr(ramBytes)
}

// String renders a TLB entry for monitor/debug dumps.
func (e TLBEntry) String() string {
	return fmt.Sprintf("vpn2=%#x asid=%d even[pfn=%#x v=%v d=%v] odd[pfn=%#x v=%v d=%v]",
		e.VPN2, e.ASID, e.PFNEven, e.ValidEven, e.DirtyEven, e.PFNOdd, e.ValidOdd, e.DirtyOdd)
}
