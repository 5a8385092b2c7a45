/*
 * msimkernel - TLB refill handler
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

// Package tlb is the C4 software TLB refill handler (spec.md §4.4):
// on a TLBL/TLBS miss it resolves the even/odd page pair for the
// faulting VPN2 against the running address space's formulaic
// translation and programs one hardware TLB row, or reports that the
// fault is unresolvable so the dispatcher can kill the faulting
// thread.
package tlb

import (
	"github.com/rcornwell/msimkernel/internal/errs"
	"github.com/rcornwell/msimkernel/internal/klog"
	"github.com/rcornwell/msimkernel/internal/machine"
)

// AddressSpace is the subset of mm/as.AddrSpace the refill handler
// needs; kept as an interface so tests can fake a translation without
// pulling in the ASID pool.
type AddressSpace interface {
	ASID() uint8
	GetMapping(virt uint32) (phys uint32, err errs.KernelError)
}

// Refill resolves a TLB miss for badVAddr against as and programs the
// hardware TLB. It returns false when neither half of the VPN2 pair
// has a mapping, meaning the access was to genuinely unmapped memory
// and the dispatcher must kill the faulting thread (spec.md §4.4's
// "both halves unmapped" edge case).
func Refill(m *machine.Machine, as AddressSpace, badVAddr uint32) bool {
	vpn2 := badVAddr >> 13
	evenVirt := (vpn2 * 2) << 12
	oddVirt := evenVirt + machine.PageSize

	evenPFN, evenOK := resolve(as, evenVirt)
	oddPFN, oddOK := resolve(as, oddVirt)
	if !evenOK && !oddOK {
		return false
	}

	m.WritePageMask4K()
	m.WriteEntryHi(evenVirt, as.ASID())
	m.WriteEntryLo0(evenPFN, true, evenOK, false)
	m.WriteEntryLo1(oddPFN, true, oddOK, false)
	m.TLBWriteRandom()
	return true
}

// resolve translates one page-aligned half of a VPN2 pair. ENOENT
// means the page simply isn't mapped, which Refill tolerates for one
// half of the pair. EINVAL (misaligned input) or any other code means
// the refill handler built a bad virtual address, which is a kernel
// bug rather than a userspace fault, per spec.md §4.4.
func resolve(as AddressSpace, virt uint32) (uint32, bool) {
	phys, err := as.GetMapping(virt)
	switch err {
	case errs.EOK:
		return phys / machine.PageSize, true
	case errs.ENOENT:
		return 0, false
	default:
		klog.PanicKernel("tlb: as_get_mapping(%#x) returned %v for a page-aligned address", virt, err)
		return 0, false
	}
}
