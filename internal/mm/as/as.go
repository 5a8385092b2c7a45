/*
 * msimkernel - Address space and ASID pool
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

// Package as is the C2 address space object and ASID pool (spec.md
// §3, §4.2): a single contiguous physical frame run backs each address
// space, translated by formula rather than a page table, plus a LIFO
// pool of the 255 valid hardware ASIDs.
package as

import (
	"github.com/rcornwell/msimkernel/internal/errs"
	"github.com/rcornwell/msimkernel/internal/machine"
	"github.com/rcornwell/msimkernel/internal/mm/frame"
)

// AddrSpace is one process's virtual address space: an ASID, the size
// and physical base of the one contiguous frame run backing it, and a
// refcount -- spec.md §3's { asid, size, phys, refcount }.
type AddrSpace struct {
	asid     uint8
	size     uint64
	phys     uintptr
	refcount int
}

// Pool is the kernel-wide ASID allocator plus the frame allocator it
// draws each address space's backing run from. There is exactly one
// Pool per kernel instance.
type Pool struct {
	m      *machine.Machine
	frames *frame.Allocator

	free []uint8 // LIFO stack of unused ASIDs, 1..255
}

// NewPool seeds the pool with ASIDs 1..255; ASID 0 (machine.InvalidASID)
// is never handed out, per spec.md §4.2.
func NewPool(m *machine.Machine, frames *frame.Allocator) *Pool {
	p := &Pool{m: m, frames: frames}
	for id := 255; id >= 1; id-- {
		p.free = append(p.free, uint8(id))
	}
	return p
}

// Create allocates size/PAGE_SIZE physical frames and a fresh ASID,
// returning a new address space with refcount 1, per spec.md §4.2's
// as_create(size, flags). size must be a positive multiple of
// PAGE_SIZE or this returns EINVAL. If the frame allocator cannot
// satisfy the request, ENOMEM is returned with nothing allocated. If
// the frame run is granted but the ASID pool is exhausted, the frame
// run is rolled back before returning ENOMEM.
func (p *Pool) Create(size uint64) (*AddrSpace, errs.KernelError) {
	if size == 0 || size%machine.PageSize != 0 {
		return nil, errs.EINVAL
	}
	count := int(size / machine.PageSize)

	phys, err := p.frames.Alloc(count)
	if !err.Ok() {
		return nil, err
	}

	enable := p.m.InterruptsDisable()
	if len(p.free) == 0 {
		p.m.InterruptsRestore(enable)
		p.frames.Free(count, phys)
		return nil, errs.ENOMEM
	}
	id := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.m.InterruptsRestore(enable)

	return &AddrSpace{asid: id, size: size, phys: phys, refcount: 1}, errs.EOK
}

// Ref increments an address space's refcount, taken whenever a second
// thread shares it (spec.md §4.6's thread_create, as opposed to
// thread_create_new_as).
func (p *Pool) Ref(a *AddrSpace) {
	enable := p.m.InterruptsDisable()
	defer p.m.InterruptsRestore(enable)
	a.refcount++
}

// Destroy drops a reference; once it reaches zero, the backing frame
// run is freed, every TLB entry tagged with this ASID is purged (so a
// later reuse of the same hardware ASID can never observe stale
// translations), and only then is the ASID returned to the free pool
// -- spec.md §4.2's required ordering.
func (p *Pool) Destroy(a *AddrSpace) errs.KernelError {
	enable := p.m.InterruptsDisable()
	a.refcount--
	remaining := a.refcount
	p.m.InterruptsRestore(enable)

	if remaining > 0 {
		return errs.EOK
	}
	if remaining < 0 {
		return errs.EINVAL
	}

	p.frames.Free(int(a.size/machine.PageSize), a.phys)
	p.m.InvalidateTLB(a.asid)

	enable = p.m.InterruptsDisable()
	p.free = append(p.free, a.asid)
	p.m.InterruptsRestore(enable)
	return errs.EOK
}

// ASID reports the hardware ASID backing a.
func (a *AddrSpace) ASID() uint8 {
	return a.asid
}

// Size reports the byte size of a's virtual window, the value reported
// back to userspace as np_proc_info.virt_mem_size.
func (a *AddrSpace) Size() uint64 {
	return a.size
}

// GetMapping translates a page-aligned virtual address into its
// backing physical address, the formulaic phys + (virt -
// INITIAL_VIRTUAL_ADDRESS) arithmetic of spec.md §4.2's
// as_get_mapping: EINVAL if virt is not page-aligned, ENOENT if virt
// falls outside [INITIAL_VIRTUAL_ADDRESS, INITIAL_VIRTUAL_ADDRESS +
// size).
func (a *AddrSpace) GetMapping(virt uint32) (uint32, errs.KernelError) {
	if virt%machine.PageSize != 0 {
		return 0, errs.EINVAL
	}
	if virt < machine.InitialVirtual || uint64(virt) >= machine.InitialVirtual+a.size {
		return 0, errs.ENOENT
	}
	return uint32(a.phys) + (virt - machine.InitialVirtual), errs.EOK
}
