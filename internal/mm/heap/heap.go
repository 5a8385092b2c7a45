/*
 * msimkernel - Kernel heap allocator
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

// Package heap is the C3 kernel heap (spec.md §3, §4.3): a
// boundary-tag free-list allocator over one contiguous physical run
// sized once at Init, splitting and coalescing blocks the way a
// freestanding kernel malloc does. Unlike a userspace allocator it
// never grows -- once the run is exhausted, Alloc returns ENOMEM.
package heap

import (
	"github.com/rcornwell/msimkernel/internal/errs"
	"github.com/rcornwell/msimkernel/internal/klog"
	"github.com/rcornwell/msimkernel/internal/machine"
	"github.com/rcornwell/msimkernel/internal/mm/frame"
)

// MinAllocationSize is the smallest block the heap will ever hand out;
// every request is rounded up to a multiple of this, per spec.md §4.3.
const MinAllocationSize = 4

// splitThreshold sets the minimum leftover a split must produce: a
// block is split only when the remainder is at least
// splitThreshold+MinAllocationSize bytes; a smaller remainder is left
// inside the allocated block instead of becoming its own free fragment.
const splitThreshold = 16

// block is one node of the heap's address-ordered doubly linked block
// list, mirroring the teacher's event.Event list style. Every byte of
// heap-managed memory belongs to exactly one block.
type block struct {
	offset uintptr
	size   int
	free   bool
	next   *block
	prev   *block
}

// threadFootprint approximates the heap-resident state one potential
// thread needs -- a thread descriptor plus one semaphore -- the
// sizing unit spec.md §4.3 ties heap capacity to ("enough to house a
// thread descriptor and a semaphore per potential thread").
const threadFootprint = 256

// Heap is the kernel's single dynamic allocator: one contiguous
// physical run, sized once at Init and never grown.
type Heap struct {
	m *machine.Machine

	base  uintptr // KSEG0 address of the first byte under management
	limit uintptr // one past the last byte currently under management
	head  *block  // first block, address order
	tail  *block  // last block, address order
}

// Init reserves a run of frames proportional to available RAM --
// enough that every currently-free frame could in principle back one
// thread descriptor plus one semaphore, with a floor of one frame --
// and returns a Heap managing exactly that run, per spec.md §4.3. It
// panics if the frame allocator cannot grant even the one-frame floor,
// since a kernel with no heap at all cannot boot.
func Init(m *machine.Machine, frames *frame.Allocator) *Heap {
	want := frames.FreeCount() * threadFootprint
	pages := (want + machine.PageSize - 1) / machine.PageSize
	if pages < 1 {
		pages = 1
	}

	phys, err := frames.KAlloc(pages)
	if !err.Ok() {
		klog.PanicKernel("heap: cannot reserve %d pages for the kernel heap: %v", pages, err)
	}

	only := &block{offset: phys, size: pages * machine.PageSize, free: true}
	return &Heap{
		m:     m,
		base:  phys,
		limit: phys + uintptr(pages)*machine.PageSize,
		head:  only,
		tail:  only,
	}
}

func roundUpSize(n int) int {
	if n < MinAllocationSize {
		n = MinAllocationSize
	}
	const align = 8
	return (n + align - 1) &^ (align - 1)
}

// Alloc returns a pointer to a block of at least size bytes, or
// ENOMEM if no free block in the heap's fixed-size run is large
// enough -- spec.md §4.3's final step. The heap never grows past the
// run Init reserved.
func (h *Heap) Alloc(size int) (uintptr, errs.KernelError) {
	if size < 0 {
		return 0, errs.EINVAL
	}
	need := roundUpSize(size)

	enable := h.m.InterruptsDisable()
	defer h.m.InterruptsRestore(enable)

	for b := h.head; b != nil; b = b.next {
		if b.free && b.size >= need {
			return h.carve(b, need), errs.EOK
		}
	}
	return 0, errs.ENOMEM
}

// carve allocates out of free block b, splitting off the remainder as
// a new free block when it is large enough to be worth keeping.
func (h *Heap) carve(b *block, need int) uintptr {
	if b.size-need >= splitThreshold+MinAllocationSize {
		rem := &block{
			offset: b.offset + uintptr(need),
			size:   b.size - need,
			free:   true,
			next:   b.next,
			prev:   b,
		}
		if b.next != nil {
			b.next.prev = rem
		} else {
			h.tail = rem
		}
		b.next = rem
		b.size = need
	}
	b.free = false
	return b.offset
}

// Free returns a previously allocated block to the free list,
// coalescing it with an adjacent free neighbor on either side.
func (h *Heap) Free(ptr uintptr) errs.KernelError {
	enable := h.m.InterruptsDisable()
	defer h.m.InterruptsRestore(enable)

	var b *block
	for c := h.head; c != nil; c = c.next {
		if c.offset == ptr {
			b = c
			break
		}
	}
	if b == nil {
		return errs.ENOENT
	}
	if b.free {
		return errs.EBUSY
	}
	b.free = true

	if b.next != nil && b.next.free {
		n := b.next
		b.size += n.size
		b.next = n.next
		if n.next != nil {
			n.next.prev = b
		} else {
			h.tail = b
		}
	}
	if b.prev != nil && b.prev.free {
		p := b.prev
		p.size += b.size
		p.next = b.next
		if b.next != nil {
			b.next.prev = p
		} else {
			h.tail = p
		}
	}
	return errs.EOK
}

// BlockCount reports the number of blocks (free and used) currently in
// the heap's list, used by tests to assert that Free coalesces back
// down to the same shape Alloc started from.
func (h *Heap) BlockCount() int {
	enable := h.m.InterruptsDisable()
	defer h.m.InterruptsRestore(enable)
	n := 0
	for b := h.head; b != nil; b = b.next {
		n++
	}
	return n
}
