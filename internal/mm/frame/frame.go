/*
 * msimkernel - Bitmap physical frame allocator
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

// Package frame is the C1 bitmap physical frame allocator (spec.md
// §3, §4.1): one bit per page-sized frame over [pageStart, end),
// first-fit from low addresses, serialized by the machine's
// interrupts-disable critical section.
package frame

import (
	"github.com/rcornwell/msimkernel/internal/errs"
	"github.com/rcornwell/msimkernel/internal/machine"
)

// Allocator tracks which physical frames in a contiguous range are
// free. The low end of the range holds its own bitmap, as spec.md §3
// describes.
type Allocator struct {
	m *machine.Machine

	pageStart  uintptr // base of the first managed frame
	pageCount  int     // number of frames tracked
	bitmap     []byte  // one bit per frame, 0=free 1=allocated
}

// Init detects usable physical RAM beyond the kernel image (via
// machine.ProbeMemory), reserves page-aligned space for the bitmap at
// the low end, and marks every remaining frame free. Called once at
// boot, per spec.md §4.1.
func Init(m *machine.Machine, ramBytes uint64) *Allocator {
	kernelEnd, topOfRAM := machine.ProbeMemory(ramBytes)

	start := roundUp(kernelEnd, machine.PageSize)
	end := roundDown(topOfRAM, machine.PageSize)

	a := &Allocator{m: m}

	// First guess at page_count ignoring the bitmap's own footprint,
	// then shrink until both the bitmap and the managed pages fit --
	// spec.md §4.1: "recompute page_count so both bitmap and managed
	// pages fit".
	total := (end - start) / machine.PageSize
	for {
		bitmapBytes := (total + 7) / 8
		bitmapPages := roundUp(bitmapBytes, machine.PageSize) / machine.PageSize
		if bitmapPages+total <= (end-start)/machine.PageSize {
			a.pageStart = start + bitmapPages*machine.PageSize
			a.pageCount = int(total)
			a.bitmap = make([]byte, bitmapBytes)
			return a
		}
		total--
		if total == 0 {
			a.pageStart = start
			a.pageCount = 0
			a.bitmap = nil
			return a
		}
	}
}

func roundUp(v uintptr, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

func roundDown(v uintptr, align uintptr) uintptr {
	return v &^ (align - 1)
}

func (a *Allocator) bitSet(i int) bool {
	return a.bitmap[i/8]&(1<<(uint(i)%8)) != 0
}

func (a *Allocator) setBit(i int, v bool) {
	if v {
		a.bitmap[i/8] |= 1 << (uint(i) % 8)
	} else {
		a.bitmap[i/8] &^= 1 << (uint(i) % 8)
	}
}

// Alloc searches the bitmap for the first run of count consecutive
// free frames, marks them allocated, and returns the physical base
// address of the run.
func (a *Allocator) Alloc(count int) (uintptr, errs.KernelError) {
	if count <= 0 {
		return 0, errs.EINVAL
	}

	enable := a.m.InterruptsDisable()
	defer a.m.InterruptsRestore(enable)

	run := 0
	for i := 0; i < a.pageCount; i++ {
		if a.bitSet(i) {
			run = 0
			continue
		}
		run++
		if run == count {
			base := i - count + 1
			for j := base; j <= i; j++ {
				a.setBit(j, true)
			}
			return a.pageStart + uintptr(base)*machine.PageSize, errs.EOK
		}
	}
	return 0, errs.ENOMEM
}

// KAlloc is Alloc translated into a KSEG0 pointer, spec.md §4.1's
// kframe_alloc.
func (a *Allocator) KAlloc(count int) (uintptr, errs.KernelError) {
	phys, err := a.Alloc(count)
	if !err.Ok() {
		return 0, err
	}
	return phys + machine.KSEG0Base, errs.EOK
}

// Free returns count frames starting at phys to the pool. Every bit in
// the range must currently be set, or this is a double free (EBUSY);
// an out-of-range or misaligned range is ENOENT.
func (a *Allocator) Free(count int, phys uintptr) errs.KernelError {
	if count <= 0 || phys < a.pageStart || (phys-a.pageStart)%machine.PageSize != 0 {
		return errs.ENOENT
	}
	base := int((phys - a.pageStart) / machine.PageSize)
	if base < 0 || base+count > a.pageCount {
		return errs.ENOENT
	}

	enable := a.m.InterruptsDisable()
	defer a.m.InterruptsRestore(enable)

	for j := base; j < base+count; j++ {
		if !a.bitSet(j) {
			return errs.EBUSY
		}
	}
	for j := base; j < base+count; j++ {
		a.setBit(j, false)
	}
	return errs.EOK
}

// PageCount reports the total number of frames under management, for
// tests and the boot driver's sizing of dependent pools.
func (a *Allocator) PageCount() int {
	return a.pageCount
}

// FreeCount returns the number of currently-free frames, used by
// heap.Init to size the kernel heap proportionally to available RAM.
func (a *Allocator) FreeCount() int {
	enable := a.m.InterruptsDisable()
	defer a.m.InterruptsRestore(enable)
	n := 0
	for i := 0; i < a.pageCount; i++ {
		if !a.bitSet(i) {
			n++
		}
	}
	return n
}

// AllZero reports whether every bit in the bitmap is currently free,
// the "frame balance" testable property from spec.md §8.
func (a *Allocator) AllZero() bool {
	enable := a.m.InterruptsDisable()
	defer a.m.InterruptsRestore(enable)
	for _, b := range a.bitmap {
		if b != 0 {
			return false
		}
	}
	return true
}
