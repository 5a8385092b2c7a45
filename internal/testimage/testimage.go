/*
 * msimkernel - Canned userspace test images
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

// Package testimage holds canned userspace "images": process.Image
// values that issue syscalls directly instead of trapping out of
// decoded MIPS instructions, standing in for the original kernel's
// compiled test binaries (kernel/tests/*.c) -- the minimal raw
// instruction streams spec.md §1 scopes the instruction-level ISA out
// of and this reimplementation has no decoder for. Every image is
// still staged as a real byte blob in simulated kernel memory, so
// process.Create's loader has genuine bytes to copy.
package testimage

import (
	"github.com/rcornwell/msimkernel/internal/exc"
	"github.com/rcornwell/msimkernel/internal/machine"
	"github.com/rcornwell/msimkernel/internal/process"
)

// DefaultMemSize is the virtual memory window handed to every canned
// image below: enough for the entry-point header plus the three pages
// spec.md §4.9's initial stack pointer arithmetic assumes.
const DefaultMemSize = 16 * machine.PageSize

// Builder produces images bound to one machine, so each syscall they
// issue lands on the right printer/TLB/CP0 state, and each image's
// bytes are staged in that same machine's simulated physical memory.
type Builder struct {
	m       *machine.Machine
	nextLoc uintptr
}

// NewBuilder creates a Builder for m.
func NewBuilder(m *machine.Machine) *Builder {
	return &Builder{m: m}
}

// stage writes a synthetic image blob to kernel memory and returns its
// location and size, giving process.Create's loader a believable
// img_loc/img_size pair to copy from. The payload bytes themselves are
// never interpreted -- only copied -- since nothing here decodes MIPS
// instructions.
func (b *Builder) stage(payload []byte) (loc uintptr, size int) {
	size = machine.ProcessEntry + len(payload)
	loc = b.nextLoc
	b.nextLoc += uintptr(size)

	buf := make([]byte, size)
	copy(buf[machine.ProcessEntry:], payload)
	b.m.WritePhys(loc, buf)
	return loc, size
}

// Exit returns an image that immediately exits with code.
func (b *Builder) Exit(code int) process.Image {
	loc, size := b.stage([]byte{0})
	return process.Image{Loc: loc, Size: size, Run: func(p *process.Process) {
		r := exc.Syscall(b.m, exc.Exit, uint32(int32(code)), nil, p)
		p.Exit(code)
		exc.ApplyToThread(p.Thread(), r) // never returns.
	}}
}

// HelloWorld returns an image that PUTCHARs each byte of msg, then
// exits 0.
func (b *Builder) HelloWorld(msg string) process.Image {
	loc, size := b.stage([]byte(msg))
	return process.Image{Loc: loc, Size: size, Run: func(p *process.Process) {
		for _, c := range []byte(msg) {
			exc.Syscall(b.m, exc.Putchar, uint32(c), nil, p)
			p.Thread().Yield()
		}
		r := exc.Syscall(b.m, exc.Exit, 0, nil, p)
		p.Exit(0)
		exc.ApplyToThread(p.Thread(), r)
	}}
}

// WriteBuf returns an image that issues one WRITE syscall for data,
// then exits 0.
func (b *Builder) WriteBuf(data []byte) process.Image {
	loc, size := b.stage(data)
	return process.Image{Loc: loc, Size: size, Run: func(p *process.Process) {
		exc.Syscall(b.m, exc.Write, 0, data, p)
		r := exc.Syscall(b.m, exc.Exit, 0, nil, p)
		p.Exit(0)
		exc.ApplyToThread(p.Thread(), r)
	}}
}

// Spin returns an image that yields n times (simulating CPU-bound
// userspace work competing for scheduler slices) before exiting 0.
// Used by scheduler fairness tests.
func (b *Builder) Spin(n int) process.Image {
	loc, size := b.stage([]byte{0})
	return process.Image{Loc: loc, Size: size, Run: func(p *process.Process) {
		for i := 0; i < n; i++ {
			p.Thread().Yield()
		}
		r := exc.Syscall(b.m, exc.Exit, 0, nil, p)
		p.Exit(0)
		exc.ApplyToThread(p.Thread(), r)
	}}
}

// TouchUnmapped returns an image that accesses a virtual address far
// past its own memory window before ever reaching its own exit
// syscall, exercising the C4/C8 TLB-miss-kill path (spec.md §4.4,
// §4.8's TLBL case) end to end.
func (b *Builder) TouchUnmapped() process.Image {
	loc, size := b.stage([]byte{0})
	return process.Image{Loc: loc, Size: size, Run: func(p *process.Process) {
		p.Touch(b.m, machine.InitialVirtual+64*machine.PageSize)
		// Unreachable: an address outside the process's window is
		// never mapped, so Touch kills this thread and never returns.
		r := exc.Syscall(b.m, exc.Exit, 0, nil, p)
		p.Exit(0)
		exc.ApplyToThread(p.Thread(), r)
	}}
}
