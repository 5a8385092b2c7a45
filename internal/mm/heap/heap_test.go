package heap

import (
	"testing"

	"github.com/rcornwell/msimkernel/internal/errs"
	"github.com/rcornwell/msimkernel/internal/machine"
	"github.com/rcornwell/msimkernel/internal/mm/frame"
)

func newTestHeap(t *testing.T) *Heap {
	t.Helper()
	m := machine.New()
	frames := frame.Init(m, 4*1024*1024)
	return Init(m, frames)
}

func TestHeapBasicFree(t *testing.T) {
	h := newTestHeap(t)

	p, err := h.Alloc(8)
	if !err.Ok() {
		t.Fatalf("alloc: %v", err)
	}
	if err := h.Free(p); !err.Ok() {
		t.Fatalf("free: %v", err)
	}
	q, err := h.Alloc(8)
	if !err.Ok() {
		t.Fatalf("realloc: %v", err)
	}
	if p != q {
		t.Fatalf("basic_free: p=%#x q=%#x, want equal", p, q)
	}
}

func TestHeapBasicUnaligned(t *testing.T) {
	h := newTestHeap(t)
	for size := 0; size < 100; size++ {
		p, err := h.Alloc(size)
		if !err.Ok() {
			t.Fatalf("alloc(%d): %v", size, err)
		}
		if p == 0 {
			t.Fatalf("alloc(%d) returned null", size)
		}
		if p%4 != 0 {
			t.Fatalf("alloc(%d) = %#x, not 4-byte aligned", size, p)
		}
	}
}

func TestHeapBasicCompact(t *testing.T) {
	h := newTestHeap(t)

	var blocks [4]uintptr
	var err errs.KernelError
	for i := range blocks {
		blocks[i], err = h.Alloc(1024)
		if !err.Ok() {
			t.Fatalf("alloc block %d: %v", i, err)
		}
	}
	base := blocks[0]

	for _, i := range []int{1, 0, 2, 3} {
		if err := h.Free(blocks[i]); !err.Ok() {
			t.Fatalf("free block %d: %v", i, err)
		}
	}

	p, err := h.Alloc(4096)
	if !err.Ok() {
		t.Fatalf("alloc(4096) after compaction: %v", err)
	}
	if p != base {
		t.Fatalf("basic_compact: got base %#x, want original base %#x", p, base)
	}
}

func TestHeapDoubleFreeIsBusy(t *testing.T) {
	h := newTestHeap(t)
	p, err := h.Alloc(16)
	if !err.Ok() {
		t.Fatalf("alloc: %v", err)
	}
	if err := h.Free(p); !err.Ok() {
		t.Fatalf("free: %v", err)
	}
	if err := h.Free(p); err.Ok() {
		t.Fatal("expected an error freeing an already-free block")
	}
}

// The heap is sized once at Init and never grows; once its fixed run
// is exhausted, Alloc must return ENOMEM rather than pulling more
// frames from the allocator.
func TestHeapExhaustionReturnsENOMEM(t *testing.T) {
	h := newTestHeap(t)

	var n int
	for {
		if _, err := h.Alloc(machine.PageSize); !err.Ok() {
			if err != errs.ENOMEM {
				t.Fatalf("alloc %d failed with %v, want ENOMEM", n, err)
			}
			break
		}
		n++
		if n > 1<<20 {
			t.Fatal("heap never exhausted; Init reserved an implausibly large run")
		}
	}
	if n == 0 {
		t.Fatal("expected at least one successful allocation before exhaustion")
	}
}
