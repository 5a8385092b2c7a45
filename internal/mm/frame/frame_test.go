package frame

import (
	"testing"

	"github.com/rcornwell/msimkernel/internal/errs"
	"github.com/rcornwell/msimkernel/internal/machine"
)

func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	m := machine.New()
	a := Init(m, 4*1024*1024)
	if a.PageCount() == 0 {
		t.Fatal("expected a non-empty page pool for 4MiB of RAM")
	}
	return a
}

func TestFrameAllocFreeBalances(t *testing.T) {
	a := newTestAllocator(t)
	if !a.AllZero() {
		t.Fatal("fresh allocator should be all-zero")
	}

	p1, err := a.Alloc(1)
	if !err.Ok() {
		t.Fatalf("alloc 1: %v", err)
	}
	p2, err := a.Alloc(3)
	if !err.Ok() {
		t.Fatalf("alloc 3: %v", err)
	}
	if a.AllZero() {
		t.Fatal("allocator should not be all-zero with live allocations")
	}

	if err := a.Free(1, p1); !err.Ok() {
		t.Fatalf("free p1: %v", err)
	}
	if err := a.Free(3, p2); !err.Ok() {
		t.Fatalf("free p2: %v", err)
	}
	if !a.AllZero() {
		t.Fatal("balanced alloc/free sequence should return to all-zero")
	}
}

func TestFrameAllocUniqueRanges(t *testing.T) {
	a := newTestAllocator(t)

	seen := make(map[uintptr]bool)
	for i := 0; i < 10; i++ {
		p, err := a.Alloc(2)
		if !err.Ok() {
			t.Fatalf("alloc %d: %v", i, err)
		}
		for o := uintptr(0); o < 2*machine.PageSize; o += machine.PageSize {
			if seen[p+o] {
				t.Fatalf("frame %#x allocated twice", p+o)
			}
			seen[p+o] = true
		}
	}
}

func TestFrameDoubleFreeIsBusy(t *testing.T) {
	a := newTestAllocator(t)
	p, err := a.Alloc(1)
	if !err.Ok() {
		t.Fatalf("alloc: %v", err)
	}
	if err := a.Free(1, p); !err.Ok() {
		t.Fatalf("first free: %v", err)
	}
	if err := a.Free(1, p); err != errs.EBUSY {
		t.Fatalf("second free: got %v, want EBUSY", err)
	}
}

func TestFrameExhaustion(t *testing.T) {
	a := newTestAllocator(t)
	total := a.PageCount()

	_, err := a.Alloc(total + 1)
	if err != errs.ENOMEM {
		t.Fatalf("over-large alloc: got %v, want ENOMEM", err)
	}

	_, err = a.Alloc(total)
	if !err.Ok() {
		t.Fatalf("alloc entire pool: %v", err)
	}
	_, err = a.Alloc(1)
	if err != errs.ENOMEM {
		t.Fatalf("alloc after exhaustion: got %v, want ENOMEM", err)
	}
}

func TestFrameInvalidCount(t *testing.T) {
	a := newTestAllocator(t)
	if _, err := a.Alloc(0); err != errs.EINVAL {
		t.Fatalf("alloc(0): got %v, want EINVAL", err)
	}
	if _, err := a.Alloc(-1); err != errs.EINVAL {
		t.Fatalf("alloc(-1): got %v, want EINVAL", err)
	}
}

func TestFrameFreeUnknownRange(t *testing.T) {
	a := newTestAllocator(t)
	if err := a.Free(1, 0xdeadbeef); err != errs.ENOENT {
		t.Fatalf("free of bogus address: got %v, want ENOENT", err)
	}
}
