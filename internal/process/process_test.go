package process

import (
	"testing"

	"github.com/rcornwell/msimkernel/internal/errs"
	"github.com/rcornwell/msimkernel/internal/exc"
	"github.com/rcornwell/msimkernel/internal/machine"
	"github.com/rcornwell/msimkernel/internal/mm/as"
	"github.com/rcornwell/msimkernel/internal/mm/frame"
	"github.com/rcornwell/msimkernel/internal/sched"
	"github.com/rcornwell/msimkernel/internal/thread"
)

const testMemSize = 4 * machine.PageSize

func newTestManager(t *testing.T) *thread.Manager {
	t.Helper()
	m := machine.New()
	s := sched.New(m)
	frames := frame.Init(m, 4*1024*1024)
	pool := as.NewPool(m, frames)
	return thread.NewManager(m, s, pool)
}

func noopImage(run func(p *Process)) Image {
	return Image{Run: run}
}

// Mirrors the SYSCALL_EXIT(7) scenario: a process that issues EXIT(7)
// should be joinable with EOK and exit_status 7.
func TestProcessExitSyscallScenario(t *testing.T) {
	mgr := newTestManager(t)

	p, err := Create(mgr, "exit7", noopImage(func(p *Process) {
		r := exc.Syscall(nil, exc.Exit, 7, nil, p)
		p.Exit(r.ExitCode)
		exc.ApplyToThread(p.Thread(), r)
	}), testMemSize)
	if !err.Ok() {
		t.Fatalf("create: %v", err)
	}

	mgr.Run()

	code, joinErr := Join(mgr, p)
	if joinErr != errs.EOK {
		t.Fatalf("join status = %v, want EOK", joinErr)
	}
	if code != 7 {
		t.Fatalf("exit code = %d, want 7", code)
	}
}

func TestProcessInfoMatchesIdentity(t *testing.T) {
	mgr := newTestManager(t)

	var info exc.ProcInfo
	p, err := Create(mgr, "whoami", noopImage(func(p *Process) {
		info = p.Info()
		p.Exit(0)
		p.Thread().Finish(0)
	}), testMemSize)
	if !err.Ok() {
		t.Fatalf("create: %v", err)
	}
	mgr.Run()
	Join(mgr, p)

	if info.PID != p.PID() {
		t.Fatalf("info.PID = %d, want %d", info.PID, p.PID())
	}
	if info.Name != "whoami" {
		t.Fatalf("info.Name = %q, want %q", info.Name, "whoami")
	}
	if info.ThreadID != p.Thread().ID() {
		t.Fatalf("info.ThreadID = %d, want %d", info.ThreadID, p.Thread().ID())
	}
	if info.VirtMemSize != testMemSize {
		t.Fatalf("info.VirtMemSize = %d, want %d", info.VirtMemSize, testMemSize)
	}
	if info.TotalTicks != 1 {
		t.Fatalf("info.TotalTicks = %d, want 1 on first call", info.TotalTicks)
	}
}

func TestProcessPIDsAreUnique(t *testing.T) {
	mgr := newTestManager(t)

	var pids []int
	for i := 0; i < 5; i++ {
		p, err := Create(mgr, "p", noopImage(func(p *Process) {
			p.Exit(0)
			p.Thread().Finish(0)
		}), testMemSize)
		if !err.Ok() {
			t.Fatalf("create: %v", err)
		}
		pids = append(pids, p.PID())
	}

	seen := make(map[int]bool)
	for _, pid := range pids {
		if seen[pid] {
			t.Fatalf("PID %d reused", pid)
		}
		seen[pid] = true
	}
}

func TestCreateRejectsUndersizedMemory(t *testing.T) {
	mgr := newTestManager(t)

	img := Image{Loc: 0, Size: 2 * machine.PageSize, Run: func(p *Process) {}}
	if _, err := Create(mgr, "toobig", img, machine.PageSize); err != errs.EINVAL {
		t.Fatalf("create with mem_size < img.Size = %v, want EINVAL", err)
	}
}

func TestCreateRejectsUnalignedMemory(t *testing.T) {
	mgr := newTestManager(t)

	img := Image{Run: func(p *Process) {}}
	if _, err := Create(mgr, "unaligned", img, machine.PageSize+1); err != errs.EINVAL {
		t.Fatalf("create with unaligned mem_size = %v, want EINVAL", err)
	}
}

// TestCreateLoadsImageBytesIntoUserMemory exercises the loader's real
// byte copy: a process whose image carries a payload past PROCESS_ENTRY
// should see that payload readable at its own entry point's physical
// backing, not just a simulated jump.
func TestCreateLoadsImageBytesIntoUserMemory(t *testing.T) {
	m := machine.New()
	s := sched.New(m)
	frames := frame.Init(m, 4*1024*1024)
	pool := as.NewPool(m, frames)
	mgr := thread.NewManager(m, s, pool)

	payload := []byte("hi")
	blob := make([]byte, int(machine.ProcessEntry)+len(payload))
	copy(blob[machine.ProcessEntry:], payload)
	const imgLoc = 0x10000
	m.WritePhys(imgLoc, blob)

	var seen []byte
	img := Image{Loc: imgLoc, Size: len(blob), Run: func(p *Process) {
		destPhys, err := p.Thread().AddrSpace().GetMapping(machine.ProcessEntry)
		if !err.Ok() {
			t.Errorf("GetMapping(entry): %v", err)
		}
		seen = m.ReadPhys(uintptr(destPhys), len(payload))
		p.Exit(0)
		p.Thread().Finish(0)
	}}

	p, err := Create(mgr, "loader", img, 8*machine.PageSize)
	if !err.Ok() {
		t.Fatalf("create: %v", err)
	}
	mgr.Run()
	Join(mgr, p)

	if string(seen) != "hi" {
		t.Fatalf("image payload copied into user memory = %q, want %q", seen, "hi")
	}
}

// TestTouchUnmappedKillsThread exercises the real TLB-miss fault path:
// touching an address outside the process's own window must kill it,
// the way a genuine unresolvable trap would.
func TestTouchUnmappedKillsThread(t *testing.T) {
	mgr := newTestManager(t)
	m := mgr.Machine()

	img := Image{Run: func(p *Process) {
		p.Touch(m, machine.InitialVirtual+64*machine.PageSize) // never returns
		p.Exit(0)
		p.Thread().Finish(0)
	}}

	p, err := Create(mgr, "toucher", img, testMemSize)
	if !err.Ok() {
		t.Fatalf("create: %v", err)
	}
	mgr.Run()

	_, joinErr := Join(mgr, p)
	if joinErr != errs.EKILLED {
		t.Fatalf("join status = %v, want EKILLED", joinErr)
	}
}
