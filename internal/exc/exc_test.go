package exc

import (
	"encoding/binary"
	"testing"

	"github.com/rcornwell/msimkernel/internal/errs"
	"github.com/rcornwell/msimkernel/internal/machine"
	"github.com/rcornwell/msimkernel/internal/mm/as"
	"github.com/rcornwell/msimkernel/internal/mm/frame"
	"github.com/rcornwell/msimkernel/internal/mm/tlb"
	"github.com/rcornwell/msimkernel/internal/sched"
	"github.com/rcornwell/msimkernel/internal/thread"
)

type fakeProc struct {
	info ProcInfo
	phys uint32
	err  errs.KernelError
}

func (f fakeProc) Info() ProcInfo { return f.info }
func (f fakeProc) Translate(uint32) (uint32, errs.KernelError) { return f.phys, f.err }

func TestSyscallExit(t *testing.T) {
	m := machine.New()
	code := int32(-3)
	r := Syscall(m, Exit, uint32(code), nil, nil)
	if r.Outcome != Exited {
		t.Fatalf("outcome = %v, want Exited", r.Outcome)
	}
	if r.ExitCode != -3 {
		t.Fatalf("exit code = %d, want -3", r.ExitCode)
	}
}

func TestSyscallPutcharAndWrite(t *testing.T) {
	m := machine.New()
	Syscall(m, Putchar, uint32('A'), nil, nil)
	r := Syscall(m, Write, 0, []byte("BC"), nil)
	if r.Value != 2 {
		t.Fatalf("write value = %d, want 2", r.Value)
	}
	if got := string(m.PrinterOutput()); got != "ABC" {
		t.Fatalf("printer output = %q, want %q", got, "ABC")
	}
}

func TestSyscallInfoWritesRecord(t *testing.T) {
	m := machine.New()
	const userPtr = 0x1000
	proc := fakeProc{
		info: ProcInfo{PID: 42, Name: "p", ThreadID: 1, VirtMemSize: 0x2000, TotalTicks: 7},
		phys: 0x500,
		err:  errs.EOK,
	}
	r := Syscall(m, Info, userPtr, nil, proc)
	if r.Value != 42 {
		t.Fatalf("info PID = %d, want 42", r.Value)
	}

	record := m.ReadPhys(0x500, 12)
	if got := binary.LittleEndian.Uint32(record[0:4]); got != 42 {
		t.Fatalf("record PID = %d, want 42", got)
	}
	if got := binary.LittleEndian.Uint32(record[4:8]); got != 0x2000 {
		t.Fatalf("record VirtMemSize = %#x, want %#x", got, 0x2000)
	}
	if got := binary.LittleEndian.Uint32(record[8:12]); got != 7 {
		t.Fatalf("record TotalTicks = %d, want 7", got)
	}
}

func TestSyscallInfoNullPointerRejected(t *testing.T) {
	m := machine.New()
	proc := fakeProc{info: ProcInfo{PID: 1}}
	r := Syscall(m, Info, 0, nil, proc)
	if r.Value != 3 {
		t.Fatalf("info with NULL pointer = %d, want 3", r.Value)
	}
}

func TestSyscallInfoNoProcessRejected(t *testing.T) {
	m := machine.New()
	r := Syscall(m, Info, 0x1000, nil, nil)
	if r.Value != 3 {
		t.Fatalf("info with no process context = %d, want 3", r.Value)
	}
}

func TestSyscallInfoUntranslatablePointerRejected(t *testing.T) {
	m := machine.New()
	proc := fakeProc{info: ProcInfo{PID: 1}, err: errs.ENOENT}
	r := Syscall(m, Info, 0x1000, nil, proc)
	if r.Value != 3 {
		t.Fatalf("info with untranslatable pointer = %d, want 3", r.Value)
	}
}

func TestSyscallUnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected an unknown syscall number to panic the kernel")
		}
	}()
	Syscall(machine.New(), Number(99), 0, nil, nil)
}

func TestFaultClockInterrupt(t *testing.T) {
	m := machine.New()
	m.RaiseClockInterrupt()
	r := Fault(m, machine.ExcInt, 0, nil, 1000)
	if r.Outcome != Continue {
		t.Fatalf("outcome = %v, want Continue", r.Outcome)
	}
}

func TestFaultUnmappedTLBKillsThread(t *testing.T) {
	m := machine.New()
	as := &fakeAddressSpace{asid: 1}
	r := Fault(m, machine.ExcTLBL<<2, 0, as, 0)
	if r.Outcome != Killed {
		t.Fatalf("outcome = %v, want Killed", r.Outcome)
	}
}

func TestFaultAddressErrorKills(t *testing.T) {
	r := Fault(machine.New(), machine.ExcAdEL<<2, 0, nil, 0)
	if r.Outcome != Killed {
		t.Fatalf("outcome = %v, want Killed", r.Outcome)
	}
}

func TestFaultUnknownCodePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected an unhandled exception code to panic the kernel")
		}
	}()
	Fault(machine.New(), 31<<2, 0, nil, 0)
}

type fakeAddressSpace struct{ asid uint8 }

func (f *fakeAddressSpace) ASID() uint8 { return f.asid }
func (f *fakeAddressSpace) GetMapping(uint32) (uint32, errs.KernelError) {
	return 0, errs.ENOENT
}

var _ tlb.AddressSpace = (*fakeAddressSpace)(nil)

func newTestManager(t *testing.T) *thread.Manager {
	t.Helper()
	m := machine.New()
	s := sched.New(m)
	frames := frame.Init(m, 4*1024*1024)
	pool := as.NewPool(m, frames)
	return thread.NewManager(m, s, pool)
}

func TestApplyToThreadExitedFinishesThread(t *testing.T) {
	mgr := newTestManager(t)

	th, err := mgr.CreateNewAS("exiter", 4*machine.PageSize, func(self *thread.Thread) {
		ApplyToThread(self, Result{Outcome: Exited, ExitCode: 5}) // never returns
	})
	if !err.Ok() {
		t.Fatalf("create: %v", err)
	}
	mgr.Run()

	code, joinErr := mgr.Join(th)
	if joinErr != errs.EOK {
		t.Fatalf("join status = %v, want EOK", joinErr)
	}
	if code != 5 {
		t.Fatalf("exit code = %d, want 5", code)
	}
}

// ApplyToThread's Killed branch must actually terminate the thread, not
// just report EKILLED to the caller -- a joiner must see it too.
func TestApplyToThreadKilledTerminatesAndReportsEKilled(t *testing.T) {
	mgr := newTestManager(t)

	th, err := mgr.CreateNewAS("faulter", 4*machine.PageSize, func(self *thread.Thread) {
		ApplyToThread(self, Result{Outcome: Killed}) // never returns
	})
	if !err.Ok() {
		t.Fatalf("create: %v", err)
	}
	mgr.Run()

	_, joinErr := mgr.Join(th)
	if joinErr != errs.EKILLED {
		t.Fatalf("join status = %v, want EKILLED", joinErr)
	}
}
