package kernel

import (
	"testing"

	"github.com/rcornwell/msimkernel/internal/bootconfig"
	"github.com/rcornwell/msimkernel/internal/errs"
	"github.com/rcornwell/msimkernel/internal/testimage"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	cfg := bootconfig.Default()
	cfg.RAMBytes = 4 * 1024 * 1024
	return Boot(cfg)
}

func TestBootWiresEveryComponent(t *testing.T) {
	k := newTestKernel(t)
	if k.Machine == nil || k.Frames == nil || k.ASIDs == nil || k.Heap == nil ||
		k.Sched == nil || k.Threads == nil || k.Images == nil {
		t.Fatal("Boot left a component unwired")
	}
	if k.Frames.PageCount() == 0 {
		t.Fatal("frame allocator has no pages for 4MiB of RAM")
	}
}

func TestRunImageExitScenario(t *testing.T) {
	k := newTestKernel(t)

	code, status := k.RunImage("exit7", k.Images.Exit(7), testimage.DefaultMemSize)
	if status != errs.EOK {
		t.Fatalf("status = %v, want EOK", status)
	}
	if code != 7 {
		t.Fatalf("exit code = %d, want 7", code)
	}
}

func TestRunImageHelloWorldWritesPrinter(t *testing.T) {
	k := newTestKernel(t)

	_, status := k.RunImage("hello", k.Images.HelloWorld("hi"), testimage.DefaultMemSize)
	if status != errs.EOK {
		t.Fatalf("status = %v, want EOK", status)
	}
	if got := string(k.Machine.PrinterOutput()); got != "hi" {
		t.Fatalf("printer output = %q, want %q", got, "hi")
	}
}

func TestRunAllSchedulesMultipleProcessesFairly(t *testing.T) {
	k := newTestKernel(t)

	const n = 4
	procs := make([]int, 0, n)
	for i := 0; i < n; i++ {
		p, err := k.Spawn("spinner", k.Images.Spin(3), testimage.DefaultMemSize)
		if !err.Ok() {
			t.Fatalf("spawn %d: %v", i, err)
		}
		procs = append(procs, p.PID())
	}

	k.RunAll()

	if k.Sched.ReadyLen() != 0 {
		t.Fatalf("ready queue should be empty once every process has finished, got %d", k.Sched.ReadyLen())
	}
}

// RunAll must survive a clock interrupt firing mid-run and routing
// through the real fault dispatcher, rather than leaving COUNT/COMPARE
// untouched between scheduling steps.
func TestRunAllSurvivesClockInterrupt(t *testing.T) {
	cfg := bootconfig.Default()
	cfg.RAMBytes = 4 * 1024 * 1024
	cfg.Cycles = 2 // fire a clock interrupt almost immediately
	k := Boot(cfg)

	code, status := k.RunImage("spin", k.Images.Spin(5), testimage.DefaultMemSize)
	if status != errs.EOK {
		t.Fatalf("status = %v, want EOK", status)
	}
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
}
