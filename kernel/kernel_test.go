package kernel

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/lirikmaxhuni/amxos/bootconfig"
	"github.com/lirikmaxhuni/amxos/interrupt"
	"github.com/lirikmaxhuni/amxos/paging"
	"github.com/lirikmaxhuni/amxos/task"
)

func newTestKernel() *Kernel {
	cfg := bootconfig.Default()
	cfg.MemorySize = 4 * 1024 * 1024
	cfg.HeapSize = 64 * 1024
	cfg.TaskCapacity = 4
	cfg.StackSize = 4096
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return New(cfg, log)
}

func TestBootInstallsVectorsAndEnablesInterrupts(t *testing.T) {
	k := newTestKernel()
	k.Boot()

	if !k.Bus.InterruptsEnabled() {
		t.Fatalf("Boot must end with interrupts enabled")
	}
	if !k.IDT.Loaded() {
		t.Fatalf("Boot must load the IDT")
	}
	if !k.Paging.Initialized() {
		t.Fatalf("Boot must enable paging")
	}
	if k.Timer == nil {
		t.Fatalf("Boot must create the PIT pulse source")
	}
	k.Shutdown()
}

func TestHaltStopsAllDelivery(t *testing.T) {
	k := newTestKernel()
	k.Boot()

	k.TriggerPageFault(0xDEADBEEF, 0x00000002)
	if !k.Bus.Halted() {
		t.Fatalf("page fault must halt the bus")
	}

	k.DeliverTimerIRQ()
	if got := k.Ticks(); got != 0 {
		t.Fatalf("Ticks() = %d after halt, want 0: a halted machine accepts no IRQs", got)
	}
	k.DeliverKeyboardIRQ(0x1E)
	if got := k.Keyboard.Getchar(); got != 0 {
		t.Fatalf("Getchar() = %q after halt, want nothing buffered", got)
	}
}

func TestTimerIRQAdvancesSleepingTasks(t *testing.T) {
	k := newTestKernel()
	k.Boot()

	woke := make(chan struct{}, 1)
	sleeper, err := k.Tasks.Create(func() {
		k.Tasks.Sleep(3)
		woke <- struct{}{}
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := k.Tasks.Create(k.idleTask); err != nil {
		t.Fatalf("create idle: %v", err)
	}

	go k.Tasks.Start()

	deadline := time.Now().Add(2 * time.Second)
	for k.Tasks.StateOf(sleeper) != task.Sleeping {
		if time.Now().After(deadline) {
			t.Fatalf("task never reached SLEEPING")
		}
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < 3; i++ {
		k.DeliverTimerIRQ()
	}

	select {
	case <-woke:
	case <-time.After(2 * time.Second):
		t.Fatalf("sleeping task never woke after three timer IRQs")
	}
}

func TestTimerIRQCountsTicksAndRequestsBlink(t *testing.T) {
	k := newTestKernel()
	k.Boot()

	if k.ConsumeCursorBlink() {
		t.Fatalf("no blink request should be pending before any tick")
	}
	if !k.CursorVisible() {
		t.Fatalf("cursor starts visible")
	}
	for i := 0; i < 25; i++ {
		k.DeliverTimerIRQ()
	}
	if got := k.Ticks(); got != 25 {
		t.Fatalf("Ticks() = %d, want 25", got)
	}
	if !k.ConsumeCursorBlink() {
		t.Fatalf("25 ticks must raise a blink request")
	}
	if k.CursorVisible() {
		t.Fatalf("the 25th tick must flip the cursor phase off")
	}
	if k.ConsumeCursorBlink() {
		t.Fatalf("a blink request must be consumed at most once")
	}
}

func TestKeyboardIRQFeedsDecoderRing(t *testing.T) {
	k := newTestKernel()
	k.Boot()

	const scanA = 0x1E
	k.DeliverKeyboardIRQ(scanA)

	if got := k.Keyboard.Getchar(); got != 'a' {
		t.Fatalf("Getchar() = %q, want 'a'", got)
	}
}

func TestTriggerPageFaultHaltsAndWritesDiagnostic(t *testing.T) {
	k := newTestKernel()
	k.Boot()

	k.TriggerPageFault(0xDEADBEEF, 0x00000004)

	if !k.Bus.Halted() {
		t.Fatalf("page fault must halt the bus")
	}
	if k.Bus.InterruptsEnabled() {
		t.Fatalf("page fault must leave interrupts disabled")
	}
	if !strings.Contains(k.FB.Line(paging.FaultRow), "DEADBEEF") {
		t.Fatalf("framebuffer row %d = %q, want the fault address", paging.FaultRow, k.FB.Line(paging.FaultRow))
	}
}

func TestDoubleFaultAlwaysHalts(t *testing.T) {
	k := newTestKernel()
	k.Boot()
	k.IDT.DispatchException(interrupt.VectorDoubleFault)
	if !k.Bus.Halted() {
		t.Fatalf("double fault must halt the bus")
	}
}
