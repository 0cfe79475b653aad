package interrupt

import (
	"testing"

	"github.com/lirikmaxhuni/amxos/cpuio"
)

func TestEveryEntryWellFormed(t *testing.T) {
	bus := cpuio.NewBus()
	tbl := New(bus)
	tbl.InstallIRQ0(func() {})
	tbl.InstallIRQ1(func() {})
	tbl.InstallPageFault(func() {})
	tbl.InstallDoubleFault(nil)

	for i := 0; i < NumVectors; i++ {
		e := tbl.Entry(i)
		if e.AlwaysZero != 0 {
			t.Fatalf("vector %d: AlwaysZero = %d, want 0", i, e.AlwaysZero)
		}
		if e.Selector != CodeSelector {
			t.Fatalf("vector %d: Selector = %#x, want %#x", i, e.Selector, CodeSelector)
		}
		if e.TypeAttrs != TypeAttrInterruptGate32 {
			t.Fatalf("vector %d: TypeAttrs = %#x, want %#x", i, e.TypeAttrs, TypeAttrInterruptGate32)
		}
	}
}

func TestInstallOrderAvoidsOverwriteBug(t *testing.T) {
	bus := cpuio.NewBus()
	tbl := New(bus)
	ran := false
	tbl.InstallPageFault(func() { ran = true })
	// Building all-fallback-first then installing named vectors last
	// means no subsequent bulk overwrite can erase this registration.
	tbl.DispatchException(VectorPageFault)
	if !ran {
		t.Fatalf("page fault handler was not preserved")
	}
}

func TestDispatchIRQSendsEOI(t *testing.T) {
	bus := cpuio.NewBus()
	tbl := New(bus)
	called := false
	tbl.InstallIRQ0(func() { called = true })
	tbl.DispatchIRQ(0)
	if !called {
		t.Fatalf("IRQ0 handler did not run")
	}
	if bus.Inb(MasterCommand) != 0x20 {
		t.Fatalf("master PIC did not receive EOI")
	}
}

func TestDispatchUnhandledIRQStillEOIs(t *testing.T) {
	bus := cpuio.NewBus()
	tbl := New(bus)
	// No handler installed for IRQ3: fallback must still EOI and must
	// not panic or block.
	tbl.DispatchIRQ(3)
	if bus.Inb(MasterCommand) != 0x20 {
		t.Fatalf("fallback handler must still EOI")
	}
}

func TestSlaveIRQGetsBothEOIs(t *testing.T) {
	bus := cpuio.NewBus()
	tbl := New(bus)
	tbl.DispatchIRQ(10) // vector 0x2A, a slave line
	if bus.Inb(MasterCommand) != 0x20 {
		t.Fatalf("master EOI missing for slave IRQ")
	}
	if bus.Inb(SlaveCommand) != 0x20 {
		t.Fatalf("slave EOI missing for slave IRQ")
	}
}

func TestRemapPICUnmasksOnlyTimerAndKeyboard(t *testing.T) {
	bus := cpuio.NewBus()
	tbl := New(bus)
	tbl.RemapPIC(MasterOffset, SlaveOffset, DefaultMasterMask, DefaultSlaveMask)
	if bus.Inb(MasterData) != DefaultMasterMask {
		t.Fatalf("master mask = %#x, want %#x", bus.Inb(MasterData), DefaultMasterMask)
	}
	if bus.Inb(SlaveData) != DefaultSlaveMask {
		t.Fatalf("slave mask = %#x, want %#x", bus.Inb(SlaveData), DefaultSlaveMask)
	}
}

func TestDoubleFaultHalts(t *testing.T) {
	bus := cpuio.NewBus()
	tbl := New(bus)
	tbl.InstallDoubleFault(nil)
	tbl.DispatchException(VectorDoubleFault)
	if !bus.Halted() {
		t.Fatalf("double fault must halt the processor")
	}
	if bus.InterruptsEnabled() {
		t.Fatalf("double fault must leave interrupts disabled")
	}
}
