package paging

import (
	"strings"
	"testing"

	"github.com/lirikmaxhuni/amxos/cpuio"
	"github.com/lirikmaxhuni/amxos/framebuffer"
)

func TestIdentityMapCoversSixteenMiB(t *testing.T) {
	bus := cpuio.NewBus()
	d := New()
	d.Init(bus, 0, 0)

	for _, addr := range []uint32{0, PageSize, IdentityMapSize - PageSize} {
		if !d.Mapped(addr) {
			t.Fatalf("addr %#x: expected mapped inside identity range", addr)
		}
	}
	if d.Mapped(IdentityMapSize) {
		t.Fatalf("addr at IdentityMapSize boundary must not be mapped by identity range alone")
	}
}

func TestDirectoryEntriesBeyondFourAreZero(t *testing.T) {
	bus := cpuio.NewBus()
	d := New()
	d.Init(bus, 0, 0)

	for i := 0; i < numTables; i++ {
		e := d.DirectoryEntry(i)
		if !e.Present() || !e.Writable() {
			t.Fatalf("directory entry %d: expected present+writable, got %#x", i, e)
		}
	}
	for i := numTables; i < EntriesPerTable; i++ {
		if d.DirectoryEntry(i) != 0 {
			t.Fatalf("directory entry %d: expected zero, got %#x", i, d.DirectoryEntry(i))
		}
	}
}

func TestInitLoadsCR3AndEnablesPaging(t *testing.T) {
	bus := cpuio.NewBus()
	d := New()
	if bus.PagingEnabled() {
		t.Fatalf("paging must be disabled before Init")
	}
	d.Init(bus, 0, 0)
	if !bus.PagingEnabled() {
		t.Fatalf("Init must set CR0.PG")
	}
	if bus.CR3() == 0 {
		t.Fatalf("Init must load a nonzero CR3")
	}
}

func TestBootStackOutsideIdentityRangeIsMapped(t *testing.T) {
	bus := cpuio.NewBus()
	d := New()
	low := uint32(IdentityMapSize + PageSize)
	high := low + 3*PageSize
	d.Init(bus, low, high)

	if !d.Mapped(low) || !d.Mapped(low+PageSize) {
		t.Fatalf("boot stack range outside the identity map must still be mapped")
	}
}

func TestPageFaultDiagnosticAndHalt(t *testing.T) {
	bus := cpuio.NewBus()
	fb := framebuffer.New()
	bus.SetCR2(0xDEADBEEF)

	PageFault(bus, fb, 0x00000004)

	line := fb.Line(FaultRow)
	if !strings.Contains(line, "Page fault at DEADBEEF") {
		t.Fatalf("row %d = %q, want it to contain the faulting address", FaultRow, line)
	}
	if !strings.Contains(line, "00000004") {
		t.Fatalf("row %d = %q, want it to contain the 8-hex-digit error code", FaultRow, line)
	}
	if !bus.Halted() {
		t.Fatalf("page fault must halt the processor")
	}
	if bus.InterruptsEnabled() {
		t.Fatalf("page fault must leave interrupts disabled")
	}
}
