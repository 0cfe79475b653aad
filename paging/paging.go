/*
 * amxos - Identity-mapped paging setup and page-fault diagnostic.
 *
 * Copyright 2024, Richard Cornwell
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

// Package paging builds a coarse identity-mapped page directory over the
// first 16 MiB of physical memory and implements the fatal page-fault
// diagnostic. There is no MMU to program directly in a hosted
// simulation, so Init populates an in-process directory/table model and
// records its effect on cpuio.Bus (CR3, CR0.PG) exactly as a real
// paging init would leave the processor.
package paging

import (
	"fmt"

	"github.com/lirikmaxhuni/amxos/cpuio"
	"github.com/lirikmaxhuni/amxos/framebuffer"
)

const (
	// PageSize is the architecture's page size, 4 KiB.
	PageSize = 4096
	// EntriesPerTable is the number of entries in one page table or
	// the directory: 1024 on a 32-bit non-PAE architecture.
	EntriesPerTable = 1024
	// IdentityMapSize is the span identity-mapped at init, 16 MiB.
	IdentityMapSize = 16 * 1024 * 1024

	numTables = IdentityMapSize / (EntriesPerTable * PageSize) // 4

	// PresentBit and WritableBit are the low two bits of a directory
	// or table entry.
	PresentBit  = 1 << 0
	WritableBit = 1 << 1

	// FaultRow is the framebuffer row the page-fault diagnostic is
	// written to.
	FaultRow = 22
)

// Entry is one directory or page-table entry: a frame address plus flag
// bits in the low 12.
type Entry uint32

// Present reports the entry's present bit.
func (e Entry) Present() bool { return e&PresentBit != 0 }

// Writable reports the entry's writable bit.
func (e Entry) Writable() bool { return e&WritableBit != 0 }

// Directory is the page directory and its backing page tables, four of
// them covering IdentityMapSize once Init has run, plus any extra table
// grown to cover a boot stack range outside that span.
type Directory struct {
	entries     [EntriesPerTable]Entry
	tables      []*[EntriesPerTable]Entry // index = directory entry index
	initialized bool
}

// New returns a zeroed, uninitialized directory.
func New() *Directory {
	return &Directory{}
}

// Init identity-maps [0, IdentityMapSize), ensures the boot stack range
// is mapped present+writable even if it falls outside that span
// (defensive: in this kernel it never does), loads CR3, and sets
// CR0.PG on bus.
func (d *Directory) Init(bus *cpuio.Bus, bootStackLow, bootStackHigh uint32) {
	d.tables = make([]*[EntriesPerTable]Entry, numTables)
	for t := 0; t < numTables; t++ {
		table := &[EntriesPerTable]Entry{}
		base := uint32(t) * EntriesPerTable * PageSize
		for i := 0; i < EntriesPerTable; i++ {
			frame := base + uint32(i)*PageSize
			table[i] = Entry(frame) | PresentBit | WritableBit
		}
		d.tables[t] = table
		d.entries[t] = Entry(t*PageSize) | PresentBit | WritableBit
	}

	d.mapRange(bootStackLow, bootStackHigh)

	d.initialized = true
	// The directory has no real physical address in a hosted
	// simulation; load a fixed, page-aligned placeholder so CR3 is
	// nonzero, matching "a directory is loaded" without claiming a
	// meaningless host address.
	bus.LoadCR3(0x1000)
	bus.EnablePaging()
}

// mapRange walks addr in [low, high) and, for any page outside the
// span Init already identity-mapped, grows a table to cover it. The
// contract only requires this for the boot stack range.
func (d *Directory) mapRange(low, high uint32) {
	if high <= low {
		return
	}
	for addr := low &^ (PageSize - 1); addr < high; addr += PageSize {
		if addr < IdentityMapSize {
			continue // already identity-mapped
		}
		d.mapOutOfRangePage(addr)
	}
}

// mapOutOfRangePage is reached only when the boot stack lies outside
// the identity-mapped span; it is never exercised by this kernel's own
// boot contract (§4.3) but is kept to honor the defensive requirement.
func (d *Directory) mapOutOfRangePage(addr uint32) {
	dirIndex := int(addr / (EntriesPerTable * PageSize))
	if dirIndex >= EntriesPerTable {
		return
	}
	for dirIndex >= len(d.tables) {
		d.tables = append(d.tables, nil)
	}
	if d.tables[dirIndex] == nil {
		d.tables[dirIndex] = &[EntriesPerTable]Entry{}
	}
	tableIndex := int((addr / PageSize) % EntriesPerTable)
	d.tables[dirIndex][tableIndex] = Entry(addr) | PresentBit | WritableBit
}

// Mapped reports whether addr is present+writable under the current
// directory.
func (d *Directory) Mapped(addr uint32) bool {
	dirIndex := int(addr / (EntriesPerTable * PageSize))
	if dirIndex < 0 || dirIndex >= len(d.tables) || d.tables[dirIndex] == nil {
		return false
	}
	tableIndex := int((addr / PageSize) % EntriesPerTable)
	e := d.tables[dirIndex][tableIndex]
	return e.Present() && e.Writable()
}

// DirectoryEntry returns the raw directory entry at index, for tests
// asserting every entry beyond the four identity tables is zero.
func (d *Directory) DirectoryEntry(index int) Entry {
	if index < 0 || index >= EntriesPerTable {
		return 0
	}
	return d.entries[index]
}

// Initialized reports whether Init has run.
func (d *Directory) Initialized() bool { return d.initialized }

// PageFault is the #PF handler: read CR2, format the diagnostic,
// write it to the framebuffer, and halt with interrupts disabled.
// Page faults are fatal in this kernel; there is no recovery path.
func PageFault(bus *cpuio.Bus, fb *framebuffer.Buffer, errCode uint32) {
	addr := bus.CR2()
	line := fmt.Sprintf("Page fault at %08X err: %08X", addr, errCode)
	fb.WriteLine(FaultRow, line, framebuffer.AttrAccent1)
	bus.Cli()
	bus.Halt()
}
