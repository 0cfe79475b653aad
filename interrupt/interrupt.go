/*
 * amxos - Interrupt descriptor table and 8259 PIC.
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

// Package interrupt builds the 256-entry interrupt descriptor table,
// remaps the 8259 PIC pair, and dispatches vectors to registered
// handlers. The "assembly stub" that saves caller-saved state and sends
// EOI is folded into Dispatch: callers invoke Dispatch instead of a raw
// CPU-delivered interrupt, since there is no real IDT-register load in
// a hosted simulation.
package interrupt

import (
	"github.com/lirikmaxhuni/amxos/cpuio"
)

const (
	// NumVectors is the size of the interrupt descriptor table.
	NumVectors = 256

	// MasterCommand and friends: PIC I/O ports.
	MasterCommand uint16 = 0x20
	MasterData    uint16 = 0x21
	SlaveCommand  uint16 = 0xA0
	SlaveData     uint16 = 0xA1

	// MasterOffset and SlaveOffset are the vector offsets the core
	// remaps the PIC to, chosen so IRQs never collide with CPU
	// exception vectors 0-0x1F.
	MasterOffset uint8 = 0x20
	SlaveOffset  uint8 = 0x28

	// Vector numbers the core names.
	VectorIRQ0        = int(MasterOffset) + 0
	VectorIRQ1        = int(MasterOffset) + 1
	VectorPageFault   = 0x0E
	VectorDoubleFault = 0x08

	eoiByte uint8 = 0x20

	// TypeAttrInterruptGate32 is a present, ring-0, 32-bit interrupt
	// gate: present(1) dpl(00) storage(1) type(1110) = 1000_1110.
	TypeAttrInterruptGate32 uint8 = 0x8E

	// CodeSelector is the flat kernel code selector from the boot GDT.
	CodeSelector uint16 = 0x08
)

// Entry is a single packed IDT descriptor, matching the x86 64-bit
// layout: {offset low, selector, zero, type/attrs, offset high}.
type Entry struct {
	OffsetLow  uint16
	Selector   uint16
	AlwaysZero uint8
	TypeAttrs  uint8
	OffsetHigh uint16
}

func newEntry(handler uint32, selector uint16, typeAttrs uint8) Entry {
	return Entry{
		OffsetLow:  uint16(handler & 0xFFFF),
		Selector:   selector,
		AlwaysZero: 0,
		TypeAttrs:  typeAttrs,
		OffsetHigh: uint16(handler >> 16),
	}
}

// Handler is a high-level interrupt service routine. It must not
// block, allocate, or yield; it returns quickly having done its work.
type Handler func()

// Table owns the 256-entry IDT, the per-vector handler hooks, and the
// PIC remap state.
type Table struct {
	bus      *cpuio.Bus
	entries  [NumVectors]Entry
	handlers [NumVectors]Handler
	loaded   bool
}

// New builds a table with every vector pointed at the fallback handler
// (EOI-and-return for IRQs, no-op for exceptions) before any named
// vector is installed. The ordering matters: filling the table with
// defaults after a named vector has been installed would silently
// erase it, so the fallback pass happens here, once, and named vectors
// are always installed afterward.
func New(bus *cpuio.Bus) *Table {
	t := &Table{bus: bus}
	fallback := newEntry(0, CodeSelector, TypeAttrInterruptGate32)
	for i := range t.entries {
		t.entries[i] = fallback
		t.handlers[i] = t.fallbackHandler
	}
	return t
}

// InstallVector registers handler at index with an explicit selector
// and gate attribute byte. The handler address is synthetic (it only
// populates the descriptor fields the testable properties check;
// dispatch always calls handler directly).
func (t *Table) InstallVector(index int, handlerAddr uint32, selector uint16, typeAttrs uint8, handler Handler) {
	t.entries[index] = newEntry(handlerAddr, selector, typeAttrs)
	t.handlers[index] = handler
}

// InstallIRQ0 registers the timer tick handler at vector 0x20.
func (t *Table) InstallIRQ0(handler Handler) {
	t.InstallVector(VectorIRQ0, uint32(VectorIRQ0), CodeSelector, TypeAttrInterruptGate32, handler)
}

// InstallIRQ1 registers the keyboard handler at vector 0x21.
func (t *Table) InstallIRQ1(handler Handler) {
	t.InstallVector(VectorIRQ1, uint32(VectorIRQ1), CodeSelector, TypeAttrInterruptGate32, handler)
}

// InstallPageFault registers the #PF handler at vector 0x0E. #PF is not
// an IRQ and does not go through the PIC/EOI path.
func (t *Table) InstallPageFault(handler Handler) {
	t.entries[VectorPageFault] = newEntry(uint32(VectorPageFault), CodeSelector, TypeAttrInterruptGate32)
	t.handlers[VectorPageFault] = handler
}

// InstallDoubleFault registers the #DF handler at vector 0x08. The core
// always halts on double fault; InstallDoubleFault wraps any supplied handler
// with an unconditional halt.
func (t *Table) InstallDoubleFault(handler Handler) {
	t.entries[VectorDoubleFault] = newEntry(uint32(VectorDoubleFault), CodeSelector, TypeAttrInterruptGate32)
	t.handlers[VectorDoubleFault] = func() {
		if handler != nil {
			handler()
		}
		t.bus.Cli()
		t.bus.Halt()
	}
}

// fallbackHandler never blocks: it simply returns, and Dispatch sends
// EOI for it same as any other accepted IRQ.
func (t *Table) fallbackHandler() {}

// Load is the simulated equivalent of `lidt`: it just marks the table
// as the one in effect. DispatchIRQ and DispatchException do not check
// this mark; they run whether or not Load has been called.
func (t *Table) Load() {
	t.loaded = true
}

// Loaded reports whether Load has been called.
func (t *Table) Loaded() bool {
	return t.loaded
}

// Entry returns the packed descriptor at index, for inspection by
// tests asserting selector, AlwaysZero, and gate-attribute fields.
func (t *Table) Entry(index int) Entry {
	return t.entries[index]
}

// DispatchIRQ runs the handler registered for a hardware IRQ line
// (0-15) and sends EOI: 0x20 to the master always, and also to the
// slave for lines 8-15. EOI is sent even for the fallback handler;
// skipping it would starve the PIC of further deliveries on that line.
// A halted processor delivers nothing.
func (t *Table) DispatchIRQ(irq int) {
	if t.bus.Halted() {
		return
	}
	vector := int(MasterOffset) + irq
	if h := t.handlers[vector]; h != nil {
		h()
	}
	t.bus.Outb(MasterCommand, eoiByte)
	if irq >= 8 {
		t.bus.Outb(SlaveCommand, eoiByte)
	}
}

// DispatchException runs the handler registered for a CPU exception
// vector (no EOI: exceptions don't come through the PIC). A halted
// processor delivers nothing.
func (t *Table) DispatchException(vector int) {
	if t.bus.Halted() {
		return
	}
	if h := t.handlers[vector]; h != nil {
		h()
	}
}

// RemapPIC issues the four ICW bytes to both PICs and programs the
// interrupt mask registers: ICW1 0x11, ICW2 = the two vector offsets,
// ICW3 cascade at IRQ2 (master=0x04, slave=0x02), ICW4 0x01 (8086
// mode).
func (t *Table) RemapPIC(masterOffset, slaveOffset, maskMaster, maskSlave uint8) {
	t.bus.Outb(MasterCommand, 0x11)
	t.bus.Outb(SlaveCommand, 0x11)

	t.bus.Outb(MasterData, masterOffset)
	t.bus.Outb(SlaveData, slaveOffset)

	t.bus.Outb(MasterData, 0x04)
	t.bus.Outb(SlaveData, 0x02)

	t.bus.Outb(MasterData, 0x01)
	t.bus.Outb(SlaveData, 0x01)

	t.bus.Outb(MasterData, maskMaster)
	t.bus.Outb(SlaveData, maskSlave)
}

// DefaultMasterMask unmasks only IRQ0 and IRQ1 (0b11111100).
const DefaultMasterMask uint8 = 0xFC

// DefaultSlaveMask masks every slave line.
const DefaultSlaveMask uint8 = 0xFF
