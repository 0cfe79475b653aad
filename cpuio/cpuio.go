/*
 * amxos - Simulated CPU/port I/O shim.
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

// Package cpuio stands in for the inline-assembly port I/O and control
// register instructions a freestanding x86 kernel would execute directly
// (outb/inb, cli/sti, hlt, mov to/from CR0/CR2/CR3). There is no
// freestanding Go runtime to issue those instructions from, so this
// package models the same contract as an addressable, host-process bus:
// other packages reach ports and control registers through a Bus value,
// which makes the whole nucleus runnable and testable without real rings.
// The IDT load (lidt) is not on the Bus; interrupt.Table.Load models it.
package cpuio

import "sync"

// Bus is the simulated I/O port space plus the handful of control
// registers the kernel touches directly (CR0.PG, CR2, CR3, EFLAGS.IF).
type Bus struct {
	mu    sync.Mutex
	ports [0x10000]uint8

	cr0 uint32
	cr2 uint32
	cr3 uint32

	interruptsEnabled bool
	halted            bool
}

// CR0 paging-enable bit.
const CR0PagingBit uint32 = 0x80000000

// NewBus returns a bus with interrupts disabled, matching the boot
// contract: the kernel enters with interrupts off.
func NewBus() *Bus {
	return &Bus{}
}

// Outb writes a byte to an I/O port.
func (b *Bus) Outb(port uint16, val uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ports[port] = val
}

// Inb reads a byte from an I/O port.
func (b *Bus) Inb(port uint16) uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ports[port]
}

// Cli disables interrupts.
func (b *Bus) Cli() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interruptsEnabled = false
}

// Sti enables interrupts.
func (b *Bus) Sti() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interruptsEnabled = true
}

// InterruptsEnabled reports the current IF flag.
func (b *Bus) InterruptsEnabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.interruptsEnabled
}

// Halt parks the (simulated) processor. Further execution in this
// process continues, but the kernel dispatcher must check Halted and
// stop servicing tasks and interrupts once it is set, matching "hlt"
// under cli.
func (b *Bus) Halt() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.halted = true
}

// Halted reports whether Halt has been called.
func (b *Bus) Halted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.halted
}

// LoadCR3 loads the page directory base register.
func (b *Bus) LoadCR3(pageDirectory uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cr3 = pageDirectory
}

// CR3 returns the page directory base register.
func (b *Bus) CR3() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cr3
}

// EnablePaging sets CR0.PG.
func (b *Bus) EnablePaging() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cr0 |= CR0PagingBit
}

// PagingEnabled reports CR0.PG.
func (b *Bus) PagingEnabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cr0&CR0PagingBit != 0
}

// SetCR2 records the faulting address, as the processor does on #PF.
func (b *Bus) SetCR2(addr uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cr2 = addr
}

// CR2 returns the faulting linear address.
func (b *Bus) CR2() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cr2
}
