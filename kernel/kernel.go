/*
 * amxos - Kernel nucleus wiring.
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

// Package kernel brings up the nucleus: New constructs the bus,
// framebuffer, interrupt table, PMM, paging directory, heap, keyboard
// decoder and task pool; Boot installs the vectors, loads the IDT,
// remaps the PIC, enables paging, programs the PIT and then executes
// sti; StartTasks creates the initial tasks and runs the first
// scheduler pass. Everything that would be a raw
// asm trampoline or IDT register load on real hardware is a plain
// method call here; see cpuio's package doc for why that substitution
// is faithful rather than a shortcut.
package kernel

import (
	"log/slog"
	"sync/atomic"

	"github.com/lirikmaxhuni/amxos/bootconfig"
	"github.com/lirikmaxhuni/amxos/cpuio"
	"github.com/lirikmaxhuni/amxos/framebuffer"
	"github.com/lirikmaxhuni/amxos/heap"
	"github.com/lirikmaxhuni/amxos/interrupt"
	"github.com/lirikmaxhuni/amxos/keyboard"
	"github.com/lirikmaxhuni/amxos/paging"
	"github.com/lirikmaxhuni/amxos/pit"
	"github.com/lirikmaxhuni/amxos/pmm"
	"github.com/lirikmaxhuni/amxos/task"
)

// KeyboardDataPort is where the ISR reads a scancode from the simulated
// bus once notified of IRQ1 by DeliverKeyboardIRQ.
const KeyboardDataPort uint16 = 0x60

// BootStackLow and BootStackHigh stand in for the linker-provided
// __stack_bottom/__stack_top symbols of the boot contract; the
// identity map always covers the low 16 MiB so these only matter if
// configured memory sizes push the stack outside it.
const (
	BootStackLow  uint32 = 0x00090000
	BootStackHigh uint32 = 0x00090000 + 0x4000
)

// KernelImageEnd is where the loaded kernel image ends: the image is
// linked at the 1 MiB mark and the heap arena sits directly after it,
// so PMM reservation must run from address 0 through image end plus
// the heap region.
const KernelImageEnd uint32 = 0x00200000

// Kernel owns every nucleus collaborator, wired together the way
// kernel_main wires its globals.
type Kernel struct {
	Bus      *cpuio.Bus
	FB       *framebuffer.Buffer
	IDT      *interrupt.Table
	Frames   *pmm.Manager
	Paging   *paging.Directory
	Heap     *heap.Arena
	Keyboard *keyboard.Decoder
	Tasks    *task.Pool
	Timer    *pit.Timer

	log             *slog.Logger
	config          bootconfig.Config
	pendingFaultErr uint32

	// Written by the timer ISR, read from task context. Atomics stand
	// in for the volatile cells a freestanding kernel would use.
	ticks              atomic.Uint64
	cursorVisible      atomic.Bool
	cursorBlinkRequest atomic.Bool
}

// New constructs every collaborator but performs no I/O and starts no
// goroutines; call Boot to bring the nucleus up.
func New(cfg bootconfig.Config, log *slog.Logger) *Kernel {
	bus := cpuio.NewBus()
	k := &Kernel{
		Bus:      bus,
		FB:       framebuffer.New(),
		IDT:      interrupt.New(bus),
		Frames:   pmm.New(uint32(cfg.MemorySize), KernelImageEnd+uint32(cfg.HeapSize)),
		Paging:   paging.New(),
		Heap:     heap.New(cfg.HeapSize),
		Keyboard: keyboard.NewDecoder(),
		log:      log,
		config:   cfg,
	}
	k.Tasks = task.NewPool(bus, k.Heap, cfg.TaskCapacity, cfg.StackSize)
	k.cursorVisible.Store(true)
	return k
}

// Boot runs the bring-up sequence: PIC remap and vector installation,
// paging, and the PIT divisor, logging each stage as it completes.
func (k *Kernel) Boot() {
	k.IDT.InstallIRQ0(k.handleTimerIRQ)
	k.IDT.InstallIRQ1(k.handleKeyboardIRQ)
	k.IDT.InstallPageFault(k.handlePageFault)
	k.IDT.InstallDoubleFault(nil)
	k.IDT.Load()
	k.IDT.RemapPIC(interrupt.MasterOffset, interrupt.SlaveOffset, interrupt.DefaultMasterMask, interrupt.DefaultSlaveMask)
	k.log.Info("IDT installed and PIC remapped")

	k.Paging.Init(k.Bus, BootStackLow, BootStackHigh)
	k.log.Info("paging enabled", "bytes", paging.IdentityMapSize)

	divisor := pit.Divisor(k.config.PITFrequency)
	low, high := pit.LowHigh(divisor)
	k.Bus.Outb(pit.CommandPort, pit.Mode3SquareWave)
	k.Bus.Outb(pit.Channel0DataPort, low)
	k.Bus.Outb(pit.Channel0DataPort, high)
	k.Timer = pit.NewTimer(pit.Period(divisor), k.DeliverTimerIRQ)
	k.log.Info("PIT programmed", "divisor", divisor)

	k.log.Info("PMM initialised", "freeFrames", k.countFreeFrames())

	k.Bus.Sti()
}

// Shutdown tears the PIT pulse source down. The simulated machine
// keeps its halted state; only the ticker goroutine is stopped.
func (k *Kernel) Shutdown() {
	if k.Timer != nil {
		k.Timer.Shutdown()
	}
}

func (k *Kernel) countFreeFrames() uint32 {
	total := k.Frames.NumFrames()
	free := uint32(0)
	for i := uint32(0); i < total; i++ {
		addr := i * pmm.FrameSize
		if !k.Frames.Allocated(addr) {
			free++
		}
	}
	return free
}

// StartTasks creates the nucleus's initial tasks, the always-present
// idle task and the keyboard pump, then hands control to the task
// pool. It returns only with an error from creating a task or starting
// the pool; once the pool has started it never returns, matching
// task_switch() never returning to kernel_main.
func (k *Kernel) StartTasks() error {
	if _, err := k.Tasks.Create(k.idleTask); err != nil {
		return err
	}
	if _, err := k.Tasks.Create(k.keyboardPumpTask); err != nil {
		return err
	}
	return k.Tasks.Start()
}

// idleTask is the always-runnable fallback: in a hosted simulation
// there is no halt-until-interrupt to wait on, so it yields forever,
// giving every ready task a turn each pass.
func (k *Kernel) idleTask() {
	for {
		k.Tasks.Yield()
	}
}

// keyboardPumpTask is the consumer end of the ring buffer: it echoes
// decoded bytes onto the framebuffer's bottom row and renders the
// block cursor when the blink flag flips. The full line editor lives
// in the external shell; the core's pump only proves the ISR-to-task
// pipeline.
func (k *Kernel) keyboardPumpTask() {
	col := 0
	for {
		c := k.Keyboard.Getchar()
		if c == 0 {
			if k.ConsumeCursorBlink() {
				attr := framebuffer.AttrNormal
				if k.CursorVisible() {
					attr = framebuffer.AttrCursor
				}
				k.FB.WriteAt(framebuffer.Rows-1, col, ' ', attr)
			}
			k.Tasks.Yield()
			continue
		}
		if c >= 0x80 || c == '\n' || c == '\b' {
			continue // navigation and editing belong to the shell
		}
		k.FB.WriteAt(framebuffer.Rows-1, col, c, framebuffer.AttrNormal)
		if col < framebuffer.Columns-1 {
			col++
		}
	}
}

// handleTimerIRQ is IRQ0's handler: increment the tick counter,
// account sleep ticks, and every cursorBlinkTicks ticks flip the
// cursor phase and raise the blink request for the shell to consume.
// About two blinks per second at ~100 Hz.
func (k *Kernel) handleTimerIRQ() {
	t := k.ticks.Add(1)
	k.Tasks.Tick()
	if t%cursorBlinkTicks == 0 {
		k.cursorVisible.Store(!k.cursorVisible.Load())
		k.cursorBlinkRequest.Store(true)
	}
}

// cursorBlinkTicks is how many timer ticks pass between blink flips.
const cursorBlinkTicks = 25

// Ticks returns the count of timer interrupts accepted since boot.
func (k *Kernel) Ticks() uint64 {
	return k.ticks.Load()
}

// ConsumeCursorBlink returns true at most once per raised blink
// request. The shell calls this from task context to learn it must
// redraw the cursor; only the timer ISR raises the request.
func (k *Kernel) ConsumeCursorBlink() bool {
	return k.cursorBlinkRequest.CompareAndSwap(true, false)
}

// CursorVisible reports the blink phase the shell should render.
func (k *Kernel) CursorVisible() bool {
	return k.cursorVisible.Load()
}

// handleKeyboardIRQ is IRQ1's handler: read one scancode off the data
// port and feed the decoder. Never blocks, never allocates.
func (k *Kernel) handleKeyboardIRQ() {
	sc := k.Bus.Inb(KeyboardDataPort)
	k.Keyboard.HandleScancode(sc)
}

func (k *Kernel) handlePageFault() {
	paging.PageFault(k.Bus, k.FB, k.pendingFaultErr)
	k.log.Error("page fault, machine halted", "cr2", k.Bus.CR2(), "err", k.pendingFaultErr)
}

// DeliverKeyboardIRQ simulates the PIC asserting IRQ1: a caller such as
// a test invokes this instead of a real keystroke trap.
// Once the machine has halted no further vectors are delivered.
func (k *Kernel) DeliverKeyboardIRQ(scancode uint8) {
	if k.Bus.Halted() {
		return
	}
	k.Bus.Outb(KeyboardDataPort, scancode)
	k.IDT.DispatchIRQ(1)
}

// DeliverTimerIRQ simulates the PIT firing IRQ0.
func (k *Kernel) DeliverTimerIRQ() {
	k.IDT.DispatchIRQ(0)
}

// TriggerPageFault simulates the CPU trapping a bad dereference: it
// loads CR2 with the faulting address, latches the error code a real
// #PF would push on the stack, and dispatches vector 0x0E.
func (k *Kernel) TriggerPageFault(addr, errCode uint32) {
	k.Bus.SetCR2(addr)
	k.pendingFaultErr = errCode
	k.IDT.DispatchException(interrupt.VectorPageFault)
}
