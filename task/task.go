/*
 * amxos - Cooperative task pool: create, context switch, scheduler.
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

// Package task implements the cooperative round-robin scheduler: a
// fixed-capacity task pool, context switch, sleep/tick accounting, and
// stack-canary audit.
//
// There is no inline-assembly trampoline in a hosted simulation, so
// context switch is modeled as a goroutine handoff over an unbuffered
// channel: each task owns a goroutine parked on its own resumeCh
// whenever it isn't the one executing. A switch is exactly one send to
// the chosen task's channel (which only completes once that goroutine
// reaches its own receive) followed, unless the caller is exiting, by
// a receive on the caller's own channel to park it until it is chosen
// again. The goroutine's parked Go stack and program counter play the
// role of the saved register snapshot; the channel rendezvous plays
// the role of the assembly trampoline. Because the rendezvous is
// always between exactly the scheduler-chosen pair, at most one task's
// goroutine is ever unblocked at a time, preserving the cooperative,
// single-threaded contract even though every task is a real goroutine.
package task

import (
	"sync"

	"github.com/lirikmaxhuni/amxos/cpuio"
	"github.com/lirikmaxhuni/amxos/heap"
)

// State is a task's position in its lifecycle.
type State int

const (
	Ready State = iota
	Running
	Blocked
	Sleeping
	Terminated
)

func (s State) String() string {
	switch s {
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Blocked:
		return "BLOCKED"
	case Sleeping:
		return "SLEEPING"
	case Terminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

const (
	// DefaultCapacity is the fixed task-pool size.
	DefaultCapacity = 8
	// DefaultStackSize is the per-task heap-backed stack allocation.
	DefaultStackSize = 4096
	// CanaryMagic is the sentinel every live task's stack begins with.
	CanaryMagic uint32 = 0xDEADBEEF
)

// Task is one descriptor in the pool.
type Task struct {
	id         int
	state      State
	sleepTicks int
	canary     uint32
	stackAddr  int
	resumeCh   chan struct{}
}

// ID returns the task's pool-assigned identifier.
func (t *Task) ID() int { return t.id }

// Pool owns the fixed-capacity task list, the current-task cursor, and
// the heap arena tasks allocate their stacks from.
type Pool struct {
	mu        sync.Mutex
	bus       *cpuio.Bus
	arena     *heap.Arena
	capacity  int
	stackSize int
	tasks     []*Task // list order; index 0 is the head
	current   *Task
	nextID    int
	halted    bool
	haltMsg   string
}

// NewPool returns an empty pool backed by arena for task stacks, with
// canary mismatches and the consequent halt reflected onto bus.
func NewPool(bus *cpuio.Bus, arena *heap.Arena, capacity, stackSize int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if stackSize <= 0 {
		stackSize = DefaultStackSize
	}
	return &Pool{bus: bus, arena: arena, capacity: capacity, stackSize: stackSize}
}

// Create allocates a task slot and a heap-backed stack, then starts a
// goroutine parked until the scheduler first resumes it. It fails if
// the pool is full or the heap cannot satisfy the stack allocation.
// If no current task exists yet, the new task is adopted as current
// (it stays READY until Start or a later switch actually resumes it).
func (p *Pool) Create(entry func()) (*Task, error) {
	p.mu.Lock()
	if len(p.tasks) >= p.capacity {
		p.mu.Unlock()
		return nil, ErrPoolFull
	}
	stackAddr := p.arena.Alloc(p.stackSize)
	if stackAddr == heap.NoAddr {
		p.mu.Unlock()
		return nil, ErrHeapExhausted
	}
	p.nextID++
	t := &Task{
		id:        p.nextID,
		state:     Ready,
		canary:    CanaryMagic,
		stackAddr: stackAddr,
		resumeCh:  make(chan struct{}),
	}
	p.tasks = append(p.tasks, t)
	if p.current == nil {
		p.current = t
	}
	p.mu.Unlock()

	go func() {
		<-t.resumeCh
		entry()
		p.finishExit(t)
	}()

	return t, nil
}

// Start hands the CPU to the first (adopted-as-current) task and
// parks the calling goroutine forever: kernel_main sequences
// component init and task creation, then yields to the scheduler and
// never runs again, matching the boot contract.
func (p *Pool) Start() error {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return ErrNoTasks
	}
	first := p.current
	first.state = Running
	boot := make(chan struct{})
	p.mu.Unlock()

	first.resumeCh <- struct{}{}
	<-boot // never signaled
	return nil
}

// Current returns the task the current-task cursor designates. Before
// Start this is the first created task, still READY; afterwards it is
// the task that last received the CPU.
func (p *Pool) Current() *Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// StateOf returns t's current state.
func (p *Pool) StateOf(t *Task) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return t.state
}

// Halted reports whether a fatal condition has stopped the scheduler.
func (p *Pool) Halted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.halted
}

// HaltReason returns the message recorded by the fatal path, if any.
func (p *Pool) HaltReason() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.haltMsg
}

// CorruptCanary is a test-only hook simulating a stack overflow: it
// overwrites t's canary so the next scheduler pass audits it as fatal.
func (p *Pool) CorruptCanary(t *Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t.canary = 0
}

// Yield voluntarily relinquishes the CPU: the caller returns to READY
// and task_switch picks the next runnable task.
func (p *Pool) Yield() {
	p.switchAway(true, func(t *Task) { t.state = Ready })
}

// Sleep sets the caller's sleep-tick counter and yields; it becomes
// READY again when Tick counts it down to zero, or on Wake.
func (p *Pool) Sleep(ticks int) {
	if ticks <= 0 {
		return
	}
	p.switchAway(true, func(t *Task) {
		t.sleepTicks = ticks
		t.state = Sleeping
	})
}

// Exit marks the caller TERMINATED and yields; its slot is reaped by
// the next scheduler pass that runs on a different task's stack. A
// task must not execute further code after calling Exit.
func (p *Pool) Exit() {
	p.switchAway(false, func(t *Task) { t.state = Terminated })
}

// Wake clears t's sleep counter and moves it to READY if it was
// SLEEPING or BLOCKED. Waking a READY task is a no-op.
func (p *Pool) Wake(t *Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t.sleepTicks = 0
	if t.state == Sleeping || t.state == Blocked {
		t.state = Ready
	}
}

// Tick accounts one timer interrupt: every SLEEPING task with a
// positive counter is decremented, transitioning to READY at zero.
// Called from the timer ISR; must not block or switch.
func (p *Pool) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.tasks {
		if t.state == Sleeping && t.sleepTicks > 0 {
			t.sleepTicks--
			if t.sleepTicks == 0 {
				t.state = Ready
			}
		}
	}
}

// finishExit runs the exit handoff once entry() returns, unless the
// task already called Exit itself (in which case that call already
// performed the switch and this is a no-op).
func (p *Pool) finishExit(t *Task) {
	p.mu.Lock()
	already := t.state == Terminated
	p.mu.Unlock()
	if already {
		return
	}
	p.switchAway(false, func(task *Task) { task.state = Terminated })
}

// switchAway is task_switch: audit canaries, reap terminated tasks
// other than the caller, pick the next runnable task per the
// round-robin rules, and hand off. blockSelf is false only when the
// caller is exiting and must never run again.
func (p *Pool) switchAway(blockSelf bool, prep func(*Task)) {
	p.mu.Lock()
	if p.halted || p.bus.Halted() {
		// A fatal condition elsewhere (page fault, double fault) has
		// halted the machine: no further task ever runs.
		p.mu.Unlock()
		select {}
	}

	caller := p.current
	prep(caller)

	if msg, bad := p.auditCanariesLocked(); bad {
		p.haltLocked(msg)
		p.mu.Unlock()
		select {}
	}

	p.reapTerminatedLocked(caller)
	chosen := p.pickNextLocked(caller)

	if chosen == caller {
		if caller.state == Ready {
			caller.state = Running
		}
		p.mu.Unlock()
		return
	}

	p.current = chosen
	chosen.state = Running
	p.mu.Unlock()

	chosen.resumeCh <- struct{}{}
	if blockSelf {
		<-caller.resumeCh
	}
}

func (p *Pool) auditCanariesLocked() (string, bool) {
	for _, t := range p.tasks {
		if t.state != Terminated && t.canary != CanaryMagic {
			return "stack canary mismatch on task", true
		}
	}
	return "", false
}

func (p *Pool) haltLocked(msg string) {
	p.halted = true
	p.haltMsg = msg
	p.bus.Cli()
	p.bus.Halt()
}

func (p *Pool) reapTerminatedLocked(caller *Task) {
	live := p.tasks[:0]
	for _, t := range p.tasks {
		if t.state == Terminated && t != caller {
			p.arena.Free(t.stackAddr)
			continue
		}
		live = append(live, t)
	}
	p.tasks = live
}

func (p *Pool) pickNextLocked(caller *Task) *Task {
	idx := -1
	for i, t := range p.tasks {
		if t == caller {
			idx = i
			break
		}
	}
	if idx == -1 {
		return caller
	}
	n := len(p.tasks)
	for i := 1; i < n; i++ {
		cand := p.tasks[(idx+i)%n]
		if cand.state == Ready {
			return cand
		}
	}
	return caller
}
