package task

import (
	"testing"
	"time"

	"github.com/lirikmaxhuni/amxos/cpuio"
	"github.com/lirikmaxhuni/amxos/heap"
)

func newTestPool(arenaSize, capacity, stackSize int) (*Pool, *cpuio.Bus) {
	bus := cpuio.NewBus()
	arena := heap.New(arenaSize)
	return NewPool(bus, arena, capacity, stackSize), bus
}

func TestCreateAdoptsFirstTaskAsCurrent(t *testing.T) {
	p, _ := newTestPool(64*1024, 4, 512)
	blocked := make(chan struct{})
	t1, err := p.Create(func() { <-blocked })
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Current() != t1 {
		t.Fatalf("first created task must be adopted as current")
	}
	if p.StateOf(t1) != Ready {
		t.Fatalf("adopted task must stay READY until Start runs it, got %v", p.StateOf(t1))
	}
}

func TestPoolFullReturnsError(t *testing.T) {
	p, _ := newTestPool(64*1024, 2, 256)
	blocked := make(chan struct{})
	if _, err := p.Create(func() { <-blocked }); err != nil {
		t.Fatalf("Create 1: %v", err)
	}
	if _, err := p.Create(func() { <-blocked }); err != nil {
		t.Fatalf("Create 2: %v", err)
	}
	if _, err := p.Create(func() { <-blocked }); err != ErrPoolFull {
		t.Fatalf("Create 3: err = %v, want ErrPoolFull", err)
	}
}

func TestWakeOnReadyTaskIsNoop(t *testing.T) {
	p, _ := newTestPool(64*1024, 2, 256)
	blocked := make(chan struct{})
	t1, _ := p.Create(func() { <-blocked })
	if p.StateOf(t1) != Ready {
		t.Fatalf("expected READY before Wake")
	}
	p.Wake(t1)
	if p.StateOf(t1) != Ready {
		t.Fatalf("Wake on a READY task must be a no-op, got %v", p.StateOf(t1))
	}
}

// Three tasks created in order {idle, shell, sleeper}; sleeper
// sleeps(100); with the round-robin driven by idle and shell yielding
// continuously in the background, sleeper must stay SLEEPING through
// the 99th tick and become READY (and get scheduled) only once the
// 100th tick lands.
func TestSleepWakesAfterExactTickCount(t *testing.T) {
	p, bus := newTestPool(256*1024, DefaultCapacity, 4096)
	_ = bus

	idleRuns := func() { for { p.Yield() } }
	shellRuns := func() { for { p.Yield() } }

	woke := make(chan struct{}, 1)
	sleeperRuns := func() {
		p.Sleep(100)
		woke <- struct{}{}
		p.Exit()
	}

	if _, err := p.Create(idleRuns); err != nil {
		t.Fatalf("create idle: %v", err)
	}
	if _, err := p.Create(shellRuns); err != nil {
		t.Fatalf("create shell: %v", err)
	}
	sleeper, err := p.Create(sleeperRuns)
	if err != nil {
		t.Fatalf("create sleeper: %v", err)
	}

	go p.Start()

	deadline := time.Now().Add(2 * time.Second)
	for p.StateOf(sleeper) != Sleeping {
		if time.Now().After(deadline) {
			t.Fatalf("sleeper never reached SLEEPING")
		}
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < 99; i++ {
		p.Tick()
	}
	if got := p.StateOf(sleeper); got != Sleeping {
		t.Fatalf("after 99 ticks sleeper state = %v, want SLEEPING", got)
	}

	select {
	case <-woke:
		t.Fatalf("sleeper woke before its 100th tick")
	default:
	}

	p.Tick() // the 100th

	select {
	case <-woke:
	case <-time.After(2 * time.Second):
		t.Fatalf("sleeper was never scheduled after becoming READY on the 100th tick")
	}
}

func TestCanaryMismatchHalts(t *testing.T) {
	p, bus := newTestPool(64*1024, 4, 512)
	loop := func() { for { p.Yield() } }

	t1, _ := p.Create(loop)
	t2, _ := p.Create(loop)
	_ = t1
	p.CorruptCanary(t2)

	go p.Start()

	deadline := time.Now().Add(2 * time.Second)
	for !p.Halted() {
		if time.Now().After(deadline) {
			t.Fatalf("pool never halted after a canary mismatch")
		}
		time.Sleep(time.Millisecond)
	}
	if !bus.Halted() {
		t.Fatalf("canary mismatch must halt the bus")
	}
	if bus.InterruptsEnabled() {
		t.Fatalf("canary mismatch must leave interrupts disabled")
	}
	if p.HaltReason() == "" {
		t.Fatalf("expected a non-empty halt reason")
	}
}

func TestExitReapsStackOnNextSwitch(t *testing.T) {
	p, _ := newTestPool(600, 4, 256)

	exiting := func() { p.Exit() }
	loop := func() { for { p.Yield() } }

	if _, err := p.Create(exiting); err != nil {
		t.Fatalf("create exiting task: %v", err)
	}
	if _, err := p.Create(loop); err != nil {
		t.Fatalf("create loop task: %v", err)
	}

	go p.Start()

	// Without the first task's stack being reaped, the arena (sized
	// for only two 256-byte stacks plus header overhead) cannot
	// satisfy a third same-size allocation.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := p.Create(loop); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("exited task's stack was never reaped and freed")
		}
		time.Sleep(time.Millisecond)
	}
}
