package pit

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultDivisorBytes(t *testing.T) {
	if DefaultDivisor != 0x2E9B {
		t.Fatalf("DefaultDivisor = %#x, want 0x2E9B", DefaultDivisor)
	}
	low, high := LowHigh(DefaultDivisor)
	if low != 0x9B || high != 0x2E {
		t.Fatalf("LowHigh(%#x) = (%#x, %#x), want (0x9B, 0x2E)", DefaultDivisor, low, high)
	}
}

func TestDivisorTruncatesTowardZero(t *testing.T) {
	if got := Divisor(1000); got != uint16(InputClockHz/1000) {
		t.Fatalf("Divisor(1000) = %d, want %d", got, InputClockHz/1000)
	}
}

func TestDivisorFallsBackOnNonPositiveFrequency(t *testing.T) {
	if Divisor(0) != Divisor(DefaultFrequencyHz) {
		t.Fatalf("Divisor(0) should fall back to the default frequency")
	}
	if Divisor(-5) != Divisor(DefaultFrequencyHz) {
		t.Fatalf("Divisor(-5) should fall back to the default frequency")
	}
}

func TestPeriodFromDefaultDivisor(t *testing.T) {
	got := Period(DefaultDivisor)
	// 0x2E9B cycles of the 1193182 Hz input clock is a hair under 10ms.
	if got < 9*time.Millisecond || got > 10*time.Millisecond {
		t.Fatalf("Period(%#x) = %v, want about 10ms", DefaultDivisor, got)
	}
	if Period(0) <= Period(DefaultDivisor) {
		t.Fatalf("a zero divisor must mean the maximum 65536-cycle period")
	}
}

func TestTimerDeliversPulsesUntilShutdown(t *testing.T) {
	var pulses atomic.Int64
	timer := NewTimer(time.Millisecond, func() { pulses.Add(1) })

	// Created stopped: no pulses before Start.
	time.Sleep(10 * time.Millisecond)
	if pulses.Load() != 0 {
		t.Fatalf("timer delivered %d pulses before Start", pulses.Load())
	}

	timer.Start()
	deadline := time.Now().Add(2 * time.Second)
	for pulses.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("timer delivered only %d pulses", pulses.Load())
		}
		time.Sleep(time.Millisecond)
	}

	timer.Stop()
	time.Sleep(5 * time.Millisecond)
	paused := pulses.Load()
	time.Sleep(10 * time.Millisecond)
	if pulses.Load() != paused {
		t.Fatalf("timer kept pulsing after Stop")
	}

	timer.Shutdown()
}
