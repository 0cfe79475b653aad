/*
 * amxos - PIT pulse source.
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

package pit

import (
	"log/slog"
	"sync"
	"time"
)

// Period converts a programmed divisor into the interval between PIT
// output pulses. A divisor of 0 means 65536 on real hardware.
func Period(divisor uint16) time.Duration {
	d := uint64(divisor)
	if d == 0 {
		d = 65536
	}
	return time.Duration(d * uint64(time.Second) / InputClockHz)
}

// Timer is the kernel's periodic pulse source: a ticker goroutine
// fires the pulse callback once per PIT output cycle. The timer is
// created stopped; Start enables delivery, Stop pauses it, Shutdown
// tears the goroutine down.
type Timer struct {
	wg      sync.WaitGroup
	running bool // Indicate when pulses should be delivered or not.
	pulse   func()
	period  time.Duration
	enable  chan bool     // Enable or disable pulse delivery.
	done    chan struct{} // Stop timer task.
	ticker  *time.Ticker  // Regular timer interval.
}

// NewTimer creates a stopped timer firing pulse every period.
func NewTimer(period time.Duration, pulse func()) *Timer {
	timer := &Timer{
		pulse:  pulse,
		period: period,
		enable: make(chan bool, 1),
		done:   make(chan struct{}),
	}
	timer.wg.Add(1)
	go timer.run()
	return timer
}

// Start enables pulse delivery.
func (timer *Timer) Start() {
	timer.enable <- true
}

// Stop pauses pulse delivery for some time.
func (timer *Timer) Stop() {
	timer.enable <- false
}

// Shutdown stops the ticker goroutine and waits for it to finish.
func (timer *Timer) Shutdown() {
	close(timer.done)
	done := make(chan struct{})
	go func() {
		timer.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(time.Second):
		slog.Warn("Timed out waiting for timer to finish.")
		return
	}
}

// Interval timer routine delivering pulses to the callback.
func (timer *Timer) run() {
	defer timer.wg.Done()
	timer.ticker = time.NewTicker(timer.period)
	defer timer.ticker.Stop()
	timer.running = false

	for {
		select {
		case <-timer.ticker.C:
			if timer.running {
				timer.pulse()
			}
		case timer.running = <-timer.enable:
			if timer.running {
				timer.ticker.Reset(timer.period)
			}
		case <-timer.done:
			return
		}
	}
}
