/*
 * amxos - PIT divisor derivation.
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

// Package pit derives the 8254 Programmable Interval Timer's 16-bit
// divisor from a target frequency, rather than hardcoding the divisor
// bytes, so the tick rate is checkable against the input clock.
package pit

const (
	// CommandPort and Channel0DataPort are the PIT's I/O ports.
	CommandPort      = 0x43
	Channel0DataPort = 0x40

	// InputClockHz is the PIT's fixed input oscillator frequency.
	InputClockHz = 1193182

	// Mode3SquareWave selects channel 0, access lobyte/hibyte, mode 3.
	Mode3SquareWave uint8 = 0x36

	// DefaultFrequencyHz is the core's target tick rate, ~100 Hz.
	DefaultFrequencyHz = 100
)

// Divisor computes the 16-bit PIT divisor for targetHz, truncating
// toward zero exactly as the hardware's integer counter does.
func Divisor(targetHz int) uint16 {
	if targetHz <= 0 {
		targetHz = DefaultFrequencyHz
	}
	return uint16(InputClockHz / targetHz)
}

// LowHigh splits a divisor into the low-byte-first pair the PIT
// expects on its data port.
func LowHigh(divisor uint16) (low, high uint8) {
	return uint8(divisor & 0xFF), uint8(divisor >> 8)
}

// DefaultDivisor is the divisor programmed at boot: 0x2E9B (written
// low-byte-first as 0x9B, 0x2E) for DefaultFrequencyHz, giving a tick
// rate of approximately 100 Hz.
var DefaultDivisor = Divisor(DefaultFrequencyHz)
