/*
 * amxos - PS/2 keyboard scancode decoder and ring buffer.
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

// Package keyboard decodes PS/2 scancode set 1 into a byte stream and
// buffers it in a single-producer/single-consumer ring. HandleScancode
// is the ISR side: it must never block or allocate per-call beyond the
// fixed ring already in place. Getchar is the task side.
package keyboard

// DefaultRingSize is the keyboard buffer's fixed capacity.
const DefaultRingSize = 128

// Navigation bytes emitted for extended (0xE0-prefixed) keys.
const (
	Left   = 0x80
	Right  = 0x81
	Up     = 0x82
	Down   = 0x83
	Home   = 0x84
	End    = 0x85
	Delete = 0x86
)

const (
	scanLeftShiftMake   = 0x2A
	scanRightShiftMake  = 0x36
	scanLeftShiftBreak  = 0xAA
	scanRightShiftBreak = 0xB6
	scanExtendedPrefix  = 0xE0
)

// unshiftedTable and shiftedTable are the US QWERTY scancode-to-ASCII
// tables, indexed by scancode (0..0x7F). A zero entry means the
// scancode carries no printable/control output.
var unshiftedTable = [128]byte{
	0x00: 0, 0x01: 27,
	0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
	0x07: '6', 0x08: '7', 0x09: '8', 0x0A: '9', 0x0B: '0',
	0x0C: '-', 0x0D: '=', 0x0E: '\b',
	0x0F: '\t',
	0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't',
	0x15: 'y', 0x16: 'u', 0x17: 'i', 0x18: 'o', 0x19: 'p',
	0x1A: '[', 0x1B: ']', 0x1C: '\n',
	0x1E: 'a', 0x1F: 's', 0x20: 'd', 0x21: 'f', 0x22: 'g',
	0x23: 'h', 0x24: 'j', 0x25: 'k', 0x26: 'l',
	0x27: ';', 0x28: '\'', 0x29: '`',
	0x2B: '\\',
	0x2C: 'z', 0x2D: 'x', 0x2E: 'c', 0x2F: 'v', 0x30: 'b',
	0x31: 'n', 0x32: 'm',
	0x33: ',', 0x34: '.', 0x35: '/',
	0x37: '*',
	0x39: ' ',
}

var shiftedTable = [128]byte{
	0x00: 0, 0x01: 27,
	0x02: '!', 0x03: '@', 0x04: '#', 0x05: '$', 0x06: '%',
	0x07: '^', 0x08: '&', 0x09: '*', 0x0A: '(', 0x0B: ')',
	0x0C: '_', 0x0D: '+', 0x0E: '\b',
	0x0F: '\t',
	0x10: 'Q', 0x11: 'W', 0x12: 'E', 0x13: 'R', 0x14: 'T',
	0x15: 'Y', 0x16: 'U', 0x17: 'I', 0x18: 'O', 0x19: 'P',
	0x1A: '{', 0x1B: '}', 0x1C: '\n',
	0x1E: 'A', 0x1F: 'S', 0x20: 'D', 0x21: 'F', 0x22: 'G',
	0x23: 'H', 0x24: 'J', 0x25: 'K', 0x26: 'L',
	0x27: ':', 0x28: '"', 0x29: '~',
	0x2B: '|',
	0x2C: 'Z', 0x2D: 'X', 0x2E: 'C', 0x2F: 'V', 0x30: 'B',
	0x31: 'N', 0x32: 'M',
	0x33: '<', 0x34: '>', 0x35: '?',
	0x37: '*',
	0x39: ' ',
}

// extendedTable maps the scancode following an 0xE0 prefix to its
// navigation byte.
var extendedTable = map[byte]byte{
	0x4B: Left,
	0x4D: Right,
	0x48: Up,
	0x50: Down,
	0x47: Home,
	0x4F: End,
	0x53: Delete,
}

// Ring is a fixed-capacity, single-producer/single-consumer byte ring.
// One slot is always kept open to disambiguate empty from full:
// empty iff head==tail, full iff next(head)==tail.
type Ring struct {
	buf  []byte
	head int
	tail int
}

// NewRing returns an empty ring with room for size-1 bytes.
func NewRing(size int) *Ring {
	if size < 2 {
		size = 2
	}
	return &Ring{buf: make([]byte, size)}
}

func (r *Ring) next(i int) int {
	return (i + 1) % len(r.buf)
}

// Push appends b, dropping it silently if the ring is full.
func (r *Ring) Push(b byte) {
	n := r.next(r.head)
	if n == r.tail {
		return
	}
	r.buf[r.head] = b
	r.head = n
}

// Pop returns the next byte and true, or (0, false) if empty.
func (r *Ring) Pop() (byte, bool) {
	if r.head == r.tail {
		return 0, false
	}
	b := r.buf[r.tail]
	r.tail = r.next(r.tail)
	return b, true
}

// Len reports the number of buffered, unread bytes.
func (r *Ring) Len() int {
	return (r.head - r.tail + len(r.buf)) % len(r.buf)
}

// Decoder holds the shift and extended-prefix latches and feeds a Ring.
type Decoder struct {
	shiftHeld bool
	e0Pending bool
	ring      *Ring
}

// NewDecoder returns a decoder with its own ring of the default size.
func NewDecoder() *Decoder {
	return &Decoder{ring: NewRing(DefaultRingSize)}
}

// Ring returns the decoder's ring buffer, for the task-side Getchar.
func (d *Decoder) Ring() *Ring { return d.ring }

// HandleScancode is the ISR entry point: it updates the latch state
// and pushes at most one decoded byte. It never blocks and never
// allocates.
func (d *Decoder) HandleScancode(sc byte) {
	switch sc {
	case scanLeftShiftMake, scanRightShiftMake:
		// Consumed directly even when E0-prefixed (E0 36 is a
		// right-shift make on some controllers); the prefix latch
		// clears either way.
		d.shiftHeld = true
		d.e0Pending = false
		return
	case scanLeftShiftBreak, scanRightShiftBreak:
		d.shiftHeld = false
		d.e0Pending = false
		return
	case scanExtendedPrefix:
		d.e0Pending = true
		return
	}

	if d.e0Pending {
		d.e0Pending = false
		if special, ok := extendedTable[sc]; ok {
			d.ring.Push(special)
		}
		return
	}

	if sc >= 0x80 {
		return // key-release, not otherwise handled
	}

	var c byte
	if d.shiftHeld {
		c = shiftedTable[sc]
	} else {
		c = unshiftedTable[sc]
	}
	if c != 0 {
		d.ring.Push(c)
	}
}

// Getchar returns the next decoded byte, or 0 if none is available.
// Non-blocking; consumers poll and yield.
func (d *Decoder) Getchar() byte {
	b, ok := d.ring.Pop()
	if !ok {
		return 0
	}
	return b
}
