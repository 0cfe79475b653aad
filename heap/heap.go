/*
 * amxos - First-fit kernel heap allocator.
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

// Package heap is a first-fit free-list allocator over a single
// contiguous arena, with split on over-sized blocks and coalesce on
// free. Addresses returned by Alloc are offsets into the arena rather
// than raw pointers: a hosted simulation has no physical kernel heap
// region to point into. Block adjacency, 8-byte alignment, and
// coalescing hold over those offsets exactly as they would over real
// pointers.
package heap

import "sync"

// headerSize is the per-block bookkeeping charge used in the arena's
// address arithmetic: the {size, free-flag} pair that precedes each
// payload, padded to 8 bytes so every payload that follows a header
// stays 8-byte aligned. The free-list next link is tracked out-of-band
// by Arena's own block slice rather than packed into the byte arena.
const headerSize = 8

// NoAddr is returned by Alloc on exhaustion.
const NoAddr = -1

type block struct {
	addr int // offset of payload (not header) within the arena
	size int // payload size, rounded up to 8 bytes
	free bool
}

// Arena is a fixed-size heap region with a first-fit allocator.
type Arena struct {
	mu     sync.Mutex
	size   int
	blocks []*block // kept in address order; head is blocks[0]
}

// New creates an arena of the given size with a single free block
// spanning it. The first payload sits at headerSize, a multiple of 8,
// and splits preserve that alignment because sizes are rounded up and
// the header charge is itself 8 bytes.
func New(size int) *Arena {
	a := &Arena{size: size}
	a.blocks = []*block{{addr: headerSize, size: size - headerSize, free: true}}
	return a
}

func align8(n int) int {
	return (n + 7) &^ 7
}

// Alloc rounds n up to an 8-byte multiple and returns the first free
// block large enough, splitting it when the remainder can hold a
// header plus a minimal 8-byte payload. Returns NoAddr on exhaustion.
func (a *Arena) Alloc(n int) int {
	if n <= 0 {
		n = 8
	}
	n = align8(n)

	a.mu.Lock()
	defer a.mu.Unlock()

	for i, b := range a.blocks {
		if !b.free || b.size < n {
			continue
		}
		if b.size >= n+headerSize+8 {
			newBlock := &block{
				addr: b.addr + n + headerSize,
				size: b.size - n - headerSize,
				free: true,
			}
			b.size = n
			a.blocks = append(a.blocks, nil)
			copy(a.blocks[i+2:], a.blocks[i+1:])
			a.blocks[i+1] = newBlock
		}
		b.free = false
		return b.addr
	}
	return NoAddr
}

// Free marks the block containing addr free, then performs a single
// left-to-right coalesce pass merging every adjacent pair of free,
// physically contiguous blocks. Coalesce runs on every free to keep
// fragmentation bounded.
func (a *Arena) Free(addr int) {
	if addr < 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, b := range a.blocks {
		if b.addr == addr {
			b.free = true
			break
		}
	}
	a.coalesce()
}

func (a *Arena) coalesce() {
	out := a.blocks[:0]
	for i := 0; i < len(a.blocks); i++ {
		cur := a.blocks[i]
		for i+1 < len(a.blocks) {
			next := a.blocks[i+1]
			if cur.free && next.free && cur.addr+cur.size == next.addr-headerSize {
				cur.size += headerSize + next.size
				i++
				continue
			}
			break
		}
		out = append(out, cur)
	}
	a.blocks = out
}

// Size returns the arena's total size in bytes.
func (a *Arena) Size() int {
	return a.size
}

// Contains reports whether addr lies within the arena's payload span.
func (a *Arena) Contains(addr int) bool {
	return addr >= 0 && addr < a.size
}

// BlockSize returns the payload size of the block at addr, or -1 if no
// block starts there.
func (a *Arena) BlockSize(addr int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, b := range a.blocks {
		if b.addr == addr {
			return b.size
		}
	}
	return -1
}

// CheckInvariants walks the block list and verifies that every
// adjacent pair (A, B) satisfies addr(A)+header+A.size == addr(B) and
// that no two adjacent blocks are both free. It returns a descriptive
// error on the first violation, or nil.
func (a *Arena) CheckInvariants() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i+1 < len(a.blocks); i++ {
		cur, next := a.blocks[i], a.blocks[i+1]
		if cur.addr+cur.size != next.addr-headerSize {
			return errAdjacency(cur.addr, cur.size, next.addr)
		}
		if cur.free && next.free {
			return errDoubleFree(cur.addr, next.addr)
		}
	}
	return nil
}
