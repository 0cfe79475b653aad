/*
 * amxos - Physical page frame allocator.
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

// Package pmm is a bitmap physical page frame allocator: one bit per
// 4 KiB frame over a fixed-size memory span, scanned from index 0.
package pmm

import "sync"

// FrameSize is 4 KiB, the architecture's page size.
const FrameSize = 4096

// NoFrame is returned by Alloc on exhaustion.
const NoFrame uint32 = 0xFFFFFFFF

// Manager owns the allocation bitmap for a fixed memory span.
type Manager struct {
	mu         sync.Mutex
	bitmap     []byte
	numFrames  uint32
	totalBytes uint32
}

// New creates a manager covering totalBytes of physical memory and
// pre-marks every frame below reservedEnd (exclusive) as allocated,
// so frames backing the kernel image and the kernel heap are never
// returned by Alloc.
func New(totalBytes, reservedEnd uint32) *Manager {
	numFrames := totalBytes / FrameSize
	m := &Manager{
		bitmap:     make([]byte, (numFrames+7)/8),
		numFrames:  numFrames,
		totalBytes: totalBytes,
	}
	reservedFrames := (reservedEnd + FrameSize - 1) / FrameSize
	for i := uint32(0); i < reservedFrames && i < numFrames; i++ {
		m.setBit(i)
	}
	return m
}

func (m *Manager) setBit(i uint32) {
	m.bitmap[i/8] |= 1 << (i % 8)
}

func (m *Manager) clearBit(i uint32) {
	m.bitmap[i/8] &^= 1 << (i % 8)
}

func (m *Manager) testBit(i uint32) bool {
	return m.bitmap[i/8]&(1<<(i%8)) != 0
}

// NumFrames returns the total number of frames in the managed span.
func (m *Manager) NumFrames() uint32 {
	return m.numFrames
}

// Alloc scans the bitmap from index 0 and returns the physical address
// of the first free frame, marking it allocated. Returns NoFrame on
// exhaustion.
func (m *Manager) Alloc() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := uint32(0); i < m.numFrames; i++ {
		if !m.testBit(i) {
			m.setBit(i)
			return i * FrameSize
		}
	}
	return NoFrame
}

// Free clears the bit for the frame containing addr. Freeing a frame
// that was never allocated, or double-freeing, is undefined: no
// detection is performed.
func (m *Manager) Free(addr uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := addr / FrameSize
	if i < m.numFrames {
		m.clearBit(i)
	}
}

// Allocated reports whether the frame containing addr is marked
// allocated, for tests asserting bitmap state.
func (m *Manager) Allocated(addr uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := addr / FrameSize
	if i >= m.numFrames {
		return false
	}
	return m.testBit(i)
}

// Snapshot returns a copy of the bitmap bytes, for the "free_page
// followed by alloc_page leaves the bitmap byte-identical" idempotence
// check in tests.
func (m *Manager) Snapshot() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(m.bitmap))
	copy(cp, m.bitmap)
	return cp
}
