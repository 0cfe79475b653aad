package keyboard

import "testing"

func TestShiftedThenUnshiftedSequence(t *testing.T) {
	d := NewDecoder()
	seq := []byte{0x2A, 0x1E, 0xAA, 0x1E} // LShift make, 'a' key, LShift break, 'a' key
	for _, sc := range seq {
		d.HandleScancode(sc)
	}

	want := []byte{'A', 'a'}
	for _, w := range want {
		got := d.Getchar()
		if got != w {
			t.Fatalf("Getchar() = %q, want %q", got, w)
		}
	}
	if g := d.Getchar(); g != 0 {
		t.Fatalf("expected empty ring, got %q", g)
	}
}

func TestExtendedArrowEmitsOneByte(t *testing.T) {
	d := NewDecoder()
	d.HandleScancode(0xE0)
	d.HandleScancode(0x4B)

	got := d.Getchar()
	if got != Left {
		t.Fatalf("Getchar() = %#x, want Left (%#x)", got, Left)
	}
	if g := d.Getchar(); g != 0 {
		t.Fatalf("expected exactly one byte, got extra %#x", g)
	}
}

func TestExtendedPrefixClearsOnUnmappedScancode(t *testing.T) {
	d := NewDecoder()
	d.HandleScancode(0xE0)
	d.HandleScancode(0x01) // not in the extended table

	if d.Getchar() != 0 {
		t.Fatalf("unmapped extended scancode must not emit a byte")
	}
	// Latch must have cleared: an ordinary key now decodes normally.
	d.HandleScancode(0x1E)
	if got := d.Getchar(); got != 'a' {
		t.Fatalf("Getchar() = %q, want 'a' once the e0 latch has cleared", got)
	}
}

func TestExtendedShiftClearsLatchAndSetsShift(t *testing.T) {
	d := NewDecoder()
	d.HandleScancode(0xE0)
	d.HandleScancode(0x36) // E0-prefixed right-shift make
	d.HandleScancode(0x1E)
	if got := d.Getchar(); got != 'A' {
		t.Fatalf("Getchar() = %q, want 'A' with shift held via E0 36", got)
	}
	d.HandleScancode(0xE0)
	d.HandleScancode(0xB6) // E0-prefixed right-shift break
	d.HandleScancode(0x1E)
	if got := d.Getchar(); got != 'a' {
		t.Fatalf("Getchar() = %q, want 'a' once E0 B6 released shift", got)
	}
}

func TestShiftPressAndReleaseChangeTable(t *testing.T) {
	d := NewDecoder()
	d.HandleScancode(0x1E)
	if got := d.Getchar(); got != 'a' {
		t.Fatalf("unshifted 0x1E = %q, want 'a'", got)
	}

	d.HandleScancode(0x2A) // shift make
	d.HandleScancode(0x1E)
	if got := d.Getchar(); got != 'A' {
		t.Fatalf("shifted 0x1E = %q, want 'A'", got)
	}

	d.HandleScancode(0xAA) // shift break
	d.HandleScancode(0x1E)
	if got := d.Getchar(); got != 'a' {
		t.Fatalf("unshifted 0x1E after release = %q, want 'a'", got)
	}
}

func TestKeyReleaseBytesIgnored(t *testing.T) {
	d := NewDecoder()
	d.HandleScancode(0x9E) // release of 0x1E
	if got := d.Getchar(); got != 0 {
		t.Fatalf("key release must not emit a byte, got %q", got)
	}
}

func TestRingDropsWhenFull(t *testing.T) {
	r := NewRing(4) // capacity 3 usable slots
	r.Push('a')
	r.Push('b')
	r.Push('c')
	r.Push('d') // dropped, ring full (one slot always kept open)

	for _, want := range []byte{'a', 'b', 'c'} {
		got, ok := r.Pop()
		if !ok || got != want {
			t.Fatalf("Pop() = (%q, %v), want (%q, true)", got, ok, want)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Fatalf("expected empty ring after draining")
	}
}

func TestRingEmptyPopReturnsFalse(t *testing.T) {
	r := NewRing(8)
	if _, ok := r.Pop(); ok {
		t.Fatalf("Pop() on empty ring must report false")
	}
}
