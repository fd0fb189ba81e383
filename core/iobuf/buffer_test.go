package iobuf

import (
	"bytes"
	"testing"
)

func TestInsertAppendsAndGrows(t *testing.T) {
	b := New(0, 8)
	if err := b.Append([]byte("abc"), 8); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 3 {
		t.Fatalf("len = %d, want 3", b.Len())
	}
	if b.Cap()%8 != 0 {
		t.Fatalf("cap %d not aligned to 8", b.Cap())
	}
	if !bytes.Equal(b.Bytes(), []byte("abc")) {
		t.Fatalf("bytes = %q", b.Bytes())
	}
}

func TestInsertAtOffset(t *testing.T) {
	b := New(0, 4)
	b.Append([]byte("ace"), 4)
	if err := b.Insert(1, []byte("bd"), 4); err != nil {
		t.Fatal(err)
	}
	if got := string(b.Bytes()); got != "abdce" {
		t.Fatalf("got %q, want abdce", got)
	}
}

func TestDeleteShiftsTail(t *testing.T) {
	b := New(0, 4)
	b.Append([]byte("hello world"), 4)
	b.Delete(5, 6)
	if got := string(b.Bytes()); got != "hello" {
		t.Fatalf("got %q, want hello", got)
	}
}

func TestDeleteClampsLength(t *testing.T) {
	b := New(0, 4)
	b.Append([]byte("abc"), 4)
	b.Delete(1, 100)
	if got := string(b.Bytes()); got != "a" {
		t.Fatalf("got %q, want a", got)
	}
}

func TestZeroLengthOpsAreNoOps(t *testing.T) {
	b := New(0, 4)
	b.Append([]byte("abc"), 4)
	if err := b.Insert(99, nil, 4); err != nil {
		t.Fatalf("zero-length insert at bad offset should be a no-op, got err %v", err)
	}
	b.Delete(0, 0)
	if got := string(b.Bytes()); got != "abc" {
		t.Fatalf("got %q, want abc", got)
	}
}

func TestResizeToZeroFreesMemory(t *testing.T) {
	b := New(64, 8)
	b.Append([]byte("x"), 8)
	if err := b.Resize(0); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 0 || b.Cap() != 0 {
		t.Fatalf("len=%d cap=%d, want 0,0", b.Len(), b.Cap())
	}
}

func TestCapacityAlwaysMultipleOfAlignment(t *testing.T) {
	b := New(0, 16)
	for i := 0; i < 200; i++ {
		b.Append([]byte{byte(i)}, 16)
		if b.Cap()%16 != 0 {
			t.Fatalf("iteration %d: cap %d not a multiple of 16", i, b.Cap())
		}
	}
}

func TestInsertOutOfRangeOffset(t *testing.T) {
	b := New(0, 4)
	b.Append([]byte("abc"), 4)
	if err := b.Insert(10, []byte("x"), 4); err == nil {
		t.Fatal("expected error for out-of-range offset")
	}
}

func TestInsertAlignmentChangesPerCall(t *testing.T) {
	b := New(0, 4)
	if err := b.Append(make([]byte, 3), 4); err != nil {
		t.Fatal(err)
	}
	if b.Cap()%4 != 0 {
		t.Fatalf("cap %d not aligned to 4", b.Cap())
	}

	// A later Insert that forces growth re-aligns to its own align
	// argument, not the one New or the previous Append used.
	if err := b.Insert(3, make([]byte, 50), 32); err != nil {
		t.Fatal(err)
	}
	if b.Cap()%32 != 0 {
		t.Fatalf("cap %d not aligned to 32 after align-32 insert", b.Cap())
	}
}
