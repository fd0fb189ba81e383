// Package iobuf implements the growable byte buffer that backs every
// connection's recv and send queues. It supports insert and delete at
// arbitrary offsets, which the HTTP, WebSocket and MQTT parsers rely on to
// consume framed data in place without copying the remainder of the buffer.
package iobuf

import "fmt"

// DefaultAlign is the allocation granularity used when callers don't pass
// their own. It matches the teacher's byte-pool tiering philosophy: round
// allocations up to a fixed grain so repeated small inserts don't thrash
// the allocator.
const DefaultAlign = 2048

// Buffer is a resizable byte buffer with insert/delete at any offset.
//
// Buffer is not safe for concurrent use; a Connection owns its Recv and
// Send buffers exclusively and mutates them only from the poll loop.
type Buffer struct {
	data   []byte
	length int
	align  int
}

// New allocates a Buffer with the given initial capacity and alignment.
// A zero or negative align falls back to DefaultAlign.
func New(capacity, align int) *Buffer {
	if align <= 0 {
		align = DefaultAlign
	}
	capacity = alignUp(capacity, align)
	return &Buffer{
		data:  make([]byte, capacity),
		align: align,
	}
}

func alignUp(n, align int) int {
	if n <= 0 {
		return 0
	}
	return ((n + align - 1) / align) * align
}

// Len returns the number of valid bytes currently held.
func (b *Buffer) Len() int { return b.length }

// Cap returns the buffer's current allocated capacity.
func (b *Buffer) Cap() int { return cap(b.data) }

// Bytes returns a view of the valid bytes. The slice is only valid until
// the next mutating call (Insert, Delete, Resize, Free) — callers that need
// to retain data across such a call must copy it first.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.length]
}

// At returns the byte at offset, panicking if offset is out of range —
// callers are expected to bounds-check via Len first, as with a slice index.
func (b *Buffer) At(offset int) byte {
	return b.data[offset]
}

// Resize grows or shrinks the backing array to at least newCap bytes,
// rounded up to the buffer's alignment. Resizing to 0 releases the backing
// array and empties the buffer; any other Resize never shrinks below the
// current length.
func (b *Buffer) Resize(newCap int) error {
	if newCap < b.length && newCap != 0 {
		newCap = b.length
	}
	if newCap == 0 {
		b.data = nil
		b.length = 0
		return nil
	}
	aligned := alignUp(newCap, b.align)
	if aligned == cap(b.data) {
		return nil
	}
	fresh := make([]byte, aligned)
	copy(fresh, b.data[:b.length])
	b.data = fresh
	return nil
}

// Insert splices data into the buffer at offset, shifting the tail right.
// offset must be in [0, Len()]. align governs only the growth this call
// triggers: if the backing array needs to grow, the new capacity is
// rounded up to align (or DefaultAlign, for a zero or negative value)
// rather than to whatever alignment a previous Insert used — so after an
// Insert that grows the buffer, cap(Bytes()) is a multiple of the
// alignment passed to that call, not one fixed at construction; an Insert
// that fits in the current capacity leaves the capacity as it was. A
// zero-length insert is a no-op,
// even with an out-of-range offset — mirroring the spec's "zero-length
// operations are no-ops" invariant.
func (b *Buffer) Insert(offset int, data []byte, align int) error {
	if len(data) == 0 {
		return nil
	}
	if offset < 0 || offset > b.length {
		return fmt.Errorf("iobuf: insert offset %d out of range [0,%d]", offset, b.length)
	}
	if align <= 0 {
		align = DefaultAlign
	}
	b.align = align
	needed := b.length + len(data)
	if needed > cap(b.data) {
		if err := b.Resize(needed); err != nil {
			return err
		}
	} else if needed > len(b.data) {
		b.data = b.data[:cap(b.data)]
	}
	copy(b.data[offset+len(data):needed], b.data[offset:b.length])
	copy(b.data[offset:offset+len(data)], data)
	b.length = needed
	return nil
}

// Append is Insert at the end of the buffer, growing (if needed) to align.
func (b *Buffer) Append(data []byte, align int) error {
	return b.Insert(b.length, data, align)
}

// Delete removes n bytes at offset, shifting the tail left. It clamps n so
// that offset+n never exceeds Len(); a zero-length delete is a no-op.
func (b *Buffer) Delete(offset, n int) {
	if n <= 0 || offset < 0 || offset >= b.length {
		return
	}
	if offset+n > b.length {
		n = b.length - offset
	}
	copy(b.data[offset:], b.data[offset+n:b.length])
	b.length -= n
}

// Reserve grows the backing array so that at least n more bytes can be
// appended without a further allocation, without changing Len().
func (b *Buffer) Reserve(n int) error {
	return b.Resize(b.length + n)
}

// Tail returns the unused capacity past Len(), growing the backing array
// by at least min bytes first if there isn't already that much room. The
// reactor reads directly into this slice to avoid an extra copy, then
// calls Commit with the number of bytes actually read.
func (b *Buffer) Tail(min int) []byte {
	if cap(b.data)-b.length < min {
		_ = b.Resize(b.length + min)
	}
	if len(b.data) < cap(b.data) {
		b.data = b.data[:cap(b.data)]
	}
	return b.data[b.length:]
}

// Commit advances Len() by n after the caller has written directly into
// the slice returned by Tail. n must not exceed the length of that slice.
func (b *Buffer) Commit(n int) {
	b.length += n
}

// Free releases the backing array and resets the buffer to empty.
func (b *Buffer) Free() {
	b.data = nil
	b.length = 0
}

// Reset truncates the buffer to zero length but keeps the backing array
// for reuse.
func (b *Buffer) Reset() {
	b.length = 0
}
