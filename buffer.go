package zbuf

import (
	"fmt"

	"github.com/bytedance/gopkg/lang/mcache"
)

// ByteBuffer is a contiguous, growable byte store used as the staging area
// between a non-blocking socket and a protocol parser. The backing storage is
// split by two cursors into three regions:
//
//	+-------------------+------------------+------------------+
//	| prependable bytes |  readable bytes  |  writable bytes  |
//	+-------------------+------------------+------------------+
//	0       <=        rpos      <=       wpos      <=      len(store)
//
// Appends fill the writable region, consumers drain the readable region, and
// the prependable region is reclaimed by sliding the readable region back to
// offset 0 before any real growth happens.
//
// A ByteBuffer has a single owner; it holds no locks.
type ByteBuffer struct {
	store []byte
	rpos  int
	wpos  int
}

// NewByteBuffer creates a ByteBuffer with the default initial capacity.
func NewByteBuffer() *ByteBuffer {
	return NewByteBufferSize(block1k)
}

// NewByteBufferSize creates a ByteBuffer with exactly size bytes of capacity.
// The allocator may hand back a larger block; the logical storage stays at
// size until the buffer grows.
func NewByteBufferSize(size int) *ByteBuffer {
	if size <= 0 {
		size = block1k
	}
	return &ByteBuffer{store: mcache.Malloc(size)}
}

// ReadableBytes returns the number of bytes written but not yet consumed.
func (b *ByteBuffer) ReadableBytes() int {
	return b.wpos - b.rpos
}

// WritableBytes returns the free capacity after the readable region.
func (b *ByteBuffer) WritableBytes() int {
	return len(b.store) - b.wpos
}

// PrependableBytes returns the already-consumed space at the front of the
// storage, reclaimable by compaction.
func (b *ByteBuffer) PrependableBytes() int {
	return b.rpos
}

// Cap returns the total capacity of the backing storage.
func (b *ByteBuffer) Cap() int {
	return len(b.store)
}

// IsEmpty reports whether there is no readable data.
func (b *ByteBuffer) IsEmpty() bool {
	return b.rpos == b.wpos
}

// Peek returns the readable region. The returned slice is a view into the
// backing storage: it stays valid only until the next call that moves a
// cursor or grows the storage.
func (b *ByteBuffer) Peek() []byte {
	return b.store[b.rpos:b.wpos]
}

// Consume drops n readable bytes. Consuming more than ReadableBytes is a bug
// in the caller and panics.
func (b *ByteBuffer) Consume(n int) {
	if n < 0 || n > b.ReadableBytes() {
		panic(fmt.Sprintf("zbuf: consume %d out of %d readable bytes", n, b.ReadableBytes()))
	}
	b.rpos += n
}

// ConsumeUntil drops readable bytes up to the start of end, which must be a
// tail of the current Peek view. A parser that stopped at a delimiter passes
// the unparsed remainder and the buffer consumes everything before it.
func (b *ByteBuffer) ConsumeUntil(end []byte) {
	if len(end) > b.ReadableBytes() {
		panic(fmt.Sprintf("zbuf: consume-until marker of %d bytes outside %d readable bytes", len(end), b.ReadableBytes()))
	}
	b.Consume(b.ReadableBytes() - len(end))
}

// ConsumeAll returns an owned copy of the readable region and resets the
// buffer: the backing storage is zeroed and both cursors return to 0. The
// capacity is kept for reuse.
func (b *ByteBuffer) ConsumeAll() []byte {
	p := make([]byte, b.ReadableBytes())
	copy(p, b.store[b.rpos:b.wpos])
	b.Reset()
	return p
}

// Reset zeroes the backing storage and moves both cursors to 0.
func (b *ByteBuffer) Reset() {
	for i := range b.store {
		b.store[i] = 0
	}
	b.rpos, b.wpos = 0, 0
}

// Append copies p into the writable region, growing or compacting the
// storage first if the region is too small.
func (b *ByteBuffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.EnsureWritable(len(p))
	copy(b.store[b.wpos:], p)
	b.wpos += len(p)
}

// AppendString copies s into the writable region.
func (b *ByteBuffer) AppendString(s string) {
	if len(s) == 0 {
		return
	}
	b.EnsureWritable(len(s))
	copy(b.store[b.wpos:], s)
	b.wpos += len(s)
}

// AppendBuffer copies the readable region of o. Only o's valid content is
// taken, never its spare capacity; o's cursors are untouched.
func (b *ByteBuffer) AppendBuffer(o *ByteBuffer) {
	b.Append(o.Peek())
}

// EnsureWritable guarantees WritableBytes() >= n on return, so a raw write
// through BeginWrite of up to n bytes is safe.
func (b *ByteBuffer) EnsureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}
	b.makeSpace(n)
}

// BeginWrite returns the writable region for direct filling. The slice is a
// view into the backing storage, valid until the next mutating call; commit
// with HasWritten.
func (b *ByteBuffer) BeginWrite() []byte {
	return b.store[b.wpos:]
}

// HasWritten advances the write cursor after a direct write through
// BeginWrite. Advancing past the writable region panics.
func (b *ByteBuffer) HasWritten(n int) {
	if n < 0 || n > b.WritableBytes() {
		panic(fmt.Sprintf("zbuf: wrote %d into %d writable bytes", n, b.WritableBytes()))
	}
	b.wpos += n
}

// Close returns the backing storage to the allocator. The buffer must not be
// used afterwards.
func (b *ByteBuffer) Close() {
	if b.store == nil {
		return
	}
	mcache.Free(b.store)
	b.store = nil
	b.rpos, b.wpos = 0, 0
}

// makeSpace makes room for n more bytes. When the consumed front plus the
// free tail already cover n, the readable region slides back to offset 0 and
// no allocation happens. Otherwise the storage grows, keeping every byte at
// its current offset.
func (b *ByteBuffer) makeSpace(n int) {
	if b.WritableBytes()+b.PrependableBytes() < n {
		ns := mcache.Malloc(b.wpos + n)
		ns = ns[:cap(ns)]
		copy(ns, b.store[:b.wpos])
		mcache.Free(b.store)
		b.store = ns
		return
	}
	readable := b.ReadableBytes()
	copy(b.store, b.store[b.rpos:b.wpos])
	b.rpos = 0
	b.wpos = readable
}
