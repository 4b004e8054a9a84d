package zbuf

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestByteBufferRegions(t *testing.T) {
	b := NewByteBufferSize(10)
	defer b.Close()

	b.AppendString("hello")
	if b.ReadableBytes() != 5 || b.WritableBytes() != 5 {
		t.Fatalf("after append: readable=%d writable=%d", b.ReadableBytes(), b.WritableBytes())
	}
	b.Consume(2)
	if b.ReadableBytes() != 3 || b.PrependableBytes() != 2 {
		t.Fatalf("after consume: readable=%d prependable=%d", b.ReadableBytes(), b.PrependableBytes())
	}
	// 2 bytes fit in the writable region, no compaction needed
	b.AppendString("ab")
	if got := string(b.Peek()); got != "lloab" {
		t.Fatalf("readable content = %q, want %q", got, "lloab")
	}
}

func TestByteBufferCompaction(t *testing.T) {
	b := NewByteBufferSize(10)
	defer b.Close()

	b.AppendString("hello")
	b.Consume(2)
	// 6 > writable(5), but <= writable+prependable(7): must compact, not grow
	capBefore := b.Cap()
	b.AppendString("world!")
	if b.Cap() != capBefore {
		t.Fatalf("compaction grew storage: %d -> %d", capBefore, b.Cap())
	}
	if b.PrependableBytes() != 0 {
		t.Fatalf("prependable after compaction = %d, want 0", b.PrependableBytes())
	}
	if got := string(b.Peek()); got != "lloworld!" {
		t.Fatalf("readable content = %q, want %q", got, "lloworld!")
	}
}

func TestByteBufferGrowth(t *testing.T) {
	b := NewByteBufferSize(8)
	defer b.Close()

	b.AppendString("abc")
	big := bytes.Repeat([]byte("x"), 100)
	b.Append(big)
	if got := string(b.Peek()); got != "abc"+string(big) {
		t.Fatalf("content corrupted after growth: %q", got)
	}

	// EnsureWritable must leave at least the requested room
	b.EnsureWritable(4096)
	if b.WritableBytes() < 4096 {
		t.Fatalf("writable after EnsureWritable = %d, want >= 4096", b.WritableBytes())
	}
}

func TestByteBufferRegionSum(t *testing.T) {
	b := NewByteBufferSize(16)
	defer b.Close()

	r := rand.New(rand.NewSource(1))
	appended, consumed := 0, 0
	for i := 0; i < 1000; i++ {
		if r.Intn(2) == 0 {
			n := r.Intn(64)
			b.Append(bytes.Repeat([]byte{byte(i)}, n))
			appended += n
		} else if b.ReadableBytes() > 0 {
			n := r.Intn(b.ReadableBytes() + 1)
			b.Consume(n)
			consumed += n
		}
		sum := b.ReadableBytes() + b.WritableBytes() + b.PrependableBytes()
		if sum != b.Cap() {
			t.Fatalf("region sum %d != capacity %d", sum, b.Cap())
		}
		if b.ReadableBytes() != appended-consumed {
			t.Fatalf("readable = %d, want %d", b.ReadableBytes(), appended-consumed)
		}
	}
}

func TestByteBufferConsumeAll(t *testing.T) {
	b := NewByteBufferSize(16)
	defer b.Close()

	payload := []byte("0123456789abcdef0123")
	b.Append(payload)
	got := b.ConsumeAll()
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip = %q, want %q", got, payload)
	}
	if b.ReadableBytes() != 0 || b.WritableBytes() != b.Cap() {
		t.Fatalf("after reset: readable=%d writable=%d cap=%d", b.ReadableBytes(), b.WritableBytes(), b.Cap())
	}
	// the reset must also have zeroed the storage
	for i, c := range b.store {
		if c != 0 {
			t.Fatalf("storage[%d] = %#x after reset, want 0", i, c)
		}
	}
	// the returned copy is owned: mutating the buffer must not touch it
	b.AppendString("overwrite")
	if !bytes.Equal(got, payload) {
		t.Fatalf("extracted copy changed: %q", got)
	}
}

func TestByteBufferPeekIdempotent(t *testing.T) {
	b := NewByteBufferSize(16)
	defer b.Close()

	b.AppendString("stable")
	p1 := string(b.Peek())
	p2 := string(b.Peek())
	if p1 != p2 || b.ReadableBytes() != 6 {
		t.Fatalf("peek not idempotent: %q vs %q", p1, p2)
	}
}

func TestByteBufferConsumeUntil(t *testing.T) {
	b := NewByteBufferSize(64)
	defer b.Close()

	b.AppendString("GET / HTTP/1.1\r\nHost: x\r\n")
	view := b.Peek()
	i := bytes.Index(view, []byte("\r\n"))
	b.ConsumeUntil(view[i+2:])
	if got := string(b.Peek()); got != "Host: x\r\n" {
		t.Fatalf("after ConsumeUntil: %q", got)
	}
	// consuming up to the very end empties the buffer
	b.ConsumeUntil(b.Peek()[b.ReadableBytes():])
	if b.ReadableBytes() != 0 {
		t.Fatalf("readable = %d, want 0", b.ReadableBytes())
	}
}

func TestByteBufferAppendBuffer(t *testing.T) {
	a := NewByteBufferSize(16)
	defer a.Close()
	b := NewByteBufferSize(16)
	defer b.Close()

	b.AppendString("xyz123")
	b.Consume(3)
	a.AppendString("abc")
	a.AppendBuffer(b)
	if got := string(a.Peek()); got != "abc123" {
		t.Fatalf("AppendBuffer result = %q", got)
	}
	// only b's readable content was taken and b is untouched
	if got := string(b.Peek()); got != "123" {
		t.Fatalf("source buffer changed: %q", got)
	}
}

func TestByteBufferBeginWrite(t *testing.T) {
	b := NewByteBufferSize(16)
	defer b.Close()

	b.EnsureWritable(5)
	n := copy(b.BeginWrite(), "hello")
	b.HasWritten(n)
	if got := string(b.Peek()); got != "hello" {
		t.Fatalf("direct write result = %q", got)
	}
}

func TestByteBufferConsumePanics(t *testing.T) {
	b := NewByteBufferSize(8)
	defer b.Close()
	b.AppendString("ab")

	defer func() {
		if recover() == nil {
			t.Fatal("over-consume did not panic")
		}
	}()
	b.Consume(3)
}

func TestByteBufferHasWrittenPanics(t *testing.T) {
	b := NewByteBufferSize(8)
	defer b.Close()

	defer func() {
		if recover() == nil {
			t.Fatal("over-advance did not panic")
		}
	}()
	b.HasWritten(b.WritableBytes() + 1)
}

func TestByteBufferConsumeUntilPanics(t *testing.T) {
	b := NewByteBufferSize(8)
	defer b.Close()
	b.AppendString("ab")

	defer func() {
		if recover() == nil {
			t.Fatal("marker outside readable region did not panic")
		}
	}()
	b.ConsumeUntil(make([]byte, 3))
}
