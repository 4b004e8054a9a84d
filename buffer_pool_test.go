package zbuf

import "testing"

func TestBufferPool(t *testing.T) {
	b := GetBuffer()
	if b.ReadableBytes() != 0 {
		t.Fatalf("pooled buffer not empty: %d", b.ReadableBytes())
	}
	b.AppendString("recycled")
	PutBuffer(b)

	b2 := GetBuffer()
	if b2.ReadableBytes() != 0 {
		t.Fatalf("buffer came back dirty: %q", b2.Peek())
	}
	PutBuffer(b2)
}

func TestBufferPoolDropsOversized(t *testing.T) {
	b := GetBuffer()
	b.EnsureWritable(maxPooledSize + 1)
	PutBuffer(b)
	if b.store != nil {
		t.Fatal("oversized buffer was pooled instead of closed")
	}
}

func TestBufferPoolIgnoresClosed(t *testing.T) {
	b := NewByteBuffer()
	b.Close()
	PutBuffer(b) // must not panic or pool a dead buffer
	PutBuffer(nil)
}
