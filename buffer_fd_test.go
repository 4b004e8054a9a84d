package zbuf

import (
	"bytes"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func newTestPipe(t *testing.T) (r, w *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return r, w
}

func TestReadFromFD(t *testing.T) {
	r, w := newTestPipe(t)
	b := NewByteBufferSize(block1k)
	defer b.Close()

	payload := []byte("scatter me")
	if _, err := w.Write(payload); err != nil {
		t.Fatal(err)
	}
	n, err := b.ReadFromFD(int(r.Fd()))
	if err != nil {
		t.Fatal(err)
	}
	if n != len(payload) || !bytes.Equal(b.Peek(), payload) {
		t.Fatalf("read %d bytes, content %q", n, b.Peek())
	}
}

func TestReadFromFDOverflow(t *testing.T) {
	r, w := newTestPipe(t)
	// tiny buffer so the read spills into the scratch region
	b := NewByteBufferSize(8)
	defer b.Close()

	payload := bytes.Repeat([]byte("abcdefgh"), 100) // 800 bytes
	if _, err := w.Write(payload); err != nil {
		t.Fatal(err)
	}

	writable := b.WritableBytes()
	readableBefore := b.ReadableBytes()
	n, err := b.ReadFromFD(int(r.Fd()))
	if err != nil {
		t.Fatal(err)
	}
	if n != len(payload) {
		t.Fatalf("read %d bytes, want %d", n, len(payload))
	}
	if n <= writable {
		t.Fatalf("test needs an overflowing read: n=%d writable=%d", n, writable)
	}
	if got := b.ReadableBytes() - readableBefore; got != n {
		t.Fatalf("readable grew by %d, want %d", got, n)
	}
	if !bytes.Equal(b.Peek(), payload) {
		t.Fatal("payload corrupted across the scratch overflow")
	}
	// the overflow portion specifically must match the source tail
	overflow := n - writable
	if !bytes.Equal(b.Peek()[n-overflow:], payload[n-overflow:]) {
		t.Fatal("overflow tail corrupted")
	}
}

func TestReadFromFDEOF(t *testing.T) {
	r, w := newTestPipe(t)
	b := NewByteBufferSize(16)
	defer b.Close()

	w.Close()
	n, err := b.ReadFromFD(int(r.Fd()))
	if err != nil || n != 0 {
		t.Fatalf("eof read: n=%d err=%v", n, err)
	}
	if b.ReadableBytes() != 0 {
		t.Fatalf("cursors moved on eof: readable=%d", b.ReadableBytes())
	}
}

func TestReadFromFDError(t *testing.T) {
	b := NewByteBufferSize(16)
	defer b.Close()
	b.AppendString("keep")

	_, err := b.ReadFromFD(-1)
	if err == nil {
		t.Fatal("expected an error from a bad descriptor")
	}
	if got := string(b.Peek()); got != "keep" {
		t.Fatalf("cursors moved on error: %q", got)
	}
}

func TestWriteToFD(t *testing.T) {
	r, w := newTestPipe(t)
	b := NewByteBufferSize(64)
	defer b.Close()

	b.AppendString("drain me")
	n, err := b.WriteToFD(int(w.Fd()))
	if err != nil {
		t.Fatal(err)
	}
	if n != 8 || b.ReadableBytes() != 0 {
		t.Fatalf("wrote %d, readable left %d", n, b.ReadableBytes())
	}
	got := make([]byte, 8)
	if _, err = r.Read(got); err != nil {
		t.Fatal(err)
	}
	if string(got) != "drain me" {
		t.Fatalf("pipe received %q", got)
	}
}

func TestWriteToFDPartial(t *testing.T) {
	r, w := newTestPipe(t)
	wfd := int(w.Fd())
	if err := unix.SetNonblock(wfd, true); err != nil {
		t.Fatal(err)
	}
	// shrink the pipe so the kernel accepts less than we stage
	pipeSize, err := unix.FcntlInt(uintptr(wfd), unix.F_SETPIPE_SZ, block4k)
	if err != nil {
		t.Skipf("cannot resize pipe: %v", err)
	}

	b := NewByteBufferSize(16)
	defer b.Close()
	payload := bytes.Repeat([]byte("0123456789abcdef"), (pipeSize*4)/16)
	b.Append(payload)

	total := b.ReadableBytes()
	n, err := b.WriteToFD(wfd)
	if err != nil {
		t.Fatal(err)
	}
	if n <= 0 || n >= total {
		t.Fatalf("expected a partial write, wrote %d of %d", n, total)
	}
	if b.ReadableBytes() != total-n {
		t.Fatalf("readable = %d, want %d", b.ReadableBytes(), total-n)
	}
	if !bytes.Equal(b.Peek(), payload[n:]) {
		t.Fatal("peek does not point at the unwritten remainder")
	}

	// the pipe is full now: the next write reports EAGAIN and moves nothing
	readable := b.ReadableBytes()
	_, err = b.WriteToFD(wfd)
	if err != unix.EAGAIN {
		t.Fatalf("expected EAGAIN, got %v", err)
	}
	if b.ReadableBytes() != readable {
		t.Fatal("cursors moved on EAGAIN")
	}
	_ = r
}
