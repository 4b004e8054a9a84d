package zbuf

import (
	"golang.org/x/sys/unix"
)

// scratchSize is the capacity of the overflow destination used by ReadFromFD.
const scratchSize = 64 * block1k

// ReadFromFD drains fd into the buffer with a single scatter readv. The
// first iovec is the current writable region, the second a 64 KiB scratch
// slice, so one call can pull in more than the buffer's spare capacity
// without growing it up front. Whatever lands in the scratch slice is
// appended afterwards, growing or compacting as needed.
//
// At most one system call is made; there is no retry on EAGAIN or EINTR.
// On error the cursors are untouched.
func (b *ByteBuffer) ReadFromFD(fd int) (int, error) {
	var scratch [scratchSize]byte
	writable := b.WritableBytes()
	vs := [2][]byte{b.store[b.wpos:], scratch[:]}
	n, err := unix.Readv(fd, vs[:])
	if err != nil {
		return n, err
	}
	if n <= writable {
		b.wpos += n
		return n, nil
	}
	b.wpos = len(b.store)
	b.Append(scratch[:n-writable])
	return n, nil
}

// WriteToFD writes the readable region to fd with a single write call and
// consumes the bytes accepted by the kernel. A short write leaves the
// remainder readable; the caller retries when fd is writable again. On error
// the cursors are untouched.
func (b *ByteBuffer) WriteToFD(fd int) (int, error) {
	n, err := unix.Write(fd, b.Peek())
	if err != nil {
		return n, err
	}
	b.rpos += n
	return n, nil
}
