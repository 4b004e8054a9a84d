package zbuf

import "sync"

// maxPooledSize caps the capacity of buffers kept in the pool; anything a
// large burst inflated beyond it is released instead of hoarded.
const maxPooledSize = 64 * block1k

var bufferPool = sync.Pool{
	New: func() interface{} {
		return NewByteBuffer()
	},
}

// GetBuffer fetches an empty ByteBuffer from the pool.
func GetBuffer() *ByteBuffer {
	return bufferPool.Get().(*ByteBuffer)
}

// PutBuffer resets b and returns it to the pool.
func PutBuffer(b *ByteBuffer) {
	if b == nil || b.store == nil {
		return
	}
	if b.Cap() > maxPooledSize {
		b.Close()
		return
	}
	b.Reset()
	bufferPool.Put(b)
}
