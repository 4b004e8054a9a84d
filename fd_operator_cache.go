package zbuf

import (
	"runtime"
	"sync/atomic"
	"unsafe"
)

const opSize = unsafe.Sizeof(FDOperator{})

func allocOp() *FDOperator {
	return opcache.alloc()
}

func freeOp(op *FDOperator) {
	opcache.free(op)
}

func init() {
	opcache = &operatorCache{
		cache: make([]*FDOperator, 0, 1024),
	}
	runtime.KeepAlive(opcache)
}

var opcache *operatorCache

type operatorCache struct {
	locked int32
	first  *FDOperator
	cache  []*FDOperator
}

func (c *operatorCache) alloc() *FDOperator {
	c.lock()
	if c.first == nil {
		n := block4k / opSize
		if n == 0 {
			n = 1
		}
		// Must be in non-GC memory because it can be referenced
		// only from epoll internals.
		for i := uintptr(0); i < n; i++ {
			pd := &FDOperator{}
			c.cache = append(c.cache, pd)
			pd.next = c.first
			c.first = pd
		}
	}
	op := c.first
	c.first = op.next
	c.unlock()
	return op
}

func (c *operatorCache) free(op *FDOperator) {
	op.unused()
	op.reset()

	c.lock()
	op.next = c.first
	c.first = op
	c.unlock()
}

func (c *operatorCache) lock() {
	for !atomic.CompareAndSwapInt32(&c.locked, 0, 1) {
		runtime.Gosched()
	}
}

func (c *operatorCache) unlock() {
	atomic.StoreInt32(&c.locked, 0)
}
