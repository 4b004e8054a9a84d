package zbuf

import (
	"runtime"
	"sync/atomic"
)

type FDOperator struct {
	FD int

	OnAccept func() error
	OnHup    func(Poller) error

	// OnInput and OnOutput are required for connection operators; the poller
	// calls them on EPOLLIN/EPOLLOUT and each performs at most one transfer
	// on the connection's ByteBuffer.
	OnInput  func() error
	OnOutput func() error

	poller Poller

	next         *FDOperator
	state        int32 // CAS: 0(unused) 1(inuse) 2(onEvent)
	isConnection bool
}

func (o *FDOperator) Control(event EpollEvent) error {
	return o.poller.Control(o, event)
}

func (o *FDOperator) isUnused() bool {
	return atomic.LoadInt32(&o.state) == 0
}

func (o *FDOperator) unused() {
	for !atomic.CompareAndSwapInt32(&o.state, 1, 0) {
		if atomic.LoadInt32(&o.state) == 0 {
			return
		}
		runtime.Gosched()
	}
}

func (o *FDOperator) inuse() {
	for !atomic.CompareAndSwapInt32(&o.state, 0, 1) {
		if atomic.LoadInt32(&o.state) == 1 {
			return
		}
		runtime.Gosched()
	}
}

func (o *FDOperator) tryOnEvent() (ok bool) {
	return atomic.CompareAndSwapInt32(&o.state, 1, 2)
}

// done finishes the event handling and falls back to the inuse state.
func (o *FDOperator) done() {
	atomic.StoreInt32(&o.state, 1)
}

func (o *FDOperator) reset() {
	o.FD = 0
	o.OnAccept, o.OnHup = nil, nil
	o.OnInput, o.OnOutput = nil, nil
	o.poller = nil
	o.isConnection = false
}
