package zbuf

import (
	"context"
	"time"
)

type Option func(*options)

type options struct {
	numLoops    int
	readTimeout time.Duration
	idleTimeout time.Duration
	onPrepare   func(ctx context.Context, conn Conn) context.Context
}

// WithNumLoops sets the number of poller loops shared by all connections.
func WithNumLoops(numLoops int) Option {
	return func(o *options) {
		o.numLoops = numLoops
	}
}

// WithReadTimeout sets how long a blocking read waits for data before
// returning ErrReadTimeout.
func WithReadTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.readTimeout = timeout
	}
}

// WithIdleTimeout enables TCP keepalive probing at the given interval.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = timeout
	}
}

// WithOnPrepare registers a hook that runs once per accepted connection,
// before it is polled; the returned context is handed to OnConnect/OnRead.
func WithOnPrepare(prepare func(ctx context.Context, conn Conn) context.Context) Option {
	return func(o *options) {
		o.onPrepare = prepare
	}
}
