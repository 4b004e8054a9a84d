package zbuf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/zhihanii/zlog"
	"golang.org/x/sys/unix"
)

type Conn interface {
	FDConn
	Reader
	Writer
	ReadLine() (line []byte, isPrefix bool, err error)
	LoadValue() any
	StoreValue(v any)
}

type FDConn interface {
	net.Conn
	Fd() int
}

type connection struct {
	netFD
	locker

	onReadCallback atomic.Value

	ctx            context.Context
	closeCallbacks atomic.Value
	operator       *FDOperator
	readTimeout    time.Duration
	readTimer      *time.Timer
	readTrigger    chan struct{}
	waitReadSize   int64
	writeTrigger   chan error

	// The ByteBuffers are single-owner stores: compaction moves bytes around,
	// so the poller goroutine and the handler goroutine must never touch a
	// buffer at the same time. Each buffer gets its own lock.
	inputLock    sync.Mutex
	inputBuffer  *ByteBuffer
	outputLock   sync.Mutex
	outputBuffer *ByteBuffer

	value any
}

func (c *connection) Reader() Reader {
	return c
}

func (c *connection) Writer() Writer {
	return c
}

func (c *connection) LoadValue() any {
	return c.value
}

func (c *connection) StoreValue(v any) {
	c.value = v
}

// IsActive implements Conn.
func (c *connection) IsActive() bool {
	return c.isCloseBy(none)
}

func (c *connection) SetOnRead(onRead func(context.Context, Conn) error) {
	c.onReadCallback.Store(OnRead(onRead))
}

// SetIdleTimeout implements Conn.
func (c *connection) SetIdleTimeout(timeout time.Duration) error {
	if timeout > 0 {
		return c.SetKeepAlive(int(timeout.Seconds()))
	}
	return nil
}

// SetReadTimeout implements Conn.
func (c *connection) SetReadTimeout(timeout time.Duration) error {
	if timeout >= 0 {
		c.readTimeout = timeout
	}
	return nil
}

// Len implements Reader.
func (c *connection) Len() (length int) {
	c.inputLock.Lock()
	if c.inputBuffer != nil {
		length = c.inputBuffer.ReadableBytes()
	}
	c.inputLock.Unlock()
	return length
}

// Peek implements Reader. The returned bytes are a copy: the poller may
// compact the input buffer under the reader's feet, so no view into the
// backing storage can be handed out across the lock.
func (c *connection) Peek(n int) (buf []byte, err error) {
	if err = c.waitRead(n); err != nil {
		return buf, err
	}
	c.inputLock.Lock()
	if c.inputBuffer == nil {
		c.inputLock.Unlock()
		return nil, ErrConnClosed
	}
	buf = make([]byte, n)
	copy(buf, c.inputBuffer.Peek())
	c.inputLock.Unlock()
	return buf, nil
}

// Next implements Reader: it returns the next n bytes and consumes them.
func (c *connection) Next(n int) (p []byte, err error) {
	if err = c.waitRead(n); err != nil {
		return p, err
	}
	c.inputLock.Lock()
	if c.inputBuffer == nil {
		c.inputLock.Unlock()
		return nil, ErrConnClosed
	}
	p = make([]byte, n)
	copy(p, c.inputBuffer.Peek())
	c.inputBuffer.Consume(n)
	c.inputLock.Unlock()
	return p, nil
}

// Skip implements Reader.
func (c *connection) Skip(n int) (err error) {
	if err = c.waitRead(n); err != nil {
		return err
	}
	c.inputLock.Lock()
	if c.inputBuffer == nil {
		c.inputLock.Unlock()
		return ErrConnClosed
	}
	c.inputBuffer.Consume(n)
	c.inputLock.Unlock()
	return nil
}

// Until implements Reader: it reads until the first occurrence of delim and
// returns the bytes through it. The scan resumes where the previous round
// stopped, so already-searched data is not rescanned.
func (c *connection) Until(delim byte) (line []byte, err error) {
	var n int
	for {
		if err = c.waitRead(n + 1); err != nil {
			// hand out whatever is buffered
			line, _ = c.Next(c.Len())
			return line, err
		}
		c.inputLock.Lock()
		if c.inputBuffer == nil {
			c.inputLock.Unlock()
			return nil, ErrConnClosed
		}
		view := c.inputBuffer.Peek()
		i := bytes.IndexByte(view[n:], delim)
		l := len(view)
		c.inputLock.Unlock()
		if i < 0 {
			n = l
			continue
		}
		return c.Next(n + i + 1)
	}
}

func (c *connection) ReadLine() (line []byte, isPrefix bool, err error) {
	line, err = c.Until('\n')
	if len(line) == 0 {
		if err != nil {
			line = nil
		}
		return
	}
	err = nil

	if line[len(line)-1] == '\n' {
		drop := 1
		if len(line) > 1 && line[len(line)-2] == '\r' {
			drop = 2
		}
		line = line[:len(line)-drop]
	}
	return
}

// ReadString implements Reader.
func (c *connection) ReadString(n int) (s string, err error) {
	p, err := c.Next(n)
	return string(p), err
}

// ReadBinary implements Reader.
func (c *connection) ReadBinary(n int) (p []byte, err error) {
	return c.Next(n)
}

// ReadByte implements Reader.
func (c *connection) ReadByte() (b byte, err error) {
	p, err := c.Next(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// ------------------------------------------ buffered writer ------------------------------------------

// MallocLen implements Writer: the bytes staged but not yet flushed.
func (c *connection) MallocLen() (length int) {
	c.outputLock.Lock()
	if c.outputBuffer != nil {
		length = c.outputBuffer.ReadableBytes()
	}
	c.outputLock.Unlock()
	return length
}

// Flush sends all staged output.
//
// Flush first tries a direct write; whatever the kernel does not accept is
// left in the output buffer and sent by the poller on EPOLLOUT.
func (c *connection) Flush() error {
	if !c.IsActive() || !c.lock(flushing) {
		return ErrConnClosed
	}
	defer c.unlock(flushing)
	return c.flush()
}

// WriteString implements Writer.
func (c *connection) WriteString(s string) (n int, err error) {
	c.outputLock.Lock()
	if c.outputBuffer == nil {
		c.outputLock.Unlock()
		return 0, ErrConnClosed
	}
	c.outputBuffer.AppendString(s)
	c.outputLock.Unlock()
	return len(s), nil
}

// WriteBinary implements Writer.
func (c *connection) WriteBinary(b []byte) (n int, err error) {
	c.outputLock.Lock()
	if c.outputBuffer == nil {
		c.outputLock.Unlock()
		return 0, ErrConnClosed
	}
	c.outputBuffer.Append(b)
	c.outputLock.Unlock()
	return len(b), nil
}

// WriteByte implements Writer.
func (c *connection) WriteByte(b byte) (err error) {
	var p [1]byte
	p[0] = b
	_, err = c.WriteBinary(p[:])
	return err
}

// ------------------------------------------ implement net.Conn ------------------------------------------

// Read behaves like net.Conn: it blocks until some data is readable.
func (c *connection) Read(p []byte) (n int, err error) {
	l := len(p)
	if l == 0 {
		return 0, nil
	}
	if err = c.waitRead(1); err != nil {
		return 0, err
	}
	c.inputLock.Lock()
	if c.inputBuffer == nil {
		c.inputLock.Unlock()
		return 0, ErrConnClosed
	}
	n = copy(p, c.inputBuffer.Peek())
	c.inputBuffer.Consume(n)
	c.inputLock.Unlock()
	return n, nil
}

// Write stages p and flushes immediately.
func (c *connection) Write(p []byte) (n int, err error) {
	if !c.IsActive() || !c.lock(flushing) {
		return 0, ErrConnClosed
	}
	defer c.unlock(flushing)

	if _, err = c.WriteBinary(p); err != nil {
		return 0, err
	}
	return len(p), c.flush()
}

// Close implements Conn.
func (c *connection) Close() error {
	return c.onClose()
}

// ------------------------------------------ private ------------------------------------------

// init initializes the connection with options.
func (c *connection) init(conn FDConn, opts *options, eh EventHandler) (err error) {
	c.readTrigger = make(chan struct{}, 1)
	c.writeTrigger = make(chan error, 1)
	c.inputBuffer, c.outputBuffer = GetBuffer(), GetBuffer()

	c.initNetFD(conn) // conn must be *netFD{}
	c.initFDOperator()
	c.initFinalizer()

	syscall.SetNonblock(c.fd, true)
	// enable TCP_NODELAY by default
	switch c.network {
	case "tcp", "tcp4", "tcp6":
		setTCPNoDelay(c.fd, true)
	}

	// connection initialized and prepare options
	return c.onPrepare(opts, eh)
}

func (c *connection) initNetFD(conn FDConn) {
	if nfd, ok := conn.(*netFD); ok {
		c.netFD = *nfd
		return
	}
	c.netFD = netFD{
		fd:         conn.Fd(),
		localAddr:  conn.LocalAddr(),
		remoteAddr: conn.RemoteAddr(),
	}
}

func (c *connection) initFDOperator() {
	op := allocOp()
	op.FD = c.fd
	op.OnHup = c.onHup
	op.OnInput, op.OnOutput = c.onInput, c.onOutput
	op.isConnection = true
	c.operator = op
}

func (c *connection) initFinalizer() {
	c.AddCloseCallback(func(c *connection) error {
		c.stop(flushing)
		// stop the finalizing state to prevent conn.fill from running late
		c.stop(finalizing)
		freeOp(c.operator)
		c.netFD.Close()
		c.closeBuffer()
		return nil
	})
}

func (c *connection) triggerRead() {
	select {
	case c.readTrigger <- struct{}{}:
	default:
	}
}

func (c *connection) triggerWrite(err error) {
	select {
	case c.writeTrigger <- err:
	default:
	}
}

// waitRead will wait full n bytes.
func (c *connection) waitRead(n int) (err error) {
	if n <= c.Len() {
		return nil
	}
	atomic.StoreInt64(&c.waitReadSize, int64(n))
	defer atomic.StoreInt64(&c.waitReadSize, 0)
	if c.readTimeout > 0 {
		return c.waitReadWithTimeout(n)
	}
	// wait full n
	for c.Len() < n {
		if c.IsActive() {
			<-c.readTrigger
			continue
		}
		// confirm that fd is still valid.
		if atomic.LoadUint32(&c.netFD.closed) == 0 {
			return c.fill(n)
		}
		return ErrConnClosed
	}
	return nil
}

// waitReadWithTimeout will wait full n bytes or until timeout.
func (c *connection) waitReadWithTimeout(n int) (err error) {
	if c.readTimer == nil {
		c.readTimer = time.NewTimer(c.readTimeout)
	} else {
		c.readTimer.Reset(c.readTimeout)
	}

	for c.Len() < n {
		if !c.IsActive() {
			// cannot return directly, stop timer before !
			// confirm that fd is still valid.
			if atomic.LoadUint32(&c.netFD.closed) == 0 {
				err = c.fill(n)
			} else {
				err = ErrConnClosed
			}
			break
		}

		select {
		case <-c.readTimer.C:
			// double check if there is enough data to be read
			if c.Len() >= n {
				return nil
			}
			return fmt.Errorf("%w: remote addr %s", ErrReadTimeout, c.remoteAddr.String())
		case <-c.readTrigger:
			continue
		}
	}

	// clean timer.C
	if !c.readTimer.Stop() {
		<-c.readTimer.C
	}
	return err
}

// fill pulls the remaining kernel data after the connection stopped being
// polled.
func (c *connection) fill(need int) (err error) {
	if !c.lock(finalizing) {
		return ErrConnClosed
	}
	defer c.unlock(finalizing)

	var n int
	for {
		c.inputLock.Lock()
		if c.inputBuffer == nil {
			c.inputLock.Unlock()
			return ErrConnClosed
		}
		n, err = c.inputBuffer.ReadFromFD(c.fd)
		c.inputLock.Unlock()
		err = c.eofError(n, err)
		if err != nil {
			break
		}
	}
	if c.Len() >= need {
		return nil
	}
	return err
}

func (c *connection) eofError(n int, err error) error {
	if err == unix.EINTR {
		return nil
	}
	if n == 0 && err == nil {
		return io.EOF
	}
	return err
}

func (c *connection) onPrepare(opts *options, eh EventHandler) (err error) {
	c.SetOnRead(eh.OnRead)
	if opts != nil {
		c.SetReadTimeout(opts.readTimeout)
		c.SetIdleTimeout(opts.idleTimeout)
	}

	if c.ctx == nil {
		c.ctx = context.Background()
	}
	if opts != nil && opts.onPrepare != nil {
		if ctx := opts.onPrepare(c.ctx, c); ctx != nil {
			c.ctx = ctx
		}
	}
	if c.IsActive() {
		return c.register()
	}
	return nil
}

// closeCallback .
// It can be confirmed that closeCallback and onRead will not be executed concurrently.
// If onRead is still running, it will trigger closeCallback on exit.
func (c *connection) closeCallback(needLock bool) (err error) {
	if needLock && !c.lock(processing) {
		return nil
	}
	// If Close is called during OnPrepare, poll is not registered.
	if c.closeBy(user) && c.operator.poller != nil {
		c.operator.Control(EpollDetach)
	}
	var latest = c.closeCallbacks.Load()
	if latest == nil {
		return nil
	}
	for node := latest.(*closeCallbackNode); node != nil; node = node.pre {
		node.cb(c)
	}
	return nil
}

func (c *connection) register() (err error) {
	if c.operator.poller != nil {
		err = c.operator.Control(EpollModRead)
	} else {
		c.operator.poller = defaultPollerManager.Pick()
		err = c.operator.Control(EpollRead)
	}
	if err != nil {
		zlog.Errorf("connection register failed: %v", err)
		c.Close()
		return
	}
	return nil
}

type CloseCallback func(c *connection) error

type closeCallbackNode struct {
	cb  CloseCallback
	pre *closeCallbackNode
}

func (c *connection) AddCloseCallback(callback CloseCallback) error {
	if callback == nil {
		return nil
	}
	var node = &closeCallbackNode{
		cb: callback,
	}
	if pre := c.closeCallbacks.Load(); pre != nil {
		node.pre = pre.(*closeCallbackNode)
	}
	c.closeCallbacks.Store(node)
	return nil
}

// onHup means close by poller.
func (c *connection) onHup(p Poller) error {
	if c.closeBy(poller) {
		c.triggerRead()
		c.triggerWrite(ErrConnClosed)
		// If OnRead is nil the user is responsible for closing, otherwise the
		// close callbacks run once the handler goroutine has exited.
		var onRead, _ = c.onReadCallback.Load().(OnRead)
		if onRead != nil {
			c.closeCallback(true)
		}
	}
	return nil
}

// onClose means close by user.
func (c *connection) onClose() error {
	if c.closeBy(user) {
		c.triggerRead()
		c.triggerWrite(ErrConnClosed)
		c.closeCallback(true)
		return nil
	}
	if c.isCloseBy(poller) {
		// connections without an OnRead handler rely on the user calling
		// Close to recycle resources.
		c.closeCallback(true)
	}
	return nil
}

// closeBuffer recycles the input & output ByteBuffers.
func (c *connection) closeBuffer() {
	var onRead, _ = c.onReadCallback.Load().(OnRead)
	if c.Len() == 0 || onRead != nil {
		c.inputLock.Lock()
		PutBuffer(c.inputBuffer)
		c.inputBuffer = nil
		c.inputLock.Unlock()
	}
	c.outputLock.Lock()
	PutBuffer(c.outputBuffer)
	c.outputBuffer = nil
	c.outputLock.Unlock()
}

// onInput implements FDOperator: the poller saw EPOLLIN, drain the socket
// into the input buffer with one scatter read.
func (c *connection) onInput() error {
	c.inputLock.Lock()
	if c.inputBuffer == nil {
		c.inputLock.Unlock()
		return ErrConnClosed
	}
	n, err := c.inputBuffer.ReadFromFD(c.fd)
	length := c.inputBuffer.ReadableBytes()
	c.inputLock.Unlock()
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return nil
		}
		return err
	}
	if n == 0 {
		return io.EOF
	}

	var needTrigger = true
	if length == n { // first data after the buffer went empty
		needTrigger = c.onRead()
	}
	if needTrigger && length >= int(atomic.LoadInt64(&c.waitReadSize)) {
		c.triggerRead()
	}
	return nil
}

// onOutput implements FDOperator: the poller saw EPOLLOUT, drain the output
// buffer into the socket.
func (c *connection) onOutput() error {
	c.outputLock.Lock()
	defer c.outputLock.Unlock()
	if c.outputBuffer == nil {
		return ErrConnClosed
	}
	if c.outputBuffer.IsEmpty() {
		c.rw2r()
		return nil
	}
	_, err := c.outputBuffer.WriteToFD(c.fd)
	if err != nil && err != unix.EAGAIN {
		return err
	}
	if c.outputBuffer.IsEmpty() {
		c.rw2r()
	}
	return nil
}

// rw2r removes the monitoring of write events.
func (c *connection) rw2r() {
	c.operator.Control(EpollRW2R)
	c.triggerWrite(nil)
}

// flush writes staged data directly; the unaccepted remainder is handed to
// the poller and flush waits for it to drain.
func (c *connection) flush() error {
	c.outputLock.Lock()
	if c.outputBuffer == nil {
		c.outputLock.Unlock()
		return ErrConnClosed
	}
	if c.outputBuffer.IsEmpty() {
		c.outputLock.Unlock()
		return nil
	}
	_, err := c.outputBuffer.WriteToFD(c.fd)
	if err != nil && err != unix.EAGAIN {
		c.outputLock.Unlock()
		return fmt.Errorf("flush: %w", err)
	}
	empty := c.outputBuffer.IsEmpty()
	c.outputLock.Unlock()
	if empty {
		return nil
	}
	err = c.operator.Control(EpollR2RW)
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	err = <-c.writeTrigger
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
