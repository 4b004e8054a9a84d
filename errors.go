package zbuf

import "errors"

var (
	// ErrConnClosed is returned by reads and writes on a closed connection.
	ErrConnClosed = errors.New("zbuf: connection closed")
	// ErrReadTimeout is returned when waitRead exceeds the read timeout.
	ErrReadTimeout = errors.New("zbuf: read timeout")
	// ErrUnsupported is returned by net.Conn methods this transport does not
	// implement.
	ErrUnsupported = errors.New("zbuf: unsupported operation")
)
