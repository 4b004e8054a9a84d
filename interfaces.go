package zbuf

const (
	block1k = 1 * 1024
	block2k = 2 * 1024
	block4k = 4 * 1024
	block8k = 8 * 1024

	pageSize = block8k
)

type Reader interface {
	Peek(n int) (buf []byte, err error)
	Next(n int) (p []byte, err error)
	Skip(n int) (err error)
	Until(delim byte) (line []byte, err error)
	ReadString(n int) (s string, err error)
	ReadBinary(n int) (p []byte, err error)
	ReadByte() (b byte, err error)
	Len() (length int)
}

type Writer interface {
	WriteString(s string) (n int, err error)
	WriteBinary(b []byte) (n int, err error)
	WriteByte(b byte) (err error)
	MallocLen() (length int)
	Flush() (err error)
}
