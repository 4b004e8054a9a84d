package zbuf

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"
)

type echoHandler struct {
	connected chan struct{}
}

func (h *echoHandler) OnConnect(ctx context.Context, conn Conn) error {
	select {
	case h.connected <- struct{}{}:
	default:
	}
	return nil
}

func (h *echoHandler) OnRead(ctx context.Context, conn Conn) error {
	line, _, err := conn.ReadLine()
	if err != nil {
		return err
	}
	if _, err = conn.WriteBinary(line); err != nil {
		return err
	}
	if _, err = conn.WriteString("\n"); err != nil {
		return err
	}
	return conn.Flush()
}

func TestEventLoopEcho(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	h := &echoHandler{connected: make(chan struct{}, 1)}
	evl := NewEventLoop(h, WithNumLoops(2), WithReadTimeout(time.Second))
	go evl.Serve(ln)

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-h.connected:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnect was not dispatched")
	}

	r := bufio.NewReader(conn)
	for i := 0; i < 5; i++ {
		want := fmt.Sprintf("ping %d", i)
		if _, err = fmt.Fprintf(conn, "%s\n", want); err != nil {
			t.Fatal(err)
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		got, err := r.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if got != want+"\n" {
			t.Fatalf("echo %d: got %q, want %q", i, got, want)
		}
	}
	conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = evl.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestEventLoopSplitWrites(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	h := &echoHandler{connected: make(chan struct{}, 1)}
	evl := NewEventLoop(h)
	go evl.Serve(ln)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		evl.Shutdown(ctx)
	}()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// a line delivered one byte at a time must still come back whole
	for _, c := range []byte("fragmented\n") {
		if _, err = conn.Write([]byte{c}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if got != "fragmented\n" {
		t.Fatalf("got %q", got)
	}
}
