package zbuf

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/zhihanii/zlog"
)

func newServer(listener Listener, eh EventHandler, opts *options) *server {
	return &server{
		o:        opts,
		eh:       eh,
		listener: listener,
	}
}

type server struct {
	o           *options
	eh          EventHandler
	operator    *FDOperator
	listener    Listener
	connections sync.Map // fd -> connection
}

func (s *server) Run() (err error) {
	s.operator = &FDOperator{
		FD:       s.listener.Fd(),
		OnAccept: s.OnAccept,
	}
	s.operator.poller = defaultPollerManager.Pick()
	err = s.operator.Control(EpollRead)
	if err != nil {
		zlog.Errorf("listener register failed: %v", err)
	}
	return err
}

func (s *server) Close(ctx context.Context) error {
	s.operator.Control(EpollDetach)
	s.listener.Close()

	var ticker = time.NewTicker(time.Second)
	defer ticker.Stop()
	var hasConn bool
	for {
		hasConn = false
		s.connections.Range(func(key, value interface{}) bool {
			var conn, ok = value.(gracefulExit)
			if !ok || conn.isIdle() {
				value.(Conn).Close()
			}
			hasConn = true
			return true
		})
		if !hasConn { // all connections have been closed
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			continue
		}
	}
}

func (s *server) OnAccept() error {
	conn, err := s.listener.Accept()
	if err != nil {
		// the listener was closed during shutdown
		if strings.Contains(err.Error(), "closed") {
			return err
		}
		zlog.Errorf("accept connection failed: %v", err)
		return err
	}
	if conn == nil {
		return nil
	}

	var c = new(connection)
	c.init(conn.(FDConn), s.o, s.eh)
	if !c.IsActive() {
		return nil
	}
	var fd = conn.(FDConn).Fd()
	c.AddCloseCallback(func(c *connection) error {
		s.connections.Delete(fd)
		return nil
	})
	s.connections.Store(fd, c)

	gopool.CtxGo(c.ctx, func() {
		s.eh.OnConnect(c.ctx, c)
	})

	return nil
}
