package link

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	defaultReadIdle = 50 * time.Millisecond
	readBufferSize  = 1024
)

// Driver executes decoded frames on the actuator node. Move must return promptly; completion
// is not reported back over the link.
type Driver interface {
	Move(ctx context.Context, f Frame) error
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc func(ctx context.Context, f Frame) error

// Move calls fn(ctx, f).
func (fn DriverFunc) Move(ctx context.Context, f Frame) error {
	return fn(ctx, f)
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithReadIdle sets how long a connection may stay quiet before a pending partial frame is
// decoded as complete. Frames have no terminator, so a frame whose bytes arrive further apart
// than d is cut short: "#10;20;30;4" followed later by "5" is delivered with a last field of
// 4, and the stray "5" is logged as a parse error. Keep d well above the sender's write jitter.
func WithReadIdle(d time.Duration) ServerOption {
	return func(s *Server) {
		s.readIdle = d
	}
}

// Server is the actuator node side of the link. It accepts any number of controller
// connections and forwards every decoded frame to the driver in arrival order.
type Server struct {
	driver   Driver
	logger   golog.Logger
	readIdle time.Duration
}

// NewServer returns a server that forwards frames to driver.
func NewServer(driver Driver, logger golog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		driver:   driver,
		logger:   logger,
		readIdle: defaultReadIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// ListenAddr formats the listen address for a host and port.
func ListenAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Serve accepts connections on ln until ctx is done, then closes the listener and every open
// connection and waits for their loops to exit.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	s.logger.Infow("actuator node listening", "addr", ln.Addr().String())

	g.Go(func() error {
		<-gctx.Done()
		return ignoreClosed(ln.Close())
	})

	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return errors.Wrap(err, "accept")
			}
			g.Go(func() error {
				s.handle(gctx, conn)
				return nil
			})
		}
	})

	return g.Wait()
}

// handle runs the receive loop of one connection. Parse and driver errors are logged and the
// frame dropped; only EOF, a read error or shutdown end the loop.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	logger := s.logger.With("remote", remote)
	logger.Info("controller connected")

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer func() {
		stop()
		if err := ignoreClosed(conn.Close()); err != nil {
			logger.Debugw("close connection", "error", err)
		}
		logger.Info("controller disconnected")
	}()

	var dec Decoder
	buf := make([]byte, readBufferSize)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.readIdle)); err != nil {
			return
		}
		n, err := conn.Read(buf)
		if n > 0 {
			frames, perr := dec.Feed(buf[:n])
			s.deliver(ctx, logger, frames, perr)
		}
		if err == nil {
			continue
		}

		var netErr net.Error
		timeout := errors.As(err, &netErr) && netErr.Timeout()
		if dec.Pending() {
			f, ok, perr := dec.Flush()
			var frames []Frame
			if ok {
				frames = []Frame{f}
			}
			s.deliver(ctx, logger, frames, perr)
		}
		if timeout && ctx.Err() == nil {
			continue
		}
		return
	}
}

func (s *Server) deliver(ctx context.Context, logger golog.Logger, frames []Frame, parseErr error) {
	for _, err := range multierr.Errors(parseErr) {
		logger.Warnw("dropping frame", "error", err)
	}
	for _, f := range frames {
		if err := s.driver.Move(ctx, f); err != nil {
			logger.Warnw("driver rejected frame", "frame", f.String(), "error", err)
		}
	}
}

func ignoreClosed(err error) error {
	if err == nil || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
