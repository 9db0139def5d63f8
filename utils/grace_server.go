package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Request bodies and responses carry whole videos, so only the header read
// and idle keep-alive are bounded.
const (
	DEFAULT_READ_HEADER_TIMEOUT = 10 * time.Second
	DEFAULT_IDLE_TIMEOUT        = 120 * time.Second
	DEFAULT_SHUTDOWN_TIMEOUT    = 30 * time.Second
)

// Server wraps http.Server to drain in-flight requests on shutdown.
type Server struct {
	*http.Server

	listener        net.Listener
	shutdownTimeout time.Duration
}

// NewServer creates a Server with handler. Zero read or write timeouts
// leave transfers unbounded.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *Server {
	return &Server{
		Server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: DEFAULT_READ_HEADER_TIMEOUT,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       DEFAULT_IDLE_TIMEOUT,
		},
		shutdownTimeout: DEFAULT_SHUTDOWN_TIMEOUT,
	}
}

// Listen binds the listening socket so callers can learn the address before serving.
func (srv *Server) Listen() error {
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("net.Listen error: %w", err)
	}
	srv.listener = ln
	return nil
}

// ListenerAddr returns the bound address, or nil before Listen.
func (srv *Server) ListenerAddr() net.Addr {
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Addr()
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (srv *Server) Run(ctx context.Context) error {
	if srv.listener == nil {
		if err := srv.Listen(); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(srv.listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	Sugar.Info("graceful shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), srv.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		Sugar.Errorf("HTTP server shutdown error: %v", err)
		return err
	}
	Sugar.Info("HTTP server shutdown success")
	return nil
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// GraceServer serves handler on addr until ctx is cancelled.
func GraceServer(ctx context.Context, addr string, handler http.Handler) error {
	return newGraceServer(addr, handler).Run(ctx)
}

func newGraceServer(addr string, handler http.Handler) *Server {
	return NewServer(addr, handler, 0, 0)
}
