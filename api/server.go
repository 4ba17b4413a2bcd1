// Package api exposes the chat services over HTTP and websocket snapshot streams.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

const readHeaderTimeout = 10 * time.Second

// Server runs the HTTP API on its own listener.
type Server struct {
	httpServer *http.Server
	listener   net.Listener

	// cancel ends the base context of every request, which closes open
	// websocket streams; http.Server.Shutdown does not track hijacked conns.
	cancel context.CancelFunc

	errs      chan error
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Listen binds address and starts serving handler in the background.
func Listen(address string, handler http.Handler) (*Server, error) {
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", address, err)
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	server := &Server{
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
			BaseContext:       func(net.Listener) context.Context { return baseCtx },
		},
		listener: listener,
		cancel:   cancel,
		errs:     make(chan error, 1),
	}

	server.wg.Add(1)
	go server.serve()
	return server, nil
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Errors reports a fatal serve failure. It is closed after Shutdown.
func (s *Server) Errors() <-chan error {
	return s.errs
}

// Shutdown stops accepting requests, closes streams and waits for in-flight
// requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.closeOnce.Do(func() {
		s.cancel()
		shutdownErr = s.httpServer.Shutdown(ctx)
		s.wg.Wait()
		close(s.errs)
	})
	return shutdownErr
}

func (s *Server) serve() {
	defer s.wg.Done()

	err := s.httpServer.Serve(s.listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		select {
		case s.errs <- fmt.Errorf("serve http: %w", err):
		default:
		}
	}
}
