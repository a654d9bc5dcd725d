package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/1ureka/sharelink/internal/util"
)

// Path is where the websocket endpoint is mounted.
const Path = "/ws"

// Server serves a websocket handler (the relay hub or a WAMP router) on Path.
type Server struct {
	addr     string
	listener net.Listener
	http     *http.Server

	done chan struct{}
	err  error // set before done closes
}

// NewServer creates a server for handler listening on addr. Use ":0" for a
// random port.
func NewServer(addr string, handler http.Handler) *Server {
	mux := http.NewServeMux()
	mux.Handle(Path, handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return &Server{
		addr: addr,
		http: &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		done: make(chan struct{}),
	}
}

// Start begins listening and returns the bound address.
func (s *Server) Start() (net.Addr, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start relay server: %w", err)
	}
	s.listener = listener

	go func() {
		defer close(s.done)
		if err := s.http.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			util.LogError("relay server: %v", err)
			s.err = err
		}
	}()

	return listener.Addr(), nil
}

// Done is closed once the server stops serving, either after Close or
// because the listener failed.
func (s *Server) Done() <-chan struct{} { return s.done }

// Err reports why serving stopped. It is nil after a clean Close and only
// valid once Done is closed.
func (s *Server) Err() error { return s.err }

// Close stops accepting connections and waits up to timeout for requests in
// flight. Hijacked websockets are not waited for.
func (s *Server) Close(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
