// Package websocket is the observer endpoint: a localhost (or tailnet)
// WebSocket server that speaks the same request envelope as the Unix socket
// and additionally pushes daemon events to connected clients. Dashboards
// and remote CLIs attach here; front-end sessions use the Unix socket.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gsd-build/gsd-relay/internal/daemon"
	"github.com/gsd-build/gsd-relay/internal/identity"
	"github.com/gsd-build/gsd-relay/internal/types"
)

// HandlerSource exposes the daemon's method table to this transport.
// Satisfied by *daemon.Server.
type HandlerSource interface {
	GetHandler(method string) (daemon.Handler, bool)
}

// Server accepts WebSocket connections and dispatches envelope requests
// against the shared method table. It also implements types.Sink so daemon
// events fan out to every connected observer.
type Server struct {
	handlers HandlerSource
	upgrader websocket.Upgrader
	httpSrv  *http.Server

	listen func() (net.Listener, error)
	port   int

	mu       sync.RWMutex
	conns    map[string]*conn
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates an observer server bound to 127.0.0.1:port. Port 0
// picks an ephemeral port; Port() reports the bound one.
func NewServer(port int, handlers HandlerSource) *Server {
	s := newServer(handlers)
	s.listen = func() (net.Listener, error) {
		return net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	}
	return s
}

// NewServerWithListener creates an observer server over a caller-provided
// listener, such as a tsnet listener exposed on the tailnet.
func NewServerWithListener(ln net.Listener, port int, handlers HandlerSource) *Server {
	s := newServer(handlers)
	s.listen = func() (net.Listener, error) { return ln, nil }
	s.port = port
	return s
}

func newServer(handlers HandlerSource) *Server {
	s := &Server{
		handlers: handlers,
		conns:    make(map[string]*conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local observers only; there is no cross-origin browser story.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start binds the listener and begins serving. Non-blocking.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return fmt.Errorf("observer server is shut down")
	}
	s.mu.Unlock()

	ln, err := s.listen()
	if err != nil {
		return fmt.Errorf("listen for observers: %w", err)
	}
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = addr.Port
	}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "observer server error: %v\n", err)
		}
	}()
	return nil
}

// Stop closes every connection and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.shutdown = true
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown observer server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
	return nil
}

// Port returns the bound port, valid after Start.
func (s *Server) Port() int {
	return s.port
}

// ConnCount returns the number of attached observers.
func (s *Server) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Emit implements types.Sink: every daemon event is pushed to all
// observers as a {"method":"event","params":{...}} notification.
func (s *Server) Emit(e types.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		fmt.Fprintf(os.Stderr, "observer: marshal event: %v\n", err)
		return
	}
	note, err := json.Marshal(notification{Method: "event", Params: payload})
	if err != nil {
		return
	}

	s.mu.RLock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		// A slow observer drops notifications rather than stalling the
		// event path.
		_ = c.send(note)
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.wg.Done()
		fmt.Fprintf(os.Stderr, "observer upgrade error: %v\n", err)
		return
	}

	c := newConn(identity.GenerateClientID(), wsConn, s)
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()

	// The request context dies when this handler returns; the connection
	// outlives it.
	go c.run(context.Background())
}

func (s *Server) removeConn(c *conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	s.wg.Done()
}
