package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gsd-build/gsd-relay/internal/identity"
)

// unknownID is the correlation ID used for error responses to lines whose ID
// could not be recovered (malformed JSON).
const unknownID = "unknown"

// Handler handles one IPC request. clientID identifies the connection the
// request arrived on. Handlers may block (the ask handler does, for up to
// the question timeout); each request runs in its own goroutine and the
// connection keeps servicing other lines meanwhile.
type Handler func(ctx context.Context, clientID string, params json.RawMessage) (any, error)

// DisconnectFunc is invoked when a client connection closes, with the
// connection's client ID.
type DisconnectFunc func(clientID string)

// Server is the Unix socket IPC server. Requests and responses are
// newline-delimited JSON: {id, method, params} in,
// {id, result} or {id, error:{message, code}} out.
type Server struct {
	socketPath   string
	listener     net.Listener
	handlers     map[string]Handler
	onDisconnect DisconnectFunc

	mu       sync.RWMutex
	clients  map[string]*clientConn
	shutdown bool
	wg       sync.WaitGroup
}

// clientConn is one live client connection. writeMu serializes response
// writes: concurrent handlers for the same connection finish in any order.
type clientConn struct {
	id      string
	conn    net.Conn
	writeMu sync.Mutex
	writer  *bufio.Writer
}

// NewServer creates an IPC server bound to the given socket path.
func NewServer(socketPath string) *Server {
	return &Server{
		socketPath: socketPath,
		handlers:   make(map[string]Handler),
		clients:    make(map[string]*clientConn),
	}
}

// RegisterHandler registers a handler for a method name.
func (s *Server) RegisterHandler(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// GetHandler returns the handler registered for method. It lets other
// transports (the WebSocket observer endpoint) dispatch against the same
// method table.
func (s *Server) GetHandler(method string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[method]
	return h, ok
}

// SetDisconnectHook sets the callback invoked when a client disconnects.
// Must be called before Start.
func (s *Server) SetDisconnectHook(fn DisconnectFunc) {
	s.onDisconnect = fn
}

// Start binds the socket and begins accepting connections. A stale socket
// left by a crashed process is removed; a socket held by a live daemon is a
// bind error. The socket is restricted to the owning user.
func (s *Server) Start(ctx context.Context) error {
	socketDir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(socketDir, 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	if err := s.removeStaleSocket(); err != nil {
		return err
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	go s.acceptLoop(ctx)
	return nil
}

// Stop closes all live client connections, stops accepting new ones, and
// removes the socket file so a subsequent process can bind cleanly.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.shutdown = true
	clients := make([]*clientConn, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			return fmt.Errorf("close listener: %w", err)
		}
	}
	for _, c := range clients {
		_ = c.conn.Close()
	}

	// Wait for connection handlers to finish, bounded
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove socket: %w", err)
	}
	return nil
}

// removeStaleSocket removes a socket file left behind by a crashed daemon.
// An actively served socket is reported as in use.
func (s *Server) removeStaleSocket() error {
	if _, err := os.Stat(s.socketPath); err != nil {
		return nil
	}
	conn, err := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("socket %s is in use by another daemon", s.socketPath)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.RLock()
			shutdown := s.shutdown
			s.mu.RUnlock()
			if shutdown {
				return
			}
			fmt.Fprintf(os.Stderr, "accept error: %v\n", err)
			continue
		}

		client := &clientConn{
			id:     identity.GenerateClientID(),
			conn:   conn,
			writer: bufio.NewWriter(conn),
		}
		s.mu.Lock()
		s.clients[client.id] = client
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(ctx, client)
	}
}

// handleConnection reads complete lines from one client. Partial lines stay
// buffered until completed by a later read, however the transport chunks the
// stream. Each parsed line is dispatched without blocking the read loop.
func (s *Server) handleConnection(ctx context.Context, client *clientConn) {
	defer s.wg.Done()
	defer s.dropClient(client)

	reader := bufio.NewReader(client.conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		s.handleLine(ctx, client, line)
	}
}

// dropClient removes a client from the connections table and fires the
// disconnect hook exactly once.
func (s *Server) dropClient(client *clientConn) {
	_ = client.conn.Close()

	s.mu.Lock()
	_, present := s.clients[client.id]
	delete(s.clients, client.id)
	shutdown := s.shutdown
	s.mu.Unlock()

	if present && !shutdown && s.onDisconnect != nil {
		s.onDisconnect(client.id)
	}
}

// request is the wire request envelope.
type request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// response is the wire response envelope.
type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// handleLine parses and dispatches one complete request line. Protocol
// errors are answered on the spot; valid requests run their handler in a new
// goroutine so a blocking handler never stalls the connection's read loop.
func (s *Server) handleLine(ctx context.Context, client *clientConn, line []byte) {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		// No correlation ID could be recovered from the line
		s.writeError(client, unknownID, CodeParseError, fmt.Sprintf("parse request: %v", err))
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()
	if !ok {
		s.writeError(client, req.ID, CodeMethodNotFound, fmt.Sprintf("method %q is not registered", req.Method))
		return
	}

	params := req.Params
	if params == nil {
		// Omitted params still give handlers something to unmarshal.
		params = json.RawMessage("{}")
	}

	go func() {
		result, err := handler(ctx, client.id, params)
		if err != nil {
			var coded *Error
			if errors.As(err, &coded) {
				s.writeError(client, req.ID, coded.Code, coded.Message)
			} else {
				s.writeError(client, req.ID, CodeHandlerError, err.Error())
			}
			return
		}

		resultJSON, err := json.Marshal(result)
		if err != nil {
			s.writeError(client, req.ID, CodeHandlerError, fmt.Sprintf("marshal result: %v", err))
			return
		}
		s.writeResponse(client, response{ID: req.ID, Result: resultJSON})
	}()
}

func (s *Server) writeError(client *clientConn, id, code, message string) {
	s.writeResponse(client, response{ID: id, Error: &Error{Code: code, Message: message}})
}

// writeResponse writes one response line. The per-client write lock keeps
// concurrently finishing handlers from interleaving bytes.
func (s *Server) writeResponse(client *clientConn, resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal response: %v\n", err)
		return
	}

	client.writeMu.Lock()
	defer client.writeMu.Unlock()

	if _, err := client.writer.Write(data); err != nil {
		return
	}
	if err := client.writer.WriteByte('\n'); err != nil {
		return
	}
	_ = client.writer.Flush()
}

// ClientCount returns the number of live client connections.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
