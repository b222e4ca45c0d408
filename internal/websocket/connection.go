package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gsd-build/gsd-relay/internal/daemon"
)

const (
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	pingInterval  = 54 * time.Second
	sendBuffer    = 256
)

// request and response mirror the Unix socket envelope.
type request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type response struct {
	ID     string        `json:"id"`
	Result any           `json:"result,omitempty"`
	Error  *daemon.Error `json:"error,omitempty"`
}

// notification is a server-initiated message; it carries no id and is
// never replied to.
type notification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// conn is one observer connection. Outgoing traffic goes through sendCh so
// event pushes and handler responses never interleave mid-frame.
type conn struct {
	id     string
	ws     *websocket.Conn
	server *Server
	sendCh chan []byte

	mu     sync.Mutex
	closed bool
}

func newConn(id string, ws *websocket.Conn, server *Server) *conn {
	return &conn{
		id:     id,
		ws:     ws,
		server: server,
		sendCh: make(chan []byte, sendBuffer),
	}
}

// run drives the read and write loops until either fails, then tears the
// connection down.
func (c *conn) run(ctx context.Context) {
	defer c.server.removeConn(c)
	defer func() { _ = c.ws.Close() }()

	errCh := make(chan error, 2)
	go func() { errCh <- c.readLoop(ctx) }()
	go func() { errCh <- c.writeLoop(ctx) }()
	<-errCh
	_ = c.close()
}

func (c *conn) readLoop(ctx context.Context) error {
	defer func() { _ = c.close() }()

	_ = c.ws.SetReadDeadline(time.Now().Add(readDeadline))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return fmt.Errorf("observer read: %w", err)
			}
			return nil
		}

		c.dispatch(ctx, message)
	}
}

func (c *conn) writeLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message, ok := <-c.sendCh:
			if !ok {
				return nil
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return fmt.Errorf("observer write: %w", err)
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("observer ping: %w", err)
			}
		}
	}
}

// dispatch parses one inbound frame and runs its handler in a fresh
// goroutine, matching the Unix socket's non-blocking read loop.
func (c *conn) dispatch(ctx context.Context, message []byte) {
	var req request
	if err := json.Unmarshal(message, &req); err != nil {
		c.sendError("unknown", daemon.CodeParseError, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if req.Method == "" {
		c.sendError(req.ID, daemon.CodeParseError, "missing method")
		return
	}

	handler, ok := c.server.handlers.GetHandler(req.Method)
	if !ok {
		c.sendError(req.ID, daemon.CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
		return
	}

	params := req.Params
	if params == nil {
		params = json.RawMessage("{}")
	}

	go func() {
		result, err := handler(ctx, c.id, params)
		if err != nil {
			var coded *daemon.Error
			if errors.As(err, &coded) {
				c.sendResponse(response{ID: req.ID, Error: coded})
				return
			}
			c.sendError(req.ID, daemon.CodeHandlerError, err.Error())
			return
		}
		c.sendResponse(response{ID: req.ID, Result: result})
	}()
}

func (c *conn) sendError(id, code, message string) {
	c.sendResponse(response{ID: id, Error: daemon.NewError(code, message)})
}

func (c *conn) sendResponse(resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_ = c.send(data)
}

// send queues a frame. Returns an error when the connection is closed or
// the buffer is full.
func (c *conn) send(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed")
	}
	select {
	case c.sendCh <- message:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

func (c *conn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.sendCh)
	return c.ws.Close()
}
