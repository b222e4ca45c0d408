// Package cli implements the command-line client: daemon control, the IPC
// client, and the user-facing commands built on them.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Client is one connection to the daemon's Unix socket.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	nextID int
}

// NewClient connects to the daemon socket.
func NewClient(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w (is the daemon running?)", err)
	}
	return &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends one request and reads responses until the matching ID comes
// back. Blocking methods (ask) hold the call open for as long as the
// daemon does.
func (c *Client) Call(method string, params any) (json.RawMessage, error) {
	c.nextID++
	id := strconv.Itoa(c.nextID)

	request := map[string]any{
		"id":     id,
		"method": method,
		"params": params,
	}
	data, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if _, err := c.writer.Write(data); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	if err := c.writer.Flush(); err != nil {
		return nil, fmt.Errorf("flush request: %w", err)
	}

	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		var resp struct {
			ID     string          `json:"id"`
			Result json.RawMessage `json:"result"`
			Error  *struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		if resp.ID != id {
			// Response to a different in-flight request on a shared
			// connection; this client is sequential, so skip it.
			continue
		}

		if resp.Error != nil {
			return nil, fmt.Errorf("%s (%s)", resp.Error.Message, resp.Error.Code)
		}
		return resp.Result, nil
	}
}

// waitForSocket polls until the daemon socket accepts connections.
func waitForSocket(socketPath string, timeout time.Duration) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for daemon socket")
		case <-ticker.C:
			client, err := NewClient(socketPath)
			if err == nil {
				return client, nil
			}
		}
	}
}
