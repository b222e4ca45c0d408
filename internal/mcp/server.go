// Package mcp exposes the relay to coding agents as MCP tools over
// stdio: ask_human (blocking), list_sessions, and list_pending_questions.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gsd-build/gsd-relay/internal/cli"
	"github.com/gsd-build/gsd-relay/internal/paths"
)

// Server bridges an MCP client (the coding agent) to the daemon socket.
type Server struct {
	socketPath  string
	projectRoot string
	version     string
	server      *gomcp.Server

	// The ask connection is long-lived: session registration is tied to the
	// connection, so ask_human calls share one registered session.
	askMu     sync.Mutex
	askClient *cli.Client
}

// Option configures the MCP server.
type Option func(*Server)

// WithVersion sets the server version string.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewServer creates an MCP server talking to the daemon under home. The
// project root defaults to the working directory and becomes the session's
// label prefix.
func NewServer(home, projectRoot string, opts ...Option) *Server {
	if projectRoot == "" {
		if cwd, err := os.Getwd(); err == nil {
			projectRoot = cwd
		}
	}

	s := &Server{
		socketPath:  paths.SocketPath(home),
		projectRoot: projectRoot,
		version:     "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{
			Name:    "gsd-relay",
			Version: s.version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves MCP on stdin/stdout until the client disconnects or ctx is
// canceled.
func (s *Server) Run(ctx context.Context) error {
	defer s.closeAskClient()
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "ask_human",
		Description: "Ask the human operator a question and wait for their answer. Blocks until they reply in the messaging channel or the timeout elapses. Use when a decision genuinely needs a human.",
	}, s.handleAskHuman)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_sessions",
		Description: "List the coding sessions currently connected to the relay daemon",
	}, s.handleListSessions)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_pending_questions",
		Description: "List questions that are still waiting for a human answer",
	}, s.handleListPendingQuestions)
}

// askCall runs an RPC on the shared ask connection, dialing and registering
// a session on first use or after a connection loss. The mutex is held for
// the whole exchange: cli.Client is not concurrent-safe, and serializing
// asks keeps each response paired with the call that sent it.
func (s *Server) askCall(method string, params any) (json.RawMessage, error) {
	s.askMu.Lock()
	defer s.askMu.Unlock()

	client, err := s.askClientLocked()
	if err != nil {
		return nil, err
	}
	raw, err := client.Call(method, params)
	if err != nil {
		// A broken connection also kills the session; re-register next time.
		_ = client.Close()
		s.askClient = nil
		return nil, err
	}
	return raw, nil
}

// askClientLocked returns the shared ask connection. Caller holds askMu.
func (s *Server) askClientLocked() (*cli.Client, error) {
	if s.askClient != nil {
		return s.askClient, nil
	}

	client, err := cli.NewClient(s.socketPath)
	if err != nil {
		return nil, err
	}
	if _, err := client.Call("session.register", map[string]any{
		"project_root": s.projectRoot,
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("register session: %w", err)
	}
	s.askClient = client
	return client, nil
}

func (s *Server) closeAskClient() {
	s.askMu.Lock()
	defer s.askMu.Unlock()
	if s.askClient != nil {
		_ = s.askClient.Close()
		s.askClient = nil
	}
}

// call runs a one-shot RPC on a fresh connection and decodes the result.
// Used by the query tools; cli.Client is not concurrent-safe.
func (s *Server) call(method string, params any, out any) error {
	client, err := cli.NewClient(s.socketPath)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	raw, err := client.Call(method, params)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
