package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gsd-build/gsd-relay/internal/session"
)

// SessionRegisterRequest is the request for session.register.
type SessionRegisterRequest struct {
	ProjectRoot string `json:"project_root,omitempty"`
}

// SessionRegisterResponse is the response for session.register.
type SessionRegisterResponse struct {
	Session session.Session `json:"session"`
}

// SessionRegister registers the calling connection as a front-end session
// and assigns it a label. Re-registering on the same connection replaces
// the previous session.
func (h *Handlers) SessionRegister(_ context.Context, clientID string, params json.RawMessage) (any, error) {
	var req SessionRegisterRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("parse session.register params: %w", err)
	}

	if existing, ok := h.Sessions.GetByClient(clientID); ok {
		h.Sessions.Unregister(existing.ID)
	}

	sess := h.Sessions.Register(clientID, req.ProjectRoot)
	return SessionRegisterResponse{Session: sess}, nil
}

// SessionListResponse is the response for session.list.
type SessionListResponse struct {
	Sessions []session.Session `json:"sessions"`
}

// SessionList returns all connected sessions in connection order.
func (h *Handlers) SessionList(_ context.Context, _ string, _ json.RawMessage) (any, error) {
	return SessionListResponse{Sessions: h.Sessions.List()}, nil
}
