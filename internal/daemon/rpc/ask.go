package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gsd-build/gsd-relay/internal/daemon"
	"github.com/gsd-build/gsd-relay/internal/question"
)

// AskRequest is the request for the ask RPC.
type AskRequest struct {
	Text           string `json:"text"`
	Context        string `json:"context,omitempty"`
	TimeoutMinutes int    `json:"timeout_minutes,omitempty"`
}

// AskResponse is the response for the ask RPC, sent only once the question
// resolves.
type AskResponse struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
	ThreadID   string `json:"thread_id,omitempty"`
}

// Ask posts a question to the operator and blocks the request until an
// answer arrives or the timeout fires. The connection stays responsive:
// the server runs each request in its own goroutine.
func (h *Handlers) Ask(ctx context.Context, clientID string, params json.RawMessage) (any, error) {
	var req AskRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("parse ask params: %w", err)
	}
	if req.Text == "" {
		return nil, fmt.Errorf("ask requires a non-empty text")
	}

	sess, ok := h.Sessions.GetByClient(clientID)
	if !ok {
		return nil, fmt.Errorf("no session registered on this connection; call session.register first")
	}

	timeout := time.Duration(req.TimeoutMinutes) * time.Minute
	if timeout <= 0 {
		timeout = question.DefaultTimeout
	}

	q, err := h.Questions.Ask(ctx, sess.ID, req.Text, req.Context, timeout)
	if err != nil {
		if errors.Is(err, question.ErrTimeout) {
			return nil, daemon.NewError(daemon.CodeTimeout, err.Error())
		}
		return nil, err
	}

	return AskResponse{
		QuestionID: q.ID,
		Answer:     q.Answer,
		ThreadID:   q.ThreadID,
	}, nil
}
