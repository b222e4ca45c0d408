package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// handleAskHuman posts the question via the daemon and blocks until it
// resolves. The shared ask connection keeps one registered session across
// calls, so follow-ups land in the same messaging thread.
func (s *Server) handleAskHuman(
	_ context.Context,
	_ *gomcp.CallToolRequest,
	input AskHumanInput,
) (*gomcp.CallToolResult, AskHumanOutput, error) {
	if input.Question == "" {
		return nil, AskHumanOutput{}, fmt.Errorf("'question' is required")
	}

	params := map[string]any{"text": input.Question}
	if input.Context != "" {
		params["context"] = input.Context
	}
	if input.TimeoutMinutes > 0 {
		params["timeout_minutes"] = input.TimeoutMinutes
	}

	raw, err := s.askCall("ask", params)
	if err != nil {
		return nil, AskHumanOutput{}, fmt.Errorf("ask: %w", err)
	}

	var resp struct {
		QuestionID string `json:"question_id"`
		Answer     string `json:"answer"`
		ThreadID   string `json:"thread_id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, AskHumanOutput{}, fmt.Errorf("parse ask response: %w", err)
	}

	return nil, AskHumanOutput{
		Answer:     resp.Answer,
		QuestionID: resp.QuestionID,
		ThreadID:   resp.ThreadID,
	}, nil
}

// handleListSessions lists connected sessions via session.list.
func (s *Server) handleListSessions(
	_ context.Context,
	_ *gomcp.CallToolRequest,
	_ ListSessionsInput,
) (*gomcp.CallToolResult, ListSessionsOutput, error) {
	var resp struct {
		Sessions []struct {
			SessionID     string    `json:"session_id"`
			Label         string    `json:"label"`
			ProjectRoot   string    `json:"project_root"`
			Status        string    `json:"status"`
			QuestionTitle string    `json:"question_title"`
			ConnectedAt   time.Time `json:"connected_at"`
		} `json:"sessions"`
	}
	if err := s.call("session.list", map[string]any{}, &resp); err != nil {
		return nil, ListSessionsOutput{}, fmt.Errorf("list sessions: %w", err)
	}

	out := ListSessionsOutput{Sessions: make([]SessionInfo, 0, len(resp.Sessions))}
	for _, sess := range resp.Sessions {
		out.Sessions = append(out.Sessions, SessionInfo{
			SessionID:     sess.SessionID,
			Label:         sess.Label,
			ProjectRoot:   sess.ProjectRoot,
			Status:        sess.Status,
			QuestionTitle: sess.QuestionTitle,
			ConnectedAt:   sess.ConnectedAt.Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

// handleListPendingQuestions lists unresolved questions via question.pending.
func (s *Server) handleListPendingQuestions(
	_ context.Context,
	_ *gomcp.CallToolRequest,
	_ ListPendingQuestionsInput,
) (*gomcp.CallToolResult, ListPendingQuestionsOutput, error) {
	var resp struct {
		Questions []struct {
			QuestionID string    `json:"question_id"`
			SessionID  string    `json:"session_id"`
			Text       string    `json:"text"`
			ThreadID   string    `json:"thread_id"`
			CreatedAt  time.Time `json:"created_at"`
		} `json:"questions"`
	}
	if err := s.call("question.pending", map[string]any{}, &resp); err != nil {
		return nil, ListPendingQuestionsOutput{}, fmt.Errorf("list pending questions: %w", err)
	}

	out := ListPendingQuestionsOutput{Questions: make([]QuestionInfo, 0, len(resp.Questions))}
	for _, q := range resp.Questions {
		out.Questions = append(out.Questions, QuestionInfo{
			QuestionID: q.QuestionID,
			SessionID:  q.SessionID,
			Text:       q.Text,
			ThreadID:   q.ThreadID,
			CreatedAt:  q.CreatedAt.Format(time.RFC3339),
		})
	}
	return nil, out, nil
}
