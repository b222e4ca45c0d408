package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gsd-build/gsd-relay/internal/question"
)

// QuestionListResponse is the response for question.pending and
// question.history.
type QuestionListResponse struct {
	Questions []question.Question `json:"questions"`
}

// QuestionPending returns every unresolved question across all sessions,
// in creation order.
func (h *Handlers) QuestionPending(_ context.Context, _ string, _ json.RawMessage) (any, error) {
	return QuestionListResponse{Questions: h.Questions.GetPendingQuestions()}, nil
}

// QuestionHistoryRequest is the request for question.history.
type QuestionHistoryRequest struct {
	SessionID string `json:"session_id"`
}

// QuestionHistory returns a session's full question history, answered and
// timed-out included.
func (h *Handlers) QuestionHistory(_ context.Context, _ string, params json.RawMessage) (any, error) {
	var req QuestionHistoryRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("parse question.history params: %w", err)
	}
	if req.SessionID == "" {
		return nil, fmt.Errorf("question.history requires session_id")
	}
	return QuestionListResponse{Questions: h.Questions.GetSessionQuestions(req.SessionID)}, nil
}

// QuestionByThreadRequest is the request for question.byThread.
type QuestionByThreadRequest struct {
	ThreadID string `json:"thread_id"`
}

// QuestionByThreadResponse is the response for question.byThread.
type QuestionByThreadResponse struct {
	Question question.Question `json:"question"`
}

// QuestionByThread resolves a thread ID to its pending question. Threads
// whose question already resolved are not found.
func (h *Handlers) QuestionByThread(_ context.Context, _ string, params json.RawMessage) (any, error) {
	var req QuestionByThreadRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("parse question.byThread params: %w", err)
	}
	if req.ThreadID == "" {
		return nil, fmt.Errorf("question.byThread requires thread_id")
	}
	q, ok := h.Questions.GetQuestionByThread(req.ThreadID)
	if !ok {
		return nil, fmt.Errorf("no pending question for thread %s", req.ThreadID)
	}
	return QuestionByThreadResponse{Question: q}, nil
}

// AnswerDeliverRequest is the request for answer.deliver.
type AnswerDeliverRequest struct {
	ThreadID string `json:"thread_id"`
	Text     string `json:"text"`
}

// AnswerDeliverResponse is the response for answer.deliver.
type AnswerDeliverResponse struct {
	Delivered bool `json:"delivered"`
}

// AnswerDeliver routes an answer to a pending question by thread ID. This
// is the manual path: operators normally answer in the messaging channel,
// but the CLI can answer directly when the channel is down. Delivery is
// idempotent; a duplicate returns delivered=false.
func (h *Handlers) AnswerDeliver(_ context.Context, _ string, params json.RawMessage) (any, error) {
	var req AnswerDeliverRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("parse answer.deliver params: %w", err)
	}
	if req.ThreadID == "" || req.Text == "" {
		return nil, fmt.Errorf("answer.deliver requires thread_id and text")
	}
	return AnswerDeliverResponse{Delivered: h.Questions.DeliverAnswer(req.ThreadID, req.Text)}, nil
}
