package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gsd-build/gsd-relay/internal/daemon/eventlog"
)

// HistoryRecentRequest is the request for history.recent.
type HistoryRecentRequest struct {
	Limit int `json:"limit,omitempty"`
}

// HistoryRecentResponse is the response for history.recent.
type HistoryRecentResponse struct {
	Events []eventlog.Entry `json:"events"`
}

// HistoryRecent returns the latest entries from the event log in
// chronological order.
func (h *Handlers) HistoryRecent(_ context.Context, _ string, params json.RawMessage) (any, error) {
	if h.Events == nil {
		return nil, fmt.Errorf("event log is not enabled")
	}
	var req HistoryRecentRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("parse history.recent params: %w", err)
	}
	entries, err := h.Events.Recent(req.Limit)
	if err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return HistoryRecentResponse{Events: entries}, nil
}
