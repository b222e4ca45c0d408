package rpc

import (
	"context"
	"encoding/json"
	"os"
	"time"
)

// HealthResponse is the response for the health RPC.
type HealthResponse struct {
	Status           string `json:"status"`
	Version          string `json:"version"`
	PID              int    `json:"pid"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	Sessions         int    `json:"sessions"`
	PendingQuestions int    `json:"pending_questions"`
}

// Health reports daemon liveness and basic counters.
func (h *Handlers) Health(_ context.Context, _ string, _ json.RawMessage) (any, error) {
	return HealthResponse{
		Status:           "ok",
		Version:          h.Version,
		PID:              os.Getpid(),
		UptimeSeconds:    int64(time.Since(h.StartedAt).Seconds()),
		Sessions:         h.Sessions.Count(),
		PendingQuestions: h.Questions.PendingCount(),
	}, nil
}
