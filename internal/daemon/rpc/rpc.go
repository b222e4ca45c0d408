// Package rpc implements the daemon's method table: the handlers behind
// both the Unix socket and the WebSocket observer endpoint.
package rpc

import (
	"time"

	"github.com/gsd-build/gsd-relay/internal/daemon"
	"github.com/gsd-build/gsd-relay/internal/daemon/eventlog"
	"github.com/gsd-build/gsd-relay/internal/question"
	"github.com/gsd-build/gsd-relay/internal/session"
)

// Registrar is where handlers get installed. Satisfied by *daemon.Server.
type Registrar interface {
	RegisterHandler(method string, h daemon.Handler)
}

// Handlers bundles the daemon state the RPC methods operate on.
type Handlers struct {
	Sessions  *session.Registry
	Questions *question.Manager
	Events    *eventlog.Log // optional; history.recent errors without it
	Version   string
	StartedAt time.Time
}

// RegisterAll installs every RPC method on the registrar.
func (h *Handlers) RegisterAll(r Registrar) {
	r.RegisterHandler("health", h.Health)
	r.RegisterHandler("session.register", h.SessionRegister)
	r.RegisterHandler("session.list", h.SessionList)
	r.RegisterHandler("ask", h.Ask)
	r.RegisterHandler("question.pending", h.QuestionPending)
	r.RegisterHandler("question.history", h.QuestionHistory)
	r.RegisterHandler("question.byThread", h.QuestionByThread)
	r.RegisterHandler("answer.deliver", h.AnswerDeliver)
	r.RegisterHandler("history.recent", h.HistoryRecent)
}
