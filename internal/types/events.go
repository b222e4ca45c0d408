package types

// Event is the common interface for daemon events. Events are fanned out to
// the event log and to connected WebSocket observers; they are never used to
// reconstruct daemon state.
type Event interface {
	EventType() string
}

// SessionConnectedEvent represents a session.connected event.
type SessionConnectedEvent struct {
	Type        string `json:"type"`
	Timestamp   string `json:"timestamp"`
	SessionID   string `json:"session_id"`
	Label       string `json:"label"`
	ProjectRoot string `json:"project_root,omitempty"`
}

// EventType returns the event type string.
func (e SessionConnectedEvent) EventType() string { return "session.connected" }

// SessionDisconnectedEvent represents a session.disconnected event.
type SessionDisconnectedEvent struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
	Label     string `json:"label"`
}

// EventType returns the event type string.
func (e SessionDisconnectedEvent) EventType() string { return "session.disconnected" }

// QuestionAskedEvent represents a question.asked event.
type QuestionAskedEvent struct {
	Type       string `json:"type"`
	Timestamp  string `json:"timestamp"`
	QuestionID string `json:"question_id"`
	SessionID  string `json:"session_id"`
	ThreadID   string `json:"thread_id,omitempty"`
	Title      string `json:"title"`
}

// EventType returns the event type string.
func (e QuestionAskedEvent) EventType() string { return "question.asked" }

// QuestionAnsweredEvent represents a question.answered event.
type QuestionAnsweredEvent struct {
	Type       string `json:"type"`
	Timestamp  string `json:"timestamp"`
	QuestionID string `json:"question_id"`
	SessionID  string `json:"session_id"`
	ThreadID   string `json:"thread_id,omitempty"`
}

// EventType returns the event type string.
func (e QuestionAnsweredEvent) EventType() string { return "question.answered" }

// QuestionTimedOutEvent represents a question.timed_out event.
type QuestionTimedOutEvent struct {
	Type       string `json:"type"`
	Timestamp  string `json:"timestamp"`
	QuestionID string `json:"question_id"`
	SessionID  string `json:"session_id"`
	ThreadID   string `json:"thread_id,omitempty"`
}

// EventType returns the event type string.
func (e QuestionTimedOutEvent) EventType() string { return "question.timed_out" }

// Sink receives daemon events. Implementations must not block: emitters call
// Emit inline from request paths.
type Sink interface {
	Emit(event Event)
}

// MultiSink fans an event out to several sinks.
type MultiSink []Sink

// Emit sends the event to every sink in order.
func (m MultiSink) Emit(event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(event)
		}
	}
}
