package session

import "time"

// Status describes what a session is currently doing. The set is open:
// callers should treat unknown values as valid.
type Status string

const (
	// StatusIdle means the session is connected but not blocked on anything.
	StatusIdle Status = "idle"
	// StatusWaiting means the session is blocked on a pending question.
	StatusWaiting Status = "waiting"
	// StatusWorking means the session reconnected and resumed work after an
	// answer was delivered.
	StatusWorking Status = "working"
)

// Session represents one connected front-end process. Sessions are owned and
// mutated exclusively by the Registry; everything handed out is a copy.
type Session struct {
	ID            string    `json:"session_id"`
	ClientID      string    `json:"client_id"`
	Label         string    `json:"label"`
	ProjectRoot   string    `json:"project_root,omitempty"`
	Status        Status    `json:"status"`
	QuestionTitle string    `json:"question_title,omitempty"`
	ConnectedAt   time.Time `json:"connected_at"`
}
