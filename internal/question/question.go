package question

import (
	"sort"
	"strings"
	"time"
)

// Question represents one blocking ask, tracked from creation to answer or
// timeout. Questions are owned by the Manager; everything handed out is a
// copy.
type Question struct {
	ID         string     `json:"question_id"`
	SessionID  string     `json:"session_id"`
	Text       string     `json:"text"`
	Context    string     `json:"context,omitempty"`
	ThreadID   string     `json:"thread_id,omitempty"` // empty in fallback mode
	CreatedAt  time.Time  `json:"created_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
	Answer     string     `json:"answer,omitempty"`
	TimedOut   bool       `json:"timed_out,omitempty"`
}

// Pending reports whether the question is still awaiting an answer.
func (q *Question) Pending() bool {
	return q.AnsweredAt == nil && !q.TimedOut
}

// maxTitleLen caps question titles used for session status and topic names.
const maxTitleLen = 60

// Title derives a one-line title from the question text: the first line,
// truncated with an ellipsis if needed.
func Title(text string) string {
	line := text
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if runes := []rune(line); len(runes) > maxTitleLen {
		line = strings.TrimSpace(string(runes[:maxTitleLen-1])) + "…"
	}
	return line
}

// sortByCreation orders questions oldest-first. Question IDs are ULIDs, so
// they break ties deterministically for questions created in the same tick.
func sortByCreation(qs []Question) {
	sort.Slice(qs, func(i, j int) bool {
		if qs[i].CreatedAt.Equal(qs[j].CreatedAt) {
			return qs[i].ID < qs[j].ID
		}
		return qs[i].CreatedAt.Before(qs[j].CreatedAt)
	})
}
