package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gsd-build/gsd-relay/internal/paths"
	"github.com/gsd-build/gsd-relay/internal/question"
)

// Questions prints pending questions, or a session's full history when
// sessionID is set.
func Questions(home, sessionID string, jsonOut bool) error {
	client, err := NewClient(paths.SocketPath(home))
	if err != nil {
		return err
	}
	defer client.Close()

	method := "question.pending"
	params := map[string]any{}
	if sessionID != "" {
		method = "question.history"
		params["session_id"] = sessionID
	}

	raw, err := client.Call(method, params)
	if err != nil {
		return err
	}

	if jsonOut {
		fmt.Println(string(raw))
		return nil
	}

	var resp struct {
		Questions []question.Question `json:"questions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("parse %s response: %w", method, err)
	}

	if len(resp.Questions) == 0 {
		fmt.Println("no questions")
		return nil
	}

	width := TerminalWidth()
	for _, q := range resp.Questions {
		state := "pending"
		switch {
		case q.TimedOut:
			state = "timed out"
		case q.AnsweredAt != nil:
			state = "answered"
		}
		line := fmt.Sprintf("%-10s %s  %s", state,
			q.CreatedAt.Local().Format(time.Kitchen), question.Title(q.Text))
		if q.ThreadID != "" {
			line += fmt.Sprintf("  (thread %s)", q.ThreadID)
		}
		fmt.Println(truncateTo(line, width))
	}
	return nil
}

// Answer delivers an answer to a pending question by thread ID, bypassing
// the messaging channel.
func Answer(home, threadID, text string, jsonOut bool) error {
	client, err := NewClient(paths.SocketPath(home))
	if err != nil {
		return err
	}
	defer client.Close()

	raw, err := client.Call("answer.deliver", map[string]any{
		"thread_id": threadID,
		"text":      text,
	})
	if err != nil {
		return err
	}

	if jsonOut {
		fmt.Println(string(raw))
		return nil
	}

	var resp struct {
		Delivered bool `json:"delivered"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("parse answer.deliver response: %w", err)
	}
	if !resp.Delivered {
		return fmt.Errorf("no pending question for thread %s", threadID)
	}
	fmt.Println("answer delivered")
	return nil
}
