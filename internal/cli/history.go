package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gsd-build/gsd-relay/internal/daemon/eventlog"
	"github.com/gsd-build/gsd-relay/internal/paths"
)

// History prints the most recent daemon events.
func History(home string, limit int, jsonOut bool) error {
	client, err := NewClient(paths.SocketPath(home))
	if err != nil {
		return err
	}
	defer client.Close()

	raw, err := client.Call("history.recent", map[string]any{"limit": limit})
	if err != nil {
		return err
	}

	if jsonOut {
		fmt.Println(string(raw))
		return nil
	}

	var resp struct {
		Events []eventlog.Entry `json:"events"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("parse history.recent response: %w", err)
	}

	if len(resp.Events) == 0 {
		fmt.Println("no events")
		return nil
	}

	for _, e := range resp.Events {
		ts := e.Timestamp
		if parsed, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
			ts = parsed.Local().Format("Jan 02 15:04:05")
		}
		fmt.Printf("%s  %-22s %s\n", ts, e.Type, summarizeEvent(e))
	}
	return nil
}

// summarizeEvent pulls the human-relevant fields out of an event payload.
func summarizeEvent(e eventlog.Entry) string {
	var fields struct {
		SessionID string `json:"session_id"`
		Label     string `json:"label"`
		Title     string `json:"title"`
		ThreadID  string `json:"thread_id"`
	}
	if err := json.Unmarshal(e.EventJSON, &fields); err != nil {
		return ""
	}
	switch {
	case fields.Title != "":
		return fields.Title
	case fields.Label != "":
		return fields.Label
	case fields.ThreadID != "":
		return "thread " + fields.ThreadID
	default:
		return fields.SessionID
	}
}
