package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gsd-build/gsd-relay/internal/paths"
	"github.com/gsd-build/gsd-relay/internal/session"
)

// Sessions prints the connected sessions.
func Sessions(home string, jsonOut bool) error {
	client, err := NewClient(paths.SocketPath(home))
	if err != nil {
		return err
	}
	defer client.Close()

	raw, err := client.Call("session.list", map[string]any{})
	if err != nil {
		return err
	}

	if jsonOut {
		fmt.Println(string(raw))
		return nil
	}

	var resp struct {
		Sessions []session.Session `json:"sessions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("parse session.list response: %w", err)
	}

	if len(resp.Sessions) == 0 {
		fmt.Println("no connected sessions")
		return nil
	}

	width := TerminalWidth()
	for _, s := range resp.Sessions {
		line := fmt.Sprintf("%-16s %-8s connected %s", s.Label, s.Status,
			s.ConnectedAt.Local().Format(time.Kitchen))
		if s.Status == session.StatusWaiting && s.QuestionTitle != "" {
			line += "  " + s.QuestionTitle
		}
		fmt.Println(truncateTo(line, width))
	}
	return nil
}
