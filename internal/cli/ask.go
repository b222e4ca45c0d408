package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gsd-build/gsd-relay/internal/paths"
)

// AskOptions carries the flags for the ask command.
type AskOptions struct {
	ProjectRoot    string
	Context        string
	TimeoutMinutes int
	JSON           bool
}

// Ask registers a session for the project, posts the question, and blocks
// until the operator answers or the daemon times the question out.
func Ask(home, text string, opts AskOptions) error {
	client, err := NewClient(paths.SocketPath(home))
	if err != nil {
		return err
	}
	defer client.Close()

	projectRoot := opts.ProjectRoot
	if projectRoot == "" {
		if cwd, err := os.Getwd(); err == nil {
			projectRoot = cwd
		}
	}

	raw, err := client.Call("session.register", map[string]any{
		"project_root": projectRoot,
	})
	if err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	var reg struct {
		Session struct {
			Label string `json:"label"`
		} `json:"session"`
	}
	_ = json.Unmarshal(raw, &reg)

	if !opts.JSON {
		fmt.Fprintf(os.Stderr, "asking as %s, waiting for an answer...\n", reg.Session.Label)
	}

	params := map[string]any{"text": text}
	if opts.Context != "" {
		params["context"] = opts.Context
	}
	if opts.TimeoutMinutes > 0 {
		params["timeout_minutes"] = opts.TimeoutMinutes
	}

	raw, err = client.Call("ask", params)
	if err != nil {
		return err
	}

	if opts.JSON {
		fmt.Println(string(raw))
		return nil
	}

	var resp struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("parse ask response: %w", err)
	}
	fmt.Println(resp.Answer)
	return nil
}
