package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	goruntime "runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gsd-build/gsd-relay/internal/cli"
	"github.com/gsd-build/gsd-relay/internal/mcp"
	"github.com/gsd-build/gsd-relay/internal/paths"
	"github.com/gsd-build/gsd-relay/internal/relay"
)

var (
	// Build info (set via ldflags).
	Version = "dev"
	Build   = "unknown"
)

var (
	// Global flags.
	flagHome string
	flagJSON bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gsd-relay",
		Short: "Human-in-the-loop relay for coding agents",
		Long: `gsd-relay lets coding sessions ask a human operator blocking
questions through a messaging channel and resume once the answer
arrives. It runs as a per-user daemon; sessions attach over a Unix
socket or via the MCP front-end.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagHome, "home", "", "Relay home directory (default ~/.gsd-relay, or GSD_RELAY_HOME)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "JSON output for scripting")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("gsd-relay v{{.Version}} (build: " + Build + ", " + goruntime.Version() + ")\n")

	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(questionsCmd())
	rootCmd.AddCommand(answerCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(mcpCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// home resolves the relay home directory: flag, then env, then default.
func home() string {
	if flagHome != "" {
		return flagHome
	}
	return paths.Home()
}

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the relay daemon",
	}
	cmd.AddCommand(daemonStartCmd())
	cmd.AddCommand(daemonStopCmd())
	cmd.AddCommand(daemonStatusCmd())
	cmd.AddCommand(daemonRunCmd())
	return cmd
}

func daemonStartCmd() *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.DaemonStart(home(), local); err != nil {
				return err
			}
			if !flagJSON {
				fmt.Println("daemon started")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Disable the WebSocket observer endpoint")
	return cmd
}

func daemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.DaemonStop(home()); err != nil {
				return err
			}
			if !flagJSON {
				fmt.Println("daemon stopped")
			}
			return nil
		},
	}
}

func daemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			result := cli.DaemonStatus(home())
			if flagJSON {
				data, err := json.Marshal(result)
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			if !result.Running {
				fmt.Println("daemon is not running")
				return nil
			}
			fmt.Printf("daemon %s (PID %d, v%s, up %s)\n", result.Status, result.PID, result.Version, result.Uptime)
			if result.ObserverPort > 0 {
				fmt.Printf("observer: ws://localhost:%d/ws\n", result.ObserverPort)
			}
			fmt.Printf("sessions: %d, pending questions: %d\n", result.Sessions, result.PendingQuestions)
			return nil
		},
	}
}

func daemonRunCmd() *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:    "run",
		Short:  "Run the daemon in the foreground",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return relay.Run(context.Background(), home(), Version, local)
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Disable the WebSocket observer endpoint")
	return cmd
}

func askCmd() *cobra.Command {
	var opts cli.AskOptions
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the operator a question and wait for the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.JSON = flagJSON
			return cli.Ask(home(), strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().StringVar(&opts.ProjectRoot, "project", "", "Project root for the session label (default: cwd)")
	cmd.Flags().StringVar(&opts.Context, "context", "", "Background the operator needs to answer")
	cmd.Flags().IntVar(&opts.TimeoutMinutes, "timeout", 0, "Minutes to wait for an answer (default 30)")
	return cmd
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List connected sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Sessions(home(), flagJSON)
		},
	}
}

func questionsCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "List pending questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Questions(home(), sessionID, flagJSON)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Show this session's full history instead")
	return cmd
}

func answerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "answer <thread-id> <text>",
		Short: "Answer a pending question directly, bypassing the messaging channel",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Answer(home(), args[0], strings.Join(args[1:], " "), flagJSON)
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent daemon events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.History(home(), limit, flagJSON)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Number of events to show")
	return cmd
}

func mcpCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools on stdio for a coding agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			server := mcp.NewServer(home(), project, mcp.WithVersion(Version))
			return server.Run(context.Background())
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Project root for the session label (default: cwd)")
	return cmd
}
