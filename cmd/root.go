// Package cmd is the agentrt command-line surface, adapted from the
// teacher's cmd/root.go: a single cobra root command with a small,
// fixed set of subcommands, rather than the teacher's much larger
// code-generation/orchestration command tree (out of scope here).
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "agentrt",
	Short: "Tool-execution runtime for AI coding agents",
	Long: `agentrt is the tool-execution core an AI coding agent delegates to: it
decides whether a requested tool call is safe to run, plans which calls in
a batch may run in parallel, routes execution to a direct call or a
supervised background task, and enforces resource limits on whatever it
spawns.

Available commands:
  run       - start (or resume) an interactive tool-execution session
  setup     - first-run configuration wizard
  cost      - report accumulated cost for the current session
  sessions  - list, rename, or delete saved sessions`,
}

// SetContext installs the process-lifetime context (cancelled on
// SIGINT/SIGTERM by main) onto the root command, so every subcommand's
// RunE sees it via cmd.Context().
func SetContext(ctx context.Context) {
	rootCmd.SetContext(ctx)
}

// Execute runs the root command. Called once from main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("settings", "", "path to settings.json (default ~/.agentrt/settings.json)")
}

// settingsPathFlag resolves the --settings flag on any subcommand into a
// concrete path, falling back to the default config-dir location.
func settingsPathFlag(cmd *cobra.Command) string {
	if v, err := cmd.Flags().GetString("settings"); err == nil && v != "" {
		return v
	}
	return defaultSettingsPath()
}
