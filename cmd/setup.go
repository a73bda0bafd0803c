package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgecore/agentrt/pkg/agentcore/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-run configuration wizard",
	Long: `setup writes a starter settings.json: an initial permission policy
built from two yes/no questions, and the maximum number of concurrent tool
executions. Re-running it on an existing settings.json adds to it: an empty
answer keeps the shown default, and existing allow/deny patterns and MCP
servers are preserved.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup(cmd)
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command) error {
	path := settingsPathFlag(cmd)
	settings, err := config.Load(path)
	if err != nil {
		return err
	}

	fmt.Printf("agentrt setup -- writing settings to %s\n\n", path)
	reader := bufio.NewReader(os.Stdin)

	if askYesNo(reader, "Allow all git commands (git status, git commit, ...) without asking?", true) {
		settings.Permissions.Allow = appendUnique(settings.Permissions.Allow, "Bash(git:*)")
	}
	if askYesNo(reader, "Deny destructive filesystem commands (rm -rf /, mkfs, ...) outright?", true) {
		settings.Permissions.Deny = appendUnique(settings.Permissions.Deny, "Bash(rm -rf /*)")
	}

	max := askInt(reader, "Max concurrent tool executions per phase", settings.Execution.MaxConcurrentTools, 8)
	settings.Execution.MaxConcurrentTools = max

	if err := config.Save(path, settings); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	fmt.Println("\nSaved. Run `agentrt run` to start a session.")
	return nil
}

func askYesNo(r *bufio.Reader, prompt string, def bool) bool {
	suffix := "[Y/n]"
	if !def {
		suffix = "[y/N]"
	}
	fmt.Printf("%s %s: ", prompt, suffix)
	line, _ := r.ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	if line == "" {
		return def
	}
	return line == "y" || line == "yes"
}

func askInt(r *bufio.Reader, prompt string, current, fallback int) int {
	if current == 0 {
		current = fallback
	}
	fmt.Printf("%s [%d]: ", prompt, current)
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	var n int
	if _, err := fmt.Sscanf(line, "%d", &n); err != nil || n <= 0 {
		return current
	}
	return n
}

func appendUnique(list []string, v string) []string {
	for _, e := range list {
		if e == v {
			return list
		}
	}
	return append(list, v)
}
