package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgecore/agentrt/pkg/agentcore/errkind"
	"github.com/forgecore/agentrt/pkg/agentcore/safety"
	"github.com/forgecore/agentrt/pkg/agentcore/types"
)

var (
	runContinue    bool
	runSessionName string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start or resume an interactive tool-execution session",
	Long: `run starts the tool-execution loop the rest of an agent's process talks
to: it reads newline-delimited ToolCall JSON objects from stdin, runs each
through the safety gate and strategy router, executes it (directly or as a
supervised task), and writes the resulting ToolResult JSON to stdout.

The turn-by-turn LLM conversation itself is out of scope here; run is the
backend an agent's model-facing loop drives.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runContinue, "continue", false, "resume the most recently active session")
	runCmd.Flags().StringVar(&runSessionName, "session", "", "resume (or create) a named session")
	rootCmd.AddCommand(runCmd)
}

func runSession(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := buildRuntime(ctx, settingsPathFlag(cmd))
	if err != nil {
		return errkind.Wrap(errkind.Internal, "run", err)
	}
	defer rt.close(ctx)

	name, err := resolveSessionName(rt, runContinue, runSessionName)
	if err != nil {
		return errkind.Wrap(errkind.NotFound, "run", err)
	}
	wd, _ := os.Getwd()
	if _, err := rt.sessions.Touch(name, wd, ""); err != nil {
		rt.logger.Warnf("session: %v", err)
	}
	rt.logger.Infof("session %q started", name)
	fmt.Fprintf(os.Stderr, "agentrt: session %q ready, reading tool calls from stdin\n", name)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	enc := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var call types.ToolCall
		if err := json.Unmarshal(line, &call); err != nil {
			enc.Encode(types.ToolResult{Success: false, Error: fmt.Sprintf("invalid tool call: %v", err)})
			continue
		}
		if call.ID == "" {
			call.ID = types.NewToolCallID()
		}
		result := rt.executor.Execute(ctx, call)
		if err := enc.Encode(result); err != nil {
			return errkind.Wrap(errkind.Internal, "run", err)
		}
	}
	return scanner.Err()
}

// resolveSessionName applies --continue / --session / default-new-session
// precedence, matching spec's "run (start), --continue (resume latest),
// --session <name> (resume named)" CLI surface.
func resolveSessionName(rt *runtime, cont bool, name string) (string, error) {
	if name != "" {
		return name, nil
	}
	if cont {
		latest, ok, err := rt.sessions.Latest()
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("no previous session to continue")
		}
		return latest.Name, nil
	}
	return types.NewTaskID(), nil
}

// promptConfirmation asks the user whether an Unknown or Dangerous-risk
// call may proceed, the interactive counterpart to the teacher's
// agent_tools/shell.go confirmation prompt ("Do you want to proceed?
// (y/N)"). It satisfies registry.ConfirmFunc. Since run's stdin is the
// tool-call stream itself, the prompt is read from the controlling
// terminal (/dev/tty) rather than stdin, which would race the main
// scanner over the same file descriptor; callers with no controlling
// terminal (CI, a fully piped agent loop) always get a denial -- there
// is nowhere to ask, and failing closed matches the gate's
// default-deny-on-unknown posture.
func promptConfirmation(ctx context.Context, call types.ToolCall, decision safety.Decision) bool {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return false
	}
	defer tty.Close()

	command, _ := call.Args()["command"].(string)
	fmt.Fprintf(tty, "agentrt: %s %s requires confirmation (%s, risk=%s)\nProceed? (y/N): ",
		call.Name, command, decision.Reason, decision.Risk)
	reader := bufio.NewReader(tty)
	answer, _ := reader.ReadString('\n')
	switch answer {
	case "y\n", "Y\n", "yes\n":
		return true
	default:
		return false
	}
}
