// Package router implements the StrategyRouter: it decides which backend
// a tool call should execute on (direct inline call, a supervised Task,
// a Task wired to a PTY, or a confirmation prompt / outright block).
//
// Pattern tables are grounded on original_source/crates/Layer3-agent/src/tool_router.rs's
// ToolRouter (long_running/server/instant/interactive pattern sets),
// translated from its CommandType enum into types.ExecutionStrategy and
// merged with the risk classification from pkg/agentcore/analyzer, which
// itself generalizes the teacher's pkg/agent_tools/safety.go.
package router

import (
	"strings"

	"github.com/forgecore/agentrt/pkg/agentcore/analyzer"
	"github.com/forgecore/agentrt/pkg/agentcore/safety"
	"github.com/forgecore/agentrt/pkg/agentcore/types"
)

type patternKind int

const (
	patternPrefix patternKind = iota
	patternContains
	patternSuffix
	patternExact
)

type pattern struct {
	text string
	kind patternKind
}

func prefix(s string) pattern   { return pattern{s, patternPrefix} }
func contains(s string) pattern { return pattern{s, patternContains} }
func suffix(s string) pattern   { return pattern{s, patternSuffix} }
func exact(s string) pattern    { return pattern{s, patternExact} }

func (p pattern) matches(cmd string) bool {
	switch p.kind {
	case patternPrefix:
		return strings.HasPrefix(cmd, p.text)
	case patternContains:
		return strings.Contains(cmd, p.text)
	case patternSuffix:
		return strings.HasSuffix(cmd, p.text)
	case patternExact:
		return cmd == p.text
	}
	return false
}

func anyMatch(cmd string, patterns []pattern) bool {
	for _, p := range patterns {
		if p.matches(cmd) {
			return true
		}
	}
	return false
}

// longRunningPatterns: watch loops and release builds -- route to Task so
// the agent can poll/cancel instead of blocking the conversation turn.
var longRunningPatterns = []pattern{
	prefix("cargo watch"), prefix("npm run watch"), prefix("tsc --watch"),
	prefix("webpack --watch"), prefix("cargo test --watch"), prefix("npm test --watch"),
	prefix("pytest --watch"), prefix("tail -f"), prefix("watch "), prefix("fswatch"),
	contains("--release"), prefix("go test -count=1 ./... -run"),
}

// serverPatterns: long-lived daemons/servers -- always Task, never Direct.
var serverPatterns = []pattern{
	prefix("cargo run"), contains("actix"), contains("axum"), contains("rocket"),
	prefix("npm start"), prefix("npm run dev"), prefix("npm run serve"), prefix("node "),
	prefix("nodemon"), prefix("ts-node"), prefix("bun run"), prefix("deno run"),
	prefix("python -m http"), prefix("python manage.py runserver"), prefix("flask run"),
	prefix("uvicorn"), prefix("gunicorn"), prefix("django"), prefix("go run"),
	prefix("docker run"), prefix("docker-compose up"), prefix("docker compose up"),
	prefix("mongod"), prefix("redis-server"), prefix("postgres"), prefix("mysql"),
	prefix("kubectl port-forward"), prefix("ngrok"),
}

// instantPatterns: complete quickly -- eligible for Direct execution
// subject to the SafetyGate decision.
var instantPatterns = []pattern{
	prefix("ls"), prefix("dir"), prefix("cat "), prefix("head "), prefix("tail "),
	prefix("grep "), prefix("find "), prefix("wc "), prefix("pwd"), prefix("mkdir "),
	prefix("cp "), prefix("mv "), prefix("touch "),
	suffix("--version"), suffix(" -v"), suffix(" -V"),
	prefix("git status"), prefix("git diff"), prefix("git log"), prefix("git branch"), prefix("git show"),
	prefix("cargo --version"), prefix("cargo check"), prefix("cargo fmt"), prefix("cargo clippy"),
	exact("cargo build"), exact("cargo test"),
	prefix("npm --version"), prefix("npm list"), prefix("npm outdated"), exact("npm install"), exact("npm ci"),
	prefix("python --version"), prefix("pip list"), prefix("pip show"), exact("pip install"),
	prefix("echo "), prefix("date"), prefix("whoami"), prefix("hostname"), prefix("env"), prefix("printenv"),
}

// interactivePatterns: need a PTY -- always TaskPty.
var interactivePatterns = []pattern{
	prefix("vim "), prefix("nvim "), prefix("nano "), prefix("emacs "),
	exact("python"), exact("node"), exact("irb"), prefix("ssh "),
	prefix("mysql -u"), prefix("psql "), prefix("redis-cli"), prefix("mongo "),
}

// Decide selects the ExecutionStrategy for a tool call. toolName identifies
// the tool ("bash", "read", "write", ...); command is the shell command for
// execute-kind tools and is ignored otherwise.
func Decide(toolName, command string, gateDecision safety.Decision) types.ExecutionStrategy {
	if gateDecision.Status == types.StatusDenied {
		return types.StrategyBlocked
	}

	cmd := strings.ToLower(strings.TrimSpace(command))

	if isTaskControlTool(toolName) {
		// task_spawn/task_stop/task_send operate directly on the
		// TaskSupervisor, not a shell command string, so none of the
		// pattern tables below apply -- they always route to Task.
		if gateDecision.Status == types.StatusUnknown {
			return types.StrategyRequiresConfirmation
		}
		return types.StrategyTask
	}

	if !isExecuteTool(toolName) {
		// Non-shell tools (read/write/edit/glob/grep/task_status) run Direct
		// once the gate allows them; they never need a Task or PTY.
		if gateDecision.Status == types.StatusUnknown {
			return types.StrategyRequiresConfirmation
		}
		return types.StrategyDirect
	}

	if gateDecision.Risk == types.RiskForbidden {
		return types.StrategyBlocked
	}

	if anyMatch(cmd, interactivePatterns) {
		return types.StrategyTaskPty
	}
	if anyMatch(cmd, serverPatterns) || anyMatch(cmd, longRunningPatterns) {
		return types.StrategyTask
	}

	if gateDecision.Status == types.StatusUnknown {
		return types.StrategyRequiresConfirmation
	}
	if gateDecision.Risk == types.RiskDangerous {
		return types.StrategyRequiresConfirmation
	}

	if anyMatch(cmd, instantPatterns) {
		return types.StrategyDirect
	}

	// Commands matching none of the known tables default to Task: an
	// unrecognized shell invocation may well be long-running, and Task
	// mode costs nothing but a supervised wait versus Direct's blocking
	// call -- matching the teacher's conservative default elsewhere in
	// pkg/agent_tools/shell.go of treating unknowns cautiously.
	if gateDecision.Status == types.StatusGranted || gateDecision.Status == types.StatusAutoApproved {
		return types.StrategyTask
	}
	return types.StrategyRequiresConfirmation
}

func isExecuteTool(toolName string) bool {
	switch strings.ToLower(toolName) {
	case "bash", "shell", "exec":
		return true
	default:
		return false
	}
}

// isTaskControlTool reports whether toolName is one of the task-control
// tools (task_spawn, task_stop, task_send) that spec §4.4 mandates always
// route to Task regardless of the risk/pattern classification that
// governs shell-command tools.
func isTaskControlTool(toolName string) bool {
	return IsTaskControlTool(toolName)
}

// IsTaskControlTool reports whether toolName is task_spawn/task_stop/
// task_send -- exported so the registry's dispatch can tell these tools
// apart from raw shell commands that also resolve to StrategyTask, since
// task-control tools drive the Supervisor themselves inside Execute
// instead of handing dispatch a command string to submit.
func IsTaskControlTool(toolName string) bool {
	switch strings.ToLower(toolName) {
	case "task_spawn", "task_stop", "task_send":
		return true
	default:
		return false
	}
}

// Analyze is a convenience wrapper exposing the underlying command
// classification used by Decide, for callers (e.g. the executor) that
// need to display the reasoning alongside the chosen strategy.
func Analyze(command string) analyzer.CommandAnalysis {
	return analyzer.AnalyzeCommand(command)
}
