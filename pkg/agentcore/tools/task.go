package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/forgecore/agentrt/pkg/agentcore/supervisor"
	"github.com/forgecore/agentrt/pkg/agentcore/types"
)

// TaskSpawn submits a long-running or interactive command to the
// TaskSupervisor instead of blocking the calling turn on it, the
// StrategyTask/StrategyTaskPty counterpart to Bash's StrategyDirect.
type TaskSpawn struct {
	Supervisor *supervisor.Supervisor
}

func (TaskSpawn) Name() string         { return "task_spawn" }
func (TaskSpawn) Description() string  { return "Spawns a command as a supervised background task and returns its task ID." }
func (TaskSpawn) Kind() types.ToolKind { return types.ToolStateMutating }

// RequiredPermission gates the spawned command itself, exactly like Bash.
func (TaskSpawn) RequiredPermission(call types.ToolCall) *types.Action {
	command, _ := call.Args()["command"].(string)
	return &types.Action{Kind: types.ActionExecute, Command: command}
}

func (t TaskSpawn) Execute(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	args := call.Args()
	command, _ := args["command"].(string)
	pty, _ := args["pty"].(bool)
	if command == "" {
		return types.ToolResult{CallID: call.ID, Success: false, Error: "empty command provided", Duration: time.Since(start)}
	}

	mode := types.ExecLocal
	if pty {
		mode = types.ExecPty
	}

	task, err := t.Supervisor.Submit(ctx, call.Name, command, mode, types.ResourceLimits{})
	if err != nil {
		return types.ToolResult{CallID: call.ID, Success: false, Error: err.Error(), Duration: time.Since(start)}
	}
	return types.ToolResult{CallID: call.ID, Success: true, Output: fmt.Sprintf("task %s started", task.ID), TaskID: task.ID, Duration: time.Since(start)}
}

// TaskStop cancels a running task by ID.
type TaskStop struct {
	Supervisor *supervisor.Supervisor
}

func (TaskStop) Name() string         { return "task_stop" }
func (TaskStop) Description() string  { return "Stops a supervised task by ID." }
func (TaskStop) Kind() types.ToolKind { return types.ToolStateMutating }

// RequiredPermission is nil: stopping a task acts on a command already
// approved at task_spawn time, so it needs no fresh gate check.
func (TaskStop) RequiredPermission(call types.ToolCall) *types.Action { return nil }

func (t TaskStop) Execute(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	id, _ := call.Args()["task_id"].(string)
	if id == "" {
		return types.ToolResult{CallID: call.ID, Success: false, Error: "empty task_id provided", Duration: time.Since(start)}
	}
	if err := t.Supervisor.Stop(id); err != nil {
		return types.ToolResult{CallID: call.ID, Success: false, Error: err.Error(), Duration: time.Since(start)}
	}
	return types.ToolResult{CallID: call.ID, Success: true, Output: fmt.Sprintf("task %s stopped", id), Duration: time.Since(start)}
}

// TaskSend writes input to a running PTY-mode task.
type TaskSend struct {
	Supervisor *supervisor.Supervisor
}

func (TaskSend) Name() string         { return "task_send" }
func (TaskSend) Description() string  { return "Sends input to a running task's PTY." }
func (TaskSend) Kind() types.ToolKind { return types.ToolStateMutating }

// RequiredPermission is nil for the same reason as TaskStop.
func (TaskSend) RequiredPermission(call types.ToolCall) *types.Action { return nil }

func (t TaskSend) Execute(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	args := call.Args()
	id, _ := args["task_id"].(string)
	input, _ := args["input"].(string)
	if id == "" {
		return types.ToolResult{CallID: call.ID, Success: false, Error: "empty task_id provided", Duration: time.Since(start)}
	}
	task, ok := t.Supervisor.Get(id)
	if !ok {
		return types.ToolResult{CallID: call.ID, Success: false, Error: "unknown task: " + id, Duration: time.Since(start)}
	}
	if err := task.Send(input); err != nil {
		return types.ToolResult{CallID: call.ID, Success: false, Error: err.Error(), Duration: time.Since(start)}
	}
	return types.ToolResult{CallID: call.ID, Success: true, Output: "input sent", Duration: time.Since(start)}
}

// TaskStatus reports a task's current state and captured output.
type TaskStatus struct {
	Supervisor *supervisor.Supervisor
}

func (TaskStatus) Name() string         { return "task_status" }
func (TaskStatus) Description() string  { return "Reports a supervised task's state and captured output." }
func (TaskStatus) Kind() types.ToolKind { return types.ToolReadOnly }

// RequiredPermission is nil: a status query touches no new filesystem
// or process surface.
func (TaskStatus) RequiredPermission(call types.ToolCall) *types.Action { return nil }

func (t TaskStatus) Execute(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	id, _ := call.Args()["task_id"].(string)
	task, ok := t.Supervisor.Get(id)
	if !ok {
		return types.ToolResult{CallID: call.ID, Success: false, Error: "unknown task: " + id, Duration: time.Since(start)}
	}
	output := fmt.Sprintf("%s\n\n%s", task.SummaryReport(), task.Output())
	return types.ToolResult{CallID: call.ID, Success: true, Output: output, Duration: time.Since(start)}
}
