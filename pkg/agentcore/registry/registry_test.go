package registry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/forgecore/agentrt/pkg/agentcore/mcp"
	"github.com/forgecore/agentrt/pkg/agentcore/safety"
	"github.com/forgecore/agentrt/pkg/agentcore/supervisor"
	"github.com/forgecore/agentrt/pkg/agentcore/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTool is a minimal Tool double for exercising the registry and
// executor without touching a real filesystem or process.
type fakeTool struct {
	name string
	kind types.ToolKind
	perm *types.Action
	run  func(call types.ToolCall) types.ToolResult
}

func (f fakeTool) Name() string                                    { return f.name }
func (f fakeTool) Description() string                             { return "fake tool " + f.name }
func (f fakeTool) Kind() types.ToolKind                             { return f.kind }
func (f fakeTool) RequiredPermission(call types.ToolCall) *types.Action { return f.perm }
func (f fakeTool) Execute(ctx context.Context, call types.ToolCall) types.ToolResult {
	if f.run != nil {
		return f.run(call)
	}
	return types.ToolResult{CallID: call.ID, Success: true, Output: "ok"}
}

func callWithArgs(name string, args map[string]interface{}) types.ToolCall {
	raw, _ := json.Marshal(args)
	return types.ToolCall{ID: types.NewToolCallID(), Name: name, Arguments: raw}
}

func TestRegistry_RegisterGetUnregister(t *testing.T) {
	r := New()
	r.Register(fakeTool{name: "t1", kind: types.ToolReadOnly})
	got, ok := r.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "t1", got.Name())

	r.Unregister("t1")
	_, ok = r.Get("t1")
	assert.False(t, ok)
}

func TestRegistry_RegisterTwiceLastWins(t *testing.T) {
	r := New()
	r.Register(fakeTool{name: "t1", kind: types.ToolReadOnly})
	r.Register(fakeTool{name: "t1", kind: types.ToolWrite})
	got, _ := r.Get("t1")
	assert.Equal(t, types.ToolWrite, got.Kind())
}

func TestRegistry_KindDefaultsToStateMutatingForUnknown(t *testing.T) {
	r := New()
	assert.Equal(t, types.ToolStateMutating, r.Kind("does-not-exist"))
}

func TestExecutor_Execute_UnknownToolErrors(t *testing.T) {
	r := New()
	e := NewExecutor(r, 4)
	result := e.Execute(context.Background(), callWithArgs("missing", nil))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown tool")
}

func TestExecutor_Execute_NoGateRunsDirect(t *testing.T) {
	r := New()
	r.Register(fakeTool{name: "t1", kind: types.ToolReadOnly})
	e := NewExecutor(r, 4)
	result := e.Execute(context.Background(), callWithArgs("t1", nil))
	assert.True(t, result.Success)
	assert.Equal(t, "ok", result.Output)
}

func TestExecutor_Execute_DirectCallExceedingTimeoutSurfacesTimeoutError(t *testing.T) {
	r := New()
	r.Register(fakeTool{
		name: "slow", kind: types.ToolReadOnly,
		run: func(call types.ToolCall) types.ToolResult {
			time.Sleep(50 * time.Millisecond)
			return types.ToolResult{CallID: call.ID, Success: true, Output: "too late"}
		},
	})
	e := NewExecutor(r, 4)
	e.SetDefaultTimeout(5 * time.Millisecond)

	result := e.Execute(context.Background(), callWithArgs("slow", nil))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timeout")
}

func TestExecutor_Execute_DirectCallWithinTimeoutSucceeds(t *testing.T) {
	r := New()
	r.Register(fakeTool{name: "fast", kind: types.ToolReadOnly})
	e := NewExecutor(r, 4)
	e.SetDefaultTimeout(time.Second)

	result := e.Execute(context.Background(), callWithArgs("fast", nil))
	assert.True(t, result.Success)
}

func TestExecutor_Dispatch_ForbiddenIsBlocked(t *testing.T) {
	r := New()
	r.Register(fakeTool{
		name: "bash", kind: types.ToolStateMutating,
		perm: &types.Action{Kind: types.ActionExecute, Command: "rm -rf /"},
	})
	e := NewExecutor(r, 4)
	e.WithSafety(safety.New(nil, nil), nil, nil)

	result := e.Execute(context.Background(), callWithArgs("bash", map[string]interface{}{"command": "rm -rf /"}))
	assert.False(t, result.Success)
	assert.True(t, result.PermissionRequired)
}

func TestExecutor_Dispatch_CopiesCallSourceOntoActionBeforeGateCheck(t *testing.T) {
	r := New()
	r.Register(fakeTool{
		name: "read", kind: types.ToolReadOnly,
		perm: &types.Action{Kind: types.ActionFileRead, Path: "/tmp/notes.txt"},
	})
	r.Register(fakeTool{
		name: "bash", kind: types.ToolStateMutating,
		perm: &types.Action{Kind: types.ActionExecute, Command: "rm -rf /tmp/x"},
	})
	e := NewExecutor(r, 4)
	e.WithSafety(safety.New([]string{"Bash(*)"}, nil), nil, nil)

	toolResultCall := callWithArgs("read", map[string]interface{}{"path": "/tmp/notes.txt"})
	toolResultCall.Source = types.SourceToolResult
	e.Execute(context.Background(), toolResultCall)

	execCall := callWithArgs("bash", map[string]interface{}{"command": "rm -rf /tmp/x"})
	execCall.Source = types.SourceToolResult
	result := e.Execute(context.Background(), execCall)

	assert.False(t, result.Success)
	assert.True(t, result.PermissionRequired)
}

func TestExecutor_Dispatch_ConfirmationGrantedRunsAndPersistsGrant(t *testing.T) {
	r := New()
	ran := false
	r.Register(fakeTool{
		name: "bash", kind: types.ToolStateMutating,
		perm: &types.Action{Kind: types.ActionExecute, Command: "npm install left-pad"},
		run: func(call types.ToolCall) types.ToolResult {
			ran = true
			return types.ToolResult{CallID: call.ID, Success: true, Output: "installed"}
		},
	})
	e := NewExecutor(r, 4)
	gate := safety.New(nil, nil)
	confirmCalls := 0
	e.WithSafety(gate, nil, func(ctx context.Context, call types.ToolCall, decision safety.Decision) bool {
		confirmCalls++
		return true
	})

	call := callWithArgs("bash", map[string]interface{}{"command": "npm install left-pad"})
	result := e.Execute(context.Background(), call)
	assert.True(t, ran)
	assert.True(t, result.Success)
	assert.True(t, result.PermissionWasGranted)
	assert.Equal(t, 1, confirmCalls)

	// Repeat call: the session grant from the first confirmation means the
	// gate now auto-grants, so the router routes Task without asking again
	// (with no supervisor configured, dispatch runs it directly).
	result2 := e.Execute(context.Background(), callWithArgs("bash", map[string]interface{}{"command": "npm install left-pad"}))
	assert.True(t, result2.Success)
	assert.Equal(t, 1, confirmCalls, "confirm should not be asked again after a session grant")
}

func TestExecutor_Dispatch_ConfirmationDeniedFails(t *testing.T) {
	r := New()
	r.Register(fakeTool{
		name: "bash", kind: types.ToolStateMutating,
		perm: &types.Action{Kind: types.ActionExecute, Command: "npm install left-pad"},
	})
	e := NewExecutor(r, 4)
	e.WithSafety(safety.New(nil, nil), nil, func(ctx context.Context, call types.ToolCall, decision safety.Decision) bool {
		return false
	})

	result := e.Execute(context.Background(), callWithArgs("bash", map[string]interface{}{"command": "npm install left-pad"}))
	assert.False(t, result.Success)
	assert.True(t, result.PermissionRequired)
}

func TestExecutor_Dispatch_DenyAllConfirmIsDefault(t *testing.T) {
	r := New()
	r.Register(fakeTool{
		name: "bash", kind: types.ToolStateMutating,
		perm: &types.Action{Kind: types.ActionExecute, Command: "npm install left-pad"},
	})
	e := NewExecutor(r, 4)
	e.WithSafety(safety.New(nil, nil), nil, nil)

	result := e.Execute(context.Background(), callWithArgs("bash", map[string]interface{}{"command": "npm install left-pad"}))
	assert.False(t, result.Success)
}

func TestExecutor_Dispatch_TaskStrategyReturnsImmediatelyWithTaskID(t *testing.T) {
	r := New()
	r.Register(fakeTool{
		name: "bash", kind: types.ToolStateMutating,
		perm: &types.Action{Kind: types.ActionExecute, Command: "npm run dev"},
	})
	e := NewExecutor(r, 4)
	sup := supervisor.New(0, types.NewTaskID)
	e.WithSafety(safety.New([]string{"Bash(*)"}, nil), sup, nil)

	done := make(chan types.ToolResult, 1)
	go func() {
		done <- e.Execute(context.Background(), callWithArgs("bash", map[string]interface{}{"command": "npm run dev"}))
	}()

	select {
	case result := <-done:
		assert.True(t, result.Success)
		assert.NotEmpty(t, result.TaskID)
		assert.Contains(t, result.Output, result.TaskID)
		task, ok := sup.Get(result.TaskID)
		require.True(t, ok)
		assert.Equal(t, "bash", task.ToolName)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked on task completion instead of returning immediately")
	}
}

func TestExecutor_Dispatch_TaskControlToolRunsExecuteDirectlyNotSupervisorSubmit(t *testing.T) {
	r := New()
	ran := false
	r.Register(fakeTool{
		name: "task_stop", kind: types.ToolStateMutating,
		run: func(call types.ToolCall) types.ToolResult {
			ran = true
			return types.ToolResult{CallID: call.ID, Success: true, Output: "task stopped"}
		},
	})
	e := NewExecutor(r, 4)
	sup := supervisor.New(0, types.NewTaskID)
	e.WithSafety(safety.New(nil, nil), sup, nil)

	result := e.Execute(context.Background(), callWithArgs("task_stop", map[string]interface{}{"task_id": "t1"}))
	assert.True(t, ran, "task_stop's own Execute must run, not a generic supervisor.Submit")
	assert.True(t, result.Success)
	assert.Equal(t, "task stopped", result.Output)
	assert.Empty(t, sup.List(), "dispatch must not have spawned a blank-command task for task_stop")
}

func TestExecutor_Dispatch_TaskStrategyWithNoSupervisorFallsBackToDirectWithWarning(t *testing.T) {
	r := New()
	r.Register(fakeTool{
		name: "bash", kind: types.ToolStateMutating,
		perm: &types.Action{Kind: types.ActionExecute, Command: "npm run dev"},
		run: func(call types.ToolCall) types.ToolResult {
			return types.ToolResult{CallID: call.ID, Success: true, Output: "started"}
		},
	})
	e := NewExecutor(r, 4)
	e.WithSafety(safety.New([]string{"Bash(*)"}, nil), nil, nil)

	result := e.Execute(context.Background(), callWithArgs("bash", map[string]interface{}{"command": "npm run dev"}))
	assert.True(t, result.Success)
	assert.Contains(t, result.Output, "no task supervisor configured")
}

func TestExecutor_ExecuteBatch_PhasesRunAndCollectResults(t *testing.T) {
	r := New()
	r.Register(fakeTool{name: "read", kind: types.ToolReadOnly})
	r.Register(fakeTool{name: "write", kind: types.ToolWrite})
	e := NewExecutor(r, 4)

	calls := []types.ToolCall{
		callWithArgs("read", map[string]interface{}{"path": "a.go"}),
		callWithArgs("write", map[string]interface{}{"path": "a.go"}),
	}
	results := e.ExecuteBatch(context.Background(), calls)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.True(t, res.Success)
	}
}

func TestMCPToolBridge_RequiredPermissionIsCustomAction(t *testing.T) {
	b := &mcpToolBridge{tool: mcp.Tool{Name: "weather", ServerName: "server1"}}
	action := b.RequiredPermission(types.ToolCall{})
	require.NotNil(t, action)
	assert.Equal(t, types.ActionCustom, action.Kind)
	assert.Equal(t, "server1", action.Domain)
	assert.Equal(t, "weather", action.Details)
}
