package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolCall_ArgsDecodesAndCaches(t *testing.T) {
	raw, _ := json.Marshal(map[string]interface{}{"path": "a.go", "count": 3})
	call := ToolCall{ID: "1", Name: "read", Arguments: raw}

	args := call.Args()
	assert.Equal(t, "a.go", args["path"])
	assert.Equal(t, float64(3), args["count"])

	// Second call returns the same cached map instance, not a fresh decode.
	again := call.Args()
	assert.Equal(t, args, again)
}

func TestToolCall_ArgsEmptyArgumentsDecodesToEmptyMap(t *testing.T) {
	call := ToolCall{ID: "1", Name: "read"}
	assert.Empty(t, call.Args())
}

func TestToolCall_ArgsMalformedJSONDecodesToEmptyMap(t *testing.T) {
	call := ToolCall{ID: "1", Name: "read", Arguments: json.RawMessage(`{not json`)}
	assert.Empty(t, call.Args())
}

func TestRiskTier_String(t *testing.T) {
	cases := map[RiskTier]string{
		RiskUnknown: "unknown", RiskSafe: "safe", RiskCaution: "caution",
		RiskInteractive: "interactive", RiskDangerous: "dangerous", RiskForbidden: "forbidden",
	}
	for tier, want := range cases {
		assert.Equal(t, want, tier.String())
	}
}

func TestPermissionStatus_String(t *testing.T) {
	cases := map[PermissionStatus]string{
		StatusUnknown: "unknown", StatusGranted: "granted",
		StatusAutoApproved: "auto_approved", StatusDenied: "denied",
	}
	for status, want := range cases {
		assert.Equal(t, want, status.String())
	}
}

func TestExecutionStrategy_String(t *testing.T) {
	cases := map[ExecutionStrategy]string{
		StrategyDirect: "direct", StrategyTask: "task", StrategyTaskPty: "task_pty",
		StrategyRequiresConfirmation: "requires_confirmation", StrategyBlocked: "blocked",
	}
	for strategy, want := range cases {
		assert.Equal(t, want, strategy.String())
	}
}

func TestScope_String(t *testing.T) {
	assert.Equal(t, "once", ScopeOnce.String())
	assert.Equal(t, "session", ScopeSession.String())
	assert.Equal(t, "permanent", ScopePermanent.String())
}

func TestTaskState_IsTerminal(t *testing.T) {
	assert.True(t, TaskCompleted.IsTerminal())
	assert.True(t, TaskFailed.IsTerminal())
	assert.True(t, TaskCancelled.IsTerminal())
	assert.False(t, TaskPending.IsTerminal())
	assert.False(t, TaskRunning.IsTerminal())
	assert.False(t, TaskPaused.IsTerminal())
}

func TestTaskState_CanTransitionTo(t *testing.T) {
	assert.True(t, TaskPending.CanTransitionTo(TaskRunning))
	assert.True(t, TaskPending.CanTransitionTo(TaskCancelled))
	assert.False(t, TaskPending.CanTransitionTo(TaskCompleted))

	assert.True(t, TaskRunning.CanTransitionTo(TaskPaused))
	assert.True(t, TaskRunning.CanTransitionTo(TaskCompleted))
	assert.True(t, TaskRunning.CanTransitionTo(TaskFailed))
	assert.True(t, TaskRunning.CanTransitionTo(TaskCancelled))
	assert.False(t, TaskRunning.CanTransitionTo(TaskPending))

	assert.True(t, TaskPaused.CanTransitionTo(TaskRunning))
	assert.True(t, TaskPaused.CanTransitionTo(TaskCancelled))
	assert.True(t, TaskPaused.CanTransitionTo(TaskFailed))
	assert.False(t, TaskPaused.CanTransitionTo(TaskCompleted))
}

func TestTaskState_TerminalStatesAreSticky(t *testing.T) {
	for _, terminal := range []TaskState{TaskCompleted, TaskFailed, TaskCancelled} {
		for _, next := range []TaskState{TaskPending, TaskRunning, TaskPaused, TaskCompleted, TaskFailed, TaskCancelled} {
			assert.False(t, terminal.CanTransitionTo(next), "%v should never transition to %v", terminal, next)
		}
	}
}

func TestResourceLimits_HasXLimit(t *testing.T) {
	none := ResourceLimits{}
	assert.False(t, none.HasCPULimit())
	assert.False(t, none.HasMemoryLimit())
	assert.False(t, none.HasVirtualMemLimit())
	assert.False(t, none.HasDurationLimit())

	set := ResourceLimits{MaxCPUPercent: 50, MaxMemoryBytes: 1024, MaxVirtualMemBytes: 2048, MaxDuration: 1}
	assert.True(t, set.HasCPULimit())
	assert.True(t, set.HasMemoryLimit())
	assert.True(t, set.HasVirtualMemLimit())
	assert.True(t, set.HasDurationLimit())
}

func TestNewToolCallID_And_NewTaskID_AreUniqueAndNonEmpty(t *testing.T) {
	a := NewToolCallID()
	b := NewToolCallID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)

	taskA := NewTaskID()
	taskB := NewTaskID()
	assert.NotEmpty(t, taskA)
	assert.NotEqual(t, taskA, taskB)
}
