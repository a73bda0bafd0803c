// Package types holds the data model shared by every core subsystem:
// tool calls and results, risk tiers, permissions, execution strategies,
// and the task state machine.
package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NewToolCallID returns a process-unique ID for a ToolCall, used when the
// LLM-stream parser doesn't supply one of its own.
func NewToolCallID() string { return uuid.NewString() }

// NewTaskID returns a process-unique ID for a supervised Task.
func NewTaskID() string { return uuid.NewString() }

// ToolCall is an identifier, a tool name, and a JSON argument object.
// Immutable once produced by the LLM-stream parser.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`

	// Source records who originated this call -- the outer agent loop is
	// expected to set it when the arguments were assembled from prior tool
	// output or fetched content rather than typed directly by the user.
	// Left unset (SourceUnknown) by callers that don't track provenance.
	Source SourceTag `json:"source,omitempty"`

	// args is the lazily-decoded form of Arguments, used by the planner's
	// path extraction and by tool execute() implementations.
	args map[string]interface{}
}

// Args decodes Arguments into a map, caching the result. A malformed or
// empty argument object decodes to an empty map rather than erroring --
// callers that need strict validation should validate against the tool's
// JSON schema before dispatch.
func (c *ToolCall) Args() map[string]interface{} {
	if c.args != nil {
		return c.args
	}
	c.args = map[string]interface{}{}
	if len(c.Arguments) > 0 {
		_ = json.Unmarshal(c.Arguments, &c.args)
	}
	return c.args
}

// ToolResult is the outcome of executing one ToolCall. TaskID is set only
// when the call was routed to the TaskSupervisor (StrategyTask/
// StrategyTaskPty) instead of running to completion inline -- the caller
// polls task_status/waits on it separately rather than blocking dispatch.
type ToolResult struct {
	CallID               string        `json:"call_id"`
	Success              bool          `json:"success"`
	Output               string        `json:"output"`
	Error                string        `json:"error,omitempty"`
	Duration             time.Duration `json:"duration"`
	PermissionRequired   bool          `json:"permission_required"`
	PermissionWasGranted bool          `json:"permission_was_granted"`
	TaskID               string        `json:"task_id,omitempty"`
}

// RiskTier classifies a shell command's destructive potential.
type RiskTier int

const (
	RiskUnknown RiskTier = iota
	RiskSafe
	RiskCaution
	RiskInteractive
	RiskDangerous
	RiskForbidden
)

func (r RiskTier) String() string {
	switch r {
	case RiskSafe:
		return "safe"
	case RiskCaution:
		return "caution"
	case RiskInteractive:
		return "interactive"
	case RiskDangerous:
		return "dangerous"
	case RiskForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// ActionKind is the kind of action a Permission governs.
type ActionKind int

const (
	ActionExecute ActionKind = iota
	ActionFileRead
	ActionFileWrite
	ActionNetwork
	ActionCustom
)

// Action is a concrete permission-checkable action.
type Action struct {
	Kind    ActionKind
	Command string // ActionExecute
	Path    string // ActionFileRead / ActionFileWrite
	URL     string // ActionNetwork
	Domain  string // ActionCustom
	Details string // ActionCustom
	Source  SourceTag
}

// SourceTag identifies who originated a ToolCall, for the SafetyGate's
// call-sequence risk detection. Tool implementations that don't track
// provenance leave this at its zero value, SourceUnknown.
type SourceTag int

const (
	SourceUnknown SourceTag = iota
	SourceUser
	SourceSystem
	SourceToolResult
	SourceExternal
)

func (s SourceTag) String() string {
	switch s {
	case SourceUser:
		return "user"
	case SourceSystem:
		return "system"
	case SourceToolResult:
		return "tool_result"
	case SourceExternal:
		return "external"
	default:
		return "unknown"
	}
}

// TrustLevel ranks SourceTag from least to most trusted. A ToolResult or
// External source (content the model read rather than the user typed)
// ranks below User/System, so the gate can weight a pattern like
// "read untrusted content, then execute" more heavily than the same
// sequence initiated directly by the user.
func (s SourceTag) TrustLevel() int {
	switch s {
	case SourceUser, SourceSystem:
		return 2
	case SourceToolResult:
		return 1
	case SourceExternal:
		return 0
	default:
		return 1
	}
}

// Scope is how long a Permission grant lives.
type Scope int

const (
	ScopeOnce Scope = iota
	ScopeSession
	ScopePermanent
)

func (s Scope) String() string {
	switch s {
	case ScopeOnce:
		return "once"
	case ScopeSession:
		return "session"
	case ScopePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Permission is a (tool, action, scope) triple. Grants form a set; a grant
// matches a request when tool and action unify.
type Permission struct {
	Tool   string
	Action Action
	Scope  Scope
}

// PermissionStatus is the result of a SafetyGate check.
type PermissionStatus int

const (
	StatusUnknown PermissionStatus = iota
	StatusGranted
	StatusAutoApproved
	StatusDenied
)

func (s PermissionStatus) String() string {
	switch s {
	case StatusGranted:
		return "granted"
	case StatusAutoApproved:
		return "auto_approved"
	case StatusDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// ExecutionStrategy is the backend the StrategyRouter selects for a call.
type ExecutionStrategy int

const (
	StrategyDirect ExecutionStrategy = iota
	StrategyTask
	StrategyTaskPty
	StrategyRequiresConfirmation
	StrategyBlocked
)

func (s ExecutionStrategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategyTask:
		return "task"
	case StrategyTaskPty:
		return "task_pty"
	case StrategyRequiresConfirmation:
		return "requires_confirmation"
	case StrategyBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// ToolKind classifies a tool for the dependency planner.
type ToolKind int

const (
	ToolReadOnly ToolKind = iota
	ToolWrite
	ToolStateMutating
)

// ExecMode is how a Task's child process is wired to its parent.
type ExecMode int

const (
	ExecLocal ExecMode = iota
	ExecPty
)

// TaskState is a node in the Task state machine:
//
//	Pending -> Running -> {Completed | Failed | Cancelled}
//	Running <-> Paused
//
// Terminal states (Completed, Failed, Cancelled) are sticky.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskRunning
	TaskPaused
	TaskCompleted
	TaskFailed
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskPaused:
		return "paused"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is a sticky terminal state.
func (s TaskState) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// CanTransitionTo reports whether the state machine permits s -> next.
func (s TaskState) CanTransitionTo(next TaskState) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case TaskPending:
		return next == TaskRunning || next == TaskCancelled
	case TaskRunning:
		return next == TaskPaused || next == TaskCompleted || next == TaskFailed || next == TaskCancelled
	case TaskPaused:
		return next == TaskRunning || next == TaskCancelled || next == TaskFailed
	}
	return false
}

// LimitExceededAction is the response to a ResourceLimits violation.
type LimitExceededAction int

const (
	LimitWarn LimitExceededAction = iota
	LimitPause
	LimitTerminate
	LimitKill
)

func (a LimitExceededAction) String() string {
	switch a {
	case LimitWarn:
		return "warn"
	case LimitPause:
		return "pause"
	case LimitTerminate:
		return "terminate"
	case LimitKill:
		return "kill"
	default:
		return "warn"
	}
}

// ResourceLimits are optional caps enforced by the TaskSupervisor's poller.
type ResourceLimits struct {
	MaxCPUPercent      float64 // 0 means unset
	MaxMemoryBytes     uint64
	MaxVirtualMemBytes uint64
	MaxDuration        time.Duration
	OnExceeded         LimitExceededAction
}

// HasCPULimit reports whether a CPU cap is configured.
func (r ResourceLimits) HasCPULimit() bool { return r.MaxCPUPercent > 0 }

// HasMemoryLimit reports whether a resident-memory cap is configured.
func (r ResourceLimits) HasMemoryLimit() bool { return r.MaxMemoryBytes > 0 }

// HasVirtualMemLimit reports whether a virtual-memory cap is configured.
func (r ResourceLimits) HasVirtualMemLimit() bool { return r.MaxVirtualMemBytes > 0 }

// HasDurationLimit reports whether a wall-clock cap is configured.
func (r ResourceLimits) HasDurationLimit() bool { return r.MaxDuration > 0 }

// ViolationKind identifies which limit tripped.
type ViolationKind int

const (
	ViolationCPU ViolationKind = iota
	ViolationMemory
	ViolationVirtualMemory
	ViolationDuration
)

func (v ViolationKind) String() string {
	switch v {
	case ViolationCPU:
		return "cpu_exceeded"
	case ViolationMemory:
		return "memory_exceeded"
	case ViolationVirtualMemory:
		return "virtual_memory_exceeded"
	case ViolationDuration:
		return "duration_exceeded"
	default:
		return "unknown_violation"
	}
}

// ResourceViolation records one limit breach and the action taken.
type ResourceViolation struct {
	Kind      ViolationKind
	Current   float64
	Limit     float64
	At        time.Time
	Action    LimitExceededAction
}

// Phase is a maximal set of tool-call indices from one batch that may run
// concurrently without violating the planner's conflict rules.
type Phase struct {
	ToolIndices []int
	Parallel    bool

	// Diagnostic is set only on the planner's cycle-fallback phase (the
	// dependency graph stalled with nodes remaining), recording why every
	// remaining call was serialized into one phase instead of levelized.
	Diagnostic string `json:"diagnostic,omitempty"`
}
