// Package registry implements the ToolRegistry and the batch Executor:
// dispatch of individual tool calls, and phase-barriered parallel
// execution of a batch using pkg/agentcore/planner's schedule.
//
// Grounded on the teacher's pkg/mcp/{manager.go,registry.go,tool_wrapper.go}
// for the registry shape, and on
// original_source/crates/Layer2-core/src/tool/parallel.rs's
// ParallelToolExecutor for the phase-barrier execution loop.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/forgecore/agentrt/pkg/agentcore/errkind"
	"github.com/forgecore/agentrt/pkg/agentcore/mcp"
	"github.com/forgecore/agentrt/pkg/agentcore/planner"
	"github.com/forgecore/agentrt/pkg/agentcore/router"
	"github.com/forgecore/agentrt/pkg/agentcore/safety"
	"github.com/forgecore/agentrt/pkg/agentcore/supervisor"
	"github.com/forgecore/agentrt/pkg/agentcore/types"
)

// defaultDirectTimeout is the wall-clock budget applied to every
// StrategyDirect call when the Executor hasn't been given an explicit
// timeout via SetDefaultTimeout, matching spec §5's default of 30s.
const defaultDirectTimeout = 30 * time.Second

// Tool is the interface every built-in and MCP-bridged tool implements, per
// spec §4.6's tool capability set: a stable name, display metadata, a
// required_permission predicate, and an execute method. RequiredPermission
// returns nil when the call needs no SafetyGate check at all (e.g. a
// read-only status query over no filesystem/process surface).
type Tool interface {
	Name() string
	Description() string
	Kind() types.ToolKind
	RequiredPermission(call types.ToolCall) *types.Action
	Execute(ctx context.Context, call types.ToolCall) types.ToolResult
}

// Registry holds every registered Tool by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any existing registration of the same
// name (later registrations win, matching the teacher's convention in
// pkg/mcp/registry.go of treating re-registration as an update, not an
// error, so that MCP servers can be restarted and re-register cleanly).
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names lists every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

// Kind implements planner.ToolClassifier against the registry's live
// tool set; unregistered tool names classify as ToolStateMutating so the
// planner serializes calls it knows nothing about rather than risking an
// unsafe parallel run.
func (r *Registry) Kind(toolName string) types.ToolKind {
	if t, ok := r.Get(toolName); ok {
		return t.Kind()
	}
	return types.ToolStateMutating
}

// RegisterMCPTools wraps every tool exposed by an MCP manager's running
// servers and registers each under "mcp_<server>_<tool>", mirroring the
// teacher's MCPToolWrapper naming in pkg/mcp/tool_wrapper.go.
func (r *Registry) RegisterMCPTools(ctx context.Context, mgr *mcp.Manager) error {
	tools, err := mgr.AllTools(ctx)
	if err != nil {
		return err
	}
	for _, t := range tools {
		r.Register(newMCPToolBridge(t, mgr))
	}
	return nil
}

type mcpToolBridge struct {
	tool mcp.Tool
	mgr  *mcp.Manager
}

func newMCPToolBridge(t mcp.Tool, mgr *mcp.Manager) *mcpToolBridge {
	return &mcpToolBridge{tool: t, mgr: mgr}
}

func (b *mcpToolBridge) Name() string {
	return "mcp_" + b.tool.ServerName + "_" + b.tool.Name
}

func (b *mcpToolBridge) Description() string {
	desc := b.tool.Description
	if desc == "" {
		desc = fmt.Sprintf("MCP tool %s from %s", b.tool.Name, b.tool.ServerName)
	}
	return fmt.Sprintf("[mcp:%s] %s", b.tool.ServerName, desc)
}

// Kind: MCP tools are treated conservatively as state-mutating since the
// registry cannot introspect what a remote server's tool actually does.
func (b *mcpToolBridge) Kind() types.ToolKind { return types.ToolStateMutating }

// RequiredPermission: an MCP-bridged tool is gated as a Custom action keyed
// on the bridging server, since the registry has no schema-level insight
// into what a remote tool's call will actually touch.
func (b *mcpToolBridge) RequiredPermission(call types.ToolCall) *types.Action {
	return &types.Action{Kind: types.ActionCustom, Domain: b.tool.ServerName, Details: b.tool.Name}
}

func (b *mcpToolBridge) Execute(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	client, ok := b.mgr.Get(b.tool.ServerName)
	if !ok {
		return types.ToolResult{CallID: call.ID, Success: false, Error: "mcp server not found: " + b.tool.ServerName, Duration: time.Since(start)}
	}
	result, err := client.CallTool(ctx, mcp.ToolCallRequest{Name: b.tool.Name, Arguments: call.Args()})
	if err != nil {
		return types.ToolResult{CallID: call.ID, Success: false, Error: err.Error(), Duration: time.Since(start)}
	}
	if result.IsError {
		return types.ToolResult{CallID: call.ID, Success: false, Error: joinContentText(result.Content), Duration: time.Since(start)}
	}
	return types.ToolResult{CallID: call.ID, Success: true, Output: joinContentText(result.Content), Duration: time.Since(start)}
}

func joinContentText(content []mcp.Content) string {
	out := ""
	for _, c := range content {
		if c.Type == "text" {
			out += c.Text
		}
	}
	return out
}

// ConfirmFunc asks a human (or a test double) whether an Unknown/Dangerous
// call may proceed. It returns the grant decision; the caller persists a
// session-scoped grant on true so a repeat of the identical action within
// the same session skips the prompt, per spec §8 scenario 6.
type ConfirmFunc func(ctx context.Context, call types.ToolCall, decision safety.Decision) bool

// denyAllConfirm is the zero-value ConfirmFunc: with no way to ask, every
// Unknown/Dangerous call is denied, matching the gate's fail-closed
// default posture rather than silently auto-running unconfirmed actions.
func denyAllConfirm(context.Context, types.ToolCall, safety.Decision) bool { return false }

// Executor runs batches of tool calls against a Registry, computing a
// phase schedule via pkg/agentcore/planner and running each phase's calls
// concurrently, bounded by a semaphore. Every call -- single or batched --
// passes through the SafetyGate and StrategyRouter before a tool's
// Execute runs, per spec §4.6's "Permission interaction" contract.
type Executor struct {
	registry    *Registry
	sem         *semaphore.Weighted
	maxParallel int64

	gate          *safety.Gate
	supervisor    *supervisor.Supervisor
	confirm       ConfirmFunc
	directTimeout time.Duration
}

// NewExecutor builds an Executor with the given maximum concurrent tool
// executions within a single phase. maxParallel <= 0 defaults to 8. The
// executor runs every call Direct against the registry with no gate
// check until WithSafety attaches a Gate/Supervisor/ConfirmFunc.
func NewExecutor(registry *Registry, maxParallel int64) *Executor {
	if maxParallel <= 0 {
		maxParallel = 8
	}
	return &Executor{registry: registry, sem: semaphore.NewWeighted(maxParallel), maxParallel: maxParallel, confirm: denyAllConfirm, directTimeout: defaultDirectTimeout}
}

// SetDefaultTimeout overrides the wall-clock budget applied to
// StrategyDirect calls (spec §5). d <= 0 resets to the 30s default.
func (e *Executor) SetDefaultTimeout(d time.Duration) {
	if d <= 0 {
		d = defaultDirectTimeout
	}
	e.directTimeout = d
}

// WithSafety attaches the SafetyGate and TaskSupervisor every call is
// routed through, and the ConfirmFunc used when the router demands
// confirmation. It returns the receiver for chaining at construction time.
func (e *Executor) WithSafety(gate *safety.Gate, sup *supervisor.Supervisor, confirm ConfirmFunc) *Executor {
	e.gate = gate
	e.supervisor = sup
	if confirm != nil {
		e.confirm = confirm
	}
	return e
}

// Execute runs one tool call directly, bypassing the planner -- used by
// the StrategyDirect path where there is no batch to schedule. It is the
// single entry point for the gate-check -> router-decide -> backend-
// dispatch pipeline spec §4.6 describes; ExecuteBatch calls it per call
// within a phase.
func (e *Executor) Execute(ctx context.Context, call types.ToolCall) types.ToolResult {
	t, ok := e.registry.Get(call.Name)
	if !ok {
		return types.ToolResult{CallID: call.ID, Success: false, Error: "unknown tool: " + call.Name}
	}
	if e.gate == nil {
		return e.runDirect(ctx, t, call)
	}
	return e.dispatch(ctx, t, call)
}

// runDirect executes a call with the Executor's default wall-clock timeout
// applied, per spec §5 ("every tool call has a default wall-clock timeout
// -- 30s for Direct"). A timed-out call surfaces errkind.Timeout rather
// than whatever ctx.Err() the tool itself happened to return.
func (e *Executor) runDirect(ctx context.Context, t Tool, call types.ToolCall) types.ToolResult {
	timeout := e.directTimeout
	if timeout <= 0 {
		timeout = defaultDirectTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan types.ToolResult, 1)
	go func() { done <- t.Execute(runCtx, call) }()

	select {
	case result := <-done:
		return result
	case <-runCtx.Done():
		kind := errkind.Internal
		if runCtx.Err() == context.DeadlineExceeded {
			kind = errkind.Timeout
		}
		err := errkind.Wrap(kind, "registry.Execute", runCtx.Err())
		return types.ToolResult{CallID: call.ID, Success: false, Error: err.Error()}
	}
}

// dispatch implements spec §4.6's permission interaction and §4.4's
// strategy routing for one already-resolved Tool.
func (e *Executor) dispatch(ctx context.Context, t Tool, call types.ToolCall) types.ToolResult {
	action := t.RequiredPermission(call)
	decision := safety.Decision{Status: types.StatusAutoApproved}
	if action != nil {
		action.Source = call.Source
		decision = e.gate.Check(t.Name(), *action)
	}

	strategy := router.Decide(call.Name, commandOf(call), decision)

	switch strategy {
	case types.StrategyBlocked:
		return types.ToolResult{CallID: call.ID, Success: false, Error: "blocked: " + decision.Reason, PermissionRequired: true}

	case types.StrategyRequiresConfirmation:
		if !e.confirm(ctx, call, decision) {
			return types.ToolResult{CallID: call.ID, Success: false, Error: "permission denied by user", PermissionRequired: true}
		}
		if action != nil {
			e.gate.GrantPermission(t.Name(), *action, types.ScopeSession)
		}
		result := t.Execute(ctx, call)
		result.PermissionRequired = true
		result.PermissionWasGranted = true
		return result

	case types.StrategyTask, types.StrategyTaskPty:
		if e.supervisor == nil {
			// Spec §4.5 fallback: no supervisor available, run Direct with
			// a warning folded into the result rather than failing outright.
			result := t.Execute(ctx, call)
			result.Output = "warning: no task supervisor configured, ran directly\n" + result.Output
			return result
		}
		if router.IsTaskControlTool(call.Name) {
			// task_spawn/task_stop/task_send already drive the Supervisor
			// themselves (Submit/Stop/Send) inside Execute -- dispatch must
			// not also Submit call.Name's raw arguments as a shell command,
			// which would spawn a bogus blank task for task_stop/task_send.
			return t.Execute(ctx, call)
		}
		mode := types.ExecLocal
		if strategy == types.StrategyTaskPty {
			mode = types.ExecPty
		}
		// Submit and return immediately -- StrategyTask exists precisely so
		// a long-running/server/daemon command (npm start, docker run, a
		// database shell, ...) never blocks this dispatch on completion;
		// the caller polls task_status or calls task_stop separately. A
		// synchronous Wait here would hang forever on a process that by
		// design never exits, pinning an ExecuteBatch semaphore slot.
		task, err := e.supervisor.Submit(ctx, call.Name, commandOf(call), mode, types.ResourceLimits{})
		if err != nil {
			return types.ToolResult{CallID: call.ID, Success: false, Error: err.Error()}
		}
		return types.ToolResult{CallID: call.ID, Success: true, Output: fmt.Sprintf("task %s started", task.ID), TaskID: task.ID}

	default: // StrategyDirect
		return e.runDirect(ctx, t, call)
	}
}

func commandOf(call types.ToolCall) string {
	cmd, _ := call.Args()["command"].(string)
	return cmd
}

// ExecuteBatch plans calls into phases and runs each phase's calls
// concurrently, waiting for every call in a phase to finish before
// starting the next (the phase barrier matches
// original_source/crates/Layer2-core/src/tool/parallel.rs's
// topological-levels executor, which runs one level fully before
// advancing so a write in level N is guaranteed visible to level N+1).
// Each call within a phase still passes through Execute's gate/router
// pipeline individually, so a Denied or Blocked call in a phase never
// suppresses its phase-mates.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []types.ToolCall) []types.ToolResult {
	phases := planner.Plan(calls, e.registry.Kind)
	results := make([]types.ToolResult, len(calls))

	for _, phase := range phases {
		var wg sync.WaitGroup
		for _, idx := range phase.ToolIndices {
			idx := idx
			if err := e.sem.Acquire(ctx, 1); err != nil {
				results[idx] = types.ToolResult{CallID: calls[idx].ID, Success: false, Error: ctx.Err().Error()}
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer e.sem.Release(1)
				results[idx] = e.Execute(ctx, calls[idx])
			}()
		}
		wg.Wait()
	}
	return results
}
