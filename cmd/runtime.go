package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/forgecore/agentrt/pkg/agentcore/config"
	agentlog "github.com/forgecore/agentrt/pkg/agentcore/log"
	"github.com/forgecore/agentrt/pkg/agentcore/mcp"
	"github.com/forgecore/agentrt/pkg/agentcore/registry"
	"github.com/forgecore/agentrt/pkg/agentcore/safety"
	"github.com/forgecore/agentrt/pkg/agentcore/session"
	"github.com/forgecore/agentrt/pkg/agentcore/supervisor"
	"github.com/forgecore/agentrt/pkg/agentcore/tools"
	"github.com/forgecore/agentrt/pkg/agentcore/types"
)

// defaultConfigDir mirrors the teacher's cmd/common.go getConfigDir:
// AGENTRT_HOME, then XDG_CONFIG_HOME, then $HOME/.agentrt.
func defaultConfigDir() string {
	if dir := os.Getenv("AGENTRT_HOME"); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "agentrt")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentrt"
	}
	return filepath.Join(home, ".agentrt")
}

func defaultSettingsPath() string {
	return filepath.Join(defaultConfigDir(), "settings.json")
}

// runtime bundles every core subsystem a subcommand might need; `run` is
// the subcommand that builds it.
type runtime struct {
	settings   *config.Settings
	settingsPath string
	logger     *agentlog.Logger
	gate       *safety.Gate
	registry   *registry.Registry
	executor   *registry.Executor
	supervisor *supervisor.Supervisor
	mcpManager *mcp.Manager
	sessions   *session.Store
}

// buildRuntime loads settings, seeds the safety gate, registers the
// built-in tools, and starts any auto-start MCP servers.
func buildRuntime(ctx context.Context, settingsPath string) (*runtime, error) {
	settings, err := config.Load(settingsPath)
	if err != nil {
		return nil, err
	}
	seed, err := config.LoadSeed(filepath.Join(filepath.Dir(settingsPath), "risk_patterns.yaml"))
	if err == nil {
		config.MergeSeed(settings, seed)
	}

	logger := agentlog.Get(filepath.Dir(settingsPath))
	gate := safety.NewWithAsk(settings.Permissions.Allow, settings.Permissions.Deny, settings.Permissions.Ask)
	if err := gate.LoadGrantsFile(filepath.Join(filepath.Dir(settingsPath), "grants.json")); err != nil {
		logger.Warnf("safety: %v", err)
	}

	reg := registry.New()
	for _, t := range []registry.Tool{
		tools.Bash{}, tools.Read{}, tools.Write{}, tools.Edit{}, tools.Glob{}, tools.Grep{},
	} {
		if !disabled(settings.Tools.Disabled, t.Name()) {
			reg.Register(t)
		}
	}

	sup := supervisor.New(settings.Execution.MaxActiveTasks, types.NewTaskID)
	sup.SetOutputBufferLimit(settings.Execution.OutputBufferBytes)
	sup.EnableTaskLog(filepath.Join(filepath.Dir(settingsPath), "tasklog"))
	for _, t := range []registry.Tool{
		tools.TaskSpawn{Supervisor: sup}, tools.TaskStop{Supervisor: sup},
		tools.TaskSend{Supervisor: sup}, tools.TaskStatus{Supervisor: sup},
	} {
		if !disabled(settings.Tools.Disabled, t.Name()) {
			reg.Register(t)
		}
	}

	mgr := mcp.NewManager(logger)
	for name, entry := range settings.MCP.Servers {
		_ = mgr.AddServer(mcp.ServerConfig{
			Name: name, Transport: entry.Transport, Command: entry.Command,
			Args: entry.Args, URL: entry.URL, Env: entry.Env, AutoStart: entry.AutoStart,
		})
	}
	if err := mgr.StartAutoStart(ctx); err != nil {
		logger.Warnf("mcp: %v", err)
	}
	if err := reg.RegisterMCPTools(ctx, mgr); err != nil {
		logger.Warnf("mcp: failed to register tools: %v", err)
	}

	exec := registry.NewExecutor(reg, int64(settings.Execution.MaxConcurrentTools))
	exec.SetDefaultTimeout(settings.Execution.DefaultTimeout)
	exec.WithSafety(gate, sup, promptConfirmation)
	sessions := session.NewStore(filepath.Join(filepath.Dir(settingsPath), "sessions.json"))

	return &runtime{
		settings: settings, settingsPath: settingsPath, logger: logger, gate: gate,
		registry: reg, executor: exec, supervisor: sup, mcpManager: mgr, sessions: sessions,
	}, nil
}

func disabled(list []string, name string) bool {
	for _, d := range list {
		if d == name {
			return true
		}
	}
	return false
}

func (r *runtime) close(ctx context.Context) {
	r.mcpManager.StopAll(ctx)
	_ = r.logger.Close()
}
