// Package config loads and saves settings.json: the permission
// allow/deny patterns, execution defaults, disabled tools, and MCP
// server list. Adapted from the teacher's pkg/config/config.go
// (loadConfig/saveConfig read-defaults-then-unmarshal / MarshalIndent
// shape) and pkg/config/security.go's SecurityConfig.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ProviderConfig holds provider selection, kept provider-agnostic since
// LLM inference itself is outside this runtime's scope.
type ProviderConfig struct {
	Default string `json:"default,omitempty"`
}

// ExecutionConfig holds execution-wide defaults.
type ExecutionConfig struct {
	MaxConcurrentTools int           `json:"max_concurrent_tools,omitempty"`
	DefaultTimeout     time.Duration `json:"default_timeout,omitempty"`
	MaxActiveTasks     int           `json:"max_active_tasks,omitempty"`
	OutputBufferBytes  int           `json:"output_buffer_bytes,omitempty"`
}

// PermissionsConfig holds the configured allow/deny pattern lists
// ("Bash(git:*)", "Write(/etc/*)", ...) checked by pkg/agentcore/safety.
type PermissionsConfig struct {
	Allow []string `json:"allow,omitempty"`
	Deny  []string `json:"deny,omitempty"`
	Ask   []string `json:"ask,omitempty"`
}

// ToolsConfig lists tool names the registry should not register.
type ToolsConfig struct {
	Disabled []string `json:"disabled,omitempty"`
}

// MCPServerEntry is one entry in mcp.servers; Command/Args/Env are only
// meaningful for stdio-transport servers.
type MCPServerEntry struct {
	Transport string            `json:"transport,omitempty"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	URL       string            `json:"url,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	AutoStart bool              `json:"auto_start"`
}

// MCPConfig holds every configured MCP server, by name.
type MCPConfig struct {
	Servers map[string]MCPServerEntry `json:"servers,omitempty"`
}

// Settings is the decoded form of settings.json's known keys.
type Settings struct {
	Provider    ProviderConfig    `json:"provider"`
	Execution   ExecutionConfig   `json:"execution"`
	Permissions PermissionsConfig `json:"permissions"`
	Tools       ToolsConfig       `json:"tools"`
	MCP         MCPConfig         `json:"mcp"`

	// unknown preserves every top-level key this version of agentrt
	// doesn't recognize, so a round trip (Load then Save) never drops a
	// newer or tool-specific setting a user added by hand.
	unknown map[string]json.RawMessage
}

// Default returns the settings a fresh install starts with.
func Default() *Settings {
	return &Settings{
		Execution: ExecutionConfig{
			MaxConcurrentTools: 8,
			DefaultTimeout:     30 * time.Second,
			MaxActiveTasks:     16,
			OutputBufferBytes:  10 * 1024 * 1024,
		},
	}
}

// knownKeys lists the top-level JSON keys Settings decodes structurally;
// everything else round-trips through Settings.unknown untouched.
var knownKeys = []string{"provider", "execution", "permissions", "tools", "mcp"}

// Load reads settings.json from path, decoding known keys into the typed
// fields and retaining every other top-level key verbatim.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	s := Default()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	s.unknown = map[string]json.RawMessage{}
	for k, v := range raw {
		if !isKnownKey(k) {
			s.unknown[k] = v
		}
	}
	return s, nil
}

func isKnownKey(k string) bool {
	for _, known := range knownKeys {
		if k == known {
			return true
		}
	}
	return false
}

// Save writes Settings back to path as indented JSON, merging the
// preserved unknown keys back in alongside the known, structural ones.
func Save(path string, s *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: mkdir %s: %w", filepath.Dir(path), err)
	}

	out := map[string]json.RawMessage{}
	for k, v := range s.unknown {
		out[k] = v
	}

	known, err := json.Marshal(struct {
		Provider    ProviderConfig    `json:"provider"`
		Execution   ExecutionConfig   `json:"execution"`
		Permissions PermissionsConfig `json:"permissions"`
		Tools       ToolsConfig       `json:"tools"`
		MCP         MCPConfig         `json:"mcp"`
	}{s.Provider, s.Execution, s.Permissions, s.Tools, s.MCP})
	if err != nil {
		return fmt.Errorf("config: marshal settings: %w", err)
	}
	var knownMap map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownMap); err != nil {
		return fmt.Errorf("config: remarshal settings: %w", err)
	}
	for k, v := range knownMap {
		out[k] = v
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal settings: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
