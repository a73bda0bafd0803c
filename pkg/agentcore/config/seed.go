package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RiskPatternSeed is an optional YAML file (risk_patterns.yaml) that lets
// an operator extend the permission deny/allow patterns and the MCP
// server list without editing settings.json by hand. It is merged
// into Settings at load time, then folded away -- the merged result is
// what gets persisted to settings.json on Save.
type RiskPatternSeed struct {
	ExtraDenyPatterns []string                  `yaml:"extra_deny_patterns"`
	ExtraAllowPatterns []string                 `yaml:"extra_allow_patterns"`
	MCPServers         map[string]MCPServerEntry `yaml:"mcp_servers"`
}

// LoadSeed reads a RiskPatternSeed from a YAML file, returning a zero
// value (not an error) if the file doesn't exist -- the seed file is
// optional, unlike settings.json.
func LoadSeed(path string) (*RiskPatternSeed, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &RiskPatternSeed{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read seed %s: %w", path, err)
	}
	var seed RiskPatternSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("config: parse seed %s: %w", path, err)
	}
	return &seed, nil
}

// MergeSeed folds a RiskPatternSeed's entries into Settings, skipping
// patterns and server names already present so repeated merges (e.g. on
// every process start) stay idempotent.
func MergeSeed(s *Settings, seed *RiskPatternSeed) {
	s.Permissions.Deny = appendMissing(s.Permissions.Deny, seed.ExtraDenyPatterns)
	s.Permissions.Allow = appendMissing(s.Permissions.Allow, seed.ExtraAllowPatterns)

	if len(seed.MCPServers) == 0 {
		return
	}
	if s.MCP.Servers == nil {
		s.MCP.Servers = map[string]MCPServerEntry{}
	}
	for name, entry := range seed.MCPServers {
		if _, exists := s.MCP.Servers[name]; !exists {
			s.MCP.Servers[name] = entry
		}
	}
}

func appendMissing(existing, additions []string) []string {
	present := map[string]bool{}
	for _, e := range existing {
		present[e] = true
	}
	for _, a := range additions {
		if !present[a] {
			existing = append(existing, a)
			present[a] = true
		}
	}
	return existing
}
