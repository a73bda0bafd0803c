package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/forgecore/agentrt/pkg/agentcore/log"
)

// Manager owns every configured MCP server connection and aggregates
// their tools/resources/prompts into one queryable surface, grounded on
// the teacher's pkg/mcp/manager.go (DefaultMCPManager).
type Manager struct {
	mu      sync.RWMutex
	servers map[string]*Client
	logger  *log.Logger
}

// NewManager builds an empty Manager.
func NewManager(logger *log.Logger) *Manager {
	return &Manager{servers: make(map[string]*Client), logger: logger}
}

// AddServer registers a new server configuration without starting it.
func (m *Manager) AddServer(config ServerConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.servers[config.Name]; exists {
		return fmt.Errorf("mcp: server %s already registered", config.Name)
	}
	m.servers[config.Name] = NewClient(config, m.logger)
	if m.logger != nil {
		m.logger.Infof("registered mcp server %s", config.Name)
	}
	return nil
}

// RemoveServer stops and deregisters a server.
func (m *Manager) RemoveServer(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	client, exists := m.servers[name]
	if !exists {
		return fmt.Errorf("mcp: server %s not found", name)
	}
	if client.IsRunning() {
		if err := client.Stop(context.Background()); err != nil && m.logger != nil {
			m.logger.Warnf("failed to stop mcp server %s: %v", name, err)
		}
	}
	delete(m.servers, name)
	return nil
}

// Get returns a registered server by name.
func (m *Manager) Get(name string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.servers[name]
	return c, ok
}

// List returns every registered server.
func (m *Manager) List() []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Client, 0, len(m.servers))
	for _, c := range m.servers {
		out = append(out, c)
	}
	return out
}

// StartAutoStart launches every registered server configured with
// AutoStart, in parallel, and returns the aggregate of any start errors.
func (m *Manager) StartAutoStart(ctx context.Context) error {
	m.mu.RLock()
	clients := make([]*Client, 0, len(m.servers))
	for _, c := range m.servers {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	var mu sync.Mutex
	var errs []error
	var wg sync.WaitGroup
	for _, c := range clients {
		if c.IsRunning() || !c.config.AutoStart {
			continue
		}
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			if err := c.Start(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("start %s: %w", c.Name(), err))
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	if len(errs) > 0 {
		return fmt.Errorf("mcp: %d server(s) failed to start: %v", len(errs), errs)
	}
	return nil
}

// StopAll stops every running server.
func (m *Manager) StopAll(ctx context.Context) {
	for _, c := range m.List() {
		if c.IsRunning() {
			_ = c.Stop(ctx)
		}
	}
}

// AllTools aggregates tools/list across every running server.
func (m *Manager) AllTools(ctx context.Context) ([]Tool, error) {
	var out []Tool
	for _, c := range m.List() {
		if !c.IsRunning() {
			continue
		}
		tools, err := c.ListTools(ctx)
		if err != nil {
			if m.logger != nil {
				m.logger.Warnf("failed to list tools from %s: %v", c.Name(), err)
			}
			continue
		}
		out = append(out, tools...)
	}
	return out, nil
}
