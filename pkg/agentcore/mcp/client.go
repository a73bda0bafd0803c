package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/forgecore/agentrt/pkg/agentcore/log"
)

// backoff schedule for reconnecting a stdio server whose process died
// unexpectedly. Not present in the teacher's pkg/mcp/client.go -- added
// per the wire-level reliability requirement that a dropped server should
// be retried rather than left permanently unavailable.
const (
	backoffBase   = 1 * time.Second
	backoffFactor = 2
	backoffCap    = 30 * time.Second
	backoffMaxTry = 3
)

// Client is a stdio-transport MCP server connection: one subprocess
// speaking newline-framed JSON-RPC 2.0 over stdin/stdout.
type Client struct {
	config ServerConfig
	logger *log.Logger

	mu          sync.RWMutex
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stdout      io.ReadCloser
	stderr      io.ReadCloser
	running     bool
	initialized bool
	restarts    int

	reqMu       sync.Mutex
	messageID   int64
	pendingReqs map[string]chan Message

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient builds a Client for a stdio server configuration.
func NewClient(config ServerConfig, logger *log.Logger) *Client {
	return &Client{
		config:      config,
		logger:      logger,
		pendingReqs: make(map[string]chan Message),
	}
}

// Start launches the server subprocess and its message-pump goroutines.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("mcp: server %s is already running", c.config.Name)
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.cmd = exec.CommandContext(c.ctx, c.config.Command, c.config.Args...)
	for k, v := range c.config.Env {
		c.cmd.Env = append(c.cmd.Env, k+"="+v)
	}
	if c.config.WorkingDir != "" {
		c.cmd.Dir = c.config.WorkingDir
	}

	var err error
	if c.stdin, err = c.cmd.StdinPipe(); err != nil {
		return fmt.Errorf("mcp: stdin pipe: %w", err)
	}
	if c.stdout, err = c.cmd.StdoutPipe(); err != nil {
		return fmt.Errorf("mcp: stdout pipe: %w", err)
	}
	if c.stderr, err = c.cmd.StderrPipe(); err != nil {
		return fmt.Errorf("mcp: stderr pipe: %w", err)
	}

	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("mcp: failed to start server %s: %w", c.config.Name, err)
	}

	c.running = true
	c.restarts++

	go c.handleMessages()
	go c.handleStderr()
	go c.watchProcess()

	if c.logger != nil {
		c.logger.Infof("started mcp server %s", c.config.Name)
	}
	return nil
}

// watchProcess waits for the subprocess to exit and, if it died while the
// client was not explicitly stopped, attempts a bounded exponential
// reconnect: base 1s, factor 2, cap 30s, at most 3 attempts.
func (c *Client) watchProcess() {
	err := c.cmd.Wait()

	c.mu.Lock()
	stopped := c.ctx.Err() != nil
	c.running = false
	c.initialized = false
	c.mu.Unlock()

	if stopped {
		return
	}
	if c.logger != nil {
		c.logger.Warnf("mcp server %s exited unexpectedly: %v", c.config.Name, err)
	}
	c.reconnect()
}

func (c *Client) reconnect() {
	delay := backoffBase
	for attempt := 1; attempt <= backoffMaxTry; attempt++ {
		time.Sleep(delay)
		if c.logger != nil {
			c.logger.Infof("mcp server %s reconnect attempt %d/%d", c.config.Name, attempt, backoffMaxTry)
		}
		if err := c.Start(context.Background()); err == nil {
			return
		}
		delay *= backoffFactor
		if delay > backoffCap {
			delay = backoffCap
		}
	}
	if c.logger != nil {
		c.logger.Errorf("mcp server %s exhausted %d reconnect attempts, giving up", c.config.Name, backoffMaxTry)
	}
}

// Stop terminates the server process, giving it 5 seconds to exit
// gracefully before a hard kill.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.stdin != nil {
		c.stdin.Close()
	}
	if c.stdout != nil {
		c.stdout.Close()
	}
	if c.stderr != nil {
		c.stderr.Close()
	}

	if c.cmd != nil && c.cmd.Process != nil {
		done := make(chan error, 1)
		go func() { done <- c.cmd.Wait() }()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = c.cmd.Process.Kill()
			<-done
		}
	}

	c.running = false
	c.initialized = false
	if c.logger != nil {
		c.logger.Infof("stopped mcp server %s", c.config.Name)
	}
	return nil
}

// IsRunning reports whether the server process is currently live.
func (c *Client) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Name returns the server's configured name.
func (c *Client) Name() string { return c.config.Name }

// Initialize performs the MCP handshake: sends "initialize", then the
// required "notifications/initialized" notification per the 2024-11-05
// spec (the teacher's client never sends this notification -- added
// here for protocol correctness).
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.RLock()
	if c.initialized {
		c.mu.RUnlock()
		return nil
	}
	c.mu.RUnlock()

	params := map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]interface{}{
			"tools":     map[string]interface{}{},
			"resources": map[string]interface{}{},
			"prompts":   map[string]interface{}{},
		},
		"clientInfo": map[string]interface{}{
			"name":    "agentrt",
			"version": "0.1.0",
		},
	}

	resp, err := c.sendRequest(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("mcp: initialize %s: %w", c.config.Name, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("mcp: %s initialize error: %s", c.config.Name, resp.Error.Message)
	}

	if err := c.sendNotification("notifications/initialized", nil); err != nil {
		return fmt.Errorf("mcp: %s initialized notification: %w", c.config.Name, err)
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()
	if c.logger != nil {
		c.logger.Infof("initialized mcp server %s", c.config.Name)
	}
	return nil
}

func decodeResult[T any](result interface{}) (T, error) {
	var zero T
	b, err := json.Marshal(result)
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return zero, err
	}
	return out, nil
}

// ListTools calls tools/list, initializing the connection first if needed.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	if err := c.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	resp, err := c.sendRequest(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: list tools from %s: %w", c.config.Name, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("mcp: %s tools/list error: %s", c.config.Name, resp.Error.Message)
	}
	wrapped, err := decodeResult[struct {
		Tools []Tool `json:"tools"`
	}](resp.Result)
	if err != nil {
		return nil, fmt.Errorf("mcp: parse tools/list from %s: %w", c.config.Name, err)
	}
	for i := range wrapped.Tools {
		wrapped.Tools[i].ServerName = c.config.Name
	}
	return wrapped.Tools, nil
}

// CallTool calls tools/call.
func (c *Client) CallTool(ctx context.Context, req ToolCallRequest) (*ToolCallResult, error) {
	if err := c.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	resp, err := c.sendRequest(ctx, "tools/call", map[string]interface{}{
		"name": req.Name, "arguments": req.Arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("mcp: call tool %s on %s: %w", req.Name, c.config.Name, err)
	}
	if resp.Error != nil {
		return &ToolCallResult{IsError: true, Content: []Content{{Type: "text", Text: resp.Error.Message}}}, nil
	}
	result, err := decodeResult[ToolCallResult](resp.Result)
	if err != nil {
		return nil, fmt.Errorf("mcp: parse tool call response from %s: %w", c.config.Name, err)
	}
	return &result, nil
}

// ListResources calls resources/list.
func (c *Client) ListResources(ctx context.Context) ([]Resource, error) {
	if err := c.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	resp, err := c.sendRequest(ctx, "resources/list", nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: list resources from %s: %w", c.config.Name, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("mcp: %s resources/list error: %s", c.config.Name, resp.Error.Message)
	}
	wrapped, err := decodeResult[struct {
		Resources []Resource `json:"resources"`
	}](resp.Result)
	if err != nil {
		return nil, fmt.Errorf("mcp: parse resources/list from %s: %w", c.config.Name, err)
	}
	for i := range wrapped.Resources {
		wrapped.Resources[i].ServerName = c.config.Name
	}
	return wrapped.Resources, nil
}

// ReadResource calls resources/read for a single URI.
func (c *Client) ReadResource(ctx context.Context, uri string) (*Content, error) {
	if err := c.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	resp, err := c.sendRequest(ctx, "resources/read", map[string]interface{}{"uri": uri})
	if err != nil {
		return nil, fmt.Errorf("mcp: read resource %s from %s: %w", uri, c.config.Name, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("mcp: %s resources/read error: %s", c.config.Name, resp.Error.Message)
	}
	wrapped, err := decodeResult[struct {
		Contents []Content `json:"contents"`
	}](resp.Result)
	if err != nil {
		return nil, fmt.Errorf("mcp: parse resources/read from %s: %w", c.config.Name, err)
	}
	if len(wrapped.Contents) == 0 {
		return nil, fmt.Errorf("mcp: no content returned for resource %s", uri)
	}
	return &wrapped.Contents[0], nil
}

// ListPrompts calls prompts/list.
func (c *Client) ListPrompts(ctx context.Context) ([]Prompt, error) {
	if err := c.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	resp, err := c.sendRequest(ctx, "prompts/list", nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: list prompts from %s: %w", c.config.Name, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("mcp: %s prompts/list error: %s", c.config.Name, resp.Error.Message)
	}
	wrapped, err := decodeResult[struct {
		Prompts []Prompt `json:"prompts"`
	}](resp.Result)
	if err != nil {
		return nil, fmt.Errorf("mcp: parse prompts/list from %s: %w", c.config.Name, err)
	}
	for i := range wrapped.Prompts {
		wrapped.Prompts[i].ServerName = c.config.Name
	}
	return wrapped.Prompts, nil
}

// GetPrompt calls prompts/get.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*Content, error) {
	if err := c.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	resp, err := c.sendRequest(ctx, "prompts/get", map[string]interface{}{"name": name, "arguments": args})
	if err != nil {
		return nil, fmt.Errorf("mcp: get prompt %s from %s: %w", name, c.config.Name, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("mcp: %s prompts/get error: %s", c.config.Name, resp.Error.Message)
	}
	wrapped, err := decodeResult[struct {
		Messages []Content `json:"messages"`
	}](resp.Result)
	if err != nil {
		return nil, fmt.Errorf("mcp: parse prompts/get from %s: %w", c.config.Name, err)
	}
	if len(wrapped.Messages) == 0 {
		return nil, fmt.Errorf("mcp: no messages returned for prompt %s", name)
	}
	return &wrapped.Messages[0], nil
}

func (c *Client) ensureInitialized(ctx context.Context) error {
	c.mu.RLock()
	init := c.initialized
	c.mu.RUnlock()
	if init {
		return nil
	}
	return c.Initialize(ctx)
}

func (c *Client) sendNotification(method string, params interface{}) error {
	msg := Message{JSONRPC: "2.0", Method: method, Params: params}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.RLock()
	stdin := c.stdin
	c.mu.RUnlock()
	_, err = stdin.Write(append(b, '\n'))
	return err
}

func (c *Client) sendRequest(ctx context.Context, method string, params interface{}) (*Message, error) {
	c.reqMu.Lock()
	c.messageID++
	id := fmt.Sprintf("req_%d", c.messageID)
	c.reqMu.Unlock()

	msg := Message{JSONRPC: "2.0", ID: id, Method: method, Params: params}

	respCh := make(chan Message, 1)
	c.reqMu.Lock()
	c.pendingReqs[id] = respCh
	c.reqMu.Unlock()
	defer func() {
		c.reqMu.Lock()
		delete(c.pendingReqs, id)
		c.reqMu.Unlock()
	}()

	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.mu.RLock()
	stdin := c.stdin
	c.mu.RUnlock()
	if _, err := stdin.Write(append(b, '\n')); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	timeout := 30 * time.Second
	if c.config.Timeout > 0 {
		timeout = c.config.Timeout
	}

	select {
	case resp := <-respCh:
		return &resp, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("request timeout after %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) handleMessages() {
	c.mu.RLock()
	stdout := c.stdout
	c.mu.RUnlock()
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			if c.logger != nil {
				c.logger.Warnf("mcp: failed to parse message from %s: %v", c.config.Name, err)
			}
			continue
		}
		if msg.ID == nil {
			continue // server-initiated notification, not yet handled
		}
		idStr := fmt.Sprintf("%v", msg.ID)
		c.reqMu.Lock()
		ch, ok := c.pendingReqs[idStr]
		c.reqMu.Unlock()
		if ok {
			select {
			case ch <- msg:
			default:
			}
		}
	}
}

func (c *Client) handleStderr() {
	c.mu.RLock()
	stderr := c.stderr
	c.mu.RUnlock()
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" && c.logger != nil {
			c.logger.Debugf("mcp server %s stderr: %s", c.config.Name, line)
		}
	}
}
