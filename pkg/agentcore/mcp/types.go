// Package mcp implements a Model Context Protocol client: stdio
// subprocess servers speaking line-framed JSON-RPC 2.0, registered as
// agentrt tools through pkg/agentcore/registry.
//
// Adapted from the teacher's pkg/mcp/{types.go,client.go,manager.go}.
package mcp

import (
	"encoding/json"
	"fmt"
	"time"
)

// ServerConfig describes one configured MCP server, loaded from
// settings.json's mcp.servers map.
type ServerConfig struct {
	Name        string            `json:"name"`
	Transport   string            `json:"transport,omitempty"` // recorded only; the client always uses stdio
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	URL         string            `json:"url,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	WorkingDir  string            `json:"working_dir,omitempty"`
	Timeout     time.Duration     `json:"timeout,omitempty"`
	AutoStart   bool              `json:"auto_start"`
	MaxRestarts int               `json:"max_restarts"`
}

// UnmarshalJSON accepts Timeout as either a Go duration string ("30s") or
// a raw nanosecond number, matching settings files hand-written by users
// as well as ones re-serialized by this program.
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	type alias ServerConfig
	aux := &struct {
		Timeout interface{} `json:"timeout"`
		*alias
	}{alias: (*alias)(s)}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	switch v := aux.Timeout.(type) {
	case string:
		if v == "" {
			s.Timeout = 30 * time.Second
			break
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("mcp: invalid timeout duration %q: %w", v, err)
		}
		s.Timeout = d
	case float64:
		s.Timeout = time.Duration(v)
	default:
		s.Timeout = 30 * time.Second
	}
	return nil
}

// Tool is a tool description surfaced by a server's tools/list response.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
	ServerName  string                 `json:"-"`
}

// Resource is a resources/list entry.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	ServerName  string `json:"-"`
}

// Prompt is a prompts/list entry.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
	ServerName  string           `json:"-"`
}

// PromptArgument is one named argument a Prompt accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// Message is a single JSON-RPC 2.0 envelope, request, response, or
// notification.
type Message struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Method  string      `json:"method,omitempty"`
	Params  interface{} `json:"params,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ToolCallRequest is the params payload for a tools/call request.
type ToolCallRequest struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// ToolCallResult is the result payload of a tools/call response.
type ToolCallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// Content is one piece of MCP content: text, binary data, or annotations.
type Content struct {
	Type        string                 `json:"type"`
	Text        string                 `json:"text,omitempty"`
	Data        string                 `json:"data,omitempty"`
	MimeType    string                 `json:"mimeType,omitempty"`
	Annotations map[string]interface{} `json:"annotations,omitempty"`
}

// protocolVersion is the MCP wire version this client speaks.
const protocolVersion = "2024-11-05"
