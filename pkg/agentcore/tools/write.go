package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forgecore/agentrt/pkg/agentcore/analyzer"
	"github.com/forgecore/agentrt/pkg/agentcore/types"
)

// Write is the built-in file-write tool, adapted from the teacher's
// pkg/agent_tools/write.go (WriteFile): create-parent-dirs, write, then
// stat the file to report its size. AllowedRoots, when non-empty,
// additionally rejects a target that resolves (after following any
// symlink) outside every listed root -- unset, the tool imposes no
// boundary of its own beyond the sensitive-path refusal below.
type Write struct {
	AllowedRoots []string
}

func (Write) Name() string         { return "write" }
func (Write) Description() string  { return "Writes content to a file, creating parent directories as needed." }
func (Write) Kind() types.ToolKind { return types.ToolWrite }

// RequiredPermission always gates writes -- the SafetyGate never
// auto-approves a FileWrite action regardless of path sensitivity.
func (Write) RequiredPermission(call types.ToolCall) *types.Action {
	args := call.Args()
	path, _ := args["path"].(string)
	if path == "" {
		path, _ = args["file_path"].(string)
	}
	return &types.Action{Kind: types.ActionFileWrite, Path: path}
}

func (w Write) Execute(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	args := call.Args()
	path, _ := args["path"].(string)
	if path == "" {
		path, _ = args["file_path"].(string)
	}
	content, _ := args["content"].(string)
	if path == "" {
		return types.ToolResult{CallID: call.ID, Success: false, Error: "empty path provided", Duration: time.Since(start)}
	}

	clean, err := resolveWritePath(path, w.AllowedRoots)
	if err != nil {
		return types.ToolResult{CallID: call.ID, Success: false, Error: err.Error(), Duration: time.Since(start)}
	}

	dir := filepath.Dir(clean)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return types.ToolResult{CallID: call.ID, Success: false, Error: fmt.Sprintf("failed to create directory %s: %v", dir, err), Duration: time.Since(start)}
	}
	if err := writeFileAtomic(clean, []byte(content), 0644); err != nil {
		return types.ToolResult{CallID: call.ID, Success: false, Error: fmt.Sprintf("failed to write file %s: %v", clean, err), Duration: time.Since(start)}
	}

	info, statErr := os.Stat(clean)
	if statErr != nil {
		return types.ToolResult{CallID: call.ID, Success: true, Output: fmt.Sprintf("file %s written successfully", clean), Duration: time.Since(start)}
	}
	return types.ToolResult{
		CallID:  call.ID,
		Success: true,
		Output:  fmt.Sprintf("file %s written successfully (%d bytes)", clean, info.Size()),
		Duration: time.Since(start),
	}
}

// resolveWritePath cleans the path, refuses writes into paths the
// analyzer flags as credential/system-sensitive, and -- when
// allowedRoots is non-empty -- refuses a target that escapes every
// configured root via traversal or a symlink. This is the tool-level
// half of defense in depth alongside the SafetyGate's upstream Check.
func resolveWritePath(path string, allowedRoots []string) (string, error) {
	clean := filepath.Clean(path)
	if analyzer.PathSensitivity(clean) >= 8 {
		return "", fmt.Errorf("refusing to write to sensitive path: %s", clean)
	}
	if strings.Contains(clean, "..") {
		abs, err := filepath.Abs(clean)
		if err != nil {
			return "", fmt.Errorf("failed to resolve path %s: %w", clean, err)
		}
		clean = abs
	}
	if err := analyzer.ValidatePath(clean, allowedRoots); err != nil {
		return "", err
	}
	return clean, nil
}
