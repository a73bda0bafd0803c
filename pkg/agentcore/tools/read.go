package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/forgecore/agentrt/pkg/agentcore/types"
)

// maxReadBytes caps a single read, matching the teacher's
// pkg/agent_tools/read.go 100KB ceiling for large-file truncation.
const maxReadBytes = 100 * 1024

var nonTextExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".pdf": true, ".zip": true, ".tar": true, ".gz": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true,
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true,
}

// Read is the built-in file-read tool.
type Read struct{}

func (Read) Name() string         { return "read" }
func (Read) Description() string  { return "Reads a text file's contents, optionally restricted to a line range." }
func (Read) Kind() types.ToolKind { return types.ToolReadOnly }

// RequiredPermission gates reads of credential/system-sensitive paths
// the same way the teacher's security_validator flags them, while
// leaving ordinary project files to the gate's auto-approve path.
func (Read) RequiredPermission(call types.ToolCall) *types.Action {
	args := call.Args()
	path, _ := args["path"].(string)
	if path == "" {
		path, _ = args["file_path"].(string)
	}
	return &types.Action{Kind: types.ActionFileRead, Path: path}
}

func (Read) Execute(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	args := call.Args()
	path, _ := args["path"].(string)
	if path == "" {
		path, _ = args["file_path"].(string)
	}
	if path == "" {
		return types.ToolResult{CallID: call.ID, Success: false, Error: "empty path provided", Duration: time.Since(start)}
	}
	startLine, _ := asInt(args["start_line"])
	endLine, _ := asInt(args["end_line"])

	content, err := readFileRange(path, startLine, endLine)
	if err != nil {
		return types.ToolResult{CallID: call.ID, Success: false, Error: err.Error(), Duration: time.Since(start)}
	}
	return types.ToolResult{CallID: call.ID, Success: true, Output: content, Duration: time.Since(start)}
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

func readFileRange(path string, startLine, endLine int) (string, error) {
	clean := filepath.Clean(path)
	info, err := os.Stat(clean)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("file does not exist: %s", clean)
	}
	if err != nil {
		return "", fmt.Errorf("failed to access file %s: %w", clean, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("path is a directory, not a file: %s", clean)
	}
	if nonTextExtensions[strings.ToLower(filepath.Ext(clean))] {
		return "", fmt.Errorf("only text content files can be read, %s appears to be binary", clean)
	}

	f, err := os.Open(clean)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", clean, err)
	}
	defer f.Close()

	var content []byte
	if info.Size() > maxReadBytes {
		content = make([]byte, maxReadBytes)
		n, err := f.Read(content)
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read file %s: %w", clean, err)
		}
		content = content[:n]
	} else {
		content, err = io.ReadAll(f)
		if err != nil {
			return "", fmt.Errorf("failed to read file %s: %w", clean, err)
		}
	}

	if looksBinary(content) {
		return "", fmt.Errorf("only text content files can be read, %s appears to contain binary content", clean)
	}

	text := string(content)
	if startLine > 0 || endLine > 0 {
		lines := strings.Split(text, "\n")
		if startLine < 1 {
			startLine = 1
		}
		if endLine <= 0 || endLine > len(lines) {
			endLine = len(lines)
		}
		if startLine > len(lines) {
			return "", nil
		}
		text = strings.Join(lines[startLine-1:endLine], "\n")
	}
	return text, nil
}

func looksBinary(content []byte) bool {
	limit := len(content)
	if limit > 8000 {
		limit = 8000
	}
	for _, b := range content[:limit] {
		if b == 0 {
			return true
		}
	}
	return false
}
