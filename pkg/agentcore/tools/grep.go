package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/forgecore/agentrt/pkg/agentcore/types"
)

// Grep is the built-in content-search tool, respecting ignore rules the
// same way Glob does.
type Grep struct{}

func (Grep) Name() string         { return "grep" }
func (Grep) Description() string  { return "Searches file contents under a root for a regular expression." }
func (Grep) Kind() types.ToolKind { return types.ToolReadOnly }

// RequiredPermission gates the search root the same way Glob does.
func (Grep) RequiredPermission(call types.ToolCall) *types.Action {
	root, _ := call.Args()["root"].(string)
	if root == "" {
		root = "."
	}
	return &types.Action{Kind: types.ActionFileRead, Path: root}
}

func (Grep) Execute(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	args := call.Args()
	pattern, _ := args["pattern"].(string)
	root, _ := args["root"].(string)
	if root == "" {
		root = "."
	}
	if pattern == "" {
		return types.ToolResult{CallID: call.ID, Success: false, Error: "empty pattern provided", Duration: time.Since(start)}
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return types.ToolResult{CallID: call.ID, Success: false, Error: fmt.Sprintf("invalid pattern: %v", err), Duration: time.Since(start)}
	}

	matcher := loadIgnoreRules(root)
	var hits []string
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if matcher != nil && matcher.MatchesPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if re.MatchString(line) {
				hits = append(hits, fmt.Sprintf("%s:%d:%s", path, lineNo, line))
			}
		}
		return nil
	})
	if walkErr != nil {
		return types.ToolResult{CallID: call.ID, Success: false, Error: walkErr.Error(), Duration: time.Since(start)}
	}

	return types.ToolResult{CallID: call.ID, Success: true, Output: strings.Join(hits, "\n"), Duration: time.Since(start)}
}
