package tools

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/forgecore/agentrt/pkg/agentcore/types"
)

// Glob is the built-in filename-pattern search tool, respecting
// .gitignore/.agentrt/.ignore the way the teacher's workspace scanner
// does via pkg/filediscovery/ignore.go.
type Glob struct{}

func (Glob) Name() string         { return "glob" }
func (Glob) Description() string  { return "Lists files under a root matching a glob pattern, skipping ignored paths." }
func (Glob) Kind() types.ToolKind { return types.ToolReadOnly }

// RequiredPermission gates the search root as a FileRead, so searching
// under a sensitive directory (e.g. ~/.ssh) still asks rather than
// silently auto-approving.
func (Glob) RequiredPermission(call types.ToolCall) *types.Action {
	root, _ := call.Args()["root"].(string)
	if root == "" {
		root = "."
	}
	return &types.Action{Kind: types.ActionFileRead, Path: root}
}

func (Glob) Execute(ctx context.Context, call types.ToolCall) types.ToolResult {
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

	matcher := loadIgnoreRules(root)
	var matches []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
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
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return types.ToolResult{CallID: call.ID, Success: false, Error: err.Error(), Duration: time.Since(start)}
	}

	sort.Strings(matches)
	return types.ToolResult{CallID: call.ID, Success: true, Output: strings.Join(matches, "\n"), Duration: time.Since(start)}
}
