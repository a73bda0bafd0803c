package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/forgecore/agentrt/pkg/agentcore/types"
)

// Edit is the built-in find-and-replace file editor. It reports an inline
// diff of the applied edit in its Output, the same diffmatchpatch-based rendering
// the teacher uses for changelog diffs in pkg/changetracker/difflogger.go.
// AllowedRoots behaves exactly as it does on Write.
type Edit struct {
	AllowedRoots []string
}

func (Edit) Name() string         { return "edit" }
func (Edit) Description() string  { return "Replaces an exact text match in a file and returns a preview diff." }
func (Edit) Kind() types.ToolKind { return types.ToolWrite }

// RequiredPermission always gates edits, same as Write.
func (Edit) RequiredPermission(call types.ToolCall) *types.Action {
	args := call.Args()
	path, _ := args["path"].(string)
	if path == "" {
		path, _ = args["file_path"].(string)
	}
	return &types.Action{Kind: types.ActionFileWrite, Path: path}
}

func (e Edit) Execute(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	args := call.Args()
	path, _ := args["path"].(string)
	if path == "" {
		path, _ = args["file_path"].(string)
	}
	oldText, _ := args["old_text"].(string)
	newText, _ := args["new_text"].(string)
	replaceAll, _ := args["replace_all"].(bool)

	if path == "" {
		return types.ToolResult{CallID: call.ID, Success: false, Error: "empty path provided", Duration: time.Since(start)}
	}
	if oldText == "" {
		return types.ToolResult{CallID: call.ID, Success: false, Error: "old_text must not be empty", Duration: time.Since(start)}
	}

	clean, err := resolveWritePath(path, e.AllowedRoots)
	if err != nil {
		return types.ToolResult{CallID: call.ID, Success: false, Error: err.Error(), Duration: time.Since(start)}
	}

	original, err := os.ReadFile(clean)
	if err != nil {
		return types.ToolResult{CallID: call.ID, Success: false, Error: fmt.Sprintf("failed to read file %s: %v", clean, err), Duration: time.Since(start)}
	}
	originalText := string(original)

	perm := os.FileMode(0644)
	if info, statErr := os.Stat(clean); statErr == nil {
		perm = info.Mode().Perm()
	}

	count := strings.Count(originalText, oldText)
	if count == 0 {
		return types.ToolResult{CallID: call.ID, Success: false, Error: "old_text not found in file", Duration: time.Since(start)}
	}
	if count > 1 && !replaceAll {
		return types.ToolResult{CallID: call.ID, Success: false, Error: fmt.Sprintf("old_text matches %d locations; pass replace_all to replace them all", count), Duration: time.Since(start)}
	}

	var updated string
	if replaceAll {
		updated = strings.ReplaceAll(originalText, oldText, newText)
	} else {
		updated = strings.Replace(originalText, oldText, newText, 1)
	}

	if err := writeFileAtomic(clean, []byte(updated), perm); err != nil {
		return types.ToolResult{CallID: call.ID, Success: false, Error: fmt.Sprintf("failed to write file %s: %v", clean, err), Duration: time.Since(start)}
	}

	return types.ToolResult{CallID: call.ID, Success: true, Output: previewDiff(clean, originalText, updated), Duration: time.Since(start)}
}

func previewDiff(filename, before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, true)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var additions, deletions int
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += strings.Count(d.Text, "\n") + 1
		case diffmatchpatch.DiffDelete:
			deletions += strings.Count(d.Text, "\n") + 1
		}
	}

	header := fmt.Sprintf("%s: +%d -%d\n", filename, additions, deletions)
	return header + dmp.DiffPrettyText(diffs)
}
