package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/forgecore/agentrt/pkg/agentcore/supervisor"
	"github.com/forgecore/agentrt/pkg/agentcore/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callWith(args map[string]interface{}) types.ToolCall {
	raw, _ := json.Marshal(args)
	return types.ToolCall{ID: types.NewToolCallID(), Arguments: raw}
}

func TestBash_Execute_RunsCommand(t *testing.T) {
	result := Bash{}.Execute(context.Background(), callWith(map[string]interface{}{"command": "echo hello"}))
	assert.True(t, result.Success)
	assert.Contains(t, result.Output, "hello")
}

func TestBash_Execute_EmptyCommandFails(t *testing.T) {
	result := Bash{}.Execute(context.Background(), callWith(map[string]interface{}{"command": "   "}))
	assert.False(t, result.Success)
}

func TestBash_RequiredPermission_ReportsCommand(t *testing.T) {
	action := Bash{}.RequiredPermission(callWith(map[string]interface{}{"command": "ls -la"}))
	require.NotNil(t, action)
	assert.Equal(t, types.ActionExecute, action.Kind)
	assert.Equal(t, "ls -la", action.Command)
}

func TestRead_Execute_ReadsFileContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("line1\nline2\nline3\n"), 0644))

	result := Read{}.Execute(context.Background(), callWith(map[string]interface{}{"path": path}))
	assert.True(t, result.Success)
	assert.Equal(t, "line1\nline2\nline3\n", result.Output)
}

func TestRead_Execute_LineRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\nfour\n"), 0644))

	result := Read{}.Execute(context.Background(), callWith(map[string]interface{}{
		"path": path, "start_line": float64(2), "end_line": float64(3),
	}))
	assert.True(t, result.Success)
	assert.Equal(t, "two\nthree", result.Output)
}

func TestRead_Execute_MissingFileFails(t *testing.T) {
	result := Read{}.Execute(context.Background(), callWith(map[string]interface{}{"path": "/no/such/file.txt"}))
	assert.False(t, result.Success)
}

func TestRead_Execute_BinaryExtensionRefused(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 0x50, 0x4e, 0x47}, 0644))

	result := Read{}.Execute(context.Background(), callWith(map[string]interface{}{"path": path}))
	assert.False(t, result.Success)
}

func TestRead_RequiredPermission_ReportsPath(t *testing.T) {
	action := Read{}.RequiredPermission(callWith(map[string]interface{}{"path": "/a/b.go"}))
	require.NotNil(t, action)
	assert.Equal(t, types.ActionFileRead, action.Kind)
	assert.Equal(t, "/a/b.go", action.Path)
}

func TestWrite_Execute_CreatesParentDirsAndWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.txt")

	result := Write{}.Execute(context.Background(), callWith(map[string]interface{}{"path": path, "content": "hello world"}))
	assert.True(t, result.Success)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestWrite_Execute_RefusesSensitivePath(t *testing.T) {
	result := Write{}.Execute(context.Background(), callWith(map[string]interface{}{
		"path": filepath.Join(os.TempDir(), ".ssh", "id_rsa"), "content": "nope",
	}))
	assert.False(t, result.Success)
}

func TestWrite_Execute_AllowedRootsPermitsWriteInsideRoot(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "out.txt")
	tool := Write{AllowedRoots: []string{root}}

	result := tool.Execute(context.Background(), callWith(map[string]interface{}{"path": path, "content": "ok"}))
	assert.True(t, result.Success)
}

func TestWrite_Execute_AllowedRootsRefusesWriteOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	path := filepath.Join(outside, "out.txt")
	tool := Write{AllowedRoots: []string{root}}

	result := tool.Execute(context.Background(), callWith(map[string]interface{}{"path": path, "content": "nope"}))
	assert.False(t, result.Success)
}

func TestWrite_Execute_LeavesNoTempFileBehindOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	result := Write{}.Execute(context.Background(), callWith(map[string]interface{}{"path": path, "content": "hello"}))
	require.True(t, result.Success)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out.txt", entries[0].Name())
}

func TestWrite_RequiredPermission_AlwaysFileWrite(t *testing.T) {
	action := Write{}.RequiredPermission(callWith(map[string]interface{}{"path": "/a/b.go"}))
	require.NotNil(t, action)
	assert.Equal(t, types.ActionFileWrite, action.Kind)
}

func TestEdit_Execute_ReplacesExactMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc old() {}\n"), 0644))

	result := Edit{}.Execute(context.Background(), callWith(map[string]interface{}{
		"path": path, "old_text": "func old() {}", "new_text": "func new() {}",
	}))
	assert.True(t, result.Success)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "func new() {}")
}

func TestEdit_Execute_MultipleMatchesWithoutReplaceAllFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("foo\nfoo\n"), 0644))

	result := Edit{}.Execute(context.Background(), callWith(map[string]interface{}{
		"path": path, "old_text": "foo", "new_text": "bar",
	}))
	assert.False(t, result.Success)
}

func TestEdit_Execute_ReplaceAllReplacesEveryMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("foo\nfoo\n"), 0644))

	result := Edit{}.Execute(context.Background(), callWith(map[string]interface{}{
		"path": path, "old_text": "foo", "new_text": "bar", "replace_all": true,
	}))
	assert.True(t, result.Success)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bar\nbar\n", string(data))
}

func TestEdit_Execute_TextNotFoundFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0644))

	result := Edit{}.Execute(context.Background(), callWith(map[string]interface{}{
		"path": path, "old_text": "missing", "new_text": "x",
	}))
	assert.False(t, result.Success)
}

func TestEdit_Execute_AllowedRootsRefusesEditOutsideRoot(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	path := filepath.Join(outside, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("foo\n"), 0644))

	tool := Edit{AllowedRoots: []string{root}}
	result := tool.Execute(context.Background(), callWith(map[string]interface{}{
		"path": path, "old_text": "foo", "new_text": "bar",
	}))
	assert.False(t, result.Success)
}

func TestEdit_Execute_PreservesFilePermissionsAndLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("foo\n"), 0600))

	result := Edit{}.Execute(context.Background(), callWith(map[string]interface{}{
		"path": path, "old_text": "foo", "new_text": "bar",
	}))
	require.True(t, result.Success)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.go", entries[0].Name())
}

func TestGlob_Execute_MatchesFilesByPattern(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("x"), 0644))

	result := Glob{}.Execute(context.Background(), callWith(map[string]interface{}{"root": dir, "pattern": "*.go"}))
	assert.True(t, result.Success)
	assert.Contains(t, result.Output, "a.go")
	assert.NotContains(t, result.Output, "b.txt")
}

func TestGlob_RequiredPermission_DefaultsRootToDot(t *testing.T) {
	action := Glob{}.RequiredPermission(callWith(map[string]interface{}{"pattern": "*.go"}))
	require.NotNil(t, action)
	assert.Equal(t, ".", action.Path)
}

func TestGrep_Execute_FindsMatchingLines(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package main\nfunc TODO() {}\n"), 0644))

	result := Grep{}.Execute(context.Background(), callWith(map[string]interface{}{"root": dir, "pattern": "TODO"}))
	assert.True(t, result.Success)
	assert.Contains(t, result.Output, "TODO")
}

func TestGrep_Execute_InvalidPatternFails(t *testing.T) {
	dir := t.TempDir()
	result := Grep{}.Execute(context.Background(), callWith(map[string]interface{}{"root": dir, "pattern": "("}))
	assert.False(t, result.Success)
}

func TestTaskSpawn_Execute_SubmitsToSupervisor(t *testing.T) {
	sup := supervisor.New(0, types.NewTaskID)
	tool := TaskSpawn{Supervisor: sup}
	call := callWith(map[string]interface{}{"command": "echo spawned"})
	call.Name = "task_spawn"
	result := tool.Execute(context.Background(), call)
	assert.True(t, result.Success)
	assert.Contains(t, result.Output, "started")
	assert.NotEmpty(t, result.TaskID)

	task, ok := sup.Get(result.TaskID)
	require.True(t, ok)
	assert.Equal(t, "task_spawn", task.ToolName)
}

func TestTaskSpawn_RequiredPermission_ReportsCommand(t *testing.T) {
	tool := TaskSpawn{}
	action := tool.RequiredPermission(callWith(map[string]interface{}{"command": "npm run dev"}))
	require.NotNil(t, action)
	assert.Equal(t, types.ActionExecute, action.Kind)
	assert.Equal(t, "npm run dev", action.Command)
}

func TestTaskStatus_Execute_UnknownTaskFails(t *testing.T) {
	sup := supervisor.New(0, types.NewTaskID)
	tool := TaskStatus{Supervisor: sup}
	result := tool.Execute(context.Background(), callWith(map[string]interface{}{"task_id": "nope"}))
	assert.False(t, result.Success)
}

func TestTaskStop_Execute_UnknownTaskFails(t *testing.T) {
	sup := supervisor.New(0, types.NewTaskID)
	tool := TaskStop{Supervisor: sup}
	result := tool.Execute(context.Background(), callWith(map[string]interface{}{"task_id": "nope"}))
	assert.False(t, result.Success)
}

func TestTaskStopSendStatus_RequiredPermissionIsNil(t *testing.T) {
	assert.Nil(t, TaskStop{}.RequiredPermission(types.ToolCall{}))
	assert.Nil(t, TaskSend{}.RequiredPermission(types.ToolCall{}))
	assert.Nil(t, TaskStatus{}.RequiredPermission(types.ToolCall{}))
}
