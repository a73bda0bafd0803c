package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/forgecore/agentrt/pkg/agentcore/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIDFunc() func() string {
	n := 0
	return func() string {
		n++
		return "task-" + string(rune('a'+n))
	}
}

func TestSupervisor_SubmitAndWaitCompletes(t *testing.T) {
	s := New(0, newIDFunc())
	task, err := s.Submit(context.Background(), "bash", "echo hello", types.ExecLocal, types.ResourceLimits{})
	require.NoError(t, err)
	assert.Equal(t, "bash", task.ToolName)

	finished, err := s.Wait(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, finished.State())
	assert.Contains(t, string(finished.Output()), "hello")
}

func TestSupervisor_MaxActiveCeilingRejectsSubmit(t *testing.T) {
	s := New(1, newIDFunc())
	_, err := s.Submit(context.Background(), "bash", "sleep 1", types.ExecLocal, types.ResourceLimits{})
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), "bash", "echo second", types.ExecLocal, types.ResourceLimits{})
	assert.Error(t, err)
}

func TestSupervisor_StopCancelsRunningTask(t *testing.T) {
	s := New(0, newIDFunc())
	task, err := s.Submit(context.Background(), "bash", "sleep 30", types.ExecLocal, types.ResourceLimits{})
	require.NoError(t, err)

	require.NoError(t, s.Stop(task.ID))
	finished, err := s.Wait(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskCancelled, finished.State())
}

func TestSupervisor_WaitUnknownIDErrors(t *testing.T) {
	s := New(0, newIDFunc())
	_, err := s.Wait(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestSupervisor_GetAndList(t *testing.T) {
	s := New(0, newIDFunc())
	task, err := s.Submit(context.Background(), "bash", "echo x", types.ExecLocal, types.ResourceLimits{})
	require.NoError(t, err)
	_, _ = s.Wait(context.Background(), task.ID)

	got, ok := s.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, task.ID, got.ID)
	assert.Len(t, s.List(), 1)
}

func TestSupervisor_FailedCommandSetsFailedState(t *testing.T) {
	s := New(0, newIDFunc())
	task, err := s.Submit(context.Background(), "bash", "exit 1", types.ExecLocal, types.ResourceLimits{})
	require.NoError(t, err)

	finished, err := s.Wait(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, finished.State())
}

func TestSupervisor_Reap(t *testing.T) {
	s := New(0, newIDFunc())
	task, err := s.Submit(context.Background(), "bash", "echo reap-me", types.ExecLocal, types.ResourceLimits{})
	require.NoError(t, err)
	_, _ = s.Wait(context.Background(), task.ID)

	removed := s.Reap(time.Now().Add(retentionWindow + time.Minute))
	assert.Equal(t, 1, removed)
	_, ok := s.Get(task.ID)
	assert.False(t, ok)
}

func TestTask_AppendOutputTruncatesOverBufferLimit(t *testing.T) {
	task := &Task{ID: "t", state: types.TaskRunning}
	task.appendOutput(make([]byte, defaultOutputBufferLimit+100))
	assert.Equal(t, defaultOutputBufferLimit, len(task.Output()))
	assert.True(t, task.Truncated())
	assert.Equal(t, int64(defaultOutputBufferLimit+100), task.TotalBytesProduced())
}

func TestTask_AppendOutputRespectsConfiguredLimit(t *testing.T) {
	task := &Task{ID: "t", state: types.TaskRunning, outputBufferLimit: 100}
	task.appendOutput(make([]byte, 150))
	assert.Equal(t, 100, len(task.Output()))
	assert.True(t, task.Truncated())
}

func TestSupervisor_SetOutputBufferLimitAppliesToNewTasks(t *testing.T) {
	s := New(0, newIDFunc())
	s.SetOutputBufferLimit(64)
	task, err := s.Submit(context.Background(), "bash", "echo hello", types.ExecLocal, types.ResourceLimits{})
	require.NoError(t, err)
	assert.Equal(t, 64, task.outputBufferLimit)
}

func TestTask_SetStateRejectsInvalidTransition(t *testing.T) {
	task := &Task{ID: "t", state: types.TaskCompleted}
	ok := task.setState(types.TaskRunning)
	assert.False(t, ok)
	assert.Equal(t, types.TaskCompleted, task.State())
}

func TestStripANSI(t *testing.T) {
	input := []byte("\x1b[31mred\x1b[0m plain")
	assert.Equal(t, "red plain", string(StripANSI(input)))
}
