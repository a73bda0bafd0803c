// Package supervisor implements the TaskSupervisor: it spawns, tracks,
// limits, and reaps child processes backing Task/TaskPty strategy calls,
// and owns the PTY pool those tasks may attach to.
//
// Process spawning and the PTY-backed exec mode are adapted from the
// teacher's pkg/webui/terminal.go (TerminalSession/TerminalManager, built
// on github.com/creack/pty). Resource polling, averaging, and the
// violation-action dispatch are grounded on
// original_source/crates/Layer2-task/src/executor/resource_monitor.rs's
// ResourceMonitor/ProcessResourceTracker.
package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/forgecore/agentrt/pkg/agentcore/types"
)

// defaultOutputBufferLimit caps how many bytes of combined stdout/stderr a
// Task retains in memory by default; older bytes are dropped from the
// front once exceeded. Configurable per spec §4.5 via
// Supervisor.SetOutputBufferLimit.
const defaultOutputBufferLimit = 10 << 20 // 10 MiB

// retentionWindow is how long a terminal task's record is kept around for
// Status/Wait calls made after it has already finished.
const retentionWindow = 10 * time.Minute

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes terminal escape sequences from PTY output, used before
// handing captured output back to callers that don't render a terminal.
func StripANSI(b []byte) []byte {
	return ansiEscape.ReplaceAll(b, nil)
}

// Task is one spawned child process under supervision.
type Task struct {
	ID       string
	ToolName string
	Command  string
	Mode     types.ExecMode
	Limits   types.ResourceLimits

	mu                sync.Mutex
	state             types.TaskState
	cmd               *exec.Cmd
	ptyFile           *os.File
	cancel            context.CancelFunc
	output            bytes.Buffer
	outputBufferLimit int
	totalBytes        int64
	truncated         bool
	violations        []types.ResourceViolation
	startedAt         time.Time
	endedAt           time.Time
	exitErr           error
	doneCh            chan struct{}

	sampleCount  int
	cpuSampleSum float64
	memSampleSum float64
	peakCPU      float64
	peakMemory   uint64
}

// State returns the task's current state, guarded against concurrent
// transitions from the reaper/poller goroutines.
func (t *Task) State() types.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Output returns a snapshot of the task's captured output so far, with
// terminal escapes stripped when the task runs in PTY mode.
func (t *Task) Output() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, t.output.Len())
	copy(out, t.output.Bytes())
	if t.Mode == types.ExecPty {
		return StripANSI(out)
	}
	return out
}

// Violations returns every resource-limit breach recorded for this task.
func (t *Task) Violations() []types.ResourceViolation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.ResourceViolation, len(t.violations))
	copy(out, t.violations)
	return out
}

// Truncated reports whether the output buffer has ever dropped bytes to
// stay within its cap, per spec §4.5.
func (t *Task) Truncated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.truncated
}

// TotalBytesProduced returns the running count of every byte the task has
// written to stdout/stderr (or the PTY), independent of how much of that
// is still retained in the buffer.
func (t *Task) TotalBytesProduced() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalBytes
}

// recordSample feeds one resource_monitor.rs-style usage sample into the
// task's peak and running-average tracking, polled at pollInterval.
func (t *Task) recordSample(cpuPercent float64, rssBytes uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sampleCount++
	t.cpuSampleSum += cpuPercent
	t.memSampleSum += float64(rssBytes)
	if cpuPercent > t.peakCPU {
		t.peakCPU = cpuPercent
	}
	if rssBytes > t.peakMemory {
		t.peakMemory = rssBytes
	}
}

// AverageCPU returns the mean CPU percent sampled over the task's life so
// far (0 if never sampled, e.g. no CPU limit was configured).
func (t *Task) AverageCPU() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sampleCount == 0 {
		return 0
	}
	return t.cpuSampleSum / float64(t.sampleCount)
}

// AverageMemory returns the mean resident-memory usage in bytes sampled
// over the task's life so far.
func (t *Task) AverageMemory() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sampleCount == 0 {
		return 0
	}
	return uint64(t.memSampleSum / float64(t.sampleCount))
}

// PeakCPU returns the highest single CPU-percent sample observed.
func (t *Task) PeakCPU() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peakCPU
}

// PeakMemory returns the highest single resident-memory sample observed,
// in bytes.
func (t *Task) PeakMemory() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peakMemory
}

// SummaryReport renders a one-line human-readable status line, the Go
// equivalent of resource_monitor.rs's ProcessResourceTracker report used
// in task_status output: id, command, state, elapsed duration, and
// peak/average resource usage.
func (t *Task) SummaryReport() string {
	t.mu.Lock()
	state := t.state
	command := t.Command
	started := t.startedAt
	ended := t.endedAt
	sampleCount := t.sampleCount
	cpuSum := t.cpuSampleSum
	memSum := t.memSampleSum
	peakCPU := t.peakCPU
	peakMem := t.peakMemory
	violations := len(t.violations)
	t.mu.Unlock()

	elapsed := time.Since(started)
	if state.IsTerminal() {
		elapsed = ended.Sub(started)
	}

	if sampleCount == 0 {
		return fmt.Sprintf("task %s [%s] %q ran %s, no resource limits configured", t.ID, state, command, elapsed.Round(time.Millisecond))
	}

	avgCPU := cpuSum / float64(sampleCount)
	avgMemMB := memSum / float64(sampleCount) / (1 << 20)
	peakMemMB := float64(peakMem) / (1 << 20)
	return fmt.Sprintf("task %s [%s] %q ran %s, cpu avg=%.1f%% peak=%.1f%%, mem avg=%.1fMB peak=%.1fMB, violations=%d",
		t.ID, state, command, elapsed.Round(time.Millisecond), avgCPU, peakCPU, avgMemMB, peakMemMB, violations)
}

func (t *Task) appendOutput(b []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalBytes += int64(len(b))
	t.output.Write(b)
	limit := t.outputBufferLimit
	if limit <= 0 {
		limit = defaultOutputBufferLimit
	}
	if over := t.output.Len() - limit; over > 0 {
		t.output.Next(over)
		t.truncated = true
	}
}

func (t *Task) setState(s types.TaskState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.CanTransitionTo(s) {
		return false
	}
	t.state = s
	if s.IsTerminal() {
		t.endedAt = time.Now()
	}
	return true
}

// Supervisor tracks every live and recently-finished Task, and enforces a
// configured concurrency ceiling on new spawns.
type Supervisor struct {
	mu                sync.Mutex
	tasks             map[string]*Task
	maxActive         int
	active            int
	newID             func() string
	taskLogDir        string
	outputBufferLimit int
}

// New builds a Supervisor. newID supplies task IDs (normally
// github.com/google/uuid.NewString); maxActive <= 0 means unbounded.
func New(maxActive int, newID func() string) *Supervisor {
	return &Supervisor{
		tasks:             make(map[string]*Task),
		maxActive:         maxActive,
		newID:             newID,
		outputBufferLimit: defaultOutputBufferLimit,
	}
}

// SetOutputBufferLimit overrides the per-task retained-output cap (bytes)
// for every task spawned after this call, per spec §4.5's "configurable,
// default 10 MiB". n <= 0 resets to the default.
func (s *Supervisor) SetOutputBufferLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		n = defaultOutputBufferLimit
	}
	s.outputBufferLimit = n
}

// Submit spawns command under supervision in the given ExecMode and
// returns the Task immediately; the process runs in the background. An
// error here means the process never started (e.g. the concurrency
// ceiling was reached, or the shell/PTY could not be allocated).
func (s *Supervisor) Submit(ctx context.Context, toolName, command string, mode types.ExecMode, limits types.ResourceLimits) (*Task, error) {
	s.mu.Lock()
	if s.maxActive > 0 && s.active >= s.maxActive {
		s.mu.Unlock()
		return nil, fmt.Errorf("supervisor: max active tasks (%d) reached", s.maxActive)
	}
	s.active++
	bufLimit := s.outputBufferLimit
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	task := &Task{
		ID:                s.newID(),
		ToolName:          toolName,
		Command:           command,
		Mode:              mode,
		Limits:            limits,
		state:             types.TaskPending,
		cancel:            cancel,
		startedAt:         time.Now(),
		doneCh:            make(chan struct{}),
		outputBufferLimit: bufLimit,
	}

	if err := task.start(runCtx, command, mode); err != nil {
		cancel()
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
		return nil, err
	}
	task.setState(types.TaskRunning)

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()

	go s.supervise(runCtx, task)
	return task, nil
}

func shellCommand(goos string) (string, []string) {
	if goos == "windows" {
		return "cmd", []string{"/C"}
	}
	for _, candidate := range []struct {
		name string
		args []string
	}{
		{"bash", []string{"-c"}},
		{"zsh", []string{"-c"}},
		{"sh", []string{"-c"}},
	} {
		if _, err := exec.LookPath(candidate.name); err == nil {
			return candidate.name, candidate.args
		}
	}
	return "sh", []string{"-c"}
}

func (t *Task) start(ctx context.Context, command string, mode types.ExecMode) error {
	shell, shellArgs := shellCommand(runtime.GOOS)
	args := append(append([]string{}, shellArgs...), command)
	cmd := exec.CommandContext(ctx, shell, args...)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	if mode == types.ExecPty {
		rows, cols := TerminalSize()
		ptyFile, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
		if err != nil {
			return fmt.Errorf("supervisor: failed to start PTY: %w", err)
		}
		t.ptyFile = ptyFile
		t.cmd = cmd
		go t.pump(ptyFile)
		return nil
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("supervisor: stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("supervisor: start: %w", err)
	}
	t.cmd = cmd
	go t.pump(stdout)
	return nil
}

func (t *Task) pump(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			t.appendOutput(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// Send writes input to a PTY-mode task's terminal, the way a user's
// keystrokes or a follow-up instruction would arrive.
func (t *Task) Send(input string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Mode != types.ExecPty || t.ptyFile == nil {
		return fmt.Errorf("supervisor: task %s has no PTY to send input to", t.ID)
	}
	if !termNewlineSuffixed(input) {
		input += "\n"
	}
	_, err := t.ptyFile.WriteString(input)
	return err
}

func termNewlineSuffixed(s string) bool {
	return len(s) > 0 && s[len(s)-1] == '\n'
}

// Resize adjusts a PTY-mode task's terminal dimensions.
func (t *Task) Resize(rows, cols uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ptyFile == nil {
		return fmt.Errorf("supervisor: task %s has no PTY to resize", t.ID)
	}
	return pty.Setsize(t.ptyFile, &pty.Winsize{Rows: rows, Cols: cols})
}

// supervise waits for the task's process to exit (or be cancelled) and
// runs the resource poller concurrently, matching the teacher's
// monitorSession/poll-loop pattern.
func (s *Supervisor) supervise(ctx context.Context, task *Task) {
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
		close(task.doneCh)
	}()

	pollDone := make(chan struct{})
	if task.Limits.HasCPULimit() || task.Limits.HasMemoryLimit() || task.Limits.HasVirtualMemLimit() || task.Limits.HasDurationLimit() {
		go s.poll(ctx, task, pollDone)
	} else {
		close(pollDone)
	}

	waitErr := task.cmd.Wait()
	if task.ptyFile != nil {
		task.ptyFile.Close()
	}
	<-pollDone

	task.mu.Lock()
	task.exitErr = waitErr
	task.mu.Unlock()

	switch {
	case ctx.Err() != nil:
		task.setState(types.TaskCancelled)
	case waitErr != nil:
		task.setState(types.TaskFailed)
	default:
		task.setState(types.TaskCompleted)
	}
	s.logTaskRecord(task)
}

// pollInterval matches resource_monitor.rs's default sampling cadence.
const pollInterval = 500 * time.Millisecond

// poll periodically samples resource usage and applies Limits.OnExceeded
// when a cap is breached, grounded on ResourceMonitor's averaging tracker:
// a single instantaneous spike is recorded but only acted on once it
// persists, avoiding the teacher's original_source predecessor's noted
// false-positive-on-startup-spike problem.
func (s *Supervisor) poll(ctx context.Context, task *Task, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	consecutiveOver := map[types.ViolationKind]int{}
	const consecutiveThreshold = 3 // ~1.5s sustained breach before acting

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if task.State().IsTerminal() {
				return
			}
			usage, err := sampleUsage(task.cmd)
			if err != nil {
				continue
			}
			task.recordSample(usage.cpuPercent, usage.rssBytes)
			s.checkLimit(task, types.ViolationCPU, usage.cpuPercent, task.Limits.MaxCPUPercent, task.Limits.HasCPULimit(), consecutiveOver, consecutiveThreshold)
			s.checkLimit(task, types.ViolationMemory, float64(usage.rssBytes), float64(task.Limits.MaxMemoryBytes), task.Limits.HasMemoryLimit(), consecutiveOver, consecutiveThreshold)
			s.checkLimit(task, types.ViolationVirtualMemory, float64(usage.vmsBytes), float64(task.Limits.MaxVirtualMemBytes), task.Limits.HasVirtualMemLimit(), consecutiveOver, consecutiveThreshold)
			if task.Limits.HasDurationLimit() && time.Since(task.startedAt) > task.Limits.MaxDuration {
				s.applyViolation(task, types.ViolationDuration, time.Since(task.startedAt).Seconds(), task.Limits.MaxDuration.Seconds())
			}
		}
	}
}

func (s *Supervisor) checkLimit(task *Task, kind types.ViolationKind, current, limit float64, enabled bool, consecutive map[types.ViolationKind]int, threshold int) {
	if !enabled {
		return
	}
	if current > limit {
		consecutive[kind]++
		if consecutive[kind] >= threshold {
			s.applyViolation(task, kind, current, limit)
			consecutive[kind] = 0
		}
	} else {
		consecutive[kind] = 0
	}
}

func (s *Supervisor) applyViolation(task *Task, kind types.ViolationKind, current, limit float64) {
	action := task.Limits.OnExceeded
	task.mu.Lock()
	task.violations = append(task.violations, types.ResourceViolation{
		Kind: kind, Current: current, Limit: limit, At: time.Now(), Action: action,
	})
	task.mu.Unlock()

	switch action {
	case types.LimitPause:
		if task.setState(types.TaskPaused) && task.cmd.Process != nil {
			_ = pauseProcess(task.cmd.Process.Pid)
		}
	case types.LimitTerminate:
		if task.cmd.Process != nil {
			_ = task.cmd.Process.Signal(terminateSignal())
		}
	case types.LimitKill:
		if task.cmd.Process != nil {
			_ = task.cmd.Process.Kill()
		}
	case types.LimitWarn:
		// recorded in task.violations; caller surfaces it, no process action.
	}
}

// Stop cancels a task's context, which kills the task's shell process;
// processes that shell started are not signalled.
func (s *Supervisor) Stop(id string) error {
	s.mu.Lock()
	task, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("supervisor: unknown task %s", id)
	}
	task.cancel()
	return nil
}

// Wait blocks until the task reaches a terminal state or ctx is done.
func (s *Supervisor) Wait(ctx context.Context, id string) (*Task, error) {
	s.mu.Lock()
	task, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("supervisor: unknown task %s", id)
	}
	select {
	case <-task.doneCh:
		return task, nil
	case <-ctx.Done():
		return task, ctx.Err()
	}
}

// Get retrieves a task by ID for status/output inspection.
func (s *Supervisor) Get(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// List returns every tracked task, including ones past the retention
// window cutoff -- callers that want only live tasks should filter on
// IsTerminal() themselves.
func (s *Supervisor) List() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}

// Reap removes terminal tasks whose retention window has elapsed. The
// Supervisor never calls it itself; its owner decides when to reap.
func (s *Supervisor) Reap(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, t := range s.tasks {
		t.mu.Lock()
		stale := t.state.IsTerminal() && now.Sub(t.endedAt) > retentionWindow
		t.mu.Unlock()
		if stale {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed
}
