package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forgecore/agentrt/pkg/agentcore/types"
)

// taskRecord is the sealed summary of one finished Task, matching the
// task-id/tool/command/exit-code/timestamps/duration/peak-usage/violations
// shape. Appended to a per-day JSON-lines file rather than the teacher's
// one-file-per-event convention (pkg/logging.LogRequestPayload), since
// task records are high-volume and a single day's worth belongs together
// for `sessions`/audit review.
type taskRecord struct {
	TaskID      string                    `json:"task_id"`
	Tool        string                    `json:"tool"`
	Command     string                    `json:"command"`
	ExitCode    int                       `json:"exit_code"`
	StartedAt   time.Time                 `json:"started_at"`
	EndedAt     time.Time                 `json:"ended_at"`
	Duration    time.Duration             `json:"duration_ns"`
	PeakCPU     float64                   `json:"peak_cpu_percent"`
	PeakMemory  uint64                    `json:"peak_memory_bytes"`
	AverageCPU  float64                   `json:"average_cpu_percent"`
	AverageMem  uint64                    `json:"average_memory_bytes"`
	Truncated   bool                      `json:"truncated"`
	TotalBytes  int64                     `json:"total_bytes"`
	Violations  []types.ResourceViolation `json:"violations,omitempty"`
}

// EnableTaskLog sets a directory that, when non-empty, receives one
// append-only JSON-lines file per calendar day (task_log_2006-01-02.jsonl)
// recording every task of this Supervisor instance as it finishes. Left unset, task records aren't persisted --
// callers that only need in-memory Status/Wait can skip this.
func (s *Supervisor) EnableTaskLog(dir string) {
	s.mu.Lock()
	s.taskLogDir = dir
	s.mu.Unlock()
}

func (s *Supervisor) logTaskRecord(task *Task) {
	s.mu.Lock()
	dir := s.taskLogDir
	s.mu.Unlock()
	if dir == "" {
		return
	}

	task.mu.Lock()
	rec := taskRecord{
		TaskID:     task.ID,
		Tool:       task.ToolName,
		Command:    task.Command,
		StartedAt:  task.startedAt,
		EndedAt:    task.endedAt,
		Duration:   task.endedAt.Sub(task.startedAt),
		PeakCPU:    task.peakCPU,
		PeakMemory: task.peakMemory,
		Truncated:  task.truncated,
		TotalBytes: task.totalBytes,
		Violations: append([]types.ResourceViolation{}, task.violations...),
	}
	if task.sampleCount > 0 {
		rec.AverageCPU = task.cpuSampleSum / float64(task.sampleCount)
		rec.AverageMem = uint64(task.memSampleSum / float64(task.sampleCount))
	}
	if task.exitErr != nil {
		rec.ExitCode = exitCodeOf(task.exitErr)
	}
	task.mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("task_log_%s.jsonl", rec.EndedAt.Format("2006-01-02")))
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	f.Write(data)
	f.Write([]byte("\n"))
}

func exitCodeOf(err error) int {
	type exitCoder interface{ ExitCode() int }
	if ec, ok := err.(exitCoder); ok {
		return ec.ExitCode()
	}
	return 1
}
