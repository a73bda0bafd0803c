//go:build windows

package supervisor

import (
	"fmt"
	"os"
	"os/exec"
)

type usageSample struct {
	cpuPercent float64
	rssBytes   uint64
	vmsBytes   uint64
}

// sampleUsage has no cheap cross-build-tag Windows equivalent of /proc
// wired up here; duration limits remain enforced, CPU/memory limits are a
// no-op on this platform until a Windows-specific sampler is added.
func sampleUsage(cmd *exec.Cmd) (usageSample, error) {
	if cmd == nil || cmd.Process == nil {
		return usageSample{}, fmt.Errorf("no process")
	}
	return usageSample{}, nil
}

func pauseProcess(pid int) error {
	return fmt.Errorf("supervisor: pause is not supported on windows")
}

func terminateSignal() os.Signal {
	return os.Kill
}
