//go:build unix

package harness

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcess starts the command in its own process group and makes
// context cancellation kill the whole group, so build subprocesses spawned
// by pip or poetry do not outlive an interrupted run.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		if errors.Is(err, unix.ESRCH) {
			return os.ErrProcessDone
		}

		return err
	}
}

// maxRSS returns the kernel's high-water RSS for the exited child in bytes.
func maxRSS(state *os.ProcessState) uint64 {
	if state == nil {
		return 0
	}

	usage, ok := state.SysUsage().(*syscall.Rusage)
	if !ok || usage == nil || usage.Maxrss <= 0 {
		return 0
	}

	// darwin reports bytes, everything else kilobytes.
	if runtime.GOOS == "darwin" || runtime.GOOS == "ios" {
		return uint64(usage.Maxrss)
	}

	return uint64(usage.Maxrss) * 1024
}
