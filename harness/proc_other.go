//go:build !unix

package harness

import (
	"os"
	"os/exec"
)

func configureProcess(_ *exec.Cmd) {}

func maxRSS(_ *os.ProcessState) uint64 {
	return 0
}
