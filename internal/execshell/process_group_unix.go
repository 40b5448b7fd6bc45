//go:build unix

package execshell

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// terminateProcessGroupOnCancel runs the command in its own process group and kills the whole
// group on cancellation, so children such as the mysql client spawned by wp db query die with it.
func terminateProcessGroupOnCancel(executable *exec.Cmd) {
	executable.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	executable.Cancel = func() error {
		killError := syscall.Kill(-executable.Process.Pid, syscall.SIGKILL)
		if errors.Is(killError, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return killError
	}
}
