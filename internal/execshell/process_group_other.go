//go:build !unix

package execshell

import "os/exec"

// terminateProcessGroupOnCancel keeps the default kill-on-cancel behavior where process groups are unavailable.
func terminateProcessGroupOnCancel(executable *exec.Cmd) {}
