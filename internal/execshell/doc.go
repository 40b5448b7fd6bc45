// Package execshell provides structured helpers for invoking external tools.
//
// It wraps os/exec with logging and timeouts via ShellExecutor, exposes
// OSCommandRunner for default process execution, and supports both blocking
// invocations and asynchronous ones tracked through ProcessHandle values. All
// invocations are argument lists; nothing is ever passed through a shell.
package execshell
