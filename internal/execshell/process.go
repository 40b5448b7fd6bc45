package execshell

// ProcessHandle observes a command started in the background.
type ProcessHandle interface {
	// Command returns the command the handle was started for.
	Command() ShellCommand
	// Done is closed once the process has terminated.
	Done() <-chan struct{}
	// Terminated reports whether the process has exited without blocking.
	Terminated() bool
	// Result returns the outcome; it is only meaningful after Terminated reports true.
	Result() (ExecutionResult, error)
}

// RunningProcess is a ProcessHandle completed exactly once by the goroutine awaiting the process.
type RunningProcess struct {
	command ShellCommand
	done    chan struct{}
	result  ExecutionResult
	failure error
}

// NewRunningProcess creates an incomplete handle for the provided command.
func NewRunningProcess(command ShellCommand) *RunningProcess {
	return &RunningProcess{command: command, done: make(chan struct{})}
}

// Complete records the outcome and releases observers. It must be called once.
func (process *RunningProcess) Complete(result ExecutionResult, failure error) {
	process.result = result
	process.failure = failure
	close(process.done)
}

// Command returns the command the handle was started for.
func (process *RunningProcess) Command() ShellCommand {
	return process.command
}

// Done is closed once the process has terminated.
func (process *RunningProcess) Done() <-chan struct{} {
	return process.done
}

// Terminated reports whether the process has exited.
func (process *RunningProcess) Terminated() bool {
	select {
	case <-process.done:
		return true
	default:
		return false
	}
}

// Result returns the recorded outcome once the process has terminated.
func (process *RunningProcess) Result() (ExecutionResult, error) {
	if !process.Terminated() {
		return ExecutionResult{}, nil
	}
	return process.result, process.failure
}
