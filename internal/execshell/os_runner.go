package execshell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

const (
	environmentAssignmentSeparatorConstant = "="
	environmentAssignmentTemplateConstant  = "%s%s%s"
	outputDrainDelayConstant               = 2 * time.Second
)

// OSCommandRunner executes commands using the operating system facilities.
type OSCommandRunner struct{}

// NewOSCommandRunner constructs a runner backed by os/exec.
func NewOSCommandRunner() *OSCommandRunner {
	return &OSCommandRunner{}
}

// Run executes the supplied command using os/exec and waits for it to finish.
func (runner *OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executable, standardOutputBuffer, standardErrorBuffer := runner.prepare(executionContext, command)

	runError := executable.Run()
	return runner.collectResult(executionContext, runError, standardOutputBuffer, standardErrorBuffer)
}

// Start launches the supplied command and returns a handle completed once the process exits.
func (runner *OSCommandRunner) Start(executionContext context.Context, command ShellCommand) (ProcessHandle, error) {
	executable, standardOutputBuffer, standardErrorBuffer := runner.prepare(executionContext, command)

	if startError := executable.Start(); startError != nil {
		return nil, startError
	}

	process := NewRunningProcess(command)
	go func() {
		waitError := executable.Wait()
		result, failure := runner.collectResult(executionContext, waitError, standardOutputBuffer, standardErrorBuffer)
		process.Complete(result, failure)
	}()

	return process, nil
}

func (runner *OSCommandRunner) prepare(executionContext context.Context, command ShellCommand) (*exec.Cmd, *bytes.Buffer, *bytes.Buffer) {
	commandArguments := append([]string{}, command.Details.Arguments...)
	executable := exec.CommandContext(executionContext, string(command.Name), commandArguments...)
	executable.WaitDelay = outputDrainDelayConstant
	terminateProcessGroupOnCancel(executable)

	if len(command.Details.WorkingDirectory) > 0 {
		executable.Dir = command.Details.WorkingDirectory
	}

	if len(command.Details.EnvironmentVariables) > 0 {
		mergedEnvironment := append([]string{}, os.Environ()...)
		for environmentKey, environmentValue := range command.Details.EnvironmentVariables {
			mergedEnvironment = append(mergedEnvironment, fmt.Sprintf(environmentAssignmentTemplateConstant, environmentKey, environmentAssignmentSeparatorConstant, environmentValue))
		}
		executable.Env = mergedEnvironment
	}

	standardOutputBuffer := &bytes.Buffer{}
	standardErrorBuffer := &bytes.Buffer{}
	executable.Stdout = standardOutputBuffer
	executable.Stderr = standardErrorBuffer

	if len(command.Details.StandardInput) > 0 {
		executable.Stdin = bytes.NewReader(command.Details.StandardInput)
	}

	return executable, standardOutputBuffer, standardErrorBuffer
}

func (runner *OSCommandRunner) collectResult(executionContext context.Context, runError error, standardOutputBuffer *bytes.Buffer, standardErrorBuffer *bytes.Buffer) (ExecutionResult, error) {
	timedOut := errors.Is(executionContext.Err(), context.DeadlineExceeded)

	// The command itself exited cleanly; only a lingering child kept the output pipes open.
	if errors.Is(runError, exec.ErrWaitDelay) {
		runError = nil
	}

	if runError != nil {
		exitError := &exec.ExitError{}
		if errors.As(runError, &exitError) {
			return ExecutionResult{
				StandardOutput: standardOutputBuffer.String(),
				StandardError:  standardErrorBuffer.String(),
				ExitCode:       exitError.ExitCode(),
				TimedOut:       timedOut,
			}, nil
		}
		return ExecutionResult{}, runError
	}

	return ExecutionResult{
		StandardOutput: standardOutputBuffer.String(),
		StandardError:  standardErrorBuffer.String(),
		ExitCode:       0,
		TimedOut:       timedOut,
	}, nil
}
