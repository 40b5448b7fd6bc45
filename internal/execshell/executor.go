package execshell

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	wpCLIExecutableNameConstant             = "wp"
	skipPluginsFlagConstant                 = "--skip-plugins"
	skipThemesFlagConstant                  = "--skip-themes"
	quietFlagConstant                       = "--quiet"
	defaultCommandTimeoutConstant           = 10 * time.Minute
	loggerNotConfiguredMessageConstant      = "shell executor logger not configured"
	runnerNotConfiguredMessageConstant      = "shell executor command runner not configured"
	commandFailedTemplateConstant           = "%s command exited with code %d"
	commandFailedWithOutputTemplateConstant = "%s command exited with code %d: %s"
	commandExecutionTemplateConstant        = "%s command failed: %v"
	logFieldCommandNameConstant             = "command_name"
	logFieldArgumentsConstant               = "arguments"
	logFieldExitCodeConstant                = "exit_code"
	logFieldStandardErrorConstant           = "stderr"
	logFieldTimeoutConstant                 = "timeout"
	logFieldAsynchronousConstant            = "asynchronous"
	structuredStartMessageConstant          = "command started"
	structuredSuccessMessageConstant        = "command completed"
	structuredFailureMessageConstant        = "command failed"
	structuredExecutionFailureMessage       = "command execution failed"
)

// CommandName identifies an executable supported by the executor.
type CommandName string

// CommandWPCLI is the default WP-CLI executable.
const CommandWPCLI CommandName = CommandName(wpCLIExecutableNameConstant)

// CommandDetails describes the arguments and environment of a single invocation.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
}

// ShellCommand combines an executable name with invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable results of a finished command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
	TimedOut       bool
}

// Succeeded reports whether the command exited cleanly.
func (result ExecutionResult) Succeeded() bool {
	return result.ExitCode == 0 && !result.TimedOut
}

// CommandFailedError reports a command that ran but exited with a non-zero code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the failure including trimmed standard error output.
func (commandError CommandFailedError) Error() string {
	trimmedStandardError := strings.TrimSpace(commandError.Result.StandardError)
	if len(trimmedStandardError) == 0 {
		return fmt.Sprintf(commandFailedTemplateConstant, commandError.Command.Name, commandError.Result.ExitCode)
	}
	return fmt.Sprintf(commandFailedWithOutputTemplateConstant, commandError.Command.Name, commandError.Result.ExitCode, trimmedStandardError)
}

// CommandExecutionError reports a command that could not be started or awaited.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the execution failure.
func (executionError CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionTemplateConstant, executionError.Command.Name, executionError.Cause)
}

// Unwrap exposes the underlying cause.
func (executionError CommandExecutionError) Unwrap() error {
	return executionError.Cause
}

// CommandRunner runs commands to completion or starts them in the background.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
	Start(executionContext context.Context, command ShellCommand) (ProcessHandle, error)
}

// ExecutorSettings tunes the executable and per-invocation limits.
type ExecutorSettings struct {
	Executable           CommandName
	CommandTimeout       time.Duration
	HumanReadableLogging bool
}

// ShellExecutor runs WP-CLI commands with fixed suppression flags, timeouts, and logging.
type ShellExecutor struct {
	logger           *zap.Logger
	commandRunner    CommandRunner
	messageFormatter CommandMessageFormatter
	settings         ExecutorSettings
}

var (
	// ErrLoggerNotConfigured indicates a missing logger dependency.
	ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)
	// ErrCommandRunnerNotConfigured indicates a missing command runner dependency.
	ErrCommandRunnerNotConfigured = errors.New(runnerNotConfiguredMessageConstant)
)

// NewShellExecutor validates dependencies and constructs a ShellExecutor.
func NewShellExecutor(logger *zap.Logger, commandRunner CommandRunner, settings ExecutorSettings) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if commandRunner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}

	normalizedSettings := settings
	if len(strings.TrimSpace(string(normalizedSettings.Executable))) == 0 {
		normalizedSettings.Executable = CommandWPCLI
	}
	if normalizedSettings.CommandTimeout <= 0 {
		normalizedSettings.CommandTimeout = defaultCommandTimeoutConstant
	}

	return &ShellExecutor{
		logger:           logger,
		commandRunner:    commandRunner,
		messageFormatter: CommandMessageFormatter{},
		settings:         normalizedSettings,
	}, nil
}

// ExecuteWPCLI runs WP-CLI synchronously and fails on a non-zero exit code.
func (executor *ShellExecutor) ExecuteWPCLI(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	command := executor.buildCommand(details)

	timeoutContext, cancel := context.WithTimeout(executionContext, executor.settings.CommandTimeout)
	defer cancel()

	executor.logStarted(command, false)
	result, runError := executor.commandRunner.Run(timeoutContext, command)
	if runError != nil {
		executor.logExecutionFailure(command, runError)
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runError}
	}

	if !result.Succeeded() {
		executor.logFailure(command, result)
		return ExecutionResult{}, CommandFailedError{Command: command, Result: result}
	}

	executor.logSuccess(command)
	return result, nil
}

// StartWPCLI launches WP-CLI in the background and returns immediately with its handle.
// Once started the process is bound only by its own timeout; cancelling executionContext does not stop it.
func (executor *ShellExecutor) StartWPCLI(executionContext context.Context, details CommandDetails) (ProcessHandle, error) {
	command := executor.buildCommand(details)

	timeoutContext, cancel := context.WithTimeout(context.WithoutCancel(executionContext), executor.settings.CommandTimeout)

	executor.logStarted(command, true)
	handle, startError := executor.commandRunner.Start(timeoutContext, command)
	if startError != nil {
		cancel()
		executor.logExecutionFailure(command, startError)
		return nil, CommandExecutionError{Command: command, Cause: startError}
	}

	go func() {
		<-handle.Done()
		cancel()
	}()

	return handle, nil
}

// MessageFormatter exposes the formatter used for lifecycle messages.
func (executor *ShellExecutor) MessageFormatter() CommandMessageFormatter {
	return executor.messageFormatter
}

func (executor *ShellExecutor) buildCommand(details CommandDetails) ShellCommand {
	arguments := make([]string, 0, len(details.Arguments)+3)
	arguments = append(arguments, details.Arguments...)
	arguments = append(arguments, skipPluginsFlagConstant, skipThemesFlagConstant, quietFlagConstant)

	normalizedDetails := details
	normalizedDetails.Arguments = arguments

	return ShellCommand{Name: executor.settings.Executable, Details: normalizedDetails}
}

func (executor *ShellExecutor) logStarted(command ShellCommand, asynchronous bool) {
	if executor.settings.HumanReadableLogging {
		executor.logger.Debug(executor.messageFormatter.BuildStartedMessage(command))
		return
	}
	executor.logger.Debug(
		structuredStartMessageConstant,
		zap.String(logFieldCommandNameConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		zap.Duration(logFieldTimeoutConstant, executor.settings.CommandTimeout),
		zap.Bool(logFieldAsynchronousConstant, asynchronous),
	)
}

func (executor *ShellExecutor) logSuccess(command ShellCommand) {
	if executor.settings.HumanReadableLogging {
		executor.logger.Debug(executor.messageFormatter.BuildSuccessMessage(command))
		return
	}
	executor.logger.Debug(
		structuredSuccessMessageConstant,
		zap.String(logFieldCommandNameConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
	)
}

func (executor *ShellExecutor) logFailure(command ShellCommand, result ExecutionResult) {
	if executor.settings.HumanReadableLogging {
		executor.logger.Warn(executor.messageFormatter.BuildFailureMessage(command, result))
		return
	}
	executor.logger.Warn(
		structuredFailureMessageConstant,
		zap.String(logFieldCommandNameConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		zap.Int(logFieldExitCodeConstant, result.ExitCode),
		zap.String(logFieldStandardErrorConstant, strings.TrimSpace(result.StandardError)),
	)
}

func (executor *ShellExecutor) logExecutionFailure(command ShellCommand, failure error) {
	if executor.settings.HumanReadableLogging {
		executor.logger.Warn(executor.messageFormatter.BuildExecutionFailureMessage(command, failure))
		return
	}
	executor.logger.Warn(
		structuredExecutionFailureMessage,
		zap.String(logFieldCommandNameConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		zap.Error(failure),
	)
}
