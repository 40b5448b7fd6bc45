package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	timedOutSuffixConstant                  = " (timed out)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	urlFlagPrefixConstant                   = "--url="
	unknownSiteLabelConstant                = "network"
)

const (
	wpDatabaseSubcommandConstant      = "db"
	wpQuerySubcommandConstant         = "query"
	wpSearchReplaceSubcommandConstant = "search-replace"
	sqlSelectKeywordConstant          = "SELECT"
	sqlUpdateKeywordConstant          = "UPDATE"
	searchReplaceArgumentCountMinimum = 3
	databaseQueryArgumentCountMinimum = 3
)

const (
	databaseReadStartTemplateConstant             = "Reading %s"
	databaseReadSuccessTemplateConstant           = "Read %s"
	databaseReadFailureTemplateConstant           = "Failed to read %s (exit code %d%s)"
	databaseReadExecutionFailureTemplateConstant  = "Unable to read %s: %s"
	databaseWriteStartTemplateConstant            = "Updating %s"
	databaseWriteSuccessTemplateConstant          = "Updated %s"
	databaseWriteFailureTemplateConstant          = "Failed to update %s (exit code %d%s)"
	databaseWriteExecutionFailureTemplateConstant = "Unable to update %s: %s"
	searchReplaceStartTemplateConstant            = "Replacing %s with %s"
	searchReplaceSuccessTemplateConstant          = "Replaced %s with %s"
	searchReplaceFailureTemplateConstant          = "Failed to replace %s with %s (exit code %d%s)"
	searchReplaceExecutionFailureTemplateConstant = "Unable to replace %s with %s: %s"
	databaseTargetTemplateConstant                = "%s on %s"
)

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments
	switch {
	case formatter.isDatabaseQuery(arguments):
		return formatter.describeDatabaseQuery(arguments, result, failure, stage)
	case formatter.isSearchReplace(arguments):
		return formatter.describeSearchReplace(arguments, result, failure, stage)
	default:
		return formatter.describeGeneric(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) isDatabaseQuery(arguments []string) bool {
	if len(arguments) < databaseQueryArgumentCountMinimum {
		return false
	}
	return arguments[0] == wpDatabaseSubcommandConstant && arguments[1] == wpQuerySubcommandConstant
}

func (formatter CommandMessageFormatter) isSearchReplace(arguments []string) bool {
	if len(arguments) < searchReplaceArgumentCountMinimum {
		return false
	}
	return arguments[0] == wpSearchReplaceSubcommandConstant
}

func (formatter CommandMessageFormatter) describeDatabaseQuery(arguments []string, result ExecutionResult, failure error, stage messageStage) string {
	statement := strings.TrimSpace(arguments[2])
	target := fmt.Sprintf(databaseTargetTemplateConstant, formatter.statementTable(statement), formatter.siteLabel(arguments))

	if strings.HasPrefix(strings.ToUpper(statement), sqlUpdateKeywordConstant) {
		return formatter.selectTemplate(stage,
			fmt.Sprintf(databaseWriteStartTemplateConstant, target),
			fmt.Sprintf(databaseWriteSuccessTemplateConstant, target),
			fmt.Sprintf(databaseWriteFailureTemplateConstant, target, result.ExitCode, formatter.failureSuffix(result)),
			fmt.Sprintf(databaseWriteExecutionFailureTemplateConstant, target, formatter.failureText(failure)),
		)
	}

	return formatter.selectTemplate(stage,
		fmt.Sprintf(databaseReadStartTemplateConstant, target),
		fmt.Sprintf(databaseReadSuccessTemplateConstant, target),
		fmt.Sprintf(databaseReadFailureTemplateConstant, target, result.ExitCode, formatter.failureSuffix(result)),
		fmt.Sprintf(databaseReadExecutionFailureTemplateConstant, target, formatter.failureText(failure)),
	)
}

func (formatter CommandMessageFormatter) describeSearchReplace(arguments []string, result ExecutionResult, failure error, stage messageStage) string {
	oldValue := arguments[1]
	newValue := arguments[2]
	return formatter.selectTemplate(stage,
		fmt.Sprintf(searchReplaceStartTemplateConstant, oldValue, newValue),
		fmt.Sprintf(searchReplaceSuccessTemplateConstant, oldValue, newValue),
		fmt.Sprintf(searchReplaceFailureTemplateConstant, oldValue, newValue, result.ExitCode, formatter.failureSuffix(result)),
		fmt.Sprintf(searchReplaceExecutionFailureTemplateConstant, oldValue, newValue, formatter.failureText(failure)),
	)
}

func (formatter CommandMessageFormatter) describeGeneric(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	label := formatter.commandLabel(command)
	return formatter.selectTemplate(stage,
		fmt.Sprintf(genericStartTemplateConstant, label),
		fmt.Sprintf(genericSuccessTemplateConstant, label),
		fmt.Sprintf(genericFailureTemplateConstant, label, result.ExitCode, formatter.failureSuffix(result)),
		fmt.Sprintf(genericExecutionFailureTemplateConstant, label, formatter.failureText(failure)),
	)
}

func (formatter CommandMessageFormatter) selectTemplate(stage messageStage, started string, succeeded string, failed string, executionFailed string) string {
	switch stage {
	case messageStageStart:
		return started
	case messageStageSuccess:
		return succeeded
	case messageStageFailure:
		return failed
	default:
		return executionFailed
	}
}

// statementTable extracts the table a single-table SELECT or UPDATE statement targets.
func (formatter CommandMessageFormatter) statementTable(statement string) string {
	fields := strings.Fields(statement)
	for index, field := range fields {
		upperField := strings.ToUpper(field)
		if upperField == "FROM" || (upperField == sqlUpdateKeywordConstant && index == 0) {
			if index+1 < len(fields) {
				return strings.TrimSuffix(fields[index+1], ";")
			}
		}
	}
	if len(fields) > 0 && strings.EqualFold(fields[0], sqlSelectKeywordConstant) {
		return strings.ToLower(sqlSelectKeywordConstant)
	}
	return statement
}

func (formatter CommandMessageFormatter) siteLabel(arguments []string) string {
	for _, argument := range arguments {
		if strings.HasPrefix(argument, urlFlagPrefixConstant) {
			return strings.TrimPrefix(argument, urlFlagPrefixConstant)
		}
	}
	return unknownSiteLabelConstant
}

func (formatter CommandMessageFormatter) commandLabel(command ShellCommand) string {
	commandParts := []string{string(command.Name)}
	if len(command.Details.Arguments) > 0 {
		commandParts = append(commandParts, strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant))
	}
	return strings.Join(commandParts, commandArgumentsJoinSeparatorConstant)
}

func (formatter CommandMessageFormatter) failureSuffix(result ExecutionResult) string {
	suffix := emptyStringConstant
	if result.TimedOut {
		suffix = timedOutSuffixConstant
	}
	trimmedStandardError := strings.TrimSpace(result.StandardError)
	if len(trimmedStandardError) == 0 {
		return suffix
	}
	return suffix + fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) failureText(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}
