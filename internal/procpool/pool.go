package procpool

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/wpmu-clone/internal/execshell"
)

const (
	defaultPollIntervalConstant      = time.Second
	inFlightProgressTemplateConstant = "%d processes executing\n"
	lineTerminatorConstant           = "\n"
	processFailedMessageConstant     = "background process failed"
	processCompletedMessageConstant  = "background process completed"
	logFieldArgumentsConstant        = "arguments"
	logFieldExitCodeConstant         = "exit_code"
	logFieldTimedOutConstant         = "timed_out"
	logFieldDescriptionConstant      = "description"
	logFieldInFlightConstant         = "in_flight"
	logFieldLimitConstant            = "limit"
	drainWaitingMessageConstant      = "waiting for background processes"
)

// OutcomeRecorder receives pool activity for metrics.
type OutcomeRecorder interface {
	RecordDispatched()
	RecordCompleted(succeeded bool, timedOut bool)
	SetInFlight(count int)
}

// Sleeper pauses between polls and returns early when the context ends.
type Sleeper func(executionContext context.Context, duration time.Duration) error

// Dependencies describes the collaborators of a Pool.
type Dependencies struct {
	Logger         *zap.Logger
	ProgressWriter io.Writer
	Recorder       OutcomeRecorder
	Sleeper        Sleeper
}

// Summary counts the processes a pool has observed.
type Summary struct {
	Dispatched int
	Succeeded  int
	Failed     int
}

// Pool holds the handles of background processes. It is not safe for concurrent use;
// a single control goroutine owns it.
type Pool struct {
	logger           *zap.Logger
	progressWriter   io.Writer
	recorder         OutcomeRecorder
	sleep            Sleeper
	pollInterval     time.Duration
	messageFormatter execshell.CommandMessageFormatter
	handles          []execshell.ProcessHandle
	summary          Summary
}

// NewPool constructs an empty pool polling at pollInterval.
func NewPool(dependencies Dependencies, pollInterval time.Duration) *Pool {
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	progressWriter := dependencies.ProgressWriter
	if progressWriter == nil {
		progressWriter = io.Discard
	}
	recorder := dependencies.Recorder
	if recorder == nil {
		recorder = noopOutcomeRecorder{}
	}
	sleeper := dependencies.Sleeper
	if sleeper == nil {
		sleeper = ContextSleep
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollIntervalConstant
	}

	return &Pool{
		logger:         logger,
		progressWriter: progressWriter,
		recorder:       recorder,
		sleep:          sleeper,
		pollInterval:   pollInterval,
	}
}

// Add takes ownership of a started process.
func (pool *Pool) Add(handle execshell.ProcessHandle) {
	if handle == nil {
		return
	}
	pool.handles = append(pool.handles, handle)
	pool.summary.Dispatched++
	pool.recorder.RecordDispatched()
	pool.recorder.SetInFlight(len(pool.handles))
}

// Len returns the number of processes still held.
func (pool *Pool) Len() int {
	return len(pool.handles)
}

// Summary returns the counts observed so far.
func (pool *Pool) Summary() Summary {
	return pool.summary
}

// Reap drops every terminated process, echoing the error output of failed ones,
// and returns the number still running.
func (pool *Pool) Reap() int {
	stillRunning := make([]execshell.ProcessHandle, 0, len(pool.handles))
	for _, handle := range pool.handles {
		if !handle.Terminated() {
			stillRunning = append(stillRunning, handle)
			continue
		}
		pool.settle(handle)
	}
	pool.handles = stillRunning
	pool.recorder.SetInFlight(len(pool.handles))
	return len(pool.handles)
}

// DrainTo polls until at most limit processes remain. When reportProgress is set the
// in-flight count is written to the progress writer on every poll.
func (pool *Pool) DrainTo(executionContext context.Context, limit int, reportProgress bool) error {
	if limit < 0 {
		limit = 0
	}

	for {
		remaining := pool.Reap()
		if reportProgress {
			fmt.Fprintf(pool.progressWriter, inFlightProgressTemplateConstant, remaining)
		}
		if remaining <= limit {
			return nil
		}

		pool.logger.Debug(drainWaitingMessageConstant, zap.Int(logFieldInFlightConstant, remaining), zap.Int(logFieldLimitConstant, limit))
		if sleepError := pool.sleep(executionContext, pool.pollInterval); sleepError != nil {
			return sleepError
		}
	}
}

func (pool *Pool) settle(handle execshell.ProcessHandle) {
	command := handle.Command()
	result, failure := handle.Result()

	if failure == nil && result.Succeeded() {
		pool.summary.Succeeded++
		pool.recorder.RecordCompleted(true, false)
		pool.logger.Debug(
			processCompletedMessageConstant,
			zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		)
		return
	}

	pool.summary.Failed++
	pool.recorder.RecordCompleted(false, result.TimedOut)

	description := pool.messageFormatter.BuildFailureMessage(command, result)
	if failure != nil {
		description = pool.messageFormatter.BuildExecutionFailureMessage(command, failure)
		pool.writeVerbatim(failure.Error())
	} else {
		pool.writeVerbatim(result.StandardError)
	}

	pool.logger.Warn(
		processFailedMessageConstant,
		zap.String(logFieldDescriptionConstant, description),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		zap.Int(logFieldExitCodeConstant, result.ExitCode),
		zap.Bool(logFieldTimedOutConstant, result.TimedOut),
	)
}

func (pool *Pool) writeVerbatim(output string) {
	if len(output) == 0 {
		return
	}
	if !strings.HasSuffix(output, lineTerminatorConstant) {
		output += lineTerminatorConstant
	}
	io.WriteString(pool.progressWriter, output)
}

// ContextSleep waits for duration or until the context is done.
func ContextSleep(executionContext context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-executionContext.Done():
		return executionContext.Err()
	case <-timer.C:
		return nil
	}
}

type noopOutcomeRecorder struct{}

func (noopOutcomeRecorder) RecordDispatched() {}

func (noopOutcomeRecorder) RecordCompleted(bool, bool) {}

func (noopOutcomeRecorder) SetInFlight(int) {}
