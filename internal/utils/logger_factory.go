package utils

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	logLevelDebugStringConstant          = "debug"
	logLevelInfoStringConstant           = "info"
	logLevelWarnStringConstant           = "warn"
	logLevelErrorStringConstant          = "error"
	logFormatStructuredStringConstant    = "structured"
	logFormatConsoleStringConstant       = "console"
	jsonZapEncodingStringConstant        = "json"
	consoleZapEncodingStringConstant     = "console"
	standardErrorOutputPathConstant      = "stderr"
	unsupportedLogLevelTemplateConstant  = "unsupported log level: %s"
	unsupportedLogFormatTemplateConstant = "unsupported log format: %s"
	loggerBuildErrorTemplateConstant     = "unable to build logger: %w"
)

// LogLevel enumerates supported logging granularities.
type LogLevel string

// Exported log level constants for reuse across packages.
const (
	LogLevelDebug LogLevel = LogLevel(logLevelDebugStringConstant)
	LogLevelInfo  LogLevel = LogLevel(logLevelInfoStringConstant)
	LogLevelWarn  LogLevel = LogLevel(logLevelWarnStringConstant)
	LogLevelError LogLevel = LogLevel(logLevelErrorStringConstant)
)

// LogFormat enumerates supported logger output encodings.
type LogFormat string

// Exported log format constants for reuse across packages.
const (
	LogFormatStructured LogFormat = LogFormat(logFormatStructuredStringConstant)
	LogFormatConsole    LogFormat = LogFormat(logFormatConsoleStringConstant)
)

// LoggerFactory builds zap.Logger instances with consistent configuration.
type LoggerFactory struct {
	outputPaths []string
}

var logLevelMapping = map[LogLevel]zapcore.Level{
	LogLevelDebug: zapcore.DebugLevel,
	LogLevelInfo:  zapcore.InfoLevel,
	LogLevelWarn:  zapcore.WarnLevel,
	LogLevelError: zapcore.ErrorLevel,
}

var logFormatEncodingMapping = map[LogFormat]string{
	LogFormatStructured: jsonZapEncodingStringConstant,
	LogFormatConsole:    consoleZapEncodingStringConstant,
}

// NewLoggerFactory constructs a logger factory writing diagnostics to standard error.
func NewLoggerFactory() *LoggerFactory {
	return &LoggerFactory{outputPaths: []string{standardErrorOutputPathConstant}}
}

// NewLoggerFactoryWithOutputs constructs a logger factory writing to the provided zap sink paths.
func NewLoggerFactoryWithOutputs(outputPaths ...string) *LoggerFactory {
	return &LoggerFactory{outputPaths: append([]string(nil), outputPaths...)}
}

// ParseLogLevel normalizes a configured level, reporting unsupported values.
func ParseLogLevel(rawLogLevel string) (LogLevel, error) {
	candidate := LogLevel(strings.ToLower(strings.TrimSpace(rawLogLevel)))
	if _, supported := logLevelMapping[candidate]; !supported {
		return "", fmt.Errorf(unsupportedLogLevelTemplateConstant, rawLogLevel)
	}
	return candidate, nil
}

// ParseLogFormat normalizes a configured format, reporting unsupported values.
func ParseLogFormat(rawLogFormat string) (LogFormat, error) {
	candidate := LogFormat(strings.ToLower(strings.TrimSpace(rawLogFormat)))
	if _, supported := logFormatEncodingMapping[candidate]; !supported {
		return "", fmt.Errorf(unsupportedLogFormatTemplateConstant, rawLogFormat)
	}
	return candidate, nil
}

// CreateLogger produces a zap.Logger honoring the requested log level and format.
// The initial fields are attached to every entry the logger emits.
func (factory *LoggerFactory) CreateLogger(requestedLogLevel LogLevel, requestedLogFormat LogFormat, initialFields ...zap.Field) (*zap.Logger, error) {
	zapLogLevel, levelExists := logLevelMapping[requestedLogLevel]
	if !levelExists {
		return nil, fmt.Errorf(unsupportedLogLevelTemplateConstant, requestedLogLevel)
	}

	encoding, formatExists := logFormatEncodingMapping[requestedLogFormat]
	if !formatExists {
		return nil, fmt.Errorf(unsupportedLogFormatTemplateConstant, requestedLogFormat)
	}

	configuration := zap.NewProductionConfig()
	configuration.Level = zap.NewAtomicLevelAt(zapLogLevel)
	configuration.Encoding = encoding
	configuration.OutputPaths = factory.resolveOutputPaths()
	configuration.ErrorOutputPaths = factory.resolveOutputPaths()
	configuration.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if requestedLogFormat == LogFormatConsole {
		configuration.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		configuration.DisableStacktrace = true
	}

	logger, buildError := configuration.Build()
	if buildError != nil {
		return nil, fmt.Errorf(loggerBuildErrorTemplateConstant, buildError)
	}

	if len(initialFields) > 0 {
		logger = logger.With(initialFields...)
	}

	return logger, nil
}

func (factory *LoggerFactory) resolveOutputPaths() []string {
	if factory == nil || len(factory.outputPaths) == 0 {
		return []string{standardErrorOutputPathConstant}
	}
	return append([]string(nil), factory.outputPaths...)
}
