// Package utils exposes reusable helpers consumed by the CLI and the clone workflow.
//
// It houses the ConfigurationLoader and LoggerFactory abstractions that
// integrate Viper, environment variables, and zap logging, plus the progress
// writer used for operator-facing output.
package utils
