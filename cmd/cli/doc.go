// Package cli constructs the wpmu-clone command-line interface, wiring the
// Cobra command hierarchy, the Viper-backed configuration loader, and zap
// logging around the sync-domains command.
package cli
