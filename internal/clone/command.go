package clone

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/xid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/temirov/wpmu-clone/internal/execshell"
	"github.com/temirov/wpmu-clone/internal/metrics"
	"github.com/temirov/wpmu-clone/internal/multisite"
	"github.com/temirov/wpmu-clone/internal/procpool"
	"github.com/temirov/wpmu-clone/internal/utils"
	"github.com/temirov/wpmu-clone/internal/wpcli"
)

const (
	commandUseConstant                    = "sync-domains"
	commandShortDescriptionConstant       = "Rewrite multisite domains after a database clone"
	commandLongDescriptionConstant        = "sync-domains points every tenant of a freshly cloned multisite database at the current environment's domain and rewrites embedded URLs with background wp search-replace processes."
	dryRunFlagNameConstant                = "dry-run"
	dryRunFlagUsageConstant               = "Print the remap plan without modifying the database"
	maxInFlightFlagNameConstant           = "max-in-flight"
	maxInFlightFlagUsageConstant          = "Maximum number of concurrent search-replace processes"
	metricsFileFlagNameConstant           = "metrics-file"
	metricsFileFlagUsageConstant          = "Write Prometheus textfile metrics to this path after the run"
	environmentFlagNameConstant           = "environment"
	environmentFlagUsageConstant          = "Environment identifier, overriding the configured environment variable"
	executorCreationErrorTemplateConstant = "unable to construct command executor: %w"
	metricsCreationErrorTemplateConstant  = "unable to construct metrics recorder: %w"
	syncFailureTemplateConstant           = "domain synchronization failed: %w"
	missingEnvironmentTemplateConstant    = "%w: %s is not set. Aborting"
	logFieldRunIdentifierConstant         = "run_id"
	logFieldOutcomeConstant               = "outcome"
	logMessageSyncFinishedConstant        = "sync-domains finished"
	logMessageMetricsExportFailedConstant = "metrics export failed"
	logFieldMetricsFileConstant           = "metrics_file"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// EnvironmentLookup reads a process environment variable.
type EnvironmentLookup func(name string) (string, bool)

// ServiceProvider constructs a synchronization executor from dependencies.
type ServiceProvider func(dependencies ServiceDependencies) (SyncExecutor, error)

// SyncExecutor runs the synchronization workflow.
type SyncExecutor interface {
	Execute(executionContext context.Context, options SyncOptions) (SyncResult, error)
}

// CommandBuilder assembles the sync-domains Cobra command.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	Executor                     wpcli.CommandExecutor
	EnvironmentLookup            EnvironmentLookup
	ProgressWriter               io.Writer
	ServiceProvider              ServiceProvider
	Sleeper                      procpool.Sleeper
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() CommandConfiguration
}

type commandOptions struct {
	configuration         CommandConfiguration
	environmentIdentifier string
	siteName              string
	debugLoggingEnabled   bool
}

// Build constructs the sync-domains command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.run,
	}

	defaults := builder.resolveConfiguration()
	command.Flags().Bool(dryRunFlagNameConstant, defaults.DryRun, dryRunFlagUsageConstant)
	command.Flags().Int(maxInFlightFlagNameConstant, defaults.MaxInFlight, maxInFlightFlagUsageConstant)
	command.Flags().String(metricsFileFlagNameConstant, defaults.MetricsFile, metricsFileFlagUsageConstant)
	command.Flags().String(environmentFlagNameConstant, "", environmentFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	options := builder.parseOptions(command)
	configuration := options.configuration

	runIdentifier := xid.New().String()
	contextAccessor := utils.NewCommandContextAccessor()
	executionContext := contextAccessor.WithRunIdentifier(command.Context(), runIdentifier)

	logger := builder.resolveLogger(options.debugLoggingEnabled).With(zap.String(logFieldRunIdentifierConstant, runIdentifier))
	progressWriter := utils.NewProgressWriter(builder.resolveProgressWriter(command))

	environment := multisite.NewEnvironment(options.environmentIdentifier, configuration.ProductionEnvironment)

	executor, executorError := builder.resolveExecutor(logger, configuration)
	if executorError != nil {
		return fmt.Errorf(executorCreationErrorTemplateConstant, executorError)
	}

	recorder, recorderError := metrics.NewRecorder()
	if recorderError != nil {
		return fmt.Errorf(metricsCreationErrorTemplateConstant, recorderError)
	}

	pool := procpool.NewPool(procpool.Dependencies{
		Logger:         logger,
		ProgressWriter: progressWriter,
		Recorder:       recorder,
		Sleeper:        builder.Sleeper,
	}, configuration.PollInterval)

	service, serviceError := builder.resolveService(ServiceDependencies{
		Logger:            logger,
		OperationsFactory: newOperationsFactory(executor, configuration.TablePrefix),
		ProcessPool:       pool,
		ProgressWriter:    progressWriter,
	})
	if serviceError != nil {
		return serviceError
	}

	resolver := multisite.NewDomainResolver(
		multisite.DomainTable(configuration.Domains),
		options.siteName,
		configuration.ProductionEnvironment,
		configuration.SubdirectoryMarker,
	)

	result, syncError := service.Execute(executionContext, SyncOptions{
		Environment:   environment,
		Resolver:      resolver,
		TablePrefix:   configuration.TablePrefix,
		MaxInFlight:   configuration.MaxInFlight,
		DryRun:        configuration.DryRun,
		RunIdentifier: runIdentifier,
	})

	if exportError := recorder.WriteTextfile(configuration.MetricsFile); exportError != nil {
		logger.Warn(logMessageMetricsExportFailedConstant, zap.String(logFieldMetricsFileConstant, configuration.MetricsFile), zap.Error(exportError))
	}

	if syncError != nil {
		if errors.Is(syncError, multisite.ErrMissingEnvironment) {
			return fmt.Errorf(missingEnvironmentTemplateConstant, syncError, configuration.EnvironmentVariable)
		}
		return fmt.Errorf(syncFailureTemplateConstant, syncError)
	}

	logger.Info(logMessageSyncFinishedConstant, zap.String(logFieldOutcomeConstant, string(result.Outcome)), zap.String(logFieldStageConstant, string(result.Stage)))
	return nil
}

func (builder *CommandBuilder) parseOptions(command *cobra.Command) commandOptions {
	configuration := builder.resolveConfiguration()

	debugEnabled := false
	if command != nil {
		contextAccessor := utils.NewCommandContextAccessor()
		if logLevel, available := contextAccessor.LogLevel(command.Context()); available {
			debugEnabled = strings.EqualFold(logLevel, string(utils.LogLevelDebug))
		}
	}

	environmentIdentifier := builder.lookupEnvironment(configuration.EnvironmentVariable)
	siteName := builder.lookupEnvironment(configuration.SiteNameVariable)

	if command != nil {
		flagSet := command.Flags()
		if flagSet.Changed(dryRunFlagNameConstant) {
			configuration.DryRun, _ = flagSet.GetBool(dryRunFlagNameConstant)
		}
		if flagSet.Changed(maxInFlightFlagNameConstant) {
			maxInFlight, _ := flagSet.GetInt(maxInFlightFlagNameConstant)
			if maxInFlight > 0 {
				configuration.MaxInFlight = maxInFlight
			}
		}
		if flagSet.Changed(metricsFileFlagNameConstant) {
			metricsFile, _ := flagSet.GetString(metricsFileFlagNameConstant)
			configuration.MetricsFile = strings.TrimSpace(metricsFile)
		}
		if flagSet.Changed(environmentFlagNameConstant) {
			environmentOverride, _ := flagSet.GetString(environmentFlagNameConstant)
			environmentIdentifier = strings.TrimSpace(environmentOverride)
		}
	}

	return commandOptions{
		configuration:         configuration,
		environmentIdentifier: environmentIdentifier,
		siteName:              siteName,
		debugLoggingEnabled:   debugEnabled,
	}
}

func (builder *CommandBuilder) lookupEnvironment(variableName string) string {
	lookup := builder.EnvironmentLookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	value, _ := lookup(variableName)
	return strings.TrimSpace(value)
}

func (builder *CommandBuilder) resolveLogger(enableDebug bool) *zap.Logger {
	var logger *zap.Logger
	if builder.LoggerProvider != nil {
		logger = builder.LoggerProvider()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if enableDebug {
		logger = logger.WithOptions(zap.IncreaseLevel(zapcore.DebugLevel))
	}
	return logger
}

func (builder *CommandBuilder) resolveProgressWriter(command *cobra.Command) io.Writer {
	if builder.ProgressWriter != nil {
		return builder.ProgressWriter
	}
	if command != nil {
		return command.OutOrStdout()
	}
	return os.Stdout
}

func (builder *CommandBuilder) resolveExecutor(logger *zap.Logger, configuration CommandConfiguration) (wpcli.CommandExecutor, error) {
	if builder.Executor != nil {
		return builder.Executor, nil
	}

	humanReadableLogging := false
	if builder.HumanReadableLoggingProvider != nil {
		humanReadableLogging = builder.HumanReadableLoggingProvider()
	}

	shellExecutor, creationError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), execshell.ExecutorSettings{
		Executable:           execshell.CommandName(configuration.Executable),
		CommandTimeout:       configuration.CommandTimeout,
		HumanReadableLogging: humanReadableLogging,
	})
	if creationError != nil {
		return nil, creationError
	}
	return shellExecutor, nil
}

func (builder *CommandBuilder) resolveService(dependencies ServiceDependencies) (SyncExecutor, error) {
	if builder.ServiceProvider != nil {
		return builder.ServiceProvider(dependencies)
	}
	return NewService(dependencies)
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}

	provided := builder.ConfigurationProvider()
	return provided.Sanitize()
}

func newOperationsFactory(executor wpcli.CommandExecutor, tablePrefix string) OperationsFactory {
	return func(networkURL string) (WordPressOperations, error) {
		client, clientError := wpcli.NewClient(executor, wpcli.ClientSettings{TablePrefix: tablePrefix, NetworkURL: networkURL})
		if clientError != nil {
			return nil, clientError
		}
		return client, nil
	}
}
