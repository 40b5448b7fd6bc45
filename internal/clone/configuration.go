package clone

import (
	"strings"
	"time"
)

const (
	defaultEnvironmentVariableConstant   = "PANTHEON_ENVIRONMENT"
	defaultSiteNameVariableConstant      = "PANTHEON_SITE_NAME"
	defaultProductionEnvironmentConstant = "live"
	defaultSubdirectoryMarkerConstant    = "pantheonsite.io"
	defaultTablePrefixConstant           = "wp_"
	defaultExecutableConstant            = "wp"
	defaultMaxInFlightConstant           = 100
	defaultPollIntervalConstant          = time.Second
	defaultCommandTimeoutConstant        = 600 * time.Second
)

// CommandConfiguration captures persisted configuration for the sync-domains command.
type CommandConfiguration struct {
	EnvironmentVariable   string            `mapstructure:"environment_variable"`
	SiteNameVariable      string            `mapstructure:"site_name_variable"`
	ProductionEnvironment string            `mapstructure:"production_environment"`
	SubdirectoryMarker    string            `mapstructure:"subdirectory_marker"`
	TablePrefix           string            `mapstructure:"table_prefix"`
	Executable            string            `mapstructure:"executable"`
	MaxInFlight           int               `mapstructure:"max_in_flight"`
	PollInterval          time.Duration     `mapstructure:"poll_interval"`
	CommandTimeout        time.Duration     `mapstructure:"command_timeout"`
	DryRun                bool              `mapstructure:"dry_run"`
	MetricsFile           string            `mapstructure:"metrics_file"`
	Domains               map[string]string `mapstructure:"domains"`
}

// DefaultCommandConfiguration returns baseline configuration values for sync-domains.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		EnvironmentVariable:   defaultEnvironmentVariableConstant,
		SiteNameVariable:      defaultSiteNameVariableConstant,
		ProductionEnvironment: defaultProductionEnvironmentConstant,
		SubdirectoryMarker:    defaultSubdirectoryMarkerConstant,
		TablePrefix:           defaultTablePrefixConstant,
		Executable:            defaultExecutableConstant,
		MaxInFlight:           defaultMaxInFlightConstant,
		PollInterval:          defaultPollIntervalConstant,
		CommandTimeout:        defaultCommandTimeoutConstant,
		Domains: map[string]string{
			"live":    "mydomain.com",
			"lando":   "{site}.lndo.site",
			"default": "{environment}-{site}.pantheonsite.io",
		},
	}
}

// Sanitize trims configured values and restores defaults for blank or non-positive entries.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	defaults := DefaultCommandConfiguration()
	sanitized := configuration

	sanitized.EnvironmentVariable = trimmedOrDefault(configuration.EnvironmentVariable, defaults.EnvironmentVariable)
	sanitized.SiteNameVariable = trimmedOrDefault(configuration.SiteNameVariable, defaults.SiteNameVariable)
	sanitized.ProductionEnvironment = trimmedOrDefault(configuration.ProductionEnvironment, defaults.ProductionEnvironment)
	sanitized.SubdirectoryMarker = strings.TrimSpace(configuration.SubdirectoryMarker)
	sanitized.TablePrefix = trimmedOrDefault(configuration.TablePrefix, defaults.TablePrefix)
	sanitized.Executable = trimmedOrDefault(configuration.Executable, defaults.Executable)
	sanitized.MetricsFile = strings.TrimSpace(configuration.MetricsFile)

	if sanitized.MaxInFlight <= 0 {
		sanitized.MaxInFlight = defaults.MaxInFlight
	}
	if sanitized.PollInterval <= 0 {
		sanitized.PollInterval = defaults.PollInterval
	}
	if sanitized.CommandTimeout <= 0 {
		sanitized.CommandTimeout = defaults.CommandTimeout
	}

	sanitizedDomains := make(map[string]string, len(configuration.Domains))
	for environmentIdentifier, domainTemplate := range configuration.Domains {
		trimmedIdentifier := strings.TrimSpace(environmentIdentifier)
		trimmedTemplate := strings.TrimSpace(domainTemplate)
		if len(trimmedIdentifier) == 0 || len(trimmedTemplate) == 0 {
			continue
		}
		sanitizedDomains[trimmedIdentifier] = trimmedTemplate
	}
	if len(sanitizedDomains) == 0 {
		sanitizedDomains = defaults.Domains
	}
	sanitized.Domains = sanitizedDomains

	return sanitized
}

func trimmedOrDefault(value string, fallback string) string {
	trimmedValue := strings.TrimSpace(value)
	if len(trimmedValue) == 0 {
		return fallback
	}
	return trimmedValue
}
