package utils_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/wpmu-clone/internal/utils"
)

const (
	testEnvironmentPrefixConstant      = "TESTWPMUCLONE"
	testLogLevelKeyConstant            = "common.log_level"
	testLogLevelEnvironmentConstant    = testEnvironmentPrefixConstant + "_COMMON_LOG_LEVEL"
	testPollIntervalEnvironmentConst   = testEnvironmentPrefixConstant + "_TOOLS_CLONE_POLL_INTERVAL"
	testConfigFileNameConstant         = "config.yaml"
	testConfigContentTemplateConstant  = "common:\n  log_level: %s\n"
	testConfigurationNameConstant      = "config"
	testConfigurationTypeConstant      = "yaml"
	testUserConfigurationDirectoryName = ".wpmu-clone"
)

type configurationFixture struct {
	Common configurationCommonFixture `mapstructure:"common"`
}

type configurationCommonFixture struct {
	LogLevel string `mapstructure:"log_level"`
}

func writeConfigurationFile(testInstance *testing.T, directory string, logLevel string) string {
	configurationFilePath := filepath.Join(directory, testConfigFileNameConstant)
	configurationContent := fmt.Sprintf(testConfigContentTemplateConstant, logLevel)
	require.NoError(testInstance, os.WriteFile(configurationFilePath, []byte(configurationContent), 0o600))
	return configurationFilePath
}

func TestConfigurationLoaderLayersSources(testInstance *testing.T) {
	testCases := []struct {
		name                string
		defaultLogLevel     string
		embeddedLogLevel    string
		fileLogLevel        string
		environmentLogLevel string
		expectedLogLevel    string
		expectEmbedded      bool
		expectOverrides     []string
	}{
		{
			name:             "defaults_only",
			defaultLogLevel:  "info",
			expectedLogLevel: "info",
			expectOverrides:  []string{},
		},
		{
			name:             "embedded_over_defaults",
			defaultLogLevel:  "info",
			embeddedLogLevel: "debug",
			expectedLogLevel: "debug",
			expectEmbedded:   true,
			expectOverrides:  []string{},
		},
		{
			name:             "file_over_embedded",
			defaultLogLevel:  "info",
			embeddedLogLevel: "debug",
			fileLogLevel:     "warn",
			expectedLogLevel: "warn",
			expectEmbedded:   true,
			expectOverrides:  []string{},
		},
		{
			name:                "environment_over_file",
			defaultLogLevel:     "info",
			embeddedLogLevel:    "debug",
			fileLogLevel:        "warn",
			environmentLogLevel: "error",
			expectedLogLevel:    "error",
			expectEmbedded:      true,
			expectOverrides:     []string{testLogLevelEnvironmentConstant},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			configurationFilePath := ""
			if len(testCase.fileLogLevel) > 0 {
				configurationFilePath = writeConfigurationFile(testInstance, testInstance.TempDir(), testCase.fileLogLevel)
			}
			if len(testCase.environmentLogLevel) > 0 {
				testInstance.Setenv(testLogLevelEnvironmentConstant, testCase.environmentLogLevel)
			}

			configurationLoader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, []string{testInstance.TempDir()})
			if len(testCase.embeddedLogLevel) > 0 {
				configurationLoader.SetEmbeddedConfiguration([]byte(fmt.Sprintf(testConfigContentTemplateConstant, testCase.embeddedLogLevel)), testConfigurationTypeConstant)
			}

			loadedConfiguration := configurationFixture{}
			metadata, loadError := configurationLoader.LoadConfiguration(configurationFilePath, map[string]any{testLogLevelKeyConstant: testCase.defaultLogLevel}, &loadedConfiguration)

			require.NoError(testInstance, loadError)
			require.Equal(testInstance, testCase.expectedLogLevel, loadedConfiguration.Common.LogLevel)
			require.Equal(testInstance, configurationFilePath, metadata.ConfigFileUsed)
			require.Equal(testInstance, testCase.expectEmbedded, metadata.EmbeddedDefaultsApplied)
			require.Equal(testInstance, testCase.expectOverrides, metadata.EnvironmentOverrides)
		})
	}
}

func TestConfigurationLoaderSearchesPathsInOrder(testInstance *testing.T) {
	workingDirectoryPath := testInstance.TempDir()
	systemDirectoryPath := filepath.Join(testInstance.TempDir(), testUserConfigurationDirectoryName)
	require.NoError(testInstance, os.MkdirAll(systemDirectoryPath, 0o755))

	searchPaths := []string{workingDirectoryPath, systemDirectoryPath}
	loadedConfiguration := configurationFixture{}

	systemConfigurationPath := writeConfigurationFile(testInstance, systemDirectoryPath, "warn")
	metadata, loadError := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, searchPaths).
		LoadConfiguration("", nil, &loadedConfiguration)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, "warn", loadedConfiguration.Common.LogLevel)
	require.Equal(testInstance, systemConfigurationPath, metadata.ConfigFileUsed)

	workingConfigurationPath := writeConfigurationFile(testInstance, workingDirectoryPath, "debug")
	metadata, loadError = utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, searchPaths).
		LoadConfiguration("", nil, &loadedConfiguration)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, "debug", loadedConfiguration.Common.LogLevel)
	require.Equal(testInstance, workingConfigurationPath, metadata.ConfigFileUsed)
}

type cloneConfigurationFixture struct {
	Tools struct {
		Clone struct {
			PollInterval   time.Duration     `mapstructure:"poll_interval"`
			CommandTimeout time.Duration     `mapstructure:"command_timeout"`
			MaxInFlight    int               `mapstructure:"max_in_flight"`
			Domains        map[string]string `mapstructure:"domains"`
		} `mapstructure:"clone"`
	} `mapstructure:"tools"`
}

func TestConfigurationLoaderDecodesDurationsAndOverrides(testInstance *testing.T) {
	embeddedConfiguration := "tools:\n  clone:\n    poll_interval: 1s\n    command_timeout: 10m\n    max_in_flight: 100\n    domains:\n      live: example.com\n      default: \"{environment}-{site}.pantheonsite.io\"\n"

	testInstance.Setenv(testPollIntervalEnvironmentConst, "250ms")

	configurationLoader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, []string{testInstance.TempDir()})
	configurationLoader.SetEmbeddedConfiguration([]byte(embeddedConfiguration), testConfigurationTypeConstant)

	loadedConfiguration := cloneConfigurationFixture{}
	metadata, loadError := configurationLoader.LoadConfiguration("", nil, &loadedConfiguration)
	require.NoError(testInstance, loadError)

	require.Equal(testInstance, 250*time.Millisecond, loadedConfiguration.Tools.Clone.PollInterval)
	require.Equal(testInstance, 10*time.Minute, loadedConfiguration.Tools.Clone.CommandTimeout)
	require.Equal(testInstance, 100, loadedConfiguration.Tools.Clone.MaxInFlight)
	require.Equal(testInstance, map[string]string{
		"live":    "example.com",
		"default": "{environment}-{site}.pantheonsite.io",
	}, loadedConfiguration.Tools.Clone.Domains)
	require.Equal(testInstance, []string{testPollIntervalEnvironmentConst}, metadata.EnvironmentOverrides)
}

func TestConfigurationLoaderRejectsMalformedSources(testInstance *testing.T) {
	testCases := []struct {
		name             string
		embeddedDocument string
		fileDocument     string
	}{
		{name: "malformed_file", fileDocument: "tools: [unterminated"},
		{name: "malformed_embedded", embeddedDocument: "common: [unterminated"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			configurationLoader := utils.NewConfigurationLoader(testConfigurationNameConstant, testConfigurationTypeConstant, testEnvironmentPrefixConstant, nil)
			configurationLoader.SetEmbeddedConfiguration([]byte(testCase.embeddedDocument), testConfigurationTypeConstant)

			configurationFilePath := ""
			if len(testCase.fileDocument) > 0 {
				configurationFilePath = filepath.Join(testInstance.TempDir(), testConfigFileNameConstant)
				require.NoError(testInstance, os.WriteFile(configurationFilePath, []byte(testCase.fileDocument), 0o600))
			}

			loadedConfiguration := configurationFixture{}
			_, loadError := configurationLoader.LoadConfiguration(configurationFilePath, nil, &loadedConfiguration)
			require.Error(testInstance, loadError)
		})
	}
}
