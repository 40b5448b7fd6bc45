package utils

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	configurationKeySeparatorConstant          = "."
	environmentKeySeparatorConstant            = "_"
	listSeparatorConstant                      = ","
	embeddedMergeErrorTemplateConstant         = "failed to merge embedded configuration: %w"
	configurationFileReadErrorTemplateConstant = "failed to read configuration: %w"
	configurationDecodeErrorTemplateConstant   = "failed to parse configuration: %w"
)

// ConfigurationDecodeHook converts textual durations and comma-separated lists while decoding.
func ConfigurationDecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(listSeparatorConstant),
	)
}

// LoadedConfiguration reports which sources contributed to a load.
type LoadedConfiguration struct {
	ConfigFileUsed          string
	EmbeddedDefaultsApplied bool
	EnvironmentOverrides    []string
}

// ConfigurationLoader layers embedded defaults, an optional file, and prefixed environment variables.
type ConfigurationLoader struct {
	configurationName string
	configurationType string
	environmentPrefix string
	searchPaths       []string
	embeddedDocument  []byte
	embeddedType      string
}

// NewConfigurationLoader creates a loader that searches known paths and respects an environment prefix.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	return &ConfigurationLoader{
		configurationName: configurationName,
		configurationType: configurationType,
		environmentPrefix: strings.ToUpper(strings.TrimSpace(environmentPrefix)),
		searchPaths:       append([]string(nil), searchPaths...),
	}
}

// SetEmbeddedConfiguration stores a document merged beneath any configuration file.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(configurationData []byte, configurationType string) {
	if loader == nil {
		return
	}
	loader.embeddedType = strings.TrimSpace(configurationType)
	loader.embeddedDocument = bytes.Clone(configurationData)
	if len(loader.embeddedDocument) == 0 {
		loader.embeddedDocument = nil
	}
}

// LoadConfiguration decodes the layered configuration into targetConfiguration.
// Precedence from lowest to highest: defaultValues, embedded document, configuration file, environment.
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, defaultValues map[string]any, targetConfiguration any) (LoadedConfiguration, error) {
	viperInstance := viper.New()
	viperInstance.SetConfigName(loader.configurationName)
	viperInstance.SetConfigType(loader.configurationType)

	loadedConfiguration := LoadedConfiguration{}

	embeddedApplied, embeddedError := loader.mergeEmbeddedDocument(viperInstance)
	if embeddedError != nil {
		return LoadedConfiguration{}, embeddedError
	}
	loadedConfiguration.EmbeddedDefaultsApplied = embeddedApplied

	for defaultKey, defaultValue := range defaultValues {
		viperInstance.SetDefault(defaultKey, defaultValue)
	}

	loader.bindEnvironment(viperInstance)

	if fileError := loader.mergeConfigurationFile(viperInstance, configurationFilePath); fileError != nil {
		return LoadedConfiguration{}, fileError
	}
	loadedConfiguration.ConfigFileUsed = viperInstance.ConfigFileUsed()
	loadedConfiguration.EnvironmentOverrides = loader.environmentOverrides(viperInstance)

	if decodeError := viperInstance.Unmarshal(targetConfiguration, viper.DecodeHook(ConfigurationDecodeHook())); decodeError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationDecodeErrorTemplateConstant, decodeError)
	}

	return loadedConfiguration, nil
}

func (loader *ConfigurationLoader) mergeEmbeddedDocument(viperInstance *viper.Viper) (bool, error) {
	if len(loader.embeddedDocument) == 0 {
		return false, nil
	}

	if len(loader.embeddedType) > 0 {
		viperInstance.SetConfigType(loader.embeddedType)
		defer viperInstance.SetConfigType(loader.configurationType)
	}

	if mergeError := viperInstance.MergeConfig(bytes.NewReader(loader.embeddedDocument)); mergeError != nil {
		return false, fmt.Errorf(embeddedMergeErrorTemplateConstant, mergeError)
	}
	return true, nil
}

func (loader *ConfigurationLoader) bindEnvironment(viperInstance *viper.Viper) {
	viperInstance.SetEnvPrefix(loader.environmentPrefix)
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(configurationKeySeparatorConstant, environmentKeySeparatorConstant))
	viperInstance.AutomaticEnv()
}

// mergeConfigurationFile tolerates a missing file only when searching; an explicit path must exist.
func (loader *ConfigurationLoader) mergeConfigurationFile(viperInstance *viper.Viper, configurationFilePath string) error {
	if len(configurationFilePath) > 0 {
		viperInstance.SetConfigFile(configurationFilePath)
	} else {
		for _, searchPath := range loader.searchPaths {
			viperInstance.AddConfigPath(searchPath)
		}
	}

	readError := viperInstance.MergeInConfig()
	if readError == nil {
		return nil
	}

	var notFoundError viper.ConfigFileNotFoundError
	if errors.As(readError, &notFoundError) {
		return nil
	}
	return fmt.Errorf(configurationFileReadErrorTemplateConstant, readError)
}

func (loader *ConfigurationLoader) environmentOverrides(viperInstance *viper.Viper) []string {
	overrides := make([]string, 0)
	for _, configurationKey := range viperInstance.AllKeys() {
		environmentName := loader.environmentName(configurationKey)
		if _, present := os.LookupEnv(environmentName); present {
			overrides = append(overrides, environmentName)
		}
	}
	sort.Strings(overrides)
	return overrides
}

func (loader *ConfigurationLoader) environmentName(configurationKey string) string {
	upperKey := strings.ToUpper(strings.ReplaceAll(configurationKey, configurationKeySeparatorConstant, environmentKeySeparatorConstant))
	if len(loader.environmentPrefix) == 0 {
		return upperKey
	}
	return loader.environmentPrefix + environmentKeySeparatorConstant + upperKey
}
