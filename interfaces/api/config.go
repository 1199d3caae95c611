// Package api is the embeddable surface of the offline agent: configuration
// loading, runtime assembly from a configuration, and the HTTP handler.
// This file provides configuration-related exports.
package api

import (
	domainconfig "github.com/felixgeelhaar/offline-agent/domain/config"
	infraconfig "github.com/felixgeelhaar/offline-agent/infrastructure/config"
)

// Re-export domain configuration types.
type (
	// AgentConfig represents the complete agent configuration.
	AgentConfig = domainconfig.AgentConfig
	// ClassifierConfig lists the request classification patterns.
	ClassifierConfig = domainconfig.ClassifierConfig
	// StorageConfig selects the persistence backend.
	StorageConfig = domainconfig.StorageConfig
	// RedisConfig configures the redis store backend.
	RedisConfig = domainconfig.RedisConfig
	// NetworkConfig contains outbound fetch settings.
	NetworkConfig = domainconfig.NetworkConfig
	// InstallConfig configures version installs.
	InstallConfig = domainconfig.InstallConfig
	// ReplayConfig configures deferred operation replay.
	ReplayConfig = domainconfig.ReplayConfig
	// NotificationConfigSpec configures push hand-off.
	NotificationConfigSpec = domainconfig.NotificationConfig
	// EndpointConfigSpec configures a webhook endpoint.
	EndpointConfigSpec = domainconfig.EndpointConfig
	// TelemetryConfig configures tracing and metrics export.
	TelemetryConfig = domainconfig.TelemetryConfig
	// ServerConfig configures the HTTP surface.
	ServerConfig = domainconfig.ServerConfig
	// ConfigDuration is a time.Duration that supports JSON/YAML string representation.
	ConfigDuration = domainconfig.Duration

	// ValidationError represents a configuration validation error.
	ValidationError = domainconfig.ValidationError
	// ValidationErrors is a collection of validation errors.
	ValidationErrors = domainconfig.ValidationErrors
)

// Re-export infrastructure configuration types.
type (
	// ConfigLoader loads agent configuration from files.
	ConfigLoader = infraconfig.Loader
	// ConfigLoaderOption configures the loader.
	ConfigLoaderOption = infraconfig.LoaderOption
	// JSONSchema represents a JSON Schema document.
	JSONSchema = infraconfig.JSONSchema
)

// Configuration format constants.
const (
	// ConfigFormatYAML is the YAML format.
	ConfigFormatYAML = infraconfig.FormatYAML
	// ConfigFormatJSON is the JSON format.
	ConfigFormatJSON = infraconfig.FormatJSON
)

// Configuration errors.
var (
	// ErrConfigNotFound indicates the configuration file was not found.
	ErrConfigNotFound = domainconfig.ErrConfigNotFound
	// ErrInvalidFormat indicates the configuration format is invalid.
	ErrInvalidFormat = domainconfig.ErrInvalidFormat
	// ErrUnsupportedFormat indicates the file format is not supported.
	ErrUnsupportedFormat = domainconfig.ErrUnsupportedFormat
	// ErrValidationFailed indicates configuration validation failed.
	ErrValidationFailed = domainconfig.ErrValidationFailed
	// ErrMissingEnvVar indicates a required environment variable is not set.
	ErrMissingEnvVar = domainconfig.ErrMissingEnvVar
)

// NewConfigLoader creates a new configuration loader with default settings.
func NewConfigLoader() *ConfigLoader {
	return infraconfig.NewLoader()
}

// NewConfigLoaderWithOptions creates a loader with the specified options.
func NewConfigLoaderWithOptions(opts ...ConfigLoaderOption) *ConfigLoader {
	return infraconfig.NewLoaderWithOptions(opts...)
}

// ConfigWithEnvExpansion enables or disables environment variable expansion.
func ConfigWithEnvExpansion(enabled bool) ConfigLoaderOption {
	return infraconfig.WithEnvExpansion(enabled)
}

// ConfigWithStrictEnv enables strict environment variable checking.
func ConfigWithStrictEnv(enabled bool) ConfigLoaderOption {
	return infraconfig.WithStrictEnv(enabled)
}

// ConfigWithOverrides enables or disables OFFLINE_AGENT_* overrides.
func ConfigWithOverrides(enabled bool) ConfigLoaderOption {
	return infraconfig.WithOverrides(enabled)
}

// ConfigWithValidation enables or disables configuration validation.
func ConfigWithValidation(enabled bool) ConfigLoaderOption {
	return infraconfig.WithValidation(enabled)
}

// NewConfigValidator creates a new configuration validator.
func NewConfigValidator() *domainconfig.Validator {
	return domainconfig.NewValidator()
}

// DefaultAgentConfig returns the default configuration.
func DefaultAgentConfig() *AgentConfig {
	cfg := domainconfig.Default()
	return &cfg
}

// GenerateConfigSchema generates a JSON Schema for the AgentConfig.
func GenerateConfigSchema() *JSONSchema {
	return infraconfig.GenerateSchema()
}

// ConfigSchemaJSON returns the configuration JSON Schema as a JSON string.
func ConfigSchemaJSON() (string, error) {
	return infraconfig.SchemaJSON()
}

// ExpandEnv expands environment variables in a string.
// Supported patterns: ${VAR}, ${VAR:-default}, ${VAR:?error}
func ExpandEnv(input string) string {
	return infraconfig.ExpandEnv(input)
}
