package config

import (
	"encoding/json"
)

// JSONSchema represents a JSON Schema document.
type JSONSchema struct {
	Schema               string                 `json:"$schema,omitempty"`
	ID                   string                 `json:"$id,omitempty"`
	Title                string                 `json:"title,omitempty"`
	Description          string                 `json:"description,omitempty"`
	Type                 string                 `json:"type,omitempty"`
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Items                *JSONSchema            `json:"items,omitempty"`
	AdditionalProperties *JSONSchema            `json:"additionalProperties,omitempty"`
	Enum                 []string               `json:"enum,omitempty"`
	Default              any                    `json:"default,omitempty"`
	Minimum              *float64               `json:"minimum,omitempty"`
	Maximum              *float64               `json:"maximum,omitempty"`
	MinLength            *int                   `json:"minLength,omitempty"`
	MaxLength            *int                   `json:"maxLength,omitempty"`
	Pattern              string                 `json:"pattern,omitempty"`
	Format               string                 `json:"format,omitempty"`
	Ref                  string                 `json:"$ref,omitempty"`
	Definitions          map[string]*JSONSchema `json:"$defs,omitempty"`
	OneOf                []*JSONSchema          `json:"oneOf,omitempty"`
	AnyOf                []*JSONSchema          `json:"anyOf,omitempty"`
	AllOf                []*JSONSchema          `json:"allOf,omitempty"`
}

// GenerateSchema generates a JSON Schema for the AgentConfig.
func GenerateSchema() *JSONSchema {
	return &JSONSchema{
		Schema:      "https://json-schema.org/draft/2020-12/schema",
		ID:          "https://github.com/felixgeelhaar/offline-agent/agent-config.schema.json",
		Title:       "Offline Agent Configuration",
		Description: "Configuration schema for the offline request agent",
		Type:        "object",
		Required:    []string{"name", "version", "origin"},
		Properties: map[string]*JSONSchema{
			"name": {
				Type:        "string",
				Description: "A human-readable name for this configuration",
			},
			"version": {
				Type:        "string",
				Description: "Cache version tag installed and activated by the agent",
				Pattern:     `^\S+$`,
			},
			"description": {
				Type: "string",
			},
			"origin": {
				Type:        "string",
				Description: "Base URL requests are forwarded to",
				Format:      "uri",
			},
			"manifest": {
				Type:        "array",
				Description: "Static asset URLs fetched on install",
				Items:       &JSONSchema{Type: "string", MinLength: intPtr(1)},
			},
			"classifier":   generateClassifierSchema(),
			"storage":      generateStorageSchema(),
			"network":      generateNetworkSchema(),
			"install":      generateInstallSchema(),
			"replay":       generateReplaySchema(),
			"notification": generateNotificationSchema(),
			"logging":      generateLoggingSchema(),
			"telemetry":    generateTelemetrySchema(),
			"server": {
				Type: "object",
				Properties: map[string]*JSONSchema{
					"listen":           {Type: "string", Default: ":8080"},
					"shutdown_timeout": durationSchema("Graceful shutdown bound", "10s"),
				},
			},
		},
	}
}

func durationSchema(description string, def any) *JSONSchema {
	return &JSONSchema{
		Type:        "string",
		Description: description,
		Format:      "duration",
		Default:     def,
	}
}

func generateClassifierSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Request classification patterns",
		Properties: map[string]*JSONSchema{
			"static_patterns": {
				Type:        "array",
				Description: "Static asset patterns: *.ext suffixes, /dir/ prefixes or path globs",
				Items:       &JSONSchema{Type: "string", MinLength: intPtr(1)},
			},
			"api_prefixes": {
				Type:        "array",
				Description: "Path prefixes classified as API data",
				Items:       &JSONSchema{Type: "string", Pattern: "^/"},
			},
		},
	}
}

func generateStorageSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Persistence for cache stores and the deferred queue",
		Properties: map[string]*JSONSchema{
			"backend": {
				Type:    "string",
				Enum:    []string{"memory", "badger", "sqlite", "redis"},
				Default: "badger",
			},
			"dir":         {Type: "string", Description: "Badger data directory", Default: ".offline-agent"},
			"dsn":         {Type: "string", Description: "SQLite data source name"},
			"sync_writes": {Type: "boolean", Default: true},
			"redis": {
				Type: "object",
				Properties: map[string]*JSONSchema{
					"address":    {Type: "string"},
					"password":   {Type: "string"},
					"db":         {Type: "integer", Minimum: floatPtr(0)},
					"key_prefix": {Type: "string", Default: "offline-agent:"},
				},
			},
			"dynamic_max_entries": {
				Type:        "integer",
				Description: "Bound on dynamic store entries (memory backend)",
				Minimum:     floatPtr(0),
			},
		},
	}
}

func generateNetworkSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Outbound fetch settings",
		Properties: map[string]*JSONSchema{
			"timeout": durationSchema("Single fetch timeout", "10s"),
			"retry": {
				Type:        "object",
				Description: "Retry behavior for idempotent fetches",
				Properties: map[string]*JSONSchema{
					"enabled":       {Type: "boolean", Default: true},
					"max_attempts":  {Type: "integer", Minimum: floatPtr(1), Default: 3},
					"initial_delay": durationSchema("", "100ms"),
					"multiplier":    {Type: "number", Minimum: floatPtr(1), Default: 2.0},
				},
			},
			"circuit_breaker": {
				Type:        "object",
				Description: "Circuit breaker behavior",
				Properties: map[string]*JSONSchema{
					"enabled": {Type: "boolean", Default: true},
					"threshold": {
						Type:        "integer",
						Description: "Consecutive failures before opening",
						Minimum:     floatPtr(1),
						Default:     5,
					},
					"timeout": durationSchema("How long circuit stays open", "30s"),
				},
			},
			"bulkhead": {
				Type:        "object",
				Description: "Bulkhead behavior",
				Properties: map[string]*JSONSchema{
					"enabled":        {Type: "boolean", Default: true},
					"max_concurrent": {Type: "integer", Minimum: floatPtr(1), Default: 32},
				},
			},
		},
	}
}

func generateInstallSchema() *JSONSchema {
	return &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"concurrency": {Type: "integer", Minimum: floatPtr(0), Default: 4},
			"on_start":    {Type: "boolean", Default: true},
		},
	}
}

func generateReplaySchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Deferred operation replay",
		Properties: map[string]*JSONSchema{
			"rate":    {Type: "integer", Description: "Replays per second, 0 for unpaced", Minimum: floatPtr(0)},
			"burst":   {Type: "integer", Minimum: floatPtr(0)},
			"timeout": durationSchema("Single replay timeout", "15s"),
		},
	}
}

func generateNotificationSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Push hand-off",
		Properties: map[string]*JSONSchema{
			"enabled": {Type: "boolean", Default: false},
			"endpoint": {
				Type:     "object",
				Required: []string{"url"},
				Properties: map[string]*JSONSchema{
					"name":   {Type: "string"},
					"url":    {Type: "string", Format: "uri"},
					"secret": {Type: "string", Description: "HMAC signing secret"},
					"headers": {
						Type:                 "object",
						AdditionalProperties: &JSONSchema{Type: "string"},
					},
				},
			},
		},
	}
}

func generateLoggingSchema() *JSONSchema {
	return &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"level":  {Type: "string", Enum: []string{"trace", "debug", "info", "warn", "error"}, Default: "info"},
			"format": {Type: "string", Enum: []string{"json", "console"}, Default: "console"},
		},
	}
}

func generateTelemetrySchema() *JSONSchema {
	return &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"enabled":      {Type: "boolean", Default: false},
			"service_name": {Type: "string", Default: "offline-agent"},
			"traces":       {Type: "string", Enum: []string{"none", "stdout", "otlp"}, Default: "none"},
			"metrics":      {Type: "string", Enum: []string{"none", "stdout", "otlp", "prometheus"}, Default: "none"},
			"endpoint":     {Type: "string", Description: "OTLP gRPC collector address"},
			"sample_rate":  {Type: "number", Minimum: floatPtr(0), Maximum: floatPtr(1), Default: 1.0},
		},
	}
}

func floatPtr(f float64) *float64 {
	return &f
}

func intPtr(i int) *int {
	return &i
}

// SchemaJSON returns the JSON Schema as a JSON string.
func SchemaJSON() (string, error) {
	schema := GenerateSchema()
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
