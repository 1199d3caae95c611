package config

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	domainconfig "github.com/felixgeelhaar/offline-agent/domain/config"
)

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema()

	if schema.Type != "object" {
		t.Errorf("Type = %s, want object", schema.Type)
	}

	required := make(map[string]bool)
	for _, r := range schema.Required {
		required[r] = true
	}
	for _, r := range []string{"name", "version", "origin"} {
		if !required[r] {
			t.Errorf("%s should be required", r)
		}
	}
}

// Every yaml key of AgentConfig has a schema property.
func TestGenerateSchema_CoversConfig(t *testing.T) {
	schema := GenerateSchema()

	typ := reflect.TypeOf(domainconfig.AgentConfig{})
	for i := 0; i < typ.NumField(); i++ {
		tag := strings.Split(typ.Field(i).Tag.Get("yaml"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		if _, ok := schema.Properties[tag]; !ok {
			t.Errorf("schema missing property %q", tag)
		}
	}
}

func TestGenerateSchema_StorageEnum(t *testing.T) {
	backend := GenerateSchema().Properties["storage"].Properties["backend"]

	want := []string{
		domainconfig.BackendMemory,
		domainconfig.BackendBadger,
		domainconfig.BackendSQLite,
		domainconfig.BackendRedis,
	}
	if !reflect.DeepEqual(backend.Enum, want) {
		t.Errorf("backend.Enum = %v, want %v", backend.Enum, want)
	}
}

func TestSchemaJSON(t *testing.T) {
	out, err := SchemaJSON()
	if err != nil {
		t.Fatalf("SchemaJSON() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("SchemaJSON() produced invalid JSON: %v", err)
	}
	if decoded["$schema"] != "https://json-schema.org/draft/2020-12/schema" {
		t.Errorf("$schema = %v", decoded["$schema"])
	}
}
