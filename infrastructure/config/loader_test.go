package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	domainconfig "github.com/felixgeelhaar/offline-agent/domain/config"
)

const yamlConfig = `
name: shop
version: v3
origin: https://shop.example
manifest:
  - /index.html
  - /app.css
storage:
  backend: memory
network:
  timeout: 2s
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoader_LoadFile_YAML(t *testing.T) {
	path := writeFile(t, "agent.yaml", yamlConfig)

	cfg, err := NewLoaderWithOptions(WithOverrides(false)).LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Name != "shop" || cfg.Version != "v3" {
		t.Errorf("identity = %s/%s, want shop/v3", cfg.Name, cfg.Version)
	}
	if len(cfg.Manifest) != 2 {
		t.Errorf("Manifest = %v, want 2 entries", cfg.Manifest)
	}
	if cfg.Network.Timeout.Duration() != 2*time.Second {
		t.Errorf("Network.Timeout = %v, want 2s", cfg.Network.Timeout.Duration())
	}
	// Defaults survive for sections the file omits.
	if !cfg.Network.Retry.Enabled || cfg.Network.Retry.MaxAttempts != 3 {
		t.Errorf("Retry defaults lost: %+v", cfg.Network.Retry)
	}
	if cfg.Server.Listen != ":8080" {
		t.Errorf("Server.Listen = %q, want :8080", cfg.Server.Listen)
	}
}

func TestLoader_LoadFile_JSON(t *testing.T) {
	path := writeFile(t, "agent.json", `{
  "name": "shop",
  "version": "v4",
  "origin": "http://localhost:3000",
  "storage": {"backend": "sqlite", "dsn": ":memory:"},
  "replay": {"rate": 2, "burst": 2}
}`)

	cfg, err := NewLoaderWithOptions(WithOverrides(false)).LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Storage.Backend != domainconfig.BackendSQLite {
		t.Errorf("Storage.Backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Replay.Rate != 2 {
		t.Errorf("Replay.Rate = %d, want 2", cfg.Replay.Rate)
	}
}

func TestLoader_LoadFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr error
	}{
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
			wantErr: domainconfig.ErrConfigNotFound,
		},
		{
			name:    "directory",
			path:    func(t *testing.T) string { return t.TempDir() },
			wantErr: domainconfig.ErrInvalidFormat,
		},
		{
			name:    "unsupported extension",
			path:    func(t *testing.T) string { return writeFile(t, "agent.toml", "name = 1") },
			wantErr: domainconfig.ErrUnsupportedFormat,
		},
		{
			name:    "malformed yaml",
			path:    func(t *testing.T) string { return writeFile(t, "agent.yaml", "name: [") },
			wantErr: domainconfig.ErrInvalidFormat,
		},
		{
			name:    "invalid config",
			path:    func(t *testing.T) string { return writeFile(t, "agent.yaml", "name: shop\n") },
			wantErr: domainconfig.ErrValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoaderWithOptions(WithOverrides(false)).LoadFile(tt.path(t))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("LoadFile() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoader_EnvExpansionAndOverrides(t *testing.T) {
	t.Setenv("SHOP_ORIGIN", "https://staging.shop.example")
	t.Setenv("OFFLINE_AGENT_VERSION", "v5")

	cfg, err := NewLoader().LoadString(`
name: shop
version: v1
origin: ${SHOP_ORIGIN}
storage:
  backend: memory
`, FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}

	if cfg.Origin != "https://staging.shop.example" {
		t.Errorf("Origin = %q, want expanded value", cfg.Origin)
	}
	if cfg.Version != "v5" {
		t.Errorf("Version = %q, want override v5", cfg.Version)
	}
}

func TestLoader_WithoutValidation(t *testing.T) {
	cfg, err := NewLoaderWithOptions(WithValidation(false), WithOverrides(false)).
		LoadBytes([]byte(`{"name": "partial"}`), FormatJSON)
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if cfg.Name != "partial" {
		t.Errorf("Name = %q, want partial", cfg.Name)
	}
}

func TestLoader_StrictEnv(t *testing.T) {
	_, err := NewLoaderWithOptions(WithStrictEnv(true), WithOverrides(false)).
		LoadString("origin: ${OA_LOADER_UNSET}\n", FormatYAML)
	if !errors.Is(err, domainconfig.ErrMissingEnvVar) {
		t.Errorf("LoadString() error = %v, want ErrMissingEnvVar", err)
	}
}
