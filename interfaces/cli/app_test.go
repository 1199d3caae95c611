package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/felixgeelhaar/offline-agent/domain/event"
	"github.com/felixgeelhaar/offline-agent/domain/queue"
)

func TestApp_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"version"})
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "offline-agent version") {
		t.Errorf("version output missing 'offline-agent version', got: %s", output)
	}
}

func TestApp_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)

	err := app.ExecuteWithArgs(context.Background(), []string{"--help"})
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}

	output := stdout.String()
	for _, want := range []string{"versioned caches", "serve", "install", "activate", "drain", "queue", "validate"} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q, got: %s", want, output)
		}
	}
}

func writeConfig(t *testing.T, origin, dir string) string {
	t.Helper()

	content := `
name: test-agent
version: v1
origin: ` + origin + `
manifest:
  - /index.html
  - /app.css
storage:
  backend: badger
  dir: ` + filepath.Join(dir, "data") + `
network:
  retry:
    enabled: false
logging:
  level: error
`
	path := filepath.Join(dir, "offline-agent.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)
	err := app.ExecuteWithArgs(context.Background(), args)
	return stdout.String(), err
}

func TestApp_Validate(t *testing.T) {
	configPath := writeConfig(t, "https://app.example", t.TempDir())

	output, err := run(t, "validate", "-c", configPath)
	if err != nil {
		t.Fatalf("validate command failed: %v", err)
	}
	if !strings.Contains(output, "valid") || !strings.Contains(output, "Manifest entries: 2") {
		t.Errorf("unexpected validate output: %s", output)
	}
}

func TestApp_ValidateInvalid(t *testing.T) {
	content := `
name: ""
version: ""
origin: "not a url"
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := run(t, "validate", "-c", configPath); err == nil {
		t.Error("validate should fail for invalid config")
	}
}

func TestApp_ValidateRequiresPath(t *testing.T) {
	if _, err := run(t, "validate"); err == nil {
		t.Error("validate without -c should fail")
	}
}

func TestApp_ValidateShowSchema(t *testing.T) {
	output, err := run(t, "validate", "--schema")
	if err != nil {
		t.Fatalf("validate --schema failed: %v", err)
	}
	if !strings.Contains(output, "$schema") {
		t.Errorf("schema output missing $schema, got: %s", output)
	}
}

func TestApp_ExportSchemaToFile(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "schema.json")

	output, err := run(t, "export-schema", "-o", outputPath)
	if err != nil {
		t.Fatalf("export-schema failed: %v", err)
	}
	if !strings.Contains(output, "Schema exported") {
		t.Errorf("unexpected output: %s", output)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("failed to read schema file: %v", err)
	}
	if !json.Valid(data) {
		t.Error("exported schema is not valid JSON")
	}
}

// newOrigin serves every GET and counts POSTs.
func newOrigin(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()

	var posts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			posts.Add(1)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = io.WriteString(w, "asset:"+r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv, &posts
}

func TestApp_InstallActivateStatus(t *testing.T) {
	origin, _ := newOrigin(t)
	configPath := writeConfig(t, origin.URL, t.TempDir())

	output, err := run(t, "install", "-c", configPath)
	if err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if !strings.Contains(output, "Installed v1") {
		t.Errorf("install output = %s", output)
	}

	// State is read back from storage by a fresh process.
	output, err = run(t, "activate", "-c", configPath)
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if !strings.Contains(output, "Activated v1") {
		t.Errorf("activate output = %s", output)
	}

	output, err = run(t, "status", "-c", configPath)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(output, "Active version: v1") {
		t.Errorf("status output = %s", output)
	}

	if _, err := run(t, "activate", "-c", configPath, "v9"); err == nil {
		t.Error("activating an uninstalled version should fail")
	}
}

func TestApp_QueueAppendListDrain(t *testing.T) {
	origin, posts := newOrigin(t)
	configPath := writeConfig(t, origin.URL, t.TempDir())

	for _, path := range []string{"/api/orders", "/api/orders"} {
		if _, err := run(t, "queue", "append", "-c", configPath, "-d", `{"sku":"A1"}`, "-H", "Content-Type: application/json", path); err != nil {
			t.Fatalf("queue append failed: %v", err)
		}
	}

	output, err := run(t, "queue", "list", "-c", configPath, "--json")
	if err != nil {
		t.Fatalf("queue list failed: %v", err)
	}
	var ops []queue.Operation
	if err := json.Unmarshal([]byte(output), &ops); err != nil {
		t.Fatalf("decode queue: %v (%s)", err, output)
	}
	if len(ops) != 2 || ops[0].Sequence >= ops[1].Sequence {
		t.Fatalf("queue = %+v, want two ordered operations", ops)
	}
	if ops[0].Payload.URL != origin.URL+"/api/orders" {
		t.Errorf("URL = %q, want resolved against origin", ops[0].Payload.URL)
	}
	if ops[0].Payload.Header.Get("Content-Type") != "application/json" {
		t.Errorf("header not recorded: %v", ops[0].Payload.Header)
	}

	output, err = run(t, "drain", "-c", configPath, "--json")
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	var report event.DrainReport
	if err := json.Unmarshal([]byte(output), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Replayed != 2 || report.Remaining != 0 {
		t.Errorf("report = %+v, want 2 replayed", report)
	}
	if posts.Load() != 2 {
		t.Errorf("origin received %d posts, want 2", posts.Load())
	}
}

func TestApp_QueueAppendRejectsBadHeader(t *testing.T) {
	configPath := writeConfig(t, "https://app.example", t.TempDir())

	if _, err := run(t, "queue", "append", "-c", configPath, "-H", "no-colon", "/api/x"); err == nil {
		t.Error("append with malformed header should fail")
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"/api/orders", "https://app.example/api/orders"},
		{"api/orders?x=1", "https://app.example/api/orders?x=1"},
		{"https://other.example/y", "https://other.example/y"},
	}

	for _, tt := range tests {
		got, err := resolveURL("https://app.example/", tt.raw)
		if err != nil {
			t.Fatalf("resolveURL(%q) error = %v", tt.raw, err)
		}
		if got != tt.want {
			t.Errorf("resolveURL(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
