package config

import (
	"errors"
	"testing"

	domainconfig "github.com/felixgeelhaar/offline-agent/domain/config"
)

func TestEnvExpander_Expand(t *testing.T) {
	t.Setenv("OA_TEST_ORIGIN", "https://shop.example")
	t.Setenv("OA_TEST_EMPTY", "")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bracket syntax", "${OA_TEST_ORIGIN}", "https://shop.example"},
		{"dollar syntax", "$OA_TEST_ORIGIN", "https://shop.example"},
		{"embedded in text", "origin: ${OA_TEST_ORIGIN}/app", "origin: https://shop.example/app"},
		{"default used when unset", "${OA_TEST_UNSET:-v1}", "v1"},
		{"default used when empty", "${OA_TEST_EMPTY:-v2}", "v2"},
		{"default ignored when set", "${OA_TEST_ORIGIN:-x}", "https://shop.example"},
		{"unset without default", "a${OA_TEST_UNSET}b", "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &envExpander{}
			got, err := e.Expand(tt.input)
			if err != nil {
				t.Fatalf("Expand() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Expand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnvExpander_Required(t *testing.T) {
	e := &envExpander{}
	_, err := e.Expand("${OA_TEST_SECRET:?webhook secret}")
	if !errors.Is(err, domainconfig.ErrMissingEnvVar) {
		t.Fatalf("Expand() error = %v, want ErrMissingEnvVar", err)
	}
}

func TestEnvExpander_Strict(t *testing.T) {
	if _, err := ExpandEnvStrict("${OA_TEST_NOPE}"); !errors.Is(err, domainconfig.ErrMissingEnvVar) {
		t.Errorf("ExpandEnvStrict() error = %v, want ErrMissingEnvVar", err)
	}
	if got := ExpandEnv("${OA_TEST_NOPE}"); got != "" {
		t.Errorf("ExpandEnv() = %q, want empty", got)
	}
}
