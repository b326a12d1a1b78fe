package secrets

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadSecretFromEnv(t *testing.T) {
	t.Setenv("TEST_TOKEN", "env-value")

	value, err := ReadSecret("TEST_TOKEN")
	if err != nil {
		t.Fatalf("ReadSecret: %v", err)
	}
	if value != "env-value" {
		t.Errorf("value = %q, want env-value", value)
	}
}

func TestReadSecretPrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  file-value\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_TOKEN", "env-value")
	t.Setenv("TEST_TOKEN_FILE", path)

	value, err := ReadSecret("TEST_TOKEN")
	if err != nil {
		t.Fatalf("ReadSecret: %v", err)
	}
	if value != "file-value" {
		t.Errorf("value = %q, file must win and be trimmed", value)
	}
}

func TestReadSecretMissingFile(t *testing.T) {
	t.Setenv("TEST_TOKEN_FILE", filepath.Join(t.TempDir(), "nope"))

	if _, err := ReadSecret("TEST_TOKEN"); err == nil {
		t.Fatal("expected error for unreadable secret file")
	}
}

func TestReadSecretNotFound(t *testing.T) {
	if _, err := ReadSecret("DEFINITELY_NOT_SET_ANYWHERE"); err == nil {
		t.Fatal("expected error")
	}
}

func TestReadSecretOrDefault(t *testing.T) {
	if got := ReadSecretOrDefault("DEFINITELY_NOT_SET_ANYWHERE", "fallback"); got != "fallback" {
		t.Errorf("got %q, want fallback", got)
	}

	t.Setenv("TEST_TOKEN", "real")
	if got := ReadSecretOrDefault("TEST_TOKEN", "fallback"); got != "real" {
		t.Errorf("got %q, want real", got)
	}
}
