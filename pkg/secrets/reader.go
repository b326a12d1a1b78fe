// Package secrets reads sensitive configuration from Docker secret
// files or environment variables.
package secrets

import (
	"fmt"
	"os"
	"strings"
)

// ReadSecret reads a secret from either a file (Docker secret) or environment variable.
// It first tries the _FILE suffix (Docker secret), then falls back to the env var itself.
func ReadSecret(envVar string) (string, error) {
	fileEnvVar := envVar + "_FILE"
	if secretFile := os.Getenv(fileEnvVar); secretFile != "" {
		content, err := os.ReadFile(secretFile)
		if err != nil {
			return "", fmt.Errorf("failed to read secret file %s: %w", secretFile, err)
		}
		return strings.TrimSpace(string(content)), nil
	}

	if value := os.Getenv(envVar); value != "" {
		return value, nil
	}

	return "", fmt.Errorf("secret not found: %s (tried both %s and %s)", envVar, fileEnvVar, envVar)
}

// ReadSecretOrDefault reads a secret with a default fallback value
func ReadSecretOrDefault(envVar, defaultValue string) string {
	value, err := ReadSecret(envVar)
	if err != nil {
		return defaultValue
	}
	return value
}

// MustReadSecret reads a secret and panics if it fails (use for required secrets)
func MustReadSecret(envVar string) string {
	value, err := ReadSecret(envVar)
	if err != nil {
		panic(fmt.Sprintf("required secret not found: %s", envVar))
	}
	return value
}
