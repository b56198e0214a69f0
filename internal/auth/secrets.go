// Package auth loads Medium session cookies and webhook secrets.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrSecretNotFound is returned when a secret source has no value.
var ErrSecretNotFound = errors.New("secret not found")

// SecretSource reads a raw secret value.
type SecretSource interface {
	Secret(ctx context.Context) (string, error)
}

// EnvSecret reads a secret from an environment variable.
type EnvSecret string

// Secret implements SecretSource.
func (e EnvSecret) Secret(context.Context) (string, error) {
	value, ok := os.LookupEnv(string(e))
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: env %s", ErrSecretNotFound, string(e))
	}
	return value, nil
}

// FileSecret reads a secret from a file, for mounted secret volumes.
type FileSecret string

// Secret implements SecretSource.
func (f FileSecret) Secret(context.Context) (string, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: file %s", ErrSecretNotFound, string(f))
		}
		return "", fmt.Errorf("read secret file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("%w: file %s is empty", ErrSecretNotFound, string(f))
	}
	return string(data), nil
}

// StaticSecret returns a fixed value.
type StaticSecret string

// Secret implements SecretSource.
func (s StaticSecret) Secret(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrSecretNotFound
	}
	return string(s), nil
}

// SourceFor picks a SecretSource: a file path wins over an env var name, and
// a literal value is used when neither is set.
func SourceFor(file, env, literal string) SecretSource {
	switch {
	case strings.TrimSpace(file) != "":
		return FileSecret(file)
	case strings.TrimSpace(env) != "":
		return EnvSecret(env)
	default:
		return StaticSecret(literal)
	}
}
