package backend

import (
	"context"
	"errors"
	"strings"
)

// ErrCredentialRejected is wrapped by backends when the provider refuses the
// API credential.
var ErrCredentialRejected = errors.New("credential rejected by provider")

// GenerateOptions controls a single model call.
type GenerateOptions struct {
	Prompt string
	Model  string
	APIKey string
}

// Backend defines the interface for model providers.
type Backend interface {
	// CredentialKey is the config key holding the provider's API key.
	CredentialKey() string
	CheckCredential(apiKey string) error
	GetModels() []string
	// Generate performs exactly one blocking model call and returns its
	// text output. Any text captured before a failure is returned with the
	// error.
	Generate(ctx context.Context, opts GenerateOptions) (string, error)
}

// IsCredentialStatus reports whether a provider HTTP status (and message)
// means the API key itself was refused.
func IsCredentialStatus(code int, message string) bool {
	switch code {
	case 401, 403:
		return true
	case 400:
		lower := strings.ToLower(message)
		return strings.Contains(lower, "api key") || strings.Contains(lower, "api_key")
	default:
		return false
	}
}
