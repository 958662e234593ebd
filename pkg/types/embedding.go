package types

import (
	"fmt"
	"strings"
)

// Provider identifies an embedding service call convention.
type Provider string

const (
	ProviderOpenAI Provider = "OPENAI"
	ProviderOllama Provider = "OLLAMA"
)

// ParseProvider converts a case-insensitive provider name into a Provider.
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToUpper(strings.TrimSpace(s))) {
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	case ProviderOllama:
		return ProviderOllama, nil
	default:
		return "", fmt.Errorf("unsupported embedding provider: %q", s)
	}
}

// String returns the lower-case provider name used in logs and errors.
func (p Provider) String() string {
	return strings.ToLower(string(p))
}

// EmbeddingProfile is a user's configured embedding endpoint. At most one
// profile per owner has IsDefault set.
type EmbeddingProfile struct {
	ID        string   `json:"id" yaml:"id"`
	OwnerID   string   `json:"owner_id" yaml:"owner_id"` // User that owns the profile
	Provider  Provider `json:"provider" yaml:"provider"`
	APIKeyRef string   `json:"api_key_ref,omitempty" yaml:"api_key_ref,omitempty"`
	BaseURL   string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	ModelName string   `json:"model_name" yaml:"model_name"`

	// Dimensions requests a specific output size from providers that
	// support it. Zero means the model default.
	Dimensions int  `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	IsDefault  bool `json:"is_default" yaml:"is_default"`
}

// EmbeddingResult is a single generated embedding.
// Invariant: len(Vector) == Dimensions.
type EmbeddingResult struct {
	Vector     []float32 `json:"vector"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Provider   Provider  `json:"provider"`
}
