package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/recall/pkg/types"
)

var (
	// ErrEmptyText is returned when asked to embed an empty string.
	ErrEmptyText = errors.New("embedding text is empty")

	// ErrCircuitOpen is returned when the circuit breaker is in open state
	// and rejects requests to prevent cascading failures.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// ConfigurationError means no usable embedding profile or credential is
// available. It is an expected condition, not an incident.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding configuration: %s: %v", e.Reason, e.Err)
	}
	return "embedding configuration: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ProviderError means the upstream embedding service was unreachable or
// rejected the request. StatusCode is zero for network failures.
type ProviderError struct {
	Provider   types.Provider
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s embedding provider returned status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s embedding provider: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsProviderError reports whether err wraps a *ProviderError.
func IsProviderError(err error) bool {
	var target *ProviderError
	return errors.As(err, &target)
}

func configErr(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

func networkErr(provider types.Provider, err error) *ProviderError {
	msg := "network error"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "request timed out"
	}
	return &ProviderError{Provider: provider, Message: msg, Err: err}
}
