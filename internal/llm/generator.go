package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/scrypster/recall/pkg/types"
)

// GeneratorConfig tunes the outbound embedding calls.
type GeneratorConfig struct {
	// Timeout bounds each provider request (default 30s).
	Timeout time.Duration

	// RequestsPerSecond limits outbound calls across all profiles. Zero
	// disables the limiter.
	RequestsPerSecond float64
	Burst             int

	// Breaker configures the per-profile circuit breakers.
	Breaker CircuitBreakerConfig

	// HTTPClient is shared by every provider client.
	HTTPClient *http.Client
}

// Generator is the embedding provider adapter. It dispatches a single
// text to the provider named by a profile and returns one vector.
// It never retries; failures come back as *ConfigurationError or
// *ProviderError.
type Generator struct {
	cfg     GeneratorConfig
	logger  *slog.Logger
	limiter *rate.Limiter
	client  *http.Client

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewGenerator creates a Generator. A nil logger uses slog.Default().
func NewGenerator(cfg GeneratorConfig, logger *slog.Logger) *Generator {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	g := &Generator{
		cfg:      cfg,
		logger:   logger.With("component", "embedding"),
		client:   client,
		breakers: make(map[string]*CircuitBreaker),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return g
}

// Generate embeds text using profile. creds resolves the profile's
// APIKeyRef and may be nil for providers that need no credential.
func (g *Generator) Generate(ctx context.Context, text string, profile *types.EmbeddingProfile, creds CredentialResolver) (*types.EmbeddingResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	embedder, err := g.embedderFor(ctx, profile, creds)
	if err != nil {
		return nil, err
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, &ProviderError{Provider: embedder.Provider(), Message: "rate limiter wait aborted", Err: err}
		}
	}

	breaker := g.breaker(profile)
	vector, err := breaker.Execute(ctx, func() ([]float32, error) {
		return embedder.Embed(ctx, text)
	})
	if err != nil {
		return nil, g.classify(embedder.Provider(), err)
	}

	if profile.Dimensions > 0 && len(vector) != profile.Dimensions {
		return nil, &ProviderError{
			Provider: embedder.Provider(),
			Message:  fmt.Sprintf("returned %d dimensions, profile expects %d", len(vector), profile.Dimensions),
		}
	}

	return &types.EmbeddingResult{
		Vector:     vector,
		Model:      embedder.GetModel(),
		Dimensions: len(vector),
		Provider:   embedder.Provider(),
	}, nil
}

// BreakerState reports the circuit state for profile, or "closed" if the
// profile has not been used yet.
func (g *Generator) BreakerState(profile *types.EmbeddingProfile) string {
	g.mu.Lock()
	cb, ok := g.breakers[breakerKey(profile)]
	g.mu.Unlock()
	if !ok {
		return "closed"
	}
	return cb.State()
}

func (g *Generator) embedderFor(ctx context.Context, profile *types.EmbeddingProfile, creds CredentialResolver) (Embedder, error) {
	if profile == nil {
		return nil, configErr("no embedding profile")
	}
	provider, err := types.ParseProvider(string(profile.Provider))
	if err != nil {
		return nil, &ConfigurationError{Reason: "invalid embedding profile", Err: err}
	}
	if profile.ModelName == "" {
		return nil, configErr("embedding profile %s has no model", profile.ID)
	}

	switch provider {
	case types.ProviderOpenAI:
		if creds == nil {
			return nil, configErr("no credential resolver for openai profile %s", profile.ID)
		}
		key, err := creds.ResolveCredential(ctx, profile)
		if err != nil {
			if IsConfigurationError(err) {
				return nil, err
			}
			return nil, &ConfigurationError{Reason: "failed to resolve credential", Err: err}
		}
		if key == "" {
			return nil, configErr("openai profile %s has no API key", profile.ID)
		}
		return NewOpenAIEmbedder(OpenAIEmbeddingConfig{
			APIKey:     key,
			Model:      profile.ModelName,
			BaseURL:    profile.BaseURL,
			Dimensions: profile.Dimensions,
			Timeout:    g.cfg.Timeout,
			HTTPClient: g.client,
		}), nil

	case types.ProviderOllama:
		return NewOllamaClient(OllamaConfig{
			BaseURL:    profile.BaseURL,
			Model:      profile.ModelName,
			Timeout:    g.cfg.Timeout,
			HTTPClient: g.client,
		}), nil
	}
	return nil, configErr("unsupported embedding provider %q", profile.Provider)
}

func (g *Generator) breaker(profile *types.EmbeddingProfile) *CircuitBreaker {
	key := breakerKey(profile)

	g.mu.Lock()
	defer g.mu.Unlock()

	cb, ok := g.breakers[key]
	if !ok {
		cfg := g.cfg.Breaker
		cfg.Name = key
		cb = NewCircuitBreakerWithConfig(cfg, g.logger)
		g.breakers[key] = cb
	}
	return cb
}

// classify makes sure every failure leaving Generate is typed.
func (g *Generator) classify(provider types.Provider, err error) error {
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return &ProviderError{Provider: provider, Message: "circuit breaker open", Err: err}
	case IsConfigurationError(err), IsProviderError(err):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return networkErr(provider, err)
	default:
		return &ProviderError{Provider: provider, Message: err.Error(), Err: err}
	}
}

// breakerKey identifies an endpoint. Profiles with an ID share nothing;
// ad hoc profiles are keyed by endpoint and model.
func breakerKey(profile *types.EmbeddingProfile) string {
	if profile.ID != "" {
		return "profile:" + profile.ID
	}
	return fmt.Sprintf("%s|%s|%s", profile.Provider, profile.BaseURL, profile.ModelName)
}
