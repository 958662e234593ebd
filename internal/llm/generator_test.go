package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/pkg/types"
)

func ollamaServer(t *testing.T, vector []float32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req embedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		_ = json.NewEncoder(w).Encode(embedResponse{Model: req.Model, Embeddings: [][]float32{vector}})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func failingServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func ollamaProfile(baseURL string) *types.EmbeddingProfile {
	return &types.EmbeddingProfile{ID: "p-ollama", Provider: types.ProviderOllama, BaseURL: baseURL, ModelName: "nomic-embed-text"}
}

func TestGenerator_OllamaSuccess(t *testing.T) {
	srv, _ := ollamaServer(t, []float32{0.1, 0.2, 0.3})
	g := NewGenerator(GeneratorConfig{}, nil)

	res, err := g.Generate(context.Background(), "hello", ollamaProfile(srv.URL), nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, res.Vector)
	assert.Equal(t, 3, res.Dimensions)
	assert.Equal(t, types.ProviderOllama, res.Provider)
	assert.Equal(t, "nomic-embed-text", res.Model)
}

func TestGenerator_EmptyText(t *testing.T) {
	g := NewGenerator(GeneratorConfig{}, nil)
	_, err := g.Generate(context.Background(), "  ", ollamaProfile("http://unused"), nil)
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestGenerator_Non2xxIsProviderError(t *testing.T) {
	srv, _ := failingServer(t, http.StatusInternalServerError, `{"error":"model not loaded"}`)
	g := NewGenerator(GeneratorConfig{}, nil)

	_, err := g.Generate(context.Background(), "hello", ollamaProfile(srv.URL), nil)
	require.Error(t, err)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, types.ProviderOllama, perr.Provider)
	assert.Equal(t, http.StatusInternalServerError, perr.StatusCode)
	assert.Equal(t, "model not loaded", perr.Message)
}

func TestGenerator_NetworkFailureIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := NewGenerator(GeneratorConfig{}, nil)
	_, err := g.Generate(context.Background(), "hello", ollamaProfile(url), nil)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Zero(t, perr.StatusCode)
	assert.Equal(t, "network error", perr.Message)
}

func TestGenerator_TimeoutIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	g := NewGenerator(GeneratorConfig{Timeout: 50 * time.Millisecond}, nil)
	_, err := g.Generate(context.Background(), "hello", ollamaProfile(srv.URL), nil)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "request timed out", perr.Message)
}

func TestGenerator_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	srv, calls := failingServer(t, http.StatusBadGateway, "upstream down")
	g := NewGenerator(GeneratorConfig{Breaker: CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Minute}}, nil)
	profile := ollamaProfile(srv.URL)

	for i := 0; i < 3; i++ {
		_, err := g.Generate(context.Background(), "hello", profile, nil)
		require.True(t, IsProviderError(err))
	}
	assert.Equal(t, "open", g.BreakerState(profile))

	_, err := g.Generate(context.Background(), "hello", profile, nil)
	require.True(t, IsProviderError(err))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(3), calls.Load(), "open circuit must not reach the endpoint")

	// Another profile has its own breaker.
	other := ollamaProfile(srv.URL)
	other.ID = "p-other"
	assert.Equal(t, "closed", g.BreakerState(other))
}

func TestGenerator_ProfileDimensionMismatch(t *testing.T) {
	srv, _ := ollamaServer(t, []float32{1, 2})
	g := NewGenerator(GeneratorConfig{}, nil)
	profile := ollamaProfile(srv.URL)
	profile.Dimensions = 3

	_, err := g.Generate(context.Background(), "hello", profile, nil)
	assert.True(t, IsProviderError(err))
}

func TestGenerator_InvalidProfiles(t *testing.T) {
	g := NewGenerator(GeneratorConfig{}, nil)
	ctx := context.Background()

	_, err := g.Generate(ctx, "x", nil, nil)
	assert.True(t, IsConfigurationError(err))

	_, err = g.Generate(ctx, "x", &types.EmbeddingProfile{Provider: "COHERE", ModelName: "m"}, nil)
	assert.True(t, IsConfigurationError(err))

	_, err = g.Generate(ctx, "x", &types.EmbeddingProfile{Provider: types.ProviderOllama}, nil)
	assert.True(t, IsConfigurationError(err))
}

func TestGenerator_OpenAIMissingCredential(t *testing.T) {
	g := NewGenerator(GeneratorConfig{}, nil)
	profile := &types.EmbeddingProfile{ID: "p", Provider: types.ProviderOpenAI, ModelName: "text-embedding-3-small", APIKeyRef: "env:RECALL_TEST_MISSING_KEY"}
	creds := EnvCredentialResolver{LookupEnv: func(string) (string, bool) { return "", false }}

	_, err := g.Generate(context.Background(), "hello", profile, creds)
	assert.True(t, IsConfigurationError(err))

	_, err = g.Generate(context.Background(), "hello", profile, nil)
	assert.True(t, IsConfigurationError(err))

	profile.APIKeyRef = ""
	_, err = g.Generate(context.Background(), "hello", profile, creds)
	assert.True(t, IsConfigurationError(err))
}

func TestGenerator_RateLimiterHonoursContext(t *testing.T) {
	srv, _ := ollamaServer(t, []float32{1})
	g := NewGenerator(GeneratorConfig{RequestsPerSecond: 0.001, Burst: 1}, nil)
	profile := ollamaProfile(srv.URL)

	_, err := g.Generate(context.Background(), "first", profile, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Generate(ctx, "second", profile, nil)
	assert.True(t, IsProviderError(err))
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")
	perr := &ProviderError{Provider: types.ProviderOpenAI, Message: "network error", Err: cause}
	assert.ErrorIs(t, perr, cause)
	assert.Contains(t, perr.Error(), "openai")

	cerr := &ConfigurationError{Reason: "no key", Err: cause}
	assert.ErrorIs(t, cerr, cause)
	assert.True(t, IsConfigurationError(cerr))
	assert.False(t, IsProviderError(cerr))
}

func TestGenerator_BadOllamaBodyHasNoStatus(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"malformed", `{"embeddings": [`, "malformed response"},
		{"empty", `{"embeddings": []}`, "empty embedding vector"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := failingServer(t, http.StatusOK, tt.body)
			g := NewGenerator(GeneratorConfig{}, nil)

			_, err := g.Generate(context.Background(), "hello", ollamaProfile(srv.URL), nil)
			var perr *ProviderError
			require.ErrorAs(t, err, &perr)
			assert.Zero(t, perr.StatusCode)
			assert.Equal(t, tt.message, perr.Message)
			assert.NotContains(t, perr.Error(), "status")
		})
	}
}
