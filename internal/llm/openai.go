package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/scrypster/recall/pkg/types"
)

// OpenAIEmbeddingConfig holds configuration for the OpenAI embedding client.
type OpenAIEmbeddingConfig struct {
	APIKey     string
	Model      string        // default: text-embedding-3-small
	BaseURL    string        // default: https://api.openai.com/v1
	Dimensions int           // zero means the model default
	Timeout    time.Duration // default: 30s
	HTTPClient *http.Client
}

// OpenAIEmbedder implements Embedder against any OpenAI-compatible
// /v1/embeddings endpoint.
type OpenAIEmbedder struct {
	cfg    OpenAIEmbeddingConfig
	client *openai.Client
}

// NewOpenAIEmbedder creates a new OpenAI embedding client. A base URL
// without a version path gets "/v1" appended.
func NewOpenAIEmbedder(cfg OpenAIEmbeddingConfig) *OpenAIEmbedder {
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = normalizeOpenAIBaseURL(cfg.BaseURL)
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIEmbedder{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

// Embed generates an embedding vector for the given text.
func (c *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(c.cfg.Model),
		Dimensions: c.cfg.Dimensions,
	})
	if err != nil {
		return nil, openAIError(err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &ProviderError{Provider: types.ProviderOpenAI, Message: "empty embedding"}
	}
	return resp.Data[0].Embedding, nil
}

// Provider returns types.ProviderOpenAI.
func (c *OpenAIEmbedder) Provider() types.Provider {
	return types.ProviderOpenAI
}

// GetModel returns the configured model name.
func (c *OpenAIEmbedder) GetModel() string {
	return c.cfg.Model
}

// openAIError maps go-openai errors onto ProviderError. Status 401 and 403
// mean the credential itself is unusable.
func openAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden {
			return &ConfigurationError{Reason: "openai rejected the credential", Err: &ProviderError{
				Provider: types.ProviderOpenAI, StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err,
			}}
		}
		return &ProviderError{Provider: types.ProviderOpenAI, StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &ProviderError{Provider: types.ProviderOpenAI, StatusCode: reqErr.HTTPStatusCode, Message: msg, Err: err}
	}

	return networkErr(types.ProviderOpenAI, err)
}

func normalizeOpenAIBaseURL(baseURL string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(baseURL, "/v1") {
		return baseURL
	}
	return baseURL + "/v1"
}

var _ Embedder = (*OpenAIEmbedder)(nil)
