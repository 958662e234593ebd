package llm

import (
	"context"

	"github.com/scrypster/recall/pkg/types"
)

// Embedder generates a vector for one input string using one provider's
// call convention. Implementations return *ProviderError for upstream
// failures.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Provider() types.Provider
	GetModel() string
}

// CredentialResolver turns a profile's APIKeyRef into a usable secret.
type CredentialResolver interface {
	ResolveCredential(ctx context.Context, profile *types.EmbeddingProfile) (string, error)
}

// ProfileResolver returns the embedding profile to use for a user. An
// empty profileID selects the user's default.
type ProfileResolver interface {
	ResolveProfile(ctx context.Context, userID, profileID string) (*types.EmbeddingProfile, error)
}
