package llm

import (
	"context"
	"os"
	"strings"

	"github.com/scrypster/recall/pkg/types"
)

// envRefPrefix marks an APIKeyRef that names an environment variable.
const envRefPrefix = "env:"

// EnvCredentialResolver resolves "env:NAME" references from the process
// environment. Any other non-empty reference is treated as the secret
// itself.
type EnvCredentialResolver struct {
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// ResolveCredential implements CredentialResolver. An empty reference
// resolves to an empty credential.
func (r EnvCredentialResolver) ResolveCredential(_ context.Context, profile *types.EmbeddingProfile) (string, error) {
	if profile == nil || profile.APIKeyRef == "" {
		return "", nil
	}

	name, ok := strings.CutPrefix(profile.APIKeyRef, envRefPrefix)
	if !ok {
		return profile.APIKeyRef, nil
	}

	lookup := r.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	value, found := lookup(name)
	if !found || value == "" {
		return "", configErr("credential environment variable %s is not set", name)
	}
	return value, nil
}

var _ CredentialResolver = EnvCredentialResolver{}
