package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// StoreProfileResolver looks profiles up in a storage.ProfileStore.
type StoreProfileResolver struct {
	Store storage.ProfileStore
}

// ResolveProfile implements ProfileResolver. Missing profiles are
// configuration errors; other store failures are returned as is.
func (r StoreProfileResolver) ResolveProfile(ctx context.Context, userID, profileID string) (*types.EmbeddingProfile, error) {
	if profileID != "" {
		profile, err := r.Store.GetProfile(ctx, profileID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, configErr("embedding profile %s not found", profileID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load embedding profile: %w", err)
		}
		if userID != "" && profile.OwnerID != userID {
			return nil, configErr("embedding profile %s does not belong to user %s", profileID, userID)
		}
		return profile, nil
	}

	if userID == "" {
		return nil, configErr("no user to resolve a default embedding profile for")
	}
	profile, err := r.Store.GetDefaultProfile(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, configErr("user %s has no default embedding profile", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load default embedding profile: %w", err)
	}
	return profile, nil
}

// StaticProfileResolver always answers with one profile, typically built
// from configuration. It only matches an explicit profileID equal to its
// own ID.
type StaticProfileResolver struct {
	Profile *types.EmbeddingProfile
}

// ResolveProfile implements ProfileResolver.
func (r StaticProfileResolver) ResolveProfile(_ context.Context, _, profileID string) (*types.EmbeddingProfile, error) {
	if r.Profile == nil {
		return nil, configErr("no default embedding profile configured")
	}
	if profileID != "" && profileID != r.Profile.ID {
		return nil, configErr("embedding profile %s not configured", profileID)
	}
	p := *r.Profile
	return &p, nil
}

// ChainProfileResolver tries each resolver in order, moving on only when a
// resolver reports a configuration error.
type ChainProfileResolver []ProfileResolver

// ResolveProfile implements ProfileResolver.
func (c ChainProfileResolver) ResolveProfile(ctx context.Context, userID, profileID string) (*types.EmbeddingProfile, error) {
	var last error
	for _, r := range c {
		profile, err := r.ResolveProfile(ctx, userID, profileID)
		if err == nil {
			return profile, nil
		}
		if !IsConfigurationError(err) {
			return nil, err
		}
		last = err
	}
	if last != nil {
		return nil, last
	}
	return nil, configErr("no embedding profile resolvers configured")
}

var (
	_ ProfileResolver = StoreProfileResolver{}
	_ ProfileResolver = StaticProfileResolver{}
	_ ProfileResolver = ChainProfileResolver{}
)
