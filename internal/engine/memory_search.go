// Package engine composes embedding generation, per-owner vector indices
// and memory storage into semantic memory retrieval with a lexical
// fallback, plus the lifecycle hooks that keep indices current.
package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/scrypster/recall/internal/lexical"
	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/vectorindex"
	"github.com/scrypster/recall/pkg/types"
)

// EmbeddingGenerator produces one embedding for one text. *llm.Generator
// implements it.
type EmbeddingGenerator interface {
	Generate(ctx context.Context, text string, profile *types.EmbeddingProfile, creds llm.CredentialResolver) (*types.EmbeddingResult, error)
}

// IndexProvider hands out the searchable index of an owner entity.
// *vectorindex.Manager implements it.
type IndexProvider interface {
	Searcher(ctx context.Context, ownerEntityID string) (vectorindex.Searcher, error)
}

// SearchConfig holds the limits applied to every search.
type SearchConfig struct {
	// DefaultLimit is used when a request has no positive limit.
	// Default: 10
	DefaultLimit int

	// MaxLimit caps any requested limit.
	// Default: 100
	MaxLimit int

	// AccessUpdateTimeout bounds the background last-accessed write.
	// Default: 5s
	AccessUpdateTimeout time.Duration
}

// SearchOptions configures a single search.
type SearchOptions struct {
	// UserID selects whose embedding profile is used.
	UserID string

	// ProfileID picks an explicit profile instead of the user's default.
	ProfileID string

	// Limit is the maximum number of results to return.
	Limit int

	// MinScore drops embedding hits scoring below it. Zero disables it.
	// Lexical scores are on a different scale and ignore it.
	MinScore float64

	// MinImportance drops memories less important than this. Zero disables it.
	MinImportance float64

	// SourceFilter, when non-empty, keeps only memories from these sources.
	SourceFilter []types.MemorySource
}

// SearchResponse is the ranked result of a search. UsedEmbedding reports
// whether the semantic path produced it; false means lexical fallback.
type SearchResponse struct {
	Results       []types.RankedMemory `json:"results"`
	UsedEmbedding bool                 `json:"usedEmbedding"`
}

// MemorySearchService retrieves the memories of an owner entity that are
// most relevant to a query. Any failure to obtain a query embedding
// degrades to lexical matching instead of failing the request.
type MemorySearchService struct {
	memories storage.MemoryReader
	indices  IndexProvider
	embedder EmbeddingGenerator
	profiles llm.ProfileResolver
	creds    llm.CredentialResolver
	tasks    *TaskGroup
	cfg      SearchConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewMemorySearchService wires a search service. tasks runs the
// last-accessed updates; when nil the service creates its own group.
func NewMemorySearchService(
	memories storage.MemoryReader,
	indices IndexProvider,
	embedder EmbeddingGenerator,
	profiles llm.ProfileResolver,
	creds llm.CredentialResolver,
	tasks *TaskGroup,
	cfg SearchConfig,
	logger *slog.Logger,
) *MemorySearchService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = vectorindex.DefaultSearchLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	if cfg.AccessUpdateTimeout <= 0 {
		cfg.AccessUpdateTimeout = DefaultTaskTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if tasks == nil {
		tasks = NewTaskGroup(cfg.AccessUpdateTimeout, logger)
	}
	return &MemorySearchService{
		memories: memories,
		indices:  indices,
		embedder: embedder,
		profiles: profiles,
		creds:    creds,
		tasks:    tasks,
		cfg:      cfg,
		logger:   logger.With("component", "memory_search"),
		now:      time.Now,
	}
}

// Search returns the memories of ownerEntityID ranked by relevance to
// query. Embedding, profile and index-load failures fall back to lexical
// scoring. Dimension mismatches and memory storage failures are returned.
func (s *MemorySearchService) Search(ctx context.Context, ownerEntityID, query string, opts SearchOptions) (*SearchResponse, error) {
	if ownerEntityID == "" {
		return nil, fmt.Errorf("%w: owner entity ID is required", storage.ErrInvalidInput)
	}
	limit := s.normalizeLimit(opts.Limit)

	results, usedEmbedding, err := s.semanticSearch(ctx, ownerEntityID, query, limit, opts)
	if err != nil {
		return nil, err
	}
	if !usedEmbedding {
		results, err = s.lexicalSearch(ctx, ownerEntityID, query, limit, opts)
		if err != nil {
			return nil, err
		}
	}

	s.touch(ownerEntityID, results)

	return &SearchResponse{Results: results, UsedEmbedding: usedEmbedding}, nil
}

// semanticSearch returns ok=false when the caller should fall back to the
// lexical path.
func (s *MemorySearchService) semanticSearch(ctx context.Context, ownerEntityID, query string, limit int, opts SearchOptions) ([]types.RankedMemory, bool, error) {
	if s.embedder == nil || s.profiles == nil {
		s.logger.Debug("semantic search disabled, using lexical fallback", "owner", ownerEntityID)
		return nil, false, nil
	}

	profile, err := s.profiles.ResolveProfile(ctx, opts.UserID, opts.ProfileID)
	if err != nil {
		s.logFallback(ownerEntityID, "profile", err)
		return nil, false, nil
	}

	embedding, err := s.embedder.Generate(ctx, query, profile, s.creds)
	if err != nil {
		s.logFallback(ownerEntityID, "embedding", err)
		return nil, false, nil
	}

	searcher, err := s.indices.Searcher(ctx, ownerEntityID)
	if err != nil {
		if vectorindex.IsDimensionMismatch(err) {
			return nil, false, err
		}
		s.logFallback(ownerEntityID, "index", err)
		return nil, false, nil
	}
	if searcher.Size() == 0 {
		s.logger.Info("semantic search unavailable, using lexical fallback", "owner", ownerEntityID, "stage", "index", "reason", "no vectors indexed")
		return nil, false, nil
	}

	// The index is asked for every candidate; importance and missing
	// records are only known after the lookup, so truncation happens here.
	hits, err := searcher.Search(embedding.Vector, searcher.Size(), sourcePredicate(opts.SourceFilter))
	if err != nil {
		return nil, false, fmt.Errorf("vector search for %q failed: %w", ownerEntityID, err)
	}

	results := make([]types.RankedMemory, 0, min(limit, len(hits)))
	for _, hit := range hits {
		if len(results) == limit {
			break
		}
		if opts.MinScore > 0 && hit.Score < opts.MinScore {
			// Hits are sorted; nothing after this one qualifies.
			break
		}

		memoryID := hit.Metadata.MemoryID
		if memoryID == "" {
			memoryID = hit.ID
		}
		memory, err := s.memories.FindByID(ctx, memoryID)
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Debug("skipping vector hit for missing memory", "owner", ownerEntityID, "memory_id", memoryID)
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to load memory %q: %w", memoryID, err)
		}
		if memory.OwnerEntityID != ownerEntityID || !matches(memory, opts) {
			continue
		}
		results = append(results, types.RankedMemory{Memory: memory, Score: hit.Score})
	}
	return results, true, nil
}

// lexicalSearch scores every memory of the owner against the query terms.
// Zero-score memories are dropped.
func (s *MemorySearchService) lexicalSearch(ctx context.Context, ownerEntityID, query string, limit int, opts SearchOptions) ([]types.RankedMemory, error) {
	terms := lexical.ExtractSearchTerms(query)
	if terms.IsEmpty() {
		return []types.RankedMemory{}, nil
	}

	memories, err := s.memories.FindByOwnerEntity(ctx, ownerEntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load memories for %q: %w", ownerEntityID, err)
	}

	results := make([]types.RankedMemory, 0, len(memories))
	for _, memory := range memories {
		if !matches(memory, opts) {
			continue
		}
		score := lexical.TextSimilarity(terms, memory.Content)
		if score <= 0 {
			continue
		}
		results = append(results, types.RankedMemory{Memory: memory, Score: score})
	}

	slices.SortStableFunc(results, func(a, b types.RankedMemory) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Memory.Importance, a.Memory.Importance); c != 0 {
			return c
		}
		if c := b.Memory.CreatedAt.Compare(a.Memory.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Memory.ID, b.Memory.ID)
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// touch records the access time of every returned memory in the background.
func (s *MemorySearchService) touch(ownerEntityID string, results []types.RankedMemory) {
	if len(results) == 0 {
		return
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Memory.ID
	}
	at := s.now().UTC()

	s.tasks.Go("update-access-time", func(ctx context.Context) error {
		var errs []error
		for _, id := range ids {
			if err := s.memories.UpdateAccessTime(ctx, ownerEntityID, id, at); err != nil {
				errs = append(errs, fmt.Errorf("memory %s: %w", id, err))
			}
		}
		return errors.Join(errs...)
	})
}

func (s *MemorySearchService) normalizeLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	return min(limit, s.cfg.MaxLimit)
}

// logFallback logs why the semantic path was abandoned. Missing
// configuration is routine; anything else is worth a warning.
func (s *MemorySearchService) logFallback(ownerEntityID, stage string, err error) {
	if llm.IsConfigurationError(err) || errors.Is(err, llm.ErrEmptyText) {
		s.logger.Info("semantic search unavailable, using lexical fallback", "owner", ownerEntityID, "stage", stage, "reason", err)
		return
	}
	s.logger.Warn("semantic search failed, using lexical fallback", "owner", ownerEntityID, "stage", stage, "error", err)
}

func sourcePredicate(sources []types.MemorySource) vectorindex.Predicate {
	if len(sources) == 0 {
		return nil
	}
	return func(md types.VectorMetadata) bool {
		// Entries indexed without a source are checked against the record.
		return md.Source == "" || slices.Contains(sources, md.Source)
	}
}

func matches(memory *types.Memory, opts SearchOptions) bool {
	if opts.MinImportance > 0 && memory.Importance < opts.MinImportance {
		return false
	}
	if len(opts.SourceFilter) > 0 && !slices.Contains(opts.SourceFilter, memory.Source) {
		return false
	}
	return true
}
