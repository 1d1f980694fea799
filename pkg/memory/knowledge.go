package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/coretask-core/coretask/ent"
	"github.com/coretask-core/coretask/ent/knowledgecacheentry"
	"github.com/coretask-core/coretask/pkg/embedclient"
	"github.com/google/uuid"
)

// KnowledgeHit is one search_knowledge result.
type KnowledgeHit struct {
	Entry *ent.KnowledgeCacheEntry
	Score float32
}

// CacheKnowledge stores a fresh external-fetch result, keyed by query
// embedding, with a default 7-day TTL.
func (s *Store) CacheKnowledge(ctx context.Context, userID, query, result string, summary *string, source string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("embedding knowledge query: %w", err)
	}

	create := s.db.KnowledgeCacheEntry.Create().
		SetID(uuid.NewString()).
		SetUserID(userID).
		SetQuery(query).
		SetQueryEmbedding(vec.ToFloat32Slice()).
		SetResult(result).
		SetSource(source).
		SetExpiresAt(time.Now().Add(ttl))
	if summary != nil {
		create = create.SetSummary(*summary)
	}
	if err := create.Exec(ctx); err != nil {
		return fmt.Errorf("caching knowledge: %w", err)
	}
	return nil
}

// SearchKnowledge returns cache entries whose similarity to query is ≥
// threshold and which have not expired, sorted by score, capped by limit.
// Matches at exactly the threshold are treated as a hit (inclusive).
func (s *Store) SearchKnowledge(ctx context.Context, userID, query string, threshold float32, limit int) ([]KnowledgeHit, error) {
	if limit <= 0 {
		limit = 5
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding search query: %w", err)
	}

	candidates, err := s.db.KnowledgeCacheEntry.Query().
		Where(
			knowledgecacheentry.UserID(userID),
			knowledgecacheentry.ExpiresAtGT(time.Now()),
		).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading knowledge cache candidates: %w", err)
	}

	hits := make([]KnowledgeHit, 0, len(candidates))
	for _, c := range candidates {
		score := embedclient.Dot(vec, embedclient.FromFloat32Slice(c.QueryEmbedding))
		if score >= threshold {
			hits = append(hits, KnowledgeHit{Entry: c, Score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// TopKnowledgeMatch returns the single best cache match for query
// regardless of threshold, used by the DiscoveryAgent's cache-lookup tier.
// The caller applies its own threshold (default 0.85).
func (s *Store) TopKnowledgeMatch(ctx context.Context, userID, query string) (*KnowledgeHit, error) {
	hits, err := s.SearchKnowledge(ctx, userID, query, -1, 1)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	return &hits[0], nil
}

// IncrementKnowledgeAccess atomically increments times_accessed on a cache
// hit.
func (s *Store) IncrementKnowledgeAccess(ctx context.Context, entryID string) error {
	if _, err := s.db.KnowledgeCacheEntry.UpdateOneID(entryID).AddTimesAccessed(1).Save(ctx); err != nil {
		return fmt.Errorf("incrementing times_accessed: %w", err)
	}
	return nil
}
