package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/coretask-core/coretask/ent"
	"github.com/coretask-core/coretask/ent/discoveryrecord"
	"github.com/coretask-core/coretask/pkg/embedclient"
	"github.com/google/uuid"
)

// DiscoverySolution is the (server, tool, arguments) the LLM chose to
// satisfy an external request.
type DiscoverySolution struct {
	Server    string
	Tool      string
	Arguments map[string]interface{}
}

// LogDiscovery records the outcome of a fresh-discovery attempt.
func (s *Store) LogDiscovery(ctx context.Context, userScope, request string, solution DiscoverySolution, success bool, elapsed time.Duration) (string, error) {
	vec, err := s.embedder.Embed(ctx, request)
	if err != nil {
		return "", fmt.Errorf("embedding discovery request: %w", err)
	}
	id := uuid.NewString()
	err = s.db.DiscoveryRecord.Create().
		SetID(id).
		SetUserScope(userScope).
		SetUserRequest(request).
		SetRequestEmbedding(vec.ToFloat32Slice()).
		SetServer(solution.Server).
		SetTool(solution.Tool).
		SetArguments(solution.Arguments).
		SetSuccess(success).
		SetExecutionTimeMs(int(elapsed.Milliseconds())).
		Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("logging discovery: %w", err)
	}
	return id, nil
}

// FindSimilarDiscovery returns the best-matching discovery record for
// request scoped to userScope (or "global"), at or above threshold.
func (s *Store) FindSimilarDiscovery(ctx context.Context, userScope, request string, threshold float32, requireSuccess bool) (*ent.DiscoveryRecord, float32, error) {
	vec, err := s.embedder.Embed(ctx, request)
	if err != nil {
		return nil, 0, fmt.Errorf("embedding discovery request: %w", err)
	}

	q := s.db.DiscoveryRecord.Query().Where(discoveryrecord.UserScope(userScope))
	if requireSuccess {
		q = q.Where(discoveryrecord.Success(true))
	}
	candidates, err := q.All(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("loading discovery candidates: %w", err)
	}

	var best *ent.DiscoveryRecord
	var bestScore float32 = -2
	for _, c := range candidates {
		score := embedclient.Dot(vec, embedclient.FromFloat32Slice(c.RequestEmbedding))
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if best == nil || bestScore < threshold {
		return nil, 0, nil
	}
	return best, bestScore, nil
}

// IncrementDiscoveryUsage atomically increments a discovery record's
// times_used, returning the updated count.
func (s *Store) IncrementDiscoveryUsage(ctx context.Context, recordID string) (int, error) {
	rec, err := s.db.DiscoveryRecord.UpdateOneID(recordID).AddTimesUsed(1).Save(ctx)
	if err != nil {
		return 0, fmt.Errorf("incrementing discovery usage: %w", err)
	}
	return rec.TimesUsed, nil
}

// FailedDiscoveries returns discoveries recorded as failed for a scope,
// feeding the analyze_tool_discoveries feature-gap clustering (§4.3).
func (s *Store) FailedDiscoveries(ctx context.Context, userScope string) ([]*ent.DiscoveryRecord, error) {
	records, err := s.db.DiscoveryRecord.Query().
		Where(discoveryrecord.UserScope(userScope), discoveryrecord.Success(false)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing failed discoveries: %w", err)
	}
	return records, nil
}

// PopularDiscoveries returns unpromoted discoveries with times_used ≥
// minUses, the promotion-candidate set surfaced by analyze_tool_discoveries.
func (s *Store) PopularDiscoveries(ctx context.Context, minUses, limit int) ([]*ent.DiscoveryRecord, error) {
	records, err := s.db.DiscoveryRecord.Query().
		Where(
			discoveryrecord.TimesUsedGTE(minUses),
			discoveryrecord.Promoted(false),
		).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing popular discoveries: %w", err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].TimesUsed > records[j].TimesUsed })
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
