package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/coretask-core/coretask/ent"
	"github.com/coretask-core/coretask/ent/episodicevent"
	"github.com/coretask-core/coretask/pkg/embedclient"
	"github.com/google/uuid"
)

// EpisodicListOptions filters list_episodic queries.
type EpisodicListOptions struct {
	Since      *time.Time
	ActionType string
	Limit      int
}

// RecordEpisodic appends an immutable episodic event, optionally embedding
// the description for later similarity search.
func (s *Store) RecordEpisodic(ctx context.Context, userID, actionType, description string, metadata map[string]interface{}, embed bool) (string, error) {
	id := uuid.NewString()
	create := s.db.EpisodicEvent.Create().
		SetID(id).
		SetUserID(userID).
		SetActionType(actionType).
		SetDescription(description).
		SetEventMetadata(metadata)

	if embed && s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, description)
		if err == nil {
			create = create.SetEmbedding(vec.ToFloat32Slice())
		}
	}

	if err := create.Exec(ctx); err != nil {
		return "", fmt.Errorf("recording episodic event: %w", err)
	}
	return id, nil
}

// ListEpisodic returns events for a user, newest first, filtered per opts.
func (s *Store) ListEpisodic(ctx context.Context, userID string, opts EpisodicListOptions) ([]*ent.EpisodicEvent, error) {
	q := s.db.EpisodicEvent.Query().Where(episodicevent.UserID(userID))
	if opts.Since != nil {
		q = q.Where(episodicevent.CreatedAtGTE(*opts.Since))
	}
	if opts.ActionType != "" {
		q = q.Where(episodicevent.ActionType(opts.ActionType))
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	events, err := q.Order(ent.Desc(episodicevent.FieldCreatedAt)).Limit(limit).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing episodic events: %w", err)
	}
	return events, nil
}

// RecentEpisodic returns the n most recent episodic events within the
// given age window, for context injection (§4.11 item 4).
func (s *Store) RecentEpisodic(ctx context.Context, userID string, within time.Duration, n int) ([]*ent.EpisodicEvent, error) {
	since := time.Now().Add(-within)
	return s.ListEpisodic(ctx, userID, EpisodicListOptions{Since: &since, Limit: n})
}

// SearchEpisodic ranks episodic events by embedding similarity to text.
func (s *Store) SearchEpisodic(ctx context.Context, userID, text string, limit int) ([]*ent.EpisodicEvent, error) {
	if limit <= 0 {
		limit = 10
	}
	query, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding search query: %w", err)
	}

	candidates, err := s.db.EpisodicEvent.Query().
		Where(episodicevent.UserID(userID)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading episodic candidates: %w", err)
	}

	type scored struct {
		ev    *ent.EpisodicEvent
		score float32
	}
	scoredList := make([]scored, 0, len(candidates))
	for _, ev := range candidates {
		if len(ev.Embedding) == 0 {
			continue
		}
		vec := embedclient.FromFloat32Slice(ev.Embedding)
		scoredList = append(scoredList, scored{ev: ev, score: embedclient.Dot(query, vec)})
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].score > scoredList[j].score })

	if len(scoredList) > limit {
		scoredList = scoredList[:limit]
	}
	result := make([]*ent.EpisodicEvent, len(scoredList))
	for i, sc := range scoredList {
		result[i] = sc.ev
	}
	return result, nil
}
