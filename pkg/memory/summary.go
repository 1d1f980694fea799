package memory

import (
	"context"
	"fmt"

	"github.com/coretask-core/coretask/ent"
	"github.com/coretask-core/coretask/ent/episodicsummary"
	"github.com/google/uuid"
)

// StoreSummary persists a new EpisodicSummary snapshot for an entity.
func (s *Store) StoreSummary(ctx context.Context, entityType episodicsummary.EntityType, entityID, summary string, activityCount int) error {
	err := s.db.EpisodicSummary.Create().
		SetID(uuid.NewString()).
		SetEntityType(entityType).
		SetEntityID(entityID).
		SetSummary(summary).
		SetActivityCount(activityCount).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("storing episodic summary: %w", err)
	}
	return nil
}

// LatestSummary returns the most recent summary for an entity, a single
// indexed lookup.
func (s *Store) LatestSummary(ctx context.Context, entityType episodicsummary.EntityType, entityID string) (*ent.EpisodicSummary, error) {
	summary, err := s.db.EpisodicSummary.Query().
		Where(
			episodicsummary.EntityTypeEQ(entityType),
			episodicsummary.EntityID(entityID),
		).
		Order(ent.Desc(episodicsummary.FieldGeneratedAt)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying latest summary: %w", err)
	}
	return summary, nil
}
