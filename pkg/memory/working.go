package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/coretask-core/coretask/ent"
	"github.com/coretask-core/coretask/ent/workingmemoryentry"
	"github.com/google/uuid"
)

// workingMemoryTTL is the lifetime of a working-memory entry per the data
// model: created_at + 2h.
const workingMemoryTTL = 2 * time.Hour

// SetWorking upserts the working-memory value for (session_id, type).
func (s *Store) SetWorking(ctx context.Context, sessionID string, wtype workingmemoryentry.WorkingType, value string, metadata map[string]interface{}) error {
	now := time.Now()
	existing, err := s.db.WorkingMemoryEntry.Query().
		Where(
			workingmemoryentry.SessionID(sessionID),
			workingmemoryentry.WorkingTypeEQ(wtype),
		).
		Only(ctx)
	if err != nil && !ent.IsNotFound(err) {
		return fmt.Errorf("querying working memory: %w", err)
	}

	if existing != nil {
		return existing.Update().
			SetValue(value).
			SetEntryMetadata(metadata).
			SetExpiresAt(now.Add(workingMemoryTTL)).
			Exec(ctx)
	}

	return s.db.WorkingMemoryEntry.Create().
		SetID(uuid.NewString()).
		SetSessionID(sessionID).
		SetWorkingType(wtype).
		SetValue(value).
		SetEntryMetadata(metadata).
		SetExpiresAt(now.Add(workingMemoryTTL)).
		Exec(ctx)
}

// GetWorking returns the current value for (session_id, type), or nil if
// unset or expired.
func (s *Store) GetWorking(ctx context.Context, sessionID string, wtype workingmemoryentry.WorkingType) (*ent.WorkingMemoryEntry, error) {
	entry, err := s.db.WorkingMemoryEntry.Query().
		Where(
			workingmemoryentry.SessionID(sessionID),
			workingmemoryentry.WorkingTypeEQ(wtype),
			workingmemoryentry.ExpiresAtGT(time.Now()),
		).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying working memory: %w", err)
	}
	return entry, nil
}

// ClearSession deletes all working-memory entries for a session. Not
// required to be atomic across stores.
func (s *Store) ClearSession(ctx context.Context, sessionID string) error {
	_, err := s.db.WorkingMemoryEntry.Delete().
		Where(workingmemoryentry.SessionID(sessionID)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("clearing session working memory: %w", err)
	}
	return nil
}
