package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/coretask-core/coretask/ent"
	"github.com/coretask-core/coretask/ent/sharedhandoff"
	"github.com/google/uuid"
)

// sharedHandoffTTL is the lifetime of a handoff per the data model:
// created_at + 5min.
const sharedHandoffTTL = 5 * time.Minute

// CreateHandoff writes a pending inter-agent handoff mailbox entry.
func (s *Store) CreateHandoff(ctx context.Context, sessionID, fromAgent, toAgent, handoffType string, payload map[string]interface{}) (string, error) {
	id := uuid.NewString()
	now := time.Now()
	err := s.db.SharedHandoff.Create().
		SetID(id).
		SetSessionID(sessionID).
		SetFromAgent(fromAgent).
		SetToAgent(toAgent).
		SetHandoffType(handoffType).
		SetPayload(payload).
		SetStatus(sharedhandoff.StatusPending).
		SetExpiresAt(now.Add(sharedHandoffTTL)).
		Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("creating handoff: %w", err)
	}
	return id, nil
}

// PeekPending reports the oldest pending, non-expired handoff addressed to
// (session_id, to_agent) without consuming it — used by context injection
// (spec §4.11) to display "pending disambiguation" without resolving it.
func (s *Store) PeekPending(ctx context.Context, sessionID, toAgent string) (map[string]interface{}, error) {
	candidate, err := s.db.SharedHandoff.Query().
		Where(
			sharedhandoff.SessionID(sessionID),
			sharedhandoff.ToAgent(toAgent),
			sharedhandoff.StatusEQ(sharedhandoff.StatusPending),
			sharedhandoff.ExpiresAtGT(time.Now()),
		).
		Order(ent.Asc(sharedhandoff.FieldCreatedAt)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying pending handoff: %w", err)
	}
	return candidate.Payload, nil
}

// ConsumePending atomically claims the oldest pending, non-expired handoff
// addressed to (session_id, to_agent). Exactly one concurrent caller wins;
// the rest observe a Conflict and return (nil, nil) — a race outcome, not
// an error (§7).
func (s *Store) ConsumePending(ctx context.Context, sessionID, toAgent string) (map[string]interface{}, error) {
	candidate, err := s.db.SharedHandoff.Query().
		Where(
			sharedhandoff.SessionID(sessionID),
			sharedhandoff.ToAgent(toAgent),
			sharedhandoff.StatusEQ(sharedhandoff.StatusPending),
			sharedhandoff.ExpiresAtGT(time.Now()),
		).
		Order(ent.Asc(sharedhandoff.FieldCreatedAt)).
		First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying pending handoff: %w", err)
	}

	n, err := s.db.SharedHandoff.Update().
		Where(
			sharedhandoff.ID(candidate.ID),
			sharedhandoff.StatusEQ(sharedhandoff.StatusPending),
		).
		SetStatus(sharedhandoff.StatusConsumed).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("consuming handoff: %w", err)
	}
	if n == 0 {
		// Another consumer won the race.
		return nil, nil
	}
	return candidate.Payload, nil
}
