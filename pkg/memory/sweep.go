package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/coretask-core/coretask/ent/knowledgecacheentry"
	"github.com/coretask-core/coretask/ent/sharedhandoff"
	"github.com/coretask-core/coretask/ent/workingmemoryentry"
)

// SweepResult reports how many physically-expired rows a Sweep call
// reclaimed from each TTL-bearing table.
type SweepResult struct {
	WorkingMemoryDeleted int
	SharedHandoffDeleted int
	KnowledgeCacheDeleted int
}

// Sweep deletes rows whose expires_at has already passed. Query-time
// predicates (ExpiresAtGT) already hide expired rows from every read
// path; Sweep exists only to reclaim the space, not for correctness, so
// it is safe to run from multiple processes and at any interval.
func (s *Store) Sweep(ctx context.Context) (SweepResult, error) {
	now := time.Now()
	var res SweepResult

	n, err := s.db.WorkingMemoryEntry.Delete().
		Where(workingmemoryentry.ExpiresAtLTE(now)).
		Exec(ctx)
	if err != nil {
		return res, fmt.Errorf("sweeping working memory: %w", err)
	}
	res.WorkingMemoryDeleted = n

	n, err = s.db.SharedHandoff.Delete().
		Where(sharedhandoff.ExpiresAtLTE(now)).
		Exec(ctx)
	if err != nil {
		return res, fmt.Errorf("sweeping shared handoffs: %w", err)
	}
	res.SharedHandoffDeleted = n

	n, err = s.db.KnowledgeCacheEntry.Delete().
		Where(knowledgecacheentry.ExpiresAtLTE(now)).
		Exec(ctx)
	if err != nil {
		return res, fmt.Errorf("sweeping knowledge cache: %w", err)
	}
	res.KnowledgeCacheDeleted = n

	return res, nil
}
