// Package entitystore implements the EntityStore contract the core
// consumes for domain CRUD (spec §6): find/insert/update plus
// vector_search/text_search/hybrid_search, backed by a minimal ent
// Task/Project pair. Task/project management itself is out of scope;
// this exists to drive ToolExecutor's entity-mutation tools end to end.
package entitystore

import (
	"context"

	"github.com/coretask-core/coretask/pkg/embedclient"
	"github.com/coretask-core/coretask/pkg/retrieval"
)

// Filter selects rows by field equality; supported keys are
// implementation-specific (e.g. "user_id", "status", "project_id").
type Filter map[string]interface{}

// Patch is a partial update: only the present keys are written.
type Patch map[string]interface{}

// Sort orders Find results by a single field.
type Sort struct {
	Field      string
	Descending bool
}

// EntityStore is the consumed interface spec §6 names for a single
// collection ("tasks" or "projects"). userID scopes every operation to
// the caller's tenant, since every collection this core drives is
// per-user data.
type EntityStore interface {
	Find(ctx context.Context, userID string, filter Filter, limit int, sort Sort) ([]interface{}, error)
	Insert(ctx context.Context, userID string, doc map[string]interface{}) (string, error)
	Update(ctx context.Context, userID, id string, patch Patch) error

	VectorSearch(ctx context.Context, userID string, queryVec embedclient.Vector, k int) ([]retrieval.Hit, error)
	TextSearch(ctx context.Context, userID, query string, k int) ([]retrieval.Hit, error)
	HybridSearch(ctx context.Context, userID string, queryVec embedclient.Vector, query string, k int) ([]retrieval.Hit, error)
}
