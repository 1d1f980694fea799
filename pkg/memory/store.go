// Package memory implements the uniform MemoryStore API over the core's
// seven typed stores: working, episodic, semantic (preference and
// knowledge-cache), procedural, shared-handoff, discovery, and episodic
// summary.
package memory

import (
	"github.com/coretask-core/coretask/ent"
	"github.com/coretask-core/coretask/pkg/embedclient"
)

// Store is the single entry point for every memory operation. All
// mutations go through it; no component keeps a private durable cache.
type Store struct {
	db       *ent.Client
	embedder embedclient.Client
}

// New constructs a Store bound to an ent client and an embedding adapter.
func New(db *ent.Client, embedder embedclient.Client) *Store {
	return &Store{db: db, embedder: embedder}
}
