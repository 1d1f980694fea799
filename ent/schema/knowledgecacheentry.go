package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// KnowledgeCacheEntry holds the schema definition for the KnowledgeCacheEntry
// entity (semantic memory: cached external-fetch results).
type KnowledgeCacheEntry struct {
	ent.Schema
}

// Fields of the KnowledgeCacheEntry.
func (KnowledgeCacheEntry) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.Text("query").
			Immutable(),
		field.JSON("query_embedding", []float32{}).
			Immutable(),
		field.Text("result").
			Comment("Full-text searchable raw fetch result"),
		field.Text("summary").
			Optional().
			Nillable(),
		field.String("source").
			Immutable(),
		field.Int("times_accessed").
			Default(0),
		field.Time("fetched_at").
			Default(time.Now).
			Immutable(),
		field.Time("expires_at").
			Comment("fetched_at + 7 days by default"),
	}
}

// Edges of the KnowledgeCacheEntry.
func (KnowledgeCacheEntry) Edges() []ent.Edge {
	return nil
}

// Indexes of the KnowledgeCacheEntry.
func (KnowledgeCacheEntry) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id", "expires_at"),
		index.Fields("expires_at").
			Annotations(entsql.IndexWhere("expires_at IS NOT NULL")),
	}
}

func (KnowledgeCacheEntry) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
