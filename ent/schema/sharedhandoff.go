package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// SharedHandoff holds the schema definition for the SharedHandoff entity
// (short-TTL inter-agent handoff mailbox, atomically consumed).
type SharedHandoff struct {
	ent.Schema
}

// Fields of the SharedHandoff.
func (SharedHandoff) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("session_id").
			Immutable(),
		field.String("from_agent").
			Immutable(),
		field.String("to_agent").
			Immutable(),
		field.String("handoff_type").
			Immutable(),
		field.JSON("payload", map[string]interface{}{}).
			Immutable(),
		field.Enum("status").
			Values("pending", "consumed").
			Default("pending"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("expires_at").
			Comment("created_at + 5min"),
	}
}

// Edges of the SharedHandoff.
func (SharedHandoff) Edges() []ent.Edge {
	return nil
}

// Indexes of the SharedHandoff.
func (SharedHandoff) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("session_id", "to_agent", "status"),
		index.Fields("expires_at"),
	}
}

func (SharedHandoff) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
