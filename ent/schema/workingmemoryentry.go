package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// WorkingMemoryEntry holds the schema definition for the WorkingMemoryEntry entity.
type WorkingMemoryEntry struct {
	ent.Schema
}

// Fields of the WorkingMemoryEntry.
func (WorkingMemoryEntry) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("session_id").
			Immutable(),
		field.Enum("working_type").
			Values("current_project", "current_task", "last_action"),
		field.Text("value").
			Comment("Opaque scratchpad value"),
		field.JSON("entry_metadata", map[string]interface{}{}).
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
		field.Time("expires_at").
			Comment("created_at + 2h, enforced at query time"),
	}
}

// Edges of the WorkingMemoryEntry.
func (WorkingMemoryEntry) Edges() []ent.Edge {
	return nil
}

// Indexes of the WorkingMemoryEntry.
func (WorkingMemoryEntry) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("session_id", "working_type").
			Unique(),
		index.Fields("expires_at"),
	}
}

func (WorkingMemoryEntry) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
