package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// EpisodicEvent holds the schema definition for the EpisodicEvent entity.
// Immutable after write.
type EpisodicEvent struct {
	ent.Schema
}

// Fields of the EpisodicEvent.
func (EpisodicEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.String("action_type").
			Immutable(),
		field.Text("description").
			Immutable(),
		field.JSON("event_metadata", map[string]interface{}{}).
			Optional().
			Immutable(),
		field.JSON("embedding", []float32{}).
			Optional().
			Immutable().
			Comment("Fixed-dimension (1024) unit-normalized embedding vector"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the EpisodicEvent.
func (EpisodicEvent) Edges() []ent.Edge {
	return nil
}

// Indexes of the EpisodicEvent.
func (EpisodicEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id", "created_at"),
		index.Fields("user_id", "action_type"),
	}
}

func (EpisodicEvent) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
